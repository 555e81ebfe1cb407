// Package interp evaluates bound trees.
//
// The interpreter executes method bodies before and after lowering with the
// same semantics, so that both can be compared on the effects they have: the
// calls they make to host functions, the values they return and the
// exceptions they raise.
//
// Await expressions suspend the evaluation of the method, which runs as a
// coroutine, and hand the awaited value to Config.Await. Async lambdas run
// on the stack of their caller: their awaits suspend the method invoking
// them.
package interp

import (
	"fmt"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/internal/coro"
	"go.uber.org/zap"
)

// HostFunc implements a method without a body. Arguments passed by
// reference are *Ref values. A struct receiver is passed in place.
//
// A host function raises an exception by calling Throw.
type HostFunc func(this Value, args []Value) Value

// Config configures a run.
type Config struct {
	// Host functions, by method name.
	Host map[string]HostFunc
	// Await resolves the values awaited by the method. It may call Throw
	// to fault the await. By default the awaited value is the result.
	Await func(Value) Value
	// TypeArgs instantiates the type parameters of the method, by name.
	TypeArgs map[string]*bound.Type
	// This is the receiver of an instance method.
	This Value
	// Statics holds the initial values of static fields.
	Statics map[*bound.Field]Value
	Logger  *zap.Logger
}

// Result is the outcome of a run.
type Result struct {
	Value Value
	// Thrown is the exception that escaped the method, if any.
	Thrown Value
	// Locks is the number of monitors still held when the method ended.
	Locks int
}

// Runtime exceptions raised by the interpreter itself.
var (
	NullReference       = bound.NewClass("NullReferenceException", bound.Exception)
	InvalidCast         = bound.NewClass("InvalidCastException", bound.Exception)
	IndexOutOfRange     = bound.NewClass("IndexOutOfRangeException", bound.Exception)
	SynchronizationLock = bound.NewClass("SynchronizationLockException", bound.Exception)
	ArgumentError       = bound.NewClass("ArgumentException", bound.Exception)
	DivideByZero        = bound.NewClass("DivideByZeroException", bound.Exception)
	FormatError         = bound.NewClass("FormatException", bound.Exception)
)

// Error is returned by Run when the tree cannot be evaluated.
type Error struct {
	Pos bound.Pos
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

func fault(pos bound.Pos, format string, args ...any) {
	panic(&Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// thrown is the panic value propagating an exception.
type thrown struct {
	value Value
	// searched is set once the catch clause handling the exception has
	// been looked for. frame and handler are the try statement and the
	// body of the clause selected, if any.
	searched bool
	frame    *handlerFrame
	handler  func() completion
}

// handlerFrame is a try statement with catch clauses being evaluated, and
// the state its filters and handlers run in.
type handlerFrame struct {
	try       *bound.Try
	scope     *scope
	this      Location
	handling  []*thrown
	receivers map[int]Location
}

// Throw raises v as an exception from a host function.
func Throw(v Value) {
	panic(&thrown{value: v})
}

// NewException creates an exception object of type t with message msg.
func NewException(t *bound.Type, msg string) *Object {
	o := &Object{Type: t, Fields: map[*bound.Field]Value{}}
	for _, f := range t.InstanceFields() {
		o.Fields[f] = nil
	}
	o.Fields[bound.Exception.Field("Message")] = msg
	return o
}

type awaitResult struct {
	value  Value
	thrown *thrown
}

// Run evaluates the body of m with args bound to its parameters.
func Run(m *bound.Method, cfg Config, args ...Value) (Result, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Await == nil {
		cfg.Await = func(v Value) Value { return v }
	}
	mc := &machine{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("method", m.Name)),
		statics: map[*bound.Field]Value{},
		locks:   map[Value]int{},
	}
	for f, v := range cfg.Statics {
		mc.statics[f] = v
	}

	var result Result
	var err error
	c := coro.New[Value, awaitResult](func(ctx *coro.Context[Value, awaitResult]) {
		mc.ctx = ctx
		result, err = mc.run(m, &cell{v: cfg.This}, args)
	})
	coro.Run(c, func(v Value) awaitResult {
		return mc.resolveAwait(v)
	})
	for _, n := range mc.locks {
		result.Locks += n
	}
	return result, err
}

func (m *machine) resolveAwait(v Value) (r awaitResult) {
	defer func() {
		if x := recover(); x != nil {
			t, ok := x.(*thrown)
			if !ok {
				panic(x)
			}
			r = awaitResult{thrown: t}
		}
	}()
	return awaitResult{value: m.cfg.Await(v)}
}

func (m *machine) run(method *bound.Method, this Location, args []Value) (result Result, err error) {
	defer func() {
		switch x := recover().(type) {
		case nil:
		case *thrown:
			result = Result{Thrown: x.value}
		case *Error:
			err = x
		default:
			panic(x)
		}
	}()
	v := m.invoke(method, this, args)
	return Result{Value: v}, nil
}

type machine struct {
	cfg     Config
	log     *zap.Logger
	ctx     *coro.Context[Value, awaitResult]
	statics map[*bound.Field]Value
	locks   map[Value]int

	// frame of the function being evaluated.
	scope *scope
	this  Location
	// exceptions being handled by the enclosing catch blocks of the
	// function, innermost last.
	handling []*thrown
	// receivers of the conditional accesses being evaluated.
	receivers map[int]Location
	// try statements with catch clauses being evaluated, innermost last.
	handlers []*handlerFrame
}

// scope holds the storage of the locals declared by a block.
type scope struct {
	parent *scope
	vars   map[*bound.Local]Location
}

func (m *machine) push(locals []*bound.Local) {
	s := &scope{parent: m.scope, vars: make(map[*bound.Local]Location, len(locals))}
	for _, l := range locals {
		s.vars[l] = m.newVar(l)
	}
	m.scope = s
}

func (m *machine) pop() { m.scope = m.scope.parent }

func (m *machine) newVar(l *bound.Local) Location {
	if l.RefKind == bound.ByRef {
		return nil
	}
	return &cell{v: m.zero(l.Type)}
}

func (m *machine) lookup(pos bound.Pos, l *bound.Local) (*scope, Location) {
	for s := m.scope; s != nil; s = s.parent {
		if loc, ok := s.vars[l]; ok {
			if loc == nil {
				fault(pos, "reference local %s is not bound", l.Name)
			}
			return s, loc
		}
	}
	fault(pos, "local %s is not in scope", l.Name)
	return nil, nil
}

func (m *machine) bind(pos bound.Pos, l *bound.Local, loc Location) {
	for s := m.scope; s != nil; s = s.parent {
		if _, ok := s.vars[l]; ok {
			s.vars[l] = loc
			return
		}
	}
	fault(pos, "local %s is not in scope", l.Name)
}

// invoke evaluates the body of a method, or calls the host function
// implementing it.
func (m *machine) invoke(method *bound.Method, this Location, args []Value) Value {
	if method.Body == nil {
		return m.host(method, this, args)
	}
	return m.function(method.Params, method.Body, nil, this, args)
}

func (m *machine) function(params []*bound.Local, body *bound.Block, parent *scope, this Location, args []Value) Value {
	savedScope, savedThis, savedHandling := m.scope, m.this, m.handling
	defer func() { m.scope, m.this, m.handling = savedScope, savedThis, savedHandling }()

	m.scope = &scope{parent: parent, vars: make(map[*bound.Local]Location, len(params))}
	m.this = this
	m.handling = nil
	for i, p := range params {
		var arg Value
		if i < len(args) {
			arg = args[i]
		}
		if p.RefKind == bound.ByRef {
			ref, ok := arg.(*Ref)
			if !ok {
				fault(body.Pos, "parameter %s must be passed by reference", p.Name)
			}
			m.scope.vars[p] = ref.Location
			continue
		}
		m.scope.vars[p] = &cell{v: copyValue(arg)}
	}

	c := m.block(body)
	switch c.kind {
	case jump:
		fault(body.Pos, "undefined label %s", c.label)
	case ret:
		return c.value
	}
	return nil
}

func (m *machine) host(method *bound.Method, this Location, args []Value) Value {
	if v, ok := m.builtin(method, this, args); ok {
		return v
	}
	fn, ok := m.cfg.Host[method.Name]
	if !ok {
		panic(&Error{Msg: fmt.Sprintf("no host function for %s", method.Name)})
	}
	var recv Value
	if this != nil {
		recv = this.Load()
	}
	return fn(recv, args)
}

// await suspends the method until the awaited value resolves.
func (m *machine) await(pos bound.Pos, v Value) Value {
	m.log.Debug("await", zap.Stringer("pos", pos))
	r := m.ctx.Yield(v)
	if r.thrown != nil {
		panic(r.thrown)
	}
	return r.value
}

type completionKind uint8

const (
	normal completionKind = iota
	jump
	ret
)

// completion is how the evaluation of a statement ended.
type completion struct {
	kind  completionKind
	label *bound.Label
	value Value
}

func (m *machine) block(b *bound.Block) completion {
	m.push(b.Locals)
	defer m.pop()
	return m.stmts(b.Stmts)
}

func (m *machine) stmts(list []bound.Stmt) completion {
	for i := 0; i < len(list); {
		c := m.stmt(list[i])
		switch c.kind {
		case normal:
			i++
		case jump:
			j := labelIndex(list, c.label)
			if j < 0 {
				return c
			}
			i = j + 1
		default:
			return c
		}
	}
	return completion{}
}

func labelIndex(list []bound.Stmt, l *bound.Label) int {
	for i, s := range list {
		if ls, ok := s.(*bound.LabelStmt); ok && ls.Label == l {
			return i
		}
	}
	return -1
}

func (m *machine) stmt(s bound.Stmt) completion {
	switch s := s.(type) {
	case *bound.Block:
		return m.block(s)

	case *bound.ExprStmt:
		m.eval(s.X)

	case *bound.If:
		if m.cond(s.Cond) {
			return m.stmt(s.Then)
		} else if s.Else != nil {
			return m.stmt(s.Else)
		}

	case *bound.Goto:
		return completion{kind: jump, label: s.Label}

	case *bound.CondGoto:
		if m.cond(s.Cond) == s.JumpIfTrue {
			return completion{kind: jump, label: s.Label}
		}

	case *bound.LabelStmt, *bound.NoOp:

	case *bound.Return:
		var v Value
		if s.Result != nil {
			v = m.eval(s.Result)
		}
		return completion{kind: ret, value: v}

	case *bound.Throw:
		m.throw(s)

	case *bound.Switch:
		v, _ := m.eval(s.X).(int64)
		for _, c := range s.Cases {
			if c.Value == v {
				return m.stmt(c.Body)
			}
		}

	case *bound.Try:
		return m.try(s)

	case *bound.While:
		return m.while(s)

	case *bound.For:
		return m.forLoop(s)

	case *bound.Lock:
		return m.lock(s)

	default:
		fault(s.Position(), "unexpected statement %T", s)
	}
	return completion{}
}

func (m *machine) cond(e bound.Expr) bool {
	b, ok := m.eval(e).(bool)
	if !ok {
		fault(e.Position(), "condition is not a boolean")
	}
	return b
}

func (m *machine) throw(s *bound.Throw) {
	if s.X == nil {
		if len(m.handling) == 0 {
			fault(s.Pos, "rethrow outside of a catch block")
		}
		panic(&thrown{value: m.handling[len(m.handling)-1].value})
	}
	v := m.eval(s.X)
	if v == nil {
		v = NewException(NullReference, "throwing null")
	}
	if o, ok := v.(*Object); ok {
		o.Trace = []bound.Pos{s.Pos}
	}
	panic(&thrown{value: v})
}

// protect evaluates fn, returning the exception it raised instead of
// propagating it.
func (m *machine) protect(fn func() completion) (c completion, t *thrown) {
	scope, handling, receivers, handlers := m.scope, m.handling, m.receivers, m.handlers
	defer func() {
		if x := recover(); x != nil {
			var ok bool
			if t, ok = x.(*thrown); !ok {
				panic(x)
			}
			m.scope, m.handling, m.receivers, m.handlers = scope, handling, receivers, handlers
		}
	}()
	return fn(), nil
}

func (m *machine) try(s *bound.Try) completion {
	var fr *handlerFrame
	if len(s.Catches) > 0 {
		fr = &handlerFrame{try: s, scope: m.scope, this: m.this, handling: m.handling, receivers: m.receivers}
		m.handlers = append(m.handlers, fr)
	}
	c, t := m.protect(func() completion { return m.block(s.Body) })
	if t != nil {
		m.dispatch(t)
	}
	if fr != nil {
		m.handlers = m.handlers[:len(m.handlers)-1]
		if t != nil && t.frame == fr {
			c, t = m.protect(t.handler)
			if t != nil {
				m.dispatch(t)
			}
		}
	}
	if s.Finally != nil {
		if fc := m.block(s.Finally); fc.kind != normal {
			return fc
		}
	}
	if t != nil {
		panic(t)
	}
	return c
}

// dispatch selects the catch clause handling t. The type tests and filters
// of the enclosing try statements are evaluated from the innermost outward,
// before any finally block between the throw and the handler runs.
func (m *machine) dispatch(t *thrown) {
	if t.searched {
		return
	}
	t.searched = true
	handlers := m.handlers
	for i := len(handlers) - 1; i >= 0; i-- {
		fr := handlers[i]
		for _, c := range fr.try.Catches {
			if h, ok := m.catch(fr, c, t); ok {
				t.frame, t.handler = fr, h
				return
			}
		}
	}
}

// catch tests whether clause c of fr handles the exception t. If it does,
// the returned function evaluates its body.
func (m *machine) catch(fr *handlerFrame, c *bound.Catch, t *thrown) (func() completion, bool) {
	if !m.isInstance(t.value, c.CatchType()) {
		return nil, false
	}
	sc := &scope{parent: fr.scope, vars: map[*bound.Local]Location{}}
	if c.Local != nil {
		loc := m.newVar(c.Local)
		loc.Store(t.value)
		sc.vars[c.Local] = loc
	}

	if c.Filter != nil {
		scope, this, handling, receivers, handlers := m.scope, m.this, m.handling, m.receivers, m.handlers
		m.scope, m.this, m.handling, m.receivers, m.handlers = sc, fr.this, fr.handling, fr.receivers, nil
		// An exception raised by a filter means the filter does not match.
		fc, ft := m.protect(func() completion {
			if m.cond(c.Filter) {
				return completion{}
			}
			return completion{kind: jump}
		})
		m.scope, m.this, m.handling, m.receivers, m.handlers = scope, this, handling, receivers, handlers
		if ft != nil || fc.kind != normal {
			return nil, false
		}
	}

	return func() completion {
		saved := m.scope
		m.scope = sc
		m.handling = append(m.handling, t)
		defer func() {
			m.scope = saved
			m.handling = m.handling[:len(m.handling)-1]
		}()
		return m.block(c.Body)
	}, true
}
