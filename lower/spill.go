package lower

import (
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/diag"
)

// spiller lifts awaits out of the expressions they are nested in.
//
// After spilling, an await only appears as an expression statement of its
// own or as the whole right-hand side of an assignment to a local. Every
// operand evaluated before an await is evaluated into a temporary first, so
// that the order of side effects is preserved; evaluating the temporaries
// again after the await is side-effect free.
//
// Statements that do not contain an await are returned unchanged.
type spiller struct {
	*lowering
	// tag is the kind of the temporaries introduced by this pass.
	tag bound.SynthesizedKind
	// skipFilters leaves catch filters that await untouched, for the
	// handler rewriter to move them out of the handler first.
	skipFilters bool
	mayAwait    map[bound.Node]struct{}
}

func (l *lowering) spill(body *bound.Block, tag bound.SynthesizedKind, skipFilters bool) *bound.Block {
	s := &spiller{
		lowering:    l,
		tag:         tag,
		skipFilters: skipFilters,
		mayAwait:    findAwaits(body),
	}
	return s.block(body)
}

func (s *spiller) awaits(n bound.Node) bool {
	if n == nil {
		return false
	}
	_, ok := s.mayAwait[n]
	return ok
}

// spillBuilder accumulates the temporaries and statements that have to run
// before an expression.
type spillBuilder struct {
	locals []*bound.Local
	stmts  []bound.Stmt
}

func (b *spillBuilder) empty() bool {
	return b == nil || (len(b.locals) == 0 && len(b.stmts) == 0)
}

func (b *spillBuilder) add(stmts ...bound.Stmt) {
	b.stmts = append(b.stmts, stmts...)
}

func (b *spillBuilder) include(other *spillBuilder) {
	if other == nil {
		return
	}
	b.locals = append(b.locals, other.locals...)
	b.stmts = append(b.stmts, other.stmts...)
}

// block returns the statements of b followed by last, as a block scoping
// the temporaries of b.
func (b *spillBuilder) block(pos bound.Pos, last ...bound.Stmt) *bound.Block {
	var locals []*bound.Local
	var stmts []bound.Stmt
	if b != nil {
		locals = b.locals
		stmts = append(stmts, b.stmts...)
	}
	return &bound.Block{Pos: pos, Locals: locals, Stmts: append(stmts, last...)}
}

// wrap prefixes stmt with the statements of b.
func wrap(b *spillBuilder, stmt bound.Stmt) bound.Stmt {
	if b.empty() {
		return stmt
	}
	return b.block(stmt.Position(), stmt)
}

func (s *spiller) block(b *bound.Block) *bound.Block {
	if b == nil || !s.awaits(b) {
		return b
	}
	var stmts []bound.Stmt
	for i, stmt := range b.Stmts {
		rs := s.stmt(stmt)
		if rs != stmt && stmts == nil {
			stmts = make([]bound.Stmt, len(b.Stmts))
			copy(stmts, b.Stmts[:i])
		}
		if stmts != nil {
			stmts[i] = rs
		}
	}
	if stmts == nil {
		return b
	}
	c := *b
	c.Stmts = stmts
	return &c
}

func (s *spiller) stmtOrNil(stmt bound.Stmt) bound.Stmt {
	if stmt == nil {
		return nil
	}
	return s.stmt(stmt)
}

func (s *spiller) stmt(stmt bound.Stmt) bound.Stmt {
	if !s.awaits(stmt) {
		return stmt
	}
	saved := s.f.Pos
	s.f.Pos = stmt.Position()
	defer func() { s.f.Pos = saved }()

	switch st := stmt.(type) {
	case *bound.Block:
		return s.block(st)

	case *bound.ExprStmt:
		b := new(spillBuilder)
		x := s.sideEffect(b, st.X)
		if b.empty() && x == st.X {
			return st
		}
		if x != nil {
			b.add(&bound.ExprStmt{Pos: st.Pos, X: x})
		}
		if len(b.locals) == 0 && len(b.stmts) == 1 {
			return b.stmts[0]
		}
		return b.block(st.Pos)

	case *bound.If:
		cond, b := s.expr(st.Cond)
		c := *st
		c.Cond, c.Then, c.Else = cond, s.stmt(st.Then), s.stmtOrNil(st.Else)
		return wrap(b, &c)

	case *bound.CondGoto:
		cond, b := s.expr(st.Cond)
		c := *st
		c.Cond = cond
		return wrap(b, &c)

	case *bound.Return:
		x, b := s.expr(st.Result)
		c := *st
		c.Result = x
		return wrap(b, &c)

	case *bound.Throw:
		x, b := s.expr(st.X)
		c := *st
		c.X = x
		return wrap(b, &c)

	case *bound.Switch:
		x, b := s.expr(st.X)
		c := *st
		c.X = x
		c.Cases = make([]*bound.SwitchCase, len(st.Cases))
		for i, sc := range st.Cases {
			c.Cases[i] = &bound.SwitchCase{Value: sc.Value, Body: s.stmt(sc.Body)}
		}
		return wrap(b, &c)

	case *bound.Try:
		return s.try(st)

	case *bound.Goto, *bound.LabelStmt, *bound.NoOp:
		return st

	case *bound.While, *bound.For, *bound.Lock:
		diag.Invariant(st.Position(), "%T must be lowered before spilling awaits", st)

	default:
		diag.Invariant(st.Position(), "unexpected statement %T", st)
	}
	panic("unreachable")
}

func (s *spiller) try(st *bound.Try) bound.Stmt {
	c := *st
	c.Body = s.block(st.Body)
	c.Catches = make([]*bound.Catch, len(st.Catches))
	for i, cc := range st.Catches {
		rc := *cc
		switch {
		case containsAwait(cc.Filter):
			if !s.skipFilters {
				diag.Invariant(cc.Pos, "await left in a catch filter")
			}
		case s.awaits(cc.Filter):
			// Only lambdas in the filter await: their bodies are lowered on
			// their own and the filter itself needs no statements.
			filter, b := s.expr(cc.Filter)
			if !b.empty() {
				diag.Invariant(cc.Pos, "catch filter requires spilling")
			}
			rc.Filter = filter
		}
		rc.Body = s.block(cc.Body)
		c.Catches[i] = &rc
	}
	c.Finally = s.block(st.Finally)
	return &c
}

// sideEffect appends to b what has to run before evaluating x for its side
// effects, and returns what is left of x, or nil when nothing is.
func (s *spiller) sideEffect(b *spillBuilder, x bound.Expr) bound.Expr {
	if !s.awaits(x) {
		return x
	}
	switch x := x.(type) {
	case *bound.Await:
		op, ob := s.expr(x.Operand)
		b.include(ob)
		if op == x.Operand {
			return x
		}
		c := *x
		c.Operand = op
		return &c

	case *bound.Assign:
		if a, ok := x.Right.(*bound.Await); ok && !x.IsRef && isValueLocal(x.Left) {
			op, ob := s.expr(a.Operand)
			b.include(ob)
			if op == a.Operand {
				return x
			}
			ca := *a
			ca.Operand = op
			c := *x
			c.Right = &ca
			return &c
		}
	}
	v, vb := s.expr(x)
	b.include(vb)
	if isPure(v) {
		return nil
	}
	return v
}

func isValueLocal(e bound.Expr) bool {
	ref, ok := e.(*bound.LocalRef)
	return ok && ref.Local.RefKind == bound.ByValue
}

// isPure reports whether evaluating e has no effect.
func isPure(e bound.Expr) bool {
	switch e.(type) {
	case nil, *bound.Literal, *bound.DefaultValue, *bound.LocalRef, *bound.ThisRef, *bound.Lambda:
		return true
	}
	return false
}
