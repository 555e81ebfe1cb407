package interp

import (
	"strings"

	"github.com/stealthrocket/lower/bound"
)

func (m *machine) eval(e bound.Expr) Value {
	switch e := e.(type) {
	case *bound.Literal:
		return literal(e.Value)

	case *bound.DefaultValue:
		return m.zero(e.Typ)

	case *bound.LocalRef, *bound.ThisRef, *bound.FieldAccess, *bound.ArrayAccess, *bound.ConditionalReceiver:
		return copyValue(m.addr(e).Load())

	case *bound.Call:
		return m.call(e)

	case *bound.New:
		return m.newValue(e)

	case *bound.ArrayCreation:
		a := &Array{Elem: e.Typ.Elem, Elems: make([]Value, len(e.Elems))}
		for i, x := range e.Elems {
			a.Elems[i] = m.eval(x)
		}
		return a

	case *bound.Binary:
		return m.binary(e)

	case *bound.Unary:
		v := m.eval(e.Operand)
		switch e.Op {
		case bound.Neg:
			if v == nil {
				return nil
			}
			return -m.int(e.Pos, v)
		case bound.Not:
			b, _ := v.(bool)
			return !b
		case bound.HasValue:
			return v != nil
		case bound.GetValueOrDefault:
			if v == nil {
				return m.zero(e.Typ)
			}
			return v
		}

	case *bound.Coalesce:
		if v := m.eval(e.Left); v != nil {
			return v
		}
		return m.eval(e.Right)

	case *bound.Conditional:
		if e.IsRef {
			return copyValue(m.addr(e).Load())
		}
		if m.cond(e.Cond) {
			return m.eval(e.Consequence)
		}
		if e.Alternative == nil {
			return nil
		}
		return m.eval(e.Alternative)

	case *bound.Assign:
		return m.assign(e)

	case *bound.CompoundAssign:
		loc := m.addr(e.Left)
		left := loc.Load()
		right := m.eval(e.Right)
		v := m.arith(e.Pos, e.Op, left, right)
		loc.Store(v)
		return v

	case *bound.Conversion:
		return m.convert(m.eval(e.Operand), e.Typ)

	case *bound.IsType:
		return m.isInstance(m.eval(e.Operand), e.Target)

	case *bound.Sequence:
		m.push(e.Locals)
		defer m.pop()
		for _, x := range e.SideEffects {
			m.eval(x)
		}
		return m.eval(e.Value)

	case *bound.Await:
		return m.await(e.Pos, m.eval(e.Operand))

	case *bound.Lambda:
		return &Closure{Lambda: e, scope: m.scope, this: m.this}

	case *bound.Invoke:
		fn := m.eval(e.Func)
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = m.eval(a)
		}
		c, ok := fn.(*Closure)
		if !ok {
			Throw(NewException(NullReference, "invoking a null function"))
		}
		return m.function(c.Lambda.Params, c.Lambda.Body, c.scope, c.this, args)

	case *bound.ConditionalAccess:
		recv := m.receiverLocation(e.Receiver)
		if recv.Load() == nil {
			return m.zero(e.Typ)
		}
		return m.withReceiver(e.ID, recv, e.Access)

	case *bound.LoweredConditionalAccess:
		v := m.eval(e.Receiver)
		if v == nil {
			return m.eval(e.WhenNull)
		}
		return m.withReceiver(e.ID, &cell{v: v}, e.WhenNotNull)

	case *bound.Interpolation:
		var b strings.Builder
		for _, p := range e.Parts {
			if p.Value == nil {
				b.WriteString(p.Text)
				continue
			}
			b.WriteString(formatItem(m.eval(p.Value), p.Alignment, p.Format))
		}
		return b.String()

	case *bound.BadExpr:
		fault(e.Pos, "evaluating an erroneous expression")

	default:
		fault(e.Position(), "unexpected expression %T", e)
	}
	return nil
}

func literal(v any) Value {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	}
	return v
}

// addr returns the location of the variable designated by e. Expressions
// that do not designate a variable are evaluated into a temporary location.
func (m *machine) addr(e bound.Expr) Location {
	switch e := e.(type) {
	case *bound.LocalRef:
		_, loc := m.lookup(e.Pos, e.Local)
		return loc

	case *bound.ThisRef:
		if m.this == nil {
			fault(e.Pos, "no receiver")
		}
		return m.this

	case *bound.FieldAccess:
		if e.Receiver == nil {
			return fieldLocation{fields: m.statics, field: e.Field}
		}
		var fields map[*bound.Field]Value
		switch recv := m.receiverLocation(e.Receiver).Load().(type) {
		case *Object:
			fields = recv.Fields
		case *Struct:
			fields = recv.Fields
		}
		return fieldLocation{fields: fields, field: e.Field}

	case *bound.ArrayAccess:
		arr, _ := m.eval(e.Array).(*Array)
		idx := m.int(e.Pos, m.eval(e.Index))
		return elemLocation{array: arr, index: int(idx)}

	case *bound.ConditionalReceiver:
		loc, ok := m.receivers[e.ID]
		if !ok {
			fault(e.Pos, "conditional receiver #%d is not bound", e.ID)
		}
		return loc

	case *bound.Conditional:
		if e.IsRef {
			if m.cond(e.Cond) {
				return m.addr(e.Consequence)
			}
			return m.addr(e.Alternative)
		}

	case *bound.Sequence:
		m.push(e.Locals)
		defer m.pop()
		for _, x := range e.SideEffects {
			m.eval(x)
		}
		return m.addr(e.Value)
	}
	return &cell{v: m.eval(e)}
}

// receiverLocation evaluates the receiver of a member access. Receivers of
// value types are accessed in place.
func (m *machine) receiverLocation(e bound.Expr) Location {
	t := m.resolve(e.Type())
	if t.IsValueType() && !t.IsNullable() {
		return m.addr(e)
	}
	return &cell{v: m.eval(e)}
}

func (m *machine) withReceiver(id int, recv Location, access bound.Expr) Value {
	saved := m.receivers
	m.receivers = make(map[int]Location, len(saved)+1)
	for k, v := range saved {
		m.receivers[k] = v
	}
	m.receivers[id] = recv
	defer func() { m.receivers = saved }()
	return m.eval(access)
}

func (m *machine) assign(e *bound.Assign) Value {
	if e.IsRef {
		ref, ok := e.Left.(*bound.LocalRef)
		if !ok {
			fault(e.Pos, "by-reference assignment to %T", e.Left)
		}
		loc := m.addr(e.Right)
		m.bind(e.Pos, ref.Local, loc)
		return loc.Load()
	}
	loc := m.addr(e.Left)
	v := m.eval(e.Right)
	loc.Store(v)
	return v
}

func (m *machine) call(e *bound.Call) Value {
	var this Location
	if e.Receiver != nil {
		this = m.receiverLocation(e.Receiver)
	}
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		if e.RefKind(i) == bound.ByRef {
			args[i] = &Ref{Location: m.addr(a)}
		} else {
			args[i] = m.eval(a)
		}
	}
	if this != nil && this.Load() == nil {
		Throw(NewException(NullReference, "calling "+e.Method.Name+" on null"))
	}
	return m.invoke(e.Method, this, args)
}

func (m *machine) newValue(e *bound.New) Value {
	t := m.resolve(e.Typ)
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		args[i] = m.eval(a)
	}
	var fields map[*bound.Field]Value
	var v Value
	switch t.Kind {
	case bound.StructType:
		s := m.zero(t).(*Struct)
		fields, v = s.Fields, s
	case bound.ClassType, bound.ObjectType:
		o := &Object{Type: t, Fields: map[*bound.Field]Value{}}
		for _, f := range t.InstanceFields() {
			o.Fields[f] = m.zero(f.Type)
		}
		fields, v = o.Fields, o
	default:
		fault(e.Pos, "cannot create a value of type %s", t)
	}
	// Arguments initialize the instance fields in declaration order.
	for i, f := range t.InstanceFields() {
		if i < len(args) {
			fields[f] = args[i]
		}
	}
	return v
}

func (m *machine) convert(v Value, t *bound.Type) Value {
	t = m.resolve(t)
	switch t.Kind {
	case bound.VoidType:
		return nil
	case bound.ObjectType, bound.TypeParamType, bound.FuncType:
		return v
	case bound.NullableType:
		if v == nil {
			return nil
		}
		return m.convert(v, t.Elem)
	}
	if v == nil {
		if t.IsValueType() {
			Throw(NewException(NullReference, "unboxing null to "+t.Name))
		}
		return nil
	}
	if !m.isInstance(v, t) {
		Throw(NewException(InvalidCast, "cannot convert "+typeOf(v).Name+" to "+t.Name))
	}
	return v
}

func (m *machine) int(pos bound.Pos, v Value) int64 {
	i, ok := v.(int64)
	if !ok {
		fault(pos, "%v is not an integer", v)
	}
	return i
}

func (m *machine) binary(e *bound.Binary) Value {
	switch e.Op {
	case bound.AndAlso:
		return m.cond(e.Left) && m.cond(e.Right)
	case bound.OrElse:
		return m.cond(e.Left) || m.cond(e.Right)
	}
	left := m.eval(e.Left)
	right := m.eval(e.Right)
	return m.arith(e.Pos, e.Op, left, right)
}

func (m *machine) arith(pos bound.Pos, op bound.BinaryOp, left, right Value) Value {
	switch op {
	case bound.Eq:
		return equal(left, right)
	case bound.Ne:
		return !equal(left, right)
	}

	if op == bound.Add {
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return display(left) + display(right)
		}
	}

	if lb, ok := left.(bool); ok {
		rb, _ := right.(bool)
		switch op {
		case bound.And:
			return lb && rb
		case bound.Or:
			return lb || rb
		}
		fault(pos, "operator %s on booleans", op)
	}

	if left == nil || right == nil {
		// Lifted operators: comparisons with null are false, arithmetic
		// yields null.
		if op.IsComparison() {
			return false
		}
		return nil
	}
	l, r := m.int(pos, left), m.int(pos, right)
	switch op {
	case bound.Add:
		return l + r
	case bound.Sub:
		return l - r
	case bound.Mul:
		return l * r
	case bound.Div, bound.Rem:
		if r == 0 {
			Throw(NewException(DivideByZero, "division by zero"))
		}
		if op == bound.Div {
			return l / r
		}
		return l % r
	case bound.Lt:
		return l < r
	case bound.Le:
		return l <= r
	case bound.Gt:
		return l > r
	case bound.Ge:
		return l >= r
	case bound.And:
		return l & r
	case bound.Or:
		return l | r
	}
	fault(pos, "unexpected operator %s", op)
	return nil
}
