package lower

import (
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/diag"
)

// expr returns e with its awaits lifted out, and the builder holding the
// statements that have to run first. The builder is nil when e does not
// await.
func (s *spiller) expr(e bound.Expr) (bound.Expr, *spillBuilder) {
	if e == nil || !s.awaits(e) {
		return e, nil
	}

	switch e := e.(type) {
	case *bound.Await:
		op, b := s.expr(e.Operand)
		if b == nil {
			b = new(spillBuilder)
		}
		a := e
		if op != e.Operand {
			c := *e
			c.Operand = op
			a = &c
		}
		return s.spillValue(b, a, bound.ByValue), b

	case *bound.Binary:
		if e.Op.IsShortCircuit() {
			return s.logical(e)
		}
		left, right, b := s.operands(e.Left, e.Right)
		c := *e
		c.Left, c.Right = left, right
		return &c, b

	case *bound.Unary:
		x, b := s.expr(e.Operand)
		c := *e
		c.Operand = x
		return &c, b

	case *bound.Conversion:
		x, b := s.expr(e.Operand)
		c := *e
		c.Operand = x
		return &c, b

	case *bound.IsType:
		x, b := s.expr(e.Operand)
		c := *e
		c.Operand = x
		return &c, b

	case *bound.FieldAccess:
		x, b := s.expr(e.Receiver)
		c := *e
		c.Receiver = x
		return &c, b

	case *bound.ArrayAccess:
		arr, idx, b := s.operands(e.Array, e.Index)
		c := *e
		c.Array, c.Index = arr, idx
		return &c, b

	case *bound.Call:
		return s.call(e)

	case *bound.New:
		args, b := s.list(e.Args, nil)
		c := *e
		c.Args = args
		return &c, b

	case *bound.ArrayCreation:
		elems, b := s.list(e.Elems, nil)
		c := *e
		c.Elems = elems
		return &c, b

	case *bound.Invoke:
		list, b := s.list(append([]bound.Expr{e.Func}, e.Args...), nil)
		c := *e
		c.Func, c.Args = list[0], list[1:]
		return &c, b

	case *bound.Assign:
		return s.assign(e)

	case *bound.Coalesce:
		return s.coalesce(e)

	case *bound.Conditional:
		return s.conditional(e)

	case *bound.Sequence:
		return s.sequence(e)

	case *bound.Lambda:
		c := *e
		c.Body = s.block(e.Body)
		return &c, nil

	case *bound.BadExpr:
		children, b := s.list(e.Children, nil)
		c := *e
		c.Children = children
		return &c, b

	case *bound.CompoundAssign, *bound.ConditionalAccess, *bound.LoweredConditionalAccess, *bound.Interpolation:
		diag.Invariant(e.Position(), "%T must be lowered before spilling awaits", e)

	default:
		diag.Invariant(e.Position(), "unexpected expression %T", e)
	}
	panic("unreachable")
}

// operands lifts the awaits out of a pair of operands evaluated left to
// right. When the right operand awaits, the left one is evaluated into a
// temporary before the statements of the right one.
func (s *spiller) operands(left, right bound.Expr) (bound.Expr, bound.Expr, *spillBuilder) {
	r, rb := s.expr(right)
	l, lb := s.expr(left)
	if rb.empty() {
		return l, r, lb
	}
	if lb == nil {
		lb = new(spillBuilder)
	}
	l = s.spillValue(lb, l, bound.ByValue)
	lb.include(rb)
	return l, r, lb
}

// list lifts the awaits out of operands evaluated in order. Every operand
// before the last one that awaits is evaluated into a temporary, by
// reference when ref says so.
func (s *spiller) list(exprs []bound.Expr, ref func(int) bound.RefKind) ([]bound.Expr, *spillBuilder) {
	out := make([]bound.Expr, len(exprs))
	builders := make([]*spillBuilder, len(exprs))
	last := -1
	for i, e := range exprs {
		out[i], builders[i] = s.expr(e)
		if !builders[i].empty() {
			last = i
		}
	}
	if last < 0 {
		return out, nil
	}
	b := new(spillBuilder)
	for i := 0; i <= last; i++ {
		b.include(builders[i])
		if i < last {
			kind := bound.ByValue
			if ref != nil {
				kind = ref(i)
			}
			out[i] = s.spillValue(b, out[i], kind)
		}
	}
	return out, b
}

func (s *spiller) call(e *bound.Call) (bound.Expr, *spillBuilder) {
	args, b := s.list(e.Args, e.RefKind)
	recv := e.Receiver
	if recv != nil {
		r, rb := s.expr(recv)
		if !b.empty() {
			if rb == nil {
				rb = new(spillBuilder)
			}
			// The receiver is evaluated before the arguments. A value type
			// receiver is captured by reference so that the call still
			// mutates the original variable.
			kind := bound.ByRef
			if recv.Type().IsReferenceType() {
				kind = bound.ByValue
			}
			r = s.spillValue(rb, r, kind)
			rb.include(b)
		}
		if rb != nil {
			b = rb
		}
		recv = r
	}
	c := *e
	c.Receiver, c.Args = recv, args
	return &c, b
}

func (s *spiller) assign(e *bound.Assign) (bound.Expr, *spillBuilder) {
	if e.IsRef {
		diag.Invariant(e.Pos, "by-reference assignment across an await")
	}
	right, rb := s.expr(e.Right)
	left, lb := s.target(e.Left)
	if !rb.empty() {
		if lb == nil {
			lb = new(spillBuilder)
		}
		left = s.spillValue(lb, left, bound.ByRef)
		lb.include(rb)
	}
	c := *e
	c.Left, c.Right = left, right
	return &c, lb
}

// target lifts the awaits out of the subexpressions of the variable
// designated by e, without reading the variable itself.
func (s *spiller) target(e bound.Expr) (bound.Expr, *spillBuilder) {
	switch e := e.(type) {
	case *bound.LocalRef, *bound.ThisRef:
		return e, nil
	case *bound.FieldAccess:
		if e.Receiver == nil {
			return e, nil
		}
		x, b := s.expr(e.Receiver)
		if x == e.Receiver {
			return e, b
		}
		c := *e
		c.Receiver = x
		return &c, b
	case *bound.ArrayAccess:
		list, b := s.list([]bound.Expr{e.Array, e.Index}, nil)
		c := *e
		c.Array, c.Index = list[0], list[1]
		return &c, b
	}
	return s.expr(e)
}

// spillValue evaluates e into a temporary, unless evaluating it again later
// is guaranteed to produce the same value (or designate the same variable,
// when captured by reference).
func (s *spiller) spillValue(b *spillBuilder, e bound.Expr, ref bound.RefKind) bound.Expr {
	f := s.f
	switch x := e.(type) {
	case nil:
		return nil

	case *bound.Literal, *bound.DefaultValue, *bound.Lambda:
		return e

	case *bound.ThisRef:
		if ref == bound.ByRef || x.Typ.IsReferenceType() {
			return e
		}

	case *bound.LocalRef:
		if ref == bound.ByRef || s.isSpillTemp(x.Local) {
			return e
		}

	case *bound.FieldAccess:
		if x.Receiver == nil {
			if ref == bound.ByRef || x.Field.ReadOnly {
				return e
			}
			break
		}
		if ref == bound.ByRef {
			kind := bound.ByRef
			if x.Receiver.Type().IsReferenceType() {
				kind = bound.ByValue
			}
			return f.FieldAccess(s.spillValue(b, x.Receiver, kind), x.Field)
		}
		if x.Field.ReadOnly {
			return f.FieldAccess(s.spillValue(b, x.Receiver, bound.ByValue), x.Field)
		}

	case *bound.ArrayAccess:
		if ref == bound.ByRef {
			arr := s.spillValue(b, x.Array, bound.ByValue)
			idx := s.spillValue(b, x.Index, bound.ByValue)
			return f.ArrayAccess(arr, idx)
		}

	case *bound.Sequence:
		b.locals = append(b.locals, x.Locals...)
		for _, se := range x.SideEffects {
			if !isPure(se) {
				b.add(f.ExprStmt(se))
			}
		}
		return s.spillValue(b, x.Value, ref)

	case *bound.Conditional:
		if x.IsRef && ref == bound.ByRef {
			diag.Invariant(x.Pos, "cannot spill a by-reference conditional")
		}
	}

	t := e.Type()
	if t.IsVoid() {
		b.add(f.ExprStmt(e))
		return nil
	}
	tmp := f.Temp(t, s.tag)
	b.locals = append(b.locals, tmp)
	b.add(f.Store(tmp, e))
	return f.Local(tmp)
}

func (s *spiller) isSpillTemp(l *bound.Local) bool {
	return l.Kind == bound.Synthesized && (l.Synth == bound.Spill || l.Synth == bound.AwaitSpill)
}

// logical lowers a short-circuit operator whose right operand awaits into a
// conditional statement assigning a temporary.
func (s *spiller) logical(e *bound.Binary) (bound.Expr, *spillBuilder) {
	left, lb := s.expr(e.Left)
	right, rb := s.expr(e.Right)
	if rb.empty() {
		c := *e
		c.Left, c.Right = left, right
		return &c, lb
	}
	f := s.f
	b := lb
	if b == nil {
		b = new(spillBuilder)
	}
	tmp := f.Temp(bound.Bool, s.tag)
	b.locals = append(b.locals, tmp)
	b.add(f.Store(tmp, left))
	var test bound.Expr = f.Local(tmp)
	if e.Op == bound.OrElse {
		test = f.Not(test)
	}
	b.add(f.If(test, rb.block(f.Pos, f.Store(tmp, right)), nil))
	return f.Local(tmp), b
}

func (s *spiller) coalesce(e *bound.Coalesce) (bound.Expr, *spillBuilder) {
	left, lb := s.expr(e.Left)
	right, rb := s.expr(e.Right)
	if rb.empty() {
		c := *e
		c.Left, c.Right = left, right
		return &c, lb
	}
	f := s.f
	b := lb
	if b == nil {
		b = new(spillBuilder)
	}
	lt := e.Left.Type()
	lhs := f.Temp(lt, s.tag)
	b.locals = append(b.locals, lhs)
	b.add(f.Store(lhs, left))

	if bound.Identical(lt, e.Typ) {
		b.add(f.If(f.Not(f.IsNotNull(f.Local(lhs))), rb.block(f.Pos, f.Store(lhs, right)), nil))
		return f.Local(lhs), b
	}

	// The left operand is unwrapped when present, so the result needs a
	// temporary of its own.
	result := f.Temp(e.Typ, s.tag)
	b.locals = append(b.locals, result)
	var unwrapped bound.Expr = f.Local(lhs)
	if lt.IsNullable() {
		unwrapped = f.GetValueOrDefault(unwrapped)
	}
	b.add(f.If(f.IsNotNull(f.Local(lhs)),
		f.Store(result, f.Convert(unwrapped, e.Typ)),
		rb.block(f.Pos, f.Store(result, right))))
	return f.Local(result), b
}

func (s *spiller) conditional(e *bound.Conditional) (bound.Expr, *spillBuilder) {
	cond, b := s.expr(e.Cond)
	cons, consB := s.expr(e.Consequence)
	alt, altB := s.expr(e.Alternative)
	if consB.empty() && altB.empty() {
		c := *e
		c.Cond, c.Consequence, c.Alternative = cond, cons, alt
		return &c, b
	}
	if e.IsRef {
		diag.Invariant(e.Pos, "await in a by-reference conditional")
	}
	f := s.f
	if b == nil {
		b = new(spillBuilder)
	}
	if e.Typ.IsVoid() {
		then, els := consB.block(f.Pos), altB.block(f.Pos)
		if !isPure(cons) {
			then.Stmts = append(then.Stmts, f.ExprStmt(cons))
		}
		if !isPure(alt) {
			els.Stmts = append(els.Stmts, f.ExprStmt(alt))
		}
		b.add(f.If(cond, then, els))
		return nil, b
	}
	tmp := f.Temp(e.Typ, s.tag)
	b.locals = append(b.locals, tmp)
	b.add(f.If(cond,
		consB.block(f.Pos, f.Store(tmp, cons)),
		altB.block(f.Pos, f.Store(tmp, alt))))
	return f.Local(tmp), b
}

// sequence flattens a sequence into the statements of the builder.
func (s *spiller) sequence(e *bound.Sequence) (bound.Expr, *spillBuilder) {
	f := s.f
	b := &spillBuilder{locals: append([]*bound.Local(nil), e.Locals...)}
	for _, se := range e.SideEffects {
		if x := s.sideEffect(b, se); x != nil {
			b.add(f.ExprStmt(x))
		}
	}
	v, vb := s.expr(e.Value)
	b.include(vb)
	return v, b
}
