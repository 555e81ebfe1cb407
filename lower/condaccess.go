package lower

import "github.com/stealthrocket/lower/bound"

// conditionalAccess lowers recv?.access. The access refers to the receiver
// through ConditionalReceiver placeholders carrying the ID of the node,
// which are replaced by whatever the receiver was captured into. The
// receiver is evaluated exactly once.
func (r *localRewriter) conditionalAccess(e *bound.ConditionalAccess) bound.Expr {
	f := r.f
	recv := e.Receiver
	t := recv.Type()

	switch {
	case t.IsValueType() && !t.IsNullable():
		// Never null.
		return r.lift(e, r.subst(e, recv))

	case t.IsReferenceType() && !containsAwait(e):
		return &bound.LoweredConditionalAccess{
			Pos:         e.Pos,
			ID:          e.ID,
			Receiver:    recv,
			WhenNotNull: r.lift(e, e.Access),
			WhenNull:    f.Default(e.Typ),
			Typ:         e.Typ,
		}

	case unchangedBy(recv, e.Access):
		return r.guard(e, recv)

	case t.IsTypeParam() && isVariable(recv):
		if !r.inAsync() {
			tmp := f.RefTemp(t, bound.ReceiverTemp)
			return f.Sequence([]*bound.Local{tmp},
				[]bound.Expr{f.AssignRef(tmp, recv)},
				r.guard(e, f.Local(tmp)))
		}
		// A by-reference local cannot live across an await. When the type
		// argument is a value type, the variable is accessed in place since
		// it cannot be null. Otherwise it is copied and tested.
		tmp := f.Temp(t, bound.ReceiverTemp)
		isValueType := f.Ne(f.Convert(f.Default(t), bound.Object), f.Null(bound.Object))
		return f.Conditional(isValueType,
			r.lift(e, r.subst(e, recv)),
			f.Sequence([]*bound.Local{tmp},
				[]bound.Expr{f.Assign(f.Local(tmp), recv)},
				r.guard(e, f.Local(tmp))),
			e.Typ)
	}

	tmp := f.Temp(t, bound.ReceiverTemp)
	return f.Sequence([]*bound.Local{tmp},
		[]bound.Expr{f.Assign(f.Local(tmp), recv)},
		r.guard(e, f.Local(tmp)))
}

// guard evaluates the access on x when x is not null, and to the default
// value of the result type otherwise.
func (r *localRewriter) guard(e *bound.ConditionalAccess, x bound.Expr) bound.Expr {
	f := r.f
	return f.Conditional(f.IsNotNull(x), r.lift(e, r.subst(e, x)), f.Default(e.Typ), e.Typ)
}

// lift converts the result of the access to the type of the conditional
// access, which is nullable when the access yields a value type.
func (r *localRewriter) lift(e *bound.ConditionalAccess, x bound.Expr) bound.Expr {
	if e.Typ.IsVoid() {
		return x
	}
	return r.f.Convert(x, e.Typ)
}

// subst returns the access of e with its receiver placeholders replaced by
// x. The placeholders of a nullable receiver stand for its underlying value.
func (r *localRewriter) subst(e *bound.ConditionalAccess, x bound.Expr) bound.Expr {
	return bound.ApplyExpr(e.Access, nil, func(n bound.Node) bound.Node {
		p, ok := n.(*bound.ConditionalReceiver)
		if !ok || p.ID != e.ID {
			return n
		}
		if x.Type().IsNullable() {
			return r.f.GetValueOrDefault(x)
		}
		return x
	})
}

// unchangedBy reports whether recv is free of side effects and still
// designates the same value after access is evaluated.
func unchangedBy(recv, access bound.Expr) bool {
	switch recv := recv.(type) {
	case *bound.ThisRef:
		return true
	case *bound.LocalRef:
		if recv.Local.RefKind != bound.ByValue {
			return false
		}
		return !writes(access, recv.Local)
	}
	return false
}

// writes reports whether n assigns l or passes it by reference.
func writes(n bound.Node, l *bound.Local) bool {
	is := func(e bound.Expr) bool {
		ref, ok := e.(*bound.LocalRef)
		return ok && ref.Local == l
	}
	found := false
	bound.Inspect(n, func(n bound.Node) bool {
		switch n := n.(type) {
		case *bound.Assign:
			found = found || is(n.Left) || (n.IsRef && is(n.Right))
		case *bound.CompoundAssign:
			found = found || is(n.Left)
		case *bound.Call:
			for i, arg := range n.Args {
				found = found || (n.RefKind(i) == bound.ByRef && is(arg))
			}
		}
		return !found
	})
	return found
}
