package lower

import (
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/diag"
)

// localRewriter expands the constructs that have a direct translation into
// primitive statements and expressions. It rewrites the tree bottom-up, so
// every construct is expanded after the constructs nested in it.
type localRewriter struct {
	*lowering
	// async tracks, for the method and each enclosing lambda, whether the
	// function is async.
	async []bool
}

func (l *lowering) rewriteLocal(body *bound.Block) *bound.Block {
	r := &localRewriter{lowering: l, async: []bool{l.method.Async}}
	return bound.ApplyBlock(body, r.pre, r.post)
}

func (r *localRewriter) pre(n bound.Node) bool {
	if l, ok := n.(*bound.Lambda); ok {
		r.async = append(r.async, l.Async)
	}
	return true
}

func (r *localRewriter) post(n bound.Node) bound.Node {
	r.f.Pos = n.Position()
	switch n := n.(type) {
	case *bound.Lambda:
		r.async = r.async[:len(r.async)-1]
	case *bound.Lock:
		return r.lock(n)
	case *bound.While:
		return r.while(n)
	case *bound.For:
		return r.forLoop(n)
	case *bound.ConditionalAccess:
		return r.conditionalAccess(n)
	case *bound.CompoundAssign:
		return r.compoundAssign(n)
	case *bound.Interpolation:
		return r.interpolation(n)
	}
	return n
}

func (r *localRewriter) inAsync() bool { return r.async[len(r.async)-1] }

// compoundAssign expands x op= y into x = x op y, evaluating the
// subexpressions designating x only once.
func (r *localRewriter) compoundAssign(e *bound.CompoundAssign) bound.Expr {
	f := r.f
	switch left := e.Left.(type) {
	case *bound.LocalRef:
		return f.Assign(left, f.Binary(e.Op, left, e.Right))

	case *bound.FieldAccess:
		if left.Receiver == nil || isStable(left.Receiver) {
			return f.Assign(left, f.Binary(e.Op, left, e.Right))
		}
		t := left.Receiver.Type()
		if !t.IsReferenceType() && r.inAsync() {
			// A reference to the receiver cannot be held across an await.
			var locals []*bound.Local
			var inits []bound.Expr
			target := r.captureVariable(left, &locals, &inits)
			assign := f.Assign(target, f.Binary(e.Op, target, e.Right))
			if len(locals) == 0 {
				return assign
			}
			return f.Sequence(locals, inits, assign)
		}
		var tmp *bound.Local
		var init bound.Expr
		if t.IsReferenceType() || !isLocation(left.Receiver) {
			tmp = f.Temp(t, bound.CompoundTemp)
			init = f.Assign(f.Local(tmp), left.Receiver)
		} else {
			tmp = f.RefTemp(t, bound.CompoundTemp)
			init = f.AssignRef(tmp, left.Receiver)
		}
		target := f.FieldAccess(f.Local(tmp), left.Field)
		return f.Sequence([]*bound.Local{tmp}, []bound.Expr{init},
			f.Assign(target, f.Binary(e.Op, target, e.Right)))

	case *bound.ArrayAccess:
		arr := f.Temp(left.Array.Type(), bound.CompoundTemp)
		idx := f.Temp(bound.Int, bound.CompoundTemp)
		target := f.ArrayAccess(f.Local(arr), f.Local(idx))
		return f.Sequence([]*bound.Local{arr, idx},
			[]bound.Expr{f.Assign(f.Local(arr), left.Array), f.Assign(f.Local(idx), left.Index)},
			f.Assign(target, f.Binary(e.Op, target, e.Right)))
	}
	diag.Invariant(e.Pos, "compound assignment to %T", e.Left)
	return nil
}

// captureVariable rebuilds the variable designated by e, evaluating into
// value temporaries the parts of it that have side effects. Fields of value
// types are reached again through the captured object holding them.
func (r *localRewriter) captureVariable(e bound.Expr, locals *[]*bound.Local, inits *[]bound.Expr) bound.Expr {
	f := r.f
	temp := func(x bound.Expr) bound.Expr {
		tmp := f.Temp(x.Type(), bound.CompoundTemp)
		*locals = append(*locals, tmp)
		*inits = append(*inits, f.Assign(f.Local(tmp), x))
		return f.Local(tmp)
	}
	switch x := e.(type) {
	case *bound.LocalRef, *bound.ThisRef:
		return e
	case *bound.FieldAccess:
		switch {
		case x.Receiver == nil:
			return e
		case !x.Receiver.Type().IsReferenceType():
			return f.FieldAccess(r.captureVariable(x.Receiver, locals, inits), x.Field)
		case isStable(x.Receiver):
			return e
		}
		return f.FieldAccess(temp(x.Receiver), x.Field)
	case *bound.ArrayAccess:
		arr := temp(x.Array)
		return f.ArrayAccess(arr, temp(x.Index))
	}
	return temp(e)
}

// isStable reports whether evaluating e again yields the same value.
func isStable(e bound.Expr) bool {
	switch e := e.(type) {
	case *bound.ThisRef, *bound.Literal:
		return true
	case *bound.LocalRef:
		return e.Local.RefKind == bound.ByValue
	}
	return false
}

// isVariable reports whether e designates a variable that can be referred
// to again without evaluating anything with side effects.
func isVariable(e bound.Expr) bool {
	switch e := e.(type) {
	case *bound.LocalRef:
		return true
	case *bound.FieldAccess:
		return e.Receiver == nil || isStable(e.Receiver)
	}
	return false
}

// isLocation reports whether e designates storage that can be referred to,
// possibly after evaluating subexpressions with side effects.
func isLocation(e bound.Expr) bool {
	switch e := e.(type) {
	case *bound.LocalRef, *bound.ThisRef, *bound.ArrayAccess:
		return true
	case *bound.FieldAccess:
		return e.Receiver == nil || e.Receiver.Type().IsReferenceType() || isLocation(e.Receiver)
	}
	return false
}
