package lower

import (
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/diag"
)

// verify checks the shape of a lowered body, panicking with an invariant
// error when a pass left something behind.
func verify(body *bound.Block, async bool) {
	v := &verifier{async: async}
	v.node(body)
}

type verifier struct {
	async bool
	// handler is the kind of exception handler construct being verified,
	// or empty outside of them.
	handler string
}

func (v *verifier) node(n bound.Node) {
	bound.Inspect(n, func(n bound.Node) bool {
		switch n := n.(type) {
		case *bound.ExprStmt:
			switch x := n.X.(type) {
			case *bound.Await:
				v.await(x)
				v.node(x.Operand)
				return false
			case *bound.Assign:
				if a, ok := x.Right.(*bound.Await); ok && !x.IsRef && isValueLocal(x.Left) {
					v.await(a)
					v.node(a.Operand)
					return false
				}
			}

		case *bound.Await:
			diag.Invariant(n.Pos, "await nested in an expression")

		case *bound.Block:
			if v.async {
				for _, l := range n.Locals {
					if l.RefKind == bound.ByRef && containsAwait(n) {
						diag.Invariant(n.Pos, "by-reference local %s survives an await", l.Name)
					}
				}
			}

		case *bound.Lambda:
			saved := *v
			v.async, v.handler = n.Async, ""
			v.node(n.Body)
			*v = saved
			return false

		case *bound.Try:
			v.node(n.Body)
			saved := v.handler
			for _, c := range n.Catches {
				v.handler = "catch filter"
				v.node(c.Filter)
				v.handler = "catch block"
				v.node(c.Body)
			}
			if n.Finally != nil {
				v.handler = "finally block"
				v.node(n.Finally)
			}
			v.handler = saved
			return false

		case *bound.Lock, *bound.While, *bound.For, *bound.ConditionalAccess,
			*bound.CompoundAssign, *bound.Interpolation:
			diag.Invariant(n.Position(), "%T left after lowering", n)
		}
		return true
	})
}

func (v *verifier) await(a *bound.Await) {
	if !v.async {
		diag.Invariant(a.Pos, "await outside of an async function")
	}
	if v.handler != "" {
		diag.Invariant(a.Pos, "await left in a %s", v.handler)
	}
}
