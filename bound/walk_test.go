package bound_test

import (
	"testing"

	"github.com/stealthrocket/lower/bound"
)

func counter() (*bound.Block, *bound.Local) {
	f := &bound.Factory{}
	x := f.Temp(bound.Int, bound.Spill)
	loop := f.NewLabel()
	return f.Block([]*bound.Local{x},
		f.Store(x, f.Int(1)),
		f.Label(loop),
		f.ExprStmt(f.Assign(f.Local(x), f.Binary(bound.Add, f.Local(x), f.Int(1)))),
		f.CondGoto(f.Binary(bound.Lt, f.Local(x), f.Int(3)), true, loop),
		f.Return(f.Local(x)),
	), x
}

func TestFormat(t *testing.T) {
	body, _ := counter()
	const expect = `{
	var _v0 int
	_v0 = 1
_l0:
	_v0 = _v0 + 1
	if _v0 < 3 goto _l0
	return _v0
}`
	if got := bound.Format(body); got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}
}

func TestApplyCopiesOnChange(t *testing.T) {
	body, x := counter()

	same := bound.ApplyBlock(body, nil, func(n bound.Node) bound.Node { return n })
	if same != body {
		t.Error("tree rebuilt without changes")
	}

	// Replace the literal 3 only: the statements not containing it are
	// shared with the original tree.
	changed := bound.ApplyBlock(body, nil, func(n bound.Node) bound.Node {
		if lit, ok := n.(*bound.Literal); ok && lit.Value == int64(3) {
			return &bound.Literal{Value: int64(5), Typ: bound.Int}
		}
		return n
	})
	if changed == body {
		t.Fatal("tree not rebuilt")
	}
	for i, s := range body.Stmts {
		if _, ok := s.(*bound.CondGoto); ok {
			if changed.Stmts[i] == s {
				t.Errorf("statement %d not rebuilt", i)
			}
			continue
		}
		if changed.Stmts[i] != s {
			t.Errorf("statement %d rebuilt", i)
		}
	}
	if changed.Locals[0] != x {
		t.Error("locals not shared")
	}
	if got := bound.Format(body.Stmts[3]); got != "if _v0 < 3 goto _l0" {
		t.Errorf("original tree modified: %s", got)
	}
}

func TestInspect(t *testing.T) {
	body, x := counter()

	refs := 0
	bound.Inspect(body, func(n bound.Node) bool {
		if ref, ok := n.(*bound.LocalRef); ok && ref.Local == x {
			refs++
		}
		return true
	})
	if refs != 5 {
		t.Errorf("expected 5 references to %s, found %d", x, refs)
	}

	// Returning false skips the children of a node.
	visited := 0
	bound.Inspect(body, func(n bound.Node) bool {
		if n != nil {
			visited++
		}
		_, isBlock := n.(*bound.Block)
		return isBlock
	})
	if visited != 1+len(body.Stmts) {
		t.Errorf("visited %d nodes", visited)
	}
}
