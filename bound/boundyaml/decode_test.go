package boundyaml_test

import (
	"errors"
	"testing"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/bound/boundyaml"
)

func TestDecodeProgram(t *testing.T) {
	prog, err := boundyaml.Decode([]byte(`
types:
- class: Counter
  fields: [n int, static total int]
- struct: Point
  fields: [x int, readonly y int]
- class: Missing
  base: Exception
extern:
- {name: log, params: [object]}
methods:
- name: Incr
  this: Counter
  params: [by int]
  body:
  - compound: [add, {field: [this, n]}, by]
  - compound: [add, {field: Counter.total}, by]
- name: Main
  async: true
  typeParams: [T]
  params: [ref x T, int?]
  result: int
  body:
  - var: {name: c, init: {new: [Counter]}}
  - var: y T
  - assign: [y, x]
  - return: 1
`))
	if err != nil {
		t.Fatal(err)
	}

	counter := prog.Types["Counter"]
	if f := counter.Field("total"); f == nil || !f.Static {
		t.Errorf("Counter.total is not a static field: %v", f)
	}
	if f := prog.Types["Point"].Field("y"); f == nil || !f.ReadOnly {
		t.Errorf("Point.y is not a read-only field: %v", f)
	}
	if !prog.Types["Point"].IsValueType() {
		t.Error("Point is not a value type")
	}
	if !prog.Types["Missing"].DerivesFrom(bound.Exception) {
		t.Error("Missing does not derive from Exception")
	}
	if log := prog.Externs["log"]; log == nil || log.Body != nil {
		t.Errorf("unexpected extern: %v", log)
	}

	incr := prog.Method("Incr")
	if incr.Static || prog.This[incr] != counter {
		t.Errorf("Incr is not an instance method of Counter")
	}

	m := prog.Method("Main")
	if !m.Async || len(m.TypeParams) != 1 {
		t.Errorf("unexpected signature for %s", bound.FormatMethod(m))
	}
	if x := m.Params[0]; x.RefKind != bound.ByRef || !x.Type.IsTypeParam() {
		t.Errorf("unexpected parameter %s %s", x.Name, x.Type)
	}
	if p := m.Params[1]; p.Name != "p1" || !p.Type.IsNullable() {
		t.Errorf("unexpected parameter %s %s", p.Name, p.Type)
	}
	if n := len(m.Body.Locals); n != 2 {
		t.Errorf("expected 2 locals in the body, got %d", n)
	}
}

func TestDecodeConditionalReceivers(t *testing.T) {
	prog, err := boundyaml.Decode([]byte(`
types:
- class: Node
  fields: [next Node, n int]
methods:
- name: Main
  params: [x Node]
  result: int?
  body:
  - return: {access: [{access: [x, {field: [$, next]}]}, {access: [{field: [$, next]}, {field: [$, n]}]}]}
`))
	if err != nil {
		t.Fatal(err)
	}

	// Each access refers to the receiver it introduces.
	bound.Inspect(prog.Method("Main").Body, func(n bound.Node) bool {
		access, ok := n.(*bound.ConditionalAccess)
		if !ok {
			return true
		}
		bound.Inspect(access.Access, func(n bound.Node) bool {
			switch n := n.(type) {
			case *bound.ConditionalAccess:
				bound.Inspect(n.Receiver, func(n bound.Node) bool {
					if r, ok := n.(*bound.ConditionalReceiver); ok && r.ID != access.ID {
						t.Errorf("receiver %d used in the receiver of a nested access of %d", r.ID, access.ID)
					}
					return true
				})
				return false
			case *bound.ConditionalReceiver:
				if n.ID != access.ID {
					t.Errorf("receiver %d used in access %d", n.ID, access.ID)
				}
			}
			return true
		})
		return true
	})
}

func TestDecodeErrors(t *testing.T) {
	for _, test := range []struct {
		name   string
		src    string
		expect string
	}{
		{
			name: "undefined local",
			src: `
methods:
- name: Main
  result: int
  body:
  - return: y
`,
			expect: "6:13: undefined: y",
		},

		{
			name: "break outside of a loop",
			src: `
methods:
- name: Main
  body:
  - break
`,
			expect: "5:5: break outside of a loop",
		},

		{
			name: "unknown type",
			src: `
methods:
- name: Main
  params: [x Foo]
  body: []
`,
			expect: `4:12: unknown type "Foo"`,
		},

		{
			name: "redeclared local",
			src: `
methods:
- name: Main
  body:
  - var: x int
  - var: x int
`,
			expect: "6:10: x redeclared in this block",
		},

		{
			name: "try without handlers",
			src: `
methods:
- name: Main
  body:
  - try: {body: []}
`,
			expect: "5:10: try without catch or finally",
		},

		{
			name: "receiver outside of a conditional access",
			src: `
methods:
- name: Main
  body:
  - expr: $
`,
			expect: "5:11: $ outside of a conditional access",
		},

		{
			name: "unexpected key",
			src: `
methods:
- name: Main
  bogus: 1
`,
			expect: `4:3: unexpected key "bogus"`,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := boundyaml.Decode([]byte(test.src))
			var derr *boundyaml.Error
			if !errors.As(err, &derr) {
				t.Fatalf("expected a decoding error, got %v", err)
			}
			if got := derr.Error(); got != test.expect {
				t.Errorf("want %q, got %q", test.expect, got)
			}
		})
	}
}
