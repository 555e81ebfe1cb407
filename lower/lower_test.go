package lower_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/bound/boundyaml"
	"github.com/stealthrocket/lower/diag"
	"github.com/stealthrocket/lower/interp"
	"github.com/stealthrocket/lower/lower"
	"github.com/stealthrocket/lower/wellknown"
)

var exceptions = []*bound.Type{
	interp.NullReference,
	interp.InvalidCast,
	interp.IndexOutOfRange,
	interp.SynchronizationLock,
	interp.ArgumentError,
	interp.DivideByZero,
	interp.FormatError,
}

func decode(t *testing.T, src string) *boundyaml.Program {
	t.Helper()
	prog, err := boundyaml.Decode([]byte(src), exceptions...)
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

// execute runs m and returns the calls it made to host functions and the
// values it awaited, followed by its outcome.
func execute(t *testing.T, prog *boundyaml.Program, m *bound.Method, args ...interp.Value) string {
	t.Helper()
	var trace interp.Trace
	r, err := interp.Run(m, trace.Config(prog.Externs), args...)
	if err != nil {
		t.Fatalf("%s: %v\n%s", m.Name, err, bound.FormatMethod(m))
	}
	trace.Printf("%s", interp.Format(r))
	return trace.String()
}

// lowerAndRun lowers m and checks that running the lowered method has the
// same effects as running m.
func lowerAndRun(t *testing.T, prog *boundyaml.Program, m *bound.Method, options []lower.Option, args ...interp.Value) (string, *bound.Method) {
	t.Helper()
	lowered, err := lower.Method(m, options...)
	if err != nil {
		t.Fatal(err)
	}
	want := execute(t, prog, m, args...)
	got := execute(t, prog, lowered, args...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lowered run differs (-original +lowered):\n%s\n%s", diff, bound.FormatMethod(lowered))
	}
	return got, lowered
}

// find returns the nodes of n for which match returns true.
func find[N bound.Node](n bound.Node, match func(N) bool) []N {
	var found []N
	bound.Inspect(n, func(node bound.Node) bool {
		if x, ok := node.(N); ok && match(x) {
			found = append(found, x)
		}
		return true
	})
	return found
}

// switchesOn returns the switch statements of n dispatching on a
// synthesized local of the given kind.
func switchesOn(n bound.Node, kind bound.SynthesizedKind) []*bound.Switch {
	return find(n, func(s *bound.Switch) bool {
		ref, ok := s.X.(*bound.LocalRef)
		return ok && ref.Local.Synth == kind
	})
}

func calls(n bound.Node, id wellknown.ID) []*bound.Call {
	return find(n, func(c *bound.Call) bool { return c.Method == wellknown.Method(id) })
}

func TestSpillKeepsStatementsWithoutAwait(t *testing.T) {
	prog := decode(t, `
extern:
- {name: log, params: [int]}
- {name: fetch, params: [int], result: int}
methods:
- name: Main
  async: true
  body:
  - call: [log, {await: {call: [fetch, 1]}}]
  - call: [log, 2]
  - if:
      cond: {lt: [1, 2]}
      then:
      - call: [log, 3]
- name: Sync
  body:
  - call: [log, 1]
  - try:
      body:
      - call: [log, 2]
      finally:
      - call: [log, 3]
`)

	m := prog.Method("Main")
	lowered, err := lower.Method(m)
	if err != nil {
		t.Fatal(err)
	}
	if lowered.Body == m.Body {
		t.Fatal("the statement awaiting was not spilled")
	}
	for i := 1; i < len(m.Body.Stmts); i++ {
		if lowered.Body.Stmts[i] != m.Body.Stmts[i] {
			t.Errorf("statement %d was rewritten:\n%s", i, bound.Format(lowered.Body.Stmts[i]))
		}
	}

	m = prog.Method("Sync")
	lowered, err = lower.Method(m)
	if err != nil {
		t.Fatal(err)
	}
	if lowered.Body != m.Body {
		t.Errorf("body without awaits was rewritten:\n%s", bound.FormatMethod(lowered))
	}
}

func TestPendingBranchDispatch(t *testing.T) {
	prog := decode(t, `
extern:
- {name: log, params: [object]}
- {name: fetch, params: [int], result: int}
methods:
- name: Main
  async: true
  params: [n int]
  result: int
  body:
  - try:
      body:
      - if: {cond: {eq: [n, 1]}, then: [{goto: a}]}
      - if: {cond: {eq: [n, 2]}, then: [{goto: b}]}
      - if: {cond: {eq: [n, 3]}, then: [{return: 30}]}
      - goto: a
      finally:
      - await: {call: [fetch, n]}
  - label: a
  - call: [log, "a"]
  - return: 10
  - label: b
  - call: [log, "b"]
  - return: 20
`)

	for _, test := range []struct {
		n      int64
		expect string
	}{
		{1, "fetch(1)\nawait 1\nlog(a)\nreturn 10\n"},
		{2, "fetch(2)\nawait 2\nlog(b)\nreturn 20\n"},
		{3, "fetch(3)\nawait 3\nreturn 30\n"},
		{4, "fetch(4)\nawait 4\nlog(a)\nreturn 10\n"},
	} {
		t.Run(fmt.Sprint(test.n), func(t *testing.T) {
			got, lowered := lowerAndRun(t, prog, prog.Method("Main"), nil, test.n)
			if got != test.expect {
				t.Errorf("want:\n%s\ngot:\n%s", test.expect, got)
			}

			// One case per distinct target: a, b and the return.
			switches := switchesOn(lowered.Body, bound.PendingBranch)
			if len(switches) != 1 {
				t.Fatalf("expected one pending branch switch, got %d", len(switches))
			}
			if n := len(switches[0].Cases); n != 3 {
				t.Errorf("expected 3 pending branches, got %d", n)
			}
		})
	}
}

func TestPendingBranchNumbersFollowFirstUse(t *testing.T) {
	prog := decode(t, `
extern:
- {name: log, params: [object]}
- {name: fetch, params: [int], result: int}
methods:
- name: Main
  async: true
  params: [n int]
  result: int
  body:
  - try:
      body:
      - try:
          body:
          - if: {cond: {eq: [n, 1]}, then: [{goto: a}]}
          finally:
          - await: {call: [fetch, n]}
          - if: {cond: {eq: [n, 2]}, then: [{goto: b}]}
      finally:
      - await: {call: [fetch, 0]}
  - return: 0
  - label: a
  - call: [log, "a"]
  - return: 10
  - label: b
  - call: [log, "b"]
  - return: 20
`)

	for _, test := range []struct {
		n      int64
		expect string
	}{
		{1, "fetch(1)\nawait 1\nfetch(0)\nawait 0\nlog(a)\nreturn 10\n"},
		{2, "fetch(2)\nawait 2\nfetch(0)\nawait 0\nlog(b)\nreturn 20\n"},
		{3, "fetch(3)\nawait 3\nfetch(0)\nawait 0\nreturn 0\n"},
	} {
		t.Run(fmt.Sprint(test.n), func(t *testing.T) {
			got, lowered := lowerAndRun(t, prog, prog.Method("Main"), nil, test.n)
			if got != test.expect {
				t.Errorf("want:\n%s\ngot:\n%s", test.expect, got)
			}

			// The jump to a, in the body of the inner try, comes before the
			// jump to b in its finally block.
			var targets []string
			for _, s := range switchesOn(lowered.Body, bound.PendingBranch) {
				for _, c := range s.Cases {
					if g, ok := c.Body.(*bound.Goto); ok && (g.Label.Name == "a" || g.Label.Name == "b") {
						targets = append(targets, g.Label.Name)
					}
				}
			}
			if diff := cmp.Diff([]string{"a", "b"}, targets); diff != "" {
				t.Errorf("unexpected pending branches (-want +got):\n%s\n%s", diff, bound.FormatMethod(lowered))
			}
		})
	}
}

func TestCatchFilterOrdering(t *testing.T) {
	const src = `
types:
- class: Ex1
  base: Exception
- class: Ex2
  base: Exception
extern:
- {name: log, params: [object]}
- {name: p, params: [bool], result: bool}
- {name: q, params: [bool], result: bool}
methods:
- name: Main
  async: true
  params: [ex Exception, a bool, b bool]
  body:
  - try:
      body:
      - throw: ex
      catch:
      - type: Ex1
        var: e
        when: {await: {call: [p, a]}}
        body:
        - call: [log, {field: [e, Message]}]
      - type: Exception
        when: {await: {call: [q, b]}}
        body:
        - call: [log, "second"]
  - call: [log, "after"]
`
	prog := decode(t, src)
	ex1, ex2 := prog.Types["Ex1"], prog.Types["Ex2"]

	for _, test := range []struct {
		name   string
		ex     *bound.Type
		a, b   bool
		expect string
	}{
		{"first", ex1, true, true, "p(True)\nawait True\nlog(x)\nlog(after)\nreturn\n"},
		{"second", ex1, false, true, "p(False)\nawait False\nq(True)\nawait True\nlog(second)\nlog(after)\nreturn\n"},
		{"type mismatch", ex2, true, true, "q(True)\nawait True\nlog(second)\nlog(after)\nreturn\n"},
		{"none", ex2, true, false, "q(False)\nawait False\nthrow Ex2: x at 18:9\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, lowered := lowerAndRun(t, prog, prog.Method("Main"), nil, interp.NewException(test.ex, "x"), test.a, test.b)
			if got != test.expect {
				t.Errorf("want:\n%s\ngot:\n%s", test.expect, got)
			}

			switches := switchesOn(lowered.Body, bound.PendingCatch)
			if len(switches) != 1 {
				t.Fatalf("expected one pending catch switch, got %d", len(switches))
			}
			if n := len(switches[0].Cases); n != 2 {
				t.Errorf("expected 2 pending catches, got %d", n)
			}
		})
	}
}

const lockSource = `
types:
- class: Gate
extern:
- {name: log, params: [object]}
methods:
- name: Main
  params: [g Gate]
  body:
  - lock:
      on: g
      body:
      - call: [log, "inside"]
`

func TestLockEnterWithFlag(t *testing.T) {
	prog := decode(t, lockSource)
	m := prog.Method("Main")
	gate := &interp.Object{Type: prog.Types["Gate"]}

	got, lowered := lowerAndRun(t, prog, m, nil, gate)
	if expect := "log(inside)\nreturn\n"; got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}

	tries := find(lowered.Body, func(*bound.Try) bool { return true })
	if len(tries) != 1 || tries[0].Finally == nil {
		t.Fatalf("expected a try-finally statement:\n%s", bound.FormatMethod(lowered))
	}
	// Enter runs in the try block so that Exit is guarded by the flag it
	// sets.
	if n := len(calls(tries[0].Body, wellknown.MonitorEnterWithFlag)); n != 1 {
		t.Errorf("expected Monitor.Enter(ref bool) in the try block, found %d", n)
	}
	if n := len(calls(tries[0].Finally, wellknown.MonitorExit)); n != 1 {
		t.Errorf("expected Monitor.Exit in the finally block, found %d", n)
	}

	got, _ = lowerAndRun(t, prog, m, nil, nil)
	if expect := "throw NullReferenceException: locking null\n"; got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}
}

func TestLockEnterWithoutFlag(t *testing.T) {
	prog := decode(t, lockSource)
	m := prog.Method("Main")
	options := []lower.Option{lower.WithMembers(wellknown.Without(wellknown.MonitorEnterWithFlag))}

	_, lowered := lowerAndRun(t, prog, m, options, &interp.Object{Type: prog.Types["Gate"]})
	if n := len(calls(lowered.Body, wellknown.MonitorEnterWithFlag)); n != 0 {
		t.Errorf("Monitor.Enter(ref bool) used although the runtime lacks it")
	}
	tries := find(lowered.Body, func(*bound.Try) bool { return true })
	if len(tries) != 1 {
		t.Fatalf("expected a try statement:\n%s", bound.FormatMethod(lowered))
	}
	// Enter runs before the try block: Exit does not run when it throws.
	if n := len(calls(tries[0], wellknown.MonitorEnter)); n != 0 {
		t.Errorf("Monitor.Enter called inside the try statement")
	}
	if n := len(calls(lowered.Body, wellknown.MonitorEnter)); n != 1 {
		t.Errorf("expected one call to Monitor.Enter, found %d", n)
	}

	got, _ := lowerAndRun(t, prog, m, options, nil)
	if expect := "throw NullReferenceException: locking null\n"; got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}
}

func TestMissingMembers(t *testing.T) {
	prog := decode(t, `
types:
- class: Gate
methods:
- name: Lock
  params: [g Gate]
  body:
  - lock: {on: g, body: []}
- name: Format
  params: [n int]
  result: string
  body:
  - return: {format: ["n=", n]}
`)

	for _, test := range []struct {
		method  string
		missing []wellknown.ID
		expect  []string
	}{
		{
			method:  "Lock",
			missing: []wellknown.ID{wellknown.MonitorExit},
			expect:  []string{"Lock:8:5: error LW0656: missing compiler required member 'Monitor.Exit'"},
		},
		{
			method:  "Lock",
			missing: []wellknown.ID{wellknown.MonitorEnter, wellknown.MonitorEnterWithFlag},
			expect:  []string{"Lock:8:5: error LW0656: missing compiler required member 'Monitor.Enter'"},
		},
		{
			method:  "Format",
			missing: []wellknown.ID{wellknown.StringFormat},
			expect:  []string{"Format:13:13: error LW0656: missing compiler required member 'String.Format'"},
		},
	} {
		t.Run(fmt.Sprint(test.missing), func(t *testing.T) {
			var diags diag.Bag
			lowered, err := lower.Method(prog.Method(test.method),
				lower.WithMembers(wellknown.Without(test.missing...)),
				lower.WithDiagnostics(&diags))
			if err != nil {
				t.Fatal(err)
			}

			var got []string
			for _, d := range diags.All() {
				got = append(got, d.String())
			}
			if diff := cmp.Diff(test.expect, got); diff != "" {
				t.Errorf("unexpected diagnostics (-want +got):\n%s", diff)
			}
			if len(find(lowered.Body, func(*bound.BadExpr) bool { return true })) != 1 {
				t.Errorf("expected an erroneous expression in the lowered body:\n%s", bound.FormatMethod(lowered))
			}
		})
	}
}

func TestRethrowPreservesTrace(t *testing.T) {
	prog := decode(t, `
extern:
- {name: fetch, params: [int], result: int}
methods:
- name: Main
  async: true
  body:
  - try:
      body:
      - throw: {new: [Exception, "x"]}
      finally:
      - await: {call: [fetch, 1]}
`)
	m := prog.Method("Main")

	got, _ := lowerAndRun(t, prog, m, nil)
	if expect := "fetch(1)\nawait 1\nthrow Exception: x at 10:9\n"; got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}

	// Without a way to capture the trace, the exception is thrown again
	// from the try statement.
	lowered, err := lower.Method(m, lower.WithMembers(wellknown.Without(wellknown.ExceptionDispatchInfoCapture)))
	if err != nil {
		t.Fatal(err)
	}
	var trace interp.Trace
	r, err := interp.Run(lowered, trace.Config(prog.Externs))
	if err != nil {
		t.Fatal(err)
	}
	if got, expect := interp.Format(r), "throw Exception: x at 8:5"; got != expect {
		t.Errorf("want %q, got %q", expect, got)
	}
}

func TestInterpolationEscapesBraces(t *testing.T) {
	prog := decode(t, `
methods:
- name: Main
  params: [n int]
  result: string
  body:
  - return: {format: ["{a} ", {value: n, format: "{#}"}, " }"]}
`)
	got, lowered := lowerAndRun(t, prog, prog.Method("Main"), nil, int64(42))
	if expect := "return {a} {42} }\n"; got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}

	formats := calls(lowered.Body, wellknown.StringFormat)
	if len(formats) != 1 {
		t.Fatalf("expected a call to String.Format:\n%s", bound.FormatMethod(lowered))
	}
	lit, ok := formats[0].Args[0].(*bound.Literal)
	if !ok {
		t.Fatalf("format is not a literal: %s", bound.Format(formats[0].Args[0]))
	}
	if expect := "{{a}} {0:{{#}}} }}"; lit.Value != expect {
		t.Errorf("want format %q, got %q", expect, lit.Value)
	}
}

func TestCompoundAssignStructFieldAcrossAwait(t *testing.T) {
	prog := decode(t, `
types:
- struct: Inner
  fields: [c int]
- class: Outer
  fields: [b Inner]
extern:
- {name: log, params: [object]}
- {name: fetch, params: [int], result: int}
- {name: outer, params: [Outer], result: Outer}
methods:
- name: Main
  async: true
  body:
  - var: {name: o, init: {new: [Outer, {new: [Inner, 1]}]}}
  - compound: [add, {field: [{field: [{call: [outer, o]}, b]}, c]}, {await: {call: [fetch, 2]}}]
  - call: [log, {field: [{field: [o, b]}, c]}]
- name: Sync
  body:
  - var: {name: o, init: {new: [Outer]}}
  - compound: [add, {field: [{field: [{call: [outer, o]}, b]}, c]}, 2]
`)

	got, lowered := lowerAndRun(t, prog, prog.Method("Main"), nil)
	if expect := "outer(Outer)\nfetch(2)\nawait 2\nlog(3)\nreturn\n"; got != expect {
		t.Errorf("want:\n%s\ngot:\n%s", expect, got)
	}
	refs := find(lowered.Body, func(b *bound.Block) bool {
		for _, l := range b.Locals {
			if l.RefKind == bound.ByRef {
				return true
			}
		}
		return false
	})
	if len(refs) != 0 {
		t.Errorf("by-reference local declared in an async body:\n%s", bound.FormatMethod(lowered))
	}

	// Outside of async functions the receiver is captured by reference.
	lowered, err := lower.Method(prog.Method("Sync"))
	if err != nil {
		t.Fatal(err)
	}
	seqRefs := find(lowered.Body, func(s *bound.Sequence) bool {
		return len(s.Locals) == 1 && s.Locals[0].RefKind == bound.ByRef
	})
	if len(seqRefs) != 1 {
		t.Errorf("expected the receiver captured by reference:\n%s", bound.FormatMethod(lowered))
	}
}

// withRefAcrossAwait returns a copy of m declaring a by-reference local
// bound to its first local, live across the awaits of the body.
func withRefAcrossAwait(m *bound.Method) *bound.Method {
	f := &bound.Factory{}
	target := m.Body.Locals[0]
	ref := f.RefTemp(target.Type, bound.CompoundTemp)
	body := *m.Body
	body.Locals = append([]*bound.Local{ref}, body.Locals...)
	body.Stmts = append([]bound.Stmt{f.ExprStmt(f.AssignRef(ref, f.Local(target)))}, body.Stmts...)
	c := *m
	c.Body = &body
	return &c
}

func TestInvariantErrors(t *testing.T) {
	prog := decode(t, `
types:
- struct: Point
  fields: [x int]
extern:
- {name: fetch, params: [int], result: int}
methods:
- name: RefAcrossAwait
  async: true
  body:
  - var: p Point
  - await: {call: [fetch, 1]}
- name: NotAsync
  body:
  - await: {call: [fetch, 1]}
- name: CondGoto
  async: true
  body:
  - try:
      body:
      - condgoto: {cond: true, label: out}
      finally:
      - await: {call: [fetch, 1]}
  - label: out
`)

	for _, test := range []struct {
		method *bound.Method
		expect string
	}{
		{prog.Method("NotAsync"), "await outside of an async function"},
		{prog.Method("CondGoto"), "conditional jump to out leaves a try block whose finally block awaits"},
		{withRefAcrossAwait(prog.Method("RefAcrossAwait")), "by-reference local _v0 survives an await"},
	} {
		t.Run(test.method.Name, func(t *testing.T) {
			_, err := lower.Method(test.method)
			var ierr *diag.InvariantError
			if !errors.As(err, &ierr) {
				t.Fatalf("expected an invariant error, got %v", err)
			}
			if ierr.Method != test.method.Name {
				t.Errorf("error reported for method %q", ierr.Method)
			}
			if !strings.Contains(ierr.Msg, test.expect) {
				t.Errorf("unexpected message %q", ierr.Msg)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	prog := decode(t, `
extern:
- {name: log, params: [object]}
- {name: fetch, params: [int], result: int}
methods:
- name: First
  async: true
  body:
  - call: [log, {await: {call: [fetch, 1]}}]
- name: Broken
  body:
  - await: {call: [fetch, 1]}
- name: Last
  body:
  - lock: {on: "x", body: []}
`)

	results, err := lower.Compile(context.Background(), prog.Methods, lower.WithConcurrency(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(prog.Methods) {
		t.Fatalf("expected %d results, got %d", len(prog.Methods), len(results))
	}
	for i, r := range results {
		if r.Method.Name != prog.Methods[i].Name {
			t.Errorf("result %d is for %s, want %s", i, r.Method.Name, prog.Methods[i].Name)
		}
		if broken := r.Method.Name == "Broken"; broken != (r.Err != nil) {
			t.Errorf("%s: unexpected error %v", r.Method.Name, r.Err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lower.Compile(ctx, prog.Methods); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}
