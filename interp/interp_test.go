package interp_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stealthrocket/lower/bound/boundyaml"
	"github.com/stealthrocket/lower/interp"
)

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	prog, err := boundyaml.Decode([]byte(src), interp.NullReference)
	if err != nil {
		t.Fatal(err)
	}
	var trace interp.Trace
	r, err := interp.Run(prog.Method("Main"), trace.Config(prog.Externs))
	if err != nil {
		return "", err
	}
	return trace.String() + interp.Format(r), nil
}

func TestRun(t *testing.T) {
	for _, test := range []struct {
		name   string
		src    string
		expect string
	}{
		{
			name: "arithmetic",
			src: `
methods:
- name: Main
  result: int
  body:
  - return: {add: [1, {mul: [2, 3]}]}
`,
			expect: "return 7",
		},

		{
			name: "awaits resolve in order",
			src: `
extern:
- {name: fetch, params: [int], result: int}
methods:
- name: Main
  async: true
  result: int
  body:
  - return: {add: [{await: {call: [fetch, 1]}}, {await: {call: [fetch, 2]}}]}
`,
			expect: `
fetch(1)
await 1
fetch(2)
await 2
return 3`,
		},

		{
			name: "faulted await is caught",
			src: `
extern:
- {name: log, params: [object]}
methods:
- name: Main
  async: true
  body:
  - try:
      body:
      - await: {new: [Exception, "boom"]}
      catch:
      - type: Exception
        var: e
        body:
        - call: [log, {field: [e, Message]}]
`,
			expect: `
await Exception: boom
log(boom)
return`,
		},

		{
			name: "finally runs on return",
			src: `
extern:
- {name: log, params: [object]}
methods:
- name: Main
  result: int
  body:
  - try:
      body:
      - return: 1
      finally:
      - call: [log, "finally"]
`,
			expect: `
log(finally)
return 1`,
		},

		{
			name: "rethrow keeps the trace",
			src: `
methods:
- name: Main
  body:
  - try:
      body:
      - throw: {new: [Exception, "x"]}
      catch:
      - body:
        - throw
`,
			expect: "throw Exception: x at 6:9",
		},

		{
			name: "false filter falls through to the next catch",
			src: `
extern:
- {name: log, params: [object]}
methods:
- name: Main
  body:
  - try:
      body:
      - throw: {new: [Exception, "e"]}
      catch:
      - type: Exception
        var: e
        when: false
        body:
        - call: [log, "first"]
      - type: Exception
        body:
        - call: [log, "second"]
`,
			expect: `
log(second)
return`,
		},

		{
			name: "filters run before inner finally blocks",
			src: `
extern:
- {name: log, params: [object]}
- {name: yes, params: [bool], result: bool}
methods:
- name: Main
  body:
  - try:
      body:
      - try:
          body:
          - throw: {new: [Exception, "x"]}
          finally:
          - call: [log, "inner finally"]
      catch:
      - type: Exception
        when: {call: [yes, true]}
        body:
        - call: [log, "handler"]
`,
			expect: `
yes(True)
log(inner finally)
log(handler)
return`,
		},

		{
			name: "filters are evaluated from the innermost try outward",
			src: `
extern:
- {name: log, params: [object]}
- {name: yes, params: [bool], result: bool}
methods:
- name: Main
  body:
  - try:
      body:
      - try:
          body:
          - throw: {new: [Exception, "x"]}
          catch:
          - type: Exception
            when: {call: [yes, false]}
            body:
            - call: [log, "inner"]
          finally:
          - call: [log, "inner finally"]
      catch:
      - type: Exception
        when: {call: [yes, true]}
        body:
        - call: [log, "outer"]
`,
			expect: `
yes(False)
yes(True)
log(inner finally)
log(outer)
return`,
		},

		{
			name: "rethrow looks for a handler again",
			src: `
extern:
- {name: log, params: [object]}
- {name: yes, params: [bool], result: bool}
methods:
- name: Main
  body:
  - try:
      body:
      - try:
          body:
          - throw: {new: [Exception, "x"]}
          catch:
          - type: Exception
            body:
            - call: [log, "caught"]
            - throw
          finally:
          - call: [log, "inner finally"]
      catch:
      - type: Exception
        var: e
        when: {call: [yes, true]}
        body:
        - call: [log, {field: [e, Message]}]
`,
			expect: `
log(caught)
yes(True)
log(inner finally)
log(x)
return`,
		},

		{
			name: "loop iterations have their own variables",
			src: `
extern:
- {name: log, params: [object]}
methods:
- name: Main
  body:
  - var: {name: fs, init: {array: ["func int", null, null, null]}}
  - for:
      vars: [{name: i, init: 0}]
      cond: {lt: [i, 3]}
      step: [{compound: [add, i, 1]}]
      body:
      - assign: [{index: [fs, i]}, {lambda: {result: int, body: [{return: i}]}}]
  - call: [log, {invoke: [{index: [fs, 0]}]}]
  - call: [log, {invoke: [{index: [fs, 1]}]}]
  - call: [log, {invoke: [{index: [fs, 2]}]}]
`,
			expect: `
log(0)
log(1)
log(2)
return`,
		},

		{
			name: "lock is released when the body throws",
			src: `
types:
- class: Gate
methods:
- name: Main
  body:
  - var: {name: g, init: {new: [Gate]}}
  - try:
      body:
      - lock:
          on: g
          body:
          - throw: {new: [Exception, "inside"]}
      catch:
      - body: []
`,
			expect: "return",
		},

		{
			name: "locking null",
			src: `
methods:
- name: Main
  body:
  - lock: {on: null, body: []}
`,
			expect: "throw NullReferenceException: locking null",
		},

		{
			name: "structs are copied",
			src: `
types:
- struct: Point
  fields: [x int]
extern:
- {name: log, params: [object]}
methods:
- name: Main
  body:
  - var: {name: a, type: Point}
  - var: {name: b, init: a}
  - assign: [{field: [b, x]}, 5]
  - call: [log, {field: [a, x]}]
  - call: [log, {field: [b, x]}]
`,
			expect: `
log(0)
log(5)
return`,
		},

		{
			name: "conditional access",
			src: `
types:
- class: Box
  fields: [n int]
extern:
- {name: log, params: [object]}
methods:
- name: Main
  body:
  - var: {name: b, type: Box}
  - call: [log, {access: [b, {field: [$, n]}]}]
  - assign: [b, {new: [Box, 4]}]
  - call: [log, {access: [b, {field: [$, n]}]}]
`,
			expect: `
log()
log(4)
return`,
		},

		{
			name: "interpolation",
			src: `
methods:
- name: Main
  result: string
  body:
  - var: {name: n, init: 42}
  - return: {format: ["{", {value: n, align: 5, format: D4}, "}"]}
`,
			expect: "return { 0042}",
		},

		{
			name: "division by zero",
			src: `
methods:
- name: Main
  result: int
  body:
  - var: {name: z, init: 0}
  - return: {div: [1, z]}
`,
			expect: "throw DivideByZeroException: division by zero",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := run(t, strings.TrimPrefix(test.src, "\n"))
			if err != nil {
				t.Fatal(err)
			}
			expect := strings.TrimPrefix(test.expect, "\n")
			if got != expect {
				t.Errorf("unexpected run\nwant:\n%s\ngot:\n%s", expect, got)
			}
		})
	}
}

func TestRunMissingHostFunction(t *testing.T) {
	prog, err := boundyaml.Decode([]byte(`
extern:
- {name: log, params: [object]}
methods:
- name: Main
  body:
  - call: [log, 1]
`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = interp.Run(prog.Method("Main"), interp.Config{})
	var ierr *interp.Error
	if !errors.As(err, &ierr) {
		t.Fatalf("expected an interpreter error, got %v", err)
	}
}

func TestRunArguments(t *testing.T) {
	prog, err := boundyaml.Decode([]byte(`
methods:
- name: Main
  params: [ref x int, y int]
  body:
  - compound: [add, x, y]
`))
	if err != nil {
		t.Fatal(err)
	}
	var trace interp.Trace
	x := &cell{v: int64(1)}
	if _, err := interp.Run(prog.Method("Main"), trace.Config(nil), &interp.Ref{Location: x}, int64(2)); err != nil {
		t.Fatal(err)
	}
	if x.v != int64(3) {
		t.Errorf("x = %v, want 3", x.v)
	}
}

type cell struct{ v interp.Value }

func (c *cell) Load() interp.Value   { return c.v }
func (c *cell) Store(v interp.Value) { c.v = v }
