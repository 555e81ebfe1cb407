package interp

import (
	"fmt"
	"strings"

	"github.com/stealthrocket/lower/bound"
)

// Trace records the observable effects of runs: the calls made to host
// functions and the values awaited.
type Trace struct {
	Lines []string
}

// Host returns host functions implementing the external methods. Each
// records its call and returns its first argument, or the default of its
// result type when it has none.
func (t *Trace) Host(externs map[string]*bound.Method) map[string]HostFunc {
	host := make(map[string]HostFunc, len(externs))
	for name, m := range externs {
		name, m := name, m
		host[name] = func(this Value, args []Value) Value {
			t.Printf("%s(%s)", name, join(args))
			if m.Result.IsVoid() {
				return nil
			}
			if len(args) > 0 {
				if r, ok := args[0].(*Ref); ok {
					return r.Load()
				}
				return args[0]
			}
			return (&machine{}).zero(m.Result)
		}
	}
	return host
}

// Await records the awaited value and resolves it. Awaiting an exception
// object faults the await with it.
func (t *Trace) Await(v Value) Value {
	t.Printf("await %s", display(v))
	if o, ok := v.(*Object); ok && o.Type.DerivesFrom(bound.Exception) {
		Throw(o)
	}
	return v
}

func (t *Trace) Printf(format string, args ...any) {
	t.Lines = append(t.Lines, fmt.Sprintf(format, args...))
}

// Config returns a configuration using the trace for host functions and
// awaits.
func (t *Trace) Config(externs map[string]*bound.Method) Config {
	return Config{Host: t.Host(externs), Await: t.Await}
}

func (t *Trace) String() string {
	var b strings.Builder
	for _, line := range t.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func join(args []Value) string {
	s := make([]string, len(args))
	for i, a := range args {
		if r, ok := a.(*Ref); ok {
			a = r.Load()
		}
		s[i] = display(a)
	}
	return strings.Join(s, ", ")
}

// Format renders the outcome of a run: the returned value, or the escaping
// exception with the positions it was thrown from.
func Format(r Result) string {
	var s string
	if r.Thrown == nil {
		s = "return"
		if r.Value != nil {
			s += " " + display(r.Value)
		}
	} else {
		s = "throw " + display(r.Thrown)
		if o, ok := r.Thrown.(*Object); ok && len(o.Trace) > 0 {
			trace := make([]string, len(o.Trace))
			for i, p := range o.Trace {
				trace[i] = p.String()
			}
			s += " at " + strings.Join(trace, " ")
		}
	}
	if r.Locks > 0 {
		s += fmt.Sprintf(" (%d locks held)", r.Locks)
	}
	return s
}
