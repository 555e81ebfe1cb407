// Package diag collects the diagnostics produced while lowering methods.
package diag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stealthrocket/lower/bound"
)

type Severity uint8

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Code identifies a kind of diagnostic.
type Code string

const (
	// MissingMember is reported when a member required by a lowering is not
	// available in the target runtime.
	MissingMember Code = "LW0656"
	// Unsupported is reported for constructs the passes refuse to lower.
	Unsupported Code = "LW8000"
)

type Diagnostic struct {
	Severity Severity
	Code     Code
	Method   string
	Pos      bound.Pos
	Message  string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Method != "" {
		b.WriteString(d.Method)
		b.WriteByte(':')
	}
	b.WriteString(d.Pos.String())
	fmt.Fprintf(&b, ": %s %s: %s", d.Severity, d.Code, d.Message)
	return b.String()
}

// Bag accumulates diagnostics. It is safe for concurrent use; methods
// lowered in parallel report into the same bag.
type Bag struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (b *Bag) Add(d Diagnostic) {
	b.mu.Lock()
	b.diags = append(b.diags, d)
	b.mu.Unlock()
}

// Errorf reports an error diagnostic.
func (b *Bag) Errorf(method string, pos bound.Pos, code Code, format string, args ...any) {
	b.Add(Diagnostic{
		Severity: Error,
		Code:     code,
		Method:   method,
		Pos:      pos,
		Message:  fmt.Sprintf(format, args...),
	})
}

// All returns the diagnostics ordered by method name and position.
func (b *Bag) All() []Diagnostic {
	b.mu.Lock()
	diags := make([]Diagnostic, len(b.diags))
	copy(diags, b.diags)
	b.mu.Unlock()

	sort.SliceStable(diags, func(i, j int) bool {
		di, dj := diags[i], diags[j]
		if di.Method != dj.Method {
			return di.Method < dj.Method
		}
		if di.Pos.Line != dj.Pos.Line {
			return di.Pos.Line < dj.Pos.Line
		}
		return di.Pos.Col < dj.Pos.Col
	})
	return diags
}

func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.diags)
}

// InvariantError reports a violated internal assumption: a tree shape that
// earlier passes should have made impossible. It indicates a compiler bug,
// not a problem with the program being compiled.
type InvariantError struct {
	Method string
	Pos    bound.Pos
	Msg    string
}

func (e *InvariantError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%s: internal invariant violated: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s:%s: internal invariant violated: %s", e.Method, e.Pos, e.Msg)
}

// Invariant panics with an *InvariantError. The lowering entry points
// recover it and return it as the error for the method being lowered.
func Invariant(pos bound.Pos, format string, args ...any) {
	panic(&InvariantError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}
