// Package wellknown declares the runtime library members that lowered code
// calls, and the profiles describing which of them a target runtime
// provides.
package wellknown

import (
	"fmt"

	"github.com/stealthrocket/lower/bound"
)

// ID identifies a well-known member.
type ID int

const (
	ExceptionDispatchInfoCapture ID = iota
	ExceptionDispatchInfoThrow
	MonitorEnter
	MonitorEnterWithFlag
	MonitorExit
	StringFormat

	numIDs
)

var names = [numIDs]string{
	ExceptionDispatchInfoCapture: "ExceptionDispatchInfo.Capture",
	ExceptionDispatchInfoThrow:   "ExceptionDispatchInfo.Throw",
	MonitorEnter:                 "Monitor.Enter",
	MonitorEnterWithFlag:         "Monitor.Enter(ref bool)",
	MonitorExit:                  "Monitor.Exit",
	StringFormat:                 "String.Format",
}

func (id ID) String() string {
	if id >= 0 && id < numIDs {
		return names[id]
	}
	return fmt.Sprintf("ID(%d)", int(id))
}

// ParseID resolves a member name as printed by ID.String.
func ParseID(name string) (ID, bool) {
	for id, n := range names {
		if n == name {
			return ID(id), true
		}
	}
	return 0, false
}

// DispatchInfo is the type capturing an exception together with its stack
// trace so that it can be rethrown without losing it.
var DispatchInfo = bound.NewClass("ExceptionDispatchInfo", bound.Object)

var methods [numIDs]*bound.Method

func init() {
	param := func(name string, t *bound.Type) *bound.Local {
		return &bound.Local{Name: name, Type: t, Kind: bound.Parameter}
	}
	methods[ExceptionDispatchInfoCapture] = &bound.Method{
		Name:   "ExceptionDispatchInfo.Capture",
		Params: []*bound.Local{param("source", bound.Exception)},
		Result: DispatchInfo,
		Static: true,
	}
	methods[ExceptionDispatchInfoThrow] = &bound.Method{
		Name:   "Throw",
		Result: bound.Void,
	}
	methods[MonitorEnter] = &bound.Method{
		Name:   "Monitor.Enter",
		Params: []*bound.Local{param("obj", bound.Object)},
		Result: bound.Void,
		Static: true,
	}
	lockTaken := param("lockTaken", bound.Bool)
	lockTaken.RefKind = bound.ByRef
	methods[MonitorEnterWithFlag] = &bound.Method{
		Name:   "Monitor.Enter",
		Params: []*bound.Local{param("obj", bound.Object), lockTaken},
		Result: bound.Void,
		Static: true,
	}
	methods[MonitorExit] = &bound.Method{
		Name:   "Monitor.Exit",
		Params: []*bound.Local{param("obj", bound.Object)},
		Result: bound.Void,
		Static: true,
	}
	methods[StringFormat] = &bound.Method{
		Name:   "String.Format",
		Params: []*bound.Local{param("format", bound.String), param("args", bound.ArrayOf(bound.Object))},
		Result: bound.String,
		Static: true,
	}
}

// Method returns the symbol of a well-known member, whether or not a
// profile provides it.
func Method(id ID) *bound.Method { return methods[id] }

// Lookup returns the ID of m if it is a well-known member.
func Lookup(m *bound.Method) (ID, bool) {
	for id, wk := range methods {
		if wk == m {
			return ID(id), true
		}
	}
	return 0, false
}

// Members resolves the well-known members available to lowered code.
type Members interface {
	Member(id ID) (*bound.Method, bool)
}
