package interp

import (
	"strconv"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/wellknown"
)

// Value is a runtime value. It is one of:
//
//   - nil, for null and the void result
//   - bool, int64 or string
//   - *Object, *Struct, *Array or *Closure
//   - *DispatchInfo, for captured exceptions
//   - *Ref, for arguments passed by reference to host functions
type Value any

// Object is an instance of a class.
type Object struct {
	Type   *bound.Type
	Fields map[*bound.Field]Value
	// Trace holds the positions of the throw statements that raised the
	// object, when it is an exception.
	Trace []bound.Pos
}

// Message returns the Message field of an exception object.
func (o *Object) Message() string {
	s, _ := o.Fields[bound.Exception.Field("Message")].(string)
	return s
}

func (o *Object) String() string {
	if o.Type.DerivesFrom(bound.Exception) {
		if msg := o.Message(); msg != "" {
			return o.Type.Name + ": " + msg
		}
	}
	return o.Type.Name
}

// Struct is an instance of a value type. Structs are copied when they are
// read from a variable, unless they are the receiver of a call.
type Struct struct {
	Type   *bound.Type
	Fields map[*bound.Field]Value
}

func (s *Struct) clone() *Struct {
	c := &Struct{Type: s.Type, Fields: make(map[*bound.Field]Value, len(s.Fields))}
	for f, v := range s.Fields {
		c.Fields[f] = copyValue(v)
	}
	return c
}

type Array struct {
	Elem  *bound.Type
	Elems []Value
}

// Closure is the value of a lambda expression.
type Closure struct {
	Lambda *bound.Lambda
	scope  *scope
	this   Location
}

// DispatchInfo holds an exception and the trace it had when captured.
type DispatchInfo struct {
	Exception *Object
	trace     []bound.Pos
}

// Ref is a variable passed by reference.
type Ref struct {
	Location
}

// Location is the storage of a variable.
type Location interface {
	Load() Value
	Store(Value)
}

type cell struct{ v Value }

func (c *cell) Load() Value   { return c.v }
func (c *cell) Store(v Value) { c.v = v }

type fieldLocation struct {
	fields map[*bound.Field]Value
	field  *bound.Field
}

func (l fieldLocation) Load() Value {
	l.check()
	return l.fields[l.field]
}

func (l fieldLocation) Store(v Value) {
	l.check()
	l.fields[l.field] = v
}

// check raises a null reference exception when the object holding the
// field is null, which is only detected when the field is accessed.
func (l fieldLocation) check() {
	if l.fields == nil {
		Throw(NewException(NullReference, "accessing "+l.field.String()+" on null"))
	}
}

type elemLocation struct {
	array *Array
	index int
}

func (l elemLocation) Load() Value {
	l.check()
	return l.array.Elems[l.index]
}

func (l elemLocation) Store(v Value) {
	l.check()
	l.array.Elems[l.index] = v
}

func (l elemLocation) check() {
	switch {
	case l.array == nil:
		Throw(NewException(NullReference, "indexing a null array"))
	case l.index < 0 || l.index >= len(l.array.Elems):
		Throw(NewException(IndexOutOfRange, "index out of range"))
	}
}

// copyValue implements the copy semantics of value types.
func copyValue(v Value) Value {
	if s, ok := v.(*Struct); ok {
		return s.clone()
	}
	return v
}

// zero returns the default value of t.
func (m *machine) zero(t *bound.Type) Value {
	t = m.resolve(t)
	switch t.Kind {
	case bound.BoolType:
		return false
	case bound.IntType:
		return int64(0)
	case bound.StructType:
		s := &Struct{Type: t, Fields: map[*bound.Field]Value{}}
		for _, f := range t.InstanceFields() {
			s.Fields[f] = m.zero(f.Type)
		}
		return s
	}
	return nil
}

// resolve substitutes the type arguments of the run for type parameters.
func (m *machine) resolve(t *bound.Type) *bound.Type {
	if t == nil {
		return bound.Void
	}
	if t.IsTypeParam() {
		if arg, ok := m.cfg.TypeArgs[t.Name]; ok {
			return arg
		}
	}
	return t
}

// typeOf returns the dynamic type of a non-nil value.
func typeOf(v Value) *bound.Type {
	switch v := v.(type) {
	case bool:
		return bound.Bool
	case int64:
		return bound.Int
	case string:
		return bound.String
	case *Object:
		return v.Type
	case *Struct:
		return v.Type
	case *Array:
		return bound.ArrayOf(v.Elem)
	case *Closure:
		return v.Lambda.Type()
	case *DispatchInfo:
		return wellknown.DispatchInfo
	}
	return bound.Object
}

// isInstance reports whether v is a non-null value of type t.
func (m *machine) isInstance(v Value, t *bound.Type) bool {
	if v == nil {
		return false
	}
	t = m.resolve(t)
	switch t.Kind {
	case bound.ObjectType, bound.TypeParamType:
		return true
	case bound.NullableType:
		return m.isInstance(v, t.Elem)
	case bound.ClassType:
		return typeOf(v).DerivesFrom(t)
	}
	return bound.Identical(typeOf(v), t)
}

func equal(a, b Value) bool {
	switch a := a.(type) {
	case *Struct:
		b, ok := b.(*Struct)
		if !ok || a.Type != b.Type {
			return false
		}
		for f, v := range a.Fields {
			if !equal(v, b.Fields[f]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// display renders v the way string formatting does.
func display(v Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	case *Object:
		return v.String()
	}
	return typeOf(v).Name
}
