package bound

import "strings"

// TypeKind classifies the static types understood by the lowering passes.
type TypeKind uint8

const (
	VoidType TypeKind = iota
	BoolType
	IntType
	StringType
	ObjectType
	ClassType
	StructType
	NullableType
	TypeParamType
	ArrayType
	FuncType
)

// Type is the static type of an expression, local or field.
//
// Class types form a single-inheritance hierarchy rooted at Object through
// the Base field; exception types are classes deriving from Exception.
type Type struct {
	Kind TypeKind
	Name string
	// Base is the base class of a ClassType.
	Base *Type
	// Elem is the underlying type of a NullableType, the element type of an
	// ArrayType and the result type of a FuncType.
	Elem *Type
	// Fields declared by class and struct types, in declaration order.
	Fields []*Field
}

// Predeclared types.
var (
	Void   = &Type{Kind: VoidType, Name: "void"}
	Bool   = &Type{Kind: BoolType, Name: "bool"}
	Int    = &Type{Kind: IntType, Name: "int"}
	String = &Type{Kind: StringType, Name: "string"}
	Object = &Type{Kind: ObjectType, Name: "object"}

	Exception = NewClass("Exception", Object)
)

func init() {
	Exception.AddField("Message", String, 0)
}

// NewClass declares a reference type.
func NewClass(name string, base *Type) *Type {
	if base == nil {
		base = Object
	}
	return &Type{Kind: ClassType, Name: name, Base: base}
}

// NewStruct declares a value type.
func NewStruct(name string) *Type {
	return &Type{Kind: StructType, Name: name}
}

// NewTypeParam declares an unconstrained type parameter, which may be
// instantiated with either a reference or a value type.
func NewTypeParam(name string) *Type {
	return &Type{Kind: TypeParamType, Name: name}
}

// NullableOf returns the nullable form of the value type t.
func NullableOf(t *Type) *Type {
	if t.Kind == NullableType {
		return t
	}
	return &Type{Kind: NullableType, Name: t.Name + "?", Elem: t}
}

// ArrayOf returns the array type with elements of type t.
func ArrayOf(t *Type) *Type {
	return &Type{Kind: ArrayType, Name: t.Name + "[]", Elem: t}
}

// FuncOf returns the type of closures producing a value of type result.
func FuncOf(result *Type) *Type {
	return &Type{Kind: FuncType, Name: "func<" + result.Name + ">", Elem: result}
}

// FieldFlags qualify a field declaration.
type FieldFlags uint8

const (
	StaticField FieldFlags = 1 << iota
	ReadOnlyField
)

// AddField declares a field on t and returns it.
func (t *Type) AddField(name string, typ *Type, flags FieldFlags) *Field {
	f := &Field{
		Name:     name,
		Type:     typ,
		Owner:    t,
		Static:   flags&StaticField != 0,
		ReadOnly: flags&ReadOnlyField != 0,
	}
	t.Fields = append(t.Fields, f)
	return f
}

// Field looks up a field by name, searching base classes.
func (t *Type) Field(name string) *Field {
	for ; t != nil; t = t.Base {
		for _, f := range t.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// InstanceFields returns the instance fields of t, base class fields first.
func (t *Type) InstanceFields() []*Field {
	if t == nil {
		return nil
	}
	fields := t.Base.InstanceFields()
	for _, f := range t.Fields {
		if !f.Static {
			fields = append(fields, f)
		}
	}
	return fields
}

func (t *Type) IsVoid() bool      { return t == nil || t.Kind == VoidType }
func (t *Type) IsNullable() bool  { return t != nil && t.Kind == NullableType }
func (t *Type) IsTypeParam() bool { return t != nil && t.Kind == TypeParamType }

// IsReferenceType reports whether values of t are references that may be
// null. Type parameters are neither reference nor value types statically.
func (t *Type) IsReferenceType() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case ObjectType, StringType, ClassType, ArrayType, FuncType:
		return true
	}
	return false
}

// IsValueType reports whether values of t are copied on assignment.
func (t *Type) IsValueType() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case BoolType, IntType, StructType, NullableType:
		return true
	}
	return false
}

// DerivesFrom reports whether t is base or a class derived from base.
// Every reference type derives from Object.
func (t *Type) DerivesFrom(base *Type) bool {
	if base == nil || t == nil {
		return false
	}
	if base.Kind == ObjectType {
		return true
	}
	for ; t != nil; t = t.Base {
		if Identical(t, base) {
			return true
		}
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	return t.Name
}

// Identical reports whether a and b denote the same type. Declared types
// are compared by identity, constructed types structurally.
func Identical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case NullableType, ArrayType, FuncType:
		return Identical(a.Elem, b.Elem)
	case VoidType, BoolType, IntType, StringType, ObjectType:
		return true
	}
	return false
}

// Field is a field symbol.
type Field struct {
	Name     string
	Type     *Type
	Owner    *Type
	Static   bool
	ReadOnly bool
}

func (f *Field) String() string {
	var b strings.Builder
	if f.Owner != nil {
		b.WriteString(f.Owner.Name)
		b.WriteByte('.')
	}
	b.WriteString(f.Name)
	return b.String()
}
