package types

import "strings"

// Primitive names a scalar store-independent type.
type Primitive string

const (
	Int32    Primitive = "Int32"
	Int64    Primitive = "Int64"
	Decimal  Primitive = "Decimal"
	Double   Primitive = "Double"
	String   Primitive = "String"
	Boolean  Primitive = "Boolean"
	DateTime Primitive = "DateTime"
	Guid     Primitive = "Guid"
	Binary   Primitive = "Binary"
)

// IsNumeric reports whether values of the primitive can be compared and
// combined arithmetically with other numeric primitives.
func (p Primitive) IsNumeric() bool {
	switch p {
	case Int32, Int64, Decimal, Double:
		return true
	}
	return false
}

// ParsePrimitive resolves a primitive by name, case-insensitively.
func ParsePrimitive(name string) (Primitive, bool) {
	for _, p := range []Primitive{Int32, Int64, Decimal, Double, String, Boolean, DateTime, Guid, Binary} {
		if strings.EqualFold(string(p), name) {
			return p, true
		}
	}
	return "", false
}

// TypeKind distinguishes the three shapes a result type can take.
type TypeKind string

const (
	PrimitiveKind  TypeKind = "Primitive"
	RowKind        TypeKind = "Row"
	CollectionKind TypeKind = "Collection"
)

// Field is a named member of a row type.
type Field struct {
	Name string
	Type Type
}

// Type is the result type of an expression.
// Nullable is meaningful for primitives only.
type Type struct {
	Elem      *Type
	Kind      TypeKind
	Primitive Primitive
	Fields    []Field
	Nullable  bool
}

// PrimitiveOf returns a primitive type.
func PrimitiveOf(p Primitive, nullable bool) Type {
	return Type{Kind: PrimitiveKind, Primitive: p, Nullable: nullable}
}

// RowOf returns a row type with the given fields in order.
func RowOf(fields ...Field) Type {
	return Type{Kind: RowKind, Fields: fields}
}

// CollectionOf returns a collection of elem.
func CollectionOf(elem Type) Type {
	e := elem
	return Type{Kind: CollectionKind, Elem: &e}
}

// IsPrimitive reports whether t is a primitive type.
func (t Type) IsPrimitive() bool { return t.Kind == PrimitiveKind }

// IsRow reports whether t is a row type.
func (t Type) IsRow() bool { return t.Kind == RowKind }

// IsCollection reports whether t is a collection type.
func (t Type) IsCollection() bool { return t.Kind == CollectionKind }

// IsBoolean reports whether t is the Boolean primitive.
func (t Type) IsBoolean() bool { return t.Kind == PrimitiveKind && t.Primitive == Boolean }

// Element returns the element type of a collection.
// It returns the zero Type for non-collections.
func (t Type) Element() Type {
	if t.Elem == nil {
		return Type{}
	}
	return *t.Elem
}

// Field looks up a row member by name.
func (t Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// WithNullable returns a copy of a primitive type with the given nullability.
func (t Type) WithNullable(nullable bool) Type {
	if t.Kind == PrimitiveKind {
		t.Nullable = nullable
	}
	return t
}

// MakeNullable marks every primitive leaf of t as nullable. It is applied to
// the optional side of outer joins and applies.
func MakeNullable(t Type) Type {
	switch t.Kind {
	case PrimitiveKind:
		t.Nullable = true
		return t
	case RowKind:
		fields := make([]Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = Field{Name: f.Name, Type: MakeNullable(f.Type)}
		}
		return RowOf(fields...)
	}
	return t
}

// Compatible reports whether values of a and b can meet in a comparison,
// an IN list or a set operation. Nullability is ignored.
func Compatible(a, b Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case PrimitiveKind:
		if a.Primitive == b.Primitive {
			return true
		}
		return a.Primitive.IsNumeric() && b.Primitive.IsNumeric()
	case RowKind:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if !Compatible(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case CollectionKind:
		return Compatible(a.Element(), b.Element())
	}
	return false
}

// Merge combines two compatible types, keeping the shape and names of a and
// widening nullability where either side is nullable.
func Merge(a, b Type) Type {
	switch a.Kind {
	case PrimitiveKind:
		a.Nullable = a.Nullable || b.Nullable
		return a
	case RowKind:
		fields := make([]Field, len(a.Fields))
		for i, f := range a.Fields {
			other := f.Type
			if i < len(b.Fields) {
				other = b.Fields[i].Type
			}
			fields[i] = Field{Name: f.Name, Type: Merge(f.Type, other)}
		}
		return RowOf(fields...)
	case CollectionKind:
		return CollectionOf(Merge(a.Element(), b.Element()))
	}
	return a
}

// LeafPaths lists the paths to every primitive leaf of a row type in
// declaration order, descending into nested rows depth first.
func LeafPaths(t Type) [][]string {
	var out [][]string
	var walk func(t Type, prefix []string)
	walk = func(t Type, prefix []string) {
		for _, f := range t.Fields {
			p := append(append([]string(nil), prefix...), f.Name)
			if f.Type.IsRow() {
				walk(f.Type, p)
				continue
			}
			out = append(out, p)
		}
	}
	walk(t, nil)
	return out
}

// String renders the type for diagnostics and canonical formatting.
func (t Type) String() string {
	switch t.Kind {
	case PrimitiveKind:
		if t.Nullable {
			return string(t.Primitive) + "?"
		}
		return string(t.Primitive)
	case RowKind:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + " " + f.Type.String()
		}
		return "Row(" + strings.Join(parts, ", ") + ")"
	case CollectionKind:
		return "Collection(" + t.Element().String() + ")"
	}
	return "Unknown"
}
