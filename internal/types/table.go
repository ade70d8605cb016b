package types

// EntityProperty is a conceptual property mapped onto a store column.
type EntityProperty struct {
	Name   string
	Column string
	Type   Type
}

// EntitySet is a conceptual collection of entities stored in one table.
type EntitySet struct {
	Name       string
	Schema     string
	Table      string
	Properties []EntityProperty
	Keys       []string
}

// RowType returns the element row type of the set.
func (s *EntitySet) RowType() Type {
	fields := make([]Field, len(s.Properties))
	for i, p := range s.Properties {
		fields[i] = Field{Name: p.Name, Type: p.Type}
	}
	return RowOf(fields...)
}

// Column returns the store column mapped to a property.
func (s *EntitySet) Column(property string) (string, bool) {
	for _, p := range s.Properties {
		if p.Name == property {
			return p.Column, true
		}
	}
	return "", false
}

// Property looks up a property by name.
func (s *EntitySet) Property(name string) (EntityProperty, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return EntityProperty{}, false
}

// Association relates a dependent set to its principal through a foreign key.
// Nullable is true when any foreign key property admits null, meaning a
// dependent may exist without a principal.
type Association struct {
	Dependent    *EntitySet
	Principal    *EntitySet
	Name         string
	ForeignKey   []string
	PrincipalKey []string
	Nullable     bool
}
