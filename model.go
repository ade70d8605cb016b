package entsql

import (
	"io"

	"gopkg.in/yaml.v3"
)

// Model is the conceptual model and its mapping onto store tables.
//
//	sets:
//	  - name: Books
//	    schema: dbo
//	    table: books
//	    keys: [Id]
//	    properties:
//	      - {name: Id, type: Int32, column: id}
//	      - {name: Title, type: String, nullable: true, column: title}
//	associations:
//	  - name: BookAuthor
//	    dependent: Books
//	    principal: Authors
//	    foreignKey: [AuthorId]
//	    principalKey: [Id]
type Model struct {
	Sets         []SetModel         `yaml:"sets"`
	Associations []AssociationModel `yaml:"associations"`
}

// SetModel maps an entity set onto one table. Table defaults to Name.
type SetModel struct {
	Name       string          `yaml:"name"`
	Schema     string          `yaml:"schema"`
	Table      string          `yaml:"table"`
	Keys       []string        `yaml:"keys"`
	Properties []PropertyModel `yaml:"properties"`
}

// PropertyModel maps a property onto a column. Column defaults to Name.
type PropertyModel struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Column   string `yaml:"column"`
	Nullable bool   `yaml:"nullable"`
}

// AssociationModel relates a dependent set to a principal set.
type AssociationModel struct {
	Name         string   `yaml:"name"`
	Dependent    string   `yaml:"dependent"`
	Principal    string   `yaml:"principal"`
	ForeignKey   []string `yaml:"foreignKey"`
	PrincipalKey []string `yaml:"principalKey"`
}

// ParseModel decodes a YAML model.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ErrInvalidModel.Wrap(err, err.Error())
	}
	return &m, nil
}

// LoadModel reads a YAML model from r.
func LoadModel(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseModel(data)
}
