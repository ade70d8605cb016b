package entsql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zoobzio/dbml"

	"github.com/zoobzio/entsql/internal/types"
)

// EntitySet is a conceptual collection stored in one table.
type EntitySet = types.EntitySet

// Association relates a dependent set to its principal.
type Association = types.Association

// Workspace binds a conceptual model to a store schema. It is read-only after
// construction and may be shared by concurrent translations.
type Workspace struct {
	project *dbml.Project
	// Internal indexes for fast validation
	tables map[string]*dbml.Table
	fields map[string]map[string]*dbml.Column // table -> column name -> column
	sets   map[string]*types.EntitySet
	assocs map[string]*types.Association
}

// NewWorkspace validates model against the store schema in project and
// indexes both.
func NewWorkspace(project *dbml.Project, model *Model) (*Workspace, error) {
	if project == nil {
		return nil, ErrInvalidModel.New("project cannot be nil")
	}
	if model == nil {
		return nil, ErrInvalidModel.New("model cannot be nil")
	}

	w := &Workspace{
		project: project,
		tables:  make(map[string]*dbml.Table),
		fields:  make(map[string]map[string]*dbml.Column),
		sets:    make(map[string]*types.EntitySet),
		assocs:  make(map[string]*types.Association),
	}

	for _, table := range project.Tables {
		w.tables[table.Name] = table
		w.fields[table.Name] = make(map[string]*dbml.Column)
		for _, col := range table.Columns {
			w.fields[table.Name][col.Name] = col
		}
	}

	for _, sm := range model.Sets {
		set, err := w.entitySet(sm)
		if err != nil {
			return nil, err
		}
		w.sets[set.Name] = set
	}
	for _, am := range model.Associations {
		assoc, err := w.association(am)
		if err != nil {
			return nil, err
		}
		w.assocs[assoc.Name] = assoc
	}
	return w, nil
}

func (w *Workspace) entitySet(sm SetModel) (*types.EntitySet, error) {
	if !isValidSQLIdentifier(sm.Name) {
		return nil, ErrInvalidModel.New(fmt.Sprintf("invalid entity set name %q", sm.Name))
	}
	if _, dup := w.sets[sm.Name]; dup {
		return nil, ErrInvalidModel.New(fmt.Sprintf("duplicate entity set %q", sm.Name))
	}
	table := sm.Table
	if table == "" {
		table = sm.Name
	}
	if _, ok := w.tables[table]; !ok {
		return nil, ErrInvalidModel.New(fmt.Sprintf("table '%s' not found in schema", table))
	}
	columns := w.fields[table]
	if len(sm.Properties) == 0 {
		return nil, ErrInvalidModel.New(fmt.Sprintf("entity set %q has no properties", sm.Name))
	}

	set := &types.EntitySet{Name: sm.Name, Schema: sm.Schema, Table: table}
	for _, pm := range sm.Properties {
		if _, dup := set.Property(pm.Name); dup || pm.Name == "" {
			return nil, ErrInvalidModel.New(fmt.Sprintf("invalid or duplicate property %q on %s", pm.Name, sm.Name))
		}
		p, ok := types.ParsePrimitive(pm.Type)
		if !ok {
			return nil, ErrInvalidModel.New(fmt.Sprintf("unknown type %q for %s.%s", pm.Type, sm.Name, pm.Name))
		}
		column := pm.Column
		if column == "" {
			column = pm.Name
		}
		if _, ok := columns[column]; !ok {
			return nil, ErrInvalidModel.New(fmt.Sprintf("column '%s' not found in table '%s'", column, table))
		}
		set.Properties = append(set.Properties, types.EntityProperty{
			Name:   pm.Name,
			Column: column,
			Type:   types.PrimitiveOf(p, pm.Nullable),
		})
	}
	for _, k := range sm.Keys {
		p, ok := set.Property(k)
		if !ok {
			return nil, ErrInvalidModel.New(fmt.Sprintf("key %q is not a property of %s", k, sm.Name))
		}
		if p.Type.Nullable {
			return nil, ErrInvalidModel.New(fmt.Sprintf("key %s.%s cannot be nullable", sm.Name, k))
		}
	}
	set.Keys = append([]string(nil), sm.Keys...)
	return set, nil
}

func (w *Workspace) association(am AssociationModel) (*types.Association, error) {
	if am.Name == "" {
		return nil, ErrInvalidModel.New("association name cannot be empty")
	}
	if _, dup := w.assocs[am.Name]; dup {
		return nil, ErrInvalidModel.New(fmt.Sprintf("duplicate association %q", am.Name))
	}
	dep, ok := w.sets[am.Dependent]
	if !ok {
		return nil, assocError(am.Name, ErrUnknownEntitySet.New(am.Dependent))
	}
	prin, ok := w.sets[am.Principal]
	if !ok {
		return nil, assocError(am.Name, ErrUnknownEntitySet.New(am.Principal))
	}
	if len(am.ForeignKey) == 0 || len(am.ForeignKey) != len(am.PrincipalKey) {
		return nil, ErrInvalidModel.New(fmt.Sprintf("association %s: foreign and principal keys must pair up", am.Name))
	}

	assoc := &types.Association{
		Name:         am.Name,
		Dependent:    dep,
		Principal:    prin,
		ForeignKey:   append([]string(nil), am.ForeignKey...),
		PrincipalKey: append([]string(nil), am.PrincipalKey...),
	}
	for i, fk := range am.ForeignKey {
		fp, ok := dep.Property(fk)
		if !ok {
			return nil, assocError(am.Name, ErrUnknownProperty.New(fk, dep.Name))
		}
		pp, ok := prin.Property(am.PrincipalKey[i])
		if !ok {
			return nil, assocError(am.Name, ErrUnknownProperty.New(am.PrincipalKey[i], prin.Name))
		}
		if !types.Compatible(fp.Type, pp.Type) {
			return nil, assocError(am.Name, ErrTypeMismatch.New(fp.Type.String()+" and "+pp.Type.String()))
		}
		assoc.Nullable = assoc.Nullable || fp.Type.Nullable
	}
	return assoc, nil
}

func assocError(name string, cause error) error {
	return ErrInvalidModel.Wrap(cause, "association "+name+": "+cause.Error())
}

// Store returns the store schema the workspace was built from.
func (w *Workspace) Store() *dbml.Project { return w.project }

// Sets returns the entity set names in order.
func (w *Workspace) Sets() []string {
	names := make([]string, 0, len(w.sets))
	for name := range w.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TryEntitySet looks up an entity set by name.
func (w *Workspace) TryEntitySet(name string) (*EntitySet, error) {
	if set, ok := w.sets[name]; ok {
		return set, nil
	}
	return nil, ErrUnknownEntitySet.New(name)
}

// EntitySet looks up an entity set by name.
func (w *Workspace) EntitySet(name string) *EntitySet {
	set, err := w.TryEntitySet(name)
	if err != nil {
		panic(err)
	}
	return set
}

// LookupSet resolves an entity set name case-insensitively, for front-ends
// reading user-typed text.
func (w *Workspace) LookupSet(name string) (*EntitySet, bool) {
	if set, ok := w.sets[name]; ok {
		return set, true
	}
	for n, set := range w.sets {
		if strings.EqualFold(n, name) {
			return set, true
		}
	}
	return nil, false
}

// TryAssociation looks up an association by name.
func (w *Workspace) TryAssociation(name string) (*Association, error) {
	if a, ok := w.assocs[name]; ok {
		return a, nil
	}
	return nil, ErrUnknownAssociation.New(name)
}

// Association looks up an association by name.
func (w *Workspace) Association(name string) *Association {
	a, err := w.TryAssociation(name)
	if err != nil {
		panic(err)
	}
	return a
}

// TryScan reads every entity of the named set.
func (w *Workspace) TryScan(set string) (Expr, error) {
	s, err := w.TryEntitySet(set)
	if err != nil {
		return nil, err
	}
	return types.NewScan(s), nil
}

// Scan reads every entity of the named set.
func (w *Workspace) Scan(set string) Expr {
	e, err := w.TryScan(set)
	if err != nil {
		panic(err)
	}
	return e
}

// TryNavigate left-outer joins the bound dependents in from to the
// principal of the named association, bound as rightVar.
func (w *Workspace) TryNavigate(from Binding, association, rightVar string) (Expr, error) {
	a, err := w.TryAssociation(association)
	if err != nil {
		return nil, err
	}
	return TryNavigate(from, a, rightVar)
}

// Navigate left-outer joins the bound dependents in from to the principal of
// the named association, bound as rightVar.
func (w *Workspace) Navigate(from Binding, association, rightVar string) Expr {
	e, err := w.TryNavigate(from, association, rightVar)
	if err != nil {
		panic(err)
	}
	return e
}
