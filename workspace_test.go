package entsql_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/dbml"

	"github.com/zoobzio/entsql"
	enttest "github.com/zoobzio/entsql/testing"
)

func store() *dbml.Project {
	project := dbml.NewProject("test_db")

	users := dbml.NewTable("users")
	users.AddColumn(dbml.NewColumn("id", "bigint"))
	users.AddColumn(dbml.NewColumn("username", "varchar"))
	users.AddColumn(dbml.NewColumn("manager_id", "bigint"))
	project.AddTable(users)

	return project
}

func usersModel(t *testing.T, doc string) *entsql.Model {
	t.Helper()
	m, err := entsql.LoadModel(strings.NewReader(doc))
	require.NoError(t, err)
	return m
}

const usersDoc = `
sets:
  - name: Users
    table: users
    keys: [Id]
    properties:
      - {name: Id, type: Int64, column: id}
      - {name: Username, type: String, column: username}
      - {name: ManagerId, type: Int64, nullable: true, column: manager_id}
associations:
  - name: UserManager
    dependent: Users
    principal: Users
    foreignKey: [ManagerId]
    principalKey: [Id]
`

func TestNewWorkspace(t *testing.T) {
	ws, err := entsql.NewWorkspace(store(), usersModel(t, usersDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"Users"}, ws.Sets())
	set := ws.EntitySet("Users")
	assert.Equal(t, "users", set.Table)
	col, ok := set.Column("ManagerId")
	assert.True(t, ok)
	assert.Equal(t, "manager_id", col)

	assoc := ws.Association("UserManager")
	assert.True(t, assoc.Nullable, "nullable foreign key makes the association optional")
	assert.Same(t, set, assoc.Dependent)
	assert.Same(t, set, assoc.Principal)
}

func TestNewWorkspace_NilInputs(t *testing.T) {
	_, err := entsql.NewWorkspace(nil, &entsql.Model{})
	assert.True(t, entsql.ErrInvalidModel.Is(err))

	_, err = entsql.NewWorkspace(store(), nil)
	assert.True(t, entsql.ErrInvalidModel.Is(err))
}

func TestNewWorkspace_ColumnDefaultsToName(t *testing.T) {
	project := dbml.NewProject("test_db")
	tags := dbml.NewTable("Tags")
	tags.AddColumn(dbml.NewColumn("Id", "int"))
	project.AddTable(tags)

	ws, err := entsql.NewWorkspace(project, &entsql.Model{Sets: []entsql.SetModel{{
		Name:       "Tags",
		Properties: []entsql.PropertyModel{{Name: "Id", Type: "int32"}},
	}}})
	require.NoError(t, err)
	set := ws.EntitySet("Tags")
	assert.Equal(t, "Tags", set.Table)
	assert.Equal(t, "Id", set.Properties[0].Column)
}

func TestNewWorkspace_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "unknown table",
			doc: `
sets:
  - {name: Users, table: people, properties: [{name: Id, type: Int64, column: id}]}`,
			wantErr: "table 'people' not found",
		},
		{
			name: "unknown column",
			doc: `
sets:
  - {name: Users, table: users, properties: [{name: Email, type: String, column: email}]}`,
			wantErr: "column 'email' not found",
		},
		{
			name: "unknown type",
			doc: `
sets:
  - {name: Users, table: users, properties: [{name: Id, type: UInt128, column: id}]}`,
			wantErr: "unknown type",
		},
		{
			name: "nullable key",
			doc: `
sets:
  - name: Users
    table: users
    keys: [ManagerId]
    properties: [{name: ManagerId, type: Int64, nullable: true, column: manager_id}]`,
			wantErr: "cannot be nullable",
		},
		{
			name: "duplicate set",
			doc: `
sets:
  - {name: Users, table: users, properties: [{name: Id, type: Int64, column: id}]}
  - {name: Users, table: users, properties: [{name: Id, type: Int64, column: id}]}`,
			wantErr: "duplicate entity set",
		},
		{
			name: "association to unknown set",
			doc: `
sets:
  - {name: Users, table: users, properties: [{name: Id, type: Int64, column: id}]}
associations:
  - {name: A, dependent: Users, principal: Groups, foreignKey: [Id], principalKey: [Id]}`,
			wantErr: `unknown entity set "Groups"`,
		},
		{
			name: "association key type mismatch",
			doc: `
sets:
  - name: Users
    table: users
    properties:
      - {name: Id, type: Int64, column: id}
      - {name: Username, type: String, column: username}
associations:
  - {name: A, dependent: Users, principal: Users, foreignKey: [Username], principalKey: [Id]}`,
			wantErr: "type mismatch",
		},
		{
			name: "unpaired keys",
			doc: `
sets:
  - {name: Users, table: users, properties: [{name: Id, type: Int64, column: id}]}
associations:
  - {name: A, dependent: Users, principal: Users, foreignKey: [Id], principalKey: []}`,
			wantErr: "must pair up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entsql.NewWorkspace(store(), usersModel(t, tt.doc))
			require.Error(t, err)
			assert.True(t, entsql.ErrInvalidModel.Is(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseModel_Malformed(t *testing.T) {
	_, err := entsql.ParseModel([]byte("sets: [name: ]]"))
	require.Error(t, err)
	assert.True(t, entsql.ErrInvalidModel.Is(err))
}

func TestWorkspace_Lookups(t *testing.T) {
	ws := enttest.TestWorkspace(t)

	_, err := ws.TryEntitySet("Shelves")
	assert.True(t, entsql.ErrUnknownEntitySet.Is(err))

	_, err = ws.TryAssociation("BookShelf")
	assert.True(t, entsql.ErrUnknownAssociation.Is(err))

	_, err = ws.TryScan("Shelves")
	assert.True(t, entsql.ErrUnknownEntitySet.Is(err))

	set, ok := ws.LookupSet("books")
	require.True(t, ok)
	assert.Equal(t, "Books", set.Name)

	_, ok = ws.LookupSet("shelves")
	assert.False(t, ok)

	assert.Panics(t, func() { ws.Scan("Shelves") })
	assert.Panics(t, func() { ws.Association("BookShelf") })
}

func TestWorkspace_Navigate(t *testing.T) {
	ws := enttest.TestWorkspace(t)
	b := entsql.Bind(ws.Scan("Books"), "b")

	nav, err := ws.TryNavigate(b, "BookAuthor", "a")
	require.NoError(t, err)
	assert.Equal(t,
		"Join[LEFT OUTER JOIN](b: Scan(Books), a: Scan(Authors), (b.AuthorId = a.Id), rel=BookAuthor)",
		entsql.Format(nav))

	// The principal side becomes nullable.
	row := nav.Type().Element()
	a, ok := row.Field("a")
	require.True(t, ok)
	name, _ := a.Type.Field("Name")
	assert.True(t, name.Type.Nullable)

	_, err = ws.TryNavigate(b, "Nope", "a")
	assert.True(t, entsql.ErrUnknownAssociation.Is(err))

	p := entsql.Bind(ws.Scan("Publishers"), "p")
	_, err = ws.TryNavigate(p, "BookAuthor", "a")
	assert.True(t, entsql.ErrUnknownProperty.Is(err), "publishers have no AuthorId")
}
