// Package testing provides test utilities for entsql: a small bookstore
// workspace, the store DDL and rows behind it, and SQL assertions.
package testing

import (
	"strings"
	"testing"

	"github.com/zoobzio/dbml"
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/zoobzio/entsql"
)

// bookstoreModel maps Authors, Books and Publishers onto snake_case tables.
// Books.AuthorId is optional; Books.PublisherId is required.
const bookstoreModel = `
sets:
  - name: Authors
    table: authors
    keys: [Id]
    properties:
      - {name: Id, type: Int32, column: id}
      - {name: Name, type: String, column: name}
      - {name: Country, type: String, nullable: true, column: country}
  - name: Books
    table: books
    keys: [Id]
    properties:
      - {name: Id, type: Int32, column: id}
      - {name: Title, type: String, nullable: true, column: title}
      - {name: AuthorId, type: Int32, nullable: true, column: author_id}
      - {name: PublisherId, type: Int32, column: publisher_id}
      - {name: Price, type: Decimal, nullable: true, column: price}
      - {name: Year, type: Int32, column: year}
  - name: Publishers
    table: publishers
    keys: [Id]
    properties:
      - {name: Id, type: Int32, column: id}
      - {name: Name, type: String, nullable: true, column: name}
associations:
  - name: BookAuthor
    dependent: Books
    principal: Authors
    foreignKey: [AuthorId]
    principalKey: [Id]
  - name: BookPublisher
    dependent: Books
    principal: Publishers
    foreignKey: [PublisherId]
    principalKey: [Id]
`

// StoreSchema returns the DBML project for the bookstore tables.
func StoreSchema() *dbml.Project {
	project := dbml.NewProject("bookstore")

	// Authors table
	authors := dbml.NewTable("authors")
	authors.AddColumn(dbml.NewColumn("id", "int"))
	authors.AddColumn(dbml.NewColumn("name", "varchar"))
	authors.AddColumn(dbml.NewColumn("country", "varchar"))
	project.AddTable(authors)

	// Books table
	books := dbml.NewTable("books")
	books.AddColumn(dbml.NewColumn("id", "int"))
	books.AddColumn(dbml.NewColumn("title", "varchar"))
	books.AddColumn(dbml.NewColumn("author_id", "int"))
	books.AddColumn(dbml.NewColumn("publisher_id", "int"))
	books.AddColumn(dbml.NewColumn("price", "decimal"))
	books.AddColumn(dbml.NewColumn("year", "int"))
	project.AddTable(books)

	// Publishers table
	publishers := dbml.NewTable("publishers")
	publishers.AddColumn(dbml.NewColumn("id", "int"))
	publishers.AddColumn(dbml.NewColumn("name", "varchar"))
	project.AddTable(publishers)

	return project
}

// BookstoreModel returns the bookstore model with every set placed in
// schema. An empty schema leaves tables unqualified.
func BookstoreModel(schema string) *entsql.Model {
	model, err := entsql.ParseModel([]byte(bookstoreModel))
	if err != nil {
		panic(err)
	}
	for i := range model.Sets {
		model.Sets[i].Schema = schema
	}
	return model
}

// TestWorkspace creates the bookstore workspace with tables in schema dbo.
func TestWorkspace(t *testing.T) *entsql.Workspace {
	t.Helper()
	return TestWorkspaceIn(t, "dbo")
}

// TestWorkspaceIn creates the bookstore workspace with tables in schema.
func TestWorkspaceIn(t testing.TB, schema string) *entsql.Workspace {
	t.Helper()
	ws, err := entsql.NewWorkspace(StoreSchema(), BookstoreModel(schema))
	if err != nil {
		t.Fatalf("Failed to create test workspace: %v", err)
	}
	return ws
}

// BookstoreDDL creates the bookstore tables. The statements are portable
// across SQL Server, PostgreSQL, MariaDB and SQLite.
var BookstoreDDL = []string{
	`CREATE TABLE authors (id INT NOT NULL PRIMARY KEY, name VARCHAR(100) NOT NULL, country VARCHAR(100) NULL)`,
	`CREATE TABLE publishers (id INT NOT NULL PRIMARY KEY, name VARCHAR(100) NULL)`,
	`CREATE TABLE books (id INT NOT NULL PRIMARY KEY, title VARCHAR(100) NULL, author_id INT NULL, ` +
		`publisher_id INT NOT NULL, price DECIMAL(18, 2) NULL, year INT NOT NULL)`,
}

// BookstoreRows fills the bookstore tables. Two books have no author, two
// authors have no country and one publisher has no name.
var BookstoreRows = []string{
	`INSERT INTO authors (id, name, country) VALUES (1, 'Ann', 'UK'), (2, 'Bob', NULL), (3, 'Cid', NULL)`,
	`INSERT INTO publishers (id, name) VALUES (1, 'North'), (2, NULL)`,
	`INSERT INTO books (id, title, author_id, publisher_id, price, year) VALUES ` +
		`(1, 'Alpha', 1, 1, 10.00, 2001), (2, 'Beta', 1, 2, NULL, 2003), (3, NULL, 2, 1, 15.50, 2001), ` +
		`(4, 'Delta', NULL, 2, 20.00, 2010), (5, 'Echo', NULL, 1, 5.00, 2003)`,
}

// AssertSQL compares expected and actual SQL, reporting detailed differences.
func AssertSQL(t testing.TB, expected, actual string) {
	t.Helper()
	if expected != actual {
		t.Errorf("SQL mismatch:\nExpected: %s\nActual:   %s", expected, actual)
	}
}

// AssertParams checks that the required params match expected values in
// order.
func AssertParams(t testing.TB, expected, actual []string) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("Param count mismatch: expected %d, got %d\nExpected: %v\nActual: %v",
			len(expected), len(actual), expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Param %d mismatch: expected %s, got %s\nExpected: %v\nActual: %v",
				i, expected[i], actual[i], expected, actual)
		}
	}
}

// AssertContainsParam checks that a specific param is in the list.
func AssertContainsParam(t testing.TB, params []string, param string) {
	t.Helper()
	for _, p := range params {
		if p == param {
			return
		}
	}
	t.Errorf("Expected param %q not found in %v", param, params)
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertErrorKind fails the test unless err is of kind.
func AssertErrorKind(t testing.TB, err error, kind *errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %q error but got nil", kind.Message)
	}
	if !kind.Is(err) {
		t.Errorf("Expected %q error, got: %v", kind.Message, err)
	}
}

// AssertErrorContains checks that error message contains substring.
func AssertErrorContains(t testing.TB, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error containing %q but got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("Expected error containing %q, got: %v", substr, err)
	}
}

// AssertPanics verifies that a function panics.
func AssertPanics(t testing.TB, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic but function completed normally")
		}
	}()
	fn()
}
