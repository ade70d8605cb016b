// Package entsql translates entity queries into SQL.
//
// A query is an immutable expression tree over the entity sets of a
// Workspace. Trees are built with the constructors in this package (every
// fallible constructor has a TryX form returning an error and an X form that
// panics) or parsed from text by the parse package.
//
// # Basic Usage
//
//	ws, err := entsql.NewWorkspace(project, model)
//	if err != nil {
//		return err
//	}
//
//	b := entsql.Bind(ws.Scan("Books"), "b")
//	query := entsql.Filter(b, entsql.Eq(entsql.Prop(b.Ref(), "Title"), entsql.Param("title", entsql.String, true)))
//
//	result, err := entsql.NewTranslator(entsql.Options{}).Translate(query, mssql.New())
//	// result.SQL: SELECT [Extent1].[Id] AS [Id], ... WHERE ...
//	// result.Params: [{title String?}]
//
// # Translation
//
// Translate runs a fixed pipeline: null-semantics rewrite, join and apply
// optimization, group composition, paging, and finally rendering by a
// dialect. Options select host-language (the default) or database null
// semantics.
//
// # Dialects
//
// The mssql, postgres, sqlite and mariadb packages implement Renderer. Features a
// dialect cannot express fail with UnsupportedFeatureError; canonical
// functions a dialect does not map are emitted verbatim and fail when the
// statement runs.
package entsql

import "github.com/zoobzio/entsql/internal/types"

// Expr is a node of a query expression tree.
type Expr = types.Expr

// Binding names the current element of a collection.
type Binding = types.Binding

// GroupBinding binds the current row and its whole group.
type GroupBinding = types.GroupBinding

// Column is a named output expression.
type Column = types.Column

// SortKey is one ordering term.
type SortKey = types.SortKey

// When is one branch of a Case.
type When = types.When

// Type is the result type of an expression.
type Type = types.Type

// Primitive names a scalar type.
type Primitive = types.Primitive

// Re-export primitive constants for public API.
const (
	Int32    = types.Int32
	Int64    = types.Int64
	Decimal  = types.Decimal
	Double   = types.Double
	String   = types.String
	Boolean  = types.Boolean
	DateTime = types.DateTime
	Guid     = types.Guid
	Binary   = types.Binary
)

// JoinKind selects how two bindings are combined.
type JoinKind = types.JoinKind

// Re-export join kind constants for public API.
const (
	InnerJoinKind     = types.InnerJoin
	LeftOuterJoinKind = types.LeftOuterJoin
	CrossJoinKind     = types.CrossJoin
	CrossApplyKind    = types.CrossApply
	OuterApplyKind    = types.OuterApply
)

// Direction represents sort direction.
type Direction = types.Direction

// Re-export direction constants for public API.
const (
	ASC  = types.ASC
	DESC = types.DESC
)

// AggregateKind names an aggregate function.
type AggregateKind = types.AggregateKind

// Re-export aggregate constants for public API.
const (
	AggCount          = types.AggCount
	AggMax            = types.AggMax
	AggMin            = types.AggMin
	AggSum            = types.AggSum
	AggAvg            = types.AggAvg
	AggStDev          = types.AggStDev
	AggStDevP         = types.AggStDevP
	AggVar            = types.AggVar
	AggVarP           = types.AggVarP
	AggGroupPartition = types.AggGroupPartition
)

// QueryResult contains the rendered SQL and required parameters.
type QueryResult = types.QueryResult

// Parameter describes a parameter the rendered SQL expects.
type Parameter = types.Parameter

// Renderer defines the interface for SQL dialect-specific rendering.
// Implementations receive trees that have been through every rewrite stage.
type Renderer interface {
	// Render converts a translated tree to a QueryResult with dialect-specific SQL.
	Render(e Expr) (*QueryResult, error)
}

// Format returns the canonical text of e, as used in debug logs.
func Format(e Expr) string { return types.Format(e) }
