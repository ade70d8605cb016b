package mssql

import (
	"database/sql"
	"math/big"
	"testing"
	"time"

	"github.com/zoobzio/entsql/internal/fixture"
	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/sqlgen"
	"github.com/zoobzio/entsql/internal/types"
)

const booksFrom = " FROM [dbo].[Books] AS [Extent1]"

func renderSQL(t *testing.T, e types.Expr) *types.QueryResult {
	t.Helper()
	result, err := New().Render(e)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return result
}

func books() types.Binding {
	return types.Binding{Input: types.NewScan(fixture.Books()), Var: "b"}
}

func authors() types.Binding {
	return types.Binding{Input: types.NewScan(fixture.Authors()), Var: "a"}
}

func prop(b types.Binding, name string) types.Expr {
	return types.NewProperty(b.Ref(), name)
}

func str(s string) types.Expr {
	return types.NewConstant(s, types.PrimitiveOf(types.String, false))
}

func int32c(v int) types.Expr {
	return types.NewConstant(v, types.PrimitiveOf(types.Int32, false))
}

// column projects a single expression over Books as column C.
func column(e func(b types.Binding) types.Expr) types.Expr {
	b := books()
	return types.NewProject(b, []types.Column{{Name: "C", Expr: e(b)}})
}

func TestNew(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("New() returned nil")
	}
	if r.Name() != "mssql" {
		t.Errorf("Name() = %q, want mssql", r.Name())
	}
}

func TestQuoteIdentifier(t *testing.T) {
	r := New()
	tests := map[string]string{
		"users":    "[users]",
		"odd]name": "[odd]]name]",
		"Order":    "[Order]",
	}
	for in, want := range tests {
		if got := r.QuoteIdentifier(in); got != want {
			t.Errorf("QuoteIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLiteral(t *testing.T) {
	r := New()
	tests := []struct {
		name  string
		value any
		p     types.Primitive
		want  string
	}{
		{"unicode string", "O'Brien", types.String, "N'O''Brien'"},
		{"true", true, types.Boolean, "CAST(1 AS bit)"},
		{"false", false, types.Boolean, "CAST(0 AS bit)"},
		{"int", 42, types.Int32, "42"},
		{"bigint", int64(1) << 40, types.Int64, "1099511627776"},
		{"decimal", big.NewRat(31, 2), types.Decimal, "15.5"},
		{"double", 0.25, types.Double, "0.25"},
		{"datetime", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), types.DateTime, "CAST('2024-01-02 03:04:05.0000000' AS datetime2)"},
		{"guid", "6f9619ff-8b86-d011-b42d-00cf4fc964ff", types.Guid, "CAST('6f9619ff-8b86-d011-b42d-00cf4fc964ff' AS uniqueidentifier)"},
		{"binary", []byte{0xde, 0xad}, types.Binary, "0xdead"},
		{"null", nil, types.Decimal, "CAST(NULL AS decimal(18, 2))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Literal(tt.value, types.PrimitiveOf(tt.p, false))
			if err != nil {
				t.Fatalf("Literal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Literal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLiteral_Rejects(t *testing.T) {
	r := New()
	if _, err := r.Literal("abc", types.PrimitiveOf(types.Int32, false)); !sqlgen.ErrLiteral.Is(err) {
		t.Errorf("expected ErrLiteral for a non-numeric Int32, got %v", err)
	}
	if _, err := r.Literal(3, types.PrimitiveOf(types.Boolean, false)); !sqlgen.ErrLiteral.Is(err) {
		t.Errorf("expected ErrLiteral for an int Boolean, got %v", err)
	}
}

func TestRender_Scan(t *testing.T) {
	result := renderSQL(t, types.NewScan(fixture.Authors()))

	expected := "SELECT [Extent1].[Id] AS [Id], [Extent1].[Name] AS [Name], [Extent1].[Country] AS [Country] FROM [dbo].[Authors] AS [Extent1]"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_FilterWithParam(t *testing.T) {
	b := books()
	filter := types.NewFilter(b, types.NewCompare(types.EQ, prop(b, "Year"),
		types.NewParam("year", types.PrimitiveOf(types.Int32, false))))
	f := types.Binding{Input: filter, Var: "f"}
	q := types.NewProject(f, []types.Column{{Name: "Title", Expr: prop(f, "Title")}})

	result := renderSQL(t, q)

	expected := "SELECT [Extent1].[Title] AS [Title]" + booksFrom + " WHERE [Extent1].[Year] = @year"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
	if len(result.RequiredParams) != 1 || result.RequiredParams[0] != "year" {
		t.Errorf("RequiredParams = %v, want [year]", result.RequiredParams)
	}
	if result.Positional {
		t.Error("SQL Server placeholders are named")
	}

	args, err := result.Args(map[string]any{"year": 2001})
	if err != nil {
		t.Fatalf("Args() error = %v", err)
	}
	named, ok := args[0].(sql.NamedArg)
	if !ok || named.Name != "year" || named.Value != 2001 {
		t.Errorf("Args() = %#v, want a named year argument", args)
	}
	if _, err := result.Args(nil); !types.ErrMissingParameter.Is(err) {
		t.Errorf("expected ErrMissingParameter, got %v", err)
	}
}

func TestRender_CanonicalFunctions(t *testing.T) {
	now := types.NewFunction("Edm.CurrentDateTime", types.PrimitiveOf(types.DateTime, false), nil)
	nstr := types.PrimitiveOf(types.String, true)
	nint := types.PrimitiveOf(types.Int32, true)

	tests := []struct {
		name string
		expr func(b types.Binding) types.Expr
		want string
	}{
		{"upper", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.ToUpper", nstr, []types.Expr{prop(b, "Title")})
		}, "UPPER([Extent1].[Title])"},
		{"trim", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.Trim", nstr, []types.Expr{prop(b, "Title")})
		}, "LTRIM(RTRIM([Extent1].[Title]))"},
		{"length", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.Length", nint, []types.Expr{prop(b, "Title")})
		}, "LEN([Extent1].[Title])"},
		{"index of swaps arguments", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.IndexOf", nint, []types.Expr{prop(b, "Title"), str("a")})
		}, "CHARINDEX(N'a', [Extent1].[Title])"},
		{"concat", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.Concat", nstr, []types.Expr{prop(b, "Title"), str("!")})
		}, "([Extent1].[Title] + N'!')"},
		{"round to integer", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.Round", types.PrimitiveOf(types.Decimal, true), []types.Expr{prop(b, "Price")})
		}, "ROUND([Extent1].[Price], 0)"},
		{"hour", func(types.Binding) types.Expr {
			return types.NewFunction("Edm.Hour", types.PrimitiveOf(types.Int32, false), []types.Expr{now})
		}, "DATEPART(hour, SYSDATETIME())"},
		{"add days", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.AddDays", types.PrimitiveOf(types.DateTime, false), []types.Expr{now, prop(b, "Year")})
		}, "DATEADD(day, [Extent1].[Year], SYSDATETIME())"},
		{"diff days", func(types.Binding) types.Expr {
			return types.NewFunction("Edm.DiffDays", types.PrimitiveOf(types.Int32, false), []types.Expr{now, now})
		}, "DATEDIFF(day, SYSDATETIME(), SYSDATETIME())"},
		{"store function", func(b types.Binding) types.Expr {
			return types.NewFunction("dbo.Soundex", nstr, []types.Expr{prop(b, "Title")})
		}, "dbo.Soundex([Extent1].[Title])"},
		{"arithmetic nesting", func(b types.Binding) types.Expr {
			sum := types.NewArithmetic(types.Plus, prop(b, "Year"), int32c(1))
			return types.NewArithmetic(types.Multiply, sum, int32c(2))
		}, "([Extent1].[Year] + 1) * 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := renderSQL(t, column(tt.expr))
			expected := "SELECT " + tt.want + " AS [C]" + booksFrom
			if result.SQL != expected {
				t.Errorf("SQL = %q, want %q", result.SQL, expected)
			}
		})
	}
}

func TestRender_PredicateAsValue(t *testing.T) {
	result := renderSQL(t, column(func(b types.Binding) types.Expr {
		return types.NewIsNull(prop(b, "Title"))
	}))
	expected := "SELECT CASE WHEN [Extent1].[Title] IS NULL THEN CAST(1 AS bit) ELSE CAST(0 AS bit) END AS [C]" + booksFrom
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}

	// A nullable comparison keeps its unknown result.
	result = renderSQL(t, column(func(b types.Binding) types.Expr {
		return types.NewCompare(types.EQ, prop(b, "Title"), str("x"))
	}))
	expected = "SELECT CASE WHEN [Extent1].[Title] = N'x' THEN CAST(1 AS bit) " +
		"WHEN NOT ([Extent1].[Title] = N'x') THEN CAST(0 AS bit) END AS [C]" + booksFrom
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_BooleanValueAsPredicate(t *testing.T) {
	values := types.NewValues([]string{"Flag"}, [][]types.Expr{
		{types.NewConstant(true, types.PrimitiveOf(types.Boolean, false))},
	})
	v := types.Binding{Input: values, Var: "v"}
	result := renderSQL(t, types.NewFilter(v, prop(v, "Flag")))

	expected := "SELECT [Values1].[Flag] AS [Flag] FROM (SELECT CAST(1 AS bit) AS [Flag]) AS [Values1] WHERE [Values1].[Flag] = 1"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_ValuesTypedNulls(t *testing.T) {
	values := types.NewValues([]string{"A", "B"}, [][]types.Expr{
		{int32c(1), types.NewNull(types.PrimitiveOf(types.String, true))},
		{int32c(2), str("x")},
	})
	result := renderSQL(t, values)

	expected := "SELECT 1 AS [A], CAST(NULL AS nvarchar(max)) AS [B] UNION ALL SELECT 2 AS [A], N'x' AS [B]"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_Apply(t *testing.T) {
	for _, kind := range []types.JoinKind{types.CrossApply, types.OuterApply} {
		t.Run(string(kind), func(t *testing.T) {
			b, a := books(), authors()
			related := types.NewFilter(a, types.NewCompare(types.EQ, prop(a, "Id"), prop(b, "AuthorId")))
			j := types.NewJoin(kind, b, types.Binding{Input: related, Var: "x"}, nil, nil)

			result := renderSQL(t, j)

			expected := "SELECT [Extent1].[Id] AS [Id], [Extent1].[Title] AS [Title], [Extent1].[AuthorId] AS [AuthorId], " +
				"[Extent1].[PublisherId] AS [PublisherId], [Extent1].[Price] AS [Price], [Extent1].[Year] AS [Year], " +
				"[Filter1].[Id] AS [Id1], [Filter1].[Name] AS [Name], [Filter1].[Country] AS [Country]" + booksFrom +
				" " + string(kind) + " (SELECT [Extent2].[Id] AS [Id], [Extent2].[Name] AS [Name], [Extent2].[Country] AS [Country] " +
				"FROM [dbo].[Authors] AS [Extent2] WHERE [Extent2].[Id] = [Extent1].[AuthorId]) AS [Filter1]"
			if result.SQL != expected {
				t.Errorf("SQL = %q, want %q", result.SQL, expected)
			}
		})
	}
}

func TestRender_SetOperations(t *testing.T) {
	names := func(set *types.EntitySet, v string) types.Expr {
		b := types.Binding{Input: types.NewScan(set), Var: v}
		return types.NewProject(b, []types.Column{{Name: "Name", Expr: prop(b, "Name")}})
	}
	for _, op := range []types.SetOpKind{types.UnionAll, types.Union, types.Intersect, types.Except} {
		t.Run(string(op), func(t *testing.T) {
			result := renderSQL(t, types.NewSetOp(op, names(fixture.Authors(), "a"), names(fixture.Publishers(), "p")))
			expected := "SELECT [Extent1].[Name] AS [Name] FROM [dbo].[Authors] AS [Extent1] " + string(op) +
				" SELECT [Extent2].[Name] AS [Name] FROM [dbo].[Publishers] AS [Extent2]"
			if result.SQL != expected {
				t.Errorf("SQL = %q, want %q", result.SQL, expected)
			}
		})
	}
}

func TestRender_Distinct(t *testing.T) {
	a := authors()
	q := types.NewDistinct(types.NewProject(a, []types.Column{{Name: "Country", Expr: prop(a, "Country")}}))
	result := renderSQL(t, q)

	expected := "SELECT DISTINCT [Extent1].[Country] AS [Country] FROM [dbo].[Authors] AS [Extent1]"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_Exists(t *testing.T) {
	a, b := authors(), books()
	written := types.NewFilter(b, types.NewCompare(types.EQ, prop(b, "AuthorId"), prop(a, "Id")))
	result := renderSQL(t, types.NewFilter(a, types.NewExists(written)))

	expected := "SELECT [Extent1].[Id] AS [Id], [Extent1].[Name] AS [Name], [Extent1].[Country] AS [Country] " +
		"FROM [dbo].[Authors] AS [Extent1] WHERE EXISTS (SELECT 1 AS [C1] FROM [dbo].[Books] AS [Extent2] " +
		"WHERE [Extent2].[AuthorId] = [Extent1].[Id])"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_StatisticalAggregate(t *testing.T) {
	in := types.GroupBinding{Input: types.NewScan(fixture.Books()), Var: "b", GroupVar: "g"}
	row := types.NewVarRef("b", in.Element())
	g := types.NewVarRef("g", in.Element())
	gb := types.NewGroupBy(in,
		[]types.Column{{Name: "AuthorId", Expr: types.NewProperty(row, "AuthorId")}},
		[]types.Column{
			{Name: "S", Expr: types.NewAggregate(types.AggStDevP, types.NewProperty(g, "Price"), false)},
			{Name: "N", Expr: types.NewAggregate(types.AggCount, types.NewProperty(g, "Title"), true)},
		})

	result := renderSQL(t, gb)

	expected := "SELECT [Extent1].[AuthorId] AS [AuthorId], STDEVP([Extent1].[Price]) AS [S], " +
		"COUNT(DISTINCT [Extent1].[Title]) AS [N]" + booksFrom + " GROUP BY [Extent1].[AuthorId]"
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_RejectsUntranslatedNodes(t *testing.T) {
	scan := types.NewScan(fixture.Books())

	_, err := New().Render(types.NewSkip(scan, int32c(1)))
	if !sqlgen.ErrUnrenderable.Is(err) {
		t.Errorf("expected ErrUnrenderable for Skip, got %v", err)
	}

	_, err = New().Render(int32c(1))
	if !sqlgen.ErrUnrenderable.Is(err) {
		t.Errorf("expected ErrUnrenderable for a scalar root, got %v", err)
	}

	_, err = New().Render(column(func(b types.Binding) types.Expr {
		return types.NewAggregate(types.AggGroupPartition, b.Ref(), false)
	}))
	if !sqlgen.ErrUnrenderable.Is(err) {
		t.Errorf("expected ErrUnrenderable for an uncomposed partition, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()

	if caps.Limit != render.LimitTop {
		t.Errorf("Limit = %v, want LimitTop", caps.Limit)
	}
	if caps.Apply != render.ApplyKeyword {
		t.Errorf("Apply = %v, want ApplyKeyword", caps.Apply)
	}
	if !caps.RowNumber {
		t.Error("RowNumber should be true")
	}
	if caps.BooleanColumns {
		t.Error("BooleanColumns should be false")
	}
	if caps.PositionalParams {
		t.Error("PositionalParams should be false")
	}
}
