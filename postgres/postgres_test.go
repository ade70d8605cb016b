package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/entsql/internal/fixture"
	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/types"
)

const booksFrom = ` FROM "dbo"."Books" AS "Extent1"`

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

func prop(b types.Binding, name string) types.Expr {
	return types.NewProperty(b.Ref(), name)
}

func int32c(v int) types.Expr {
	return types.NewConstant(v, types.PrimitiveOf(types.Int32, false))
}

func column(e func(b types.Binding) types.Expr) types.Expr {
	b := books()
	return types.NewProject(b, []types.Column{{Name: "C", Expr: e(b)}})
}

// bookColumns lists the Books columns read through alias.
func bookColumns(alias string) string {
	names := []string{"Id", "Title", "AuthorId", "PublisherId", "Price", "Year"}
	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = `"` + alias + `"."` + n + `" AS "` + n + `"`
	}
	return strings.Join(cols, ", ")
}

func TestQuoteIdentifier(t *testing.T) {
	r := New()
	if got := r.QuoteIdentifier(`odd"name`); got != `"odd""name"` {
		t.Errorf("QuoteIdentifier() = %q", got)
	}
	if got := r.QuoteIdentifier("user"); got != `"user"` {
		t.Errorf("QuoteIdentifier() = %q", got)
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
		{"string", "it's", types.String, "'it''s'"},
		{"true", true, types.Boolean, "TRUE"},
		{"timestamp", time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC), types.DateTime, "TIMESTAMP '2024-01-02 03:04:05.5'"},
		{"uuid", "6f9619ff-8b86-d011-b42d-00cf4fc964ff", types.Guid, "CAST('6f9619ff-8b86-d011-b42d-00cf4fc964ff' AS uuid)"},
		{"bytea", []byte{0x01, 0xff}, types.Binary, `CAST('\x01ff' AS bytea)`},
		{"null integer", nil, types.Int32, "CAST(NULL AS integer)"},
		{"null double", nil, types.Double, "CAST(NULL AS double precision)"},
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

func TestRender_PositionalParams(t *testing.T) {
	b := books()
	from := types.NewParam("from", types.PrimitiveOf(types.Int32, false))
	to := types.NewParam("to", types.PrimitiveOf(types.Int32, false))
	pred := types.NewLogical(types.AND,
		types.NewCompare(types.GE, prop(b, "Year"), from),
		types.NewLogical(types.OR,
			types.NewCompare(types.LE, prop(b, "Year"), to),
			types.NewCompare(types.EQ, prop(b, "Id"), from), false),
		false)

	result := renderSQL(t, types.NewFilter(b, pred))

	expected := "SELECT " + bookColumns("Extent1") + booksFrom +
		` WHERE ("Extent1"."Year" >= $1) AND (("Extent1"."Year" <= $2) OR ("Extent1"."Id" = $1))`
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
	if !result.Positional {
		t.Fatal("PostgreSQL placeholders are positional")
	}
	if len(result.RequiredParams) != 2 || result.RequiredParams[0] != "from" || result.RequiredParams[1] != "to" {
		t.Errorf("RequiredParams = %v, want [from to]", result.RequiredParams)
	}

	args, err := result.Args(map[string]any{"to": 2010, "from": 2001})
	if err != nil {
		t.Fatalf("Args() error = %v", err)
	}
	if len(args) != 2 || args[0] != 2001 || args[1] != 2010 {
		t.Errorf("Args() = %v, want [2001 2010]", args)
	}
}

func TestRender_Limit(t *testing.T) {
	b := books()
	page := types.NewPage(b, []types.SortKey{{Expr: prop(b, "Id"), Direction: types.ASC}}, nil, int32c(5), "")
	result := renderSQL(t, page)

	expected := "SELECT " + bookColumns("Extent1") + booksFrom + ` ORDER BY "Extent1"."Id" ASC LIMIT 5`
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_SkipUsesRowNumber(t *testing.T) {
	b := books()
	page := types.NewPage(b, []types.SortKey{{Expr: prop(b, "Id"), Direction: types.ASC}}, int32c(10), int32c(5), "row_number")
	result := renderSQL(t, page)

	inner := "SELECT " + bookColumns("Extent1") + `, row_number() OVER (ORDER BY "Extent1"."Id" ASC) AS "row_number"` + booksFrom
	expected := "SELECT " + bookColumns("Skip1") + " FROM (" + inner + `) AS "Skip1"` +
		` WHERE "Skip1"."row_number" > 10 ORDER BY "Skip1"."row_number" ASC LIMIT 5`
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_Lateral(t *testing.T) {
	tests := []struct {
		kind types.JoinKind
		join string
	}{
		{types.CrossApply, "CROSS JOIN LATERAL (%s) AS \"Filter1\""},
		{types.OuterApply, "LEFT JOIN LATERAL (%s) AS \"Filter1\" ON 1 = 1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			b := books()
			a := types.Binding{Input: types.NewScan(fixture.Authors()), Var: "a"}
			related := types.NewFilter(a, types.NewCompare(types.EQ, prop(a, "Id"), prop(b, "AuthorId")))
			result := renderSQL(t, types.NewJoin(tt.kind, b, types.Binding{Input: related, Var: "x"}, nil, nil))

			inner := `SELECT "Extent2"."Id" AS "Id", "Extent2"."Name" AS "Name", "Extent2"."Country" AS "Country" ` +
				`FROM "dbo"."Authors" AS "Extent2" WHERE "Extent2"."Id" = "Extent1"."AuthorId"`
			want := strings.Replace(tt.join, "%s", inner, 1)
			if !strings.HasSuffix(result.SQL, booksFrom+" "+want) {
				t.Errorf("SQL = %q, want suffix %q", result.SQL, want)
			}
			if !strings.Contains(result.SQL, `"Filter1"."Id" AS "Id1"`) {
				t.Errorf("SQL = %q, want the right Id renamed", result.SQL)
			}
		})
	}
}

func TestRender_BooleanValueAsPredicate(t *testing.T) {
	values := types.NewValues([]string{"Flag"}, [][]types.Expr{
		{types.NewConstant(true, types.PrimitiveOf(types.Boolean, false))},
	})
	v := types.Binding{Input: values, Var: "v"}
	result := renderSQL(t, types.NewFilter(v, prop(v, "Flag")))

	expected := `SELECT "Values1"."Flag" AS "Flag" FROM (SELECT TRUE AS "Flag") AS "Values1" WHERE "Values1"."Flag" = TRUE`
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_PredicateAsValue(t *testing.T) {
	result := renderSQL(t, column(func(b types.Binding) types.Expr {
		return types.NewIsNull(prop(b, "Title"))
	}))
	expected := `SELECT CASE WHEN "Extent1"."Title" IS NULL THEN TRUE ELSE FALSE END AS "C"` + booksFrom
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_ValuesTypedNulls(t *testing.T) {
	values := types.NewValues([]string{"N"}, [][]types.Expr{
		{types.NewNull(types.PrimitiveOf(types.Int32, true))},
		{int32c(4)},
	})
	result := renderSQL(t, values)

	expected := `SELECT CAST(NULL AS integer) AS "N" UNION ALL SELECT 4 AS "N"`
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestRender_CanonicalFunctions(t *testing.T) {
	now := types.NewFunction("Edm.CurrentDateTime", types.PrimitiveOf(types.DateTime, false), nil)
	nstr := types.PrimitiveOf(types.String, true)

	tests := []struct {
		name string
		expr func(b types.Binding) types.Expr
		want string
	}{
		{"concat", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.Concat", nstr, []types.Expr{prop(b, "Title"), prop(b, "Title")})
		}, `("Extent1"."Title" || "Extent1"."Title")`},
		{"index of", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.IndexOf", types.PrimitiveOf(types.Int32, true), []types.Expr{
				prop(b, "Title"), types.NewConstant("a", types.PrimitiveOf(types.String, false)),
			})
		}, `STRPOS("Extent1"."Title", 'a')`},
		{"round with digits", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.Round", types.PrimitiveOf(types.Decimal, true), []types.Expr{prop(b, "Price"), int32c(2)})
		}, `ROUND(CAST("Extent1"."Price" AS numeric), 2)`},
		{"hour", func(types.Binding) types.Expr {
			return types.NewFunction("Edm.Hour", types.PrimitiveOf(types.Int32, false), []types.Expr{now})
		}, "CAST(EXTRACT(HOUR FROM LOCALTIMESTAMP) AS integer)"},
		{"add days", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.AddDays", types.PrimitiveOf(types.DateTime, false), []types.Expr{now, prop(b, "Year")})
		}, `(LOCALTIMESTAMP + "Extent1"."Year" * INTERVAL '1 day')`},
		{"nanoseconds are unmapped", func(b types.Binding) types.Expr {
			return types.NewFunction("Edm.AddNanoseconds", types.PrimitiveOf(types.DateTime, false), []types.Expr{now, prop(b, "Year")})
		}, `AddNanoseconds(LOCALTIMESTAMP, "Extent1"."Year")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := renderSQL(t, column(tt.expr))
			expected := "SELECT " + tt.want + ` AS "C"` + booksFrom
			if result.SQL != expected {
				t.Errorf("SQL = %q, want %q", result.SQL, expected)
			}
		})
	}
}

func TestRender_StatisticalAggregates(t *testing.T) {
	in := types.GroupBinding{Input: types.NewScan(fixture.Books()), Var: "b", GroupVar: "g"}
	row := types.NewVarRef("b", in.Element())
	g := types.NewVarRef("g", in.Element())
	price := types.NewProperty(g, "Price")
	gb := types.NewGroupBy(in,
		[]types.Column{{Name: "Year", Expr: types.NewProperty(row, "Year")}},
		[]types.Column{
			{Name: "A", Expr: types.NewAggregate(types.AggStDev, price, false)},
			{Name: "B", Expr: types.NewAggregate(types.AggStDevP, price, false)},
			{Name: "C", Expr: types.NewAggregate(types.AggVar, price, false)},
			{Name: "D", Expr: types.NewAggregate(types.AggVarP, price, false)},
			{Name: "E", Expr: types.NewAggregate(types.AggSum, price, false)},
		})

	result := renderSQL(t, gb)

	expected := `SELECT "Extent1"."Year" AS "Year", STDDEV_SAMP("Extent1"."Price") AS "A", ` +
		`STDDEV_POP("Extent1"."Price") AS "B", VAR_SAMP("Extent1"."Price") AS "C", ` +
		`VAR_POP("Extent1"."Price") AS "D", SUM("Extent1"."Price") AS "E"` + booksFrom + ` GROUP BY "Extent1"."Year"`
	if result.SQL != expected {
		t.Errorf("SQL = %q, want %q", result.SQL, expected)
	}
}

func TestCapabilities(t *testing.T) {
	caps := New().Capabilities()
	if caps.Limit != render.LimitTrailing {
		t.Errorf("Limit = %v, want LimitTrailing", caps.Limit)
	}
	if caps.Apply != render.ApplyLateral {
		t.Errorf("Apply = %v, want ApplyLateral", caps.Apply)
	}
	if !caps.BooleanColumns || !caps.PositionalParams {
		t.Errorf("Capabilities() = %+v, want Boolean columns and positional params", caps)
	}
}
