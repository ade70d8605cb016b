package integration

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"

	"github.com/zoobzio/entsql"
	"github.com/zoobzio/entsql/parse"
	enttest "github.com/zoobzio/entsql/testing"
)

// database is a bookstore loaded into a live server.
type database interface {
	// ids runs a query and returns its first column, sorted, with NULL as 0.
	ids(ctx context.Context, t *testing.T, sql string, args []any) []int64
}

// bookstoreCase is a query with the ids it returns on the bookstore rows.
// Cases marked apply need CROSS/OUTER APPLY or LATERAL and are skipped on
// dialects that reject it.
type bookstoreCase struct {
	name   string
	opts   entsql.Options
	params map[string]any
	build  func(t *testing.T, ws *entsql.Workspace) entsql.Expr
	want   []int64
	apply  bool
}

func bookIDs(ws *entsql.Workspace, pred func(b entsql.Binding) entsql.Expr) entsql.Expr {
	b := entsql.Bind(ws.Scan("Books"), "b")
	f := entsql.Bind(entsql.Filter(b, pred(b)), "f")
	return entsql.Project(f, entsql.As(entsql.Prop(f.Ref(), "Id"), "Id"))
}

func parsed(query string) func(t *testing.T, ws *entsql.Workspace) entsql.Expr {
	return func(t *testing.T, ws *entsql.Workspace) entsql.Expr {
		t.Helper()
		q, err := parse.Parse(ws, query)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", query, err)
		}
		return q
	}
}

var bookstoreCases = []bookstoreCase{
	{
		name: "not equal keeps null titles",
		build: func(_ *testing.T, ws *entsql.Workspace) entsql.Expr {
			return bookIDs(ws, func(b entsql.Binding) entsql.Expr {
				return entsql.Ne(entsql.Prop(b.Ref(), "Title"), entsql.Const("Alpha"))
			})
		},
		want: []int64{2, 3, 4, 5},
	},
	{
		name: "database semantics drop null titles",
		opts: entsql.Options{UseDatabaseNullSemantics: true},
		build: func(_ *testing.T, ws *entsql.Workspace) entsql.Expr {
			return bookIDs(ws, func(b entsql.Binding) entsql.Expr {
				return entsql.Ne(entsql.Prop(b.Ref(), "Title"), entsql.Const("Alpha"))
			})
		},
		want: []int64{2, 4, 5},
	},
	{
		name:   "null parameter matches null title",
		params: map[string]any{"title": nil},
		build: func(_ *testing.T, ws *entsql.Workspace) entsql.Expr {
			return bookIDs(ws, func(b entsql.Binding) entsql.Expr {
				return entsql.Eq(entsql.Prop(b.Ref(), "Title"), entsql.Param("title", entsql.String, true))
			})
		},
		want: []int64{3},
	},
	{
		name: "navigation keeps books without author",
		build: func(_ *testing.T, ws *entsql.Workspace) entsql.Expr {
			b := entsql.Bind(ws.Scan("Books"), "b")
			j := entsql.Bind(ws.Navigate(b, "BookAuthor", "a"), "j")
			return entsql.Project(j, entsql.As(entsql.Prop(entsql.Prop(j.Ref(), "a"), "Id"), "AuthorId"))
		},
		want: []int64{0, 0, 1, 1, 2},
	},
	{
		name: "outer apply",
		build: func(_ *testing.T, ws *entsql.Workspace) entsql.Expr {
			a := entsql.Bind(ws.Scan("Authors"), "a")
			b := entsql.Bind(ws.Scan("Books"), "b")
			written := entsql.Bind(entsql.Filter(b, entsql.Eq(entsql.Prop(b.Ref(), "AuthorId"), entsql.Prop(a.Ref(), "Id"))), "w")
			j := entsql.Bind(entsql.OuterApply(a, written), "j")
			return entsql.Project(j, entsql.As(entsql.Prop(entsql.Prop(j.Ref(), "a"), "Id"), "Id"))
		},
		want:  []int64{1, 1, 2, 3},
		apply: true,
	},
	{
		name: "group partition",
		build: func(_ *testing.T, ws *entsql.Workspace) entsql.Expr {
			in := entsql.GroupBind(ws.Scan("Books"), "b", "g")
			row := entsql.Bind(in.Input, in.Var).Ref()
			group := entsql.Bind(in.Input, in.GroupVar).Ref()
			gb := entsql.Bind(entsql.GroupBy(in,
				[]entsql.Column{entsql.As(entsql.Prop(row, "AuthorId"), "AuthorId")},
				[]entsql.Column{entsql.As(entsql.Partition(group), "Books")}), "p")
			return entsql.Project(gb, entsql.As(entsql.Prop(gb.Ref(), "Books"), "Books"))
		},
		want: []int64{1, 2, 3, 4, 5},
	},
	{
		name: "paging",
		build: parsed("SELECT b.Id FROM Books b ORDER BY b.Id DESC LIMIT 2 OFFSET 1"),
		want: []int64{3, 4},
	},
	{
		name: "grouped having",
		build: parsed("SELECT b.AuthorId, COUNT(*) AS n FROM Books b GROUP BY b.AuthorId HAVING COUNT(*) > 1"),
		want: []int64{0, 1},
	},
	{
		name: "exists",
		build: parsed("SELECT a.Id FROM Authors a WHERE EXISTS (SELECT 1 FROM Books b WHERE b.AuthorId = a.Id)"),
		want: []int64{1, 2},
	},
	{
		name: "union",
		build: parsed("SELECT a.Id FROM Authors a UNION SELECT p.Id FROM Publishers p"),
		want: []int64{1, 2, 3},
	},
	{
		name:   "parameter range",
		params: map[string]any{"lo": 2002, "hi": 2010},
		build: parsed("SELECT b.Id FROM Books b WHERE b.Year BETWEEN :lo AND :hi AND b.PublisherId IN (1, 2)"),
		want: []int64{2, 4, 5},
	},
}

// runBookstore translates every case for r and checks its ids on db.
func runBookstore(t *testing.T, ws *entsql.Workspace, r entsql.Renderer, db database) {
	t.Helper()
	ctx := context.Background()

	for _, tc := range bookstoreCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := entsql.NewTranslator(tc.opts).Translate(tc.build(t, ws), r)
			var unsupported entsql.UnsupportedFeatureError
			if tc.apply && errors.As(err, &unsupported) {
				t.Skipf("%s has no %s", unsupported.Dialect, unsupported.Feature)
			}
			if err != nil {
				t.Fatalf("Translate failed: %v", err)
			}
			args, err := result.Args(tc.params)
			if err != nil {
				t.Fatalf("Args failed: %v", err)
			}
			got := db.ids(ctx, t, result.SQL, args)
			if !slices.Equal(got, tc.want) {
				t.Errorf("ids = %v, want %v\nSQL: %s", got, tc.want, result.SQL)
			}
		})
	}
}

// loadBookstore creates and fills the bookstore tables with exec.
func loadBookstore(ctx context.Context, t *testing.T, exec func(ctx context.Context, t *testing.T, sql string)) {
	t.Helper()
	for _, table := range []string{"books", "authors", "publishers"} {
		exec(ctx, t, "DROP TABLE IF EXISTS "+table)
	}
	for _, stmt := range enttest.BookstoreDDL {
		exec(ctx, t, stmt)
	}
	for _, stmt := range enttest.BookstoreRows {
		exec(ctx, t, stmt)
	}
}

// asID reads an integer cell; NULL reads as 0.
func asID(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	case []byte:
		id, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			t.Fatalf("unexpected id value %q: %v", n, err)
		}
		return id
	default:
		t.Fatalf("unexpected id value %v (%T)", v, v)
		return 0
	}
}

func sortedIDs(ids []int64) []int64 {
	slices.Sort(ids)
	return ids
}
