package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/entsql/internal/fixture"
	"github.com/zoobzio/entsql/internal/nullsem"
	"github.com/zoobzio/entsql/internal/types"
)

// bookAuthors left-outer joins Books to Authors without relationship metadata.
func bookAuthors(kind types.JoinKind) *types.Join {
	b := fixture.Bind(fixture.Books(), "b")
	a := fixture.Bind(fixture.Authors(), "a")
	var on types.Expr
	if !kind.IsApply() {
		on = types.NewCompare(types.EQ, fixture.Prop(b, "AuthorId"), fixture.Prop(a, "Id"))
	}
	return types.NewJoin(kind, b, a, on, nil)
}

func authorName(x types.Binding) types.Expr {
	return types.NewProperty(types.NewProperty(x.Ref(), "a"), "Name")
}

func joinKind(t *testing.T, e types.Expr) types.JoinKind {
	t.Helper()
	f, ok := e.(*types.Filter)
	require.True(t, ok, "expected Filter, got %T", e)
	j, ok := f.Input.Input.(*types.Join)
	require.True(t, ok, "expected Join under Filter, got %T", f.Input.Input)
	return j.JoinKind
}

func TestPromotion_FollowsNullExpansion(t *testing.T) {
	tests := []struct {
		name string
		mode nullsem.Mode
		want types.JoinKind
	}{
		{"database semantics promote", nullsem.Database, types.InnerJoin},
		{"expanded predicate keeps outer join", nullsem.CLR, types.LeftOuterJoin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := types.Binding{Input: bookAuthors(types.LeftOuterJoin), Var: "x"}
			f := types.NewFilter(x, types.NewCompare(types.EQ, authorName(x), fixture.Str("Tolkien")))
			rewritten, err := nullsem.Rewrite(f, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, joinKind(t, Optimize(rewritten)))
		})
	}
}

func TestPromotion_OuterApply(t *testing.T) {
	x := types.Binding{Input: bookAuthors(types.OuterApply), Var: "x"}
	f := types.NewFilter(x, types.NewCompare(types.GT, authorName(x), fixture.Str("M")))
	assert.Equal(t, types.CrossApply, joinKind(t, Optimize(f)))
}

func TestPromotion_Predicates(t *testing.T) {
	tests := []struct {
		name string
		pred func(x types.Binding) types.Expr
		want types.JoinKind
	}{
		{
			name: "conjunction with one rejecting side",
			pred: func(x types.Binding) types.Expr {
				return types.NewLogical(types.AND,
					types.NewIsNull(types.NewProperty(types.NewProperty(x.Ref(), "b"), "Title")),
					types.NewCompare(types.EQ, authorName(x), fixture.Str("A")), false)
			},
			want: types.InnerJoin,
		},
		{
			name: "disjunction rejecting on both sides",
			pred: func(x types.Binding) types.Expr {
				return types.NewLogical(types.OR,
					types.NewCompare(types.EQ, authorName(x), fixture.Str("A")),
					types.NewIn(authorName(x), []types.Expr{fixture.Str("B")}), false)
			},
			want: types.InnerJoin,
		},
		{
			name: "disjunction with IS NULL branch",
			pred: func(x types.Binding) types.Expr {
				return types.NewLogical(types.OR,
					types.NewCompare(types.EQ, authorName(x), fixture.Str("A")),
					types.NewIsNull(authorName(x)), false)
			},
			want: types.LeftOuterJoin,
		},
		{
			name: "predicate on the left side only",
			pred: func(x types.Binding) types.Expr {
				return types.NewCompare(types.EQ, types.NewProperty(types.NewProperty(x.Ref(), "b"), "Year"), fixture.Int(1965))
			},
			want: types.LeftOuterJoin,
		},
		{
			name: "negated comparison",
			pred: func(x types.Binding) types.Expr {
				return types.NewNot(types.NewCompare(types.EQ, authorName(x), fixture.Str("A")), false)
			},
			want: types.InnerJoin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := types.Binding{Input: bookAuthors(types.LeftOuterJoin), Var: "x"}
			f := types.NewFilter(x, tt.pred(x))
			assert.Equal(t, tt.want, joinKind(t, Optimize(f)))
		})
	}
}

func TestPromotion_NullableForeignKeyNeverPromoted(t *testing.T) {
	b := fixture.Bind(fixture.Books(), "b")
	x := types.Binding{Input: fixture.Navigate(b, fixture.BookAuthor(), "a"), Var: "x"}
	f := types.NewFilter(x, types.NewCompare(types.EQ, authorName(x), fixture.Str("Tolkien")))
	assert.Equal(t, types.LeftOuterJoin, joinKind(t, Optimize(f)))
}

func TestRequiredForeignKeyBecomesInnerJoin(t *testing.T) {
	b := fixture.Bind(fixture.Books(), "b")
	out := Optimize(fixture.Navigate(b, fixture.BookPublisher(), "p"))
	j, ok := out.(*types.Join)
	require.True(t, ok)
	assert.Equal(t, types.InnerJoin, j.JoinKind)
}

func TestPromotion_LeftSpine(t *testing.T) {
	inner := types.Binding{Input: bookAuthors(types.LeftOuterJoin), Var: "i"}
	p := fixture.Bind(fixture.Publishers(), "p")
	outer := types.NewJoin(types.LeftOuterJoin, inner, p,
		types.NewCompare(types.EQ, types.NewProperty(types.NewProperty(inner.Ref(), "b"), "PublisherId"), fixture.Prop(p, "Id")), nil)
	x := types.Binding{Input: outer, Var: "x"}
	name := types.NewProperty(types.NewProperty(types.NewProperty(x.Ref(), "i"), "a"), "Name")
	f := types.NewFilter(x, types.NewCompare(types.EQ, name, fixture.Str("A")))

	out := Optimize(f).(*types.Filter)
	top := out.Input.Input.(*types.Join)
	assert.Equal(t, types.LeftOuterJoin, top.JoinKind)
	assert.Equal(t, types.InnerJoin, top.Left.Input.(*types.Join).JoinKind)
}

// duplicated builds Project(LOJ(LOJ(Books, Authors a1), Authors a2)) where
// both joins follow the same key.
func duplicated() types.Expr {
	b := fixture.Bind(fixture.Books(), "b")
	a1 := fixture.Bind(fixture.Authors(), "a1")
	first := types.NewJoin(types.LeftOuterJoin, b, a1,
		types.NewCompare(types.EQ, fixture.Prop(b, "AuthorId"), fixture.Prop(a1, "Id")), nil)
	x := types.Binding{Input: first, Var: "x"}
	a2 := fixture.Bind(fixture.Authors(), "a2")
	second := types.NewJoin(types.LeftOuterJoin, x, a2,
		types.NewCompare(types.EQ, fixture.Prop(a2, "Id"), types.NewProperty(types.NewProperty(x.Ref(), "b"), "AuthorId")), nil)
	p := types.Binding{Input: second, Var: "p"}
	return types.NewProject(p, []types.Column{
		{Name: "N1", Expr: types.NewProperty(types.NewProperty(types.NewProperty(p.Ref(), "x"), "a1"), "Name")},
		{Name: "N2", Expr: types.NewProperty(types.NewProperty(p.Ref(), "a2"), "Name")},
	})
}

func TestDuplicateJoinElimination(t *testing.T) {
	out := Optimize(duplicated())
	assert.Equal(t,
		"Project(p: Join[LEFT OUTER JOIN](b: Scan(Books), a1: Scan(Authors), (b.AuthorId = a1.Id)), [N1: p.a1.Name, N2: p.a1.Name])",
		types.Format(out))

	col := out.(*types.Project).Columns[1].Expr
	assert.Equal(t, types.String, col.Type().Primitive)
}

func TestDuplicateJoinElimination_Idempotent(t *testing.T) {
	once := Optimize(duplicated())
	twice := Optimize(once)
	assert.Equal(t, types.Format(once), types.Format(twice))
}

func TestDuplicateJoinElimination_RootKeepsShape(t *testing.T) {
	p := duplicated().(*types.Project).Input.Input
	out := Optimize(p)

	proj, ok := out.(*types.Project)
	require.True(t, ok, "expected restoring projection, got %T", out)
	require.Len(t, proj.Columns, len(types.LeafPaths(p.Type().Element())))
	last := proj.Columns[len(proj.Columns)-1]
	assert.Equal(t, "Country1", last.Name)
	assert.Equal(t, "r1.a1.Country", types.Format(last.Expr))
}

func TestDuplicateJoinElimination_RequiresKey(t *testing.T) {
	b := fixture.Bind(fixture.Books(), "b")
	a1 := fixture.Bind(fixture.Authors(), "a1")
	first := types.NewJoin(types.InnerJoin, b, a1,
		types.NewCompare(types.EQ, fixture.Prop(b, "Title"), fixture.Prop(a1, "Name")), nil)
	x := types.Binding{Input: first, Var: "x"}
	a2 := fixture.Bind(fixture.Authors(), "a2")
	second := types.NewJoin(types.InnerJoin, x, a2,
		types.NewCompare(types.EQ, types.NewProperty(types.NewProperty(x.Ref(), "b"), "Title"), fixture.Prop(a2, "Name")), nil)

	out := Optimize(second)
	assert.Equal(t, types.Format(second), types.Format(out))
}

func TestDuplicateJoinElimination_DifferentCondition(t *testing.T) {
	b := fixture.Bind(fixture.Books(), "b")
	a1 := fixture.Bind(fixture.Authors(), "a1")
	first := types.NewJoin(types.LeftOuterJoin, b, a1,
		types.NewCompare(types.EQ, fixture.Prop(b, "AuthorId"), fixture.Prop(a1, "Id")), nil)
	x := types.Binding{Input: first, Var: "x"}
	a2 := fixture.Bind(fixture.Authors(), "a2")
	second := types.NewJoin(types.LeftOuterJoin, x, a2,
		types.NewCompare(types.EQ, types.NewProperty(types.NewProperty(x.Ref(), "b"), "PublisherId"), fixture.Prop(a2, "Id")), nil)

	out := Optimize(second)
	assert.Equal(t, types.Format(second), types.Format(out))
}

func TestOptimize_NestedSubqueryKeepsShape(t *testing.T) {
	b := fixture.Bind(fixture.Books(), "b")
	sub := duplicated()
	f := types.NewFilter(b, types.NewExists(sub))

	out := Optimize(f).(*types.Filter)
	assert.Contains(t, types.Format(out.Predicate), "[N1: p.a1.Name, N2: p.a1.Name]")
}
