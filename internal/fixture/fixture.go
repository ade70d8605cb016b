// Package fixture provides a small bookstore model shared by the internal
// stage tests.
package fixture

import "github.com/zoobzio/entsql/internal/types"

func prop(name string, p types.Primitive, nullable bool) types.EntityProperty {
	return types.EntityProperty{Name: name, Column: name, Type: types.PrimitiveOf(p, nullable)}
}

// Authors has no nullable key columns; Country is optional.
func Authors() *types.EntitySet {
	return &types.EntitySet{
		Name:   "Authors",
		Schema: "dbo",
		Table:  "Authors",
		Properties: []types.EntityProperty{
			prop("Id", types.Int32, false),
			prop("Name", types.String, false),
			prop("Country", types.String, true),
		},
		Keys: []string{"Id"},
	}
}

// Books references Authors through a nullable key and Publishers through a
// required one.
func Books() *types.EntitySet {
	return &types.EntitySet{
		Name:   "Books",
		Schema: "dbo",
		Table:  "Books",
		Properties: []types.EntityProperty{
			prop("Id", types.Int32, false),
			prop("Title", types.String, true),
			prop("AuthorId", types.Int32, true),
			prop("PublisherId", types.Int32, false),
			prop("Price", types.Decimal, true),
			prop("Year", types.Int32, false),
		},
		Keys: []string{"Id"},
	}
}

// Publishers is the principal of the required Books association.
func Publishers() *types.EntitySet {
	return &types.EntitySet{
		Name:   "Publishers",
		Schema: "dbo",
		Table:  "Publishers",
		Properties: []types.EntityProperty{
			prop("Id", types.Int32, false),
			prop("Name", types.String, true),
		},
		Keys: []string{"Id"},
	}
}

// BookAuthor is the optional Books to Authors association.
func BookAuthor() *types.Association {
	return &types.Association{
		Name:         "BookAuthor",
		Dependent:    Books(),
		Principal:    Authors(),
		ForeignKey:   []string{"AuthorId"},
		PrincipalKey: []string{"Id"},
		Nullable:     true,
	}
}

// BookPublisher is the required Books to Publishers association.
func BookPublisher() *types.Association {
	return &types.Association{
		Name:         "BookPublisher",
		Dependent:    Books(),
		Principal:    Publishers(),
		ForeignKey:   []string{"PublisherId"},
		PrincipalKey: []string{"Id"},
	}
}

// Bind binds a scan of set to name.
func Bind(set *types.EntitySet, name string) types.Binding {
	return types.Binding{Input: types.NewScan(set), Var: name}
}

// Prop reads a member of a bound variable.
func Prop(b types.Binding, name string) types.Expr {
	return types.NewProperty(b.Ref(), name)
}

// Int is an Int32 constant.
func Int(v int) types.Expr {
	return types.NewConstant(v, types.PrimitiveOf(types.Int32, false))
}

// Str is a String constant.
func Str(v string) types.Expr {
	return types.NewConstant(v, types.PrimitiveOf(types.String, false))
}

// Navigate left-outer joins l to the principal of assoc.
func Navigate(l types.Binding, assoc *types.Association, rightVar string) *types.Join {
	r := types.Binding{Input: types.NewScan(assoc.Principal), Var: rightVar}
	var on types.Expr
	for i, fk := range assoc.ForeignKey {
		eq := types.NewCompare(types.EQ, types.NewProperty(l.Ref(), fk), types.NewProperty(r.Ref(), assoc.PrincipalKey[i]))
		if on == nil {
			on = eq
		} else {
			on = types.NewLogical(types.AND, on, eq, false)
		}
	}
	return types.NewJoin(types.LeftOuterJoin, l, r, on, assoc)
}
