// Package paging turns Skip and Limit into Page nodes the emitter can render
// either as TOP/LIMIT over an ordered query or as a filter on a numbered
// row.
package paging

import (
	"fmt"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/zoobzio/entsql/internal/types"
)

// ErrUnordered is returned when rows are skipped from an input with no
// defined order.
var ErrUnordered = errors.NewKind("skip requires an ordered input: %s")

// RowNumber is the preferred name of the numbering column.
const RowNumber = "row_number"

// Translate rewrites every Skip and Limit in e, innermost first. Pages in
// subqueries and set operands are independent of each other.
func Translate(e types.Expr) (types.Expr, error) {
	t := &translator{names: types.BoundNames(e)}
	return types.Transform(e, func(n types.Expr) (types.Expr, error) {
		switch n := n.(type) {
		case *types.Skip:
			return t.page(n, n.Input, n.Count, nil)
		case *types.Limit:
			return t.page(n, n.Input, nil, n.Count)
		}
		return n, nil
	})
}

type translator struct {
	names map[string]bool
	fresh int
}

func (t *translator) page(orig, in, skip, limit types.Expr) (types.Expr, error) {
	switch n := in.(type) {
	case *types.Sort:
		return types.NewPage(n.Input, n.Keys, skip, limit, rowNumber(skip, n.Input.Element())), nil
	case *types.Page:
		if skip == nil && n.Limit == nil {
			return types.NewPage(n.Input, n.Keys, n.Skip, limit, n.RowNumber), nil
		}
	case *types.Project:
		if _, _, ok := ordering(n.Input.Input); ok {
			inner, err := t.page(orig, n.Input.Input, skip, limit)
			if err != nil {
				return nil, err
			}
			return types.NewProject(types.Binding{Input: inner, Var: n.Input.Var}, n.Columns), nil
		}
	}

	b := types.Binding{Input: in, Var: t.freshVar()}
	if keys, v, ok := ordering(in); ok {
		return types.NewPage(b, rebind(keys, v, b.Ref()), skip, limit, rowNumber(skip, b.Element())), nil
	}
	if skip != nil {
		return nil, ErrUnordered.New(types.Format(orig))
	}
	return types.NewPage(b, nil, nil, limit, ""), nil
}

// ordering returns the sort keys that order e's rows and the variable they
// are written over.
func ordering(e types.Expr) ([]types.SortKey, string, bool) {
	switch n := e.(type) {
	case *types.Sort:
		return n.Keys, n.Input.Var, true
	case *types.Page:
		if len(n.Keys) > 0 {
			return n.Keys, n.Input.Var, true
		}
	case *types.Filter:
		if keys, v, ok := ordering(n.Input.Input); ok {
			return rebind(keys, v, n.Input.Ref()), n.Input.Var, true
		}
	}
	return nil, "", false
}

func rebind(keys []types.SortKey, v string, ref types.Expr) []types.SortKey {
	out := make([]types.SortKey, len(keys))
	for i, k := range keys {
		out[i] = types.SortKey{Expr: types.ReplaceVar(k.Expr, v, ref), Direction: k.Direction}
	}
	return out
}

// rowNumber picks a numbering column name no output column already uses.
func rowNumber(skip types.Expr, elem types.Type) string {
	if skip == nil {
		return ""
	}
	used := make(map[string]bool)
	for _, p := range types.LeafPaths(elem) {
		used[p[len(p)-1]] = true
	}
	name := RowNumber
	for i := 1; used[name]; i++ {
		name = fmt.Sprintf("%s%d", RowNumber, i)
	}
	return name
}

func (t *translator) freshVar() string {
	for {
		t.fresh++
		name := fmt.Sprintf("t%d", t.fresh)
		if !t.names[name] {
			t.names[name] = true
			return name
		}
	}
}
