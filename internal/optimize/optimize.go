// Package optimize promotes outer joins and applies that a filter makes
// inner, and removes joins duplicating an earlier join against the same set.
package optimize

import (
	"fmt"
	"sort"

	"github.com/zoobzio/entsql/internal/types"
)

// Optimize rewrites e once. The result has the same output shape as e, and
// optimizing it again leaves it unchanged.
func Optimize(e types.Expr) types.Expr {
	o := &optimizer{names: types.BoundNames(e)}
	out, m := o.relational(e)
	return o.restore(out, e.Type(), m)
}

// rule moves every path starting with from to the same suffix under to.
type rule struct {
	from []string
	to   []string
}

// remap records how paths into a node's output element moved after joins
// below it were removed.
type remap []rule

func (m remap) apply(path []string) []string {
	for _, r := range m {
		if hasPrefix(path, r.from) {
			return concat(r.to, path[len(r.from):])
		}
	}
	return path
}

// lift prefixes every rule with name, for use one join level up.
func (m remap) lift(name string) remap {
	out := make(remap, len(m))
	for i, r := range m {
		out[i] = rule{from: concat([]string{name}, r.from), to: concat([]string{name}, r.to)}
	}
	return out
}

type optimizer struct {
	names map[string]bool
	fresh int
}

// relational optimizes a collection-valued node and reports how its output
// paths moved.
func (o *optimizer) relational(e types.Expr) (types.Expr, remap) {
	switch n := e.(type) {
	case *types.Scan, *types.SingleRow:
		return e, nil
	case *types.Values:
		return o.scalarChildren(e), nil
	case *types.Filter:
		in, m := o.relational(n.Input.Input)
		pred := o.scalar(rebase(n.Predicate, n.Input.Var, in, m))
		in = promote(in, pred, n.Input.Var, nil)
		return types.NewFilter(types.Binding{Input: in, Var: n.Input.Var}, pred), m
	case *types.Project:
		in, m := o.relational(n.Input.Input)
		cols := make([]types.Column, len(n.Columns))
		for i, c := range n.Columns {
			cols[i] = types.Column{Name: c.Name, Expr: o.scalar(rebase(c.Expr, n.Input.Var, in, m))}
		}
		return types.NewProject(types.Binding{Input: in, Var: n.Input.Var}, cols), nil
	case *types.GroupBy:
		in, m := o.relational(n.Input.Input)
		fix := func(cols []types.Column) []types.Column {
			out := make([]types.Column, len(cols))
			for i, c := range cols {
				x := rebase(c.Expr, n.Input.Var, in, m)
				x = rebase(x, n.Input.GroupVar, in, m)
				out[i] = types.Column{Name: c.Name, Expr: o.scalar(x)}
			}
			return out
		}
		input := n.Input
		input.Input = in
		return types.NewGroupBy(input, fix(n.Keys), fix(n.Aggregates)), nil
	case *types.Sort:
		in, m := o.relational(n.Input.Input)
		keys := make([]types.SortKey, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = types.SortKey{Expr: o.scalar(rebase(k.Expr, n.Input.Var, in, m)), Direction: k.Direction}
		}
		return types.NewSort(types.Binding{Input: in, Var: n.Input.Var}, keys), m
	case *types.Page:
		in, m := o.relational(n.Input.Input)
		keys := make([]types.SortKey, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = types.SortKey{Expr: o.scalar(rebase(k.Expr, n.Input.Var, in, m)), Direction: k.Direction}
		}
		return types.NewPage(types.Binding{Input: in, Var: n.Input.Var}, keys, o.scalar(n.Skip), o.scalar(n.Limit), n.RowNumber), m
	case *types.Skip:
		in, m := o.relational(n.Input)
		return types.NewSkip(in, o.scalar(n.Count)), m
	case *types.Limit:
		in, m := o.relational(n.Input)
		return types.NewLimit(in, o.scalar(n.Count)), m
	case *types.Distinct:
		in, m := o.relational(n.Input)
		return types.NewDistinct(in), m
	case *types.SetOp:
		return types.NewSetOp(n.Op, o.scalar(n.Left), o.scalar(n.Right)), nil
	case *types.Join:
		return o.join(n)
	}
	// Collection-valued properties and variables, such as a group partition.
	if !types.IsRelational(e) {
		return o.scalarChildren(e), nil
	}
	panic(fmt.Sprintf("optimize: unexpected node %T", e))
}

func (o *optimizer) join(n *types.Join) (types.Expr, remap) {
	left, ml := o.relational(n.Left.Input)
	right, mr := o.relational(n.Right.Input)
	if n.JoinKind.IsApply() {
		right = rebase(right, n.Left.Var, left, ml)
	}
	on := n.On
	if on != nil {
		on = rebase(on, n.Left.Var, left, ml)
		on = o.scalar(rebase(on, n.Right.Var, right, mr))
	}
	m := append(ml.lift(n.Left.Var), mr.lift(n.Right.Var)...)

	kind := n.JoinKind
	if _, scan := right.(*types.Scan); scan && kind == types.LeftOuterJoin &&
		n.Relationship != nil && !n.Relationship.Nullable {
		kind = types.InnerJoin
	}

	if path, ok := duplicate(kind, left, n.Left.Var, right, n.Right.Var, on); ok {
		var collapsed remap
		for _, r := range ml {
			collapsed = append(collapsed, rule{from: concat([]string{n.Left.Var}, r.from), to: r.to})
		}
		collapsed = append(collapsed,
			rule{from: []string{n.Left.Var}, to: nil},
			rule{from: []string{n.Right.Var}, to: path})
		return left, collapsed
	}

	return types.NewJoin(kind,
		types.Binding{Input: left, Var: n.Left.Var},
		types.Binding{Input: right, Var: n.Right.Var},
		on, n.Relationship), m
}

// duplicate looks down the left spine of left for a join against the same
// set under an equivalent condition. It returns the path of that join's right
// element within left's element.
func duplicate(kind types.JoinKind, left types.Expr, lv string, right types.Expr, rv string, on types.Expr) ([]string, bool) {
	scan, ok := right.(*types.Scan)
	if !ok || on == nil || (kind != types.InnerJoin && kind != types.LeftOuterJoin) || !keyed(on, rv, scan.Set) {
		return nil, false
	}
	var prefix []string
	for cand := left; ; {
		c, ok := cand.(*types.Join)
		if !ok {
			return nil, false
		}
		cs, ok := c.Right.Input.(*types.Scan)
		if ok && c.On != nil && cs.Set.Name == scan.Set.Name &&
			(c.JoinKind == kind || (c.JoinKind == types.InnerJoin && kind == types.LeftOuterJoin)) {
			target := concat(prefix, []string{c.Right.Var})
			mine := canonical(on, map[string][]string{lv: nil, rv: target})
			theirs := canonical(c.On, map[string][]string{
				c.Left.Var:  concat(prefix, []string{c.Left.Var}),
				c.Right.Var: target,
			})
			if mine == theirs {
				return target, true
			}
		}
		cand = c.Left.Input
		prefix = concat(prefix, []string{c.Left.Var})
	}
}

// keyed reports whether on equates every key of set, read through rv, so
// that each left row matches at most one right row.
func keyed(on types.Expr, rv string, set *types.EntitySet) bool {
	bound := make(map[string]bool)
	var collect func(e types.Expr)
	collect = func(e types.Expr) {
		switch n := e.(type) {
		case *types.Logical:
			if n.Op == types.AND && !n.Expanded {
				collect(n.Left)
				collect(n.Right)
			}
		case *types.Compare:
			if n.Op != types.EQ {
				return
			}
			for _, side := range []types.Expr{n.Left, n.Right} {
				if root, p, ok := types.Path(side); ok && root == rv && len(p) == 1 {
					bound[p[0]] = true
				}
			}
		}
	}
	collect(on)
	if len(set.Keys) == 0 {
		return false
	}
	for _, k := range set.Keys {
		if !bound[k] {
			return false
		}
	}
	return true
}

// canonical renders a join condition with every variable re-rooted at a
// common element, ordering the operands of symmetric comparisons.
func canonical(on types.Expr, roots map[string][]string) string {
	const root = "$"
	names := make([]string, 0, len(roots))
	for name := range roots {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		on = types.ReplaceVar(on, name, types.NewVarRef(fmt.Sprintf("$%d", i), types.Type{}))
	}
	for i, name := range names {
		path := roots[name]
		on = types.MapVar(on, fmt.Sprintf("$%d", i), func(p []string) types.Expr {
			return types.Chain(types.NewVarRef(root, types.Type{}), concat(path, p))
		})
	}
	out, _ := types.Transform(on, func(e types.Expr) (types.Expr, error) {
		c, ok := e.(*types.Compare)
		if !ok || (c.Op != types.EQ && c.Op != types.NE) {
			return e, nil
		}
		if types.Format(c.Left) > types.Format(c.Right) {
			return types.NewCompare(c.Op, c.Right, c.Left), nil
		}
		return e, nil
	})
	return types.Format(out)
}

// promote turns outer joins on the left spine of in into inner joins when
// pred, evaluated over the element bound to fv, rejects rows whose right
// side is null.
func promote(in types.Expr, pred types.Expr, fv string, prefix []string) types.Expr {
	j, ok := in.(*types.Join)
	if !ok {
		return in
	}
	left := promote(j.Left.Input, pred, fv, concat(prefix, []string{j.Left.Var}))
	kind := j.JoinKind
	nullableFK := j.Relationship != nil && j.Relationship.Nullable
	if kind.IsOuter() && !nullableFK && rejects(pred, fv, concat(prefix, []string{j.Right.Var})) {
		if kind == types.LeftOuterJoin {
			kind = types.InnerJoin
		} else {
			kind = types.CrossApply
		}
	}
	if left == j.Left.Input && kind == j.JoinKind {
		return j
	}
	return types.NewJoin(kind, types.Binding{Input: left, Var: j.Left.Var}, j.Right, j.On, j.Relationship)
}

// rejects reports whether pred can only hold when the element at path is
// present. Null-expanded predicates keep null rows and never reject.
func rejects(pred types.Expr, fv string, path []string) bool {
	switch n := pred.(type) {
	case *types.Logical:
		if n.Expanded {
			return false
		}
		if n.Op == types.AND {
			return rejects(n.Left, fv, path) || rejects(n.Right, fv, path)
		}
		return rejects(n.Left, fv, path) && rejects(n.Right, fv, path)
	case *types.Compare:
		return propagates(n.Left, fv, path) || propagates(n.Right, fv, path)
	case *types.In:
		return propagates(n.Arg, fv, path)
	case *types.Not:
		if n.Expanded {
			return false
		}
		switch n.Arg.(type) {
		case *types.Compare, *types.In:
			return rejects(n.Arg, fv, path)
		}
	}
	return false
}

// propagates reports whether e is null whenever the element at path is.
func propagates(e types.Expr, fv string, path []string) bool {
	switch n := e.(type) {
	case *types.Property:
		root, p, ok := types.Path(n)
		return ok && root == fv && len(p) > len(path) && hasPrefix(p, path)
	case *types.Arithmetic:
		return propagates(n.Left, fv, path) || propagates(n.Right, fv, path)
	}
	return false
}

// scalar optimizes the collections nested in a scalar expression. Nested
// collections keep their shape.
func (o *optimizer) scalar(e types.Expr) types.Expr {
	if e == nil {
		return nil
	}
	if types.IsRelational(e) {
		out, m := o.relational(e)
		return o.restore(out, e.Type(), m)
	}
	return o.scalarChildren(e)
}

func (o *optimizer) scalarChildren(e types.Expr) types.Expr {
	children := types.Children(e)
	var out []types.Expr
	for i, c := range children {
		if c == nil {
			continue
		}
		nc := o.scalar(c)
		if nc != c {
			if out == nil {
				out = append([]types.Expr(nil), children...)
			}
			out[i] = nc
		}
	}
	if out == nil {
		return e
	}
	return types.WithChildren(e, out)
}

// restore projects e back onto the leaf columns of want when joins were
// removed beneath it.
func (o *optimizer) restore(e types.Expr, want types.Type, m remap) types.Expr {
	if len(m) == 0 {
		return e
	}
	v := o.freshVar()
	b := types.Binding{Input: e, Var: v}
	used := make(map[string]bool)
	var cols []types.Column
	for _, path := range types.LeafPaths(want.Element()) {
		cols = append(cols, types.Column{
			Name: uniqueName(path[len(path)-1], used),
			Expr: types.Chain(b.Ref(), m.apply(path)),
		})
	}
	return types.NewProject(b, cols)
}

func (o *optimizer) freshVar() string {
	for {
		o.fresh++
		name := fmt.Sprintf("r%d", o.fresh)
		if !o.names[name] {
			o.names[name] = true
			return name
		}
	}
}

// rebase rewrites references to v, now bound over input, according to m.
func rebase(e types.Expr, v string, input types.Expr, m remap) types.Expr {
	if len(m) == 0 || e == nil {
		return e
	}
	ref := types.NewVarRef(v, input.Type().Element())
	return types.MapVar(e, v, func(path []string) types.Expr {
		return types.Chain(ref, m.apply(path))
	})
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for i := 1; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	used[candidate] = true
	return candidate
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
