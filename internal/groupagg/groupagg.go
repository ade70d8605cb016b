// Package groupagg lowers group partitions so that every GroupBy can be
// emitted as a single GROUP BY query, possibly joined back to its source.
//
// A partition is an aggregate that yields the rows of a group instead of
// reducing them. Aggregates over a partition are fused into the GroupBy when
// they range over the partition itself or a single projected column of it;
// any other use of the partition becomes a subquery over the source
// correlated on the group keys. A partition that is projected directly is
// materialized by outer-joining the grouped rows back to the source, with
// the partition's columns expanded at its position.
package groupagg

import (
	"fmt"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/zoobzio/entsql/internal/nullsem"
	"github.com/zoobzio/entsql/internal/types"
)

// ErrUnsupported is returned for partition shapes that have no relational
// lowering.
var ErrUnsupported = errors.NewKind("group composition not supported: %s")

// Compose lowers every GroupBy in e. Nested groupings are composed from the
// inside out.
func Compose(e types.Expr) (types.Expr, error) {
	c := &composer{names: types.BoundNames(e), counters: make(map[string]int)}
	return c.expr(e)
}

type composer struct {
	names    map[string]bool
	counters map[string]int
}

// site is a GroupBy with the filters stacked directly on top of it,
// outermost first.
type site struct {
	gb      *types.GroupBy
	filters []*types.Filter
}

func groupSite(e types.Expr) (site, bool) {
	var s site
	for {
		switch n := e.(type) {
		case *types.GroupBy:
			s.gb = n
			return s, true
		case *types.Filter:
			s.filters = append(s.filters, n)
			e = n.Input.Input
		default:
			return site{}, false
		}
	}
}

func (c *composer) expr(e types.Expr) (types.Expr, error) {
	if e == nil {
		return nil, nil
	}
	switch n := e.(type) {
	case *types.Project:
		if s, ok := groupSite(n.Input.Input); ok {
			return c.compose(n, s)
		}
	case *types.GroupBy, *types.Filter:
		if s, ok := groupSite(n); ok && hasPartition(s.gb) {
			return c.compose(identity(n, c.fresh("p")), s)
		}
	}
	return c.children(e)
}

func (c *composer) children(e types.Expr) (types.Expr, error) {
	children := types.Children(e)
	var out []types.Expr
	for i, ch := range children {
		if ch == nil {
			continue
		}
		nc, err := c.expr(ch)
		if err != nil {
			return nil, err
		}
		if nc != ch {
			if out == nil {
				out = append([]types.Expr(nil), children...)
			}
			out[i] = nc
		}
	}
	if out == nil {
		return e, nil
	}
	return types.WithChildren(e, out), nil
}

func hasPartition(gb *types.GroupBy) bool {
	for _, a := range gb.Aggregates {
		if isPartition(a.Expr) {
			return true
		}
	}
	return false
}

func isPartition(e types.Expr) bool {
	a, ok := e.(*types.Aggregate)
	return ok && a.Func == types.AggGroupPartition
}

// identity projects every field of e under its own name.
func identity(e types.Expr, v string) *types.Project {
	b := types.Binding{Input: e, Var: v}
	ref := b.Ref()
	var cols []types.Column
	for _, f := range b.Element().Fields {
		cols = append(cols, types.Column{Name: f.Name, Expr: types.NewProperty(ref, f.Name)})
	}
	return types.NewProject(b, cols)
}

// consumer is an expression list evaluated over a group row bound to v.
type consumer struct {
	v     string
	exprs []types.Expr
}

// group holds the GroupBy under construction.
type group struct {
	input      types.GroupBinding
	keys       []types.Column
	aggs       []types.Column
	partitions map[string]types.Expr
}

func (g *group) has(name string) bool {
	for _, k := range g.keys {
		if k.Name == name {
			return true
		}
	}
	for _, a := range g.aggs {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (g *group) build() *types.GroupBy {
	return types.NewGroupBy(g.input, g.keys, g.aggs)
}

// ref refers to the group row, as built so far, under v.
func (g *group) ref(v string) *types.VarRef {
	return types.NewVarRef(v, g.build().Type().Element())
}

// add returns the name of an aggregate equal to agg, appending it first if
// the group has none.
func (g *group) add(agg *types.Aggregate) string {
	want := types.Format(agg)
	for _, a := range g.aggs {
		if types.Format(a.Expr) == want {
			return a.Name
		}
	}
	name := ""
	for i := 1; name == "" || g.has(name); i++ {
		name = fmt.Sprintf("A%d", i)
	}
	g.aggs = append(g.aggs, types.Column{Name: name, Expr: agg})
	return name
}

func (c *composer) compose(proj *types.Project, s site) (types.Expr, error) {
	gb := s.gb
	in, err := c.expr(gb.Input.Input)
	if err != nil {
		return nil, err
	}
	g := &group{input: gb.Input, partitions: make(map[string]types.Expr)}
	g.input.Input = in
	if g.keys, err = c.columns(gb.Keys); err != nil {
		return nil, err
	}
	if g.aggs, err = c.columns(gb.Aggregates); err != nil {
		return nil, err
	}
	for _, a := range g.aggs {
		if isPartition(a.Expr) {
			g.partitions[a.Name] = a.Expr.(*types.Aggregate).Arg
		}
	}

	consumers := make([]*consumer, 0, len(s.filters)+1)
	for _, f := range s.filters {
		pred, err := c.expr(f.Predicate)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, &consumer{v: f.Input.Var, exprs: []types.Expr{pred}})
	}
	cols, err := c.columns(proj.Columns)
	if err != nil {
		return nil, err
	}
	top := &consumer{v: proj.Input.Var, exprs: make([]types.Expr, len(cols))}
	for i, col := range cols {
		top.exprs[i] = col.Expr
	}
	consumers = append(consumers, top)

	// Fuse aggregates over partitions, then correlate what is left.
	for _, cs := range consumers {
		for i, e := range cs.exprs {
			cs.exprs[i] = c.fuse(e, cs.v, g)
		}
	}
	direct := -1
	for _, cs := range consumers {
		for i, e := range cs.exprs {
			if cs == top {
				if _, ok := partitionRef(e, cs.v, g); ok {
					if direct >= 0 {
						return nil, ErrUnsupported.New("more than one projected partition")
					}
					direct = i
					continue
				}
			}
			if cs.exprs[i], err = c.correlate(e, cs.v, g); err != nil {
				return nil, err
			}
		}
	}

	// Drop aggregates nothing reads.
	used := make(map[string]bool)
	for _, cs := range consumers {
		for _, e := range cs.exprs {
			types.MapVar(e, cs.v, func(path []string) types.Expr {
				if len(path) > 0 {
					used[path[0]] = true
				}
				return types.Chain(types.NewVarRef(cs.v, types.Type{}), path)
			})
		}
	}
	var live []types.Column
	for _, a := range g.aggs {
		if used[a.Name] {
			live = append(live, a)
		}
	}
	g.aggs = live

	if direct < 0 {
		return c.rebuild(g.build(), s, consumers, proj)
	}
	return c.lower(g, s, consumers, proj, direct)
}

func (c *composer) columns(cols []types.Column) ([]types.Column, error) {
	out := make([]types.Column, len(cols))
	for i, col := range cols {
		e, err := c.expr(col.Expr)
		if err != nil {
			return nil, err
		}
		out[i] = types.Column{Name: col.Name, Expr: e}
	}
	return out, nil
}

// partitionRef reports whether e reads a partition of the group bound to v.
func partitionRef(e types.Expr, v string, g *group) (string, bool) {
	root, path, ok := types.Path(e)
	if !ok || root != v || len(path) != 1 {
		return "", false
	}
	_, part := g.partitions[path[0]]
	return path[0], part
}

// fuse replaces collection aggregates over a partition of the group bound to
// v with a read of an equivalent aggregate added to the group.
func (c *composer) fuse(e types.Expr, v string, g *group) types.Expr {
	return mapScoped(e, v, func(n types.Expr) types.Expr {
		agg, ok := n.(*types.Aggregate)
		if !ok || !agg.IsCollectionAggregate() {
			return n
		}
		row, ok := perRow(agg.Arg, v, g)
		if !ok {
			return n
		}
		var arg types.Expr
		if agg.Func != types.AggCount || agg.Distinct {
			arg = scalarOf(row)
		}
		name := g.add(types.NewAggregate(agg.Func, arg, agg.Distinct))
		return types.NewProperty(g.ref(v), name)
	})
}

// perRow returns the per-row expression, over the group variable, whose
// values a partition argument ranges over.
func perRow(arg types.Expr, v string, g *group) (types.Expr, bool) {
	if name, ok := partitionRef(arg, v, g); ok {
		return g.partitions[name], true
	}
	p, ok := arg.(*types.Project)
	if !ok || len(p.Columns) != 1 {
		return nil, false
	}
	name, ok := partitionRef(p.Input.Input, v, g)
	if !ok {
		return nil, false
	}
	return types.ReplaceVar(p.Columns[0].Expr, p.Input.Var, g.partitions[name]), true
}

// scalarOf reads the first member of a row-valued expression.
func scalarOf(e types.Expr) types.Expr {
	t := e.Type()
	if t.IsRow() && len(t.Fields) > 0 {
		return types.NewProperty(e, t.Fields[0].Name)
	}
	return e
}

// correlate replaces every remaining read of a partition with the source
// rows sharing the group's keys.
func (c *composer) correlate(e types.Expr, v string, g *group) (types.Expr, error) {
	var err error
	out := types.MapVar(e, v, func(path []string) types.Expr {
		if len(path) > 0 {
			if part, ok := g.partitions[path[0]]; ok && err == nil {
				var rows types.Expr
				rows, err = c.partitionRows(part, v, g)
				if err == nil {
					return types.Chain(rows, path[1:])
				}
			}
		}
		return types.Chain(g.ref(v), path)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *composer) partitionRows(part types.Expr, v string, g *group) (types.Expr, error) {
	sb := types.Binding{Input: g.input.Input, Var: c.fresh("s")}
	var corr types.Expr
	for _, k := range g.keys {
		eq := nullsem.Equal(sourceKey(k, sb, g), types.NewProperty(g.ref(v), k.Name))
		if corr == nil {
			corr = eq
		} else {
			corr = types.NewLogical(types.AND, corr, eq, false)
		}
	}
	var rows types.Expr = g.input.Input
	if corr != nil {
		rows = types.NewFilter(sb, corr)
	}

	if ref, ok := part.(*types.VarRef); ok && ref.Name == g.input.GroupVar {
		return rows, nil
	}
	t := part.Type()
	if !t.IsRow() {
		return nil, ErrUnsupported.New("partition of non-row values used outside an aggregate: " + types.Format(part))
	}
	pb := types.Binding{Input: rows, Var: c.fresh("s")}
	elem := rebind(part, g.input, pb.Ref())
	cols := make([]types.Column, len(t.Fields))
	for i, f := range t.Fields {
		if !f.Type.IsPrimitive() {
			return nil, ErrUnsupported.New("nested row in partition: " + types.Format(part))
		}
		cols[i] = types.Column{Name: f.Name, Expr: types.NewProperty(elem, f.Name)}
	}
	return types.NewProject(pb, cols), nil
}

// sourceKey evaluates a grouping key over the source row bound by b.
func sourceKey(k types.Column, b types.Binding, g *group) types.Expr {
	return rebind(k.Expr, g.input, b.Ref())
}

func rebind(e types.Expr, in types.GroupBinding, repl types.Expr) types.Expr {
	e = types.ReplaceVar(e, in.Var, repl)
	return types.ReplaceVar(e, in.GroupVar, repl)
}

// rebuild stacks the filters and the projection back on top of gb, retyping
// every reference to the group row.
func (c *composer) rebuild(gb types.Expr, s site, consumers []*consumer, proj *types.Project) (types.Expr, error) {
	cur := gb
	for i := len(s.filters) - 1; i >= 0; i-- {
		cs := consumers[i]
		cur = types.NewFilter(types.Binding{Input: cur, Var: cs.v}, retype(cs.exprs[0], cs.v, cur))
	}
	top := consumers[len(consumers)-1]
	cols := make([]types.Column, len(proj.Columns))
	for i, col := range proj.Columns {
		cols[i] = types.Column{Name: col.Name, Expr: retype(top.exprs[i], top.v, cur)}
	}
	return types.NewProject(types.Binding{Input: cur, Var: top.v}, cols), nil
}

// lower materializes the partition projected at column direct by joining the
// grouped rows back to the source on the group keys.
func (c *composer) lower(g *group, s site, consumers []*consumer, proj *types.Project, direct int) (types.Expr, error) {
	top := consumers[len(consumers)-1]
	pname, _ := partitionRef(top.exprs[direct], top.v, g)
	part := g.partitions[pname]

	var scalars []types.Column
	for _, a := range g.aggs {
		if !isPartition(a.Expr) {
			scalars = append(scalars, a)
		}
	}
	var base types.Expr = types.NewSingleRow()
	if len(g.keys) > 0 || len(scalars) > 0 {
		base = types.NewGroupBy(g.input, g.keys, scalars)
	}
	left := base
	for i := len(s.filters) - 1; i >= 0; i-- {
		cs := consumers[i]
		left = types.NewFilter(types.Binding{Input: left, Var: cs.v}, retype(cs.exprs[0], cs.v, left))
	}

	lb := types.Binding{Input: left, Var: c.fresh("k")}
	rb := types.Binding{Input: g.input.Input, Var: c.fresh("r")}
	var on types.Expr
	for _, k := range g.keys {
		eq := nullsem.Equal(types.NewProperty(lb.Ref(), k.Name), sourceKey(k, rb, g))
		if on == nil {
			on = eq
		} else {
			on = types.NewLogical(types.AND, on, eq, false)
		}
	}
	if on == nil {
		on = types.NewConstant(true, types.PrimitiveOf(types.Boolean, false))
	}
	join := types.NewJoin(types.LeftOuterJoin, lb, rb, on, nil)
	jb := types.Binding{Input: join, Var: c.fresh("j")}
	jref := jb.Ref()
	leftRow := types.NewProperty(jref, lb.Var)

	used := make(map[string]bool)
	for i, col := range proj.Columns {
		if i != direct {
			used[col.Name] = true
		}
	}
	var cols []types.Column
	for i, col := range proj.Columns {
		if i != direct {
			e := types.MapVar(top.exprs[i], top.v, func(path []string) types.Expr {
				return types.Chain(leftRow, path)
			})
			cols = append(cols, types.Column{Name: col.Name, Expr: e})
			continue
		}
		elem := rebind(part, g.input, types.NewProperty(jref, rb.Var))
		if !elem.Type().IsRow() {
			cols = append(cols, types.Column{Name: col.Name, Expr: elem})
			continue
		}
		for _, path := range types.LeafPaths(elem.Type()) {
			cols = append(cols, types.Column{Name: unique(path[len(path)-1], used), Expr: types.Chain(elem, path)})
		}
	}
	return types.NewProject(jb, cols), nil
}

func retype(e types.Expr, v string, input types.Expr) types.Expr {
	ref := types.NewVarRef(v, input.Type().Element())
	return types.MapVar(e, v, func(path []string) types.Expr {
		return types.Chain(ref, path)
	})
}

// mapScoped rebuilds e bottom-up with fn, skipping subtrees that rebind v.
func mapScoped(e types.Expr, v string, fn func(types.Expr) types.Expr) types.Expr {
	if e == nil {
		return nil
	}
	children := types.Children(e)
	var out []types.Expr
	for i, ch := range children {
		if ch == nil || rebinds(types.Scope(e, i), v) {
			continue
		}
		nc := mapScoped(ch, v, fn)
		if nc != ch {
			if out == nil {
				out = append([]types.Expr(nil), children...)
			}
			out[i] = nc
		}
	}
	if out != nil {
		e = types.WithChildren(e, out)
	}
	return fn(e)
}

func rebinds(scope []string, v string) bool {
	for _, s := range scope {
		if s == v {
			return true
		}
	}
	return false
}

func (c *composer) fresh(prefix string) string {
	for {
		c.counters[prefix]++
		name := fmt.Sprintf("%s%d", prefix, c.counters[prefix])
		if !c.names[name] {
			c.names[name] = true
			return name
		}
	}
}

func unique(name string, used map[string]bool) string {
	candidate := name
	for i := 1; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	used[candidate] = true
	return candidate
}
