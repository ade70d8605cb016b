package sqlgen

import (
	"fmt"
	"strings"

	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/types"
)

// Render writes e, a relational expression that has been through every
// rewrite stage, as a single SELECT in dialect d.
func Render(d Dialect, e types.Expr) (*types.QueryResult, error) {
	if !types.IsRelational(e) {
		return nil, ErrUnrenderable.New(types.Format(e), "the root must be a collection")
	}
	g := &emitter{
		writer:  writer{d: d, caps: d.Capabilities()},
		aliases: render.NewAliases(),
		seen:    make(map[string]int),
	}
	s, err := g.relation(e, nil)
	if err != nil {
		return nil, err
	}
	sql, _ := g.write(s, true)

	names := make([]string, len(g.params))
	for i, p := range g.params {
		names[i] = p.Name
	}
	return &types.QueryResult{
		SQL:            sql,
		RequiredParams: names,
		Params:         g.params,
		Positional:     g.caps.PositionalParams,
	}, nil
}

type emitter struct {
	writer
	aliases *render.Aliases
	seen    map[string]int
	params  []types.Parameter
}

// wrap turns s into a derived table named after the operation that built it.
func (g *emitter) wrap(s *statement) *statement {
	sql, cols := g.write(s, false)
	alias := g.quote(g.aliases.Next(s.label))
	sym := newSymbol()
	for _, p := range cols.paths {
		sym.add(p, alias+"."+g.quote(cols.cols[pathKey(p)]))
	}
	return &statement{
		label: s.label,
		alias: alias,
		from:  []fromItem{{source: "(" + sql + ") AS " + alias}},
		sym:   sym,
	}
}

func (g *emitter) relation(e types.Expr, env scope) (*statement, error) {
	switch n := e.(type) {
	case *types.Scan:
		return g.scan(n), nil
	case *types.Filter:
		return g.filter(n, env)
	case *types.Project:
		return g.project(n, env)
	case *types.Join:
		return g.join(n, env)
	case *types.GroupBy:
		return g.groupBy(n, env)
	case *types.Sort:
		return g.sort(n, env)
	case *types.Page:
		return g.page(n, env)
	case *types.Distinct:
		s, err := g.relation(n.Input, env)
		if err != nil {
			return nil, err
		}
		if !s.canDistinct() {
			s = g.wrap(s)
		}
		s.distinct, s.orderBy, s.label = true, nil, "Distinct"
		return s, nil
	case *types.SetOp:
		return g.setOp(n, env)
	case *types.Values:
		return g.values(n, env)
	case *types.SingleRow:
		sym := newSymbol()
		sym.add([]string{types.SingleRowColumn}, types.SingleRowColumn)
		return &statement{raw: "SELECT 1 AS " + g.quote(types.SingleRowColumn), sym: sym, label: "SingleRowTable"}, nil
	case *types.Skip, *types.Limit:
		return nil, ErrUnrenderable.New(types.Format(e), "skip and limit must be paged first")
	}
	return nil, ErrUnrenderable.New(types.Format(e), "not a collection")
}

func (g *emitter) scan(n *types.Scan) *statement {
	alias := g.quote(g.aliases.Next("Extent"))
	table := g.quote(n.Set.Table)
	if n.Set.Schema != "" {
		table = g.quote(n.Set.Schema) + "." + table
	}
	sym := newSymbol()
	for _, p := range n.Set.Properties {
		sym.add([]string{p.Name}, alias+"."+g.quote(p.Column))
	}
	return &statement{
		label: "Extent",
		from:  []fromItem{{source: table + " AS " + alias}},
		sym:   sym,
	}
}

func (g *emitter) filter(n *types.Filter, env scope) (*statement, error) {
	s, err := g.relation(n.Input.Input, env)
	if err != nil {
		return nil, err
	}
	if !s.canFilter() {
		s = g.wrap(s)
	}
	pred, err := g.predicate(n.Predicate, env.with(n.Input.Var, s.sym))
	if err != nil {
		return nil, err
	}
	s.where = append(s.where, pred)
	s.label = "Filter"
	return s, nil
}

func (g *emitter) project(n *types.Project, env scope) (*statement, error) {
	s, err := g.relation(n.Input.Input, env)
	if err != nil {
		return nil, err
	}
	if !s.canProject() {
		s = g.wrap(s)
	}
	inner := env.with(n.Input.Var, s.sym)
	sym := newSymbol()
	for _, c := range n.Columns {
		if err := g.column(sym, c.Name, c.Expr, inner); err != nil {
			return nil, err
		}
	}
	s.sym, s.projected, s.label = sym, true, "Project"
	return s, nil
}

// column adds one output column to sym. Row-valued property chains expand
// to one column per leaf.
func (g *emitter) column(sym *symbol, name string, e types.Expr, env scope) error {
	if !e.Type().IsRow() {
		sql, err := g.value(e, env)
		if err != nil {
			return err
		}
		sym.add([]string{name}, sql)
		return nil
	}
	row, err := g.row(e, env)
	if err != nil {
		return err
	}
	sym.nest(name, row)
	return nil
}

func (g *emitter) row(e types.Expr, env scope) (*symbol, error) {
	root, path, ok := types.Path(e)
	if !ok {
		return nil, ErrUnrenderable.New(types.Format(e), "row-valued expression")
	}
	sym, ok := env[root]
	if !ok {
		return nil, ErrUnboundVariable.New(root)
	}
	if len(path) == 0 {
		return sym, nil
	}
	row, ok := sym.sub(path)
	if !ok {
		return nil, ErrUnrenderable.New(types.Format(e), "no such row")
	}
	return row, nil
}

func (g *emitter) join(n *types.Join, env scope) (*statement, error) {
	left, err := g.relation(n.Left.Input, env)
	if err != nil {
		return nil, err
	}
	if !left.canJoin() {
		left = g.wrap(left)
	}

	renv := env
	if n.JoinKind.IsApply() {
		renv = env.with(n.Left.Var, left.sym)
	}
	right, err := g.relation(n.Right.Input, renv)
	if err != nil {
		return nil, err
	}
	if n.JoinKind.IsApply() || !right.single() {
		right = g.wrap(right)
	}

	item := fromItem{join: string(n.JoinKind), source: right.from[0].source}
	switch {
	case n.JoinKind.IsApply():
		item.join, item.on, err = g.apply(n.JoinKind)
		if err != nil {
			return nil, err
		}
	case n.JoinKind == types.CrossJoin:
	default:
		on := n.On
		if on == nil {
			on = types.NewConstant(true, types.PrimitiveOf(types.Boolean, false))
		}
		item.on, err = g.predicate(on, env.with(n.Left.Var, left.sym).with(n.Right.Var, right.sym))
		if err != nil {
			return nil, err
		}
	}

	sym := newSymbol()
	sym.nest(n.Left.Var, left.sym)
	sym.nest(n.Right.Var, right.sym)
	left.from = append(left.from, item)
	left.sym, left.label = sym, "Join"
	return left, nil
}

func (g *emitter) apply(kind types.JoinKind) (join, on string, err error) {
	switch g.caps.Apply {
	case render.ApplyKeyword:
		return string(kind), "", nil
	case render.ApplyLateral:
		if kind == types.OuterApply {
			return "LEFT JOIN LATERAL", "1 = 1", nil
		}
		return "CROSS JOIN LATERAL", "", nil
	}
	return "", "", render.NewUnsupportedFeatureError(g.d.Name(), string(kind), "rewrite the correlated collection as a join")
}

func (g *emitter) groupBy(n *types.GroupBy, env scope) (*statement, error) {
	s, err := g.relation(n.Input.Input, env)
	if err != nil {
		return nil, err
	}
	if !s.canGroup() {
		s = g.wrap(s)
	}
	inner := env.with(n.Input.Var, s.sym).with(n.Input.GroupVar, s.sym)

	keys := make([]string, len(n.Keys))
	if g.needsKeyProjection(n) {
		// Keys that read no column are computed one level down and grouped
		// by their output column.
		for _, k := range n.Keys {
			sql, err := g.value(k.Expr, inner)
			if err != nil {
				return nil, err
			}
			s.sym.add([]string{"", k.Name}, sql)
		}
		s.label = "GroupBy"
		s = g.wrap(s)
		inner = env.with(n.Input.Var, s.sym).with(n.Input.GroupVar, s.sym)
		for i, k := range n.Keys {
			keys[i], _ = s.sym.leaf([]string{"", k.Name})
		}
	} else {
		for i, k := range n.Keys {
			if keys[i], err = g.value(k.Expr, inner); err != nil {
				return nil, err
			}
		}
	}

	sym := newSymbol()
	for i, k := range n.Keys {
		sym.add([]string{k.Name}, keys[i])
	}
	for _, a := range n.Aggregates {
		sql, err := g.value(a.Expr, inner)
		if err != nil {
			return nil, err
		}
		sym.add([]string{a.Name}, sql)
	}
	s.groupBy = keys
	s.sym, s.label = sym, "GroupBy"
	s.projected, s.aggregated = true, true
	return s, nil
}

func (g *emitter) needsKeyProjection(n *types.GroupBy) bool {
	for _, k := range n.Keys {
		if types.Contains(k.Expr, types.KindAggregate, types.KindExists) {
			return true
		}
		if !types.References(k.Expr, n.Input.Var) && !types.References(k.Expr, n.Input.GroupVar) {
			return true
		}
	}
	return false
}

func (g *emitter) sort(n *types.Sort, env scope) (*statement, error) {
	s, err := g.relation(n.Input.Input, env)
	if err != nil {
		return nil, err
	}
	if !s.canSort() {
		s = g.wrap(s)
	}
	keys, err := g.sortKeys(n.Keys, env.with(n.Input.Var, s.sym))
	if err != nil {
		return nil, err
	}
	s.orderBy = keys
	return s, nil
}

func (g *emitter) sortKeys(keys []types.SortKey, env scope) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		sql, err := g.value(k.Expr, env)
		if err != nil {
			return nil, err
		}
		out[i] = sql + " " + string(k.Direction)
	}
	return out, nil
}

// page renders a Page either as TOP/LIMIT over an ordered statement or, when
// rows are skipped, as a filter on a row_number() column computed one level
// down.
func (g *emitter) page(n *types.Page, env scope) (*statement, error) {
	s, err := g.relation(n.Input.Input, env)
	if err != nil {
		return nil, err
	}

	if n.Skip == nil {
		if s.raw != "" || s.top != "" || len(s.extra) > 0 || (s.distinct && len(n.Keys) > 0) {
			s = g.wrap(s)
		}
		keys, err := g.sortKeys(n.Keys, env.with(n.Input.Var, s.sym))
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			s.orderBy = keys
		}
		if s.top, err = g.value(n.Limit, env); err != nil {
			return nil, err
		}
		s.label = "Limit"
		return s, nil
	}

	if !g.caps.RowNumber {
		return nil, render.NewUnsupportedFeatureError(g.d.Name(), "row_number", "skip needs window functions")
	}
	if s.raw != "" || s.top != "" || s.distinct || len(s.extra) > 0 {
		s = g.wrap(s)
	}
	keys, err := g.sortKeys(n.Keys, env.with(n.Input.Var, s.sym))
	if err != nil {
		return nil, err
	}
	rn := g.quote(n.RowNumber)
	s.extra = []string{"row_number() OVER (ORDER BY " + strings.Join(keys, ", ") + ") AS " + rn}
	s.orderBy, s.label = nil, "Skip"
	out := g.wrap(s)

	skip, err := g.value(n.Skip, env)
	if err != nil {
		return nil, err
	}
	out.where = []string{out.alias + "." + rn + " > " + skip}
	out.orderBy = []string{out.alias + "." + rn + " ASC"}
	if n.Limit != nil {
		if out.top, err = g.value(n.Limit, env); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *emitter) setOp(n *types.SetOp, env scope) (*statement, error) {
	switch {
	case n.Op == types.Intersect && !g.caps.Intersect, n.Op == types.Except && !g.caps.Except:
		return nil, render.NewUnsupportedFeatureError(g.d.Name(), string(n.Op))
	}
	operand := func(e types.Expr) (string, *symbol, error) {
		s, err := g.relation(e, env)
		if err != nil {
			return "", nil, err
		}
		if s.raw != "" || s.top != "" || len(s.extra) > 0 {
			s = g.wrap(s)
		}
		sql, cols := g.write(s, false)
		return sql, cols, nil
	}
	left, cols, err := operand(n.Left)
	if err != nil {
		return nil, err
	}
	right, _, err := operand(n.Right)
	if err != nil {
		return nil, err
	}
	return &statement{
		raw:   left + " " + string(n.Op) + " " + right,
		sym:   cols,
		label: setOpLabel(n.Op),
	}, nil
}

func setOpLabel(op types.SetOpKind) string {
	switch op {
	case types.UnionAll:
		return "UnionAll"
	case types.Union:
		return "Union"
	case types.Intersect:
		return "Intersect"
	}
	return "Except"
}

func (g *emitter) values(n *types.Values, env scope) (*statement, error) {
	fields := n.Type().Element().Fields
	sym := newSymbol()
	for _, name := range n.Names {
		sym.add([]string{name}, name)
	}
	selectRow := func(cells []string) string {
		cols := make([]string, len(cells))
		for i, c := range cells {
			cols[i] = c + " AS " + g.quote(n.Names[i])
		}
		return "SELECT " + strings.Join(cols, ", ")
	}

	if len(n.Rows) == 0 {
		cells := make([]string, len(n.Names))
		for i := range cells {
			cells[i] = g.d.Null(fields[i].Type)
		}
		return &statement{raw: selectRow(cells) + " WHERE 1 = 0", sym: sym, label: "Values"}, nil
	}

	rows := make([]string, len(n.Rows))
	for r, row := range n.Rows {
		if len(row) != len(n.Names) {
			return nil, ErrUnrenderable.New(types.Format(n), fmt.Sprintf("row %d has %d cells", r, len(row)))
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			var err error
			if cell.Kind() == types.KindNull {
				cells[i] = g.d.Null(fields[i].Type)
				continue
			}
			if cells[i], err = g.value(cell, env); err != nil {
				return nil, err
			}
		}
		rows[r] = selectRow(cells)
	}
	return &statement{raw: strings.Join(rows, " UNION ALL "), sym: sym, label: "Values"}, nil
}
