package sqlgen

import (
	"strings"

	"github.com/zoobzio/entsql/internal/types"
)

// value renders e where SQL expects a value. Predicates are turned into a
// CASE producing the dialect's Boolean literals.
func (g *emitter) value(e types.Expr, env scope) (string, error) {
	if types.IsPredicate(e) {
		p, err := g.predicate(e, env)
		if err != nil {
			return "", err
		}
		t, f := g.d.Bool(true), g.d.Bool(false)
		if !e.Type().Nullable {
			return "CASE WHEN " + p + " THEN " + t + " ELSE " + f + " END", nil
		}
		return "CASE WHEN " + p + " THEN " + t + " WHEN NOT (" + p + ") THEN " + f + " END", nil
	}

	switch n := e.(type) {
	case *types.Constant:
		return g.d.Literal(n.Value, n.Type())
	case *types.Null:
		return g.d.Null(n.Type()), nil
	case *types.Param:
		return g.param(n), nil
	case *types.VarRef, *types.Property:
		return g.read(e, env)
	case *types.Function:
		args, err := g.valueList(n.Args, env)
		if err != nil {
			return "", err
		}
		if sql, ok := g.d.Function(n.Name, args); ok {
			return sql, nil
		}
		return strings.TrimPrefix(n.Name, "Edm.") + "(" + strings.Join(args, ", ") + ")", nil
	case *types.Case:
		return g.caseExpr(n, env)
	case *types.Arithmetic:
		l, err := g.arithmeticOperand(n.Left, env)
		if err != nil {
			return "", err
		}
		r, err := g.arithmeticOperand(n.Right, env)
		if err != nil {
			return "", err
		}
		return l + " " + string(n.Op) + " " + r, nil
	case *types.Aggregate:
		return g.aggregate(n, env)
	}
	return "", ErrUnrenderable.New(types.Format(e), "not a scalar value")
}

func (g *emitter) valueList(exprs []types.Expr, env scope) ([]string, error) {
	out := make([]string, len(exprs))
	for i, e := range exprs {
		sql, err := g.value(e, env)
		if err != nil {
			return nil, err
		}
		out[i] = sql
	}
	return out, nil
}

func (g *emitter) arithmeticOperand(e types.Expr, env scope) (string, error) {
	sql, err := g.value(e, env)
	if err != nil {
		return "", err
	}
	if e.Kind() == types.KindArithmetic {
		return "(" + sql + ")", nil
	}
	return sql, nil
}

// read resolves a property chain against the symbols in scope.
func (g *emitter) read(e types.Expr, env scope) (string, error) {
	root, path, ok := types.Path(e)
	if !ok {
		return "", ErrUnrenderable.New(types.Format(e), "not a property chain")
	}
	sym, ok := env[root]
	if !ok {
		return "", ErrUnboundVariable.New(root)
	}
	sql, ok := sym.leaf(path)
	if !ok {
		return "", ErrUnrenderable.New(types.Format(e), "row-valued expression in scalar position")
	}
	return sql, nil
}

func (g *emitter) param(p *types.Param) string {
	pos, ok := g.seen[p.Name]
	if !ok {
		g.params = append(g.params, types.Parameter{Name: p.Name, Type: p.Type()})
		pos = len(g.params)
		g.seen[p.Name] = pos
	}
	return g.d.Placeholder(p.Name, pos)
}

func (g *emitter) caseExpr(n *types.Case, env scope) (string, error) {
	var b strings.Builder
	b.WriteString("CASE")
	for _, w := range n.Whens {
		cond, err := g.predicate(w.When, env)
		if err != nil {
			return "", err
		}
		then, err := g.value(w.Then, env)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHEN " + cond + " THEN " + then)
	}
	if n.Else != nil {
		els, err := g.value(n.Else, env)
		if err != nil {
			return "", err
		}
		b.WriteString(" ELSE " + els)
	}
	b.WriteString(" END")
	return b.String(), nil
}

// predicate renders e where SQL expects a search condition.
func (g *emitter) predicate(e types.Expr, env scope) (string, error) {
	switch n := e.(type) {
	case *types.Compare:
		l, err := g.value(n.Left, env)
		if err != nil {
			return "", err
		}
		r, err := g.value(n.Right, env)
		if err != nil {
			return "", err
		}
		return l + " " + string(n.Op) + " " + r, nil
	case *types.Logical:
		l, err := g.logicalOperand(n.Left, env)
		if err != nil {
			return "", err
		}
		r, err := g.logicalOperand(n.Right, env)
		if err != nil {
			return "", err
		}
		return l + " " + string(n.Op) + " " + r, nil
	case *types.Not:
		if isNull, ok := n.Arg.(*types.IsNull); ok {
			v, err := g.value(isNull.Arg, env)
			if err != nil {
				return "", err
			}
			return v + " IS NOT NULL", nil
		}
		p, err := g.predicate(n.Arg, env)
		if err != nil {
			return "", err
		}
		return "NOT (" + p + ")", nil
	case *types.IsNull:
		v, err := g.value(n.Arg, env)
		if err != nil {
			return "", err
		}
		return v + " IS NULL", nil
	case *types.In:
		if len(n.List) == 0 {
			return "1 = 0", nil
		}
		arg, err := g.value(n.Arg, env)
		if err != nil {
			return "", err
		}
		list, err := g.valueList(n.List, env)
		if err != nil {
			return "", err
		}
		return arg + " IN (" + strings.Join(list, ", ") + ")", nil
	case *types.Exists:
		sub, err := g.exists(n.Input, env)
		if err != nil {
			return "", err
		}
		return "EXISTS (" + sub + ")", nil
	case *types.Constant:
		if v, ok := n.Value.(bool); ok {
			if v {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
	}

	v, err := g.value(e, env)
	if err != nil {
		return "", err
	}
	if g.caps.BooleanColumns {
		return v + " = " + g.d.Bool(true), nil
	}
	return v + " = 1", nil
}

// logicalOperand parenthesizes everything but null tests.
func (g *emitter) logicalOperand(e types.Expr, env scope) (string, error) {
	p, err := g.predicate(e, env)
	if err != nil {
		return "", err
	}
	switch n := e.(type) {
	case *types.IsNull:
		return p, nil
	case *types.Not:
		if n.Arg.Kind() == types.KindIsNull {
			return p, nil
		}
	}
	return "(" + p + ")", nil
}

func (g *emitter) exists(input types.Expr, env scope) (string, error) {
	s, err := g.relation(input, env)
	if err != nil {
		return "", err
	}
	if s.raw == "" && !s.distinct && len(s.extra) == 0 {
		one := newSymbol()
		one.add([]string{"C1"}, "1")
		s.sym = one
	}
	sql, _ := g.write(s, false)
	return sql, nil
}

// aggregate renders a per-group aggregate in place and a collection
// aggregate as a scalar subquery.
func (g *emitter) aggregate(n *types.Aggregate, env scope) (string, error) {
	if n.Func == types.AggGroupPartition {
		return "", ErrUnrenderable.New(types.Format(n), "group partitions must be composed first")
	}
	if !n.IsCollectionAggregate() {
		if n.Arg == nil {
			return g.call(n, "1"), nil
		}
		arg, err := g.value(n.Arg, env)
		if err != nil {
			return "", err
		}
		return g.call(n, arg), nil
	}

	s, err := g.relation(n.Arg, env)
	if err != nil {
		return "", err
	}
	if !s.canGroup() {
		s = g.wrap(s)
	}
	arg := "1"
	if n.Func != types.AggCount || n.Distinct {
		if len(s.sym.paths) == 0 {
			return "", ErrUnrenderable.New(types.Format(n), "aggregate over a collection without columns")
		}
		arg = s.sym.cols[pathKey(s.sym.paths[0])]
	}
	sym := newSymbol()
	sym.add([]string{"A1"}, g.call(n, arg))
	s.sym, s.projected, s.aggregated = sym, true, true
	s.orderBy = nil
	sql, _ := g.write(s, false)
	return "(" + sql + ")", nil
}

func (g *emitter) call(n *types.Aggregate, arg string) string {
	if n.Distinct {
		arg = "DISTINCT " + arg
	}
	return g.d.Aggregate(n.Func) + "(" + arg + ")"
}
