package parse

import (
	"strings"

	"gopkg.in/src-d/go-vitess.v1/vt/sqlparser"

	"github.com/zoobzio/entsql"
)

// aliasPath locates a FROM alias inside the current row: joins nest their
// inputs under the binding variables of each side.
type aliasPath struct {
	alias string
	path  []string
}

// from is the converted FROM clause.
type from struct {
	input   entsql.Expr
	aliases []aliasPath
}

// bound is a FROM clause with its current row named.
type bound struct {
	b       entsql.Binding
	aliases []aliasPath
}

// scope returns the names visible for the current row of x.
func (x bound) scope(parent *scope) *scope {
	return &scope{parent: parent, sources: x.sources()}
}

func (x bound) sources() []source {
	out := make([]source, 0, len(x.aliases))
	for _, a := range x.aliases {
		var row entsql.Expr = x.b.Ref()
		for _, member := range a.path {
			row = entsql.Prop(row, member)
		}
		out = append(out, source{alias: a.alias, row: row})
	}
	return out
}

func (p *parser) bind(input entsql.Expr, aliases []aliasPath) (bound, error) {
	base := "j"
	if len(aliases) == 1 && len(aliases[0].path) == 0 {
		base = aliases[0].alias
	}
	b, err := entsql.TryBind(input, p.fresh(base))
	if err != nil {
		return bound{}, err
	}
	return bound{b: b, aliases: aliases}, nil
}

type source struct {
	alias string
	row   entsql.Expr
}

// scope resolves column names. Subqueries see the scopes of the queries
// enclosing them through parent.
type scope struct {
	parent  *scope
	sources []source
}

// column resolves c to a property read. depth counts the enclosing queries
// walked to find it.
func (s *scope) column(c *sqlparser.ColName) (entsql.Expr, int, error) {
	qualifier := c.Qualifier.Name.String()
	name := c.Name.String()

	depth := 0
	for cur := s; cur != nil; cur = cur.parent {
		var (
			found  entsql.Expr
			seen   int
			listed bool
		)
		for _, src := range cur.sources {
			if qualifier != "" && !strings.EqualFold(src.alias, qualifier) {
				continue
			}
			listed = true
			i := fieldIndex(src.row.Type().Fields, name)
			if i < 0 {
				continue
			}
			seen++
			found = entsql.Prop(src.row, src.row.Type().Fields[i].Name)
		}
		switch {
		case seen > 1:
			return nil, 0, ErrAmbiguousColumn.New(sqlparser.String(c))
		case seen == 1:
			return found, depth, nil
		case listed && qualifier != "":
			return nil, 0, ErrUnknownColumn.New(sqlparser.String(c))
		}
		depth++
	}
	return nil, 0, ErrUnknownColumn.New(sqlparser.String(c))
}

// tableExprs converts a FROM clause. A comma list is a cross join.
func (p *parser) tableExprs(te sqlparser.TableExprs, outer *scope) (from, error) {
	if len(te) == 0 {
		return from{}, ErrUnsupportedFeature.New("SELECT without FROM")
	}
	acc, err := p.tableExpr(te[0], outer)
	if err != nil {
		return from{}, err
	}
	for _, t := range te[1:] {
		next, err := p.tableExpr(t, outer)
		if err != nil {
			return from{}, err
		}
		if acc, err = p.join(acc, next, sqlparser.JoinStr, nil, outer); err != nil {
			return from{}, err
		}
	}
	return acc, nil
}

func (p *parser) tableExpr(te sqlparser.TableExpr, outer *scope) (from, error) {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		switch e := t.Expr.(type) {
		case sqlparser.TableName:
			if !e.Qualifier.IsEmpty() {
				return from{}, ErrUnsupportedFeature.New("qualified entity set " + sqlparser.String(e))
			}
			if e.Name.String() == "dual" {
				return from{}, ErrUnsupportedFeature.New("SELECT without FROM")
			}
			set, ok := p.ws.LookupSet(e.Name.String())
			if !ok {
				return from{}, entsql.ErrUnknownEntitySet.New(e.Name.String())
			}
			scan, err := p.ws.TryScan(set.Name)
			if err != nil {
				return from{}, err
			}
			alias := set.Name
			if !t.As.IsEmpty() {
				alias = t.As.String()
			}
			return from{input: scan, aliases: []aliasPath{{alias: alias}}}, nil
		case *sqlparser.Subquery:
			if t.As.IsEmpty() {
				return from{}, ErrUnsupportedFeature.New("subquery without alias")
			}
			node, err := p.statement(e.Select, nil)
			if err != nil {
				return from{}, err
			}
			return from{input: node, aliases: []aliasPath{{alias: t.As.String()}}}, nil
		default:
			return from{}, ErrUnsupportedSyntax.New(sqlparser.String(te))
		}
	case *sqlparser.ParenTableExpr:
		return p.tableExprs(t.Exprs, outer)
	case *sqlparser.JoinTableExpr:
		if len(t.Condition.Using) > 0 {
			return from{}, ErrUnsupportedFeature.New("using clause on join")
		}
		left, err := p.tableExpr(t.LeftExpr, outer)
		if err != nil {
			return from{}, err
		}
		right, err := p.tableExpr(t.RightExpr, outer)
		if err != nil {
			return from{}, err
		}
		return p.join(left, right, t.Join, t.Condition.On, outer)
	default:
		return from{}, ErrUnsupportedSyntax.New(sqlparser.String(te))
	}
}

// join combines two FROM items. The output row holds each side under its
// binding variable, so every alias path gains that variable as a prefix.
func (p *parser) join(left, right from, kind string, on sqlparser.Expr, outer *scope) (from, error) {
	lb, err := p.bind(left.input, left.aliases)
	if err != nil {
		return from{}, err
	}
	rb, err := p.bind(right.input, right.aliases)
	if err != nil {
		return from{}, err
	}
	for _, l := range left.aliases {
		for _, r := range right.aliases {
			if strings.EqualFold(l.alias, r.alias) {
				return from{}, entsql.ErrInvalidQuery.New("duplicate alias in FROM: " + r.alias)
			}
		}
	}

	var pred entsql.Expr
	if on != nil {
		both := &scope{parent: outer, sources: append(lb.sources(), rb.sources()...)}
		if pred, err = p.predicate(on, env{scope: both}); err != nil {
			return from{}, err
		}
	}

	var node entsql.Expr
	switch {
	case kind == sqlparser.JoinStr && pred == nil:
		node, err = entsql.TryCrossJoin(lb.b, rb.b)
	case kind == sqlparser.JoinStr:
		node, err = entsql.TryInnerJoin(lb.b, rb.b, pred)
	case kind == sqlparser.LeftJoinStr && pred != nil:
		node, err = entsql.TryLeftOuterJoin(lb.b, rb.b, pred)
	default:
		return from{}, ErrUnsupportedFeature.New(kind)
	}
	if err != nil {
		return from{}, err
	}

	aliases := make([]aliasPath, 0, len(left.aliases)+len(right.aliases))
	for _, a := range left.aliases {
		aliases = append(aliases, aliasPath{alias: a.alias, path: append([]string{lb.b.Var}, a.path...)})
	}
	for _, a := range right.aliases {
		aliases = append(aliases, aliasPath{alias: a.alias, path: append([]string{rb.b.Var}, a.path...)})
	}
	return from{input: node, aliases: aliases}, nil
}
