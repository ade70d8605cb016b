// Package parse reads textual entity queries into expression trees.
//
// The text is a SELECT over the entity sets of a workspace rather than over
// tables, with properties in place of columns:
//
//	SELECT b.Title, a.Name
//	FROM Books AS b LEFT JOIN Authors AS a ON b.AuthorId = a.Id
//	WHERE b.Year > :year
//	ORDER BY b.Title
//	LIMIT 10
//
// Parameters are written :name (a bare ? becomes :v1, :v2, ...). Their type
// is taken from the operand they are compared with, so a parameter must
// appear next to a typed expression.
package parse

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	errors "gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-vitess.v1/vt/sqlparser"

	"github.com/zoobzio/entsql"
	"github.com/zoobzio/entsql/internal/types"
)

var (
	// ErrSyntax is returned when the text is not valid SQL.
	ErrSyntax = errors.NewKind("syntax error: %s")

	// ErrUnsupportedSyntax is returned for valid SQL with no entity query
	// equivalent.
	ErrUnsupportedSyntax = errors.NewKind("unsupported syntax: %s")

	// ErrUnsupportedFeature is returned for SQL features not accepted yet.
	ErrUnsupportedFeature = errors.NewKind("unsupported feature: %s")

	// ErrInvalidSQLValType is returned when a SQLVal type is not valid.
	ErrInvalidSQLValType = errors.NewKind("invalid SQLVal of type: %d")

	// ErrUnknownColumn is returned when a name matches no property in scope.
	ErrUnknownColumn = errors.NewKind("unknown column %q")

	// ErrAmbiguousColumn is returned when an unqualified name matches
	// properties of more than one source.
	ErrAmbiguousColumn = errors.NewKind("ambiguous column %q")

	// ErrUntypedParameter is returned when a parameter or NULL has no typed
	// operand to take its type from.
	ErrUntypedParameter = errors.NewKind("cannot infer the type of %s")

	// ErrNotGrouped is returned when a grouped select reads a column that is
	// neither a group key nor inside an aggregate.
	ErrNotGrouped = errors.NewKind("column %s must appear in GROUP BY or in an aggregate")
)

// Parse reads query as an entity query over ws. The parsed tree is logged
// at debug level on the standard logrus logger.
func Parse(ws *entsql.Workspace, query string) (entsql.Expr, error) {
	return ParseWith(ws, query, nil)
}

// ParseWith is Parse logging to log. A nil log uses the standard logger.
func ParseWith(ws *entsql.Workspace, query string, log *logrus.Logger) (entsql.Expr, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := strings.TrimSpace(query)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return nil, ErrUnsupportedSyntax.New("empty query")
	}

	stmt, err := sqlparser.Parse(s)
	if err != nil {
		return nil, ErrSyntax.Wrap(err, err.Error())
	}

	p := &parser{ws: ws, used: make(map[string]bool)}
	e, err := p.statement(stmt, nil)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"component": "parse",
		"query":     query,
		"tree":      entsql.Format(e),
	}).Debug("parsed query")
	return e, nil
}

type parser struct {
	ws   *entsql.Workspace
	used map[string]bool
}

// fresh returns an unused variable name based on base.
func (p *parser) fresh(base string) string {
	if !validIdent(base) {
		base = "t"
	}
	name := base
	for i := 1; p.used[strings.ToLower(name)]; i++ {
		name = base + strconv.Itoa(i)
	}
	p.used[strings.ToLower(name)] = true
	return name
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func (p *parser) statement(stmt sqlparser.Statement, outer *scope) (entsql.Expr, error) {
	switch n := stmt.(type) {
	case *sqlparser.Select:
		return p.selectStmt(n, outer)
	case *sqlparser.ParenSelect:
		return p.statement(n.Select, outer)
	case *sqlparser.Union:
		return p.union(n, outer)
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(stmt))
	}
}

func (p *parser) union(u *sqlparser.Union, outer *scope) (entsql.Expr, error) {
	left, err := p.statement(u.Left, outer)
	if err != nil {
		return nil, err
	}
	right, err := p.statement(u.Right, outer)
	if err != nil {
		return nil, err
	}

	var node entsql.Expr
	switch u.Type {
	case sqlparser.UnionStr, sqlparser.UnionDistinctStr:
		node, err = entsql.TryUnion(left, right)
	case sqlparser.UnionAllStr:
		node, err = entsql.TryUnionAll(left, right)
	default:
		return nil, ErrUnsupportedFeature.New(u.Type)
	}
	if err != nil {
		return nil, err
	}

	if len(u.OrderBy) > 0 {
		if node, err = p.sortOutput(node, u.OrderBy, nil); err != nil {
			return nil, err
		}
	}
	return p.limit(node, u.Limit, outer)
}

func (p *parser) selectStmt(s *sqlparser.Select, outer *scope) (entsql.Expr, error) {
	f, err := p.tableExprs(s.From, outer)
	if err != nil {
		return nil, err
	}
	x, err := p.bind(f.input, f.aliases)
	if err != nil {
		return nil, err
	}

	if s.Where != nil {
		pred, err := p.predicate(s.Where.Expr, env{scope: x.scope(outer)})
		if err != nil {
			return nil, err
		}
		filtered, err := entsql.TryFilter(x.b, pred)
		if err != nil {
			return nil, err
		}
		if x, err = p.bind(filtered, x.aliases); err != nil {
			return nil, err
		}
	}

	aggs := aggregatesIn(s)
	grouped := len(s.GroupBy) > 0 || len(aggs) > 0
	if !grouped && s.Having != nil {
		return nil, ErrUnsupportedFeature.New("HAVING without GROUP BY")
	}

	var node entsql.Expr
	if grouped {
		node, err = p.groupedSelect(s, x, aggs, outer)
	} else {
		node, err = p.plainSelect(s, x, outer)
	}
	if err != nil {
		return nil, err
	}
	return p.limit(node, s.Limit, outer)
}

// plainSelect projects x. Sorting happens before the projection so that
// ORDER BY can read properties that are not selected.
func (p *parser) plainSelect(s *sqlparser.Select, x bound, outer *scope) (entsql.Expr, error) {
	distinct := s.Distinct != ""
	if len(s.OrderBy) > 0 && !distinct {
		keys := make([]entsql.SortKey, len(s.OrderBy))
		for i, o := range s.OrderBy {
			target := o.Expr
			if se, ok := selectedByAlias(s.SelectExprs, o.Expr); ok {
				target = se
			}
			e, err := p.value(target, env{scope: x.scope(outer)}, nil)
			if err != nil {
				return nil, err
			}
			if keys[i], err = sortKey(e, o.Direction); err != nil {
				return nil, err
			}
		}
		sorted, err := entsql.TrySort(x.b, keys...)
		if err != nil {
			return nil, err
		}
		if x, err = p.bind(sorted, x.aliases); err != nil {
			return nil, err
		}
	}

	cols, err := p.columns(s.SelectExprs, env{scope: x.scope(outer)})
	if err != nil {
		return nil, err
	}
	node, err := entsql.TryProject(x.b, cols...)
	if err != nil {
		return nil, err
	}

	if distinct {
		if node, err = entsql.TryDistinct(node); err != nil {
			return nil, err
		}
		if len(s.OrderBy) > 0 {
			return p.sortOutput(node, s.OrderBy, s.SelectExprs)
		}
	}
	return node, nil
}

// groupedSelect groups x by the GROUP BY keys, computes every aggregate the
// select list, HAVING and ORDER BY mention, then projects the select list
// over the grouped rows.
func (p *parser) groupedSelect(s *sqlparser.Select, x bound, aggs []*sqlparser.FuncExpr, outer *scope) (entsql.Expr, error) {
	rows := x.scope(outer)
	group := bound{b: entsql.Binding{Input: x.b.Input, Var: p.fresh("g")}, aliases: x.aliases}
	gb := entsql.GroupBinding{Input: x.b.Input, Var: x.b.Var, GroupVar: group.b.Var}

	names := make(map[string]bool)
	keyText := make(map[string]string)
	keyTree := make(map[string]string)
	keys := make([]entsql.Column, len(s.GroupBy))
	for i, k := range s.GroupBy {
		e, err := p.value(k, env{scope: rows}, nil)
		if err != nil {
			return nil, err
		}
		name := unique(names, columnName(e, k, "K", i))
		keys[i] = entsql.As(e, name)
		keyText[sqlparser.String(k)] = name
		keyTree[entsql.Format(e)] = name
	}

	aggText := make(map[string]string)
	var aggCols []entsql.Column
	for _, f := range aggs {
		text := sqlparser.String(f)
		if _, ok := aggText[text]; ok {
			continue
		}
		e, err := p.aggregate(f, env{scope: group.scope(outer)})
		if err != nil {
			return nil, err
		}
		name := unique(names, "A"+strconv.Itoa(len(aggCols)+1))
		aggText[text] = name
		aggCols = append(aggCols, entsql.As(e, name))
	}

	grouped, err := entsql.TryGroupBy(gb, keys, aggCols)
	if err != nil {
		return nil, err
	}
	cur, err := entsql.TryBind(grouped, p.fresh("grp"))
	if err != nil {
		return nil, err
	}

	// onGroup reads keys and aggregates off the current grouped row.
	onGroup := func(e sqlparser.Expr) (entsql.Expr, bool, error) {
		if f, ok := e.(*sqlparser.FuncExpr); ok {
			if name, ok := aggText[sqlparser.String(f)]; ok {
				return entsql.Prop(cur.Ref(), name), true, nil
			}
		}
		if name, ok := keyText[sqlparser.String(e)]; ok {
			return entsql.Prop(cur.Ref(), name), true, nil
		}
		c, ok := e.(*sqlparser.ColName)
		if !ok {
			return nil, false, nil
		}
		v, depth, err := rows.column(c)
		if err != nil {
			return nil, false, err
		}
		if depth > 0 {
			return v, true, nil
		}
		if name, ok := keyTree[entsql.Format(v)]; ok {
			return entsql.Prop(cur.Ref(), name), true, nil
		}
		return nil, false, ErrNotGrouped.New(sqlparser.String(c))
	}
	out := env{scope: &scope{parent: outer}, group: onGroup}

	if s.Having != nil {
		pred, err := p.predicate(s.Having.Expr, out)
		if err != nil {
			return nil, err
		}
		filtered, err := entsql.TryFilter(cur, pred)
		if err != nil {
			return nil, err
		}
		if cur, err = entsql.TryBind(filtered, p.fresh("grp")); err != nil {
			return nil, err
		}
	}

	cols, err := p.columns(s.SelectExprs, out)
	if err != nil {
		return nil, err
	}
	node, err := entsql.TryProject(cur, cols...)
	if err != nil {
		return nil, err
	}
	if s.Distinct != "" {
		if node, err = entsql.TryDistinct(node); err != nil {
			return nil, err
		}
	}
	if len(s.OrderBy) > 0 {
		return p.sortOutput(node, s.OrderBy, s.SelectExprs)
	}
	return node, nil
}

// sortOutput orders the rows of a finished select by its output columns.
// Keys name a column or repeat a selected expression.
func (p *parser) sortOutput(node entsql.Expr, ob sqlparser.OrderBy, selected sqlparser.SelectExprs) (entsql.Expr, error) {
	b, err := entsql.TryBind(node, p.fresh("o"))
	if err != nil {
		return nil, err
	}
	fields := b.Element().Fields

	keys := make([]entsql.SortKey, len(ob))
	for i, o := range ob {
		col := -1
		if c, ok := o.Expr.(*sqlparser.ColName); ok && c.Qualifier.IsEmpty() {
			col = fieldIndex(fields, c.Name.String())
		}
		if col < 0 && !hasStar(selected) {
			text := sqlparser.String(o.Expr)
			for j, se := range selected {
				if ae, ok := se.(*sqlparser.AliasedExpr); ok && sqlparser.String(ae.Expr) == text && j < len(fields) {
					col = j
					break
				}
			}
		}
		if col < 0 {
			return nil, ErrUnsupportedFeature.New("ORDER BY " + sqlparser.String(o.Expr) + " must name a selected column")
		}
		if keys[i], err = sortKey(entsql.Prop(b.Ref(), fields[col].Name), o.Direction); err != nil {
			return nil, err
		}
	}
	return entsql.TrySort(b, keys...)
}

func hasStar(selected sqlparser.SelectExprs) bool {
	for _, se := range selected {
		if _, ok := se.(*sqlparser.StarExpr); ok {
			return true
		}
	}
	return false
}

func sortKey(e entsql.Expr, direction string) (entsql.SortKey, error) {
	switch direction {
	case sqlparser.AscScr, "":
		return entsql.Asc(e), nil
	case sqlparser.DescScr:
		return entsql.Desc(e), nil
	}
	return entsql.SortKey{}, ErrUnsupportedSyntax.New("sort order " + direction)
}

// selectedByAlias returns the selected expression an ORDER BY key names by
// its alias.
func selectedByAlias(selected sqlparser.SelectExprs, key sqlparser.Expr) (sqlparser.Expr, bool) {
	c, ok := key.(*sqlparser.ColName)
	if !ok || !c.Qualifier.IsEmpty() {
		return nil, false
	}
	for _, se := range selected {
		if ae, ok := se.(*sqlparser.AliasedExpr); ok && !ae.As.IsEmpty() && ae.As.EqualString(c.Name.String()) {
			return ae.Expr, true
		}
	}
	return nil, false
}

func (p *parser) limit(node entsql.Expr, l *sqlparser.Limit, outer *scope) (entsql.Expr, error) {
	if l == nil {
		return node, nil
	}
	count := entsql.TypeOf(entsql.Int32, false)
	en := env{scope: &scope{parent: outer}}
	if l.Offset != nil {
		n, err := p.value(l.Offset, en, &count)
		if err != nil {
			return nil, err
		}
		if node, err = entsql.TrySkip(node, n); err != nil {
			return nil, err
		}
	}
	if l.Rowcount == nil {
		return node, nil
	}
	n, err := p.value(l.Rowcount, en, &count)
	if err != nil {
		return nil, err
	}
	return entsql.TryLimit(node, n)
}

// columns converts a select list. Stars expand to every property of the
// sources in scope.
func (p *parser) columns(se sqlparser.SelectExprs, en env) ([]entsql.Column, error) {
	names := make(map[string]bool)
	var cols []entsql.Column
	for i, s := range se {
		switch e := s.(type) {
		case *sqlparser.StarExpr:
			if en.group != nil {
				return nil, ErrUnsupportedFeature.New("* in a grouped select")
			}
			qualifier := e.TableName.Name.String()
			matched := false
			for _, src := range en.scope.sources {
				if qualifier != "" && !strings.EqualFold(src.alias, qualifier) {
					continue
				}
				matched = true
				for _, f := range src.row.Type().Fields {
					cols = append(cols, entsql.As(entsql.Prop(src.row, f.Name), unique(names, f.Name)))
				}
			}
			if !matched {
				return nil, ErrUnknownColumn.New(sqlparser.String(e))
			}
		case *sqlparser.AliasedExpr:
			v, err := p.value(e.Expr, en, nil)
			if err != nil {
				return nil, err
			}
			name := columnName(v, e.Expr, "C", i)
			if !e.As.IsEmpty() {
				name = e.As.String()
				if names[strings.ToLower(name)] {
					return nil, entsql.ErrInvalidQuery.New("duplicate column name: " + name)
				}
				names[strings.ToLower(name)] = true
			} else {
				name = unique(names, name)
			}
			cols = append(cols, entsql.As(v, name))
		default:
			return nil, ErrUnsupportedSyntax.New(sqlparser.String(s))
		}
	}
	return cols, nil
}

// columnName picks the output name of an unaliased expression: the property
// a plain column reads, or prefix followed by its position.
func columnName(v entsql.Expr, ast sqlparser.Expr, prefix string, i int) string {
	if _, ok := ast.(*sqlparser.ColName); ok {
		if prop, ok := v.(*types.Property); ok {
			return prop.Name
		}
	}
	return prefix + strconv.Itoa(i+1)
}

func unique(names map[string]bool, name string) string {
	candidate := name
	for i := 1; names[strings.ToLower(candidate)]; i++ {
		candidate = name + strconv.Itoa(i)
	}
	names[strings.ToLower(candidate)] = true
	return candidate
}

func fieldIndex(fields []types.Field, name string) int {
	for i, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// aggregatesIn lists the aggregate calls of a select outside subqueries, in
// order of appearance.
func aggregatesIn(s *sqlparser.Select) []*sqlparser.FuncExpr {
	var out []*sqlparser.FuncExpr
	visit := func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Subquery:
			return false, nil
		case *sqlparser.FuncExpr:
			if _, ok := aggregateFuncs[n.Name.Lowered()]; ok {
				out = append(out, n)
				return false, nil
			}
		}
		return true, nil
	}
	_ = sqlparser.Walk(visit, s.SelectExprs)
	if s.Having != nil {
		_ = sqlparser.Walk(visit, s.Having.Expr)
	}
	for _, o := range s.OrderBy {
		_ = sqlparser.Walk(visit, o.Expr)
	}
	return out
}
