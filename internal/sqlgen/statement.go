package sqlgen

import (
	"strconv"
	"strings"

	"github.com/zoobzio/entsql/internal/render"
)

type fromItem struct {
	join   string
	source string
	on     string
}

// statement is a SELECT under construction. Its select list is not fixed
// until the statement is written out; until then sym says what each output
// path reads.
type statement struct {
	sym     *symbol
	label   string
	alias   string
	raw     string
	top     string
	from    []fromItem
	where   []string
	groupBy []string
	orderBy []string
	extra   []string

	distinct   bool
	projected  bool
	aggregated bool
}

// Which clauses a statement can still take without changing the meaning of
// the ones it already has.

func (s *statement) canFilter() bool {
	return s.raw == "" && s.top == "" && !s.distinct && !s.aggregated && len(s.extra) == 0
}

func (s *statement) canProject() bool {
	return s.raw == "" && !s.distinct && len(s.extra) == 0
}

func (s *statement) canSort() bool {
	return s.raw == "" && s.top == "" && !s.distinct && len(s.extra) == 0
}

func (s *statement) canGroup() bool {
	return s.canFilter() && !s.projected
}

func (s *statement) canDistinct() bool {
	return s.raw == "" && s.top == "" && len(s.extra) == 0
}

// canJoin reports whether more tables can be appended to the FROM clause.
func (s *statement) canJoin() bool {
	return s.canGroup() && len(s.where) == 0 && len(s.orderBy) == 0
}

// single reports whether s is one plain table reference.
func (s *statement) single() bool {
	return s.canJoin() && len(s.from) == 1
}

// writer turns statements into text.
type writer struct {
	d    Dialect
	caps render.Capabilities
}

func (w writer) quote(name string) string { return w.d.QuoteIdentifier(name) }

// write renders s. The ORDER BY clause survives only at the outermost level
// or next to a limit. The returned symbol maps each output path onto its
// column alias.
func (w writer) write(s *statement, outer bool) (string, *symbol) {
	if s.raw != "" {
		return s.raw, s.sym
	}

	aliases := newSymbol()
	used := make(map[string]bool)
	cols := make([]string, 0, len(s.sym.paths)+len(s.extra))
	for _, p := range s.sym.paths {
		name := uniqueAlias(p[len(p)-1], used)
		aliases.add(p, name)
		cols = append(cols, s.sym.cols[pathKey(p)]+" AS "+w.quote(name))
	}
	cols = append(cols, s.extra...)
	if len(cols) == 0 {
		cols = append(cols, "1 AS "+w.quote("C1"))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if s.top != "" && w.caps.Limit == render.LimitTop {
		b.WriteString("TOP (" + s.top + ") ")
	}
	b.WriteString(strings.Join(cols, ", "))
	for i, f := range s.from {
		if i == 0 {
			b.WriteString(" FROM " + f.source)
			continue
		}
		b.WriteString(" " + f.join + " " + f.source)
		if f.on != "" {
			b.WriteString(" ON " + f.on)
		}
	}
	switch len(s.where) {
	case 0:
	case 1:
		b.WriteString(" WHERE " + s.where[0])
	default:
		b.WriteString(" WHERE (" + strings.Join(s.where, ") AND (") + ")")
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(s.groupBy, ", "))
	}
	if len(s.orderBy) > 0 && (outer || s.top != "") {
		b.WriteString(" ORDER BY " + strings.Join(s.orderBy, ", "))
	}
	if s.top != "" && w.caps.Limit == render.LimitTrailing {
		b.WriteString(" LIMIT " + s.top)
	}
	return b.String(), aliases
}

// uniqueAlias keeps column aliases distinct ignoring case.
func uniqueAlias(name string, used map[string]bool) string {
	candidate := name
	for i := 1; used[strings.ToLower(candidate)]; i++ {
		candidate = name + strconv.Itoa(i)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
