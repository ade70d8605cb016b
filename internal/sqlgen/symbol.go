package sqlgen

import "strings"

// symbol maps the leaf paths of a bound row onto the SQL that reads them.
// Paths keep the declaration order of the row type.
type symbol struct {
	cols  map[string]string
	paths [][]string
}

func newSymbol() *symbol {
	return &symbol{cols: make(map[string]string)}
}

func pathKey(path []string) string { return strings.Join(path, "\x00") }

func (s *symbol) add(path []string, sql string) {
	k := pathKey(path)
	if _, ok := s.cols[k]; !ok {
		s.paths = append(s.paths, append([]string(nil), path...))
	}
	s.cols[k] = sql
}

func (s *symbol) leaf(path []string) (string, bool) {
	sql, ok := s.cols[pathKey(path)]
	return sql, ok
}

// sub returns the part of s below prefix, or false when prefix names no row.
func (s *symbol) sub(prefix []string) (*symbol, bool) {
	out := newSymbol()
	for _, p := range s.paths {
		if len(p) <= len(prefix) || !hasPrefix(p, prefix) {
			continue
		}
		out.add(p[len(prefix):], s.cols[pathKey(p)])
	}
	return out, len(out.paths) > 0
}

// nest adds every entry of inner below name.
func (s *symbol) nest(name string, inner *symbol) {
	for _, p := range inner.paths {
		s.add(append([]string{name}, p...), inner.cols[pathKey(p)])
	}
}

func hasPrefix(p, prefix []string) bool {
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// scope maps the variables visible to an expression onto their symbols.
type scope map[string]*symbol

func (s scope) with(name string, sym *symbol) scope {
	out := make(scope, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = sym
	return out
}
