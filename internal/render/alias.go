package render

import "strconv"

// Aliases hands out table aliases for one translation. Each prefix counts on
// its own, so the first filter is Filter1 even after three extents.
// An Aliases is not safe for concurrent use; every translation owns one.
type Aliases struct {
	next map[string]int
}

// NewAliases creates an empty aliasing context.
func NewAliases() *Aliases {
	return &Aliases{next: make(map[string]int)}
}

// Next returns the next alias for prefix.
func (a *Aliases) Next(prefix string) string {
	a.next[prefix]++
	return prefix + strconv.Itoa(a.next[prefix])
}
