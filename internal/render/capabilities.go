// Package render holds what the SQL dialects share: capabilities, the
// per-translation aliasing context and the unsupported-feature error.
package render

// LimitPlacement says where a dialect puts its row limit.
type LimitPlacement int

const (
	LimitTop      LimitPlacement = iota // SELECT TOP (n) ...
	LimitTrailing                       // ... LIMIT n
)

// ApplySyntax is the way a dialect evaluates a right side once per left row.
type ApplySyntax int

const (
	ApplyNone    ApplySyntax = iota // No correlated joins
	ApplyKeyword                    // CROSS APPLY, OUTER APPLY
	ApplyLateral                    // CROSS JOIN LATERAL, LEFT JOIN LATERAL
)

// Capabilities describes the SQL features supported by a dialect.
type Capabilities struct {
	Limit            LimitPlacement
	Apply            ApplySyntax
	RowNumber        bool // row_number() OVER (ORDER BY ...)
	Intersect        bool
	Except           bool
	BooleanColumns   bool // Boolean values compare against TRUE rather than 1
	PositionalParams bool // $1, $2 instead of named placeholders
}
