// Package sqlgen renders a fully rewritten expression tree as one SELECT
// statement. Everything that differs between databases goes through Dialect.
package sqlgen

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/types"
)

var (
	// ErrUnrenderable is returned for trees the earlier stages should have
	// removed, such as a group partition outside a composed GroupBy.
	ErrUnrenderable = errors.NewKind("cannot render %s: %s")
	// ErrUnboundVariable is returned when an expression refers to a variable
	// no enclosing binding introduces.
	ErrUnboundVariable = errors.NewKind("unbound variable %q")
	// ErrLiteral is returned for constants a dialect cannot spell.
	ErrLiteral = errors.NewKind("cannot write %T as a %s literal")
)

// Dialect spells identifiers, literals, placeholders and functions for one
// database.
type Dialect interface {
	// Name identifies the dialect in errors.
	Name() string
	QuoteIdentifier(name string) string
	// Placeholder returns the marker for a parameter; position is its
	// 1-based order of first appearance.
	Placeholder(name string, position int) string
	Literal(value any, t types.Type) (string, error)
	// Null returns a null literal of type t.
	Null(t types.Type) string
	// Bool returns a Boolean value literal.
	Bool(v bool) string
	// Function maps a canonical function. ok is false when the dialect has no
	// mapping; the call is then emitted verbatim.
	Function(name string, args []string) (sql string, ok bool)
	Aggregate(fn types.AggregateKind) string
	Capabilities() render.Capabilities
}

// QuoteString wraps s in single quotes, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// FormatNumber writes a numeric constant. ok is false for non-numeric values.
func FormatNumber(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", n), true
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), true
	case *big.Rat:
		return n.FloatString(decimalScale(n)), true
	case string:
		if _, err := strconv.ParseFloat(n, 64); err == nil {
			return n, true
		}
	}
	return "", false
}

func decimalScale(r *big.Rat) int {
	if r.IsInt() {
		return 0
	}
	for scale := 1; scale < 28; scale++ {
		d := new(big.Rat).Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)))
		if d.IsInt() {
			return scale
		}
	}
	return 28
}

// HexBytes writes b as lowercase hex digits.
func HexBytes(b []byte) string {
	return hex.EncodeToString(b)
}
