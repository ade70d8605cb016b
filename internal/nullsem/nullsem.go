// Package nullsem rewrites equality, inequality and membership tests so that
// SQL three-valued logic reproduces the null semantics the caller asked for.
package nullsem

import (
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/zoobzio/entsql/internal/types"
)

// ErrRowComparison is returned when a comparison or membership test has a
// row-typed operand.
var ErrRowComparison = errors.NewKind("comparing row-typed values is not supported: %s")

// Mode selects how nulls compare.
type Mode int

const (
	// CLR makes null equal to null, as host-language equality does.
	CLR Mode = iota
	// Database emits comparisons as written and lets SQL decide.
	Database
)

// Rewrite returns e with every comparison and IN test expanded for mode.
// Join conditions keep database semantics.
func Rewrite(e types.Expr, mode Mode) (types.Expr, error) {
	r := rewriter{mode: mode}
	return r.rewrite(e)
}

type rewriter struct {
	mode Mode
}

func (r rewriter) rewrite(e types.Expr) (types.Expr, error) {
	if j, ok := e.(*types.Join); ok {
		left, err := r.rewrite(j.Left.Input)
		if err != nil {
			return nil, err
		}
		right, err := r.rewrite(j.Right.Input)
		if err != nil {
			return nil, err
		}
		on := j.On
		if on != nil {
			on, err = rewriter{mode: Database}.rewrite(on)
			if err != nil {
				return nil, err
			}
		}
		return types.NewJoin(j.JoinKind,
			types.Binding{Input: left, Var: j.Left.Var},
			types.Binding{Input: right, Var: j.Right.Var},
			on, j.Relationship), nil
	}

	children := types.Children(e)
	var out []types.Expr
	for i, c := range children {
		if c == nil {
			continue
		}
		nc, err := r.rewrite(c)
		if err != nil {
			return nil, err
		}
		if nc != c {
			if out == nil {
				out = append([]types.Expr(nil), children...)
			}
			out[i] = nc
		}
	}
	if out != nil {
		e = types.WithChildren(e, out)
	}

	switch n := e.(type) {
	case *types.Compare:
		return r.compare(n)
	case *types.In:
		return r.in(n)
	}
	return e, nil
}

func (r rewriter) compare(c *types.Compare) (types.Expr, error) {
	if c.Left.Type().IsRow() || c.Right.Type().IsRow() {
		return nil, ErrRowComparison.New(types.Format(c))
	}
	if c.Op != types.EQ && c.Op != types.NE {
		return c, nil
	}

	ln, rn := isNullLiteral(c.Left), isNullLiteral(c.Right)
	switch {
	case ln && rn:
		return types.NewConstant(c.Op == types.EQ, types.PrimitiveOf(types.Boolean, false)), nil
	case ln || rn:
		operand := c.Left
		if ln {
			operand = c.Right
		}
		if c.Op == types.EQ {
			return types.NewIsNull(operand), nil
		}
		return types.NewNot(types.NewIsNull(operand), false), nil
	}

	if r.mode == Database {
		return c, nil
	}
	if c.Op == types.EQ {
		return Equal(c.Left, c.Right), nil
	}
	return notEqual(c.Left, c.Right), nil
}

// Equal returns a null-safe equality between a and b. Two non-nullable
// operands compare bare. Two nullable operands expand to
// (a = b) OR (a IS NULL AND b IS NULL). With one nullable operand the
// result is (a = b) AND x IS NOT NULL for that operand, which is false
// rather than unknown when x is null.
func Equal(a, b types.Expr) types.Expr {
	eq := types.NewCompare(types.EQ, a, b)
	an, bn := nullable(a), nullable(b)
	switch {
	case !an && !bn:
		return eq
	case an && bn:
		return types.NewLogical(types.OR, eq,
			types.NewLogical(types.AND, types.NewIsNull(a), types.NewIsNull(b), false), true)
	}
	side := a
	if !an {
		side = b
	}
	return types.NewLogical(types.AND, eq, types.NewNot(types.NewIsNull(side), false), true)
}

// notEqual expands a <> b so that null differs from any value but not from
// another null. Non-nullable operands contribute a constant flag.
func notEqual(a, b types.Expr) types.Expr {
	if !nullable(a) && !nullable(b) {
		return types.NewCompare(types.NE, a, b)
	}
	eq := types.NewCompare(types.EQ, a, b)
	flags := types.NewCompare(types.EQ, nullFlag(a), nullFlag(b))
	return types.NewNot(types.NewLogical(types.AND, eq, flags, false), true)
}

func nullFlag(e types.Expr) types.Expr {
	one := types.NewConstant(1, types.PrimitiveOf(types.Int32, false))
	zero := types.NewConstant(0, types.PrimitiveOf(types.Int32, false))
	if !nullable(e) {
		return zero
	}
	return types.NewCase([]types.When{{When: types.NewIsNull(e), Then: one}}, zero)
}

func (r rewriter) in(n *types.In) (types.Expr, error) {
	if n.Arg.Type().IsRow() {
		return nil, ErrRowComparison.New(types.Format(n))
	}
	if len(n.List) == 0 {
		return types.NewConstant(false, types.PrimitiveOf(types.Boolean, false)), nil
	}

	var values []types.Expr
	hasNull := false
	for _, e := range n.List {
		if isNullLiteral(e) {
			hasNull = true
			continue
		}
		values = append(values, e)
	}
	if !hasNull {
		return n, nil
	}
	isNull := types.NewIsNull(n.Arg)
	if len(values) == 0 {
		return isNull, nil
	}

	var member types.Expr = types.NewIn(n.Arg, values)
	if r.mode == CLR && nullable(n.Arg) {
		member = types.NewLogical(types.AND, member, types.NewNot(types.NewIsNull(n.Arg), false), false)
	}
	return types.NewLogical(types.OR, member, isNull, true), nil
}

func isNullLiteral(e types.Expr) bool {
	return e.Kind() == types.KindNull
}

func nullable(e types.Expr) bool {
	return e.Type().Nullable
}
