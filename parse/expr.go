package parse

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"gopkg.in/src-d/go-vitess.v1/vt/sqlparser"

	"github.com/zoobzio/entsql"
)

// env is what an expression can see. group, when set, resolves keys and
// aggregates of a grouped select before anything else.
type env struct {
	scope *scope
	group func(sqlparser.Expr) (entsql.Expr, bool, error)
}

var aggregateFuncs = map[string]entsql.AggregateKind{
	"count":       entsql.AggCount,
	"sum":         entsql.AggSum,
	"min":         entsql.AggMin,
	"max":         entsql.AggMax,
	"avg":         entsql.AggAvg,
	"stdev":       entsql.AggStDev,
	"stddev":      entsql.AggStDev,
	"stddev_samp": entsql.AggStDev,
	"stdevp":      entsql.AggStDevP,
	"stddev_pop":  entsql.AggStDevP,
	"var":         entsql.AggVar,
	"variance":    entsql.AggVar,
	"var_samp":    entsql.AggVar,
	"varp":        entsql.AggVarP,
	"var_pop":     entsql.AggVarP,
}

// functionAliases maps common SQL spellings onto canonical functions.
var functionAliases = map[string]string{
	"upper":       "ToUpper",
	"lower":       "ToLower",
	"len":         "Length",
	"char_length": "Length",
	"substr":      "Substring",
	"ceil":        "Ceiling",
	"pow":         "Power",
	"now":         "CurrentDateTime",
}

// value converts a scalar expression. hint types an untyped operand: a
// parameter, a NULL or a numeric literal.
func (p *parser) value(e sqlparser.Expr, en env, hint *entsql.Type) (entsql.Expr, error) {
	if en.group != nil {
		v, ok, err := en.group(e)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}

	switch v := e.(type) {
	case *sqlparser.ColName:
		c, _, err := en.scope.column(v)
		return c, err
	case *sqlparser.SQLVal:
		return literal(v, hint)
	case *sqlparser.NullVal:
		if hint == nil {
			return nil, ErrUntypedParameter.New("NULL")
		}
		return entsql.Null(hint.Primitive), nil
	case sqlparser.BoolVal:
		return entsql.Const(bool(v)), nil
	case *sqlparser.ParenExpr:
		return p.value(v.Expr, en, hint)
	case *sqlparser.UnaryExpr:
		switch v.Operator {
		case sqlparser.UPlusStr:
			return p.value(v.Expr, en, hint)
		case sqlparser.UMinusStr:
			x, err := p.value(v.Expr, en, hint)
			if err != nil {
				return nil, err
			}
			return entsql.TrySub(zero(x.Type()), x)
		}
		return nil, ErrUnsupportedFeature.New(v.Operator)
	case *sqlparser.BinaryExpr:
		l, r, err := p.operands(v.Left, v.Right, en)
		if err != nil {
			return nil, err
		}
		switch v.Operator {
		case sqlparser.PlusStr:
			return entsql.TryAdd(l, r)
		case sqlparser.MinusStr:
			return entsql.TrySub(l, r)
		case sqlparser.MultStr:
			return entsql.TryMul(l, r)
		case sqlparser.DivStr:
			return entsql.TryDiv(l, r)
		case sqlparser.ModStr:
			return entsql.TryMod(l, r)
		}
		return nil, ErrUnsupportedFeature.New(v.Operator)
	case *sqlparser.FuncExpr:
		return p.function(v, en)
	case *sqlparser.SubstrExpr:
		if v.Name == nil {
			return nil, ErrUnsupportedSyntax.New(sqlparser.String(v))
		}
		args := []sqlparser.Expr{v.Name, v.From}
		if v.To != nil {
			args = append(args, v.To)
		}
		return p.invoke("Substring", args, en)
	case *sqlparser.CaseExpr:
		return p.caseExpr(v, en, hint)
	case *sqlparser.Subquery:
		return nil, ErrUnsupportedFeature.New("scalar subquery")
	default:
		return p.predicate(e, en)
	}
}

func zero(t entsql.Type) entsql.Expr {
	switch t.Primitive {
	case entsql.Int64:
		return entsql.Const(int64(0))
	case entsql.Double:
		return entsql.Const(float64(0))
	case entsql.Decimal:
		return entsql.Const(new(big.Rat))
	}
	return entsql.Const(0)
}

// untyped reports whether e takes its type from the operand next to it.
func untyped(e sqlparser.Expr) bool {
	switch v := e.(type) {
	case *sqlparser.ParenExpr:
		return untyped(v.Expr)
	case *sqlparser.NullVal:
		return true
	case *sqlparser.SQLVal:
		return v.Type == sqlparser.ValArg
	}
	return false
}

// operands converts both sides of a binary operator, converting the typed
// side first so that the other can take its type.
func (p *parser) operands(left, right sqlparser.Expr, en env) (entsql.Expr, entsql.Expr, error) {
	if untyped(left) && !untyped(right) {
		r, l, err := p.operands(right, left, en)
		return l, r, err
	}
	l, err := p.value(left, en, nil)
	if err != nil {
		return nil, nil, err
	}
	r, err := p.value(right, en, typeHint(l))
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func typeHint(e entsql.Expr) *entsql.Type {
	t := e.Type()
	if !t.IsPrimitive() {
		return nil
	}
	return &t
}

func literal(v *sqlparser.SQLVal, hint *entsql.Type) (entsql.Expr, error) {
	want := entsql.Primitive("")
	if hint != nil {
		want = hint.Primitive
	}

	switch v.Type {
	case sqlparser.StrVal:
		if want == entsql.DateTime || want == entsql.Guid {
			return entsql.ConstOf(string(v.Val), want), nil
		}
		return entsql.Const(string(v.Val)), nil
	case sqlparser.IntVal:
		n, err := strconv.ParseInt(string(v.Val), 10, 64)
		if err != nil {
			return nil, ErrSyntax.Wrap(err, string(v.Val))
		}
		return integer(n, want), nil
	case sqlparser.FloatVal:
		if want == entsql.Decimal {
			r, ok := new(big.Rat).SetString(string(v.Val))
			if !ok {
				return nil, ErrSyntax.New(string(v.Val))
			}
			return entsql.Const(r), nil
		}
		f, err := strconv.ParseFloat(string(v.Val), 64)
		if err != nil {
			return nil, ErrSyntax.Wrap(err, string(v.Val))
		}
		return entsql.Const(f), nil
	case sqlparser.HexNum:
		s := strings.TrimPrefix(strings.ToLower(string(v.Val)), "0x")
		n, err := strconv.ParseInt(s, 16, 64)
		if err != nil {
			return nil, ErrSyntax.Wrap(err, string(v.Val))
		}
		return integer(n, want), nil
	case sqlparser.HexVal:
		b, err := v.HexDecode()
		if err != nil {
			return nil, ErrSyntax.Wrap(err, string(v.Val))
		}
		return entsql.Const(b), nil
	case sqlparser.BitVal:
		return entsql.Const(len(v.Val) > 0 && v.Val[0] == '1'), nil
	case sqlparser.ValArg:
		if hint == nil {
			return nil, ErrUntypedParameter.New(string(v.Val))
		}
		return entsql.TryParam(strings.TrimPrefix(string(v.Val), ":"), want, false)
	}
	return nil, ErrInvalidSQLValType.New(v.Type)
}

func integer(n int64, want entsql.Primitive) entsql.Expr {
	switch want {
	case entsql.Int64:
		return entsql.Const(n)
	case entsql.Decimal:
		return entsql.Const(new(big.Rat).SetInt64(n))
	case entsql.Double:
		return entsql.Const(float64(n))
	}
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return entsql.Const(int32(n))
	}
	return entsql.Const(n)
}

func (p *parser) caseExpr(c *sqlparser.CaseExpr, en env, hint *entsql.Type) (entsql.Expr, error) {
	var subject entsql.Expr
	if c.Expr != nil {
		var err error
		if subject, err = p.value(c.Expr, en, nil); err != nil {
			return nil, err
		}
	}

	whens := make([]entsql.When, len(c.Whens))
	for i, w := range c.Whens {
		var (
			cond entsql.Expr
			err  error
		)
		if subject != nil {
			var operand entsql.Expr
			if operand, err = p.value(w.Cond, en, typeHint(subject)); err != nil {
				return nil, err
			}
			cond, err = entsql.TryEq(subject, operand)
		} else {
			cond, err = p.predicate(w.Cond, en)
		}
		if err != nil {
			return nil, err
		}
		then, err := p.value(w.Val, en, hint)
		if err != nil {
			return nil, err
		}
		if hint == nil {
			hint = typeHint(then)
		}
		whens[i] = entsql.When{When: cond, Then: then}
	}

	var els entsql.Expr
	if c.Else != nil {
		var err error
		if els, err = p.value(c.Else, en, hint); err != nil {
			return nil, err
		}
	}
	return entsql.TryCase(whens, els)
}

// predicate converts a boolean expression.
func (p *parser) predicate(e sqlparser.Expr, en env) (entsql.Expr, error) {
	switch v := e.(type) {
	case *sqlparser.AndExpr:
		l, err := p.predicate(v.Left, en)
		if err != nil {
			return nil, err
		}
		r, err := p.predicate(v.Right, en)
		if err != nil {
			return nil, err
		}
		return entsql.TryAnd(l, r)
	case *sqlparser.OrExpr:
		l, err := p.predicate(v.Left, en)
		if err != nil {
			return nil, err
		}
		r, err := p.predicate(v.Right, en)
		if err != nil {
			return nil, err
		}
		return entsql.TryOr(l, r)
	case *sqlparser.NotExpr:
		x, err := p.predicate(v.Expr, en)
		if err != nil {
			return nil, err
		}
		return entsql.TryNot(x)
	case *sqlparser.ParenExpr:
		return p.predicate(v.Expr, en)
	case *sqlparser.ComparisonExpr:
		return p.comparison(v, en)
	case *sqlparser.IsExpr:
		x, err := p.value(v.Expr, en, nil)
		if err != nil {
			return nil, err
		}
		switch v.Operator {
		case sqlparser.IsNullStr:
			return entsql.TryIsNull(x)
		case sqlparser.IsNotNullStr:
			isNull, err := entsql.TryIsNull(x)
			if err != nil {
				return nil, err
			}
			return entsql.TryNot(isNull)
		}
		return nil, ErrUnsupportedFeature.New(v.Operator)
	case *sqlparser.RangeCond:
		x, err := p.value(v.Left, en, nil)
		if err != nil {
			return nil, err
		}
		lower, err := p.value(v.From, en, typeHint(x))
		if err != nil {
			return nil, err
		}
		upper, err := p.value(v.To, en, typeHint(x))
		if err != nil {
			return nil, err
		}
		ge, err := entsql.TryGe(x, lower)
		if err != nil {
			return nil, err
		}
		le, err := entsql.TryLe(x, upper)
		if err != nil {
			return nil, err
		}
		between, err := entsql.TryAnd(ge, le)
		if err != nil {
			return nil, err
		}
		switch v.Operator {
		case sqlparser.BetweenStr:
			return between, nil
		case sqlparser.NotBetweenStr:
			return entsql.TryNot(between)
		}
		return nil, ErrUnsupportedFeature.New(v.Operator)
	case *sqlparser.ExistsExpr:
		sub, err := p.statement(v.Subquery.Select, en.scope)
		if err != nil {
			return nil, err
		}
		return entsql.TryExists(sub)
	case *sqlparser.ColName, *sqlparser.SQLVal, sqlparser.BoolVal, *sqlparser.NullVal,
		*sqlparser.FuncExpr, *sqlparser.CaseExpr, *sqlparser.BinaryExpr, *sqlparser.UnaryExpr,
		*sqlparser.SubstrExpr, *sqlparser.Subquery:
		return p.value(e, en, nil)
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(e))
	}
}

func (p *parser) comparison(c *sqlparser.ComparisonExpr, en env) (entsql.Expr, error) {
	switch c.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		tuple, ok := c.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, ErrUnsupportedFeature.New("IN with a subquery")
		}
		x, err := p.value(c.Left, en, nil)
		if err != nil {
			return nil, err
		}
		list := make([]entsql.Expr, len(tuple))
		for i, item := range tuple {
			if list[i], err = p.value(item, en, typeHint(x)); err != nil {
				return nil, err
			}
		}
		in, err := entsql.TryIn(x, list...)
		if err != nil || c.Operator == sqlparser.InStr {
			return in, err
		}
		return entsql.TryNot(in)
	case sqlparser.LikeStr, sqlparser.NotLikeStr, sqlparser.RegexpStr, sqlparser.NotRegexpStr:
		return nil, ErrUnsupportedFeature.New(c.Operator)
	}

	l, r, err := p.operands(c.Left, c.Right, en)
	if err != nil {
		return nil, err
	}
	switch c.Operator {
	case sqlparser.EqualStr:
		return entsql.TryEq(l, r)
	case sqlparser.NotEqualStr:
		return entsql.TryNe(l, r)
	case sqlparser.LessThanStr:
		return entsql.TryLt(l, r)
	case sqlparser.LessEqualStr:
		return entsql.TryLe(l, r)
	case sqlparser.GreaterThanStr:
		return entsql.TryGt(l, r)
	case sqlparser.GreaterEqualStr:
		return entsql.TryGe(l, r)
	case sqlparser.NullSafeEqualStr:
		bothNull, err := nullSafe(l, r)
		if err != nil {
			return nil, err
		}
		eq, err := entsql.TryEq(l, r)
		if err != nil {
			return nil, err
		}
		return entsql.TryOr(bothNull, eq)
	}
	return nil, ErrUnsupportedFeature.New(c.Operator)
}

func nullSafe(l, r entsql.Expr) (entsql.Expr, error) {
	ln, err := entsql.TryIsNull(l)
	if err != nil {
		return nil, err
	}
	rn, err := entsql.TryIsNull(r)
	if err != nil {
		return nil, err
	}
	return entsql.TryAnd(ln, rn)
}

func (p *parser) function(f *sqlparser.FuncExpr, en env) (entsql.Expr, error) {
	name := f.Name.Lowered()
	if _, ok := aggregateFuncs[name]; ok {
		return nil, ErrUnsupportedFeature.New(name + " outside a grouped select")
	}
	if !f.Qualifier.IsEmpty() {
		return nil, ErrUnsupportedFeature.New("qualified function " + sqlparser.String(f))
	}
	if f.Distinct {
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(f))
	}

	args := make([]sqlparser.Expr, len(f.Exprs))
	for i, se := range f.Exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, ErrUnsupportedSyntax.New(sqlparser.String(f))
		}
		args[i] = ae.Expr
	}

	canonical := f.Name.String()
	if alias, ok := functionAliases[name]; ok {
		canonical = alias
	}
	return p.invoke(canonical, args, en)
}

func (p *parser) invoke(name string, args []sqlparser.Expr, en env) (entsql.Expr, error) {
	qualified, ok := entsql.LookupFunction(name)
	if !ok {
		return nil, entsql.ErrUnknownFunction.New(name)
	}
	values := make([]entsql.Expr, len(args))
	for i, a := range args {
		var err error
		if values[i], err = p.value(a, en, nil); err != nil {
			return nil, err
		}
	}
	return entsql.TryInvoke(qualified, values...)
}

// aggregate converts an aggregate call. en sees the group's elements.
func (p *parser) aggregate(f *sqlparser.FuncExpr, en env) (entsql.Expr, error) {
	fn := aggregateFuncs[f.Name.Lowered()]
	if len(f.Exprs) == 1 {
		if _, ok := f.Exprs[0].(*sqlparser.StarExpr); ok {
			if fn != entsql.AggCount || f.Distinct {
				return nil, ErrUnsupportedSyntax.New(sqlparser.String(f))
			}
			return entsql.CountAll(), nil
		}
	}
	if len(f.Exprs) != 1 {
		return nil, entsql.ErrInvalidQuery.New(f.Name.String() + ": wrong number of arguments")
	}
	ae, ok := f.Exprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(f))
	}
	arg, err := p.value(ae.Expr, en, nil)
	if err != nil {
		return nil, err
	}
	return entsql.TryAggregate(fn, arg, f.Distinct)
}
