package entsql

import (
	"fmt"
	"math/big"
	"time"

	"github.com/zoobzio/entsql/internal/types"
)

// isValidSQLIdentifier checks if a string is a valid SQL identifier.
// Variable, column and parameter names all pass through here.
func isValidSQLIdentifier(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}

	// Must start with letter or underscore
	first := s[0]
	if !((first >= 'a' && first <= 'z') ||
		(first >= 'A' && first <= 'Z') ||
		first == '_') {
		return false
	}

	// Rest must be alphanumeric or underscore
	for i := 1; i < len(s); i++ {
		ch := s[i]
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '_') {
			return false
		}
	}
	return true
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func invalid(format string, args ...any) error {
	return ErrInvalidQuery.New(fmt.Sprintf(format, args...))
}

func requireCollection(e Expr, what string) error {
	if e == nil {
		return invalid("%s cannot be nil", what)
	}
	if !e.Type().IsCollection() {
		return invalid("%s must be a collection, got %s", what, e.Type())
	}
	return nil
}

func requirePredicate(e Expr, what string) error {
	if e == nil {
		return invalid("%s cannot be nil", what)
	}
	if !e.Type().IsBoolean() {
		return ErrTypeMismatch.New(fmt.Sprintf("%s must be Boolean, got %s", what, e.Type()))
	}
	return nil
}

func requireScalar(e Expr, what string) error {
	if e == nil {
		return invalid("%s cannot be nil", what)
	}
	if !e.Type().IsPrimitive() {
		return ErrTypeMismatch.New(fmt.Sprintf("%s must be scalar, got %s", what, e.Type()))
	}
	return nil
}

// TypeOf returns a primitive type.
func TypeOf(p Primitive, nullable bool) Type {
	return types.PrimitiveOf(p, nullable)
}

// TryBind names the current element of input.
func TryBind(input Expr, name string) (Binding, error) {
	if err := requireCollection(input, "bound input"); err != nil {
		return Binding{}, err
	}
	if !isValidSQLIdentifier(name) {
		return Binding{}, invalid("invalid variable name: %s", name)
	}
	return Binding{Input: input, Var: name}, nil
}

// Bind names the current element of input.
func Bind(input Expr, name string) Binding {
	return must(TryBind(input, name))
}

// TryGroupBind binds the current row of input as name and its whole group
// as group.
func TryGroupBind(input Expr, name, group string) (GroupBinding, error) {
	b, err := TryBind(input, name)
	if err != nil {
		return GroupBinding{}, err
	}
	if !isValidSQLIdentifier(group) || group == name {
		return GroupBinding{}, invalid("invalid group variable name: %s", group)
	}
	return GroupBinding{Input: b.Input, Var: b.Var, GroupVar: group}, nil
}

// GroupBind binds the current row of input as name and its whole group as
// group.
func GroupBind(input Expr, name, group string) GroupBinding {
	return must(TryGroupBind(input, name, group))
}

// TryFilter keeps the elements satisfying predicate.
func TryFilter(b Binding, predicate Expr) (Expr, error) {
	if err := requirePredicate(predicate, "filter predicate"); err != nil {
		return nil, err
	}
	return types.NewFilter(b, predicate), nil
}

// Filter keeps the elements satisfying predicate.
func Filter(b Binding, predicate Expr) Expr {
	return must(TryFilter(b, predicate))
}

// As names an output column.
func As(e Expr, name string) Column {
	return Column{Expr: e, Name: name}
}

func checkColumns(cols []Column, seen map[string]bool) error {
	for _, c := range cols {
		if c.Expr == nil {
			return invalid("column %s has no expression", c.Name)
		}
		if !isValidSQLIdentifier(c.Name) {
			return invalid("invalid column name: %s", c.Name)
		}
		if seen[c.Name] {
			return invalid("duplicate column name: %s", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// TryProject maps each element of b onto a row of columns.
func TryProject(b Binding, cols ...Column) (Expr, error) {
	if len(cols) == 0 {
		return nil, invalid("projection needs at least one column")
	}
	if err := checkColumns(cols, make(map[string]bool)); err != nil {
		return nil, err
	}
	return types.NewProject(b, cols), nil
}

// Project maps each element of b onto a row of columns.
func Project(b Binding, cols ...Column) Expr {
	return must(TryProject(b, cols...))
}

func tryJoin(kind JoinKind, l, r Binding, on Expr, rel *Association) (Expr, error) {
	if l.Var == r.Var {
		return nil, invalid("join variables must differ: %s", l.Var)
	}
	if !kind.IsApply() && types.References(r.Input, l.Var) {
		return nil, invalid("%s right input refers to %s; use an apply", kind, l.Var)
	}
	if kind == types.InnerJoin || kind == types.LeftOuterJoin {
		if err := requirePredicate(on, "join condition"); err != nil {
			return nil, err
		}
	} else if on != nil {
		return nil, invalid("%s takes no condition", kind)
	}
	return types.NewJoin(kind, l, r, on, rel), nil
}

// TryInnerJoin keeps the pairs of l and r elements satisfying on.
func TryInnerJoin(l, r Binding, on Expr) (Expr, error) {
	return tryJoin(types.InnerJoin, l, r, on, nil)
}

// InnerJoin keeps the pairs of l and r elements satisfying on.
func InnerJoin(l, r Binding, on Expr) Expr {
	return must(TryInnerJoin(l, r, on))
}

// TryLeftOuterJoin is InnerJoin keeping unmatched l elements.
func TryLeftOuterJoin(l, r Binding, on Expr) (Expr, error) {
	return tryJoin(types.LeftOuterJoin, l, r, on, nil)
}

// LeftOuterJoin is InnerJoin keeping unmatched l elements.
func LeftOuterJoin(l, r Binding, on Expr) Expr {
	return must(TryLeftOuterJoin(l, r, on))
}

// TryCrossJoin pairs every l element with every r element.
func TryCrossJoin(l, r Binding) (Expr, error) {
	return tryJoin(types.CrossJoin, l, r, nil, nil)
}

// CrossJoin pairs every l element with every r element.
func CrossJoin(l, r Binding) Expr {
	return must(TryCrossJoin(l, r))
}

// TryCrossApply evaluates r once per l element; r may refer to l.Var.
func TryCrossApply(l, r Binding) (Expr, error) {
	return tryJoin(types.CrossApply, l, r, nil, nil)
}

// CrossApply evaluates r once per l element; r may refer to l.Var.
func CrossApply(l, r Binding) Expr {
	return must(TryCrossApply(l, r))
}

// TryOuterApply is CrossApply keeping l elements for which r is empty.
func TryOuterApply(l, r Binding) (Expr, error) {
	return tryJoin(types.OuterApply, l, r, nil, nil)
}

// OuterApply is CrossApply keeping l elements for which r is empty.
func OuterApply(l, r Binding) Expr {
	return must(TryOuterApply(l, r))
}

// TryNavigate left-outer joins the dependents bound in from to the principal
// of assoc. The join carries the association so that the optimizer can
// reason about foreign key nullability.
func TryNavigate(from Binding, assoc *Association, rightVar string) (Expr, error) {
	if assoc == nil {
		return nil, invalid("association cannot be nil")
	}
	r, err := TryBind(types.NewScan(assoc.Principal), rightVar)
	if err != nil {
		return nil, err
	}
	var on Expr
	for i, fk := range assoc.ForeignKey {
		l, err := TryProp(from.Ref(), fk)
		if err != nil {
			return nil, err
		}
		eq := types.NewCompare(types.EQ, l, types.NewProperty(r.Ref(), assoc.PrincipalKey[i]))
		if on == nil {
			on = eq
		} else {
			on = types.NewLogical(types.AND, on, eq, false)
		}
	}
	return tryJoin(types.LeftOuterJoin, from, r, on, assoc)
}

// Navigate left-outer joins the dependents bound in from to the principal of
// assoc.
func Navigate(from Binding, assoc *Association, rightVar string) Expr {
	return must(TryNavigate(from, assoc, rightVar))
}

// TryGroupBy partitions b by keys and computes aggregates per group. Keys
// are read through b.Var; aggregates range over b.GroupVar.
func TryGroupBy(b GroupBinding, keys []Column, aggregates []Column) (Expr, error) {
	if len(keys)+len(aggregates) == 0 {
		return nil, invalid("grouping needs a key or an aggregate")
	}
	seen := make(map[string]bool)
	if err := checkColumns(keys, seen); err != nil {
		return nil, err
	}
	if err := checkColumns(aggregates, seen); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := requireScalar(k.Expr, "group key "+k.Name); err != nil {
			return nil, err
		}
		if types.References(k.Expr, b.GroupVar) {
			return nil, invalid("group key %s refers to the group", k.Name)
		}
	}
	for _, a := range aggregates {
		if types.References(a.Expr, b.Var) {
			return nil, invalid("aggregate %s refers to the row variable %s", a.Name, b.Var)
		}
	}
	return types.NewGroupBy(b, keys, aggregates), nil
}

// GroupBy partitions b by keys and computes aggregates per group.
func GroupBy(b GroupBinding, keys []Column, aggregates []Column) Expr {
	return must(TryGroupBy(b, keys, aggregates))
}

// Asc orders by e ascending.
func Asc(e Expr) SortKey { return SortKey{Expr: e, Direction: types.ASC} }

// Desc orders by e descending.
func Desc(e Expr) SortKey { return SortKey{Expr: e, Direction: types.DESC} }

// TrySort orders the elements of b.
func TrySort(b Binding, keys ...SortKey) (Expr, error) {
	if len(keys) == 0 {
		return nil, invalid("sort needs at least one key")
	}
	for _, k := range keys {
		if err := requireScalar(k.Expr, "sort key"); err != nil {
			return nil, err
		}
		if k.Direction != types.ASC && k.Direction != types.DESC {
			return nil, invalid("invalid sort direction: %s", k.Direction)
		}
	}
	return types.NewSort(b, keys), nil
}

// Sort orders the elements of b.
func Sort(b Binding, keys ...SortKey) Expr {
	return must(TrySort(b, keys...))
}

func checkCount(count Expr, what string) error {
	if err := requireScalar(count, what); err != nil {
		return err
	}
	switch n := count.(type) {
	case *types.Constant:
		v, ok := n.Value.(int64)
		if i, isInt := n.Value.(int); isInt {
			v, ok = int64(i), true
		}
		if i, isInt32 := n.Value.(int32); isInt32 {
			v, ok = int64(i), true
		}
		if !ok || v < 0 {
			return invalid("%s must be a non-negative integer", what)
		}
	case *types.Param:
		if p := n.Type().Primitive; p != types.Int32 && p != types.Int64 {
			return ErrTypeMismatch.New(what + " must be an integer parameter")
		}
	default:
		return invalid("%s must be a constant or a parameter", what)
	}
	return nil
}

// TrySkip drops the first count elements of an ordered input.
func TrySkip(input, count Expr) (Expr, error) {
	if err := requireCollection(input, "skip input"); err != nil {
		return nil, err
	}
	if err := checkCount(count, "skip count"); err != nil {
		return nil, err
	}
	return types.NewSkip(input, count), nil
}

// Skip drops the first count elements of an ordered input.
func Skip(input, count Expr) Expr {
	return must(TrySkip(input, count))
}

// TryLimit keeps at most count elements.
func TryLimit(input, count Expr) (Expr, error) {
	if err := requireCollection(input, "limit input"); err != nil {
		return nil, err
	}
	if err := checkCount(count, "limit count"); err != nil {
		return nil, err
	}
	return types.NewLimit(input, count), nil
}

// Limit keeps at most count elements.
func Limit(input, count Expr) Expr {
	return must(TryLimit(input, count))
}

func trySetOp(op types.SetOpKind, l, r Expr) (Expr, error) {
	if err := requireCollection(l, string(op)+" operand"); err != nil {
		return nil, err
	}
	if err := requireCollection(r, string(op)+" operand"); err != nil {
		return nil, err
	}
	if !types.Compatible(l.Type(), r.Type()) {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("%s of %s and %s", op, l.Type(), r.Type()))
	}
	return types.NewSetOp(op, l, r), nil
}

// TryUnion combines l and r without duplicates.
func TryUnion(l, r Expr) (Expr, error) { return trySetOp(types.Union, l, r) }

// Union combines l and r without duplicates.
func Union(l, r Expr) Expr { return must(TryUnion(l, r)) }

// TryUnionAll concatenates l and r.
func TryUnionAll(l, r Expr) (Expr, error) { return trySetOp(types.UnionAll, l, r) }

// UnionAll concatenates l and r.
func UnionAll(l, r Expr) Expr { return must(TryUnionAll(l, r)) }

// TryIntersect keeps the elements of l also in r.
func TryIntersect(l, r Expr) (Expr, error) { return trySetOp(types.Intersect, l, r) }

// Intersect keeps the elements of l also in r.
func Intersect(l, r Expr) Expr { return must(TryIntersect(l, r)) }

// TryExcept keeps the elements of l not in r.
func TryExcept(l, r Expr) (Expr, error) { return trySetOp(types.Except, l, r) }

// Except keeps the elements of l not in r.
func Except(l, r Expr) Expr { return must(TryExcept(l, r)) }

// TryDistinct removes duplicate elements.
func TryDistinct(input Expr) (Expr, error) {
	if err := requireCollection(input, "distinct input"); err != nil {
		return nil, err
	}
	return types.NewDistinct(input), nil
}

// Distinct removes duplicate elements.
func Distinct(input Expr) Expr {
	return must(TryDistinct(input))
}

// TryValues builds a literal collection. Every row has one scalar per name
// and cells of a column must have compatible types.
func TryValues(names []string, rows ...[]Expr) (Expr, error) {
	if len(names) == 0 || len(rows) == 0 {
		return nil, invalid("values need at least one column and one row")
	}
	seen := make(map[string]bool)
	for _, n := range names {
		if !isValidSQLIdentifier(n) || seen[n] {
			return nil, invalid("invalid or duplicate column name: %s", n)
		}
		seen[n] = true
	}
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, invalid("row %d has %d cells, want %d", i, len(row), len(names))
		}
		for j, cell := range row {
			if err := requireScalar(cell, "value"); err != nil {
				return nil, err
			}
			if cell.Kind() != types.KindConstant && cell.Kind() != types.KindNull && cell.Kind() != types.KindParam {
				return nil, invalid("values cells must be constants, nulls or parameters")
			}
			if !types.Compatible(cell.Type(), rows[0][j].Type()) {
				return nil, ErrTypeMismatch.New(fmt.Sprintf("column %s: %s and %s", names[j], rows[0][j].Type(), cell.Type()))
			}
		}
	}
	return types.NewValues(names, rows), nil
}

// Values builds a literal collection.
func Values(names []string, rows ...[]Expr) Expr {
	return must(TryValues(names, rows...))
}

// TryConst creates a constant, inferring its type from v.
func TryConst(v any) (Expr, error) {
	var p Primitive
	switch v.(type) {
	case int, int32, int16, int8, uint8, uint16:
		p = types.Int32
	case int64, uint32:
		p = types.Int64
	case float32, float64:
		p = types.Double
	case *big.Rat:
		p = types.Decimal
	case string:
		p = types.String
	case bool:
		p = types.Boolean
	case time.Time:
		p = types.DateTime
	case []byte:
		p = types.Binary
	default:
		return nil, invalid("cannot infer a type for %T; use ConstOf", v)
	}
	return types.NewConstant(v, types.PrimitiveOf(p, false)), nil
}

// Const creates a constant, inferring its type from v.
func Const(v any) Expr {
	return must(TryConst(v))
}

// ConstOf creates a constant of an explicit primitive type. A nil v is a
// typed null.
func ConstOf(v any, p Primitive) Expr {
	if v == nil {
		return Null(p)
	}
	return types.NewConstant(v, types.PrimitiveOf(p, false))
}

// Null is the typed null literal.
func Null(p Primitive) Expr {
	return types.NewNull(types.PrimitiveOf(p, true))
}

// TryParam creates a named parameter.
func TryParam(name string, p Primitive, nullable bool) (Expr, error) {
	if !isValidSQLIdentifier(name) {
		return nil, invalid("invalid parameter name: %s", name)
	}
	if _, ok := types.ParsePrimitive(string(p)); !ok {
		return nil, invalid("invalid parameter type: %s", p)
	}
	return types.NewParam(name, types.PrimitiveOf(p, nullable)), nil
}

// Param creates a named parameter.
func Param(name string, p Primitive, nullable bool) Expr {
	return must(TryParam(name, p, nullable))
}

// TryProp reads a member of a row-valued instance.
func TryProp(instance Expr, name string) (Expr, error) {
	if instance == nil {
		return nil, invalid("property instance cannot be nil")
	}
	t := instance.Type()
	if !t.IsRow() {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("property %s of non-row %s", name, t))
	}
	if _, ok := t.Field(name); !ok {
		return nil, ErrUnknownProperty.New(name, t.String())
	}
	return types.NewProperty(instance, name), nil
}

// Prop reads a member of a row-valued instance.
func Prop(instance Expr, name string) Expr {
	return must(TryProp(instance, name))
}

func tryCompare(op types.CompareOp, l, r Expr) (Expr, error) {
	if l == nil || r == nil {
		return nil, invalid("comparison operand cannot be nil")
	}
	lt, rt := l.Type(), r.Type()
	if lt.IsCollection() || rt.IsCollection() || !types.Compatible(lt, rt) {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("%s %s %s", lt, op, rt))
	}
	if op != types.EQ && op != types.NE && !lt.IsPrimitive() {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("rows cannot be ordered with %s", op))
	}
	return types.NewCompare(op, l, r), nil
}

// TryEq compares l = r.
func TryEq(l, r Expr) (Expr, error) { return tryCompare(types.EQ, l, r) }

// Eq compares l = r.
func Eq(l, r Expr) Expr { return must(TryEq(l, r)) }

// TryNe compares l <> r.
func TryNe(l, r Expr) (Expr, error) { return tryCompare(types.NE, l, r) }

// Ne compares l <> r.
func Ne(l, r Expr) Expr { return must(TryNe(l, r)) }

// TryLt compares l < r.
func TryLt(l, r Expr) (Expr, error) { return tryCompare(types.LT, l, r) }

// Lt compares l < r.
func Lt(l, r Expr) Expr { return must(TryLt(l, r)) }

// TryLe compares l <= r.
func TryLe(l, r Expr) (Expr, error) { return tryCompare(types.LE, l, r) }

// Le compares l <= r.
func Le(l, r Expr) Expr { return must(TryLe(l, r)) }

// TryGt compares l > r.
func TryGt(l, r Expr) (Expr, error) { return tryCompare(types.GT, l, r) }

// Gt compares l > r.
func Gt(l, r Expr) Expr { return must(TryGt(l, r)) }

// TryGe compares l >= r.
func TryGe(l, r Expr) (Expr, error) { return tryCompare(types.GE, l, r) }

// Ge compares l >= r.
func Ge(l, r Expr) Expr { return must(TryGe(l, r)) }

func tryLogical(op types.LogicalOp, preds []Expr) (Expr, error) {
	if len(preds) == 0 {
		return nil, invalid("%s needs at least one operand", op)
	}
	var out Expr
	for _, p := range preds {
		if err := requirePredicate(p, string(op)+" operand"); err != nil {
			return nil, err
		}
		if out == nil {
			out = p
			continue
		}
		out = types.NewLogical(op, out, p, false)
	}
	return out, nil
}

// TryAnd conjoins predicates left to right.
func TryAnd(preds ...Expr) (Expr, error) { return tryLogical(types.AND, preds) }

// And conjoins predicates left to right.
func And(preds ...Expr) Expr { return must(TryAnd(preds...)) }

// TryOr disjoins predicates left to right.
func TryOr(preds ...Expr) (Expr, error) { return tryLogical(types.OR, preds) }

// Or disjoins predicates left to right.
func Or(preds ...Expr) Expr { return must(TryOr(preds...)) }

// TryNot negates a predicate.
func TryNot(p Expr) (Expr, error) {
	if err := requirePredicate(p, "NOT operand"); err != nil {
		return nil, err
	}
	return types.NewNot(p, false), nil
}

// Not negates a predicate.
func Not(p Expr) Expr { return must(TryNot(p)) }

// TryIsNull tests e for null.
func TryIsNull(e Expr) (Expr, error) {
	if err := requireScalar(e, "IS NULL operand"); err != nil {
		return nil, err
	}
	return types.NewIsNull(e), nil
}

// IsNull tests e for null.
func IsNull(e Expr) Expr { return must(TryIsNull(e)) }

// TryIn tests membership of arg in a literal list. An empty list is never
// satisfied.
func TryIn(arg Expr, list ...Expr) (Expr, error) {
	if arg == nil {
		return nil, invalid("IN operand cannot be nil")
	}
	if arg.Type().IsCollection() {
		return nil, ErrTypeMismatch.New("IN operand cannot be a collection")
	}
	for _, e := range list {
		if e == nil || !types.Compatible(arg.Type(), e.Type()) {
			return nil, ErrTypeMismatch.New(fmt.Sprintf("IN list member does not match %s", arg.Type()))
		}
	}
	return types.NewIn(arg, list), nil
}

// In tests membership of arg in a literal list.
func In(arg Expr, list ...Expr) Expr { return must(TryIn(arg, list...)) }

// TryContains tests whether list contains x, as collection.Contains(x)
// would in the host language.
func TryContains(list []Expr, x Expr) (Expr, error) { return TryIn(x, list...) }

// Contains tests whether list contains x.
func Contains(list []Expr, x Expr) Expr { return must(TryContains(list, x)) }

// TryCase picks the first branch whose condition holds, else els. els may
// be nil.
func TryCase(whens []When, els Expr) (Expr, error) {
	if len(whens) == 0 {
		return nil, invalid("CASE needs at least one branch")
	}
	first := whens[0].Then
	for _, w := range whens {
		if err := requirePredicate(w.When, "CASE condition"); err != nil {
			return nil, err
		}
		if err := requireScalar(w.Then, "CASE result"); err != nil {
			return nil, err
		}
		if !types.Compatible(first.Type(), w.Then.Type()) {
			return nil, ErrTypeMismatch.New(fmt.Sprintf("CASE results %s and %s", first.Type(), w.Then.Type()))
		}
	}
	if els != nil && !types.Compatible(first.Type(), els.Type()) {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("CASE results %s and %s", first.Type(), els.Type()))
	}
	return types.NewCase(whens, els), nil
}

// Case picks the first branch whose condition holds, else els.
func Case(whens []When, els Expr) Expr { return must(TryCase(whens, els)) }

func tryArithmetic(op types.ArithmeticOp, l, r Expr) (Expr, error) {
	if err := requireScalar(l, string(op)+" operand"); err != nil {
		return nil, err
	}
	if err := requireScalar(r, string(op)+" operand"); err != nil {
		return nil, err
	}
	if !l.Type().Primitive.IsNumeric() || !r.Type().Primitive.IsNumeric() {
		return nil, ErrTypeMismatch.New(fmt.Sprintf("%s %s %s", l.Type(), op, r.Type()))
	}
	return types.NewArithmetic(op, l, r), nil
}

// TryAdd computes l + r.
func TryAdd(l, r Expr) (Expr, error) { return tryArithmetic(types.Plus, l, r) }

// Add computes l + r.
func Add(l, r Expr) Expr { return must(TryAdd(l, r)) }

// TrySub computes l - r.
func TrySub(l, r Expr) (Expr, error) { return tryArithmetic(types.Minus, l, r) }

// Sub computes l - r.
func Sub(l, r Expr) Expr { return must(TrySub(l, r)) }

// TryMul computes l * r.
func TryMul(l, r Expr) (Expr, error) { return tryArithmetic(types.Multiply, l, r) }

// Mul computes l * r.
func Mul(l, r Expr) Expr { return must(TryMul(l, r)) }

// TryDiv computes l / r.
func TryDiv(l, r Expr) (Expr, error) { return tryArithmetic(types.Divide, l, r) }

// Div computes l / r.
func Div(l, r Expr) Expr { return must(TryDiv(l, r)) }

// TryMod computes l % r.
func TryMod(l, r Expr) (Expr, error) { return tryArithmetic(types.Modulo, l, r) }

// Mod computes l % r.
func Mod(l, r Expr) Expr { return must(TryMod(l, r)) }

// TryAggregate creates a group aggregate over a per-row expression of the
// group variable. A nil arg counts rows.
func TryAggregate(fn AggregateKind, arg Expr, distinct bool) (Expr, error) {
	switch fn {
	case types.AggCount:
		if arg != nil {
			if err := requireScalar(arg, "COUNT argument"); err != nil {
				return nil, err
			}
		}
	case types.AggGroupPartition:
		if arg == nil || arg.Type().IsCollection() {
			return nil, invalid("partition needs a row or scalar per group element")
		}
		if distinct {
			return nil, invalid("partition cannot be distinct")
		}
	case types.AggMax, types.AggMin:
		if err := requireScalar(arg, string(fn)+" argument"); err != nil {
			return nil, err
		}
	case types.AggSum, types.AggAvg, types.AggStDev, types.AggStDevP, types.AggVar, types.AggVarP:
		if err := requireScalar(arg, string(fn)+" argument"); err != nil {
			return nil, err
		}
		if !arg.Type().Primitive.IsNumeric() {
			return nil, ErrTypeMismatch.New(fmt.Sprintf("%s of %s", fn, arg.Type()))
		}
	default:
		return nil, invalid("unknown aggregate: %s", fn)
	}
	return types.NewAggregate(fn, arg, distinct), nil
}

// Aggregate creates a group aggregate.
func Aggregate(fn AggregateKind, arg Expr, distinct bool) Expr {
	return must(TryAggregate(fn, arg, distinct))
}

// CountAll counts the rows of a group.
func CountAll() Expr { return Aggregate(types.AggCount, nil, false) }

// Count counts the non-null values of arg in a group.
func Count(arg Expr) Expr { return Aggregate(types.AggCount, arg, false) }

// CountDistinct counts the distinct non-null values of arg in a group.
func CountDistinct(arg Expr) Expr { return Aggregate(types.AggCount, arg, true) }

// Max is the largest value of arg in a group.
func Max(arg Expr) Expr { return Aggregate(types.AggMax, arg, false) }

// Min is the smallest value of arg in a group.
func Min(arg Expr) Expr { return Aggregate(types.AggMin, arg, false) }

// Sum adds arg over a group.
func Sum(arg Expr) Expr { return Aggregate(types.AggSum, arg, false) }

// Avg averages arg over a group.
func Avg(arg Expr) Expr { return Aggregate(types.AggAvg, arg, false) }

// StDev is the sample standard deviation of arg.
func StDev(arg Expr) Expr { return Aggregate(types.AggStDev, arg, false) }

// StDevP is the population standard deviation of arg.
func StDevP(arg Expr) Expr { return Aggregate(types.AggStDevP, arg, false) }

// Var is the sample variance of arg.
func Var(arg Expr) Expr { return Aggregate(types.AggVar, arg, false) }

// VarP is the population variance of arg.
func VarP(arg Expr) Expr { return Aggregate(types.AggVarP, arg, false) }

// Partition yields the rows of a group, shaped by arg.
func Partition(arg Expr) Expr { return Aggregate(types.AggGroupPartition, arg, false) }

// TryAggregateOver reduces a collection to a scalar subquery. For every
// function but COUNT the collection's element must be a scalar or a
// single-column row.
func TryAggregateOver(fn AggregateKind, collection Expr) (Expr, error) {
	if err := requireCollection(collection, string(fn)+" input"); err != nil {
		return nil, err
	}
	if fn == types.AggGroupPartition {
		return nil, invalid("partition is only valid inside a grouping")
	}
	if fn != types.AggCount {
		elem := collection.Type().Element()
		if elem.IsRow() {
			if len(elem.Fields) != 1 {
				return nil, invalid("%s over a collection needs a single column, got %s", fn, elem)
			}
			elem = elem.Fields[0].Type
		}
		if !elem.IsPrimitive() {
			return nil, ErrTypeMismatch.New(fmt.Sprintf("%s over %s", fn, elem))
		}
		switch fn {
		case types.AggMax, types.AggMin:
		default:
			if !elem.Primitive.IsNumeric() {
				return nil, ErrTypeMismatch.New(fmt.Sprintf("%s over %s", fn, elem))
			}
		}
	}
	return types.NewAggregate(fn, collection, false), nil
}

// AggregateOver reduces a collection to a scalar subquery.
func AggregateOver(fn AggregateKind, collection Expr) Expr {
	return must(TryAggregateOver(fn, collection))
}

// CountOf counts the elements of a collection.
func CountOf(collection Expr) Expr { return AggregateOver(types.AggCount, collection) }

// MaxOf is the largest element of a collection.
func MaxOf(collection Expr) Expr { return AggregateOver(types.AggMax, collection) }

// MinOf is the smallest element of a collection.
func MinOf(collection Expr) Expr { return AggregateOver(types.AggMin, collection) }

// SumOf adds the elements of a collection.
func SumOf(collection Expr) Expr { return AggregateOver(types.AggSum, collection) }

// AvgOf averages the elements of a collection.
func AvgOf(collection Expr) Expr { return AggregateOver(types.AggAvg, collection) }

// TryExists tests whether a collection has any element.
func TryExists(collection Expr) (Expr, error) {
	if err := requireCollection(collection, "EXISTS input"); err != nil {
		return nil, err
	}
	return types.NewExists(collection), nil
}

// Exists tests whether a collection has any element.
func Exists(collection Expr) Expr { return must(TryExists(collection)) }
