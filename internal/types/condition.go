package types

// Constant is a literal value.
type Constant struct {
	Value any
	typed
}

func (*Constant) Kind() Kind { return KindConstant }

// NewConstant creates a Constant of type t.
func NewConstant(v any, t Type) *Constant {
	return &Constant{Value: v, typed: typed{t.WithNullable(false)}}
}

// Null is the typed null literal.
type Null struct {
	typed
}

func (*Null) Kind() Kind { return KindNull }

// NewNull creates a Null of type t.
func NewNull(t Type) *Null {
	return &Null{typed: typed{t.WithNullable(true)}}
}

// VarRef refers to a bound variable.
type VarRef struct {
	Name string
	typed
}

func (*VarRef) Kind() Kind { return KindVarRef }

// NewVarRef creates a VarRef.
func NewVarRef(name string, t Type) *VarRef {
	return &VarRef{Name: name, typed: typed{t}}
}

// Property reads a member of a row-valued instance.
type Property struct {
	Instance Expr
	Name     string
	typed
}

func (*Property) Kind() Kind { return KindProperty }

// NewProperty creates a Property. The type is the member's type, or the zero
// Type when the instance has no such member.
func NewProperty(instance Expr, name string) *Property {
	f, _ := instance.Type().Field(name)
	return &Property{Instance: instance, Name: name, typed: typed{f.Type}}
}

// Path returns the variable a property chain is rooted at and the member
// names leading from it. ok is false when the chain does not end in a VarRef.
func Path(e Expr) (root string, path []string, ok bool) {
	for {
		switch n := e.(type) {
		case *VarRef:
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return n.Name, path, true
		case *Property:
			path = append(path, n.Name)
			e = n.Instance
		default:
			return "", nil, false
		}
	}
}

// Compare is a binary comparison.
type Compare struct {
	Left  Expr
	Right Expr
	Op    CompareOp
	typed
}

func (*Compare) Kind() Kind { return KindCompare }

// NewCompare creates a Compare.
func NewCompare(op CompareOp, left, right Expr) *Compare {
	nullable := nullableScalar(left) || nullableScalar(right)
	return &Compare{Op: op, Left: left, Right: right, typed: typed{PrimitiveOf(Boolean, nullable)}}
}

// Logical is a conjunction or disjunction. Expanded marks predicates
// introduced by null-semantics expansion; such predicates are not
// null-rejecting.
type Logical struct {
	Left     Expr
	Right    Expr
	Op       LogicalOp
	Expanded bool
	typed
}

func (*Logical) Kind() Kind { return KindLogical }

// NewLogical creates a Logical.
func NewLogical(op LogicalOp, left, right Expr, expanded bool) *Logical {
	nullable := left.Type().Nullable || right.Type().Nullable
	return &Logical{Op: op, Left: left, Right: right, Expanded: expanded, typed: typed{PrimitiveOf(Boolean, nullable)}}
}

// Not negates a predicate.
type Not struct {
	Arg      Expr
	Expanded bool
	typed
}

func (*Not) Kind() Kind { return KindNot }

// NewNot creates a Not.
func NewNot(arg Expr, expanded bool) *Not {
	return &Not{Arg: arg, Expanded: expanded, typed: typed{PrimitiveOf(Boolean, arg.Type().Nullable)}}
}

// IsNull tests for null.
type IsNull struct {
	Arg Expr
	typed
}

func (*IsNull) Kind() Kind { return KindIsNull }

// NewIsNull creates an IsNull.
func NewIsNull(arg Expr) *IsNull {
	return &IsNull{Arg: arg, typed: typed{PrimitiveOf(Boolean, false)}}
}

// In tests membership in a literal list.
type In struct {
	Arg  Expr
	List []Expr
	typed
}

func (*In) Kind() Kind { return KindIn }

// NewIn creates an In.
func NewIn(arg Expr, list []Expr) *In {
	nullable := nullableScalar(arg)
	for _, e := range list {
		nullable = nullable || nullableScalar(e)
	}
	return &In{Arg: arg, List: list, typed: typed{PrimitiveOf(Boolean, nullable)}}
}

// Function invokes a canonical or store function.
type Function struct {
	Name string
	Args []Expr
	typed
}

func (*Function) Kind() Kind { return KindFunction }

// NewFunction creates a Function returning ret.
func NewFunction(name string, ret Type, args []Expr) *Function {
	return &Function{Name: name, Args: args, typed: typed{ret}}
}

// When is one branch of a Case.
type When struct {
	When Expr
	Then Expr
}

// Case picks the first branch whose condition holds. Else may be nil.
type Case struct {
	Else  Expr
	Whens []When
	typed
}

func (*Case) Kind() Kind { return KindCase }

// NewCase creates a Case. The result type is the first branch's type,
// nullable when any branch is nullable or Else is missing.
func NewCase(whens []When, els Expr) *Case {
	t := whens[0].Then.Type()
	nullable := els == nil
	for _, w := range whens {
		nullable = nullable || w.Then.Type().Nullable
	}
	if els != nil {
		nullable = nullable || els.Type().Nullable
	}
	return &Case{Whens: whens, Else: els, typed: typed{t.WithNullable(nullable)}}
}

// Arithmetic is a binary arithmetic expression.
type Arithmetic struct {
	Left  Expr
	Right Expr
	Op    ArithmeticOp
	typed
}

func (*Arithmetic) Kind() Kind { return KindArithmetic }

// NewArithmetic creates an Arithmetic. The result takes the wider of the
// two numeric operand types.
func NewArithmetic(op ArithmeticOp, left, right Expr) *Arithmetic {
	lt, rt := left.Type(), right.Type()
	t := lt
	if rank(rt.Primitive) > rank(lt.Primitive) {
		t = rt
	}
	return &Arithmetic{Op: op, Left: left, Right: right, typed: typed{t.WithNullable(lt.Nullable || rt.Nullable)}}
}

func rank(p Primitive) int {
	switch p {
	case Int32:
		return 1
	case Int64:
		return 2
	case Decimal:
		return 3
	case Double:
		return 4
	}
	return 0
}

// Aggregate computes a value over many rows. Inside a GroupBy, Arg is a
// per-row expression over the group variable (nil for a row count). In any
// other position Arg is a collection and the aggregate is a scalar subquery.
type Aggregate struct {
	Arg      Expr
	Func     AggregateKind
	Distinct bool
	typed
}

func (*Aggregate) Kind() Kind { return KindAggregate }

// NewAggregate creates an Aggregate.
func NewAggregate(fn AggregateKind, arg Expr, distinct bool) *Aggregate {
	return &Aggregate{Func: fn, Arg: arg, Distinct: distinct, typed: typed{aggregateType(fn, arg)}}
}

// IsCollectionAggregate reports whether the aggregate ranges over a
// collection-valued argument.
func (a *Aggregate) IsCollectionAggregate() bool {
	return a.Func != AggGroupPartition && a.Arg != nil && a.Arg.Type().IsCollection()
}

func aggregateType(fn AggregateKind, arg Expr) Type {
	switch fn {
	case AggCount:
		return PrimitiveOf(Int32, false)
	case AggGroupPartition:
		return CollectionOf(arg.Type())
	case AggStDev, AggStDevP, AggVar, AggVarP:
		return PrimitiveOf(Double, true)
	}
	t := arg.Type()
	if t.IsCollection() {
		t = t.Element()
		if t.IsRow() && len(t.Fields) > 0 {
			t = t.Fields[0].Type
		}
	}
	return t.WithNullable(true)
}

// Exists tests whether a collection has any element.
type Exists struct {
	Input Expr
	typed
}

func (*Exists) Kind() Kind { return KindExists }

// NewExists creates an Exists.
func NewExists(input Expr) *Exists {
	return &Exists{Input: input, typed: typed{PrimitiveOf(Boolean, false)}}
}

// IsPredicate reports whether e is a comparison-like node that renders as a
// search condition rather than a value.
func IsPredicate(e Expr) bool {
	switch e.Kind() {
	case KindCompare, KindLogical, KindNot, KindIsNull, KindIn, KindExists:
		return true
	}
	return false
}

func nullableScalar(e Expr) bool {
	t := e.Type()
	return t.IsPrimitive() && t.Nullable
}
