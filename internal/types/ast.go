// Package types holds the immutable expression tree shared by every
// translation stage, along with the result types and metadata it refers to.
package types

// Kind tags each node variant. The set is closed: stages switch over it
// exhaustively and treat anything else as a programming error.
type Kind string

const (
	KindScan      Kind = "Scan"
	KindFilter    Kind = "Filter"
	KindProject   Kind = "Project"
	KindJoin      Kind = "Join"
	KindGroupBy   Kind = "GroupBy"
	KindSort      Kind = "Sort"
	KindSkip      Kind = "Skip"
	KindLimit     Kind = "Limit"
	KindSetOp     Kind = "SetOp"
	KindDistinct  Kind = "Distinct"
	KindValues    Kind = "Values"
	KindPage      Kind = "Page"
	KindSingleRow Kind = "SingleRow"

	KindConstant   Kind = "Constant"
	KindNull       Kind = "Null"
	KindParam      Kind = "Param"
	KindVarRef     Kind = "VarRef"
	KindProperty   Kind = "Property"
	KindCompare    Kind = "Compare"
	KindLogical    Kind = "Logical"
	KindNot        Kind = "Not"
	KindIsNull     Kind = "IsNull"
	KindIn         Kind = "In"
	KindFunction   Kind = "Function"
	KindCase       Kind = "Case"
	KindArithmetic Kind = "Arithmetic"
	KindAggregate  Kind = "Aggregate"
	KindExists     Kind = "Exists"
)

// Expr is a node of the expression tree.
type Expr interface {
	Kind() Kind
	Type() Type
	node()
}

type typed struct{ typ Type }

func (t typed) Type() Type { return t.typ }
func (typed) node()        {}

// Binding names the current element of a collection so that dependent
// expressions can refer to it through a VarRef.
type Binding struct {
	Input Expr
	Var   string
}

// Element returns the type of the bound element.
func (b Binding) Element() Type { return b.Input.Type().Element() }

// Ref returns a reference to the bound variable.
func (b Binding) Ref() *VarRef { return NewVarRef(b.Var, b.Element()) }

// GroupBinding binds both the current row and the whole group the row
// belongs to.
type GroupBinding struct {
	Input    Expr
	Var      string
	GroupVar string
}

// Element returns the type of the bound element.
func (b GroupBinding) Element() Type { return b.Input.Type().Element() }

// Column is a named output expression.
type Column struct {
	Expr Expr
	Name string
}

// SortKey is one ordering term.
type SortKey struct {
	Expr      Expr
	Direction Direction
}

// Scan reads every entity of a set.
type Scan struct {
	Set *EntitySet
	typed
}

func (*Scan) Kind() Kind { return KindScan }

// NewScan creates a Scan.
func NewScan(set *EntitySet) *Scan {
	return &Scan{Set: set, typed: typed{CollectionOf(set.RowType())}}
}

// Filter keeps the elements satisfying Predicate.
type Filter struct {
	Predicate Expr
	Input     Binding
	typed
}

func (*Filter) Kind() Kind { return KindFilter }

// NewFilter creates a Filter.
func NewFilter(input Binding, predicate Expr) *Filter {
	return &Filter{Input: input, Predicate: predicate, typed: typed{input.Input.Type()}}
}

// Project maps each element onto a row of columns.
type Project struct {
	Input   Binding
	Columns []Column
	typed
}

func (*Project) Kind() Kind { return KindProject }

// NewProject creates a Project.
func NewProject(input Binding, columns []Column) *Project {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		fields[i] = Field{Name: c.Name, Type: c.Expr.Type()}
	}
	return &Project{Input: input, Columns: columns, typed: typed{CollectionOf(RowOf(fields...))}}
}

// Join combines two bindings. On is nil for cross joins and applies.
// Relationship is set when the join follows an association.
type Join struct {
	On           Expr
	Relationship *Association
	Left         Binding
	Right        Binding
	JoinKind     JoinKind
	typed
}

func (*Join) Kind() Kind { return KindJoin }

// NewJoin creates a Join. The output element is a row holding the left and
// right elements under their variable names; the right side of an outer join
// or apply becomes nullable.
func NewJoin(kind JoinKind, left, right Binding, on Expr, rel *Association) *Join {
	rt := right.Element()
	if kind.IsOuter() {
		rt = MakeNullable(rt)
	}
	row := RowOf(Field{Name: left.Var, Type: left.Element()}, Field{Name: right.Var, Type: rt})
	return &Join{JoinKind: kind, Left: left, Right: right, On: on, Relationship: rel, typed: typed{CollectionOf(row)}}
}

// GroupBy partitions its input by Keys and computes Aggregates per group.
// The output row holds the keys followed by the aggregates.
type GroupBy struct {
	Input      GroupBinding
	Keys       []Column
	Aggregates []Column
	typed
}

func (*GroupBy) Kind() Kind { return KindGroupBy }

// NewGroupBy creates a GroupBy.
func NewGroupBy(input GroupBinding, keys, aggregates []Column) *GroupBy {
	fields := make([]Field, 0, len(keys)+len(aggregates))
	for _, k := range keys {
		fields = append(fields, Field{Name: k.Name, Type: k.Expr.Type()})
	}
	for _, a := range aggregates {
		fields = append(fields, Field{Name: a.Name, Type: a.Expr.Type()})
	}
	return &GroupBy{Input: input, Keys: keys, Aggregates: aggregates, typed: typed{CollectionOf(RowOf(fields...))}}
}

// Sort orders its input.
type Sort struct {
	Input Binding
	Keys  []SortKey
	typed
}

func (*Sort) Kind() Kind { return KindSort }

// NewSort creates a Sort.
func NewSort(input Binding, keys []SortKey) *Sort {
	return &Sort{Input: input, Keys: keys, typed: typed{input.Input.Type()}}
}

// Skip drops the first Count elements of an ordered input.
type Skip struct {
	Input Expr
	Count Expr
	typed
}

func (*Skip) Kind() Kind { return KindSkip }

// NewSkip creates a Skip.
func NewSkip(input, count Expr) *Skip {
	return &Skip{Input: input, Count: count, typed: typed{input.Type()}}
}

// Limit keeps at most Count elements.
type Limit struct {
	Input Expr
	Count Expr
	typed
}

func (*Limit) Kind() Kind { return KindLimit }

// NewLimit creates a Limit.
func NewLimit(input, count Expr) *Limit {
	return &Limit{Input: input, Count: count, typed: typed{input.Type()}}
}

// SetOp combines two compatible collections.
type SetOp struct {
	Left  Expr
	Right Expr
	Op    SetOpKind
	typed
}

func (*SetOp) Kind() Kind { return KindSetOp }

// NewSetOp creates a SetOp. The result keeps the left operand's member names.
func NewSetOp(op SetOpKind, left, right Expr) *SetOp {
	return &SetOp{Op: op, Left: left, Right: right, typed: typed{Merge(left.Type(), right.Type())}}
}

// Distinct removes duplicate elements.
type Distinct struct {
	Input Expr
	typed
}

func (*Distinct) Kind() Kind { return KindDistinct }

// NewDistinct creates a Distinct.
func NewDistinct(input Expr) *Distinct {
	return &Distinct{Input: input, typed: typed{input.Type()}}
}

// Values is a literal collection of rows.
type Values struct {
	Names []string
	Rows  [][]Expr
	typed
}

func (*Values) Kind() Kind { return KindValues }

// NewValues creates a Values node. Column types are taken from the first
// non-null cell of each column and widened across rows.
func NewValues(names []string, rows [][]Expr) *Values {
	fields := make([]Field, len(names))
	for i, name := range names {
		var t Type
		found, nullable := false, false
		for _, row := range rows {
			switch {
			case row[i].Kind() == KindNull:
				nullable = true
				if !found {
					t = row[i].Type()
				}
			case !found:
				t, found = row[i].Type(), true
			default:
				t = Merge(t, row[i].Type())
			}
		}
		if nullable {
			t = t.WithNullable(true)
		}
		fields[i] = Field{Name: name, Type: t}
	}
	return &Values{Names: names, Rows: rows, typed: typed{CollectionOf(RowOf(fields...))}}
}

// Page is an ordered window over its input: Skip rows are discarded by row
// number and at most Limit rows are returned. Either bound may be nil.
// RowNumber names the numbering column when Skip is set.
type Page struct {
	Skip      Expr
	Limit     Expr
	Input     Binding
	RowNumber string
	Keys      []SortKey
	typed
}

func (*Page) Kind() Kind { return KindPage }

// NewPage creates a Page.
func NewPage(input Binding, keys []SortKey, skip, limit Expr, rowNumber string) *Page {
	return &Page{Input: input, Keys: keys, Skip: skip, Limit: limit, RowNumber: rowNumber, typed: typed{input.Input.Type()}}
}

// SingleRowColumn is the only column of the synthetic single-row table.
const SingleRowColumn = "X"

// SingleRow is a synthetic table with exactly one row.
type SingleRow struct {
	typed
}

func (*SingleRow) Kind() Kind { return KindSingleRow }

// NewSingleRow creates a SingleRow.
func NewSingleRow() *SingleRow {
	return &SingleRow{typed: typed{CollectionOf(RowOf(Field{Name: SingleRowColumn, Type: PrimitiveOf(Int32, false)}))}}
}

// IsRelational reports whether e produces a collection.
func IsRelational(e Expr) bool {
	switch e.Kind() {
	case KindScan, KindFilter, KindProject, KindJoin, KindGroupBy, KindSort, KindSkip,
		KindLimit, KindSetOp, KindDistinct, KindValues, KindPage, KindSingleRow:
		return true
	}
	return false
}
