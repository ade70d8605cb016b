package types

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	EQ CompareOp = "="
	NE CompareOp = "<>"
	GT CompareOp = ">"
	GE CompareOp = ">="
	LT CompareOp = "<"
	LE CompareOp = "<="
)

// LogicalOp combines two predicates.
type LogicalOp string

const (
	AND LogicalOp = "AND"
	OR  LogicalOp = "OR"
)

// ArithmeticOp is a binary arithmetic operator.
type ArithmeticOp string

const (
	Plus     ArithmeticOp = "+"
	Minus    ArithmeticOp = "-"
	Multiply ArithmeticOp = "*"
	Divide   ArithmeticOp = "/"
	Modulo   ArithmeticOp = "%"
)

// JoinKind selects how two bindings are combined.
type JoinKind string

const (
	InnerJoin     JoinKind = "INNER JOIN"
	LeftOuterJoin JoinKind = "LEFT OUTER JOIN"
	CrossJoin     JoinKind = "CROSS JOIN"
	CrossApply    JoinKind = "CROSS APPLY"
	OuterApply    JoinKind = "OUTER APPLY"
)

// IsApply reports whether the right side is evaluated per left row.
func (k JoinKind) IsApply() bool { return k == CrossApply || k == OuterApply }

// IsOuter reports whether unmatched left rows are preserved.
func (k JoinKind) IsOuter() bool { return k == LeftOuterJoin || k == OuterApply }

// SetOpKind is a set operation over two compatible collections.
type SetOpKind string

const (
	Union     SetOpKind = "UNION"
	UnionAll  SetOpKind = "UNION ALL"
	Intersect SetOpKind = "INTERSECT"
	Except    SetOpKind = "EXCEPT"
)

// AggregateKind names an aggregate function.
type AggregateKind string

const (
	AggCount          AggregateKind = "COUNT"
	AggMax            AggregateKind = "MAX"
	AggMin            AggregateKind = "MIN"
	AggSum            AggregateKind = "SUM"
	AggAvg            AggregateKind = "AVG"
	AggStDev          AggregateKind = "STDEV"
	AggStDevP         AggregateKind = "STDEVP"
	AggVar            AggregateKind = "VAR"
	AggVarP           AggregateKind = "VARP"
	AggGroupPartition AggregateKind = "GROUP_PARTITION"
)

// Direction is a sort direction.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)
