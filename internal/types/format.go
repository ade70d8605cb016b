package types

import (
	"fmt"
	"strings"
)

// Format renders e as canonical text. Two trees with the same Format are
// structurally equal, variable names included.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	if e == nil {
		b.WriteString("_")
		return
	}
	switch n := e.(type) {
	case *Scan:
		fmt.Fprintf(b, "Scan(%s)", n.Set.Name)
	case *Filter:
		b.WriteString("Filter(")
		binding(b, n.Input.Var, n.Input.Input)
		b.WriteString(", ")
		format(b, n.Predicate)
		b.WriteString(")")
	case *Project:
		b.WriteString("Project(")
		binding(b, n.Input.Var, n.Input.Input)
		b.WriteString(", ")
		columns(b, n.Columns)
		b.WriteString(")")
	case *Join:
		fmt.Fprintf(b, "Join[%s](", n.JoinKind)
		binding(b, n.Left.Var, n.Left.Input)
		b.WriteString(", ")
		binding(b, n.Right.Var, n.Right.Input)
		if n.On != nil {
			b.WriteString(", ")
			format(b, n.On)
		}
		if n.Relationship != nil {
			fmt.Fprintf(b, ", rel=%s", n.Relationship.Name)
		}
		b.WriteString(")")
	case *GroupBy:
		fmt.Fprintf(b, "GroupBy(%s/%s: ", n.Input.Var, n.Input.GroupVar)
		format(b, n.Input.Input)
		b.WriteString(", ")
		columns(b, n.Keys)
		b.WriteString(", ")
		columns(b, n.Aggregates)
		b.WriteString(")")
	case *Sort:
		b.WriteString("Sort(")
		binding(b, n.Input.Var, n.Input.Input)
		b.WriteString(", ")
		sortKeys(b, n.Keys)
		b.WriteString(")")
	case *Skip:
		b.WriteString("Skip(")
		format(b, n.Input)
		b.WriteString(", ")
		format(b, n.Count)
		b.WriteString(")")
	case *Limit:
		b.WriteString("Limit(")
		format(b, n.Input)
		b.WriteString(", ")
		format(b, n.Count)
		b.WriteString(")")
	case *SetOp:
		fmt.Fprintf(b, "SetOp[%s](", n.Op)
		format(b, n.Left)
		b.WriteString(", ")
		format(b, n.Right)
		b.WriteString(")")
	case *Distinct:
		b.WriteString("Distinct(")
		format(b, n.Input)
		b.WriteString(")")
	case *Values:
		fmt.Fprintf(b, "Values(%s", strings.Join(n.Names, ", "))
		for _, row := range n.Rows {
			b.WriteString("; ")
			list(b, row)
		}
		b.WriteString(")")
	case *Page:
		b.WriteString("Page(")
		binding(b, n.Input.Var, n.Input.Input)
		b.WriteString(", ")
		sortKeys(b, n.Keys)
		b.WriteString(", ")
		format(b, n.Skip)
		b.WriteString(", ")
		format(b, n.Limit)
		fmt.Fprintf(b, ", %s)", n.RowNumber)
	case *SingleRow:
		b.WriteString("SingleRow")
	case *Constant:
		if s, ok := n.Value.(string); ok {
			fmt.Fprintf(b, "%s(%q)", n.Type().Primitive, s)
		} else {
			fmt.Fprintf(b, "%s(%v)", n.Type().Primitive, n.Value)
		}
	case *Null:
		fmt.Fprintf(b, "Null(%s)", n.Type().Primitive)
	case *Param:
		b.WriteString("@" + n.Name)
	case *VarRef:
		b.WriteString(n.Name)
	case *Property:
		format(b, n.Instance)
		b.WriteString("." + n.Name)
	case *Compare:
		b.WriteString("(")
		format(b, n.Left)
		fmt.Fprintf(b, " %s ", n.Op)
		format(b, n.Right)
		b.WriteString(")")
	case *Logical:
		b.WriteString("(")
		format(b, n.Left)
		op := string(n.Op)
		if n.Expanded {
			op += "*"
		}
		fmt.Fprintf(b, " %s ", op)
		format(b, n.Right)
		b.WriteString(")")
	case *Arithmetic:
		b.WriteString("(")
		format(b, n.Left)
		fmt.Fprintf(b, " %s ", n.Op)
		format(b, n.Right)
		b.WriteString(")")
	case *Not:
		if n.Expanded {
			b.WriteString("NOT*(")
		} else {
			b.WriteString("NOT(")
		}
		format(b, n.Arg)
		b.WriteString(")")
	case *IsNull:
		b.WriteString("ISNULL(")
		format(b, n.Arg)
		b.WriteString(")")
	case *In:
		b.WriteString("IN(")
		format(b, n.Arg)
		b.WriteString("; ")
		list(b, n.List)
		b.WriteString(")")
	case *Function:
		b.WriteString(n.Name)
		b.WriteString("(")
		list(b, n.Args)
		b.WriteString(")")
	case *Case:
		b.WriteString("CASE(")
		for i, w := range n.Whens {
			if i > 0 {
				b.WriteString("; ")
			}
			format(b, w.When)
			b.WriteString(" => ")
			format(b, w.Then)
		}
		b.WriteString("; ")
		format(b, n.Else)
		b.WriteString(")")
	case *Aggregate:
		b.WriteString(string(n.Func))
		if n.Distinct {
			b.WriteString(" DISTINCT")
		}
		b.WriteString("(")
		format(b, n.Arg)
		b.WriteString(")")
	case *Exists:
		b.WriteString("EXISTS(")
		format(b, n.Input)
		b.WriteString(")")
	default:
		panic(fmt.Sprintf("types: unknown node %T", e))
	}
}

func binding(b *strings.Builder, name string, input Expr) {
	b.WriteString(name + ": ")
	format(b, input)
}

func columns(b *strings.Builder, cols []Column) {
	b.WriteString("[")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name + ": ")
		format(b, c.Expr)
	}
	b.WriteString("]")
}

func sortKeys(b *strings.Builder, keys []SortKey) {
	b.WriteString("[")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, k.Expr)
		b.WriteString(" " + string(k.Direction))
	}
	b.WriteString("]")
}

func list(b *strings.Builder, exprs []Expr) {
	for i, e := range exprs {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, e)
	}
}
