package types

import "fmt"

// Children returns the direct sub-expressions of e in a fixed order.
// Optional slots (a join's On, a page's bounds, a case's Else, a row-count
// aggregate's Arg) are present as nil entries.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Scan, *SingleRow, *Constant, *Null, *Param, *VarRef:
		return nil
	case *Filter:
		return []Expr{n.Input.Input, n.Predicate}
	case *Project:
		out := []Expr{n.Input.Input}
		for _, c := range n.Columns {
			out = append(out, c.Expr)
		}
		return out
	case *Join:
		return []Expr{n.Left.Input, n.Right.Input, n.On}
	case *GroupBy:
		out := []Expr{n.Input.Input}
		for _, c := range n.Keys {
			out = append(out, c.Expr)
		}
		for _, c := range n.Aggregates {
			out = append(out, c.Expr)
		}
		return out
	case *Sort:
		out := []Expr{n.Input.Input}
		for _, k := range n.Keys {
			out = append(out, k.Expr)
		}
		return out
	case *Skip:
		return []Expr{n.Input, n.Count}
	case *Limit:
		return []Expr{n.Input, n.Count}
	case *SetOp:
		return []Expr{n.Left, n.Right}
	case *Distinct:
		return []Expr{n.Input}
	case *Values:
		var out []Expr
		for _, row := range n.Rows {
			out = append(out, row...)
		}
		return out
	case *Page:
		out := []Expr{n.Input.Input}
		for _, k := range n.Keys {
			out = append(out, k.Expr)
		}
		return append(out, n.Skip, n.Limit)
	case *Property:
		return []Expr{n.Instance}
	case *Compare:
		return []Expr{n.Left, n.Right}
	case *Logical:
		return []Expr{n.Left, n.Right}
	case *Arithmetic:
		return []Expr{n.Left, n.Right}
	case *Not:
		return []Expr{n.Arg}
	case *IsNull:
		return []Expr{n.Arg}
	case *In:
		return append([]Expr{n.Arg}, n.List...)
	case *Function:
		return append([]Expr(nil), n.Args...)
	case *Case:
		var out []Expr
		for _, w := range n.Whens {
			out = append(out, w.When, w.Then)
		}
		return append(out, n.Else)
	case *Aggregate:
		return []Expr{n.Arg}
	case *Exists:
		return []Expr{n.Input}
	}
	panic(fmt.Sprintf("types: unknown node %T", e))
}

// WithChildren rebuilds e around new children given in Children order.
// Result types are recomputed; binding variable names are kept.
func WithChildren(e Expr, c []Expr) Expr {
	switch n := e.(type) {
	case *Scan, *SingleRow, *Constant, *Null, *Param, *VarRef:
		return e
	case *Filter:
		return NewFilter(Binding{Input: c[0], Var: n.Input.Var}, c[1])
	case *Project:
		cols := make([]Column, len(n.Columns))
		for i, col := range n.Columns {
			cols[i] = Column{Name: col.Name, Expr: c[i+1]}
		}
		return NewProject(Binding{Input: c[0], Var: n.Input.Var}, cols)
	case *Join:
		return NewJoin(n.JoinKind, Binding{Input: c[0], Var: n.Left.Var}, Binding{Input: c[1], Var: n.Right.Var}, c[2], n.Relationship)
	case *GroupBy:
		keys := make([]Column, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = Column{Name: k.Name, Expr: c[1+i]}
		}
		aggs := make([]Column, len(n.Aggregates))
		for i, a := range n.Aggregates {
			aggs[i] = Column{Name: a.Name, Expr: c[1+len(n.Keys)+i]}
		}
		in := n.Input
		in.Input = c[0]
		return NewGroupBy(in, keys, aggs)
	case *Sort:
		keys := make([]SortKey, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = SortKey{Expr: c[i+1], Direction: k.Direction}
		}
		return NewSort(Binding{Input: c[0], Var: n.Input.Var}, keys)
	case *Skip:
		return NewSkip(c[0], c[1])
	case *Limit:
		return NewLimit(c[0], c[1])
	case *SetOp:
		return NewSetOp(n.Op, c[0], c[1])
	case *Distinct:
		return NewDistinct(c[0])
	case *Values:
		rows := make([][]Expr, len(n.Rows))
		i := 0
		for r, row := range n.Rows {
			rows[r] = append([]Expr(nil), c[i:i+len(row)]...)
			i += len(row)
		}
		return NewValues(n.Names, rows)
	case *Page:
		keys := make([]SortKey, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = SortKey{Expr: c[i+1], Direction: k.Direction}
		}
		return NewPage(Binding{Input: c[0], Var: n.Input.Var}, keys, c[len(c)-2], c[len(c)-1], n.RowNumber)
	case *Property:
		return NewProperty(c[0], n.Name)
	case *Compare:
		return NewCompare(n.Op, c[0], c[1])
	case *Logical:
		return NewLogical(n.Op, c[0], c[1], n.Expanded)
	case *Arithmetic:
		return NewArithmetic(n.Op, c[0], c[1])
	case *Not:
		return NewNot(c[0], n.Expanded)
	case *IsNull:
		return NewIsNull(c[0])
	case *In:
		return NewIn(c[0], append([]Expr(nil), c[1:]...))
	case *Function:
		return NewFunction(n.Name, n.Type(), append([]Expr(nil), c...))
	case *Case:
		whens := make([]When, len(n.Whens))
		for i := range n.Whens {
			whens[i] = When{When: c[2*i], Then: c[2*i+1]}
		}
		return NewCase(whens, c[len(c)-1])
	case *Aggregate:
		return NewAggregate(n.Func, c[0], n.Distinct)
	case *Exists:
		return NewExists(c[0])
	}
	panic(fmt.Sprintf("types: unknown node %T", e))
}

// Scope returns the variables e binds for its i-th child.
func Scope(e Expr, i int) []string {
	switch n := e.(type) {
	case *Filter:
		if i > 0 {
			return []string{n.Input.Var}
		}
	case *Project:
		if i > 0 {
			return []string{n.Input.Var}
		}
	case *Sort:
		if i > 0 {
			return []string{n.Input.Var}
		}
	case *Join:
		switch {
		case i == 1 && n.JoinKind.IsApply():
			return []string{n.Left.Var}
		case i == 2:
			return []string{n.Left.Var, n.Right.Var}
		}
	case *GroupBy:
		if i > 0 {
			return []string{n.Input.Var, n.Input.GroupVar}
		}
	case *Page:
		if i > 0 && i <= len(n.Keys) {
			return []string{n.Input.Var}
		}
	}
	return nil
}

// Transform rebuilds e bottom-up, applying fn to every node after its
// children have been transformed.
func Transform(e Expr, fn func(Expr) (Expr, error)) (Expr, error) {
	if e == nil {
		return nil, nil
	}
	children := Children(e)
	var out []Expr
	for i, c := range children {
		if c == nil {
			continue
		}
		nc, err := Transform(c, fn)
		if err != nil {
			return nil, err
		}
		if nc != c {
			if out == nil {
				out = append([]Expr(nil), children...)
			}
			out[i] = nc
		}
	}
	if out != nil {
		e = WithChildren(e, out)
	}
	return fn(e)
}

// Walk visits e top-down. Children are skipped when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Contains reports whether any node of e has one of the given kinds.
func Contains(e Expr, kinds ...Kind) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if found {
			return false
		}
		for _, k := range kinds {
			if n.Kind() == k {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// BoundNames collects every variable name bound anywhere in e.
func BoundNames(e Expr) map[string]bool {
	names := make(map[string]bool)
	Walk(e, func(n Expr) bool {
		switch n := n.(type) {
		case *Filter:
			names[n.Input.Var] = true
		case *Project:
			names[n.Input.Var] = true
		case *Sort:
			names[n.Input.Var] = true
		case *Page:
			names[n.Input.Var] = true
		case *Join:
			names[n.Left.Var] = true
			names[n.Right.Var] = true
		case *GroupBy:
			names[n.Input.Var] = true
			names[n.Input.GroupVar] = true
		}
		return true
	})
	return names
}

// Chain builds a property chain reading path from root.
func Chain(root Expr, path []string) Expr {
	e := root
	for _, name := range path {
		e = NewProperty(e, name)
	}
	return e
}

// MapVar replaces every property chain rooted at the free variable name with
// fn(path). Nested bindings that shadow name are left alone.
func MapVar(e Expr, name string, fn func(path []string) Expr) Expr {
	if e == nil {
		return nil
	}
	if root, path, ok := Path(e); ok {
		if root == name {
			return fn(path)
		}
		return e
	}
	children := Children(e)
	var out []Expr
	for i, c := range children {
		if c == nil || shadows(Scope(e, i), name) {
			continue
		}
		nc := MapVar(c, name, fn)
		if nc != c {
			if out == nil {
				out = append([]Expr(nil), children...)
			}
			out[i] = nc
		}
	}
	if out == nil {
		return e
	}
	return WithChildren(e, out)
}

// ReplaceVar substitutes repl for every free reference to name.
func ReplaceVar(e Expr, name string, repl Expr) Expr {
	return MapVar(e, name, func(path []string) Expr { return Chain(repl, path) })
}

// References reports whether e reads the free variable name.
func References(e Expr, name string) bool {
	found := false
	MapVar(e, name, func(path []string) Expr {
		found = true
		return Chain(NewVarRef(name, Type{}), path)
	})
	return found
}

func shadows(scope []string, name string) bool {
	for _, s := range scope {
		if s == name {
			return true
		}
	}
	return false
}
