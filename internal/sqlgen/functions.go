package sqlgen

import "strings"

// Function is one dialect mapping of a canonical function.
type Function struct {
	Render  func(args []string) string
	MinArgs int
	MaxArgs int
}

// FunctionMap maps canonical function names onto dialect SQL.
type FunctionMap map[string]Function

// Lookup renders name over args. ok is false when the name is unmapped or
// the argument count does not fit.
func (m FunctionMap) Lookup(name string, args []string) (string, bool) {
	f, ok := m[name]
	if !ok || len(args) < f.MinArgs || len(args) > f.MaxArgs {
		return "", false
	}
	return f.Render(args), true
}

// Call maps onto a store function taking the same arguments.
func Call(name string, n int) Function {
	return Function{MinArgs: n, MaxArgs: n, Render: func(args []string) string {
		return name + "(" + strings.Join(args, ", ") + ")"
	}}
}

// Infix joins two or more arguments with op.
func Infix(op string) Function {
	return Function{MinArgs: 2, MaxArgs: 64, Render: func(args []string) string {
		return "(" + strings.Join(args, " "+op+" ") + ")"
	}}
}

// Template maps onto SQL built by fn from exactly n arguments.
func Template(n int, fn func(args []string) string) Function {
	return Function{MinArgs: n, MaxArgs: n, Render: fn}
}
