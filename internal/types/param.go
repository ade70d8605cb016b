package types

// Param is a named query parameter. All parameters are named; the value is
// supplied at execution time.
type Param struct {
	Name string
	typed
}

func (*Param) Kind() Kind { return KindParam }

// NewParam creates a Param of type t.
func NewParam(name string, t Type) *Param {
	return &Param{Name: name, typed: typed{t}}
}
