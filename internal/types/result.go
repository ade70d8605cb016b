package types

import (
	"database/sql"

	errors "gopkg.in/src-d/go-errors.v1"
)

// ErrMissingParameter is returned by Args when a required value is absent.
var ErrMissingParameter = errors.NewKind("missing value for parameter %q")

// Parameter describes a parameter the rendered SQL expects.
type Parameter struct {
	Name string
	Type Type
}

// QueryResult contains the rendered SQL and required parameters.
// Positional is set when the dialect numbers its placeholders.
type QueryResult struct {
	SQL            string
	RequiredParams []string
	Params         []Parameter
	Positional     bool
}

// Args orders values for database/sql. Named dialects get sql.NamedArg
// values; positional ones get plain values in placeholder order.
func (r *QueryResult) Args(values map[string]any) ([]any, error) {
	args := make([]any, len(r.Params))
	for i, p := range r.Params {
		v, ok := values[p.Name]
		if !ok {
			return nil, ErrMissingParameter.New(p.Name)
		}
		if r.Positional {
			args[i] = v
			continue
		}
		args[i] = sql.Named(p.Name, v)
	}
	return args, nil
}
