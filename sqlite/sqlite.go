// Package sqlite provides the SQLite dialect renderer for entsql.
//
// SQLite has no APPLY or LATERAL; trees that still contain an apply after
// optimization fail with render.UnsupportedFeatureError. Canonical functions
// without a SQLite spelling are emitted as written and fail when executed.
package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/sqlgen"
	"github.com/zoobzio/entsql/internal/types"
)

const dialect = "sqlite"

// Renderer implements the SQLite dialect renderer.
type Renderer struct{}

// New creates a new SQLite renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render converts a translated expression tree to a QueryResult with SQLite SQL.
func (r *Renderer) Render(e types.Expr) (*types.QueryResult, error) {
	return sqlgen.Render(r, e)
}

// Name returns the dialect name.
func (r *Renderer) Name() string { return dialect }

// QuoteIdentifier quotes a SQLite identifier with double quotes.
func (r *Renderer) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Placeholder returns :name.
func (r *Renderer) Placeholder(name string, _ int) string {
	return ":" + name
}

// Literal writes a constant. Date-times are ISO-8601 text, the form the
// SQLite date functions read.
func (r *Renderer) Literal(v any, t types.Type) (string, error) {
	if v == nil {
		return r.Null(t), nil
	}
	switch t.Primitive {
	case types.Boolean:
		if b, ok := v.(bool); ok {
			return r.Bool(b), nil
		}
	case types.String:
		if s, ok := v.(string); ok {
			return sqlgen.QuoteString(s), nil
		}
	case types.DateTime:
		switch d := v.(type) {
		case time.Time:
			return sqlgen.QuoteString(d.Format("2006-01-02 15:04:05.000")), nil
		case string:
			return sqlgen.QuoteString(d), nil
		}
	case types.Guid:
		if s, ok := v.(fmt.Stringer); ok {
			v = s.String()
		}
		if s, ok := v.(string); ok {
			return sqlgen.QuoteString(s), nil
		}
	case types.Binary:
		if b, ok := v.([]byte); ok {
			return "X'" + sqlgen.HexBytes(b) + "'", nil
		}
	default:
		if n, ok := sqlgen.FormatNumber(v); ok {
			return n, nil
		}
	}
	return "", sqlgen.ErrLiteral.New(v, t.String())
}

// Null returns NULL; SQLite columns are not typed.
func (r *Renderer) Null(types.Type) string { return "NULL" }

// Bool returns 1 or 0.
func (r *Renderer) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Function maps a canonical function onto SQLite.
func (r *Renderer) Function(name string, args []string) (string, bool) {
	return functions.Lookup(name, args)
}

// Aggregate returns the aggregate name. SQLite has no statistical
// aggregates, so STDEV and friends fail at execution.
func (r *Renderer) Aggregate(fn types.AggregateKind) string {
	return string(fn)
}

// Capabilities returns the SQL features supported by SQLite.
func (r *Renderer) Capabilities() render.Capabilities {
	return render.Capabilities{
		Limit:     render.LimitTrailing,
		Apply:     render.ApplyNone,
		RowNumber: true,
		Intersect: true,
		Except:    true,
	}
}

func strftime(format string) sqlgen.Function {
	return sqlgen.Template(1, func(a []string) string {
		return "CAST(strftime('" + format + "', " + a[0] + ") AS INTEGER)"
	})
}

func modifier(unit string) sqlgen.Function {
	return sqlgen.Template(2, func(a []string) string {
		return "datetime(" + a[0] + ", printf('%+d " + unit + "', " + a[1] + "))"
	})
}

var functions = sqlgen.FunctionMap{
	"Edm.ToUpper":    sqlgen.Call("UPPER", 1),
	"Edm.ToLower":    sqlgen.Call("LOWER", 1),
	"Edm.Trim":       sqlgen.Call("TRIM", 1),
	"Edm.LTrim":      sqlgen.Call("LTRIM", 1),
	"Edm.RTrim":      sqlgen.Call("RTRIM", 1),
	"Edm.Length":     sqlgen.Call("LENGTH", 1),
	"Edm.Substring":  sqlgen.Call("SUBSTR", 3),
	"Edm.Concat":     sqlgen.Infix("||"),
	"Edm.IndexOf":    sqlgen.Call("INSTR", 2),
	"Edm.Abs":        sqlgen.Call("ABS", 1),
	"Edm.Round":      {MinArgs: 1, MaxArgs: 2, Render: sqlgen.Call("ROUND", 2).Render},
	"Edm.Year":       strftime("%Y"),
	"Edm.Month":      strftime("%m"),
	"Edm.Day":        strftime("%d"),
	"Edm.Hour":       strftime("%H"),
	"Edm.Minute":     strftime("%M"),
	"Edm.Second":     strftime("%S"),
	"Edm.AddDays":    modifier("days"),
	"Edm.AddHours":   modifier("hours"),
	"Edm.AddMinutes": modifier("minutes"),
	"Edm.AddSeconds": modifier("seconds"),
	"Edm.DiffDays": sqlgen.Template(2, func(a []string) string {
		return "CAST(julianday(" + a[1] + ") - julianday(" + a[0] + ") AS INTEGER)"
	}),
	"Edm.CurrentDateTime": sqlgen.Template(0, func([]string) string { return "datetime('now')" }),
}
