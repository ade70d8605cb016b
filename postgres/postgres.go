// Package postgres provides the PostgreSQL dialect renderer for entsql.
package postgres

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/sqlgen"
	"github.com/zoobzio/entsql/internal/types"
)

const dialect = "postgres"

// Renderer implements the PostgreSQL dialect renderer.
type Renderer struct{}

// New creates a new PostgreSQL renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render converts a translated expression tree to a QueryResult with
// PostgreSQL SQL. Placeholders are positional.
func (r *Renderer) Render(e types.Expr) (*types.QueryResult, error) {
	return sqlgen.Render(r, e)
}

// Name returns the dialect name.
func (r *Renderer) Name() string { return dialect }

// QuoteIdentifier quotes a PostgreSQL identifier to handle reserved words and special characters.
func (r *Renderer) QuoteIdentifier(name string) string {
	// We need to escape any existing double quotes by doubling them
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Placeholder returns $position.
func (r *Renderer) Placeholder(_ string, position int) string {
	return "$" + strconv.Itoa(position)
}

// Literal writes a constant.
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
			return "TIMESTAMP " + sqlgen.QuoteString(d.Format("2006-01-02 15:04:05.999999")), nil
		case string:
			return "TIMESTAMP " + sqlgen.QuoteString(d), nil
		}
	case types.Guid:
		if s, ok := v.(fmt.Stringer); ok {
			v = s.String()
		}
		if s, ok := v.(string); ok {
			return "CAST(" + sqlgen.QuoteString(s) + " AS uuid)", nil
		}
	case types.Binary:
		if b, ok := v.([]byte); ok {
			return "CAST('\\x" + sqlgen.HexBytes(b) + "' AS bytea)", nil
		}
	default:
		if n, ok := sqlgen.FormatNumber(v); ok {
			return n, nil
		}
	}
	return "", sqlgen.ErrLiteral.New(v, t.String())
}

// Null returns a typed NULL.
func (r *Renderer) Null(t types.Type) string {
	return "CAST(NULL AS " + storeType(t.Primitive) + ")"
}

func storeType(p types.Primitive) string {
	switch p {
	case types.Int32:
		return "integer"
	case types.Int64:
		return "bigint"
	case types.Decimal:
		return "numeric"
	case types.Double:
		return "double precision"
	case types.Boolean:
		return "boolean"
	case types.DateTime:
		return "timestamp"
	case types.Guid:
		return "uuid"
	case types.Binary:
		return "bytea"
	default:
		return "text"
	}
}

// Bool returns TRUE or FALSE.
func (r *Renderer) Bool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// Function maps a canonical function onto PostgreSQL.
func (r *Renderer) Function(name string, args []string) (string, bool) {
	return functions.Lookup(name, args)
}

// Aggregate maps the statistical aggregates onto their PostgreSQL names.
func (r *Renderer) Aggregate(fn types.AggregateKind) string {
	switch fn {
	case types.AggStDev:
		return "STDDEV_SAMP"
	case types.AggStDevP:
		return "STDDEV_POP"
	case types.AggVar:
		return "VAR_SAMP"
	case types.AggVarP:
		return "VAR_POP"
	}
	return string(fn)
}

// Capabilities returns the SQL features supported by PostgreSQL.
func (r *Renderer) Capabilities() render.Capabilities {
	return render.Capabilities{
		Limit:            render.LimitTrailing,
		Apply:            render.ApplyLateral,
		RowNumber:        true,
		Intersect:        true,
		Except:           true,
		BooleanColumns:   true,
		PositionalParams: true,
	}
}

func extract(field string) sqlgen.Function {
	return sqlgen.Template(1, func(a []string) string {
		return "CAST(EXTRACT(" + field + " FROM " + a[0] + ") AS integer)"
	})
}

func interval(unit string) sqlgen.Function {
	return sqlgen.Template(2, func(a []string) string {
		return "(" + a[0] + " + " + a[1] + " * INTERVAL '1 " + unit + "')"
	})
}

var functions = sqlgen.FunctionMap{
	"Edm.ToUpper":   sqlgen.Call("UPPER", 1),
	"Edm.ToLower":   sqlgen.Call("LOWER", 1),
	"Edm.Trim":      sqlgen.Call("TRIM", 1),
	"Edm.LTrim":     sqlgen.Call("LTRIM", 1),
	"Edm.RTrim":     sqlgen.Call("RTRIM", 1),
	"Edm.Length":    sqlgen.Call("LENGTH", 1),
	"Edm.Substring": sqlgen.Call("SUBSTR", 3),
	"Edm.Concat":    sqlgen.Infix("||"),
	"Edm.IndexOf":   sqlgen.Call("STRPOS", 2),
	"Edm.Abs":       sqlgen.Call("ABS", 1),
	"Edm.Round": {MinArgs: 1, MaxArgs: 2, Render: func(a []string) string {
		if len(a) == 1 {
			return "ROUND(" + a[0] + ")"
		}
		return "ROUND(CAST(" + a[0] + " AS numeric), " + a[1] + ")"
	}},
	"Edm.Floor":           sqlgen.Call("FLOOR", 1),
	"Edm.Ceiling":         sqlgen.Call("CEILING", 1),
	"Edm.Power":           sqlgen.Call("POWER", 2),
	"Edm.Year":            extract("YEAR"),
	"Edm.Month":           extract("MONTH"),
	"Edm.Day":             extract("DAY"),
	"Edm.Hour":            extract("HOUR"),
	"Edm.Minute":          extract("MINUTE"),
	"Edm.Second":          extract("SECOND"),
	"Edm.AddDays":         interval("day"),
	"Edm.AddHours":        interval("hour"),
	"Edm.AddMinutes":      interval("minute"),
	"Edm.AddSeconds":      interval("second"),
	"Edm.AddMilliseconds": interval("millisecond"),
	"Edm.AddMicroseconds": interval("microsecond"),
	"Edm.DiffDays": sqlgen.Template(2, func(a []string) string {
		return "(CAST(" + a[1] + " AS date) - CAST(" + a[0] + " AS date))"
	}),
	"Edm.CurrentDateTime": sqlgen.Template(0, func([]string) string { return "LOCALTIMESTAMP" }),
}
