// Package mssql provides the SQL Server dialect renderer for entsql.
package mssql

import (
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/sqlgen"
	"github.com/zoobzio/entsql/internal/types"
)

const dialect = "mssql"

// Renderer implements the SQL Server dialect renderer.
type Renderer struct{}

// New creates a new SQL Server renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render converts a translated expression tree to a QueryResult with
// SQL Server SQL.
func (r *Renderer) Render(e types.Expr) (*types.QueryResult, error) {
	return sqlgen.Render(r, e)
}

// Name returns the dialect name.
func (r *Renderer) Name() string { return dialect }

// QuoteIdentifier quotes a SQL Server identifier with square brackets.
func (r *Renderer) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "]", "]]")
	return "[" + escaped + "]"
}

// Placeholder returns @name.
func (r *Renderer) Placeholder(name string, _ int) string {
	return "@" + name
}

// Literal writes a constant. Strings are always Unicode.
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
			return "N" + sqlgen.QuoteString(s), nil
		}
	case types.DateTime:
		switch d := v.(type) {
		case time.Time:
			return "CAST(" + sqlgen.QuoteString(d.Format("2006-01-02 15:04:05.0000000")) + " AS datetime2)", nil
		case string:
			return "CAST(" + sqlgen.QuoteString(d) + " AS datetime2)", nil
		}
	case types.Guid:
		if s, ok := v.(fmt.Stringer); ok {
			v = s.String()
		}
		if s, ok := v.(string); ok {
			return "CAST(" + sqlgen.QuoteString(s) + " AS uniqueidentifier)", nil
		}
	case types.Binary:
		if b, ok := v.([]byte); ok {
			return "0x" + sqlgen.HexBytes(b), nil
		}
	default:
		if n, ok := sqlgen.FormatNumber(v); ok {
			return n, nil
		}
	}
	return "", sqlgen.ErrLiteral.New(v, t.String())
}

// Null returns a NULL cast to the store type of t, so that unions of
// literal rows type their columns.
func (r *Renderer) Null(t types.Type) string {
	return "CAST(NULL AS " + storeType(t.Primitive) + ")"
}

func storeType(p types.Primitive) string {
	switch p {
	case types.Int32:
		return "int"
	case types.Int64:
		return "bigint"
	case types.Decimal:
		return "decimal(18, 2)"
	case types.Double:
		return "float"
	case types.Boolean:
		return "bit"
	case types.DateTime:
		return "datetime2"
	case types.Guid:
		return "uniqueidentifier"
	case types.Binary:
		return "varbinary(max)"
	default:
		return "nvarchar(max)"
	}
}

// Bool returns a bit literal.
func (r *Renderer) Bool(v bool) string {
	if v {
		return "CAST(1 AS bit)"
	}
	return "CAST(0 AS bit)"
}

// Function maps a canonical function onto T-SQL.
func (r *Renderer) Function(name string, args []string) (string, bool) {
	return functions.Lookup(name, args)
}

// Aggregate returns the T-SQL aggregate name.
func (r *Renderer) Aggregate(fn types.AggregateKind) string {
	return string(fn)
}

// Capabilities returns the SQL features supported by SQL Server.
func (r *Renderer) Capabilities() render.Capabilities {
	return render.Capabilities{
		Limit:     render.LimitTop,
		Apply:     render.ApplyKeyword,
		RowNumber: true,
		Intersect: true,
		Except:    true,
	}
}

func datePart(part string) sqlgen.Function {
	return sqlgen.Template(1, func(a []string) string {
		return "DATEPART(" + part + ", " + a[0] + ")"
	})
}

func dateAdd(part string) sqlgen.Function {
	return sqlgen.Template(2, func(a []string) string {
		return "DATEADD(" + part + ", " + a[1] + ", " + a[0] + ")"
	})
}

var functions = sqlgen.FunctionMap{
	"Edm.ToUpper": sqlgen.Call("UPPER", 1),
	"Edm.ToLower": sqlgen.Call("LOWER", 1),
	"Edm.Trim": sqlgen.Template(1, func(a []string) string {
		return "LTRIM(RTRIM(" + a[0] + "))"
	}),
	"Edm.LTrim":     sqlgen.Call("LTRIM", 1),
	"Edm.RTrim":     sqlgen.Call("RTRIM", 1),
	"Edm.Length":    sqlgen.Call("LEN", 1),
	"Edm.Substring": sqlgen.Call("SUBSTRING", 3),
	"Edm.Concat":    sqlgen.Infix("+"),
	"Edm.IndexOf": sqlgen.Template(2, func(a []string) string {
		return "CHARINDEX(" + a[1] + ", " + a[0] + ")"
	}),
	"Edm.Abs": sqlgen.Call("ABS", 1),
	"Edm.Round": {MinArgs: 1, MaxArgs: 2, Render: func(a []string) string {
		if len(a) == 1 {
			return "ROUND(" + a[0] + ", 0)"
		}
		return "ROUND(" + a[0] + ", " + a[1] + ")"
	}},
	"Edm.Floor":           sqlgen.Call("FLOOR", 1),
	"Edm.Ceiling":         sqlgen.Call("CEILING", 1),
	"Edm.Power":           sqlgen.Call("POWER", 2),
	"Edm.Year":            sqlgen.Call("YEAR", 1),
	"Edm.Month":           sqlgen.Call("MONTH", 1),
	"Edm.Day":             sqlgen.Call("DAY", 1),
	"Edm.Hour":            datePart("hour"),
	"Edm.Minute":          datePart("minute"),
	"Edm.Second":          datePart("second"),
	"Edm.AddDays":         dateAdd("day"),
	"Edm.AddHours":        dateAdd("hour"),
	"Edm.AddMinutes":      dateAdd("minute"),
	"Edm.AddSeconds":      dateAdd("second"),
	"Edm.AddMilliseconds": dateAdd("millisecond"),
	"Edm.AddMicroseconds": dateAdd("microsecond"),
	"Edm.AddNanoseconds":  dateAdd("nanosecond"),
	"Edm.DiffDays": sqlgen.Template(2, func(a []string) string {
		return "DATEDIFF(day, " + a[0] + ", " + a[1] + ")"
	}),
	"Edm.CurrentDateTime": sqlgen.Call("SYSDATETIME", 0),
}
