// Package mariadb provides the MariaDB dialect renderer for entsql.
//
// MariaDB has no APPLY or LATERAL; trees that still contain an apply after
// optimization fail with render.UnsupportedFeatureError. Placeholders are
// the driver's anonymous ?, so a parameter read twice is bound twice and
// QueryResult.Params lists parameters in the order they appear in the text.
package mariadb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/sqlgen"
	"github.com/zoobzio/entsql/internal/types"
)

const dialect = "mariadb"

// mark delimits a parameter position in rendered SQL until Render replaces
// it with ?. String literals escape NUL, so the mark cannot occur in them.
const mark = '\x00'

// Renderer implements the MariaDB dialect renderer.
type Renderer struct{}

// New creates a new MariaDB renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render converts a translated expression tree to a QueryResult with
// MariaDB SQL.
func (r *Renderer) Render(e types.Expr) (*types.QueryResult, error) {
	result, err := sqlgen.Render(r, e)
	if err != nil {
		return nil, err
	}
	return bindInTextOrder(result)
}

// bindInTextOrder rewrites every position mark to ? and lists the marked
// parameters in text order, once per occurrence.
func bindInTextOrder(result *types.QueryResult) (*types.QueryResult, error) {
	var b strings.Builder
	var params []types.Parameter
	s := result.SQL
	for {
		i := strings.IndexByte(s, mark)
		if i < 0 {
			b.WriteString(s)
			break
		}
		j := strings.IndexByte(s[i+1:], mark)
		if j < 0 {
			return nil, sqlgen.ErrUnrenderable.New(result.SQL, "unterminated parameter mark")
		}
		pos, err := strconv.Atoi(s[i+1 : i+1+j])
		if err != nil || pos < 1 || pos > len(result.Params) {
			return nil, sqlgen.ErrUnrenderable.New(result.SQL, "bad parameter mark")
		}
		b.WriteString(s[:i])
		b.WriteByte('?')
		params = append(params, result.Params[pos-1])
		s = s[i+j+2:]
	}
	result.SQL = b.String()
	result.Params = params
	return result, nil
}

// Name returns the dialect name.
func (r *Renderer) Name() string { return dialect }

// QuoteIdentifier quotes a MariaDB identifier with backticks.
func (r *Renderer) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Placeholder returns a position mark that Render turns into ?.
func (r *Renderer) Placeholder(_ string, position int) string {
	return string(mark) + strconv.Itoa(position) + string(mark)
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`, "\x00", `\0`)

// quoteString escapes backslashes as well as quotes; MariaDB reads
// backslash escapes in literals unless NO_BACKSLASH_ESCAPES is set.
func quoteString(s string) string {
	return "'" + stringEscaper.Replace(s) + "'"
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
			return quoteString(s), nil
		}
	case types.DateTime:
		switch d := v.(type) {
		case time.Time:
			return "TIMESTAMP " + quoteString(d.Format("2006-01-02 15:04:05.999999")), nil
		case string:
			return "TIMESTAMP " + quoteString(d), nil
		}
	case types.Guid:
		if s, ok := v.(fmt.Stringer); ok {
			v = s.String()
		}
		if s, ok := v.(string); ok {
			return quoteString(s), nil
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

// Null returns NULL.
func (r *Renderer) Null(types.Type) string { return "NULL" }

// Bool returns 1 or 0; BOOLEAN is TINYINT(1) in MariaDB.
func (r *Renderer) Bool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Function maps a canonical function onto MariaDB.
func (r *Renderer) Function(name string, args []string) (string, bool) {
	return functions.Lookup(name, args)
}

// Aggregate maps the statistical aggregates onto their MariaDB names.
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

// Capabilities returns the SQL features supported by MariaDB 10.3 and later.
func (r *Renderer) Capabilities() render.Capabilities {
	return render.Capabilities{
		Limit:            render.LimitTrailing,
		Apply:            render.ApplyNone,
		RowNumber:        true,
		Intersect:        true,
		Except:           true,
		PositionalParams: true,
	}
}

func dateAdd(unit string) sqlgen.Function {
	return sqlgen.Template(2, func(a []string) string {
		return "DATE_ADD(" + a[0] + ", INTERVAL " + a[1] + " " + unit + ")"
	})
}

var functions = sqlgen.FunctionMap{
	"Edm.ToUpper":    sqlgen.Call("UPPER", 1),
	"Edm.ToLower":    sqlgen.Call("LOWER", 1),
	"Edm.Trim":       sqlgen.Call("TRIM", 1),
	"Edm.LTrim":      sqlgen.Call("LTRIM", 1),
	"Edm.RTrim":      sqlgen.Call("RTRIM", 1),
	"Edm.Length":     sqlgen.Call("CHAR_LENGTH", 1),
	"Edm.Substring":  sqlgen.Call("SUBSTRING", 3),
	"Edm.Concat":     {MinArgs: 2, MaxArgs: 64, Render: sqlgen.Call("CONCAT", 0).Render},
	"Edm.IndexOf":    sqlgen.Call("INSTR", 2),
	"Edm.Abs":        sqlgen.Call("ABS", 1),
	"Edm.Round":      {MinArgs: 1, MaxArgs: 2, Render: sqlgen.Call("ROUND", 2).Render},
	"Edm.Floor":      sqlgen.Call("FLOOR", 1),
	"Edm.Ceiling":    sqlgen.Call("CEILING", 1),
	"Edm.Power":      sqlgen.Call("POWER", 2),
	"Edm.Year":       sqlgen.Call("YEAR", 1),
	"Edm.Month":      sqlgen.Call("MONTH", 1),
	"Edm.Day":        sqlgen.Call("DAYOFMONTH", 1),
	"Edm.Hour":       sqlgen.Call("HOUR", 1),
	"Edm.Minute":     sqlgen.Call("MINUTE", 1),
	"Edm.Second":     sqlgen.Call("SECOND", 1),
	"Edm.AddDays":    dateAdd("DAY"),
	"Edm.AddHours":   dateAdd("HOUR"),
	"Edm.AddMinutes": dateAdd("MINUTE"),
	"Edm.AddSeconds": dateAdd("SECOND"),
	"Edm.AddMilliseconds": sqlgen.Template(2, func(a []string) string {
		return "DATE_ADD(" + a[0] + ", INTERVAL (" + a[1] + ") * 1000 MICROSECOND)"
	}),
	"Edm.AddMicroseconds": dateAdd("MICROSECOND"),
	"Edm.DiffDays": sqlgen.Template(2, func(a []string) string {
		return "DATEDIFF(" + a[1] + ", " + a[0] + ")"
	}),
	"Edm.CurrentDateTime": sqlgen.Template(0, func([]string) string { return "NOW(6)" }),
}
