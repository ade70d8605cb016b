package entsql

import (
	"strings"

	"github.com/zoobzio/entsql/internal/types"
)

// argClass constrains one canonical function argument.
type argClass int

const (
	anyString argClass = iota
	anyNumber
	anyInteger
	anyDateTime
)

func (c argClass) accepts(t Type) bool {
	if !t.IsPrimitive() {
		return false
	}
	switch c {
	case anyString:
		return t.Primitive == types.String
	case anyNumber:
		return t.Primitive.IsNumeric()
	case anyInteger:
		return t.Primitive == types.Int32 || t.Primitive == types.Int64
	case anyDateTime:
		return t.Primitive == types.DateTime
	}
	return false
}

func (c argClass) String() string {
	switch c {
	case anyString:
		return "String"
	case anyNumber:
		return "numeric"
	case anyInteger:
		return "integer"
	case anyDateTime:
		return "DateTime"
	}
	return "unknown"
}

// canonical describes an Edm function. A zero returns means the result has
// the type of the first argument. Trailing arguments past required are
// optional.
type canonical struct {
	args     []argClass
	required int
	returns  Primitive
}

func fixed(ret Primitive, args ...argClass) canonical {
	return canonical{args: args, required: len(args), returns: ret}
}

func sameAsFirst(args ...argClass) canonical {
	return canonical{args: args, required: len(args)}
}

var catalog = map[string]canonical{
	"ToUpper":         fixed(types.String, anyString),
	"ToLower":         fixed(types.String, anyString),
	"Trim":            fixed(types.String, anyString),
	"LTrim":           fixed(types.String, anyString),
	"RTrim":           fixed(types.String, anyString),
	"Length":          fixed(types.Int32, anyString),
	"Substring":       fixed(types.String, anyString, anyInteger, anyInteger),
	"Concat":          fixed(types.String, anyString, anyString),
	"IndexOf":         fixed(types.Int32, anyString, anyString),
	"Abs":             sameAsFirst(anyNumber),
	"Round":           {args: []argClass{anyNumber, anyInteger}, required: 1},
	"Floor":           sameAsFirst(anyNumber),
	"Ceiling":         sameAsFirst(anyNumber),
	"Power":           sameAsFirst(anyNumber, anyNumber),
	"Year":            fixed(types.Int32, anyDateTime),
	"Month":           fixed(types.Int32, anyDateTime),
	"Day":             fixed(types.Int32, anyDateTime),
	"Hour":            fixed(types.Int32, anyDateTime),
	"Minute":          fixed(types.Int32, anyDateTime),
	"Second":          fixed(types.Int32, anyDateTime),
	"AddDays":         fixed(types.DateTime, anyDateTime, anyInteger),
	"AddHours":        fixed(types.DateTime, anyDateTime, anyInteger),
	"AddMinutes":      fixed(types.DateTime, anyDateTime, anyInteger),
	"AddSeconds":      fixed(types.DateTime, anyDateTime, anyInteger),
	"AddMilliseconds": fixed(types.DateTime, anyDateTime, anyInteger),
	"AddMicroseconds": fixed(types.DateTime, anyDateTime, anyInteger),
	"AddNanoseconds":  fixed(types.DateTime, anyDateTime, anyInteger),
	"DiffDays":        fixed(types.Int32, anyDateTime, anyDateTime),
	"CurrentDateTime": fixed(types.DateTime),
}

// canonicalPrefix namespaces the catalog.
const canonicalPrefix = "Edm."

// Functions lists the canonical function names, qualified.
func Functions() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, canonicalPrefix+name)
	}
	return names
}

// LookupFunction resolves a canonical function name, with or without the
// Edm. prefix, ignoring case. It returns the qualified name.
func LookupFunction(name string) (string, bool) {
	bare := strings.TrimPrefix(name, canonicalPrefix)
	if _, ok := catalog[bare]; ok {
		return canonicalPrefix + bare, true
	}
	for n := range catalog {
		if strings.EqualFold(n, bare) {
			return canonicalPrefix + n, true
		}
	}
	return "", false
}

// TryInvoke calls a canonical function. The result is nullable when any
// argument is.
func TryInvoke(name string, args ...Expr) (Expr, error) {
	qualified, ok := LookupFunction(name)
	if !ok {
		return nil, ErrUnknownFunction.New(name)
	}
	fn := catalog[strings.TrimPrefix(qualified, canonicalPrefix)]
	if len(args) < fn.required || len(args) > len(fn.args) {
		return nil, ErrInvalidQuery.New(qualified + ": wrong number of arguments")
	}
	nullable := false
	for i, a := range args {
		if a == nil {
			return nil, ErrInvalidQuery.New(qualified + ": nil argument")
		}
		if !fn.args[i].accepts(a.Type()) {
			return nil, ErrTypeMismatch.New(qualified + " expects " + fn.args[i].String() + ", got " + a.Type().String())
		}
		nullable = nullable || a.Type().Nullable
	}
	ret := types.PrimitiveOf(fn.returns, nullable)
	if fn.returns == "" {
		ret = args[0].Type().WithNullable(nullable)
	}
	return types.NewFunction(qualified, ret, args), nil
}

// Invoke calls a canonical function.
func Invoke(name string, args ...Expr) Expr {
	e, err := TryInvoke(name, args...)
	if err != nil {
		panic(err)
	}
	return e
}

// TryInvokeStore calls a store function by its SQL name. The call is written
// as given and not checked against any dialect.
func TryInvokeStore(name string, ret Type, args ...Expr) (Expr, error) {
	for _, part := range strings.Split(name, ".") {
		if !isValidSQLIdentifier(part) {
			return nil, ErrInvalidQuery.New("invalid store function name: " + name)
		}
	}
	if strings.HasPrefix(name, canonicalPrefix) {
		return nil, ErrInvalidQuery.New("store function cannot use the canonical namespace: " + name)
	}
	if !ret.IsPrimitive() {
		return nil, ErrInvalidQuery.New("store function must return a primitive type")
	}
	for _, a := range args {
		if a == nil || !a.Type().IsPrimitive() {
			return nil, ErrInvalidQuery.New(name + ": arguments must be scalar")
		}
	}
	return types.NewFunction(name, ret, args), nil
}

// InvokeStore calls a store function by its SQL name.
func InvokeStore(name string, ret Type, args ...Expr) Expr {
	e, err := TryInvokeStore(name, ret, args...)
	if err != nil {
		panic(err)
	}
	return e
}
