package entsql

import (
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/zoobzio/entsql/internal/groupagg"
	"github.com/zoobzio/entsql/internal/nullsem"
	"github.com/zoobzio/entsql/internal/paging"
	"github.com/zoobzio/entsql/internal/render"
	"github.com/zoobzio/entsql/internal/sqlgen"
	"github.com/zoobzio/entsql/internal/types"
)

var (
	// ErrTypeMismatch is returned when operands cannot meet in a
	// comparison, membership test, set operation or function call.
	ErrTypeMismatch = errors.NewKind("type mismatch: %s")

	// ErrNotSupported is returned when a query has no translation.
	ErrNotSupported = errors.NewKind("not supported: %s")

	// ErrUnknownEntitySet is returned for a set missing from the workspace.
	ErrUnknownEntitySet = errors.NewKind("unknown entity set %q")

	// ErrUnknownProperty is returned for a member the instance does not have.
	ErrUnknownProperty = errors.NewKind("unknown property %q on %s")

	// ErrUnknownAssociation is returned for an association missing from the
	// workspace.
	ErrUnknownAssociation = errors.NewKind("unknown association %q")

	// ErrUnknownFunction is returned for a name outside the canonical catalog.
	ErrUnknownFunction = errors.NewKind("unknown function %q")

	// ErrInvalidModel is returned when a model does not fit its store schema.
	ErrInvalidModel = errors.NewKind("invalid model: %s")

	// ErrInvalidQuery is returned for malformed builder input.
	ErrInvalidQuery = errors.NewKind("invalid query: %s")

	// ErrInvalidOptions is returned when options cannot be decoded.
	ErrInvalidOptions = errors.NewKind("invalid options: %s")

	// ErrMissingParameter is returned by QueryResult.Args when a value is absent.
	ErrMissingParameter = types.ErrMissingParameter
)

// UnsupportedFeatureError reports SQL a dialect cannot express.
type UnsupportedFeatureError = render.UnsupportedFeatureError

// notSupported folds the stage-specific failure kinds into ErrNotSupported.
func notSupported(err error) error {
	switch {
	case nullsem.ErrRowComparison.Is(err),
		groupagg.ErrUnsupported.Is(err),
		paging.ErrUnordered.Is(err),
		sqlgen.ErrUnrenderable.Is(err):
		return ErrNotSupported.Wrap(err, err.Error())
	}
	return err
}
