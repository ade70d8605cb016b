package entsql

import (
	"github.com/sirupsen/logrus"

	"github.com/zoobzio/entsql/internal/groupagg"
	"github.com/zoobzio/entsql/internal/nullsem"
	"github.com/zoobzio/entsql/internal/optimize"
	"github.com/zoobzio/entsql/internal/paging"
	"github.com/zoobzio/entsql/internal/types"
)

// ScalarColumn names the only column of a translated scalar query.
const ScalarColumn = "C1"

// Translator runs the translation pipeline. It holds no per-translation
// state and may be used from several goroutines.
type Translator struct {
	opts Options
	log  *logrus.Entry
}

// NewTranslator creates a Translator.
func NewTranslator(opts Options) *Translator {
	return &Translator{
		opts: opts,
		log:  opts.logger().WithField("component", "entsql"),
	}
}

// Options returns the options the translator was created with.
func (t *Translator) Options() Options { return t.opts }

func (t *Translator) logTree(stage string, e Expr) {
	if t.opts.Debug {
		t.log.WithFields(logrus.Fields{
			"stage": stage,
			"tree":  types.Format(e),
		}).Debug("translated")
	}
}

// Translate rewrites e and renders it with r. A scalar e is evaluated over
// a single synthetic row and returned as column C1.
func (t *Translator) Translate(e Expr, r Renderer) (*QueryResult, error) {
	if e == nil {
		return nil, ErrInvalidQuery.New("expression cannot be nil")
	}
	if r == nil {
		return nil, ErrInvalidQuery.New("renderer cannot be nil")
	}

	if !types.IsRelational(e) {
		if !e.Type().IsPrimitive() {
			return nil, ErrNotSupported.New("a row-valued query root")
		}
		single := types.Binding{Input: types.NewSingleRow(), Var: "single"}
		e = types.NewProject(single, []types.Column{{Expr: e, Name: ScalarColumn}})
	}
	t.logTree("input", e)

	e, err := nullsem.Rewrite(e, t.opts.mode())
	if err != nil {
		return nil, t.fail("nullsem", err)
	}
	t.logTree("nullsem", e)

	e = optimize.Optimize(e)
	t.logTree("optimize", e)

	if types.Contains(e, types.KindGroupBy) {
		if e, err = groupagg.Compose(e); err != nil {
			return nil, t.fail("groupagg", err)
		}
		t.logTree("groupagg", e)
	}

	if types.Contains(e, types.KindSkip, types.KindLimit) {
		if e, err = paging.Translate(e); err != nil {
			return nil, t.fail("paging", err)
		}
		t.logTree("paging", e)
	}

	result, err := r.Render(e)
	if err != nil {
		return nil, t.fail("render", err)
	}
	if t.opts.Debug {
		t.log.WithFields(logrus.Fields{
			"stage":  "render",
			"sql":    result.SQL,
			"params": result.RequiredParams,
		}).Debug("translated")
	}
	return result, nil
}

func (t *Translator) fail(stage string, err error) error {
	err = notSupported(err)
	if t.opts.Debug {
		t.log.WithField("stage", stage).WithError(err).Debug("translation failed")
	}
	return err
}

// Translate translates e with default options.
func Translate(e Expr, r Renderer) (*QueryResult, error) {
	return NewTranslator(Options{}).Translate(e, r)
}
