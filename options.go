package entsql

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zoobzio/entsql/internal/nullsem"
)

// Options configures a Translator. The zero value translates with
// host-language null semantics and no logging.
type Options struct {
	// Logger receives per-stage debug entries. Defaults to the standard
	// logrus logger.
	Logger *logrus.Logger `yaml:"-"`

	// UseDatabaseNullSemantics emits comparisons as written, letting SQL
	// three-valued logic decide null comparisons.
	UseDatabaseNullSemantics bool `yaml:"useDatabaseNullSemantics"`

	// Debug logs the tree after every stage.
	Debug bool `yaml:"debug"`
}

// ParseOptions decodes YAML options.
func ParseOptions(data []byte) (Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, ErrInvalidOptions.Wrap(err, err.Error())
	}
	return o, nil
}

func (o Options) mode() nullsem.Mode {
	if o.UseDatabaseNullSemantics {
		return nullsem.Database
	}
	return nullsem.CLR
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}
