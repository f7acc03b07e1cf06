// Package config loads connectivity model hyperparameters from YAML.
//
//	model: staged
//	alpha: 10
//	n: 3
//	workers: 4
//	timeout: 30s
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/qp"
)

// Canonical model names.
const (
	ModelRidge      = "ridge"
	ModelLasso      = "lasso"
	ModelWTA        = "wta"
	ModelWNTA       = "wnta"
	ModelStaged     = "staged"
	ModelSequential = "sequential"
	ModelNNLS       = "nnls"
	ModelPLS        = "pls"
)

var modelAliases = map[string]string{
	ModelRidge:      ModelRidge,
	"l2regression":  ModelRidge,
	ModelLasso:      ModelLasso,
	ModelWTA:        ModelWTA,
	ModelWNTA:       ModelWNTA,
	ModelStaged:     ModelStaged,
	"wnta2":         ModelStaged,
	ModelSequential: ModelSequential,
	"wnta3":         ModelSequential,
	ModelNNLS:       ModelNNLS,
	ModelPLS:        ModelPLS,
	"plsregress":    ModelPLS,
}

// CanonicalModel maps a model name or alias, case-insensitively, to its
// canonical name.
func CanonicalModel(name string) (string, error) {
	c, ok := modelAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", errors.NewValidationError("model", "unknown model", name)
	}
	return c, nil
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.NewValidationError("timeout", "not a duration", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds the hyperparameters of one model. Zero values mean the
// model's own default; Alpha is a pointer because 0 is a meaningful value.
type Config struct {
	Model           string   `yaml:"model"`
	Alpha           *float64 `yaml:"alpha,omitempty"`
	Gamma           float64  `yaml:"gamma,omitempty"`
	N               int      `yaml:"n,omitempty"`
	Positive        bool     `yaml:"positive,omitempty"`
	RankByMagnitude bool     `yaml:"rank_by_magnitude,omitempty"`
	Solver          string   `yaml:"solver,omitempty"`
	NComponents     int      `yaml:"n_components,omitempty"`
	FitTimeScaling  bool     `yaml:"fit_time_scaling,omitempty"`
	CV              int      `yaml:"cv,omitempty"`
	MaxIter         int      `yaml:"max_iter,omitempty"`
	Tol             float64  `yaml:"tol,omitempty"`
	Workers         int      `yaml:"workers,omitempty"`
	Timeout         Duration `yaml:"timeout,omitempty"`
	LogLevel        string   `yaml:"log_level,omitempty"`
}

// Default returns a ridge configuration with model defaults.
func Default() *Config {
	return &Config{Model: ModelRidge}
}

// Load reads and validates a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate canonicalises the model and solver names and checks ranges.
func (c *Config) Validate() error {
	name, err := CanonicalModel(c.Model)
	if err != nil {
		return err
	}
	c.Model = name

	switch {
	case c.Alpha != nil && (!errors.IsFinite(*c.Alpha) || *c.Alpha < 0):
		return errors.NewValidationError("alpha", "must be a finite non-negative number", *c.Alpha)
	case !errors.IsFinite(c.Gamma) || c.Gamma < 0:
		return errors.NewValidationError("gamma", "must be a finite non-negative number", c.Gamma)
	case c.N < 0:
		return errors.NewValidationError("n", "must be non-negative", c.N)
	case c.NComponents < 0:
		return errors.NewValidationError("n_components", "must be non-negative", c.NComponents)
	case c.CV == 1 || c.CV < 0:
		return errors.NewValidationError("cv", "must be 0 or at least 2", c.CV)
	case c.MaxIter < 0:
		return errors.NewValidationError("max_iter", "must be non-negative", c.MaxIter)
	case !errors.IsFinite(c.Tol) || c.Tol < 0:
		return errors.NewValidationError("tol", "must be a finite non-negative number", c.Tol)
	case c.Timeout < 0:
		return errors.NewValidationError("timeout", "must be non-negative", time.Duration(c.Timeout).String())
	}

	if c.Solver != "" {
		solver, err := qp.Canonical(c.Solver)
		if err != nil {
			return err
		}
		c.Solver = solver
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// AlphaOr returns Alpha, or def when unset.
func (c *Config) AlphaOr(def float64) float64 {
	if c.Alpha == nil {
		return def
	}
	return *c.Alpha
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
