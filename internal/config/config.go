// Package config loads trial configurations from YAML. Structural checks run
// through validator tags; domain constraints stay in trial.Config.Validate so
// programmatic construction hits the same rules.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"efftox/domain/prior"
	"efftox/internal/errors"
	"efftox/internal/logging"
	"efftox/trial"
)

// File is the on-disk configuration document.
type File struct {
	Trial   Trial          `yaml:"trial" validate:"required"`
	Logging logging.Config `yaml:"logging"`
}

// Trial mirrors trial.Config with the prior distributions in a tagged,
// serialisable form.
type Trial struct {
	trial.Config `yaml:",inline"`

	Priors []Prior `yaml:"priors" validate:"required,len=6,dive"`
}

// Prior is one tagged prior distribution.
type Prior struct {
	Dist  string  `yaml:"dist" validate:"required,oneof=normal uniform"`
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

func (p Prior) marginal() (prior.Marginal, error) {
	switch p.Dist {
	case "normal":
		return prior.Normal{Mu: p.Mu, Sigma: p.Sigma}, nil
	case "uniform":
		return prior.Uniform{Min: p.Min, Max: p.Max}, nil
	default:
		return nil, errors.ConfigInvalidf("unknown prior distribution %q", p.Dist)
	}
}

// Load reads and fully validates a configuration file. The returned trial
// configuration has already passed trial.Config.Validate.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(raw)
}

// Parse validates a raw YAML document.
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "parsing config")
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "validating config")
	}

	ms := make([]prior.Marginal, 0, len(f.Trial.Priors))
	for _, p := range f.Trial.Priors {
		m, err := p.marginal()
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	spec, err := prior.FromSlice(ms)
	if err != nil {
		return nil, err
	}
	f.Trial.Config.Priors = spec

	if err := f.Trial.Config.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
