package prior

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"efftox/internal/errors"
)

// NumParams is the fixed dimensionality of the dose-response model. The six
// parameters are positionally bound: there is no other parametrisation.
const NumParams = 6

// Param indexes the six model parameters.
type Param int

const (
	ToxIntercept Param = iota
	ToxSlope
	EffIntercept
	EffSlope
	EffQuadSlope
	Association
)

var paramNames = [NumParams]string{
	"tox_intercept", "tox_slope", "eff_intercept", "eff_slope", "eff_quad_slope", "association",
}

func (p Param) String() string {
	if p < 0 || p >= NumParams {
		return fmt.Sprintf("param(%d)", int(p))
	}
	return paramNames[p]
}

// Marginal is one univariate prior distribution. Rander materialises a
// sampler bound to the supplied source, so draw sequences are owned by the
// caller's generator, never by ambient state.
type Marginal interface {
	Rander(src rand.Source) distuv.Rander
	Mean() float64
	String() string
}

// Normal is a normal prior.
type Normal struct {
	Mu    float64 `yaml:"mu"`
	Sigma float64 `yaml:"sigma"`
}

func (n Normal) Rander(src rand.Source) distuv.Rander {
	return distuv.Normal{Mu: n.Mu, Sigma: n.Sigma, Src: src}
}

func (n Normal) Mean() float64 { return n.Mu }

func (n Normal) String() string { return fmt.Sprintf("normal(%g, %g)", n.Mu, n.Sigma) }

// Uniform is a uniform prior on [Min, Max].
type Uniform struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (u Uniform) Rander(src rand.Source) distuv.Rander {
	return distuv.Uniform{Min: u.Min, Max: u.Max, Src: src}
}

func (u Uniform) Mean() float64 { return (u.Min + u.Max) / 2 }

func (u Uniform) String() string { return fmt.Sprintf("uniform(%g, %g)", u.Min, u.Max) }

// Spec holds exactly six independent marginals, positionally bound to the
// model parameters.
type Spec [NumParams]Marginal

// New builds a Spec from the six marginals in parameter order.
func New(toxIntercept, toxSlope, effIntercept, effSlope, effQuadSlope, association Marginal) (Spec, error) {
	return FromSlice([]Marginal{toxIntercept, toxSlope, effIntercept, effSlope, effQuadSlope, association})
}

// FromSlice builds a Spec from a slice that must contain exactly six
// non-nil marginals.
func FromSlice(ms []Marginal) (Spec, error) {
	var s Spec
	if len(ms) != NumParams {
		return s, errors.ConfigInvalidf("prior specification needs exactly %d distributions, got %d", NumParams, len(ms))
	}
	for i, m := range ms {
		if m == nil {
			return s, errors.ConfigInvalidf("prior for %s is nil", Param(i))
		}
		s[i] = m
	}
	return s, nil
}

// Validate checks the spec is fully populated. A zero-valued Spec is invalid.
func (s Spec) Validate() error {
	for i, m := range s {
		if m == nil {
			return errors.ConfigInvalidf("prior for %s is missing", Param(i))
		}
		if n, ok := m.(Normal); ok && n.Sigma <= 0 {
			return errors.ConfigInvalidf("prior for %s has non-positive sigma %g", Param(i), n.Sigma)
		}
		if u, ok := m.(Uniform); ok && u.Min >= u.Max {
			return errors.ConfigInvalidf("prior for %s has empty support [%g, %g)", Param(i), u.Min, u.Max)
		}
	}
	return nil
}

// Randers materialises all six samplers against one source. Draws interleave
// on the shared source in parameter order, so a fixed seed reproduces the
// exact draw matrix.
func (s Spec) Randers(src rand.Source) [NumParams]distuv.Rander {
	var rs [NumParams]distuv.Rander
	for i, m := range s {
		rs[i] = m.Rander(src)
	}
	return rs
}
