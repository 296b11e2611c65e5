// Package contour derives the toxicity/efficacy trade-off surface from three
// clinician-specified hinge points. The indifference contour through the
// hinges is a member of the Lp-norm family; utility is the (signed) distance
// family score, zero on the contour, positive north-west of it.
package contour

import (
	"math"

	"efftox/internal/errors"
)

// Hinge is a (toxicity probability, efficacy probability) anchor point.
type Hinge struct {
	Tox float64 `yaml:"tox" json:"tox"`
	Eff float64 `yaml:"eff" json:"eff"`
}

// LpContour is the immutable utility surface. The three hinges are, in
// order: the minimum tolerable efficacy at zero toxicity (tox = 0), the
// maximum tolerable toxicity at certain efficacy (eff = 1), and an interior
// point that pins the curvature exponent.
type LpContour struct {
	minEff float64 // hinge 1 efficacy, at tox = 0
	maxTox float64 // hinge 2 toxicity, at eff = 1
	p      float64
	hinges [3]Hinge
}

// New validates the hinge points and solves for the contour exponent.
func New(h1, h2, h3 Hinge) (*LpContour, error) {
	if h1.Tox != 0 {
		return nil, errors.ConfigInvalidf("first hinge must lie on the zero-toxicity axis, got tox=%g", h1.Tox)
	}
	if h2.Eff != 1 {
		return nil, errors.ConfigInvalidf("second hinge must lie on the certain-efficacy axis, got eff=%g", h2.Eff)
	}
	if h1.Eff <= 0 || h1.Eff >= 1 {
		return nil, errors.ConfigInvalidf("minimum tolerable efficacy must be in (0,1), got %g", h1.Eff)
	}
	if h2.Tox <= 0 || h2.Tox >= 1 {
		return nil, errors.ConfigInvalidf("maximum tolerable toxicity must be in (0,1), got %g", h2.Tox)
	}
	if h3.Eff <= h1.Eff || h3.Eff >= 1 {
		return nil, errors.ConfigInvalidf("interior hinge efficacy %g must be in (%g, 1)", h3.Eff, h1.Eff)
	}
	if h3.Tox <= 0 || h3.Tox >= h2.Tox {
		return nil, errors.ConfigInvalidf("interior hinge toxicity %g must be in (0, %g)", h3.Tox, h2.Tox)
	}

	// The exponent solves a^p + b^p = 1 with a, b in (0,1); the left side is
	// strictly decreasing in p from 2 towards 0, so the root is unique.
	a := (1 - h3.Eff) / (1 - h1.Eff)
	b := h3.Tox / h2.Tox
	p, err := solveExponent(a, b)
	if err != nil {
		return nil, err
	}

	return &LpContour{
		minEff: h1.Eff,
		maxTox: h2.Tox,
		p:      p,
		hinges: [3]Hinge{h1, h2, h3},
	}, nil
}

// Utility scores a (toxicity probability, efficacy probability) pair.
// Deterministic and continuous; strictly increasing in efficacy and strictly
// decreasing in toxicity. Zero at each hinge point.
func (c *LpContour) Utility(toxProb, effProb float64) float64 {
	a := (1 - effProb) / (1 - c.minEff)
	b := toxProb / c.maxTox
	return 1 - math.Pow(math.Pow(a, c.p)+math.Pow(b, c.p), 1/c.p)
}

// Exponent returns the solved Lp exponent.
func (c *LpContour) Exponent() float64 { return c.p }

// Hinges returns the three anchor points in construction order.
func (c *LpContour) Hinges() [3]Hinge { return c.hinges }

func solveExponent(a, b float64) (float64, error) {
	f := func(p float64) float64 {
		return math.Pow(a, p) + math.Pow(b, p) - 1
	}

	lo, hi := 1e-6, 1.0
	for f(hi) > 0 {
		hi *= 2
		if hi > 1e6 {
			return 0, errors.ConfigInvalid("contour hinge points do not bracket an Lp exponent")
		}
	}
	// Bisection. gonum has no scalar bracketing root-finder; 200 halvings
	// put the root well below float64 resolution.
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if f(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
