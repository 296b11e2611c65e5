package model

import (
	"math"

	"efftox/internal/errors"
)

// Link maps a standardised dose and an intercept/slope pair to a probability.
// All variants share this call shape so they are interchangeable; the
// quadratic efficacy term is folded into the intercept argument by the
// caller. Logit is the published form of the design; the other variants
// exist for the same capability slot the one-parameter designs use.
type Link interface {
	Response(x, intercept, slope float64) float64
	Name() string
}

// LinkKind selects a Link by configuration.
type LinkKind string

const (
	LinkLogit             LinkKind = "logit"
	LinkEmpiric           LinkKind = "empiric"
	LinkHyperbolicTangent LinkKind = "hyperbolic_tangent"
)

// NewLink resolves a LinkKind. An empty kind resolves to logit.
func NewLink(kind LinkKind) (Link, error) {
	switch kind {
	case LinkLogit, "":
		return Logit{}, nil
	case LinkEmpiric:
		return Empiric{}, nil
	case LinkHyperbolicTangent:
		return HyperbolicTangent{}, nil
	default:
		return nil, errors.ConfigInvalidf("unknown link function %q", string(kind))
	}
}

// Logit is the logistic link: p = 1 / (1 + exp(-(intercept + slope*x))).
type Logit struct{}

func (Logit) Response(x, intercept, slope float64) float64 {
	return inverseLogit(intercept + slope*x)
}

func (Logit) Name() string { return string(LinkLogit) }

// Empiric is the power link p = x^exp(slope). It ignores the intercept and
// requires dose labels in (0, 1); configuration rejects it otherwise.
type Empiric struct{}

func (Empiric) Response(x, _, slope float64) float64 {
	return math.Pow(x, math.Exp(slope))
}

func (Empiric) Name() string { return string(LinkEmpiric) }

// HyperbolicTangent is p = ((tanh(x) + 1) / 2)^exp(slope).
type HyperbolicTangent struct{}

func (HyperbolicTangent) Response(x, _, slope float64) float64 {
	return math.Pow((math.Tanh(x)+1)/2, math.Exp(slope))
}

func (HyperbolicTangent) Name() string { return string(LinkHyperbolicTangent) }

func inverseLogit(eta float64) float64 {
	// Branch on sign to avoid overflow in exp for extreme linear predictors.
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)
	return e / (1 + e)
}
