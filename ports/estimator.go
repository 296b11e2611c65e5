package ports

import (
	"context"
	"math/rand/v2"

	"efftox/domain/dosing"
	"efftox/domain/posterior"
)

// PosteriorEstimator turns observed outcomes into an importance-weighted
// posterior. The dose grid, priors, link and cutoffs are bound at adapter
// construction; draws is the sole accuracy knob (Monte Carlo variance
// shrinks roughly as 1/sqrt(draws)).
type PosteriorEstimator interface {
	Estimate(ctx context.Context, outcomes []dosing.Outcome, draws int, rng *rand.Rand) (*posterior.Posterior, error)
}
