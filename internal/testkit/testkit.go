// Package testkit provides shared test fixtures. Matchpoint is the published
// advanced prostate cancer trial parameterisation; tests across packages use
// it so their numbers are comparable.
package testkit

import (
	"efftox/domain/contour"
	"efftox/domain/prior"
	"efftox/trial"
)

// Matchpoint returns the Matchpoint trial configuration: four doses, cohorts
// of three, thirty patients, and the published priors. Draws is kept small
// enough for tests; raise it per test when tighter estimates matter.
func Matchpoint() trial.Config {
	priors, _ := prior.New(
		prior.Normal{Mu: -5.4317, Sigma: 2.7643},
		prior.Normal{Mu: 3.1761, Sigma: 2.7703},
		prior.Normal{Mu: -0.8442, Sigma: 1.9968},
		prior.Normal{Mu: 1.9333, Sigma: 1.9509},
		prior.Normal{Mu: 0, Sigma: 0.1959},
		prior.Normal{Mu: 0, Sigma: 1},
	)
	return trial.Config{
		RealDoses:    []float64{7.5, 15, 30, 45},
		TrialSize:    30,
		CohortSize:   3,
		FirstDose:    1,
		ToxCutoff:    0.40,
		EffCutoff:    0.45,
		ToxCertainty: 0.90,
		EffCertainty: 0.90,
		Hinges: [3]contour.Hinge{
			{Tox: 0, Eff: 0.40},
			{Tox: 0.40, Eff: 1},
			{Tox: 0.25, Eff: 0.50},
		},
		Priors: priors,
		Draws:  20_000,
		Seed:   90210,
	}
}
