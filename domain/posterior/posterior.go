// Package posterior defines the importance-weighted posterior sample and the
// per-dose summaries every downstream decision consumes. Draws are never used
// unweighted; every quantity derived from a Posterior is a weighted
// expectation.
package posterior

import (
	"efftox/domain/model"
	"efftox/domain/prior"
)

// DoseSummary holds the weighted posterior quantities for one dose level.
type DoseSummary struct {
	Level int `json:"level"`

	// Weighted posterior means of the marginal probabilities.
	MeanProbTox float64 `json:"mean_prob_tox"`
	MeanProbEff float64 `json:"mean_prob_eff"`

	// Tail probabilities against the configured cutoffs, plus the
	// below-cutoff complements the admissibility rules test directly:
	// ProbAcceptableTox for safety, ProbEffBelowCutoff for futility.
	ProbToxExceedsCutoff float64 `json:"prob_tox_exceeds_cutoff"`
	ProbEffExceedsCutoff float64 `json:"prob_eff_exceeds_cutoff"`
	ProbAcceptableTox    float64 `json:"prob_acceptable_tox"`
	ProbEffBelowCutoff   float64 `json:"prob_eff_below_cutoff"`
}

// Posterior is the result of one estimation run: the retained weighted
// sample (absent in summary-only mode) plus the reduced summaries.
type Posterior struct {
	// Sample holds the raw parameter draws; nil when the caller asked for a
	// streaming summary-only estimate.
	Sample *model.Draws
	// Weights are normalised to sum to one and align with Sample rows.
	Weights []float64

	// Degenerate marks a posterior whose likelihood mass underflowed to zero
	// at every draw. The weights then fall back to uniform (the prior) and
	// the condition is warning-worthy, not an error.
	Degenerate bool

	// ParamMeans are the weighted posterior means of the six parameters, in
	// prior order.
	ParamMeans [prior.NumParams]float64

	// Doses holds one summary per dose level, least dose first.
	Doses []DoseSummary
}

// HasSample reports whether the raw weighted draws were retained.
func (p *Posterior) HasSample() bool { return p.Sample != nil }

// NumDraws returns the retained draw count, or 0 in summary-only mode.
func (p *Posterior) NumDraws() int {
	if p.Sample == nil {
		return 0
	}
	return p.Sample.Len()
}

// Dose returns the summary for a 1-based dose level.
func (p *Posterior) Dose(level int) DoseSummary { return p.Doses[level-1] }
