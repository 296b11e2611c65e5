// Package selector turns a posterior into a dose recommendation: apply the
// safety and futility admissibility rules and the no-skip escalation cap,
// rank the survivors by weighted-mean utility, and attach a paired-draw
// superiority confidence for the winner.
package selector

import (
	"math"

	"efftox/domain/contour"
	"efftox/domain/dosing"
	"efftox/domain/model"
	"efftox/domain/posterior"
	"efftox/internal/errors"
)

// NoDose is the sentinel recommendation when no dose is admissible. It is an
// expected domain outcome (the trial should likely stop), not an error.
const NoDose = 0

// TentativeThreshold marks recommendations whose superiority falls below it
// as advisory-only.
const TentativeThreshold = 0.6

// DoseAssessment records why a dose level was or was not in contention.
type DoseAssessment struct {
	Level           int     `json:"level"`
	ToxInadmissible bool    `json:"tox_inadmissible"`
	EffInadmissible bool    `json:"eff_inadmissible"`
	SkipBarred      bool    `json:"skip_barred"`
	MeanUtility     float64 `json:"mean_utility"` // NaN unless admissible
}

// Admissible reports whether the dose survived every exclusion rule.
func (a DoseAssessment) Admissible() bool {
	return !a.ToxInadmissible && !a.EffInadmissible && !a.SkipBarred
}

// Decision is the selector's output.
type Decision struct {
	// Recommended is the chosen 1-based dose level, or NoDose.
	Recommended int `json:"recommended"`
	// Superiority is the weakest pairwise posterior confidence that the
	// recommended dose's utility beats each alternative admissible dose's.
	// NaN when Recommended is NoDose.
	Superiority float64 `json:"superiority"`
	// Tentative flags a recommendation with superiority below the threshold.
	Tentative bool `json:"tentative"`

	Assessments []DoseAssessment `json:"assessments"`
}

// HasRecommendation reports whether any dose was admissible.
func (d Decision) HasRecommendation() bool { return d.Recommended != NoDose }

// Selector applies the decision rules for one trial configuration.
type Selector struct {
	grid         *dosing.DoseGrid
	link         model.Link
	contour      *contour.LpContour
	toxCertainty float64
	effCertainty float64
}

// New validates the certainty thresholds and builds a Selector.
func New(grid *dosing.DoseGrid, link model.Link, c *contour.LpContour, toxCertainty, effCertainty float64) (*Selector, error) {
	if toxCertainty <= 0 || toxCertainty >= 1 {
		return nil, errors.ConfigInvalidf("toxicity certainty must be in (0,1), got %g", toxCertainty)
	}
	if effCertainty <= 0 || effCertainty >= 1 {
		return nil, errors.ConfigInvalidf("efficacy certainty must be in (0,1), got %g", effCertainty)
	}
	return &Selector{
		grid:         grid,
		link:         link,
		contour:      c,
		toxCertainty: toxCertainty,
		effCertainty: effCertainty,
	}, nil
}

// Select picks the recommended dose. noSkipCap is the highest level the
// escalation rule currently permits. The posterior must carry its full
// weighted sample; summary-only posteriors cannot drive the utility ranking.
func (s *Selector) Select(post *posterior.Posterior, noSkipCap int) (Decision, error) {
	if !post.HasSample() {
		return Decision{}, errors.DataInvalid("dose selection needs the full weighted sample, got a summary-only posterior")
	}
	if len(post.Doses) != s.grid.NumDoses() {
		return Decision{}, errors.DataInvalidf("posterior covers %d doses, grid has %d", len(post.Doses), s.grid.NumDoses())
	}

	dec := Decision{
		Recommended: NoDose,
		Superiority: math.NaN(),
		Assessments: make([]DoseAssessment, s.grid.NumDoses()),
	}

	n := post.Sample.Len()
	probTox := make([]float64, n)
	probEff := make([]float64, n)
	utility := make([]float64, n)
	ev := model.NewEvaluator(s.grid, s.link, n)

	// Admissibility and weighted-mean utility, one pass per dose over the
	// shared draws.
	best := NoDose
	bestUtility := math.Inf(-1)
	for level := 1; level <= s.grid.NumDoses(); level++ {
		summary := post.Dose(level)
		a := DoseAssessment{
			Level:           level,
			ToxInadmissible: summary.ProbToxExceedsCutoff > s.toxCertainty,
			EffInadmissible: summary.ProbEffBelowCutoff > s.effCertainty,
			SkipBarred:      level > noSkipCap,
			MeanUtility:     math.NaN(),
		}
		if a.Admissible() {
			s.doseUtility(utility, ev, level, post, probTox, probEff)
			mean := weightedMean(utility, post.Weights)
			a.MeanUtility = mean
			if mean > bestUtility {
				bestUtility = mean
				best = level
			}
		}
		dec.Assessments[level-1] = a
	}

	if best == NoDose {
		return dec, nil
	}
	dec.Recommended = best

	// Superiority: the same draws score every dose, so each pairwise
	// comparison is a paired-sample probability.
	bestScore := make([]float64, n)
	s.doseUtility(bestScore, ev, best, post, probTox, probEff)
	sup := 1.0
	for level := 1; level <= s.grid.NumDoses(); level++ {
		if level == best || !dec.Assessments[level-1].Admissible() {
			continue
		}
		s.doseUtility(utility, ev, level, post, probTox, probEff)
		var p float64
		for i := range bestScore {
			if bestScore[i] > utility[i] {
				p += post.Weights[i]
			}
		}
		if p < sup {
			sup = p
		}
	}
	dec.Superiority = sup
	dec.Tentative = sup < TentativeThreshold
	return dec, nil
}

func (s *Selector) doseUtility(dst []float64, ev *model.Evaluator, level int, post *posterior.Posterior, probTox, probEff []float64) {
	ev.DoseProbs(probTox, probEff, level, post.Sample)
	for i := range dst {
		dst[i] = s.contour.Utility(probTox[i], probEff[i])
	}
}

func weightedMean(x, w []float64) float64 {
	var sum float64
	for i := range x {
		sum += w[i] * x[i]
	}
	return sum
}
