// Package model implements the six-parameter bivariate dose-response model:
// logit-linear marginal toxicity, logit-quadratic marginal efficacy, and a
// joint outcome probability with an explicit toxicity-efficacy association
// term (Thall & Cook 2004). Everything is vectorised over parameter draws so
// posterior estimation at 10^7 draws stays a bulk slice operation.
package model

import (
	"math"

	"efftox/domain/dosing"
)

// Draws holds parameter vectors for many draws at once, one slice per model
// parameter. All slices share the same length.
type Draws struct {
	ToxIntercept []float64
	ToxSlope     []float64
	EffIntercept []float64
	EffSlope     []float64
	EffQuadSlope []float64
	Association  []float64
}

// NewDraws allocates a draw matrix for n draws.
func NewDraws(n int) *Draws {
	return &Draws{
		ToxIntercept: make([]float64, n),
		ToxSlope:     make([]float64, n),
		EffIntercept: make([]float64, n),
		EffSlope:     make([]float64, n),
		EffQuadSlope: make([]float64, n),
		Association:  make([]float64, n),
	}
}

// Len returns the number of draws.
func (d *Draws) Len() int { return len(d.ToxIntercept) }

// Slice returns a view over draw rows [lo, hi). The view shares backing
// storage with d; shards writing to disjoint ranges need no locking.
func (d *Draws) Slice(lo, hi int) *Draws {
	return &Draws{
		ToxIntercept: d.ToxIntercept[lo:hi],
		ToxSlope:     d.ToxSlope[lo:hi],
		EffIntercept: d.EffIntercept[lo:hi],
		EffSlope:     d.EffSlope[lo:hi],
		EffQuadSlope: d.EffQuadSlope[lo:hi],
		Association:  d.Association[lo:hi],
	}
}

// Param returns the slice for the positional parameter index, in prior order.
func (d *Draws) Param(i int) []float64 {
	switch i {
	case 0:
		return d.ToxIntercept
	case 1:
		return d.ToxSlope
	case 2:
		return d.EffIntercept
	case 3:
		return d.EffSlope
	case 4:
		return d.EffQuadSlope
	default:
		return d.Association
	}
}

// ProbTox fills dst with the marginal toxicity probability at standardised
// dose x for every draw.
func ProbTox(dst []float64, x float64, d *Draws, link Link) {
	for i := range dst {
		dst[i] = link.Response(x, d.ToxIntercept[i], d.ToxSlope[i])
	}
}

// ProbEff fills dst with the marginal efficacy probability at standardised
// dose x for every draw. The quadratic dose term folds into the intercept so
// every link variant shares one call shape.
func ProbEff(dst []float64, x float64, d *Draws, link Link) {
	x2 := x * x
	for i := range dst {
		dst[i] = link.Response(x, d.EffIntercept[i]+d.EffQuadSlope[i]*x2, d.EffSlope[i])
	}
}

// JointProb is the probability of one (toxicity, efficacy) outcome pair given
// the two marginals and the association parameter psi. At psi = 0 it is
// exactly the independence product; for any psi the four cell probabilities
// stay in [0, 1] and sum to 1, because |tanh(psi/2)| < 1 and the correction
// term enters the four cells with alternating sign.
func JointProb(probTox, probEff float64, tox, eff bool, psi float64) float64 {
	p := bernoulli(probEff, eff) * bernoulli(probTox, tox)
	corr := probEff * (1 - probEff) * probTox * (1 - probTox) * assocWeight(psi)
	if tox != eff {
		return p - corr
	}
	return p + corr
}

func bernoulli(p float64, event bool) float64 {
	if event {
		return p
	}
	return 1 - p
}

// assocWeight is (e^psi - 1) / (e^psi + 1), i.e. tanh(psi/2), kept in the
// published exponential form.
func assocWeight(psi float64) float64 {
	e := math.Exp(psi)
	if math.IsInf(e, 1) {
		return 1
	}
	return (e - 1) / (e + 1)
}

// Evaluator computes model quantities for a fixed dose grid and link. It owns
// scratch buffers sized to one draw count, so one Evaluator serves one
// posterior estimation run; it is not safe for concurrent use.
type Evaluator struct {
	grid *dosing.DoseGrid
	link Link

	probTox []float64
	probEff []float64
}

// NewEvaluator builds an Evaluator with scratch space for n draws.
func NewEvaluator(grid *dosing.DoseGrid, link Link, n int) *Evaluator {
	return &Evaluator{
		grid:    grid,
		link:    link,
		probTox: make([]float64, n),
		probEff: make([]float64, n),
	}
}

// Grid returns the dose grid the evaluator is bound to.
func (e *Evaluator) Grid() *dosing.DoseGrid { return e.grid }

// Link returns the configured link function.
func (e *Evaluator) Link() Link { return e.link }

// DoseProbs fills toxDst and effDst with the marginal probabilities at a
// 1-based dose level for every draw.
func (e *Evaluator) DoseProbs(toxDst, effDst []float64, level int, d *Draws) {
	x := e.grid.Standardised(level)
	ProbTox(toxDst, x, d, e.link)
	ProbEff(effDst, x, d, e.link)
}

// AccumLogLikelihood adds, per draw, the log compound likelihood of the
// observed outcomes to acc. Outcomes collapse to distinct
// (dose, toxicity, efficacy) tallies first: the likelihood is the product of
// per-outcome joint probabilities, so each distinct combination contributes
// count * log(joint). Working in log space keeps the weighting stable for
// probabilities arbitrarily close to 0 or 1; a zero-probability cell maps to
// -Inf, which downstream weighting treats as zero weight.
func (e *Evaluator) AccumLogLikelihood(acc []float64, outcomes []dosing.Outcome, d *Draws) {
	for _, t := range dosing.TallyOutcomes(outcomes) {
		x := e.grid.Standardised(t.Dose)
		ProbTox(e.probTox, x, d, e.link)
		ProbEff(e.probEff, x, d, e.link)
		count := float64(t.Count)
		for i := range acc {
			joint := JointProb(e.probTox[i], e.probEff[i], t.Toxicity, t.Efficacy, d.Association[i])
			if joint <= 0 {
				acc[i] = math.Inf(-1)
				continue
			}
			acc[i] += count * math.Log(joint)
		}
	}
}
