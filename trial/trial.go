// Package trial holds the decision state machine: it accumulates cohort
// outcomes, re-runs the posterior estimate and dose selection after every
// cohort, and tracks the trial status. History is append-only; terminal
// states accept no further cohorts.
package trial

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"efftox/adapters/mc"
	"efftox/adapters/rng"
	"efftox/domain/contour"
	"efftox/domain/core"
	"efftox/domain/dosing"
	"efftox/domain/model"
	"efftox/domain/posterior"
	"efftox/engine/selector"
	"efftox/internal/errors"
	"efftox/ports"
)

// Status is the trial lifecycle state.
type Status string

const (
	StatusOngoing         Status = "ongoing"
	StatusStoppedToxicity Status = "stopped_toxicity"
	StatusStoppedFutility Status = "stopped_futility"
	StatusCompleted       Status = "completed"
)

// Terminal reports whether the trial accepts further cohorts.
func (s Status) Terminal() bool { return s != StatusOngoing }

// Trial is the stateful design. Construct with New; mutate only through
// ApplyCohort.
type Trial struct {
	id  core.TrialID
	cfg Config

	grid    *dosing.DoseGrid
	link    model.Link
	contour *contour.LpContour
	sel     *selector.Selector

	estimator ports.PosteriorEstimator
	streams   ports.RNG
	log       zerolog.Logger

	outcomes      []dosing.Outcome
	status        Status
	recommended   int
	lastDecision  *selector.Decision
	lastPosterior *posterior.Posterior
}

// Option customises trial construction.
type Option func(*Trial)

// WithEstimator swaps the posterior estimator.
func WithEstimator(e ports.PosteriorEstimator) Option {
	return func(t *Trial) { t.estimator = e }
}

// WithStreams swaps the deterministic stream source.
func WithStreams(r ports.RNG) Option {
	return func(t *Trial) { t.streams = r }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Trial) { t.log = l }
}

// New validates the configuration and assembles the trial with its default
// collaborators: the Monte Carlo sampler and seed-derived streams.
func New(cfg Config, opts ...Option) (*Trial, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	grid, err := dosing.NewDoseGrid(cfg.RealDoses)
	if err != nil {
		return nil, err
	}
	link, err := model.NewLink(cfg.Link)
	if err != nil {
		return nil, err
	}
	c, err := contour.New(cfg.Hinges[0], cfg.Hinges[1], cfg.Hinges[2])
	if err != nil {
		return nil, err
	}
	sel, err := selector.New(grid, link, c, cfg.ToxCertainty, cfg.EffCertainty)
	if err != nil {
		return nil, err
	}

	t := &Trial{
		id:          core.TrialID(core.NewID()),
		cfg:         cfg,
		grid:        grid,
		link:        link,
		contour:     c,
		sel:         sel,
		streams:     rng.NewSeeded(cfg.Seed),
		status:      StatusOngoing,
		recommended: cfg.FirstDose,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.estimator == nil {
		sampler := mc.NewSampler(grid, cfg.Priors, link, cfg.ToxCutoff, cfg.EffCutoff)
		sampler.Log = t.log
		t.estimator = sampler
	}
	return t, nil
}

// ID returns the trial identifier.
func (t *Trial) ID() core.TrialID { return t.id }

// Config returns the trial configuration.
func (t *Trial) Config() Config { return t.cfg }

// Grid returns the dose grid.
func (t *Trial) Grid() *dosing.DoseGrid { return t.grid }

// Contour returns the utility surface.
func (t *Trial) Contour() *contour.LpContour { return t.contour }

// Status returns the current lifecycle state.
func (t *Trial) Status() Status { return t.status }

// Size returns the number of patients treated so far.
func (t *Trial) Size() int { return len(t.outcomes) }

// MaxSize returns the configured trial size.
func (t *Trial) MaxSize() int { return t.cfg.TrialSize }

// RecommendedDose returns the current recommendation: the configured first
// dose before any data, selector.NoDose once the trial has stopped.
func (t *Trial) RecommendedDose() int { return t.recommended }

// Superiority returns the last decision's superiority, NaN before the first
// cohort or when no dose was admissible.
func (t *Trial) Superiority() float64 {
	if t.lastDecision == nil {
		return math.NaN()
	}
	return t.lastDecision.Superiority
}

// LastDecision returns the most recent selector decision, nil before the
// first cohort.
func (t *Trial) LastDecision() *selector.Decision { return t.lastDecision }

// Outcomes returns a copy of all recorded outcomes in treatment order.
func (t *Trial) Outcomes() []dosing.Outcome {
	cp := make([]dosing.Outcome, len(t.outcomes))
	copy(cp, t.outcomes)
	return cp
}

// HighestTried returns the highest dose level any patient has received, 0
// before any data.
func (t *Trial) HighestTried() int { return dosing.HighestTried(t.outcomes) }

// CountAtDose returns treated/toxicity/efficacy tallies for a dose level.
func (t *Trial) CountAtDose(level int) (treated, toxicities, efficacies int) {
	return dosing.CountAtDose(t.outcomes, level)
}

// DoseSummaries returns the per-dose posterior summaries from the last
// update; before any cohort it estimates them from the priors alone.
func (t *Trial) DoseSummaries(ctx context.Context) ([]posterior.DoseSummary, error) {
	if t.lastPosterior != nil {
		return t.lastPosterior.Doses, nil
	}
	p, err := t.estimator.Estimate(ctx, nil, t.cfg.draws(), t.streams.Stream("prior"))
	if err != nil {
		return nil, err
	}
	return p.Doses, nil
}

// ApplyCohort records one cohort of outcomes and re-runs the full update and
// decision cycle. On any failure the trial state is unchanged. Returns the
// resulting status.
func (t *Trial) ApplyCohort(ctx context.Context, cohort dosing.Cohort) (Status, error) {
	if t.status.Terminal() {
		return t.status, errors.TrialTerminal(fmt.Sprintf("trial is %s; no further cohorts may be applied", t.status))
	}
	if len(cohort) == 0 {
		return t.status, errors.DataInvalid("cohort cannot be empty")
	}
	if err := cohort.Validate(t.grid); err != nil {
		return t.status, err
	}

	next := make([]dosing.Outcome, 0, len(t.outcomes)+len(cohort))
	next = append(next, t.outcomes...)
	next = append(next, cohort...)

	stream := t.streams.Stream(fmt.Sprintf("decision-%d", len(next)))
	post, err := t.estimator.Estimate(ctx, next, t.cfg.draws(), stream)
	if err != nil {
		return t.status, err
	}
	dec, err := t.sel.Select(post, noSkipCap(next, t.cfg.FirstDose))
	if err != nil {
		return t.status, err
	}

	// Commit.
	t.outcomes = next
	t.lastPosterior = post
	t.lastDecision = &dec
	t.recommended = dec.Recommended
	switch {
	case !dec.HasRecommendation():
		if dec.Assessments[0].ToxInadmissible {
			// Marginal toxicity is monotone in dose: if the lowest dose is
			// too toxic, everything above it is as well.
			t.status = StatusStoppedToxicity
		} else {
			t.status = StatusStoppedFutility
		}
	case len(t.outcomes) >= t.cfg.TrialSize:
		t.status = StatusCompleted
	default:
		t.status = StatusOngoing
	}
	return t.status, nil
}

// Clone returns an independent copy of the trial state sharing only
// immutable collaborators. Pathway enumeration applies hypothetical cohorts
// to clones so sibling branches can never contaminate each other.
func (t *Trial) Clone() *Trial {
	cp := *t
	cp.outcomes = make([]dosing.Outcome, len(t.outcomes))
	copy(cp.outcomes, t.outcomes)
	return &cp
}

// CloneWithDraws is Clone with a different Monte Carlo draw count, so a
// lookahead can trade accuracy for speed without touching the live trial.
func (t *Trial) CloneWithDraws(draws int) *Trial {
	cp := t.Clone()
	cp.cfg.Draws = draws
	return cp
}

// noSkipCap is the highest level escalation may reach: one above the highest
// tried dose, or the configured first dose before anything is tried.
func noSkipCap(outcomes []dosing.Outcome, firstDose int) int {
	cap := dosing.HighestTried(outcomes) + 1
	if firstDose > cap {
		cap = firstDose
	}
	return cap
}
