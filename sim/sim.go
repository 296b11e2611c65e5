// Package sim estimates the operating characteristics of a trial
// configuration: replicate the whole trial against an assumed true
// dose-outcome scenario and aggregate where it recommends, how often it
// stops, and how many patients it spends doing so.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"efftox/adapters/rng"
	"efftox/domain/core"
	"efftox/domain/dosing"
	"efftox/engine/selector"
	"efftox/internal/errors"
	"efftox/ports"
	"efftox/trial"
)

// Scenario fixes the assumed truth: one toxicity and one efficacy probability
// per dose level, plus the within-patient odds ratio between the two events.
// OddsRatio 1 means independence; above 1, toxicity and efficacy co-occur
// more often than independence predicts.
type Scenario struct {
	TrueTox   []float64 `yaml:"true_tox"`
	TrueEff   []float64 `yaml:"true_eff"`
	OddsRatio float64   `yaml:"odds_ratio"`
}

// Validate checks the scenario against a trial configuration.
func (sc Scenario) Validate(cfg trial.Config) error {
	n := len(cfg.RealDoses)
	if len(sc.TrueTox) != n || len(sc.TrueEff) != n {
		return errors.ConfigInvalidf("scenario covers %d/%d doses, trial has %d", len(sc.TrueTox), len(sc.TrueEff), n)
	}
	for i := 0; i < n; i++ {
		if sc.TrueTox[i] < 0 || sc.TrueTox[i] > 1 || sc.TrueEff[i] < 0 || sc.TrueEff[i] > 1 {
			return errors.ConfigInvalidf("scenario probabilities for dose %d must be in [0,1]", i+1)
		}
	}
	if sc.OddsRatio <= 0 {
		return errors.ConfigInvalidf("odds ratio must be positive, got %g", sc.OddsRatio)
	}
	return nil
}

// Replicate is the outcome of one simulated trial.
type Replicate struct {
	Status      trial.Status `json:"status"`
	Recommended int          `json:"recommended"`
	Patients    int          `json:"patients"`
	Toxicities  int          `json:"toxicities"`
	Efficacies  int          `json:"efficacies"`
}

// Results aggregates replicates into operating characteristics.
type Results struct {
	RunID      core.RunID     `json:"run_id"`
	StartedAt  core.Timestamp `json:"started_at"`
	FinishedAt core.Timestamp `json:"finished_at"`

	Replicates []Replicate `json:"replicates"`

	// RecommendationRate[level] is the share of replicates recommending that
	// 1-based dose level; index 0 is the no-dose share.
	RecommendationRate []float64 `json:"recommendation_rate"`
	StopRate           float64   `json:"stop_rate"`
	MeanPatients       float64   `json:"mean_patients"`
	MeanToxicities     float64   `json:"mean_toxicities"`
	MeanEfficacies     float64   `json:"mean_efficacies"`
}

// Runner replays one configuration against one scenario.
type Runner struct {
	Cfg      trial.Config
	Scenario Scenario

	// Seed drives every replicate; a fixed seed reproduces the whole study.
	Seed int64
	// Workers bounds concurrent replicates; zero means sequential.
	Workers int
	// Estimator overrides the trial's default posterior estimator. It must be
	// safe for concurrent use when Workers exceeds one.
	Estimator ports.PosteriorEstimator

	Log zerolog.Logger
}

// Run simulates reps full trials and aggregates them. Replicates are
// independent; each derives its own streams from the runner seed and its
// index, so results do not depend on scheduling.
func (r *Runner) Run(ctx context.Context, reps int) (*Results, error) {
	if reps <= 0 {
		return nil, errors.ConfigInvalidf("replicate count must be positive, got %d", reps)
	}
	if err := r.Cfg.Validate(); err != nil {
		return nil, err
	}
	if err := r.Scenario.Validate(r.Cfg); err != nil {
		return nil, err
	}

	runID := core.RunID(core.NewID())
	started := core.Now()
	streams := rng.NewSeeded(r.Seed)
	out := make([]Replicate, reps)

	g, gctx := errgroup.WithContext(ctx)
	if r.Workers > 0 {
		g.SetLimit(r.Workers)
	} else {
		g.SetLimit(1)
	}
	for i := 0; i < reps; i++ {
		g.Go(func() error {
			src := streams.Stream(fmt.Sprintf("replicate-%d", i))
			rep, err := r.replicate(gctx, src)
			if err != nil {
				return errors.Wrapf(err, "replicate %d", i)
			}
			out[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := summarise(out, r.Cfg)
	res.RunID = runID
	res.StartedAt = started
	res.FinishedAt = core.Now()
	r.Log.Info().
		Str("run_id", res.RunID.String()).
		Int("replicates", reps).
		Float64("stop_rate", res.StopRate).
		Float64("mean_patients", res.MeanPatients).
		Msg("simulation run complete")
	return res, nil
}

// replicate runs one trial to a terminal state, treating every cohort at the
// current recommendation and drawing its outcomes from the scenario truth.
func (r *Runner) replicate(ctx context.Context, src *rand.Rand) (Replicate, error) {
	cfg := r.Cfg
	cfg.Seed = int64(src.Uint64())
	opts := []trial.Option{trial.WithLogger(r.Log)}
	if r.Estimator != nil {
		opts = append(opts, trial.WithEstimator(r.Estimator))
	}
	t, err := trial.New(cfg, opts...)
	if err != nil {
		return Replicate{}, err
	}

	joints := make([]jointDist, len(cfg.RealDoses))
	for i := range joints {
		joints[i] = newJointDist(r.Scenario.TrueTox[i], r.Scenario.TrueEff[i], r.Scenario.OddsRatio)
	}

	for !t.Status().Terminal() {
		dose := t.RecommendedDose()
		size := cfg.CohortSize
		if remaining := cfg.TrialSize - t.Size(); remaining < size {
			size = remaining
		}
		cohort := make(dosing.Cohort, size)
		for j := range cohort {
			tox, eff := joints[dose-1].draw(src)
			cohort[j] = dosing.Outcome{Dose: dose, Toxicity: tox, Efficacy: eff}
		}
		if _, err := t.ApplyCohort(ctx, cohort); err != nil {
			return Replicate{}, err
		}
	}

	rep := Replicate{
		Status:      t.Status(),
		Recommended: t.RecommendedDose(),
		Patients:    t.Size(),
	}
	for _, o := range t.Outcomes() {
		if o.Toxicity {
			rep.Toxicities++
		}
		if o.Efficacy {
			rep.Efficacies++
		}
	}
	return rep, nil
}

func summarise(reps []Replicate, cfg trial.Config) *Results {
	res := &Results{
		Replicates:         reps,
		RecommendationRate: make([]float64, len(cfg.RealDoses)+1),
	}
	patients := make([]float64, len(reps))
	toxicities := make([]float64, len(reps))
	efficacies := make([]float64, len(reps))
	for i, rep := range reps {
		res.RecommendationRate[rep.Recommended]++
		if rep.Status != trial.StatusCompleted {
			res.StopRate++
		}
		patients[i] = float64(rep.Patients)
		toxicities[i] = float64(rep.Toxicities)
		efficacies[i] = float64(rep.Efficacies)
	}
	n := float64(len(reps))
	for i := range res.RecommendationRate {
		res.RecommendationRate[i] /= n
	}
	res.StopRate /= n
	res.MeanPatients, _ = stats.Mean(patients)
	res.MeanToxicities, _ = stats.Mean(toxicities)
	res.MeanEfficacies, _ = stats.Mean(efficacies)
	return res
}

// NoDoseRate is the share of replicates ending with no recommendation.
func (r *Results) NoDoseRate() float64 {
	return r.RecommendationRate[selector.NoDose]
}

// jointDist is the per-dose joint law of (toxicity, efficacy) as cell
// probabilities, built from the marginals and the odds ratio (Dale model).
type jointDist struct {
	both, toxOnly, effOnly float64
}

func newJointDist(pTox, pEff, psi float64) jointDist {
	var p11 float64
	if psi == 1 {
		p11 = pTox * pEff
	} else {
		a := 1 + (pTox+pEff)*(psi-1)
		p11 = (a - sqrtNonNeg(a*a-4*psi*(psi-1)*pTox*pEff)) / (2 * (psi - 1))
	}
	return jointDist{
		both:    p11,
		toxOnly: pTox - p11,
		effOnly: pEff - p11,
	}
}

func (j jointDist) draw(src *rand.Rand) (tox, eff bool) {
	u := src.Float64()
	switch {
	case u < j.both:
		return true, true
	case u < j.both+j.toxOnly:
		return true, false
	case u < j.both+j.toxOnly+j.effOnly:
		return false, true
	default:
		return false, false
	}
}

func sqrtNonNeg(x float64) float64 {
	if x < 0 {
		// Degenerate marginals can push the discriminant a hair negative.
		return 0
	}
	return math.Sqrt(x)
}
