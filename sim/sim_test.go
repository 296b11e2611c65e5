package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"efftox/domain/dosing"
	"efftox/domain/model"
	"efftox/domain/posterior"
	"efftox/internal/testkit"
)

func TestNewJointDist_Independence(t *testing.T) {
	j := newJointDist(0.3, 0.6, 1)
	if math.Abs(j.both-0.18) > 1e-12 {
		t.Errorf("p(both) = %g, want 0.18 under independence", j.both)
	}
	if math.Abs(j.toxOnly-0.12) > 1e-12 || math.Abs(j.effOnly-0.42) > 1e-12 {
		t.Errorf("marginals broken: toxOnly %g effOnly %g", j.toxOnly, j.effOnly)
	}
}

func TestNewJointDist_PreservesMarginals(t *testing.T) {
	for _, psi := range []float64{0.2, 0.5, 2, 10} {
		for _, pt := range []float64{0.1, 0.4, 0.8} {
			for _, pe := range []float64{0.2, 0.5, 0.9} {
				j := newJointDist(pt, pe, psi)
				cells := []float64{j.both, j.toxOnly, j.effOnly, 1 - j.both - j.toxOnly - j.effOnly}
				var sum float64
				for _, c := range cells {
					if c < -1e-12 {
						t.Fatalf("negative cell %g at pt=%g pe=%g psi=%g", c, pt, pe, psi)
					}
					sum += c
				}
				if math.Abs(sum-1) > 1e-9 {
					t.Errorf("cells sum to %g at pt=%g pe=%g psi=%g", sum, pt, pe, psi)
				}
				if math.Abs((j.both+j.toxOnly)-pt) > 1e-9 {
					t.Errorf("toxicity marginal %g, want %g (psi=%g)", j.both+j.toxOnly, pt, psi)
				}
				if math.Abs((j.both+j.effOnly)-pe) > 1e-9 {
					t.Errorf("efficacy marginal %g, want %g (psi=%g)", j.both+j.effOnly, pe, psi)
				}
			}
		}
	}
}

func TestJointDist_DrawFrequencies(t *testing.T) {
	j := newJointDist(0.3, 0.6, 2)
	src := rand.New(rand.NewPCG(17, 42))
	const n = 200000
	var tox, eff int
	for i := 0; i < n; i++ {
		tk, ef := j.draw(src)
		if tk {
			tox++
		}
		if ef {
			eff++
		}
	}
	if math.Abs(float64(tox)/n-0.3) > 0.01 {
		t.Errorf("empirical toxicity rate %g, want 0.3", float64(tox)/n)
	}
	if math.Abs(float64(eff)/n-0.6) > 0.01 {
		t.Errorf("empirical efficacy rate %g, want 0.6", float64(eff)/n)
	}
}

// stubEstimator keeps the bottom dose the winner and stops nothing, so
// replicates run to full size quickly.
type stubEstimator struct{}

func (stubEstimator) Estimate(_ context.Context, _ []dosing.Outcome, _ int, _ *rand.Rand) (*posterior.Posterior, error) {
	n := 10
	d := model.NewDraws(n)
	for i := 0; i < n; i++ {
		d.ToxIntercept[i] = -3
		d.ToxSlope[i] = 0.2
		d.EffIntercept[i] = 1
		d.EffSlope[i] = -1 + 0.001*float64(i)
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	doses := make([]posterior.DoseSummary, 4)
	for i := range doses {
		doses[i] = posterior.DoseSummary{Level: i + 1}
	}
	return &posterior.Posterior{Sample: d, Weights: w, Doses: doses}, nil
}

func TestRunner_Run(t *testing.T) {
	r := Runner{
		Cfg: testkit.Matchpoint(),
		Scenario: Scenario{
			TrueTox:   []float64{0.05, 0.1, 0.2, 0.4},
			TrueEff:   []float64{0.2, 0.4, 0.6, 0.7},
			OddsRatio: 1,
		},
		Seed:      11,
		Estimator: stubEstimator{},
	}

	res, err := r.Run(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Replicates) != 5 {
		t.Fatalf("got %d replicates, want 5", len(res.Replicates))
	}
	var rateSum float64
	for _, v := range res.RecommendationRate {
		rateSum += v
	}
	if math.Abs(rateSum-1) > 1e-12 {
		t.Errorf("recommendation rates sum to %g", rateSum)
	}
	if res.MeanPatients <= 0 || res.MeanPatients > float64(r.Cfg.TrialSize) {
		t.Errorf("mean patients %g out of range", res.MeanPatients)
	}
	for _, rep := range res.Replicates {
		if rep.Patients > r.Cfg.TrialSize {
			t.Errorf("replicate treated %d patients, cap %d", rep.Patients, r.Cfg.TrialSize)
		}
		if rep.Toxicities > rep.Patients || rep.Efficacies > rep.Patients {
			t.Error("event counts exceed patients")
		}
	}
}

func TestRunner_Reproducible(t *testing.T) {
	mk := func() *Runner {
		return &Runner{
			Cfg: testkit.Matchpoint(),
			Scenario: Scenario{
				TrueTox:   []float64{0.05, 0.1, 0.2, 0.4},
				TrueEff:   []float64{0.2, 0.4, 0.6, 0.7},
				OddsRatio: 2,
			},
			Seed:      23,
			Estimator: stubEstimator{},
		}
	}
	a, err := mk().Run(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := mk().Run(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Replicates {
		if a.Replicates[i] != b.Replicates[i] {
			t.Errorf("replicate %d differs across identically seeded runs", i)
		}
	}
}

func TestScenario_Validate(t *testing.T) {
	cfg := testkit.Matchpoint()
	good := Scenario{
		TrueTox:   []float64{0.05, 0.1, 0.2, 0.4},
		TrueEff:   []float64{0.2, 0.4, 0.6, 0.7},
		OddsRatio: 1,
	}
	if err := good.Validate(cfg); err != nil {
		t.Errorf("valid scenario rejected: %v", err)
	}

	short := good
	short.TrueTox = short.TrueTox[:2]
	if err := short.Validate(cfg); err == nil {
		t.Error("dose count mismatch must be rejected")
	}

	bad := good
	bad.OddsRatio = 0
	if err := bad.Validate(cfg); err == nil {
		t.Error("non-positive odds ratio must be rejected")
	}

	outOfRange := good
	outOfRange.TrueEff = []float64{0.2, 0.4, 0.6, 1.7}
	if err := outOfRange.Validate(cfg); err == nil {
		t.Error("probability above one must be rejected")
	}
}

func TestRunner_InputChecks(t *testing.T) {
	r := Runner{Cfg: testkit.Matchpoint(), Scenario: Scenario{OddsRatio: 1}, Estimator: stubEstimator{}}
	if _, err := r.Run(context.Background(), 0); err == nil {
		t.Error("zero replicates must be rejected")
	}
	if _, err := r.Run(context.Background(), 2); err == nil {
		t.Error("scenario missing dose probabilities must be rejected")
	}
}
