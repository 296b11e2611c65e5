package trial_test

import (
	"context"
	"testing"

	"efftox/domain/dosing"
	"efftox/internal/testkit"
	"efftox/trial"
)

// These tests run the real importance sampler end to end on the Matchpoint
// configuration. Draw counts are kept modest; the assertions only lean on
// posterior features that are decisive at this sample size.

func matchpointTrial(t *testing.T) *trial.Trial {
	t.Helper()
	cfg := testkit.Matchpoint()
	cfg.Draws = 25_000
	tr, err := trial.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestMatchpoint_EscalatesAfterCleanCohort(t *testing.T) {
	if testing.Short() {
		t.Skip("full posterior estimation")
	}
	tr := matchpointTrial(t)

	cohort := dosing.Cohort{
		{Dose: 1, Efficacy: true},
		{Dose: 1, Efficacy: true},
		{Dose: 1, Efficacy: true},
	}
	status, err := tr.ApplyCohort(context.Background(), cohort)
	if err != nil {
		t.Fatal(err)
	}
	if status != trial.StatusOngoing {
		t.Fatalf("status %s, want ongoing", status)
	}
	// Three efficacious, non-toxic patients at the bottom dose: the design
	// escalates, and the no-skip rule pins it to dose 2.
	if tr.RecommendedDose() != 2 {
		t.Errorf("recommended %d, want 2", tr.RecommendedDose())
	}
}

func TestMatchpoint_DoesNotEscalatePastHeavyToxicity(t *testing.T) {
	if testing.Short() {
		t.Skip("full posterior estimation")
	}
	tr := matchpointTrial(t)
	ctx := context.Background()

	allToxic := dosing.Cohort{
		{Dose: 1, Toxicity: true},
		{Dose: 1, Toxicity: true},
		{Dose: 1, Toxicity: true},
	}
	if _, err := tr.ApplyCohort(ctx, allToxic); err != nil {
		t.Fatal(err)
	}
	if tr.Status().Terminal() {
		return // stopping outright for toxicity is acceptable here
	}
	if _, err := tr.ApplyCohort(ctx, allToxic); err != nil {
		t.Fatal(err)
	}

	// Six toxicities in six patients at the bottom dose: whatever else the
	// posterior says, escalation is off the table.
	if tr.RecommendedDose() > 1 {
		t.Errorf("recommended %d after six toxicities at dose 1", tr.RecommendedDose())
	}
}

func TestMatchpoint_PriorSummariesOrdered(t *testing.T) {
	if testing.Short() {
		t.Skip("full posterior estimation")
	}
	tr := matchpointTrial(t)
	sums, err := tr.DoseSummaries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Marginal toxicity is monotone in dose under the model, so the prior
	// predictive means must be ordered.
	for i := 1; i < len(sums); i++ {
		if sums[i].MeanProbTox < sums[i-1].MeanProbTox {
			t.Errorf("prior mean toxicity not monotone at dose %d", i+1)
		}
	}
}
