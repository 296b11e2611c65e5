package dtp

import (
	"context"
	"testing"

	"efftox/domain/dosing"
	"efftox/engine/selector"
	"efftox/internal/testkit"
	"efftox/trial"
)

// Reproduces the reference trial lookahead: after three patients at dose 3
// all with toxicity and no efficacy, the design de-escalates to dose 2, and
// the next cohort's pathways split between escalating back and stopping.
func TestEnumerate_ReferenceTrialLookahead(t *testing.T) {
	if testing.Short() {
		t.Skip("full posterior enumeration in -short mode")
	}
	ctx := context.Background()

	cfg := testkit.Matchpoint()
	cfg.Draws = 50_000
	tr, err := trial.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	status, err := tr.ApplyCohort(ctx, dosing.Cohort{
		{Dose: 3, Toxicity: true},
		{Dose: 3, Toxicity: true},
		{Dose: 3, Toxicity: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if status != trial.StatusOngoing {
		t.Fatalf("trial status %s after one toxic cohort, want ongoing", status)
	}
	if got := tr.RecommendedDose(); got != 2 {
		t.Fatalf("recommendation after all-toxic cohort at dose 3 = %d, want 2", got)
	}

	e := Enumerator{Workers: 4}
	root, err := e.Enumerate(ctx, tr, 0, []int{3})
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 20 {
		t.Fatalf("got %d pathways, want 20", len(root.Children))
	}

	byLabel := map[string]*Node{}
	for _, c := range root.Children {
		if c.Dose != 2 {
			t.Errorf("pathway %s treated at %d, want 2", c.Label, c.Dose)
		}
		byLabel[c.Label] = c
	}

	if n := byLabel["NNN"]; n.Recommended != 3 {
		t.Errorf("clean cohort recommends %d, want escalation to 3", n.Recommended)
	}
	for _, l := range []string{"NNT", "NTT", "TTT"} {
		n := byLabel[l]
		if n.Recommended != selector.NoDose {
			t.Errorf("pathway %s recommends %d, want no dose", l, n.Recommended)
		}
		if n.Status != trial.StatusStoppedToxicity {
			t.Errorf("pathway %s status %s, want stopped_toxicity", l, n.Status)
		}
	}
}
