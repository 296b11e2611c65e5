package dosing

import (
	"math"
	"testing"
)

func TestNewDoseGrid_Standardisation(t *testing.T) {
	grid, err := NewDoseGrid([]float64{7.5, 15, 30, 45})
	if err != nil {
		t.Fatalf("NewDoseGrid: %v", err)
	}
	if grid.NumDoses() != 4 {
		t.Fatalf("expected 4 doses, got %d", grid.NumDoses())
	}

	// Log-centred doses sum to zero and preserve order.
	var sum float64
	prev := math.Inf(-1)
	for level := 1; level <= grid.NumDoses(); level++ {
		x := grid.Standardised(level)
		sum += x
		if x <= prev {
			t.Errorf("standardised doses must be increasing, got %g after %g", x, prev)
		}
		prev = x
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("standardised doses should sum to zero, got %g", sum)
	}

	if grid.Real(2) != 15 {
		t.Errorf("Real(2) = %g, want 15", grid.Real(2))
	}
}

func TestNewDoseGrid_Rejections(t *testing.T) {
	cases := map[string][]float64{
		"empty":          {},
		"non-positive":   {0, 10},
		"negative":       {-5, 10},
		"not increasing": {10, 10},
		"decreasing":     {20, 10},
	}
	for name, doses := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDoseGrid(doses); err == nil {
				t.Errorf("expected error for doses %v", doses)
			}
		})
	}
}

func TestCohortValidate(t *testing.T) {
	grid, _ := NewDoseGrid([]float64{10, 20})
	ok := Cohort{{Dose: 1}, {Dose: 2, Toxicity: true}}
	if err := ok.Validate(grid); err != nil {
		t.Errorf("valid cohort rejected: %v", err)
	}
	bad := Cohort{{Dose: 3}}
	if err := bad.Validate(grid); err == nil {
		t.Error("expected error for unknown dose level")
	}
}

func TestTallyOutcomes(t *testing.T) {
	outcomes := []Outcome{
		{Dose: 2, Toxicity: true},
		{Dose: 1},
		{Dose: 2, Toxicity: true},
		{Dose: 1, Efficacy: true},
		{Dose: 1},
	}
	tallies := TallyOutcomes(outcomes)
	want := []Tally{
		{Dose: 1, Count: 2},
		{Dose: 1, Efficacy: true, Count: 1},
		{Dose: 2, Toxicity: true, Count: 2},
	}
	if len(tallies) != len(want) {
		t.Fatalf("got %d tallies, want %d", len(tallies), len(want))
	}
	for i := range want {
		if tallies[i] != want[i] {
			t.Errorf("tally %d = %+v, want %+v", i, tallies[i], want[i])
		}
	}

	// Permuting the outcomes must not change the tallies.
	permuted := []Outcome{outcomes[3], outcomes[0], outcomes[4], outcomes[2], outcomes[1]}
	again := TallyOutcomes(permuted)
	for i := range want {
		if again[i] != want[i] {
			t.Errorf("permuted tally %d = %+v, want %+v", i, again[i], want[i])
		}
	}
}

func TestHighestTriedAndCounts(t *testing.T) {
	if HighestTried(nil) != 0 {
		t.Error("no outcomes should give highest tried 0")
	}
	outcomes := []Outcome{
		{Dose: 1, Efficacy: true},
		{Dose: 3, Toxicity: true, Efficacy: true},
		{Dose: 3},
	}
	if got := HighestTried(outcomes); got != 3 {
		t.Errorf("HighestTried = %d, want 3", got)
	}
	treated, tox, eff := CountAtDose(outcomes, 3)
	if treated != 2 || tox != 1 || eff != 1 {
		t.Errorf("CountAtDose(3) = (%d, %d, %d), want (2, 1, 1)", treated, tox, eff)
	}
}
