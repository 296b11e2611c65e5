package dosing

import (
	"math"

	"efftox/internal/errors"
)

// ============================================================================
// DOSE GRID
// ============================================================================

// DoseGrid is the ordered set of dose levels under study. Levels are 1-based.
// Each real dose carries a standardised value used inside the dose-response
// model: the log dose centred on the mean log dose. The transform is computed
// once at construction and never changes afterwards.
type DoseGrid struct {
	real         []float64
	standardised []float64
}

// NewDoseGrid validates and standardises the real dose values.
// Doses must be positive (the standardisation is logarithmic) and strictly
// increasing.
func NewDoseGrid(real []float64) (*DoseGrid, error) {
	if len(real) == 0 {
		return nil, errors.ConfigInvalid("dose list cannot be empty")
	}
	for i, d := range real {
		if d <= 0 {
			return nil, errors.ConfigInvalidf("dose %d must be positive, got %g", i+1, d)
		}
		if i > 0 && d <= real[i-1] {
			return nil, errors.ConfigInvalidf("doses must be strictly increasing, got %g after %g", d, real[i-1])
		}
	}

	logs := make([]float64, len(real))
	var mean float64
	for i, d := range real {
		logs[i] = math.Log(d)
		mean += logs[i]
	}
	mean /= float64(len(real))

	std := make([]float64, len(real))
	for i := range logs {
		std[i] = logs[i] - mean
	}

	cp := make([]float64, len(real))
	copy(cp, real)
	return &DoseGrid{real: cp, standardised: std}, nil
}

// NumDoses returns the number of dose levels.
func (g *DoseGrid) NumDoses() int { return len(g.real) }

// Valid reports whether level references a registered dose.
func (g *DoseGrid) Valid(level int) bool {
	return level >= 1 && level <= len(g.real)
}

// Real returns the real dose value for a 1-based level.
func (g *DoseGrid) Real(level int) float64 { return g.real[level-1] }

// Standardised returns the model-space dose value for a 1-based level.
func (g *DoseGrid) Standardised(level int) float64 { return g.standardised[level-1] }

// StandardisedAll returns the full standardised dose vector, least dose first.
func (g *DoseGrid) StandardisedAll() []float64 {
	cp := make([]float64, len(g.standardised))
	copy(cp, g.standardised)
	return cp
}

// ============================================================================
// OUTCOMES
// ============================================================================

// Outcome records one patient's result: the dose level treated at and the
// binary toxicity and efficacy events. Immutable once recorded.
type Outcome struct {
	Dose     int  `json:"dose" yaml:"dose"`
	Toxicity bool `json:"toxicity" yaml:"toxicity"`
	Efficacy bool `json:"efficacy" yaml:"efficacy"`
}

// Cohort is an ordered group of patients treated between two decision points.
// Order within a cohort carries no likelihood meaning; patients at one dose
// are exchangeable.
type Cohort []Outcome

// Validate checks that every outcome references a registered dose level.
func (c Cohort) Validate(grid *DoseGrid) error {
	for i, o := range c {
		if !grid.Valid(o.Dose) {
			return errors.DataInvalidf("outcome %d references unknown dose level %d", i, o.Dose)
		}
	}
	return nil
}

// Tally is the multiset view of a set of outcomes: how many patients share
// each distinct (dose, toxicity, efficacy) combination. The compound
// likelihood only depends on these counts, which is what makes patients
// exchangeable within a cohort.
type Tally struct {
	Dose     int
	Toxicity bool
	Efficacy bool
	Count    int
}

// TallyOutcomes collapses outcomes into distinct combination counts, ordered
// by dose, then toxicity, then efficacy, so the result is deterministic.
func TallyOutcomes(outcomes []Outcome) []Tally {
	type key struct {
		dose     int
		tox, eff bool
	}
	counts := make(map[key]int, len(outcomes))
	for _, o := range outcomes {
		counts[key{o.Dose, o.Toxicity, o.Efficacy}]++
	}

	tallies := make([]Tally, 0, len(counts))
	for k, n := range counts {
		tallies = append(tallies, Tally{Dose: k.dose, Toxicity: k.tox, Efficacy: k.eff, Count: n})
	}
	sortTallies(tallies)
	return tallies
}

func sortTallies(ts []Tally) {
	// Insertion sort; the number of distinct combinations is tiny.
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && tallyLess(ts[j], ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func tallyLess(a, b Tally) bool {
	if a.Dose != b.Dose {
		return a.Dose < b.Dose
	}
	if a.Toxicity != b.Toxicity {
		return !a.Toxicity
	}
	if a.Efficacy != b.Efficacy {
		return !a.Efficacy
	}
	return false
}

// HighestTried returns the highest dose level present in outcomes, or 0 when
// no patient has been treated yet.
func HighestTried(outcomes []Outcome) int {
	highest := 0
	for _, o := range outcomes {
		if o.Dose > highest {
			highest = o.Dose
		}
	}
	return highest
}

// CountAtDose returns patients treated, toxicities and efficacies seen at a
// dose level.
func CountAtDose(outcomes []Outcome, level int) (treated, toxicities, efficacies int) {
	for _, o := range outcomes {
		if o.Dose != level {
			continue
		}
		treated++
		if o.Toxicity {
			toxicities++
		}
		if o.Efficacy {
			efficacies++
		}
	}
	return treated, toxicities, efficacies
}
