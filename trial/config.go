package trial

import (
	"efftox/domain/contour"
	"efftox/domain/dosing"
	"efftox/domain/model"
	"efftox/domain/prior"
	"efftox/internal/errors"
)

// Defaults applied by New when the knobs are left zero.
const (
	DefaultDraws     = 100_000
	DefaultMaxLeaves = 50_000
)

// Config is the complete trial specification. Everything is validated
// eagerly at construction; nothing is silently clamped.
type Config struct {
	// RealDoses are the ordered dose values under study, least first.
	RealDoses []float64 `yaml:"doses"`
	// TrialSize is the maximum number of patients.
	TrialSize int `yaml:"trial_size"`
	// CohortSize is the number of patients per decision point.
	CohortSize int `yaml:"cohort_size"`
	// FirstDose is the 1-based starting dose level.
	FirstDose int `yaml:"first_dose"`

	// ToxCutoff and EffCutoff are the probability cutoffs the admissibility
	// tail probabilities are measured against.
	ToxCutoff float64 `yaml:"tox_cutoff"`
	EffCutoff float64 `yaml:"eff_cutoff"`
	// ToxCertainty excludes a dose when P(prob tox > ToxCutoff) exceeds it;
	// EffCertainty excludes a dose when P(prob eff < EffCutoff) exceeds it.
	ToxCertainty float64 `yaml:"tox_certainty"`
	EffCertainty float64 `yaml:"eff_certainty"`

	// Hinges are the three utility-contour anchor points: (0, minimum
	// tolerable efficacy), (maximum tolerable toxicity, 1), and an interior
	// point.
	Hinges [3]contour.Hinge `yaml:"hinges"`

	// Priors are the six parameter priors, positionally bound.
	Priors prior.Spec `yaml:"-"`

	// Link selects the dose-response link function; empty means logit.
	Link model.LinkKind `yaml:"link"`

	// Draws is the Monte Carlo sample size per posterior estimate, the sole
	// accuracy/performance knob. Zero means DefaultDraws.
	Draws int `yaml:"draws"`
	// Seed feeds the deterministic stream derivation for every sampling
	// call.
	Seed int64 `yaml:"seed"`
	// MaxDTPLeaves bounds pathway enumeration; exceeding it is an explicit
	// resource-limit error. Zero means DefaultMaxLeaves.
	MaxDTPLeaves int `yaml:"max_dtp_leaves"`
}

// Validate checks every configuration constraint and returns a distinct
// CONFIG_INVALID error for the first violation.
func (c Config) Validate() error {
	grid, err := dosing.NewDoseGrid(c.RealDoses)
	if err != nil {
		return err
	}
	if c.TrialSize <= 0 {
		return errors.ConfigInvalidf("trial size must be positive, got %d", c.TrialSize)
	}
	if c.CohortSize <= 0 || c.CohortSize > c.TrialSize {
		return errors.ConfigInvalidf("cohort size must be in [1, trial size], got %d", c.CohortSize)
	}
	if !grid.Valid(c.FirstDose) {
		return errors.ConfigInvalidf("first dose level %d is not on the %d-dose grid", c.FirstDose, grid.NumDoses())
	}
	for name, v := range map[string]float64{
		"tox_cutoff":    c.ToxCutoff,
		"eff_cutoff":    c.EffCutoff,
		"tox_certainty": c.ToxCertainty,
		"eff_certainty": c.EffCertainty,
	} {
		if v <= 0 || v >= 1 {
			return errors.ConfigInvalidf("%s must be in (0,1), got %g", name, v)
		}
	}
	if _, err := contour.New(c.Hinges[0], c.Hinges[1], c.Hinges[2]); err != nil {
		return err
	}
	if err := c.Priors.Validate(); err != nil {
		return err
	}
	link, err := model.NewLink(c.Link)
	if err != nil {
		return err
	}
	if _, ok := link.(model.Empiric); ok {
		// The power link needs dose labels in (0,1); log-centred
		// standardised doses sit outside that for any multi-dose grid.
		for level := 1; level <= grid.NumDoses(); level++ {
			if x := grid.Standardised(level); x <= 0 || x >= 1 {
				return errors.ConfigInvalidf("empiric link requires standardised doses in (0,1); dose %d standardises to %g", level, x)
			}
		}
	}
	if c.Draws < 0 {
		return errors.ConfigInvalidf("draw count cannot be negative, got %d", c.Draws)
	}
	if c.MaxDTPLeaves < 0 {
		return errors.ConfigInvalidf("max DTP leaves cannot be negative, got %d", c.MaxDTPLeaves)
	}
	return nil
}

func (c Config) draws() int {
	if c.Draws > 0 {
		return c.Draws
	}
	return DefaultDraws
}

func (c Config) maxLeaves() int {
	if c.MaxDTPLeaves > 0 {
		return c.MaxDTPLeaves
	}
	return DefaultMaxLeaves
}
