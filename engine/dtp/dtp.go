// Package dtp enumerates dose transition pathways: every distinct outcome a
// future cohort can produce, the full decision re-run for each, and the dose
// the design would give the cohort after that. The result is a tree whose
// leaves are the complete transcripts investigators review before a trial
// starts.
package dtp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"efftox/domain/dosing"
	"efftox/internal/errors"
	"efftox/trial"
)

// Cohort outcome letters, worst-ordered for canonical labels. A label lists
// one letter per patient, sorted, so the C(k+3,3) distinct multisets of a
// k-patient cohort each appear exactly once.
// N is neither event, E efficacy only, T toxicity only, B both.
const letters = "NETB"

// Node is one vertex of the pathway tree. The root describes the trial as it
// stands; every other node describes the state after one hypothetical cohort.
type Node struct {
	// Label is the canonical cohort outcome, e.g. "NNT". Empty at the root.
	Label string `json:"label,omitempty"`
	// Dose is the level this node's cohort was treated at.
	Dose int `json:"dose,omitempty"`
	// Path joins the dose-prefixed labels from the root, e.g. "2NNT.2NEB".
	Path string `json:"path,omitempty"`

	// Recommended is the dose the design gives the next cohort, or
	// selector.NoDose when the pathway stops here.
	Recommended int          `json:"recommended"`
	Superiority float64      `json:"superiority"`
	Status      trial.Status `json:"status"`

	// Outcomes is the cumulative patient history along this pathway.
	Outcomes []dosing.Outcome `json:"outcomes,omitempty"`

	Children []*Node `json:"children,omitempty"`
}

// Leaf reports whether the node has no expanded children.
func (n *Node) Leaf() bool { return len(n.Children) == 0 }

// Walk visits the tree depth-first in label order.
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// Formatter maps a node to whatever record shape a report needs.
type Formatter func(*Node) any

// Leaves applies the formatter to every leaf, in label order.
func Leaves(root *Node, f Formatter) []any {
	var out []any
	root.Walk(func(n *Node) {
		if n.Leaf() {
			out = append(out, f(n))
		}
	})
	return out
}

// PathRecord is the default leaf shape: the pathway string plus the terminal
// recommendation.
type PathRecord struct {
	Path        string       `json:"path"`
	Recommended int          `json:"recommended"`
	Status      trial.Status `json:"status"`
}

// RecordPath is a Formatter producing PathRecords.
func RecordPath(n *Node) any {
	return PathRecord{Path: n.Path, Recommended: n.Recommended, Status: n.Status}
}

// Enumerator expands pathway trees. The zero value is usable; knobs override
// the trial configuration's defaults.
type Enumerator struct {
	// MaxLeaves caps the tree size; zero falls back to the trial
	// configuration, then to trial.DefaultMaxLeaves.
	MaxLeaves int
	// Workers bounds concurrent decision re-runs per level; zero means
	// sequential expansion.
	Workers int
	// Draws overrides the trial's Monte Carlo draw count for every decision
	// re-run; zero keeps the trial's own setting.
	Draws int

	Log zerolog.Logger
}

// Enumerate expands every pathway reachable from the trial's current state
// through len(cohortSizes) further cohorts. The first cohort is treated at
// nextDose, or at the trial's current recommended dose when nextDose is
// zero; each subsequent cohort at the recommendation its parent node
// produced. Branches that hit a stopping rule become leaves early.
//
// The worst-case leaf count is checked against MaxLeaves before any sampling
// happens; exceeding it is a resource-limit error, not a truncated tree.
func (e *Enumerator) Enumerate(ctx context.Context, t *trial.Trial, nextDose int, cohortSizes []int) (*Node, error) {
	if t.Status().Terminal() {
		return nil, errors.TrialTerminal(fmt.Sprintf("cannot enumerate pathways for a %s trial", t.Status()))
	}
	if nextDose == 0 {
		nextDose = t.RecommendedDose()
	}
	if !t.Grid().Valid(nextDose) {
		return nil, errors.ConfigInvalidf("next dose %d is not on the %d-level grid", nextDose, t.Grid().NumDoses())
	}
	if len(cohortSizes) == 0 {
		return nil, errors.ConfigInvalid("pathway enumeration needs at least one cohort")
	}
	for i, k := range cohortSizes {
		if k <= 0 {
			return nil, errors.ConfigInvalidf("cohort %d size must be positive, got %d", i+1, k)
		}
	}
	if err := e.checkLeafBudget(t.Config(), cohortSizes); err != nil {
		return nil, err
	}
	if e.Draws > 0 {
		t = t.CloneWithDraws(e.Draws)
	}

	root := &Node{
		Recommended: nextDose,
		Superiority: t.Superiority(),
		Status:      t.Status(),
		Outcomes:    t.Outcomes(),
	}

	type item struct {
		node *Node
		t    *trial.Trial
	}
	level := []item{{node: root, t: t}}

	for depth, k := range cohortSizes {
		labels := cohortLabels(k)
		next := make([]item, 0, len(level)*len(labels))

		for _, parent := range level {
			dose := parent.node.Recommended
			children := make([]*Node, len(labels))
			trials := make([]*trial.Trial, len(labels))

			g, gctx := errgroup.WithContext(ctx)
			if e.Workers > 0 {
				g.SetLimit(e.Workers)
			} else {
				g.SetLimit(1)
			}
			for i, label := range labels {
				g.Go(func() error {
					branch := parent.t.Clone()
					status, err := branch.ApplyCohort(gctx, cohortOutcomes(dose, label))
					if err != nil {
						return errors.Wrapf(err, "pathway %s", joinPath(parent.node.Path, dose, label))
					}
					children[i] = &Node{
						Label:       label,
						Dose:        dose,
						Path:        joinPath(parent.node.Path, dose, label),
						Recommended: branch.RecommendedDose(),
						Superiority: branch.Superiority(),
						Status:      status,
						Outcomes:    branch.Outcomes(),
					}
					trials[i] = branch
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			parent.node.Children = children
			for i, c := range children {
				if c.Status == trial.StatusOngoing {
					next = append(next, item{node: c, t: trials[i]})
				}
			}
		}

		e.Log.Debug().
			Int("depth", depth+1).
			Int("cohort_size", k).
			Int("expandable", len(next)).
			Msg("pathway level expanded")
		level = next
		if len(level) == 0 {
			break
		}
	}
	return root, nil
}

// checkLeafBudget rejects enumerations whose worst case exceeds the leaf cap
// before any estimation work is spent.
func (e *Enumerator) checkLeafBudget(cfg trial.Config, cohortSizes []int) error {
	max := e.MaxLeaves
	if max == 0 {
		max = cfg.MaxDTPLeaves
	}
	if max == 0 {
		max = trial.DefaultMaxLeaves
	}
	leaves := 1
	for _, k := range cohortSizes {
		leaves *= numLabels(k)
		if leaves > max {
			return errors.ResourceLimitf("pathway enumeration would produce up to %d leaves, limit is %d", leaves, max)
		}
	}
	return nil
}

// numLabels is C(k+3, 3), the number of distinct outcome multisets for a
// k-patient cohort over four outcome categories.
func numLabels(k int) int {
	return (k + 3) * (k + 2) * (k + 1) / 6
}

// cohortLabels lists every canonical label for a k-patient cohort, in
// lexicographic order of the N < E < T < B ranking.
func cohortLabels(k int) []string {
	labels := make([]string, 0, numLabels(k))
	ranks := make([]int, k)
	var build func(pos, minRank int)
	build = func(pos, minRank int) {
		if pos == k {
			b := make([]byte, k)
			for i, r := range ranks {
				b[i] = letters[r]
			}
			labels = append(labels, string(b))
			return
		}
		for r := minRank; r < len(letters); r++ {
			ranks[pos] = r
			build(pos+1, r)
		}
	}
	build(0, 0)
	return labels
}

// cohortOutcomes translates a label into the cohort it stands for.
func cohortOutcomes(dose int, label string) dosing.Cohort {
	cohort := make(dosing.Cohort, len(label))
	for i := 0; i < len(label); i++ {
		o := dosing.Outcome{Dose: dose}
		switch label[i] {
		case 'E':
			o.Efficacy = true
		case 'T':
			o.Toxicity = true
		case 'B':
			o.Toxicity = true
			o.Efficacy = true
		}
		cohort[i] = o
	}
	return cohort
}

func joinPath(parent string, dose int, label string) string {
	seg := fmt.Sprintf("%d%s", dose, label)
	if parent == "" {
		return seg
	}
	return parent + "." + seg
}
