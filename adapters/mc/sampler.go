// Package mc implements the posterior estimator as plain importance-weighted
// sampling from the six independent priors: draw parameter vectors, weight
// each draw by the compound likelihood of the observed outcomes, normalise,
// reduce. Draw generation shards across workers; shard results land in
// pre-assigned slice ranges, so a fixed seed reproduces the estimate
// bit-for-bit regardless of scheduling.
package mc

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"efftox/domain/dosing"
	"efftox/domain/model"
	"efftox/domain/posterior"
	"efftox/domain/prior"
	"efftox/internal/errors"
	"efftox/ports"
)

const defaultBlockSize = 1 << 16

// Sampler estimates posteriors for one trial configuration. The zero value
// is not usable; construct with NewSampler.
type Sampler struct {
	grid      *dosing.DoseGrid
	priors    prior.Spec
	link      model.Link
	toxCutoff float64
	effCutoff float64

	// BlockSize is the shard width in draws. Peak memory per concurrent
	// worker in streaming mode is one BlockSize x 6 draw block plus three
	// BlockSize scratch vectors.
	BlockSize int
	// Workers bounds concurrent shards; defaults to GOMAXPROCS.
	Workers int
	// Log reports degenerate posteriors. The zero logger is silent.
	Log zerolog.Logger
}

// NewSampler binds a sampler to a dose grid, prior specification, link and
// the admissibility cutoffs.
func NewSampler(grid *dosing.DoseGrid, priors prior.Spec, link model.Link, toxCutoff, effCutoff float64) *Sampler {
	return &Sampler{
		grid:      grid,
		priors:    priors,
		link:      link,
		toxCutoff: toxCutoff,
		effCutoff: effCutoff,
		BlockSize: defaultBlockSize,
	}
}

// Estimate draws `draws` parameter vectors, weights them against the
// observed outcomes and returns the full weighted sample with summaries.
// Memory is dominated by the retained sample: draws x 6 floats plus weights.
// Callers that only need summaries should use EstimateSummary.
func (s *Sampler) Estimate(ctx context.Context, outcomes []dosing.Outcome, draws int, rng *rand.Rand) (*posterior.Posterior, error) {
	if err := s.check(outcomes, draws, rng); err != nil {
		return nil, err
	}

	d := model.NewDraws(draws)
	logw := make([]float64, draws)

	shards := shardRanges(draws, s.blockSize())
	seeds := shardSeeds(rng, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, sh := range shards {
		i, sh := i, sh
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := shardSource(seeds[i])
			view := d.Slice(sh.lo, sh.hi)
			fillDraws(view, s.priors, src)
			ev := model.NewEvaluator(s.grid, s.link, sh.hi-sh.lo)
			ev.AccumLogLikelihood(logw[sh.lo:sh.hi], outcomes, view)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weights, degenerate := normaliseLogWeights(logw)
	if degenerate {
		s.Log.Warn().Int("draws", draws).Int("outcomes", len(outcomes)).
			Msg("posterior weight collapsed to zero at every draw; falling back to prior")
	}

	p := &posterior.Posterior{
		Sample:     d,
		Weights:    weights,
		Degenerate: degenerate,
	}
	s.summarise(p, d, weights)
	return p, nil
}

// EstimateSummary computes the same summaries without ever materialising the
// full draw matrix: draws regenerate shard-by-shard from the same seeds in
// two passes (one for the stabilising max log weight, one for the weighted
// sums). The returned posterior has no retained sample.
func (s *Sampler) EstimateSummary(ctx context.Context, outcomes []dosing.Outcome, draws int, rng *rand.Rand) (*posterior.Posterior, error) {
	if err := s.check(outcomes, draws, rng); err != nil {
		return nil, err
	}

	shards := shardRanges(draws, s.blockSize())
	seeds := shardSeeds(rng, len(shards))

	// Pass 1: max log likelihood across all draws.
	maxima := make([]float64, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, sh := range shards {
		i, sh := i, sh
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, logw := s.shardBlock(outcomes, seeds[i], sh)
			maxima[i] = floats.Max(logw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	maxLog := floats.Max(maxima)
	degenerate := math.IsInf(maxLog, -1)
	if degenerate {
		s.Log.Warn().Int("draws", draws).Int("outcomes", len(outcomes)).
			Msg("posterior weight collapsed to zero at every draw; falling back to prior")
	}

	// Pass 2: weighted partial sums per shard, combined in shard order so
	// the reduction is deterministic.
	partials := make([]*accumulator, len(shards))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, sh := range shards {
		i, sh := i, sh
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			block, logw := s.shardBlock(outcomes, seeds[i], sh)
			acc := newAccumulator(s.grid.NumDoses())
			scratchTox := make([]float64, sh.hi-sh.lo)
			scratchEff := make([]float64, sh.hi-sh.lo)
			acc.consume(s, block, logw, maxLog, degenerate, scratchTox, scratchEff)
			partials[i] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := newAccumulator(s.grid.NumDoses())
	for _, acc := range partials {
		total.merge(acc)
	}

	p := &posterior.Posterior{Degenerate: degenerate}
	total.finish(p, s.grid.NumDoses())
	return p, nil
}

func (s *Sampler) check(outcomes []dosing.Outcome, draws int, rng *rand.Rand) error {
	if draws <= 0 {
		return errors.ConfigInvalidf("draw count must be positive, got %d", draws)
	}
	if rng == nil {
		return errors.ConfigInvalid("estimator requires an explicit random source")
	}
	return dosing.Cohort(outcomes).Validate(s.grid)
}

func (s *Sampler) blockSize() int {
	if s.BlockSize > 0 {
		return s.BlockSize
	}
	return defaultBlockSize
}

func (s *Sampler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// shardBlock regenerates one shard's draws and their log likelihoods.
func (s *Sampler) shardBlock(outcomes []dosing.Outcome, seed uint64, sh shard) (*model.Draws, []float64) {
	n := sh.hi - sh.lo
	block := model.NewDraws(n)
	fillDraws(block, s.priors, shardSource(seed))
	logw := make([]float64, n)
	ev := model.NewEvaluator(s.grid, s.link, n)
	ev.AccumLogLikelihood(logw, outcomes, block)
	return block, logw
}

// summarise fills the posterior's parameter means and per-dose summaries
// from a fully materialised sample.
func (s *Sampler) summarise(p *posterior.Posterior, d *model.Draws, weights []float64) {
	for j := 0; j < prior.NumParams; j++ {
		p.ParamMeans[j] = stat.Mean(d.Param(j), weights)
	}

	n := d.Len()
	probTox := make([]float64, n)
	probEff := make([]float64, n)
	ev := model.NewEvaluator(s.grid, s.link, n)
	p.Doses = make([]posterior.DoseSummary, s.grid.NumDoses())
	for level := 1; level <= s.grid.NumDoses(); level++ {
		ev.DoseProbs(probTox, probEff, level, d)
		var meanTox, meanEff, toxOver, effOver float64
		for i := range weights {
			w := weights[i]
			meanTox += w * probTox[i]
			meanEff += w * probEff[i]
			if probTox[i] > s.toxCutoff {
				toxOver += w
			}
			if probEff[i] > s.effCutoff {
				effOver += w
			}
		}
		p.Doses[level-1] = posterior.DoseSummary{
			Level:                level,
			MeanProbTox:          meanTox,
			MeanProbEff:          meanEff,
			ProbToxExceedsCutoff: toxOver,
			ProbEffExceedsCutoff: effOver,
			ProbAcceptableTox:    1 - toxOver,
			ProbEffBelowCutoff:   1 - effOver,
		}
	}
}

type shard struct{ lo, hi int }

func shardRanges(n, block int) []shard {
	shards := make([]shard, 0, (n+block-1)/block)
	for lo := 0; lo < n; lo += block {
		hi := lo + block
		if hi > n {
			hi = n
		}
		shards = append(shards, shard{lo, hi})
	}
	return shards
}

// shardSource expands one shard seed into a PCG source.
func shardSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// shardSeeds pre-draws one seed per shard from the caller's generator. The
// seed sequence, and hence the whole estimate, depends only on the
// generator's state, not on worker scheduling.
func shardSeeds(rng *rand.Rand, n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}
	return seeds
}

// fillDraws samples every parameter for every row of the block. Rows draw
// parameter-by-parameter from one shared source, fixing the sequence.
func fillDraws(d *model.Draws, spec prior.Spec, src rand.Source) {
	randers := spec.Randers(src)
	n := d.Len()
	for i := 0; i < n; i++ {
		for j := 0; j < prior.NumParams; j++ {
			d.Param(j)[i] = randers[j].Rand()
		}
	}
}

// normaliseLogWeights converts log likelihoods to normalised importance
// weights with max-log subtraction. When every log weight is -Inf the
// posterior is degenerate and the weights fall back to uniform.
func normaliseLogWeights(logw []float64) ([]float64, bool) {
	maxLog := floats.Max(logw)
	weights := make([]float64, len(logw))
	if math.IsInf(maxLog, -1) {
		uniform := 1 / float64(len(logw))
		for i := range weights {
			weights[i] = uniform
		}
		return weights, true
	}
	var sum float64
	for i, lw := range logw {
		w := math.Exp(lw - maxLog)
		weights[i] = w
		sum += w
	}
	floats.Scale(1/sum, weights)
	return weights, false
}

// accumulator holds the associative, commutative partial sums of the
// streaming reduction.
type accumulator struct {
	sumW      float64
	sumParams [prior.NumParams]float64
	sumTox    []float64
	sumEff    []float64
	toxOver   []float64
	effOver   []float64
}

func newAccumulator(numDoses int) *accumulator {
	return &accumulator{
		sumTox:  make([]float64, numDoses),
		sumEff:  make([]float64, numDoses),
		toxOver: make([]float64, numDoses),
		effOver: make([]float64, numDoses),
	}
}

func (a *accumulator) consume(s *Sampler, block *model.Draws, logw []float64, maxLog float64, degenerate bool, scratchTox, scratchEff []float64) {
	n := block.Len()
	w := make([]float64, n)
	for i := range w {
		if degenerate {
			w[i] = 1
		} else {
			w[i] = math.Exp(logw[i] - maxLog)
		}
		a.sumW += w[i]
	}
	for j := 0; j < prior.NumParams; j++ {
		param := block.Param(j)
		for i := range w {
			a.sumParams[j] += w[i] * param[i]
		}
	}
	ev := model.NewEvaluator(s.grid, s.link, n)
	for level := 1; level <= s.grid.NumDoses(); level++ {
		ev.DoseProbs(scratchTox, scratchEff, level, block)
		for i := range w {
			a.sumTox[level-1] += w[i] * scratchTox[i]
			a.sumEff[level-1] += w[i] * scratchEff[i]
			if scratchTox[i] > s.toxCutoff {
				a.toxOver[level-1] += w[i]
			}
			if scratchEff[i] > s.effCutoff {
				a.effOver[level-1] += w[i]
			}
		}
	}
}

func (a *accumulator) merge(b *accumulator) {
	a.sumW += b.sumW
	for j := range a.sumParams {
		a.sumParams[j] += b.sumParams[j]
	}
	floats.Add(a.sumTox, b.sumTox)
	floats.Add(a.sumEff, b.sumEff)
	floats.Add(a.toxOver, b.toxOver)
	floats.Add(a.effOver, b.effOver)
}

func (a *accumulator) finish(p *posterior.Posterior, numDoses int) {
	for j := range a.sumParams {
		p.ParamMeans[j] = a.sumParams[j] / a.sumW
	}
	p.Doses = make([]posterior.DoseSummary, numDoses)
	for i := 0; i < numDoses; i++ {
		toxOver := a.toxOver[i] / a.sumW
		effOver := a.effOver[i] / a.sumW
		p.Doses[i] = posterior.DoseSummary{
			Level:                i + 1,
			MeanProbTox:          a.sumTox[i] / a.sumW,
			MeanProbEff:          a.sumEff[i] / a.sumW,
			ProbToxExceedsCutoff: toxOver,
			ProbEffExceedsCutoff: effOver,
			ProbAcceptableTox:    1 - toxOver,
			ProbEffBelowCutoff:   1 - effOver,
		}
	}
}

var _ ports.PosteriorEstimator = (*Sampler)(nil)
