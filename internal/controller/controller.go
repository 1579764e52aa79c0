// Package controller implements the top-level deadline state machine:
// INIT -> ROUND(r) -> FINAL. It wires the catalog, the stats model, the
// stats collector, the sampler, the round planner, and the estimator
// together, and drives the external round runner.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/thsslxf/hadoop-ev/internal/catalog"
	"github.com/thsslxf/hadoop-ev/internal/estimator"
	"github.com/thsslxf/hadoop-ev/internal/planner"
	"github.com/thsslxf/hadoop-ev/internal/roundrunner"
	"github.com/thsslxf/hadoop-ev/internal/sampler"
	"github.com/thsslxf/hadoop-ev/internal/stats"
	"github.com/thsslxf/hadoop-ev/internal/statscollector"
	"github.com/thsslxf/hadoop-ev/pkg/errs"
)

// Config is the subset of configuration the Controller needs to run its
// loop. cmd/sampctl builds this from pkg/config.Options.
type Config struct {
	DeadlineSeconds  float64
	SizePerFolder    int
	SampleTimePctg   float64
	Policy           sampler.Policy
	GroundTruth      bool
	PrintEmptyFolder bool
	Datanodes        int
	MaxMapsPerNode   int
	OutputBaseDir    string
	SplitSizeBytes   int64
}

// Controller owns the deadline, the round counter, and the distribution
// handed to the Sampler between rounds.
type Controller struct {
	cfg        Config
	cat        *catalog.Catalog
	statsModel *stats.Model
	collector  *statscollector.Collector
	sampler    *sampler.Sampler
	runner     roundrunner.Runner
	logger     *zap.Logger
	metrics    *metrics
	registry   *prometheus.Registry

	deadline time.Time
	runCount int
	p        int

	reportEmptyStrata bool

	lastRoundWallTime time.Duration
	lastExtraCost     time.Duration

	accumulators map[string]*stratumAccumulator
}

// stratumAccumulator is the cross-round estimator state: round-by-round
// mean_v(s)/mean_var(s) contributions averaged across the rounds that
// observed s, plus the cumulative count of samples drawn from s over
// the whole run.
type stratumAccumulator struct {
	sumMeanValue    float64
	sumMeanVariance float64
	roundsObserved  int
	sampledCount    int
}

// New builds a Controller. The collaborators must all be non-nil; a nil
// logger is replaced by a no-op one. cat is the fixed input catalog for
// the whole run. Each
// Controller gets its own Prometheus registry (rather than the global
// default one) so constructing more than one in the same process, as
// tests do, never panics on a duplicate metric registration.
func New(cfg Config, cat *catalog.Catalog, statsModel *stats.Model, collector *statscollector.Collector, smp *sampler.Sampler, runner roundrunner.Runner, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	return &Controller{
		cfg:               cfg,
		cat:               cat,
		statsModel:        statsModel,
		collector:         collector,
		sampler:           smp,
		runner:            runner,
		logger:            logger,
		metrics:           newMetrics(registry),
		registry:          registry,
		reportEmptyStrata: cfg.PrintEmptyFolder,
		accumulators:      make(map[string]*stratumAccumulator),
	}
}

// Registry exposes the Controller's Prometheus registry so callers can
// mount it behind a /metrics handler.
func (c *Controller) Registry() *prometheus.Registry { return c.registry }

// Run executes the full INIT -> ROUND(r) -> FINAL loop and returns the
// final point estimate and 95% CI.
func (c *Controller) Run(ctx context.Context) (estimator.Result, error) {
	if err := c.init(); err != nil {
		return estimator.Result{}, err
	}

	result, err := c.sampler.SelectUniform(c.cat, c.cfg.SizePerFolder)
	if err := c.runRound(ctx, 1, result, err); err != nil {
		return estimator.Result{}, err
	}

	for {
		if time.Now().After(c.deadline) {
			break
		}
		plan, ok := c.planNextRound()
		if !ok {
			break
		}
		round := c.runCount + 1
		var budget sampler.Budget
		var dist map[string]sampler.StratumDist
		if c.cfg.GroundTruth {
			r, err := c.sampler.SelectUniform(c.cat, c.cfg.SizePerFolder)
			if err := c.runRound(ctx, round, r, err); err != nil {
				return estimator.Result{}, err
			}
			if len(r.Files) == 0 {
				break
			}
			continue
		}
		dist = c.currentDistribution()
		if plan.UseTime {
			budget = sampler.Budget{TimeBudgetMs: plan.TimeBudgetMs, UseTime: true}
		} else {
			budget = sampler.Budget{Count: plan.NextCount}
		}
		r, selErr := c.sampler.Select(c.cat, dist, budget)
		if err := c.runRound(ctx, round, r, selErr); err != nil {
			return estimator.Result{}, err
		}
		if len(r.Files) == 0 {
			break
		}
	}

	return c.final()
}

func (c *Controller) init() error {
	c.p = c.cfg.Datanodes * c.cfg.MaxMapsPerNode
	if c.p <= 0 {
		return errs.NewConfigurationError(errs.ErrClusterSizing)
	}
	c.deadline = time.Now().Add(time.Duration(c.cfg.DeadlineSeconds * float64(time.Second)))
	return nil
}

// planNextRound computes round >= 2's budget: time-percentage mode for
// round 2, remaining-time-minus-overhead mode for round >= 3.
func (c *Controller) planNextRound() (planner.Plan, bool) {
	remain := time.Until(c.deadline)
	var plan planner.Plan
	if c.runCount == 1 {
		plan = planner.SecondRoundTimeBudget(remain, c.lastExtraCost, c.cfg.SampleTimePctg)
	} else {
		plan = planner.RemainingTimeBudget(remain, c.lastExtraCost)
	}
	return plan, plan.Feasible
}

// currentDistribution builds the Sampler's per-stratum distribution D
// from the stats model's current Stats.
func (c *Controller) currentDistribution() map[string]sampler.StratumDist {
	all := c.statsModel.All()
	dist := make(map[string]sampler.StratumDist, len(all))
	for key, s := range all {
		dist[key] = sampler.StratumDist{VarT: s.VarT, VarV: s.VarV, AvgT: s.AvgT, Count: s.Count}
	}
	return dist
}

// runRound executes one round end to end: launches the external job,
// harvests stats, recomputes the statistics model, folds the round's
// reduce outputs into the cross-round accumulator, and advances
// runCount. selErr, if it is a SamplerStarvation, is logged and
// swallowed so the round proceeds with whatever short list the sampler
// managed to draw; any other error from the sampler call would be a
// programming error and is returned as-is.
func (c *Controller) runRound(ctx context.Context, round int, result sampler.Result, selErr error) error {
	if selErr != nil {
		if _, ok := selErr.(*errs.SamplerStarvation); ok {
			c.logger.Warn("sampler starvation, proceeding with short list", zap.Int("round", round), zap.Error(selErr))
			c.metrics.starvations.Inc()
		} else {
			return selErr
		}
	}
	if len(result.Files) == 0 {
		c.logger.Info("round produced no candidates, stopping", zap.Int("round", round))
		return nil
	}

	outputDir := fmt.Sprintf("%s_%d", c.cfg.OutputBaseDir, round)
	inputs := roundrunner.RoundInputs{
		Files:          result.Files,
		OutputDir:      outputDir,
		SplitSizeBytes: c.cfg.SplitSizeBytes,
	}
	start := time.Now()
	if err := c.runner.SubmitRound(ctx, inputs); err != nil {
		return errs.NewRoundSubmissionError(round, err)
	}
	wallTime := time.Since(start)
	c.metrics.roundsTotal.Inc()
	c.metrics.roundDuration.Observe(wallTime.Seconds())

	snap := c.collector.Snapshot()
	c.harvest(round, result, snap, wallTime)

	if c.reportEmptyStrata {
		c.logEmptyStrata(result)
		c.reportEmptyStrata = false
	}

	c.runCount = round
	return nil
}

// harvest recomputes the statistics model from this round's timing
// samples, folds its reduce outputs into the cross-round accumulators,
// applies the var_v floor invariant, and records the round's timing for
// the next planning step's extra-cost computation.
func (c *Controller) harvest(round int, result sampler.Result, snap statscollector.RoundSnapshot, wallTime time.Duration) {
	byStratum := make(map[string][]float64)
	for _, t := range snap.EvStatsSet {
		byStratum[t.Stratum] = append(byStratum[t.Stratum], float64(t.Micros)/1000.0)
	}
	c.statsModel.RecomputeRound(byStratum)

	roundSums := make(map[string]float64)
	roundVarSums := make(map[string]float64)
	roundCounts := make(map[string]int)
	for _, rr := range snap.ReduceResults {
		roundSums[rr.Stratum] += rr.Value
		roundVarSums[rr.Stratum] += rr.Variance
		roundCounts[rr.Stratum]++
	}
	for stratum, n := range roundCounts {
		if n == 0 {
			continue
		}
		meanValue := roundSums[stratum] / float64(n)
		meanVariance := roundVarSums[stratum] / float64(n)
		c.statsModel.SetReducedVariance(stratum, meanVariance)

		acc, ok := c.accumulators[stratum]
		if !ok {
			acc = &stratumAccumulator{}
			c.accumulators[stratum] = acc
		}
		acc.sumMeanValue += meanValue
		acc.sumMeanVariance += meanVariance
		acc.roundsObserved++
	}
	for _, f := range result.Files {
		acc, ok := c.accumulators[f.Stratum]
		if !ok {
			acc = &stratumAccumulator{}
			c.accumulators[f.Stratum] = acc
		}
		acc.sampledCount++
	}

	if substituted := c.statsModel.ApplyVarianceFloor(); substituted > 0 {
		c.logger.Debug("variance floor substitutions", zap.Int("count", substituted))
	}

	var avgRecordMs float64
	var samplesDone int
	for _, vs := range byStratum {
		samplesDone += len(vs)
	}
	if samplesDone > 0 {
		var total float64
		for stratum, vs := range byStratum {
			s, ok := c.statsModel.Stratum(stratum)
			if ok {
				total += s.AvgT * float64(len(vs))
			}
		}
		avgRecordMs = total / float64(samplesDone)
	}
	c.lastRoundWallTime = wallTime
	c.lastExtraCost = planner.ExtraCost(planner.RoundReport{
		WallTime:    wallTime,
		AvgRecordMs: avgRecordMs,
		SamplesDone: samplesDone,
		Slots:       c.p,
	})
}

// logEmptyStrata reports strata present in the catalog but absent from
// this round's selection, when the operator has asked to see them.
func (c *Controller) logEmptyStrata(result sampler.Result) {
	present := make(map[string]struct{}, len(result.Files))
	for _, f := range result.Files {
		present[f.Stratum] = struct{}{}
	}
	var empty []string
	for _, s := range c.cat.Strata {
		if _, ok := present[s]; !ok {
			empty = append(empty, s)
		}
	}
	if len(empty) > 0 {
		c.logger.Info("strata with zero contribution", zap.Strings("strata", empty))
	}
}

// final computes the point estimate and 95% CI across every stratum
// observed over the whole run and logs the result line operators grep
// for.
func (c *Controller) final() (estimator.Result, error) {
	strata := make(map[string]estimator.StratumReduction, len(c.accumulators))
	for key, acc := range c.accumulators {
		if acc.roundsObserved == 0 {
			continue
		}
		strata[key] = estimator.StratumReduction{
			MeanValue:    acc.sumMeanValue / float64(acc.roundsObserved),
			MeanVariance: acc.sumMeanVariance / float64(acc.roundsObserved),
			SampledCount: acc.sampledCount,
		}
	}
	result := estimator.Estimate(strata)
	c.metrics.estimate.Set(result.Estimate)
	c.metrics.estimateError.Set(result.Error)
	c.logger.Info(fmt.Sprintf("RESULT ESTIMATION: sum(avg(Loc)) = %v ± %v (95%% confidence)", result.Estimate, result.Error))
	return result, nil
}
