// Package sampler implements stratified sample selection: Strategy A
// (uniform-per-stratum), Strategy B (proportional-to-sigma), and
// Strategy C (Metropolis-Hastings), plus the shared budget/fail-safety
// mechanics they draw on.
package sampler

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/thsslxf/hadoop-ev/internal/catalog"
	"github.com/thsslxf/hadoop-ev/pkg/errs"
)

// Policy selects which strategy drives rounds >= 2. Round 1 (and
// sample.groundTruth) always use the uniform-per-stratum strategy
// regardless of Policy.
type Policy int

const (
	PolicyMH Policy = iota
	PolicyProportional
	PolicyEqualPerFolder
)

// defaultAvgT is substituted for a stratum whose avg_t is not yet known
// (e.g. round 1, or a stratum never sampled), so time-budget quota
// estimation has a usable denominator.
const defaultAvgT = 100.0

// StratumDist is the distribution D the Controller hands the Sampler
// between rounds. VarV is the reducer-value variance that drives
// Strategy B's and Strategy C's stratum weighting (after the floor
// invariant has been applied); AvgT is the per-record processing time
// used to convert a time budget into an expected draw count; VarT is
// the per-record processing-time variance, carried for completeness but
// not itself a sampling weight.
type StratumDist struct {
	VarT  float64
	VarV  float64
	AvgT  float64
	Count int
}

// Budget is either a fixed sample count or an expected-time budget.
type Budget struct {
	Count        int
	TimeBudgetMs float64
	UseTime      bool
}

// Result is the Sampler's output: the selected filenames and their
// total byte size.
type Result struct {
	Files      []catalog.Record
	TotalBytes int64
}

// softAcceptMultiple/terminateMultiple bound the draw loop's rejection
// count as a multiple of the resolved target count: past the soft
// threshold a known stratum is force-accepted even over quota; past the
// hard threshold the loop gives up and returns a short list.
const (
	softAcceptMultiple = 5
	terminateMultiple  = 10
)

// Sampler draws a stratified sample from a catalog using the strategy
// selected by Policy. All randomness flows through the injected
// *rand.Rand so a run is exactly reproducible given the same seed and
// inputs.
type Sampler struct {
	policy Policy
	rng    *rand.Rand
	logger *zap.Logger
}

// New builds a Sampler. rng must not be nil; callers own its seeding.
func New(policy Policy, rng *rand.Rand, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{policy: policy, rng: rng, logger: logger}
}

// SelectUniform runs Strategy A: assigns var_t := 1 to every known
// stratum and falls through to Strategy B with a count target of
// k * |S|. Used for round 1, for sample.groundTruth, and for
// PolicyEqualPerFolder.
func (s *Sampler) SelectUniform(cat *catalog.Catalog, sizePerFolder int) (Result, error) {
	if len(cat.Strata) == 0 {
		return Result{}, nil
	}
	dist := make(map[string]StratumDist, len(cat.Strata))
	for _, stratum := range cat.Strata {
		dist[stratum] = StratumDist{VarT: 1, VarV: 1, AvgT: defaultAvgT}
	}
	budget := Budget{Count: sizePerFolder * len(cat.Strata)}
	return s.selectProportional(cat, dist, budget)
}

// Select runs the strategy implied by s.policy for rounds >= 2: MH by
// default, proportional-to-sigma for PolicyProportional, or uniform for
// PolicyEqualPerFolder.
func (s *Sampler) Select(cat *catalog.Catalog, dist map[string]StratumDist, budget Budget) (Result, error) {
	switch s.policy {
	case PolicyEqualPerFolder:
		perStratum := budget.Count
		if len(cat.Strata) > 0 && !budget.UseTime {
			perStratum = budget.Count / len(cat.Strata)
		}
		return s.SelectUniform(cat, max(1, perStratum))
	case PolicyProportional:
		return s.selectProportional(cat, dist, budget)
	default:
		return s.selectMH(cat, dist, budget)
	}
}

// resolvedTarget computes the scalar "budget" fail-safety thresholds
// scale against: the count itself in count mode, or a quota-count
// estimate derived from the time budget and a variance-weighted average
// per-record time in time mode.
func resolvedTarget(cat *catalog.Catalog, dist map[string]StratumDist, budget Budget) float64 {
	if !budget.UseTime {
		return float64(budget.Count)
	}
	var weightSum, weightedInv float64
	for _, stratum := range cat.Strata {
		d := dist[stratum]
		v := d.VarV
		if v <= 0 {
			v = 1
		}
		avg := d.AvgT
		if avg <= 0 {
			avg = defaultAvgT
		}
		w := math.Sqrt(v)
		weightSum += w
		weightedInv += w / avg
	}
	if weightedInv <= 0 {
		return 0
	}
	avgWeighted := weightSum / weightedInv
	if avgWeighted <= 0 {
		return 0
	}
	return budget.TimeBudgetMs / avgWeighted
}

func quotas(cat *catalog.Catalog, dist map[string]StratumDist, target float64) map[string]float64 {
	var sumSqrt float64
	sqrtVar := make(map[string]float64, len(cat.Strata))
	for _, stratum := range cat.Strata {
		v := dist[stratum].VarV
		if v <= 0 {
			v = 1
		}
		sq := math.Sqrt(v)
		sqrtVar[stratum] = sq
		sumSqrt += sq
	}
	q := make(map[string]float64, len(cat.Strata))
	if sumSqrt <= 0 {
		return q
	}
	for _, stratum := range cat.Strata {
		q[stratum] = target * sqrtVar[stratum] / sumSqrt
	}
	return q
}

// budgetExhausted reports whether the budget has been satisfied: a
// count reached, or a cumulative per-record time estimate at or past
// the time budget.
func budgetExhausted(budget Budget, selectedCount int, cumulativeTimeMs float64) bool {
	if budget.UseTime {
		return cumulativeTimeMs >= budget.TimeBudgetMs
	}
	return selectedCount >= budget.Count
}

// selectProportional implements Strategy B: rejection sampling against
// per-stratum quotas, with the 5x/10x fail-safety caps.
func (s *Sampler) selectProportional(cat *catalog.Catalog, dist map[string]StratumDist, budget Budget) (Result, error) {
	if cat.Len() == 0 || len(cat.Strata) == 0 {
		return Result{}, nil
	}
	target := resolvedTarget(cat, dist, budget)
	quota := quotas(cat, dist, target)
	resolved := int(math.Ceil(target))
	if resolved < 1 {
		resolved = 1
	}

	var selected []catalog.Record
	var totalBytes int64
	var cumulativeTimeMs float64
	rejections := 0 // total rejections this call; never reset (bounds the loop)

	for !budgetExhausted(budget, len(selected), cumulativeTimeMs) {
		if rejections > terminateMultiple*resolved {
			break
		}
		rec := cat.Records[s.rng.Intn(cat.Len())]
		q, known := quota[rec.Stratum]
		accept := known && q >= 1
		if !accept && known && q > -1 && rejections > softAcceptMultiple*resolved {
			accept = true
		}
		if !accept {
			rejections++
			continue
		}
		if known {
			quota[rec.Stratum] = q - 1
		}
		selected = append(selected, rec)
		totalBytes += rec.Bytes
		cumulativeTimeMs += dist[rec.Stratum].AvgT
	}

	if len(selected) < int(target) {
		s.logger.Warn("sampler starvation", zap.Int("requested", int(target)), zap.Int("selected", len(selected)))
		return Result{Files: selected, TotalBytes: totalBytes}, errs.NewSamplerStarvation(int(target), len(selected))
	}
	return Result{Files: selected, TotalBytes: totalBytes}, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
