// Package stats implements the per-stratum running statistics model:
// two-pass outlier-filtered mean/variance of per-record processing
// time, and the cross-stratum floor invariant applied to the
// reducer-value variance var_v.
package stats

import (
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// outlierSigma is the width of the outlier-acceptance band: a sample is
// accepted only if |v - avg| < outlierSigma * sqrt(var).
const outlierSigma = 2.0

// varianceFloor is the minimum var_v the sampler is allowed to see.
const varianceFloor = 1e-4

// varianceFloorSubstitute is used when even the cross-stratum mean of
// positive var_v values falls below varianceFloor.
const varianceFloorSubstitute = 0.01

// Stats is a read-only snapshot of one stratum's running statistics.
type Stats struct {
	Stratum string
	Count   int
	AvgT    float64
	VarT    float64
	VarV    float64
}

// stratum holds the mutable, round-scoped working state for one stratum.
type stratum struct {
	key      string
	raw      []float64
	rawAvg   float64
	rawVar   float64
	filtered []float64
	avgT     float64
	varT     float64
	varV     float64
}

func newStratum(key string) *stratum { return &stratum{key: key} }

// addValue records a first-pass (pre-filter) sample.
func (s *stratum) addValue(v float64) { s.raw = append(s.raw, v) }

// freeze computes the pre-filter mean/variance used as the outlier-test
// reference. Variance is undefined (and treated as infinite, i.e. accept
// everything) with fewer than two raw samples.
func (s *stratum) freeze() {
	if len(s.raw) == 0 {
		return
	}
	if len(s.raw) == 1 {
		s.rawAvg, s.rawVar = s.raw[0], math.Inf(1)
		return
	}
	s.rawAvg, s.rawVar = stat.MeanVariance(s.raw, nil)
}

// addDiff runs the second-pass outlier test against the frozen first-pass
// avg/var and, if accepted, folds v into the second-pass sufficient
// statistics. Returns whether v was accepted.
func (s *stratum) addDiff(v float64) bool {
	if s.rawVar != math.Inf(1) && math.Abs(v-s.rawAvg) >= outlierSigma*math.Sqrt(s.rawVar) {
		return false
	}
	s.filtered = append(s.filtered, v)
	return true
}

// computeAvg derives avg_t from the accepted (second-pass) samples.
func (s *stratum) computeAvg() float64 {
	if len(s.filtered) == 0 {
		return 0
	}
	if len(s.filtered) == 1 {
		return s.filtered[0]
	}
	avg, _ := stat.MeanVariance(s.filtered, nil)
	return avg
}

// computeVar derives var_t from the accepted (second-pass) samples.
// Undefined (zero) with fewer than two accepted samples.
func (s *stratum) computeVar() float64 {
	if len(s.filtered) < 2 {
		return 0
	}
	_, v := stat.MeanVariance(s.filtered, nil)
	return v
}

func (s *stratum) snapshot() Stats {
	return Stats{
		Stratum: s.key,
		Count:   len(s.filtered),
		AvgT:    s.avgT,
		VarT:    s.varT,
		VarV:    s.varV,
	}
}

// Model owns the per-stratum Stats map. It is safe for concurrent reads
// once a round's RecomputeRound call has returned; RecomputeRound itself
// is expected to run single-threaded between rounds.
type Model struct {
	mu      sync.RWMutex
	strata  map[string]*stratum
	logger  *zap.Logger
}

// New builds an empty Model.
func New(logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{strata: make(map[string]*stratum), logger: logger}
}

// RecomputeRound rewrites Stats(s) for every stratum present in samples
// from that round's raw timing samples, replacing rather than
// accumulating onto whatever Stats(s) carried before, so the adaptive
// weights stay responsive to the most recent round. Strata absent from
// samples this round keep whatever Stats they already carried.
func (m *Model) RecomputeRound(samples map[string][]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, values := range samples {
		if len(values) == 0 {
			continue
		}
		s, ok := m.strata[key]
		if !ok {
			s = newStratum(key)
			m.strata[key] = s
		}
		s.raw = s.raw[:0]
		s.filtered = s.filtered[:0]
		for _, v := range values {
			s.addValue(v)
		}
		s.freeze()
		for _, v := range values {
			if !s.addDiff(v) {
				m.logger.Debug("outlier rejected", zap.String("stratum", key), zap.Float64("value", v))
			}
		}
		s.avgT = s.computeAvg()
		s.varT = s.computeVar()
	}
}

// SetReducedVariance records var_v for stratum key, as supplied
// externally by the estimator (C6) after aggregating a round's reducer
// outputs. Creates the stratum if this is its first observation.
func (m *Model) SetReducedVariance(key string, varV float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strata[key]
	if !ok {
		s = newStratum(key)
		m.strata[key] = s
	}
	s.varV = varV
}

// ApplyVarianceFloor enforces the var_v floor invariant across every
// known stratum: any var_v below varianceFloor is replaced by the
// cross-stratum mean of the positive var_v values, or by
// varianceFloorSubstitute if that mean is itself below the floor.
// Returns the number of strata whose var_v was substituted.
func (m *Model) ApplyVarianceFloor() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	var n int
	for _, s := range m.strata {
		if s.varV > 0 {
			sum += s.varV
			n++
		}
	}
	meanPositive := 0.0
	if n > 0 {
		meanPositive = sum / float64(n)
	}
	substitute := meanPositive
	if substitute < varianceFloor {
		substitute = varianceFloorSubstitute
	}

	substituted := 0
	for _, s := range m.strata {
		if s.varV < varianceFloor {
			s.varV = substitute
			substituted++
		}
	}
	if substituted > 0 {
		m.logger.Warn("var_v floor invariant applied", zap.Int("strata", substituted), zap.Float64("substitute", substitute))
	}
	return substituted
}

// Stratum returns a snapshot of stratum key's current Stats, if known.
func (m *Model) Stratum(key string) (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strata[key]
	if !ok {
		return Stats{}, false
	}
	return s.snapshot(), true
}

// All returns a snapshot of every known stratum's Stats.
func (m *Model) All() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.strata))
	for key, s := range m.strata {
		out[key] = s.snapshot()
	}
	return out
}
