package stats

import (
	"math"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestRecomputeRoundCountMatchesOutlierFilter(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	samples := []float64{100, 102, 98, 101, 99, 100, 103, 97, 100, 10000}
	m.RecomputeRound(map[string][]float64{"A": samples})

	got, ok := m.Stratum("A")
	if !ok {
		t.Fatal("expected stratum A to be present")
	}

	avg, variance := 0.0, 0.0
	for _, v := range samples {
		avg += v
	}
	avg /= float64(len(samples))
	for _, v := range samples {
		variance += (v - avg) * (v - avg)
	}
	variance /= float64(len(samples) - 1)

	wantCount := 0
	for _, v := range samples {
		if math.Abs(v-avg) < 2*math.Sqrt(variance) {
			wantCount++
		}
	}
	if got.Count != wantCount {
		t.Errorf("Count = %d, want %d", got.Count, wantCount)
	}
	if got.Count >= len(samples) {
		t.Errorf("expected the 10000 outlier to be rejected, count = %d", got.Count)
	}
}

func TestOutlierRejectionBarelyMovesAverage(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	clean := make([]float64, 0, 50)
	for i := 0; i < 50; i++ {
		clean = append(clean, 100+float64(i%3))
	}
	withOutlier := append(append([]float64{}, clean...), 100*100)

	m.RecomputeRound(map[string][]float64{
		"clean":   clean,
		"outlier": withOutlier,
	})

	cleanStats, _ := m.Stratum("clean")
	outlierStats, _ := m.Stratum("outlier")

	if outlierStats.Count != len(clean) {
		t.Errorf("expected the injected outlier to be excluded from count, got %d want %d", outlierStats.Count, len(clean))
	}
	delta := math.Abs(outlierStats.AvgT-cleanStats.AvgT) / cleanStats.AvgT
	if delta >= 0.01 {
		t.Errorf("avg_t changed by %.4f%%, want < 1%%", delta*100)
	}
}

func TestRoundRewriteIsNotCumulative(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	m.RecomputeRound(map[string][]float64{"A": {9, 10, 11}})
	first, _ := m.Stratum("A")

	m.RecomputeRound(map[string][]float64{"A": {19, 20, 21}})
	second, _ := m.Stratum("A")

	if first.AvgT == second.AvgT {
		t.Fatalf("expected round 2 to overwrite round 1's avg_t")
	}
	if second.AvgT != 20 {
		t.Errorf("AvgT = %v, want 20 (not blended with round 1)", second.AvgT)
	}
}

func TestVarianceFloorInvariant(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	m.SetReducedVariance("A", 0.5)
	m.SetReducedVariance("B", 0.0)
	m.SetReducedVariance("C", 1e-6)

	substituted := m.ApplyVarianceFloor()
	if substituted != 2 {
		t.Fatalf("substituted = %d, want 2", substituted)
	}

	all := m.All()
	for key, s := range all {
		if s.VarV < varianceFloor {
			t.Errorf("stratum %s still has var_v=%v below floor", key, s.VarV)
		}
	}
	wantSubstitute := (0.5 + 1e-6) / 2
	if all["B"].VarV != wantSubstitute {
		t.Errorf("expected B to be substituted with the cross-stratum mean of positive var_v (A's 0.5 and C's 1e-6, i.e. %v), got %v", wantSubstitute, all["B"].VarV)
	}
}

func TestVarianceFloorFallsBackToConstant(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	m.SetReducedVariance("A", 1e-6)
	m.SetReducedVariance("B", 1e-7)

	m.ApplyVarianceFloor()

	all := m.All()
	for key, s := range all {
		if s.VarV != varianceFloorSubstitute {
			t.Errorf("stratum %s VarV = %v, want fallback constant %v", key, s.VarV, varianceFloorSubstitute)
		}
	}
}

func TestStrataAbsentFromRoundAreUntouched(t *testing.T) {
	m := New(zaptest.NewLogger(t))
	m.RecomputeRound(map[string][]float64{"A": {10, 11, 12}})
	before, _ := m.Stratum("A")

	m.RecomputeRound(map[string][]float64{"B": {50, 51, 52}})
	after, _ := m.Stratum("A")

	if before != after {
		t.Errorf("stratum A changed after a round with no samples for it: before=%+v after=%+v", before, after)
	}
}
