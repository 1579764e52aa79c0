// Package planner chooses the next round's sample size or time budget
// from the previous round's measured wall time, reported per-record
// cost, the parallel slot count, and measured round overhead.
package planner

import (
	"math"
	"time"
)

// RoundReport is what the Controller knows after a round finishes.
type RoundReport struct {
	WallTime    time.Duration // T_r
	AvgRecordMs float64       // tau_r
	SamplesDone int           // n_r
	Slots       int           // P
}

// ExtraCost computes the non-map overhead of a round (shuffle/reduce/
// launch): the wall time left over once the measured map-only cost is
// subtracted out.
//
//	extra_r = T_r - tau_r * n_r / P
func ExtraCost(r RoundReport) time.Duration {
	if r.Slots <= 0 {
		return r.WallTime
	}
	mapOnly := r.AvgRecordMs * float64(r.SamplesDone) / float64(r.Slots)
	return r.WallTime - time.Duration(mapOnly)*time.Millisecond
}

// Plan is what the Planner hands back to the Controller: either a fixed
// sample count (NextCount's count-mode prediction) or a time budget
// (SecondRoundTimeBudget for round 2, RemainingTimeBudget for round >= 3).
type Plan struct {
	NextCount    int
	TimeBudgetMs float64
	UseTime      bool
	Feasible     bool
}

// NextCount predicts the count-mode sample size for the next round from
// the time remaining after overhead, the per-record cost, and the
// parallel slot count:
//
//	remain = deadline - now
//	next_n = floor( (remain - extra_r) / tau_r * P )
//
// If next_n <= 0 the plan is infeasible and the Controller must
// terminate its loop.
func NextCount(remain time.Duration, extra time.Duration, avgRecordMs float64, slots int) Plan {
	if avgRecordMs <= 0 {
		return Plan{Feasible: false}
	}
	usable := remain - extra
	nextN := math.Floor(usable.Seconds() * 1000 / avgRecordMs * float64(slots))
	if nextN <= 0 {
		return Plan{Feasible: false}
	}
	return Plan{NextCount: int(nextN), Feasible: true}
}

// SecondRoundTimeBudget computes round 2's time-percentage cap: the
// configured fraction of the remaining deadline, minus the previous
// round's overhead.
//
//	budget_time := sample2ndRoundPctg * remain - extra_r
func SecondRoundTimeBudget(remain time.Duration, extra time.Duration, pctg float64) Plan {
	budgetMs := pctg*float64(remain.Milliseconds()) - float64(extra.Milliseconds())
	if budgetMs <= 0 {
		return Plan{Feasible: false}
	}
	return Plan{TimeBudgetMs: budgetMs, UseTime: true, Feasible: true}
}

// RemainingTimeBudget computes round >= 3's time budget: whatever is
// left of the deadline once the previous round's overhead is subtracted.
//
//	budget_time := remain - extra_r
func RemainingTimeBudget(remain time.Duration, extra time.Duration) Plan {
	budgetMs := float64(remain.Milliseconds()) - float64(extra.Milliseconds())
	if budgetMs <= 0 {
		return Plan{Feasible: false}
	}
	return Plan{TimeBudgetMs: budgetMs, UseTime: true, Feasible: true}
}
