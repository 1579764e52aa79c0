package roundrunner

import (
	"context"
	"sync"

	"github.com/thsslxf/hadoop-ev/internal/statscollector"
)

// Fake is an in-memory Runner for controller tests: instead of
// launching anything, it feeds a statscollector.Collector exactly as a
// real worker round would, then returns a scripted error (if any).
// Exported (not _test.go) so internal/controller's tests can import it
// directly, the way the teacher exports its storage mocks.
type Fake struct {
	mu        sync.Mutex
	collector *statscollector.Collector
	script    []RoundScript
	calls     []RoundInputs
}

// RoundScript is one scripted round's worker contributions and
// outcome: AddTime/AddReduce payloads pushed into the collector before
// SubmitRound returns Err.
type RoundScript struct {
	Times   []TimeSample
	Reduces []ReduceSample
	Err     error
}

// TimeSample mirrors statscollector.AddTime's arguments.
type TimeSample struct {
	Stratum   string
	RecordKey string
	Micros    int64
}

// ReduceSample mirrors statscollector.AddReduce's arguments.
type ReduceSample struct {
	Strata    []string
	Values    []float64
	Variances []float64
}

// NewFake builds a Fake bound to collector, fed by the given per-round
// scripts in order. Calls past len(script) repeat the last entry.
func NewFake(collector *statscollector.Collector, script ...RoundScript) *Fake {
	return &Fake{collector: collector, script: script}
}

// SubmitRound implements Runner.
func (f *Fake) SubmitRound(ctx context.Context, in RoundInputs) error {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, in)
	f.mu.Unlock()

	if len(f.script) == 0 {
		return nil
	}
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	round := f.script[idx]
	for _, ts := range round.Times {
		_ = f.collector.AddTime(ts.Stratum, ts.RecordKey, ts.Micros)
	}
	for _, rs := range round.Reduces {
		_ = f.collector.AddReduce(rs.Strata, rs.Values, rs.Variances)
	}
	return round.Err
}

// Calls returns the RoundInputs seen so far, in call order.
func (f *Fake) Calls() []RoundInputs {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RoundInputs, len(f.calls))
	copy(out, f.calls)
	return out
}
