// Package statscollector implements the round-scoped stats collector:
// thread-safe ingestion of per-record timing samples and per-stratum
// reduce outputs pushed by worker tasks, plus the HTTP server that
// exposes the ingestion protocol to them.
package statscollector

import (
	"go.uber.org/zap"

	"github.com/thsslxf/hadoop-ev/pkg/errs"
)

// TimeSample is one ADD_TIME push: a per-record timing observation for a
// stratum.
type TimeSample struct {
	Stratum   string
	RecordKey string
	Micros    int64
}

// ReduceResult is one ADD_REDUCE push: a stratum's contributed reducer
// value and its variance.
type ReduceResult struct {
	Stratum  string
	Value    float64
	Variance float64
}

// TaskTiming is one ADD_MAPPER_TIME / ADD_REDUCER_TIME push.
type TaskTiming struct {
	StartMs    int64
	DurationMs int64
}

// RoundSnapshot is the immutable, point-in-time copy of a round's
// collections, taken by Collector.Snapshot.
type RoundSnapshot struct {
	EvStatsSet    []TimeSample
	ReduceResults []ReduceResult
	MapperTimes   []TaskTiming
	ReducerTimes  []TaskTiming
}

// Collector owns the round-scoped collections: evStatsSet, reduceResults,
// mapperTimes/reducerTimes. Each collection is protected by its own
// mutex so that concurrent
// ingestion from many worker connections never blocks on an unrelated
// collection; readers (the Controller) take the same lock to snapshot
// and clear.
type Collector struct {
	logger *zap.Logger

	timeMu    lockedSlice[TimeSample]
	reduceMu  lockedSlice[ReduceResult]
	mapperMu  lockedSlice[TaskTiming]
	reducerMu lockedSlice[TaskTiming]
}

// New builds an empty Collector.
func New(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// AddTime ingests one ADD_TIME push. Empty stratum/recordKey is dropped
// with a warning.
func (c *Collector) AddTime(stratum, recordKey string, micros int64) error {
	if stratum == "" || recordKey == "" {
		err := errs.NewStatsIngestError("ADD_TIME with empty stratum or recordKey")
		c.logger.Warn(err.Error())
		return err
	}
	c.timeMu.append(TimeSample{Stratum: stratum, RecordKey: recordKey, Micros: micros})
	return nil
}

// AddReduce ingests one ADD_REDUCE push: parallel slices of stratum,
// value, variance. A length mismatch, or an empty submission, is
// dropped with a warning.
func (c *Collector) AddReduce(strata []string, values []float64, variances []float64) error {
	if len(strata) == 0 || len(values) == 0 || len(variances) == 0 {
		err := errs.NewStatsIngestError("ADD_REDUCE with empty payload")
		c.logger.Warn(err.Error())
		return err
	}
	if len(strata) != len(values) || len(strata) != len(variances) {
		err := errs.NewStatsIngestError("ADD_REDUCE with mismatched slice lengths")
		c.logger.Warn(err.Error())
		return err
	}
	for i, s := range strata {
		if s == "" {
			continue
		}
		c.reduceMu.append(ReduceResult{Stratum: s, Value: values[i], Variance: variances[i]})
	}
	return nil
}

// AddMapperTime ingests one ADD_MAPPER_TIME push.
func (c *Collector) AddMapperTime(startMs, durationMs int64) {
	c.mapperMu.append(TaskTiming{StartMs: startMs, DurationMs: durationMs})
}

// AddReducerTime ingests one ADD_REDUCER_TIME push.
func (c *Collector) AddReducerTime(startMs, durationMs int64) {
	c.reducerMu.append(TaskTiming{StartMs: startMs, DurationMs: durationMs})
}

// Snapshot reads and clears all four round-scoped collections in one
// call: after a round's stats are consumed, the collections are emptied
// so the next round's ingestion starts from a clean slate rather than
// mixing with stale data from the round before.
func (c *Collector) Snapshot() RoundSnapshot {
	return RoundSnapshot{
		EvStatsSet:    c.timeMu.drain(),
		ReduceResults: c.reduceMu.drain(),
		MapperTimes:   c.mapperMu.drain(),
		ReducerTimes:  c.reducerMu.drain(),
	}
}
