// Package errs defines the typed error kinds the sampling controller
// surfaces to callers or recovers from locally.
package errs

import (
	"errors"
	"fmt"
)

// Fatal kinds. A caller must treat these as terminal: the controller
// cannot make progress and stops.
var (
	// ErrClusterSizing is returned when the configured parallel slot
	// count (datanodes * maxMapsPerNode) is not positive.
	ErrClusterSizing = errors.New("configuration: cluster slot count must be positive")
)

// ConfigurationError wraps a fatal configuration problem detected at
// controller INIT.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("configuration error: %v", e.Err) }
func (e *ConfigurationError) Unwrap() error  { return e.Err }

// NewConfigurationError wraps err as a ConfigurationError.
func NewConfigurationError(err error) *ConfigurationError {
	return &ConfigurationError{Err: err}
}

// RoundSubmissionError wraps a fatal failure to launch a round on the
// external job runtime. No retries are attempted.
type RoundSubmissionError struct {
	Round int
	Err   error
}

func (e *RoundSubmissionError) Error() string {
	return fmt.Sprintf("round submission error: round %d: %v", e.Round, e.Err)
}
func (e *RoundSubmissionError) Unwrap() error { return e.Err }

// NewRoundSubmissionError wraps err as a RoundSubmissionError for round r.
func NewRoundSubmissionError(round int, err error) *RoundSubmissionError {
	return &RoundSubmissionError{Round: round, Err: err}
}

// StatsIngestError marks a malformed or empty push to the stats
// collector. It is always recovered locally: logged and dropped.
type StatsIngestError struct {
	Reason string
}

func (e *StatsIngestError) Error() string { return "stats ingest error: " + e.Reason }

// NewStatsIngestError builds a StatsIngestError with the given reason.
func NewStatsIngestError(reason string) *StatsIngestError {
	return &StatsIngestError{Reason: reason}
}

// SamplerStarvation marks that the sampler could not draw enough
// acceptable candidates within its rejection caps. It is informational:
// the controller proceeds with whatever short list the sampler returned;
// an empty list is not submitted as a round.
type SamplerStarvation struct {
	Requested int
	Selected  int
}

func (e *SamplerStarvation) Error() string {
	return fmt.Sprintf("sampler starvation: requested %d got %d", e.Requested, e.Selected)
}

// NewSamplerStarvation builds a SamplerStarvation for a draw that asked
// for requested items and produced selected.
func NewSamplerStarvation(requested, selected int) *SamplerStarvation {
	return &SamplerStarvation{Requested: requested, Selected: selected}
}
