// Package roundrunner defines the external-collaborator boundary that
// launches a single processing round on the distributed execution
// substrate. The substrate itself lives outside this process; this
// package only fixes the interface the Controller drives it through.
package roundrunner

import (
	"context"

	"github.com/thsslxf/hadoop-ev/internal/catalog"
)

// RoundInputs is what the Controller hands to the external runtime for
// one round: the sampled files, the output directory
// (`<base>_<roundIndex>`), the split size, and any per-round config
// overrides (e.g. the time-of-day filter window).
type RoundInputs struct {
	Files           []catalog.Record
	OutputDir       string
	SplitSizeBytes  int64
	ConfigOverrides map[string]string
}

// Runner submits one round and blocks until it completes.
type Runner interface {
	SubmitRound(ctx context.Context, in RoundInputs) error
}
