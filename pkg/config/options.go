// Package config (options.go) declares the named configuration options:
// the controller's deadline, sampling, filter, and cluster-sizing knobs.
package config

import (
	"flag"

	"github.com/spf13/viper"
)

// Flag names.
const (
	flagDeadlineSeconds   = "deadline.seconds"
	flagSizePerFolder     = "sample.sizePerFolder"
	flagSampleTimePctg    = "sample.sampleTimePctg"
	flagPolicy            = "sample.policy"
	flagGroundTruth       = "sample.groundTruth"
	flagStartTimeOfDay    = "filter.startTimeOfDay"
	flagEndTimeOfDay      = "filter.endTimeOfDay"
	flagPrintEmptyFolder  = "sample.printEmptyFolder"
	flagMaxMapsPerNode    = "tasktracker.map.tasks.maximum"
	flagEVStatsServerPort = "evstats.serverport"
	flagDatanodes         = "cluster.datanodes"
	flagOutputBaseDir     = "output.baseDir"
	flagSplitSizeBytes    = "split.sizeBytes"
)

// Options holds every named configuration value the Controller needs,
// populated from a *viper.Viper by InitFromViper.
type Options struct {
	DeadlineSeconds  float64
	SizePerFolder    int
	SampleTimePctg   float64
	Policy           int
	GroundTruth      bool
	StartTimeOfDay   int
	EndTimeOfDay     int
	PrintEmptyFolder bool
	MaxMapsPerNode   int
	EVStatsPort      int
	Datanodes        int
	OutputBaseDir    string
	SplitSizeBytes   int64
}

// AddFlags registers every named option on flagSet, with the defaults
// the controller is tuned to run with.
func AddFlags(flagSet *flag.FlagSet) {
	flagSet.Float64(flagDeadlineSeconds, 120, "Total wall-clock budget for the controller loop, in seconds")
	flagSet.Int(flagSizePerFolder, 30, "k for the round-1 uniform-per-stratum draw")
	flagSet.Float64(flagSampleTimePctg, 0.30, "Fraction of post-overhead remaining time used by round 2")
	flagSet.Int(flagPolicy, 0, "Sampling policy: 0=Metropolis-Hastings, 1=proportional-to-stddev, 2=equal size per folder")
	flagSet.Bool(flagGroundTruth, false, "If true, every round uses the uniform-per-stratum draw (skip adaptation)")
	flagSet.Int(flagStartTimeOfDay, 10, "Records outside [start,end) hour range are filtered out upstream")
	flagSet.Int(flagEndTimeOfDay, 16, "Records outside [start,end) hour range are filtered out upstream")
	flagSet.Bool(flagPrintEmptyFolder, false, "Report which strata produced zero contribution after round 1")
	flagSet.Int(flagMaxMapsPerNode, 2, "Per-node map slot count, used to derive the parallel slot count P")
	flagSet.Int(flagEVStatsServerPort, 0, "Port published to workers for stats ingestion (0 = randomized)")
	flagSet.Int(flagDatanodes, 1, "Cluster datanode count, used to derive the parallel slot count P")
	flagSet.String(flagOutputBaseDir, "sampctl-out", "Base directory name for reducer outputs; rounds append _<roundIndex>")
	flagSet.Int64(flagSplitSizeBytes, 128*1024*1024, "Input split size handed to the external round runtime")
}

// InitFromViper populates o from v, after v has absorbed flags parsed
// by a *cobra.Command returned from Viperize(AddFlags).
func (o *Options) InitFromViper(v *viper.Viper) {
	o.DeadlineSeconds = v.GetFloat64(flagDeadlineSeconds)
	o.SizePerFolder = v.GetInt(flagSizePerFolder)
	o.SampleTimePctg = v.GetFloat64(flagSampleTimePctg)
	o.Policy = v.GetInt(flagPolicy)
	o.GroundTruth = v.GetBool(flagGroundTruth)
	o.StartTimeOfDay = v.GetInt(flagStartTimeOfDay)
	o.EndTimeOfDay = v.GetInt(flagEndTimeOfDay)
	o.PrintEmptyFolder = v.GetBool(flagPrintEmptyFolder)
	o.MaxMapsPerNode = v.GetInt(flagMaxMapsPerNode)
	o.EVStatsPort = v.GetInt(flagEVStatsServerPort)
	o.Datanodes = v.GetInt(flagDatanodes)
	o.OutputBaseDir = v.GetString(flagOutputBaseDir)
	o.SplitSizeBytes = v.GetInt64(flagSplitSizeBytes)
}
