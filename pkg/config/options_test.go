package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagDefaults(t *testing.T) {
	v, command := Viperize(AddFlags)
	command.ParseFlags([]string{})
	opts := Options{}

	opts.InitFromViper(v)

	assert.Equal(t, 120.0, opts.DeadlineSeconds)
	assert.Equal(t, 30, opts.SizePerFolder)
	assert.Equal(t, 0.30, opts.SampleTimePctg)
	assert.Equal(t, 0, opts.Policy)
	assert.Equal(t, false, opts.GroundTruth)
	assert.Equal(t, 10, opts.StartTimeOfDay)
	assert.Equal(t, 16, opts.EndTimeOfDay)
	assert.Equal(t, false, opts.PrintEmptyFolder)
	assert.Equal(t, 2, opts.MaxMapsPerNode)
	assert.Equal(t, 0, opts.EVStatsPort)
	assert.Equal(t, 1, opts.Datanodes)
}

func TestOptionsWithFlags(t *testing.T) {
	v, command := Viperize(AddFlags)
	command.ParseFlags([]string{
		"--deadline.seconds=60",
		"--sample.sizePerFolder=10",
		"--sample.sampleTimePctg=0.5",
		"--sample.policy=1",
		"--sample.groundTruth=true",
		"--filter.startTimeOfDay=8",
		"--filter.endTimeOfDay=20",
		"--sample.printEmptyFolder=true",
		"--tasktracker.map.tasks.maximum=4",
		"--evstats.serverport=9999",
		"--cluster.datanodes=8",
	})
	opts := &Options{}

	opts.InitFromViper(v)

	assert.Equal(t, 60.0, opts.DeadlineSeconds)
	assert.Equal(t, 10, opts.SizePerFolder)
	assert.Equal(t, 0.5, opts.SampleTimePctg)
	assert.Equal(t, 1, opts.Policy)
	assert.Equal(t, true, opts.GroundTruth)
	assert.Equal(t, 8, opts.StartTimeOfDay)
	assert.Equal(t, 20, opts.EndTimeOfDay)
	assert.Equal(t, true, opts.PrintEmptyFolder)
	assert.Equal(t, 4, opts.MaxMapsPerNode)
	assert.Equal(t, 9999, opts.EVStatsPort)
	assert.Equal(t, 8, opts.Datanodes)
}
