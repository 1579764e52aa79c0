// Command sampctl runs the adaptive sampling controller: given a file
// catalog and a deadline, it samples, launches rounds on an external
// runtime, and reports a stratified-sum estimate with a 95% confidence
// interval.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/thsslxf/hadoop-ev/internal/catalog"
	"github.com/thsslxf/hadoop-ev/internal/controller"
	"github.com/thsslxf/hadoop-ev/internal/roundrunner"
	"github.com/thsslxf/hadoop-ev/internal/sampler"
	"github.com/thsslxf/hadoop-ev/internal/stats"
	"github.com/thsslxf/hadoop-ev/internal/statscollector"
	"github.com/thsslxf/hadoop-ev/pkg/config"
)

func main() {
	v, command := config.Viperize(config.AddFlags)
	command.Use = "sampctl [input paths...]"
	command.Short = "Adaptive sampling controller for a distributed batch-processing cluster"
	command.Args = cobra.MinimumNArgs(1)
	command.RunE = func(_ *cobra.Command, args []string) error {
		return run(v, args)
	}

	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(v *viper.Viper, inputs []string) error {
	opts := &config.Options{}
	opts.InitFromViper(v)

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cat := loadCatalog(logger, inputs)

	coll := statscollector.New(logger)
	server := statscollector.NewServer(coll, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	statsModel := stats.New(logger)
	smp := sampler.New(sampler.Policy(opts.Policy), rand.New(rand.NewSource(time.Now().UnixNano())), logger)
	runner := &localRunner{logger: logger}

	cfg := controller.Config{
		DeadlineSeconds:  opts.DeadlineSeconds,
		SizePerFolder:    opts.SizePerFolder,
		SampleTimePctg:   opts.SampleTimePctg,
		Policy:           sampler.Policy(opts.Policy),
		GroundTruth:      opts.GroundTruth,
		PrintEmptyFolder: opts.PrintEmptyFolder,
		Datanodes:        opts.Datanodes,
		MaxMapsPerNode:   opts.MaxMapsPerNode,
		OutputBaseDir:    opts.OutputBaseDir,
		SplitSizeBytes:   opts.SplitSizeBytes,
	}
	c := controller.New(cfg, cat, statsModel, coll, smp, runner, logger)

	server.MountMetrics(c.Registry())
	if err := server.Start(opts.EVStatsPort); err != nil {
		return fmt.Errorf("starting stats server: %w", err)
	}
	logger.Info("stats server listening", zap.Int("port", server.Port()))

	result, err := c.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("sum(avg(Loc)) = %v ± %v (95%% confidence)\n", result.Estimate, result.Error)
	return nil
}

// loadCatalog walks each input path's tree and builds a catalog.Catalog
// from the files it finds. Record-level I/O codecs are out of scope
// here; only the path and size are needed to drive sampling.
func loadCatalog(logger *zap.Logger, inputs []string) *catalog.Catalog {
	var records []catalog.Record
	for _, root := range inputs {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			records = append(records, catalog.NewRecord(p, info.Size()))
			return nil
		})
		if err != nil {
			logger.Warn("failed to walk input path", zap.String("path", root), zap.Error(err))
		}
	}
	return catalog.New(records)
}

// localRunner is the process's own stand-in for the external
// distributed execution substrate, which this module does not
// implement. It materializes the output directory and reports success
// immediately, so a single-process run of sampctl can exercise the
// full controller loop without a real cluster.
type localRunner struct {
	logger *zap.Logger
}

func (r *localRunner) SubmitRound(_ context.Context, in roundrunner.RoundInputs) error {
	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return err
	}
	r.logger.Info("round submitted to local runner",
		zap.String("outputDir", in.OutputDir),
		zap.Int("files", len(in.Files)))
	return nil
}
