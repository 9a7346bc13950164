package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/isaigordeev/saxsrs/runtime"
	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

const version = "v0.1.0"

// Config holds the flags this CLI demo accepts. Like the teacher's
// examples/orion-pipeline, no flag parsing leaks into the library
// packages — only main touches the flag package.
type Config struct {
	InputDir    string
	WorkerCount int
	MaxStages   uint
	Checkpoints string
	Debug       bool
}

func main() {
	config := parseFlags()

	logLevel := slog.LevelInfo
	if config.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	printBanner(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, cancelling batch")
		cancel()
	}()

	if err := runBatch(ctx, config, logger); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}

	logger.Info("batch finished")
}

func parseFlags() Config {
	var config Config
	flag.StringVar(&config.InputDir, "input", "", "directory of *.csv samples, one file per sample (columns: q,intensity,intensity_err) (required)")
	flag.IntVar(&config.WorkerCount, "workers", 0, "worker goroutine count (0 = host parallelism)")
	var maxStages int
	flag.IntVar(&maxStages, "max-stages", 0, "cap on stages any one sample may traverse (0 = unlimited)")
	flag.StringVar(&config.Checkpoints, "checkpoints", "", "comma-separated stage numbers every sample must reach before any proceeds")
	flag.BoolVar(&config.Debug, "debug", false, "enable debug logging")
	flag.Parse()

	if config.InputDir == "" {
		fmt.Fprintf(os.Stderr, "Error: --input is required\n")
		flag.Usage()
		os.Exit(1)
	}
	if maxStages < 0 {
		fmt.Fprintf(os.Stderr, "Error: --max-stages must be >= 0\n")
		os.Exit(1)
	}
	config.MaxStages = uint(maxStages)

	return config
}

func runBatch(ctx context.Context, config Config, logger *slog.Logger) error {
	checkpoints, err := parseCheckpoints(config.Checkpoints)
	if err != nil {
		return fmt.Errorf("invalid --checkpoints: %w", err)
	}

	samples, err := loadSamples(config.InputDir)
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	logger.Info("samples loaded", "count", len(samples), "dir", config.InputDir)

	rt := runtime.New(stage.NewDefaultRegistry(), runtime.Config{
		WorkerCount: config.WorkerCount,
		MaxStages:   uint32(config.MaxStages),
		Checkpoints: checkpoints,
		Logger:      logger,
	})

	for _, s := range samples {
		if err := rt.AddSample(s); err != nil {
			return fmt.Errorf("failed to add sample %q: %w", s.ID(), err)
		}
	}

	start := time.Now()
	complete := make(chan error, 1)
	err = rt.RunAsync(ctx, runtime.Hooks{
		OnProgress: func(stageID stage.ID, completed, total uint64) {
			logger.Debug("progress", "stage", stageID, "completed", completed, "total", total)
		},
		OnSample: func(s sample.Sample, m sample.FlowMetadata, err error) {
			if err != nil {
				logger.Warn("sample failed", "sample", s.ID(), "error", err)
				return
			}
			logger.Debug("sample resting", "sample", s.ID(), "stage_num", s.StageNum())
		},
		OnComplete: func(status error) { complete <- status },
	})
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	select {
	case status := <-complete:
		if status != nil && status != runtime.ErrCancelled {
			return status
		}
		if status == runtime.ErrCancelled {
			logger.Warn("batch cancelled", "elapsed", time.Since(start))
		}
	case <-ctx.Done():
		<-complete
	}

	printSummary(rt, logger, time.Since(start))
	return nil
}

func parseCheckpoints(spec string) ([]uint32, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

// loadSamples reads every *.csv file in dir as one sample, with the
// file's base name (minus extension) as the sample ID. Each row is
// q,intensity,intensity_err.
func loadSamples(dir string) ([]sample.Sample, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}

	samples := make([]sample.Sample, 0, len(matches))
	for _, path := range matches {
		s, err := loadSampleFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func loadSampleFile(path string) (sample.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return sample.Sample{}, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return sample.Sample{}, err
	}

	q := make([]float64, 0, len(rows))
	intensity := make([]float64, 0, len(rows))
	intensityErr := make([]float64, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return sample.Sample{}, fmt.Errorf("row %d: want 3 columns, got %d", i, len(row))
		}
		qv, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return sample.Sample{}, fmt.Errorf("row %d: q: %w", i, err)
		}
		iv, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return sample.Sample{}, fmt.Errorf("row %d: intensity: %w", i, err)
		}
		ev, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return sample.Sample{}, fmt.Errorf("row %d: intensity_err: %w", i, err)
		}
		q = append(q, qv)
		intensity = append(intensity, iv)
		intensityErr = append(intensityErr, ev)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return sample.New(id, q, intensity, intensityErr)
}

func printSummary(rt runtime.Runtime, logger *slog.Logger, elapsed time.Duration) {
	entries, err := rt.Regroup(0)
	if err != nil {
		logger.Error("failed to regroup for summary", "error", err)
		return
	}
	failed := rt.FailedSamples()

	fmt.Println()
	fmt.Println("Batch summary:")
	fmt.Printf("  Elapsed:   %v\n", elapsed)
	fmt.Printf("  Completed: %d\n", rt.CompletedCount())
	fmt.Printf("  Resting:   %d\n", len(entries))
	fmt.Printf("  Failed:    %d\n", len(failed))
	for _, e := range failed {
		fmt.Printf("    - %-20s stage=%-12s err=%v\n", e.Sample.ID(), e.StageID, e.Err)
	}
}

func printBanner(config Config) {
	fmt.Println("===================================================================")
	fmt.Printf(" saxsbatch %s — SAXS batch scheduler CLI demo\n", version)
	fmt.Println("===================================================================")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Input dir:    %s\n", config.InputDir)
	fmt.Printf("  Workers:      %d (0 = host parallelism)\n", config.WorkerCount)
	fmt.Printf("  Max stages:   %d (0 = unlimited)\n", config.MaxStages)
	fmt.Printf("  Checkpoints:  %s\n", emptyDash(config.Checkpoints))
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Println("  Background -> Cut -> Filter -> FindPeak <-> ProcessPeak -> Phase")
	fmt.Println()
	fmt.Println("Press Ctrl+C to cancel gracefully")
	fmt.Println("===================================================================")
	fmt.Println()
}

func emptyDash(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
