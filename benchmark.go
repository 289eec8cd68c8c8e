package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/simulation"
	"golang.org/x/crypto/sha3"
)

// BenchmarkResult stores performance test results
type BenchmarkResult struct {
	Workers         int
	TotalSteps      int
	TotalDuration   time.Duration
	StepsPerSec     float64
	DurationPerStep time.Duration
	// Hash of the final vehicle positions; equal across worker counts.
	Outcome string
}

// RunBenchmark runs scenario headless for steps steps on workers workers.
func RunBenchmark(scenario string, steps, workers int) (*BenchmarkResult, error) {
	sim, err := simulation.NewFromPreset(scenario, func(c *simulation.Config) {
		c.TotalSteps = steps
		c.Workers = workers
		c.StepIntervalMs = 0
	}, simulation.WithLogger(logger.NewLoggerTo(io.Discard, logger.LogLevelError, "")))
	if err != nil {
		return nil, err
	}
	defer sim.Close()
	if err := sim.Prepare(context.Background()); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := sim.Run(context.Background()); err != nil {
		return nil, err
	}
	duration := time.Since(start)

	return &BenchmarkResult{
		Workers:         workers,
		TotalSteps:      steps,
		TotalDuration:   duration,
		StepsPerSec:     float64(steps) / duration.Seconds(),
		DurationPerStep: duration / time.Duration(steps),
		Outcome:         positionsDigest(sim.Frame()),
	}, nil
}

// RunBenchmarkSuite compares worker counts on one scenario and checks that
// they agree on the outcome.
func RunBenchmarkSuite(w io.Writer, scenario string, steps int) error {
	fmt.Fprintf(w, "=== Benchmark: %s, %d steps ===\n", scenario, steps)
	var reference string
	for _, workers := range []int{1, 2, 4, 8} {
		r, err := RunBenchmark(scenario, steps, workers)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "workers=%d: %.2f steps/sec, %v per step, outcome %s\n",
			r.Workers, r.StepsPerSec, r.DurationPerStep, r.Outcome)
		if reference == "" {
			reference = r.Outcome
		} else if r.Outcome != reference {
			return fmt.Errorf("workers=%d diverged: outcome %s, want %s", workers, r.Outcome, reference)
		}
	}
	return nil
}

func positionsDigest(frame *simulation.Frame) string {
	if frame == nil {
		return ""
	}
	data, err := json.Marshal(frame.Vehicles)
	if err != nil {
		return ""
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
