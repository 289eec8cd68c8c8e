package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Readm/street_sim/hooks"
	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/plugins/visualization"
	"github.com/Readm/street_sim/simulation"
)

type options struct {
	headless  bool
	benchmark bool
	scenario  string
	steps     int
	workers   int
	seed      uint64
	addr      string
	logLevel  string
	plugins   string
}

func main() {
	var opts options
	flag.BoolVar(&opts.headless, "headless", false, "Run without the web server and print statistics")
	flag.BoolVar(&opts.benchmark, "benchmark", false, "Compare worker counts on the selected scenario")
	flag.StringVar(&opts.scenario, "scenario", "grid", "Predefined scenario (single_edge, line, cross, grid)")
	flag.IntVar(&opts.steps, "steps", 0, "Number of steps (0 keeps the scenario default)")
	flag.IntVar(&opts.workers, "workers", 0, "Worker goroutines per phase (0 keeps the scenario default)")
	flag.Uint64Var(&opts.seed, "seed", 0, "Global random seed (0 keeps the scenario default)")
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:8080", "Web server listen address")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (error, warn, info, debug)")
	flag.StringVar(&opts.plugins, "plugins", "", "Comma-separated global plugins (trace, progress)")
	flag.Parse()

	logger.SetLogger(logger.NewLogger(logger.ParseLevel(opts.logLevel), "[STREET] "))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case opts.benchmark:
		steps := opts.steps
		if steps == 0 {
			steps = 500
		}
		err = RunBenchmarkSuite(os.Stdout, opts.scenario, steps)
	case opts.headless:
		err = runHeadless(ctx, opts, os.Stdout)
	default:
		err = runWeb(ctx, opts)
	}
	if err != nil {
		logger.GetLogger().Errorf("%v", err)
		os.Exit(1)
	}
}

func (o options) override(cfg *simulation.Config) {
	if o.steps > 0 {
		cfg.TotalSteps = o.steps
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
	if o.plugins != "" {
		for _, name := range strings.Split(o.plugins, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Plugins = append(cfg.Plugins, name)
			}
		}
	}
}

// runHeadless runs the scenario to completion and prints its statistics.
func runHeadless(ctx context.Context, opts options, out io.Writer) error {
	sim, err := simulation.NewFromPreset(opts.scenario, opts.override)
	if err != nil {
		return err
	}
	defer sim.Close()
	if err := sim.Prepare(ctx); err != nil {
		return err
	}
	runErr := sim.Run(ctx)
	PrintStats(out, sim.Frame())
	return runErr
}

// runWeb serves the simulation until ctx is done. Control requests reach
// the run loop through the shared command queue.
func runWeb(ctx context.Context, opts options) error {
	queue := simulation.NewCommandQueue(10)
	vis := NewWebVisualizer(opts.addr, queue)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := vis.Close(shutdownCtx); err != nil {
			logger.GetLogger().Warnf("web server shutdown: %v", err)
		}
	}()

	broker := hooks.NewPluginBroker()
	registry := simulation.NewDefaultRegistry(broker, logger.GetLogger())
	if err := visualization.Register(registry, visualization.Options{
		Sinks: map[string]visualization.Sink{"websocket": vis.PublishEvent},
	}); err != nil {
		return err
	}

	sim, err := simulation.NewFromPreset(opts.scenario, func(c *simulation.Config) {
		opts.override(c)
		c.Plugins = append(c.Plugins, "visualization/websocket")
		if c.StepIntervalMs == 0 {
			c.StepIntervalMs = 100
		}
	},
		simulation.WithBroker(broker),
		simulation.WithRegistry(registry),
		simulation.WithCommandQueue(queue),
		simulation.WithPublisher(vis.PublishFrame),
		simulation.WithIdleWhenDone(),
	)
	if err != nil {
		return err
	}
	defer sim.Close()
	if err := sim.Prepare(ctx); err != nil {
		return err
	}
	fmt.Printf("Serving scenario %s at http://%s (Ctrl-C to stop)\n", opts.scenario, opts.addr)
	if err := sim.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
