package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/torosent/tcpcrank/internal/config"
	"github.com/torosent/tcpcrank/internal/expect"
	"github.com/torosent/tcpcrank/internal/harness"
	"github.com/torosent/tcpcrank/internal/metrics"
	"github.com/torosent/tcpcrank/internal/output"
	"github.com/torosent/tcpcrank/internal/payload"
	"github.com/torosent/tcpcrank/internal/session"
	"github.com/torosent/tcpcrank/internal/threshold"
	"github.com/torosent/tcpcrank/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

type stderrFailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	matcher, err := expect.Compile(expect.Rule{
		Regex:    cfg.Expect.Regex,
		JSONPath: cfg.Expect.JSONPath,
		Equals:   cfg.Expect.Equals,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID := harness.NewRunID()
	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.Run{
		ID:          runID,
		Target:      cfg.Address(),
		Connections: cfg.Connections,
		Requests:    cfg.Requests,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "[tcpcrank] tracing shutdown: %v\n", err)
		}
	}()

	// Keep stdout a clean document when a machine-readable report is requested.
	consoleOut := stdout
	if cfg.Output != config.OutputText {
		consoleOut = stderr
	}
	console := output.NewConsole(consoleOut, cfg.Quiet)
	collector := metrics.NewCollector()

	sessionOpts := session.Options{
		Template:       payload.New(cfg.Message, cfg.Variables),
		ReadBuffer:     cfg.ReadBuffer,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		Collector:      collector,
		Tracer:         provider.Tracer(),
	}
	if matcher != nil {
		sessionOpts.Expect = matcher
	}

	opts := harness.Options{
		RunID:        runID,
		Connections:  cfg.Connections,
		Address:      cfg.Address(),
		Requests:     cfg.Requests,
		Delay:        cfg.Delay,
		MaxInFlight:  cfg.MaxInFlight,
		SpawnRate:    cfg.SpawnRate,
		ArrivalModel: toHarnessArrivalModel(cfg.Arrival.Model),
		Session:      sessionOpts,
		Reporter:     console,
	}
	if cfg.LogErrors {
		opts.FailureLogger = &stderrFailureLogger{w: stderr}
	}
	ctrl := harness.New(opts)

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(collector, ctrl, progressInterval, stderr)
		progress.Start()
	}

	collector.Start()
	result, err := ctrl.Execute(ctx)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}
	stats := collector.Stats(result.Duration)

	report := output.NewReport(result.RunID, cfg.Address(), stats)
	switch cfg.Output {
	case config.OutputJSON:
		err = output.PrintJSONReport(stdout, report)
	case config.OutputYAML:
		err = output.PrintYAMLReport(stdout, report)
	default:
		output.PrintReport(stdout, stats)
	}
	if err != nil {
		return err
	}

	passed := true
	if len(thresholds) > 0 {
		thresholdOut := stdout
		if cfg.Output != config.OutputText {
			thresholdOut = stderr
		}
		results := threshold.NewEvaluator(thresholds).Evaluate(stats)
		passed = printThresholdResults(thresholdOut, results)
	}

	if cfg.ResultsFile != "" {
		rec := output.RunRecord{
			Timestamp:        time.Now().UTC(),
			Connections:      cfg.Connections,
			Requests:         cfg.Requests,
			ThresholdsPassed: passed,
			Report:           report,
		}
		if err := output.AppendResults(cfg.ResultsFile, rec); err != nil {
			return err
		}
	}

	if !passed {
		return fmt.Errorf("one or more thresholds failed")
	}
	return nil
}

// printThresholdResults writes each threshold outcome and reports whether all passed.
func printThresholdResults(w io.Writer, results []threshold.Result) bool {
	fmt.Fprintln(w, "\nThresholds:")
	passed := true
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
		if !r.Pass {
			passed = false
		}
	}
	return passed
}

func toHarnessArrivalModel(model config.ArrivalModel) harness.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return harness.ArrivalModelPoisson
	default:
		return harness.ArrivalModelUniform
	}
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[tcpcrank] session failed: %v\n", err)
}
