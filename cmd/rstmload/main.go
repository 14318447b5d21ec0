package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rstmdb/rstmload/internal/auth"
	"github.com/rstmdb/rstmload/internal/config"
	"github.com/rstmdb/rstmload/internal/dashboard"
	"github.com/rstmdb/rstmload/internal/logging"
	"github.com/rstmdb/rstmload/internal/output"
	"github.com/rstmdb/rstmload/internal/rstmclient"
	"github.com/rstmdb/rstmload/internal/runner"
	"github.com/rstmdb/rstmload/internal/tracing"
	"github.com/rstmdb/rstmload/internal/workload"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one load run. A nil error means the run completed, whatever
// the operation failure count; setup and configuration failures are errors.
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

	logger, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	definition, err := loadDefinition(cfg)
	if err != nil {
		return err
	}
	definitionJSON, err := definition.JSON()
	if err != nil {
		return err
	}
	machine := cfg.MachineName
	if machine == "" {
		machine = workload.MachineName()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	clientCfg := clientConfig(cfg, logger)
	var tracer trace.Tracer
	if tp.Enabled() {
		tracer = tp.Tracer()
		clientCfg.Tracer = tracer
		clientCfg.Propagate = tp.ShouldPropagate()
	}
	opts := runner.Options{
		Dialer:        newDialer(clientCfg),
		Machine:       machine,
		Version:       workload.DefaultVersion,
		Definition:    definitionJSON,
		Event:         workload.DefaultEvent,
		Instances:     cfg.Instances,
		Events:        cfg.Events,
		Workers:       cfg.EffectiveWorkers(),
		Concurrency:   cfg.Concurrency,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		Tracer:        tracer,
		Logger:        logger,
		LogErrors:     cfg.LogErrors,
	}
	r := runner.New(opts)

	if !cfg.JSONOutput && !cfg.Dashboard {
		output.PrintBanner(stdout, output.Banner{
			Server:        cfg.Addr(),
			TLS:           cfg.TLS.Enabled,
			Machine:       machine,
			Version:       workload.DefaultVersion,
			Instances:     cfg.Instances,
			Events:        cfg.Events,
			Workers:       cfg.EffectiveWorkers(),
			Concurrency:   cfg.Concurrency,
			RatePerSecond: cfg.Rate,
			ArrivalModel:  string(cfg.Arrival.Model),
		})
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(r.Collector(), r.Limiter().InUse, dashboard.RunConfig{
			Server:         cfg.Addr(),
			TLS:            cfg.TLS.Enabled,
			Machine:        fmt.Sprintf("%s@%d", machine, workload.DefaultVersion),
			Instances:      cfg.Instances,
			Events:         cfg.Events,
			Workers:        cfg.EffectiveWorkers(),
			Concurrency:    cfg.Concurrency,
			Rate:           cfg.Rate,
			ArrivalModel:   string(cfg.Arrival.Model),
			RequestTimeout: cfg.RequestTimeout,
			ConfigFile:     cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(r.Collector(), progressInterval, stdout)
		progress.Start()
	}

	result, runErr := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
	}
	if runErr != nil {
		return runErr
	}

	for _, ce := range result.ConnectionErrors {
		logger.Error("worker could not connect",
			zap.Int("worker", ce.Worker),
			zap.Int("instances_skipped", ce.Items),
			zap.Error(ce.Err),
		)
	}

	if cfg.JSONOutput {
		return output.PrintJSONReport(stdout, result)
	}
	output.PrintReport(stdout, result)
	return nil
}

func loadDefinition(cfg *config.Config) (workload.Definition, error) {
	if cfg.MachineFile == "" {
		return workload.DefaultDefinition(), nil
	}
	def, err := workload.LoadDefinition(cfg.MachineFile)
	if err != nil {
		return workload.Definition{}, err
	}
	if !def.HasEvent(workload.DefaultEvent) {
		return workload.Definition{}, fmt.Errorf("machine definition %s has no %s transition", cfg.MachineFile, workload.DefaultEvent)
	}
	return def, nil
}

func clientConfig(cfg *config.Config, logger *zap.Logger) rstmclient.Config {
	return rstmclient.Config{
		Addr:           cfg.Addr(),
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		TLS: rstmclient.TLSConfig{
			Enabled:    cfg.TLS.Enabled,
			Insecure:   cfg.TLS.Insecure,
			CACertFile: cfg.TLS.CACert,
		},
		Auth:   auth.FromToken(cfg.Token),
		Logger: logger,
	}
}

// newDialer opens one rstmclient session per call.
func newDialer(cfg rstmclient.Config) runner.Dialer {
	return runner.DialerFunc(func(ctx context.Context) (runner.Client, error) {
		s, err := rstmclient.DialSession(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
