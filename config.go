package testexec

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/flags"
	"github.com/ethereum-optimism/infra/op-testexec/types"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration. It is read once at startup.
type Config struct {
	PlanFile        string
	Settings        execution.Settings
	Filter          string
	RunInterval     time.Duration // Interval between runs
	RunOnce         bool          // Exit after one run
	HealthzAddr     string        // Empty disables the HTTP server
	EventsFile      string        // go test -json style event log, appended to
	AbandonLimit    int           // Abandoned tests tolerated before exiting, negative for no limit
	ShutdownTimeout time.Duration
	MetricsConfig   opmetrics.CLIConfig
	Log             log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	plan := ctx.String(flags.Plan.Name)
	if plan == "" {
		return nil, errors.New("plan file is required")
	}
	absPlan, err := filepath.Abs(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", plan, err)
	}

	workers := ctx.Int(flags.Workers.Name)
	if workers < 0 {
		return nil, fmt.Errorf("workers cannot be negative: %d", workers)
	}
	filter := ctx.String(flags.Filter.Name)
	if _, err := types.NewNameFilter(filter); err != nil {
		return nil, err
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	eventsFile := ctx.String(flags.EventsFile.Name)
	if eventsFile != "" {
		if eventsFile, err = filepath.Abs(eventsFile); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for events file: %w", err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	return &Config{
		PlanFile: absPlan,
		Settings: execution.Settings{
			Workers:        workers,
			DefaultTimeout: ctx.Duration(flags.DefaultTimeout.Name),
			AbandonGrace:   ctx.Duration(flags.AbandonGrace.Name),
			StopOnError:    ctx.Bool(flags.StopOnError.Name),
		},
		Filter:          filter,
		RunInterval:     runInterval,
		RunOnce:         runInterval == 0,
		HealthzAddr:     ctx.String(flags.HealthzAddr.Name),
		EventsFile:      eventsFile,
		AbandonLimit:    ctx.Int(flags.AbandonLimit.Name),
		ShutdownTimeout: ctx.Duration(flags.ShutdownTimeout.Name),
		MetricsConfig:   metricsCfg,
		Log:             log,
	}, nil
}
