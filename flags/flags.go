package flags

import (
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testexec/execution"
	"github.com/ethereum-optimism/infra/op-testexec/service"
)

const EnvVarPrefix = "OP_TESTEXEC"

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the YAML test plan (eg. 'plan.yaml')",
	}
	Workers = &cli.IntFlag{
		Name:    "workers",
		Value:   runtime.NumCPU(),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKERS"),
		Usage:   "Number of parallel workers. 0 runs every test on a single goroutine.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for tests that do not declare one. 0 disables it.",
	}
	AbandonGrace = &cli.DurationFlag{
		Name:    "abandon-grace",
		Value:   execution.DefaultAbandonGrace,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ABANDON_GRACE"),
		Usage:   "How long a timed out test may take to return before it is abandoned",
	}
	AbandonLimit = &cli.IntFlag{
		Name:    "abandon-limit",
		Value:   execution.DefaultAbandonLimit,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ABANDON_LIMIT"),
		Usage:   "Number of abandoned tests allowed to keep running before op-testexec exits with a runtime error. Negative disables the check.",
	}
	StopOnError = &cli.BoolFlag{
		Name:    "stop-on-error",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_ON_ERROR"),
		Usage:   "Stop the run after the first failed test",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTER"),
		Usage:   "Regular expression over full test names (eg. 'smoke/.*'). Empty runs everything.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   service.DefaultAddr,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address of the health and run summary HTTP server. Empty disables it.",
	}
	EventsFile = &cli.StringFlag{
		Name:    "events-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EVENTS_FILE"),
		Usage:   "Append test events in 'go test -json' format to this file",
	}
	ShutdownTimeout = &cli.DurationFlag{
		Name:    "shutdown-timeout",
		Value:   10 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHUTDOWN_TIMEOUT"),
		Usage:   "How long to wait for a running test run when stopping",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	Workers,
	DefaultTimeout,
	AbandonGrace,
	AbandonLimit,
	StopOnError,
	Filter,
	RunInterval,
	HealthzAddr,
	EventsFile,
	ShutdownTimeout,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
