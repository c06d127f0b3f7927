package main

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/vnykmshr/slotflow/internal/config"
	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
	"github.com/vnykmshr/slotflow/pkg/workload"
)

// options are the settings of one invocation after config files,
// environment, batch file hints and flags have been merged, in that order.
type options struct {
	cfg   config.Config
	batch []priority.Task
	json  bool
}

func parseOptions(command string, args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath  = fs.String("config", "", "YAML config file")
		envFile     = fs.String("env", ".env", "dotenv file loaded before the environment is read")
		capacity    = fs.Int("capacity", 0, "number of slots (tasks running at once)")
		unit        = fs.Duration("unit", 0, "wall-clock length of one second of task duration")
		mode        = fs.String("mode", "", "goroutine or workerpool")
		timeout     = fs.Duration("timeout", 0, "per-task timeout (0 = none)")
		cronExpr    = fs.String("cron", "", "re-run the batch on this cron schedule")
		maxRuns     = fs.Int("max-runs", 0, "stop after this many scheduled runs (0 = until interrupted)")
		metricsAddr = fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
		redisAddr   = fs.String("redis-addr", "", "also publish reports to Redis at this address")
		trace       = fs.Bool("trace", false, "export logs and spans with the OpenTelemetry stdout exporters")
		logLevel    = fs.String("log-level", "", "debug, info, warn or error")
		jsonOut     = fs.Bool("json", false, "print reports as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if err := config.LoadEnvFiles(*envFile); err != nil {
		return options{}, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return options{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return options{}, err
	}

	opts := options{cfg: cfg, batch: workload.ReferenceBatch(), json: *jsonOut}

	// Batch files may carry capacity and unit hints; explicit flags win.
	if path := fs.Arg(0); path != "" {
		f, err := workload.LoadBatch(path)
		if err != nil {
			return options{}, err
		}
		opts.batch = f.Batch()
		if f.Capacity > 0 {
			opts.cfg.Capacity = f.Capacity
		}
		if f.Unit > 0 {
			opts.cfg.Unit = f.Unit
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "capacity":
			opts.cfg.Capacity = *capacity
		case "unit":
			opts.cfg.Unit = workload.Duration(*unit)
		case "mode":
			opts.cfg.Mode = *mode
		case "timeout":
			opts.cfg.TaskTimeout = workload.Duration(*timeout)
		case "cron":
			opts.cfg.Cron = *cronExpr
		case "max-runs":
			opts.cfg.MaxRuns = *maxRuns
		case "metrics-addr":
			opts.cfg.MetricsAddr = *metricsAddr
		case "redis-addr":
			opts.cfg.Redis.Addr = *redisAddr
		case "trace":
			opts.cfg.Trace = *trace
		case "log-level":
			opts.cfg.LogLevel = *logLevel
		}
	})

	if err := opts.cfg.Validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

func (o options) unit() time.Duration {
	return time.Duration(o.cfg.Unit)
}
