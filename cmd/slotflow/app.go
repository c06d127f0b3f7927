package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/report"
	"github.com/vnykmshr/slotflow/pkg/scheduling/executor"
	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
	"github.com/vnykmshr/slotflow/pkg/scheduling/recurring"
	"github.com/vnykmshr/slotflow/pkg/telemetry"
	"github.com/vnykmshr/slotflow/pkg/workload"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	opts   options
	batch  []priority.Task
	stdout io.Writer
	stderr io.Writer
}

func newApp(opts options, stdout, stderr io.Writer) *app {
	return &app{opts: opts, batch: opts.batch, stdout: stdout, stderr: stderr}
}

func (a *app) plan() error {
	plan, err := priority.Simulate(a.batch, a.opts.cfg.Capacity)
	if err != nil {
		return err
	}
	return report.RenderPlan(a.stdout, plan, a.opts.unit())
}

func (a *app) run(ctx context.Context) (err error) {
	cfg := a.opts.cfg

	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	tel, err := telemetry.Setup(telemetry.Config{
		ServiceName: "slotflow",
		Level:       level,
		Export:      cfg.Trace,
		Output:      a.stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, tel.Shutdown(sctx))
	}()
	logger := tel.Logger

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg := metrics.NewRegistry(promReg)

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, promReg, logger)
		defer stop()
	}

	sinks := []report.Sink{a.writerSink()}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		sink, err := report.NewRedisSink(report.RedisConfig{
			Redis:      rdb,
			Key:        cfg.Redis.Key,
			MaxEntries: cfg.Redis.MaxEntries,
			TTL:        time.Duration(cfg.Redis.TTL),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	publisher := report.NewPublisher(reg, sinks...)

	mode, err := executor.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	sched, err := priority.New(priority.Config{
		Capacity:       cfg.Capacity,
		Name:           "slotflow",
		Mode:           mode,
		TaskTimeout:    time.Duration(cfg.TaskTimeout),
		Logger:         logger,
		Metrics:        reg,
		TracerProvider: tel.TracerProvider,
	})
	if err != nil {
		return err
	}
	plan, err := priority.Simulate(a.batch, cfg.Capacity)
	if err != nil {
		return err
	}

	work := workload.Sleep(a.opts.unit())
	once := func(ctx context.Context) error {
		res, runErr := sched.Schedule(ctx, a.batch, work)
		if res == nil {
			return runErr
		}
		pubErr := publisher.Publish(ctx, report.Summarize(res, plan, a.opts.unit()))
		return errors.Join(runErr, pubErr)
	}

	if cfg.Cron == "" {
		return once(ctx)
	}
	return a.recur(ctx, once, reg, logger)
}

// recur runs once on the configured cron schedule until ctx ends or the
// run limit is reached.
func (a *app) recur(ctx context.Context, once recurring.RunFunc, reg *metrics.Registry, logger *slog.Logger) error {
	cfg := a.opts.cfg

	runner, err := recurring.New(recurring.Config{Logger: logger, Metrics: reg})
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		finished int
		errs     []error
	)
	done := make(chan struct{})
	fn := func(ctx context.Context) error {
		err := once(ctx)
		mu.Lock()
		defer mu.Unlock()
		finished++
		if err != nil {
			errs = append(errs, err)
		}
		if cfg.MaxRuns > 0 && finished == cfg.MaxRuns {
			close(done)
		}
		return err
	}

	opts := recurring.Options{MaxRuns: cfg.MaxRuns, SkipIfStillRunning: true}
	if err := runner.Add("batch", cfg.Cron, fn, opts); err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	if next, err := runner.Next("batch"); err == nil {
		logger.Info("recurring batch scheduled", "cron", cfg.Cron, "next", next, "max_runs", cfg.MaxRuns)
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	<-runner.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d runs failed: %w", len(errs), finished, errors.Join(errs...))
	}
	return nil
}

func (a *app) writerSink() report.Sink {
	if a.opts.json {
		return report.NewWriterSink(a.stdout, report.FormatJSON)
	}
	return report.NewWriterSink(a.stdout, report.FormatText)
}

// serveMetrics exposes reg on addr and returns a func that shuts the server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
}
