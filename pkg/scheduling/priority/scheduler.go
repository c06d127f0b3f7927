package priority

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/common/validation"
	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/scheduling/executor"
	"github.com/vnykmshr/slotflow/pkg/scheduling/slots"
)

const tracerName = "github.com/vnykmshr/slotflow/pkg/scheduling/priority"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds configuration options for a Scheduler.
type Config struct {
	// Capacity is the maximum number of tasks running at once. Must be at least 1.
	Capacity int

	// Name labels logs and metrics. Defaults to "priority".
	Name string

	// Mode selects how admitted tasks are run.
	Mode executor.Mode

	// TaskTimeout bounds every work call. Zero means no timeout.
	TaskTimeout time.Duration

	// Logger receives admission and completion events. Defaults to discarding.
	Logger *slog.Logger

	// Metrics receives scheduler, executor and slot metrics when non-nil.
	Metrics *metrics.Registry

	// TracerProvider creates run and task spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Clock timestamps runs. Defaults to the wall clock.
	Clock Clock
}

// Scheduler runs batches of tasks with bounded concurrency, admitting
// higher-priority tasks first. A Scheduler may be reused; concurrent
// Schedule calls run independently.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	clock  Clock
}

// New creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if err := validation.ValidatePositive("scheduler", "capacity", cfg.Capacity); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("scheduler", "task_timeout", cfg.TaskTimeout); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "priority"
	}

	s := &Scheduler{cfg: cfg, logger: cfg.Logger, clock: cfg.Clock}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	s.tracer = tp.Tracer(tracerName)
	return s, nil
}

// Schedule runs batch with at most capacity tasks in flight using a
// scheduler with default settings.
func Schedule(ctx context.Context, batch []Task, capacity int, work WorkFunc) (*RunResult, error) {
	s, err := New(Config{Capacity: capacity})
	if err != nil {
		return nil, err
	}
	return s.Schedule(ctx, batch, work)
}

// Capacity returns the configured number of slots.
func (s *Scheduler) Capacity() int {
	return s.cfg.Capacity
}

// Schedule runs every task in batch and returns once all admitted tasks have
// finished. Work failures are reported per task and do not abort the run.
//
// Invalid batches and a nil work function are rejected before any task
// runs. Canceling ctx stops admission: queued tasks are reported with
// ErrNotAdmitted, running tasks finish, and the partial result is returned
// with an error wrapping the context's error.
func (s *Scheduler) Schedule(ctx context.Context, batch []Task, work WorkFunc) (*RunResult, error) {
	if work == nil {
		return nil, sferrors.NewValidationError("scheduler", "work", nil, "cannot be nil")
	}
	if err := ValidateBatch(batch); err != nil {
		return nil, err
	}

	run := &RunResult{
		RunID:    uuid.NewString(),
		Capacity: s.cfg.Capacity,
		Results:  make([]TaskResult, len(batch)),
	}
	logger := s.logger.With("run_id", run.RunID, "scheduler", s.cfg.Name)

	ctx, span := s.tracer.Start(ctx, "priority.Schedule", trace.WithAttributes(
		attribute.String("slotflow.run_id", run.RunID),
		attribute.Int("slotflow.capacity", s.cfg.Capacity),
		attribute.Int("slotflow.batch_size", len(batch)),
	))
	defer span.End()

	run.Started = s.clock.Now()
	since := func(t time.Time) time.Duration { return t.Sub(run.Started) }

	// OnAdmit and OnDone run inside the executor's critical section, which
	// serializes every write to run below.
	admissionIndex := make(map[string]int, len(batch))
	exec, err := executor.New(executor.Config{
		Capacity:      s.cfg.Capacity,
		Name:          s.cfg.Name,
		Mode:          s.cfg.Mode,
		JobTimeout:    s.cfg.TaskTimeout,
		DetachRunning: true,
		Metrics:       s.cfg.Metrics,
		Now:           s.clock.Now,
		OnAdmit: func(name string, slot slots.Slot) {
			run.AdmissionOrder = append(run.AdmissionOrder, name)
			admissionIndex[name] = len(run.AdmissionOrder)
			logger.Debug("task admitted", "task", name, "slot", int(slot), "position", len(run.AdmissionOrder))
		},
	})
	if err != nil {
		return nil, err
	}

	logger.Info("run started", "tasks", len(batch), "capacity", s.cfg.Capacity)
	s.countSubmitted(len(batch))

	futures := make([]*executor.Future, len(batch))
	for _, i := range admissionOrder(batch) {
		task := batch[i]
		job := executor.Job{
			Label:    task.Name,
			Priority: task.Priority,
			Fn:       s.taskFunc(task, work),
			OnDone: func(o executor.Outcome) {
				run.Completions = append(run.Completions, CompletionRecord{
					Name:  task.Name,
					Order: len(run.Completions) + 1,
					At:    since(o.Finished),
				})
			},
		}
		f, err := exec.Submit(ctx, job)
		if err != nil {
			run.Results[i] = TaskResult{Task: task, Err: err}
			continue
		}
		futures[i] = f
	}

	outcomes := make([]executor.Outcome, len(batch))
	for i, f := range futures {
		if f != nil {
			outcomes[i] = f.Outcome()
		}
	}
	<-exec.Shutdown()
	run.Peak = exec.Peak()
	run.Elapsed = s.clock.Now().Sub(run.Started)

	for i, f := range futures {
		if f == nil {
			continue
		}
		out := outcomes[i]
		res := TaskResult{
			Task:     batch[i],
			Value:    out.Value,
			Admitted: out.Admitted,
			Finished: since(out.Finished),
		}
		if out.Admitted {
			res.Slot = int(out.Slot)
			res.AdmissionIndex = admissionIndex[res.Task.Name]
			res.Started = since(out.Started)
			res.Wait = out.Wait()
		}
		switch {
		case out.Err == nil:
		case out.Admitted:
			res.Err = sferrors.NewTaskError(res.Task.Name, out.Err)
		default:
			res.Err = out.Err
		}
		run.Results[i] = res
		s.observe(logger, res)
	}

	outcome, runErr := s.outcome(ctx, run)
	s.observeRun(run, outcome)
	span.SetAttributes(
		attribute.String("slotflow.outcome", outcome),
		attribute.Int("slotflow.peak", run.Peak),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	logger.Info("run finished",
		"outcome", outcome,
		"elapsed", run.Elapsed,
		"peak", run.Peak,
		"completion_order", run.CompletionOrder(),
	)
	return run, runErr
}

// taskFunc adapts work to an executor job with its own span.
func (s *Scheduler) taskFunc(task Task, work WorkFunc) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		ctx, span := s.tracer.Start(ctx, "priority.task", trace.WithAttributes(
			attribute.String("slotflow.task", task.Name),
			attribute.Int("slotflow.priority", task.Priority),
			attribute.Int64("slotflow.duration_ms", task.Duration.Milliseconds()),
		))
		defer span.End()

		value, err := work(ctx, task)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return value, err
	}
}

func (s *Scheduler) outcome(ctx context.Context, run *RunResult) (string, error) {
	dropped := 0
	failed := 0
	for _, res := range run.Results {
		switch {
		case !res.Admitted:
			dropped++
		case res.Err != nil:
			failed++
		}
	}
	switch {
	case dropped > 0:
		cause := context.Cause(ctx)
		if cause == nil {
			cause = sferrors.ErrNotAdmitted
		}
		return "interrupted", sferrors.NewOperationError("scheduler", "Schedule", cause).
			WithContext(run.RunID)
	case failed > 0:
		return "partial", nil
	default:
		return "success", nil
	}
}

func (s *Scheduler) countSubmitted(n int) {
	if m := s.cfg.Metrics; m != nil {
		m.TasksSubmitted.WithLabelValues(s.cfg.Name).Add(float64(n))
	}
}

func (s *Scheduler) observe(logger *slog.Logger, res TaskResult) {
	m := s.cfg.Metrics
	switch {
	case !res.Admitted:
		logger.Warn("task not admitted", "task", res.Task.Name, "error", res.Err)
		if m != nil {
			m.TasksDropped.WithLabelValues(s.cfg.Name).Inc()
		}
		return
	case res.Err != nil:
		logger.Warn("task failed", "task", res.Task.Name, "slot", res.Slot, "error", res.Err)
		if m != nil {
			m.TasksFailed.WithLabelValues(s.cfg.Name).Inc()
		}
	default:
		logger.Debug("task completed", "task", res.Task.Name, "slot", res.Slot, "runtime", res.Runtime())
		if m != nil {
			m.TasksCompleted.WithLabelValues(s.cfg.Name).Inc()
		}
	}
	if m != nil {
		m.TaskDuration.WithLabelValues(s.cfg.Name).Observe(res.Runtime().Seconds())
	}
}

func (s *Scheduler) observeRun(run *RunResult, outcome string) {
	if m := s.cfg.Metrics; m != nil {
		m.Runs.WithLabelValues(s.cfg.Name, outcome).Inc()
		m.RunDuration.WithLabelValues(s.cfg.Name).Observe(run.Elapsed.Seconds())
	}
}

// admissionOrder returns batch indices stably sorted by priority.
func admissionOrder(batch []Task) []int {
	order := make([]int, len(batch))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(batch[a].Priority, batch[b].Priority)
	})
	return order
}
