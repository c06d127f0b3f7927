package priority

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vnykmshr/slotflow/internal/testutil"
	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/scheduling/executor"
)

func TestSchedule_ReferenceBatch(t *testing.T) {
	const unit = 30 * time.Millisecond

	for _, mode := range []executor.Mode{executor.ModeGoroutine, executor.ModeWorkerPool} {
		t.Run(mode.String(), func(t *testing.T) {
			s, err := New(Config{Capacity: 2, Mode: mode})
			testutil.AssertNoError(t, err)

			p := &probe{work: sleepWork}
			ctx, cancel := testutil.WithTimeout(t)
			defer cancel()

			run, err := s.Schedule(ctx, referenceBatch(unit), p.run)
			testutil.AssertNoError(t, err)

			testutil.AssertSliceEqual(t, run.AdmissionOrder,
				[]string{"Emergency", "Important", "RoutineA", "RoutineB", "Background"})

			order := run.CompletionOrder()
			testutil.AssertEqual(t, len(order), 5)
			testutil.AssertEqual(t, order[0], "Emergency")
			testutil.AssertEqual(t, order[1], "Important")
			testutil.AssertEqual(t, order[4], "Background")
			// RoutineA and RoutineB both finish at 4 units.
			routines := map[string]bool{order[2]: true, order[3]: true}
			if !routines["RoutineA"] || !routines["RoutineB"] {
				t.Errorf("expected routine tasks in positions 3 and 4, got %v", order)
			}

			// Critical path is 9 units against a sequential sum of 13.
			if run.Elapsed < 9*unit {
				t.Errorf("elapsed %v shorter than the critical path %v", run.Elapsed, 9*unit)
			}
			if run.Elapsed >= 12*unit {
				t.Errorf("elapsed %v not well below the sequential %v", run.Elapsed, 13*unit)
			}

			if got := p.peak.Load(); got > 2 {
				t.Errorf("observed %d concurrent tasks with capacity 2", got)
			}
			testutil.AssertEqual(t, run.Peak, 2)
			testutil.AssertEqual(t, run.Capacity, 2)

			for _, res := range run.Results {
				testutil.AssertNoError(t, res.Err)
				testutil.AssertEqual(t, res.Value, any("Result "+res.Task.Name))
			}
			testutil.AssertEqual(t, run.Results[0].Task.Name, "Emergency")
			testutil.AssertEqual(t, run.Results[4].Task.Name, "Background")
			if run.RunID == "" {
				t.Error("expected a run ID")
			}
		})
	}
}

func TestSchedule_DuplicateNames(t *testing.T) {
	p := &probe{work: sleepWork}
	batch := []Task{
		{Name: "X", Priority: 1},
		{Name: "Y", Priority: 2},
		{Name: "X", Priority: 3},
	}

	run, err := Schedule(context.Background(), batch, 2, p.run)
	if !errors.Is(err, sferrors.ErrInvalidBatch) {
		t.Fatalf("expected ErrInvalidBatch, got %v", err)
	}
	if run != nil {
		t.Error("expected nil result")
	}
	testutil.AssertEqual(t, p.calls.Load(), int32(0))

	var verr *sferrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	testutil.AssertEqual(t, verr.Value, any("X"))
}

func TestSchedule_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		p := &probe{work: sleepWork}
		_, err := Schedule(context.Background(), referenceBatch(time.Millisecond), capacity, p.run)
		if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
			t.Errorf("capacity %d: expected ErrInvalidConfiguration, got %v", capacity, err)
		}
		testutil.AssertEqual(t, p.calls.Load(), int32(0))
	}
}

func TestSchedule_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		batch   []Task
		work    WorkFunc
		wantErr error
	}{
		{"nil work", referenceBatch(time.Millisecond), nil, sferrors.ErrInvalidConfiguration},
		{"empty name", []Task{{Name: "", Priority: 1}}, sleepWork, sferrors.ErrInvalidBatch},
		{"negative duration", []Task{{Name: "a", Duration: -time.Second}}, sleepWork, sferrors.ErrInvalidBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Schedule(context.Background(), tt.batch, 1, tt.work)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSchedule_TaskFailure(t *testing.T) {
	errDisk := errors.New("disk on fire")
	work := func(ctx context.Context, task Task) (any, error) {
		v, err := sleepWork(ctx, task)
		if task.Name == "RoutineA" {
			return nil, errDisk
		}
		return v, err
	}

	run, err := Schedule(context.Background(), referenceBatch(5*time.Millisecond), 2, work)
	testutil.AssertNoError(t, err)

	failed := run.Failed()
	testutil.AssertEqual(t, len(failed), 1)
	testutil.AssertEqual(t, failed[0].Task.Name, "RoutineA")
	if !errors.Is(failed[0].Err, sferrors.ErrTaskFailed) || !errors.Is(failed[0].Err, errDisk) {
		t.Errorf("expected task failure wrapping the cause, got %v", failed[0].Err)
	}
	testutil.AssertEqual(t, failed[0].Admitted, true)

	for _, res := range run.Results {
		if res.Task.Name != "RoutineA" && !res.OK() {
			t.Errorf("task %s should succeed, got %v", res.Task.Name, res.Err)
		}
	}

	var found bool
	for _, c := range run.Completions {
		if c.Name == "RoutineA" {
			found = true
			res, _ := run.Result("RoutineA")
			testutil.AssertEqual(t, c.At, res.Finished)
		}
	}
	if !found {
		t.Errorf("failed task missing from completion order %v", run.CompletionOrder())
	}
	testutil.AssertEqual(t, run.Succeeded(), false)
}

func TestSchedule_PanicIsCapturedPerTask(t *testing.T) {
	work := func(ctx context.Context, task Task) (any, error) {
		if task.Name == "Important" {
			panic("unexpected state")
		}
		return task.Name, nil
	}

	run, err := Schedule(context.Background(), referenceBatch(0), 2, work)
	testutil.AssertNoError(t, err)

	res, ok := run.Result("Important")
	testutil.AssertEqual(t, ok, true)
	if !errors.Is(res.Err, sferrors.ErrTaskFailed) || !strings.Contains(res.Err.Error(), "unexpected state") {
		t.Errorf("expected recovered panic, got %v", res.Err)
	}
	testutil.AssertEqual(t, len(run.Completions), 5)
}

func TestSchedule_CapacityAtLeastBatchSize(t *testing.T) {
	batch := []Task{
		{Name: "c", Priority: 3},
		{Name: "a", Priority: 1},
		{Name: "b", Priority: 2},
	}

	// Every task waits until all of them have started.
	var started atomic.Int32
	all := make(chan struct{})
	work := func(ctx context.Context, task Task) (any, error) {
		if started.Add(1) == int32(len(batch)) {
			close(all)
		}
		select {
		case <-all:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s, err := New(Config{Capacity: 5, TaskTimeout: testutil.TestTimeout})
	testutil.AssertNoError(t, err)
	run, err := s.Schedule(context.Background(), batch, work)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, run.Succeeded(), true)
	testutil.AssertEqual(t, run.Peak, 3)
	testutil.AssertSliceEqual(t, run.AdmissionOrder, []string{"a", "b", "c"})
	for _, res := range run.Results {
		testutil.AssertEqual(t, res.Wait < 50*time.Millisecond, true)
	}
}

func TestSchedule_CapacityAtLeastBatchSizeCompletesByDuration(t *testing.T) {
	for _, capacity := range []int{3, 5} {
		t.Run(fmt.Sprintf("capacity-%d", capacity), func(t *testing.T) {
			run, err := Schedule(context.Background(), inverseBatch(time.Millisecond), capacity, sleepWork)
			testutil.AssertNoError(t, err)

			testutil.AssertSliceEqual(t, run.AdmissionOrder, []string{"long", "mid", "short"})
			testutil.AssertSliceEqual(t, run.CompletionOrder(), []string{"short", "mid", "long"})
			testutil.AssertEqual(t, run.Peak, 3)
		})
	}
}

func TestSchedule_EqualPrioritiesAreFIFO(t *testing.T) {
	batch := []Task{
		{Name: "first", Priority: 2},
		{Name: "second", Priority: 2},
		{Name: "third", Priority: 2},
		{Name: "fourth", Priority: 2},
	}
	rec := &recorder{}

	run, err := Schedule(context.Background(), batch, 1, rec.wrap(sleepWork))
	testutil.AssertNoError(t, err)

	want := []string{"first", "second", "third", "fourth"}
	testutil.AssertSliceEqual(t, run.AdmissionOrder, want)
	testutil.AssertSliceEqual(t, rec.order(), want)
	testutil.AssertSliceEqual(t, run.CompletionOrder(), want)
}

func TestSchedule_ZeroDurationTasks(t *testing.T) {
	batch := []Task{
		{Name: "a", Priority: 2},
		{Name: "b", Priority: 1},
		{Name: "c", Priority: 3},
	}
	p := &probe{work: sleepWork}

	run, err := Schedule(context.Background(), batch, 1, p.run)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, p.calls.Load(), int32(3))
	testutil.AssertEqual(t, p.peak.Load(), int32(1))
	testutil.AssertSliceEqual(t, run.CompletionOrder(), []string{"b", "a", "c"})
	for i, c := range run.Completions {
		testutil.AssertEqual(t, c.Order, i+1)
	}
}

func TestSchedule_EmptyBatch(t *testing.T) {
	run, err := Schedule(context.Background(), nil, 2, sleepWork)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(run.Results), 0)
	testutil.AssertEqual(t, len(run.Completions), 0)
	testutil.AssertEqual(t, run.Succeeded(), true)
}

func TestSchedule_MockClock(t *testing.T) {
	clock := testutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	work := func(ctx context.Context, task Task) (any, error) {
		clock.Advance(task.Duration)
		return nil, nil
	}

	s, err := New(Config{Capacity: 1, Clock: clock})
	testutil.AssertNoError(t, err)
	run, err := s.Schedule(context.Background(), referenceBatch(time.Second), work)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, run.Elapsed, 13*time.Second)

	// With one slot the run is sequential in admission order.
	var at time.Duration
	for _, name := range run.AdmissionOrder {
		res, _ := run.Result(name)
		testutil.AssertEqual(t, res.Started, at)
		at += res.Task.Duration
		testutil.AssertEqual(t, res.Finished, at)
	}
	testutil.AssertEqual(t, run.Completions[4].At, 13*time.Second)
}

func TestSchedule_CancelStopsAdmission(t *testing.T) {
	batch := []Task{
		{Name: "running", Priority: 1},
		{Name: "queued-1", Priority: 2},
		{Name: "queued-2", Priority: 3},
	}

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	p := &probe{work: func(ctx context.Context, task Task) (any, error) {
		close(started)
		<-release
		// The running task keeps a live context after cancellation.
		return "done", ctx.Err()
	}}

	go func() {
		<-started
		cancel()
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	run, err := Schedule(ctx, batch, 1, p.run)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if run == nil {
		t.Fatal("expected partial result")
	}

	testutil.AssertEqual(t, p.calls.Load(), int32(1))
	res, _ := run.Result("running")
	testutil.AssertEqual(t, res.OK(), true)
	testutil.AssertEqual(t, res.Value, any("done"))

	for _, name := range []string{"queued-1", "queued-2"} {
		res, _ := run.Result(name)
		testutil.AssertEqual(t, res.Admitted, false)
		if !errors.Is(res.Err, sferrors.ErrNotAdmitted) {
			t.Errorf("%s: expected ErrNotAdmitted, got %v", name, res.Err)
		}
	}
	testutil.AssertSliceEqual(t, run.CompletionOrder(), []string{"running"})
}

func TestSchedule_TaskTimeout(t *testing.T) {
	s, err := New(Config{Capacity: 2, TaskTimeout: 20 * time.Millisecond})
	testutil.AssertNoError(t, err)

	batch := []Task{
		{Name: "quick", Priority: 1, Duration: time.Millisecond},
		{Name: "slow", Priority: 1, Duration: time.Minute},
	}
	run, err := s.Schedule(context.Background(), batch, sleepWork)
	testutil.AssertNoError(t, err)

	quick, _ := run.Result("quick")
	testutil.AssertEqual(t, quick.OK(), true)
	slow, _ := run.Result("slow")
	if !errors.Is(slow.Err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", slow.Err)
	}
	testutil.AssertSliceEqual(t, run.CompletionOrder(), []string{"quick", "slow"})
}

func TestSchedule_ReusedScheduler(t *testing.T) {
	s, err := New(Config{Capacity: 2})
	testutil.AssertNoError(t, err)

	batch := inverseBatch(time.Millisecond)
	first, err := s.Schedule(context.Background(), batch, sleepWork)
	testutil.AssertNoError(t, err)
	second, err := s.Schedule(context.Background(), batch, sleepWork)
	testutil.AssertNoError(t, err)

	if first.RunID == second.RunID {
		t.Error("runs should have distinct IDs")
	}
	testutil.AssertSliceEqual(t, first.AdmissionOrder, second.AdmissionOrder)

	// long and mid take both slots; short follows mid.
	testutil.AssertSliceEqual(t, first.CompletionOrder(), []string{"mid", "short", "long"})
	testutil.AssertSliceEqual(t, second.CompletionOrder(), first.CompletionOrder())

	plan, err := Simulate(batch, 2)
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, first.CompletionOrder(), plan.CompletionOrder)
}

func TestSchedule_Metrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s, err := New(Config{Capacity: 2, Name: "metrics-test", Metrics: reg})
	testutil.AssertNoError(t, err)

	work := func(ctx context.Context, task Task) (any, error) {
		if task.Name == "Background" {
			return nil, errors.New("failed")
		}
		return nil, nil
	}
	_, err = s.Schedule(context.Background(), referenceBatch(0), work)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksSubmitted.WithLabelValues("metrics-test")), 5.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksCompleted.WithLabelValues("metrics-test")), 4.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksFailed.WithLabelValues("metrics-test")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksAdmitted.WithLabelValues("metrics-test")), 5.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.Runs.WithLabelValues("metrics-test", "partial")), 1.0)
}

func TestSchedule_TracesRunAndTasks(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	s, err := New(Config{Capacity: 2, TracerProvider: tp})
	testutil.AssertNoError(t, err)
	_, err = s.Schedule(context.Background(), referenceBatch(0), sleepWork)
	testutil.AssertNoError(t, err)

	spans := rec.Ended()
	testutil.AssertEqual(t, len(spans), 6)

	var root sdktrace.ReadOnlySpan
	for _, sp := range spans {
		if sp.Name() == "priority.Schedule" {
			root = sp
		}
	}
	if root == nil {
		t.Fatal("missing run span")
	}
	for _, sp := range spans {
		if sp.Name() == "priority.task" && sp.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("task span not parented to the run span")
		}
	}
}

func TestSchedule_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := New(Config{Capacity: 1, Logger: logger})
	testutil.AssertNoError(t, err)
	_, err = s.Schedule(context.Background(), []Task{{Name: "only", Priority: 1}}, sleepWork)
	testutil.AssertNoError(t, err)

	out := buf.String()
	for _, want := range []string{"run started", "task admitted", "task completed", "run finished", "task=only"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
