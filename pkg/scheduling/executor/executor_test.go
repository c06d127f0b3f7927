package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/slotflow/internal/testutil"
	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/scheduling/slots"
)

func newExecutor(t *testing.T, cfg Config) Executor {
	t.Helper()
	exec, err := New(cfg)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() {
		select {
		case <-exec.Shutdown():
		case <-time.After(testutil.TestTimeout):
			t.Error("executor did not shut down")
		}
	})
	return exec
}

func gate(release <-chan struct{}) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		<-release
		return nil, nil
	}
}

func value(v any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return v, nil }
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Capacity: 2}, false},
		{"worker pool", Config{Capacity: 2, Mode: ModeWorkerPool}, false},
		{"zero capacity", Config{Capacity: 0}, true},
		{"negative capacity", Config{Capacity: -3}, true},
		{"negative timeout", Config{Capacity: 1, JobTimeout: -time.Second}, true},
		{"unknown mode", Config{Capacity: 1, Mode: Mode(42)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := New(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
					t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, exec.Capacity(), tt.cfg.Capacity)
			<-exec.Shutdown()
		})
	}
}

func TestSubmit_NilFn(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 1})
	_, err := exec.Submit(context.Background(), Job{Label: "nil"})
	if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestSubmit_ReturnsValue(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 1})

	f, err := exec.Submit(context.Background(), Job{Label: "a", Fn: value("Result a")})
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	out, err := f.Wait(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out.Label, "a")
	testutil.AssertEqual(t, out.Value, any("Result a"))
	testutil.AssertEqual(t, out.Admitted, true)
	testutil.AssertEqual(t, out.Slot, slots.Slot(0))
	if out.Finished.Before(out.Started) || out.Started.Before(out.Queued) {
		t.Errorf("timestamps out of order: %+v", out)
	}
}

func TestAdmissionOrder_PriorityThenSubmission(t *testing.T) {
	var (
		mu       sync.Mutex
		admitted []string
	)
	exec := newExecutor(t, Config{
		Capacity: 1,
		OnAdmit: func(label string, _ slots.Slot) {
			mu.Lock()
			admitted = append(admitted, label)
			mu.Unlock()
		},
	})

	release := make(chan struct{})
	ctx := context.Background()
	blocker, err := exec.Submit(ctx, Job{Label: "blocker", Priority: 9, Fn: gate(release)})
	testutil.AssertNoError(t, err)

	jobs := []Job{
		{Label: "low", Priority: 3},
		{Label: "first", Priority: 1},
		{Label: "mid", Priority: 2},
		{Label: "second", Priority: 1},
	}
	var futures []*Future
	for _, j := range jobs {
		j.Fn = value(j.Label)
		f, err := exec.Submit(ctx, j)
		testutil.AssertNoError(t, err)
		futures = append(futures, f)
	}
	testutil.AssertEqual(t, exec.Queued(), len(jobs))
	testutil.AssertEqual(t, exec.InFlight(), 1)

	close(release)
	blocker.Outcome()
	for _, f := range futures {
		f.Outcome()
	}

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertSliceEqual(t, admitted, []string{"blocker", "first", "second", "mid", "low"})
}

func TestCapacityIsNeverExceeded(t *testing.T) {
	for _, mode := range []Mode{ModeGoroutine, ModeWorkerPool} {
		t.Run(mode.String(), func(t *testing.T) {
			const capacity = 3
			exec := newExecutor(t, Config{Capacity: capacity, Mode: mode})

			var active, peak atomic.Int32
			work := func(context.Context) (any, error) {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil, nil
			}

			var futures []*Future
			for i := 0; i < 20; i++ {
				f, err := exec.Submit(context.Background(), Job{Label: fmt.Sprintf("job-%d", i), Priority: i % 3, Fn: work})
				testutil.AssertNoError(t, err)
				futures = append(futures, f)
			}
			for _, f := range futures {
				out := f.Outcome()
				testutil.AssertNoError(t, out.Err)
				if int(out.Slot) < 0 || int(out.Slot) >= capacity {
					t.Errorf("slot %d out of range", out.Slot)
				}
			}

			if got := peak.Load(); got > capacity {
				t.Errorf("observed %d concurrent jobs, capacity %d", got, capacity)
			}
			if exec.Peak() > capacity {
				t.Errorf("executor peak %d exceeds capacity", exec.Peak())
			}
		})
	}
}

func TestOnDone_RunsBeforeNextAdmission(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	exec := newExecutor(t, Config{
		Capacity: 1,
		OnAdmit:  func(label string, _ slots.Slot) { record("admit " + label) },
	})

	var futures []*Future
	for _, label := range []string{"a", "b", "c"} {
		f, err := exec.Submit(context.Background(), Job{
			Label:  label,
			Fn:     value(label),
			OnDone: func(o Outcome) { record("done " + o.Label) },
		})
		testutil.AssertNoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		f.Outcome()
	}

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertSliceEqual(t, events, []string{
		"admit a", "done a",
		"admit b", "done b",
		"admit c", "done c",
	})
}

func TestErrorsAndPanicsAreCaptured(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 2})
	boom := errors.New("boom")

	failing, _ := exec.Submit(context.Background(), Job{Label: "fail", Fn: func(context.Context) (any, error) {
		return nil, boom
	}})
	panicking, _ := exec.Submit(context.Background(), Job{Label: "panic", Fn: func(context.Context) (any, error) {
		panic("kaboom")
	}})
	ok, _ := exec.Submit(context.Background(), Job{Label: "ok", Fn: value(1)})

	if out := failing.Outcome(); !errors.Is(out.Err, boom) {
		t.Errorf("expected boom, got %v", out.Err)
	}
	if out := panicking.Outcome(); out.Err == nil || !strings.Contains(out.Err.Error(), "panic: kaboom") {
		t.Errorf("expected recovered panic, got %v", out.Err)
	}
	out := ok.Outcome()
	testutil.AssertNoError(t, out.Err)
	testutil.AssertEqual(t, out.Value, any(1))
}

func TestCancelDropsQueuedJob(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 1})

	release := make(chan struct{})
	blocker, _ := exec.Submit(context.Background(), Job{Label: "blocker", Fn: gate(release)})

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued, err := exec.Submit(ctx, Job{Label: "queued", Fn: func(context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	}})
	testutil.AssertNoError(t, err)

	cancel()
	select {
	case <-queued.Done():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("queued job was not dropped")
	}

	out := queued.Outcome()
	if !errors.Is(out.Err, sferrors.ErrNotAdmitted) {
		t.Errorf("expected ErrNotAdmitted, got %v", out.Err)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", out.Err)
	}
	testutil.AssertEqual(t, out.Admitted, false)
	testutil.AssertEqual(t, exec.Queued(), 0)

	close(release)
	testutil.AssertNoError(t, blocker.Outcome().Err)
	if ran.Load() {
		t.Error("dropped job must not run")
	}
}

func TestSubmit_PreCanceledContext(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, err := exec.Submit(ctx, Job{Label: "late", Fn: value(nil)})
	testutil.AssertNoError(t, err)
	out := f.Outcome()
	if !errors.Is(out.Err, sferrors.ErrNotAdmitted) {
		t.Errorf("expected ErrNotAdmitted, got %v", out.Err)
	}
}

func TestDetachRunning(t *testing.T) {
	tests := []struct {
		name    string
		detach  bool
		wantErr error
	}{
		{"detached job finishes", true, nil},
		{"attached job sees cancellation", false, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newExecutor(t, Config{Capacity: 1, DetachRunning: tt.detach})

			ctx, cancel := context.WithCancel(context.Background())
			started := make(chan struct{})
			release := make(chan struct{})
			f, err := exec.Submit(ctx, Job{Label: "running", Fn: func(ctx context.Context) (any, error) {
				close(started)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-release:
					return "finished", nil
				}
			}})
			testutil.AssertNoError(t, err)

			<-started
			cancel()
			if tt.detach {
				time.Sleep(10 * time.Millisecond)
				close(release)
			}

			out := f.Outcome()
			if tt.wantErr == nil {
				testutil.AssertNoError(t, out.Err)
				testutil.AssertEqual(t, out.Value, any("finished"))
			} else if !errors.Is(out.Err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, out.Err)
			}
		})
	}
}

func TestJobTimeout(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 1, JobTimeout: 20 * time.Millisecond})

	f, _ := exec.Submit(context.Background(), Job{Label: "slow", Fn: func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	if out := f.Outcome(); !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", out.Err)
	}
}

func TestShutdown(t *testing.T) {
	exec, err := New(Config{Capacity: 1})
	testutil.AssertNoError(t, err)

	release := make(chan struct{})
	running, _ := exec.Submit(context.Background(), Job{Label: "running", Fn: gate(release)})
	queued, _ := exec.Submit(context.Background(), Job{Label: "queued", Fn: value(nil)})

	done := exec.Shutdown()

	out := queued.Outcome()
	if !errors.Is(out.Err, sferrors.ErrClosed) {
		t.Errorf("queued job: expected ErrClosed, got %v", out.Err)
	}

	if _, err := exec.Submit(context.Background(), Job{Label: "after", Fn: value(nil)}); !errors.Is(err, sferrors.ErrClosed) {
		t.Errorf("submit after shutdown: expected ErrClosed, got %v", err)
	}

	select {
	case <-done:
		t.Fatal("shutdown completed while a job was running")
	case <-time.After(10 * time.Millisecond):
	}

	close(release)
	testutil.AssertNoError(t, running.Outcome().Err)
	select {
	case <-done:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("shutdown did not complete")
	}

	// Shutdown is idempotent.
	<-exec.Shutdown()
}

func TestFutureWait_ContextDone(t *testing.T) {
	exec := newExecutor(t, Config{Capacity: 1})
	release := make(chan struct{})
	defer close(release)

	f, _ := exec.Submit(context.Background(), Job{Label: "blocked", Fn: gate(release)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	exec := newExecutor(t, Config{Capacity: 2, Name: "exec-test", Mode: ModeWorkerPool, Metrics: reg})

	var futures []*Future
	for i := 0; i < 5; i++ {
		f, err := exec.Submit(context.Background(), Job{Label: fmt.Sprint(i), Fn: value(i)})
		testutil.AssertNoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		f.Outcome()
	}

	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksAdmitted.WithLabelValues("exec-test")), 5.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.QueueDepth.WithLabelValues("exec-test")), 0.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SlotsCapacity.WithLabelValues("exec-test")), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.SlotsInUse.WithLabelValues("exec-test")), 0.0)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeGoroutine, false},
		{"goroutine", ModeGoroutine, false},
		{"WorkerPool", ModeWorkerPool, false},
		{" pool ", ModeWorkerPool, false},
		{"threads", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				testutil.AssertError(t, err)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}
