package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vnykmshr/slotflow/pkg/scheduling/admission"
	"github.com/vnykmshr/slotflow/pkg/scheduling/executor"
	"github.com/vnykmshr/slotflow/pkg/scheduling/priority"
	"github.com/vnykmshr/slotflow/pkg/workload"
)

func noop(context.Context) (any, error) { return nil, nil }

// BenchmarkExecutorSubmit measures admission and completion of empty jobs.
func BenchmarkExecutorSubmit(b *testing.B) {
	for _, mode := range []executor.Mode{executor.ModeGoroutine, executor.ModeWorkerPool} {
		for _, capacity := range []int{1, 4, 16} {
			b.Run(fmt.Sprintf("%s/capacity-%d", mode, capacity), func(b *testing.B) {
				exec, err := executor.New(executor.Config{Capacity: capacity, Mode: mode})
				if err != nil {
					b.Fatalf("failed to create executor: %v", err)
				}
				defer func() { <-exec.Shutdown() }()

				ctx := context.Background()
				futures := make([]*executor.Future, 0, b.N)

				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					f, err := exec.Submit(ctx, executor.Job{Priority: i % 4, Fn: noop})
					if err != nil {
						b.Fatalf("submit failed: %v", err)
					}
					futures = append(futures, f)
				}
				for _, f := range futures {
					<-f.Done()
				}
			})
		}
	}
}

// BenchmarkAdmissionQueue measures push/pop over mixed priorities.
func BenchmarkAdmissionQueue(b *testing.B) {
	q := admission.New()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(i%8+1, i)
		if q.Len() > 64 {
			q.Pop()
		}
	}
}

// BenchmarkSchedule measures a full run of the reference batch with no work.
func BenchmarkSchedule(b *testing.B) {
	batch := workload.ReferenceBatch()
	work := func(context.Context, priority.Task) (any, error) { return nil, nil }

	sched, err := priority.New(priority.Config{Capacity: 2})
	if err != nil {
		b.Fatalf("failed to create scheduler: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sched.Schedule(context.Background(), batch, work); err != nil {
			b.Fatalf("schedule failed: %v", err)
		}
	}
}

// BenchmarkSimulate measures the virtual-time planner on a large batch.
func BenchmarkSimulate(b *testing.B) {
	batch := make([]priority.Task, 1000)
	for i := range batch {
		batch[i] = priority.Task{
			Name:     fmt.Sprintf("task-%d", i),
			Priority: i%10 + 1,
			Duration: time.Duration(i%7+1) * time.Second,
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := priority.Simulate(batch, 8); err != nil {
			b.Fatalf("simulate failed: %v", err)
		}
	}
}
