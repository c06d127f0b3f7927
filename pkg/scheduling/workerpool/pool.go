package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/common/validation"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result describes one finished task. It is delivered to OnTaskComplete.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool runs tasks on a fixed set of worker goroutines.
type Pool interface {
	// Submit queues a task. It blocks while the queue is full.
	Submit(task Task) error

	// SubmitWithContext queues a task, giving up when ctx is done. ctx is
	// also the context the task executes with.
	SubmitWithContext(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks, lets queued and running tasks finish
	// and returns a channel that closes once every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the capacity of the task queue. Zero makes Submit hand
	// tasks directly to an idle worker.
	QueueSize int

	// TaskTimeout bounds each task's execution. Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics. The panic is always
	// recovered and reported as the task's error.
	PanicHandler func(task Task, recovered interface{})

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config

	taskQueue    chan taskWithContext
	shutdownOnce sync.Once
	done         chan struct{}

	mu         sync.RWMutex // guards isShutdown against the queue close
	isShutdown bool

	activeWorkers  atomic.Int64
	totalCompleted atomic.Int64

	workerWg sync.WaitGroup
}

type taskWithContext struct {
	task Task
	ctx  context.Context
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *workerPool
}

// New creates a worker pool with the given number of workers and queue capacity.
// It panics on invalid parameters; use NewWithConfig to get an error instead.
func New(workerCount, queueSize int) Pool {
	p, err := NewWithConfig(Config{WorkerCount: workerCount, QueueSize: queueSize})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a worker pool with the specified configuration.
func NewWithConfig(config Config) (Pool, error) {
	if err := validation.ValidatePositive("workerpool", "worker_count", config.WorkerCount); err != nil {
		return nil, err
	}
	if config.QueueSize < 0 {
		return nil, sferrors.NewValidationError("workerpool", "queue_size", config.QueueSize, "cannot be negative")
	}
	if err := validation.ValidateNonNegativeDuration("workerpool", "task_timeout", config.TaskTimeout); err != nil {
		return nil, err
	}

	pool := &workerPool{
		config:    config,
		taskQueue: make(chan taskWithContext, config.QueueSize),
		done:      make(chan struct{}),
	}

	for i := 0; i < config.WorkerCount; i++ {
		w := &worker{id: i, pool: pool}
		pool.workerWg.Add(1)
		go w.run()
	}

	return pool, nil
}
