package recurring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/common/validation"
	"github.com/vnykmshr/slotflow/pkg/metrics"
	"github.com/vnykmshr/slotflow/pkg/scheduling/workerpool"
)

// RunFunc is invoked on every firing of a job.
type RunFunc func(ctx context.Context) error

// Options tune a single job.
type Options struct {
	// MaxRuns removes the job after this many firings (0 = unlimited).
	MaxRuns int

	// SkipIfStillRunning drops a firing while the previous one is running.
	SkipIfStillRunning bool

	// OnError is called when a firing returns an error.
	OnError func(id string, err error)

	// OnSkip is called when a firing is skipped.
	OnSkip func(id string)
}

// Entry describes a registered job.
type Entry struct {
	ID         string
	Expression string
	Next       time.Time
	Runs       int
	Created    time.Time
}

// Config holds runner configuration.
type Config struct {
	// Location evaluates cron expressions. Defaults to time.Local.
	Location *time.Location

	// TickInterval is how often due jobs are checked. Defaults to 50ms.
	TickInterval time.Duration

	// Workers bounds concurrent firings. Defaults to 1.
	Workers int

	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// Runner fires registered jobs on cron schedules.
type Runner interface {
	// Add registers a job. Expressions accept an optional seconds field and
	// descriptors such as "@hourly" or "@every 30s".
	Add(id, expr string, fn RunFunc, opts Options) error

	// Remove unregisters a job. Firings already running finish.
	Remove(id string) bool

	// Next returns the next firing time of a job.
	Next(id string) (time.Time, error)

	// List returns registered jobs ordered by next firing.
	List() []Entry

	// Start begins firing jobs. Firings run with ctx.
	Start(ctx context.Context) error

	// Stop halts firing and returns a channel closed once running firings end.
	Stop() <-chan struct{}
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether expr is a valid schedule expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return sferrors.NewValidationError("recurring", "expression", expr, err.Error()).
			WithHint(`use "sec min hour dom month dow", 5-field cron, or a descriptor like "@every 1m"`)
	}
	return nil
}

type job struct {
	id       string
	expr     string
	schedule cron.Schedule
	fn       RunFunc
	opts     Options
	next     time.Time
	runs     int
	running  bool
	created  time.Time
}

type runner struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	pool    workerpool.Pool
	loopWg  sync.WaitGroup
	running bool
	stopped chan struct{}
}

// New creates a Runner.
func New(cfg Config) (Runner, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if err := validation.ValidatePositive("recurring", "workers", cfg.Workers); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &runner{
		cfg:    cfg,
		logger: logger,
		jobs:   make(map[string]*job),
	}, nil
}

func (r *runner) Add(id, expr string, fn RunFunc, opts Options) error {
	if err := validation.ValidateNotEmpty("recurring", "id", id); err != nil {
		return err
	}
	if fn == nil {
		return sferrors.NewValidationError("recurring", "fn", nil, "cannot be nil")
	}
	if opts.MaxRuns < 0 {
		return sferrors.NewValidationError("recurring", "max_runs", opts.MaxRuns, "cannot be negative")
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return Validate(expr)
	}
	return r.add(id, expr, schedule, fn, opts)
}

func (r *runner) add(id, expr string, schedule cron.Schedule, fn RunFunc, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		return sferrors.NewValidationError("recurring", "id", id, "already registered").
			WithHint("remove the existing job first")
	}
	now := time.Now().In(r.cfg.Location)
	r.jobs[id] = &job{
		id:       id,
		expr:     expr,
		schedule: schedule,
		fn:       fn,
		opts:     opts,
		next:     schedule.Next(now),
		created:  now,
	}
	return nil
}

func (r *runner) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		delete(r.jobs, id)
		return true
	}
	return false
}

func (r *runner) Next(id string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return time.Time{}, sferrors.NewOperationError("recurring", "Next", fmt.Errorf("job %q not found", id))
	}
	return j.next, nil
}

func (r *runner) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.jobs))
	for _, j := range r.jobs {
		entries = append(entries, Entry{
			ID:         j.id,
			Expression: j.expr,
			Next:       j.next,
			Runs:       j.runs,
			Created:    j.created,
		})
	}
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].Next.Before(entries[k].Next)
	})
	return entries
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return sferrors.NewOperationError("recurring", "Start", fmt.Errorf("already running"))
	}
	if r.stopped != nil {
		return sferrors.NewOperationError("recurring", "Start", sferrors.ErrClosed)
	}

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: r.cfg.Workers,
		QueueSize:   r.cfg.Workers,
	})
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.ctx = ctx
	r.cancel = cancel
	r.pool = pool
	r.running = true
	r.loopWg.Add(1)
	go r.loop(loopCtx)
	return nil
}

func (r *runner) Stop() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped != nil {
		return r.stopped
	}
	r.stopped = make(chan struct{})
	if !r.running {
		close(r.stopped)
		return r.stopped
	}

	r.running = false
	r.cancel()
	pool := r.pool
	stopped := r.stopped
	go func() {
		r.loopWg.Wait()
		<-pool.Shutdown()
		close(stopped)
	}()
	return stopped
}

func (r *runner) loop(ctx context.Context) {
	defer r.loopWg.Done()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.fireDue(ctx, now)
		}
	}
}

// fireDue submits every job whose next firing has passed.
func (r *runner) fireDue(ctx context.Context, now time.Time) {
	r.mu.Lock()
	var due []*job
	for id, j := range r.jobs {
		if now.Before(j.next) {
			continue
		}
		j.next = j.schedule.Next(now.In(r.cfg.Location))

		if j.running && j.opts.SkipIfStillRunning {
			r.logger.Debug("firing skipped", "job", id)
			r.count(id, "skipped")
			if j.opts.OnSkip != nil {
				j.opts.OnSkip(id)
			}
			continue
		}

		j.runs++
		j.running = true
		due = append(due, j)
		if j.opts.MaxRuns > 0 && j.runs >= j.opts.MaxRuns {
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, j := range due {
		err := r.pool.SubmitWithContext(ctx, workerpool.TaskFunc(func(context.Context) error {
			r.fire(j)
			return nil
		}))
		if err != nil {
			r.mu.Lock()
			j.running = false
			r.mu.Unlock()
			r.logger.Warn("firing not submitted", "job", j.id, "error", err)
		}
	}
}

func (r *runner) fire(j *job) {
	r.logger.Info("firing", "job", j.id)
	err := j.fn(r.ctx)

	r.mu.Lock()
	j.running = false
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("firing failed", "job", j.id, "error", err)
		r.count(j.id, "error")
		if j.opts.OnError != nil {
			j.opts.OnError(j.id, err)
		}
		return
	}
	r.count(j.id, "success")
}

func (r *runner) count(id, outcome string) {
	if m := r.cfg.Metrics; m != nil {
		m.RecurringFirings.WithLabelValues(id, outcome).Inc()
	}
}
