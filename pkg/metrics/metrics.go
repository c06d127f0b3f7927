package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for slotflow components.
type Registry struct {
	// Scheduler Metrics
	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksDropped   *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec

	// Executor Metrics
	TasksAdmitted *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	AdmissionWait *prometheus.HistogramVec

	// Slot Metrics
	SlotsCapacity *prometheus.GaugeVec
	SlotsInUse    *prometheus.GaugeVec
	SlotsWaiting  *prometheus.GaugeVec

	// Worker Pool Metrics
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolActive *prometheus.GaugeVec

	// Recurring and Reporting Metrics
	RecurringFirings *prometheus.CounterVec
	ReportsPublished *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by slotflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return New(Config{Registry: reg})
}

// New creates a metrics registry honoring the namespace and constant labels of cfg.
// A nil cfg.Registry registers on prometheus.DefaultRegisterer.
func New(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			Buckets:     prometheus.DefBuckets,
			ConstLabels: cfg.Labels,
		}, labels)
	}

	return &Registry{
		TasksSubmitted: counter("scheduler", "tasks_submitted_total", "Total number of tasks submitted in batches", "scheduler_name"),
		TasksCompleted: counter("scheduler", "tasks_completed_total", "Total number of tasks completed successfully", "scheduler_name"),
		TasksFailed:    counter("scheduler", "tasks_failed_total", "Total number of tasks whose work failed", "scheduler_name"),
		TasksDropped:   counter("scheduler", "tasks_dropped_total", "Total number of queued tasks never admitted", "scheduler_name"),
		TaskDuration:   histogram("scheduler", "task_duration_seconds", "Time spent executing tasks", "scheduler_name"),
		Runs:           counter("scheduler", "runs_total", "Total number of scheduling runs", "scheduler_name", "outcome"),
		RunDuration:    histogram("scheduler", "run_duration_seconds", "Wall-clock duration of scheduling runs", "scheduler_name"),

		TasksAdmitted: counter("executor", "admitted_total", "Total number of jobs admitted into a slot", "executor_name"),
		QueueDepth:    gauge("executor", "queue_depth", "Number of jobs waiting for a slot", "executor_name"),
		AdmissionWait: histogram("executor", "admission_wait_seconds", "Time jobs spent queued before admission", "executor_name"),

		SlotsCapacity: gauge("slots", "capacity", "Number of admission slots", "limiter_name"),
		SlotsInUse:    gauge("slots", "in_use", "Number of occupied admission slots", "limiter_name"),
		SlotsWaiting:  gauge("slots", "waiting", "Number of callers blocked waiting for a slot", "limiter_name"),

		WorkerPoolSize:   gauge("workerpool", "size", "Current worker pool size", "pool_name"),
		WorkerPoolActive: gauge("workerpool", "active_workers", "Number of active workers", "pool_name"),

		RecurringFirings: counter("recurring", "firings_total", "Total number of recurring run firings", "job_id", "outcome"),
		ReportsPublished: counter("report", "published_total", "Total number of run reports published", "sink", "outcome"),
	}
}
