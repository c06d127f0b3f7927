// Package metrics provides Prometheus instrumentation for slotflow components.
//
// A Registry groups the counters, gauges and histograms used by the
// scheduler, the bounded executor, the slot limiter, the worker pool, the
// recurring runner and the report sinks. Components take a *Registry and skip
// instrumentation when it is nil.
//
// Use a private Prometheus registry to keep components isolated:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//	sched, _ := priority.New(priority.Config{Capacity: 2, Metrics: m})
//
// and expose it over HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics
