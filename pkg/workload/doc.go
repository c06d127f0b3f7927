// Package workload supplies batches and work functions for the priority
// scheduler: timed sleeps standing in for real work, failure injection,
// a concurrency probe and YAML batch files.
//
// A batch file looks like:
//
//	capacity: 2
//	unit: 100ms
//	tasks:
//	  - name: Emergency
//	    priority: 1
//	    duration: 1s
//	  - name: Background
//	    priority: 4
//	    duration: 5
//
// Numeric durations are seconds. Unit, when set, is how long one second of
// task duration lasts on the wall clock.
package workload
