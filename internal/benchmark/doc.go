// Package benchmark holds cross-package benchmarks for the scheduling stack.
package benchmark
