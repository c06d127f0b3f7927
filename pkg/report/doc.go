// Package report summarizes scheduler runs and publishes the summaries.
//
// Summarize derives the figures of interest from a run: the sequential time
// a single slot would need, the lower bound for the configured capacity,
// speedup and efficiency. Render and RenderPlan format runs and plans for
// terminals. Sinks deliver summaries to writers or to a capped Redis list.
package report
