// Package recurring fires jobs on cron schedules.
//
// Each firing of a job is independent; in slotflow a job typically runs one
// whole batch through the priority scheduler. Firings execute on a small
// worker pool so that a slow firing does not hold up the tick loop.
//
//	r, _ := recurring.New(recurring.Config{})
//	_ = r.Add("nightly", "0 30 2 * * *", runBatch, recurring.Options{SkipIfStillRunning: true})
//	_ = r.Start(ctx)
//	defer func() { <-r.Stop() }()
package recurring
