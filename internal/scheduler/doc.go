// Package scheduler runs the proxy's periodic maintenance jobs on standard
// 5-field cron expressions: the full state resync against the PBX and the
// pruning of conversation history past its retention window.
//
//	s := scheduler.New(logger)
//	s.Add(scheduler.Job{Name: "resync", Schedule: "*/15 * * * *", Run: engine.Resync})
//	s.Start(ctx)
//	defer s.Stop()
//
// A run that is still going when its next tick arrives is skipped, and a
// panicking job is logged and does not stop the scheduler.
package scheduler
