// Package scheduler is the delayed-job core shared by every front end.
//
// A Core persists each submitted job before arming its in-memory timer, and
// removes the record only after the Sink reports a successful delivery.
// On startup Recover re-arms every stored job, overdue ones included, so a
// job is delivered at least once even across crashes.
//
// Cancel and delivery are mutually exclusive per job id: a Cancel that wins
// the race guarantees the job never reaches the Sink. A Cancel that arrives
// while the Sink call is in flight cannot stop that call, but the job is
// never retried afterwards.
package scheduler
