package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	logx "delaybot/pkg/logx"
)

// Recover re-arms every stored job. It runs once per Core, normally at
// startup before front ends accept commands.
//
// Recovery reads the store unfiltered: overdue jobs are armed with a zero
// delay and fire right away. Per-job failures are logged and returned as
// one aggregated error; the remaining jobs are still restored.
func (c *Core) Recover(ctx context.Context) (RecoverReport, error) {
	start := time.Now()
	c.recoverMu.Lock()
	defer c.recoverMu.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return RecoverReport{}, ErrStopped
	}
	if c.recovered {
		c.mu.Unlock()
		return RecoverReport{}, ErrAlreadyRecovered
	}
	c.recovered = true
	c.mu.Unlock()

	list, err := c.store.ListAll(ctx)
	if err != nil {
		c.mu.Lock()
		c.recovered = false
		c.mu.Unlock()
		return RecoverReport{}, &StorageError{Op: "list", Err: err}
	}

	rep := RecoverReport{Found: len(list)}
	var merr *multierror.Error
	now := time.Now()
	for _, j := range list {
		if err := j.Validate(); err != nil {
			rep.Failed++
			merr = multierror.Append(merr, fmt.Errorf("job %s: %w", j.ID, err))
			c.log.Warn("skipping invalid stored job", logx.String("job_id", j.ID), logx.Err(err))
			continue
		}

		c.mu.Lock()
		if _, ok := c.jobs[j.ID]; ok {
			c.mu.Unlock()
			rep.Skipped++
			continue
		}
		c.jobs[j.ID] = &tracked{job: j}
		delay := j.Remaining(now)
		if err := c.timers.ArmOnce(j.ID, delay, c.fireFunc(j.ID)); err != nil {
			delete(c.jobs, j.ID)
			c.mu.Unlock()
			rep.Failed++
			merr = multierror.Append(merr, fmt.Errorf("job %s: %w", j.ID, err))
			c.log.Warn("failed to re-arm stored job", logx.String("job_id", j.ID), logx.Err(err))
			continue
		}
		c.mu.Unlock()

		rep.Restored++
		if delay == 0 {
			rep.Overdue++
		}
		c.log.Debug("job restored",
			logx.String("job_id", j.ID),
			logx.Time("run_at", j.RunAt),
			logx.Duration("remaining", delay),
		)
	}
	rep.Took = time.Since(start)
	c.restored.Add(uint64(rep.Restored))

	c.log.Info("pending jobs restored",
		logx.Int("found", rep.Found),
		logx.Int("restored", rep.Restored),
		logx.Int("overdue", rep.Overdue),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took),
	)
	c.publish(EventRestored, JobEvent{Count: rep.Restored})
	return rep, merr.ErrorOrNil()
}
