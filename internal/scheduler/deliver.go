package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "delaybot/pkg/logx"
)

func (c *Core) fireFunc(id string) func() {
	return func() { c.fire(id) }
}

// fire runs on the timer goroutine when a job becomes due.
func (c *Core) fire(id string) {
	c.mu.Lock()
	tr, ok := c.jobs[id]
	if !ok || c.stopped {
		// Cancelled before the deadline, or shutting down.
		c.mu.Unlock()
		return
	}
	tr.delivering = true
	tr.attempt++
	attempt := tr.attempt
	j := tr.job
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.active.Add(1)
	start := time.Now()
	err := c.callSink(j.Destination, j.Payload)
	c.active.Add(-1)
	took := time.Since(start)

	c.mu.Lock()
	// A Cancel during the Sink call removed or replaced the entry.
	stillOurs := c.jobs[id] == tr
	if err == nil {
		if stillOurs {
			delete(c.jobs, id)
		}
		c.mu.Unlock()
		c.onDelivered(id, attempt, took)
		return
	}

	c.failed.Add(1)
	derr := &DeliveryError{ID: id, Attempt: attempt, Err: err}
	if !stillOurs {
		c.mu.Unlock()
		c.log.Warn("delivery failed for cancelled job", logx.String("job_id", id), logx.Err(derr))
		return
	}

	retry := !IsNoRetry(err) && attempt <= c.cfg.RetryMax && !c.stopped
	if !retry {
		delete(c.jobs, id)
		c.mu.Unlock()
		c.log.Error("delivery failed, job kept for next restart",
			logx.String("job_id", id),
			logx.Int("attempt", attempt),
			logx.Bool("permanent", IsNoRetry(err)),
			logx.Err(derr),
		)
		c.publish(EventDeliveryFailed, JobEvent{ID: id, Destination: j.Destination, Attempt: attempt, Final: true, Error: err.Error()})
		return
	}

	delay := c.backoff(attempt, err)
	tr.delivering = false
	if aerr := c.timers.ArmOnce(id, delay, c.fireFunc(id)); aerr != nil {
		delete(c.jobs, id)
		c.mu.Unlock()
		c.log.Error("re-arm after failed delivery failed, job kept for next restart",
			logx.String("job_id", id), logx.Err(aerr))
		return
	}
	c.mu.Unlock()

	c.retried.Add(1)
	c.log.Warn("delivery failed, retry scheduled",
		logx.String("job_id", id),
		logx.Int("attempt", attempt),
		logx.Duration("retry_in", delay),
		logx.Err(derr),
	)
	c.publish(EventDeliveryFailed, JobEvent{ID: id, Destination: j.Destination, Attempt: attempt, Error: err.Error()})
}

// callSink invokes the sink with a bounded context and turns panics into errors.
func (c *Core) callSink(dest string, payload []string) (err error) {
	if c.sink == nil {
		return NoRetry(errors.New("no sink configured"))
	}
	ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.DeliverTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("sink panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return c.sink.Deliver(ctx, dest, payload)
}

func (c *Core) onDelivered(id string, attempt int, took time.Duration) {
	c.delivered.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.Delete(ctx, id); err != nil {
		c.log.Error("durability anomaly: delivered job could not be removed and will be delivered again after restart",
			logx.String("job_id", id),
			logx.Err(err),
		)
	}
	c.log.Info("job delivered",
		logx.String("job_id", id),
		logx.Int("attempt", attempt),
		logx.Duration("took", took),
	)
	c.publish(EventDelivered, JobEvent{ID: id, Attempt: attempt})
}

// backoff returns the jittered exponential delay before retry number attempt,
// honouring RetryAfter hints.
func (c *Core) backoff(attempt int, err error) time.Duration {
	maxD := c.cfg.RetryMaxDelay

	var d time.Duration
	var ra RetryAfterError
	if errors.As(err, &ra) {
		d = ra.RetryAfter()
	} else {
		d = c.cfg.RetryBase
		for i := 1; i < attempt; i++ {
			d *= 2
			if d > maxD {
				d = maxD
				break
			}
		}
	}
	if d > maxD {
		d = maxD
	}

	c.rngMu.Lock()
	r := (c.rng.Float64()*2 - 1) * c.cfg.RetryJitter
	c.rngMu.Unlock()
	if d > 0 {
		d = time.Duration(float64(d) * (1 + r))
	}
	if d < 0 {
		d = 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
