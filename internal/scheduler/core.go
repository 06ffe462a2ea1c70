package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"delaybot/internal/eventbus"
	"delaybot/internal/job"
	"delaybot/internal/storage"
	"delaybot/internal/timer"
	logx "delaybot/pkg/logx"
)

const idAttempts = 3

// tracked is the runtime state of one stored job.
type tracked struct {
	job        job.Job
	attempt    int
	delivering bool
}

// Core owns the lifecycle of delayed jobs for one front end.
type Core struct {
	cfg    Config
	store  storage.Store
	timers timer.Engine
	sink   Sink
	log    logx.Logger
	bus    eventbus.Bus

	// recoverMu keeps Submit's insert-then-track window disjoint from
	// Recover's list-then-arm pass, so a job is never armed by both.
	recoverMu sync.RWMutex

	// mu guards jobs, recovered, stopped. Lock order: recoverMu, mu, then the
	// timer engine.
	mu        sync.Mutex
	jobs      map[string]*tracked
	recovered bool
	stopped   bool

	inflight sync.WaitGroup
	active   atomic.Int64

	// baseCtx parents every delivery; cancelled when Stop gives up waiting.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	submitted atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	cancelled atomic.Uint64
	restored  atomic.Uint64
}

// New builds a core. A nil engine gets a fresh timer.New(); bus may be nil.
func New(cfg Config, store storage.Store, engine timer.Engine, sink Sink, log logx.Logger, bus eventbus.Bus) *Core {
	if log.IsZero() {
		log = logx.Nop()
	}
	if engine == nil {
		engine = timer.New()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Core{
		cfg:        cfg,
		store:      store,
		timers:     engine,
		sink:       sink,
		log:        log,
		bus:        bus,
		jobs:       map[string]*tracked{},
		baseCtx:    ctx,
		baseCancel: cancel,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Core) Name() string { return c.cfg.Name }

// Submit persists a job and arms its timer. The returned id is durable:
// the job survives a crash from this point on.
//
// delay must not be negative; zero fires as soon as possible. Submit may run
// concurrently with Recover; it waits for a recovery pass in progress.
func (c *Core) Submit(ctx context.Context, destination string, payload []string, delay time.Duration) (string, error) {
	if delay < 0 {
		return "", &RequestError{Field: "delay", Reason: "must not be negative"}
	}
	if strings.TrimSpace(destination) == "" {
		return "", &RequestError{Field: "destination", Reason: "required"}
	}
	if len(payload) == 0 {
		return "", &RequestError{Field: "payload", Reason: "at least one field required"}
	}
	for i, f := range payload {
		if f == "" {
			return "", &RequestError{Field: fmt.Sprintf("payload[%d]", i), Reason: "empty"}
		}
	}

	c.recoverMu.RLock()
	defer c.recoverMu.RUnlock()

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return "", ErrStopped
	}

	now := time.Now()
	j := job.Job{
		Destination: destination,
		Payload:     append([]string(nil), payload...),
		RunAt:       now.Add(delay).UTC(),
		CreatedAt:   now.UTC(),
	}

	var err error
	for i := 0; i < idAttempts; i++ {
		j.ID = job.NewID()
		err = c.store.Insert(ctx, j)
		if !errors.Is(err, storage.ErrDuplicateID) {
			break
		}
		c.log.Warn("job id collision, regenerating", logx.String("job_id", j.ID))
	}
	if errors.Is(err, storage.ErrDuplicateID) {
		return "", ErrDuplicateID
	}
	if err != nil {
		return "", &StorageError{Op: "insert", ID: j.ID, Err: err}
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.rollback(j.ID)
		return "", ErrStopped
	}
	c.jobs[j.ID] = &tracked{job: j}
	if err := c.timers.ArmOnce(j.ID, delay, c.fireFunc(j.ID)); err != nil {
		delete(c.jobs, j.ID)
		c.mu.Unlock()
		c.rollback(j.ID)
		return "", fmt.Errorf("arm timer %s: %w", j.ID, err)
	}
	c.mu.Unlock()

	c.submitted.Add(1)
	c.log.Info("job submitted",
		logx.String("job_id", j.ID),
		logx.String("destination", j.Destination),
		logx.Duration("delay", delay),
		logx.Time("run_at", j.RunAt),
	)
	c.publish(EventSubmitted, JobEvent{ID: j.ID, Destination: j.Destination, RunAt: j.RunAt})
	return j.ID, nil
}

// rollback removes a record whose timer could not be armed.
func (c *Core) rollback(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Delete(ctx, id); err != nil {
		// The record will be delivered by the next Recover.
		c.log.Error("rollback of unarmed job failed", logx.String("job_id", id), logx.Err(err))
	}
}

// Cancel disarms and deletes a job. It reports whether the job existed.
// Cancelling an unknown or already delivered id is a no-op.
func (c *Core) Cancel(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, &RequestError{Field: "id", Reason: "required"}
	}

	c.mu.Lock()
	tr, known := c.jobs[id]
	if known {
		delete(c.jobs, id)
		_ = c.timers.Cancel(id)
	}
	c.mu.Unlock()

	_, inStore, err := c.store.Get(ctx, id)
	if err != nil {
		return known, &StorageError{Op: "get", ID: id, Err: err}
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return known, &StorageError{Op: "delete", ID: id, Err: err}
	}
	found := known || inStore
	if !found {
		return false, nil
	}

	c.cancelled.Add(1)
	fields := []logx.Field{logx.String("job_id", id)}
	if tr != nil && tr.delivering {
		fields = append(fields, logx.Bool("in_flight", true))
	}
	c.log.Info("job cancelled", fields...)
	c.publish(EventCancelled, JobEvent{ID: id})
	return true, nil
}

// Get returns a stored job.
func (c *Core) Get(ctx context.Context, id string) (job.Job, bool, error) {
	j, ok, err := c.store.Get(ctx, id)
	if err != nil {
		return job.Job{}, false, &StorageError{Op: "get", ID: id, Err: err}
	}
	return j, ok, nil
}

// Pending lists stored jobs that are not yet due.
func (c *Core) Pending(ctx context.Context) ([]job.Job, error) {
	list, err := c.store.ListPending(ctx, time.Now())
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return list, nil
}

// PendingAll lists every stored job, overdue ones included.
func (c *Core) PendingAll(ctx context.Context) ([]job.Job, error) {
	list, err := c.store.ListAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return list, nil
}

func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Name:      c.cfg.Name,
		Recovered: c.recovered,
		Stopped:   c.stopped,
		Tracked:   len(c.jobs),
	}
	c.mu.Unlock()
	s.Armed = c.timers.Len()
	s.InFlight = c.active.Load()
	s.Submitted = c.submitted.Load()
	s.Delivered = c.delivered.Load()
	s.Failed = c.failed.Load()
	s.Retried = c.retried.Load()
	s.Cancelled = c.cancelled.Load()
	s.Restored = c.restored.Load()
	return s
}

// Stop disarms every timer and waits for in-flight deliveries until ctx is done.
// Stored records are kept for the next Recover.
func (c *Core) Stop(ctx context.Context) error {
	start := time.Now()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	disarmed := c.timers.Stop()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight deliveries: %w", ctx.Err())
	}
	c.baseCancel()

	c.log.Info("scheduler stopped",
		logx.Int("disarmed", disarmed),
		logx.Duration("took", time.Since(start)),
	)
	return err
}

func (c *Core) publish(typ string, ev JobEvent) {
	if c.bus == nil {
		return
	}
	ev.Core = c.cfg.Name
	c.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
