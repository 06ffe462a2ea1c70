// Package timer arms one-shot, in-memory wall-clock timers keyed by job id.
//
// Timers are runtime state only. After a restart the scheduler rebuilds them
// from the durable store.
package timer

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrDuplicateTimer = errors.New("timer: id already armed")
	ErrStopped        = errors.New("timer: engine stopped")
)

// Engine invokes a callback once per armed id after a delay.
type Engine interface {
	// ArmOnce schedules fn to run once after delay. A delay <= 0 fires as soon as possible.
	// The id is released before fn runs, so fn may arm the same id again.
	ArmOnce(id string, delay time.Duration, fn func()) error
	// Cancel disarms id. It reports whether a pending timer was removed.
	Cancel(id string) bool
	Armed(id string) bool
	Len() int
	// Stop disarms every timer and returns how many were pending.
	Stop() int
}

type entry struct {
	t   *time.Timer
	ver uint64
}

// AfterFuncEngine is the time.AfterFunc-backed Engine.
type AfterFuncEngine struct {
	mu      sync.Mutex
	timers  map[string]entry
	ver     uint64
	stopped bool
}

func New() *AfterFuncEngine {
	return &AfterFuncEngine{timers: map[string]entry{}}
}

func (e *AfterFuncEngine) ArmOnce(id string, delay time.Duration, fn func()) error {
	if fn == nil {
		return errors.New("timer: nil callback")
	}
	if delay < 0 {
		delay = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if _, ok := e.timers[id]; ok {
		return ErrDuplicateTimer
	}
	e.ver++
	localVer := e.ver
	t := time.AfterFunc(delay, func() {
		// If the timer was cancelled or replaced, ignore this callback.
		e.mu.Lock()
		cur, ok := e.timers[id]
		if !ok || cur.ver != localVer {
			e.mu.Unlock()
			return
		}
		delete(e.timers, id)
		e.mu.Unlock()

		fn()
	})
	e.timers[id] = entry{t: t, ver: localVer}
	return nil
}

func (e *AfterFuncEngine) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.timers[id]
	if !ok {
		return false
	}
	_ = cur.t.Stop()
	delete(e.timers, id)
	return true
}

func (e *AfterFuncEngine) Armed(id string) bool {
	e.mu.Lock()
	_, ok := e.timers[id]
	e.mu.Unlock()
	return ok
}

func (e *AfterFuncEngine) Len() int {
	e.mu.Lock()
	n := len(e.timers)
	e.mu.Unlock()
	return n
}

func (e *AfterFuncEngine) Stop() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.timers)
	for _, cur := range e.timers {
		_ = cur.t.Stop()
	}
	e.timers = map[string]entry{}
	e.stopped = true
	return n
}
