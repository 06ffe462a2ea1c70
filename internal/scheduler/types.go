package scheduler

import (
	"context"
	"time"
)

// Sink delivers a fired job's payload to its destination.
//
// Implementations should return errors wrapped with NoRetry for permanent
// failures and RetryAfter when the remote side asks for a pause.
type Sink interface {
	Deliver(ctx context.Context, destination string, payload []string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, destination string, payload []string) error

func (f SinkFunc) Deliver(ctx context.Context, destination string, payload []string) error {
	return f(ctx, destination, payload)
}

// Config tunes delivery. Zero values use the defaults noted per field.
type Config struct {
	// Name identifies the core in logs and events (e.g. the bot name).
	Name string

	// DeliverTimeout bounds one Sink call (default 30s).
	DeliverTimeout time.Duration

	// RetryMax is the number of in-process retries after a failed delivery
	// (default 3; negative disables retries). Once exhausted the record stays
	// in the store and the next Recover tries again.
	RetryMax      int
	RetryBase     time.Duration // default 1s
	RetryMaxDelay time.Duration // default 1m
	RetryJitter   float64       // default 0.2
}

func (c Config) withDefaults() Config {
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 30 * time.Second
	}
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = time.Minute
	}
	if c.RetryMaxDelay < c.RetryBase {
		c.RetryMaxDelay = c.RetryBase
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	return c
}

// RecoverReport summarizes one Recover pass.
type RecoverReport struct {
	Found    int // records in the store
	Restored int // timers armed
	Overdue  int // restored with a zero delay
	Skipped  int // already armed by a Submit that ran before Recover
	Failed   int
	Took     time.Duration
}

// Snapshot is a point-in-time view of a core for status endpoints.
type Snapshot struct {
	Name      string `json:"name"`
	Recovered bool   `json:"recovered"`
	Stopped   bool   `json:"stopped"`
	Armed     int    `json:"armed"`
	Tracked   int    `json:"tracked"`
	InFlight  int64  `json:"in_flight"`

	Submitted uint64 `json:"submitted"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	Cancelled uint64 `json:"cancelled"`
	Restored  uint64 `json:"restored"`
}
