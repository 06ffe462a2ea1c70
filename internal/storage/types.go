package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/spf13/afero"

	"delaybot/internal/job"
)

var (
	ErrDuplicateID = errors.New("storage: duplicate job id")
	ErrClosed      = errors.New("storage: closed")
)

// Store persists pending jobs keyed by job id.
//
// Implementations serialize their own writes and are safe for concurrent use.
type Store interface {
	// Insert commits a new job. It fails with ErrDuplicateID if the id exists.
	Insert(ctx context.Context, j job.Job) error
	// Delete removes a job. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (job.Job, bool, error)
	// ListPending returns jobs whose run_at is strictly after asOf, ordered by run_at.
	// Overdue jobs are excluded, so recovery must not use it.
	ListPending(ctx context.Context, asOf time.Time) ([]job.Job, error)
	// ListAll returns every job that has not fired yet, overdue ones included, ordered by run_at.
	ListAll(ctx context.Context) ([]job.Job, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Config configures a store.
//
// Driver values:
//   - "sqlite" (or "sqlite3", or empty): SQLite database at Path
//   - "file": journal/snapshot files derived from Path
//   - "redis": redis server from Redis
//
// Namespace separates front ends that share one database or redis server.
type Config struct {
	Driver      string
	Path        string
	Namespace   string
	BusyTimeout time.Duration // sqlite only; 0 means 1s

	// CompactEvery is the file driver's journal compaction interval in writes (0 means 500).
	CompactEvery int

	Redis RedisConfig

	// Fs overrides the filesystem used by the file driver (tests use afero.NewMemMapFs).
	Fs afero.Fs
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func sortByRunAt(jobs []job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].RunAt.Equal(jobs[k].RunAt) {
			return jobs[i].RunAt.Before(jobs[k].RunAt)
		}
		return jobs[i].ID < jobs[k].ID
	})
}
