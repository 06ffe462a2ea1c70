package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"delaybot/internal/job"
	logx "delaybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	ns  string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and this keeps
	// every write transaction strictly one at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		// FULL: a commit is on disk before Exec returns.
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}

	st := &sqliteStore{db: db, log: log, ns: cfg.Namespace}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path), logx.String("namespace", cfg.Namespace))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if err := s.upgradeMillisColumns(ctx); err != nil {
		return fmt.Errorf("sqlite upgrade: %w", err)
	}
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// upgradeMillisColumns converts a jobs table written with millisecond
// timestamps to nanoseconds. run_at is rounded up to the end of its
// millisecond so an upgraded job never fires before it was due.
func (s *sqliteStore) upgradeMillisColumns(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('jobs') WHERE name = 'run_at_ms'`).Scan(&n)
	if err != nil || n == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	steps := []string{
		`DROP INDEX IF EXISTS jobs_ns_run_at`,
		`ALTER TABLE jobs ADD COLUMN run_at_ns INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE jobs ADD COLUMN created_ns INTEGER NOT NULL DEFAULT 0`,
		`UPDATE jobs SET run_at_ns = run_at_ms * 1000000 + 999999, created_ns = created_ms * 1000000`,
		`ALTER TABLE jobs DROP COLUMN run_at_ms`,
		`ALTER TABLE jobs DROP COLUMN created_ms`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s: %w", q, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("sqlite jobs table upgraded to nanosecond timestamps")
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Insert(ctx context.Context, j job.Job) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if err := j.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return err
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(job_id, namespace, destination, payload, run_at_ns, created_ns)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(job_id) DO NOTHING`,
		j.ID, s.ns, j.Destination, string(payload), j.RunAt.UnixNano(), created.UnixNano(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateID
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ? AND namespace = ?`, id, s.ns)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, id string) (job.Job, bool, error) {
	if s == nil || s.db == nil {
		return job.Job{}, false, ErrClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, destination, payload, run_at_ns, created_ns FROM jobs WHERE job_id = ? AND namespace = ?`,
		id, s.ns)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, false, nil
	}
	if err != nil {
		return job.Job{}, false, err
	}
	return j, true, nil
}

func (s *sqliteStore) ListPending(ctx context.Context, asOf time.Time) ([]job.Job, error) {
	return s.query(ctx,
		`SELECT job_id, destination, payload, run_at_ns, created_ns FROM jobs
		 WHERE namespace = ? AND run_at_ns > ? ORDER BY run_at_ns, job_id`,
		s.ns, asOf.UnixNano())
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]job.Job, error) {
	return s.query(ctx,
		`SELECT job_id, destination, payload, run_at_ns, created_ns FROM jobs
		 WHERE namespace = ? ORDER BY run_at_ns, job_id`,
		s.ns)
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE namespace = ?`, s.ns).Scan(&n)
	return n, err
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]job.Job, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			// One corrupt row must not hide the others from recovery.
			s.log.Warn("skipping unreadable job row", logx.Err(err))
			continue
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (job.Job, error) {
	var (
		j         job.Job
		payload   string
		runAt     int64
		createdNS int64
	)
	if err := sc.Scan(&j.ID, &j.Destination, &payload, &runAt, &createdNS); err != nil {
		return job.Job{}, err
	}
	if err := json.Unmarshal([]byte(payload), &j.Payload); err != nil {
		return job.Job{}, fmt.Errorf("job %s: decode payload: %w", j.ID, err)
	}
	j.RunAt = time.Unix(0, runAt).UTC()
	j.CreatedAt = time.Unix(0, createdNS).UTC()
	return j, nil
}
