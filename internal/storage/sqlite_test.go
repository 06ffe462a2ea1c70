package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	logx "delaybot/pkg/logx"
)

func logxNop() logx.Logger { return logx.Nop() }

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "jobs.db")}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "jobs.db")
	ctx := context.Background()
	runAt := time.Date(2026, 3, 1, 12, 0, 0, 999_999, time.UTC)

	st, err := Open(Config{Path: path}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Insert(ctx, testJob("j1", runAt)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = Open(Config{Path: path}, logxNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	all, err := st.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != "j1" || !all[0].RunAt.Equal(runAt) {
		t.Fatalf("unexpected jobs after reopen: %+v", all)
	}
	got, ok, err := st.Get(ctx, "j1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.RunAt.Before(runAt) {
		t.Fatalf("run_at came back early: got %v, stored %v", got.RunAt, runAt)
	}
	if !got.RunAt.Equal(runAt) || !got.CreatedAt.Equal(runAt.Add(-time.Minute)) {
		t.Fatalf("timestamps changed across reopen: run_at %v created %v", got.RunAt, got.CreatedAt)
	}
}

func TestSQLiteListPendingKeepsSubMillisecond(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "jobs.db")}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	runAt := time.Date(2026, 3, 1, 12, 0, 0, 500_000, time.UTC)
	if err := st.Insert(ctx, testJob("j1", runAt)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// 0.4ms before run_at is still pending; a millisecond column would have lost it.
	pending, err := st.ListPending(ctx, runAt.Add(-400*time.Microsecond))
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	pending, err = st.ListPending(ctx, runAt)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending at run_at = %d, want 0", len(pending))
	}
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	a, err := Open(Config{Path: path, Namespace: "credential"}, logxNop())
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	if err := a.Insert(ctx, testJob("only-a", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := Open(Config{Path: path, Namespace: "reminder"}, logxNop())
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	defer b.Close()
	n, err := b.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("reminder namespace sees %d jobs, want 0", n)
	}
}

func TestSQLiteUpgradesMillisecondSchema(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()
	runAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(7 * time.Millisecond)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, q := range []string{
		`CREATE TABLE jobs (job_id TEXT PRIMARY KEY, namespace TEXT NOT NULL DEFAULT '',
			destination TEXT NOT NULL, payload TEXT NOT NULL,
			run_at_ms INTEGER NOT NULL, created_ms INTEGER NOT NULL)`,
		`CREATE INDEX jobs_ns_run_at ON jobs(namespace, run_at_ms)`,
	} {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seed schema: %v", err)
		}
	}
	if _, err := db.Exec(`INSERT INTO jobs VALUES('old', '', '42', '["/seedetails 1"]', ?, ?)`,
		runAt.UnixMilli(), runAt.Add(-time.Minute).UnixMilli()); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	_ = db.Close()

	st, err := Open(Config{Path: path}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	got, ok, err := st.Get(ctx, "old")
	if err != nil || !ok {
		t.Fatalf("Get(old) = %v, %v", ok, err)
	}
	if got.RunAt.Before(runAt) || got.RunAt.Sub(runAt) >= time.Millisecond {
		t.Fatalf("upgraded run_at = %v, want within [%v, +1ms)", got.RunAt, runAt)
	}
	if err := st.Insert(ctx, testJob("new", runAt)); err != nil {
		t.Fatalf("Insert after upgrade: %v", err)
	}
}
