package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"delaybot/internal/job"
)

func testJob(id string, runAt time.Time) job.Job {
	return job.Job{
		ID:          id,
		Destination: "42",
		Payload:     []string{"/freecredential 7", "/seedetails 7"},
		RunAt:       runAt,
		CreatedAt:   runAt.Add(-time.Minute),
	}
}

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	// Land just under a millisecond boundary so any rounding shows up.
	now := time.Now().UTC().Truncate(time.Millisecond).Add(999_999 * time.Nanosecond)

	past := testJob("a-past", now.Add(-time.Hour))
	soon := testJob("b-soon", now.Add(time.Minute))
	later := testJob("c-later", now.Add(time.Hour))
	for _, j := range []job.Job{later, past, soon} {
		if err := st.Insert(ctx, j); err != nil {
			t.Fatalf("Insert(%s): %v", j.ID, err)
		}
	}
	for _, in := range []job.Job{past, soon, later} {
		got, ok, err := st.Get(ctx, in.ID)
		if err != nil || !ok {
			t.Fatalf("Get(%s) = %v, %v", in.ID, ok, err)
		}
		if !got.RunAt.Equal(in.RunAt) {
			t.Fatalf("Get(%s).RunAt = %v, want %v", in.ID, got.RunAt, in.RunAt)
		}
		if !got.CreatedAt.Equal(in.CreatedAt) {
			t.Fatalf("Get(%s).CreatedAt = %v, want %v", in.ID, got.CreatedAt, in.CreatedAt)
		}
	}

	if err := st.Insert(ctx, testJob("b-soon", now.Add(2*time.Hour))); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate Insert error = %v, want ErrDuplicateID", err)
	}
	got, ok, err := st.Get(ctx, "b-soon")
	if err != nil || !ok {
		t.Fatalf("Get(b-soon) = %v, %v", ok, err)
	}
	if !got.RunAt.Equal(soon.RunAt) {
		t.Fatalf("duplicate insert overwrote run_at: %v", got.RunAt)
	}
	if len(got.Payload) != 2 || got.Payload[1] != "/seedetails 7" {
		t.Fatalf("unexpected payload: %#v", got.Payload)
	}

	all, err := st.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if ids := idsOf(all); len(ids) != 3 || ids[0] != "a-past" || ids[1] != "b-soon" || ids[2] != "c-later" {
		t.Fatalf("ListAll ids = %v", ids)
	}

	pending, err := st.ListPending(ctx, now)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if ids := idsOf(pending); len(ids) != 2 || ids[0] != "b-soon" {
		t.Fatalf("ListPending ids = %v, want overdue job excluded", ids)
	}

	if err := st.Delete(ctx, "a-past"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "a-past"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := st.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete unknown: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "a-past"); ok {
		t.Fatal("deleted job still present")
	}
	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	if err := st.Insert(ctx, job.Job{ID: "bad", Destination: "1", RunAt: now}); err == nil {
		t.Fatal("expected validation error for empty payload")
	}
}

func idsOf(list []job.Job) []string {
	out := make([]string, 0, len(list))
	for _, j := range list {
		out = append(out, j.ID)
	}
	return out
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logxNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "none"}, logxNop()); err == nil {
		t.Fatal("expected error for none driver")
	}
}
