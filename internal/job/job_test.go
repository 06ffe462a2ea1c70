package job

import (
	"testing"
	"time"
)

func TestNewIDUnique(t *testing.T) {
	t.Parallel()
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	ok := Job{ID: "a", Destination: "1", Payload: []string{"x"}, RunAt: now}
	tests := []struct {
		name    string
		mutate  func(j *Job)
		wantErr bool
	}{
		{name: "valid", mutate: func(j *Job) {}},
		{name: "no id", mutate: func(j *Job) { j.ID = " " }, wantErr: true},
		{name: "no destination", mutate: func(j *Job) { j.Destination = "" }, wantErr: true},
		{name: "no run_at", mutate: func(j *Job) { j.RunAt = time.Time{} }, wantErr: true},
		{name: "no payload", mutate: func(j *Job) { j.Payload = nil }, wantErr: true},
		{name: "empty field", mutate: func(j *Job) { j.Payload = []string{"a", ""} }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			j := ok.Clone()
			tt.mutate(&j)
			err := j.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemainingFloorsAtZero(t *testing.T) {
	t.Parallel()
	now := time.Now()
	j := Job{RunAt: now.Add(-50 * time.Second)}
	if got := j.Remaining(now); got != 0 {
		t.Fatalf("Remaining = %v, want 0", got)
	}
	if !j.Overdue(now) {
		t.Fatal("expected overdue")
	}
	j.RunAt = now.Add(7 * time.Second)
	if got := j.Remaining(now); got != 7*time.Second {
		t.Fatalf("Remaining = %v, want 7s", got)
	}
}

func TestChatDestinationRoundTrip(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		chat   int64
		thread int
		want   string
	}{
		{chat: 42, want: "42"},
		{chat: -100123, thread: 7, want: "-100123:7"},
	} {
		got := ChatDestination(tc.chat, tc.thread)
		if got != tc.want {
			t.Fatalf("ChatDestination = %q, want %q", got, tc.want)
		}
		chat, thread, err := ParseChatDestination(got)
		if err != nil {
			t.Fatalf("ParseChatDestination(%q): %v", got, err)
		}
		if chat != tc.chat || thread != tc.thread {
			t.Fatalf("parsed %d:%d, want %d:%d", chat, thread, tc.chat, tc.thread)
		}
	}
	if _, _, err := ParseChatDestination("abc"); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}
