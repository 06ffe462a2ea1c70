package scheduler

import (
	"testing"
	"time"
)

func TestParseDelayVariants(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "seconds", raw: "300", want: 5 * time.Minute},
		{name: "zero seconds", raw: "0", want: 0},
		{name: "negative seconds", raw: "-5", want: -5 * time.Second},
		{name: "duration", raw: "90m", want: 90 * time.Minute},
		{name: "compound duration", raw: "2h30m", want: 150 * time.Minute},
		{name: "hhmm", raw: "01:30", want: 90 * time.Minute},
		{name: "cron next occurrence", raw: "at:0 9 * * *", want: 30 * time.Minute},
		{name: "descriptor", raw: "@daily", want: 15*time.Hour + 30*time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDelay(tt.raw, now)
			if err != nil {
				t.Fatalf("ParseDelay(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDelay(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseDelayInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "at:", "at:not cron", "01:75", "99999999999999999999"} {
		if _, err := ParseDelay(raw, time.Now()); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
