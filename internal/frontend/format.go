package frontend

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"delaybot/internal/job"
)

// clockDuration renders d as "H:MM:SS", with a "N days, " prefix past 24h.
func clockDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	clock := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

// confirmation is the reply after a successful submit.
func confirmation(lead string, id string, delay time.Duration, now time.Time) string {
	runAt := now.Add(delay)
	return fmt.Sprintf("%s I will remind you in %s (%s).\nJob ID: %s",
		lead, clockDuration(delay), humanize.RelTime(runAt, now, "ago", "from now"), id)
}

func jobList(list []job.Job, now time.Time) string {
	if len(list) == 0 {
		return "No pending jobs."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Pending jobs (%s):\n", humanize.Comma(int64(len(list))))
	for _, j := range list {
		when := humanize.RelTime(j.RunAt, now, "ago", "from now")
		if j.Overdue(now) {
			when = "due now (was " + when + ")"
		}
		fmt.Fprintf(&b, "\n• %s\n  %s: %s\n", j.ID, when, summarize(j.Payload))
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarize(payload []string) string {
	s := strings.Join(payload, " | ")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}
