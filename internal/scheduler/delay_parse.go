package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseDelay turns a user-supplied delay into a duration relative to now.
//
// Supported forms:
//   - Integer seconds: "300", "-5" (sign kept; callers enforce minimums)
//   - Go duration: "90m", "2h30m"
//   - HH:MM duration: "01:30" (1 hour 30 minutes)
//   - Next occurrence of a cron expression: "at:0 9 * * *", "@daily"
//
// Cron forms are evaluated once; the resulting job does not repeat.
func ParseDelay(raw string, now time.Time) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("delay required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "at:") {
		expr := strings.TrimSpace(s[len("at:"):])
		if expr == "" {
			return 0, fmt.Errorf("cron expression required after 'at:'")
		}
		return nextOccurrence(expr, now)
	}
	if strings.HasPrefix(s, "@") {
		return nextOccurrence(s, now)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > maxDelaySeconds || n < -maxDelaySeconds {
			return 0, fmt.Errorf("delay %q out of range", raw)
		}
		return time.Duration(n) * time.Second, nil
	}

	if reHHMM.MatchString(s) {
		return parseHHMMDuration(s)
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	return 0, fmt.Errorf(
		"invalid delay %q (use seconds like '300', a duration like '90m', HH:MM like '01:30', or 'at:<cron>')",
		raw,
	)
}

// Largest delay time.Duration can hold, in whole seconds.
const maxDelaySeconds = int64(1<<63-1) / int64(time.Second)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func nextOccurrence(expr string, now time.Time) (time.Duration, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	next := sched.Next(now)
	if next.IsZero() {
		return 0, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next.Sub(now), nil
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
