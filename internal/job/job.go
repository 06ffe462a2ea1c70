// Package job defines the unit of delayed work tracked by the scheduler.
package job

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job is one pending delayed delivery.
//
// RunAt is fixed at submission; rescheduling means cancel + resubmit.
type Job struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Payload     []string  `json:"payload"`
	RunAt       time.Time `json:"run_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewID returns a random (v4) UUID string.
func NewID() string { return uuid.NewString() }

var (
	ErrMissingID          = errors.New("job id is required")
	ErrMissingDestination = errors.New("job destination is required")
	ErrMissingRunAt       = errors.New("job run_at is required")
	ErrEmptyPayload       = errors.New("job payload requires at least one field")
)

func (j Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(j.Destination) == "" {
		return ErrMissingDestination
	}
	if j.RunAt.IsZero() {
		return ErrMissingRunAt
	}
	if len(j.Payload) == 0 {
		return ErrEmptyPayload
	}
	for i, f := range j.Payload {
		if f == "" {
			return fmt.Errorf("job payload field %d is empty", i)
		}
	}
	return nil
}

// Remaining is the time left until RunAt, floored at zero.
func (j Job) Remaining(now time.Time) time.Duration {
	d := j.RunAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Overdue reports whether RunAt has already passed at now.
func (j Job) Overdue(now time.Time) bool { return !j.RunAt.After(now) }

// Clone returns a copy that does not share the payload slice.
func (j Job) Clone() Job {
	cp := j
	cp.Payload = append([]string(nil), j.Payload...)
	return cp
}

// ChatDestination encodes a chat (and optional forum thread) as a destination.
func ChatDestination(chatID int64, threadID int) string {
	s := strconv.FormatInt(chatID, 10)
	if threadID != 0 {
		s += ":" + strconv.Itoa(threadID)
	}
	return s
}

// ParseChatDestination is the inverse of ChatDestination.
func ParseChatDestination(dest string) (chatID int64, threadID int, err error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return 0, 0, ErrMissingDestination
	}
	chatPart, threadPart, hasThread := strings.Cut(dest, ":")
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("destination %q: invalid chat id: %w", dest, err)
	}
	if hasThread {
		threadID, err = strconv.Atoi(threadPart)
		if err != nil {
			return 0, 0, fmt.Errorf("destination %q: invalid thread id: %w", dest, err)
		}
	}
	return chatID, threadID, nil
}
