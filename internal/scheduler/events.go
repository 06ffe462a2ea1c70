package scheduler

import "time"

// Event types published on the event bus.
const (
	EventSubmitted      = "job.submitted"
	EventDelivered      = "job.delivered"
	EventDeliveryFailed = "job.delivery_failed"
	EventCancelled      = "job.cancelled"
	EventRestored       = "job.restored"
)

// JobEvent is the Data of job.* events.
type JobEvent struct {
	Core        string    `json:"core"`
	ID          string    `json:"id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	RunAt       time.Time `json:"run_at,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Final       bool      `json:"final,omitempty"`
	Error       string    `json:"error,omitempty"`
	Count       int       `json:"count,omitempty"`
}
