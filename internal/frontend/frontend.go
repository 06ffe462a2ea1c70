// Package frontend holds the two chat front ends that sit on top of the
// shared scheduler core: the credential scheduler and the reminder bot.
package frontend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"delaybot/internal/job"
	"delaybot/internal/transport/telegram/router"
	"delaybot/internal/transport/telegram/sink"
	logx "delaybot/pkg/logx"
)

const (
	KindCredential = "credential"
	KindReminder   = "reminder"
)

// Scheduler is the part of the core the front ends use.
type Scheduler interface {
	Submit(ctx context.Context, destination string, payload []string, delay time.Duration) (string, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (job.Job, bool, error)
	PendingAll(ctx context.Context) ([]job.Job, error)
}

// FrontEnd is a command set bound to one scheduler.
type FrontEnd interface {
	Kind() string
	Commands() []router.Command
}

type Deps struct {
	Scheduler Scheduler
	Log       logx.Logger
	// Now is the clock used for parsing and display (default time.Now).
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// New builds the front end of the given kind.
func New(kind string, deps Deps) (FrontEnd, error) {
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("frontend %q: scheduler is required", kind)
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindCredential:
		return &Credential{deps: deps}, nil
	case KindReminder:
		return &Reminder{deps: deps}, nil
	default:
		return nil, fmt.Errorf("unknown front end %q (want %q or %q)", kind, KindCredential, KindReminder)
	}
}

// Renderer returns how fired jobs of the given kind are turned into messages.
func Renderer(kind string) (sink.Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindCredential:
		return renderCredential, nil
	case KindReminder:
		return renderReminder, nil
	default:
		return nil, fmt.Errorf("unknown front end %q", kind)
	}
}

func destinationOf(req *router.Request) string {
	return job.ChatDestination(req.Chat.ChatID, req.Chat.ThreadID)
}
