package frontend

import (
	"context"
	"strings"
	"time"

	"delaybot/internal/scheduler"
	"delaybot/internal/transport/telegram/router"
	"delaybot/internal/transport/telegram/sink"
	logx "delaybot/pkg/logx"
)

const (
	reminderUsage   = "Usage: /set <seconds> <your message>"
	reminderTooSoon = "Sorry, the delay must be at least 1 second."
	reminderWelcome = "Hi! I can remind you about anything.\n\n" +
		"Use /set <seconds> <your message> to set a reminder.\n" +
		"The delay also accepts durations like 90m or 1h30m, a clock span like 01:30, " +
		"or a schedule like \"at:0 9 * * *\".\n\n" +
		"/jobs lists your pending reminders and /cancel <job_id> removes one."
)

const minReminderDelay = time.Second

// Reminder is the public reminder bot: anyone may set reminders for their own chat.
type Reminder struct {
	deps Deps
}

func (r *Reminder) Kind() string { return KindReminder }

func (r *Reminder) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "set",
			Description: "set a reminder",
			Usage:       reminderUsage,
			Access:      router.AccessEveryone,
			Handle:      r.handleSet,
		},
		{
			Name:        "start",
			Aliases:     []string{"help"},
			Description: "how to use this bot",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, reminderWelcome)
			},
		},
		jobsCommand(r.deps, router.AccessEveryone),
		cancelCommand(r.deps, router.AccessEveryone),
	}
}

func (r *Reminder) handleSet(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, reminderUsage)
	}
	delayRaw, message := router.CutWord(req.Text)
	if strings.HasPrefix(delayRaw, "\"") || strings.HasPrefix(delayRaw, "'") {
		// Quoted delay such as "at:0 9 * * *"; the message keeps its tokens.
		delayRaw, message = req.Args[0], strings.Join(req.Args[1:], " ")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return req.Reply(ctx, reminderUsage)
	}
	now := r.deps.now()
	delay, err := scheduler.ParseDelay(delayRaw, now)
	if err != nil {
		return req.Reply(ctx, reminderUsage)
	}
	if delay < minReminderDelay {
		return req.Reply(ctx, reminderTooSoon)
	}

	id, err := r.deps.Scheduler.Submit(ctx, destinationOf(req), []string{message}, delay)
	if err != nil {
		if scheduler.IsRequestError(err) {
			return req.Reply(ctx, reminderUsage)
		}
		_ = req.Reply(ctx, "Sorry, the reminder could not be saved. Please try again.")
		return err
	}
	req.Logger.Info("reminder scheduled", logx.String("job_id", id), logx.Duration("delay", delay))
	return req.Reply(ctx, confirmation("✅ Got it!", id, delay, now))
}

func renderReminder(payload []string) []sink.Message {
	return []sink.Message{{Text: "🔔 Reminder: " + strings.Join(payload, "\n")}}
}
