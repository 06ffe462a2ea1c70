package frontend

import (
	"context"
	"strings"

	"delaybot/internal/scheduler"
	"delaybot/internal/transport/telegram/router"
	"delaybot/internal/transport/telegram/sink"
	logx "delaybot/pkg/logx"
)

const credentialUsage = "Invalid format. Please use the format you get from the main bot:\n`/schedule <seconds> /freecredential <user_id>`"

const credentialHeader = "🔔 *Reminder from Scheduler Bot* 🔔\n\n" +
	"The following plan has expired\\. Forward the commands below to your main bot to process it\\."

// Credential schedules "free this credential" reminders for the operators
// of a main bot. Every command is owner-only.
type Credential struct {
	deps Deps
}

func (c *Credential) Kind() string { return KindCredential }

func (c *Credential) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "schedule",
			Aliases:     []string{"start"},
			Description: "schedule a credential expiry reminder",
			Usage:       "/schedule <seconds> /freecredential <user_id>",
			Access:      router.AccessOwnerOnly,
			Handle:      c.handleSchedule,
		},
		jobsCommand(c.deps, router.AccessOwnerOnly),
		cancelCommand(c.deps, router.AccessOwnerOnly),
	}
}

func (c *Credential) handleSchedule(ctx context.Context, req *router.Request) error {
	userID, delayRaw, ok := parseCredentialArgs(req.Args)
	if !ok {
		return req.Reply(ctx, credentialUsage)
	}
	now := c.deps.now()
	delay, err := scheduler.ParseDelay(delayRaw, now)
	if err != nil || delay < 0 {
		return req.Reply(ctx, credentialUsage)
	}

	payload := []string{"/freecredential " + userID, "/seedetails " + userID}
	id, err := c.deps.Scheduler.Submit(ctx, destinationOf(req), payload, delay)
	if err != nil {
		if scheduler.IsRequestError(err) {
			return req.Reply(ctx, credentialUsage)
		}
		_ = req.Reply(ctx, "Sorry, the reminder could not be saved. Please try again.")
		return err
	}
	req.Logger.Info("credential reminder scheduled",
		logx.String("job_id", id),
		logx.String("user_id", userID),
		logx.Duration("delay", delay),
	)
	return req.Reply(ctx, confirmation("✅ Understood!", id, delay, now))
}

// parseCredentialArgs accepts exactly "<delay> /freecredential <digits>".
func parseCredentialArgs(args []string) (userID, delay string, ok bool) {
	if len(args) != 3 {
		return "", "", false
	}
	if !strings.EqualFold(args[1], "/freecredential") {
		return "", "", false
	}
	if !allDigits(args[2]) {
		return "", "", false
	}
	return args[2], args[0], true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func renderCredential(payload []string) []sink.Message {
	out := make([]sink.Message, 0, len(payload)+1)
	out = append(out, sink.Message{Text: credentialHeader, ParseMode: "MarkdownV2"})
	return append(out, sink.PlainFields(payload)...)
}
