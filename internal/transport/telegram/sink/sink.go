// Package sink delivers fired jobs as Telegram messages.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"delaybot/internal/job"
	"delaybot/internal/scheduler"
	kit "delaybot/internal/transport"
	logx "delaybot/pkg/logx"
)

// Message is one outgoing Telegram message.
type Message struct {
	Text      string
	ParseMode string
}

// Renderer turns a job payload into the messages to send, in order.
type Renderer func(payload []string) []Message

// PlainFields sends each payload field as its own plain message.
func PlainFields(payload []string) []Message {
	out := make([]Message, 0, len(payload))
	for _, f := range payload {
		out = append(out, Message{Text: f})
	}
	return out
}

type Options struct {
	RatePerSec float64 // default 25 (Telegram allows about 30 msg/s per bot)
	Burst      int     // default 5
	Render     Renderer
}

// Sink implements scheduler.Sink on top of a transport adapter.
type Sink struct {
	ad      kit.Adapter
	limiter *rate.Limiter
	render  Renderer
	log     logx.Logger
}

func New(ad kit.Adapter, opt Options, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.RatePerSec <= 0 {
		opt.RatePerSec = 25
	}
	if opt.Burst <= 0 {
		opt.Burst = 5
	}
	if opt.Render == nil {
		opt.Render = PlainFields
	}
	return &Sink{
		ad:      ad,
		limiter: rate.NewLimiter(rate.Limit(opt.RatePerSec), opt.Burst),
		render:  opt.Render,
		log:     log,
	}
}

// Deliver sends every rendered message. It succeeds only if all of them were
// accepted; a retry resends the whole set.
func (s *Sink) Deliver(ctx context.Context, destination string, payload []string) error {
	chatID, threadID, err := job.ParseChatDestination(destination)
	if err != nil {
		return scheduler.NoRetry(err)
	}
	to := kit.ChatTarget{ChatID: chatID, ThreadID: threadID}

	msgs := s.render(payload)
	if len(msgs) == 0 {
		return scheduler.NoRetry(errors.New("payload rendered no messages"))
	}
	for i, m := range msgs {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := s.ad.SendText(ctx, to, m.Text, &kit.SendOptions{ParseMode: m.ParseMode, DisablePreview: true}); err != nil {
			return Classify(fmt.Errorf("send message %d/%d: %w", i+1, len(msgs), err))
		}
	}
	return nil
}

var permanent = []error{
	tele.ErrBlockedByUser,
	tele.ErrChatNotFound,
	tele.ErrUserIsDeactivated,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
}

// Classify maps telebot errors onto the scheduler retry policy:
// flood control becomes RetryAfter, unreachable chats become NoRetry.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return scheduler.RetryAfter(err, time.Duration(fe.RetryAfter)*time.Second)
	}
	var fep *tele.FloodError
	if errors.As(err, &fep) && fep != nil {
		return scheduler.RetryAfter(err, time.Duration(fep.RetryAfter)*time.Second)
	}
	for _, p := range permanent {
		if errors.Is(err, p) {
			return scheduler.NoRetry(err)
		}
	}
	var te *tele.Error
	if errors.As(err, &te) && (te.Code == 400 || te.Code == 403) {
		return scheduler.NoRetry(err)
	}
	return err
}
