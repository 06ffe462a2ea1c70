// Package router dispatches Telegram commands to handlers on a bounded
// worker pool, enforcing per-command access.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	kit "delaybot/internal/transport"
	rtsup "delaybot/internal/runtime/supervisor"
	logx "delaybot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string   // without the leading slash, e.g. "schedule"
	Aliases     []string // e.g. ["start"]
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Hidden      bool          // keep out of the platform menu
	Handle      HandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string // canonical name
	Invoked      string // name or alias as typed
	Args         []string
	Text         string // raw text after the command word
	ReqID        string
	IsOwner      bool

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends plain text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyOpt sends text with explicit options.
func (r *Request) ReplyOpt(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Options struct {
	Owners  []int64
	Workers int // default 4
	Queue   int // default 256

	// DenyText is sent to non-owners calling an owner-only command.
	// Empty means the attempt is only logged.
	DenyText string
	// UnknownText is sent for unknown commands. Empty ignores them.
	UnknownText string
	// DefaultTimeout bounds a handler without its own Timeout (default 30s).
	DefaultTimeout time.Duration
}

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]*Command // name and alias -> command
	list   []Command
	owners []int64

	opt     Options
	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.Queue <= 0 {
		opt.Queue = 256
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	return &Router{
		cmds:    map[string]*Command{},
		owners:  append([]int64(nil), opt.Owners...),
		opt:     opt,
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), opt.Queue),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

// SetOwners replaces the owner allow-list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) Owners() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.owners...)
}

func (r *Router) IsOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return isOwner(id, r.owners)
}

// SetCommands replaces the command table and publishes the menu when the
// adapter supports it.
func (r *Router) SetCommands(ctx context.Context, cmds []Command) {
	table := map[string]*Command{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		table[name] = &cc
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := table[a]; !exists {
				table[a] = &cc
			}
		}
		list = append(list, cc)
	}

	r.mu.Lock()
	r.cmds = table
	r.list = list
	r.mu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := menuCommands(list)
		go func() {
			mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.list...)
}

// DispatchLoop reads updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup, r.running = sup, true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", r.opt.Workers), logx.Int("queue_cap", cap(r.jobs)))

	for i := 0; i < r.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		r.runMu.Lock()
		r.running = false
		r.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(idx int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	if job != nil {
		job()
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, args, rest, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	r.mu.RLock()
	cmd := r.cmds[word]
	owners := r.owners
	r.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if cmd == nil {
		if r.opt.UnknownText != "" {
			_, _ = r.adapter.SendText(ctx, chat, r.opt.UnknownText, nil)
		}
		return
	}

	owner := isOwner(msg.FromID, owners)
	if cmd.Access == AccessOwnerOnly && !owner {
		r.log.Warn("unauthorized command attempt",
			logx.Int64("from_id", msg.FromID),
			logx.String("from_username", msg.FromUsername),
			logx.String("cmd", cmd.Name),
		)
		if r.opt.DenyText != "" {
			_, _ = r.adapter.SendText(ctx, chat, r.opt.DenyText, nil)
		}
		return
	}

	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		Invoked:      word,
		Args:         args,
		Text:         rest,
		ReqID:        rid,
		IsOwner:      owner,
		Adapter:      r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opt.DefaultTimeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)

	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = r.adapter.SendText(ctx, chat, "Busy, please try again in a moment.", nil)
	}
}

func (r *Router) tryEnqueue(fn func()) bool {
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
