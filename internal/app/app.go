package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"delaybot/internal/config"
	"delaybot/internal/eventbus"
	"delaybot/internal/health"
	rtsup "delaybot/internal/runtime/supervisor"
	"delaybot/internal/scheduler"
	"delaybot/pkg/systemd"
	logx "delaybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	bots   []*Bot
	health *health.Server
	notify *systemd.Notifier
}

type Option func(*options)

type options struct {
	adapters AdapterFactory
	notifier *systemd.Notifier
}

// WithAdapterFactory replaces the Telegram transport (tests).
func WithAdapterFactory(f AdapterFactory) Option { return func(o *options) { o.adapters = f } }

// WithNotifier replaces the sd_notify client; nil disables notifications.
func WithNotifier(n *systemd.Notifier) Option { return func(o *options) { o.notifier = n } }

// New wires every configured bot. The config must already be loaded.
func New(cfgm *config.Manager, opts ...Option) (*App, error) {
	o := options{adapters: telegramAdapter, notifier: systemd.New()}
	for _, fn := range opts {
		fn(&o)
	}
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		notify: o.notifier,
	}
	for _, bc := range cfg.Bots {
		b, err := newBot(bc, cfg.Scheduler, o.adapters, logSvc.Logger(), bus)
		if err != nil {
			a.closeStores()
			return nil, err
		}
		a.bots = append(a.bots, b)
	}
	if cfg.Health.Enabled {
		a.health = health.New(health.Config{
			Name:  healthName(cfg),
			Addr:  cfg.Health.Addr,
			Pprof: cfg.Health.Pprof,
		}, a.Status, logSvc.Logger())
	}
	return a, nil
}

func healthName(cfg *config.Config) string {
	if len(cfg.Bots) == 1 {
		return cfg.Bots[0].Name
	}
	return "delaybot"
}

func (a *App) Bots() []*Bot { return a.bots }

// Bot returns the bot with the given name.
func (a *App) Bot(name string) *Bot {
	for _, b := range a.bots {
		if b.name == name {
			return b
		}
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start recovers every bot's pending jobs, then starts the transports,
// the health server and the config watcher, and finally reports READY.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))

	a.startEventLog()

	var (
		errs     *multierror.Error
		restored int
	)
	for _, b := range a.bots {
		rep, err := b.recover(a.sup.Context())
		restored += rep.Restored
		if err != nil {
			if errors.Is(err, scheduler.ErrAlreadyRecovered) {
				return err
			}
			errs = multierror.Append(errs, fmt.Errorf("bot %s: %w", b.name, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		// Individual bad records do not stop the bots; they stay in the store.
		a.log.Warn("some jobs could not be restored", logx.Err(err))
	}

	for _, b := range a.bots {
		if err := b.start(a.sup.Context(), a.sup); err != nil {
			return err
		}
	}
	if a.health != nil {
		a.health.Start(a.sup.Context())
	}

	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if _, err := a.notify.Ready(); err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
	}
	_, _ = a.notify.Status("%d bot(s) running, %d job(s) restored", len(a.bots), restored)
	a.log.Info("app started", logx.Int("bots", len(a.bots)), logx.Int("restored", restored))
	return nil
}

// startEventLog mirrors job lifecycle events into the debug log.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128, "job.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
				if je, ok := e.Data.(scheduler.JobEvent); ok {
					fields = append(fields,
						logx.String("bot", je.Core),
						logx.String("job_id", je.ID),
						logx.Int("attempt", je.Attempt),
					)
				}
				a.log.Debug("event", fields...)
			}
		}
	})
}

// startConfigReload applies hot-reloadable settings (logging and owner lists).
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.Summarize(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(ch.Restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("settings", ch.Restart))
	}
	a.logs.Apply(mapLogConfig(newCfg.Logging))
	for _, bc := range newCfg.Bots {
		if b := a.Bot(bc.Name); b != nil {
			b.router.SetOwners(bc.OwnerUserIDs)
		}
	}
	if len(ch.Sections) > 0 {
		a.log.Info("config reloaded", ch.Attrs...)
	}
}

// Status is the health document.
func (a *App) Status(ctx context.Context) health.Status {
	st := health.Status{OK: true}
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			st.OK = false
			st.Error = err.Error()
		}
	}
	for _, b := range a.bots {
		snap, pending, err := b.status(ctx)
		bs := health.BotStatus{Name: b.name, FrontEnd: b.frontEnd, Pending: pending, Scheduler: snap}
		if err != nil {
			bs.Error = err.Error()
			st.OK = false
		}
		if !snap.Recovered || snap.Stopped {
			st.OK = false
		}
		st.Bots = append(st.Bots, bs)
	}
	return st
}

func (a *App) closeStores() {
	for _, b := range a.bots {
		_ = b.store.Close()
	}
}

// Stop shuts down in dependency order: transports stop taking commands,
// cores stop their timers and wait for in-flight deliveries, then stores close.
// Records of jobs that had not fired stay in the stores for the next start.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStores()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.notify.Stopping()

	a.sup.Cancel()

	for _, b := range a.bots {
		a.step(ctx, "bot."+b.name+".adapter", 2*time.Second, b.adapter.Stop)
	}
	for _, b := range a.bots {
		a.step(ctx, "bot."+b.name+".scheduler", 5*time.Second, b.core.Stop)
	}
	if a.health != nil {
		a.step(ctx, "health", time.Second, a.health.Stop)
	}
	for _, b := range a.bots {
		a.step(ctx, "bot."+b.name+".storage", time.Second, func(context.Context) error { return b.store.Close() })
	}
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max so a stuck component cannot
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

// ParseStopSignal maps a signal name to a StopReason.
func ParseStopSignal(name string) StopReason {
	switch strings.ToLower(name) {
	case "interrupt", "sigint":
		return StopSIGINT
	case "terminated", "sigterm":
		return StopSIGTERM
	}
	return StopUnknown
}
