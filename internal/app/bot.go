package app

import (
	"context"
	"fmt"
	"time"

	"delaybot/internal/config"
	"delaybot/internal/eventbus"
	"delaybot/internal/frontend"
	rtsup "delaybot/internal/runtime/supervisor"
	"delaybot/internal/scheduler"
	"delaybot/internal/storage"
	kit "delaybot/internal/transport"
	telegram "delaybot/internal/transport/telegram/adapter"
	"delaybot/internal/transport/telegram/router"
	"delaybot/internal/transport/telegram/sink"
	logx "delaybot/pkg/logx"
)

// AdapterFactory builds the chat transport of one bot.
type AdapterFactory func(b config.BotConfig, log logx.Logger) (kit.Adapter, error)

func telegramAdapter(b config.BotConfig, log logx.Logger) (kit.Adapter, error) {
	poll, err := config.ParseDurationOrDefault("bots."+b.Name+".poll_timeout", b.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: b.Token, PollTimeout: poll}, log)
	if err != nil {
		return nil, err
	}
	return ad, nil
}

// Bot is one front end with its own transport, store and scheduler core.
type Bot struct {
	name     string
	frontEnd string
	log      logx.Logger

	store   storage.Store
	core    *scheduler.Core
	adapter kit.Adapter
	router  *router.Router
	fe      frontend.FrontEnd

	updates chan kit.Update
}

func newBot(b config.BotConfig, sc config.SchedulerConfig, mkAdapter AdapterFactory, log logx.Logger, bus eventbus.Bus) (*Bot, error) {
	log = log.With(logx.String("bot", b.Name))

	ad, err := mkAdapter(b, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("bot %s: transport: %w", b.Name, err)
	}
	render, err := frontend.Renderer(b.FrontEnd)
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", b.Name, err)
	}
	coreCfg, err := mapSchedulerConfig(b.Name, sc)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(b, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("bot %s: storage: %w", b.Name, err)
	}

	out := sink.New(ad, sink.Options{RatePerSec: b.RatePerSec, Render: render}, log.With(logx.String("comp", "sink")))
	core := scheduler.New(coreCfg, store, nil, out, log.With(logx.String("comp", "scheduler")), bus)

	fe, err := frontend.New(b.FrontEnd, frontend.Deps{Scheduler: core, Log: log.With(logx.String("comp", "frontend"))})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bot %s: %w", b.Name, err)
	}
	r := router.New(log.With(logx.String("comp", "router")), ad, router.Options{Owners: b.OwnerUserIDs})

	log.Info("bot configured",
		logx.String("front_end", fe.Kind()),
		logx.String("storage", storageLabel(b.Storage)),
		logx.Int("owners", len(b.OwnerUserIDs)),
	)
	return &Bot{
		name:     b.Name,
		frontEnd: fe.Kind(),
		log:      log,
		store:    store,
		core:     core,
		adapter:  ad,
		router:   r,
		fe:       fe,
		updates:  make(chan kit.Update, 256),
	}, nil
}

func storageLabel(s config.StorageConfig) string {
	if s.Driver == "redis" {
		return "redis://" + s.Redis.Addr + "/" + s.Namespace
	}
	return s.Driver + ":" + s.Path + "#" + s.Namespace
}

func (b *Bot) Name() string           { return b.name }
func (b *Bot) Core() *scheduler.Core  { return b.core }
func (b *Bot) Router() *router.Router { return b.router }

// recover restores persisted jobs; it runs before the bot accepts commands.
func (b *Bot) recover(ctx context.Context) (scheduler.RecoverReport, error) {
	rep, err := b.core.Recover(ctx)
	if err != nil {
		b.log.Warn("recovery finished with errors", logx.Err(err), logx.Int("failed", rep.Failed))
	}
	return rep, err
}

func (b *Bot) start(ctx context.Context, sup *rtsup.Supervisor) error {
	b.router.SetCommands(ctx, b.fe.Commands())
	if err := b.adapter.Start(ctx, b.updates); err != nil {
		return fmt.Errorf("bot %s: transport start: %w", b.name, err)
	}
	sup.Go("bot."+b.name+".dispatch", func(c context.Context) error {
		return b.router.DispatchLoop(c, b.updates)
	})
	return nil
}

func (b *Bot) status(ctx context.Context) (snap scheduler.Snapshot, pending int, err error) {
	snap = b.core.Snapshot()
	pending, err = b.store.Count(ctx)
	return snap, pending, err
}
