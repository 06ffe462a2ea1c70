package app

import (
	"fmt"
	"strings"
	"time"

	"delaybot/internal/config"
	"delaybot/internal/scheduler"
	"delaybot/internal/storage"
	logx "delaybot/pkg/logx"
)

func mapStorageConfig(p string, sc config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault(p+".busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3", "file", "redis":
	default:
		return storage.Config{}, fmt.Errorf("%s.driver: unknown driver %q", p, sc.Driver)
	}
	return storage.Config{
		Driver:       driver,
		Path:         strings.TrimSpace(sc.Path),
		Namespace:    strings.TrimSpace(sc.Namespace),
		BusyTimeout:  busy,
		CompactEvery: sc.CompactEvery,
		Redis: storage.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		},
	}, nil
}

// OpenStore opens the store of one configured bot. The CLI uses it to
// inspect jobs while the bots are stopped.
func OpenStore(b config.BotConfig, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig("bots."+b.Name+".storage", b.Storage)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log)
}

func mapSchedulerConfig(name string, sc config.SchedulerConfig) (scheduler.Config, error) {
	base, err := config.ParseDurationField("scheduler.retry_base", sc.RetryBase)
	if err != nil {
		return scheduler.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("scheduler.retry_max_delay", sc.RetryMaxDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	timeout, err := config.ParseDurationField("scheduler.deliver_timeout", sc.DeliverTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Name:           name,
		DeliverTimeout: timeout,
		RetryMax:       sc.RetryMax,
		RetryBase:      base,
		RetryMaxDelay:  maxDelay,
		RetryJitter:    sc.RetryJitter,
	}, nil
}

func mapLogConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}
