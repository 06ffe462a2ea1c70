package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate reports every problem in cfg, each prefixed with its dotted path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	var errs *multierror.Error
	add := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if len(cfg.Bots) == 0 {
		add("bots: at least one bot required")
	}
	seen := map[string]int{}
	for i, b := range cfg.Bots {
		p := fmt.Sprintf("bots[%d]", i)
		name := strings.TrimSpace(b.Name)
		switch {
		case name == "":
			add("%s.name: required", p)
		case strings.ContainsAny(name, " :/"):
			add("%s.name: %q must not contain spaces, ':' or '/'", p, name)
		default:
			if j, dup := seen[name]; dup {
				add("%s.name: %q already used by bots[%d]", p, name, j)
			}
			seen[name] = i
		}
		switch strings.ToLower(b.FrontEnd) {
		case "credential":
			if len(b.OwnerUserIDs) == 0 {
				add("%s.owner_user_ids: the credential front end needs at least one owner (or ADMIN_USERID)", p)
			}
		case "reminder":
		default:
			add("%s.front_end: %q (want credential or reminder)", p, b.FrontEnd)
		}
		if strings.TrimSpace(b.Token) == "" {
			add("%s.token: required (or SCHEDULER_BOT_TOKEN / REMINDER_BOT_TOKEN)", p)
		}
		if _, err := ParseDurationField(p+".poll_timeout", b.PollTimeout); err != nil {
			errs = multierror.Append(errs, err)
		}
		if b.RatePerSec < 0 {
			add("%s.rate_per_sec: must be >= 0", p)
		}
		validateStorage(p+".storage", b.Storage, add, &errs)
	}

	if l := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); l != "" && !validLevels[l] {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add("logging.file.path: required when logging.file.enabled")
	}

	for field, raw := range map[string]string{
		"scheduler.retry_base":      cfg.Scheduler.RetryBase,
		"scheduler.retry_max_delay": cfg.Scheduler.RetryMaxDelay,
		"scheduler.deliver_timeout": cfg.Scheduler.DeliverTimeout,
	} {
		if _, err := ParseDurationField(field, raw); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if j := cfg.Scheduler.RetryJitter; j < 0 || j > 1 {
		add("scheduler.retry_jitter: must be within [0, 1]")
	}

	if cfg.Health.Enabled && strings.TrimSpace(cfg.Health.Addr) == "" {
		add("health.addr: required when health.enabled")
	}
	return errs.ErrorOrNil()
}

func validateStorage(p string, s StorageConfig, add func(string, ...any), errs **multierror.Error) {
	switch s.Driver {
	case "sqlite", "file":
		if strings.TrimSpace(s.Path) == "" {
			add("%s.path: required for driver %q", p, s.Driver)
		}
	case "redis":
		if strings.TrimSpace(s.Redis.Addr) == "" {
			add("%s.redis.addr: required for driver redis", p)
		}
	case "none":
		add("%s.driver: the scheduler needs a durable store; \"none\" is not allowed", p)
	default:
		add("%s.driver: unknown driver %q", p, s.Driver)
	}
	if _, err := ParseDurationField(p+".busy_timeout", s.BusyTimeout); err != nil {
		*errs = multierror.Append(*errs, err)
	}
	if s.CompactEvery < 0 {
		add("%s.compact_every: must be >= 0", p)
	}
}
