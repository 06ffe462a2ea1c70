package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Bots      []BotConfig     `json:"bots"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Health    HealthConfig    `json:"health"`
}

// BotConfig is one chat front end: a bot token bound to a front end kind
// and its own store namespace.
type BotConfig struct {
	Name     string `json:"name"`
	FrontEnd string `json:"front_end"` // "credential" | "reminder"
	Token    string `json:"token"`

	// OwnerUserIDs may use owner-only commands. Hot-reloadable.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	PollTimeout string  `json:"poll_timeout,omitempty"` // default 10s
	RatePerSec  float64 `json:"rate_per_sec,omitempty"` // outgoing messages, default 25

	Storage StorageConfig `json:"storage"`
}

// StorageConfig selects the durable store backend.
//
// Defaults:
//   - driver: "sqlite"
//   - path: "data/delaybot.db"
//   - namespace: the bot name
//   - busy_timeout: "5s"
type StorageConfig struct {
	Driver       string      `json:"driver,omitempty"` // "sqlite" | "file" | "redis"
	Path         string      `json:"path,omitempty"`
	Namespace    string      `json:"namespace,omitempty"`
	BusyTimeout  string      `json:"busy_timeout,omitempty"`
	CompactEvery int         `json:"compact_every,omitempty"` // file driver only
	Redis        RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig tunes delivery. Zero values mean the core defaults
// (retry_max 3, retry_base 1s, retry_max_delay 1m, deliver_timeout 30s).
// A negative retry_max disables in-process retry.
type SchedulerConfig struct {
	RetryMax       int     `json:"retry_max,omitempty"`
	RetryBase      string  `json:"retry_base,omitempty"`
	RetryMaxDelay  string  `json:"retry_max_delay,omitempty"`
	RetryJitter    float64 `json:"retry_jitter,omitempty"`
	DeliverTimeout string  `json:"deliver_timeout,omitempty"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
	// Pprof mounts /debug/pprof; honoured only on a loopback addr.
	Pprof bool `json:"pprof,omitempty"`
}

const (
	DefaultStoragePath = "data/delaybot.db"
	DefaultHealthAddr  = ":8080"
)

// Bot returns the bot with the given name.
func (c *Config) Bot(name string) (BotConfig, bool) {
	if c == nil {
		return BotConfig{}, false
	}
	for _, b := range c.Bots {
		if b.Name == name {
			return b, true
		}
	}
	return BotConfig{}, false
}

// applyDefaults fills the optional fields the rest of the program relies on.
func (c *Config) applyDefaults() {
	for i := range c.Bots {
		b := &c.Bots[i]
		if b.Storage.Driver == "" {
			b.Storage.Driver = "sqlite"
		}
		if b.Storage.Path == "" && b.Storage.Driver != "redis" {
			b.Storage.Path = DefaultStoragePath
		}
		if b.Storage.Namespace == "" {
			b.Storage.Namespace = b.Name
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Health.Enabled && c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}
}
