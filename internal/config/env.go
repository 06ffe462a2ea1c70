package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds the environment overrides. Values set here win over the file.
type Env struct {
	ConfigPath     string  `env:"DELAYBOT_CONFIG"`
	SchedulerToken string  `env:"SCHEDULER_BOT_TOKEN"`
	ReminderToken  string  `env:"REMINDER_BOT_TOKEN"`
	AdminUserIDs   []int64 `env:"ADMIN_USERID" envSeparator:","`
	Port           string  `env:"PORT"`
	LogLevel       string  `env:"LOG_LEVEL"`
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment without overriding variables that are already set.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("env: %w", err)
	}
	return e, nil
}

// ParseEnvFrom reads Env from an explicit variable map (tests, CLI).
func ParseEnvFrom(vars map[string]string) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("env: %w", err)
	}
	return e, nil
}

// tokenFor returns the env token that applies to a front end kind.
func (e Env) tokenFor(frontEnd string) string {
	switch strings.ToLower(frontEnd) {
	case "credential":
		return strings.TrimSpace(e.SchedulerToken)
	case "reminder":
		return strings.TrimSpace(e.ReminderToken)
	}
	return ""
}

// Apply overlays the environment on cfg.
func (e Env) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	for i := range cfg.Bots {
		b := &cfg.Bots[i]
		if t := e.tokenFor(b.FrontEnd); t != "" {
			b.Token = t
		}
		if len(e.AdminUserIDs) > 0 && strings.EqualFold(b.FrontEnd, "credential") {
			b.OwnerUserIDs = append([]int64(nil), e.AdminUserIDs...)
		}
	}
	if p := strings.TrimSpace(e.Port); p != "" {
		cfg.Health.Enabled = true
		cfg.Health.Addr = ":" + strings.TrimPrefix(p, ":")
	}
	if l := strings.TrimSpace(e.LogLevel); l != "" {
		cfg.Logging.Level = l
	}
}

// FromEnv builds a configuration without a file: one bot per token that is set,
// both sharing the default sqlite database in separate namespaces.
func FromEnv(e Env) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
	if strings.TrimSpace(e.SchedulerToken) != "" {
		cfg.Bots = append(cfg.Bots, BotConfig{Name: "scheduler", FrontEnd: "credential"})
	}
	if strings.TrimSpace(e.ReminderToken) != "" {
		cfg.Bots = append(cfg.Bots, BotConfig{Name: "reminder", FrontEnd: "reminder"})
	}
	if len(cfg.Bots) == 0 {
		return nil, errors.New("no bots configured: set SCHEDULER_BOT_TOKEN or REMINDER_BOT_TOKEN, or provide a config file")
	}
	e.Apply(cfg)
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
