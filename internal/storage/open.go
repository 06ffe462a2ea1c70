package storage

import (
	"fmt"
	"strings"

	logx "delaybot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "none":
		return nil, fmt.Errorf("storage driver %q: the scheduler requires a durable store", driver)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
