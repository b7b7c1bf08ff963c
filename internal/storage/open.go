package storage

import (
	"errors"
	"strings"

	logx "smartalarm/pkg/logx"
)

// Open initializes the configured history backend.
func Open(cfg Config, log logx.Logger) (History, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(cfg.MaxRecords), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
