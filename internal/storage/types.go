package storage

import (
	"context"
	"errors"
	"time"

	"smartalarm/internal/alarm"
)

var ErrClosed = errors.New("storage: closed")

// Config configures the history backend.
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	DSN         string        // postgres
	MaxRecords  int           // memory ring size; 0 means default
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// History is the append-only log of fired alarms.
type History interface {
	Append(ctx context.Context, n alarm.Notification) error
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]alarm.Notification, error)
	// Prune drops records fired before cutoff (when non-zero) and then all
	// but the newest keep records (when keep > 0).
	Prune(ctx context.Context, keep int, cutoff time.Time) (int64, error)
	Close() error
}
