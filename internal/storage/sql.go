package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"smartalarm/internal/alarm"
	"smartalarm/internal/recurrence"
	logx "smartalarm/pkg/logx"
)

//go:embed migrations_sqlite.sql migrations_postgres.sql
var migrationsFS embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore serves both SQL drivers; queries are written with ? and
// rebound for postgres.
type sqlStore struct {
	db      *sql.DB
	log     logx.Logger
	dialect dialect
}

func openSQLite(cfg Config, log logx.Logger) (History, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return newSQLStore(db, dialectSQLite, "migrations_sqlite.sql", log)
}

func openPostgres(cfg Config, log logx.Logger) (History, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history.dsn is required for postgres driver")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQLStore(db, dialectPostgres, "migrations_postgres.sql", log)
}

func newSQLStore(db *sql.DB, d dialect, migration string, log logx.Logger) (*sqlStore, error) {
	st := &sqlStore{db: db, log: log, dialect: d}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.migrate(ctx, migration); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqlStore) migrate(ctx context.Context, name string) error {
	b, err := migrationsFS.ReadFile(name)
	if err != nil {
		return err
	}
	// One statement per Exec.
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Append(ctx context.Context, n alarm.Notification) error {
	if n.FiredAt.IsZero() {
		n.FiredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO notifications(id, name, trigger_time, recurrence, fired_at_ms, err)
		 VALUES(?,?,?,?,?,?)`),
		n.ID, n.Name, n.TriggerTime.Format(time.RFC3339), n.Recurrence.String(), n.FiredAt.UnixMilli(), nullStr(n.Error),
	)
	return err
}

func (s *sqlStore) List(ctx context.Context, limit int) ([]alarm.Notification, error) {
	q := `SELECT id, name, trigger_time, recurrence, fired_at_ms, err FROM notifications ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarm.Notification
	for rows.Next() {
		var (
			n       alarm.Notification
			trigger string
			rec     string
			firedMS int64
			errText sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Name, &trigger, &rec, &firedMS, &errText); err != nil {
			return nil, err
		}
		if n.TriggerTime, err = time.Parse(time.RFC3339, trigger); err != nil {
			return nil, fmt.Errorf("history %s: trigger_time: %w", n.ID, err)
		}
		if n.Recurrence, err = recurrence.Parse(rec); err != nil {
			return nil, fmt.Errorf("history %s: %w", n.ID, err)
		}
		n.FiredAt = time.UnixMilli(firedMS)
		n.Error = errText.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqlStore) Prune(ctx context.Context, keep int, cutoff time.Time) (int64, error) {
	var total int64
	if !cutoff.IsZero() {
		res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM notifications WHERE fired_at_ms < ?`), cutoff.UnixMilli())
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if keep > 0 {
		res, err := s.db.ExecContext(ctx, s.rebind(
			`DELETE FROM notifications WHERE seq NOT IN (
			   SELECT seq FROM notifications ORDER BY seq DESC LIMIT ?)`), keep)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// rebind rewrites ? placeholders to $1..$n for postgres.
func (s *sqlStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
