package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"smartalarm/internal/alarm"
	"smartalarm/internal/recurrence"
	logx "smartalarm/pkg/logx"
)

const (
	// Delimiter separates the line prefix from the JSON payload. Readers
	// split on its first occurrence.
	Delimiter = "@"

	stampLayout = "2006-01-02 15:04:05,000"
	loggerName  = "smartalarm.snapshot"
	levelName   = "CRITICAL"
	message     = "Alarms list : "
)

var (
	ErrClosed    = errors.New("journal: closed")
	ErrEmpty     = errors.New("journal: no snapshot lines")
	ErrNoPayload = errors.New("journal: snapshot line has no payload")
	ErrMalformed = errors.New("journal: malformed snapshot")
)

// record is the wire shape of one snapshot element.
type record struct {
	DateTime    string `json:"date_time"`
	EventName   string `json:"event_name"`
	EventPeriod string `json:"event_period"`
}

// Log appends snapshots to a single file opened in append mode.
type Log struct {
	path string
	log  logx.Logger
	now  func() time.Time

	mu sync.Mutex
	f  *os.File
}

// Open opens (creating if needed) the journal at path. Existing content is
// never truncated.
func Open(path string, log logx.Logger) (*Log, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Log{path: path, log: log, now: time.Now, f: f}, nil
}

func (l *Log) Path() string { return l.path }

// PersistSnapshot appends one line describing entries, in the given order.
func (l *Log) PersistSnapshot(entries []alarm.Entry) error {
	payload, err := Encode(entries)
	if err != nil {
		return err
	}
	line := FormatLine(l.now(), payload)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	if _, err := l.f.WriteString(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	l.log.Debug("snapshot appended", logx.Int("alarms", len(entries)), logx.Int("bytes", len(line)))
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// FormatLine renders a complete journal line, newline included.
func FormatLine(at time.Time, payload []byte) string {
	var b strings.Builder
	b.Grow(len(payload) + 80)
	b.WriteString(at.Format(stampLayout))
	b.WriteString(" - ")
	b.WriteString(loggerName)
	b.WriteString(" - ")
	b.WriteString(levelName)
	b.WriteString(" - ")
	b.WriteString(message)
	b.WriteString(Delimiter)
	b.Write(payload)
	b.WriteByte('\n')
	return b.String()
}

// Encode renders entries as the snapshot JSON array. Times are written at
// minute precision.
func Encode(entries []alarm.Entry) ([]byte, error) {
	recs := make([]record, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, record{
			DateTime:    alarm.FormatTime(e.TriggerTime),
			EventName:   e.Name,
			EventPeriod: e.Recurrence.String(),
		})
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("journal: encode: %w", err)
	}
	return b, nil
}

// Decode parses a snapshot payload. Any bad element rejects the whole
// payload. Payloads written with single quotes are accepted.
func Decode(payload []byte, loc *time.Location) ([]alarm.Entry, error) {
	var recs []record
	if err := json.Unmarshal(payload, &recs); err != nil {
		alt := []byte(strings.ReplaceAll(string(payload), "'", `"`))
		if err2 := json.Unmarshal(alt, &recs); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	out := make([]alarm.Entry, 0, len(recs))
	for i, r := range recs {
		name := strings.TrimSpace(r.EventName)
		if name == "" {
			return nil, fmt.Errorf("%w: element %d has no event_name", ErrMalformed, i)
		}
		at, err := alarm.ParseTime(r.DateTime, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d (%q): %v", ErrMalformed, i, name, err)
		}
		p, err := recurrence.Parse(r.EventPeriod)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d (%q): %v", ErrMalformed, i, name, err)
		}
		out = append(out, alarm.Entry{TriggerTime: at, Name: name, Recurrence: p})
	}
	return out, nil
}
