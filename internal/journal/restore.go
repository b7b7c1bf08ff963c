package journal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"smartalarm/internal/alarm"
	logx "smartalarm/pkg/logx"
)

// Restorer is the store side of recovery.
type Restorer interface {
	Restore(entries []alarm.Entry) alarm.RestoreReport
}

// Report describes one recovery run. Reason is set when recovery fell back
// to an empty store.
type Report struct {
	Path     string
	Restored int
	Expired  int
	Skipped  int
	Reason   error
}

// Restore rebuilds dst from the last snapshot in the journal at path.
// Every failure is logged and leaves dst untouched; startup continues.
func Restore(path string, dst Restorer, loc *time.Location, log logx.Logger) Report {
	if log.IsZero() {
		log = logx.Nop()
	}
	rep := Report{Path: path}

	entries, err := ReadLast(path, loc)
	if err != nil {
		rep.Reason = err
		switch {
		case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrEmpty):
			log.Warn("no alarms to restore", logx.String("path", path), logx.Err(err))
		default:
			log.Error("alarm recovery failed; starting empty", logx.String("path", path), logx.Err(err))
		}
		return rep
	}

	r := dst.Restore(entries)
	rep.Restored = r.Restored
	rep.Expired = r.Expired
	rep.Skipped = r.Duplicates
	log.Info("alarms restored",
		logx.String("path", path),
		logx.Int("restored", rep.Restored),
		logx.Int("expired", rep.Expired),
		logx.Int("skipped", rep.Skipped),
	)
	return rep
}

// ReadLast decodes the last snapshot line of the journal at path.
func ReadLast(path string, loc *time.Location) ([]alarm.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("journal: stat: %w", err)
	}
	line, err := lastLine(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	if len(line) == 0 {
		return nil, ErrEmpty
	}
	i := bytes.Index(line, []byte(Delimiter))
	if i < 0 || len(bytes.TrimSpace(line[i+1:])) == 0 {
		return nil, ErrNoPayload
	}
	return Decode(bytes.TrimSpace(line[i+1:]), loc)
}

const readChunk = 4096

// lastLine returns the last non-blank line of r without scanning from the
// start.
func lastLine(r io.ReaderAt, size int64) ([]byte, error) {
	var buf []byte
	off := size
	for off > 0 {
		n := int64(readChunk)
		if off < n {
			n = off
		}
		off -= n
		chunk := make([]byte, n)
		if _, err := r.ReadAt(chunk, off); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		buf = append(chunk, buf...)

		tail := bytes.TrimRight(buf, " \t\r\n")
		if i := bytes.LastIndexByte(tail, '\n'); i >= 0 {
			return bytes.TrimSpace(tail[i+1:]), nil
		}
	}
	return bytes.TrimSpace(buf), nil
}
