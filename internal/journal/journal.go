// Package journal writes simulation events to hourly-rotated,
// zstd-compressed JSONL files.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/courier-sim/internal/engine"
)

// Writer appends JSON lines to <dir>/<prefix>-<yyyy-mm-dd-hh>.jsonl.zst,
// starting a new file each UTC hour.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends one value as a JSON line.
func (w *Writer) Write(v any) error {
	return w.WriteAll([]any{v})
}

// WriteAll appends values as JSON lines and flushes once.
func (w *Writer) WriteAll(vs []any) error {
	if len(vs) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	for _, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.w.Write(b); err != nil {
			return err
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Entry is one journaled event.
type Entry struct {
	Session string `json:"session"`
	engine.Event
}

// EventLogger journals simulation events.
type EventLogger struct{ w *Writer }

func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{w: NewWriter(filepath.Join(dir, "events"), "events")}
}

// WriteEvents appends a batch of events for a session.
func (l *EventLogger) WriteEvents(session string, events []engine.Event) error {
	vs := make([]any, len(events))
	for i, e := range events {
		vs[i] = Entry{Session: session, Event: e}
	}
	return l.w.WriteAll(vs)
}

func (l *EventLogger) Close() error { return l.w.Close() }

// ResultLogger journals final standings.
type ResultLogger struct{ w *Writer }

func NewResultLogger(dir string) *ResultLogger {
	return &ResultLogger{w: NewWriter(filepath.Join(dir, "results"), "results")}
}

// Result is one session's final standings.
type Result struct {
	Session  string               `json:"session"`
	Outcome  string               `json:"outcome"`
	Clock    float64              `json:"clock"`
	Couriers []engine.CourierView `json:"couriers"`
}

func (l *ResultLogger) WriteResult(r Result) error { return l.w.Write(r) }
func (l *ResultLogger) Close() error               { return l.w.Close() }
