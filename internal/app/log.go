package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// cavHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<sessionID>\t<message>\t<key=value ...>
//
// Handlers derived through WithAttrs share the parent's writer lock, since
// `cav serve` logs from many goroutines.
type cavHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	sessionID string
	level     slog.Leveler
	attrs     []slog.Attr
}

func newCavHandler(w io.Writer, sessionID string, level slog.Leveler) *cavHandler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &cavHandler{mu: &sync.Mutex{}, w: w, sessionID: sessionID, level: level}
}

func (h *cavHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *cavHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level, h.sessionID, r.Message); err != nil {
		return err
	}
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})
	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *cavHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &cavHandler{
		mu:        h.mu,
		w:         h.w,
		sessionID: h.sessionID,
		level:     h.level,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *cavHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to both logDir/cav.log and stderr.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir, sessionID string, level slog.Leveler) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "cav.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)
	return slog.New(newCavHandler(w, sessionID, level)), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the cav.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
