package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// MultiHandler fans a record out to every wrapped handler, in order. The
// first error encountered is returned; later handlers still run.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: next}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: next}
}

// NewLogger opens log_peer_<peerID>.log under workdir in append mode and
// returns a logger that writes every record there in the spec's
// "[YYYY-MM-DD HH:MM:SS] message" line format, and mirrors it to a colorized
// console handler on stderr. The returned closer must be called on shutdown.
func NewLogger(peerID int, workdir string) (*slog.Logger, func() error, error) {
	path := filepath.Join(workdir, fmt.Sprintf("log_peer_%d.log", peerID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}

	handler := NewMultiHandler(
		NewFileHandler(f),
		NewConsoleHandler(os.Stderr, DefaultConsoleOptions()),
	)

	logger := slog.New(handler).With("peer", peerID)
	return logger, f.Close, nil
}
