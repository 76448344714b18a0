package eventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// timeFormat is the spec-mandated log line timestamp: [YYYY-MM-DD HH:MM:SS].
const timeFormat = "2006-01-02 15:04:05"

// FileHandler writes one line per record as "[<timestamp>] <message> <attrs>"
// to the peer's append-only log file. Writes are serialized by an internal
// lock so concurrent goroutines never interleave partial lines.
type FileHandler struct {
	mu  *sync.Mutex
	out io.Writer
}

// NewFileHandler wraps an already-opened, append-mode log file.
func NewFileHandler(out io.Writer) *FileHandler {
	return &FileHandler{mu: &sync.Mutex{}, out: out}
}

func (h *FileHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(r.Time.Format(timeFormat))
	b.WriteString("] ")
	b.WriteString(r.Message)

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &attrBindingHandler{next: h, attrs: attrs}
}

func (h *FileHandler) WithGroup(name string) slog.Handler {
	return h
}

// attrBindingHandler prepends bound attrs to every record it forwards. The
// file format has no grouping concept, so WithGroup is a no-op and bound
// attrs are flattened onto the record before formatting.
type attrBindingHandler struct {
	next  slog.Handler
	attrs []slog.Attr
}

func (h *attrBindingHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *attrBindingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	nr.AddAttrs(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(a)
		return true
	})
	return h.next.Handle(ctx, nr)
}

func (h *attrBindingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &attrBindingHandler{next: h.next, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *attrBindingHandler) WithGroup(name string) slog.Handler {
	return h
}
