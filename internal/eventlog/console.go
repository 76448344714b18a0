package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"log/slog"

	"github.com/fatih/color"
)

// ConsoleHandlerOptions controls the human-facing console renderer. It is a
// trimmed version of the richer pretty-printer this is adapted from: no
// groups, no JSON attribute blocks, just level + message + key=value pairs.
type ConsoleHandlerOptions struct {
	UseColor   bool
	TimeFormat string
	LevelWidth int
}

func DefaultConsoleOptions() ConsoleHandlerOptions {
	return ConsoleHandlerOptions{
		UseColor:   true,
		TimeFormat: "15:04:05",
		LevelWidth: 5,
	}
}

// ConsoleHandler renders one colorized line per record to an io.Writer,
// normally the peer process's stderr.
type ConsoleHandler struct {
	opts   ConsoleHandlerOptions
	writer io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr

	colorTime    func(...any) string
	colorLevel   map[slog.Level]func(...any) string
	colorMessage func(...any) string
	colorFields  func(...any) string
}

func NewConsoleHandler(w io.Writer, opts ConsoleHandlerOptions) *ConsoleHandler {
	if opts.TimeFormat == "" {
		opts.TimeFormat = "15:04:05"
	}
	if opts.LevelWidth < 4 {
		opts.LevelWidth = 5
	}
	h := &ConsoleHandler{opts: opts, writer: w, mu: &sync.Mutex{}}
	h.initColorFuncs()
	return h
}

func (h *ConsoleHandler) initColorFuncs() {
	if !h.opts.UseColor {
		noColor := func(a ...any) string { return fmt.Sprint(a...) }
		h.colorTime, h.colorMessage, h.colorFields = noColor, noColor, noColor
		h.colorLevel = map[slog.Level]func(...any) string{
			slog.LevelDebug: noColor, slog.LevelInfo: noColor,
			slog.LevelWarn: noColor, slog.LevelError: noColor,
		}
		return
	}

	h.colorTime = color.New(color.FgHiBlack).SprintFunc()
	h.colorMessage = color.New(color.FgCyan).SprintFunc()
	h.colorFields = color.New(color.FgWhite).SprintFunc()
	h.colorLevel = map[slog.Level]func(...any) string{
		slog.LevelDebug: color.New(color.FgMagenta).SprintFunc(),
		slog.LevelInfo:  color.New(color.FgGreen).SprintFunc(),
		slog.LevelWarn:  color.New(color.FgYellow).SprintFunc(),
		slog.LevelError: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

func (h *ConsoleHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	buf.WriteString(h.colorTime(r.Time.Format(h.opts.TimeFormat)))
	buf.WriteByte(' ')

	levelStr := fmt.Sprintf("%-*s", h.opts.LevelWidth, r.Level.String())
	if colorFn, ok := h.colorLevel[r.Level]; ok {
		buf.WriteString(colorFn(levelStr))
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteByte(' ')
	buf.WriteString(h.colorMessage(r.Message))

	fields := make(map[string]any, len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte(' ')
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		buf.WriteString(h.colorFields(joinSpace(parts)))
	}

	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := &ConsoleHandler{opts: h.opts, writer: h.writer, mu: h.mu, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
	nh.initColorFuncs()
	return nh
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return h
}

func joinSpace(parts []string) string {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}
