package worker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pvgupta24/embark/internal/ipc"
)

// interceptLogs routes slog, the log package and, if enabled, raw stdio
// through the supervisor channel
func (r *Runtime) interceptLogs() error {
	previous := slog.Default()
	slog.SetDefault(slog.New(r.LogHandler()))

	restoreStdio := func() {}
	if r.opts.CaptureStdio {
		var err error
		restoreStdio, err = r.captureStdio()
		if err != nil {
			slog.SetDefault(previous)
			return err
		}
	}

	r.restore = func() {
		restoreStdio()
		slog.SetDefault(previous)
	}
	return nil
}

// LogHandler returns a slog handler that forwards every record as a log
// message to the supervisor
func (r *Runtime) LogHandler() slog.Handler {
	return &bridgeHandler{rt: r}
}

// sendLog forwards one log line unless it carries the internal marker
func (r *Runtime) sendLog(level string, messages ...string) {
	for _, m := range messages {
		if strings.Contains(m, r.opts.Marker) {
			return
		}
	}
	r.Send(ipc.Message{Result: ipc.ResultLog, Message: messages, Type: level})
}

// captureStdio hijacks os.Stdout and os.Stderr, forwarding every line
// written to them. Stderr lines are reported as errors
func (r *Runtime) captureStdio() (func(), error) {
	origStdout, origStderr := os.Stdout, os.Stderr

	capture := func(level string, set func(*os.File)) (func(), error) {
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create pipe for log capture: %w", err)
		}
		set(pw)

		go func() {
			scanner := bufio.NewScanner(pr)
			for scanner.Scan() {
				r.sendLog(level, scanner.Text())
			}
		}()
		return func() { pw.Close() }, nil
	}

	closeErr, err := capture("error", func(f *os.File) { os.Stderr = f })
	if err != nil {
		return nil, err
	}
	closeOut, err := capture("log", func(f *os.File) { os.Stdout = f })
	if err != nil {
		os.Stderr = origStderr
		closeErr()
		return nil, err
	}

	return func() {
		os.Stdout, os.Stderr = origStdout, origStderr
		closeOut()
		closeErr()
	}, nil
}

type bridgeHandler struct {
	rt     *Runtime
	attrs  []slog.Attr
	groups []string
}

func (h *bridgeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Filtering by level is the supervisor's job
	return true
}

func (h *bridgeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&b, " %s%s=%v", prefix, a.Key, a.Value.Resolve().Any())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	rec.Attrs(write)

	h.rt.sendLog(LevelName(rec.Level), b.String())
	return nil
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// LevelName maps a slog level to the log type carried in log messages
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// ParseLevelName is the inverse of LevelName. Unknown types ("log", "dir")
// map to info
func ParseLevelName(name string) slog.Level {
	switch name {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
