// Package worker is the code that runs inside a supervised worker process
// It bridges the worker's logging to the supervisor, keeps a heartbeat
// towards the supervisor and dispatches the actions it receives
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pvgupta24/embark/internal/ipc"
)

const (
	DefaultPingInterval = 500 * time.Millisecond
	DefaultMaxMissed    = 3

	// DefaultMarker identifies build-tool chatter that must not be forwarded
	DefaultMarker = "hardsource"
)

// Channel is the worker's end of the message channel
type Channel interface {
	Send(msg ipc.Message) error
	Receive() (ipc.Message, error)
	Closed() bool
	Close() error
}

// ActionHandler handles one action sent by the supervisor
type ActionHandler func(ctx context.Context, msg ipc.Message)

// Options configures a Runtime
type Options struct {
	Name string

	// DisablePing turns the parent heartbeat off
	DisablePing  bool
	PingInterval time.Duration
	MaxMissed    int

	// Marker filters log lines containing it
	Marker string

	// CaptureStdio swaps os.Stdout and os.Stderr for pipes feeding the bridge
	CaptureStdio bool

	// Kill stops the worker payload; Exit ends the process
	Kill func()
	Exit func(code int)

	// Diagnostics receives the runtime's own output, never the bridge
	Diagnostics io.Writer
}

// Runtime hosts a worker payload
type Runtime struct {
	opts Options
	conn Channel
	diag io.Writer

	missed atomic.Int32

	mu      sync.RWMutex
	actions map[string]ActionHandler
	killed  bool

	stopOnce sync.Once
	stop     chan struct{}
	restore  func()
}

// New creates a Runtime over conn. Nothing runs until Start
func New(conn Channel, opts Options) *Runtime {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MaxMissed <= 0 {
		opts.MaxMissed = DefaultMaxMissed
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}

	diag := opts.Diagnostics
	if diag == nil {
		// Keep the pre-interception stderr for our own output
		diag = os.Stderr
	}

	r := &Runtime{
		opts:    opts,
		conn:    conn,
		diag:    diag,
		actions: make(map[string]ActionHandler),
		stop:    make(chan struct{}),
		restore: func() {},
	}
	r.Handle(ipc.ActionExit, func(ctx context.Context, msg ipc.Message) {
		r.Kill()
	})
	return r
}

// Start intercepts logging and starts the parent heartbeat
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.interceptLogs(); err != nil {
		return err
	}
	if !r.opts.DisablePing {
		go r.pingParent(ctx)
	}
	return nil
}

// Send delivers msg to the supervisor. It returns false when the message
// could not be delivered because the channel is gone
func (r *Runtime) Send(msg ipc.Message) bool {
	if r.conn == nil || r.conn.Closed() {
		return false
	}
	if err := r.conn.Send(msg); err != nil {
		// Never through slog: the default handler is the bridge itself
		fmt.Fprintf(r.diag, "[%s] failed to send message: %v\n", r.opts.Name, err)
		return false
	}
	return true
}

// Handle registers the handler for an action, replacing any previous one
func (r *Runtime) Handle(action string, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action] = handler
}

// Serve dispatches incoming actions until the supervisor closes the
// channel or ctx is done
func (r *Runtime) Serve(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := r.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}
		if msg.Action == "" {
			continue
		}

		r.mu.RLock()
		handler, ok := r.actions[msg.Action]
		r.mu.RUnlock()
		if !ok {
			slog.Warn("Unknown worker action", "worker", r.opts.Name, "action", msg.Action)
			continue
		}
		handler(ctx, msg)
	}
}

// Kill stops the payload. It is safe to call more than once
func (r *Runtime) Kill() {
	r.mu.Lock()
	if r.killed {
		r.mu.Unlock()
		return
	}
	r.killed = true
	r.mu.Unlock()

	if r.opts.Kill != nil {
		r.opts.Kill()
		return
	}
	fmt.Fprintf(r.diag, "[%s] process killed\n", r.opts.Name)
}

// Close stops the heartbeat and restores the original stdio
func (r *Runtime) Close() error {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.restore()
	})
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// ReportPanic forwards a panic to the supervisor before crashing
// Use it as `defer rt.ReportPanic()` in the worker entry point
func (r *Runtime) ReportPanic() {
	rec := recover()
	if rec == nil {
		return
	}
	r.Send(ipc.Message{Error: fmt.Sprint(rec), Detail: string(debug.Stack())})
	panic(rec)
}

// MissedHeartbeats returns the current count of consecutive failed pings
func (r *Runtime) MissedHeartbeats() int {
	return int(r.missed.Load())
}
