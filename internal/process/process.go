// Package process supervises worker processes from the tool side: it
// spawns them with a message channel, republishes their results on the
// event bus and reports their exit
package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/metrics"
	"github.com/pvgupta24/embark/internal/worker"
)

// KindResult is the topic prefix for worker results on the bus
const KindResult = "result"

// ErrChannelClosed is returned when sending to a worker that is gone
var ErrChannelClosed = errors.New("worker channel closed")

// killGracePeriod is how long Kill waits after SIGTERM before SIGKILL
const killGracePeriod = 3 * time.Second

// drainTimeout bounds how long an exited worker's channel is drained
const drainTimeout = time.Second

// Topic returns the bus topic a worker result is republished on
func Topic(kind, tag string) string {
	return kind + ":" + tag
}

// Handle is a snapshot of a supervised worker
type Handle struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Silent           bool      `json:"silent"`
	Alive            bool      `json:"alive"`
	MissedHeartbeats int       `json:"missed_heartbeats"`
	LastPing         time.Time `json:"last_ping,omitempty"`
}

// Process is one supervised worker
type Process struct {
	id     string
	name   string
	cmd    *exec.Cmd
	conn   *ipc.Conn
	bus    *events.Bus
	logger *slog.Logger

	silent atomic.Bool
	alive  atomic.Bool

	pingInterval time.Duration
	mu           sync.Mutex
	lastPing     time.Time

	exitCallback func(code int)
	readDone     chan struct{}
	done         chan struct{}
	exitCode     int
}

// ID returns the unique id of the worker
func (p *Process) ID() string {
	return p.id
}

// Name returns the worker name given at launch
func (p *Process) Name() string {
	return p.name
}

// Send forwards msg to the worker
func (p *Process) Send(msg ipc.Message) error {
	if !p.alive.Load() || p.conn.Closed() {
		return ErrChannelClosed
	}
	return p.conn.Send(msg)
}

// Once subscribes handler to the next worker message tagged tag
func (p *Process) Once(kind, tag string, handler events.Handler) {
	p.bus.Once(Topic(kind, tag), handler)
}

// On subscribes handler to every worker message tagged tag
func (p *Process) On(kind, tag string, handler events.Handler) {
	p.bus.On(Topic(kind, tag), handler)
}

// SetSilent gates whether the worker's log messages reach the tool output
func (p *Process) SetSilent(silent bool) {
	p.silent.Store(silent)
}

// Silent reports whether worker logs are muted
func (p *Process) Silent() bool {
	return p.silent.Load()
}

// Alive reports whether the worker process is still running
func (p *Process) Alive() bool {
	return p.alive.Load()
}

// Done is closed once the worker has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code once Done is closed
func (p *Process) ExitCode() int {
	<-p.done
	return p.exitCode
}

// Handle returns a snapshot of the worker state
func (p *Process) Handle() Handle {
	p.mu.Lock()
	lastPing := p.lastPing
	p.mu.Unlock()

	missed := 0
	if !lastPing.IsZero() && p.pingInterval > 0 {
		missed = int(time.Since(lastPing) / p.pingInterval)
	}

	return Handle{
		ID:               p.id,
		Name:             p.name,
		Silent:           p.silent.Load(),
		Alive:            p.alive.Load(),
		MissedHeartbeats: missed,
		LastPing:         lastPing,
	}
}

// Kill terminates the worker and releases the channel. It returns once
// the process has exited
func (p *Process) Kill() {
	if !p.alive.Load() {
		return
	}

	p.logger.Debug("Killing worker", "worker", p.name, "id", p.id)
	_ = p.conn.Close()

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(killGracePeriod):
		p.logger.Warn("Worker ignored SIGTERM, sending SIGKILL", "worker", p.name)
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

// readLoop republishes every worker message until the channel closes
func (p *Process) readLoop() {
	defer close(p.readDone)
	for {
		msg, err := p.conn.Receive()
		if err != nil {
			if p.alive.Load() && !p.conn.Closed() && !errors.Is(err, os.ErrClosed) {
				p.logger.Debug("Worker channel closed", "worker", p.name, "error", err)
			}
			return
		}
		p.dispatch(msg)
	}
}

func (p *Process) dispatch(msg ipc.Message) {
	if msg.Error != "" {
		metrics.ErrorsTotal.WithLabelValues("worker_" + p.name).Inc()
		p.logger.Error("Worker reported an error",
			"worker", p.name,
			"error", msg.Error,
			"detail", msg.Detail,
		)
		return
	}
	if msg.Result == "" {
		return
	}

	switch msg.Result {
	case ipc.ResultPing:
		p.mu.Lock()
		p.lastPing = time.Now()
		p.mu.Unlock()
		metrics.WorkerHeartbeats.WithLabelValues(p.name).Inc()
	case ipc.ResultLog:
		if !p.silent.Load() {
			p.logger.Log(context.Background(), worker.ParseLevelName(msg.Type),
				strings.Join(msg.Message, " "),
				"worker", p.name,
			)
		}
	}

	p.bus.Emit(Topic(KindResult, msg.Result), msg)
}

// wait reaps the process and reports its exit
func (p *Process) wait() {
	err := p.cmd.Wait()

	// Let messages written just before exit reach the bus
	select {
	case <-p.readDone:
	case <-time.After(drainTimeout):
	}

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	p.exitCode = code
	p.alive.Store(false)
	_ = p.conn.Close()

	metrics.WorkerExits.WithLabelValues(p.name).Inc()
	metrics.WorkersAlive.Dec()
	p.logger.Debug("Worker exited", "worker", p.name, "code", code, "error", err)

	close(p.done)

	if p.exitCallback != nil {
		p.exitCallback(code)
	}
}
