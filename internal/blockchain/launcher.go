package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/metrics"
	"github.com/pvgupta24/embark/internal/process"
)

// Tool-wide topics owned by the launcher
const (
	TopicReady          = "blockchain:ready"
	TopicExit           = "blockchain:exit"
	TopicLogsEnable     = "logs:ethereum:enable"
	TopicLogsDisable    = "logs:ethereum:disable"
	TopicToolExit       = "exit"
	blockchainWorkerTag = "blockchain"
)

const stopTimeout = 10 * time.Second

// ErrWorkerExited is returned by WaitReady when the worker is gone before
// the node became ready
var ErrWorkerExited = errors.New("blockchain worker exited")

// Supervised is the supervisor side handle of the worker process
type Supervised interface {
	Send(msg ipc.Message) error
	Once(kind, tag string, handler events.Handler)
	SetSilent(silent bool)
	Kill()
	Done() <-chan struct{}
}

// LaunchFunc starts a worker process
type LaunchFunc func(name string, opts process.Options) (Supervised, error)

// LauncherOptions configures a Launcher
type LauncherOptions struct {
	Bus *events.Bus

	// Executable and Args start the worker, usually this binary with the
	// hidden worker command
	Executable string
	Args       []string

	Init InitOptions

	// Silent mutes the client output until logs:ethereum:enable
	Silent bool

	Launch LaunchFunc
	Logger *slog.Logger
}

// Launcher starts the blockchain worker and bridges it to the tool bus
type Launcher struct {
	opts   LauncherOptions
	logger *slog.Logger

	mu   sync.Mutex
	proc Supervised

	readyOnce sync.Once
	ready     chan struct{}
}

// NewLauncher creates a Launcher; nothing runs until Start
func NewLauncher(opts LauncherOptions) *Launcher {
	if opts.Launch == nil {
		opts.Launch = func(name string, o process.Options) (Supervised, error) {
			proc, err := process.Launch(name, o)
			if err != nil {
				return nil, err
			}
			return proc, nil
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{opts: opts, logger: logger, ready: make(chan struct{})}
}

// Start launches the worker, wires its results to the bus and sends init
func (l *Launcher) Start() error {
	l.logger.Info("Starting Blockchain node in another process")

	proc, err := l.opts.Launch(blockchainWorkerTag, process.Options{
		Path:         l.opts.Executable,
		Args:         l.opts.Args,
		Bus:          l.opts.Bus,
		Silent:       l.opts.Silent,
		ExitCallback: l.processEnded,
		Logger:       l.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to launch blockchain worker: %w", err)
	}

	l.mu.Lock()
	l.proc = proc
	l.mu.Unlock()

	bus := l.opts.Bus

	proc.Once(process.KindResult, ipc.ResultBlockchainReady, func(interface{}) {
		l.logger.Info("Blockchain node is ready")
		metrics.BlockchainReady.Set(1)
		bus.Emit(TopicReady, nil)
		l.readyOnce.Do(func() { close(l.ready) })
	})

	proc.Once(process.KindResult, ipc.ResultBlockchainExit, func(interface{}) {
		metrics.BlockchainReady.Set(0)
		bus.Emit(TopicExit, nil)
		// Kill waits for the process, never on the bus goroutine
		go proc.Kill()
	})

	bus.On(TopicLogsEnable, func(interface{}) {
		proc.SetSilent(false)
	})
	bus.On(TopicLogsDisable, func(interface{}) {
		proc.SetSilent(true)
	})
	bus.On(TopicToolExit, func(interface{}) {
		if err := proc.Send(ipc.Message{Action: ipc.ActionExit}); err != nil {
			l.logger.Debug("Blockchain worker already gone", "error", err)
		}
	})

	msg, err := ipc.NewAction(ipc.ActionInit, l.opts.Init)
	if err != nil {
		return fmt.Errorf("failed to encode init options: %w", err)
	}
	if err := proc.Send(msg); err != nil {
		return fmt.Errorf("failed to send init to blockchain worker: %w", err)
	}
	return nil
}

func (l *Launcher) processEnded(code int) {
	l.logger.Error(fmt.Sprintf("Blockchain process ended before the end of this process. Try running blockchain in a separate process. Code: %d", code),
		"code", code,
	)
}

// WaitReady blocks until the node is ready, the worker exits or ctx is done
func (l *Launcher) WaitReady(ctx context.Context) error {
	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()
	if proc == nil {
		return errors.New("blockchain worker not started")
	}

	select {
	case <-l.ready:
		return nil
	case <-proc.Done():
		return ErrWorkerExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handles returns a snapshot of the worker, if it is a real process
func (l *Launcher) Handles() []process.Handle {
	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()

	if h, ok := proc.(interface{ Handle() process.Handle }); ok {
		return []process.Handle{h.Handle()}
	}
	return nil
}

// Stop asks the worker to stop the client and then stops the worker
func (l *Launcher) Stop() {
	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()
	if proc == nil {
		return
	}
	if err := proc.Send(ipc.Message{Action: ipc.ActionExit}); err != nil {
		l.logger.Debug("Blockchain worker already gone", "error", err)
	}

	// Give the worker time to stop the client it owns
	select {
	case <-proc.Done():
	case <-time.After(stopTimeout):
	}
	proc.Kill()
}
