package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/metrics"
	"github.com/pvgupta24/embark/internal/worker"
)

// Options configures a launched worker
type Options struct {
	// Path is the executable to run, Args its arguments
	Path string
	Args []string
	Env  []string

	Bus    *events.Bus
	Silent bool

	// ExitCallback is invoked with the exit code once the worker is gone
	ExitCallback func(code int)

	// PingInterval is the worker's heartbeat period, used to count missed pings
	PingInterval time.Duration

	Logger *slog.Logger
}

// Launch spawns name as a worker process and wires its message channel
// into the bus. Every message the worker sends with a result tag is
// re-emitted on the bus as "result:<tag>"
func Launch(name string, opts Options) (*Process, error) {
	if opts.Bus == nil {
		return nil, errors.New("process: a bus is required")
	}
	if opts.Path == "" {
		return nil, errors.New("process: executable path is required")
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = worker.DefaultPingInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// toChild: the worker reads, fromChild: the worker writes
	toChildR, toChildW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pipe: %w", err)
	}
	fromChildR, fromChildW, err := os.Pipe()
	if err != nil {
		toChildR.Close()
		toChildW.Close()
		return nil, fmt.Errorf("failed to create worker pipe: %w", err)
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	env := opts.Env
	if len(env) == 0 {
		env = os.Environ()
	}
	// ExtraFiles start at fd 3
	cmd.Env = append(append([]string{}, env...), ipc.EnvChannelFDs+"=3,4")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{toChildR, fromChildW}

	if err := cmd.Start(); err != nil {
		toChildR.Close()
		toChildW.Close()
		fromChildR.Close()
		fromChildW.Close()
		return nil, fmt.Errorf("failed to start worker %s: %w", name, err)
	}

	// The child owns these ends now
	toChildR.Close()
	fromChildW.Close()

	p := &Process{
		id:           uuid.NewString(),
		name:         name,
		cmd:          cmd,
		conn:         ipc.NewConn(fromChildR, toChildW),
		bus:          opts.Bus,
		logger:       logger,
		pingInterval: opts.PingInterval,
		exitCallback: opts.ExitCallback,
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.silent.Store(opts.Silent)
	p.alive.Store(true)

	metrics.WorkersLaunched.WithLabelValues(name).Inc()
	metrics.WorkersAlive.Inc()
	logger.Debug("Worker launched",
		"worker", name,
		"id", p.id,
		"pid", cmd.Process.Pid,
	)

	go p.readLoop()
	go p.wait()

	return p, nil
}
