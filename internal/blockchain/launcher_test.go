package blockchain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/process"
)

// fakeProcess stands in for a launched worker process
type fakeProcess struct {
	bus  *events.Bus
	opts process.Options

	mu     sync.Mutex
	sent   []ipc.Message
	silent bool
	kills  int

	doneOnce sync.Once
	done     chan struct{}
}

func (f *fakeProcess) Send(msg ipc.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeProcess) Once(kind, tag string, handler events.Handler) {
	f.bus.Once(process.Topic(kind, tag), handler)
}

func (f *fakeProcess) SetSilent(silent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = silent
}

func (f *fakeProcess) Kill() {
	f.mu.Lock()
	f.kills++
	f.mu.Unlock()
	f.exit(143)
}

func (f *fakeProcess) Done() <-chan struct{} {
	return f.done
}

func (f *fakeProcess) exit(code int) {
	f.doneOnce.Do(func() {
		close(f.done)
		if f.opts.ExitCallback != nil {
			f.opts.ExitCallback(code)
		}
	})
}

func (f *fakeProcess) messages() []ipc.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ipc.Message(nil), f.sent...)
}

func (f *fakeProcess) isSilent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.silent
}

func (f *fakeProcess) killCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

func (f *fakeProcess) result(tag string) {
	f.bus.Emit(process.Topic(process.KindResult, tag), ipc.NewResult(tag))
}

func startFakeLauncher(t *testing.T) (*Launcher, *fakeProcess, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	proc := &fakeProcess{bus: bus, done: make(chan struct{})}
	l := NewLauncher(LauncherOptions{
		Bus:        bus,
		Executable: "/proc/self/exe",
		Args:       []string{WorkerCommand},
		Init:       InitOptions{Client: "geth", RPCHost: "localhost", RPCPort: 8545},
		Silent:     true,
		Launch: func(name string, opts process.Options) (Supervised, error) {
			proc.opts = opts
			return proc, nil
		},
	})
	require.NoError(t, l.Start())
	bus.Flush()
	return l, proc, bus
}

func TestLauncher_SendsInit(t *testing.T) {
	_, proc, _ := startFakeLauncher(t)

	assert.Equal(t, "/proc/self/exe", proc.opts.Path)
	assert.Equal(t, []string{WorkerCommand}, proc.opts.Args)
	assert.True(t, proc.opts.Silent)

	msgs := proc.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, ipc.ActionInit, msgs[0].Action)

	var opts InitOptions
	require.NoError(t, msgs[0].DecodeOptions(&opts))
	assert.Equal(t, "geth", opts.Client)
	assert.Equal(t, 8545, opts.RPCPort)
}

func TestLauncher_Ready(t *testing.T) {
	l, proc, bus := startFakeLauncher(t)

	readyCount := 0
	bus.On(TopicReady, func(interface{}) { readyCount++ })
	bus.Flush()

	proc.result(ipc.ResultBlockchainReady)
	proc.result(ipc.ResultBlockchainReady)
	bus.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.WaitReady(ctx))

	bus.Flush()
	assert.Equal(t, 1, readyCount, "readiness is re-broadcast once")
}

func TestLauncher_ExitTearsDown(t *testing.T) {
	l, proc, bus := startFakeLauncher(t)

	exitCount := 0
	bus.On(TopicExit, func(interface{}) { exitCount++ })
	bus.Flush()

	proc.result(ipc.ResultBlockchainExit)
	bus.Flush()

	assert.Eventually(t, func() bool { return proc.killCount() == 1 }, time.Second, 10*time.Millisecond)
	bus.Flush()
	assert.Equal(t, 1, exitCount)

	err := l.WaitReady(context.Background())
	assert.True(t, errors.Is(err, ErrWorkerExited))
}

func TestLauncher_LogToggles(t *testing.T) {
	_, proc, bus := startFakeLauncher(t)

	bus.Emit(TopicLogsEnable, nil)
	bus.Flush()
	assert.False(t, proc.isSilent())

	bus.Emit(TopicLogsDisable, nil)
	bus.Flush()
	assert.True(t, proc.isSilent())
}

func TestLauncher_ToolExitForwardsExit(t *testing.T) {
	_, proc, bus := startFakeLauncher(t)

	bus.Emit(TopicToolExit, nil)
	bus.Flush()

	msgs := proc.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, ipc.ActionExit, msgs[1].Action)
}

func TestLauncher_Stop(t *testing.T) {
	l, proc, _ := startFakeLauncher(t)

	go func() {
		// the worker stops its client and exits on its own
		time.Sleep(20 * time.Millisecond)
		proc.exit(0)
	}()
	l.Stop()

	msgs := proc.messages()
	assert.Equal(t, ipc.ActionExit, msgs[len(msgs)-1].Action)
	assert.Equal(t, 1, proc.killCount())
}

func TestLauncher_LaunchFailure(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	l := NewLauncher(LauncherOptions{
		Bus: bus,
		Launch: func(name string, opts process.Options) (Supervised, error) {
			return nil, errors.New("no such file")
		},
	})
	assert.Error(t, l.Start())
	assert.Error(t, l.WaitReady(context.Background()))
}
