package blockchain

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/worker"
)

type recordingChannel struct {
	mu     sync.Mutex
	sent   []ipc.Message
	closed bool
}

func (c *recordingChannel) Send(msg ipc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) Receive() (ipc.Message, error) {
	return ipc.Message{}, io.EOF
}

func (c *recordingChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingChannel) results() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if m.Result != "" {
			out = append(out, m.Result)
		}
	}
	return out
}

type fakeRunner struct {
	opts   ClientOptions
	runErr error
	runs   int
	kills  int
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.runs++
	return f.runErr
}

func (f *fakeRunner) Kill() {
	f.kills++
}

func newTestWorker(t *testing.T) (*Worker, *recordingChannel, *fakeRunner) {
	t.Helper()
	ch := &recordingChannel{}
	rt := worker.New(ch, worker.Options{Name: "blockchain", DisablePing: true})
	fake := &fakeRunner{}

	w := NewWorker(rt)
	w.newRunner = func(opts ClientOptions) runner {
		fake.opts = opts
		return fake
	}
	return w, ch, fake
}

func TestWorker_InitStartsClient(t *testing.T) {
	w, ch, runner := newTestWorker(t)

	err := w.Init(context.Background(), InitOptions{
		Client:          "geth",
		Args:            []string{"--dev"},
		RPCHost:         "localhost",
		RPCPort:         8545,
		ReadyTimeoutSec: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, "geth", runner.opts.Binary)
	assert.Equal(t, 8545, runner.opts.RPCPort)
	assert.Nil(t, runner.opts.TLS)

	runner.opts.OnReady()
	runner.opts.OnExit(errors.New("signal: terminated"))
	assert.Equal(t, []string{ipc.ResultBlockchainReady, ipc.ResultBlockchainExit}, ch.results())
}

func TestWorker_InitIgnoresSecondInit(t *testing.T) {
	w, _, runner := newTestWorker(t)

	require.NoError(t, w.Init(context.Background(), InitOptions{Client: "geth"}))
	require.NoError(t, w.Init(context.Background(), InitOptions{Client: "parity"}))

	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, "geth", runner.opts.Binary)
}

func TestWorker_UnreadableTLSDisablesProxy(t *testing.T) {
	w, _, runner := newTestWorker(t)

	err := w.Init(context.Background(), InitOptions{
		Client:    "geth",
		ProxyPort: 8555,
		TLSKey:    "/does/not/exist.key",
		TLSCert:   "/does/not/exist.crt",
	})
	require.NoError(t, err)
	assert.Nil(t, runner.opts.TLS)
	assert.Equal(t, 8555, runner.opts.ProxyPort)
}

func TestWorker_RunFailure(t *testing.T) {
	w, _, runner := newTestWorker(t)
	runner.runErr = errors.New("executable file not found")

	err := w.Init(context.Background(), InitOptions{Client: "geth"})
	assert.Error(t, err)
}

func TestWorker_Kill(t *testing.T) {
	w, _, runner := newTestWorker(t)

	// nothing to kill yet
	w.Kill()
	assert.Equal(t, 0, runner.kills)

	require.NoError(t, w.Init(context.Background(), InitOptions{Client: "geth"}))
	w.Kill()
	assert.Equal(t, 1, runner.kills)
}

func TestClient_Args(t *testing.T) {
	c := NewClient(ClientOptions{
		Binary:  "geth",
		Args:    []string{"--dev"},
		DataDir: "/tmp/chain",
		RPCHost: "127.0.0.1",
		RPCPort: 8545,
	})

	assert.Equal(t, "http://127.0.0.1:8545", c.RPCURL())
	assert.Equal(t, []string{
		"--dev",
		"--datadir", "/tmp/chain",
		"--http",
		"--http.addr", "127.0.0.1",
		"--http.port", "8545",
		"--http.api", "eth,net,web3,personal,debug",
	}, c.Args())
}

func TestClient_KillBeforeRun(t *testing.T) {
	c := NewClient(ClientOptions{Binary: "geth"})
	c.Kill()
	assert.Error(t, c.Run(context.Background()))
}

func TestClient_RequiresBinary(t *testing.T) {
	c := NewClient(ClientOptions{})
	assert.Error(t, c.Run(context.Background()))
}
