package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pvgupta24/embark/internal/ipc"
	"github.com/pvgupta24/embark/internal/retry"
	"github.com/pvgupta24/embark/internal/worker"
)

// WorkerCommand is the hidden CLI command running the blockchain worker
const WorkerCommand = "blockchain-worker"

// InitOptions is sent with the init action to boot the worker
type InitOptions struct {
	Client  string   `json:"client"`
	Args    []string `json:"args,omitempty"`
	DataDir string   `json:"dataDir,omitempty"`

	RPCHost string `json:"rpcHost"`
	RPCPort int    `json:"rpcPort"`

	ProxyPort int    `json:"proxyPort,omitempty"`
	TLSKey    string `json:"tlsKey,omitempty"`
	TLSCert   string `json:"tlsCert,omitempty"`

	ReadyTimeoutSec int `json:"readyTimeoutSec,omitempty"`
}

// runner is the part of Client the worker drives
type runner interface {
	Run(ctx context.Context) error
	Kill()
}

// Worker is the blockchain payload of a worker runtime: it starts the
// client and reports readiness and exit to the supervisor
type Worker struct {
	rt *worker.Runtime

	// newRunner builds the client; replaced in tests
	newRunner func(opts ClientOptions) runner

	mu     sync.Mutex
	client runner
}

// NewWorker creates the payload for rt
func NewWorker(rt *worker.Runtime) *Worker {
	return &Worker{
		rt:        rt,
		newRunner: func(opts ClientOptions) runner { return NewClient(opts) },
	}
}

// Init starts the client described by opts. A second init is ignored
func (w *Worker) Init(ctx context.Context, opts InitOptions) error {
	w.mu.Lock()
	if w.client != nil {
		w.mu.Unlock()
		slog.Warn("Blockchain worker already initialised, ignoring init")
		return nil
	}

	clientOpts := ClientOptions{
		Binary:       opts.Client,
		Args:         opts.Args,
		DataDir:      opts.DataDir,
		RPCHost:      opts.RPCHost,
		RPCPort:      opts.RPCPort,
		ProxyPort:    opts.ProxyPort,
		ReadyTimeout: time.Duration(opts.ReadyTimeoutSec) * time.Second,
		Retry:        retry.NewStrategy(retry.LoadConfig()),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		OnReady:      w.blockchainReady,
		OnExit:       w.blockchainExit,
	}

	if opts.ProxyPort > 0 {
		tlsConfig, err := LoadTLS(opts.TLSCert, opts.TLSKey)
		if err != nil {
			slog.Warn("Cannot use blockchain proxy", "error", err)
		} else {
			slog.Info("Using blockchain proxy", "port", opts.ProxyPort)
			clientOpts.TLS = tlsConfig
		}
	}

	client := w.newRunner(clientOpts)
	w.client = client
	w.mu.Unlock()

	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("failed to run blockchain client: %w", err)
	}
	return nil
}

func (w *Worker) blockchainReady() {
	w.rt.Send(ipc.NewResult(ipc.ResultBlockchainReady))
}

// blockchainExit tells the supervisor the client is gone
func (w *Worker) blockchainExit(err error) {
	w.rt.Send(ipc.NewResult(ipc.ResultBlockchainExit))
}

// Kill stops the client, if any
func (w *Worker) Kill() {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client != nil {
		client.Kill()
	}
}

// RunWorker hosts the blockchain worker on conn until the supervisor
// sends exit, closes the channel, or ctx is done. The client never
// outlives the worker
func RunWorker(ctx context.Context, conn worker.Channel) error {
	var payload *Worker
	killed := make(chan struct{})

	rt := worker.New(conn, worker.Options{
		Name:         "blockchain",
		CaptureStdio: true,
		// runs once, the runtime guards it
		Kill: func() {
			if payload != nil {
				payload.Kill()
			}
			close(killed)
		},
	})
	payload = NewWorker(rt)
	defer rt.Close()
	defer rt.ReportPanic()

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker runtime: %w", err)
	}

	rt.Handle(ipc.ActionInit, func(ctx context.Context, msg ipc.Message) {
		var opts InitOptions
		if err := msg.DecodeOptions(&opts); err != nil {
			rt.Send(ipc.Message{Error: "invalid init options", Detail: err.Error()})
			return
		}
		if err := payload.Init(ctx, opts); err != nil {
			rt.Send(ipc.Message{Error: "blockchain client failed to start", Detail: err.Error()})
			return
		}
		rt.Send(ipc.NewResult(ipc.ResultInitiated))
	})

	served := make(chan error, 1)
	go func() {
		served <- rt.Serve(ctx)
	}()

	select {
	case err := <-served:
		rt.Kill()
		return err
	case <-killed:
		return nil
	case <-ctx.Done():
		rt.Kill()
		return nil
	}
}
