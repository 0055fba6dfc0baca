// Package blockchain runs the blockchain client inside its worker process,
// supervises that worker from the tool process and exposes the node to the
// deployment pipeline
package blockchain

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pvgupta24/embark/internal/retry"
)

const clientKillGracePeriod = 5 * time.Second

// ClientOptions configures a Client
type ClientOptions struct {
	Binary  string
	Args    []string
	DataDir string

	RPCHost string
	RPCPort int

	// ProxyPort > 0 together with TLS starts the TLS proxy
	ProxyPort int
	TLS       *tls.Config

	ReadyTimeout time.Duration
	Retry        retry.Strategy

	Stdout io.Writer
	Stderr io.Writer

	OnReady func()
	OnExit  func(err error)
}

// Client runs the blockchain client binary
type Client struct {
	opts ClientOptions

	mu     sync.Mutex
	cmd    *exec.Cmd
	proxy  *Proxy
	cancel context.CancelFunc
	killed bool
	done   chan struct{}
}

// NewClient creates a Client; nothing runs until Run
func NewClient(opts ClientOptions) *Client {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = time.Minute
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewStrategy(retry.LoadConfig())
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Client{opts: opts, done: make(chan struct{})}
}

// RPCURL returns the HTTP endpoint the client serves
func (c *Client) RPCURL() string {
	return "http://" + net.JoinHostPort(c.opts.RPCHost, strconv.Itoa(c.opts.RPCPort))
}

// Args returns the full command line arguments handed to the binary
func (c *Client) Args() []string {
	args := append([]string(nil), c.opts.Args...)
	if c.opts.DataDir != "" {
		args = append(args, "--datadir", c.opts.DataDir)
	}
	return append(args,
		"--http",
		"--http.addr", c.opts.RPCHost,
		"--http.port", strconv.Itoa(c.opts.RPCPort),
		"--http.api", "eth,net,web3,personal,debug",
	)
}

// Run starts the binary, then waits for its RPC endpoint in the background
// OnReady fires once the endpoint answers; OnExit fires when the binary
// exits for any reason
func (c *Client) Run(ctx context.Context) error {
	if c.opts.Binary == "" {
		return errors.New("blockchain client binary is not configured")
	}

	if c.opts.DataDir != "" {
		if err := os.MkdirAll(c.opts.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	c.mu.Lock()
	killed := c.killed
	c.mu.Unlock()
	if killed {
		return errors.New("blockchain client was killed before it started")
	}

	cmd := exec.Command(c.opts.Binary, c.Args()...)
	cmd.Stdout = c.opts.Stdout
	cmd.Stderr = c.opts.Stderr

	slog.Info("Starting blockchain client", "binary", c.opts.Binary, "args", cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.opts.Binary, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cmd = cmd
	c.cancel = cancel
	c.mu.Unlock()

	go c.waitReady(runCtx)
	go c.wait(cmd)
	return nil
}

func (c *Client) waitReady(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReadyTimeout)
	defer cancel()

	err := c.opts.Retry.Execute(ctx, "blockchain client readiness", c.checkReady)
	if err != nil {
		// Cancelled because the binary exited: wait reports that
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		slog.Error("Blockchain client did not become ready", "endpoint", c.RPCURL(), "error", err)
		return
	}

	slog.Info("Blockchain client is ready", "endpoint", c.RPCURL())
	c.startProxy()
	if c.opts.OnReady != nil {
		c.opts.OnReady()
	}
}

// checkReady succeeds once the endpoint answers a chain id request
func (c *Client) checkReady(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, c.RPCURL())
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return err
	}
	slog.Debug("Blockchain client answered", "chain_id", chainID)
	return nil
}

func (c *Client) startProxy() {
	if c.opts.ProxyPort <= 0 || c.opts.TLS == nil {
		return
	}

	addr := net.JoinHostPort(c.opts.RPCHost, strconv.Itoa(c.opts.ProxyPort))
	proxy, err := NewProxy(addr, c.RPCURL(), c.opts.TLS)
	if err != nil {
		slog.Warn("Cannot use blockchain proxy", "error", err)
		return
	}

	c.mu.Lock()
	c.proxy = proxy
	c.mu.Unlock()

	go func() {
		if err := proxy.Serve(); err != nil {
			slog.Warn("Blockchain proxy stopped", "error", err)
		}
	}()
}

func (c *Client) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	c.mu.Lock()
	cancel := c.cancel
	proxy := c.proxy
	killed := c.killed
	c.mu.Unlock()

	cancel()
	if proxy != nil {
		ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
		if shutdownErr := proxy.Shutdown(ctx); shutdownErr != nil {
			slog.Debug("Proxy shutdown failed", "error", shutdownErr)
		}
		done()
	}

	if killed {
		slog.Info("Blockchain client stopped")
	} else {
		slog.Warn("Blockchain client exited", "error", err)
	}
	close(c.done)

	if c.opts.OnExit != nil {
		c.opts.OnExit(err)
	}
}

// Done is closed once the binary has exited
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Kill asks the binary to stop and forces it after a grace period
// It is safe to call more than once and before Run
func (c *Client) Kill() {
	c.mu.Lock()
	if c.killed || c.cmd == nil {
		c.killed = true
		c.mu.Unlock()
		return
	}
	c.killed = true
	cmd := c.cmd
	c.mu.Unlock()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.Debug("Failed to signal blockchain client", "error", err)
	}

	select {
	case <-c.done:
	case <-time.After(clientKillGracePeriod):
		slog.Warn("Blockchain client did not stop in time, killing it")
		_ = cmd.Process.Kill()
	}
}
