package blockchain

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ClientTimeoutConfig bounds RPC calls made to the blockchain client
type ClientTimeoutConfig struct {
	Timeout      time.Duration // Per HTTP request
	PollInterval time.Duration // Between receipt polls
}

// ClientConfig describes how to reach the RPC endpoint of the client
type ClientConfig struct {
	Endpoint       string
	DefaultAccount string
	TimeoutConfig  ClientTimeoutConfig
}

// Dial creates an RPC client from ClientConfig
func Dial(ctx context.Context, cfg ClientConfig) (*rpc.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ClientConfig.Endpoint value is empty, please provide a valid endpoint")
	}

	timeout := cfg.TimeoutConfig.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := rpc.DialOptions(ctx, cfg.Endpoint, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Endpoint, err)
	}
	return client, nil
}
