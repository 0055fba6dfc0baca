package blockchain

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// LoadTLS reads a key pair for the RPC proxy
func LoadTLS(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("TLS certificate and key are not configured")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Proxy serves the client RPC endpoint over TLS
type Proxy struct {
	server   *http.Server
	listener net.Listener
}

// NewProxy listens on addr and forwards every request to target
func NewProxy(addr, target string, tlsConfig *tls.Config) (*Proxy, error) {
	targetURL, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", target, err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	rp := httputil.NewSingleHostReverseProxy(targetURL)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Debug("Proxy request failed", "error", err)
		http.Error(w, "blockchain node unavailable", http.StatusBadGateway)
	}

	return &Proxy{
		server: &http.Server{
			Handler:           rp,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the address the proxy listens on
func (p *Proxy) Addr() string {
	return p.listener.Addr().String()
}

// Serve blocks until the proxy is shut down
func (p *Proxy) Serve() error {
	slog.Info("Blockchain RPC proxy listening", "addr", p.Addr())
	if err := p.server.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
