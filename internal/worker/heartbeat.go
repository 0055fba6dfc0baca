package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/pvgupta24/embark/internal/ipc"
)

// pingParent pings the supervisor every interval and terminates the
// worker once MaxMissed consecutive pings fail
func (r *Runtime) pingParent(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if r.beat() {
				return
			}
		}
	}
}

// beat sends one ping. It returns true when the worker terminated
func (r *Runtime) beat() bool {
	if r.Send(ipc.NewResult(ipc.ResultPing)) {
		r.missed.Store(0)
		return false
	}

	missed := int(r.missed.Add(1))
	if missed < r.opts.MaxMissed {
		return false
	}

	fmt.Fprintf(r.diag, "[%s] supervisor unreachable after %d pings, exiting\n", r.opts.Name, missed)
	r.Kill()
	r.opts.Exit(0)
	return true
}
