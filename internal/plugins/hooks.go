package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pvgupta24/embark/internal/metrics"
)

// Hooks holds the actions registered for each hook point
type Hooks struct {
	mu      sync.RWMutex
	actions map[string][]Action
}

// New creates an empty Hooks registry
func New() *Hooks {
	return &Hooks{
		actions: make(map[string][]Action),
	}
}

// Register appends an action to a hook point
func (h *Hooks) Register(event string, action Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[event] = append(h.actions[event], action)
}

// RegisterFunc registers fn under name
func (h *Hooks) RegisterFunc(event, name string, fn func(ctx context.Context, params *Params) error) {
	h.Register(event, ActionFunc{ActionName: name, Fn: fn})
}

// Run passes params through every action of event in registration order
// Failing actions are logged and skipped; their errors are returned joined
// for inspection
func (h *Hooks) Run(ctx context.Context, event string, params *Params) error {
	actions := h.Actions(event)
	if len(actions) == 0 {
		return nil
	}

	contract := ""
	if params != nil && params.Contract != nil {
		contract = params.Contract.ClassName
	}
	slog.Debug("Running plugin actions",
		"event", event,
		"contract", contract,
		"actions_count", len(actions),
	)

	var errs []error
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.runAction(ctx, action, params); err != nil {
			metrics.ErrorsTotal.WithLabelValues("plugin").Inc()
			slog.Error("Plugin action failed",
				"event", event,
				"action", action.Name(),
				"contract", contract,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", action.Name(), err))
			// Continue with the remaining actions
		}
	}

	return errors.Join(errs...)
}

// runAction isolates panics in third-party actions
func (h *Hooks) runAction(ctx context.Context, action Action, params *Params) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action.Run(ctx, params)
}

// Actions returns the actions registered for event (for inspection/testing)
func (h *Hooks) Actions(event string) []Action {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Action(nil), h.actions[event]...)
}
