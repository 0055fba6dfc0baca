package ens

import (
	"context"
	"fmt"
	"time"

	"github.com/pvgupta24/embark/internal/events"
)

// TopicResolve is the bus topic answered by RegisterCommands
const TopicResolve = "ens:resolve"

// resolveTimeout bounds a single on-chain lookup
const resolveTimeout = 30 * time.Second

// RegisterCommands answers name resolution requests on bus. Lookups run
// off the coordination goroutine
func RegisterCommands(bus *events.Bus, resolver Resolver) {
	bus.SetCommandHandler(TopicResolve, func(payload interface{}, reply events.ReplyFunc) {
		name, ok := payload.(string)
		if !ok {
			reply(nil, fmt.Errorf("ens: unexpected payload %T", payload))
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
			defer cancel()
			addr, err := resolver.Resolve(ctx, name)
			reply(addr, err)
		}()
	})
}
