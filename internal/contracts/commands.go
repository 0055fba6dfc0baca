package contracts

import (
	"fmt"

	"github.com/pvgupta24/embark/internal/events"
)

// Bus topics served by RegisterCommands
const (
	TopicContract    = "contracts:contract"
	TopicList        = "contracts:list"
	TopicSetBytecode = "contracts:setBytecode"
)

// BytecodeUpdate is the payload of TopicSetBytecode
type BytecodeUpdate struct {
	ClassName string
	Code      string
}

// RegisterCommands answers contract lookups on bus from r
func (r *Registry) RegisterCommands(bus *events.Bus) {
	bus.SetCommandHandler(TopicContract, func(payload interface{}, reply events.ReplyFunc) {
		name, ok := payload.(string)
		if !ok {
			reply(nil, fmt.Errorf("contracts: unexpected payload %T", payload))
			return
		}
		c, ok := r.Get(name)
		if !ok {
			reply(nil, fmt.Errorf("unknown contract %s", name))
			return
		}
		reply(c, nil)
	})

	bus.SetCommandHandler(TopicList, func(payload interface{}, reply events.ReplyFunc) {
		reply(r.List(), nil)
	})

	bus.SetCommandHandler(TopicSetBytecode, func(payload interface{}, reply events.ReplyFunc) {
		update, ok := payload.(BytecodeUpdate)
		if !ok {
			reply(nil, fmt.Errorf("contracts: unexpected payload %T", payload))
			return
		}
		reply(nil, r.SetBytecode(update.ClassName, update.Code))
	})
}
