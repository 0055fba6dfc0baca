package codegen

import (
	"fmt"
	"log/slog"

	"github.com/pvgupta24/embark/internal/events"
	"github.com/pvgupta24/embark/internal/metrics"
)

// Bus topics served by RegisterCommands
const (
	TopicVanilla = "code-generator:contract:vanilla"
	TopicEval    = "runcode:eval"
)

// RegisterCommands installs the generator and evaluator as command
// handlers on bus. Evaluation runs off the coordination goroutine
func RegisterCommands(bus *events.Bus, gen *Generator, eval Evaluator) {
	bus.SetCommandHandler(TopicVanilla, func(payload interface{}, reply events.ReplyFunc) {
		req, ok := payload.(Request)
		if !ok {
			reply(nil, fmt.Errorf("codegen: unexpected payload %T", payload))
			return
		}
		src, err := gen.Vanilla(req)
		reply(src, err)
	})

	bus.SetCommandHandler(TopicEval, func(payload interface{}, reply events.ReplyFunc) {
		src, ok := payload.(Source)
		if !ok {
			reply(nil, fmt.Errorf("codegen: unexpected payload %T", payload))
			return
		}
		go func() {
			err := eval.Eval(src)
			if err != nil {
				metrics.ErrorsTotal.WithLabelValues("codegen").Inc()
				slog.Warn("Failed to evaluate generated binding",
					"contract", src.ClassName,
					"error", err,
				)
			}
			reply(nil, err)
		}()
	})
}
