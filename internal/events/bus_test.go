package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) Handler {
		return func(payload interface{}) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+":"+payload.(string))
		}
	}

	bus.On("topic", record("first"))
	bus.On("topic", record("second"))
	bus.On("other", record("other"))
	bus.Emit("topic", "a")
	bus.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:a", "second:a"}, order)
}

func TestBus_OnceDeliversOnlyOnce(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	calls := 0
	bus.Once("ready", func(payload interface{}) { calls++ })
	bus.Emit("ready", nil)
	bus.Emit("ready", nil)
	bus.Flush()

	assert.Equal(t, 1, calls)
}

func TestBus_LateSubscriberMissesPastEmissions(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Emit("ready", nil)
	calls := 0
	bus.On("ready", func(payload interface{}) { calls++ })
	bus.Flush()

	assert.Equal(t, 0, calls)
}

func TestBus_RequestResponse(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.SetCommandHandler("math:double", func(payload interface{}, reply ReplyFunc) {
		reply(payload.(int)*2, nil)
		reply(0, errors.New("second reply is ignored"))
	})

	result, err := bus.RequestWait(context.Background(), "math:double", 21)
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	bus.Flush()
	assert.Equal(t, 0, bus.Pending())
}

func TestBus_ResponseCalledExactlyOnce(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.SetCommandHandler("cmd", func(payload interface{}, reply ReplyFunc) {
		reply("one", nil)
		reply("two", nil)
	})

	var responses []interface{}
	bus.Request("cmd", nil, func(result interface{}, err error) {
		responses = append(responses, result)
	})
	bus.Flush()
	bus.Flush()

	assert.Equal(t, []interface{}{"one"}, responses)
}

func TestBus_CommandHandlerLastWriterWins(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.SetCommandHandler("who", func(payload interface{}, reply ReplyFunc) { reply("old", nil) })
	bus.SetCommandHandler("who", func(payload interface{}, reply ReplyFunc) { reply("new", nil) })

	result, err := bus.RequestWait(context.Background(), "who", nil)
	require.NoError(t, err)
	assert.Equal(t, "new", result)
}

func TestBus_RequestWithoutResponderTimesOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	called := false
	bus.Request("nobody", nil, func(result interface{}, err error) { called = true })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := bus.RequestWait(ctx, "nobody", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	bus.Flush()
	assert.False(t, called)
	assert.Equal(t, 0, bus.Pending())
}

func TestBus_AsyncReplyFromAnotherGoroutine(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.SetCommandHandler("slow", func(payload interface{}, reply ReplyFunc) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			reply("done", nil)
		}()
	})

	result, err := bus.RequestWait(context.Background(), "slow", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestBus_CorrelationIDsIncrease(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := bus.Request("a", nil, nil)
	second := bus.Request("a", nil, nil)
	assert.Greater(t, second, first)
}

func TestBus_HandlerPanicDoesNotStopBus(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.On("boom", func(payload interface{}) { panic("handler failure") })
	got := false
	bus.On("boom", func(payload interface{}) { got = true })
	bus.Emit("boom", nil)
	bus.Flush()

	assert.True(t, got)
}

func TestBus_ClosedBusDropsWork(t *testing.T) {
	bus := NewBus()
	bus.Close()

	called := false
	bus.On("x", func(payload interface{}) { called = true })
	bus.Emit("x", nil)
	bus.Flush()

	assert.False(t, called)
}
