// Package events provides the tool-wide event bus: fire-and-forget pub/sub
// plus correlated request/response commands
//
// Every handler runs on the bus goroutine, one at a time, in the order the
// work was queued. Handlers must not block: long work belongs in another
// goroutine that reports back through a reply or a new emission
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives an emitted payload
type Handler func(payload interface{})

// ReplyFunc completes a request. Only the first call has any effect
type ReplyFunc func(result interface{}, err error)

// CommandHandler answers requests sent to a topic
type CommandHandler func(payload interface{}, reply ReplyFunc)

// ResponseHandler receives the answer to a request
type ResponseHandler func(result interface{}, err error)

// PendingRequest correlates an outbound request with its response
type PendingRequest struct {
	ID       uint64
	Topic    string
	resolved bool
}

type subscription struct {
	handler Handler
	once    bool
}

// Bus is the central event channel
type Bus struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool

	// Owned by the loop goroutine
	subs     map[string][]*subscription
	commands map[string]CommandHandler

	pendingMu sync.Mutex
	pending   map[uint64]*PendingRequest
	nextID    atomic.Uint64
}

// NewBus creates a bus and starts its coordination goroutine
func NewBus() *Bus {
	b := &Bus{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		subs:     make(map[string][]*subscription),
		commands: make(map[string]CommandHandler),
		pending:  make(map[uint64]*PendingRequest),
	}
	go b.loop()
	return b
}

// Emit broadcasts payload to the current subscribers of topic, in
// subscription order. Nothing is retained for later subscribers
func (b *Bus) Emit(topic string, payload interface{}) {
	b.enqueue(func() {
		subs := b.subs[topic]
		if len(subs) == 0 {
			return
		}

		kept := subs[:0:0]
		for _, s := range subs {
			if !s.once {
				kept = append(kept, s)
			}
		}
		b.subs[topic] = kept

		for _, s := range subs {
			b.call(topic, func() { s.handler(payload) })
		}
	})
}

// On registers a durable subscriber
func (b *Bus) On(topic string, handler Handler) {
	b.subscribe(topic, handler, false)
}

// Once registers a subscriber that is removed after its first delivery
func (b *Bus) Once(topic string, handler Handler) {
	b.subscribe(topic, handler, true)
}

func (b *Bus) subscribe(topic string, handler Handler, once bool) {
	b.enqueue(func() {
		b.subs[topic] = append(b.subs[topic], &subscription{handler: handler, once: once})
	})
}

// SetCommandHandler registers the single responder for topic, replacing
// any previous one
func (b *Bus) SetCommandHandler(topic string, handler CommandHandler) {
	b.enqueue(func() {
		if _, exists := b.commands[topic]; exists {
			slog.Debug("Replacing command handler", "topic", topic)
		}
		b.commands[topic] = handler
	})
}

// Request sends payload to the command handler of topic. onResponse runs
// on the bus goroutine exactly once when the handler replies, or never if
// no handler is registered. The bus applies no timeout
// It returns the correlation id of the request
func (b *Bus) Request(topic string, payload interface{}, onResponse ResponseHandler) uint64 {
	id := b.nextID.Add(1)
	req := &PendingRequest{ID: id, Topic: topic}

	b.pendingMu.Lock()
	b.pending[id] = req
	b.pendingMu.Unlock()

	b.enqueue(func() {
		handler, ok := b.commands[topic]
		if !ok {
			slog.Debug("No command handler for request", "topic", topic, "request_id", id)
			b.forget(id)
			return
		}

		reply := func(result interface{}, err error) {
			b.enqueue(func() {
				if !b.resolve(req) {
					return
				}
				if onResponse != nil {
					b.call(topic, func() { onResponse(result, err) })
				}
			})
		}
		b.call(topic, func() { handler(payload, reply) })
	})

	return id
}

// RequestWait sends a request and blocks until it is answered or ctx is
// done. It must not be called from a bus handler
func (b *Bus) RequestWait(ctx context.Context, topic string, payload interface{}) (interface{}, error) {
	type response struct {
		result interface{}
		err    error
	}
	ch := make(chan response, 1)

	id := b.Request(topic, payload, func(result interface{}, err error) {
		ch <- response{result: result, err: err}
	})

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		b.forget(id)
		return nil, ctx.Err()
	}
}

// Pending returns the number of requests still waiting for an answer
func (b *Bus) Pending() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// Flush blocks until everything queued before the call has been handled
func (b *Bus) Flush() {
	done := make(chan struct{})
	if !b.enqueue(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-b.done:
	}
}

// Close stops the bus. Work queued afterwards is dropped
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *Bus) resolve(req *PendingRequest) bool {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if req.resolved {
		return false
	}
	if _, ok := b.pending[req.ID]; !ok {
		// abandoned by a timed out waiter
		return false
	}
	req.resolved = true
	delete(b.pending, req.ID)
	return true
}

func (b *Bus) forget(id uint64) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if req, ok := b.pending[id]; ok {
		req.resolved = true
		delete(b.pending, id)
	}
}

func (b *Bus) enqueue(fn func()) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

func (b *Bus) loop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}

		for {
			b.mu.Lock()
			if b.closed || len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			fn := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()

			fn()
		}
	}
}

// call runs fn and keeps the bus alive if it panics
func (b *Bus) call(topic string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked", "topic", topic, "panic", r)
		}
	}()
	fn()
}
