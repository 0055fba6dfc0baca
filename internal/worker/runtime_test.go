package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvgupta24/embark/internal/ipc"
)

// fakeChannel records sent messages and fails sends according to a script
type fakeChannel struct {
	mu       sync.Mutex
	sent     []ipc.Message
	failures []bool // consumed per Send; true means the send fails
	closed   bool
	inbox    chan ipc.Message
}

func newFakeChannel(failures ...bool) *fakeChannel {
	return &fakeChannel{failures: failures, inbox: make(chan ipc.Message, 16)}
}

func (f *fakeChannel) Send(msg ipc.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		fail := f.failures[0]
		f.failures = f.failures[1:]
		if fail {
			return errors.New("negative acknowledgment")
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Receive() (ipc.Message, error) {
	msg, ok := <-f.inbox
	if !ok {
		return ipc.Message{}, io.EOF
	}
	return msg, nil
}

func (f *fakeChannel) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

func (f *fakeChannel) messages() []ipc.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ipc.Message(nil), f.sent...)
}

type exitRecorder struct {
	killed int
	exited int
}

func newTestRuntime(ch Channel, rec *exitRecorder) *Runtime {
	return New(ch, Options{
		Name:        "test",
		Kill:        func() { rec.killed++ },
		Exit:        func(code int) { rec.exited++ },
		Diagnostics: io.Discard,
	})
}

func TestHeartbeat_TerminatesAfterThreeConsecutiveFailures(t *testing.T) {
	rec := &exitRecorder{}
	rt := newTestRuntime(newFakeChannel(true, true, true), rec)

	assert.False(t, rt.beat())
	assert.False(t, rt.beat())
	assert.Equal(t, 0, rec.exited)
	assert.True(t, rt.beat())
	assert.Equal(t, 1, rec.killed)
	assert.Equal(t, 1, rec.exited)
}

func TestHeartbeat_SuccessResetsCounter(t *testing.T) {
	rec := &exitRecorder{}
	// fail, fail, success, fail, fail, fail
	rt := newTestRuntime(newFakeChannel(true, true, false, true, true, true), rec)

	for ping := 1; ping <= 5; ping++ {
		assert.False(t, rt.beat(), "ping %d must not terminate", ping)
	}
	assert.Equal(t, 2, rt.MissedHeartbeats())
	assert.Equal(t, 0, rec.exited)

	assert.True(t, rt.beat(), "sixth ping terminates")
	assert.Equal(t, 1, rec.exited)
}

func TestSend_ClosedChannelReturnsFalse(t *testing.T) {
	ch := newFakeChannel()
	rt := newTestRuntime(ch, &exitRecorder{})

	require.NoError(t, ch.Close())
	assert.False(t, rt.Send(ipc.NewResult(ipc.ResultPing)))
	assert.Empty(t, ch.messages())
}

func TestLogBridge_ForwardsRecords(t *testing.T) {
	ch := newFakeChannel()
	rt := newTestRuntime(ch, &exitRecorder{})

	logger := slog.New(rt.LogHandler()).With("worker", "blockchain")
	logger.Warn("disk low", "free_mb", 12)

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, ipc.ResultLog, msgs[0].Result)
	assert.Equal(t, "warn", msgs[0].Type)
	assert.Equal(t, []string{"disk low worker=blockchain free_mb=12"}, msgs[0].Message)
}

func TestLogBridge_FiltersMarker(t *testing.T) {
	ch := newFakeChannel()
	rt := newTestRuntime(ch, &exitRecorder{})

	logger := slog.New(rt.LogHandler())
	logger.Info("[hardsource:abc] Using 12 MB of disk")
	logger.Info("compiled")

	msgs := ch.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"compiled"}, msgs[0].Message)
}

func TestLogBridge_SendFailureDoesNotRecurse(t *testing.T) {
	diag := &bytes.Buffer{}
	ch := newFakeChannel(true)
	rt := New(ch, Options{Name: "test", Diagnostics: diag, DisablePing: true, Exit: func(int) {}})

	require.NoError(t, rt.Start(context.Background()))
	defer rt.Close()

	slog.Info("first line fails")

	assert.Contains(t, diag.String(), "failed to send message")
	assert.Empty(t, ch.messages())
}

func TestServe_DispatchesActions(t *testing.T) {
	ch := newFakeChannel()
	rec := &exitRecorder{}
	rt := newTestRuntime(ch, rec)

	var got []string
	rt.Handle(ipc.ActionInit, func(ctx context.Context, msg ipc.Message) {
		got = append(got, msg.Action)
	})

	ch.inbox <- ipc.Message{Action: ipc.ActionInit}
	ch.inbox <- ipc.Message{Result: ipc.ResultPing}
	ch.inbox <- ipc.Message{Action: "unknown"}
	ch.inbox <- ipc.Message{Action: ipc.ActionExit}
	ch.inbox <- ipc.Message{Action: ipc.ActionExit}
	close(ch.inbox)

	require.NoError(t, rt.Serve(context.Background()))
	assert.Equal(t, []string{ipc.ActionInit}, got)
	assert.Equal(t, 1, rec.killed, "exit kills the payload once")
}

func TestLevelNames(t *testing.T) {
	for _, name := range []string{"trace", "debug", "info", "warn", "error"} {
		assert.Equal(t, name, LevelName(ParseLevelName(name)))
	}
	assert.Equal(t, slog.LevelInfo, ParseLevelName("log"))
}
