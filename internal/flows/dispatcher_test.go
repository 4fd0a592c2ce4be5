package flows

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

type ctxKey struct{}

type routedMessage struct {
	from  string
	text  string
	value any
	err   error
}

type chanRouter struct {
	routed chan routedMessage
}

func (r *chanRouter) RouteInboundMessage(ctx context.Context, fromPhone, text string, _ json.RawMessage) (Result, error) {
	r.routed <- routedMessage{from: fromPhone, text: text, value: ctx.Value(ctxKey{}), err: ctx.Err()}
	return Result{FlowID: "appointment_reminder"}, nil
}

func TestDispatcherRoutesSubmittedMessages(t *testing.T) {
	router := &chanRouter{routed: make(chan routedMessage, 1)}
	d := NewDispatcher(router, WithDispatchWorkers(1), WithDispatchLogger(logging.Discard()))

	reqCtx, cancelReq := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "center_one"))
	require.NoError(t, d.Submit(reqCtx, "+5215512345678", "confirmar", json.RawMessage(`{}`)))
	cancelReq()
	assert.Equal(t, 1, d.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	select {
	case got := <-router.routed:
		assert.Equal(t, "+5215512345678", got.from)
		assert.Equal(t, "confirmar", got.text)
		assert.Equal(t, "center_one", got.value)
		assert.NoError(t, got.err, "request cancellation must not reach the routed message")
	case <-time.After(2 * time.Second):
		t.Fatal("message was not routed")
	}

	cancel()
	d.Wait()
}

func TestDispatcherRefusesWhenQueueFull(t *testing.T) {
	d := NewDispatcher(&chanRouter{routed: make(chan routedMessage, 2)}, WithDispatchQueueSize(1))

	require.NoError(t, d.Submit(context.Background(), "+1", "a", nil))
	assert.ErrorIs(t, d.Submit(context.Background(), "+1", "b", nil), ErrDispatchQueueFull)
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcherWorkersStopOnCancel(t *testing.T) {
	d := NewDispatcher(&chanRouter{routed: make(chan routedMessage)}, WithDispatchWorkers(3))
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
}
