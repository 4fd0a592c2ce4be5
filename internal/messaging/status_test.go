package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/appointment-notify/internal/communication"
)

func TestMapMessageStatus(t *testing.T) {
	cases := map[string]communication.MessageStatus{
		"queued":               communication.MessageStatusSent,
		"sent":                 communication.MessageStatusSent,
		"Delivered":            communication.MessageStatusDelivered,
		"read":                 communication.MessageStatusRead,
		"undelivered":          communication.MessageStatusFailed,
		"delivery_failed":      communication.MessageStatusFailed,
		"sending-failed":       communication.MessageStatusFailed,
		"delivery_unconfirmed": communication.MessageStatusFailed,
	}
	for raw, want := range cases {
		got, ok := MapMessageStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := MapMessageStatus("webhook_delivered_elsewhere")
	assert.False(t, ok)
}

func TestMapCallStatus(t *testing.T) {
	cases := map[string]communication.CallStatus{
		"call.initiated": communication.CallStatusInitiated,
		"ringing":        communication.CallStatusInitiated,
		"call.answered":  communication.CallStatusInProgress,
		"in-progress":    communication.CallStatusInProgress,
		"call.hangup":    communication.CallStatusCompleted,
		"completed":      communication.CallStatusCompleted,
		"busy":           communication.CallStatusFailed,
		"no-answer":      communication.CallStatusNoAnswer,
	}
	for raw, want := range cases {
		got, ok := MapCallStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := MapCallStatus("")
	assert.False(t, ok)
}
