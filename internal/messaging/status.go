package messaging

import (
	"strings"

	"github.com/wolfman30/appointment-notify/internal/communication"
)

// MapMessageStatus translates a provider delivery status into a message status.
// The boolean is false for statuses that carry no lifecycle meaning.
func MapMessageStatus(providerStatus string) (communication.MessageStatus, bool) {
	switch normalizeStatus(providerStatus) {
	case "queued", "accepted", "sending", "sent", "scheduled":
		return communication.MessageStatusSent, true
	case "delivered", "received":
		return communication.MessageStatusDelivered, true
	case "read":
		return communication.MessageStatusRead, true
	case "failed", "undelivered", "sending_failed", "delivery_failed", "delivery_unconfirmed", "canceled":
		return communication.MessageStatusFailed, true
	default:
		return "", false
	}
}

// MapCallStatus translates a provider call state into a call status.
func MapCallStatus(providerStatus string) (communication.CallStatus, bool) {
	switch normalizeStatus(providerStatus) {
	case "initiated", "queued", "ringing", "bridging":
		return communication.CallStatusInitiated, true
	case "answered", "in_progress", "bridged":
		return communication.CallStatusInProgress, true
	case "completed", "hangup", "ended":
		return communication.CallStatusCompleted, true
	case "busy", "failed", "canceled", "cancelled", "rejected":
		return communication.CallStatusFailed, true
	case "no_answer", "timeout":
		return communication.CallStatusNoAnswer, true
	default:
		return "", false
	}
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.TrimPrefix(s, "call_")
	s = strings.TrimPrefix(s, "message_")
	return s
}
