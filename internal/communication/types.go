package communication

import (
	"strings"
)

// ChannelType identifies the transport used to reach a patient.
type ChannelType string

const (
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelSMS      ChannelType = "sms"
	ChannelVoice    ChannelType = "voice"
)

// ParseChannelType validates a channel name. Blank input yields whatsapp.
func ParseChannelType(raw string) (ChannelType, error) {
	switch ChannelType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ChannelWhatsApp:
		return ChannelWhatsApp, nil
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelVoice:
		return ChannelVoice, nil
	default:
		return "", &ValidationError{Field: "channel_type", Reason: "unsupported channel " + raw}
	}
}

// MessageStatus is the delivery state of an outbound message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

var messageRank = map[MessageStatus]int{
	MessageStatusPending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// ParseMessageStatus validates a message status name.
func ParseMessageStatus(raw string) (MessageStatus, error) {
	status := MessageStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := messageRank[status]; ok || status == MessageStatusFailed {
		return status, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown message status " + raw}
}

// CallStatus is the lifecycle state of an outbound call.
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusConfirmed  CallStatus = "confirmed"
	CallStatusCancelled  CallStatus = "cancelled"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
)

var callRank = map[CallStatus]int{
	CallStatusPending:    0,
	CallStatusInitiated:  1,
	CallStatusInProgress: 2,
	CallStatusCompleted:  3,
	CallStatusConfirmed:  4,
	CallStatusCancelled:  4,
}

// ParseCallStatus validates a call status name.
func ParseCallStatus(raw string) (CallStatus, error) {
	status := CallStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := callRank[status]; ok || status == CallStatusFailed || status == CallStatusNoAnswer {
		return status, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown call status " + raw}
}

// Final reports whether no further transition can apply.
func (s CallStatus) Final() bool {
	switch s {
	case CallStatusConfirmed, CallStatusCancelled, CallStatusFailed, CallStatusNoAnswer:
		return true
	}
	return false
}

// ended reports whether the call has hung up, which stamps the end time.
func (s CallStatus) ended() bool {
	return s == CallStatusCompleted || s.Final()
}

// CallType is the purpose of an outbound call.
type CallType string

const (
	CallTypeReminder     CallType = "reminder"
	CallTypeConfirmation CallType = "confirmation"
	CallTypeCancellation CallType = "cancellation"
)

// ParseCallType validates a call type. Blank input yields reminder.
func ParseCallType(raw string) (CallType, error) {
	switch CallType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CallTypeReminder:
		return CallTypeReminder, nil
	case CallTypeConfirmation:
		return CallTypeConfirmation, nil
	case CallTypeCancellation:
		return CallTypeCancellation, nil
	default:
		return "", &ValidationError{Field: "call_type", Reason: "unsupported call type " + raw}
	}
}
