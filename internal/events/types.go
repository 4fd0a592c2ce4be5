package events

import "time"

// MessageStatusChangedV1 is emitted when a message moves to a new delivery status.
type MessageStatusChangedV1 struct {
	MessageID         string    `json:"message_id"`
	TenantKey         string    `json:"tenant_key,omitempty"`
	AppointmentID     string    `json:"appointment_id"`
	PatientID         string    `json:"patient_id"`
	Channel           string    `json:"channel"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	FromStatus        string    `json:"from_status"`
	ToStatus          string    `json:"to_status"`
	ErrorCode         string    `json:"error_code,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func (MessageStatusChangedV1) EventType() string {
	return "communication.message.status_changed.v1"
}

// MessageRepliedV1 is emitted when an inbound reply is correlated to an outbound message.
type MessageRepliedV1 struct {
	MessageID     string    `json:"message_id"`
	TenantKey     string    `json:"tenant_key,omitempty"`
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	ReplyText     string    `json:"reply_text"`
	RepliedAt     time.Time `json:"replied_at"`
}

func (MessageRepliedV1) EventType() string {
	return "communication.message.replied.v1"
}

// CallStatusChangedV1 is emitted when a call moves to a new lifecycle status.
type CallStatusChangedV1 struct {
	CallID          string            `json:"call_id"`
	TenantKey       string            `json:"tenant_key,omitempty"`
	AppointmentID   string            `json:"appointment_id"`
	PatientID       string            `json:"patient_id"`
	CallType        string            `json:"call_type"`
	ExternalCallID  string            `json:"external_call_id,omitempty"`
	FromStatus      string            `json:"from_status"`
	ToStatus        string            `json:"to_status"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
	ResponseData    map[string]string `json:"response_data,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

func (CallStatusChangedV1) EventType() string {
	return "communication.call.status_changed.v1"
}

// FlowResumeRequestedV1 is emitted when an external flow is asked to resume.
type FlowResumeRequestedV1 struct {
	TenantKey   string         `json:"tenant_key,omitempty"`
	CallID      string         `json:"call_id,omitempty"`
	ResumeKey   string         `json:"resume_key"`
	Payload     map[string]any `json:"payload"`
	RequestedAt time.Time      `json:"requested_at"`
}

func (FlowResumeRequestedV1) EventType() string {
	return "flows.resume.requested.v1"
}
