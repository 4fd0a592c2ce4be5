package communication

import (
	"encoding/json"
	"time"
)

// Message is an outbound communication attempt to a patient.
type Message struct {
	ID                string          `json:"id"`
	TenantKey         string          `json:"tenant_key,omitempty"`
	AppointmentID     string          `json:"appointment_id"`
	PatientID         string          `json:"patient_id"`
	PhoneNumber       string          `json:"phone_number"`
	Content           string          `json:"content"`
	ChannelType       ChannelType     `json:"channel_type"`
	Status            MessageStatus   `json:"status"`
	ExternalMessageID string          `json:"external_message_id,omitempty"`
	ProviderResponse  json.RawMessage `json:"provider_response,omitempty"`
	ErrorCode         string          `json:"error_code,omitempty"`
	ResponseText      string          `json:"response_text,omitempty"`
	RespondedAt       *time.Time      `json:"responded_at,omitempty"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	ReadAt            *time.Time      `json:"read_at,omitempty"`
	FailedAt          *time.Time      `json:"failed_at,omitempty"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Call is an outbound voice interaction tied to an appointment.
type Call struct {
	ID              string            `json:"id"`
	TenantKey       string            `json:"tenant_key,omitempty"`
	AppointmentID   string            `json:"appointment_id"`
	PatientID       string            `json:"patient_id"`
	PhoneNumber     string            `json:"phone_number"`
	Status          CallStatus        `json:"status"`
	CallType        CallType          `json:"call_type"`
	ExternalCallID  string            `json:"external_call_id,omitempty"`
	FlowID          string            `json:"flow_id,omitempty"`
	ResumeKey       string            `json:"resume_key,omitempty"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
	ResponseData    map[string]string `json:"response_data,omitempty"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// StatusData accompanies a provider status event.
type StatusData struct {
	// OccurredAt is the provider's event time; zero means now.
	OccurredAt time.Time
	// ErrorCode is recorded on failed transitions.
	ErrorCode string
	// Raw is the provider payload kept as providerResponse.
	Raw json.RawMessage
	// ResponseData is merged into a call's response data.
	ResponseData map[string]string
}

func (d StatusData) at(now time.Time) time.Time {
	if d.OccurredAt.IsZero() {
		return now
	}
	return d.OccurredAt.UTC()
}

// messageTransition decides whether next should be applied on top of current.
// Statuses at or behind current are ignored, as is anything after a terminal state.
func messageTransition(current, next MessageStatus) bool {
	if current == next || current == MessageStatusFailed {
		return false
	}
	if next == MessageStatusFailed {
		return current == MessageStatusPending || current == MessageStatusSent
	}
	return messageRank[next] > messageRank[current]
}

// callTransition decides whether next should be applied on top of current.
// Jumping to confirmed/cancelled before the call was answered is invalid.
func callTransition(current, next CallStatus) (bool, error) {
	if current == next || current.Final() {
		return false, nil
	}
	switch next {
	case CallStatusFailed, CallStatusNoAnswer:
		return callRank[current] < callRank[CallStatusCompleted], nil
	case CallStatusConfirmed, CallStatusCancelled:
		if current == CallStatusInProgress || current == CallStatusCompleted {
			return true, nil
		}
		return false, errInvalidTransition(string(current), string(next))
	}
	return callRank[next] > callRank[current], nil
}

func (m *Message) apply(next MessageStatus, data StatusData, now time.Time) {
	at := data.at(now)
	m.Status = next
	switch next {
	case MessageStatusSent:
		m.SentAt = stamp(m.SentAt, at)
	case MessageStatusDelivered:
		m.DeliveredAt = stamp(m.DeliveredAt, at)
	case MessageStatusRead:
		m.DeliveredAt = stamp(m.DeliveredAt, at)
		m.ReadAt = stamp(m.ReadAt, at)
	case MessageStatusFailed:
		m.FailedAt = stamp(m.FailedAt, at)
		if data.ErrorCode != "" {
			m.ErrorCode = data.ErrorCode
		}
	}
	if len(data.Raw) > 0 {
		m.ProviderResponse = append(json.RawMessage(nil), data.Raw...)
	}
	m.UpdatedAt = now
}

func (c *Call) apply(next CallStatus, data StatusData, now time.Time) {
	at := data.at(now)
	c.Status = next
	if next == CallStatusInProgress {
		c.StartTime = stamp(c.StartTime, at)
	}
	if next.ended() {
		c.EndTime = stamp(c.EndTime, at)
	}
	if c.StartTime != nil && c.EndTime != nil && c.DurationSeconds == nil {
		seconds := int64(c.EndTime.Sub(*c.StartTime) / time.Second)
		if seconds < 0 {
			seconds = 0
		}
		c.DurationSeconds = &seconds
	}
	if len(data.ResponseData) > 0 {
		if c.ResponseData == nil {
			c.ResponseData = make(map[string]string, len(data.ResponseData))
		}
		for k, v := range data.ResponseData {
			c.ResponseData[k] = v
		}
	}
	c.UpdatedAt = now
}

func stamp(existing *time.Time, at time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	value := at
	return &value
}

func (m *Message) clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.ProviderResponse = append(json.RawMessage(nil), m.ProviderResponse...)
	return &out
}

func (c *Call) clone() *Call {
	if c == nil {
		return nil
	}
	out := *c
	if c.ResponseData != nil {
		out.ResponseData = make(map[string]string, len(c.ResponseData))
		for k, v := range c.ResponseData {
			out.ResponseData[k] = v
		}
	}
	return &out
}
