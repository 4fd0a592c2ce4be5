package telnyxclient

import (
	"errors"
	"strings"
	"time"
)

// SendMessageRequest describes an outbound SMS/MMS payload.
type SendMessageRequest struct {
	From               string
	To                 string
	Body               string
	MediaURLs          []string
	MessagingProfileID string
}

func (r SendMessageRequest) validate() error {
	if strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.MessagingProfileID) == "" {
		return errors.New("telnyxclient: from number or messaging profile required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: to number required")
	}
	if strings.TrimSpace(r.Body) == "" && len(r.MediaURLs) == 0 {
		return errors.New("telnyxclient: body or media required")
	}
	return nil
}

// MessageResponse represents the Telnyx message resource.
type MessageResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Direction   string    `json:"direction"`
	Text        string    `json:"text"`
	Parts       int       `json:"parts"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
	From        struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
		Status      string `json:"status"`
	} `json:"to"`
}

// Status returns the delivery status of the first recipient.
func (m *MessageResponse) Status() string {
	if m == nil || len(m.To) == 0 {
		return ""
	}
	return m.To[0].Status
}

// WhatsAppTextRequest is a free-form WhatsApp message.
type WhatsAppTextRequest struct {
	From               string
	To                 string
	Body               string
	MessagingProfileID string
}

func (r WhatsAppTextRequest) validate() error {
	if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: from and to numbers required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("telnyxclient: body required")
	}
	return nil
}

// WhatsAppTemplateRequest is a pre-approved WhatsApp template send.
type WhatsAppTemplateRequest struct {
	From               string
	To                 string
	TemplateName       string
	Language           string
	BodyParameters     []string
	MessagingProfileID string
}

func (r WhatsAppTemplateRequest) validate() error {
	if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: from and to numbers required")
	}
	if strings.TrimSpace(r.TemplateName) == "" {
		return errors.New("telnyxclient: template name required")
	}
	return nil
}

type whatsAppEnvelope struct {
	From               string          `json:"from"`
	To                 string          `json:"to"`
	MessagingProfileID string          `json:"messaging_profile_id,omitempty"`
	WhatsAppMessage    whatsAppMessage `json:"whatsapp_message"`
}

type whatsAppMessage struct {
	Type     string            `json:"type"`
	Text     *whatsAppText     `json:"text,omitempty"`
	Template *whatsAppTemplate `json:"template,omitempty"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppTemplate struct {
	Name       string              `json:"name"`
	Language   whatsAppLanguage    `json:"language"`
	Components []whatsAppComponent `json:"components,omitempty"`
}

type whatsAppLanguage struct {
	Code string `json:"code"`
}

type whatsAppComponent struct {
	Type       string              `json:"type"`
	Parameters []whatsAppParameter `json:"parameters"`
}

type whatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DialRequest places an outbound call through a Call Control connection.
type DialRequest struct {
	ConnectionID string
	From         string
	To           string
	// ClientState is echoed back on every call webhook (base64 on the wire).
	ClientState []byte
	TimeoutSecs int
}

func (r DialRequest) validate() error {
	if strings.TrimSpace(r.ConnectionID) == "" {
		return errors.New("telnyxclient: connection id required")
	}
	if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: from and to numbers required")
	}
	return nil
}

// CallResponse mirrors the Call Control call resource.
type CallResponse struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id"`
	CallSessionID string `json:"call_session_id"`
	IsAlive       bool   `json:"is_alive"`
	CallDuration  int    `json:"call_duration"`
	RecordType    string `json:"record_type"`
}
