package communication

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
)

// Sender carries the provider identity to send from. Zero values fall back to
// the gateway's defaults.
type Sender struct {
	From               string
	MessagingProfileID string
	ConnectionID       string
}

// OutboundText is a free-form text send.
type OutboundText struct {
	Channel ChannelType
	To      string
	Body    string
	Sender  Sender
}

// OutboundTemplate is a pre-approved template send.
type OutboundTemplate struct {
	Channel      ChannelType
	To           string
	TemplateName string
	Language     string
	Params       map[string]string
	Sender       Sender
}

// OutboundCall places an automated voice call.
type OutboundCall struct {
	To         string
	CallType   CallType
	FlowID     string
	Parameters map[string]string
	Sender     Sender
}

// Receipt is the provider's acceptance of an outbound request.
type Receipt struct {
	ExternalID string
	Raw        json.RawMessage
}

// MessageGateway sends text and template messages through a provider.
type MessageGateway interface {
	SendText(ctx context.Context, msg OutboundText) (Receipt, error)
	SendTemplate(ctx context.Context, msg OutboundTemplate) (Receipt, error)
}

// CallGateway places and inspects voice calls through a provider.
type CallGateway interface {
	PlaceCall(ctx context.Context, call OutboundCall) (Receipt, error)
	GetCallStatus(ctx context.Context, externalCallID string) (CallStatus, error)
}

// MessageRepository persists messages. UpdateMessage applies only when the stored
// version still equals expectedVersion and returns ErrConflict otherwise. The
// caller bumps msg.Version before updating.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error)
	ListMessagesByAppointment(ctx context.Context, appointmentID string) ([]*Message, error)
	ListMessagesByPatient(ctx context.Context, patientID string) ([]*Message, error)
	// LatestMessageForPhone matches any tenant when tenantKey is empty.
	LatestMessageForPhone(ctx context.Context, tenantKey, phoneNumber string) (*Message, error)
	UpdateMessage(ctx context.Context, msg *Message, expectedVersion int64) error
}

// CallRepository persists calls with the same compare-and-swap contract.
type CallRepository interface {
	CreateCall(ctx context.Context, call *Call) error
	GetCall(ctx context.Context, id string) (*Call, error)
	GetCallByExternalID(ctx context.Context, externalID string) (*Call, error)
	ListCallsByAppointment(ctx context.Context, appointmentID string) ([]*Call, error)
	ListStaleCalls(ctx context.Context, updatedBefore time.Time, limit int) ([]*Call, error)
	UpdateCall(ctx context.Context, call *Call, expectedVersion int64) error
}

// EventRecorder appends canonical events for applied transitions.
type EventRecorder interface {
	Record(ctx context.Context, aggregate string, evt events.CanonicalEvent) error
}

// TenantResolver resolves per-center credentials for outbound sends.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantKey string) (tenancy.SubaccountConfig, error)
}
