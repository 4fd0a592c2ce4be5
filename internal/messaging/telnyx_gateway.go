package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/messaging/telnyxclient"
	"github.com/wolfman30/appointment-notify/internal/messaging/templates"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

var telnyxTracer = otel.Tracer("notify.internal.messaging.telnyx")

type telnyxAPI interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
	SendWhatsAppText(ctx context.Context, req telnyxclient.WhatsAppTextRequest) (*telnyxclient.MessageResponse, error)
	SendWhatsAppTemplate(ctx context.Context, req telnyxclient.WhatsAppTemplateRequest) (*telnyxclient.MessageResponse, error)
	Dial(ctx context.Context, req telnyxclient.DialRequest) (*telnyxclient.CallResponse, error)
	GetCall(ctx context.Context, callControlID string) (*telnyxclient.CallResponse, error)
}

// TelnyxGatewayConfig wires the default sender identity. Per-center values on
// the outbound Sender take precedence.
type TelnyxGatewayConfig struct {
	Client             telnyxAPI
	FromNumber         string
	WhatsAppNumber     string
	MessagingProfileID string
	ConnectionID       string
	Templates          *templates.Catalog
	Logger             *logging.Logger
}

// TelnyxGateway sends SMS and WhatsApp messages and places Call Control calls.
type TelnyxGateway struct {
	client             telnyxAPI
	fromNumber         string
	whatsAppNumber     string
	messagingProfileID string
	connectionID       string
	templates          *templates.Catalog
	logger             *logging.Logger
}

var (
	_ communication.MessageGateway = (*TelnyxGateway)(nil)
	_ communication.CallGateway    = (*TelnyxGateway)(nil)
)

func NewTelnyxGateway(cfg TelnyxGatewayConfig) *TelnyxGateway {
	if cfg.Client == nil {
		panic("messaging: telnyx client required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Templates == nil {
		cfg.Templates = templates.DefaultCatalog()
	}
	return &TelnyxGateway{
		client:             cfg.Client,
		fromNumber:         cfg.FromNumber,
		whatsAppNumber:     cfg.WhatsAppNumber,
		messagingProfileID: cfg.MessagingProfileID,
		connectionID:       cfg.ConnectionID,
		templates:          cfg.Templates,
		logger:             cfg.Logger,
	}
}

func (g *TelnyxGateway) SendText(ctx context.Context, msg communication.OutboundText) (communication.Receipt, error) {
	ctx, span := telnyxTracer.Start(ctx, "messaging.telnyx.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("notify.channel", string(msg.Channel)))

	var (
		resp *telnyxclient.MessageResponse
		err  error
	)
	switch msg.Channel {
	case communication.ChannelWhatsApp:
		resp, err = g.client.SendWhatsAppText(ctx, telnyxclient.WhatsAppTextRequest{
			From:               firstNonEmpty(msg.Sender.From, g.whatsAppNumber),
			To:                 msg.To,
			Body:               msg.Body,
			MessagingProfileID: firstNonEmpty(msg.Sender.MessagingProfileID, g.messagingProfileID),
		})
	case communication.ChannelSMS:
		resp, err = g.sendSMS(ctx, msg.Sender, msg.To, msg.Body)
	default:
		err = unsupportedChannel(msg.Channel)
	}
	if err != nil {
		span.RecordError(err)
		return communication.Receipt{}, providerError(err)
	}
	return messageReceipt(resp), nil
}

func (g *TelnyxGateway) SendTemplate(ctx context.Context, msg communication.OutboundTemplate) (communication.Receipt, error) {
	ctx, span := telnyxTracer.Start(ctx, "messaging.telnyx.send_template")
	defer span.End()
	span.SetAttributes(
		attribute.String("notify.channel", string(msg.Channel)),
		attribute.String("notify.template", msg.TemplateName),
	)

	var (
		resp *telnyxclient.MessageResponse
		err  error
	)
	switch msg.Channel {
	case communication.ChannelWhatsApp:
		resp, err = g.client.SendWhatsAppTemplate(ctx, telnyxclient.WhatsAppTemplateRequest{
			From:               firstNonEmpty(msg.Sender.From, g.whatsAppNumber),
			To:                 msg.To,
			TemplateName:       msg.TemplateName,
			Language:           msg.Language,
			BodyParameters:     templates.OrderedParams(msg.Params),
			MessagingProfileID: firstNonEmpty(msg.Sender.MessagingProfileID, g.messagingProfileID),
		})
	case communication.ChannelSMS:
		body, renderErr := g.templates.Render(msg.TemplateName, msg.Params)
		if renderErr != nil {
			return communication.Receipt{}, templateError(renderErr)
		}
		resp, err = g.sendSMS(ctx, msg.Sender, msg.To, body)
	default:
		err = unsupportedChannel(msg.Channel)
	}
	if err != nil {
		span.RecordError(err)
		return communication.Receipt{}, providerError(err)
	}
	return messageReceipt(resp), nil
}

// callClientState is echoed back by Telnyx on every call webhook.
type callClientState struct {
	FlowID     string            `json:"flow_id,omitempty"`
	CallType   string            `json:"call_type,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (g *TelnyxGateway) PlaceCall(ctx context.Context, call communication.OutboundCall) (communication.Receipt, error) {
	ctx, span := telnyxTracer.Start(ctx, "messaging.telnyx.place_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("notify.flow_id", call.FlowID),
		attribute.String("notify.call_type", string(call.CallType)),
	)

	state, err := json.Marshal(callClientState{FlowID: call.FlowID, CallType: string(call.CallType), Parameters: call.Parameters})
	if err != nil {
		return communication.Receipt{}, fmt.Errorf("messaging: marshal client state: %w", err)
	}
	resp, err := g.client.Dial(ctx, telnyxclient.DialRequest{
		ConnectionID: firstNonEmpty(call.Sender.ConnectionID, g.connectionID),
		From:         firstNonEmpty(call.Sender.From, g.fromNumber),
		To:           call.To,
		ClientState:  state,
	})
	if err != nil {
		span.RecordError(err)
		return communication.Receipt{}, providerError(err)
	}
	raw, _ := json.Marshal(resp)
	g.logger.Info("telnyx call placed", "external_call_id", resp.CallControlID, "flow_id", call.FlowID)
	return communication.Receipt{ExternalID: resp.CallControlID, Raw: raw}, nil
}

// GetCallStatus maps the live call resource onto a call status. Telnyx only
// reports liveness and duration, so a dead call that never connected is no_answer.
func (g *TelnyxGateway) GetCallStatus(ctx context.Context, externalID string) (communication.CallStatus, error) {
	ctx, span := telnyxTracer.Start(ctx, "messaging.telnyx.get_call")
	defer span.End()

	resp, err := g.client.GetCall(ctx, externalID)
	if err != nil {
		var apiErr *telnyxclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return communication.CallStatusCompleted, nil
		}
		span.RecordError(err)
		return "", providerError(err)
	}
	switch {
	case resp.IsAlive && resp.CallDuration > 0:
		return communication.CallStatusInProgress, nil
	case resp.IsAlive:
		return communication.CallStatusInitiated, nil
	case resp.CallDuration > 0:
		return communication.CallStatusCompleted, nil
	default:
		return communication.CallStatusNoAnswer, nil
	}
}

func (g *TelnyxGateway) sendSMS(ctx context.Context, sender communication.Sender, to, body string) (*telnyxclient.MessageResponse, error) {
	return g.client.SendMessage(ctx, telnyxclient.SendMessageRequest{
		From:               firstNonEmpty(sender.From, g.fromNumber),
		To:                 to,
		Body:               body,
		MessagingProfileID: firstNonEmpty(sender.MessagingProfileID, g.messagingProfileID),
	})
}

func messageReceipt(resp *telnyxclient.MessageResponse) communication.Receipt {
	if resp == nil {
		return communication.Receipt{}
	}
	raw, _ := json.Marshal(resp)
	return communication.Receipt{ExternalID: resp.ID, Raw: raw}
}

// providerError converts a client failure into a CommunicationError carrying the
// provider's error code.
func providerError(err error) error {
	var commErr *communication.CommunicationError
	if errors.As(err, &commErr) {
		return commErr
	}
	var apiErr *telnyxclient.APIError
	if errors.As(err, &apiErr) {
		return &communication.CommunicationError{Code: apiErr.Code(), Err: err}
	}
	return &communication.CommunicationError{Code: "provider_unavailable", Err: err}
}

func templateError(err error) error {
	return &communication.CommunicationError{Code: "template_error", Err: err}
}

func unsupportedChannel(channel communication.ChannelType) error {
	return &communication.CommunicationError{Code: "unsupported_channel", Err: fmt.Errorf("channel %q", channel)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
