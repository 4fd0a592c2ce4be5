package communication

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// maxUpdateAttempts bounds reload-and-retry after a lost compare-and-swap.
const maxUpdateAttempts = 3

// Service owns the Message and Call state machines.
type Service struct {
	messages  MessageRepository
	calls     CallRepository
	messenger MessageGateway
	voice     CallGateway
	tenants   TenantResolver
	recorder  EventRecorder
	metrics   *metrics.CommunicationMetrics
	logger    *logging.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes the Service.
type Option func(*Service)

// WithTenantResolver enables per-center credentials for sends that carry a tenant key.
func WithTenantResolver(r TenantResolver) Option {
	return func(s *Service) { s.tenants = r }
}

// WithEventRecorder appends canonical events for every applied transition.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m *metrics.CommunicationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides UUID generation (tests).
func WithIDGenerator(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newID = next
		}
	}
}

func NewService(messages MessageRepository, calls CallRepository, messenger MessageGateway, voice CallGateway, opts ...Option) *Service {
	if messages == nil || calls == nil {
		panic("communication: repositories required")
	}
	s := &Service{
		messages:  messages,
		calls:     calls,
		messenger: messenger,
		voice:     voice,
		logger:    logging.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TextRequest asks for a free-form text send.
type TextRequest struct {
	TenantKey     string      `json:"tenant_key,omitempty"`
	AppointmentID string      `json:"appointment_id"`
	PatientID     string      `json:"patient_id"`
	PhoneNumber   string      `json:"phone_number"`
	Content       string      `json:"content"`
	Channel       ChannelType `json:"channel,omitempty"`
}

// TemplateRequest asks for a template send.
type TemplateRequest struct {
	TenantKey     string            `json:"tenant_key,omitempty"`
	AppointmentID string            `json:"appointment_id"`
	PatientID     string            `json:"patient_id"`
	PhoneNumber   string            `json:"phone_number"`
	TemplateName  string            `json:"template_name"`
	Language      string            `json:"language,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Channel       ChannelType       `json:"channel,omitempty"`
}

// CallRequest asks for an outbound call.
type CallRequest struct {
	TenantKey     string            `json:"tenant_key,omitempty"`
	AppointmentID string            `json:"appointment_id"`
	PatientID     string            `json:"patient_id"`
	PhoneNumber   string            `json:"phone_number"`
	CallType      CallType          `json:"call_type,omitempty"`
	FlowID        string            `json:"flow_id,omitempty"`
	ResumeKey     string            `json:"resume_key,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
}

// SendText persists a pending message, hands it to the gateway, and marks it sent.
// When the provider rejects the send the message is stored as failed and returned
// alongside a *CommunicationError.
func (s *Service) SendText(ctx context.Context, req TextRequest) (*Message, error) {
	channel, err := messageChannel(req.Channel)
	if err != nil {
		return nil, err
	}
	phone, err := validateRecipient(req.AppointmentID, req.PatientID, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, requiredField("content")
	}
	if s.messenger == nil {
		return nil, errors.New("communication: message gateway not configured")
	}
	sender, err := s.senderFor(ctx, req.TenantKey, channel)
	if err != nil {
		return nil, err
	}
	msg, err := s.newMessage(ctx, req.TenantKey, req.AppointmentID, req.PatientID, phone, req.Content, channel)
	if err != nil {
		return nil, err
	}
	receipt, sendErr := s.messenger.SendText(ctx, OutboundText{
		Channel: channel,
		To:      phone,
		Body:    req.Content,
		Sender:  sender,
	})
	return s.completeSend(ctx, msg, receipt, sendErr)
}

// SendTemplate sends a pre-approved template and returns the message id.
func (s *Service) SendTemplate(ctx context.Context, req TemplateRequest) (string, error) {
	msg, err := s.SendTemplateMessage(ctx, req)
	if msg == nil {
		return "", err
	}
	return msg.ID, err
}

// SendTemplateMessage is SendTemplate returning the full record.
func (s *Service) SendTemplateMessage(ctx context.Context, req TemplateRequest) (*Message, error) {
	channel, err := messageChannel(req.Channel)
	if err != nil {
		return nil, err
	}
	phone, err := validateRecipient(req.AppointmentID, req.PatientID, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TemplateName) == "" {
		return nil, requiredField("template_name")
	}
	if s.messenger == nil {
		return nil, errors.New("communication: message gateway not configured")
	}
	sender, err := s.senderFor(ctx, req.TenantKey, channel)
	if err != nil {
		return nil, err
	}
	content := renderTemplateContent(req.TemplateName, req.Params)
	msg, err := s.newMessage(ctx, req.TenantKey, req.AppointmentID, req.PatientID, phone, content, channel)
	if err != nil {
		return nil, err
	}
	receipt, sendErr := s.messenger.SendTemplate(ctx, OutboundTemplate{
		Channel:      channel,
		To:           phone,
		TemplateName: req.TemplateName,
		Language:     req.Language,
		Params:       req.Params,
		Sender:       sender,
	})
	return s.completeSend(ctx, msg, receipt, sendErr)
}

// InitiateCall persists a pending call, places it, and marks it initiated.
// Provider rejections are stored as failed and returned with a *CommunicationError.
func (s *Service) InitiateCall(ctx context.Context, req CallRequest) (*Call, error) {
	phone, err := validateRecipient(req.AppointmentID, req.PatientID, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	callType, err := ParseCallType(string(req.CallType))
	if err != nil {
		return nil, err
	}
	if s.voice == nil {
		return nil, errors.New("communication: call gateway not configured")
	}
	sender, err := s.senderFor(ctx, req.TenantKey, ChannelVoice)
	if err != nil {
		return nil, err
	}
	now := s.now()
	call := &Call{
		ID:            s.newID(),
		TenantKey:     req.TenantKey,
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		PhoneNumber:   phone,
		Status:        CallStatusPending,
		CallType:      callType,
		FlowID:        req.FlowID,
		ResumeKey:     req.ResumeKey,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.calls.CreateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("communication: create call: %w", err)
	}

	receipt, placeErr := s.voice.PlaceCall(ctx, OutboundCall{
		To:         phone,
		CallType:   callType,
		FlowID:     req.FlowID,
		Parameters: req.Parameters,
		Sender:     sender,
	})
	if placeErr == nil && strings.TrimSpace(receipt.ExternalID) == "" {
		placeErr = &CommunicationError{Code: "missing_external_id", Err: errors.New("provider returned no call id")}
	}
	if placeErr != nil {
		commErr := asCommunicationError(placeErr)
		s.metrics.ObserveOutbound(string(ChannelVoice), "failed")
		s.logger.Error("call placement failed", "call_id", call.ID, "appointment_id", call.AppointmentID, "code", commErr.Code, "error", commErr)
		if _, _, err := s.transitionCall(ctx, call, CallStatusFailed, StatusData{ErrorCode: commErr.Code}); err != nil {
			s.logger.Error("persist failed call", "call_id", call.ID, "error", err)
		}
		return call, commErr
	}

	call.ExternalCallID = receipt.ExternalID
	updated, _, err := s.transitionCall(ctx, call, CallStatusInitiated, StatusData{Raw: receipt.Raw})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveOutbound(string(ChannelVoice), "initiated")
	s.logger.Info("call initiated", "call_id", updated.ID, "external_call_id", updated.ExternalCallID, "flow_id", updated.FlowID)
	return updated, nil
}

// ApplyMessageStatus moves the message with externalID forward to next. Statuses
// at or behind the current one are ignored and the current state is returned.
// A tenant key in ctx confines the lookup to that tenant's messages.
func (s *Service) ApplyMessageStatus(ctx context.Context, externalID string, next MessageStatus, data StatusData) (*Message, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, requiredField("external_message_id")
	}
	if _, err := ParseMessageStatus(string(next)); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		msg, err := s.messageByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		updated, _, err := s.transitionMessage(ctx, msg, next, data)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return updated, err
	}
	return nil, fmt.Errorf("communication: apply message status %s: %w", externalID, ErrConflict)
}

// ApplyCallStatus moves the call with externalID forward to next.
func (s *Service) ApplyCallStatus(ctx context.Context, externalID string, next CallStatus, data StatusData) (*Call, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, requiredField("external_call_id")
	}
	if _, err := ParseCallStatus(string(next)); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		call, err := s.callByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		updated, _, err := s.transitionCall(ctx, call, next, data)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return updated, err
	}
	return nil, fmt.Errorf("communication: apply call status %s: %w", externalID, ErrConflict)
}

// ApplyCallResponse records the patient's answer (confirmed or cancelled) on a
// call, marking it in progress first when the answer event was lost. applied is
// false when the call had already reached a final state, so a repeated or late
// answer changes nothing and the caller must not act on it again.
func (s *Service) ApplyCallResponse(ctx context.Context, externalID string, outcome CallStatus, data StatusData) (*Call, bool, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, false, requiredField("external_call_id")
	}
	if outcome != CallStatusConfirmed && outcome != CallStatusCancelled {
		return nil, false, &ValidationError{Field: "status", Reason: "must be confirmed or cancelled"}
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		call, err := s.callByExternalID(ctx, externalID)
		if err != nil {
			return nil, false, err
		}
		if call.Status.Final() {
			s.logger.Debug("call response ignored", "call_id", call.ID, "status", call.Status, "incoming", outcome)
			return call, false, nil
		}
		if call.Status == CallStatusPending || call.Status == CallStatusInitiated {
			answered, _, err := s.transitionCall(ctx, call, CallStatusInProgress, StatusData{OccurredAt: data.OccurredAt})
			if errors.Is(err, ErrConflict) {
				continue
			}
			if err != nil {
				return nil, false, err
			}
			call = answered
		}
		updated, applied, err := s.transitionCall(ctx, call, outcome, data)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return updated, applied, nil
	}
	return nil, false, fmt.Errorf("communication: apply call response %s: %w", externalID, ErrConflict)
}

// ApplyMessageResponse records an inbound reply against the outbound message
// without touching its delivery status.
func (s *Service) ApplyMessageResponse(ctx context.Context, externalID, reply string) (*Message, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, requiredField("external_message_id")
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		msg, err := s.messageByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		updated := msg.clone()
		updated.ResponseText = reply
		updated.RespondedAt = &now
		updated.UpdatedAt = now
		updated.Version = msg.Version + 1
		err = s.messages.UpdateMessage(ctx, updated, msg.Version)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("communication: record response: %w", err)
		}
		s.record(ctx, "message:"+updated.ID, events.MessageRepliedV1{
			MessageID:     updated.ID,
			TenantKey:     updated.TenantKey,
			AppointmentID: updated.AppointmentID,
			PatientID:     updated.PatientID,
			ReplyText:     reply,
			RepliedAt:     now,
		})
		return updated, nil
	}
	return nil, fmt.Errorf("communication: record response %s: %w", externalID, ErrConflict)
}

// ApplyReplyFromPhone correlates an inbound reply with the latest outbound message
// sent to phone.
func (s *Service) ApplyReplyFromPhone(ctx context.Context, phone, reply string) (*Message, error) {
	latest, err := s.LatestMessageForPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if latest.ExternalMessageID == "" {
		return nil, &NotFoundError{Kind: "message", Key: phone}
	}
	return s.ApplyMessageResponse(ctx, latest.ExternalMessageID, reply)
}

func (s *Service) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.owns(ctx, "message", msg.ID, msg.TenantKey) {
		return nil, &NotFoundError{Kind: "message", Key: id}
	}
	return msg, nil
}

func (s *Service) GetCall(ctx context.Context, id string) (*Call, error) {
	call, err := s.calls.GetCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.owns(ctx, "call", call.ID, call.TenantKey) {
		return nil, &NotFoundError{Kind: "call", Key: id}
	}
	return call, nil
}

func (s *Service) GetCallByExternalID(ctx context.Context, externalID string) (*Call, error) {
	return s.callByExternalID(ctx, externalID)
}

func (s *Service) MessagesForAppointment(ctx context.Context, appointmentID string) ([]*Message, error) {
	msgs, err := s.messages.ListMessagesByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return scopedMessages(ctx, msgs), nil
}

func (s *Service) MessagesForPatient(ctx context.Context, patientID string) ([]*Message, error) {
	msgs, err := s.messages.ListMessagesByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return scopedMessages(ctx, msgs), nil
}

func (s *Service) CallsForAppointment(ctx context.Context, appointmentID string) ([]*Call, error) {
	calls, err := s.calls.ListCallsByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	scope := scopeTenant(ctx)
	if scope == "" {
		return calls, nil
	}
	out := calls[:0]
	for _, call := range calls {
		if call.TenantKey == scope {
			out = append(out, call)
		}
	}
	return out, nil
}

// LatestMessageForPhone returns the most recent outbound message to phone,
// restricted to the tenant in ctx when there is one.
func (s *Service) LatestMessageForPhone(ctx context.Context, phone string) (*Message, error) {
	normalized := NormalizeE164(phone)
	if normalized == "" {
		return nil, requiredField("phone_number")
	}
	return s.messages.LatestMessageForPhone(ctx, scopeTenant(ctx), normalized)
}

// StaleCalls lists calls still initiated or in progress that have not changed
// for at least olderThan.
func (s *Service) StaleCalls(ctx context.Context, olderThan time.Duration, limit int) ([]*Call, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.calls.ListStaleCalls(ctx, s.now().Add(-olderThan), limit)
}

// CallGateway exposes the voice gateway to the reconciler.
func (s *Service) CallGateway() CallGateway {
	return s.voice
}

func (s *Service) newMessage(ctx context.Context, tenantKey, appointmentID, patientID, phone, content string, channel ChannelType) (*Message, error) {
	now := s.now()
	msg := &Message{
		ID:            s.newID(),
		TenantKey:     tenantKey,
		AppointmentID: appointmentID,
		PatientID:     patientID,
		PhoneNumber:   phone,
		Content:       content,
		ChannelType:   channel,
		Status:        MessageStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("communication: create message: %w", err)
	}
	return msg, nil
}

func (s *Service) completeSend(ctx context.Context, msg *Message, receipt Receipt, sendErr error) (*Message, error) {
	if sendErr == nil && strings.TrimSpace(receipt.ExternalID) == "" {
		sendErr = &CommunicationError{Code: "missing_external_id", Err: errors.New("provider returned no message id")}
	}
	if sendErr != nil {
		commErr := asCommunicationError(sendErr)
		s.metrics.ObserveOutbound(string(msg.ChannelType), "failed")
		s.logger.Error("message send failed", "message_id", msg.ID, "appointment_id", msg.AppointmentID, "channel", msg.ChannelType, "code", commErr.Code, "error", commErr)
		failed, _, err := s.transitionMessage(ctx, msg, MessageStatusFailed, StatusData{ErrorCode: commErr.Code})
		if err != nil {
			s.logger.Error("persist failed message", "message_id", msg.ID, "error", err)
			return msg, commErr
		}
		return failed, commErr
	}

	msg.ExternalMessageID = receipt.ExternalID
	sent, _, err := s.transitionMessage(ctx, msg, MessageStatusSent, StatusData{Raw: receipt.Raw})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveOutbound(string(sent.ChannelType), "sent")
	s.logger.Info("message sent", "message_id", sent.ID, "external_message_id", sent.ExternalMessageID, "channel", sent.ChannelType, "tenant_key", sent.TenantKey)
	return sent, nil
}

// transitionMessage applies next to msg with a compare-and-swap on msg.Version.
// applied reports whether a write happened.
func (s *Service) transitionMessage(ctx context.Context, msg *Message, next MessageStatus, data StatusData) (*Message, bool, error) {
	if !messageTransition(msg.Status, next) {
		s.metrics.ObserveTransition("message", string(next), false)
		s.logger.Debug("message status ignored", "message_id", msg.ID, "status", msg.Status, "incoming", next)
		return msg, false, nil
	}
	prev := msg.Status
	updated := msg.clone()
	updated.apply(next, data, s.now())
	updated.Version = msg.Version + 1
	if err := s.messages.UpdateMessage(ctx, updated, msg.Version); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("communication: update message: %w", err)
	}
	s.metrics.ObserveTransition("message", string(next), true)
	s.record(ctx, "message:"+updated.ID, events.MessageStatusChangedV1{
		MessageID:         updated.ID,
		TenantKey:         updated.TenantKey,
		AppointmentID:     updated.AppointmentID,
		PatientID:         updated.PatientID,
		Channel:           string(updated.ChannelType),
		ExternalMessageID: updated.ExternalMessageID,
		FromStatus:        string(prev),
		ToStatus:          string(next),
		ErrorCode:         updated.ErrorCode,
		OccurredAt:        data.at(updated.UpdatedAt),
	})
	return updated, true, nil
}

// transitionCall applies next to call with a compare-and-swap on call.Version.
func (s *Service) transitionCall(ctx context.Context, call *Call, next CallStatus, data StatusData) (*Call, bool, error) {
	apply, err := callTransition(call.Status, next)
	if err != nil {
		return nil, false, err
	}
	if !apply {
		s.metrics.ObserveTransition("call", string(next), false)
		s.logger.Debug("call status ignored", "call_id", call.ID, "status", call.Status, "incoming", next)
		return call, false, nil
	}
	prev := call.Status
	updated := call.clone()
	updated.apply(next, data, s.now())
	updated.Version = call.Version + 1
	if err := s.calls.UpdateCall(ctx, updated, call.Version); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("communication: update call: %w", err)
	}
	s.metrics.ObserveTransition("call", string(next), true)
	s.record(ctx, "call:"+updated.ID, events.CallStatusChangedV1{
		CallID:          updated.ID,
		TenantKey:       updated.TenantKey,
		AppointmentID:   updated.AppointmentID,
		PatientID:       updated.PatientID,
		CallType:        string(updated.CallType),
		ExternalCallID:  updated.ExternalCallID,
		FromStatus:      string(prev),
		ToStatus:        string(next),
		DurationSeconds: updated.DurationSeconds,
		ResponseData:    data.ResponseData,
		OccurredAt:      data.at(updated.UpdatedAt),
	})
	return updated, true, nil
}

func (s *Service) messageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	msg, err := s.messages.GetMessageByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !s.owns(ctx, "message", msg.ID, msg.TenantKey) {
		return nil, &NotFoundError{Kind: "message", Key: externalID}
	}
	return msg, nil
}

func (s *Service) callByExternalID(ctx context.Context, externalID string) (*Call, error) {
	call, err := s.calls.GetCallByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !s.owns(ctx, "call", call.ID, call.TenantKey) {
		return nil, &NotFoundError{Kind: "call", Key: externalID}
	}
	return call, nil
}

// owns reports whether a record belonging to owner is visible to the tenant in
// ctx. Unscoped contexts see every tenant.
func (s *Service) owns(ctx context.Context, kind, id, owner string) bool {
	scope := scopeTenant(ctx)
	if scope == "" || scope == owner {
		return true
	}
	s.logger.Warn("cross-tenant access rejected", "kind", kind, "id", id, "tenant_key", scope, "owner", owner)
	return false
}

func scopeTenant(ctx context.Context) string {
	key, _ := tenancy.TenantKeyFromContext(ctx)
	return key
}

func scopedMessages(ctx context.Context, msgs []*Message) []*Message {
	scope := scopeTenant(ctx)
	if scope == "" {
		return msgs
	}
	out := msgs[:0]
	for _, msg := range msgs {
		if msg.TenantKey == scope {
			out = append(out, msg)
		}
	}
	return out
}

func (s *Service) record(ctx context.Context, aggregate string, evt events.CanonicalEvent) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, aggregate, evt); err != nil {
		s.logger.Warn("failed to record canonical event", "aggregate", aggregate, "event_type", evt.EventType(), "error", err)
	}
}

func (s *Service) senderFor(ctx context.Context, tenantKey string, channel ChannelType) (Sender, error) {
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey == "" || s.tenants == nil {
		return Sender{}, nil
	}
	cfg, err := s.tenants.Resolve(ctx, tenantKey)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) {
			return Sender{}, &NotFoundError{Kind: "tenant", Key: tenantKey, Err: err}
		}
		return Sender{}, fmt.Errorf("communication: resolve tenant: %w", err)
	}
	return SenderFor(cfg, channel), nil
}

// SenderFor picks the center's credentials for channel.
func SenderFor(cfg tenancy.SubaccountConfig, channel ChannelType) Sender {
	sender := Sender{MessagingProfileID: cfg.Channels.MessagingProfileID}
	switch channel {
	case ChannelWhatsApp:
		sender.From = cfg.Channels.WhatsAppFrom
	case ChannelSMS:
		sender.From = cfg.Channels.SMSFrom
	case ChannelVoice:
		sender.From = cfg.Channels.VoiceFrom
		sender.ConnectionID = cfg.Channels.VoiceConnectionID
	}
	return sender
}

func messageChannel(channel ChannelType) (ChannelType, error) {
	parsed, err := ParseChannelType(string(channel))
	if err != nil {
		return "", err
	}
	if parsed == ChannelVoice {
		return "", &ValidationError{Field: "channel_type", Reason: "voice is not a messaging channel"}
	}
	return parsed, nil
}

func validateRecipient(appointmentID, patientID, phone string) (string, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return "", requiredField("appointment_id")
	}
	if strings.TrimSpace(patientID) == "" {
		return "", requiredField("patient_id")
	}
	return ValidateE164(phone)
}

func renderTemplateContent(name string, params map[string]string) string {
	if len(params) == 0 {
		return "template:" + name
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return "template:" + name + " " + strings.Join(parts, ", ")
}
