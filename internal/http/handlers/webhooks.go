package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/internal/flows"
	"github.com/wolfman30/appointment-notify/internal/messaging"
	observemetrics "github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

var webhookTracer = otel.Tracer("notify.internal.http.webhooks")

const (
	eventTypeMessage    = "message"
	eventTypeStatus     = "status"
	eventTypeCallStatus = "call_status"
	eventTypeDTMF       = "dtmf"

	confirmKey          = "1"
	phoneCancelReason   = "Cancelled by user via phone call"
	maxWebhookBodyBytes = 1 << 20
)

var errIgnoredEvent = errors.New("event ignored")

type webhookService interface {
	ApplyMessageStatus(ctx context.Context, externalID string, next communication.MessageStatus, data communication.StatusData) (*communication.Message, error)
	ApplyCallStatus(ctx context.Context, externalID string, next communication.CallStatus, data communication.StatusData) (*communication.Call, error)
	ApplyMessageResponse(ctx context.Context, externalID, reply string) (*communication.Message, error)
	ApplyReplyFromPhone(ctx context.Context, phone, reply string) (*communication.Message, error)
	ApplyCallResponse(ctx context.Context, externalID string, outcome communication.CallStatus, data communication.StatusData) (*communication.Call, bool, error)
}

type inboundRouter interface {
	RouteInboundMessage(ctx context.Context, fromPhone, text string, rawPayload json.RawMessage) (flows.Result, error)
}

type inboundDispatcher interface {
	Submit(ctx context.Context, fromPhone, text string, rawPayload json.RawMessage) error
}

type resumeEnqueuer interface {
	EnqueueResume(ctx context.Context, evt events.FlowResumeRequestedV1) error
}

// WebhookHandler accepts provider events for one tenant (resolved by the
// TenantAuth middleware) and always acknowledges them once past the gate.
type WebhookHandler struct {
	service   webhookService
	router    inboundRouter
	inbound   inboundDispatcher
	resume    resumeEnqueuer
	processed events.Deduper
	logger    *logging.Logger
	metrics   *observemetrics.CommunicationMetrics
	now       func() time.Time
}

// WebhookConfig wires the handler. With a Dispatcher, inbound messages are
// routed off the request goroutine; otherwise Router runs inline.
type WebhookConfig struct {
	Service    webhookService
	Router     inboundRouter
	Dispatcher inboundDispatcher
	Resume     resumeEnqueuer
	Processed  events.Deduper
	Logger     *logging.Logger
	Metrics    *observemetrics.CommunicationMetrics
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Service == nil {
		panic("handlers: communication service required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		service:   cfg.Service,
		router:    cfg.Router,
		inbound:   cfg.Dispatcher,
		resume:    cfg.Resume,
		processed: cfg.Processed,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type webhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	MessageID string          `json:"message_id"`
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Status    string          `json:"status"`
	Key       string          `json:"key"`
	ErrorCode string          `json:"error_code"`
	Timestamp json.RawMessage `json:"timestamp"`
	Message   struct {
		Content string `json:"content"`
	} `json:"message"`
	Context struct {
		MessageID string `json:"message_id"`
	} `json:"context"`
}

// occurredAt accepts RFC 3339 strings and unix seconds.
func (e webhookEvent) occurredAt() time.Time {
	raw := strings.Trim(strings.TrimSpace(string(e.Timestamp)), `"`)
	if raw == "" || raw == "null" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC()
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

// HandleEvents processes POST /webhooks/{tenantKey}/events.
func (h *WebhookHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := webhookTracer.Start(r.Context(), "webhook.handle")
	defer span.End()

	tenantKey, _ := tenancy.TenantKeyFromContext(ctx)
	logger := h.logger.With("tenant_key", tenantKey)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.Warn("webhook body unreadable", "error", err)
		h.metrics.ObserveInbound("unknown", "invalid")
		acknowledge(w)
		return
	}
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil || strings.TrimSpace(evt.Type) == "" {
		logger.Warn("webhook payload invalid", "error", err)
		h.metrics.ObserveInbound("unknown", "invalid")
		acknowledge(w)
		return
	}
	evt.Type = strings.ToLower(strings.TrimSpace(evt.Type))
	span.SetAttributes(attribute.String("notify.event_type", evt.Type), attribute.String("notify.tenant_key", tenantKey))
	logger = logger.With("event_type", evt.Type, "event_id", evt.ID)

	if evt.ID != "" && h.processed != nil {
		processed, err := h.processed.AlreadyProcessed(ctx, tenantKey, evt.ID)
		if err != nil {
			logger.Error("processed lookup failed", "error", err)
		} else if processed {
			h.metrics.ObserveInbound(evt.Type, "duplicate")
			acknowledge(w)
			return
		}
	}

	handlerErr := h.dispatch(ctx, tenantKey, evt, body)
	outcome := "ok"
	switch {
	case handlerErr == nil:
	case errors.Is(handlerErr, errIgnoredEvent):
		outcome = "ignored"
		logger.Debug("webhook event ignored", "reason", handlerErr)
	case errors.Is(handlerErr, communication.ErrValidation), errors.Is(handlerErr, communication.ErrNotFound):
		outcome = "rejected"
		logger.Warn("webhook event rejected", "error", handlerErr)
	default:
		outcome = "failed"
		span.RecordError(handlerErr)
		logger.Error("webhook handling failed", "error", handlerErr)
	}
	h.metrics.ObserveInbound(evt.Type, outcome)
	h.metrics.ObserveWebhookLatency(evt.Type, time.Since(start).Seconds())

	if evt.ID != "" && h.processed != nil && outcome != "failed" {
		if _, err := h.processed.MarkProcessed(ctx, tenantKey, evt.ID); err != nil {
			logger.Error("failed to mark event processed", "error", err)
		}
	}
	acknowledge(w)
}

// dispatch confines every lookup to tenantKey, so another center's message or
// call ids resolve as not found.
func (h *WebhookHandler) dispatch(ctx context.Context, tenantKey string, evt webhookEvent, raw []byte) error {
	if tenantKey != "" {
		ctx = tenancy.WithTenantKey(ctx, tenantKey)
	}
	switch evt.Type {
	case eventTypeStatus:
		return h.handleMessageStatus(ctx, evt, raw)
	case eventTypeMessage:
		return h.handleInboundMessage(ctx, evt, raw)
	case eventTypeCallStatus:
		return h.handleCallStatus(ctx, evt, raw)
	case eventTypeDTMF:
		return h.handleDTMF(ctx, evt)
	default:
		return fmt.Errorf("%w: unsupported type %q", errIgnoredEvent, evt.Type)
	}
}

func (h *WebhookHandler) handleMessageStatus(ctx context.Context, evt webhookEvent, raw []byte) error {
	if evt.MessageID == "" {
		return &communication.ValidationError{Field: "message_id", Reason: "is required"}
	}
	status, ok := messaging.MapMessageStatus(evt.Status)
	if !ok {
		return fmt.Errorf("%w: message status %q", errIgnoredEvent, evt.Status)
	}
	_, err := h.service.ApplyMessageStatus(ctx, evt.MessageID, status, communication.StatusData{
		OccurredAt: evt.occurredAt(),
		ErrorCode:  evt.ErrorCode,
		Raw:        raw,
	})
	return err
}

// handleInboundMessage records the reply on the outbound message it answers and
// then routes the text to a flow.
func (h *WebhookHandler) handleInboundMessage(ctx context.Context, evt webhookEvent, raw []byte) error {
	from := communication.NormalizeE164(evt.From)
	text := strings.TrimSpace(evt.Message.Content)
	if from == "" {
		return &communication.ValidationError{Field: "from", Reason: "is required"}
	}

	var recordErr error
	if evt.Context.MessageID != "" {
		_, recordErr = h.service.ApplyMessageResponse(ctx, evt.Context.MessageID, text)
	} else {
		_, recordErr = h.service.ApplyReplyFromPhone(ctx, from, text)
	}
	if recordErr != nil && !errors.Is(recordErr, communication.ErrNotFound) {
		return recordErr
	}

	if text == "" {
		return recordErr
	}
	if h.inbound != nil {
		if err := h.inbound.Submit(ctx, from, text, raw); err != nil {
			return err
		}
		return recordErr
	}
	if h.router == nil {
		return recordErr
	}
	if _, err := h.router.RouteInboundMessage(ctx, from, text, raw); err != nil {
		return err
	}
	return recordErr
}

func (h *WebhookHandler) handleCallStatus(ctx context.Context, evt webhookEvent, raw []byte) error {
	if evt.CallID == "" {
		return &communication.ValidationError{Field: "callId", Reason: "is required"}
	}
	status, ok := messaging.MapCallStatus(evt.Status)
	if !ok {
		return fmt.Errorf("%w: call status %q", errIgnoredEvent, evt.Status)
	}
	_, err := h.service.ApplyCallStatus(ctx, evt.CallID, status, communication.StatusData{
		OccurredAt: evt.occurredAt(),
		Raw:        raw,
	})
	return err
}

// handleDTMF turns a key press into a confirmation or cancellation and asks the
// external flow to resume with the outcome. Only the press that actually moves
// the call to a final state triggers the resume.
func (h *WebhookHandler) handleDTMF(ctx context.Context, evt webhookEvent) error {
	if evt.CallID == "" {
		return &communication.ValidationError{Field: "callId", Reason: "is required"}
	}
	key := strings.TrimSpace(evt.Key)
	if key == "" {
		return &communication.ValidationError{Field: "key", Reason: "is required"}
	}
	outcome := communication.CallStatusCancelled
	if key == confirmKey {
		outcome = communication.CallStatusConfirmed
	}
	updated, applied, err := h.service.ApplyCallResponse(ctx, evt.CallID, outcome, communication.StatusData{
		OccurredAt:   evt.occurredAt(),
		ResponseData: map[string]string{"dtmf_key": key},
	})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: call %s already %s", errIgnoredEvent, updated.ID, updated.Status)
	}

	if updated.ResumeKey == "" || h.resume == nil {
		h.logger.Warn("call has no resume target", "call_id", updated.ID, "flow_id", updated.FlowID)
		return nil
	}
	payload := map[string]any{
		"status":         string(updated.Status),
		"appointment_id": updated.AppointmentID,
	}
	if updated.Status == communication.CallStatusCancelled {
		payload["reason"] = phoneCancelReason
	}
	return h.resume.EnqueueResume(ctx, events.FlowResumeRequestedV1{
		TenantKey:   updated.TenantKey,
		CallID:      updated.ID,
		ResumeKey:   updated.ResumeKey,
		Payload:     payload,
		RequestedAt: h.now(),
	})
}

func acknowledge(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
