package flows

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

var routerTracer = otel.Tracer("notify.internal.flows")

// Built-in flow ids. Intents double as flow ids.
const (
	FlowConfirm             = "confirm"
	FlowCancel              = "cancel"
	FlowReschedule          = "reschedule"
	FlowHelp                = "help"
	FlowDefaultConversation = "default_conversation"
)

// Handler parameter names set by RouteInboundMessage.
const (
	ParamText       = "text"
	ParamIntent     = "intent"
	ParamRawPayload = "raw_payload"
)

// intentKeywords is evaluated in order; the first intent with a matching keyword wins.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{FlowConfirm, []string{"confirmar", "confirmo", "confirmado", "confirm", "yes"}},
	{FlowCancel, []string{"cancelar", "cancelo", "anular", "cancel"}},
	{FlowReschedule, []string{"reprogramar", "reagendar", "cambiar", "otra fecha", "reschedule", "change"}},
	{FlowHelp, []string{"ayuda", "help", "info"}},
}

// ExtractIntent returns the first intent whose keyword appears in text, or "" when
// nothing matches.
func ExtractIntent(text string) string {
	lowered := strings.ToLower(text)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return entry.intent
			}
		}
	}
	return ""
}

// Router resolves inbound messages to flows and runs them.
type Router struct {
	registry *Registry
	logger   *logging.Logger
	metrics  *metrics.CommunicationMetrics
}

// RouterOption customizes the Router.
type RouterOption func(*Router)

func WithRouterLogger(logger *logging.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRouterMetrics(m *metrics.CommunicationMetrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	if registry == nil {
		panic("flows: registry required")
	}
	r := &Router{registry: registry, logger: logging.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the underlying registry (flow listing endpoints).
func (r *Router) Registry() *Registry {
	return r.registry
}

// RouteInboundMessage extracts an intent from text and triggers the matching
// whatsapp flow. Unmatched text goes to default_conversation.
func (r *Router) RouteInboundMessage(ctx context.Context, fromPhone, text string, rawPayload json.RawMessage) (Result, error) {
	intent := ExtractIntent(text)
	flowID := intent
	if flowID == "" {
		flowID = FlowDefaultConversation
	}
	r.logger.Info("inbound message routed", "flow_id", flowID, "intent", intent, "from", fromPhone)
	result, err := r.TriggerFlow(ctx, flowID, communication.ChannelWhatsApp, fromPhone, map[string]string{
		ParamText:       text,
		ParamIntent:     intent,
		ParamRawPayload: string(rawPayload),
	})
	result.Intent = intent
	return result, err
}

// TriggerFlow runs the handler registered for (flowID, channel) synchronously.
func (r *Router) TriggerFlow(ctx context.Context, flowID string, channel communication.ChannelType, phoneNumber string, parameters map[string]string) (Result, error) {
	ctx, span := routerTracer.Start(ctx, "flows.trigger")
	defer span.End()
	span.SetAttributes(
		attribute.String("notify.flow_id", flowID),
		attribute.String("notify.channel", string(channel)),
	)

	handler, ok := r.registry.Lookup(flowID, channel)
	if !ok {
		err := &FlowNotFoundError{FlowID: flowID, Channel: channel}
		span.SetStatus(codes.Error, "flow not found")
		r.metrics.ObserveFlowRun(flowID, string(channel), "not_found")
		r.logger.Warn("flow not found", "flow_id", flowID, "channel", channel)
		return Result{FlowID: flowID, Channel: channel}, err
	}
	if parameters == nil {
		parameters = map[string]string{}
	}

	result, err := handler.Process(ctx, phoneNumber, parameters)
	if result.FlowID == "" {
		result.FlowID = flowID
	}
	if result.Channel == "" {
		result.Channel = channel
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.ObserveFlowRun(flowID, string(channel), "error")
		r.logger.Error("flow handler failed", "flow_id", flowID, "channel", channel, "error", err)
		return result, err
	}
	r.metrics.ObserveFlowRun(flowID, string(channel), "ok")
	return result, nil
}
