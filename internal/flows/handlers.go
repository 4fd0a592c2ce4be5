package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// Replier is the slice of the communication service the built-in flows use.
type Replier interface {
	SendText(ctx context.Context, req communication.TextRequest) (*communication.Message, error)
	LatestMessageForPhone(ctx context.Context, phone string) (*communication.Message, error)
}

// replyHandler answers an inbound message with a fixed text in the context of the
// patient's latest appointment message.
type replyHandler struct {
	flowID  string
	channel communication.ChannelType
	name    string
	action  string
	reply   string
	steps   []Step
	replier Replier
	logger  *logging.Logger
}

func (h *replyHandler) FlowID() string                         { return h.flowID }
func (h *replyHandler) ChannelType() communication.ChannelType { return h.channel }

func (h *replyHandler) Definition() FlowDefinition {
	return FlowDefinition{
		ID:      h.flowID,
		Name:    h.name,
		Channel: h.channel,
		Steps:   append([]Step(nil), h.steps...),
		Active:  h.replier != nil,
	}
}

func (h *replyHandler) Process(ctx context.Context, phoneNumber string, parameters map[string]string) (Result, error) {
	result := Result{
		FlowID:  h.flowID,
		Channel: h.channel,
		Intent:  parameters[ParamIntent],
		Reply:   h.reply,
		Data:    map[string]string{"action": h.action},
	}
	if h.replier == nil {
		return result, errors.New("flows: replier not configured")
	}
	latest, err := h.replier.LatestMessageForPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, communication.ErrNotFound) {
			h.logger.Warn("no appointment context for inbound message", "flow_id", h.flowID, "phone", phoneNumber)
			return result, nil
		}
		return result, fmt.Errorf("flows: %s: load context: %w", h.flowID, err)
	}
	result.Data["appointment_id"] = latest.AppointmentID
	result.Data["patient_id"] = latest.PatientID

	sent, err := h.replier.SendText(ctx, communication.TextRequest{
		TenantKey:     latest.TenantKey,
		AppointmentID: latest.AppointmentID,
		PatientID:     latest.PatientID,
		PhoneNumber:   phoneNumber,
		Content:       h.reply,
		Channel:       h.channel,
	})
	if sent != nil {
		result.MessageID = sent.ID
	}
	if err != nil {
		return result, fmt.Errorf("flows: %s: reply: %w", h.flowID, err)
	}
	h.logger.Info("flow reply sent", "flow_id", h.flowID, "channel", h.channel, "appointment_id", latest.AppointmentID, "message_id", result.MessageID)
	return result, nil
}

func newReplyHandler(flowID string, channel communication.ChannelType, deps Deps, name, action, reply string) *replyHandler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &replyHandler{
		flowID:  flowID,
		channel: channel,
		name:    name,
		action:  action,
		reply:   reply,
		steps: []Step{
			{Name: "load_context", Description: "latest outbound message for the sender"},
			{Name: "reply", Description: "send the " + action + " acknowledgement"},
		},
		replier: deps.Replier,
		logger:  logger,
	}
}

func newConfirmHandler(flowID string, channel communication.ChannelType, deps Deps) Handler {
	return newReplyHandler(flowID, channel, deps, "Confirm appointment", "confirm",
		"Gracias. Su cita ha quedado confirmada.")
}

func newCancelHandler(flowID string, channel communication.ChannelType, deps Deps) Handler {
	return newReplyHandler(flowID, channel, deps, "Cancel appointment", "cancel",
		"Su cita ha sido cancelada. Si desea una nueva fecha responda REPROGRAMAR.")
}

func newRescheduleHandler(flowID string, channel communication.ChannelType, deps Deps) Handler {
	return newReplyHandler(flowID, channel, deps, "Reschedule appointment", "reschedule",
		"Entendido. El centro le contactará para acordar una nueva fecha.")
}

func newHelpHandler(flowID string, channel communication.ChannelType, deps Deps) Handler {
	return newReplyHandler(flowID, channel, deps, "Help", "help",
		"Responda CONFIRMAR para confirmar su cita, CANCELAR para anularla o REPROGRAMAR para cambiarla.")
}

func newDefaultHandler(flowID string, channel communication.ChannelType, deps Deps) Handler {
	return newReplyHandler(flowID, channel, deps, "Default conversation", "acknowledge",
		"Gracias por su mensaje. Responda AYUDA para ver las opciones disponibles.")
}
