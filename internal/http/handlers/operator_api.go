package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/flows"
	"github.com/wolfman30/appointment-notify/internal/http/middleware"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

const maxRequestBodyBytes = 64 << 10

type operatorService interface {
	SendText(ctx context.Context, req communication.TextRequest) (*communication.Message, error)
	SendTemplateMessage(ctx context.Context, req communication.TemplateRequest) (*communication.Message, error)
	InitiateCall(ctx context.Context, req communication.CallRequest) (*communication.Call, error)
	GetMessage(ctx context.Context, id string) (*communication.Message, error)
	GetCall(ctx context.Context, id string) (*communication.Call, error)
	MessagesForAppointment(ctx context.Context, appointmentID string) ([]*communication.Message, error)
	CallsForAppointment(ctx context.Context, appointmentID string) ([]*communication.Call, error)
}

type flowRunner interface {
	TriggerFlow(ctx context.Context, flowID string, channel communication.ChannelType, phoneNumber string, parameters map[string]string) (flows.Result, error)
}

type flowCatalog interface {
	Definitions() []flows.FlowDefinition
}

// OperatorHandler serves the JWT-protected operator API.
type OperatorHandler struct {
	service operatorService
	flows   flowRunner
	catalog flowCatalog
	logger  *logging.Logger
}

func NewOperatorHandler(service operatorService, runner flowRunner, catalog flowCatalog, logger *logging.Logger) *OperatorHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorHandler{service: service, flows: runner, catalog: catalog, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func (h *OperatorHandler) SendText(w http.ResponseWriter, r *http.Request) {
	var req communication.TextRequest
	tenantKey, ok := h.decodeTenantRequest(w, r, &req)
	if !ok {
		return
	}
	req.TenantKey = tenantKey
	msg, err := h.service.SendText(r.Context(), req)
	if err != nil {
		h.writeError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *OperatorHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	var req communication.TemplateRequest
	tenantKey, ok := h.decodeTenantRequest(w, r, &req)
	if !ok {
		return
	}
	req.TenantKey = tenantKey
	msg, err := h.service.SendTemplateMessage(r.Context(), req)
	if err != nil {
		h.writeError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message_id": msg.ID, "message": msg})
}

func (h *OperatorHandler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req communication.CallRequest
	tenantKey, ok := h.decodeTenantRequest(w, r, &req)
	if !ok {
		return
	}
	req.TenantKey = tenantKey
	call, err := h.service.InitiateCall(r.Context(), req)
	if err != nil {
		h.writeError(w, err, call)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *OperatorHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *OperatorHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.service.GetCall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *OperatorHandler) AppointmentMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.MessagesForAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if msgs == nil {
		msgs = []*communication.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *OperatorHandler) AppointmentCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.service.CallsForAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if calls == nil {
		calls = []*communication.Call{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (h *OperatorHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	defs := []flows.FlowDefinition{}
	if h.catalog != nil {
		defs = append(defs, h.catalog.Definitions()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": defs})
}

type triggerFlowRequest struct {
	Channel     communication.ChannelType `json:"channel"`
	PhoneNumber string                    `json:"phone_number"`
	Parameters  map[string]string         `json:"parameters"`
}

func (h *OperatorHandler) TriggerFlow(w http.ResponseWriter, r *http.Request) {
	if h.flows == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "flows not configured"})
		return
	}
	var req triggerFlowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	channel := req.Channel
	if channel == "" {
		channel = communication.ChannelWhatsApp
	}
	phone, err := communication.ValidateE164(req.PhoneNumber)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	result, err := h.flows.TriggerFlow(r.Context(), chi.URLParam(r, "flowId"), channel, phone, req.Parameters)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeTenantRequest checks the operator's tenant scope and decodes the body.
func (h *OperatorHandler) decodeTenantRequest(w http.ResponseWriter, r *http.Request, dst any) (string, bool) {
	tenantKey := strings.TrimSpace(chi.URLParam(r, "tenantKey"))
	if claims, ok := middleware.OperatorClaimsFromContext(r.Context()); ok && !claims.AllowsTenant(tenantKey) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "tenant not permitted"})
		return "", false
	}
	if !decodeBody(w, r, dst) {
		return "", false
	}
	return tenantKey, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

// writeError maps the error taxonomy onto HTTP statuses. data is echoed for
// provider failures, where the failed entity was still persisted.
func (h *OperatorHandler) writeError(w http.ResponseWriter, err error, data any) {
	var commErr *communication.CommunicationError
	switch {
	case errors.Is(err, communication.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, communication.ErrNotFound), errors.Is(err, tenancy.ErrTenantNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &commErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: commErr.Code, Data: data})
	default:
		h.logger.Error("operator request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
