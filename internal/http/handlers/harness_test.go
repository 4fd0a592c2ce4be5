package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/internal/flows"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// sequenceGateway hands out ext_42, ext_43, ... for every accepted request.
type sequenceGateway struct {
	mu    sync.Mutex
	next  int
	texts []communication.OutboundText
	err   error
}

func (g *sequenceGateway) id() string {
	g.next++
	return fmt.Sprintf("ext_%d", 41+g.next)
}

func (g *sequenceGateway) SendText(_ context.Context, msg communication.OutboundText) (communication.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, msg)
	if g.err != nil {
		return communication.Receipt{}, g.err
	}
	return communication.Receipt{ExternalID: g.id()}, nil
}

func (g *sequenceGateway) SendTemplate(context.Context, communication.OutboundTemplate) (communication.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return communication.Receipt{}, g.err
	}
	return communication.Receipt{ExternalID: g.id()}, nil
}

func (g *sequenceGateway) PlaceCall(context.Context, communication.OutboundCall) (communication.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return communication.Receipt{}, g.err
	}
	return communication.Receipt{ExternalID: "v3:" + g.id()}, nil
}

func (g *sequenceGateway) GetCallStatus(context.Context, string) (communication.CallStatus, error) {
	return communication.CallStatusInitiated, nil
}

func (g *sequenceGateway) sentTexts() []communication.OutboundText {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]communication.OutboundText(nil), g.texts...)
}

type capturedResumes struct {
	mu   sync.Mutex
	evts []events.FlowResumeRequestedV1
	err  error
}

func (c *capturedResumes) EnqueueResume(_ context.Context, evt events.FlowResumeRequestedV1) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.evts = append(c.evts, evt)
	return nil
}

func (c *capturedResumes) all() []events.FlowResumeRequestedV1 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.FlowResumeRequestedV1(nil), c.evts...)
}

type harness struct {
	service  *communication.Service
	gateway  *sequenceGateway
	router   *flows.Router
	resumes  *capturedResumes
	deduper  *events.MemoryProcessedStore
	webhooks *WebhookHandler
	tenants  map[string]tenancy.SubaccountConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	one := tenancy.SubaccountConfig{Key: "center_one", Name: "Center One"}
	two := tenancy.SubaccountConfig{Key: "center_two", Name: "Center Two"}
	resolver, err := tenancy.NewStaticResolver(one, two)
	require.NoError(t, err)

	gw := &sequenceGateway{}
	repo := communication.NewMemoryRepository()
	svc := communication.NewService(repo, repo, gw, gw,
		communication.WithTenantResolver(resolver),
		communication.WithLogger(logging.Discard()),
	)
	reg := flows.NewRegistry()
	flows.RegisterAll(reg, flows.DefaultFactories, flows.Deps{Replier: svc, Logger: logging.Discard()})
	router := flows.NewRouter(reg, flows.WithRouterLogger(logging.Discard()))

	h := &harness{
		service: svc,
		gateway: gw,
		router:  router,
		resumes: &capturedResumes{},
		deduper: events.NewMemoryProcessedStore(time.Hour),
		tenants: map[string]tenancy.SubaccountConfig{one.Key: one, two.Key: two},
	}
	h.webhooks = NewWebhookHandler(WebhookConfig{
		Service:   svc,
		Router:    router,
		Resume:    h.resumes,
		Processed: h.deduper,
		Logger:    logging.Discard(),
	})
	return h
}

func (h *harness) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	return h.postAs(t, "center_one", body)
}

// postAs delivers body as the webhook of tenantKey, past the TenantAuth gate.
func (h *harness) postAs(t *testing.T, tenantKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	cfg, ok := h.tenants[tenantKey]
	require.True(t, ok, "unknown tenant %s", tenantKey)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+tenantKey+"/events", bytes.NewBufferString(body))
	req = req.WithContext(tenancy.WithConfig(req.Context(), cfg))
	rec := httptest.NewRecorder()
	h.webhooks.HandleEvents(rec, req)
	return rec
}
