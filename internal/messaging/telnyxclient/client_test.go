package telnyxclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"
)

const sendMessageSuccess = `{"data":{"id":"msg_01J123ABC","type":"SMS","direction":"outbound","text":"hello patient","parts":1,
"from":{"phone_number":"+15553334444"},"to":[{"phone_number":"+15552223333","status":"queued"}]}}`

const webhookEvent = `{"data":{"event_type":"message.finalized","id":"evt_1","payload":{"id":"msg_01J123ABC"}}}`

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Bearer ") {
			t.Fatalf("missing auth header")
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), "\"text\"") {
			t.Fatalf("expected text field, got %s", string(body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(sendMessageSuccess))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	resp, err := client.SendMessage(context.Background(), SendMessageRequest{
		From: "+15553334444",
		To:   "+15552223333",
		Body: "hello patient",
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if resp.ID != "msg_01J123ABC" || resp.Status() != "queued" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestNewClientDefaultsAndValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected api key validation error")
	}
	client, err := New(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("expected default base url, got %s", client.baseURL)
	}
	if client.httpClient == nil || client.httpClient.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout")
	}
	if client.maxRetries != 0 {
		t.Fatalf("expected retries to default to 0")
	}
	if client.logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestSendWhatsAppTemplate(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/whatsapp" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Write([]byte(`{"data":{"id":"wa_1","to":[{"phone_number":"+34600111222","status":"queued"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	resp, err := client.SendWhatsAppTemplate(context.Background(), WhatsAppTemplateRequest{
		From:           "+34910000001",
		To:             "+34600111222",
		TemplateName:   "appointment_reminder",
		BodyParameters: []string{"Ana", "10:00"},
	})
	if err != nil {
		t.Fatalf("send template: %v", err)
	}
	if resp.ID != "wa_1" {
		t.Fatalf("unexpected id %s", resp.ID)
	}
	msg := captured["whatsapp_message"].(map[string]any)
	if msg["type"] != "template" {
		t.Fatalf("unexpected type %v", msg["type"])
	}
	tmpl := msg["template"].(map[string]any)
	if tmpl["name"] != "appointment_reminder" {
		t.Fatalf("unexpected template %v", tmpl["name"])
	}
	if lang := tmpl["language"].(map[string]any)["code"]; lang != "es" {
		t.Fatalf("expected default language es, got %v", lang)
	}
	params := tmpl["components"].([]any)[0].(map[string]any)["parameters"].([]any)
	if len(params) != 2 || params[1].(map[string]any)["text"] != "10:00" {
		t.Fatalf("unexpected parameters %v", params)
	}
}

func TestSendWhatsAppText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"type":"text"`) || !strings.Contains(string(body), `"body":"hola"`) {
			t.Fatalf("unexpected body %s", body)
		}
		w.Write([]byte(`{"data":{"id":"wa_2"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if _, err := client.SendWhatsAppText(context.Background(), WhatsAppTextRequest{}); err == nil {
		t.Fatalf("expected validation error")
	}
	resp, err := client.SendWhatsAppText(context.Background(), WhatsAppTextRequest{From: "+1", To: "+2", Body: "hola"})
	if err != nil || resp.ID != "wa_2" {
		t.Fatalf("send whatsapp text: %v %#v", err, resp)
	}
}

func TestDialAndGetCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calls":
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload["connection_id"] != "conn-1" {
				t.Fatalf("unexpected connection %v", payload["connection_id"])
			}
			state, _ := base64.StdEncoding.DecodeString(payload["client_state"].(string))
			if string(state) != `{"flow_id":"voice"}` {
				t.Fatalf("unexpected client state %s", state)
			}
			w.Write([]byte(`{"data":{"call_control_id":"v3:abc","call_leg_id":"leg","is_alive":true}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/calls/v3:abc":
			w.Write([]byte(`{"data":{"call_control_id":"v3:abc","is_alive":false,"call_duration":42}}`))
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if _, err := client.Dial(context.Background(), DialRequest{From: "+1", To: "+2"}); err == nil {
		t.Fatalf("expected connection id validation error")
	}
	call, err := client.Dial(context.Background(), DialRequest{
		ConnectionID: "conn-1",
		From:         "+34910000003",
		To:           "+34600111222",
		ClientState:  []byte(`{"flow_id":"voice"}`),
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if call.CallControlID != "v3:abc" || !call.IsAlive {
		t.Fatalf("unexpected call %#v", call)
	}
	status, err := client.GetCall(context.Background(), "v3:abc")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if status.IsAlive || status.CallDuration != 42 {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&calls, 1)
		if current == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"title":"server error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(sendMessageSuccess))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 2, Backoff: 5 * time.Millisecond})
	if _, err := client.SendMessage(context.Background(), SendMessageRequest{
		From: "+100",
		To:   "+200",
		Body: "retry",
	}); err != nil {
		t.Fatalf("send message after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestAPIErrorCode(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"code":"40310","title":"Invalid 'to' address","detail":"not a mobile number"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 2, Backoff: time.Millisecond})
	_, err := client.SendMessage(context.Background(), SendMessageRequest{From: "+1", To: "+2", Body: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.Code() != "40310" || apiErr.Retryable() {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls)
	}
	if !strings.Contains(apiErr.Error(), "40310") {
		t.Fatalf("error text should carry the code: %s", apiErr.Error())
	}
	if (&APIError{StatusCode: 503}).Code() != "503" {
		t.Fatalf("expected status fallback code")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(webhookEvent)
	secret := "topsecret"
	now := time.Now().UTC()
	ts := strconv.FormatInt(now.Unix(), 10)
	unsigned := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	signature := hex.EncodeToString(mac.Sum(nil))

	client := newTestClient(t, nil, Config{WebhookSecret: secret, MaxSkew: time.Hour})
	if err := client.VerifyWebhookSignature(ts, signature, payload); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	if err := client.VerifyWebhookSignature("100", signature, payload); err == nil {
		t.Fatalf("expected skew error")
	}
	if err := client.VerifyWebhookSignature(ts, signature, []byte(`{"tampered":true}`)); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if err := client.VerifyWebhookSignature(ts, "", payload); err == nil {
		t.Fatalf("expected missing signature error")
	}
}

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	if server != nil {
		cfg.BaseURL = server.URL
	}
	cfg.APIKey = "test"
	cfg.Timeout = 2 * time.Second
	cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
