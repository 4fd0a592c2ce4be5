package telnyxclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

const (
	defaultBaseURL          = "https://api.telnyx.com/v2"
	defaultUserAgent        = "appointment-notify/0.1"
	defaultTemplateLanguage = "es"
)

// Config controls how the Telnyx client behaves.
type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	MaxSkew       time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
	UserAgent     string
}

// Client wraps the Telnyx messaging and Call Control endpoints.
type Client struct {
	apiKey        string
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	maxSkew       time.Duration
	logger        *slog.Logger
	userAgent     string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("telnyxclient: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	maxSkew := cfg.MaxSkew
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		maxSkew:       maxSkew,
		logger:        logger,
		userAgent:     userAgent,
	}, nil
}

// SendMessage triggers an SMS/MMS send request.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(struct {
		From               string   `json:"from,omitempty"`
		To                 string   `json:"to"`
		Text               string   `json:"text"`
		MediaURLs          []string `json:"media_urls,omitempty"`
		MessagingProfileID string   `json:"messaging_profile_id,omitempty"`
	}{
		From:               req.From,
		To:                 req.To,
		Text:               req.Body,
		MediaURLs:          req.MediaURLs,
		MessagingProfileID: req.MessagingProfileID,
	})
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/messages", nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[MessageResponse](data)
}

// SendWhatsAppText sends a free-form WhatsApp message inside the customer care window.
func (c *Client) SendWhatsAppText(ctx context.Context, req WhatsAppTextRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(whatsAppEnvelope{
		From:               req.From,
		To:                 req.To,
		MessagingProfileID: req.MessagingProfileID,
		WhatsAppMessage: whatsAppMessage{
			Type: "text",
			Text: &whatsAppText{Body: req.Body},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: marshal whatsapp body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/messages/whatsapp", nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[MessageResponse](data)
}

// SendWhatsAppTemplate sends a pre-approved WhatsApp template. Body parameters are
// passed positionally in the given order.
func (c *Client) SendWhatsAppTemplate(ctx context.Context, req WhatsAppTemplateRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = defaultTemplateLanguage
	}
	tmpl := &whatsAppTemplate{Name: req.TemplateName, Language: whatsAppLanguage{Code: language}}
	if len(req.BodyParameters) > 0 {
		params := make([]whatsAppParameter, 0, len(req.BodyParameters))
		for _, value := range req.BodyParameters {
			params = append(params, whatsAppParameter{Type: "text", Text: value})
		}
		tmpl.Components = []whatsAppComponent{{Type: "body", Parameters: params}}
	}
	body, err := json.Marshal(whatsAppEnvelope{
		From:               req.From,
		To:                 req.To,
		MessagingProfileID: req.MessagingProfileID,
		WhatsAppMessage:    whatsAppMessage{Type: "template", Template: tmpl},
	})
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: marshal whatsapp template: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/messages/whatsapp", nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[MessageResponse](data)
}

// Dial places an outbound Call Control call.
func (c *Client) Dial(ctx context.Context, req DialRequest) (*CallResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	payload := struct {
		ConnectionID string `json:"connection_id"`
		To           string `json:"to"`
		From         string `json:"from"`
		ClientState  string `json:"client_state,omitempty"`
		TimeoutSecs  int    `json:"timeout_secs,omitempty"`
	}{
		ConnectionID: req.ConnectionID,
		To:           req.To,
		From:         req.From,
		TimeoutSecs:  req.TimeoutSecs,
	}
	if len(req.ClientState) > 0 {
		payload.ClientState = base64.StdEncoding.EncodeToString(req.ClientState)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telnyxclient: marshal dial body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/calls", nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[CallResponse](data)
}

// GetCall fetches the live status of a call by its call control id.
func (c *Client) GetCall(ctx context.Context, callControlID string) (*CallResponse, error) {
	callControlID = strings.TrimSpace(callControlID)
	if callControlID == "" {
		return nil, errors.New("telnyxclient: call control id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, "/calls/"+url.PathEscape(callControlID), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[CallResponse](data)
}

// VerifyWebhookSignature validates Telnyx webhook signatures.
func (c *Client) VerifyWebhookSignature(timestamp, signature string, payload []byte) error {
	if c.webhookSecret == "" {
		return errors.New("telnyxclient: webhook secret not configured")
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("telnyxclient: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("telnyxclient: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := time.Since(sentAt); diff > c.maxSkew || diff < -c.maxSkew {
		return fmt.Errorf("telnyxclient: signature timestamp skew %s exceeds limit", diff)
	}
	unsigned := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(unsigned))
	expected := hex.EncodeToString(mac.Sum(nil))
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("telnyxclient: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("telnyxclient: signature mismatch")
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("telnyxclient: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			ct := contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("telnyxclient: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("telnyxclient: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("telnyxclient: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	trimmedPath := "/" + strings.TrimLeft(path, "/")
	full := c.baseURL + trimmedPath
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("telnyx retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 && status <= 599 {
		return true
	}
	return false
}

// APIError is a non-2xx answer from Telnyx.
type APIError struct {
	StatusCode int             `json:"-"`
	Type       string          `json:"type,omitempty"`
	Title      string          `json:"title,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Errors     []APIErrorEntry `json:"errors,omitempty"`
}

// APIErrorEntry is one element of the Telnyx errors array.
type APIErrorEntry struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Code returns the first provider error code, falling back to the HTTP status.
func (e *APIError) Code() string {
	for _, entry := range e.Errors {
		if entry.Code != "" {
			return entry.Code
		}
	}
	return strconv.Itoa(e.StatusCode)
}

// Retryable reports whether the failure is worth another attempt later.
func (e *APIError) Retryable() bool {
	return shouldRetry(e.StatusCode, nil)
}

func (e *APIError) Error() string {
	if e.Title == "" && e.Detail == "" && len(e.Errors) > 0 {
		first := e.Errors[0]
		return fmt.Sprintf("telnyxclient: %s %s (status=%d code=%s)", first.Title, first.Detail, e.StatusCode, first.Code)
	}
	if e.Title != "" {
		return fmt.Sprintf("telnyxclient: %s (status=%d)", e.Title, e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("telnyxclient: %s (status=%d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("telnyxclient: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Detail: string(body)}
	}
	parsed.StatusCode = status
	return &parsed
}

func decodeDataWrapper[T any](body []byte) (*T, error) {
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("telnyxclient: decode response: %w", err)
	}
	return &wrapper.Data, nil
}
