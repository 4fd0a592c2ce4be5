package resume

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

var notifierTracer = otel.Tracer("notify.internal.resume")

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
	defaultTimeout     = 10 * time.Second
	maxBodyLog         = 2048
)

// Config controls how the Notifier behaves. Zero values take the defaults:
// 3 attempts, 1s apart, 10s per attempt.
type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
	Metrics     *metrics.CommunicationMetrics
}

// Notifier tells an external workflow engine to resume a paused flow.
type Notifier struct {
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	logger      *logging.Logger
	metrics     *metrics.CommunicationMetrics
}

func NewNotifier(cfg Config) *Notifier {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		retryDelay:  delay,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

type resumeBody struct {
	Action           string `json:"action"`
	ResumeKey        string `json:"resumeKey"`
	ResumeExtraInput any    `json:"resumeExtraInput"`
}

// Notify sends {"action":"resume"} to targetURL with a PATCH. Connection errors
// and 5xx answers are retried; a 4xx answer returns *RejectedError at once.
func (n *Notifier) Notify(ctx context.Context, targetURL, authToken, resumeKey string, payload any) error {
	if strings.TrimSpace(targetURL) == "" {
		return fmt.Errorf("%w: target url is required", ErrInvalidRequest)
	}
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return fmt.Errorf("%w: target url: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(resumeKey) == "" {
		return fmt.Errorf("%w: resume key is required", ErrInvalidRequest)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(resumeBody{Action: "resume", ResumeKey: resumeKey, ResumeExtraInput: payload})
	if err != nil {
		return fmt.Errorf("resume: marshal body: %w", err)
	}

	ctx, span := notifierTracer.Start(ctx, "resume.notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("notify.resume_key", resumeKey),
		attribute.String("notify.target", targetURL),
	)

	var (
		lastStatus int
		lastErr    error
	)
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		status, respBody, err := n.send(ctx, targetURL, authToken, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "context done")
				return ctx.Err()
			}
			lastStatus, lastErr = 0, err
			n.metrics.ObserveResumeAttempt("network_error")
			n.logger.Warn("resume attempt failed", "resume_key", resumeKey, "attempt", attempt, "error", err)
		case status >= 200 && status < 300:
			n.metrics.ObserveResumeAttempt("ok")
			n.logger.Info("resume delivered", "resume_key", resumeKey, "attempt", attempt, "status", status)
			return nil
		case status >= 500:
			lastStatus, lastErr = status, fmt.Errorf("resume: server error %d", status)
			n.metrics.ObserveResumeAttempt("server_error")
			n.logger.Warn("resume attempt failed", "resume_key", resumeKey, "attempt", attempt, "status", status, "body", respBody)
		default:
			n.metrics.ObserveResumeAttempt("rejected")
			n.logger.Error("resume rejected", "resume_key", resumeKey, "attempt", attempt, "status", status, "body", respBody)
			rejected := &RejectedError{StatusCode: status, Body: respBody}
			span.RecordError(rejected)
			span.SetStatus(codes.Error, "rejected")
			return rejected
		}
		if attempt < n.maxAttempts {
			if err := n.sleep(ctx); err != nil {
				return err
			}
		}
	}

	escalated := &TransientNetworkError{Attempts: n.maxAttempts, StatusCode: lastStatus, Err: lastErr}
	span.RecordError(escalated)
	span.SetStatus(codes.Error, "retries exhausted")
	n.logger.Error("resume retries exhausted", "resume_key", resumeKey, "attempts", n.maxAttempts, "status", lastStatus, "error", lastErr)
	return escalated
}

func (n *Notifier) send(ctx context.Context, targetURL, authToken string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, targetURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("resume: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(authToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))
	return resp.StatusCode, string(data), nil
}

func (n *Notifier) sleep(ctx context.Context) error {
	timer := time.NewTimer(n.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
