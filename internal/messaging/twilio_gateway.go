package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/messaging/templates"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

var twilioTracer = otel.Tracer("notify.internal.messaging.twilio")

const (
	twilioBaseURL     = "https://api.twilio.com/2010-04-01"
	twilioMaxAttempts = 3
	whatsAppPrefix    = "whatsapp:"
)

// TwilioGatewayConfig configures the Twilio REST sender.
type TwilioGatewayConfig struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	WhatsAppNumber string
	BaseURL        string
	HTTPClient     *http.Client
	Templates      *templates.Catalog
	Logger         *logging.Logger
}

// TwilioGateway posts SMS and WhatsApp messages using Twilio's Messages API.
// Templates are rendered locally from the catalog.
type TwilioGateway struct {
	accountSID   string
	authToken    string
	from         string
	whatsAppFrom string
	baseURL      string
	httpClient   *http.Client
	templates    *templates.Catalog
	logger       *logging.Logger
	retryDelay   func(attempt int) time.Duration
}

var _ communication.MessageGateway = (*TwilioGateway)(nil)

func NewTwilioGateway(cfg TwilioGatewayConfig) *TwilioGateway {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Templates == nil {
		cfg.Templates = templates.DefaultCatalog()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = twilioBaseURL
	}
	return &TwilioGateway{
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		from:         cfg.FromNumber,
		whatsAppFrom: cfg.WhatsAppNumber,
		baseURL:      baseURL,
		httpClient:   cfg.HTTPClient,
		templates:    cfg.Templates,
		logger:       cfg.Logger,
		retryDelay: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
}

func (g *TwilioGateway) SendText(ctx context.Context, msg communication.OutboundText) (communication.Receipt, error) {
	return g.send(ctx, msg.Channel, msg.Sender.From, msg.To, msg.Body)
}

func (g *TwilioGateway) SendTemplate(ctx context.Context, msg communication.OutboundTemplate) (communication.Receipt, error) {
	body, err := g.templates.Render(msg.TemplateName, msg.Params)
	if err != nil {
		return communication.Receipt{}, templateError(err)
	}
	return g.send(ctx, msg.Channel, msg.Sender.From, msg.To, body)
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (g *TwilioGateway) send(ctx context.Context, channel communication.ChannelType, from, to, body string) (communication.Receipt, error) {
	if g.accountSID == "" || g.authToken == "" {
		return communication.Receipt{}, &communication.CommunicationError{Code: "provider_unavailable", Err: errors.New("messaging: twilio credentials missing")}
	}
	switch channel {
	case communication.ChannelSMS:
		from = firstNonEmpty(from, g.from)
	case communication.ChannelWhatsApp:
		from = firstNonEmpty(from, g.whatsAppFrom, g.from)
		from = whatsAppAddress(from)
		to = whatsAppAddress(to)
	default:
		return communication.Receipt{}, unsupportedChannel(channel)
	}
	if from == "" || from == whatsAppPrefix {
		return communication.Receipt{}, &communication.CommunicationError{Code: "provider_unavailable", Err: errors.New("messaging: twilio from number missing")}
	}

	ctx, span := twilioTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("notify.channel", string(channel)))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", body)
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", g.baseURL, g.accountSID)

	var lastErr error
	for attempt := 1; attempt <= twilioMaxAttempts; attempt++ {
		receipt, retry, err := g.post(ctx, endpoint, payload)
		if err == nil {
			g.logger.Info("twilio message sent", "channel", channel, "external_message_id", receipt.ExternalID)
			return receipt, nil
		}
		lastErr = err
		if !retry || attempt == twilioMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = twilioMaxAttempts
		case <-time.After(g.retryDelay(attempt)):
		}
	}
	span.RecordError(lastErr)
	var commErr *communication.CommunicationError
	if errors.As(lastErr, &commErr) {
		return communication.Receipt{}, commErr
	}
	return communication.Receipt{}, &communication.CommunicationError{Code: "provider_unavailable", Err: lastErr}
}

// post performs one request and reports whether a failure may be retried.
func (g *TwilioGateway) post(ctx context.Context, endpoint string, payload url.Values) (communication.Receipt, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return communication.Receipt{}, false, err
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return communication.Receipt{}, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed twilioMessage
		if err := json.Unmarshal(body, &parsed); err != nil {
			return communication.Receipt{}, false, fmt.Errorf("messaging: decode twilio response: %w", err)
		}
		return communication.Receipt{ExternalID: parsed.SID, Raw: json.RawMessage(body)}, false, nil
	}

	code := strconv.Itoa(resp.StatusCode)
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Code != 0 {
		code = strconv.Itoa(parsed.Code)
	}
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return communication.Receipt{}, retry, &communication.CommunicationError{
		Code: code,
		Err:  fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, body)),
	}
}

func formatTwilioError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}
