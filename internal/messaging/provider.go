package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/appointment-notify/internal/communication"
	"github.com/wolfman30/appointment-notify/internal/messaging/telnyxclient"
	"github.com/wolfman30/appointment-notify/internal/messaging/templates"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

const (
	// SMSProviderAuto tries Telnyx first, then Twilio.
	SMSProviderAuto = "auto"
	// SMSProviderTelnyx forces the Telnyx gateway when credentials exist.
	SMSProviderTelnyx = "telnyx"
	// SMSProviderTwilio forces the Twilio gateway when credentials exist.
	SMSProviderTwilio = "twilio"
)

// ProviderSelectionConfig captures the credentials required to build gateways.
type ProviderSelectionConfig struct {
	Preference         string
	TelnyxAPIKey       string
	TelnyxProfileID    string
	TelnyxConnectionID string
	TelnyxFromNumber   string
	TelnyxWhatsApp     string
	TelnyxWebhookKey   string
	TelnyxMaxRetries   int
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	Templates          *templates.Catalog
}

// Gateways is the result of provider selection. Calls is nil when Telnyx is
// not configured; Twilio carries messages only.
type Gateways struct {
	Messages communication.MessageGateway
	Calls    communication.CallGateway
	Telnyx   *telnyxclient.Client
	Provider string
}

// BuildGateways instantiates the message and call gateways for the preferred
// provider. It returns a reason when no message provider could be initialized.
func BuildGateways(cfg ProviderSelectionConfig, logger *logging.Logger) (Gateways, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}
	if cfg.Templates == nil {
		cfg.Templates = templates.DefaultCatalog()
	}

	missing := map[string]string{}
	var out Gateways
	var telnyxGateway, twilioGateway communication.MessageGateway

	if cfg.TelnyxAPIKey != "" && (cfg.TelnyxProfileID != "" || cfg.TelnyxFromNumber != "") {
		client, err := telnyxclient.New(telnyxclient.Config{
			APIKey:        cfg.TelnyxAPIKey,
			WebhookSecret: cfg.TelnyxWebhookKey,
			MaxRetries:    cfg.TelnyxMaxRetries,
			Logger:        logger.Logger,
		})
		if err != nil {
			missing[SMSProviderTelnyx] = err.Error()
		} else {
			gw := NewTelnyxGateway(TelnyxGatewayConfig{
				Client:             client,
				FromNumber:         cfg.TelnyxFromNumber,
				WhatsAppNumber:     cfg.TelnyxWhatsApp,
				MessagingProfileID: cfg.TelnyxProfileID,
				ConnectionID:       cfg.TelnyxConnectionID,
				Templates:          cfg.Templates,
				Logger:             logger,
			})
			telnyxGateway = gw
			out.Calls = gw
			out.Telnyx = client
		}
	} else {
		var reasons []string
		if cfg.TelnyxAPIKey == "" {
			reasons = append(reasons, "TELNYX_API_KEY missing")
		}
		if cfg.TelnyxProfileID == "" && cfg.TelnyxFromNumber == "" {
			reasons = append(reasons, "TELNYX_MESSAGING_PROFILE_ID or TELNYX_FROM_NUMBER missing")
		}
		missing[SMSProviderTelnyx] = strings.Join(reasons, ", ")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioGateway = NewTwilioGateway(TwilioGatewayConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			Templates:  cfg.Templates,
			Logger:     logger,
		})
	} else {
		var reasons []string
		if cfg.TwilioAccountSID == "" {
			reasons = append(reasons, "TWILIO_ACCOUNT_SID missing")
		}
		if cfg.TwilioAuthToken == "" {
			reasons = append(reasons, "TWILIO_AUTH_TOKEN missing")
		}
		missing[SMSProviderTwilio] = strings.Join(reasons, ", ")
	}

	if preference != SMSProviderAuto {
		if preference == SMSProviderTelnyx && telnyxGateway != nil {
			out.Messages, out.Provider = telnyxGateway, SMSProviderTelnyx
			return out, ""
		}
		if preference == SMSProviderTwilio && twilioGateway != nil {
			out.Messages, out.Provider = twilioGateway, SMSProviderTwilio
			return out, ""
		}
		reason := missing[preference]
		if reason == "" {
			reason = fmt.Sprintf("%s gateway not configured", preference)
		}
		return out, reason
	}

	switch {
	case telnyxGateway != nil && twilioGateway != nil:
		out.Messages = NewFailoverGateway(telnyxGateway, SMSProviderTelnyx, twilioGateway, SMSProviderTwilio, logger)
		out.Provider = SMSProviderTelnyx + "+" + SMSProviderTwilio
		return out, ""
	case telnyxGateway != nil:
		out.Messages, out.Provider = telnyxGateway, SMSProviderTelnyx
		return out, ""
	case twilioGateway != nil:
		out.Messages, out.Provider = twilioGateway, SMSProviderTwilio
		return out, ""
	}

	var reasons []string
	for _, provider := range []string{SMSProviderTelnyx, SMSProviderTwilio} {
		if msg := missing[provider]; msg != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", provider, msg))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no message providers configured")
	}
	return out, strings.Join(reasons, "; ")
}
