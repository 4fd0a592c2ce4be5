package bootstrap

import (
	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	httpmiddleware "github.com/wolfman30/appointment-notify/internal/http/middleware"
	"github.com/wolfman30/appointment-notify/internal/messaging"
	"github.com/wolfman30/appointment-notify/internal/messaging/templates"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// BuildGateways selects the message and call providers from config.
func BuildGateways(cfg *appconfig.Config, logger *logging.Logger) (messaging.Gateways, string) {
	if cfg == nil {
		return messaging.Gateways{}, "missing config"
	}
	if logger == nil {
		logger = logging.Default()
	}
	gateways, reason := messaging.BuildGateways(messaging.ProviderSelectionConfig{
		Preference:         cfg.SMSProvider,
		TelnyxAPIKey:       cfg.TelnyxAPIKey,
		TelnyxProfileID:    cfg.TelnyxMessagingProfileID,
		TelnyxConnectionID: cfg.TelnyxVoiceConnectionID,
		TelnyxFromNumber:   cfg.TelnyxFromNumber,
		TelnyxWhatsApp:     cfg.TelnyxWhatsAppNumber,
		TelnyxWebhookKey:   cfg.TelnyxWebhookSecret,
		TelnyxMaxRetries:   cfg.TelnyxRetryMaxAttempts,
		TwilioAccountSID:   cfg.TwilioAccountSID,
		TwilioAuthToken:    cfg.TwilioAuthToken,
		TwilioFromNumber:   cfg.TwilioFromNumber,
		Templates:          templates.DefaultCatalog(),
	}, logger)
	if gateways.Messages == nil {
		logger.Warn("no message provider configured", "reason", reason)
	} else {
		logger.Info("message provider selected", "provider", gateways.Provider)
	}
	if gateways.Calls == nil {
		logger.Warn("no voice provider configured; calls will be rejected")
	}
	return gateways, reason
}

// SignatureVerifier returns the Telnyx webhook verifier, or nil when Telnyx is
// not configured or has no webhook secret.
func SignatureVerifier(cfg *appconfig.Config, gateways messaging.Gateways) httpmiddleware.SignatureVerifier {
	if gateways.Telnyx == nil || cfg == nil || cfg.TelnyxWebhookSecret == "" {
		return nil
	}
	return gateways.Telnyx
}
