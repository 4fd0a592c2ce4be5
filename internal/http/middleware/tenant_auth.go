package middleware

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

const maxWebhookBody = 1 << 20

// SignatureVerifier checks provider webhook signatures.
type SignatureVerifier interface {
	VerifyWebhookSignature(timestamp, signature string, payload []byte) error
}

// TenantAuth resolves the {tenantKey} route parameter and gates the request.
// Centers with an API key must send it in their configured header. Centers
// without one are accepted only when the Telnyx signature verifies.
func TenantAuth(resolver tenancy.Resolver, verifier SignatureVerifier, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantKey := strings.TrimSpace(chi.URLParam(r, "tenantKey"))
			if tenantKey == "" || resolver == nil {
				http.Error(w, "unknown tenant", http.StatusNotFound)
				return
			}
			cfg, err := resolver.Resolve(r.Context(), tenantKey)
			if err != nil {
				if errors.Is(err, tenancy.ErrTenantNotFound) {
					logger.Warn("webhook for unknown tenant", "tenant_key", tenantKey)
					http.Error(w, "unknown tenant", http.StatusNotFound)
					return
				}
				logger.Error("tenant resolution failed", "tenant_key", tenantKey, "error", err)
				http.Error(w, "tenant lookup failed", http.StatusServiceUnavailable)
				return
			}

			if cfg.APIKey != "" {
				got := r.Header.Get(cfg.Header())
				if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.APIKey)) != 1 {
					logger.Warn("webhook api key mismatch", "tenant_key", tenantKey)
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			} else {
				if verifier == nil {
					logger.Warn("webhook rejected: tenant has no credentials", "tenant_key", tenantKey)
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
				if err != nil {
					http.Error(w, "invalid body", http.StatusBadRequest)
					return
				}
				if err := verifier.VerifyWebhookSignature(r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body); err != nil {
					logger.Warn("webhook signature rejected", "tenant_key", tenantKey, "error", err)
					http.Error(w, "invalid signature", http.StatusUnauthorized)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			next.ServeHTTP(w, r.WithContext(tenancy.WithConfig(r.Context(), cfg)))
		})
	}
}
