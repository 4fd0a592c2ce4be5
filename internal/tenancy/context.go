package tenancy

import "context"

type ctxKey string

const (
	tenantKeyCtx ctxKey = "notify.tenant_key"
	configCtx    ctxKey = "notify.tenant_config"
)

// WithTenantKey stores the tenant (center) key in context.
func WithTenantKey(ctx context.Context, tenantKey string) context.Context {
	return context.WithValue(ctx, tenantKeyCtx, tenantKey)
}

// TenantKeyFromContext extracts the tenant key if present.
func TenantKeyFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantKeyCtx)
	if val == nil {
		return "", false
	}
	key, ok := val.(string)
	return key, ok && key != ""
}

// WithConfig stores the resolved subaccount configuration in context.
// The tenant key is stored alongside it.
func WithConfig(ctx context.Context, cfg SubaccountConfig) context.Context {
	ctx = WithTenantKey(ctx, cfg.Key)
	return context.WithValue(ctx, configCtx, cfg)
}

// ConfigFromContext returns the subaccount configuration resolved for this request.
func ConfigFromContext(ctx context.Context) (SubaccountConfig, bool) {
	cfg, ok := ctx.Value(configCtx).(SubaccountConfig)
	return cfg, ok
}
