package bootstrap

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/appointment-notify/internal/communication"
	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/internal/flows"
	"github.com/wolfman30/appointment-notify/internal/messaging"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// CommunicationDeps are the collaborators of the communication service.
type CommunicationDeps struct {
	Pool     *pgxpool.Pool
	Tenants  tenancy.Resolver
	Gateways messaging.Gateways
	Metrics  *metrics.CommunicationMetrics
	Logger   *logging.Logger
}

// BuildCommunicationService wires repositories, gateways, and the event outbox.
// With a pool, records are routed to each center's own schema and tables.
// Without one the service runs on in-memory repositories and records no events.
func BuildCommunicationService(deps CommunicationDeps) *communication.Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	opts := []communication.Option{
		communication.WithLogger(logger),
		communication.WithMetrics(deps.Metrics),
	}
	if deps.Tenants != nil {
		opts = append(opts, communication.WithTenantResolver(deps.Tenants))
	}

	var (
		messages communication.MessageRepository
		calls    communication.CallRepository
	)
	if deps.Pool != nil {
		repo := tenantRepository(deps.Tenants, func(cfg tenancy.SubaccountConfig) communication.Store {
			return communication.NewPostgresRepository(deps.Pool, cfg)
		})
		messages, calls = repo, repo
		opts = append(opts, communication.WithEventRecorder(events.NewOutboxRecorder(deps.Pool)))
	} else {
		repo := communication.NewMemoryRepository()
		messages, calls = repo, repo
	}
	return communication.NewService(messages, calls, deps.Gateways.Messages, deps.Gateways.Calls, opts...)
}

// tenantRepository routes per center when centers can be resolved and otherwise
// uses the default tables only.
func tenantRepository(tenants tenancy.Resolver, build communication.StoreFactory) communication.Store {
	if tenants == nil {
		return build(tenancy.SubaccountConfig{})
	}
	return communication.NewTenantRepository(tenants, build)
}

// BuildDeduper picks the processed-event store for webhook de-duplication:
// Redis when requested and reachable, then Postgres, then process memory.
func BuildDeduper(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) events.Deduper {
	if logger == nil {
		logger = logging.Default()
	}
	ttl := 72 * time.Hour
	if cfg != nil && cfg.WebhookProcessedTTL > 0 {
		ttl = cfg.WebhookProcessedTTL
	}
	switch {
	case cfg != nil && cfg.WebhookProcessedStoreRedis && redisClient != nil:
		logger.Info("webhook dedupe store", "backend", "redis", "ttl", ttl)
		return events.NewRedisProcessedStore(redisClient, ttl)
	case pool != nil:
		logger.Info("webhook dedupe store", "backend", "postgres")
		return events.NewProcessedStore(pool)
	default:
		logger.Info("webhook dedupe store", "backend", "memory", "ttl", ttl)
		return events.NewMemoryProcessedStore(ttl)
	}
}

// BuildFlowRouter registers the built-in flows with the service as their replier.
func BuildFlowRouter(service *communication.Service, m *metrics.CommunicationMetrics, logger *logging.Logger) *flows.Router {
	if logger == nil {
		logger = logging.Default()
	}
	reg := flows.NewRegistry()
	n := flows.RegisterAll(reg, flows.DefaultFactories, flows.Deps{Replier: service, Logger: logger})
	logger.Info("flows registered", "count", n)
	return flows.NewRouter(reg, flows.WithRouterLogger(logger), flows.WithRouterMetrics(m))
}

// BuildInboundDispatcher sizes the worker pool that routes inbound messages
// off the webhook request.
func BuildInboundDispatcher(cfg *appconfig.Config, router *flows.Router, logger *logging.Logger) *flows.Dispatcher {
	opts := []flows.DispatcherOption{flows.WithDispatchLogger(logger)}
	if cfg != nil {
		opts = append(opts, flows.WithDispatchWorkers(cfg.InboundWorkers), flows.WithDispatchQueueSize(cfg.InboundQueueSize))
	}
	return flows.NewDispatcher(router, opts...)
}
