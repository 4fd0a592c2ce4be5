package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/appointment-notify/internal/communication"
	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/internal/messaging"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	resumeworker "github.com/wolfman30/appointment-notify/internal/worker/resume"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

func TestBuildTenantResolverStatic(t *testing.T) {
	cfg := &appconfig.Config{
		TenantSource: TenantSourceStatic,
		TenantsJSON:  `[{"key":"center_one","api_key":"k-1","resume_url":"https://flows.example.com/resume"}]`,
	}
	resolver, err := BuildTenantResolver(cfg, nil, nil, logging.Discard())
	require.NoError(t, err)

	got, err := resolver.Resolve(context.Background(), "center_one")
	require.NoError(t, err)
	assert.Equal(t, "https://flows.example.com/resume", got.ResumeURL)

	_, err = resolver.Resolve(context.Background(), "center_two")
	assert.True(t, errors.Is(err, tenancy.ErrTenantNotFound))
}

func TestBuildTenantResolverRedisIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, tenancy.NewRedisResolver(client).Save(context.Background(), tenancy.SubaccountConfig{Key: "center_one", Name: "One"}))

	cfg := &appconfig.Config{TenantSource: TenantSourceRedis, TenantCacheTTL: time.Minute}
	resolver, err := BuildTenantResolver(cfg, client, nil, logging.Discard())
	require.NoError(t, err)
	_, ok := resolver.(*tenancy.CachingResolver)
	require.True(t, ok)

	got, err := resolver.Resolve(context.Background(), "center_one")
	require.NoError(t, err)
	assert.Equal(t, "One", got.Name)
}

func TestBuildTenantResolverErrors(t *testing.T) {
	cases := map[string]*appconfig.Config{
		"redis without client":  {TenantSource: TenantSourceRedis},
		"dynamo without client": {TenantSource: TenantSourceDynamoDB, TenantsTable: "tenants"},
		"unknown source":        {TenantSource: "consul"},
		"bad json":              {TenantSource: TenantSourceStatic, TenantsJSON: `{`},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildTenantResolver(cfg, nil, nil, logging.Discard())
			assert.Error(t, err)
		})
	}
}

func TestBuildPostgresPoolSkippedForMemoryStore(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{UseMemoryStore: true, DatabaseURL: "postgres://x"}, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, pool)

	_, err = BuildPostgresPool(context.Background(), nil, logging.Discard())
	assert.Error(t, err)
}

func TestBuildDeduper(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := BuildDeduper(&appconfig.Config{WebhookProcessedStoreRedis: true}, nil, client, logging.Discard())
	assert.IsType(t, &events.RedisProcessedStore{}, d)

	d = BuildDeduper(&appconfig.Config{}, nil, nil, logging.Discard())
	assert.IsType(t, &events.MemoryProcessedStore{}, d)
}

func TestBuildResumeQueue(t *testing.T) {
	q, err := BuildResumeQueue(&appconfig.Config{UseMemoryQueue: true}, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &resumeworker.MemoryQueue{}, q)

	_, err = BuildResumeQueue(&appconfig.Config{}, nil, logging.Discard())
	assert.Error(t, err)

	_, err = BuildResumeQueue(&appconfig.Config{ResumeQueueURL: "https://sqs.local/resume"}, nil, logging.Discard())
	assert.Error(t, err)
}

func TestBuildGatewaysWithoutCredentials(t *testing.T) {
	gateways, reason := BuildGateways(&appconfig.Config{SMSProvider: messaging.SMSProviderAuto}, logging.Discard())
	assert.Nil(t, gateways.Messages)
	assert.Nil(t, gateways.Calls)
	assert.NotEmpty(t, reason)
	assert.Nil(t, SignatureVerifier(&appconfig.Config{}, gateways))
}

func TestBuildCommunicationServiceInMemory(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, WorkerCount: 1, ResumeMaxAttempts: 2}
	tenants, err := tenancy.NewStaticResolver(tenancy.SubaccountConfig{Key: "center_one"})
	require.NoError(t, err)

	svc := BuildCommunicationService(CommunicationDeps{Tenants: tenants, Logger: logging.Discard()})
	_, err = svc.SendText(context.Background(), communication.TextRequest{
		TenantKey:     "center_one",
		AppointmentID: "apt_1",
		PatientID:     "pat_1",
		PhoneNumber:   "+34600111222",
		Content:       "hola",
	})
	assert.Error(t, err, "no message gateway is configured")

	router := BuildFlowRouter(svc, nil, logging.Discard())
	assert.Len(t, router.Registry().Definitions(), len(router.Registry().All()))
	assert.Nil(t, BuildReconciler(cfg, svc, logging.Discard()))

	q, err := BuildResumeQueue(cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, BuildResumeWorker(cfg, q, tenants, nil, logging.Discard()))
}

func TestTenantRepositoryRoutesOnlyWithResolver(t *testing.T) {
	var built []string
	build := func(cfg tenancy.SubaccountConfig) communication.Store {
		built = append(built, cfg.TableFor(tenancy.TableMessages))
		return communication.NewMemoryRepository()
	}

	_, plain := tenantRepository(nil, build).(*communication.MemoryRepository)
	assert.True(t, plain)

	tenants, err := tenancy.NewStaticResolver(tenancy.SubaccountConfig{Key: "center_one", DataSource: tenancy.DataSource{Schema: "c1"}})
	require.NoError(t, err)
	routed, ok := tenantRepository(tenants, build).(*communication.TenantRepository)
	require.True(t, ok)
	require.NoError(t, routed.CreateMessage(context.Background(), &communication.Message{ID: "m1", TenantKey: "center_one"}))
	assert.Equal(t, []string{"messages", "messages", "c1.messages"}, built)
}

func TestBuildInboundDispatcher(t *testing.T) {
	tenants, err := tenancy.NewStaticResolver()
	require.NoError(t, err)
	svc := BuildCommunicationService(CommunicationDeps{Tenants: tenants, Logger: logging.Discard()})
	router := BuildFlowRouter(svc, nil, logging.Discard())

	d := BuildInboundDispatcher(&appconfig.Config{InboundWorkers: 1, InboundQueueSize: 1}, router, logging.Discard())
	require.NoError(t, d.Submit(context.Background(), "+34600111222", "hola", nil))
	assert.Equal(t, 1, d.Pending())
	assert.Error(t, d.Submit(context.Background(), "+34600111222", "hola", nil))
}
