package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

const (
	TenantSourceStatic   = "static"
	TenantSourceRedis    = "redis"
	TenantSourceDynamoDB = "dynamodb"
)

type dynamoTenantAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// BuildTenantResolver picks the center configuration source named by
// TENANT_SOURCE and puts a TTL cache in front of the remote ones.
func BuildTenantResolver(cfg *appconfig.Config, redisClient *redis.Client, dynamo dynamoTenantAPI, logger *logging.Logger) (tenancy.Resolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var resolver tenancy.Resolver
	switch cfg.TenantSource {
	case "", TenantSourceStatic:
		static, err := tenancy.ParseStaticResolver(cfg.TenantsJSON)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: tenants: %w", err)
		}
		logger.Info("tenant configuration loaded", "source", TenantSourceStatic)
		return static, nil
	case TenantSourceRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: tenant source redis requires REDIS_ADDR")
		}
		resolver = tenancy.NewRedisResolver(redisClient)
	case TenantSourceDynamoDB:
		if dynamo == nil {
			return nil, fmt.Errorf("bootstrap: tenant source dynamodb requires an AWS client")
		}
		resolver = tenancy.NewDynamoResolver(dynamo, cfg.TenantsTable)
	default:
		return nil, fmt.Errorf("bootstrap: unknown tenant source %q", cfg.TenantSource)
	}
	logger.Info("tenant configuration loaded", "source", cfg.TenantSource, "cache_ttl", cfg.TenantCacheTTL)
	if cfg.TenantCacheTTL <= 0 {
		return resolver, nil
	}
	return tenancy.NewCachingResolver(resolver, cfg.TenantCacheTTL), nil
}
