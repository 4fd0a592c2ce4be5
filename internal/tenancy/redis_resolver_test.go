package tenancy

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisResolver(t *testing.T) (*RedisResolver, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisResolver(client), mr
}

func TestRedisResolverSaveAndResolve(t *testing.T) {
	resolver, mr := newRedisResolver(t)
	ctx := context.Background()

	err := resolver.Save(ctx, SubaccountConfig{
		Key:      "center-7",
		APIKey:   "k",
		Channels: Channels{WhatsAppFrom: "+15550001111"},
	})
	require.NoError(t, err)
	require.True(t, mr.Exists("tenant:config:center-7"))

	cfg, err := resolver.Resolve(ctx, "center-7")
	require.NoError(t, err)
	require.Equal(t, "+15550001111", cfg.Channels.WhatsAppFrom)
}

func TestRedisResolverMissingAndCorrupt(t *testing.T) {
	resolver, mr := newRedisResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "ghost")
	require.ErrorIs(t, err, ErrTenantNotFound)

	require.NoError(t, mr.Set("tenant:config:broken", "{"))
	_, err = resolver.Resolve(ctx, "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTenantNotFound)
}

func TestRedisResolverSaveValidates(t *testing.T) {
	resolver, _ := newRedisResolver(t)
	require.Error(t, resolver.Save(context.Background(), SubaccountConfig{}))
}
