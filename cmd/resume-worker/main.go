package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfman30/appointment-notify/cmd/mainconfig"
	"github.com/wolfman30/appointment-notify/internal/app/bootstrap"
	"github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

func main() {
	mainconfig.LoadEnv(nil)
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.UseMemoryQueue {
		logger.Error("resume worker needs RESUME_QUEUE_URL; the memory queue runs inside the API process")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	aws := mainconfig.NewAWSClients(awsCfg, cfg)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var tenants tenancy.Resolver
	if cfg.TenantSource == bootstrap.TenantSourceDynamoDB {
		tenants, err = bootstrap.BuildTenantResolver(cfg, redisClient, aws.DynamoDB, logger)
	} else {
		tenants, err = bootstrap.BuildTenantResolver(cfg, redisClient, nil, logger)
	}
	if err != nil {
		logger.Error("failed to load tenants", "error", err)
		os.Exit(1)
	}

	queue, err := bootstrap.BuildResumeQueue(cfg, aws.SQS, logger)
	if err != nil {
		logger.Error("failed to build resume queue", "error", err)
		os.Exit(1)
	}
	commMetrics := metrics.NewCommunicationMetrics(nil)
	worker := bootstrap.BuildResumeWorker(cfg, queue, tenants, commMetrics, logger)
	worker.Start(ctx)

	// Stale call reconciliation needs the call store and a voice provider.
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		gateways, _ := bootstrap.BuildGateways(cfg, logger)
		service := bootstrap.BuildCommunicationService(bootstrap.CommunicationDeps{
			Pool:     pool,
			Tenants:  tenants,
			Gateways: gateways,
			Metrics:  commMetrics,
			Logger:   logger,
		})
		if reconciler := bootstrap.BuildReconciler(cfg, service, logger); reconciler != nil {
			go reconciler.Run(ctx)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("resume worker shutting down")
	cancel()
	worker.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
