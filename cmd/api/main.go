package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/appointment-notify/cmd/mainconfig"
	"github.com/wolfman30/appointment-notify/internal/api/router"
	"github.com/wolfman30/appointment-notify/internal/app/bootstrap"
	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/flows"
	"github.com/wolfman30/appointment-notify/internal/http/handlers"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	reconcileworker "github.com/wolfman30/appointment-notify/internal/worker/reconcile"
	resumeworker "github.com/wolfman30/appointment-notify/internal/worker/resume"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

func main() {
	mainconfig.LoadEnv(nil)
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment-notify API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	// In-memory resume jobs are only visible to this process.
	if app.worker != nil {
		app.worker.Start(ctx)
	}
	if app.reconciler != nil {
		go app.reconciler.Run(ctx)
	}
	app.inbound.Start(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	app.inbound.Wait()
	if app.worker != nil {
		app.worker.Wait()
	}
	logger.Info("server stopped")
}

type apiApp struct {
	handler    http.Handler
	inbound    *flows.Dispatcher
	queue      resumeworker.Queue
	worker     *resumeworker.Worker
	reconciler *reconcileworker.Reconciler
	pool       *pgxpool.Pool
	redis      *redis.Client
}

func (a *apiApp) close() {
	if mq, ok := a.queue.(*resumeworker.MemoryQueue); ok {
		mq.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func setupMetrics() (http.Handler, *metrics.CommunicationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewCommunicationMetrics(reg)
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*apiApp, error) {
	app := &apiApp{}
	metricsHandler, commMetrics := setupMetrics()

	var aws mainconfig.AWSClients
	if mainconfig.NeedsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		aws = mainconfig.NewAWSClients(awsCfg, cfg)
	}

	app.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.pool = pool

	var tenants tenancy.Resolver
	if aws.DynamoDB != nil {
		tenants, err = bootstrap.BuildTenantResolver(cfg, app.redis, aws.DynamoDB, logger)
	} else {
		tenants, err = bootstrap.BuildTenantResolver(cfg, app.redis, nil, logger)
	}
	if err != nil {
		app.close()
		return nil, err
	}

	gateways, _ := bootstrap.BuildGateways(cfg, logger)
	service := bootstrap.BuildCommunicationService(bootstrap.CommunicationDeps{
		Pool:     pool,
		Tenants:  tenants,
		Gateways: gateways,
		Metrics:  commMetrics,
		Logger:   logger,
	})
	flowRouter := bootstrap.BuildFlowRouter(service, commMetrics, logger)
	app.inbound = bootstrap.BuildInboundDispatcher(cfg, flowRouter, logger)

	queue, err := bootstrap.BuildResumeQueue(cfg, aws.SQS, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	app.queue = queue
	if cfg.UseMemoryQueue {
		app.worker = bootstrap.BuildResumeWorker(cfg, queue, tenants, commMetrics, logger)
		app.reconciler = bootstrap.BuildReconciler(cfg, service, logger)
	}

	webhooks := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Service:    service,
		Router:     flowRouter,
		Dispatcher: app.inbound,
		Resume:     resumeworker.NewPublisher(queue),
		Processed:  bootstrap.BuildDeduper(cfg, pool, app.redis, logger),
		Logger:     logger,
		Metrics:    commMetrics,
	})
	operator := handlers.NewOperatorHandler(service, flowRouter, flowRouter.Registry(), logger)
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; operator API disabled")
	}

	app.handler = router.New(&router.Config{
		Logger:             logger,
		Webhooks:           webhooks,
		Operator:           operator,
		Tenants:            tenants,
		Verifier:           bootstrap.SignatureVerifier(cfg, gateways),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		OperatorRateLimit:  cfg.OperatorRateLimit,
		OperatorRateBurst:  cfg.OperatorRateBurst,
	})
	return app, nil
}
