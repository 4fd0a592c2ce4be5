package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/appointment-notify/cmd/mainconfig"
	"github.com/wolfman30/appointment-notify/internal/app/bootstrap"
	"github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// processor consumes one resume job body.
type processor interface {
	Process(ctx context.Context, body string) error
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	aws := mainconfig.NewAWSClients(awsCfg, cfg)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, false)
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
	worker := bootstrap.BuildResumeWorker(cfg, queue, tenants, metrics.NewCommunicationMetrics(nil), logger)

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, worker, logger, evt), nil
	})
}

// handle reports only the records that must be redelivered so the rest of the
// batch is deleted.
func handle(ctx context.Context, p processor, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	resp := events.SQSEventResponse{}
	for _, record := range evt.Records {
		if err := p.Process(ctx, record.Body); err != nil {
			logger.Warn("resume record failed", "message_id", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp
}
