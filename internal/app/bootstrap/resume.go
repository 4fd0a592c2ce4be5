package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/appointment-notify/internal/communication"
	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/resume"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	reconcileworker "github.com/wolfman30/appointment-notify/internal/worker/reconcile"
	resumeworker "github.com/wolfman30/appointment-notify/internal/worker/resume"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildResumeQueue returns the SQS queue named by RESUME_QUEUE_URL, or an
// in-memory queue when USE_MEMORY_QUEUE is set. The in-memory queue only works
// when the API and the worker share a process.
func BuildResumeQueue(cfg *appconfig.Config, client *sqs.Client, logger *logging.Logger) (resumeworker.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue {
		logger.Info("resume queue", "backend", "memory")
		return resumeworker.NewMemoryQueue(memoryQueueBuffer, resumeworker.WithQueueLogger(logger)), nil
	}
	if strings.TrimSpace(cfg.ResumeQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: RESUME_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")
	}
	if client == nil {
		return nil, fmt.Errorf("bootstrap: sqs client is required")
	}
	logger.Info("resume queue", "backend", "sqs", "queue_url", cfg.ResumeQueueURL)
	return resumeworker.NewSQSQueue(client, cfg.ResumeQueueURL), nil
}

// BuildResumeWorker wires the webhook notifier behind the queue consumer.
func BuildResumeWorker(cfg *appconfig.Config, queue resumeworker.Queue, tenants tenancy.Resolver, m *metrics.CommunicationMetrics, logger *logging.Logger) *resumeworker.Worker {
	if logger == nil {
		logger = logging.Default()
	}
	notifier := resume.NewNotifier(resume.Config{
		Timeout: cfg.ResumeHTTPTimeout,
		Logger:  logger,
		Metrics: m,
	})
	return resumeworker.NewWorker(notifier, queue, tenants, logger,
		resumeworker.WithWorkerCount(cfg.WorkerCount),
		resumeworker.WithMaxAttempts(cfg.ResumeMaxAttempts),
		resumeworker.WithRetryBaseDelay(cfg.ResumeRetryBaseDelay),
		resumeworker.WithDefaultTarget(cfg.DefaultResumeURL, cfg.DefaultResumeToken),
		resumeworker.WithMetrics(m),
	)
}

// BuildReconciler returns nil when no voice provider is configured.
func BuildReconciler(cfg *appconfig.Config, service *communication.Service, logger *logging.Logger) *reconcileworker.Reconciler {
	gateway := service.CallGateway()
	if gateway == nil {
		return nil
	}
	return reconcileworker.NewReconciler(service, gateway, logger).
		WithInterval(cfg.ReconcileInterval).
		WithStaleAfter(cfg.ReconcileStaleAfter)
}
