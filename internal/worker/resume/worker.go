package resumeworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/appointment-notify/internal/observability/metrics"
	"github.com/wolfman30/appointment-notify/internal/resume"
	"github.com/wolfman30/appointment-notify/internal/tenancy"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// Notifier delivers one resume instruction, retrying transient failures internally.
type Notifier interface {
	Notify(ctx context.Context, targetURL, authToken, resumeKey string, payload any) error
}

const (
	defaultWorkerCount    = 2
	defaultWaitSeconds    = 10
	defaultBatchSize      = 5
	maxWaitSeconds        = 20
	maxReceiveBatchSize   = 10
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 30 * time.Second
	deleteTimeout         = 5 * time.Second
)

// Job outcomes reported to metrics and logs.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRequeued  = "requeued"
	OutcomeRejected  = "rejected"
	OutcomeDropped   = "dropped"
)

// ErrNoTarget marks jobs whose tenant has no resume URL and no default is configured.
var ErrNoTarget = errors.New("resume: no resume target configured")

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
	baseDelay        time.Duration
	defaultURL       string
	defaultToken     string
	metrics          *metrics.CommunicationMetrics
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			seconds = 0
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts bounds how many deliveries a job gets before it is dropped.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay sets the first requeue delay; later ones double.
func WithRetryBaseDelay(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.baseDelay = d
		}
	}
}

// WithDefaultTarget is used for tenants without their own resume URL.
func WithDefaultTarget(url, token string) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.defaultURL = strings.TrimSpace(url)
		cfg.defaultToken = token
	}
}

func WithMetrics(m *metrics.CommunicationMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// Worker consumes resume jobs and delivers them through the notifier. Transient
// failures go back on the queue with exponential delay.
type Worker struct {
	notifier Notifier
	queue    Queue
	tenants  tenancy.Resolver
	logger   *logging.Logger
	cfg      workerConfig
	wg       sync.WaitGroup
}

func NewWorker(notifier Notifier, queue Queue, tenants tenancy.Resolver, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if notifier == nil {
		panic("resume: notifier cannot be nil")
	}
	if queue == nil {
		panic("resume: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
		baseDelay:        defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		notifier: notifier,
		queue:    queue,
		tenants:  tenants,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("resume worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("resume worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive resume jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			if err := w.Process(ctx, msg.Body); err != nil {
				w.logger.Error("resume job left for redelivery", "error", err, "message_id", msg.ID)
				continue
			}
			w.deleteMessage(msg.ReceiptHandle)
		}
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete resume job", "error", err)
	}
}

// Process handles one queue body. A nil return means the message is done with
// and may be deleted; an error asks the transport to redeliver it.
func (w *Worker) Process(ctx context.Context, body string) error {
	job, err := decodeJob(body)
	if err != nil {
		w.logger.Error("dropping undecodable resume job", "error", err)
		w.cfg.metrics.ObserveResumeJob(OutcomeDropped)
		return nil
	}

	outcome, err := w.HandleJob(ctx, job)
	w.cfg.metrics.ObserveResumeJob(outcome)
	logger := w.logger.With("job_id", job.ID, "tenant_key", job.TenantKey, "call_id", job.CallID, "attempt", job.Attempt+1)
	switch outcome {
	case OutcomeSucceeded:
		logger.Info("flow resumed")
		return nil
	case OutcomeRejected:
		logger.Warn("resume rejected by workflow engine", "error", err)
		return nil
	case OutcomeDropped:
		logger.Error("resume job dropped", "error", err)
		return nil
	}

	job.Attempt++
	delay := w.nextDelay(job.Attempt)
	requeued, encodeErr := encodeJob(job)
	if encodeErr != nil {
		logger.Error("resume job dropped", "error", encodeErr)
		return nil
	}
	if sendErr := w.queue.Send(ctx, requeued, delay); sendErr != nil {
		return fmt.Errorf("resume: requeue job %s: %w", job.ID, sendErr)
	}
	logger.Warn("resume job requeued", "error", err, "delay", delay.String())
	return nil
}

// HandleJob delivers one job and classifies the result.
func (w *Worker) HandleJob(ctx context.Context, job Job) (string, error) {
	targetURL, token, err := w.target(ctx, job.TenantKey)
	if err != nil {
		return OutcomeDropped, err
	}

	err = w.notifier.Notify(ctx, targetURL, token, job.ResumeKey, job.Payload)
	switch {
	case err == nil:
		return OutcomeSucceeded, nil
	case errors.Is(err, resume.ErrInvalidRequest):
		return OutcomeDropped, err
	case isRejected(err):
		return OutcomeRejected, err
	case job.Attempt+1 >= w.cfg.maxAttempts:
		return OutcomeDropped, fmt.Errorf("resume: giving up after %d deliveries: %w", job.Attempt+1, err)
	default:
		return OutcomeRequeued, err
	}
}

func (w *Worker) target(ctx context.Context, tenantKey string) (string, string, error) {
	url, token := w.cfg.defaultURL, w.cfg.defaultToken
	if tenantKey != "" && w.tenants != nil {
		cfg, err := w.tenants.Resolve(ctx, tenantKey)
		if err != nil {
			return "", "", fmt.Errorf("resume: resolve tenant: %w", err)
		}
		if strings.TrimSpace(cfg.ResumeURL) != "" {
			url, token = cfg.ResumeURL, cfg.ResumeToken
		}
	}
	if url == "" {
		return "", "", ErrNoTarget
	}
	return url, token, nil
}

func (w *Worker) nextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := w.cfg.baseDelay * time.Duration(1<<(attempt-1))
	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}
	return delay
}

func isRejected(err error) bool {
	var rejected *resume.RejectedError
	return errors.As(err, &rejected)
}
