package flows

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/appointment-notify/pkg/logging"
)

const (
	defaultDispatchWorkers   = 4
	defaultDispatchQueueSize = 64
	defaultDispatchTimeout   = 30 * time.Second
)

// ErrDispatchQueueFull is returned by Submit when the queue is at capacity.
var ErrDispatchQueueFull = errors.New("flows: dispatch queue full")

type messageRouter interface {
	RouteInboundMessage(ctx context.Context, fromPhone, text string, rawPayload json.RawMessage) (Result, error)
}

type inboundJob struct {
	ctx  context.Context
	from string
	text string
	raw  json.RawMessage
}

// Dispatcher routes inbound messages on a fixed pool of goroutines so webhook
// requests do not wait on flow handlers and their gateway calls.
type Dispatcher struct {
	router  messageRouter
	logger  *logging.Logger
	workers int
	timeout time.Duration
	jobs    chan inboundJob
	wg      sync.WaitGroup
}

// DispatcherOption customizes the Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatchWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithDispatchQueueSize bounds how many messages may wait for a worker.
func WithDispatchQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.jobs = make(chan inboundJob, n)
		}
	}
}

// WithDispatchTimeout bounds a single routed message.
func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithDispatchLogger(logger *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(router messageRouter, opts ...DispatcherOption) *Dispatcher {
	if router == nil {
		panic("flows: router required")
	}
	d := &Dispatcher{
		router:  router,
		logger:  logging.Default(),
		workers: defaultDispatchWorkers,
		timeout: defaultDispatchTimeout,
		jobs:    make(chan inboundJob, defaultDispatchQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Submit queues a message for routing without blocking. The job keeps ctx's
// values (tenant, trace) but not its cancellation.
func (d *Dispatcher) Submit(ctx context.Context, fromPhone, text string, rawPayload json.RawMessage) error {
	job := inboundJob{
		ctx:  context.WithoutCancel(ctx),
		from: fromPhone,
		text: text,
		raw:  append(json.RawMessage(nil), rawPayload...),
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrDispatchQueueFull
	}
}

// Start launches the workers; they exit once ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx, i+1)
	}
}

// Wait blocks until all workers exit.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Pending reports how many messages are waiting for a worker.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}

func (d *Dispatcher) run(ctx context.Context, workerID int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			if n := len(d.jobs); n > 0 {
				d.logger.Warn("flow dispatcher stopping with queued messages", "worker_id", workerID, "queued", n)
			}
			return
		case job := <-d.jobs:
			d.handle(job)
		}
	}
}

func (d *Dispatcher) handle(job inboundJob) {
	ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()
	res, err := d.router.RouteInboundMessage(ctx, job.from, job.text, job.raw)
	if err != nil {
		d.logger.Error("inbound message routing failed", "flow_id", res.FlowID, "error", err)
		return
	}
	d.logger.Debug("inbound message routed", "flow_id", res.FlowID, "intent", res.Intent)
}
