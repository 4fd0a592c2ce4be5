package resumeworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/appointment-notify/internal/events"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// Queue is the transport for resume jobs. Send may delay visibility of the body.
type Queue interface {
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is a received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Publisher enqueues resume jobs.
type Publisher struct {
	queue Queue
}

func NewPublisher(queue Queue) *Publisher {
	if queue == nil {
		panic("resume: queue cannot be nil")
	}
	return &Publisher{queue: queue}
}

// EnqueueResume queues a resume notification for background delivery.
func (p *Publisher) EnqueueResume(ctx context.Context, evt events.FlowResumeRequestedV1) error {
	return p.Enqueue(ctx, NewJob(evt))
}

func (p *Publisher) Enqueue(ctx context.Context, job Job) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body, 0); err != nil {
		return fmt.Errorf("resume: enqueue: %w", err)
	}
	return nil
}

// ErrQueueClosed is returned by Send once the queue has been closed.
var ErrQueueClosed = errors.New("resume: queue closed")

// MemoryQueue is a Queue backed by an in-memory buffered channel.
type MemoryQueue struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
	logger    *logging.Logger
}

// MemoryQueueOption customizes a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithQueueLogger sets the logger used to report dropped delayed jobs.
func WithQueueLogger(logger *logging.Logger) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int, opts ...MemoryQueueOption) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	q := &MemoryQueue{
		ch:     make(chan Message, buffer),
		done:   make(chan struct{}),
		logger: logging.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Send enqueues a payload. Delayed sends are delivered from a timer goroutine
// that waits for buffer space until the queue is closed.
func (q *MemoryQueue) Send(ctx context.Context, body string, delay time.Duration) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	if delay > 0 {
		time.AfterFunc(delay, func() { q.deliverLater(msg) })
		return nil
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) deliverLater(msg Message) {
	select {
	case q.ch <- msg:
	case <-q.done:
		q.logger.Warn("resume queue closed; dropping delayed job", "message_id", msg.ID)
	}
}

// Close stops accepting jobs and releases pending delayed sends. Messages
// already buffered stay receivable.
func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		messages := []Message{msg}
		for len(messages) < maxMessages {
			select {
			case next := <-q.ch:
				messages = append(messages, next)
			default:
				return messages, nil
			}
		}
		return messages, nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(context.Context, string) error {
	return nil
}

// Len reports the number of immediately receivable messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
