package gojob

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/google/uuid"
)

const DefaultQueueCapacity = 1024

// MemoryQueue is an in-process go-job queue for detached hooks. Messages do
// not survive a restart.
type MemoryQueue struct {
	ready chan *memoryDelivery

	mu         sync.Mutex
	closed     bool
	deadLetter []*job.ExecutionMessage
	timers     map[*time.Timer]struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &MemoryQueue{
		ready:  make(chan *memoryDelivery, capacity),
		timers: map[*time.Timer]struct{}{},
	}
}

// Enqueue fails fast when the buffer is full rather than blocking the
// request path.
func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if msg == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: execution message is required")
	}
	if err := q.push(&memoryDelivery{queue: q, msg: msg, attempt: 1}); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return queue.EnqueueReceipt{DispatchID: uuid.NewString(), EnqueuedAt: time.Now()}, nil
}

func (q *MemoryQueue) push(delivery *memoryDelivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("gojob: queue is closed")
	}
	select {
	case q.ready <- delivery:
		return nil
	default:
		return fmt.Errorf("gojob: queue is full")
	}
}

// Dequeue blocks until a message is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-q.ready:
		if !ok {
			return nil, fmt.Errorf("gojob: queue is closed")
		}
		return delivery, nil
	}
}

func (q *MemoryQueue) requeue(delivery *memoryDelivery, delay time.Duration) {
	next := &memoryDelivery{queue: q, msg: delivery.msg, attempt: delivery.attempt + 1}
	if delay <= 0 {
		_ = q.push(next)
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		_ = q.push(next)
	})
	q.timers[timer] = struct{}{}
}

func (q *MemoryQueue) deadLettered(msg *job.ExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetter = append(q.deadLetter, msg)
}

// DeadLetters returns the messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetter...)
}

func (q *MemoryQueue) Len() int {
	return len(q.ready)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = nil
	close(q.ready)
	return nil
}

type memoryDelivery struct {
	queue   *MemoryQueue
	msg     *job.ExecutionMessage
	attempt int

	once sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Attempt() int {
	return d.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() {})
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() {
		switch opts.Disposition {
		case queue.NackDispositionDeadLetter:
			d.queue.deadLettered(d.msg)
		case queue.NackDispositionRetry:
			d.queue.requeue(d, opts.Delay)
		}
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
