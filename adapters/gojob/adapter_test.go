package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMapping(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          JobIDHooks,
		Parameters:     map[string]any{"provider_id": "github", "action": "push"},
		IdempotencyKey: "evt-1",
		DedupPolicy:    "drop",
	}
	converted := ToExecutionMessage(original)
	if converted.JobID != JobIDHooks || converted.DedupPolicy != job.DeduplicationPolicy("drop") {
		t.Fatalf("unexpected go-job message %#v", converted)
	}
	back := FromExecutionMessage(converted)
	if back.IdempotencyKey != "evt-1" || back.Parameters["action"] != "push" {
		t.Fatalf("unexpected core message %#v", back)
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	raw := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDHooks}}
	adapter := NewDeliveryAdapter(raw, RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{Delay: 30 * time.Second, Requeue: true}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if raw.nackOpts.Delay != 10*time.Second || raw.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected bounded requeue, got %#v", raw.nackOpts)
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{Requeue: true}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if raw.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %#v", raw.nackOpts)
	}
}

func TestMemoryQueue_DeliversThroughAdapters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewMemoryQueue(4)
	defer q.Close()
	enqueuer := NewEnqueuerAdapter(q)
	dequeuer := NewDequeuerAdapter(q, DefaultRetryPolicy())

	if err := enqueuer.Enqueue(ctx, &core.JobExecutionMessage{JobID: JobIDHooks, IdempotencyKey: "evt-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if delivery.Message().IdempotencyKey != "evt-1" {
		t.Fatalf("unexpected message %#v", delivery.Message())
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after ack")
	}
}

func TestMemoryQueue_RequeuesUntilDeadLetter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewMemoryQueue(4)
	defer q.Close()
	dequeuer := NewDequeuerAdapter(q, RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true})
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{JobID: JobIDHooks}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue 1: %v", err)
	}
	if err := first.Nack(ctx, core.JobNackOptions{Requeue: true}); err != nil {
		t.Fatalf("nack 1: %v", err)
	}

	second, err := dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue 2: %v", err)
	}
	if err := second.Nack(ctx, core.JobNackOptions{Requeue: true}); err != nil {
		t.Fatalf("nack 2: %v", err)
	}
	if got := len(q.DeadLetters()); got != 1 {
		t.Fatalf("expected message to be dead-lettered on attempt 2, got %d", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expected nothing left to deliver")
	}
}

func TestMemoryQueue_RejectsWhenFullOrClosed(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{JobID: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{JobID: "b"}); err == nil {
		t.Fatalf("expected full queue error")
	}
	_ = q.Close()
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{JobID: "c"}); err == nil {
		t.Fatalf("expected closed queue error")
	}
}

func TestObserverHook_RecordsWorkerEvents(t *testing.T) {
	metrics := core.NewMemoryMetricsRecorder()
	hook := ObserverHook{Observer: core.Observer{Metrics: metrics}}
	event := worker.Event{
		Message:  &job.ExecutionMessage{JobID: JobIDHooks},
		Attempt:  2,
		Err:      errors.New("sink down"),
		Duration: 15 * time.Millisecond,
	}
	hook.OnSuccess(context.Background(), event)
	hook.OnRetry(context.Background(), event)

	if got := metrics.Count(core.MetricPrefix+".jobs.total", nil); got != 2 {
		t.Fatalf("expected two job events, got %d", got)
	}
	if got := metrics.Count(core.MetricPrefix+".jobs.total", map[string]string{"status": "retry", "job_id": JobIDHooks}); got != 1 {
		t.Fatalf("expected one retry event, got %d", got)
	}
}

func TestWorkerLifecycle_MapsOutcomesToHookEvents(t *testing.T) {
	metrics := core.NewMemoryMetricsRecorder()
	lifecycle := WorkerLifecycle{Hook: ObserverHook{Observer: core.Observer{Metrics: metrics}}}
	msg := &core.JobExecutionMessage{JobID: JobIDHooks}
	ctx := context.Background()

	lifecycle.DeliveryStarted(ctx, msg, 1, time.Now())
	lifecycle.DeliveryFinished(ctx, msg, inbound.DeliveryOutcome{Attempt: 1, Duration: time.Millisecond})
	lifecycle.DeliveryFinished(ctx, msg, inbound.DeliveryOutcome{Attempt: 2, Retry: true, Delay: time.Second, Err: errors.New("unknown provider")})
	lifecycle.DeliveryFinished(ctx, msg, inbound.DeliveryOutcome{Attempt: 1, Err: errors.New("bad message")})

	for _, status := range []string{"success", "retry", "failure"} {
		if got := metrics.Count(core.MetricPrefix+".jobs.total", map[string]string{"status": status, "job_id": JobIDHooks}); got != 1 {
			t.Fatalf("expected one %s event, got %d", status, got)
		}
	}
}

func TestDeliveryAdapter_AttemptFromQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewMemoryQueue(2)
	defer q.Close()
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{JobID: JobIDHooks}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	delivery, err := NewDequeuerAdapter(q, DefaultRetryPolicy()).Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	counter, ok := delivery.(interface{ Attempt() int })
	if !ok || counter.Attempt() != 1 {
		t.Fatalf("expected first attempt, got %#v", delivery)
	}
	if got := NewDeliveryAdapter(&stubQueueDelivery{}, DefaultRetryPolicy()).Attempt(); got != 1 {
		t.Fatalf("expected untracked deliveries to report attempt 1, got %d", got)
	}
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage { return s.msg }

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}
