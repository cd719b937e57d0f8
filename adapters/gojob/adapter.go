package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const JobIDHooks = inbound.HookJobID

// RetryPolicy bounds how often a detached hook delivery is retried.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxDelay: time.Minute, DeadLetterOnMax: true}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// ToNackOptions maps the requeue/dead-letter flags onto a go-job
// disposition. Dead letter wins over requeue.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionFailed
	switch {
	case opts.DeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		disposition = queue.NackDispositionRetry
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

// attemptCounter is implemented by deliveries that know their attempt number.
type attemptCounter interface {
	Attempt() int
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

// Attempt is the underlying delivery's attempt number, or 1 when the
// backend does not track it.
func (d *DeliveryAdapter) Attempt() int {
	if d != nil {
		if counter, ok := d.delivery.(attemptCounter); ok {
			return counter.Attempt()
		}
	}
	return 1
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	attempt := 0
	if d != nil {
		if counter, ok := d.delivery.(attemptCounter); ok {
			attempt = counter.Attempt()
		}
	}
	return d.NackForAttempt(ctx, opts, attempt)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, ToNackOptions(d.policy.NormalizeAttempt(opts, attempt)))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, nil
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// ObserverHook reports go-job worker lifecycle events through a core.Observer.
type ObserverHook struct {
	Observer core.Observer
}

func (h ObserverHook) OnStart(context.Context, worker.Event) {}

func (h ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, "success", event)
}

func (h ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, "failure", event)
	h.Observer.Log(ctx, "error", "detached hook job failed", eventFields(event))
}

func (h ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, "retry", event)
	h.Observer.Log(ctx, "warn", "detached hook job retrying", eventFields(event))
}

func (h ObserverHook) record(ctx context.Context, status string, event worker.Event) {
	tags := map[string]string{"status": status, "job_id": jobIDOf(event)}
	h.Observer.Counter(ctx, core.MetricPrefix+".jobs.total", 1, tags)
	if event.Duration > 0 {
		h.Observer.Histogram(ctx, core.MetricPrefix+".jobs.duration_ms", float64(event.Duration.Milliseconds()), tags)
	}
}

// WorkerLifecycle reports hook worker deliveries to a go-job worker.Hook,
// so the detached hook runner emits the same events as a go-job worker.
type WorkerLifecycle struct {
	Hook worker.Hook
}

func (l WorkerLifecycle) DeliveryStarted(ctx context.Context, msg *core.JobExecutionMessage, attempt int, startedAt time.Time) {
	if l.Hook == nil {
		return
	}
	l.Hook.OnStart(ctx, worker.Event{Message: ToExecutionMessage(msg), Attempt: attempt, StartedAt: startedAt})
}

func (l WorkerLifecycle) DeliveryFinished(ctx context.Context, msg *core.JobExecutionMessage, outcome inbound.DeliveryOutcome) {
	if l.Hook == nil {
		return
	}
	event := worker.Event{
		Message:   ToExecutionMessage(msg),
		Attempt:   outcome.Attempt,
		Delay:     outcome.Delay,
		Err:       outcome.Err,
		StartedAt: outcome.StartedAt,
		Duration:  outcome.Duration,
	}
	switch {
	case outcome.Retry:
		l.Hook.OnRetry(ctx, event)
	case outcome.Err != nil:
		l.Hook.OnFailure(ctx, event)
	default:
		l.Hook.OnSuccess(ctx, event)
	}
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{"job_id": jobIDOf(event), "attempt": event.Attempt}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func jobIDOf(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return message.JobID
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = ObserverHook{}

	_ inbound.DeliveryLifecycle = WorkerLifecycle{}
)
