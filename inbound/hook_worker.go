package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
)

const defaultWorkerIdle = 250 * time.Millisecond

// DeliveryOutcome describes how one hook delivery ended. Retry is set when
// the delivery was requeued.
type DeliveryOutcome struct {
	Attempt   int
	StartedAt time.Time
	Duration  time.Duration
	Retry     bool
	Delay     time.Duration
	Err       error
}

// DeliveryLifecycle is notified around every processed hook delivery.
type DeliveryLifecycle interface {
	DeliveryStarted(ctx context.Context, msg *core.JobExecutionMessage, attempt int, startedAt time.Time)
	DeliveryFinished(ctx context.Context, msg *core.JobExecutionMessage, outcome DeliveryOutcome)
}

// HookWorker drains detached hook messages and runs the hooks registered on
// the matching provider handler.
type HookWorker struct {
	Registry   *core.ProviderRegistry
	Dequeuer   core.JobDequeuer
	Observer   core.Observer
	Lifecycle  DeliveryLifecycle
	Idle       time.Duration
	RetryDelay time.Duration
}

func NewHookWorker(registry *core.ProviderRegistry, dequeuer core.JobDequeuer, observer core.Observer) *HookWorker {
	return &HookWorker{Registry: registry, Dequeuer: dequeuer, Observer: observer}
}

// Run processes deliveries until ctx is cancelled.
func (w *HookWorker) Run(ctx context.Context) error {
	if w == nil || w.Dequeuer == nil {
		return inboundInternal("inbound: hook worker has no dequeuer", nil)
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		delivery, err := w.Dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			w.Observer.Log(ctx, "warn", "hook dequeue failed", map[string]any{"error": err.Error()})
			w.wait(ctx)
			continue
		}
		if delivery == nil {
			w.wait(ctx)
			continue
		}
		w.Process(ctx, delivery)
	}
}

// Process handles one delivery. Invalid messages go to the dead letter queue;
// messages for providers this node does not know are requeued.
func (w *HookWorker) Process(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	startedAt := time.Now()
	attempt := deliveryAttempt(delivery)
	if w.Lifecycle != nil {
		w.Lifecycle.DeliveryStarted(ctx, msg, attempt, startedAt)
	}
	outcome := w.handle(ctx, delivery, msg)
	outcome.Attempt = attempt
	outcome.StartedAt = startedAt
	outcome.Duration = time.Since(startedAt)
	if w.Lifecycle != nil {
		w.Lifecycle.DeliveryFinished(ctx, msg, outcome)
	}
}

func (w *HookWorker) handle(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage) DeliveryOutcome {
	in, err := decodeHookMessage(msg)
	if err != nil {
		w.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		return DeliveryOutcome{Err: err}
	}
	provider, ok := w.Registry.Get(in.ProviderID)
	if !ok {
		return w.requeue(ctx, delivery, "unknown provider "+in.ProviderID)
	}
	handler, ok := provider.Handler(in.Action)
	if !ok {
		return w.requeue(ctx, delivery, "unknown action "+in.Action)
	}
	failed := RunHooks(ctx, w.Observer, handler.Hooks, in)
	w.Observer.Counter(ctx, core.MetricPrefix+".hooks.detached.total", 1, map[string]string{
		"provider": in.ProviderID,
		"action":   in.Action,
		"failed":   fmt.Sprint(failed > 0),
	})
	if err := delivery.Ack(ctx); err != nil {
		w.Observer.Log(ctx, "warn", "hook delivery ack failed", map[string]any{
			"provider_id": in.ProviderID,
			"action":      in.Action,
			"error":       err.Error(),
		})
	}
	if failed > 0 {
		return DeliveryOutcome{Err: inboundInternal(fmt.Sprintf("inbound: %d detached hooks failed", failed), nil)}
	}
	return DeliveryOutcome{}
}

func (w *HookWorker) requeue(ctx context.Context, delivery core.JobDelivery, reason string) DeliveryOutcome {
	delay := w.retryDelay()
	w.nack(ctx, delivery, core.JobNackOptions{Requeue: true, Delay: delay, Reason: reason})
	return DeliveryOutcome{Retry: true, Delay: delay, Err: inboundInternal("inbound: "+reason, nil)}
}

// deliveryAttempt reads the attempt number from deliveries that track it.
func deliveryAttempt(delivery core.JobDelivery) int {
	if counter, ok := delivery.(interface{ Attempt() int }); ok {
		return counter.Attempt()
	}
	return 1
}

func (w *HookWorker) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions) {
	w.Observer.Log(ctx, "warn", "hook delivery rejected", map[string]any{
		"reason":      opts.Reason,
		"dead_letter": opts.DeadLetter,
	})
	if err := delivery.Nack(ctx, opts); err != nil {
		w.Observer.Log(ctx, "warn", "hook delivery nack failed", map[string]any{"error": err.Error()})
	}
}

func decodeHookMessage(msg *core.JobExecutionMessage) (core.HookInput, error) {
	if msg == nil {
		return core.HookInput{}, inboundBadInput("inbound: hook message is nil", nil)
	}
	if msg.JobID != HookJobID {
		return core.HookInput{}, inboundBadInput("inbound: unexpected job id "+msg.JobID, nil)
	}
	in := core.HookInput{
		ProviderID: paramString(msg.Parameters, "provider_id"),
		Action:     paramString(msg.Parameters, "action"),
		TenantID:   paramString(msg.Parameters, "tenant_id"),
	}
	if in.ProviderID == "" || in.Action == "" || in.TenantID == "" {
		return core.HookInput{}, inboundBadInput("inbound: hook message requires provider_id, action and tenant_id", nil)
	}
	encoded := paramString(msg.Parameters, "event")
	if encoded == "" {
		return core.HookInput{}, inboundBadInput("inbound: hook message has no event", nil)
	}
	if err := json.Unmarshal([]byte(encoded), &in.Event); err != nil {
		return core.HookInput{}, inboundWrapError(err, goerrors.CategoryBadInput, "inbound: decode hook event", http.StatusBadRequest, core.ErrorBadInput, nil)
	}
	return in, nil
}

func paramString(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (w *HookWorker) wait(ctx context.Context) {
	idle := w.Idle
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *HookWorker) retryDelay() time.Duration {
	if w.RetryDelay > 0 {
		return w.RetryDelay
	}
	return 5 * time.Second
}
