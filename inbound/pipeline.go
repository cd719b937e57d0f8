package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
	"github.com/google/uuid"
)

const (
	OutcomeUnmatched    = "unmatched"
	OutcomeIgnored      = "ignored"
	OutcomeRejected     = "rejected"
	OutcomeAcknowledged = "acknowledged"
	OutcomeHandshake    = "handshake"
	OutcomeDeduped      = "deduped"
	OutcomeFailed       = "failed"

	// HookJobID names the job message carrying detached after-hooks.
	HookJobID = "ingress.hooks.run"

	metadataOutcome = "outcome"
)

// Pipeline runs a matched handler and its after-hooks and shapes the
// response. Mode selects whether hooks run inline or through Enqueuer.
type Pipeline struct {
	Mode     string
	Enqueuer core.JobEnqueuer
	Observer core.Observer
	Now      func() time.Time
}

func NewPipeline(mode string, enqueuer core.JobEnqueuer, observer core.Observer) *Pipeline {
	return &Pipeline{Mode: mode, Enqueuer: enqueuer, Observer: observer}
}

func (p *Pipeline) Execute(
	ctx context.Context,
	provider core.ProviderDescriptor,
	handler core.EventHandler,
	input core.HandlerInput,
) core.Response {
	ctx = ContextWithObserver(ctx, p.observer())
	input.ProviderID = provider.ID
	input.Action = handler.Action
	if input.Logger == nil {
		input.Logger = p.observer().Logger
	}
	if input.Metrics == nil {
		input.Metrics = p.observer().Metrics
	}
	fields := map[string]any{
		"provider_id": provider.ID,
		"action":      handler.Action,
		"tenant_id":   input.TenantID,
	}

	result, err := invokeHandler(ctx, handler, input)
	if err != nil {
		failure := handlerFailure(err, provider.ID, handler.Action)
		logFields := cloneMap(fields)
		logFields["error"] = failure.Error()
		p.observer().Log(ctx, "error", "webhook handler failed", logFields)
		return response(http.StatusOK, failedEnvelope(provider.ID, handler.Action, err.Error()), OutcomeFailed)
	}

	switch {
	case !result.Success && result.StatusCode == http.StatusUnauthorized:
		return response(http.StatusUnauthorized, core.Envelope{Success: false, Error: rejectionMessage(result)}, OutcomeRejected)
	case !result.Success:
		status := result.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		return response(status, failedEnvelope(provider.ID, handler.Action, result.Error), OutcomeFailed)
	case result.ReturnToSender:
		out := response(http.StatusOK, result.Payload, OutcomeHandshake)
		out.Raw = true
		return out
	case handler.Handshake:
		return response(http.StatusOK, core.FilteredEnvelope(provider.ID, handler.Action), OutcomeHandshake)
	}

	event := p.eventFor(result, input)
	p.dispatchHooks(ctx, handler.Hooks, core.HookInput{
		TenantID:   input.TenantID,
		ProviderID: provider.ID,
		Action:     handler.Action,
		Event:      event,
	})
	return response(http.StatusOK, core.FilteredEnvelope(provider.ID, handler.Action), OutcomeAcknowledged)
}

func invokeHandler(ctx context.Context, handler core.EventHandler, input core.HandlerInput) (result core.HandlerResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("inbound: handler %q panicked: %v", handler.Action, recovered)
		}
	}()
	if handler.Handle == nil {
		return core.HandlerResult{}, inboundInternal("inbound: handler has no handle function", map[string]any{"action": handler.Action})
	}
	return handler.Handle(ctx, input)
}

func (p *Pipeline) eventFor(result core.HandlerResult, input core.HandlerInput) core.Event {
	var event core.Event
	if result.Event != nil {
		event = *result.Event
		event.Data = core.CloneFields(result.Event.Data)
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.ProviderID == "" {
		event.ProviderID = input.ProviderID
	}
	if event.Action == "" {
		event.Action = input.Action
	}
	if event.TenantID == "" {
		event.TenantID = input.TenantID
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	return event
}

func (p *Pipeline) dispatchHooks(ctx context.Context, hooks []core.Hook, in core.HookInput) {
	if len(hooks) == 0 {
		return
	}
	if strings.EqualFold(strings.TrimSpace(p.Mode), core.HookModeDetached) && p.Enqueuer != nil {
		p.observer().LogAndDiscard(ctx, "hooks.enqueue", hookFields(in), func(ctx context.Context) error {
			msg, err := NewHookMessage(in)
			if err != nil {
				return err
			}
			return p.Enqueuer.Enqueue(ctx, msg)
		})
		return
	}
	RunHooks(ctx, p.observer(), hooks, in)
}

// RunHooks runs every hook in order. A failing or panicking hook is logged
// and the remaining hooks still run.
func RunHooks(ctx context.Context, observer core.Observer, hooks []core.Hook, in core.HookInput) int {
	failed := 0
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		fields := hookFields(in)
		fields["hook"] = hook.Name()
		outcome := observer.LogAndDiscard(ctx, "hooks.run", fields, func(ctx context.Context) error {
			return hook.Run(ctx, in)
		})
		if outcome.Failed() {
			failed++
		}
	}
	return failed
}

// NewHookMessage encodes a hook input as a job message for detached runs.
func NewHookMessage(in core.HookInput) (*core.JobExecutionMessage, error) {
	encoded, err := json.Marshal(in.Event)
	if err != nil {
		return nil, inboundWrapError(err, goerrors.CategoryInternal, "inbound: encode hook event", http.StatusInternalServerError, core.ErrorHookFailed, hookFields(in))
	}
	return &core.JobExecutionMessage{
		JobID: HookJobID,
		Parameters: map[string]any{
			"provider_id": in.ProviderID,
			"action":      in.Action,
			"tenant_id":   in.TenantID,
			"event":       string(encoded),
		},
		IdempotencyKey: in.Event.ID,
	}, nil
}

func (p *Pipeline) observer() core.Observer {
	if p == nil {
		return core.Observer{}
	}
	return p.Observer
}

func (p *Pipeline) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func response(status int, body any, outcome string) core.Response {
	return core.Response{
		StatusCode: status,
		Body:       body,
		Metadata:   map[string]any{metadataOutcome: outcome},
	}
}

// OutcomeOf reads the routing outcome recorded on a response.
func OutcomeOf(resp core.Response) string {
	outcome, _ := resp.Metadata[metadataOutcome].(string)
	return outcome
}

func failedEnvelope(providerID, action, message string) core.Envelope {
	envelope := core.FilteredEnvelope(providerID, action)
	envelope.Success = false
	envelope.Error = message
	return envelope
}

func rejectionMessage(result core.HandlerResult) string {
	if message := strings.TrimSpace(result.Error); message != "" {
		return message
	}
	return "signature verification failed"
}

func hookFields(in core.HookInput) map[string]any {
	return map[string]any{
		"provider_id": in.ProviderID,
		"action":      in.Action,
		"tenant_id":   in.TenantID,
		"event_id":    in.Event.ID,
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
