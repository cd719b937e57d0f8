package forward

import (
	"context"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/goliatone/go-ingress/core"
)

const TenantExtension = "tenantid"

// CloudEventsHook posts each event to Target as a binary-mode CloudEvent.
type CloudEventsHook struct {
	Client     cloudevents.Client
	Target     string
	Source     string
	TypePrefix string
}

func NewCloudEventsHook(cfg core.CloudEventsConfig) (*CloudEventsHook, error) {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return nil, core.BadInputError("forward: cloudevents target is required", nil)
	}
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("forward: cloudevents client: %w", err)
	}
	return &CloudEventsHook{
		Client:     client,
		Target:     target,
		Source:     cfg.Source,
		TypePrefix: cfg.TypePrefix,
	}, nil
}

func (h *CloudEventsHook) Name() string {
	return "forward.cloudevents"
}

func (h *CloudEventsHook) Run(ctx context.Context, in core.HookInput) error {
	if h == nil || h.Client == nil {
		return fmt.Errorf("forward: cloudevents hook is not configured")
	}
	event, err := h.Event(in)
	if err != nil {
		return err
	}
	result := h.Client.Send(cloudevents.ContextWithTarget(ctx, h.Target), event)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("forward: cloudevent %s undelivered: %w", event.ID(), result)
	}
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("forward: cloudevent %s not acknowledged: %w", event.ID(), result)
	}
	return nil
}

// Event builds the CloudEvent for a hook input without sending it.
func (h *CloudEventsHook) Event(in core.HookInput) (cloudevents.Event, error) {
	source := strings.TrimRight(firstNonEmpty(h.Source, "go-ingress"), "/")
	prefix := strings.TrimSuffix(firstNonEmpty(h.TypePrefix, "ingress"), ".")

	event := cloudevents.NewEvent()
	event.SetID(in.Event.ID)
	event.SetSource(source + "/" + in.ProviderID)
	event.SetType(prefix + "." + in.ProviderID + "." + in.Action)
	if in.Event.ExternalID != "" {
		event.SetSubject(in.Event.ExternalID)
	}
	if !in.Event.OccurredAt.IsZero() {
		event.SetTime(in.Event.OccurredAt)
	}
	event.SetExtension(TenantExtension, in.TenantID)
	if err := event.SetData(cloudevents.ApplicationJSON, in.Event); err != nil {
		return event, fmt.Errorf("forward: encode cloudevent data: %w", err)
	}
	if err := event.Validate(); err != nil {
		return event, core.BadInputError("forward: invalid cloudevent: "+err.Error(), map[string]any{
			"provider_id": in.ProviderID,
			"action":      in.Action,
		})
	}
	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.Hook = (*CloudEventsHook)(nil)
