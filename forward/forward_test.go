package forward

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
)

func sampleInput() core.HookInput {
	return core.HookInput{
		TenantID:   "acme",
		ProviderID: "github",
		Action:     "pull_request.opened",
		Event: core.Event{
			ID:         "evt-1",
			ProviderID: "github",
			Action:     "pull_request.opened",
			TenantID:   "acme",
			Collection: "pull_requests",
			ExternalID: "1001",
			OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			Data:       map[string]any{"title": "Add webhooks"},
		},
	}
}

func TestCloudEventsHook_SendsBinaryEvent(t *testing.T) {
	var (
		headers http.Header
		body    []byte
	)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	hook, err := NewCloudEventsHook(core.CloudEventsConfig{Target: sink.URL, Source: "https://ingress.example", TypePrefix: "acme.ingress"})
	if err != nil {
		t.Fatalf("new hook: %v", err)
	}
	if err := hook.Run(context.Background(), sampleInput()); err != nil {
		t.Fatalf("run: %v", err)
	}

	expect := map[string]string{
		"Ce-Id":       "evt-1",
		"Ce-Source":   "https://ingress.example/github",
		"Ce-Type":     "acme.ingress.github.pull_request.opened",
		"Ce-Subject":  "1001",
		"Ce-Tenantid": "acme",
	}
	for header, value := range expect {
		if got := headers.Get(header); got != value {
			t.Fatalf("expected %s=%q, got %q", header, value, got)
		}
	}
	var event core.Event
	if err := json.Unmarshal(body, &event); err != nil || event.Data["title"] != "Add webhooks" {
		t.Fatalf("expected JSON event body, got %s err=%v", body, err)
	}
}

func TestCloudEventsHook_NonAckIsError(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sink.Close()

	hook, err := NewCloudEventsHook(core.CloudEventsConfig{Target: sink.URL})
	if err != nil {
		t.Fatalf("new hook: %v", err)
	}
	if err := hook.Run(context.Background(), sampleInput()); err == nil {
		t.Fatalf("expected 503 to be reported as an error")
	}
}

func TestNewCloudEventsHook_RequiresTarget(t *testing.T) {
	if _, err := NewCloudEventsHook(core.CloudEventsConfig{}); err == nil {
		t.Fatalf("expected missing target to fail")
	}
}

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subject, p.data = subject, data
	return p.err
}

func TestNATSHook_PublishesToTenantSubject(t *testing.T) {
	publisher := &recordingPublisher{}
	hook := NewNATSHook(publisher, "ingress")
	in := sampleInput()
	in.TenantID = "acme.eu west"

	if err := hook.Run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	if publisher.subject != "ingress.acme_eu_west.github.pull_request.opened" {
		t.Fatalf("unexpected subject %q", publisher.subject)
	}
	var event core.Event
	if err := json.Unmarshal(publisher.data, &event); err != nil || event.ID != "evt-1" {
		t.Fatalf("expected JSON event, got %s err=%v", publisher.data, err)
	}
}

func TestNATSHook_PublishErrorsAreReturned(t *testing.T) {
	hook := NewNATSHook(&recordingPublisher{err: errors.New("no responders")}, "")
	if err := hook.Run(context.Background(), sampleInput()); err == nil {
		t.Fatalf("expected publish failure")
	}
	if _, err := ConnectNATS(" "); err == nil {
		t.Fatalf("expected blank url to fail")
	}
}
