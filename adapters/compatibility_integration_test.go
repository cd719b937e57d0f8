package adapters_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/adapters/gojob"
	"github.com/goliatone/go-ingress/adapters/gologger"
	ingressprometheus "github.com/goliatone/go-ingress/adapters/prometheus"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type capturingHook struct {
	mu   sync.Mutex
	seen []core.HookInput
}

func (h *capturingHook) Name() string { return "capture" }

func (h *capturingHook) Run(_ context.Context, in core.HookInput) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, in)
	return nil
}

func (h *capturingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestRuntimeCompatibility_DetachedHooksThroughGoJobQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	registry := prometheus.NewRegistry()
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("ingress", nil, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}
	observer := gologger.Observer("ingress", nil, nil, ingressprometheus.NewRecorder(registry))

	hook := &capturingHook{}
	descriptor := core.ProviderDescriptor{
		ID:            "acme",
		AllowUnsigned: true,
		Matcher:       func(req *core.WebhookRequest) bool { return req.Header("x-acme-event") != "" },
		Handlers: []core.EventHandler{{
			Action:  "thing.created",
			Matcher: func(req *core.WebhookRequest) bool { return req.Header("x-acme-event") == "thing.created" },
			Handle: func(_ context.Context, in core.HandlerInput) (core.HandlerResult, error) {
				return core.Acknowledge(in.NewEvent("things", "t-1", core.StoredEntity{}, map[string]any{"name": "widget"})), nil
			},
			Hooks: []core.Hook{hook},
		}},
	}
	providers := core.NewProviderRegistry()
	if err := providers.Register(descriptor); err != nil {
		t.Fatalf("register: %v", err)
	}

	queue := gojob.NewMemoryQueue(8)
	defer queue.Close()
	pipeline := inbound.NewPipeline(core.HookModeDetached, gojob.NewEnqueuerAdapter(queue), observer)
	router := inbound.NewRouter(providers, nil, pipeline, nil)
	router.Observer = observer

	resp := router.Route(ctx, inbound.RawRequest{
		Method:  http.MethodPost,
		Headers: map[string]string{"x-acme-event": "thing.created"},
		Body:    []byte(`{"id":"t-1"}`),
	})
	if inbound.OutcomeOf(resp) != inbound.OutcomeAcknowledged {
		t.Fatalf("expected acknowledged, got %q", inbound.OutcomeOf(resp))
	}
	if hook.count() != 0 {
		t.Fatalf("expected hooks to wait for the worker in detached mode")
	}

	worker := inbound.NewHookWorker(providers, gojob.NewDequeuerAdapter(queue, gojob.DefaultRetryPolicy()), observer)
	delivery, err := worker.Dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	worker.Process(ctx, delivery)

	if hook.count() != 1 {
		t.Fatalf("expected one detached hook run, got %d", hook.count())
	}
	if hook.seen[0].Event.ExternalID != "t-1" || hook.seen[0].Action != "thing.created" {
		t.Fatalf("unexpected hook input %#v", hook.seen[0])
	}
	if got := testutil.CollectAndCount(registry, "ingress_route_total"); got != 1 {
		t.Fatalf("expected route metrics in prometheus, got %d series", got)
	}
}
