package ingress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/goliatone/go-ingress/adapters/gocommand"
	"github.com/goliatone/go-ingress/adapters/gojob"
	"github.com/goliatone/go-ingress/adapters/gologger"
	ingressprometheus "github.com/goliatone/go-ingress/adapters/prometheus"
	"github.com/goliatone/go-ingress/auth"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/forward"
	"github.com/goliatone/go-ingress/httpapi"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/store/memory"
	sqlstore "github.com/goliatone/go-ingress/store/sql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is a fully wired ingestion engine: registry, credential resolver,
// entity store, pipeline, router, HTTP boundary and command bus.
type Engine struct {
	config   core.Config
	registry *core.ProviderRegistry
	resolver *auth.Resolver
	store    core.EntityStore
	pipeline *inbound.Pipeline
	router   *inbound.Router
	server   *httpapi.Server
	bus      *gocommand.Bus
	queue    *gojob.MemoryQueue
	observer core.Observer

	stopWorker context.CancelFunc
	workerDone chan struct{}
	closers    []func() error
	closeOnce  sync.Once
	closeErr   error
}

// Build resolves dependencies, layers cfg over the loaded config and wires
// every component. cfg acts as the runtime override layer.
func Build(ctx context.Context, cfg core.Config, opts ...core.Option) (_ *Engine, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	deps := core.ResolveDependencies(opts...)
	resolved, err := deps.LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine := &Engine{config: resolved}
	defer func() {
		if err != nil {
			_ = engine.Close()
		}
	}()

	metricsHandler := engine.resolveMetrics(&deps)
	engine.observer = engine.component(deps, "ingress")

	hooks, err := engine.buildForwarders(deps)
	if err != nil {
		return nil, err
	}

	credentials := auth.StaticCredentialsFromConfig(resolved)
	engine.registry = core.NewProviderRegistry().WithObserver(engine.component(deps, "registry"))
	if err := engine.registerProviders(deps, credentials, hooks); err != nil {
		return nil, err
	}

	engine.resolver, err = engine.buildResolver(deps, credentials)
	if err != nil {
		return nil, err
	}

	engine.store, err = engine.buildStore(ctx, deps)
	if err != nil {
		return nil, err
	}

	engine.pipeline = inbound.NewPipeline(resolved.Hooks.Mode, engine.buildEnqueuer(deps), engine.component(deps, "pipeline"))
	engine.pipeline.Now = deps.Now

	engine.router = inbound.NewRouter(engine.registry, engine.resolver, engine.pipeline, engine.store)
	engine.router.DefaultTenant = resolved.DefaultTenant
	engine.router.Observer = engine.component(deps, "router")
	engine.router.Now = deps.Now
	engine.router.ClaimTTL = resolved.DedupeTTL()
	if deps.ClaimStore != nil {
		engine.router.Claims = deps.ClaimStore
	} else if resolved.Dedupe.Enabled {
		engine.router.Claims = inbound.NewInMemoryClaimStore()
	}

	engine.server = httpapi.NewServer(engine.router, resolved.HTTP)
	engine.server.DefaultTenant = resolved.DefaultTenant
	engine.server.MetricsHandler = metricsHandler
	engine.server.Observer = engine.component(deps, "http")
	engine.server.Now = deps.Now

	engine.bus, err = gocommand.NewBus(engine.router, engine.store)
	if err != nil {
		return nil, err
	}

	engine.startWorker()
	engine.observer.Log(ctx, "info", "ingress engine ready", map[string]any{
		"providers":  len(engine.registry.List()),
		"store":      resolved.Store.Driver,
		"hooks_mode": resolved.Hooks.Mode,
	})
	return engine, nil
}

func (e *Engine) component(deps core.Dependencies, name string) core.Observer {
	return gologger.Observer(name, deps.LoggerProvider, deps.Logger, deps.MetricsRecorder)
}

// resolveMetrics installs a prometheus recorder on a private registry when
// enabled and no recorder was injected.
func (e *Engine) resolveMetrics(deps *core.Dependencies) http.Handler {
	if !e.config.Metrics.Prometheus {
		return nil
	}
	registry := prometheus.NewRegistry()
	if _, nop := deps.MetricsRecorder.(core.NopMetricsRecorder); nop {
		deps.MetricsRecorder = ingressprometheus.NewRecorder(registry)
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (e *Engine) buildForwarders(deps core.Dependencies) ([]core.Hook, error) {
	hooks := append([]core.Hook(nil), deps.Hooks...)
	if e.config.Forward.CloudEvents.Target != "" {
		hook, err := forward.NewCloudEventsHook(e.config.Forward.CloudEvents)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, hook)
	}
	if e.config.Forward.NATS.URL != "" {
		publisher, err := forward.ConnectNATS(e.config.Forward.NATS.URL)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, publisher.Close)
		hooks = append(hooks, forward.NewNATSHook(publisher, e.config.Forward.NATS.SubjectPrefix))
	}
	return hooks, nil
}

func (e *Engine) registerProviders(deps core.Dependencies, credentials auth.StaticCredentials, hooks []core.Hook) error {
	descriptors, err := BuiltinProviders(e.config, deps.Now)
	if err != nil {
		return err
	}
	descriptors = append(descriptors, deps.Providers...)
	for _, descriptor := range descriptors {
		if len(hooks) > 0 {
			descriptor = descriptor.WithHooks(hooks...)
		}
		if err := e.registry.RegisterWithSecret(descriptor, credentials.HasSigningSecret(descriptor.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildResolver(deps core.Dependencies, credentials auth.StaticCredentials) (*auth.Resolver, error) {
	cache := deps.TokenCache
	if cache == nil {
		switch e.config.Credentials.Cache {
		case core.TokenCacheRistretto:
			ristretto, err := auth.NewRistrettoTokenCache(e.config.Credentials.CacheMaxCost)
			if err != nil {
				return nil, err
			}
			e.closers = append(e.closers, func() error {
				ristretto.Close()
				return nil
			})
			cache = ristretto
		default:
			cache = auth.NewMemoryTokenCache()
		}
	}
	refresher := deps.TokenRefresher
	if refresher == nil {
		refresher = auth.NewOAuth2Refresher(deps.HTTPClient)
	}
	resolver := auth.NewResolver(credentials, cache, refresher)
	resolver.Buffer = e.config.RefreshBuffer()
	resolver.Now = deps.Now
	resolver.Observer = e.component(deps, "auth")
	return resolver, nil
}

func (e *Engine) buildStore(ctx context.Context, deps core.Dependencies) (core.EntityStore, error) {
	if deps.EntityStore != nil {
		return deps.EntityStore, nil
	}
	switch e.config.Store.Driver {
	case core.StoreDriverSQLite, core.StoreDriverPostgres:
		client, err := OpenPersistence(ctx, e.config.Store)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
		if err != nil {
			return nil, err
		}
		return factory.CachedEntityStore(e.config.StoreCacheTTL())
	case core.StoreDriverMemory, "":
		return memory.NewEntityStore(), nil
	default:
		return nil, core.BadInputError(fmt.Sprintf("ingress: unsupported store driver %q", e.config.Store.Driver), nil)
	}
}

// buildEnqueuer returns the injected enqueuer, or an in-process queue drained
// by a hook worker when hooks are detached.
func (e *Engine) buildEnqueuer(deps core.Dependencies) core.JobEnqueuer {
	if deps.JobEnqueuer != nil {
		return deps.JobEnqueuer
	}
	if e.config.Hooks.Mode != core.HookModeDetached {
		return nil
	}
	e.queue = gojob.NewMemoryQueue(gojob.DefaultQueueCapacity)
	return gojob.NewEnqueuerAdapter(e.queue)
}

func (e *Engine) startWorker() {
	if e.queue == nil {
		return
	}
	worker := inbound.NewHookWorker(
		e.registry,
		gojob.NewDequeuerAdapter(e.queue, gojob.DefaultRetryPolicy()),
		e.observer,
	)
	worker.Lifecycle = gojob.WorkerLifecycle{Hook: gojob.ObserverHook{Observer: e.observer}}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopWorker = cancel
	e.workerDone = make(chan struct{})
	go func() {
		defer close(e.workerDone)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.observer.Log(ctx, "error", "hook worker stopped", map[string]any{"error": err.Error()})
		}
	}()
}

func (e *Engine) Config() core.Config {
	if e == nil {
		return core.Config{}
	}
	return e.config
}

func (e *Engine) Router() *inbound.Router {
	if e == nil {
		return nil
	}
	return e.router
}

func (e *Engine) Registry() *core.ProviderRegistry {
	if e == nil {
		return nil
	}
	return e.registry
}

func (e *Engine) Store() core.EntityStore {
	if e == nil {
		return nil
	}
	return e.store
}

func (e *Engine) Bus() *gocommand.Bus {
	if e == nil {
		return nil
	}
	return e.bus
}

// Queue is the in-process hook queue, nil unless hooks run detached without
// an injected enqueuer.
func (e *Engine) Queue() *gojob.MemoryQueue {
	if e == nil {
		return nil
	}
	return e.queue
}

// Handler returns the chi router serving the webhook endpoints.
func (e *Engine) Handler() http.Handler {
	if e == nil || e.server == nil {
		return http.NotFoundHandler()
	}
	return e.server.Handler()
}

// Close stops the hook worker, unsubscribes the bus and releases the store,
// cache and broker connections. It is safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		if e.stopWorker != nil {
			e.stopWorker()
		}
		if e.workerDone != nil {
			<-e.workerDone
		}
		if e.queue != nil {
			_ = e.queue.Close()
		}
		e.bus.Close()
		var errs []error
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
