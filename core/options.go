package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// Dependencies is the resolved set of collaborators an engine is built from.
// Nil members fall back to in-process defaults chosen by the builder.
type Dependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	EntityStore     EntityStore
	TokenCache      TokenCache
	TokenRefresher  TokenRefresher
	JobEnqueuer     JobEnqueuer
	ClaimStore      IdempotencyClaimStore
	HTTPClient      *http.Client
	Hooks           []Hook
	Providers       []ProviderDescriptor
	Now             func() time.Time
}

type Option func(*Dependencies)

func WithLogger(logger Logger) Option {
	return func(d *Dependencies) {
		d.Logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(d *Dependencies) {
		d.LoggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(d *Dependencies) {
		d.MetricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(d *Dependencies) {
		d.ConfigProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(d *Dependencies) {
		d.OptionsResolver = resolver
	}
}

func WithEntityStore(store EntityStore) Option {
	return func(d *Dependencies) {
		d.EntityStore = store
	}
}

func WithTokenCache(cache TokenCache) Option {
	return func(d *Dependencies) {
		d.TokenCache = cache
	}
}

func WithTokenRefresher(refresher TokenRefresher) Option {
	return func(d *Dependencies) {
		d.TokenRefresher = refresher
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(d *Dependencies) {
		d.JobEnqueuer = enqueuer
	}
}

func WithClaimStore(store IdempotencyClaimStore) Option {
	return func(d *Dependencies) {
		d.ClaimStore = store
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dependencies) {
		d.HTTPClient = client
	}
}

// WithHooks attaches after-hooks to every non-handshake handler.
func WithHooks(hooks ...Hook) Option {
	return func(d *Dependencies) {
		d.Hooks = append(d.Hooks, hooks...)
	}
}

// WithProviders registers additional descriptors after the configured ones.
func WithProviders(providers ...ProviderDescriptor) Option {
	return func(d *Dependencies) {
		d.Providers = append(d.Providers, providers...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dependencies) {
		d.Now = now
	}
}

// ResolveDependencies applies options over the defaults and resolves the
// logger with precedence provider > logger > nop.
func ResolveDependencies(options ...Option) Dependencies {
	deps := Dependencies{
		MetricsRecorder: NopMetricsRecorder{},
		ConfigProvider:  NewCfgxConfigProvider(nil),
		OptionsResolver: GoOptionsResolver{},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&deps)
	}
	provider, logger := glog.Resolve("ingress", deps.LoggerProvider, deps.Logger)
	deps.LoggerProvider = provider
	deps.Logger = glog.Ensure(logger)
	if deps.MetricsRecorder == nil {
		deps.MetricsRecorder = NopMetricsRecorder{}
	}
	if deps.OptionsResolver == nil {
		deps.OptionsResolver = GoOptionsResolver{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return deps
}

// NamedLogger returns a component logger from the provider when available.
func (d Dependencies) NamedLogger(name string) Logger {
	if d.LoggerProvider != nil {
		if logger := d.LoggerProvider.GetLogger(name); logger != nil {
			return logger
		}
	}
	return glog.Ensure(d.Logger)
}

func (d Dependencies) Observer(name string) Observer {
	return Observer{Logger: d.NamedLogger(name), Metrics: d.MetricsRecorder}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig loads file-backed config through the provider then layers
// runtime overrides on top with the options resolver.
func (d Dependencies) LoadConfig(ctx context.Context, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	loaded := defaults
	if d.ConfigProvider != nil {
		cfg, err := d.ConfigProvider.Load(ctx, defaults)
		if err != nil {
			return Config{}, err
		}
		loaded = cfg
	}
	resolver := d.OptionsResolver
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type layerBuilder struct {
	root        map[string]any
	includeZero bool
}

func (b layerBuilder) set(path string, value any, zero bool) {
	if zero && !b.includeZero {
		return
	}
	segments := strings.Split(path, ".")
	node := b.root
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	b := layerBuilder{root: map[string]any{}, includeZero: includeZero}
	b.set("service_name", cfg.ServiceName, strings.TrimSpace(cfg.ServiceName) == "")
	b.set("default_tenant", cfg.DefaultTenant, strings.TrimSpace(cfg.DefaultTenant) == "")
	b.set("verification.max_age_seconds", cfg.Verification.MaxAgeSeconds, cfg.Verification.MaxAgeSeconds == 0)
	b.set("credentials.refresh_buffer_seconds", cfg.Credentials.RefreshBufferSeconds, cfg.Credentials.RefreshBufferSeconds == 0)
	b.set("credentials.cache", cfg.Credentials.Cache, cfg.Credentials.Cache == "")
	b.set("credentials.cache_max_cost", cfg.Credentials.CacheMaxCost, cfg.Credentials.CacheMaxCost == 0)
	b.set("hooks.mode", cfg.Hooks.Mode, cfg.Hooks.Mode == "")
	b.set("dedupe.enabled", cfg.Dedupe.Enabled, !cfg.Dedupe.Enabled)
	b.set("dedupe.ttl_seconds", cfg.Dedupe.TTLSeconds, cfg.Dedupe.TTLSeconds == 0)
	b.set("http.addr", cfg.HTTP.Addr, cfg.HTTP.Addr == "")
	b.set("http.max_body_bytes", cfg.HTTP.MaxBodyBytes, cfg.HTTP.MaxBodyBytes == 0)
	b.set("http.rate_limit.rps", cfg.HTTP.RateLimit.RPS, cfg.HTTP.RateLimit.RPS == 0)
	b.set("http.rate_limit.burst", cfg.HTTP.RateLimit.Burst, cfg.HTTP.RateLimit.Burst == 0)
	b.set("store.driver", cfg.Store.Driver, cfg.Store.Driver == "")
	b.set("store.dsn", cfg.Store.DSN, cfg.Store.DSN == "")
	b.set("store.cache_ttl_seconds", cfg.Store.CacheTTLSeconds, cfg.Store.CacheTTLSeconds == 0)
	b.set("store.debug", cfg.Store.Debug, !cfg.Store.Debug)
	b.set("forward.cloudevents.target", cfg.Forward.CloudEvents.Target, cfg.Forward.CloudEvents.Target == "")
	b.set("forward.cloudevents.source", cfg.Forward.CloudEvents.Source, cfg.Forward.CloudEvents.Source == "")
	b.set("forward.cloudevents.type_prefix", cfg.Forward.CloudEvents.TypePrefix, cfg.Forward.CloudEvents.TypePrefix == "")
	b.set("forward.nats.url", cfg.Forward.NATS.URL, cfg.Forward.NATS.URL == "")
	b.set("forward.nats.subject_prefix", cfg.Forward.NATS.SubjectPrefix, cfg.Forward.NATS.SubjectPrefix == "")
	b.set("metrics.prometheus", cfg.Metrics.Prometheus, !cfg.Metrics.Prometheus)
	if includeZero || len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for id, provider := range cfg.Providers {
			providers[id] = providerToLayerMap(provider)
		}
		b.root["providers"] = providers
	}
	return b.root
}

func providerToLayerMap(cfg ProviderConfig) map[string]any {
	out := credentialsToLayerMap(cfg.Defaults())
	out["disabled"] = cfg.Disabled
	out["allow_unsigned"] = cfg.AllowUnsigned
	if len(cfg.Tenants) > 0 {
		tenants := make(map[string]any, len(cfg.Tenants))
		for tenant, creds := range cfg.Tenants {
			tenants[tenant] = credentialsToLayerMap(creds)
		}
		out["tenants"] = tenants
	}
	return out
}

func credentialsToLayerMap(creds ProviderCredentials) map[string]any {
	out := map[string]any{}
	for key, value := range map[string]string{
		"signing_secret": creds.SigningSecret,
		"api_key":        creds.APIKey,
		"client_id":      creds.ClientID,
		"client_secret":  creds.ClientSecret,
		"refresh_token":  creds.RefreshToken,
		"access_token":   creds.AccessToken,
		"token_url":      creds.TokenURL,
	} {
		if strings.TrimSpace(value) != "" {
			out[key] = value
		}
	}
	return out
}
