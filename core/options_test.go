package core

import (
	"context"
	"testing"
)

func TestResolveDependencies_Defaults(t *testing.T) {
	deps := ResolveDependencies()
	if deps.Logger == nil || deps.LoggerProvider == nil {
		t.Fatalf("expected logger defaults to be resolved")
	}
	if _, ok := deps.MetricsRecorder.(NopMetricsRecorder); !ok {
		t.Fatalf("expected nop metrics recorder by default")
	}
	if deps.Now == nil || deps.Now().Location().String() != "UTC" {
		t.Fatalf("expected UTC clock default")
	}
}

func TestResolveDependencies_WithOverrides(t *testing.T) {
	logger := &recordingLogger{}
	metrics := NewMemoryMetricsRecorder()
	store := newMemoryEntityStore()
	hook := HookFunc("audit", nil)

	deps := ResolveDependencies(
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithMetricsRecorder(metrics),
		WithEntityStore(store),
		WithHooks(hook),
		nil,
	)
	if deps.MetricsRecorder != metrics {
		t.Fatalf("expected metrics override")
	}
	if deps.EntityStore != store {
		t.Fatalf("expected entity store override")
	}
	if len(deps.Hooks) != 1 || deps.Hooks[0].Name() != "audit" {
		t.Fatalf("expected hook override, got %#v", deps.Hooks)
	}
	if deps.NamedLogger("router") != logger {
		t.Fatalf("expected provider logger to be used for named loggers")
	}
}

func TestLoadConfig_LayeringPrecedence(t *testing.T) {
	deps := ResolveDependencies(WithConfigProvider(NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"hooks":        map[string]any{"mode": "detached"},
		"providers": map[string]any{
			"linear": map[string]any{"signing_secret": "lin_secret"},
		},
	}})))

	cfg, err := deps.LoadConfig(context.Background(), Config{ServiceName: "from-runtime"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to win, got %q", cfg.ServiceName)
	}
	if cfg.Hooks.Mode != HookModeDetached {
		t.Fatalf("expected config layer hook mode, got %q", cfg.Hooks.Mode)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default addr to survive, got %q", cfg.HTTP.Addr)
	}
	provider, enabled := cfg.Provider("linear")
	if !enabled || provider.SigningSecret != "lin_secret" {
		t.Fatalf("expected linear credentials from config, got %#v", provider)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}

	cfg.Hooks.Mode = "eventually"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown hook mode to fail")
	}

	cfg = DefaultConfig()
	cfg.Store.Driver = StoreDriverSQLite
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected sqlite without dsn to fail")
	}

	cfg = DefaultConfig()
	if cfg.MaxAge() != DefaultMaxAge || cfg.RefreshBuffer() != DefaultRefreshBuffer {
		t.Fatalf("unexpected duration defaults")
	}
	if _, enabled := cfg.Provider("unknown"); !enabled {
		t.Fatalf("expected unconfigured providers to be enabled")
	}
}
