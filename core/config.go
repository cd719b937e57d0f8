package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const (
	HookModeSync     = "sync"
	HookModeDetached = "detached"

	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"

	TokenCacheMemory    = "memory"
	TokenCacheRistretto = "ristretto"

	DefaultMaxAge        = 300 * time.Second
	DefaultRefreshBuffer = 5 * time.Minute
	DefaultMaxBodyBytes  = int64(1 << 20)
)

type VerificationConfig struct {
	MaxAgeSeconds int `koanf:"max_age_seconds" mapstructure:"max_age_seconds" validate:"gte=0"`
}

type CredentialsConfig struct {
	RefreshBufferSeconds int    `koanf:"refresh_buffer_seconds" mapstructure:"refresh_buffer_seconds" validate:"gte=0"`
	Cache                string `koanf:"cache" mapstructure:"cache" validate:"oneof=memory ristretto"`
	CacheMaxCost         int64  `koanf:"cache_max_cost" mapstructure:"cache_max_cost" validate:"gte=0"`
}

type HooksConfig struct {
	Mode string `koanf:"mode" mapstructure:"mode" validate:"oneof=sync detached"`
}

type DedupeConfig struct {
	Enabled    bool `koanf:"enabled" mapstructure:"enabled"`
	TTLSeconds int  `koanf:"ttl_seconds" mapstructure:"ttl_seconds" validate:"gte=0"`
}

type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" mapstructure:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" mapstructure:"burst" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr         string          `koanf:"addr" mapstructure:"addr" validate:"required"`
	MaxBodyBytes int64           `koanf:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	RateLimit    RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
}

type StoreConfig struct {
	Driver          string `koanf:"driver" mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	DSN             string `koanf:"dsn" mapstructure:"dsn"`
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	Debug           bool   `koanf:"debug" mapstructure:"debug"`
}

type CloudEventsConfig struct {
	Target     string `koanf:"target" mapstructure:"target" validate:"omitempty,url"`
	Source     string `koanf:"source" mapstructure:"source"`
	TypePrefix string `koanf:"type_prefix" mapstructure:"type_prefix"`
}

type NATSConfig struct {
	URL           string `koanf:"url" mapstructure:"url"`
	SubjectPrefix string `koanf:"subject_prefix" mapstructure:"subject_prefix"`
}

type ForwardConfig struct {
	CloudEvents CloudEventsConfig `koanf:"cloudevents" mapstructure:"cloudevents"`
	NATS        NATSConfig        `koanf:"nats" mapstructure:"nats"`
}

type MetricsConfig struct {
	Prometheus bool `koanf:"prometheus" mapstructure:"prometheus"`
}

// ProviderCredentials holds the secrets for one provider, either as the
// provider-wide default or as a tenant override.
type ProviderCredentials struct {
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
	APIKey        string `koanf:"api_key" mapstructure:"api_key"`
	ClientID      string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string `koanf:"client_secret" mapstructure:"client_secret"`
	RefreshToken  string `koanf:"refresh_token" mapstructure:"refresh_token"`
	AccessToken   string `koanf:"access_token" mapstructure:"access_token"`
	TokenURL      string `koanf:"token_url" mapstructure:"token_url"`
}

type ProviderConfig struct {
	Disabled      bool                           `koanf:"disabled" mapstructure:"disabled"`
	AllowUnsigned bool                           `koanf:"allow_unsigned" mapstructure:"allow_unsigned"`
	SigningSecret string                         `koanf:"signing_secret" mapstructure:"signing_secret"`
	APIKey        string                         `koanf:"api_key" mapstructure:"api_key"`
	ClientID      string                         `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string                         `koanf:"client_secret" mapstructure:"client_secret"`
	RefreshToken  string                         `koanf:"refresh_token" mapstructure:"refresh_token"`
	AccessToken   string                         `koanf:"access_token" mapstructure:"access_token"`
	TokenURL      string                         `koanf:"token_url" mapstructure:"token_url"`
	Tenants       map[string]ProviderCredentials `koanf:"tenants" mapstructure:"tenants"`
}

func (p ProviderConfig) Defaults() ProviderCredentials {
	return ProviderCredentials{
		SigningSecret: p.SigningSecret,
		APIKey:        p.APIKey,
		ClientID:      p.ClientID,
		ClientSecret:  p.ClientSecret,
		RefreshToken:  p.RefreshToken,
		AccessToken:   p.AccessToken,
		TokenURL:      p.TokenURL,
	}
}

type Config struct {
	ServiceName   string                    `koanf:"service_name" mapstructure:"service_name" validate:"required"`
	DefaultTenant string                    `koanf:"default_tenant" mapstructure:"default_tenant" validate:"required"`
	Verification  VerificationConfig        `koanf:"verification" mapstructure:"verification"`
	Credentials   CredentialsConfig         `koanf:"credentials" mapstructure:"credentials"`
	Hooks         HooksConfig               `koanf:"hooks" mapstructure:"hooks"`
	Dedupe        DedupeConfig              `koanf:"dedupe" mapstructure:"dedupe"`
	HTTP          HTTPConfig                `koanf:"http" mapstructure:"http"`
	Store         StoreConfig               `koanf:"store" mapstructure:"store"`
	Forward       ForwardConfig             `koanf:"forward" mapstructure:"forward"`
	Metrics       MetricsConfig             `koanf:"metrics" mapstructure:"metrics"`
	Providers     map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "ingress",
		DefaultTenant: DefaultTenantID,
		Verification:  VerificationConfig{MaxAgeSeconds: int(DefaultMaxAge / time.Second)},
		Credentials: CredentialsConfig{
			RefreshBufferSeconds: int(DefaultRefreshBuffer / time.Second),
			Cache:                TokenCacheMemory,
			CacheMaxCost:         1 << 20,
		},
		Hooks:  HooksConfig{Mode: HookModeSync},
		Dedupe: DedupeConfig{TTLSeconds: 600},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			MaxBodyBytes: DefaultMaxBodyBytes,
			RateLimit:    RateLimitConfig{RPS: 50, Burst: 100},
		},
		Store: StoreConfig{Driver: StoreDriverMemory, CacheTTLSeconds: 30},
		Forward: ForwardConfig{
			CloudEvents: CloudEventsConfig{Source: "go-ingress", TypePrefix: "ingress"},
			NATS:        NATSConfig{SubjectPrefix: "ingress"},
		},
		Providers: map[string]ProviderConfig{},
	}
}

var configValidator = validator.New()

func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			fields := make([]goerrors.FieldError, 0, len(validationErrs))
			for _, fieldErr := range validationErrs {
				fields = append(fields, goerrors.FieldError{
					Field:   fieldErr.Namespace(),
					Message: fmt.Sprintf("failed %q validation", fieldErr.Tag()),
				})
			}
			return goerrors.NewValidation("core: invalid configuration", fields...).
				WithCode(http.StatusBadRequest).
				WithTextCode(ErrorBadInput)
		}
		return fmt.Errorf("core: invalid configuration: %w", err)
	}
	driver := strings.TrimSpace(strings.ToLower(c.Store.Driver))
	if driver != StoreDriverMemory && strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("core: store.dsn is required for driver %q", driver)
	}
	for id := range c.Providers {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("core: provider id is required in providers config")
		}
	}
	return nil
}

func (c Config) MaxAge() time.Duration {
	if c.Verification.MaxAgeSeconds <= 0 {
		return DefaultMaxAge
	}
	return time.Duration(c.Verification.MaxAgeSeconds) * time.Second
}

func (c Config) RefreshBuffer() time.Duration {
	if c.Credentials.RefreshBufferSeconds <= 0 {
		return DefaultRefreshBuffer
	}
	return time.Duration(c.Credentials.RefreshBufferSeconds) * time.Second
}

func (c Config) DedupeTTL() time.Duration {
	if c.Dedupe.TTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Dedupe.TTLSeconds) * time.Second
}

func (c Config) StoreCacheTTL() time.Duration {
	return time.Duration(c.Store.CacheTTLSeconds) * time.Second
}

// Provider returns the provider config and whether it is enabled. Providers
// absent from the config are enabled with empty credentials.
func (c Config) Provider(id string) (ProviderConfig, bool) {
	cfg, ok := c.Providers[strings.TrimSpace(id)]
	if !ok {
		return ProviderConfig{}, true
	}
	return cfg, !cfg.Disabled
}

// FileConfigLoader reads a YAML (or JSON) document into a raw map for cfgx.
type FileConfigLoader struct {
	Path string
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("core: read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: decode config file: %w", err)
	}
	return raw, nil
}
