package ingress

import "github.com/goliatone/go-ingress/core"

type Config = core.Config

type Option = core.Option

type ProviderDescriptor = core.ProviderDescriptor
type Hook = core.Hook
type HookInput = core.HookInput
type Event = core.Event
type Response = core.Response
type StoredEntity = core.StoredEntity
type EntityStore = core.EntityStore

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithEntityStore     = core.WithEntityStore
	WithTokenCache      = core.WithTokenCache
	WithTokenRefresher  = core.WithTokenRefresher
	WithJobEnqueuer     = core.WithJobEnqueuer
	WithClaimStore      = core.WithClaimStore
	WithHTTPClient      = core.WithHTTPClient
	WithHooks           = core.WithHooks
	WithProviders       = core.WithProviders
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// WithConfigFile loads the YAML or JSON file at path as the config layer
// beneath the runtime overrides passed to Build.
func WithConfigFile(path string) Option {
	return core.WithConfigProvider(core.NewCfgxConfigProvider(core.FileConfigLoader{Path: path}))
}
