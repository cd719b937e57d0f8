package ingress

import (
	"fmt"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/providers/algolia"
	"github.com/goliatone/go-ingress/providers/attio"
	"github.com/goliatone/go-ingress/providers/gcalendar"
	"github.com/goliatone/go-ingress/providers/github"
	"github.com/goliatone/go-ingress/providers/linear"
	"github.com/goliatone/go-ingress/providers/slack"
)

func SlackProvider(cfg slack.Config) (core.ProviderDescriptor, error) {
	return slack.New(cfg)
}

func LinearProvider(cfg linear.Config) (core.ProviderDescriptor, error) {
	return linear.New(cfg)
}

func GitHubProvider(cfg github.Config) (core.ProviderDescriptor, error) {
	return github.New(cfg)
}

func AttioProvider(cfg attio.Config) (core.ProviderDescriptor, error) {
	return attio.New(cfg)
}

func GoogleCalendarProvider(cfg gcalendar.Config) (core.ProviderDescriptor, error) {
	return gcalendar.New(cfg)
}

func AlgoliaProvider(cfg algolia.Config) (core.ProviderDescriptor, error) {
	return algolia.New(cfg)
}

// ProviderFactory builds one built-in descriptor from the engine config and
// that provider's section of it.
type ProviderFactory func(cfg core.Config, provider core.ProviderConfig, now func() time.Time) (core.ProviderDescriptor, error)

type builtinProvider struct {
	id      string
	factory ProviderFactory
}

// builtins are listed in registration order, which is also the order their
// boundary matchers are evaluated in.
var builtins = []builtinProvider{
	{id: slack.ProviderID, factory: func(cfg core.Config, p core.ProviderConfig, now func() time.Time) (core.ProviderDescriptor, error) {
		return SlackProvider(slack.Config{AllowUnsigned: p.AllowUnsigned, MaxAge: cfg.MaxAge(), Now: now})
	}},
	// Linear keeps its own 60s webhookTimestamp window rather than the
	// engine-wide signature max age.
	{id: linear.ProviderID, factory: func(_ core.Config, p core.ProviderConfig, now func() time.Time) (core.ProviderDescriptor, error) {
		return LinearProvider(linear.Config{AllowUnsigned: p.AllowUnsigned, Now: now})
	}},
	{id: github.ProviderID, factory: func(_ core.Config, p core.ProviderConfig, _ func() time.Time) (core.ProviderDescriptor, error) {
		return GitHubProvider(github.Config{AllowUnsigned: p.AllowUnsigned})
	}},
	{id: attio.ProviderID, factory: func(_ core.Config, p core.ProviderConfig, _ func() time.Time) (core.ProviderDescriptor, error) {
		return AttioProvider(attio.Config{AllowUnsigned: p.AllowUnsigned})
	}},
	{id: gcalendar.ProviderID, factory: func(_ core.Config, p core.ProviderConfig, _ func() time.Time) (core.ProviderDescriptor, error) {
		return GoogleCalendarProvider(gcalendar.Config{AllowUnsigned: p.AllowUnsigned})
	}},
	{id: algolia.ProviderID, factory: func(_ core.Config, p core.ProviderConfig, _ func() time.Time) (core.ProviderDescriptor, error) {
		return AlgoliaProvider(algolia.Config{AllowUnsigned: p.AllowUnsigned})
	}},
}

// BuiltinProviderIDs lists the bundled providers in registration order.
func BuiltinProviderIDs() []string {
	ids := make([]string, 0, len(builtins))
	for _, builtin := range builtins {
		ids = append(ids, builtin.id)
	}
	return ids
}

// BuiltinProviders builds every bundled provider the config leaves enabled.
func BuiltinProviders(cfg core.Config, now func() time.Time) ([]core.ProviderDescriptor, error) {
	out := make([]core.ProviderDescriptor, 0, len(builtins))
	for _, builtin := range builtins {
		providerCfg, enabled := cfg.Provider(builtin.id)
		if !enabled {
			continue
		}
		descriptor, err := builtin.factory(cfg, providerCfg, now)
		if err != nil {
			return nil, fmt.Errorf("ingress: build provider %q: %w", builtin.id, err)
		}
		out = append(out, descriptor)
	}
	return out, nil
}
