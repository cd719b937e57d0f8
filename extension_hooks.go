package ingress

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-ingress/core"
)

// ProviderPack groups custom provider descriptors registered alongside the
// built-in ones.
type ProviderPack struct {
	Name      string
	Providers []core.ProviderDescriptor
}

// HookPack groups after-hooks attached to every provider handler.
type HookPack struct {
	Name  string
	Hooks []core.Hook
}

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	hookPacks     map[string]HookPack
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		hookPacks:     map[string]HookPack{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("ingress: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingress: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("ingress: provider pack %q has no providers", name)
	}
	for idx, provider := range pack.Providers {
		if strings.TrimSpace(provider.ID) == "" {
			return fmt.Errorf("ingress: provider pack %q entry %d has no id", name, idx)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("ingress: provider pack %q already registered", name)
	}
	h.providerPacks[name] = ProviderPack{
		Name:      name,
		Providers: append([]core.ProviderDescriptor(nil), pack.Providers...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterHookPack(pack HookPack) error {
	if h == nil {
		return fmt.Errorf("ingress: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingress: hook pack name is required")
	}
	hooks := make([]core.Hook, 0, len(pack.Hooks))
	for _, hook := range pack.Hooks {
		if hook != nil {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return fmt.Errorf("ingress: hook pack %q has no hooks", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.hookPacks[name]; exists {
		return fmt.Errorf("ingress: hook pack %q already registered", name)
	}
	h.hookPacks[name] = HookPack{Name: name, Hooks: hooks}
	return nil
}

// ProviderPacks returns the registered packs sorted by name.
func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ProviderPack, 0, len(h.providerPacks))
	for _, name := range sortedKeys(h.providerPacks) {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.ProviderDescriptor(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) HookPacks() []HookPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HookPack, 0, len(h.hookPacks))
	for _, name := range sortedKeys(h.hookPacks) {
		pack := h.hookPacks[name]
		out = append(out, HookPack{Name: pack.Name, Hooks: append([]core.Hook(nil), pack.Hooks...)})
	}
	return out
}

// Options turns the registered packs into Build options. Packs apply in name
// order so provider matchers are evaluated deterministically.
func (h *ExtensionHooks) Options() []core.Option {
	if h == nil {
		return nil
	}
	var (
		providers []core.ProviderDescriptor
		hooks     []core.Hook
	)
	for _, pack := range h.ProviderPacks() {
		providers = append(providers, pack.Providers...)
	}
	for _, pack := range h.HookPacks() {
		hooks = append(hooks, pack.Hooks...)
	}

	var opts []core.Option
	if len(providers) > 0 {
		opts = append(opts, core.WithProviders(providers...))
	}
	if len(hooks) > 0 {
		opts = append(opts, core.WithHooks(hooks...))
	}
	return opts
}

func sortedKeys[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
