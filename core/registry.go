package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderRegistry keeps descriptors in registration order, which is also the
// order boundary matchers are evaluated in.
type ProviderRegistry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]ProviderDescriptor
	observer  Observer
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]ProviderDescriptor)}
}

// WithObserver attaches the logger used for configuration-time warnings.
func (r *ProviderRegistry) WithObserver(observer Observer) *ProviderRegistry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = observer
	return r
}

func (r *ProviderRegistry) Register(provider ProviderDescriptor) error {
	return r.RegisterWithSecret(provider, true)
}

// RegisterWithSecret registers provider and, when the provider accepts
// unsigned requests and hasSecret is false, logs a configuration warning.
func (r *ProviderRegistry) RegisterWithSecret(provider ProviderDescriptor, hasSecret bool) error {
	if r == nil {
		return fmt.Errorf("core: provider registry is nil")
	}
	id := strings.TrimSpace(provider.ID)
	if id == "" {
		return BadInputError("core: provider id is required", nil)
	}
	if provider.Matcher == nil {
		return BadInputError(fmt.Sprintf("core: provider %q boundary matcher is required", id), map[string]any{"provider_id": id})
	}
	actions := map[string]struct{}{}
	for idx, handler := range provider.Handlers {
		action := strings.TrimSpace(handler.Action)
		if action == "" {
			return BadInputError(fmt.Sprintf("core: provider %q handler %d action is required", id, idx), map[string]any{"provider_id": id})
		}
		if handler.Matcher == nil || handler.Handle == nil {
			return BadInputError(
				fmt.Sprintf("core: provider %q handler %q requires matcher and handle", id, action),
				map[string]any{"provider_id": id, "action": action},
			)
		}
		if _, exists := actions[action]; exists {
			return BadInputError(
				fmt.Sprintf("core: provider %q handler %q declared twice", id, action),
				map[string]any{"provider_id": id, "action": action},
			)
		}
		actions[action] = struct{}{}
	}

	stored := provider
	stored.ID = id
	stored.AuthKinds = append([]AuthKind(nil), provider.AuthKinds...)
	stored.Handlers = make([]EventHandler, len(provider.Handlers))
	for i, handler := range provider.Handlers {
		copied := handler
		copied.Action = strings.TrimSpace(handler.Action)
		copied.Collections = append([]string(nil), handler.Collections...)
		copied.Hooks = append([]Hook(nil), handler.Hooks...)
		stored.Handlers[i] = copied
	}

	r.mu.Lock()
	if _, exists := r.providers[id]; exists {
		r.mu.Unlock()
		return NewError(
			fmt.Sprintf("core: provider already registered: %s", id),
			goerrors.CategoryConflict,
			ErrorConflict,
			map[string]any{"provider_id": id},
		)
	}
	r.providers[id] = stored
	r.order = append(r.order, id)
	observer := r.observer
	r.mu.Unlock()

	if stored.AllowUnsigned && !hasSecret {
		observer.Log(context.Background(), "warn", "provider accepts unsigned webhooks: no signing secret configured", map[string]any{
			"provider_id": id,
		})
	}
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (ProviderDescriptor, bool) {
	id := strings.TrimSpace(providerID)
	if r == nil || id == "" {
		return ProviderDescriptor{}, false
	}
	r.mu.RLock()
	provider, ok := r.providers[id]
	r.mu.RUnlock()
	return provider, ok
}

func (r *ProviderRegistry) List() []ProviderDescriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// Match returns the first provider whose boundary matcher claims req.
func (r *ProviderRegistry) Match(req *WebhookRequest) (ProviderDescriptor, bool) {
	for _, provider := range r.List() {
		if provider.Matcher(req) {
			return provider, true
		}
	}
	return ProviderDescriptor{}, false
}
