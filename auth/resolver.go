package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingress/core"
)

type Resolver struct {
	Credentials StaticCredentials
	Cache       core.TokenCache
	Refresher   core.TokenRefresher
	Buffer      time.Duration
	Now         func() time.Time
	Observer    core.Observer

	// rotated refresh tokens issued by the token endpoint, keyed by TokenKey.
	rotated sync.Map
}

func NewResolver(credentials StaticCredentials, cache core.TokenCache, refresher core.TokenRefresher) *Resolver {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &Resolver{
		Credentials: credentials,
		Cache:       cache,
		Refresher:   refresher,
		Buffer:      core.DefaultRefreshBuffer,
	}
}

func (r *Resolver) Resolve(ctx context.Context, provider core.ProviderDescriptor, tenantID string, usage core.UsageContext) string {
	if r == nil {
		return ""
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = core.DefaultTenantID
	}
	creds, _ := r.Credentials.Lookup(provider.ID, tenantID)

	if static := staticValue(provider, creds, usage); static != "" {
		return static
	}
	// Signing secrets are never OAuth tokens.
	if usage == core.UsageWebhook || !provider.SupportsAuth(core.AuthKindOAuth2) {
		return ""
	}
	if creds.ClientID == "" || creds.TokenURL == "" {
		return ""
	}

	key := core.TokenKey{ProviderID: provider.ID, TenantID: tenantID, ClientID: creds.ClientID}
	now := r.now()
	cached, hasCached := core.CachedToken{}, false
	if r.Cache != nil {
		cached, hasCached = r.Cache.Get(key)
		if hasCached && cached.FreshAt(now, r.buffer()) {
			return cached.Token
		}
	}

	fallback := creds.AccessToken
	if hasCached && cached.Token != "" {
		fallback = cached.Token
	}
	refreshToken := r.refreshToken(key, creds.RefreshToken)
	if r.Refresher == nil || refreshToken == "" {
		return fallback
	}

	refreshed, err := r.Refresher.Refresh(ctx, core.RefreshRequest{
		ProviderID:   provider.ID,
		TenantID:     tenantID,
		TokenURL:     creds.TokenURL,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RefreshToken: refreshToken,
	})
	if err != nil {
		r.Observer.Log(ctx, "warn", "credential refresh failed; using previous access token", map[string]any{
			"provider_id":  provider.ID,
			"tenant_id":    tenantID,
			"has_fallback": fallback != "",
			"error":        err.Error(),
		})
		r.Observer.Counter(ctx, core.MetricPrefix+".credentials.refresh_failed", 1, map[string]string{
			"provider_id": provider.ID,
			"tenant_id":   tenantID,
		})
		return fallback
	}

	expiresAt := refreshed.ExpiresAt
	if refreshed.ExpiresIn > 0 {
		expiresAt = now.Add(refreshed.ExpiresIn)
	}
	if r.Cache != nil {
		r.Cache.Put(key, core.CachedToken{Token: refreshed.AccessToken, ExpiresAt: expiresAt})
	}
	if refreshed.RefreshToken != "" && refreshed.RefreshToken != refreshToken {
		r.rotated.Store(key.String(), refreshed.RefreshToken)
	}
	r.Observer.Counter(ctx, core.MetricPrefix+".credentials.refreshed", 1, map[string]string{
		"provider_id": provider.ID,
		"tenant_id":   tenantID,
	})
	return refreshed.AccessToken
}

// Invalidate drops the cached token so the next resolve refreshes.
func (r *Resolver) Invalidate(providerID, tenantID, clientID string) {
	if r == nil || r.Cache == nil {
		return
	}
	r.Cache.Delete(core.TokenKey{ProviderID: providerID, TenantID: tenantID, ClientID: clientID})
}

func staticValue(provider core.ProviderDescriptor, creds core.ProviderCredentials, usage core.UsageContext) string {
	switch usage {
	case core.UsageWebhook:
		return creds.SigningSecret
	case core.UsageEndpoint:
		if creds.APIKey != "" {
			return creds.APIKey
		}
		if provider.SupportsAuth(core.AuthKindBotToken) && !provider.SupportsAuth(core.AuthKindOAuth2) {
			return creds.AccessToken
		}
	}
	return ""
}

func (r *Resolver) refreshToken(key core.TokenKey, configured string) string {
	if value, ok := r.rotated.Load(key.String()); ok {
		if token, ok := value.(string); ok && token != "" {
			return token
		}
	}
	return configured
}

func (r *Resolver) buffer() time.Duration {
	if r.Buffer <= 0 {
		return core.DefaultRefreshBuffer
	}
	return r.Buffer
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.CredentialResolver = (*Resolver)(nil)
