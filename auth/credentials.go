package auth

import (
	"strings"

	"github.com/goliatone/go-ingress/core"
)

// WildcardTenant holds the credentials used for tenants without an override.
const WildcardTenant = "*"

// StaticCredentials maps provider id to tenant id to configured credentials.
type StaticCredentials map[string]map[string]core.ProviderCredentials

// StaticCredentialsFromConfig lifts provider-wide credentials into the
// wildcard tenant and merges each tenant override on top of them.
func StaticCredentialsFromConfig(cfg core.Config) StaticCredentials {
	out := StaticCredentials{}
	for providerID, provider := range cfg.Providers {
		providerID = strings.TrimSpace(providerID)
		if providerID == "" {
			continue
		}
		defaults := provider.Defaults()
		tenants := map[string]core.ProviderCredentials{WildcardTenant: defaults}
		for tenantID, override := range provider.Tenants {
			tenantID = strings.TrimSpace(tenantID)
			if tenantID == "" {
				continue
			}
			tenants[tenantID] = mergeCredentials(defaults, override)
		}
		out[providerID] = tenants
	}
	return out
}

// Lookup returns the tenant's credentials, falling back to the wildcard tenant.
func (c StaticCredentials) Lookup(providerID, tenantID string) (core.ProviderCredentials, bool) {
	tenants, ok := c[strings.TrimSpace(providerID)]
	if !ok {
		return core.ProviderCredentials{}, false
	}
	if creds, ok := tenants[strings.TrimSpace(tenantID)]; ok {
		return creds, true
	}
	creds, ok := tenants[WildcardTenant]
	return creds, ok
}

// HasSigningSecret reports whether any tenant of the provider has a secret.
func (c StaticCredentials) HasSigningSecret(providerID string) bool {
	for _, creds := range c[strings.TrimSpace(providerID)] {
		if strings.TrimSpace(creds.SigningSecret) != "" {
			return true
		}
	}
	return false
}

func mergeCredentials(base, override core.ProviderCredentials) core.ProviderCredentials {
	return core.ProviderCredentials{
		SigningSecret: firstNonEmpty(override.SigningSecret, base.SigningSecret),
		APIKey:        firstNonEmpty(override.APIKey, base.APIKey),
		ClientID:      firstNonEmpty(override.ClientID, base.ClientID),
		ClientSecret:  firstNonEmpty(override.ClientSecret, base.ClientSecret),
		RefreshToken:  firstNonEmpty(override.RefreshToken, base.RefreshToken),
		AccessToken:   firstNonEmpty(override.AccessToken, base.AccessToken),
		TokenURL:      firstNonEmpty(override.TokenURL, base.TokenURL),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
