package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type AuthKind string

const (
	AuthKindStaticKey AuthKind = "static_key"
	AuthKindOAuth2    AuthKind = "oauth2"
	AuthKindBotToken  AuthKind = "bot_token"
)

type UsageContext string

const (
	UsageEndpoint UsageContext = "endpoint"
	UsageWebhook  UsageContext = "webhook"
)

const DefaultTenantID = "default"

type TokenKey struct {
	ProviderID string
	TenantID   string
	ClientID   string
}

func (k TokenKey) String() string {
	return strings.Join([]string{
		url.PathEscape(strings.TrimSpace(k.ProviderID)),
		url.PathEscape(strings.TrimSpace(k.TenantID)),
		url.PathEscape(strings.TrimSpace(k.ClientID)),
	}, "::")
}

type CachedToken struct {
	Token     string
	ExpiresAt time.Time
}

// FreshAt reports whether the token can still be handed out at now without
// entering the refresh buffer.
func (t CachedToken) FreshAt(now time.Time, buffer time.Duration) bool {
	if strings.TrimSpace(t.Token) == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(buffer).Before(t.ExpiresAt)
}

type EntityKey struct {
	TenantID   string
	Collection string
	ExternalID string
}

func (k EntityKey) Normalize() EntityKey {
	return EntityKey{
		TenantID:   strings.TrimSpace(k.TenantID),
		Collection: strings.TrimSpace(strings.ToLower(k.Collection)),
		ExternalID: strings.TrimSpace(k.ExternalID),
	}
}

// String renders the key as tenant::collection::external_id with each part
// path-escaped, for use as a cache or log key.
func (k EntityKey) String() string {
	k = k.Normalize()
	return strings.Join([]string{
		url.PathEscape(k.TenantID),
		url.PathEscape(k.Collection),
		url.PathEscape(k.ExternalID),
	}, "::")
}

func (k EntityKey) Validate() error {
	switch {
	case strings.TrimSpace(k.TenantID) == "":
		return fmt.Errorf("core: entity tenant id is required")
	case strings.TrimSpace(k.Collection) == "":
		return fmt.Errorf("core: entity collection is required")
	case strings.TrimSpace(k.ExternalID) == "":
		return fmt.Errorf("core: entity external id is required")
	}
	return nil
}

type StoredEntity struct {
	ID         string
	TenantID   string
	Collection string
	ExternalID string
	ProviderID string
	Fields     map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (e StoredEntity) Key() EntityKey {
	return EntityKey{TenantID: e.TenantID, Collection: e.Collection, ExternalID: e.ExternalID}
}

// Event is the derived notification handed to after-hooks and forwarders.
type Event struct {
	ID         string         `json:"id"`
	ProviderID string         `json:"provider_id"`
	Action     string         `json:"action"`
	TenantID   string         `json:"tenant_id"`
	Collection string         `json:"collection,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

type Filtered struct {
	Plugin *string `json:"plugin"`
	Action *string `json:"action"`
}

type Envelope struct {
	Success  bool      `json:"success"`
	Filtered *Filtered `json:"filtered,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Response is what the ingress boundary writes back. Raw bodies bypass the
// envelope and are echoed to the sender as-is.
type Response struct {
	StatusCode int
	Body       any
	Raw        bool
	Metadata   map[string]any
}

func FilteredEnvelope(providerID, action string) Envelope {
	return Envelope{
		Success:  true,
		Filtered: &Filtered{Plugin: optionalString(providerID), Action: optionalString(action)},
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneAny(value)
	}
	return out
}

func cloneAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneAnyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneAny(item)
		}
		return out
	default:
		return value
	}
}

func CloneFields(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	return cloneAnyMap(in)
}
