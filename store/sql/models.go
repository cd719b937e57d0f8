package sqlstore

import (
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/uptrace/bun"
)

type entityRecord struct {
	bun.BaseModel `bun:"table:ingress_entities,alias:ie"`

	ID         string         `bun:"id,pk"`
	TenantID   string         `bun:"tenant_id,notnull"`
	Collection string         `bun:"collection,notnull"`
	ExternalID string         `bun:"external_id,notnull"`
	ProviderID string         `bun:"provider_id,notnull"`
	Fields     map[string]any `bun:"fields,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newEntityRecord(id string, key core.EntityKey, fields map[string]any, now time.Time) *entityRecord {
	return &entityRecord{
		ID:         id,
		TenantID:   key.TenantID,
		Collection: key.Collection,
		ExternalID: key.ExternalID,
		ProviderID: providerFromFields(fields),
		Fields:     core.CloneFields(fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// merge applies fields over the stored ones; incoming keys win.
func (r *entityRecord) merge(fields map[string]any, now time.Time) {
	merged := core.CloneFields(r.Fields)
	for key, value := range core.CloneFields(fields) {
		merged[key] = value
	}
	r.Fields = merged
	if provider := providerFromFields(fields); provider != "" {
		r.ProviderID = provider
	}
	r.UpdatedAt = now
}

func (r *entityRecord) toDomain() core.StoredEntity {
	if r == nil {
		return core.StoredEntity{}
	}
	return core.StoredEntity{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Collection: r.Collection,
		ExternalID: r.ExternalID,
		ProviderID: r.ProviderID,
		Fields:     core.CloneFields(r.Fields),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func providerFromFields(fields map[string]any) string {
	if value, ok := fields["provider_id"].(string); ok {
		return value
	}
	return ""
}
