package query

import (
	"strings"

	"github.com/goliatone/go-ingress/core"
)

const (
	TypeFindEntity   = "ingress.query.entity.find"
	TypeListEntities = "ingress.query.entity.list"
)

type FindEntityMessage struct {
	TenantID   string
	Collection string
	ExternalID string
}

func (FindEntityMessage) Type() string { return TypeFindEntity }

func (m FindEntityMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.TenantID) == "":
		return queryValidationError("tenant_id", "tenant id is required")
	case strings.TrimSpace(m.Collection) == "":
		return queryValidationError("collection", "collection is required")
	case strings.TrimSpace(m.ExternalID) == "":
		return queryValidationError("external_id", "external id is required")
	}
	return nil
}

func (m FindEntityMessage) Key() core.EntityKey {
	return core.EntityKey{TenantID: m.TenantID, Collection: m.Collection, ExternalID: m.ExternalID}.Normalize()
}

type ListEntitiesMessage struct {
	TenantID   string
	Collection string
	Limit      int
}

func (ListEntitiesMessage) Type() string { return TypeListEntities }

func (m ListEntitiesMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.TenantID) == "":
		return queryValidationError("tenant_id", "tenant id is required")
	case strings.TrimSpace(m.Collection) == "":
		return queryValidationError("collection", "collection is required")
	case m.Limit < 0:
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
