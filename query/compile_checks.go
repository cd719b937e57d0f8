package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingress/core"
)

var (
	_ gocmd.Querier[FindEntityMessage, core.StoredEntity]     = (*FindEntityQuery)(nil)
	_ gocmd.Querier[ListEntitiesMessage, []core.StoredEntity] = (*ListEntitiesQuery)(nil)
)
