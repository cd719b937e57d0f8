package algolia

import (
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/providers"
	"github.com/goliatone/go-ingress/webhooks"
)

const (
	ProviderID = "algolia"

	SignatureHeader = "x-algolia-signature"
	SignaturePrefix = "sha1="

	CollectionIndices = "search_indices"
)

type Config struct {
	AllowUnsigned bool
}

func New(cfg Config) (core.ProviderDescriptor, error) {
	verifier := webhooks.HMACHeader{Header: SignatureHeader, Prefix: SignaturePrefix, Algorithm: webhooks.SHA1}
	guard := func(handle core.HandlerFunc) core.HandlerFunc {
		return providers.Verified(verifier, cfg.AllowUnsigned, handle)
	}
	indices := providers.Mapping{
		Collection: CollectionIndices,
		ExternalID: providers.PathString("index"),
		Fields: func(req *core.WebhookRequest) map[string]any {
			fields := req.Map("data")
			fields["index"] = req.String("index")
			fields["application_id"] = req.String("application_id")
			return fields
		},
	}
	return core.ProviderDescriptor{
		ID:            ProviderID,
		AuthKinds:     []core.AuthKind{core.AuthKindStaticKey},
		Matcher:       func(req *core.WebhookRequest) bool { return req.HasHeader(SignatureHeader) },
		AllowUnsigned: cfg.AllowUnsigned,
		DeliveryID:    webhooks.PayloadDeliveryID("id"),
		Handlers: []core.EventHandler{
			{Action: "index.updated", Matcher: providers.PayloadEquals("index.updated", "type"), Collections: []string{CollectionIndices}, Handle: guard(providers.Upsert(indices))},
			{Action: "index.deleted", Matcher: providers.PayloadEquals("index.deleted", "type"), Collections: []string{CollectionIndices}, Handle: guard(providers.Delete(indices))},
		},
	}, nil
}
