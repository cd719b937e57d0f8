package github

import (
	"context"
	"strings"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/providers"
	"github.com/goliatone/go-ingress/webhooks"
)

const (
	ProviderID = "github"

	EventHeader     = "x-github-event"
	SignatureHeader = "x-hub-signature-256"
	DeliveryHeader  = "x-github-delivery"
	SignaturePrefix = "sha256="

	CollectionPullRequests = "pull_requests"
	CollectionIssues       = "issues"
	CollectionCommits      = "commits"
)

type Config struct {
	AllowUnsigned bool
}

func New(cfg Config) (core.ProviderDescriptor, error) {
	verifier := webhooks.HMACHeader{Header: SignatureHeader, Prefix: SignaturePrefix, Algorithm: webhooks.SHA256}
	guard := func(handle core.HandlerFunc) core.HandlerFunc {
		return providers.Verified(verifier, cfg.AllowUnsigned, handle)
	}
	pulls := providers.Mapping{
		Collection: CollectionPullRequests,
		ExternalID: providers.PathString("pull_request", "id"),
		Fields:     pullRequestFields,
	}
	issues := providers.Mapping{
		Collection: CollectionIssues,
		ExternalID: providers.PathString("issue", "id"),
		Fields:     issueFields,
	}

	handlers := []core.EventHandler{
		{Action: "ping", Matcher: providers.HeaderEquals(EventHeader, "ping"), Handshake: true, Handle: guard(providers.Ack())},
	}
	for _, action := range []string{"opened", "closed", "edited", "reopened"} {
		handlers = append(handlers, core.EventHandler{
			Action:      "pull_request." + action,
			Matcher:     event("pull_request", action),
			Collections: []string{CollectionPullRequests},
			Handle:      guard(providers.Upsert(pulls)),
		})
	}
	for _, action := range []string{"opened", "edited", "closed"} {
		handlers = append(handlers, core.EventHandler{
			Action:      "issues." + action,
			Matcher:     event("issues", action),
			Collections: []string{CollectionIssues},
			Handle:      guard(providers.Upsert(issues)),
		})
	}
	handlers = append(handlers, core.EventHandler{
		Action:      "push",
		Matcher:     providers.HeaderEquals(EventHeader, "push"),
		Collections: []string{CollectionCommits},
		Handle:      guard(push),
	})

	return core.ProviderDescriptor{
		ID:            ProviderID,
		AuthKinds:     []core.AuthKind{core.AuthKindStaticKey, core.AuthKindOAuth2},
		Matcher:       func(req *core.WebhookRequest) bool { return req.HasHeader(EventHeader) },
		AllowUnsigned: cfg.AllowUnsigned,
		DeliveryID:    webhooks.HeaderDeliveryID(DeliveryHeader),
		Handlers:      handlers,
	}, nil
}

func event(name, action string) core.EventMatcher {
	return providers.All(
		providers.HeaderEquals(EventHeader, name),
		providers.PayloadEquals(action, "action"),
	)
}

func pullRequestFields(req *core.WebhookRequest) map[string]any {
	pr := req.Map("pull_request")
	return map[string]any{
		"number":     pr["number"],
		"title":      pr["title"],
		"state":      pr["state"],
		"merged":     pr["merged"],
		"html_url":   pr["html_url"],
		"author":     req.String("pull_request", "user", "login"),
		"head_ref":   req.String("pull_request", "head", "ref"),
		"base_ref":   req.String("pull_request", "base", "ref"),
		"repository": req.String("repository", "full_name"),
	}
}

func issueFields(req *core.WebhookRequest) map[string]any {
	issue := req.Map("issue")
	return map[string]any{
		"number":     issue["number"],
		"title":      issue["title"],
		"state":      issue["state"],
		"html_url":   issue["html_url"],
		"author":     req.String("issue", "user", "login"),
		"repository": req.String("repository", "full_name"),
	}
}

// push mirrors every commit in the delivery; the event is keyed by the new
// head sha.
func push(ctx context.Context, in core.HandlerInput) (core.HandlerResult, error) {
	repository := in.Request.String("repository", "full_name")
	ref := in.Request.String("ref")
	commits, _ := in.Request.Value("commits")
	list, _ := commits.([]any)

	written := 0
	for _, item := range list {
		commit, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sha, _ := commit["id"].(string)
		if strings.TrimSpace(sha) == "" {
			continue
		}
		author, _ := commit["author"].(map[string]any)
		fields := map[string]any{
			"provider_id": in.ProviderID,
			"message":     commit["message"],
			"url":         commit["url"],
			"timestamp":   commit["timestamp"],
			"author":      author["name"],
			"repository":  repository,
			"ref":         ref,
		}
		key := core.EntityKey{TenantID: in.TenantID, Collection: CollectionCommits, ExternalID: sha}
		if _, ok := inbound.Persist(ctx, in.Store, key, fields); ok {
			written++
		}
	}
	head := in.Request.String("after")
	return core.Acknowledge(in.NewEvent(CollectionCommits, head, core.StoredEntity{}, map[string]any{
		"repository": repository,
		"ref":        ref,
		"commits":    written,
	})), nil
}
