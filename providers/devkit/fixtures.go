package devkit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/webhooks"
)

// Fixture is a captured delivery together with the provider and action it is
// expected to route to. An empty Action only asserts the provider.
type Fixture struct {
	Name       string
	ProviderID string
	Action     string
	Request    inbound.RawRequest
}

// NewFixture encodes payload as the JSON body of a POST delivery.
func NewFixture(name, providerID, action string, headers map[string]string, payload any) (Fixture, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Fixture{}, err
	}
	all := map[string]string{"content-type": "application/json"}
	for key, value := range headers {
		all[key] = value
	}
	return Fixture{
		Name:       name,
		ProviderID: providerID,
		Action:     action,
		Request: inbound.RawRequest{
			Method:  http.MethodPost,
			Path:    "/webhooks",
			Headers: all,
			Body:    body,
		},
	}, nil
}

// WithHeader returns a copy of the fixture with one more header set.
func (f Fixture) WithHeader(name, value string) Fixture {
	headers := make(map[string]string, len(f.Request.Headers)+1)
	for key, existing := range f.Request.Headers {
		headers[key] = existing
	}
	headers[name] = value
	f.Request.Headers = headers
	return f
}

// SignHMAC returns prefix + hex(HMAC(body)) for header-signed providers.
func SignHMAC(body []byte, secret, prefix string, algo webhooks.Algorithm) string {
	return prefix + webhooks.Sign(body, secret, algo)
}

// SignTimestamped returns the v0= signature and the unix timestamp it covers.
func SignTimestamped(body []byte, secret string, at time.Time) (signature, timestamp string) {
	timestamp = strconv.FormatInt(at.Unix(), 10)
	return webhooks.SignTimestamped(body, secret, timestamp), timestamp
}

// BuiltinFixtures returns one signed delivery per built-in provider action,
// signed with secret at now.
func BuiltinFixtures(secret string, now time.Time) ([]Fixture, error) {
	builders := []func(string, time.Time) (Fixture, error){
		slackChallenge, slackMessage,
		linearIssue, linearComment,
		githubPing, githubPullRequest, githubPush,
		attioRecord,
		calendarSync, calendarExists,
		algoliaIndex,
	}
	out := make([]Fixture, 0, len(builders))
	for _, build := range builders {
		fixture, err := build(secret, now)
		if err != nil {
			return nil, err
		}
		out = append(out, fixture)
	}
	return out, nil
}

func signedSlack(name, action string, payload map[string]any, secret string, now time.Time) (Fixture, error) {
	fixture, err := NewFixture(name, "slack", action, nil, payload)
	if err != nil {
		return Fixture{}, err
	}
	signature, timestamp := SignTimestamped(fixture.Request.Body, secret, now)
	return fixture.WithHeader("x-slack-signature", signature).WithHeader("x-slack-request-timestamp", timestamp), nil
}

func slackChallenge(secret string, now time.Time) (Fixture, error) {
	return signedSlack("slack url verification", "url_verification", map[string]any{
		"type":      "url_verification",
		"token":     "legacy",
		"challenge": "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P",
	}, secret, now)
}

func slackMessage(secret string, now time.Time) (Fixture, error) {
	return signedSlack("slack message", "message.created", map[string]any{
		"type":       "event_callback",
		"api_app_id": "A1",
		"team_id":    "T1",
		"event_id":   "Ev1",
		"event": map[string]any{
			"type":    "message",
			"channel": "C1",
			"user":    "U1",
			"text":    "hello",
			"ts":      "1700000000.000100",
		},
	}, secret, now)
}

func signedBody(fixture Fixture, header, secret, prefix string, algo webhooks.Algorithm) Fixture {
	return fixture.WithHeader(header, SignHMAC(fixture.Request.Body, secret, prefix, algo))
}

func linearIssue(secret string, now time.Time) (Fixture, error) {
	fixture, err := NewFixture("linear issue", "linear", "issue.created", map[string]string{"linear-delivery": "ld-1"}, map[string]any{
		"type":             "Issue",
		"action":           "create",
		"webhookTimestamp": now.UnixMilli(),
		"url":              "https://linear.app/acme/issue/ENG-1",
		"data":             map[string]any{"id": "iss_1", "title": "Crash on login", "identifier": "ENG-1"},
	})
	return signedBody(fixture, "linear-signature", secret, "", webhooks.SHA256), err
}

func linearComment(secret string, now time.Time) (Fixture, error) {
	fixture, err := NewFixture("linear comment", "linear", "comment.created", nil, map[string]any{
		"type":             "Comment",
		"action":           "create",
		"webhookTimestamp": now.UnixMilli(),
		"data":             map[string]any{"id": "com_1", "body": "Looking into it", "issueId": "iss_1"},
	})
	return signedBody(fixture, "linear-signature", secret, "", webhooks.SHA256), err
}

func githubPing(secret string, _ time.Time) (Fixture, error) {
	fixture, err := NewFixture("github ping", "github", "ping", map[string]string{"x-github-event": "ping", "x-github-delivery": "gd-0"}, map[string]any{
		"zen":     "Keep it logically awesome.",
		"hook_id": 1,
	})
	return signedBody(fixture, "x-hub-signature-256", secret, "sha256=", webhooks.SHA256), err
}

func githubPullRequest(secret string, _ time.Time) (Fixture, error) {
	fixture, err := NewFixture("github pull request", "github", "pull_request.opened", map[string]string{"x-github-event": "pull_request", "x-github-delivery": "gd-1"}, map[string]any{
		"action": "opened",
		"pull_request": map[string]any{
			"id": 1001, "number": 7, "title": "Add webhooks", "state": "open",
			"user": map[string]any{"login": "octocat"},
		},
		"repository": map[string]any{"full_name": "acme/api"},
	})
	return signedBody(fixture, "x-hub-signature-256", secret, "sha256=", webhooks.SHA256), err
}

func githubPush(secret string, _ time.Time) (Fixture, error) {
	fixture, err := NewFixture("github push", "github", "push", map[string]string{"x-github-event": "push", "x-github-delivery": "gd-2"}, map[string]any{
		"ref":   "refs/heads/main",
		"after": "abc123",
		"commits": []any{
			map[string]any{"id": "abc123", "message": "fix", "author": map[string]any{"name": "Octo"}},
		},
		"repository": map[string]any{"full_name": "acme/api"},
	})
	return signedBody(fixture, "x-hub-signature-256", secret, "sha256=", webhooks.SHA256), err
}

func attioRecord(secret string, _ time.Time) (Fixture, error) {
	fixture, err := NewFixture("attio record", "attio", "record.created", nil, map[string]any{
		"webhook_id": "wh_1",
		"events": []any{
			map[string]any{
				"event_type": "record.created",
				"id":         map[string]any{"workspace_id": "ws_1", "object_id": "people", "record_id": "rec_1"},
				"actor":      map[string]any{"type": "workspace-member", "id": "m_1"},
			},
		},
	})
	return signedBody(fixture, "attio-signature", secret, "", webhooks.SHA256), err
}

func calendarFixture(name, state, secret string) Fixture {
	return Fixture{
		Name:       name,
		ProviderID: "gcalendar",
		Action:     state,
		Request: inbound.RawRequest{
			Method: http.MethodPost,
			Path:   "/webhooks",
			Headers: map[string]string{
				"x-goog-channel-id":     "chan-1",
				"x-goog-channel-token":  secret,
				"x-goog-resource-state": state,
				"x-goog-resource-id":    "res-1",
				"x-goog-resource-uri":   "https://www.googleapis.com/calendar/v3/calendars/primary/events",
				"x-goog-message-number": "1",
			},
		},
	}
}

func calendarSync(secret string, _ time.Time) (Fixture, error) {
	return calendarFixture("calendar sync", "sync", secret), nil
}

func calendarExists(secret string, _ time.Time) (Fixture, error) {
	fixture := calendarFixture("calendar exists", "exists", secret)
	return fixture.WithHeader("x-goog-message-number", "2"), nil
}

func algoliaIndex(secret string, _ time.Time) (Fixture, error) {
	fixture, err := NewFixture("algolia index", "algolia", "index.updated", nil, map[string]any{
		"id":             "alg-1",
		"type":           "index.updated",
		"index":          "products",
		"application_id": "APP1",
		"data":           map[string]any{"records": 120},
	})
	return signedBody(fixture, "x-algolia-signature", secret, "sha1=", webhooks.SHA1), err
}
