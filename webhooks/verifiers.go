package webhooks

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
)

// HeaderVerifier checks a request against the resolved secret.
type HeaderVerifier interface {
	Verify(req *core.WebhookRequest, secret string) error
}

type HMACHeader struct {
	Header    string
	Prefix    string
	Algorithm Algorithm
}

// Verify fails on an empty secret.
func (v HMACHeader) Verify(req *core.WebhookRequest, secret string) error {
	header := strings.TrimSpace(v.Header)
	meta := map[string]any{"header": header}
	if secret == "" {
		return core.SignatureError("webhooks: signing secret is not configured", meta)
	}
	signature := req.Header(header)
	if signature == "" {
		return core.SignatureError(fmt.Sprintf("webhooks: %s signature header is required", header), meta)
	}
	if v.Prefix != "" {
		if !VerifyHMACWithPrefix(req.RawBody(), secret, signature, v.Prefix, v.Algorithm) {
			return core.SignatureError("webhooks: signature verification failed", meta)
		}
		return nil
	}
	if !VerifyHMAC(req.RawBody(), secret, signature, v.Algorithm) {
		return core.SignatureError("webhooks: signature verification failed", meta)
	}
	return nil
}

type TimestampedHeader struct {
	SignatureHeader string
	TimestampHeader string
	MaxAge          time.Duration
	Now             func() time.Time
}

// Verify passes on an empty secret, like VerifyTimestamped.
func (v TimestampedHeader) Verify(req *core.WebhookRequest, secret string) error {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	ok := VerifyTimestamped(
		req.RawBody(),
		secret,
		req.Header(v.TimestampHeader),
		req.Header(v.SignatureHeader),
		v.MaxAge,
		now,
	)
	if !ok {
		return core.SignatureError("webhooks: timestamped signature verification failed", map[string]any{
			"header":           strings.TrimSpace(v.SignatureHeader),
			"timestamp_header": strings.TrimSpace(v.TimestampHeader),
		})
	}
	return nil
}

// TokenHeader compares a shared token header against the secret.
type TokenHeader struct {
	Header string
}

func (v TokenHeader) Verify(req *core.WebhookRequest, secret string) error {
	header := strings.TrimSpace(v.Header)
	meta := map[string]any{"header": header}
	if secret == "" {
		return core.SignatureError("webhooks: verification token is not configured", meta)
	}
	actual := req.Header(header)
	if actual == "" {
		return core.SignatureError(fmt.Sprintf("webhooks: %s verification header is required", header), meta)
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(secret)) != 1 {
		return core.SignatureError("webhooks: verification token mismatch", meta)
	}
	return nil
}

// HeaderDeliveryID returns the first non-empty header among names.
func HeaderDeliveryID(names ...string) core.DeliveryIDExtractor {
	keys := append([]string(nil), names...)
	return func(req *core.WebhookRequest) string {
		for _, key := range keys {
			if value := req.Header(key); value != "" {
				return value
			}
		}
		return ""
	}
}

// PayloadDeliveryID reads the delivery id from the parsed body.
func PayloadDeliveryID(path ...string) core.DeliveryIDExtractor {
	segments := append([]string(nil), path...)
	return func(req *core.WebhookRequest) string {
		return req.String(segments...)
	}
}

func ChainDeliveryIDs(extractors ...core.DeliveryIDExtractor) core.DeliveryIDExtractor {
	list := append([]core.DeliveryIDExtractor(nil), extractors...)
	return func(req *core.WebhookRequest) string {
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			if id := strings.TrimSpace(extractor(req)); id != "" {
				return id
			}
		}
		return ""
	}
}

var (
	_ HeaderVerifier = HMACHeader{}
	_ HeaderVerifier = TimestampedHeader{}
	_ HeaderVerifier = TokenHeader{}
)
