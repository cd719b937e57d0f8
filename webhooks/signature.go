package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"
)

type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
)

const (
	DefaultMaxAge     = 300 * time.Second
	timestampedPrefix = "v0="
	timestampedScheme = "v0"
)

func (a Algorithm) hasher() func() hash.Hash {
	switch Algorithm(strings.ToLower(strings.TrimSpace(string(a)))) {
	case SHA1:
		return sha1.New
	default:
		return sha256.New
	}
}

// Sign returns the hex HMAC of payload. It is the inverse of VerifyHMAC and is
// used by fixtures and outbound tests.
func Sign(payload []byte, secret string, algo Algorithm) string {
	mac := hmac.New(algo.hasher(), []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignTimestamped returns the "v0=<hex>" signature over "v0:{ts}:{payload}".
func SignTimestamped(payload []byte, secret, timestamp string) string {
	return timestampedPrefix + Sign(timestampedBase(payload, timestamp), secret, SHA256)
}

func VerifyHMAC(payload []byte, secret, signature string, algo Algorithm) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if secret == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(algo.hasher(), []byte(secret))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(provided, expected) == 1
}

// VerifyHMACWithPrefix rejects signatures missing prefix before computing any
// digest, then strips it and defers to VerifyHMAC.
func VerifyHMACWithPrefix(payload []byte, secret, signature, prefix string, algo Algorithm) bool {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, prefix) {
		return false
	}
	return VerifyHMAC(payload, secret, strings.TrimPrefix(signature, prefix), algo)
}

// VerifyTimestamped checks a v0 timestamped signature. An empty secret passes.
// Requests outside maxAge fail before hashing.
func VerifyTimestamped(payload []byte, secret, timestamp, signature string, maxAge time.Duration, now time.Time) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if secret == "" {
		return true
	}
	timestamp = strings.TrimSpace(timestamp)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if !withinWindow(time.Unix(ts, 0), now, maxAge) {
		return false
	}
	return VerifyHMACWithPrefix(timestampedBase(payload, timestamp), secret, signature, timestampedPrefix, SHA256)
}

// Timestamped is VerifyTimestamped against the wall clock.
func Timestamped(payload []byte, secret, timestamp, signature string, maxAge time.Duration) bool {
	return VerifyTimestamped(payload, secret, timestamp, signature, maxAge, time.Now())
}

// WithinWindow reports whether |now - at| <= maxAge.
func WithinWindow(at, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return withinWindow(at, now, maxAge)
}

func withinWindow(at, now time.Time, maxAge time.Duration) bool {
	delta := now.Sub(at)
	if delta < 0 {
		delta = -delta
	}
	return delta <= maxAge
}

func timestampedBase(payload []byte, timestamp string) []byte {
	base := make([]byte, 0, len(timestampedScheme)+len(timestamp)+len(payload)+2)
	base = append(base, timestampedScheme...)
	base = append(base, ':')
	base = append(base, timestamp...)
	base = append(base, ':')
	return append(base, payload...)
}
