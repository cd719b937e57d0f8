// Package inbound turns raw HTTP deliveries into routed provider handler
// calls. It owns request normalization, provider and event matching, the
// after-hook pipeline and delivery dedupe.
//
// Failures inside handlers, persistence and hooks are logged and recorded as
// metrics but never surface as non-2xx responses, so providers do not retry
// deliveries for local errors. Only a failed signature check answers 401.
package inbound
