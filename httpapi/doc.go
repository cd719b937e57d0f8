// Package httpapi exposes the webhook router over HTTP using chi.
//
// Every request is traced, rate limited per tenant, and capped at a
// configurable body size before it reaches the router.
package httpapi
