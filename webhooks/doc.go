// Package webhooks verifies inbound webhook signatures.
//
// The Verify* functions are pure and never panic: any failure, including a
// panic in the digest primitive, is reported as false. The header verifiers
// wrap them for handler-local use and return go-errors envelopes.
package webhooks
