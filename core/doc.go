// Package core contains the canonical ingestion domain: the immutable webhook
// request view, provider descriptors, the ordered provider registry, and the
// contracts implemented by verifiers, credential resolvers, entity stores and
// hooks. Adapters depend on core; core must not import provider-specific or
// transport-specific packages.
package core
