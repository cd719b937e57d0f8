// Package providers holds the helpers shared by the built-in provider
// descriptors under its subpackages: verification guards, payload matchers
// and entity mapping handlers.
//
// Each subpackage exports ProviderID, Config and New(cfg), which returns a
// core.ProviderDescriptor ready for registration.
package providers
