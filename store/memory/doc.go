// Package memory provides an in-process core.EntityStore used by tests and by
// deployments that run with store.driver=memory.
package memory
