// Package forward provides after-hooks that hand derived events to
// downstream systems. Hook errors are returned to the pipeline, which logs
// and swallows them.
package forward
