package gologger

import (
	"github.com/goliatone/go-ingress/core"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Observer resolves the named logger and pairs it with metrics. A nil
// recorder falls back to the no-op recorder.
func Observer(name string, provider glog.LoggerProvider, logger glog.Logger, metrics core.MetricsRecorder) core.Observer {
	_, resolved := Resolve(name, provider, logger)
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return core.Observer{Logger: glog.Ensure(resolved), Metrics: metrics}
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the go-job bridges too.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
