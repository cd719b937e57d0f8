package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const MetricPrefix = "ingress"

// Observer bundles the logger and metrics recorder shared by engine
// components. A zero Observer is safe to use and discards everything.
type Observer struct {
	Logger  Logger
	Metrics MetricsRecorder
}

// ObserveOperation logs one structured line and records the
// ingress.<operation>.total counter and duration histogram.
func (o Observer) ObserveOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	status string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	if strings.TrimSpace(status) == "" {
		status = "success"
		if err != nil {
			status = "failure"
		}
	}
	elapsed := time.Since(startedAt)

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"provider_id", "action", "tenant_id"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	o.Counter(ctx, MetricPrefix+"."+operation+".total", 1, tags)
	o.Histogram(ctx, MetricPrefix+"."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		o.Log(ctx, "error", operation+" failed", contextFields)
		return
	}
	o.Log(ctx, "info", operation+" "+status, contextFields)
}

func (o Observer) Log(ctx context.Context, level string, message string, fields map[string]any) {
	if o.Logger == nil {
		return
	}
	logger := o.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields = RedactSensitiveMap(fields)
	args := flattenFields(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
		args = nil
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o Observer) Counter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o Observer) Histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
