package core

import (
	"context"
	"fmt"
	"strings"
)

// Outcome is the result of a call whose failure must never reach the HTTP
// response. It is returned so callers and tests can still inspect it.
type Outcome struct {
	Op       string
	Err      error
	Panicked bool
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// LogAndDiscard runs fn, converts a panic into an error, logs any failure at
// warn level and records ingress.<op>.swallowed. The failure is never returned
// as an error.
func (o Observer) LogAndDiscard(
	ctx context.Context,
	op string,
	fields map[string]any,
	fn func(context.Context) error,
) (out Outcome) {
	op = normalizeOperation(op)
	out.Op = op
	if fn == nil {
		return out
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			out.Err = fmt.Errorf("core: %s panicked: %v", op, recovered)
			out.Panicked = true
		}
		if out.Err == nil {
			return
		}
		logFields := cloneFields(fields)
		logFields["operation"] = op
		logFields["error"] = out.Err.Error()
		logFields["panicked"] = out.Panicked
		o.Log(ctx, "warn", op+" failed; continuing", logFields)

		tags := map[string]string{"operation": op}
		if provider := strings.TrimSpace(fmt.Sprint(fields["provider_id"])); provider != "" && provider != "<nil>" {
			tags["provider_id"] = provider
		}
		o.Counter(ctx, MetricPrefix+"."+op+".swallowed", 1, tags)
	}()
	out.Err = fn(ctx)
	return out
}
