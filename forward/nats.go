package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingress/core"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn the hook needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSHook publishes the JSON event to <prefix>.<tenant>.<provider>.<action>.
type NATSHook struct {
	Publisher     Publisher
	SubjectPrefix string
}

func NewNATSHook(publisher Publisher, subjectPrefix string) *NATSHook {
	return &NATSHook{Publisher: publisher, SubjectPrefix: subjectPrefix}
}

func (h *NATSHook) Name() string {
	return "forward.nats"
}

func (h *NATSHook) Run(_ context.Context, in core.HookInput) error {
	if h == nil || h.Publisher == nil {
		return fmt.Errorf("forward: nats hook is not configured")
	}
	data, err := json.Marshal(in.Event)
	if err != nil {
		return fmt.Errorf("forward: encode nats event: %w", err)
	}
	subject := h.Subject(in)
	if err := h.Publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("forward: nats publish %s: %w", subject, err)
	}
	return nil
}

func (h *NATSHook) Subject(in core.HookInput) string {
	prefix := strings.Trim(firstNonEmpty(h.SubjectPrefix, "ingress"), ".")
	return strings.Join([]string{
		prefix,
		subjectToken(in.TenantID),
		subjectToken(in.ProviderID),
		subjectAction(in.Action),
	}, ".")
}

// subjectToken keeps a value inside a single subject token.
func subjectToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, value)
}

// subjectAction keeps dots in actions so subscribers can filter on
// pull_request.> and similar.
func subjectAction(action string) string {
	parts := strings.Split(strings.TrimSpace(action), ".")
	for i, part := range parts {
		parts[i] = subjectToken(part)
	}
	return strings.Join(parts, ".")
}

// NATSPublisher is a Publisher backed by a live NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

func ConnectNATS(url string, opts ...nats.Option) (*NATSPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, core.BadInputError("forward: nats url is required", nil)
	}
	opts = append([]nats.Option{nats.Name("go-ingress")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("forward: nats connect: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Close drains pending publishes before closing the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

var (
	_ core.Hook = (*NATSHook)(nil)
	_ Publisher = (*nats.Conn)(nil)
	_ Publisher = (*NATSPublisher)(nil)
)
