package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// EntityStore is the narrow persistence contract handlers write through. The
// backing store owns upsert atomicity for a given key.
type EntityStore interface {
	Upsert(ctx context.Context, key EntityKey, fields map[string]any) (StoredEntity, error)
	Find(ctx context.Context, key EntityKey) (StoredEntity, bool, error)
	Delete(ctx context.Context, key EntityKey) error
}

// EntityLister is implemented by stores that can page through a tenant
// collection.
type EntityLister interface {
	List(ctx context.Context, tenantID, collection string, limit int) ([]StoredEntity, error)
}

type TokenCache interface {
	Get(key TokenKey) (CachedToken, bool)
	Put(key TokenKey, token CachedToken)
	Delete(key TokenKey)
}

type RefreshRequest struct {
	ProviderID   string
	TenantID     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
}

type TokenRefresher interface {
	Refresh(ctx context.Context, req RefreshRequest) (RefreshedToken, error)
}

// CredentialResolver never fails: an empty string means the call cannot be
// authenticated.
type CredentialResolver interface {
	Resolve(ctx context.Context, provider ProviderDescriptor, tenantID string, usage UsageContext) string
}

type HookInput struct {
	TenantID   string
	ProviderID string
	Action     string
	Event      Event
}

type Hook interface {
	Name() string
	Run(ctx context.Context, in HookInput) error
}

type hookFunc struct {
	name string
	run  func(ctx context.Context, in HookInput) error
}

func (h hookFunc) Name() string { return h.name }

func (h hookFunc) Run(ctx context.Context, in HookInput) error { return h.run(ctx, in) }

// HookFunc adapts a plain function into a named Hook.
func HookFunc(name string, run func(ctx context.Context, in HookInput) error) Hook {
	if run == nil {
		run = func(context.Context, HookInput) error { return nil }
	}
	return hookFunc{name: name, run: run}
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// IdempotencyClaimStore suppresses redelivered webhooks while a claim is live.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}
