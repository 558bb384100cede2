package signin

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignInSuccess  ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure  ActivityEventType = "auth.signin.failure"
	ActivityEventSignOut        ActivityEventType = "auth.signout"
	ActivityEventTokenRenewed   ActivityEventType = "auth.token.renewed"
	ActivityEventTokenPersisted ActivityEventType = "auth.token.persisted"
	ActivityEventAdminCreated   ActivityEventType = "bootstrap.admin.created"
	ActivityEventAdminSkipped   ActivityEventType = "bootstrap.admin.skipped"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Username   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged by the emitter, never propagated
// into the authentication path.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
