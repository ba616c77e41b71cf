package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered       ActivityEventType = "user_registered"
	ActivityEventUserGoogleRegistered ActivityEventType = "user_google_registered"
	ActivityEventUserLogin            ActivityEventType = "user_login"
	ActivityEventUserLoginFailed      ActivityEventType = "user_login_failed"
	ActivityEventUserVerified         ActivityEventType = "user_verified"
	ActivityEventUserPasswordSet      ActivityEventType = "user_password_set"
	ActivityEventUserPasswordReset    ActivityEventType = "user_password_reset"
	ActivityEventUserBlocked          ActivityEventType = "user_blocked"
	ActivityEventUserUnblocked        ActivityEventType = "user_unblocked"
	ActivityEventUserDeleted          ActivityEventType = "user_deleted"
	ActivityEventLeadSubmitted        ActivityEventType = "lead_submitted"
	ActivityEventLeadStatusChanged    ActivityEventType = "lead_status_changed"
	ActivityEventLeadVerificationSent ActivityEventType = "lead_verification_sent"
	ActivityEventLeadConverted        ActivityEventType = "lead_converted"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	ActorUserID *uuid.UUID
	TargetEmail string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
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

// NewRepositoryActivitySink persists events through the activity repository.
func NewRepositoryActivitySink(repo Activity) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		occurredAt := event.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}

		return repo.Append(ctx, &ActivityEntry{
			Action:      string(event.EventType),
			ActorUserID: event.ActorUserID,
			TargetEmail: NormalizeEmail(event.TargetEmail),
			Metadata:    event.Metadata,
			CreatedAt:   &occurredAt,
		})
	})
}

// recordActivity dispatches the event to the sink. Sink failures never reach
// the caller: the audit trail is best effort relative to the primary write.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		if logger != nil {
			logger.Warn("activity sink failed for %s: %v", event.EventType, err)
		}
	}
}
