package repositories

import (
	"context"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/google/uuid"
)

// SessionRepository manages live-session telemetry rows.
type SessionRepository interface {
	Create(ctx context.Context, session *models.LiveSession) error
	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*models.LiveSession, error)

	// UpdateHeartbeat applies one heartbeat atomically. last_heartbeat never
	// regresses even when retried heartbeats arrive out of order.
	UpdateHeartbeat(ctx context.Context, attemptID uuid.UUID, update HeartbeatUpdate) error

	// IncrementCounter atomically bumps one anomaly counter column and
	// refreshes last_activity.
	IncrementCounter(ctx context.Context, attemptID uuid.UUID, column string, idleSeconds int, now time.Time) error

	// Flag marks the session as requiring attention and bumps the warning
	// count.
	Flag(ctx context.Context, attemptID uuid.UUID, reason string) error

	// Close idempotently transitions the session to completed.
	Close(ctx context.Context, attemptID uuid.UUID) error

	// SweepStale moves active/idle sessions with heartbeats older than the
	// cutoff to disconnected, returning how many rows changed.
	SweepStale(ctx context.Context, cutoff time.Time) (int64, error)

	ListActive(ctx context.Context) ([]*models.LiveSession, error)
	ListActiveByTest(ctx context.Context, testID uuid.UUID) ([]*models.LiveSession, error)
	ListFlagged(ctx context.Context) ([]*models.LiveSession, error)
}

// HeartbeatUpdate carries the client-reported progress of one heartbeat.
type HeartbeatUpdate struct {
	Status             models.SessionStatus
	CurrentQuestion    int
	QuestionsAnswered  int
	ProgressPercentage int
	TimeRemaining      int
	Now                time.Time
}

// ActivityRepository manages the append-only suspicious-activity log.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.SuspiciousActivity) error

	// CountByType returns the running occurrence count of one activity type
	// for an attempt, used for threshold escalation.
	CountByType(ctx context.Context, attemptID uuid.UUID, activityType models.ActivityType) (int64, error)

	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*models.SuspiciousActivity, error)

	// Summary aggregates per-type counts and total idle seconds for an
	// attempt.
	Summary(ctx context.Context, attemptID uuid.UUID) (*models.ActivitySummary, error)
}
