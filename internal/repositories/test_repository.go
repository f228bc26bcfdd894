package repositories

import (
	"context"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/google/uuid"
)

// TestRepository exposes read access to test definitions and their question
// lists, plus the one schedule mutation this engine performs.
type TestRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Test, error)
	GetAssignment(ctx context.Context, assignmentID, testID uuid.UUID) (*models.TestAssignment, error)

	// ResolveQuestions returns the effective ordered question list for a
	// test. Direct test-question assignments take precedence; the flattened
	// ordered question-set membership is the fallback. The two are never
	// merged.
	ResolveQuestions(ctx context.Context, testID uuid.UUID) ([]ResolvedQuestion, error)

	// ActivateAssignmentIfDue flips a scheduled assignment to active once its
	// start has passed. Idempotent: concurrent callers race harmlessly.
	ActivateAssignmentIfDue(ctx context.Context, assignmentID uuid.UUID, now time.Time) error
}
