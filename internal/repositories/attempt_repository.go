package repositories

import (
	"context"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AttemptRepository manages test attempt rows.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TestAttempt, error)

	// GetByIDForUpdate loads the attempt under a row lock. Only meaningful
	// inside a transaction; the submit path uses it to serialize terminal
	// transitions.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.TestAttempt, error)

	// GetByTestAndStudent returns the single attempt for the pair, if any.
	GetByTestAndStudent(ctx context.Context, testID, studentID uuid.UUID) (*models.TestAttempt, error)

	Update(ctx context.Context, attempt *models.TestAttempt) error

	// UpdateSnapshot refreshes the denormalized answers blob without
	// touching the rest of the row.
	UpdateSnapshot(ctx context.Context, id uuid.UUID, snapshot datatypes.JSON) error

	// GetExpired lists in-progress attempts whose started_at plus test
	// duration lies before now.
	GetExpired(ctx context.Context, now time.Time) ([]ExpiredAttempt, error)
}

// ResponseRepository manages stored answers, one per (attempt, question).
type ResponseRepository interface {
	// Upsert inserts or replaces the answer payload for the response's
	// (attempt, question) pair. Last write wins.
	Upsert(ctx context.Context, response *models.QuestionResponse) error

	GetByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*models.QuestionResponse, error)
	GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uuid.UUID) (*models.QuestionResponse, error)

	// UpdateMarks writes the marking outcome fields of a response.
	UpdateMarks(ctx context.Context, response *models.QuestionResponse) error
}

// ResultRepository manages the write-once authoritative results.
type ResultRepository interface {
	// Create persists a result. A second result for the same attempt fails
	// with a duplicate error; callers must treat that as a hard fault.
	Create(ctx context.Context, result *models.TestResult) error

	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*models.TestResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.TestResult, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID, filters ResultFilters) ([]*models.TestResult, error)
}
