package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository aggregates data access for the assessment engine.
type Repository interface {
	Test() TestRepository
	Attempt() AttemptRepository
	Response() ResponseRepository
	Result() ResultRepository
	Session() SessionRepository
	Activity() ActivityRepository
}

// TransactionRepository is implemented by repositories that can scope all
// operations to a single database transaction.
type TransactionRepository interface {
	Repository
	Begin(ctx context.Context) (TransactionRepository, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IsNotFoundError reports whether err represents a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether err represents a unique-constraint
// violation. Requires the gorm error translator to be enabled.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ===== SHARED FILTER STRUCTS =====

type ResultFilters struct {
	TestID   *uuid.UUID `json:"test_id"`
	DateFrom *time.Time `json:"date_from"`
	DateTo   *time.Time `json:"date_to"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

// ===== SHARED HELPER STRUCTS =====

// ResolvedQuestion is one entry of a test's effective ordered question list:
// the question together with its per-test order and points.
type ResolvedQuestion struct {
	Question *models.Question `json:"question"`
	OrderNum int              `json:"order_number"`
	Points   int              `json:"points"`
}

// ExpiredAttempt pairs an overrun in-progress attempt with the test duration
// needed to compute its deadline.
type ExpiredAttempt struct {
	AttemptID       uuid.UUID `json:"attempt_id"`
	StudentID       uuid.UUID `json:"student_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes"`
}
