package services

import (
	"context"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

// MockTestRepository is a mock implementation of TestRepository
type MockTestRepository struct {
	mock.Mock
}

func (m *MockTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Test, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Test), args.Error(1)
}

func (m *MockTestRepository) GetAssignment(ctx context.Context, assignmentID, testID uuid.UUID) (*models.TestAssignment, error) {
	args := m.Called(ctx, assignmentID, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestAssignment), args.Error(1)
}

func (m *MockTestRepository) ResolveQuestions(ctx context.Context, testID uuid.UUID) ([]repositories.ResolvedQuestion, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.ResolvedQuestion), args.Error(1)
}

func (m *MockTestRepository) ActivateAssignmentIfDue(ctx context.Context, assignmentID uuid.UUID, now time.Time) error {
	args := m.Called(ctx, assignmentID, now)
	return args.Error(0)
}

// MockAttemptRepository is a mock implementation of AttemptRepository
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *models.TestAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestAttempt), args.Error(1)
}

func (m *MockAttemptRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestAttempt), args.Error(1)
}

func (m *MockAttemptRepository) GetByTestAndStudent(ctx context.Context, testID, studentID uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, testID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestAttempt), args.Error(1)
}

func (m *MockAttemptRepository) Update(ctx context.Context, attempt *models.TestAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) UpdateSnapshot(ctx context.Context, id uuid.UUID, snapshot datatypes.JSON) error {
	args := m.Called(ctx, id, snapshot)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetExpired(ctx context.Context, now time.Time) ([]repositories.ExpiredAttempt, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.ExpiredAttempt), args.Error(1)
}

// MockResponseRepository is a mock implementation of ResponseRepository
type MockResponseRepository struct {
	mock.Mock
}

func (m *MockResponseRepository) Upsert(ctx context.Context, response *models.QuestionResponse) error {
	args := m.Called(ctx, response)
	return args.Error(0)
}

func (m *MockResponseRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*models.QuestionResponse, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QuestionResponse), args.Error(1)
}

func (m *MockResponseRepository) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uuid.UUID) (*models.QuestionResponse, error) {
	args := m.Called(ctx, attemptID, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuestionResponse), args.Error(1)
}

func (m *MockResponseRepository) UpdateMarks(ctx context.Context, response *models.QuestionResponse) error {
	args := m.Called(ctx, response)
	return args.Error(0)
}

// MockResultRepository is a mock implementation of ResultRepository
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) Create(ctx context.Context, result *models.TestResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*models.TestResult, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TestResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestResult), args.Error(1)
}

func (m *MockResultRepository) ListByStudent(ctx context.Context, studentID uuid.UUID, filters repositories.ResultFilters) ([]*models.TestResult, error) {
	args := m.Called(ctx, studentID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TestResult), args.Error(1)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.LiveSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*models.LiveSession, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LiveSession), args.Error(1)
}

func (m *MockSessionRepository) UpdateHeartbeat(ctx context.Context, attemptID uuid.UUID, update repositories.HeartbeatUpdate) error {
	args := m.Called(ctx, attemptID, update)
	return args.Error(0)
}

func (m *MockSessionRepository) IncrementCounter(ctx context.Context, attemptID uuid.UUID, column string, idleSeconds int, now time.Time) error {
	args := m.Called(ctx, attemptID, column, idleSeconds, now)
	return args.Error(0)
}

func (m *MockSessionRepository) Flag(ctx context.Context, attemptID uuid.UUID, reason string) error {
	args := m.Called(ctx, attemptID, reason)
	return args.Error(0)
}

func (m *MockSessionRepository) Close(ctx context.Context, attemptID uuid.UUID) error {
	args := m.Called(ctx, attemptID)
	return args.Error(0)
}

func (m *MockSessionRepository) SweepStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) ListActive(ctx context.Context) ([]*models.LiveSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LiveSession), args.Error(1)
}

func (m *MockSessionRepository) ListActiveByTest(ctx context.Context, testID uuid.UUID) ([]*models.LiveSession, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LiveSession), args.Error(1)
}

func (m *MockSessionRepository) ListFlagged(ctx context.Context) ([]*models.LiveSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LiveSession), args.Error(1)
}

// MockActivityRepository is a mock implementation of ActivityRepository
type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) Create(ctx context.Context, activity *models.SuspiciousActivity) error {
	args := m.Called(ctx, activity)
	return args.Error(0)
}

func (m *MockActivityRepository) CountByType(ctx context.Context, attemptID uuid.UUID, activityType models.ActivityType) (int64, error) {
	args := m.Called(ctx, attemptID, activityType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockActivityRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*models.SuspiciousActivity, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SuspiciousActivity), args.Error(1)
}

func (m *MockActivityRepository) Summary(ctx context.Context, attemptID uuid.UUID) (*models.ActivitySummary, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ActivitySummary), args.Error(1)
}

// MockRepository aggregates the mock sub-repositories and satisfies
// TransactionRepository. Begin hands back the same instance so expectations
// set on the sub-mocks cover transactional calls too.
type MockRepository struct {
	mock.Mock
	TestRepo     MockTestRepository
	AttemptRepo  MockAttemptRepository
	ResponseRepo MockResponseRepository
	ResultRepo   MockResultRepository
	SessionRepo  MockSessionRepository
	ActivityRepo MockActivityRepository
}

func (m *MockRepository) Test() repositories.TestRepository         { return &m.TestRepo }
func (m *MockRepository) Attempt() repositories.AttemptRepository   { return &m.AttemptRepo }
func (m *MockRepository) Response() repositories.ResponseRepository { return &m.ResponseRepo }
func (m *MockRepository) Result() repositories.ResultRepository     { return &m.ResultRepo }
func (m *MockRepository) Session() repositories.SessionRepository   { return &m.SessionRepo }
func (m *MockRepository) Activity() repositories.ActivityRepository { return &m.ActivityRepo }

func (m *MockRepository) Begin(ctx context.Context) (repositories.TransactionRepository, error) {
	return m, nil
}

func (m *MockRepository) Commit(ctx context.Context) error   { return nil }
func (m *MockRepository) Rollback(ctx context.Context) error { return nil }
