package postgres

import (
	"context"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (r *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.TestAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptPostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptPostgreSQL) GetByTestAndStudent(ctx context.Context, testID, studentID uuid.UUID) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	err := r.db.WithContext(ctx).
		First(&attempt, "test_id = ? AND student_id = ?", testID, studentID).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.TestAttempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}

func (r *AttemptPostgreSQL) UpdateSnapshot(ctx context.Context, id uuid.UUID, snapshot datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("id = ?", id).
		Update("answers", snapshot).Error
}

func (r *AttemptPostgreSQL) GetExpired(ctx context.Context, now time.Time) ([]repositories.ExpiredAttempt, error) {
	var expired []repositories.ExpiredAttempt
	err := r.db.WithContext(ctx).
		Table("test_attempts").
		Select("test_attempts.id AS attempt_id, test_attempts.student_id, test_attempts.started_at, tests.duration_minutes").
		Joins("JOIN tests ON tests.id = test_attempts.test_id").
		Where("test_attempts.status = ?", models.AttemptInProgress).
		Where("test_attempts.started_at + make_interval(mins => tests.duration_minutes) < ?", now).
		Scan(&expired).Error
	if err != nil {
		return nil, err
	}
	return expired, nil
}

type ResponsePostgreSQL struct {
	db *gorm.DB
}

func NewResponsePostgreSQL(db *gorm.DB) repositories.ResponseRepository {
	return &ResponsePostgreSQL{db: db}
}

// Upsert replaces the full answer payload on conflict so a changed answer
// type cannot leave stale fields behind.
func (r *ResponsePostgreSQL) Upsert(ctx context.Context, response *models.QuestionResponse) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"answer_text", "selected_options", "dropdown_selections",
				"fill_in_answers", "pattern_response", "time_spent", "answered_at",
			}),
		}).
		Create(response).Error
}

func (r *ResponsePostgreSQL) GetByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*models.QuestionResponse, error) {
	var responses []*models.QuestionResponse
	err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&responses).Error
	if err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *ResponsePostgreSQL) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uuid.UUID) (*models.QuestionResponse, error) {
	var response models.QuestionResponse
	err := r.db.WithContext(ctx).
		First(&response, "attempt_id = ? AND question_id = ?", attemptID, questionID).Error
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *ResponsePostgreSQL) UpdateMarks(ctx context.Context, response *models.QuestionResponse) error {
	return r.db.WithContext(ctx).
		Model(&models.QuestionResponse{}).
		Where("id = ?", response.ID).
		Updates(map[string]interface{}{
			"is_correct":    response.IsCorrect,
			"points_earned": response.PointsEarned,
			"partial_score": response.PartialScore,
		}).Error
}

type ResultPostgreSQL struct {
	db *gorm.DB
}

func NewResultPostgreSQL(db *gorm.DB) repositories.ResultRepository {
	return &ResultPostgreSQL{db: db}
}

func (r *ResultPostgreSQL) Create(ctx context.Context, result *models.TestResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *ResultPostgreSQL) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*models.TestResult, error) {
	var result models.TestResult
	err := r.db.WithContext(ctx).First(&result, "attempt_id = ?", attemptID).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultPostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.TestResult, error) {
	var result models.TestResult
	err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultPostgreSQL) ListByStudent(ctx context.Context, studentID uuid.UUID, filters repositories.ResultFilters) ([]*models.TestResult, error) {
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)

	if filters.TestID != nil {
		query = query.Where("test_id = ?", *filters.TestID)
	}
	if filters.DateFrom != nil {
		query = query.Where("submitted_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("submitted_at <= ?", *filters.DateTo)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var results []*models.TestResult
	err := query.Order("submitted_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
