package postgres

import (
	"context"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TestPostgreSQL struct {
	db *gorm.DB
}

func NewTestPostgreSQL(db *gorm.DB) repositories.TestRepository {
	return &TestPostgreSQL{db: db}
}

func (r *TestPostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.Test, error) {
	var test models.Test
	err := r.db.WithContext(ctx).First(&test, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (r *TestPostgreSQL) GetAssignment(ctx context.Context, assignmentID, testID uuid.UUID) (*models.TestAssignment, error) {
	var assignment models.TestAssignment
	err := r.db.WithContext(ctx).
		First(&assignment, "id = ? AND test_id = ?", assignmentID, testID).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ResolveQuestions returns the effective ordered question list for a test.
// Directly attached questions take precedence; question sets are only
// consulted when the test has no direct attachments. The two sources are
// never merged.
func (r *TestPostgreSQL) ResolveQuestions(ctx context.Context, testID uuid.UUID) ([]repositories.ResolvedQuestion, error) {
	var direct []models.TestQuestion
	err := r.db.WithContext(ctx).
		Preload("Question").
		Preload("Question.AnswerOptions", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.order_number ASC")
		}).
		Where("test_id = ?", testID).
		Order("order_number ASC").
		Find(&direct).Error
	if err != nil {
		return nil, err
	}

	if len(direct) > 0 {
		resolved := make([]repositories.ResolvedQuestion, 0, len(direct))
		for _, tq := range direct {
			resolved = append(resolved, repositories.ResolvedQuestion{
				Question: &tq.Question,
				OrderNum: tq.OrderNum,
				Points:   tq.Points,
			})
		}
		return resolved, nil
	}

	var sets []models.TestQuestionSet
	err = r.db.WithContext(ctx).
		Preload("QuestionSet.Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_set_items.order_number ASC")
		}).
		Preload("QuestionSet.Items.Question").
		Preload("QuestionSet.Items.Question.AnswerOptions", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.order_number ASC")
		}).
		Where("test_id = ?", testID).
		Order("order_number ASC").
		Find(&sets).Error
	if err != nil {
		return nil, err
	}

	var resolved []repositories.ResolvedQuestion
	order := 1
	for _, ts := range sets {
		for _, item := range ts.QuestionSet.Items {
			points := item.Question.Points
			if item.PointsOverride != nil {
				points = *item.PointsOverride
			}
			resolved = append(resolved, repositories.ResolvedQuestion{
				Question: &item.Question,
				OrderNum: order,
				Points:   points,
			})
			order++
		}
	}
	return resolved, nil
}

// ActivateAssignmentIfDue flips a scheduled assignment to active once its
// scheduled start has passed. Safe to call repeatedly.
func (r *TestPostgreSQL) ActivateAssignmentIfDue(ctx context.Context, assignmentID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TestAssignment{}).
		Where("id = ? AND status = ? AND scheduled_start <= ?", assignmentID, models.AssignmentScheduled, now).
		Update("status", models.AssignmentActive).Error
}
