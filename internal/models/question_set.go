package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionSet is a reusable ordered collection of questions. A test with no
// direct question assignments resolves its question list from its attached
// sets instead.
type QuestionSet struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string    `json:"name" gorm:"not null;size:255"`
	Description   *string   `json:"description" gorm:"type:text"`
	Subject       *string   `json:"subject" gorm:"size:50"`
	QuestionCount int       `json:"question_count" gorm:"default:0"`
	TotalPoints   int       `json:"total_points" gorm:"default:0"`
	IsActive      bool      `json:"is_active" gorm:"default:true"`

	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []QuestionSetItem `json:"items,omitempty" gorm:"foreignKey:QuestionSetID"`
}

func (QuestionSet) TableName() string {
	return "question_sets"
}

type QuestionSetItem struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	QuestionSetID uuid.UUID `json:"question_set_id" gorm:"type:uuid;not null;index"`
	QuestionID    uuid.UUID `json:"question_id" gorm:"type:uuid;not null"`
	OrderNum      int       `json:"order_number" gorm:"column:order_number;not null"`

	// Overrides the question's default points when set
	PointsOverride *int `json:"points_override"`

	CreatedAt time.Time `json:"created_at"`

	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (QuestionSetItem) TableName() string {
	return "question_set_items"
}

// TestQuestionSet attaches a question set to a test at a position.
type TestQuestionSet struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TestID        uuid.UUID `json:"test_id" gorm:"type:uuid;not null;index"`
	QuestionSetID uuid.UUID `json:"question_set_id" gorm:"type:uuid;not null"`
	OrderNum      int       `json:"order_number" gorm:"column:order_number;not null"`
	CreatedAt     time.Time `json:"created_at"`

	QuestionSet QuestionSet `json:"question_set" gorm:"foreignKey:QuestionSetID"`
}

func (TestQuestionSet) TableName() string {
	return "test_question_sets"
}
