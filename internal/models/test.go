package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TestStatus string

const (
	TestStatusDraft       TestStatus = "draft"
	TestStatusPublished   TestStatus = "published"
	TestStatusUnpublished TestStatus = "unpublished"
	TestStatusArchived    TestStatus = "archived"
)

type TestType string

const (
	TestTypeVerbalReasoning    TestType = "Verbal Reasoning"
	TestTypeNonVerbalReasoning TestType = "Non-Verbal Reasoning"
	TestTypeEnglish            TestType = "English"
	TestTypeMathematics        TestType = "Mathematics"
)

type Test struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Title        string     `json:"title" gorm:"not null;size:255" validate:"required,min=1,max=255"`
	Description  *string    `json:"description" gorm:"type:text"`
	Type         TestType   `json:"type" gorm:"not null"`
	Duration     int        `json:"duration_minutes" gorm:"column:duration_minutes;not null" validate:"required,min=1,max=300"`
	PassMark     int        `json:"pass_mark" gorm:"default:50" validate:"min=0,max=100"`
	TotalMarks   *int       `json:"total_marks"`
	Instructions *string    `json:"instructions" gorm:"type:text"`
	Status       TestStatus `json:"status" gorm:"default:draft;index"`

	// Warning intervals in minutes before the attempt deadline
	WarningIntervals datatypes.JSON `json:"warning_intervals" gorm:"type:jsonb"`

	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions    []TestQuestion    `json:"questions,omitempty" gorm:"foreignKey:TestID"`
	QuestionSets []TestQuestionSet `json:"question_sets,omitempty" gorm:"foreignKey:TestID"`
	Assignments  []TestAssignment  `json:"assignments,omitempty" gorm:"foreignKey:TestID"`
}

func (Test) TableName() string {
	return "tests"
}

// TestQuestion is a direct question assignment to a test with explicit
// ordering and a per-test points value.
type TestQuestion struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TestID     uuid.UUID `json:"test_id" gorm:"type:uuid;not null;index"`
	QuestionID uuid.UUID `json:"question_id" gorm:"type:uuid;not null"`
	OrderNum   int       `json:"order_number" gorm:"column:order_number;not null"`
	Points     int       `json:"points" gorm:"default:1"`
	CreatedAt  time.Time `json:"created_at"`

	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (TestQuestion) TableName() string {
	return "test_questions"
}

type AssignmentStatus string

const (
	AssignmentScheduled AssignmentStatus = "scheduled"
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// TestAssignment schedules a published test for a class and defines the
// admission window for attempts.
type TestAssignment struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TestID  uuid.UUID `json:"test_id" gorm:"type:uuid;not null;index"`
	ClassID uuid.UUID `json:"class_id" gorm:"type:uuid;not null;index"`

	ScheduledStart time.Time `json:"scheduled_start" gorm:"not null"`
	ScheduledEnd   time.Time `json:"scheduled_end" gorm:"not null"`

	// Window extensions, in minutes
	BufferTime          int  `json:"buffer_time_minutes" gorm:"column:buffer_time_minutes;default:0"`
	AllowLateSubmission bool `json:"allow_late_submission" gorm:"default:false"`
	LateGrace           int  `json:"late_submission_grace_minutes" gorm:"column:late_submission_grace_minutes;default:0"`
	AutoSubmit          bool `json:"auto_submit" gorm:"default:true"`

	CustomInstructions *string          `json:"custom_instructions" gorm:"type:text"`
	Status             AssignmentStatus `json:"status" gorm:"default:scheduled;index"`

	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Test Test `json:"test" gorm:"foreignKey:TestID"`
}

func (TestAssignment) TableName() string {
	return "test_assignments"
}

// AdmissionWindow is the time range in which starting or resuming an attempt
// against this assignment is permitted.
func (a *TestAssignment) AdmissionWindow() (start, end time.Time) {
	start = a.ScheduledStart.Add(-time.Duration(a.BufferTime) * time.Minute)
	end = a.ScheduledEnd
	if a.AllowLateSubmission {
		end = end.Add(time.Duration(a.LateGrace) * time.Minute)
	}
	return start, end
}
