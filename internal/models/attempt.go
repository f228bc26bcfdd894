package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress    AttemptStatus = "in_progress"
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptCancelled     AttemptStatus = "cancelled"
)

// IsTerminal reports whether the status is absorbing: no further answer
// mutation or resubmission is accepted once an attempt reaches it.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSubmitted || s == AttemptAutoSubmitted || s == AttemptCancelled
}

type SubmissionKind string

const (
	SubmissionManual  SubmissionKind = "manual"
	SubmissionAuto    SubmissionKind = "auto_submit"
	SubmissionTimeout SubmissionKind = "timeout"
)

// TestAttempt is one student's instance of taking one scheduled test. The
// unique index makes the one-attempt-per-(test, student) rule hold even when
// two admissions race.
type TestAttempt struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TestID       uuid.UUID  `json:"test_id" gorm:"type:uuid;not null;uniqueIndex:idx_attempt_test_student"`
	StudentID    uuid.UUID  `json:"student_id" gorm:"type:uuid;not null;uniqueIndex:idx_attempt_test_student"`
	AssignmentID *uuid.UUID `json:"assignment_id" gorm:"type:uuid;index"`

	StartedAt   time.Time     `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time    `json:"submitted_at"`
	TimeTaken   *int          `json:"time_taken"` // seconds
	Status      AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Denormalized snapshot of saved answers, refreshed on every answer save.
	// Crash-recovery aid only; QuestionResponse rows are the source of truth.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb"`

	// Client context captured at admission
	BrowserInfo datatypes.JSON `json:"browser_info" gorm:"type:jsonb"`
	IPAddress   string         `json:"ip_address" gorm:"size:45"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Test       Test               `json:"test" gorm:"foreignKey:TestID"`
	Assignment *TestAssignment    `json:"assignment,omitempty" gorm:"foreignKey:AssignmentID"`
	Responses  []QuestionResponse `json:"responses,omitempty" gorm:"foreignKey:AttemptID"`
	Result     *TestResult        `json:"result,omitempty" gorm:"foreignKey:AttemptID"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// Deadline is the wall-clock instant at which the attempt's time allowance
// runs out.
func (a *TestAttempt) Deadline(durationMinutes int) time.Time {
	return a.StartedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// QuestionResponse is the stored answer for one question within one attempt,
// unique per (attempt, question). Exactly one type-specific payload is
// populated; marking fields stay null until the attempt is submitted.
type QuestionResponse struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID  uuid.UUID `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex:uq_response_attempt_question"`
	QuestionID uuid.UUID `json:"question_id" gorm:"type:uuid;not null;uniqueIndex:uq_response_attempt_question"`

	// Type-specific payloads
	AnswerText         *string        `json:"answer_text" gorm:"type:text"`
	SelectedOptions    datatypes.JSON `json:"selected_options" gorm:"type:jsonb"`    // []option id
	DropdownSelections datatypes.JSON `json:"dropdown_selections" gorm:"type:jsonb"` // blank label -> selected text
	FillInAnswers      datatypes.JSON `json:"fill_in_answers" gorm:"type:jsonb"`     // blank label -> entered text
	PatternResponse    datatypes.JSON `json:"pattern_response" gorm:"type:jsonb"`

	// Marking outcome, written once at submission
	IsCorrect    *bool    `json:"is_correct"`
	PointsEarned int      `json:"points_earned" gorm:"default:0"`
	PartialScore *float64 `json:"partial_score" gorm:"type:decimal(5,2)"`

	TimeSpent  *int       `json:"time_spent"` // seconds
	AnsweredAt *time.Time `json:"answered_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (QuestionResponse) TableName() string {
	return "question_responses"
}

type ResultStatus string

const (
	ResultPass ResultStatus = "pass"
	ResultFail ResultStatus = "fail"
)

// TestResult is the single authoritative outcome of an attempt. Write-once:
// the unique attempt_id constraint rejects a second compilation.
type TestResult struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID uuid.UUID `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex"`
	StudentID uuid.UUID `json:"student_id" gorm:"type:uuid;not null;index"`
	TestID    uuid.UUID `json:"test_id" gorm:"type:uuid;not null;index"`

	TotalScore  int          `json:"total_score" gorm:"not null"`
	MaxScore    int          `json:"max_score" gorm:"not null"`
	Percentage  float64      `json:"percentage" gorm:"type:decimal(5,2)"`
	Grade       string       `json:"grade" gorm:"size:2"`
	TimeTaken   int          `json:"time_taken"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Status      ResultStatus `json:"status"`

	QuestionScores datatypes.JSON `json:"question_scores" gorm:"type:jsonb"`
	AnalyticsData  datatypes.JSON `json:"analytics_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (TestResult) TableName() string {
	return "test_results"
}

// QuestionScore is one entry of a result's per-question breakdown.
type QuestionScore struct {
	PointsEarned  int      `json:"points_earned"`
	MaxPoints     int      `json:"max_points"`
	IsCorrect     bool     `json:"is_correct"`
	PartialScore  *float64 `json:"partial_score,omitempty"`
	NeedsReview   bool     `json:"needs_review,omitempty"`
	QuestionOrder int      `json:"question_order"`
}

// ResultAnalytics is the analytics payload attached to a result.
type ResultAnalytics struct {
	SubmissionKind    SubmissionKind `json:"submission_type"`
	QuestionsAnswered int            `json:"questions_answered"`
	QuestionsSkipped  int            `json:"questions_skipped"`
	TimePerQuestion   float64        `json:"time_per_question"`
}
