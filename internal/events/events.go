package events

import (
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents different types of assessment events
type EventType string

const (
	// Attempt events
	EventAttemptStarted       EventType = "attempt.started"
	EventAttemptSubmitted     EventType = "attempt.submitted"
	EventAttemptAutoSubmitted EventType = "attempt.auto_submitted"

	// Result events
	EventResultCompiled EventType = "result.compiled"

	// Monitoring events
	EventSessionFlagged      EventType = "session.flagged"
	EventSessionDisconnected EventType = "session.disconnected"
)

// Event is the base structure for all published assessment events
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Attempt event payloads

type AttemptStartedEvent struct {
	AttemptID   uuid.UUID  `json:"attempt_id"`
	TestID      uuid.UUID  `json:"test_id"`
	TestTitle   string     `json:"test_title"`
	StudentID   uuid.UUID  `json:"student_id"`
	StartedAt   time.Time  `json:"started_at"`
	DurationMin int        `json:"duration_minutes"`
	Resumed     bool       `json:"resumed"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

type AttemptSubmittedEvent struct {
	AttemptID      uuid.UUID             `json:"attempt_id"`
	TestID         uuid.UUID             `json:"test_id"`
	StudentID      uuid.UUID             `json:"student_id"`
	SubmittedAt    time.Time             `json:"submitted_at"`
	SubmissionKind models.SubmissionKind `json:"submission_type"`
	TimeTaken      int                   `json:"time_taken_seconds"`
}

// Result event payloads

type ResultCompiledEvent struct {
	ResultID   uuid.UUID           `json:"result_id"`
	AttemptID  uuid.UUID           `json:"attempt_id"`
	TestID     uuid.UUID           `json:"test_id"`
	StudentID  uuid.UUID           `json:"student_id"`
	TotalScore int                 `json:"total_score"`
	MaxScore   int                 `json:"max_score"`
	Percentage float64             `json:"percentage"`
	Grade      string              `json:"grade"`
	Status     models.ResultStatus `json:"status"`
}

// Monitoring event payloads

type SessionFlaggedEvent struct {
	AttemptID    uuid.UUID               `json:"attempt_id"`
	TestID       uuid.UUID               `json:"test_id"`
	StudentID    uuid.UUID               `json:"student_id"`
	ActivityType models.ActivityType     `json:"activity_type"`
	Severity     models.ActivitySeverity `json:"severity"`
	Occurrences  int64                   `json:"occurrences"`
	Reason       string                  `json:"reason"`
	FlaggedAt    time.Time               `json:"flagged_at"`
}

type SessionDisconnectedEvent struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	StudentID      uuid.UUID `json:"student_id"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// NewEvent wraps a payload in the envelope every consumer expects.
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    "testing-service",
		Version:   "1.0",
		Data:      data,
	}
}
