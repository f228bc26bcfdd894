package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityTabSwitch         ActivityType = "tab_switch"
	ActivityTabHidden         ActivityType = "tab_hidden"
	ActivityCopyAttempt       ActivityType = "copy_attempt"
	ActivityPasteAttempt      ActivityType = "paste_attempt"
	ActivityCutAttempt        ActivityType = "cut_attempt"
	ActivityRightClick        ActivityType = "right_click"
	ActivityKeyboardShortcut  ActivityType = "keyboard_shortcut"
	ActivityIdleTimeout       ActivityType = "idle_timeout"
	ActivityWindowBlur        ActivityType = "window_blur"
	ActivityWindowFocus       ActivityType = "window_focus"
	ActivityFullscreenExit    ActivityType = "fullscreen_exit"
	ActivityDevtoolsOpen      ActivityType = "devtools_open"
	ActivityPrintAttempt      ActivityType = "print_attempt"
	ActivityScreenshotAttempt ActivityType = "screenshot_attempt"
	ActivityMultipleMonitors  ActivityType = "multiple_monitors"
	ActivityBrowserResize     ActivityType = "browser_resize"
)

// AllActivityTypes lists every accepted activity type; events outside this
// set are rejected.
var AllActivityTypes = []ActivityType{
	ActivityTabSwitch, ActivityTabHidden, ActivityCopyAttempt,
	ActivityPasteAttempt, ActivityCutAttempt, ActivityRightClick,
	ActivityKeyboardShortcut, ActivityIdleTimeout, ActivityWindowBlur,
	ActivityWindowFocus, ActivityFullscreenExit, ActivityDevtoolsOpen,
	ActivityPrintAttempt, ActivityScreenshotAttempt,
	ActivityMultipleMonitors, ActivityBrowserResize,
}

func (t ActivityType) Valid() bool {
	for _, known := range AllActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

type ActivitySeverity string

const (
	SeverityLow      ActivitySeverity = "low"
	SeverityMedium   ActivitySeverity = "medium"
	SeverityHigh     ActivitySeverity = "high"
	SeverityCritical ActivitySeverity = "critical"
)

type SessionStatus string

const (
	SessionActive       SessionStatus = "active"
	SessionIdle         SessionStatus = "idle"
	SessionSuspicious   SessionStatus = "suspicious"
	SessionDisconnected SessionStatus = "disconnected"
	SessionCompleted    SessionStatus = "completed"
)

// LiveSession is the heartbeat-driven telemetry record shadowing one attempt,
// 1:1 with it. Status is derived server-side, never client-set.
type LiveSession struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID    uuid.UUID  `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex"`
	StudentID    uuid.UUID  `json:"student_id" gorm:"type:uuid;not null;index"`
	TestID       uuid.UUID  `json:"test_id" gorm:"type:uuid;not null;index"`
	AssignmentID *uuid.UUID `json:"assignment_id" gorm:"type:uuid"`

	Status SessionStatus `json:"status" gorm:"default:active;index"`

	// Progress tracking
	CurrentQuestion    int `json:"current_question" gorm:"default:1"`
	QuestionsAnswered  int `json:"questions_answered" gorm:"default:0"`
	TotalQuestions     int `json:"total_questions" gorm:"default:0"`
	ProgressPercentage int `json:"progress_percentage" gorm:"default:0"`

	// Timing
	StartedAt            time.Time  `json:"started_at"`
	LastHeartbeat        *time.Time `json:"last_heartbeat"`
	LastActivity         *time.Time `json:"last_activity"`
	TimeRemainingSeconds int        `json:"time_remaining_seconds"`

	// Anomaly counters
	TabSwitches      int `json:"tab_switches" gorm:"default:0"`
	CopyAttempts     int `json:"copy_attempts" gorm:"default:0"`
	PasteAttempts    int `json:"paste_attempts" gorm:"default:0"`
	IdlePeriods      int `json:"idle_periods" gorm:"default:0"`
	TotalIdleSeconds int `json:"total_idle_seconds" gorm:"default:0"`
	WarningsCount    int `json:"warnings_count" gorm:"default:0"`

	// Escalation
	IsFlagged         bool    `json:"is_flagged" gorm:"default:false;index"`
	FlagReason        *string `json:"flag_reason" gorm:"type:text"`
	RequiresAttention bool    `json:"requires_attention" gorm:"default:false"`

	// Client metadata
	BrowserInfo      datatypes.JSON `json:"browser_info" gorm:"type:jsonb"`
	IPAddress        *string        `json:"ip_address" gorm:"size:45"`
	UserAgent        *string        `json:"user_agent" gorm:"type:text"`
	ScreenResolution *string        `json:"screen_resolution" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LiveSession) TableName() string {
	return "live_sessions"
}

// SuspiciousActivity is one append-only anomaly record for an attempt.
// Immutable once written except for the review fields.
type SuspiciousActivity struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID uuid.UUID `json:"attempt_id" gorm:"type:uuid;not null;index"`
	StudentID uuid.UUID `json:"student_id" gorm:"type:uuid;not null;index"`
	TestID    uuid.UUID `json:"test_id" gorm:"type:uuid;not null;index"`

	ActivityType ActivityType     `json:"activity_type" gorm:"not null;index"`
	Severity     ActivitySeverity `json:"severity" gorm:"default:low"`
	Description  string           `json:"description" gorm:"type:text"`
	Metadata     datatypes.JSON   `json:"metadata" gorm:"type:jsonb"`

	OccurredAt      time.Time `json:"occurred_at"`
	DurationSeconds *int      `json:"duration_seconds"` // idle/hidden events

	// Position in the test when the event fired
	QuestionNumber *int       `json:"question_number"`
	QuestionID     *uuid.UUID `json:"question_id" gorm:"type:uuid"`

	// Review sub-fields, the only mutable part of the record
	Reviewed    bool       `json:"reviewed" gorm:"default:false"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by" gorm:"type:uuid"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNotes *string    `json:"review_notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

func (SuspiciousActivity) TableName() string {
	return "suspicious_activity_logs"
}

// ActivitySummary aggregates an attempt's anomaly records.
type ActivitySummary struct {
	ActivityCounts   map[ActivityType]int `json:"activity_counts"`
	TotalActivities  int                  `json:"total_activities"`
	TotalIdleSeconds int                  `json:"total_idle_seconds"`
	IsSuspicious     bool                 `json:"is_suspicious"`
}
