package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aetuition/testing-service/internal/cache"
	"github.com/aetuition/testing-service/internal/config"
	"github.com/aetuition/testing-service/internal/events"
	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/aetuition/testing-service/internal/utils"
	"github.com/google/uuid"
)

// MonitorService tracks live attempt sessions: heartbeats, proctoring
// activity, escalation, and the teacher-facing read views.
type MonitorService interface {
	Heartbeat(ctx context.Context, attemptID uuid.UUID, req *HeartbeatRequest, studentID uuid.UUID) (*HeartbeatAck, error)

	LogActivity(ctx context.Context, attemptID uuid.UUID, req *LogActivityRequest, studentID uuid.UUID) (*ActivityAck, error)
	LogActivities(ctx context.Context, attemptID uuid.UUID, req *BulkActivityRequest, studentID uuid.UUID) (*BulkActivityResult, error)

	CloseSession(ctx context.Context, attemptID uuid.UUID, studentID uuid.UUID) error

	GetSessionView(ctx context.Context, attemptID uuid.UUID) (*SessionView, error)
	ListActiveSessions(ctx context.Context, testID *uuid.UUID) ([]*models.LiveSession, error)
	ListFlaggedSessions(ctx context.Context) ([]*models.LiveSession, error)
	GetActivitySummary(ctx context.Context, attemptID uuid.UUID) (*models.ActivitySummary, error)
	GetActivityLog(ctx context.Context, attemptID uuid.UUID) ([]*models.SuspiciousActivity, error)

	// SweepStaleSessions marks sessions with lost heartbeats disconnected,
	// returning how many rows changed.
	SweepStaleSessions(ctx context.Context) (int64, error)
}

// ===== REQUEST / RESPONSE TYPES =====

type HeartbeatRequest struct {
	CurrentQuestion    int `json:"current_question" validate:"min=0"`
	QuestionsAnswered  int `json:"questions_answered" validate:"min=0"`
	ProgressPercentage int `json:"progress_percentage" validate:"min=0,max=100"`
	TimeRemaining      int `json:"time_remaining_seconds" validate:"min=0"`
}

type HeartbeatAck struct {
	Status        models.SessionStatus `json:"status"`
	IsFlagged     bool                 `json:"is_flagged"`
	WarningsCount int                  `json:"warnings_count"`
	ReceivedAt    time.Time            `json:"received_at"`
}

type LogActivityRequest struct {
	ActivityType    models.ActivityType `json:"activity_type" validate:"required,activity_type"`
	Description     string              `json:"description"`
	Metadata        map[string]any      `json:"metadata"`
	DurationSeconds *int                `json:"duration_seconds"`
	QuestionNumber  *int                `json:"question_number"`
	QuestionID      *uuid.UUID          `json:"question_id"`
	OccurredAt      *time.Time          `json:"occurred_at"`
}

type ActivityAck struct {
	Severity    models.ActivitySeverity `json:"severity"`
	Occurrences int64                   `json:"occurrences"`
	Flagged     bool                    `json:"flagged"`
}

type BulkActivityRequest struct {
	Activities []LogActivityRequest `json:"activities" validate:"required,min=1,dive"`
}

type BulkActivityResult struct {
	Logged   int `json:"logged"`
	Rejected int `json:"rejected"`
}

// SessionView is the teacher-facing snapshot of one live session.
type SessionView struct {
	Session  *models.LiveSession     `json:"session"`
	Summary  *models.ActivitySummary `json:"activity_summary"`
	CachedAt time.Time               `json:"cached_at"`
}

// activitySeverities assigns each anomaly type its severity. Types absent
// here default to low.
var activitySeverities = map[models.ActivityType]models.ActivitySeverity{
	models.ActivityTabSwitch:         models.SeverityMedium,
	models.ActivityTabHidden:         models.SeverityMedium,
	models.ActivityCopyAttempt:       models.SeverityHigh,
	models.ActivityPasteAttempt:      models.SeverityHigh,
	models.ActivityCutAttempt:        models.SeverityHigh,
	models.ActivityFullscreenExit:    models.SeverityMedium,
	models.ActivityDevtoolsOpen:      models.SeverityCritical,
	models.ActivityPrintAttempt:      models.SeverityHigh,
	models.ActivityScreenshotAttempt: models.SeverityHigh,
	models.ActivityMultipleMonitors:  models.SeverityMedium,
}

// flagThresholds is the occurrence count at which a session gets flagged for
// that activity type. Types absent here never flag on their own.
var flagThresholds = map[models.ActivityType]int64{
	models.ActivityTabSwitch:      5,
	models.ActivityTabHidden:      3,
	models.ActivityCopyAttempt:    2,
	models.ActivityPasteAttempt:   2,
	models.ActivityIdleTimeout:    3,
	models.ActivityDevtoolsOpen:   1,
	models.ActivityFullscreenExit: 3,
}

// activityCounters maps activity types onto the live-session counter they bump.
var activityCounters = map[models.ActivityType]string{
	models.ActivityTabSwitch:    "tab_switches",
	models.ActivityCopyAttempt:  "copy_attempts",
	models.ActivityPasteAttempt: "paste_attempts",
	models.ActivityIdleTimeout:  "idle_periods",
}

const sessionViewTTL = 10 * time.Second

func sessionViewKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("monitor:session:%s", attemptID)
}

type monitorService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *utils.Validator
	publisher events.EventPublisher
	cache     cache.CacheService
	cfg       config.MonitorConfig
}

func NewMonitorService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *utils.Validator,
	publisher events.EventPublisher,
	cacheService cache.CacheService,
	cfg config.MonitorConfig,
) MonitorService {
	return &monitorService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		cache:     cacheService,
		cfg:       cfg,
	}
}

// ===== HEARTBEATS =====

func (s *monitorService) Heartbeat(ctx context.Context, attemptID uuid.UUID, req *HeartbeatRequest, studentID uuid.UUID) (*HeartbeatAck, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.getOwnedSession(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionCompleted {
		return nil, ErrSessionClosed
	}

	now := time.Now()

	// Status is derived, never taken from the client. A flagged session
	// stays suspicious until a teacher clears it; otherwise a long gap since
	// the previous heartbeat demotes the session to idle.
	status := models.SessionActive
	if session.LastHeartbeat != nil && now.Sub(*session.LastHeartbeat) > s.cfg.IdleThreshold {
		status = models.SessionIdle
	}
	if session.IsFlagged {
		status = models.SessionSuspicious
	}

	answered := req.QuestionsAnswered
	if session.TotalQuestions > 0 && answered > session.TotalQuestions {
		answered = session.TotalQuestions
	}

	err = s.repo.Session().UpdateHeartbeat(ctx, attemptID, repositories.HeartbeatUpdate{
		Status:             status,
		CurrentQuestion:    req.CurrentQuestion,
		QuestionsAnswered:  answered,
		ProgressPercentage: req.ProgressPercentage,
		TimeRemaining:      req.TimeRemaining,
		Now:                now,
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to record heartbeat: %w", err)
	}

	s.invalidateView(ctx, attemptID)

	return &HeartbeatAck{
		Status:        status,
		IsFlagged:     session.IsFlagged,
		WarningsCount: session.WarningsCount,
		ReceivedAt:    now,
	}, nil
}

// ===== ACTIVITY LOGGING =====

func (s *monitorService) LogActivity(ctx context.Context, attemptID uuid.UUID, req *LogActivityRequest, studentID uuid.UUID) (*ActivityAck, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.getOwnedSession(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionCompleted {
		return nil, ErrSessionClosed
	}

	ack, err := s.logOne(ctx, session, req)
	if err != nil {
		return nil, err
	}

	s.invalidateView(ctx, attemptID)
	return ack, nil
}

func (s *monitorService) LogActivities(ctx context.Context, attemptID uuid.UUID, req *BulkActivityRequest, studentID uuid.UUID) (*BulkActivityResult, error) {
	session, err := s.getOwnedSession(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionCompleted {
		return nil, ErrSessionClosed
	}

	// One bad entry never sinks the batch; clients buffer events while
	// offline and replay them all at once.
	result := &BulkActivityResult{}
	for i := range req.Activities {
		entry := &req.Activities[i]
		if !entry.ActivityType.Valid() {
			result.Rejected++
			continue
		}
		if _, err := s.logOne(ctx, session, entry); err != nil {
			s.logger.Warn("Failed to log buffered activity",
				"attempt_id", attemptID,
				"activity_type", entry.ActivityType,
				"error", err)
			result.Rejected++
			continue
		}
		result.Logged++
	}

	if result.Logged > 0 {
		s.invalidateView(ctx, attemptID)
	}
	return result, nil
}

func (s *monitorService) logOne(ctx context.Context, session *models.LiveSession, req *LogActivityRequest) (*ActivityAck, error) {
	if !req.ActivityType.Valid() {
		return nil, ErrInvalidActivityType
	}

	severity := models.SeverityLow
	if sev, ok := activitySeverities[req.ActivityType]; ok {
		severity = sev
	}

	now := time.Now()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	activity := &models.SuspiciousActivity{
		ID:              uuid.New(),
		AttemptID:       session.AttemptID,
		StudentID:       session.StudentID,
		TestID:          session.TestID,
		ActivityType:    req.ActivityType,
		Severity:        severity,
		Description:     req.Description,
		OccurredAt:      occurredAt,
		DurationSeconds: req.DurationSeconds,
		QuestionNumber:  req.QuestionNumber,
		QuestionID:      req.QuestionID,
	}
	if len(req.Metadata) > 0 {
		activity.Metadata = mustJSON(req.Metadata)
	}
	if err := s.repo.Activity().Create(ctx, activity); err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	if column, ok := activityCounters[req.ActivityType]; ok {
		idleSeconds := 0
		if req.DurationSeconds != nil {
			idleSeconds = *req.DurationSeconds
		}
		if err := s.repo.Session().IncrementCounter(ctx, session.AttemptID, column, idleSeconds, now); err != nil {
			s.logger.Warn("Failed to bump session counter",
				"attempt_id", session.AttemptID,
				"column", column,
				"error", err)
		}
	}

	count, err := s.repo.Activity().CountByType(ctx, session.AttemptID, req.ActivityType)
	if err != nil {
		return nil, fmt.Errorf("failed to count activity occurrences: %w", err)
	}

	flagged := false
	if threshold, ok := flagThresholds[req.ActivityType]; ok && count >= threshold {
		flagged = true
		reason := fmt.Sprintf("%s occurred %d times (threshold %d)", req.ActivityType, count, threshold)
		if err := s.repo.Session().Flag(ctx, session.AttemptID, reason); err != nil {
			return nil, fmt.Errorf("failed to flag session: %w", err)
		}

		// Publish only on the first crossing; repeats just keep the flag.
		if count == threshold {
			event := events.NewEvent(events.EventSessionFlagged, events.SessionFlaggedEvent{
				AttemptID:    session.AttemptID,
				TestID:       session.TestID,
				StudentID:    session.StudentID,
				ActivityType: req.ActivityType,
				Severity:     severity,
				Occurrences:  count,
				Reason:       reason,
				FlaggedAt:    now,
			})
			if err := s.publisher.PublishEvent(ctx, event); err != nil {
				s.logger.Warn("Failed to publish session flagged event",
					"attempt_id", session.AttemptID,
					"error", err)
			}
			s.logger.Warn("Session flagged",
				"attempt_id", session.AttemptID,
				"activity_type", req.ActivityType,
				"occurrences", count)
		}
	}

	return &ActivityAck{
		Severity:    severity,
		Occurrences: count,
		Flagged:     flagged,
	}, nil
}

// ===== SESSION LIFECYCLE =====

func (s *monitorService) CloseSession(ctx context.Context, attemptID uuid.UUID, studentID uuid.UUID) error {
	if _, err := s.getOwnedSession(ctx, attemptID, studentID); err != nil {
		return err
	}
	if err := s.repo.Session().Close(ctx, attemptID); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	s.invalidateView(ctx, attemptID)
	return nil
}

func (s *monitorService) SweepStaleSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.StaleThreshold)

	// Snapshot the candidates first so disconnect events can be published
	// per session after the sweep.
	candidates, err := s.repo.Session().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	swept, err := s.repo.Session().SweepStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale sessions: %w", err)
	}
	if swept == 0 {
		return 0, nil
	}

	now := time.Now()
	for _, session := range candidates {
		if session.LastHeartbeat == nil || !session.LastHeartbeat.Before(cutoff) {
			continue
		}
		if session.Status == models.SessionSuspicious {
			// Suspicious sessions keep their status; the sweep skips them.
			continue
		}
		event := events.NewEvent(events.EventSessionDisconnected, events.SessionDisconnectedEvent{
			AttemptID:      session.AttemptID,
			StudentID:      session.StudentID,
			LastHeartbeat:  *session.LastHeartbeat,
			DisconnectedAt: now,
		})
		if err := s.publisher.PublishEvent(ctx, event); err != nil {
			s.logger.Warn("Failed to publish session disconnected event",
				"attempt_id", session.AttemptID,
				"error", err)
		}
		s.invalidateView(ctx, session.AttemptID)
	}

	s.logger.Info("Swept stale sessions", "count", swept)
	return swept, nil
}

// ===== READ VIEWS =====

func (s *monitorService) GetSessionView(ctx context.Context, attemptID uuid.UUID) (*SessionView, error) {
	key := sessionViewKey(attemptID)

	var cached SessionView
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Session view cache read failed", "key", key, "error", err)
	}

	session, err := s.repo.Session().GetByAttempt(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	summary, err := s.repo.Activity().Summary(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize activity: %w", err)
	}

	view := &SessionView{
		Session:  session,
		Summary:  summary,
		CachedAt: time.Now(),
	}
	if err := s.cache.Set(ctx, key, view, sessionViewTTL); err != nil {
		s.logger.Warn("Session view cache write failed", "key", key, "error", err)
	}
	return view, nil
}

func (s *monitorService) ListActiveSessions(ctx context.Context, testID *uuid.UUID) ([]*models.LiveSession, error) {
	if testID != nil {
		return s.repo.Session().ListActiveByTest(ctx, *testID)
	}
	return s.repo.Session().ListActive(ctx)
}

func (s *monitorService) ListFlaggedSessions(ctx context.Context) ([]*models.LiveSession, error) {
	return s.repo.Session().ListFlagged(ctx)
}

func (s *monitorService) GetActivitySummary(ctx context.Context, attemptID uuid.UUID) (*models.ActivitySummary, error) {
	if _, err := s.repo.Session().GetByAttempt(ctx, attemptID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s.repo.Activity().Summary(ctx, attemptID)
}

func (s *monitorService) GetActivityLog(ctx context.Context, attemptID uuid.UUID) ([]*models.SuspiciousActivity, error) {
	if _, err := s.repo.Session().GetByAttempt(ctx, attemptID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s.repo.Activity().ListByAttempt(ctx, attemptID)
}

// ===== HELPERS =====

func (s *monitorService) getOwnedSession(ctx context.Context, attemptID, studentID uuid.UUID) (*models.LiveSession, error) {
	session, err := s.repo.Session().GetByAttempt(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrAttemptAccessDenied
	}
	return session, nil
}

func (s *monitorService) invalidateView(ctx context.Context, attemptID uuid.UUID) {
	if err := s.cache.Delete(ctx, sessionViewKey(attemptID)); err != nil {
		s.logger.Warn("Failed to invalidate session view cache",
			"attempt_id", attemptID,
			"error", err)
	}
}
