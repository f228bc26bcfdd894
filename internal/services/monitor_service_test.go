package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aetuition/testing-service/internal/cache"
	"github.com/aetuition/testing-service/internal/config"
	"github.com/aetuition/testing-service/internal/events"
	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/aetuition/testing-service/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type monitorFixture struct {
	repo      *MockRepository
	publisher *events.MockEventPublisher
	svc       MonitorService
}

func newMonitorFixture() *monitorFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &MockRepository{}
	publisher := events.NewMockEventPublisher(logger)
	cfg := config.MonitorConfig{
		IdleThreshold:  30 * time.Second,
		StaleThreshold: 2 * time.Minute,
		SweepInterval:  time.Minute,
	}
	svc := NewMonitorService(repo, logger, utils.NewValidator(), publisher, cache.NoopCache{}, cfg)
	return &monitorFixture{repo: repo, publisher: publisher, svc: svc}
}

func activeSession(studentID uuid.UUID) *models.LiveSession {
	return &models.LiveSession{
		ID:             uuid.New(),
		AttemptID:      uuid.New(),
		StudentID:      studentID,
		TestID:         uuid.New(),
		Status:         models.SessionActive,
		TotalQuestions: 10,
		StartedAt:      time.Now().Add(-10 * time.Minute),
	}
}

func TestHeartbeat_RecordsProgress(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.SessionRepo.On("UpdateHeartbeat", mock.Anything, session.AttemptID,
		mock.MatchedBy(func(u repositories.HeartbeatUpdate) bool {
			return u.Status == models.SessionActive &&
				u.CurrentQuestion == 4 &&
				u.QuestionsAnswered == 3 &&
				u.ProgressPercentage == 30
		})).Return(nil)

	ack, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{
		CurrentQuestion:    4,
		QuestionsAnswered:  3,
		ProgressPercentage: 30,
		TimeRemaining:      900,
	}, studentID)

	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, ack.Status)
	assert.False(t, ack.IsFlagged)
}

func TestHeartbeat_ClampsAnsweredCount(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.SessionRepo.On("UpdateHeartbeat", mock.Anything, session.AttemptID,
		mock.MatchedBy(func(u repositories.HeartbeatUpdate) bool {
			return u.QuestionsAnswered == session.TotalQuestions
		})).Return(nil)

	_, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{
		QuestionsAnswered: 50,
	}, studentID)

	require.NoError(t, err)
	f.repo.SessionRepo.AssertExpectations(t)
}

func TestHeartbeat_DerivesIdleStatus(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)
	// Idle follows the heartbeat gap; a recent proctoring event does not
	// keep the session active on its own.
	stale := time.Now().Add(-40 * time.Second)
	recent := time.Now().Add(-5 * time.Second)
	session.LastHeartbeat = &stale
	session.LastActivity = &recent

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.SessionRepo.On("UpdateHeartbeat", mock.Anything, session.AttemptID,
		mock.MatchedBy(func(u repositories.HeartbeatUpdate) bool {
			return u.Status == models.SessionIdle
		})).Return(nil)

	ack, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{}, studentID)

	require.NoError(t, err)
	assert.Equal(t, models.SessionIdle, ack.Status)
}

func TestHeartbeat_FreshHeartbeatStaysActive(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)
	recent := time.Now().Add(-10 * time.Second)
	session.LastHeartbeat = &recent

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.SessionRepo.On("UpdateHeartbeat", mock.Anything, session.AttemptID,
		mock.MatchedBy(func(u repositories.HeartbeatUpdate) bool {
			return u.Status == models.SessionActive
		})).Return(nil)

	ack, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{}, studentID)

	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, ack.Status)
}

func TestHeartbeat_FlaggedSessionStaysSuspicious(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)
	session.IsFlagged = true
	session.Status = models.SessionSuspicious
	session.WarningsCount = 2

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.SessionRepo.On("UpdateHeartbeat", mock.Anything, session.AttemptID,
		mock.MatchedBy(func(u repositories.HeartbeatUpdate) bool {
			return u.Status == models.SessionSuspicious
		})).Return(nil)

	ack, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{}, studentID)

	require.NoError(t, err)
	assert.Equal(t, models.SessionSuspicious, ack.Status)
	assert.True(t, ack.IsFlagged)
	assert.Equal(t, 2, ack.WarningsCount)
}

func TestHeartbeat_ClosedSession(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)
	session.Status = models.SessionCompleted

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)

	_, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{}, studentID)

	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestHeartbeat_WrongStudent(t *testing.T) {
	f := newMonitorFixture()
	session := activeSession(uuid.New())

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)

	_, err := f.svc.Heartbeat(context.Background(), session.AttemptID, &HeartbeatRequest{}, uuid.New())

	assert.ErrorIs(t, err, ErrAttemptAccessDenied)
}

func TestLogActivity_BelowThreshold(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.SuspiciousActivity")).Return(nil)
	f.repo.SessionRepo.On("IncrementCounter", mock.Anything, session.AttemptID, "tab_switches", 0, mock.Anything).Return(nil)
	f.repo.ActivityRepo.On("CountByType", mock.Anything, session.AttemptID, models.ActivityTabSwitch).
		Return(int64(4), nil)

	ack, err := f.svc.LogActivity(context.Background(), session.AttemptID, &LogActivityRequest{
		ActivityType: models.ActivityTabSwitch,
	}, studentID)

	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, ack.Severity)
	assert.Equal(t, int64(4), ack.Occurrences)
	assert.False(t, ack.Flagged)

	f.repo.SessionRepo.AssertNotCalled(t, "Flag", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.GetPublishedEvents())
}

func TestLogActivity_ThresholdFlagsSession(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.repo.SessionRepo.On("IncrementCounter", mock.Anything, session.AttemptID, "tab_switches", 0, mock.Anything).Return(nil)
	f.repo.ActivityRepo.On("CountByType", mock.Anything, session.AttemptID, models.ActivityTabSwitch).
		Return(int64(5), nil)
	f.repo.SessionRepo.On("Flag", mock.Anything, session.AttemptID, mock.Anything).Return(nil)

	ack, err := f.svc.LogActivity(context.Background(), session.AttemptID, &LogActivityRequest{
		ActivityType: models.ActivityTabSwitch,
	}, studentID)

	require.NoError(t, err)
	assert.True(t, ack.Flagged)

	published := f.publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventSessionFlagged, published[0].Type)
	payload, ok := published[0].Data.(events.SessionFlaggedEvent)
	require.True(t, ok)
	assert.Equal(t, models.ActivityTabSwitch, payload.ActivityType)
	assert.Equal(t, int64(5), payload.Occurrences)
}

func TestLogActivity_RepeatPastThresholdPublishesOnce(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.repo.SessionRepo.On("IncrementCounter", mock.Anything, session.AttemptID, "tab_switches", 0, mock.Anything).Return(nil)
	f.repo.ActivityRepo.On("CountByType", mock.Anything, session.AttemptID, models.ActivityTabSwitch).
		Return(int64(7), nil)
	f.repo.SessionRepo.On("Flag", mock.Anything, session.AttemptID, mock.Anything).Return(nil)

	ack, err := f.svc.LogActivity(context.Background(), session.AttemptID, &LogActivityRequest{
		ActivityType: models.ActivityTabSwitch,
	}, studentID)

	require.NoError(t, err)
	assert.True(t, ack.Flagged)
	// The flag sticks, but the event only fires on the first crossing.
	assert.Empty(t, f.publisher.GetPublishedEvents())
}

func TestLogActivity_DevtoolsFlagsImmediately(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.repo.ActivityRepo.On("CountByType", mock.Anything, session.AttemptID, models.ActivityDevtoolsOpen).
		Return(int64(1), nil)
	f.repo.SessionRepo.On("Flag", mock.Anything, session.AttemptID, mock.Anything).Return(nil)

	ack, err := f.svc.LogActivity(context.Background(), session.AttemptID, &LogActivityRequest{
		ActivityType: models.ActivityDevtoolsOpen,
	}, studentID)

	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, ack.Severity)
	assert.True(t, ack.Flagged)
	assert.Len(t, f.publisher.GetPublishedEvents(), 1)
}

func TestLogActivity_IdleBumpsIdleSeconds(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)
	idle := 45

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Create", mock.Anything, mock.MatchedBy(func(a *models.SuspiciousActivity) bool {
		return a.ActivityType == models.ActivityIdleTimeout && a.DurationSeconds != nil && *a.DurationSeconds == idle
	})).Return(nil)
	f.repo.SessionRepo.On("IncrementCounter", mock.Anything, session.AttemptID, "idle_periods", idle, mock.Anything).Return(nil)
	f.repo.ActivityRepo.On("CountByType", mock.Anything, session.AttemptID, models.ActivityIdleTimeout).
		Return(int64(1), nil)

	_, err := f.svc.LogActivity(context.Background(), session.AttemptID, &LogActivityRequest{
		ActivityType:    models.ActivityIdleTimeout,
		DurationSeconds: &idle,
	}, studentID)

	require.NoError(t, err)
	f.repo.SessionRepo.AssertExpectations(t)
}

func TestLogActivities_SkipsInvalidEntries(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.repo.ActivityRepo.On("CountByType", mock.Anything, session.AttemptID, mock.Anything).
		Return(int64(1), nil)

	result, err := f.svc.LogActivities(context.Background(), session.AttemptID, &BulkActivityRequest{
		Activities: []LogActivityRequest{
			{ActivityType: models.ActivityWindowBlur},
			{ActivityType: models.ActivityType("telepathy")},
			{ActivityType: models.ActivityRightClick},
		},
	}, studentID)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Logged)
	assert.Equal(t, 1, result.Rejected)
}

func TestCloseSession(t *testing.T) {
	f := newMonitorFixture()
	studentID := uuid.New()
	session := activeSession(studentID)

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.SessionRepo.On("Close", mock.Anything, session.AttemptID).Return(nil)

	err := f.svc.CloseSession(context.Background(), session.AttemptID, studentID)

	require.NoError(t, err)
	f.repo.SessionRepo.AssertExpectations(t)
}

func TestSweepStaleSessions(t *testing.T) {
	f := newMonitorFixture()
	stale := time.Now().Add(-10 * time.Minute)

	lost := activeSession(uuid.New())
	lost.LastHeartbeat = &stale

	// Flagged sessions keep their status through the sweep.
	flagged := activeSession(uuid.New())
	flagged.Status = models.SessionSuspicious
	flagged.LastHeartbeat = &stale

	fresh := activeSession(uuid.New())
	now := time.Now()
	fresh.LastHeartbeat = &now

	f.repo.SessionRepo.On("ListActive", mock.Anything).
		Return([]*models.LiveSession{lost, flagged, fresh}, nil)
	f.repo.SessionRepo.On("SweepStale", mock.Anything, mock.Anything).Return(int64(1), nil)

	swept, err := f.svc.SweepStaleSessions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	published := f.publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventSessionDisconnected, published[0].Type)
	payload, ok := published[0].Data.(events.SessionDisconnectedEvent)
	require.True(t, ok)
	assert.Equal(t, lost.AttemptID, payload.AttemptID)
}

func TestSweepStaleSessions_NothingToSweep(t *testing.T) {
	f := newMonitorFixture()

	f.repo.SessionRepo.On("ListActive", mock.Anything).Return([]*models.LiveSession{}, nil)
	f.repo.SessionRepo.On("SweepStale", mock.Anything, mock.Anything).Return(int64(0), nil)

	swept, err := f.svc.SweepStaleSessions(context.Background())

	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Empty(t, f.publisher.GetPublishedEvents())
}

func TestGetSessionView(t *testing.T) {
	f := newMonitorFixture()
	session := activeSession(uuid.New())
	summary := &models.ActivitySummary{
		ActivityCounts:  map[models.ActivityType]int{models.ActivityTabSwitch: 2},
		TotalActivities: 2,
	}

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("Summary", mock.Anything, session.AttemptID).Return(summary, nil)

	view, err := f.svc.GetSessionView(context.Background(), session.AttemptID)

	require.NoError(t, err)
	assert.Equal(t, session, view.Session)
	assert.Equal(t, summary, view.Summary)
	assert.False(t, view.CachedAt.IsZero())
}

func TestGetActivityLog(t *testing.T) {
	f := newMonitorFixture()
	session := activeSession(uuid.New())
	logged := []*models.SuspiciousActivity{
		{AttemptID: session.AttemptID, ActivityType: models.ActivityTabSwitch},
		{AttemptID: session.AttemptID, ActivityType: models.ActivityCopyAttempt},
	}

	f.repo.SessionRepo.On("GetByAttempt", mock.Anything, session.AttemptID).Return(session, nil)
	f.repo.ActivityRepo.On("ListByAttempt", mock.Anything, session.AttemptID).Return(logged, nil)

	activities, err := f.svc.GetActivityLog(context.Background(), session.AttemptID)

	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, models.ActivityCopyAttempt, activities[1].ActivityType)
}

func TestListActiveSessions_FiltersByTest(t *testing.T) {
	f := newMonitorFixture()
	testID := uuid.New()
	session := activeSession(uuid.New())

	f.repo.SessionRepo.On("ListActiveByTest", mock.Anything, testID).
		Return([]*models.LiveSession{session}, nil)

	sessions, err := f.svc.ListActiveSessions(context.Background(), &testID)

	require.NoError(t, err)
	require.Len(t, sessions, 1)
	f.repo.SessionRepo.AssertNotCalled(t, "ListActive", mock.Anything)
}
