package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// counterColumns whitelists the session columns IncrementCounter may touch.
var counterColumns = map[string]bool{
	"tab_switches":   true,
	"copy_attempts":  true,
	"paste_attempts": true,
	"idle_periods":   true,
}

type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionRepository {
	return &SessionPostgreSQL{db: db}
}

func (r *SessionPostgreSQL) Create(ctx context.Context, session *models.LiveSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionPostgreSQL) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*models.LiveSession, error) {
	var session models.LiveSession
	err := r.db.WithContext(ctx).First(&session, "attempt_id = ?", attemptID).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionPostgreSQL) UpdateHeartbeat(ctx context.Context, attemptID uuid.UUID, update repositories.HeartbeatUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&models.LiveSession{}).
		Where("attempt_id = ?", attemptID).
		Updates(map[string]interface{}{
			"status":                 update.Status,
			"current_question":       update.CurrentQuestion,
			"questions_answered":     update.QuestionsAnswered,
			"progress_percentage":    update.ProgressPercentage,
			"time_remaining_seconds": update.TimeRemaining,
			// Retried heartbeats may land out of order; never move the
			// watermark backwards.
			"last_heartbeat": gorm.Expr("GREATEST(COALESCE(last_heartbeat, to_timestamp(0)), ?)", update.Now),
			"last_activity":  update.Now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *SessionPostgreSQL) IncrementCounter(ctx context.Context, attemptID uuid.UUID, column string, idleSeconds int, now time.Time) error {
	if !counterColumns[column] {
		return fmt.Errorf("unknown session counter column %q", column)
	}

	updates := map[string]interface{}{
		column:          gorm.Expr(column+" + ?", 1),
		"last_activity": now,
	}
	if column == "idle_periods" && idleSeconds > 0 {
		updates["total_idle_seconds"] = gorm.Expr("total_idle_seconds + ?", idleSeconds)
	}

	return r.db.WithContext(ctx).
		Model(&models.LiveSession{}).
		Where("attempt_id = ?", attemptID).
		Updates(updates).Error
}

func (r *SessionPostgreSQL) Flag(ctx context.Context, attemptID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.LiveSession{}).
		Where("attempt_id = ?", attemptID).
		Updates(map[string]interface{}{
			"is_flagged":         true,
			"requires_attention": true,
			"flag_reason":        reason,
			"status":             models.SessionSuspicious,
			"warnings_count":     gorm.Expr("warnings_count + 1"),
		}).Error
}

func (r *SessionPostgreSQL) Close(ctx context.Context, attemptID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.LiveSession{}).
		Where("attempt_id = ? AND status <> ?", attemptID, models.SessionCompleted).
		Update("status", models.SessionCompleted).Error
}

func (r *SessionPostgreSQL) SweepStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LiveSession{}).
		Where("status IN ?", []models.SessionStatus{models.SessionActive, models.SessionIdle}).
		Where("last_heartbeat IS NOT NULL AND last_heartbeat < ?", cutoff).
		Update("status", models.SessionDisconnected)
	return res.RowsAffected, res.Error
}

func (r *SessionPostgreSQL) ListActive(ctx context.Context) ([]*models.LiveSession, error) {
	return r.list(ctx, r.db.Where("status IN ?",
		[]models.SessionStatus{models.SessionActive, models.SessionIdle, models.SessionSuspicious}))
}

func (r *SessionPostgreSQL) ListActiveByTest(ctx context.Context, testID uuid.UUID) ([]*models.LiveSession, error) {
	return r.list(ctx, r.db.
		Where("test_id = ?", testID).
		Where("status IN ?", []models.SessionStatus{models.SessionActive, models.SessionIdle, models.SessionSuspicious}))
}

func (r *SessionPostgreSQL) ListFlagged(ctx context.Context) ([]*models.LiveSession, error) {
	return r.list(ctx, r.db.Where("is_flagged = ?", true))
}

func (r *SessionPostgreSQL) list(ctx context.Context, query *gorm.DB) ([]*models.LiveSession, error) {
	var sessions []*models.LiveSession
	err := query.WithContext(ctx).Order("started_at ASC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

type ActivityPostgreSQL struct {
	db *gorm.DB
}

func NewActivityPostgreSQL(db *gorm.DB) repositories.ActivityRepository {
	return &ActivityPostgreSQL{db: db}
}

func (r *ActivityPostgreSQL) Create(ctx context.Context, activity *models.SuspiciousActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *ActivityPostgreSQL) CountByType(ctx context.Context, attemptID uuid.UUID, activityType models.ActivityType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SuspiciousActivity{}).
		Where("attempt_id = ? AND activity_type = ?", attemptID, activityType).
		Count(&count).Error
	return count, err
}

func (r *ActivityPostgreSQL) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*models.SuspiciousActivity, error) {
	var activities []*models.SuspiciousActivity
	err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("occurred_at ASC").
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *ActivityPostgreSQL) Summary(ctx context.Context, attemptID uuid.UUID) (*models.ActivitySummary, error) {
	type typeCount struct {
		ActivityType models.ActivityType
		Count        int
	}
	var rows []typeCount
	err := r.db.WithContext(ctx).
		Model(&models.SuspiciousActivity{}).
		Select("activity_type, COUNT(*) AS count").
		Where("attempt_id = ?", attemptID).
		Group("activity_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &models.ActivitySummary{
		ActivityCounts: make(map[models.ActivityType]int, len(rows)),
	}
	for _, row := range rows {
		summary.ActivityCounts[row.ActivityType] = row.Count
		summary.TotalActivities += row.Count
	}

	var idle struct{ Total int }
	err = r.db.WithContext(ctx).
		Model(&models.SuspiciousActivity{}).
		Select("COALESCE(SUM(duration_seconds), 0) AS total").
		Where("attempt_id = ? AND activity_type = ?", attemptID, models.ActivityIdleTimeout).
		Scan(&idle).Error
	if err != nil {
		return nil, err
	}
	summary.TotalIdleSeconds = idle.Total
	summary.IsSuspicious = summary.TotalActivities > 10

	return summary, nil
}
