package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/aetuition/testing-service/internal/events"
	"github.com/aetuition/testing-service/internal/marking"
	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// finalize runs the terminal transition of an attempt: mark every stored
// answer, compile the single authoritative result, close the shadowing live
// session, all in one transaction. The row lock on the attempt serializes
// racing submissions; the loser sees a terminal status and backs off.
//
// owner is nil on the auto-submit path, which acts on behalf of the system.
// final carries any last-moment answers to flush before marking.
func (s *attemptService) finalize(ctx context.Context, attemptID uuid.UUID, kind models.SubmissionKind, owner *uuid.UUID, final []SaveAnswerRequest) (result *models.TestResult, err error) {
	txRepo, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = txRepo.Rollback(ctx)
		}
	}()

	attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	if owner != nil && attempt.StudentID != *owner {
		return nil, ErrAttemptAccessDenied
	}
	if attempt.Status.IsTerminal() {
		return nil, ErrAttemptAlreadyCompleted
	}

	test, err := txRepo.Test().GetByID(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	questions, err := txRepo.Test().ResolveQuestions(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve questions: %w", err)
	}

	// Flush the final answer batch inside the same transaction so it is
	// marked with everything else. A bad entry costs only itself.
	for i := range final {
		if saveErr := s.saveOne(ctx, txRepo, attempt, questions, &final[i]); saveErr != nil {
			s.logger.Warn("Skipping bad answer in final submission batch",
				"attempt_id", attempt.ID,
				"question_id", final[i].QuestionID,
				"error", saveErr)
		}
	}

	responses, err := txRepo.Response().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}

	now := time.Now()
	elapsed := int(now.Sub(attempt.StartedAt).Seconds())
	if limit := test.Duration * 60; kind != models.SubmissionManual && elapsed > limit {
		// Auto submissions credit at most the allowed time.
		elapsed = limit
	}

	marked, err := s.markResponses(ctx, txRepo, questions, responses)
	if err != nil {
		return nil, err
	}

	result, err = s.compileResult(attempt, test, questions, marked, kind, now, elapsed)
	if err != nil {
		return nil, err
	}
	if err = txRepo.Result().Create(ctx, result); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ErrResultExists
		}
		return nil, fmt.Errorf("failed to create result: %w", err)
	}

	status := models.AttemptSubmitted
	if kind != models.SubmissionManual {
		status = models.AttemptAutoSubmitted
	}
	attempt.Status = status
	attempt.SubmittedAt = &now
	attempt.TimeTaken = &elapsed
	if err = txRepo.Attempt().Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to update attempt: %w", err)
	}

	if err = txRepo.Session().Close(ctx, attempt.ID); err != nil {
		return nil, fmt.Errorf("failed to close live session: %w", err)
	}

	if err = txRepo.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Attempt finalized",
		"attempt_id", attempt.ID,
		"submission_type", kind,
		"score", result.TotalScore,
		"max_score", result.MaxScore,
		"grade", result.Grade)

	s.afterFinalize(ctx, attempt, result, kind)
	return result, nil
}

func (s *attemptService) markResponses(ctx context.Context, repo repositories.Repository, questions []repositories.ResolvedQuestion, responses []*models.QuestionResponse) (map[uuid.UUID]marking.Outcome, error) {
	byQuestion := make(map[uuid.UUID]repositories.ResolvedQuestion, len(questions))
	for _, q := range questions {
		byQuestion[q.Question.ID] = q
	}

	marked := make(map[uuid.UUID]marking.Outcome, len(responses))
	for _, r := range responses {
		q, ok := byQuestion[r.QuestionID]
		if !ok {
			// Stale response from a since-removed question; ignore.
			continue
		}

		outcome := marking.Mark(q.Question, q.Points, marking.DecodeAnswer(r))

		isCorrect := outcome.IsCorrect
		partial := outcome.PartialScore
		r.IsCorrect = &isCorrect
		r.PointsEarned = outcome.PointsEarned
		r.PartialScore = &partial
		if err := repo.Response().UpdateMarks(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to store marks for question %s: %w", r.QuestionID, err)
		}

		marked[r.QuestionID] = outcome
	}
	return marked, nil
}

func (s *attemptService) compileResult(
	attempt *models.TestAttempt,
	test *models.Test,
	questions []repositories.ResolvedQuestion,
	marked map[uuid.UUID]marking.Outcome,
	kind models.SubmissionKind,
	submittedAt time.Time,
	elapsed int,
) (*models.TestResult, error) {
	totalScore := 0
	maxScore := 0
	answered := 0
	scores := make(map[string]models.QuestionScore, len(questions))

	for _, q := range questions {
		maxScore += q.Points
		score := models.QuestionScore{
			MaxPoints:     q.Points,
			QuestionOrder: q.OrderNum,
		}
		if m, ok := marked[q.Question.ID]; ok {
			answered++
			score.PointsEarned = m.PointsEarned
			score.IsCorrect = m.IsCorrect
			score.NeedsReview = m.Unsupported
			partial := m.PartialScore
			score.PartialScore = &partial
			totalScore += m.PointsEarned
		}
		scores[q.Question.ID.String()] = score
	}

	percentage := 0.0
	if maxScore > 0 {
		percentage = round2(float64(totalScore) / float64(maxScore) * 100)
	}
	status := models.ResultFail
	if percentage >= float64(test.PassMark) {
		status = models.ResultPass
	}

	analytics := models.ResultAnalytics{
		SubmissionKind:    kind,
		QuestionsAnswered: answered,
		QuestionsSkipped:  len(questions) - answered,
	}
	if answered > 0 {
		analytics.TimePerQuestion = round2(float64(elapsed) / float64(answered))
	}

	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question scores: %w", err)
	}
	analyticsJSON, err := json.Marshal(analytics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analytics: %w", err)
	}

	return &models.TestResult{
		ID:             uuid.New(),
		AttemptID:      attempt.ID,
		StudentID:      attempt.StudentID,
		TestID:         test.ID,
		TotalScore:     totalScore,
		MaxScore:       maxScore,
		Percentage:     percentage,
		Grade:          gradeFor(percentage),
		TimeTaken:      elapsed,
		SubmittedAt:    submittedAt,
		Status:         status,
		QuestionScores: datatypes.JSON(scoresJSON),
		AnalyticsData:  datatypes.JSON(analyticsJSON),
	}, nil
}

// afterFinalize publishes events and drops cached monitor views. Strictly
// post-commit; failures here never unwind the submission.
func (s *attemptService) afterFinalize(ctx context.Context, attempt *models.TestAttempt, result *models.TestResult, kind models.SubmissionKind) {
	eventType := events.EventAttemptSubmitted
	if kind != models.SubmissionManual {
		eventType = events.EventAttemptAutoSubmitted
	}
	submitted := events.NewEvent(eventType, events.AttemptSubmittedEvent{
		AttemptID:      attempt.ID,
		TestID:         attempt.TestID,
		StudentID:      attempt.StudentID,
		SubmittedAt:    *attempt.SubmittedAt,
		SubmissionKind: kind,
		TimeTaken:      result.TimeTaken,
	})
	if err := s.publisher.PublishEvent(ctx, submitted); err != nil {
		s.logger.Warn("Failed to publish attempt submitted event",
			"attempt_id", attempt.ID,
			"error", err)
	}

	compiled := events.NewEvent(events.EventResultCompiled, events.ResultCompiledEvent{
		ResultID:   result.ID,
		AttemptID:  result.AttemptID,
		TestID:     result.TestID,
		StudentID:  result.StudentID,
		TotalScore: result.TotalScore,
		MaxScore:   result.MaxScore,
		Percentage: result.Percentage,
		Grade:      result.Grade,
		Status:     result.Status,
	})
	if err := s.publisher.PublishEvent(ctx, compiled); err != nil {
		s.logger.Warn("Failed to publish result compiled event",
			"attempt_id", attempt.ID,
			"error", err)
	}

	if err := s.cache.Delete(ctx, sessionViewKey(attempt.ID)); err != nil {
		s.logger.Warn("Failed to invalidate session view cache",
			"attempt_id", attempt.ID,
			"error", err)
	}
}

// gradeFor maps a percentage onto the letter-grade bands used across the
// platform.
func gradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 85:
		return "A"
	case percentage >= 80:
		return "A-"
	case percentage >= 75:
		return "B+"
	case percentage >= 70:
		return "B"
	case percentage >= 65:
		return "B-"
	case percentage >= 60:
		return "C+"
	case percentage >= 55:
		return "C"
	case percentage >= 50:
		return "C-"
	case percentage >= 45:
		return "D"
	default:
		return "F"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
