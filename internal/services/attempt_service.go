package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aetuition/testing-service/internal/cache"
	"github.com/aetuition/testing-service/internal/events"
	"github.com/aetuition/testing-service/internal/models"
	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/aetuition/testing-service/internal/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AttemptService drives the attempt lifecycle from admission to the compiled
// result.
type AttemptService interface {
	StartOrResume(ctx context.Context, req *StartAttemptRequest, studentID uuid.UUID) (*AttemptSession, error)
	GetSession(ctx context.Context, attemptID, studentID uuid.UUID) (*AttemptSession, error)

	SaveAnswer(ctx context.Context, attemptID uuid.UUID, req *SaveAnswerRequest, studentID uuid.UUID) error
	SaveAnswers(ctx context.Context, attemptID uuid.UUID, req *BulkSaveAnswersRequest, studentID uuid.UUID) (*BulkSaveResult, error)

	Submit(ctx context.Context, attemptID uuid.UUID, req *SubmitRequest, studentID uuid.UUID) (*models.TestResult, error)

	GetResult(ctx context.Context, attemptID, studentID uuid.UUID) (*models.TestResult, error)
	ListStudentResults(ctx context.Context, studentID uuid.UUID, filters repositories.ResultFilters) ([]*models.TestResult, error)

	// SweepExpiredAttempts force-submits every in-progress attempt whose
	// deadline has passed, returning how many were closed.
	SweepExpiredAttempts(ctx context.Context) (int, error)
}

// ===== REQUEST / RESPONSE TYPES =====

type StartAttemptRequest struct {
	TestID       uuid.UUID       `json:"test_id" validate:"required"`
	AssignmentID *uuid.UUID      `json:"assignment_id" validate:"required"`
	BrowserInfo  json.RawMessage `json:"browser_info"`
	IPAddress    string          `json:"ip_address"`
	UserAgent    string          `json:"user_agent"`
}

type SaveAnswerRequest struct {
	QuestionID         uuid.UUID         `json:"question_id" validate:"required"`
	AnswerText         *string           `json:"answer_text"`
	SelectedOptions    []string          `json:"selected_options"`
	DropdownSelections map[string]string `json:"dropdown_selections"`
	FillInAnswers      map[string]string `json:"fill_in_answers"`
	PatternResponse    json.RawMessage   `json:"pattern_response"`
	TimeSpent          *int              `json:"time_spent"`
}

type BulkSaveAnswersRequest struct {
	Answers []SaveAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

// SubmitRequest optionally carries a final batch of answers to flush in the
// same transaction as the submission.
type SubmitRequest struct {
	Answers []SaveAnswerRequest `json:"answers" validate:"omitempty,dive"`
}

// BulkSaveResult reports per-answer outcomes of a bulk save. A bad answer
// never aborts the batch.
type BulkSaveResult struct {
	Saved  int               `json:"saved"`
	Failed int               `json:"failed"`
	Errors map[string]string `json:"errors,omitempty"` // question id -> reason
}

// QuestionView is a question as served to the student: marking configuration
// stripped.
type QuestionView struct {
	ID              uuid.UUID           `json:"id"`
	QuestionType    models.QuestionType `json:"question_type"`
	QuestionText    *string             `json:"question_text"`
	InstructionText *string             `json:"instruction_text"`
	ImageURL        *string             `json:"image_url"`
	Points          int                 `json:"points"`
	OrderNum        int                 `json:"order_number"`
	PatternSequence datatypes.JSON      `json:"pattern_sequence,omitempty"`
	WordBank        datatypes.JSON      `json:"word_bank,omitempty"`
	LetterTemplate  json.RawMessage     `json:"letter_template,omitempty"`
	GivenWord       *string             `json:"given_word,omitempty"`
	Options         []OptionView        `json:"options,omitempty"`
}

type OptionView struct {
	ID          uuid.UUID         `json:"id"`
	OptionText  string            `json:"option_text"`
	OptionType  models.OptionType `json:"option_type"`
	OptionGroup *string           `json:"option_group,omitempty"`
	ImageURL    *string           `json:"image_url,omitempty"`
	PatternData datatypes.JSON    `json:"pattern_data,omitempty"`
}

// AttemptSession is the working state of an attempt as the client sees it.
type AttemptSession struct {
	Attempt              *models.TestAttempt          `json:"attempt"`
	Test                 *models.Test                 `json:"test"`
	Questions            []QuestionView               `json:"questions"`
	Answers              map[string]SaveAnswerRequest `json:"answers"` // question id -> last saved answer
	TimeRemainingSeconds int                          `json:"time_remaining_seconds"`
	Resumed              bool                         `json:"resumed"`
}

type attemptService struct {
	repo      repositories.TransactionRepository
	logger    *slog.Logger
	validator *utils.Validator
	publisher events.EventPublisher
	cache     cache.CacheService
}

func NewAttemptService(
	repo repositories.TransactionRepository,
	logger *slog.Logger,
	validator *utils.Validator,
	publisher events.EventPublisher,
	cacheService cache.CacheService,
) AttemptService {
	return &attemptService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		cache:     cacheService,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) StartOrResume(ctx context.Context, req *StartAttemptRequest, studentID uuid.UUID) (*AttemptSession, error) {
	s.logger.Info("Starting test attempt",
		"test_id", req.TestID,
		"student_id", studentID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	test, err := s.repo.Test().GetByID(ctx, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.Status != models.TestStatusPublished {
		return nil, ErrTestNotPublished
	}

	now := time.Now()

	// Admission is gated on the assignment schedule even for a resume, so a
	// stale link cannot reopen a window that has passed.
	if err := s.checkAdmission(ctx, *req.AssignmentID, req.TestID, now); err != nil {
		return nil, err
	}

	// Idempotent resume: the same student re-entering gets the existing
	// attempt back instead of a second one.
	existing, err := s.repo.Attempt().GetByTestAndStudent(ctx, req.TestID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to look up existing attempt: %w", err)
	}

	if existing != nil {
		if existing.Status.IsTerminal() {
			return nil, ErrAttemptAlreadyCompleted
		}
		if now.After(existing.Deadline(test.Duration)) {
			// Time ran out while the student was away.
			if _, err := s.finalize(ctx, existing.ID, models.SubmissionAuto, nil, nil); err != nil && !IsConflict(err) {
				return nil, err
			}
			return nil, ErrAttemptAlreadyCompleted
		}

		s.logger.Info("Resuming existing attempt", "attempt_id", existing.ID)
		session, err := s.buildSession(ctx, existing, test)
		if err != nil {
			return nil, err
		}
		session.Resumed = true
		s.publishAttemptStarted(ctx, existing, test, true)
		return session, nil
	}

	attempt := &models.TestAttempt{
		ID:           uuid.New(),
		TestID:       req.TestID,
		StudentID:    studentID,
		AssignmentID: req.AssignmentID,
		Status:       models.AttemptInProgress,
		StartedAt:    now,
		IPAddress:    req.IPAddress,
	}
	if len(req.BrowserInfo) > 0 {
		attempt.BrowserInfo = datatypes.JSON(req.BrowserInfo)
	}

	questions, err := s.repo.Test().ResolveQuestions(ctx, req.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve questions: %w", err)
	}

	txRepo, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = txRepo.Rollback(ctx)
		}
	}()

	if err = txRepo.Attempt().Create(ctx, attempt); err != nil {
		// The unique (test, student) index turns a concurrent double start
		// into a conflict; the retry resumes the winner.
		if repositories.IsDuplicateError(err) {
			return nil, ErrAttemptStartRace
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	liveSession := &models.LiveSession{
		ID:             uuid.New(),
		AttemptID:      attempt.ID,
		StudentID:      studentID,
		TestID:         req.TestID,
		AssignmentID:   req.AssignmentID,
		Status:         models.SessionActive,
		TotalQuestions: len(questions),
		StartedAt:      now,
		IPAddress:      nilIfEmpty(req.IPAddress),
		UserAgent:      nilIfEmpty(req.UserAgent),
	}
	if len(req.BrowserInfo) > 0 {
		liveSession.BrowserInfo = datatypes.JSON(req.BrowserInfo)
	}
	if err = txRepo.Session().Create(ctx, liveSession); err != nil {
		return nil, fmt.Errorf("failed to open live session: %w", err)
	}

	if err = txRepo.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Test attempt started",
		"attempt_id", attempt.ID,
		"test_id", req.TestID,
		"student_id", studentID)

	s.publishAttemptStarted(ctx, attempt, test, false)

	session, err := s.sessionFromQuestions(ctx, attempt, test, questions)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *attemptService) GetSession(ctx context.Context, attemptID, studentID uuid.UUID) (*AttemptSession, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	return s.buildSession(ctx, attempt, test)
}

// ===== ANSWER OPERATIONS =====

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uuid.UUID, req *SaveAnswerRequest, studentID uuid.UUID) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	attempt, _, err := s.getActiveAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}

	questions, err := s.repo.Test().ResolveQuestions(ctx, attempt.TestID)
	if err != nil {
		return fmt.Errorf("failed to resolve questions: %w", err)
	}

	if err := s.saveOne(ctx, s.repo, attempt, questions, req); err != nil {
		return err
	}

	if err := s.refreshSnapshot(ctx, attempt.ID, s.repo); err != nil {
		s.logger.Warn("Failed to refresh answer snapshot",
			"attempt_id", attempt.ID,
			"error", err)
	}
	return nil
}

func (s *attemptService) SaveAnswers(ctx context.Context, attemptID uuid.UUID, req *BulkSaveAnswersRequest, studentID uuid.UUID) (*BulkSaveResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, _, err := s.getActiveAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	questions, err := s.repo.Test().ResolveQuestions(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve questions: %w", err)
	}

	result := &BulkSaveResult{Errors: make(map[string]string)}
	for i := range req.Answers {
		ans := &req.Answers[i]
		if err := s.saveOne(ctx, s.repo, attempt, questions, ans); err != nil {
			result.Failed++
			result.Errors[ans.QuestionID.String()] = err.Error()
			continue
		}
		result.Saved++
	}
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	if result.Saved > 0 {
		if err := s.refreshSnapshot(ctx, attempt.ID, s.repo); err != nil {
			s.logger.Warn("Failed to refresh answer snapshot",
				"attempt_id", attempt.ID,
				"error", err)
		}
	}

	return result, nil
}

// ===== SUBMISSION =====

func (s *attemptService) Submit(ctx context.Context, attemptID uuid.UUID, req *SubmitRequest, studentID uuid.UUID) (*models.TestResult, error) {
	var final []SaveAnswerRequest
	if req != nil {
		if err := s.validator.Validate(req); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		final = req.Answers
	}
	return s.finalize(ctx, attemptID, models.SubmissionManual, &studentID, final)
}

func (s *attemptService) GetResult(ctx context.Context, attemptID, studentID uuid.UUID) (*models.TestResult, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.Result().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

func (s *attemptService) ListStudentResults(ctx context.Context, studentID uuid.UUID, filters repositories.ResultFilters) ([]*models.TestResult, error) {
	return s.repo.Result().ListByStudent(ctx, studentID, filters)
}

func (s *attemptService) SweepExpiredAttempts(ctx context.Context) (int, error) {
	expired, err := s.repo.Attempt().GetExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired attempts: %w", err)
	}

	closed := 0
	for _, e := range expired {
		if _, err := s.finalize(ctx, e.AttemptID, models.SubmissionTimeout, nil, nil); err != nil {
			// Concurrent manual submission wins the race; anything else is
			// worth logging and moving on.
			if !IsConflict(err) {
				s.logger.Error("Failed to auto-submit expired attempt",
					"attempt_id", e.AttemptID,
					"error", err)
			}
			continue
		}
		closed++
	}

	if closed > 0 {
		s.logger.Info("Auto-submitted expired attempts", "count", closed)
	}
	return closed, nil
}

// ===== HELPERS =====

func (s *attemptService) checkAdmission(ctx context.Context, assignmentID, testID uuid.UUID, now time.Time) error {
	// Best effort: a due assignment flips to active before the window check.
	if err := s.repo.Test().ActivateAssignmentIfDue(ctx, assignmentID, now); err != nil {
		s.logger.Warn("Failed to activate due assignment",
			"assignment_id", assignmentID,
			"error", err)
	}

	assignment, err := s.repo.Test().GetAssignment(ctx, assignmentID, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssignmentNotFound
		}
		return fmt.Errorf("failed to get assignment: %w", err)
	}
	if assignment.Status == models.AssignmentCancelled {
		return ErrAssignmentCancelled
	}

	start, end := assignment.AdmissionWindow()
	if now.Before(start) || now.After(end) {
		return ErrOutsideAdmissionWindow
	}
	return nil
}

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID, studentID uuid.UUID) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptAccessDenied
	}
	return attempt, nil
}

// getActiveAttempt loads an owned attempt and verifies it still accepts
// answers.
func (s *attemptService) getActiveAttempt(ctx context.Context, attemptID, studentID uuid.UUID) (*models.TestAttempt, *models.Test, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if attempt.Status.IsTerminal() {
		return nil, nil, ErrAttemptAlreadyCompleted
	}

	test, err := s.repo.Test().GetByID(ctx, attempt.TestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get test: %w", err)
	}
	if time.Now().After(attempt.Deadline(test.Duration)) {
		return nil, nil, ErrAttemptNotActive
	}
	return attempt, test, nil
}

func (s *attemptService) saveOne(ctx context.Context, repo repositories.Repository, attempt *models.TestAttempt, questions []repositories.ResolvedQuestion, req *SaveAnswerRequest) error {
	var question *models.Question
	for _, q := range questions {
		if q.Question != nil && q.Question.ID == req.QuestionID {
			question = q.Question
			break
		}
	}
	if question == nil {
		return ErrQuestionNotInTest
	}

	payload := utils.AnswerPayload{
		HasText:       req.AnswerText != nil && *req.AnswerText != "",
		HasSelections: len(req.SelectedOptions) > 0,
		HasDropdowns:  len(req.DropdownSelections) > 0,
		HasFillIns:    len(req.FillInAnswers) > 0,
		HasPattern:    len(req.PatternResponse) > 0,
	}
	if err := utils.ValidateAnswerPayload(question.QuestionType, payload); err != nil {
		return fmt.Errorf("%w: %s", ErrValidationFailed, err.Error())
	}

	now := time.Now()
	response := &models.QuestionResponse{
		ID:         uuid.New(),
		AttemptID:  attempt.ID,
		QuestionID: req.QuestionID,
		AnswerText: req.AnswerText,
		TimeSpent:  req.TimeSpent,
		AnsweredAt: &now,
	}
	if len(req.SelectedOptions) > 0 {
		response.SelectedOptions = mustJSON(req.SelectedOptions)
	}
	if len(req.DropdownSelections) > 0 {
		response.DropdownSelections = mustJSON(req.DropdownSelections)
	}
	if len(req.FillInAnswers) > 0 {
		response.FillInAnswers = mustJSON(req.FillInAnswers)
	}
	if len(req.PatternResponse) > 0 {
		response.PatternResponse = datatypes.JSON(req.PatternResponse)
	}

	if err := repo.Response().Upsert(ctx, response); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

// refreshSnapshot rebuilds the attempt's denormalized answers blob from the
// stored responses. Recovery aid only, so failures are non-fatal.
func (s *attemptService) refreshSnapshot(ctx context.Context, attemptID uuid.UUID, repo repositories.Repository) error {
	responses, err := repo.Response().GetByAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	snapshot := make(map[string]*models.QuestionResponse, len(responses))
	for _, r := range responses {
		snapshot[r.QuestionID.String()] = r
	}
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return repo.Attempt().UpdateSnapshot(ctx, attemptID, datatypes.JSON(blob))
}

func (s *attemptService) buildSession(ctx context.Context, attempt *models.TestAttempt, test *models.Test) (*AttemptSession, error) {
	questions, err := s.repo.Test().ResolveQuestions(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve questions: %w", err)
	}
	return s.sessionFromQuestions(ctx, attempt, test, questions)
}

func (s *attemptService) sessionFromQuestions(ctx context.Context, attempt *models.TestAttempt, test *models.Test, questions []repositories.ResolvedQuestion) (*AttemptSession, error) {
	responses, err := s.repo.Response().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}

	answers := make(map[string]SaveAnswerRequest, len(responses))
	for _, r := range responses {
		answers[r.QuestionID.String()] = answerFromResponse(r)
	}

	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, newQuestionView(q))
	}

	remaining := test.Duration*60 - int(time.Since(attempt.StartedAt).Seconds())
	if remaining < 0 || attempt.Status.IsTerminal() {
		remaining = 0
	}

	return &AttemptSession{
		Attempt:              attempt,
		Test:                 test,
		Questions:            views,
		Answers:              answers,
		TimeRemainingSeconds: remaining,
	}, nil
}

func (s *attemptService) publishAttemptStarted(ctx context.Context, attempt *models.TestAttempt, test *models.Test, resumed bool) {
	deadline := attempt.Deadline(test.Duration)
	event := events.NewEvent(events.EventAttemptStarted, events.AttemptStartedEvent{
		AttemptID:   attempt.ID,
		TestID:      test.ID,
		TestTitle:   test.Title,
		StudentID:   attempt.StudentID,
		StartedAt:   attempt.StartedAt,
		DurationMin: test.Duration,
		Resumed:     resumed,
		Deadline:    &deadline,
	})
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish attempt started event",
			"attempt_id", attempt.ID,
			"error", err)
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func answerFromResponse(r *models.QuestionResponse) SaveAnswerRequest {
	req := SaveAnswerRequest{
		QuestionID: r.QuestionID,
		AnswerText: r.AnswerText,
		TimeSpent:  r.TimeSpent,
	}
	if len(r.SelectedOptions) > 0 {
		_ = json.Unmarshal(r.SelectedOptions, &req.SelectedOptions)
	}
	if len(r.DropdownSelections) > 0 {
		_ = json.Unmarshal(r.DropdownSelections, &req.DropdownSelections)
	}
	if len(r.FillInAnswers) > 0 {
		_ = json.Unmarshal(r.FillInAnswers, &req.FillInAnswers)
	}
	if len(r.PatternResponse) > 0 {
		req.PatternResponse = json.RawMessage(r.PatternResponse)
	}
	return req
}

func newQuestionView(q repositories.ResolvedQuestion) QuestionView {
	view := QuestionView{
		ID:              q.Question.ID,
		QuestionType:    q.Question.QuestionType,
		QuestionText:    q.Question.QuestionText,
		InstructionText: q.Question.InstructionText,
		ImageURL:        q.Question.ImageURL,
		Points:          q.Points,
		OrderNum:        q.OrderNum,
		PatternSequence: q.Question.PatternSequence,
		WordBank:        q.Question.WordBank,
		GivenWord:       q.Question.GivenWord,
	}
	// The letter template ships without its embedded answer.
	if len(q.Question.LetterTemplate) > 0 {
		var tpl struct {
			Template string `json:"template"`
		}
		if err := json.Unmarshal(q.Question.LetterTemplate, &tpl); err == nil && tpl.Template != "" {
			view.LetterTemplate, _ = json.Marshal(map[string]string{"template": tpl.Template})
		}
	}
	for _, opt := range q.Question.AnswerOptions {
		view.Options = append(view.Options, OptionView{
			ID:          opt.ID,
			OptionText:  opt.OptionText,
			OptionType:  opt.OptionType,
			OptionGroup: opt.OptionGroup,
			ImageURL:    opt.ImageURL,
			PatternData: opt.PatternData,
		})
	}
	return view
}
