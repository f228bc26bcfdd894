package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aetuition/testing-service/internal/repositories"
	"github.com/aetuition/testing-service/internal/services"
	"github.com/aetuition/testing-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *utils.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *utils.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

// StartAttempt starts or resumes the caller's attempt for a test
// @Summary Start or resume attempt
// @Description Admits the student into a test, returning the existing attempt when one is in progress
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Attempt admission data"
// @Success 200 {object} services.AttemptSession
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}

	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	h.LogRequest(c, "Starting attempt", "test_id", req.TestID)

	session, err := h.attemptService.StartOrResume(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if session.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, session)
}

// GetSession returns the working state of an attempt
// @Summary Get attempt session
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AttemptSession
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetSession(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	session, err := h.attemptService.GetSession(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// SaveAnswer stores one answer for an in-progress attempt
// @Summary Save answer
// @Description Upserts the answer for one question; the latest save wins
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param answer body services.SaveAnswerRequest true "Answer payload"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, &req, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Answer saved"})
}

// SaveAnswers stores a batch of answers for an in-progress attempt
// @Summary Save answers in bulk
// @Description Upserts many answers at once; failures are reported per question
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param answers body services.BulkSaveAnswersRequest true "Answer batch"
// @Success 200 {object} services.BulkSaveResult
// @Failure 400 {object} ErrorResponse
// @Router /attempts/{id}/answers/bulk [put]
func (h *AttemptHandler) SaveAnswers(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.BulkSaveAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	result, err := h.attemptService.SaveAnswers(c.Request.Context(), attemptID, &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitAttempt finalizes an attempt and returns its compiled result
// @Summary Submit attempt
// @Description Marks every answer and compiles the authoritative result
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param request body services.SubmitRequest false "Final answers to flush with the submission"
// @Success 200 {object} models.TestResult
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	// The body is optional: clients may flush unsent answers with the
	// submission itself.
	var req *services.SubmitRequest
	if c.Request.ContentLength > 0 {
		req = &services.SubmitRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request format",
				Details: err.Error(),
			})
			return
		}
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetResult returns the compiled result of an attempt
// @Summary Get attempt result
// @Tags results
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} models.TestResult
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/result [get]
func (h *AttemptHandler) GetResult(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListMyResults returns the caller's results, most recent first
// @Summary List own results
// @Tags results
// @Produce json
// @Param test_id query string false "Filter by test"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.TestResult
// @Router /results [get]
func (h *AttemptHandler) ListMyResults(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}

	filters := repositories.ResultFilters{}
	if raw := c.Query("test_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid test_id",
				Details: err.Error(),
			})
			return
		}
		filters.TestID = &id
	}
	if raw := c.Query("date_from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.DateFrom = &ts
		}
	}
	if raw := c.Query("date_to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.DateTo = &ts
		}
	}
	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filters.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, err := h.attemptService.ListStudentResults(c.Request.Context(), studentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
