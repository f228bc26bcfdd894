package handlers

import (
	"net/http"

	"github.com/aetuition/testing-service/internal/services"
	"github.com/aetuition/testing-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MonitorHandler struct {
	BaseHandler
	monitorService services.MonitorService
	validator      *utils.Validator
}

func NewMonitorHandler(
	monitorService services.MonitorService,
	validator *utils.Validator,
	logger utils.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		BaseHandler:    NewBaseHandler(logger),
		monitorService: monitorService,
		validator:      validator,
	}
}

// Heartbeat records a progress heartbeat for a live session
// @Summary Session heartbeat
// @Tags monitoring
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param heartbeat body services.HeartbeatRequest true "Progress data"
// @Success 200 {object} services.HeartbeatAck
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /monitor/sessions/{id}/heartbeat [post]
func (h *MonitorHandler) Heartbeat(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	ack, err := h.monitorService.Heartbeat(c.Request.Context(), attemptID, &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// LogActivity records one proctoring event
// @Summary Log activity
// @Tags monitoring
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param activity body services.LogActivityRequest true "Activity data"
// @Success 200 {object} services.ActivityAck
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /monitor/sessions/{id}/activity [post]
func (h *MonitorHandler) LogActivity(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.LogActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	ack, err := h.monitorService.LogActivity(c.Request.Context(), attemptID, &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// LogActivities records a batch of buffered proctoring events
// @Summary Log activities in bulk
// @Description Replays buffered events; invalid entries are dropped, not fatal
// @Tags monitoring
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param activities body services.BulkActivityRequest true "Activity batch"
// @Success 200 {object} services.BulkActivityResult
// @Failure 404 {object} ErrorResponse
// @Router /monitor/sessions/{id}/activity/bulk [post]
func (h *MonitorHandler) LogActivities(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.BulkActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	result, err := h.monitorService.LogActivities(c.Request.Context(), attemptID, &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CloseSession ends a live session explicitly
// @Summary Close session
// @Tags monitoring
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /monitor/sessions/{id}/close [post]
func (h *MonitorHandler) CloseSession(c *gin.Context) {
	studentID, ok := StudentID(c)
	if !ok {
		return
	}
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.monitorService.CloseSession(c.Request.Context(), attemptID, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Session closed"})
}

// ===== TEACHER-FACING VIEWS =====

// GetSessionView returns the monitoring snapshot of one session
// @Summary Get session view
// @Tags monitoring
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.SessionView
// @Failure 404 {object} ErrorResponse
// @Router /monitor/sessions/{id} [get]
func (h *MonitorHandler) GetSessionView(c *gin.Context) {
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	view, err := h.monitorService.GetSessionView(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListActiveSessions lists sessions currently in progress
// @Summary List active sessions
// @Tags monitoring
// @Produce json
// @Param test_id query string false "Filter by test"
// @Success 200 {array} models.LiveSession
// @Router /monitor/sessions [get]
func (h *MonitorHandler) ListActiveSessions(c *gin.Context) {
	var testID *uuid.UUID
	if raw := c.Query("test_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid test_id",
				Details: err.Error(),
			})
			return
		}
		testID = &id
	}

	sessions, err := h.monitorService.ListActiveSessions(c.Request.Context(), testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// ListFlaggedSessions lists sessions needing teacher attention
// @Summary List flagged sessions
// @Tags monitoring
// @Produce json
// @Success 200 {array} models.LiveSession
// @Router /monitor/sessions/flagged [get]
func (h *MonitorHandler) ListFlaggedSessions(c *gin.Context) {
	sessions, err := h.monitorService.ListFlaggedSessions(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetActivitySummary aggregates an attempt's proctoring events
// @Summary Get activity summary
// @Tags monitoring
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} models.ActivitySummary
// @Failure 404 {object} ErrorResponse
// @Router /monitor/sessions/{id}/summary [get]
func (h *MonitorHandler) GetActivitySummary(c *gin.Context) {
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.monitorService.GetActivitySummary(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetActivityLog returns an attempt's raw proctoring events
// @Summary Get activity log
// @Tags monitoring
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {array} models.SuspiciousActivity
// @Failure 404 {object} ErrorResponse
// @Router /monitor/sessions/{id}/activity [get]
func (h *MonitorHandler) GetActivityLog(c *gin.Context) {
	attemptID, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	activities, err := h.monitorService.GetActivityLog(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, activities)
}
