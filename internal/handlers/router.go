package handlers

import (
	"github.com/aetuition/testing-service/internal/services"
	"github.com/aetuition/testing-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	monitorHandler *MonitorHandler
}

func NewHandlerManager(
	attemptService services.AttemptService,
	monitorService services.MonitorService,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(attemptService, validator, logger),
		monitorHandler: NewMonitorHandler(monitorService, validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "testing-service",
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(StudentIdentity())
	{
		// Attempt lifecycle
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetSession)
			attempts.PUT("/:id/answers", hm.attemptHandler.SaveAnswer)
			attempts.PUT("/:id/answers/bulk", hm.attemptHandler.SaveAnswers)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
		}

		// Results
		v1.GET("/results", hm.attemptHandler.ListMyResults)

		// Session telemetry
		monitor := v1.Group("/monitor")
		{
			monitor.POST("/sessions/:id/heartbeat", hm.monitorHandler.Heartbeat)
			monitor.POST("/sessions/:id/activity", hm.monitorHandler.LogActivity)
			monitor.POST("/sessions/:id/activity/bulk", hm.monitorHandler.LogActivities)
			monitor.POST("/sessions/:id/close", hm.monitorHandler.CloseSession)

			// Teacher-facing views
			monitor.GET("/sessions", hm.monitorHandler.ListActiveSessions)
			monitor.GET("/sessions/flagged", hm.monitorHandler.ListFlaggedSessions)
			monitor.GET("/sessions/:id", hm.monitorHandler.GetSessionView)
			monitor.GET("/sessions/:id/summary", hm.monitorHandler.GetActivitySummary)
			monitor.GET("/sessions/:id/activity", hm.monitorHandler.GetActivityLog)
		}
	}
}
