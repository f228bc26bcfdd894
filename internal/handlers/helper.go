package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const studentIDKey = "student_id"

// StudentIdentity resolves the calling student from the X-Student-ID header
// set by the gateway after authentication. Requests without one are rejected.
func StudentIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Student-ID")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Missing student identity",
			})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid student identity",
				Details: err.Error(),
			})
			return
		}
		c.Set(studentIDKey, id.String())
		c.Next()
	}
}

// StudentID returns the authenticated student id from the request context.
func StudentID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString(studentIDKey)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Not authenticated"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Invalid identity"})
		return uuid.Nil, false
	}
	return id, true
}

// ParseUUIDParam parses a uuid path parameter, responding with 400 on
// failure. The second return is false when a response was already written.
func ParseUUIDParam(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return uuid.Nil, false
	}
	return id, true
}
