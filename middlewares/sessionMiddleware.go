package middlewares

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/inspection_backend/utils"
)

const (
	HeaderProjectId     = "X-Project-Id"
	HeaderUserId        = "X-User-Id"
	HeaderUserName      = "X-User-Name"
	HeaderCorrelationId = "X-Correlation-Id"
)

// CorrelationMiddleware attaches the caller's correlation id, or a new one, to the request
// context and echoes it on the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationId))
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header(HeaderCorrelationId, cid)
		c.Next()
	}
}

// SessionMiddleware reads the project and user from request headers.
// Authentication happens upstream of this service.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if projectId := strings.TrimSpace(c.GetHeader(HeaderProjectId)); projectId != "" {
			ctx = utils.SetProjectIdInContext(ctx, projectId)
		}
		if userId, err := strconv.Atoi(strings.TrimSpace(c.GetHeader(HeaderUserId))); err == nil && userId > 0 {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if userName := strings.TrimSpace(c.GetHeader(HeaderUserName)); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireProject rejects requests that carry no project.
func RequireProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		if projectId, ok := utils.GetProjectIdFromContext(c.Request.Context()); !ok || projectId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": HeaderProjectId + " header is required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
