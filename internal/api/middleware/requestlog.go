package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/plantvision/leaf-server/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestArrival logs minimal request metadata at the earliest point, before
// multipart parsing or handler code runs. It mirrors the same record into the
// best-effort diagnostic file so arrival can be confirmed even when the
// structured log pipeline is the thing being debugged.
func RequestArrival(logger *zap.Logger, diag *logging.FileLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := map[string]any{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"content_length": c.Request.ContentLength,
			"remote_addr":    c.ClientIP(),
			"user_agent":     c.Request.UserAgent(),
		}

		logger.Debug("request arrival",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int64("content_length", c.Request.ContentLength),
			zap.String("remote_addr", c.ClientIP()),
		)

		if raw, err := json.Marshal(meta); err == nil {
			diag.Append("REQUEST ARRIVAL: " + string(raw))
		}

		c.Next()
	}
}

// Recovery converts panics into a generic JSON error. Full diagnostic context
// goes to the logs; internal details never reach the response body.
func Recovery(logger *zap.Logger, diag *logging.FileLog) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic while handling request",
			zap.Any("panic", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int64("content_length", c.Request.ContentLength),
			zap.String("remote_addr", c.ClientIP()),
			zap.Stack("stack"),
		)
		diag.Append("PANIC: " + c.Request.Method + " " + c.Request.URL.Path)

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "server error, details logged",
		})
	})
}
