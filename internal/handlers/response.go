package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
)

// envelope is the body of every API response.
type envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

// fail renders err. Internal errors are logged and replaced by a generic message.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, envelope{
		Success:   false,
		Message:   apperr.PublicMessage(err),
		Errors:    apperr.Details(err),
		Timestamp: time.Now().UTC(),
	})
}

// abort renders a plain error envelope without an apperr value.
func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Timestamp: time.Now().UTC()})
}
