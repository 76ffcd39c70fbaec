// Package api provides error handling utilities for HTTP APIs
package api

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/videoclipper/internal/logger"
	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, joberrors.ErrUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch joberrors.Code(err) {
	case "UploadRejected", "InvalidOption", "InvalidTrimRange", "InvalidSpeed", "BadRequest":
		return http.StatusBadRequest
	case "UnknownJob", "NotFound":
		return http.StatusNotFound
	case "AlreadyProcessing", "NotIdle":
		return http.StatusConflict
	case "Busy":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends a structured error response
func RespondWithError(c *gin.Context, err error) {
	status := StatusFor(err)
	response := ErrorResponse{
		Success: false,
		Error:   joberrors.ReasonOf(err),
		Code:    joberrors.Code(err),
		Field:   joberrors.GetField(err),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed",
			"path", c.Request.URL.Path,
			"op", joberrors.GetOperation(err),
			"job_id", joberrors.GetJobID(err),
			"error", err)
		if status == http.StatusInternalServerError {
			// internal details stay in the log
			response.Error = "internal server error"
		}
	default:
		logger.Debug("request rejected",
			"path", c.Request.URL.Path,
			"status", status,
			"code", response.Code,
			"error", err)
	}

	c.JSON(status, response)
}

// RespondWithBadRequest sends a 400 for malformed requests that never
// reached the job module.
func RespondWithBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    "BadRequest",
	})
}

// ErrorMiddleware is a middleware that recovers from panics and handles errors
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					"panic", fmt.Sprint(r),
					"request_path", c.Request.URL.Path,
					"request_method", c.Request.Method,
					"stack", string(debug.Stack()),
				)

				RespondWithError(c, joberrors.InternalError("http", joberrors.PanicError(r)))
				c.Abort()
			}
		}()

		c.Next()
	}
}
