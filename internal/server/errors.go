package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/simwatch/internal/dispatch"
	"github.com/smallbiznis/simwatch/internal/simbase"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrControlDisabled = errors.New("state control disabled")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var apiErr *simbase.APIError

	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, ErrControlDisabled):
		return http.StatusForbidden, errorPayload{
			Type:    "control_disabled",
			Message: "state control is disabled",
		}
	case errors.Is(err, dispatch.ErrDeviceNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "device not found",
		}
	case errors.Is(err, simbase.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "remote rate limit exceeded",
		}
	case errors.Is(err, simbase.ErrAuth):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_auth",
			Message: "remote rejected credentials",
		}
	case errors.As(err, &apiErr):
		if apiErr.NotFound() {
			return http.StatusNotFound, errorPayload{
				Type:    "not_found",
				Message: "device not found",
			}
		}
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "remote request failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", payload.Type
	}
}
