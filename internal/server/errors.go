package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revlens/internal/analytics/churn"
	"github.com/smallbiznis/revlens/internal/analytics/cohort"
	"github.com/smallbiznis/revlens/internal/analytics/mrr"
	"github.com/smallbiznis/revlens/internal/analytics/overview"
	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	connectiondomain "github.com/smallbiznis/revlens/internal/connection/domain"
	ingestiondomain "github.com/smallbiznis/revlens/internal/ingestion/domain"
	"github.com/smallbiznis/revlens/internal/synclock"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Errors     []ValidationError `json:"errors,omitempty"`
	RetryAfter int64             `json:"retry_after,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
		if payload.RetryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(payload.RetryAfter, 10))
		}
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var cooldown *ingestiondomain.CooldownError
	if errors.As(err, &cooldown) {
		return http.StatusTooManyRequests, errorPayload{
			Type:       "sync_cooldown",
			Message:    "a sync ran recently, retry later or request a full sync",
			RetryAfter: cooldown.RetryAfterSeconds(),
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "merchant_id",
					Code:    "required",
					Message: "merchant id is required",
				},
			},
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, synclock.ErrSyncInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "sync_in_progress",
			Message: "a sync is already running for this merchant",
		}
	case errors.Is(err, connectiondomain.ErrInvalidCredential),
		errors.Is(err, billingapidomain.ErrAuthentication):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_credential",
			Message: "the billing provider rejected the api key",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, connectiondomain.ErrEncryptionKeyMissing):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, connectiondomain.ErrInvalidMerchant),
		errors.Is(err, ingestiondomain.ErrInvalidMerchant),
		errors.Is(err, mrr.ErrInvalidMerchant),
		errors.Is(err, cohort.ErrInvalidMerchant),
		errors.Is(err, churn.ErrInvalidMerchant),
		errors.Is(err, overview.ErrInvalidMerchant):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, connectiondomain.ErrNotFound)
}

// classifyErrorForLog names the error family in request logs.
func classifyErrorForLog(err error) string {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return payload.Type
}
