package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	policydomain "github.com/jamesbarnes665/compliGenie-backend/internal/policy/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers/pdf"
	tenantdomain "github.com/jamesbarnes665/compliGenie-backend/internal/tenant/domain"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/internal/worker"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db/pagination"
	"gorm.io/gorm"
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
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	// ErrAuthenticationRequired and ErrAuthenticationFailed share one payload shape.
	ErrAuthenticationRequired = errors.New("authentication_required")
	ErrAuthenticationFailed   = errors.New("authentication_failed")
	ErrForbidden              = errors.New("forbidden")
	ErrConflict               = errors.New("conflict")
	ErrInternal               = errors.New("internal_error")
	ErrNotFound               = errors.New("not_found")
	ErrInvalidRequest         = errors.New("invalid_request")
	ErrTooManyRequests        = errors.New("too_many_requests")
	ErrServiceUnavailable     = errors.New("service_unavailable")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, rule := range errorRules {
		if rule.match(err) {
			return rule.status, errorPayload{Type: rule.kind, Message: rule.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// errorRule maps a family of errors to one response. Rules are checked in
// order and the first match wins.
type errorRule struct {
	match   func(error) bool
	status  int
	kind    string
	message string
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

var errorRules = []errorRule{
	{is(ErrAuthenticationRequired), http.StatusUnauthorized, "authentication_required", "API key required"},
	{is(ErrAuthenticationFailed), http.StatusUnauthorized, "authentication_failed", "Invalid API key"},
	{is(tenantcontext.ErrNoTenant), http.StatusUnauthorized, "unauthorized", "No tenant context"},
	{is(ErrForbidden, pdf.ErrForbidden), http.StatusForbidden, "forbidden", "forbidden"},
	{is(ErrConflict, tenantdomain.ErrConflict, gorm.ErrDuplicatedKey), http.StatusConflict, "conflict", "Company name already registered"},
	{isNotFoundError, http.StatusNotFound, "not_found", "not found"},
	{is(ErrTooManyRequests), http.StatusTooManyRequests, "too_many_requests", "too many requests"},
	{is(ErrServiceUnavailable, worker.ErrPoolClosed), http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

// classifyErrorForLog maps err to the payload type and a stable code for
// request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// Domain errors whose text doubles as the validation code.
var isValidationError = is(
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	tenantdomain.ErrInvalidCompanyName,
	tenantdomain.ErrInvalidEmail,
	tenantdomain.ErrFreeEmailDomain,
	tenantdomain.ErrInvalidWebsite,
	tenantdomain.ErrInvalidIndustry,
	tenantdomain.ErrInvalidVolume,
	policydomain.ErrInvalidClientName,
	policydomain.ErrInvalidIndustry,
	policydomain.ErrInvalidCompanySize,
	policydomain.ErrInvalidID,
	policydomain.ErrInvalidJobID,
)

var isNotFoundError = is(
	ErrNotFound,
	policydomain.ErrNotFound,
	tenantdomain.ErrNotFound,
	gorm.ErrRecordNotFound,
)

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if code == "free_email_domain" {
		return "email"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "free_email_domain":
		return "Please use a business email address"
	default:
		return "invalid value"
	}
}
