package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/forecast/internal/authorization"
	datasetdomain "github.com/smallbiznis/forecast/internal/dataset/domain"
	forecastdomain "github.com/smallbiznis/forecast/internal/forecast/domain"
	forecastservice "github.com/smallbiznis/forecast/internal/forecast/service"
	mlmodeldomain "github.com/smallbiznis/forecast/internal/mlmodel/domain"
	refreshdomain "github.com/smallbiznis/forecast/internal/refresh/domain"
	"github.com/smallbiznis/forecast/pkg/db/pagination"
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
	Type             string            `json:"type"`
	Message          string            `json:"message"`
	Code             string            `json:"code,omitempty"`
	RefreshAttempted *bool             `json:"refresh_attempted,omitempty"`
	Errors           []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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
	if refreshdomain.RefreshAttempted(err) {
		c.Set("refresh_attempted", true)
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

	if field, code, ok := validationErrorField(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many training requests",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, mlmodeldomain.ErrVersionConflict),
		errors.Is(err, mlmodeldomain.ErrActiveModelExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    conflictCode(err),
		}
	case errors.Is(err, forecastdomain.ErrInsufficientData):
		attempted := refreshdomain.RefreshAttempted(err)
		return http.StatusNotFound, errorPayload{
			Type:             "not_found",
			Message:          err.Error(),
			Code:             insufficientCode(err),
			RefreshAttempted: &attempted,
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, mlmodeldomain.ErrNotFound),
		errors.Is(err, refreshdomain.ErrNoCompanies):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Code:    notFoundCode(err),
		}
	case errors.Is(err, forecastdomain.ErrUpstreamFetch):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "history source unavailable",
		}
	case errors.Is(err, datasetdomain.ErrCompanyListingUnsupported):
		return http.StatusNotImplemented, errorPayload{
			Type:    "not_implemented",
			Message: "company listing unsupported by the configured source",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// validationErrorField maps caller mistakes onto the offending field.
func validationErrorField(err error) (field, code string, ok bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "request", "invalid_request", true
	case errors.Is(err, refreshdomain.ErrStartBeforeHistoryEnd):
		return "start_date", refreshdomain.ErrStartBeforeHistoryEnd.Error(), true
	case errors.Is(err, refreshdomain.ErrStartTooFar):
		return "start_date", refreshdomain.ErrStartTooFar.Error(), true
	case errors.Is(err, refreshdomain.ErrInvalidHorizon):
		return "horizon_days", refreshdomain.ErrInvalidHorizon.Error(), true
	case errors.Is(err, refreshdomain.ErrInvalidCompany),
		errors.Is(err, forecastservice.ErrInvalidCompany),
		errors.Is(err, mlmodeldomain.ErrInvalidCompany),
		errors.Is(err, datasetdomain.ErrInvalidCompanyID):
		return "company_id", "invalid_company_id", true
	case errors.Is(err, mlmodeldomain.ErrInvalidName):
		return "name", mlmodeldomain.ErrInvalidName.Error(), true
	case errors.Is(err, mlmodeldomain.ErrInvalidVersion):
		return "version", mlmodeldomain.ErrInvalidVersion.Error(), true
	case errors.Is(err, mlmodeldomain.ErrInvalidStatus):
		return "status", mlmodeldomain.ErrInvalidStatus.Error(), true
	case errors.Is(err, mlmodeldomain.ErrInvalidID):
		return "id", mlmodeldomain.ErrInvalidID.Error(), true
	case errors.Is(err, pagination.ErrInvalidToken):
		return "page_token", pagination.ErrInvalidToken.Error(), true
	case errors.Is(err, forecastdomain.ErrSchema):
		var missing *forecastdomain.MissingColumnError
		if errors.As(err, &missing) {
			return "dataset", "missing_column", true
		}
		return "dataset", forecastdomain.ErrSchema.Error(), true
	default:
		return "", "", false
	}
}

func insufficientCode(err error) string {
	for _, code := range []error{
		refreshdomain.ErrNoHistory,
		refreshdomain.ErrNoActiveModel,
		refreshdomain.ErrNotEnoughPredictions,
	} {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return forecastdomain.ErrInsufficientData.Error()
}

func notFoundCode(err error) string {
	switch {
	case errors.Is(err, mlmodeldomain.ErrNotFound):
		return mlmodeldomain.ErrNotFound.Error()
	case errors.Is(err, refreshdomain.ErrNoCompanies):
		return refreshdomain.ErrNoCompanies.Error()
	default:
		return ""
	}
}

func conflictCode(err error) string {
	switch {
	case errors.Is(err, mlmodeldomain.ErrVersionConflict):
		return mlmodeldomain.ErrVersionConflict.Error()
	case errors.Is(err, mlmodeldomain.ErrActiveModelExists):
		return mlmodeldomain.ErrActiveModelExists.Error()
	default:
		return ""
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog feeds the request logger the same type and code the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
