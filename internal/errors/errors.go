// Package errors provides custom error types for the cap-table API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, optional field-scoped details,
// and optional internal error.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Internal   error          `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithDetails creates a new AppError carrying structured diagnostic detail,
// e.g. the failed and owned segment lists of an ownership violation.
// Validation failures must always carry enough detail to render an
// actionable message, never a bare boolean.
func WithDetails(sentinel *AppError, message string, details map[string]any) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		Details:    details,
		StatusCode: sentinel.StatusCode,
	}
}

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Segment and ownership errors.
var (
	ErrInvalidSegments = &AppError{Code: "INVALID_SEGMENTS", Message: "Malformed or missing number segments", StatusCode: http.StatusBadRequest}
	ErrOwnership       = &AppError{Code: "OWNERSHIP", Message: "Requested segments exceed current ownership", StatusCode: http.StatusBadRequest}
)

// Ledger errors.
var (
	ErrCompanyNotFound     = &AppError{Code: "COMPANY_NOT_FOUND", Message: "Company not found", StatusCode: http.StatusNotFound}
	ErrSecurityNotFound    = &AppError{Code: "SECURITY_NOT_FOUND", Message: "Security not found", StatusCode: http.StatusNotFound}
	ErrShareholderNotFound = &AppError{Code: "SHAREHOLDER_NOT_FOUND", Message: "Shareholder not found", StatusCode: http.StatusNotFound}
	ErrPositionNotFound    = &AppError{Code: "POSITION_NOT_FOUND", Message: "Position not found", StatusCode: http.StatusNotFound}
	ErrOptionPlanNotFound  = &AppError{Code: "OPTION_PLAN_NOT_FOUND", Message: "Option plan not found", StatusCode: http.StatusNotFound}
	ErrPositionImmutable   = &AppError{Code: "POSITION_IMMUTABLE", Message: "Confirmed positions cannot be modified or deleted", StatusCode: http.StatusConflict}
	ErrCertificateIDInUse  = &AppError{Code: "CERTIFICATE_ID_IN_USE", Message: "Certificate ID is already used within this company", StatusCode: http.StatusConflict}
	ErrOptionPlanExceeded  = &AppError{Code: "OPTION_PLAN_EXCEEDED", Message: "Transaction exceeds the option plan ceiling", StatusCode: http.StatusBadRequest}
)

// Plan and feature gating errors. These fail closed: an error blocks the action.
var (
	ErrPlanNotFound               = &AppError{Code: "CONFIGURATION", Message: "Referenced plan does not exist", StatusCode: http.StatusInternalServerError}
	ErrConfiguration              = &AppError{Code: "CONFIGURATION", Message: "Company is not configured for this operation", StatusCode: http.StatusInternalServerError}
	ErrFeatureDisabled            = &AppError{Code: "FEATURE_DISABLED", Message: "Feature is not enabled for the company plan", StatusCode: http.StatusForbidden}
	ErrPlanShareholderLimit       = &AppError{Code: "PLAN_SHAREHOLDER_LIMIT", Message: "Shareholder count exceeds the plan limit", StatusCode: http.StatusUpgradeRequired}
	ErrPlanSecurityLimit          = &AppError{Code: "PLAN_SECURITY_LIMIT", Message: "Security count exceeds the plan limit", StatusCode: http.StatusUpgradeRequired}
	ErrPlanShareholderCreateLimit = &AppError{Code: "PLAN_SHAREHOLDER_CREATE_LIMIT", Message: "Creating another shareholder would exceed the plan limit", StatusCode: http.StatusUpgradeRequired}
	ErrPlanSecurityCreateLimit    = &AppError{Code: "PLAN_SECURITY_CREATE_LIMIT", Message: "Creating another security would exceed the plan limit", StatusCode: http.StatusUpgradeRequired}
)
