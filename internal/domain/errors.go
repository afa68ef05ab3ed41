package domain

import (
	"errors"
	"fmt"
)

// AppError is the base domain error type. Handlers translate it into a
// {code, message} JSON body with Status as the HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// AsAppError unwraps err looking for an *AppError.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Error codes shared by handlers and tests.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	CodeLimitExceeded       = "LIMIT_EXCEEDED"
	CodeNotEnoughTickets    = "NOT_ENOUGH_TICKETS"
	CodeInvalidTransition   = "INVALID_STATUS_TRANSITION"
	CodeProviderError       = "PROVIDER_ERROR"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrInsufficientBalance() *AppError {
	return &AppError{Code: CodeInsufficientBalance, Message: "insufficient balance", Status: 400}
}

// ErrGatewayUnavailable is a configuration error: gateway disabled, unknown,
// or its client could not be built. Never retried automatically.
func ErrGatewayUnavailable(gateway GatewayKind, reason string) *AppError {
	return &AppError{
		Code:    CodeGatewayUnavailable,
		Message: fmt.Sprintf("gateway %s unavailable: %s", gateway, reason),
		Status:  422,
	}
}

func ErrLimitExceeded(msg string) *AppError {
	return &AppError{Code: CodeLimitExceeded, Message: msg, Status: 422}
}

func ErrNotEnoughTickets(remaining int) *AppError {
	return &AppError{
		Code:    CodeNotEnoughTickets,
		Message: fmt.Sprintf("not enough tickets: %d remaining", remaining),
		Status:  409,
	}
}

func ErrInvalidTransition(from, to RequestStatus) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move payment request from %s to %s", from, to),
		Status:  409,
	}
}

// ErrProvider wraps a failed call to an external payment provider.
func ErrProvider(gateway GatewayKind, op string, cause error) *AppError {
	return &AppError{
		Code:    CodeProviderError,
		Message: fmt.Sprintf("%s %s failed", gateway, op),
		Status:  502,
		Cause:   cause,
	}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
