package models

import (
	"errors"
	"fmt"
)

// Envelope error codes. The set is closed: anything else collapses to CodeServerError.
const (
	CodeAccountExist    = "ACCOUNT_EXIST"
	CodeEmailExist      = "EMAIL_EXIST"
	CodeCodeError       = "CODE_ERROR"
	CodeNotCorrect      = "NOT_CORRECT"
	CodeNotLogin        = "NOT_LOGIN"
	CodeNoPermission    = "NO_PERMISSION"
	CodeParamError      = "PARAM_ERROR"
	CodeEmailNotExist   = "EMAIL_NOT_EXIST"
	CodeNoSubmission    = "NO_SUBMISSION"
	CodeOperationToSelf = "CANNOT_OPERATION_TO_SELF"
	CodeNoUser          = "NO_USER"
	CodeServerError     = "SERVER_ERROR"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code so callers can use errors.Is with a template error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewAppError builds an AppError with an explicit code.
func NewAppError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeParamError, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeNotLogin, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeNoPermission, Message: message}
}

// NewNotFoundError reports a missing row that has no dedicated envelope code.
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeParamError,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewNoUserError(id interface{}) *AppError {
	return &AppError{Code: CodeNoUser, Message: fmt.Sprintf("user %v not found", id)}
}

func NewNoSubmissionError(ref SubmissionRef) *AppError {
	return &AppError{Code: CodeNoSubmission, Message: fmt.Sprintf("%s not found", ref)}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeServerError,
		Message: "Internal server error",
		Err:     err,
	}
}

// Templates for errors.Is comparisons and for returning fixed-code failures.
var (
	ErrAccountExist    = NewAppError(CodeAccountExist, "account already registered")
	ErrEmailExist      = NewAppError(CodeEmailExist, "email already registered")
	ErrCode            = NewAppError(CodeCodeError, "verification code mismatch or expired")
	ErrNotCorrect      = NewAppError(CodeNotCorrect, "account or password not correct")
	ErrNotLogin        = NewAppError(CodeNotLogin, "login required")
	ErrNoPermission    = NewAppError(CodeNoPermission, "operation not permitted")
	ErrEmailNotExist   = NewAppError(CodeEmailNotExist, "email not registered")
	ErrOperationToSelf = NewAppError(CodeOperationToSelf, "cannot operate on yourself")
)

// ErrorCode returns the envelope code for err, defaulting to CodeServerError.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return CodeServerError
}
