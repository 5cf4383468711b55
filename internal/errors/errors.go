package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	// Field-level validation failures, reported back to the user.
	BelowMinimum      ErrorCode = "below_minimum"
	AboveMaximum      ErrorCode = "above_maximum"
	InsufficientFunds ErrorCode = "insufficient_funds"
	NonPositive       ErrorCode = "non_positive"
	MissingAmount     ErrorCode = "missing_amount"
	NoAccount         ErrorCode = "no_account"
	InvalidRange      ErrorCode = "invalid_range"
	InvalidAmount     ErrorCode = "invalid_amount"

	InvalidInput       ErrorCode = "invalid_input"
	AccountNotFound    ErrorCode = "account_not_found"
	DuplicateAccount   ErrorCode = "duplicate_account"
	DuplicateAccountNo ErrorCode = "duplicate_account_no"
	NoAccountType      ErrorCode = "no_account_type"
	InvalidAccountType ErrorCode = "invalid_account_type"
	InternalError      ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code so callers can use errors.Is against the predefined values.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewFieldError builds a validation error attached to a single input field.
func NewFieldError(field string, code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsValidation reports whether the error is a user-correctable field error.
func (e *AppError) IsValidation() bool {
	switch e.Code {
	case BelowMinimum, AboveMaximum, InsufficientFunds, NonPositive, MissingAmount, NoAccount, InvalidRange, InvalidAmount:
		return true
	}
	return false
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case BelowMinimum, AboveMaximum, NonPositive, MissingAmount, InvalidRange, InvalidAmount, InvalidInput:
		return http.StatusBadRequest
	case InsufficientFunds, NoAccount, NoAccountType:
		return http.StatusUnprocessableEntity
	case AccountNotFound:
		return http.StatusNotFound
	case DuplicateAccount, DuplicateAccountNo:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Predefined errors for common cases
var (
	ErrAccountNotFound        = NewAppError(AccountNotFound, "account not found")
	ErrDuplicateAccount       = NewAppError(DuplicateAccount, "account already exists")
	ErrDuplicateAccountNo     = NewAppError(DuplicateAccountNo, "account number already taken")
	ErrNoAccountType          = NewAppError(NoAccountType, "no bank account type is configured; please contact support")
	ErrInvalidAccountType     = NewAppError(InvalidAccountType, "account type has an invalid interest frequency")
	ErrInvalidUserID          = NewAppError(InvalidInput, "user id must be a positive integer")
	ErrCannotBeginTransaction = NewAppError(InternalError, "cannot begin a transaction inside a transaction")
)
