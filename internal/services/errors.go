package services

import (
	"errors"
	"fmt"

	"github.com/certtrack/certificate-service/internal/validator"
)

// Error kinds. Every concrete error below unwraps to exactly one of them.
var (
	ErrValidationFailed    = validator.ErrValidation
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrNoReviewerAvailable = errors.New("no reviewer available")
	ErrRateLimited         = errors.New("rate limited")
)

var (
	ErrCertificateNotFound = newDomainError("certificate_not_found", "certificate not found", ErrNotFound)
	ErrAccountNotFound     = newDomainError("account_not_found", "account not found", ErrNotFound)
	ErrInvalidTransition   = newDomainError("invalid_transition", "certificate has already been reviewed", ErrConflict)

	ErrTokenNotFound    = newDomainError("token_not_found", "token not found", ErrTokenInvalid)
	ErrTokenExpired     = newDomainError("token_expired", "token has expired", ErrTokenInvalid)
	ErrTokenAlreadyUsed = newDomainError("token_already_used", "token has already been used", ErrTokenInvalid)

	ErrInvalidCredentials   = newDomainError("invalid_credentials", "invalid username or password", ErrUnauthorized)
	ErrEmailNotVerified     = newDomainError("email_not_verified", "email address has not been verified", ErrForbidden)
	ErrAccountDisabled      = newDomainError("account_disabled", "account is disabled", ErrForbidden)
	ErrAccountExists        = newDomainError("account_exists", "username or email already registered", ErrConflict)
	ErrEmailAlreadyVerified = newDomainError("email_already_verified", "email address is already verified", ErrConflict)
	ErrReviewerHasPending   = newDomainError("reviewer_has_pending", "reviewer still has pending certificates", ErrConflict)
	ErrTooManyAttempts      = newDomainError("too_many_attempts", "too many failed login attempts", ErrRateLimited)
)

// DomainError is a named failure with a stable machine readable code
type DomainError struct {
	code    string
	message string
	kind    error
}

func newDomainError(code, message string, kind error) *DomainError {
	return &DomainError{code: code, message: message, kind: kind}
}

func (e *DomainError) Error() string { return e.message }
func (e *DomainError) Code() string  { return e.code }
func (e *DomainError) Unwrap() error { return e.kind }

// PermissionError reports a principal acting on a resource it does not own
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID string, resourceID interface{}, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: fmt.Sprint(resourceID),
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrForbidden }

// BusinessRuleError carries the context of a refused operation
type BusinessRuleError struct {
	Rule    string
	Message string
	Context map[string]interface{}
	Err     error
}

func NewBusinessRuleError(err *DomainError, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    err.Code(),
		Message: message,
		Context: context,
		Err:     err,
	}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error { return e.Err }

// ErrorCode returns the code of the first DomainError in err's chain
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code()
	}
	return ""
}

func validationError(field, message string, value interface{}, rule string) validator.ValidationErrors {
	return validator.ValidationErrors{{Field: field, Message: message, Value: value, Rule: rule}}
}
