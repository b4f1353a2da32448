package validator

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/certtrack/certificate-service/internal/models"
)

const (
	// MaxCertificateFileSize is the upload limit for certificate documents.
	MaxCertificateFileSize = 10 << 20
	DateLayout             = "2006-01-02"
)

var (
	allowedCertificateExtensions = map[string]bool{".pdf": true, ".jpg": true, ".jpeg": true, ".png": true}
	usernamePattern              = regexp.MustCompile(`^[\w.@+-]+$`)
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	bv := &BusinessValidator{validate: newEngine()}
	bv.registerBusinessRules()
	return bv
}

// Validate validates tag rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if err := bv.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateCertificateDates checks that the expiry date, when present, is
// strictly after the issue date and not before today.
func (bv *BusinessValidator) ValidateCertificateDates(issueDate time.Time, expiryDate *time.Time, today time.Time) ValidationErrors {
	var errors ValidationErrors
	if expiryDate == nil {
		return nil
	}

	issue := models.DateOf(issueDate)
	expiry := models.DateOf(*expiryDate)

	if !expiry.After(issue) {
		errors = append(errors, ValidationError{
			Field:   "expiry_date",
			Message: "must be after the issue date",
			Value:   expiry.Format(DateLayout),
			Rule:    RuleInvalidDateRange,
		})
	}

	if expiry.Before(models.DateOf(today)) {
		errors = append(errors, ValidationError{
			Field:   "expiry_date",
			Message: "certificate has already expired",
			Value:   expiry.Format(DateLayout),
			Rule:    RuleAlreadyExpired,
		})
	}

	return errors
}

// ValidateUploadFile checks the declared name and size of a certificate document.
func (bv *BusinessValidator) ValidateUploadFile(fileName string, size int64) ValidationErrors {
	var errors ValidationErrors

	if !allowedCertificateExtensions[strings.ToLower(filepath.Ext(fileName))] {
		errors = append(errors, ValidationError{
			Field:   "file_name",
			Message: "must be a pdf, jpg, jpeg or png file",
			Value:   fileName,
			Rule:    RuleFileExtension,
		})
	}

	if size <= 0 || size > MaxCertificateFileSize {
		errors = append(errors, ValidationError{
			Field:   "size",
			Message: "must be between 1 byte and 10 MB",
			Value:   size,
			Rule:    RuleFileSize,
		})
	}

	return errors
}

// ValidateSignupRole rejects roles that cannot be self-registered.
func (bv *BusinessValidator) ValidateSignupRole(role models.UserRole) ValidationErrors {
	if role == models.RoleStudent || role == models.RoleFaculty {
		return nil
	}
	return ValidationErrors{{
		Field:   "role",
		Message: "must be student or faculty",
		Value:   role,
		Rule:    RuleRoleNotAllowed,
	}}
}

// ParseDate parses a calendar date in DateLayout.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, ValidationErrors{{
			Field:   field,
			Message: "must be a date in the format " + DateLayout,
			Value:   value,
			Rule:    "datetime",
		}}
	}
	return t, nil
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	bv.validate.RegisterValidation("signup_role", func(fl validator.FieldLevel) bool {
		role := models.UserRole(fl.Field().String())
		return role == models.RoleStudent || role == models.RoleFaculty
	})

	bv.validate.RegisterValidation("review_decision", func(fl validator.FieldLevel) bool {
		status := models.CertificateStatus(fl.Field().String())
		return status == models.CertificateAccepted || status == models.CertificateRejected
	})

	bv.validate.RegisterValidation("certificate_file", func(fl validator.FieldLevel) bool {
		return allowedCertificateExtensions[strings.ToLower(filepath.Ext(fl.Field().String()))]
	})
}
