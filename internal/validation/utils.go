package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/go-playground/validator/v10"
)

// Validatable is implemented by payload types that know how to validate themselves.
//
// Typical pattern:
// - Define a struct with validator tags (`validate:"required,trelloid"`)
// - Implement Validate() error that runs Validator().Struct(v)
type Validatable interface {
	Validate() error
}

// CustomValidationError represents a single validation issue for a specific field.
// This is used for validation errors that cannot be expressed via validator tags.
type CustomValidationError struct {
	Field   string
	Message string
}

// CustomValidationErrors is a slice of custom validation errors that satisfies error.
type CustomValidationErrors []CustomValidationError

func (c CustomValidationErrors) Error() string {
	return "Validation failed"
}

var (
	// Board identifiers: cards, lists, labels are 24 hex characters.
	trelloIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	// API keys are 32 hex characters, user tokens 64.
	trelloKeyRegex   = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	trelloTokenRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance with the board-specific
// tags registered:
//
//   - trelloid:    24 hex characters
//   - trellokey:   32 hex characters
//   - trellotoken: 64 hex characters
//
// validator.Validate caches struct metadata and is safe for concurrent use,
// so one instance serves the whole process.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(fieldName)
		mustRegister(v, "trelloid", trelloIDRegex)
		mustRegister(v, "trellokey", trelloKeyRegex)
		mustRegister(v, "trellotoken", trelloTokenRegex)
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// fieldName reports a field by its form or koanf key instead of the Go name,
// e.g. LabelID -> "label_id".
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"form", "koanf"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// IsValidTrelloID checks whether a string is a 24 hex character board identifier.
func IsValidTrelloID(id string) bool {
	return trelloIDRegex.MatchString(id)
}

// ExtractFieldErrors converts a validation error into field-level errors.
//
// It understands validator.ValidationErrors (tag failures) and
// CustomValidationErrors. Any other error yields nil.
func ExtractFieldErrors(err error) []errs.FieldError {
	var fieldErrors []errs.FieldError

	if customValidationErrors, ok := err.(CustomValidationErrors); ok {
		for _, err := range customValidationErrors {
			fieldErrors = append(fieldErrors, errs.FieldError{
				Field: err.Field,
				Error: err.Message,
			})
		}
		return fieldErrors
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())
		var msg string

		switch err.Tag() {
		case "required":
			msg = "is required"

		case "min":
			if err.Type().Kind() == reflect.String {
				msg = fmt.Sprintf("must be at least %s characters", err.Param())
			} else {
				msg = fmt.Sprintf("must be at least %s", err.Param())
			}

		case "ne":
			msg = fmt.Sprintf("must not be %q", err.Param())

		case "oneof":
			msg = fmt.Sprintf("must be one of: %s", err.Param())

		case "trelloid":
			msg = "must be 24 hexadecimal characters"

		case "trellokey":
			msg = "must be 32 hexadecimal characters"

		case "trellotoken":
			msg = "must be 64 hexadecimal characters"

		default:
			if err.Param() != "" {
				msg = fmt.Sprintf("%s: %s:%s", field, err.Tag(), err.Param())
			} else {
				msg = fmt.Sprintf("%s: %s", field, err.Tag())
			}
		}

		fieldErrors = append(fieldErrors, errs.FieldError{
			Field: field,
			Error: msg,
		})
	}

	return fieldErrors
}
