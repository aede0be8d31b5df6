// Package schema validates raw records before they enter reconciliation
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validating a raw record
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err flattens the result into one error, nil when valid
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Validator checks raw records against their struct rules plus the
// fight-specific ones registered here
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a raw record validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("fight_result", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseResult(fl.Field().String())
		return ok
	})
	return &Validator{validate: v}
}

// Validate validates a raw record
func (v *Validator) Validate(record models.RawRecord) ValidationResult {
	result := ValidationResult{Valid: true}

	if strings.TrimSpace(record.RawName) == "" && record.RawName != "" {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Field: "raw_name", Message: "must not be blank"})
	}

	if err := v.validate.Struct(record); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ValidationResult{Errors: []ValidationError{{Field: "record", Message: err.Error()}}}
		}
		result.Valid = false
		for _, fe := range verrs {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fe.Field(),
				Message: message(fe),
			})
		}
	}

	if record.RawOpponentName != nil && record.RawName != "" &&
		strings.EqualFold(strings.TrimSpace(*record.RawOpponentName), strings.TrimSpace(record.RawName)) {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Field: "raw_opponent_name", Message: "must differ from raw_name"})
	}

	return result
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is missing"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "fight_result":
		return fmt.Sprintf("unrecognized result %q", fe.Value())
	}
	return fmt.Sprintf("failed rule %q", fe.Tag())
}
