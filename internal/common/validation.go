package common

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError is one failed rule on one field.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %q)", e.Field, e.Message, e.Value)
}

// Rule checks a single string field.
type Rule func(value string) (message string, ok bool)

// Validator collects failures across several fields so a caller can report
// all of them at once.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator { return &Validator{} }

// Field runs rules against the trimmed value.
func (v *Validator) Field(name, value string, rules ...Rule) *Validator {
	value = strings.TrimSpace(value)
	for _, rule := range rules {
		if msg, ok := rule(value); !ok {
			v.errors = append(v.errors, ValidationError{Field: name, Value: value, Message: msg})
		}
	}
	return v
}

func (v *Validator) Errors() []ValidationError { return v.errors }

// Error wraps the collected failures in ErrValidation, or returns nil.
func (v *Validator) Error() error {
	if len(v.errors) == 0 {
		return nil
	}
	msgs := make([]string, len(v.errors))
	for i, e := range v.errors {
		msgs[i] = e.Error()
	}
	return NewAppError("VALIDATION_ERROR", strings.Join(msgs, "; "), ErrValidation)
}

func Required(value string) (string, bool) {
	return "is required", value != ""
}

// MaxLength rejects values longer than max runes.
func MaxLength(max int) Rule {
	return func(value string) (string, bool) {
		return fmt.Sprintf("must be at most %d characters", max), utf8.RuneCountInString(value) <= max
	}
}
