// Package validation runs the full-entity checks every write must pass and
// reports failures per field, keyed by the JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// NonFieldErrors is the key used for errors not tied to a single field.
const NonFieldErrors = "non_field_errors"

const (
	MsgRequired   = "This field is required."
	MsgBlank      = "This field may not be blank."
	MsgEmail      = "Enter a valid email address."
	MsgEmailTaken = "account with this email already exists."
	MinPassword   = 8
)

// Error carries field-level messages.
type Error struct {
	Fields map[string][]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field and returns e for chaining.
func (e *Error) Add(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

// FieldError builds an Error holding a single message.
func FieldError(field, msg string) *Error {
	return (&Error{}).Add(field, msg)
}

// AsError unwraps a validation error from err.
func AsError(err error) (*Error, bool) {
	var ve *Error
	ok := errors.As(err, &ve)
	return ve, ok
}

// Validator wraps a configured validator.Validate. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &Validator{v: v}
}

// Struct validates a tagged model and converts failures into *Error.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "notblank":
		return MsgBlank
	case "email":
		return MsgEmail
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "timezone":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	default:
		return "Invalid value."
	}
}

// Password checks a plaintext password before hashing. field is the name
// reported back, e.g. "password" or "new_password".
func Password(field, password string) error {
	switch {
	case password == "":
		return FieldError(field, MsgRequired)
	case strings.TrimSpace(password) == "":
		return FieldError(field, MsgBlank)
	case utf8.RuneCountInString(password) < MinPassword:
		return FieldError(field, fmt.Sprintf("Ensure this field has at least %d characters.", MinPassword))
	}
	return nil
}
