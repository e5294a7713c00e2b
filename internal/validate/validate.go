// Package validate checks decoded request input and turns the first failure
// into a client-facing 400.
//
// Struct tags beyond the validator built-ins:
//
//	password    8..128 characters with an upper, a lower and a digit
//	personname  letters, spaces, hyphens and apostrophes
//	phone       optional leading +, then up to 15 digits not starting with 0
package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/keithlinneman/atelier-web/internal/apperr"
	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

const (
	MaxEmailLen    = 320
	MaxURLLen      = 2048
	MaxNameLen     = 255
	MaxIDLen       = 64
	MaxTextLen     = 5000
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

var (
	phoneRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	nameRe  = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	tagRe   = regexp.MustCompile(`<[^>]*>`)
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their json names
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})

	must(val.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordProblem(fl.Field().String()) == ""
	}))
	must(val.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return nameRe.MatchString(fl.Field().String())
	}))
	must(val.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	}))
	return val
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s against its validate tags. A failing field yields an
// operational 400 carrying a readable message for the first failure; a
// non-struct argument is a programming error and is returned unwrapped.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.Wrap(err, http.StatusBadRequest, Message(verrs[0]))
	}
	return xerrors.Wrap(err, "validate struct")
}

// Message renders one field failure for clients.
func Message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email format"
	case "uuid", "uuid4":
		return "Invalid UUID format"
	case "url", "http_url":
		return "Invalid URL format"
	case "phone":
		return "Invalid phone number format"
	case "personname":
		return "Name can only contain letters, spaces, hyphens, and apostrophes"
	case "password":
		s, _ := fe.Value().(string)
		if p := passwordProblem(s); p != "" {
			return p
		}
		return "Invalid password"
	case "min", "gte":
		if isString(fe) {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		if isString(fe) {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

func isString(fe validator.FieldError) bool {
	return fe.Kind() == reflect.String
}

func passwordProblem(s string) string {
	n := len([]rune(s))
	switch {
	case n < MinPasswordLen:
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLen)
	case n > MaxPasswordLen:
		return fmt.Sprintf("Password must not exceed %d characters", MaxPasswordLen)
	case !strings.ContainsFunc(s, func(r rune) bool { return r >= 'A' && r <= 'Z' }):
		return "Password must contain at least one uppercase letter"
	case !strings.ContainsFunc(s, func(r rune) bool { return r >= 'a' && r <= 'z' }):
		return "Password must contain at least one lowercase letter"
	case !strings.ContainsFunc(s, unicode.IsDigit):
		return "Password must contain at least one number"
	}
	return ""
}

// ID accepts an identifier of 1..64 characters.
func ID(id string) (string, error) {
	if n := len(id); n < 1 || n > MaxIDLen {
		return "", apperr.BadRequest("Invalid ID format")
	}
	return id, nil
}

// Email trims and lowercases a well-formed address.
func Email(email string) (string, error) {
	e := strings.TrimSpace(email)
	if err := v.Var(e, fmt.Sprintf("required,min=3,max=%d,email", MaxEmailLen)); err != nil {
		return "", apperr.Wrap(err, http.StatusBadRequest, "Invalid email format")
	}
	return strings.ToLower(e), nil
}

// StripHTML removes anything that looks like a markup tag.
func StripHTML(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeHTML escapes the characters significant in HTML, including '/'.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// SanitizeUserInput strips tags, trims and truncates to maxLen characters
// (MaxTextLen when maxLen <= 0).
func SanitizeUserInput(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxTextLen
	}
	out := strings.TrimSpace(StripHTML(s))
	if r := []rune(out); len(r) > maxLen {
		out = string(r[:maxLen])
	}
	return out
}
