// Package validation checks form input before anything is sent to the API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegex = regexp.MustCompile(`^[\d\s\-+()]+$`)
)

const (
	minUserIDLength  = 3
	minPasswordLen   = 8
	minPhoneDigits   = 10
	specialChars     = `!@#$%^&*(),.?":{}|<>`
	policySpecials   = `!@#$%^&*`
	defaultFieldRule = "Validation failed"
)

// Errors maps a form field (its JSON name) to the first message that
// applies to it.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return strings.Join(parts, "; ")
}

// Messager lets a form override messages per "field.tag" key.
type Messager interface {
	ValidationMessages() map[string]string
}

// Validator wraps go-playground/validator with the form rules used across
// the console.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return IsRequired(fl.Field().String())
	})
	_ = v.RegisterValidation("useremail", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return !strings.Contains(s, "@") || IsValidEmail(s)
	})
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return strings.Contains(s, "@") || len(s) >= minUserIDLength
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return CheckPassword(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("passwordpolicy", func(fl validator.FieldLevel) bool {
		return MeetsPasswordPolicy(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Struct validates form. It returns Errors for rule failures and a plain
// error when form is not a struct.
func (v *Validator) Struct(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("cannot validate %T: %w", form, err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var overrides map[string]string
	if m, ok := form.(Messager); ok {
		overrides = m.ValidationMessages()
	}

	out := Errors{}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		if msg, ok := overrides[field+"."+fe.Tag()]; ok {
			out[field] = msg
			continue
		}
		out[field] = defaultMessage(fe)
	}
	return out
}

func defaultMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "This field is required"
	case "email", "useremail":
		return "Invalid email format"
	case "min":
		return "Minimum length is " + fe.Param()
	case "max":
		return "Maximum length is " + fe.Param()
	case "strongpassword", "passwordpolicy":
		return "Password does not meet requirements"
	case "phone":
		return "Invalid phone number"
	case "url":
		return "Invalid URL"
	case "eqfield":
		return "Values do not match"
	case "userid":
		return fmt.Sprintf("User ID must be at least %d characters", minUserIDLength)
	default:
		return defaultFieldRule
	}
}

// IsRequired reports whether s has any non-space content.
func IsRequired(s string) bool {
	return strings.TrimSpace(s) != ""
}

func IsValidEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// IsValidPhone accepts digits, spaces, dashes, plus signs and parentheses
// with at least ten digits.
func IsValidPhone(s string) bool {
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

// PasswordRequirements reports which strength rules a password meets.
type PasswordRequirements struct {
	MinLength      bool
	HasUpperCase   bool
	HasLowerCase   bool
	HasNumber      bool
	HasSpecialChar bool
}

func (r PasswordRequirements) Valid() bool {
	return r.MinLength && r.HasUpperCase && r.HasLowerCase && r.HasNumber && r.HasSpecialChar
}

// CheckPassword evaluates every strength rule.
func CheckPassword(p string) PasswordRequirements {
	req := PasswordRequirements{MinLength: len(p) >= minPasswordLen}
	for _, r := range p {
		switch {
		case unicode.IsUpper(r) && r < unicode.MaxASCII:
			req.HasUpperCase = true
		case unicode.IsLower(r) && r < unicode.MaxASCII:
			req.HasLowerCase = true
		case unicode.IsDigit(r):
			req.HasNumber = true
		case strings.ContainsRune(specialChars, r):
			req.HasSpecialChar = true
		}
	}
	return req
}

// MeetsPasswordPolicy is the sign-up rule: eight or more characters from
// letters, digits and !@#$%^&*, with at least one digit and one of those
// symbols.
func MeetsPasswordPolicy(p string) bool {
	if len(p) < minPasswordLen {
		return false
	}
	var digit, special bool
	for _, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(policySpecials, r):
			special = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		default:
			return false
		}
	}
	return digit && special
}
