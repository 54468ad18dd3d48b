package validation

import (
	"strings"

	"github.com/mrlokans/campusadmin/internal/entities"
)

// SignInForm is the sign-in screen.
type SignInForm struct {
	Identifier string `json:"identifier" validate:"notblank"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

func (SignInForm) ValidationMessages() map[string]string {
	return map[string]string{
		"identifier.notblank": "Email or User ID is required",
		"password.required":   "Password is required",
	}
}

// Credentials converts the form into what the API expects.
func (f SignInForm) Credentials() entities.Credentials {
	return entities.Credentials{
		Identifier: strings.TrimSpace(f.Identifier),
		Password:   f.Password,
		RememberMe: f.RememberMe,
	}
}

// AccessRequest is the sign-up / request-access form. ConfirmPassword is
// checked locally and never sent.
type AccessRequest struct {
	Identifier      string `json:"identifier" validate:"notblank,useremail,userid"`
	Password        string `json:"password" validate:"required,passwordpolicy"`
	ConfirmPassword string `json:"-" validate:"required,eqfield=Password"`
	FullName        string `json:"fullName,omitempty" validate:"omitempty,max=100"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,phone"`
	Website         string `json:"website,omitempty" validate:"omitempty,url"`
}

func (AccessRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"identifier.notblank":      "Email or User ID is required",
		"identifier.useremail":     "Please enter a valid email address",
		"password.required":        "Password is required",
		"password.passwordpolicy":  "Password must correspond to the requirement",
		"ConfirmPassword.required": "Please confirm your password",
		"ConfirmPassword.eqfield":  "Passwords do not match",
	}
}

// ForgotPasswordForm requests a reset email.
type ForgotPasswordForm struct {
	Email string `json:"email" validate:"notblank,email"`
}

func (ForgotPasswordForm) ValidationMessages() map[string]string {
	return map[string]string{
		"email.notblank": "Email is required",
		"email.email":    "Please enter a valid email address",
	}
}

// ResetPasswordForm sets a new password with a reset token.
type ResetPasswordForm struct {
	Token           string `json:"token" validate:"notblank"`
	NewPassword     string `json:"newPassword" validate:"required,strongpassword"`
	ConfirmPassword string `json:"-" validate:"required,eqfield=NewPassword"`
}

func (ResetPasswordForm) ValidationMessages() map[string]string {
	return map[string]string{
		"newPassword.strongpassword": "Password must be at least 8 characters and mix upper and lower case letters, a number and a symbol",
		"ConfirmPassword.eqfield":    "Passwords do not match",
	}
}

// VerifyEmailForm carries the token from a verification email.
type VerifyEmailForm struct {
	Token string `json:"token" validate:"notblank"`
}

// ProfileForm is a partial profile update; empty fields are left alone.
type ProfileForm struct {
	FirstName string `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName  string `json:"lastName,omitempty" validate:"omitempty,max=50"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,phone"`
}
