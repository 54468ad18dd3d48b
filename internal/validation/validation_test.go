package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationErrors(t *testing.T, err error) Errors {
	t.Helper()
	var errs Errors
	require.True(t, errors.As(err, &errs), "expected validation.Errors, got %v", err)
	return errs
}

func TestSignInForm(t *testing.T) {
	v := New()

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, v.Struct(SignInForm{Identifier: "admin", Password: "x"}))
	})

	t.Run("blank fields", func(t *testing.T) {
		errs := validationErrors(t, v.Struct(SignInForm{Identifier: "   "}))
		assert.Equal(t, Errors{
			"identifier": "Email or User ID is required",
			"password":   "Password is required",
		}, errs)
	})

	t.Run("credentials are trimmed", func(t *testing.T) {
		creds := SignInForm{Identifier: " admin@campus.edu ", Password: "pw", RememberMe: true}.Credentials()
		assert.Equal(t, "admin@campus.edu", creds.Identifier)
		assert.True(t, creds.RememberMe)
	})
}

func TestAccessRequest(t *testing.T) {
	v := New()
	valid := AccessRequest{
		Identifier:      "new.lecturer@campus.edu",
		Password:        "s3cret!pass",
		ConfirmPassword: "s3cret!pass",
	}

	tests := []struct {
		name    string
		mutate  func(*AccessRequest)
		wantErr Errors
	}{
		{
			name:   "valid email",
			mutate: func(r *AccessRequest) {},
		},
		{
			name:   "valid user id",
			mutate: func(r *AccessRequest) { r.Identifier = "t042" },
		},
		{
			name:    "invalid email",
			mutate:  func(r *AccessRequest) { r.Identifier = "lecturer@campus" },
			wantErr: Errors{"identifier": "Please enter a valid email address"},
		},
		{
			name:    "short user id",
			mutate:  func(r *AccessRequest) { r.Identifier = "ab" },
			wantErr: Errors{"identifier": "User ID must be at least 3 characters"},
		},
		{
			name: "password without symbol",
			mutate: func(r *AccessRequest) {
				r.Password = "secret123"
				r.ConfirmPassword = "secret123"
			},
			wantErr: Errors{"password": "Password must correspond to the requirement"},
		},
		{
			name:    "passwords differ",
			mutate:  func(r *AccessRequest) { r.ConfirmPassword = "other!pass1" },
			wantErr: Errors{"ConfirmPassword": "Passwords do not match"},
		},
		{
			name:    "missing confirmation",
			mutate:  func(r *AccessRequest) { r.ConfirmPassword = "" },
			wantErr: Errors{"ConfirmPassword": "Please confirm your password"},
		},
		{
			name:    "bad phone",
			mutate:  func(r *AccessRequest) { r.Phone = "555-12" },
			wantErr: Errors{"phone": "Invalid phone number"},
		},
		{
			name:    "bad website",
			mutate:  func(r *AccessRequest) { r.Website = "not a url" },
			wantErr: Errors{"website": "Invalid URL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			tt.mutate(&form)

			err := v.Struct(form)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantErr, validationErrors(t, err))
		})
	}
}

func TestResetPasswordForm(t *testing.T) {
	v := New()

	assert.NoError(t, v.Struct(ResetPasswordForm{Token: "tok", NewPassword: "Str0ng!pw", ConfirmPassword: "Str0ng!pw"}))

	errs := validationErrors(t, v.Struct(ResetPasswordForm{Token: "tok", NewPassword: "weakpass", ConfirmPassword: "weakpass"}))
	assert.Contains(t, errs, "newPassword")
	assert.NotContains(t, errs, "ConfirmPassword")
}

func TestProfileForm_DefaultMessages(t *testing.T) {
	v := New()

	assert.NoError(t, v.Struct(ProfileForm{}))

	errs := validationErrors(t, v.Struct(ProfileForm{Email: "nope", FirstName: string(make([]byte, 51))}))
	assert.Equal(t, "Invalid email format", errs["email"])
	assert.Equal(t, "Maximum length is 50", errs["firstName"])
}

func TestStruct_NotAStruct(t *testing.T) {
	err := New().Struct("a string")
	require.Error(t, err)

	var errs Errors
	assert.False(t, errors.As(err, &errs))
}

func TestErrors_Error(t *testing.T) {
	errs := Errors{"password": "Password is required", "identifier": "Email or User ID is required"}
	assert.Equal(t, "identifier: Email or User ID is required; password: Password is required", errs.Error())
}

func TestCheckPassword(t *testing.T) {
	assert.True(t, CheckPassword("Abcdef1!").Valid())

	req := CheckPassword("abc")
	assert.False(t, req.Valid())
	assert.False(t, req.MinLength)
	assert.False(t, req.HasUpperCase)
	assert.True(t, req.HasLowerCase)
	assert.False(t, req.HasNumber)
	assert.False(t, req.HasSpecialChar)
}

func TestMeetsPasswordPolicy(t *testing.T) {
	tests := map[string]bool{
		"abcdef1!":    true,
		"ABCDEF1@":    true,
		"abcdefg1":    false,
		"abcdefg!":    false,
		"ab1!":        false,
		"abcdef1!~":   false,
		"pass word1!": false,
	}
	for pw, want := range tests {
		assert.Equal(t, want, MeetsPasswordPolicy(pw), pw)
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("+1 (555) 123-4567"))
	assert.True(t, IsValidPhone("5551234567"))
	assert.False(t, IsValidPhone("555-1234"))
	assert.False(t, IsValidPhone("555-123-4567 ext"))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("a@b.co"))
	assert.False(t, IsValidEmail("a@b"))
	assert.False(t, IsValidEmail("a b@c.d"))
}
