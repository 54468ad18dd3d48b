package entities

import "fmt"

// Credentials is what a user types into the sign-in form. Never persisted.
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// UserProfile is the backend's user record. The session core passes it
// around without inspecting it.
type UserProfile map[string]any

// Field returns a display string for key, or "" when absent.
func (p UserProfile) Field(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// AuthResponse is returned by sign-in and by the SSO callback.
type AuthResponse struct {
	User         UserProfile `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	RedirectURL  string      `json:"redirectUrl,omitempty"`
}

// Pair extracts the tokens carried by the response.
func (r *AuthResponse) Pair() TokenPair {
	return TokenPair{AccessToken: r.Token, RefreshToken: r.RefreshToken}
}

// SSOInitiation carries the identity provider URL the user must visit.
type SSOInitiation struct {
	SSOURL string `json:"ssoUrl"`
}
