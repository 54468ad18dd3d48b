package entities

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known key names under which a TokenPair is persisted in either scope.
const (
	AccessTokenKey  = "authToken"
	RefreshTokenKey = "refreshToken"
)

// TokenPair is the credential pair issued on sign-in, SSO callback or refresh.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// IsZero reports whether the pair carries no access token.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == ""
}

// ExpiresAt reads the exp claim of a JWT access token without verifying the
// signature. Returns nil for opaque tokens or tokens without exp.
func (p TokenPair) ExpiresAt() *time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time
	return &exp
}
