// Package authapi maps authentication operations onto backend endpoints.
// Every method returns the decoded response data and passes errors from the
// HTTP client through unchanged.
package authapi

import (
	"context"
	"fmt"

	"github.com/mrlokans/campusadmin/internal/apiclient"
	"github.com/mrlokans/campusadmin/internal/entities"
)

const (
	pathSignIn         = "/auth/signin"
	pathSSOInitiate    = "/auth/sso/initiate"
	pathSSOCallback    = "/auth/sso/callback"
	pathSignOut        = "/auth/signout"
	pathForgotPassword = "/auth/forgot-password"
	pathResetPassword  = "/auth/reset-password"
	pathRefresh        = "/auth/refresh"
	pathVerifyEmail    = "/auth/verify-email"
	pathRequestAccess  = "/auth/request-access"
	pathMe             = "/auth/me"
	pathProfile        = "/auth/profile"
)

// Requester is the subset of apiclient.Client the service uses.
type Requester interface {
	Get(ctx context.Context, path string, opts ...apiclient.RequestOption) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any, opts ...apiclient.RequestOption) (*apiclient.Response, error)
	Put(ctx context.Context, path string, body any, opts ...apiclient.RequestOption) (*apiclient.Response, error)
}

// Service talks to the /auth endpoints.
type Service struct {
	client Requester
}

// NewService creates an auth service over client.
func NewService(client Requester) *Service {
	return &Service{client: client}
}

func (s *Service) SignIn(ctx context.Context, creds entities.Credentials) (*entities.AuthResponse, error) {
	resp, err := s.client.Post(ctx, pathSignIn, creds)
	if err != nil {
		return nil, err
	}
	return decode[entities.AuthResponse](resp)
}

// SignInWithSSO asks the backend where to send the user for single sign-on.
func (s *Service) SignInWithSSO(ctx context.Context) (*entities.SSOInitiation, error) {
	resp, err := s.client.Get(ctx, pathSSOInitiate)
	if err != nil {
		return nil, err
	}
	return decode[entities.SSOInitiation](resp)
}

// HandleSSOCallback exchanges the identity provider's code for a session.
func (s *Service) HandleSSOCallback(ctx context.Context, code, state string) (*entities.AuthResponse, error) {
	resp, err := s.client.Post(ctx, pathSSOCallback, map[string]string{
		"code":  code,
		"state": state,
	})
	if err != nil {
		return nil, err
	}
	return decode[entities.AuthResponse](resp)
}

// SignOut tells the backend to end the session. It sends no body.
func (s *Service) SignOut(ctx context.Context) error {
	_, err := s.client.Post(ctx, pathSignOut, nil)
	return err
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (any, error) {
	return s.ack(s.client.Post(ctx, pathForgotPassword, map[string]string{"email": email}))
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (any, error) {
	return s.ack(s.client.Post(ctx, pathResetPassword, map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}))
}

// RefreshToken trades a refresh token for a new pair.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*entities.TokenPair, error) {
	resp, err := s.client.Post(ctx, pathRefresh, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	return decode[entities.TokenPair](resp)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (any, error) {
	return s.ack(s.client.Post(ctx, pathVerifyEmail, map[string]string{"token": token}))
}

// RequestAccess submits a registration request. data is sent as is.
func (s *Service) RequestAccess(ctx context.Context, data any) (any, error) {
	return s.ack(s.client.Post(ctx, pathRequestAccess, data))
}

func (s *Service) GetCurrentUser(ctx context.Context) (entities.UserProfile, error) {
	resp, err := s.client.Get(ctx, pathMe)
	if err != nil {
		return nil, err
	}
	return decodeProfile(resp)
}

// UpdateProfile sends a partial profile and returns the updated record.
func (s *Service) UpdateProfile(ctx context.Context, data entities.UserProfile) (entities.UserProfile, error) {
	resp, err := s.client.Put(ctx, pathProfile, data)
	if err != nil {
		return nil, err
	}
	return decodeProfile(resp)
}

func (s *Service) ack(resp *apiclient.Response, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func decode[T any](resp *apiclient.Response) (*T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("unexpected response from server: %w", err)
	}
	return &out, nil
}

func decodeProfile(resp *apiclient.Response) (entities.UserProfile, error) {
	var profile entities.UserProfile
	if err := resp.Decode(&profile); err != nil {
		return nil, fmt.Errorf("unexpected response from server: %w", err)
	}
	return profile, nil
}
