// Package session owns the authentication state of the running process.
// A single Controller is built at startup and shared by every command.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/apiclient"
	"github.com/mrlokans/campusadmin/internal/entities"
	"github.com/mrlokans/campusadmin/internal/tokenstore"
)

// ErrNoRefreshToken is returned by Refresh when nothing is stored.
var ErrNoRefreshToken = errors.New("no refresh token available")

const (
	signInFailed        = "Sign in failed"
	ssoFailed           = "SSO sign in failed. Please try again."
	refreshFailed       = "Session refresh failed"
	profileUpdateFailed = "Profile update failed"
	passwordResetFailed = "Password reset request failed. Please try again."
)

// AuthService is what the controller needs from the backend.
type AuthService interface {
	SignIn(ctx context.Context, creds entities.Credentials) (*entities.AuthResponse, error)
	SignInWithSSO(ctx context.Context) (*entities.SSOInitiation, error)
	HandleSSOCallback(ctx context.Context, code, state string) (*entities.AuthResponse, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) (any, error)
	RefreshToken(ctx context.Context, refreshToken string) (*entities.TokenPair, error)
	GetCurrentUser(ctx context.Context) (entities.UserProfile, error)
	UpdateProfile(ctx context.Context, data entities.UserProfile) (entities.UserProfile, error)
}

// TokenStore is what the controller needs from tokenstore.TokenStore.
type TokenStore interface {
	Save(pair entities.TokenPair, persistent bool) error
	Load() (*entities.TokenPair, error)
	Locate() (tokenstore.Kind, error)
	Clear() error
}

// Controller drives the session state machine. State-changing operations
// are serialized: a second call waits until the first one returns.
type Controller struct {
	service AuthService
	store   TokenStore

	// ops serializes operations, mu guards the fields below it.
	ops sync.Mutex
	mu  sync.RWMutex

	state   State
	user    entities.UserProfile
	loading bool
	errMsg  string

	listeners []func(Snapshot)
}

// Option configures a Controller.
type Option func(*Controller)

// WithListener registers fn to receive a snapshot after every change.
func WithListener(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.listeners = append(c.listeners, fn)
	}
}

// NewController returns a controller in the Unknown state. Call Initialize
// to resolve it.
func NewController(service AuthService, store TokenStore, opts ...Option) *Controller {
	c := &Controller{
		service: service,
		store:   store,
		state:   StateUnknown,
		loading: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the current snapshot. It never blocks on the network.
func (c *Controller) Session() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:           c.state,
		User:            c.user,
		IsAuthenticated: c.state == StateAuthenticated,
		IsLoading:       c.loading,
		Error:           c.errMsg,
	}
}

// update applies fn under the state lock and notifies listeners.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	snap := c.snapshotLocked()
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Initialize resolves the Unknown state from whatever token is stored.
func (c *Controller) Initialize(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	pair, err := c.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read stored session, starting signed out")
		c.clearTokens()
		c.update(func() { c.signedOutLocked() })
		return fmt.Errorf("failed to load session: %w", err)
	}

	if pair == nil {
		c.update(func() { c.signedOutLocked() })
		return nil
	}

	c.update(func() {
		c.state = StateAuthenticating
		c.loading = true
	})

	user, err := c.service.GetCurrentUser(ctx)
	if err != nil {
		log.Info().Err(err).Msg("Stored session rejected, clearing tokens")
		c.clearTokens()
		c.update(func() { c.signedOutLocked() })
		return nil
	}

	c.update(func() {
		c.state = StateAuthenticated
		c.user = user
		c.loading = false
	})
	return nil
}

// SignIn authenticates with credentials and stores the returned pair in the
// durable scope when RememberMe is set.
func (c *Controller) SignIn(ctx context.Context, creds entities.Credentials) (*entities.AuthResponse, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	return c.establish(ctx, creds.RememberMe, signInFailed, func() (*entities.AuthResponse, error) {
		return c.service.SignIn(ctx, creds)
	})
}

// CompleteSSO finishes an SSO sign-in with the code and state handed back
// by the identity provider.
func (c *Controller) CompleteSSO(ctx context.Context, code, state string, rememberMe bool) (*entities.AuthResponse, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	return c.establish(ctx, rememberMe, ssoFailed, func() (*entities.AuthResponse, error) {
		return c.service.HandleSSOCallback(ctx, code, state)
	})
}

func (c *Controller) establish(ctx context.Context, persistent bool, fallback string, call func() (*entities.AuthResponse, error)) (*entities.AuthResponse, error) {
	c.update(func() {
		c.state = StateAuthenticating
		c.loading = true
		c.errMsg = ""
	})

	resp, err := call()
	if err == nil {
		if err = c.store.Save(resp.Pair(), persistent); err != nil {
			err = fmt.Errorf("failed to store session: %w", err)
		}
	}

	if err != nil {
		msg := apiclient.Message(err, fallback)
		c.update(func() {
			c.signedOutLocked()
			c.errMsg = msg
		})
		return nil, err
	}

	c.update(func() {
		c.state = StateAuthenticated
		c.user = resp.User
		c.loading = false
	})
	return resp, nil
}

// InitiateSSO returns the URL the user must open to sign in with SSO.
func (c *Controller) InitiateSSO(ctx context.Context) (string, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func() {
		c.loading = true
		c.errMsg = ""
	})

	init, err := c.service.SignInWithSSO(ctx)
	if err != nil {
		msg := apiclient.Message(err, ssoFailed)
		c.update(func() {
			c.loading = false
			c.errMsg = msg
		})
		return "", err
	}

	c.update(func() { c.loading = false })
	return init.SSOURL, nil
}

// SignOut ends the session. The backend call is best effort; local tokens
// and user are always cleared.
func (c *Controller) SignOut(ctx context.Context) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.signOut(ctx)
}

func (c *Controller) signOut(ctx context.Context) {
	c.update(func() {
		c.state = StateAuthenticating
		c.loading = true
		c.errMsg = ""
	})

	if err := c.service.SignOut(ctx); err != nil {
		log.Warn().Err(err).Msg("Remote sign out failed, clearing local session anyway")
	}

	c.clearTokens()
	c.update(func() { c.signedOutLocked() })
}

// Refresh exchanges the stored refresh token for a new pair, keeping it in
// the scope the old one lived in. On failure the session is signed out.
func (c *Controller) Refresh(ctx context.Context) (*entities.TokenPair, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	pair, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if pair == nil || pair.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	kind, err := c.store.Locate()
	if err != nil {
		return nil, fmt.Errorf("failed to locate session: %w", err)
	}

	fresh, err := c.service.RefreshToken(ctx, pair.RefreshToken)
	if err == nil {
		if err = c.store.Save(*fresh, kind == tokenstore.KindDurable); err != nil {
			err = fmt.Errorf("failed to store refreshed session: %w", err)
		}
	}
	if err != nil {
		log.Info().Err(err).Msg("Refresh failed, signing out")
		c.signOut(ctx)
		c.update(func() { c.errMsg = apiclient.Message(err, refreshFailed) })
		return nil, err
	}

	return fresh, nil
}

// UpdateUser saves profile changes. A failure leaves the session as it was
// apart from Error.
func (c *Controller) UpdateUser(ctx context.Context, data entities.UserProfile) (entities.UserProfile, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func() {
		c.loading = true
		c.errMsg = ""
	})

	user, err := c.service.UpdateProfile(ctx, data)
	if err != nil {
		msg := apiclient.Message(err, profileUpdateFailed)
		c.update(func() {
			c.loading = false
			c.errMsg = msg
		})
		return nil, err
	}

	c.update(func() {
		c.user = user
		c.loading = false
	})
	return user, nil
}

// RequestPasswordReset asks the backend to email a reset link.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) (any, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func() {
		c.loading = true
		c.errMsg = ""
	})

	ack, err := c.service.RequestPasswordReset(ctx, email)
	msg := ""
	if err != nil {
		msg = apiclient.Message(err, passwordResetFailed)
	}
	c.update(func() {
		c.loading = false
		c.errMsg = msg
	})
	return ack, err
}

// Expire marks the session signed out after the HTTP client has already
// dropped the tokens on a 401. It does not wait for a running operation.
func (c *Controller) Expire() {
	c.update(func() { c.signedOutLocked() })
}

// SetError replaces the displayed error. An empty message clears it.
func (c *Controller) SetError(msg string) {
	c.update(func() { c.errMsg = msg })
}

func (c *Controller) signedOutLocked() {
	c.state = StateUnauthenticated
	c.user = nil
	c.loading = false
}

func (c *Controller) clearTokens() {
	if err := c.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear stored session")
	}
}
