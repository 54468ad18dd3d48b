package devapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

const issuer = "campusadmin-devapi"

// TokenIssuer signs HS256 access tokens and tracks revoked token IDs.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

// NewTokenIssuer creates an issuer. An empty secret gets a random one, so
// tokens do not survive a restart.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate signing secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}, nil
}

// Issue signs an access token for userID.
func (ti *TokenIssuer) Issue(userID string) (string, error) {
	now := ti.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		ID:        uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and revocation and returns the claims.
func (ti *TokenIssuer) Verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ti.mu.Lock()
	_, revoked := ti.revoked[claims.ID]
	ti.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke blocks the token ID until the token would have expired anyway.
func (ti *TokenIssuer) Revoke(claims *jwt.RegisteredClaims) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	exp := ti.now().Add(ti.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	ti.revoked[claims.ID] = exp
}

// Sweep forgets revoked IDs whose tokens have expired.
func (ti *TokenIssuer) Sweep() int {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	now := ti.now()
	removed := 0
	for id, exp := range ti.revoked {
		if now.After(exp) {
			delete(ti.revoked, id)
			removed++
		}
	}
	return removed
}

// grant is a single-use value bound to a user, such as a refresh token,
// password reset token or SSO code.
type grant struct {
	userID  string
	extra   string
	expires time.Time
}

// GrantStore issues and redeems opaque single-use tokens.
type GrantStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	grants map[string]grant
}

func NewGrantStore(ttl time.Duration) *GrantStore {
	return &GrantStore{ttl: ttl, now: time.Now, grants: make(map[string]grant)}
}

// Issue returns a new token for userID. extra is returned on redemption.
func (g *GrantStore) Issue(userID, extra string) string {
	token := uuid.New().String()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.grants[token] = grant{userID: userID, extra: extra, expires: g.now().Add(g.ttl)}
	return token
}

// Redeem consumes token and returns what it was bound to.
func (g *GrantStore) Redeem(token string) (userID, extra string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	gr, ok := g.grants[token]
	if !ok {
		return "", "", ErrInvalidToken
	}
	delete(g.grants, token)

	if g.now().After(gr.expires) {
		return "", "", ErrInvalidToken
	}
	return gr.userID, gr.extra, nil
}

// Peek returns what token is bound to without consuming it.
func (g *GrantStore) Peek(token string) (userID, extra string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	gr, ok := g.grants[token]
	if !ok || g.now().After(gr.expires) {
		return "", "", ErrInvalidToken
	}
	return gr.userID, gr.extra, nil
}

// RevokeUser drops every token issued to userID.
func (g *GrantStore) RevokeUser(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for token, gr := range g.grants {
		if gr.userID == userID {
			delete(g.grants, token)
			n++
		}
	}
	return n
}

// Len returns the number of outstanding tokens, expired ones included.
func (g *GrantStore) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.grants)
}

// Sweep drops expired tokens and returns how many were removed.
func (g *GrantStore) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for token, gr := range g.grants {
		if now.After(gr.expires) {
			delete(g.grants, token)
			removed++
		}
	}
	return removed
}
