package devapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/campusadmin/internal/tasks"
)

const testCallbackURL = "http://localhost:8089/callback"

type recordingMailer struct {
	sent chan tasks.Email
}

func (m *recordingMailer) Send(ctx context.Context, email tasks.Email) error {
	m.sent <- email
	return nil
}

func (m *recordingMailer) next(t *testing.T) tasks.Email {
	t.Helper()
	select {
	case email := <-m.sent:
		return email
	case <-time.After(5 * time.Second):
		t.Fatal("no mail delivered within timeout")
		return tasks.Email{}
	}
}

// token extracts the token at the end of a mail body.
func (m *recordingMailer) token(t *testing.T) string {
	body := m.next(t).Body
	return body[strings.LastIndex(body, ": ")+2:]
}

type testServer struct {
	*Server
	mailer *recordingMailer
}

func setupTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mailer := &recordingMailer{sent: make(chan tasks.Email, 10)}
	cfg := Config{
		BcryptCost:     bcrypt.MinCost,
		JWTSecret:      "test-secret",
		AccessTokenTTL: time.Minute,
		SSORedirectURL: testCallbackURL,
		DatabasePath:   filepath.Join(t.TempDir(), "devapi.db"),
		Tasks:          tasks.Config{Workers: 1},
		Mailer:         mailer,
		Registry:       prometheus.NewRegistry(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Close(ctx)
	})

	return &testServer{Server: srv, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) signIn(t *testing.T, identifier, password string) map[string]any {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
		"identifier": identifier, "password": password, "rememberMe": true,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func TestSignIn(t *testing.T) {
	srv := setupTestServer(t)

	t.Run("success", func(t *testing.T) {
		resp := srv.signIn(t, "admin@campus.edu", "Campus!2024")

		assert.NotEmpty(t, resp["token"])
		assert.NotEmpty(t, resp["refreshToken"])
		assert.Equal(t, "/dashboard", resp["redirectUrl"])
		user := resp["user"].(map[string]any)
		assert.Equal(t, "u1", user["id"])
		assert.Equal(t, "admin", user["role"])
	})

	tests := []struct {
		name        string
		body        any
		wantStatus  int
		wantMessage string
	}{
		{"wrong password", map[string]any{"identifier": "admin@campus.edu", "password": "nope"}, http.StatusBadRequest, "Invalid credentials"},
		{"unknown user", map[string]any{"identifier": "ghost", "password": "Campus!2024"}, http.StatusBadRequest, "Invalid credentials"},
		{"missing password", map[string]any{"identifier": "admin@campus.edu"}, http.StatusBadRequest, msgMissingCredentials},
		{"not json", "plain", http.StatusBadRequest, msgInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/auth/signin", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMessage, decodeBody(t, rec)["message"])
		})
	}
}

func TestSignIn_RateLimited(t *testing.T) {
	srv := setupTestServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{MaxAttempts: 2, WindowDuration: time.Minute, LockoutDuration: time.Minute}
	})

	bad := map[string]any{"identifier": "admin@campus.edu", "password": "nope"}
	for i := 0; i < 2; i++ {
		rec := srv.do(t, http.MethodPost, "/api/auth/signin", bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	good := map[string]any{"identifier": "ADMIN@campus.edu", "password": "Campus!2024"}
	rec := srv.do(t, http.MethodPost, "/api/auth/signin", good, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, msgTooManyAttempts, decodeBody(t, rec)["message"])
}

func TestProtectedEndpoints(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/api/auth/me", "/api/auth/signout", "/api/auth/profile"} {
		method := http.MethodGet
		switch path {
		case "/api/auth/signout":
			method = http.MethodPost
		case "/api/auth/profile":
			method = http.MethodPut
		}

		rec := srv.do(t, method, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Authentication required", decodeBody(t, rec)["message"])

		rec = srv.do(t, method, path, nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestMe(t *testing.T) {
	srv := setupTestServer(t)
	token := srv.signIn(t, "u2", "Editor!2024")["token"].(string)

	rec := srv.do(t, http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody(t, rec)
	assert.Equal(t, "u2", profile["id"])
	assert.Equal(t, "editor@campus.edu", profile["email"])
}

func TestSignOut_RevokesTokens(t *testing.T) {
	srv := setupTestServer(t)
	resp := srv.signIn(t, "admin@campus.edu", "Campus!2024")
	token := resp["token"].(string)

	rec := srv.do(t, http.MethodPost, "/api/auth/signout", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": resp["refreshToken"]}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	srv := setupTestServer(t)
	old := srv.signIn(t, "admin@campus.edu", "Campus!2024")["refreshToken"]

	rec := srv.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": old}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decodeBody(t, rec)
	assert.NotEmpty(t, fresh["token"])
	assert.NotEqual(t, old, fresh["refreshToken"])

	rec = srv.do(t, http.MethodGet, "/api/auth/me", nil, fresh["token"].(string))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": old}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens are single use")

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordReset(t *testing.T) {
	srv := setupTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "admin@campus.edu"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgResetSent, decodeBody(t, rec)["message"])
	resetToken := srv.mailer.token(t)

	rec = srv.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "ghost@campus.edu"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgResetSent, decodeBody(t, rec)["message"])

	rec = srv.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/reset-password", map[string]any{"token": resetToken, "newPassword": "weak"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password does not meet requirements", decodeBody(t, rec)["message"])

	rec = srv.do(t, http.MethodPost, "/api/auth/reset-password", map[string]any{"token": resetToken, "newPassword": "N3w!Password"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/reset-password", map[string]any{"token": resetToken, "newPassword": "N3w!Password"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reset tokens are single use")

	srv.signIn(t, "admin@campus.edu", "N3w!Password")
}

func TestRequestAccess(t *testing.T) {
	srv := setupTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/request-access", map[string]any{
		"identifier": "lecturer@campus", "password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]any)
	assert.Equal(t, "Please enter a valid email address", errs["identifier"])
	assert.Equal(t, "Password must correspond to the requirement", errs["password"])

	rec = srv.do(t, http.MethodPost, "/api/auth/request-access", map[string]any{
		"identifier": "admin@campus.edu", "password": "s3cret!pass",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/request-access", map[string]any{
		"identifier": "new.lecturer@campus.edu", "password": "s3cret!pass", "fullName": "New Lecturer",
	}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	requestID := decodeBody(t, rec)["requestId"].(string)
	assert.NotEmpty(t, requestID)

	mail := srv.mailer.next(t)
	assert.Equal(t, "new.lecturer@campus.edu", mail.To)
	assert.Contains(t, mail.Body, requestID)

	pending := srv.AccessRequests()
	require.Len(t, pending, 1)
	assert.Equal(t, "New Lecturer", pending[0].FullName)
}

func TestUpdateProfileAndVerifyEmail(t *testing.T) {
	srv := setupTestServer(t)
	token := srv.signIn(t, "admin@campus.edu", "Campus!2024")["token"].(string)

	rec := srv.do(t, http.MethodPut, "/api/auth/profile", map[string]any{"phone": "123"}, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decodeBody(t, rec)["errors"].(map[string]any)
	assert.Equal(t, "Invalid phone number", errs["phone"])

	rec = srv.do(t, http.MethodPut, "/api/auth/profile", map[string]any{"email": "editor@campus.edu"}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/auth/profile", map[string]any{"email": ""}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/auth/profile", map[string]any{"firstName": "Ada", "email": "ada@campus.edu"}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody(t, rec)
	assert.Equal(t, "Ada", profile["firstName"])
	assert.Equal(t, "Admin", profile["lastName"])
	assert.Equal(t, false, profile["emailVerified"])

	verifyToken := srv.mailer.token(t)

	rec = srv.do(t, http.MethodPost, "/api/auth/verify-email", map[string]any{"token": "bogus"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/verify-email", map[string]any{"token": verifyToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, true, decodeBody(t, rec)["emailVerified"])
}

// ssoState starts an SSO round trip and returns the state from the URL.
func (s *testServer) ssoState(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/auth/sso/initiate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	ssoURL, err := url.Parse(decodeBody(t, rec)["ssoUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, authorizePath, ssoURL.Path)
	state := ssoURL.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (s *testServer) postAuthorize(t *testing.T, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, authorizePath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *testServer) getAuthorize(t *testing.T, state string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, authorizePath+"?state="+url.QueryEscape(state), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSSO_FullRoundTrip(t *testing.T) {
	srv := setupTestServer(t)
	state := srv.ssoState(t)

	rec := srv.getAuthorize(t, state)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="state" value="`+state+`"`)

	rec = srv.postAuthorize(t, url.Values{"identifier": {"admin@campus.edu"}, "password": {"nope"}, "state": {state}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), msgInvalidCredentials)

	rec = srv.postAuthorize(t, url.Values{"identifier": {"admin@campus.edu"}, "password": {"Campus!2024"}, "state": {state}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8089", location.Host)
	assert.Equal(t, "/callback", location.Path)
	assert.Equal(t, state, location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "identity provider session cookie should be set")

	rec = srv.do(t, http.MethodPost, "/api/auth/sso/callback", map[string]any{"code": code, "state": state}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, "u1", resp["user"].(map[string]any)["id"])

	rec = srv.do(t, http.MethodPost, "/api/auth/sso/callback", map[string]any{"code": code, "state": state}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "codes are single use")

	t.Run("existing session skips the form", func(t *testing.T) {
		next := srv.ssoState(t)
		rec := srv.getAuthorize(t, next, cookies...)
		require.Equal(t, http.StatusFound, rec.Code)

		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, next, location.Query().Get("state"))
		assert.NotEmpty(t, location.Query().Get("code"))
	})

	t.Run("used state is rejected", func(t *testing.T) {
		rec := srv.getAuthorize(t, state)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSSOCallback_StateMismatch(t *testing.T) {
	srv := setupTestServer(t)
	state := srv.ssoState(t)

	rec := srv.postAuthorize(t, url.Values{"identifier": {"u2"}, "password": {"Editor!2024"}, "state": {state}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	rec = srv.do(t, http.MethodPost, "/api/auth/sso/callback", map[string]any{
		"code": location.Query().Get("code"), "state": "forged",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SSO state mismatch", decodeBody(t, rec)["message"])
}

func TestAuthorize_UnknownState(t *testing.T) {
	srv := setupTestServer(t)

	rec := srv.getAuthorize(t, "never-issued")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.postAuthorize(t, url.Values{"identifier": {"u1"}, "password": {"Campus!2024"}, "state": {"never-issued"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorize_CSRF(t *testing.T) {
	srv := setupTestServer(t, func(cfg *Config) {
		cfg.CSRFKey = bytes.Repeat([]byte("k"), 32)
	})
	state := srv.ssoState(t)

	rec := srv.getAuthorize(t, state)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="`+csrfFieldName+`"`)

	rec = srv.postAuthorize(t, url.Values{"identifier": {"u1"}, "password": {"Campus!2024"}, "state": {state}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := setupTestServer(t)
	srv.signIn(t, "admin@campus.edu", "Campus!2024")

	rec := srv.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody(t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, map[string]any{"sessions": "ok", "outbox": "ok"}, health["checks"])

	rec = srv.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `campusadmin_devapi_signins_total{method="password",outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "campusadmin_devapi_requests_total")
}

func TestHealth_ReportsClosedDatabase(t *testing.T) {
	srv := setupTestServer(t)
	require.NoError(t, srv.queue.Close())

	rec := srv.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decodeBody(t, rec)
	assert.Equal(t, "unhealthy", health["status"])
	assert.Equal(t, "ok", health["checks"].(map[string]any)["sessions"])
}

func TestSecurityHeaders(t *testing.T) {
	srv := setupTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestNew_RequiresDatabasePath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
