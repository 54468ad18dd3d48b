package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/campusadmin/internal/apiclient"
	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/crypto"
	"github.com/mrlokans/campusadmin/internal/devapi"
	"github.com/mrlokans/campusadmin/internal/tasks"
	"github.com/mrlokans/campusadmin/internal/validation"
)

type mailbox struct {
	sent chan tasks.Email
}

func (m *mailbox) Send(ctx context.Context, email tasks.Email) error {
	m.sent <- email
	return nil
}

func (m *mailbox) next(t *testing.T) tasks.Email {
	t.Helper()
	select {
	case email := <-m.sent:
		return email
	case <-time.After(5 * time.Second):
		t.Fatal("no mail delivered within timeout")
		return tasks.Email{}
	}
}

func (m *mailbox) token(t *testing.T) string {
	t.Helper()
	body := m.next(t).Body
	return body[strings.LastIndex(body, ": ")+2:]
}

// setupCLI starts a dev API and returns a config pointing the CLI at it.
func setupCLI(t *testing.T) (*config.Config, *mailbox) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	mail := &mailbox{sent: make(chan tasks.Email, 10)}
	srv, err := devapi.New(devapi.Config{
		BcryptCost:     bcrypt.MinCost,
		JWTSecret:      "cli-secret",
		AccessTokenTTL: time.Minute,
		DatabasePath:   filepath.Join(dir, "devapi.db"),
		Tasks:          tasks.Config{Workers: 1},
		Mailer:         mail,
		Registry:       prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		api.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Close(ctx)
	})

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &config.Config{
		API: config.API{BaseURL: api.URL + "/api", RequestTimeout: 5 * time.Second},
		TokenStore: config.TokenStore{
			DatabasePath:  filepath.Join(dir, "tokens.db"),
			EncryptionKey: key,
		},
		Routes: config.Routes{SignIn: "/signin", Dashboard: "/dashboard"},
	}, mail
}

func runSignIn(t *testing.T, cfg *config.Config, remember bool, password string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewSignInCommand(cfg)
	cmd.Out = &out
	cmd.In = strings.NewReader("")
	require.NoError(t, cmd.ParseFlags(nil))
	cmd.Identifier = "admin@campus.edu"
	cmd.Password = password
	cmd.RememberMe = remember
	err := cmd.Run()
	return out.String(), err
}

func TestSignIn_RememberedSessionSurvivesProcess(t *testing.T) {
	cfg, _ := setupCLI(t)

	out, err := runSignIn(t, cfg, true, "Campus!2024")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as admin@campus.edu")
	assert.Contains(t, out, "Redirect: /dashboard")

	var who bytes.Buffer
	whoami := NewWhoAmICommand(cfg)
	whoami.Out = &who
	require.NoError(t, whoami.Run())
	assert.Contains(t, who.String(), "Session: durable")
	assert.Contains(t, who.String(), "admin@campus.edu")

	var bye bytes.Buffer
	signout := NewSignOutCommand(cfg)
	signout.Out = &bye
	require.NoError(t, signout.Run())
	assert.Equal(t, "Signed out\n", bye.String())

	whoami.Out = &bytes.Buffer{}
	assert.ErrorIs(t, whoami.Run(), ErrNotSignedIn)
}

func TestSignIn_EphemeralSessionEndsWithProcess(t *testing.T) {
	cfg, _ := setupCLI(t)

	out, err := runSignIn(t, cfg, false, "Campus!2024")
	require.NoError(t, err)
	assert.Contains(t, out, "kept in memory only")

	whoami := NewWhoAmICommand(cfg)
	whoami.Out = &bytes.Buffer{}
	assert.ErrorIs(t, whoami.Run(), ErrNotSignedIn)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	cfg, _ := setupCLI(t)

	_, err := runSignIn(t, cfg, true, "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	var apiErr *apiclient.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestSignIn_PromptsAndValidatesBeforeCalling(t *testing.T) {
	cfg := &config.Config{API: config.API{BaseURL: "http://127.0.0.1:1/api"}}
	cfg.TokenStore.DatabasePath = filepath.Join(t.TempDir(), "tokens.db")
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg.TokenStore.EncryptionKey = key

	var out bytes.Buffer
	cmd := NewSignInCommand(cfg)
	cmd.Out = &out
	cmd.In = strings.NewReader("admin@campus.edu\n\n")
	cmd.Password = ""
	err = cmd.Run()

	var verr validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Password is required", verr["password"])
	assert.Contains(t, out.String(), "Email or User ID: ")
}

func TestRefresh(t *testing.T) {
	cfg, _ := setupCLI(t)

	cmd := NewRefreshCommand(cfg)
	cmd.Out = &bytes.Buffer{}
	err := cmd.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No refresh token stored")

	_, err = runSignIn(t, cfg, true, "Campus!2024")
	require.NoError(t, err)

	var out bytes.Buffer
	cmd.Out = &out
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Session refreshed")
	assert.Contains(t, out.String(), "Access token expires at")
}

func TestPasswordResetFlow(t *testing.T) {
	cfg, mail := setupCLI(t)

	var out bytes.Buffer
	forgot := NewForgotPasswordCommand(cfg)
	forgot.Out = &out
	forgot.Email = "admin@campus.edu"
	require.NoError(t, forgot.Run())
	assert.Contains(t, out.String(), "If an account exists for that email")

	reset := NewResetPasswordCommand(cfg)
	reset.Out = &bytes.Buffer{}
	reset.Token = mail.token(t)
	reset.In = strings.NewReader("Brand!New1\nBrand!New1\n")
	require.NoError(t, reset.Run())

	_, err := runSignIn(t, cfg, true, "Campus!2024")
	assert.Error(t, err, "old password no longer works")
	_, err = runSignIn(t, cfg, true, "Brand!New1")
	assert.NoError(t, err)
}

func TestForgotPassword_RejectsBadEmailLocally(t *testing.T) {
	cfg, _ := setupCLI(t)

	forgot := NewForgotPasswordCommand(cfg)
	forgot.Out = &bytes.Buffer{}
	forgot.Email = "not-an-email"

	var verr validation.Errors
	require.ErrorAs(t, forgot.Run(), &verr)
	assert.Equal(t, "Please enter a valid email address", verr["email"])
}

func TestResetPassword_WeakPassword(t *testing.T) {
	cfg, _ := setupCLI(t)

	reset := NewResetPasswordCommand(cfg)
	reset.Out = &bytes.Buffer{}
	reset.Token = "whatever"
	reset.NewPassword = "short"
	reset.Confirm = "short"

	var verr validation.Errors
	require.ErrorAs(t, reset.Run(), &verr)
	assert.Contains(t, verr, "newPassword")
}

func TestRequestAccess(t *testing.T) {
	cfg, mail := setupCLI(t)

	var out bytes.Buffer
	cmd := NewRequestAccessCommand(cfg)
	cmd.Out = &out
	cmd.In = strings.NewReader("Welcome!1\nWelcome!1\n")
	cmd.Form.Identifier = "new.person@campus.edu"
	cmd.Form.FullName = "New Person"
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Request ID: ")
	assert.Equal(t, "new.person@campus.edu", mail.next(t).To)

	cmd.Out = &bytes.Buffer{}
	cmd.In = strings.NewReader("")
	cmd.Form = validation.AccessRequest{Identifier: "x@campus.edu", Password: "Welcome!1", ConfirmPassword: "Welcome!2"}
	var verr validation.Errors
	require.ErrorAs(t, cmd.Run(), &verr)
	assert.Equal(t, "Passwords do not match", verr["ConfirmPassword"])
}

func TestUpdateProfile(t *testing.T) {
	cfg, mail := setupCLI(t)

	cmd := NewUpdateProfileCommand(cfg)
	cmd.Out = &bytes.Buffer{}
	cmd.Form.FirstName = "Ada"
	err := cmd.Run()
	require.Error(t, err, "no session stored")
	assert.True(t, apiclient.IsUnauthorized(err))

	_, err = runSignIn(t, cfg, true, "Campus!2024")
	require.NoError(t, err)

	var out bytes.Buffer
	cmd.Out = &out
	cmd.Form.Email = "ada@campus.edu"
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Profile updated")
	assert.Contains(t, out.String(), "ada@campus.edu")

	verify := NewVerifyEmailCommand(cfg)
	var verified bytes.Buffer
	verify.Out = &verified
	verify.Token = mail.token(t)
	require.NoError(t, verify.Run())
	assert.Equal(t, "Email verified\n", verified.String())

	cmd.Form = validation.ProfileForm{}
	assert.EqualError(t, cmd.Run(), "nothing to update")
}

func TestConsole_EphemeralSessionAcrossCommands(t *testing.T) {
	cfg, _ := setupCLI(t)

	script := strings.Join([]string{
		"help",
		"signin admin@campus.edu",
		"Campus!2024",
		"status",
		"update firstName=Ada",
		"whoami",
		"bogus",
		"signout",
		"status",
		"exit",
	}, "\n") + "\n"

	var out bytes.Buffer
	cmd := NewConsoleCommand(cfg)
	cmd.In = strings.NewReader(script)
	cmd.Out = &out
	require.NoError(t, cmd.Run())

	text := out.String()
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "Signed in as admin@campus.edu")
	assert.Contains(t, text, "Session: ephemeral")
	assert.Contains(t, text, "Profile updated")
	assert.Contains(t, text, "Ada")
	assert.Contains(t, text, `Error: unknown command "bogus"`)
	assert.Contains(t, text, "Signed out")
	assert.Contains(t, text, "State: unauthenticated")
}

func TestConsole_StopsAtEOF(t *testing.T) {
	cfg, _ := setupCLI(t)

	cmd := NewConsoleCommand(cfg)
	cmd.In = strings.NewReader("status")
	cmd.Out = &bytes.Buffer{}
	assert.NoError(t, cmd.Run())
}

func TestParseProfileArgs(t *testing.T) {
	form, err := parseProfileArgs([]string{"firstName=Ada", "phone=+44 20 7946 0958"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", form.FirstName)
	assert.Equal(t, "+44 20 7946 0958", form.Phone)

	_, err = parseProfileArgs([]string{"nickname=x"})
	assert.Error(t, err)
	_, err = parseProfileArgs([]string{"firstName"})
	assert.Error(t, err)
	_, err = parseProfileArgs(nil)
	assert.Error(t, err)
}

func TestPopFlag(t *testing.T) {
	found, rest := popFlag([]string{"-remember", "admin"}, "-remember")
	assert.True(t, found)
	assert.Equal(t, []string{"admin"}, rest)

	found, rest = popFlag([]string{"admin"}, "-remember")
	assert.False(t, found)
	assert.Equal(t, []string{"admin"}, rest)
}

func TestSSOCommand_FlagsDefaultFromConfig(t *testing.T) {
	cfg := &config.Config{SSO: config.SSO{CallbackPort: 9099, Timeout: time.Minute}}
	cmd := NewSSOCommand(cfg)
	require.NoError(t, cmd.ParseFlags([]string{"-remember"}))

	flow := cmd.flowConfig()
	assert.Equal(t, 9099, flow.Port)
	assert.Equal(t, time.Minute, flow.Timeout)
	assert.True(t, flow.RememberMe)
}
