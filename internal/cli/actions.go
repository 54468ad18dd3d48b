package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mrlokans/campusadmin/internal/apiclient"
	"github.com/mrlokans/campusadmin/internal/entities"
	"github.com/mrlokans/campusadmin/internal/session"
	"github.com/mrlokans/campusadmin/internal/sso"
	"github.com/mrlokans/campusadmin/internal/validation"
)

var forms = validation.New()

// ErrNotSignedIn is returned by commands that need a session when none is
// stored.
var ErrNotSignedIn = errors.New("not signed in")

// commandError carries the text shown to the user while keeping the
// underlying error matchable.
type commandError struct {
	msg string
	err error
}

func (e *commandError) Error() string { return e.msg }
func (e *commandError) Unwrap() error { return e.err }

func failure(err error, fallback string) error {
	var verr validation.Errors
	if errors.As(err, &verr) {
		return err
	}
	return &commandError{msg: apiclient.Message(err, fallback), err: err}
}

// prompter reads answers from a line-oriented input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	if br, ok := in.(*bufio.Reader); ok {
		return &prompter{in: br, out: out}
	}
	return &prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the next line without its line ending.
func (p *prompter) Ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", fmt.Errorf("no input for %s", strings.ToLower(label))
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// orAsk returns value or, when it is empty, asks for it.
func (p *prompter) orAsk(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return p.Ask(label)
}

func signIn(ctx context.Context, s *Stack, out io.Writer, form validation.SignInForm) error {
	if err := forms.Struct(form); err != nil {
		return err
	}

	resp, err := s.Controller.SignIn(ctx, form.Credentials())
	if err != nil {
		return failure(err, s.Controller.Session().Error)
	}

	fmt.Fprintf(out, "Signed in as %s\n", displayName(resp.User))
	if resp.RedirectURL != "" {
		s.Tracker.Navigate(resp.RedirectURL)
	}
	fmt.Fprintf(out, "Redirect: %s\n", s.Tracker.Location())
	return nil
}

func signOut(ctx context.Context, s *Stack, out io.Writer) error {
	pair, err := s.Store.Load()
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if pair == nil {
		fmt.Fprintln(out, "Not signed in")
		return nil
	}
	s.Controller.SignOut(ctx)
	fmt.Fprintln(out, "Signed out")
	return nil
}

func whoAmI(ctx context.Context, s *Stack, out io.Writer) error {
	if err := s.Controller.Initialize(ctx); err != nil {
		return err
	}
	snap := s.Controller.Session()
	if snap.State != session.StateAuthenticated {
		return ErrNotSignedIn
	}
	kind, err := s.Store.Locate()
	if err != nil {
		return fmt.Errorf("failed to locate session: %w", err)
	}
	fmt.Fprintf(out, "Session: %s\n", kind)
	printProfile(out, snap.User)
	return nil
}

func refresh(ctx context.Context, s *Stack, out io.Writer) error {
	pair, err := s.Controller.Refresh(ctx)
	if errors.Is(err, session.ErrNoRefreshToken) {
		return &commandError{msg: "No refresh token stored. Please sign in.", err: err}
	}
	if err != nil {
		return failure(err, s.Controller.Session().Error)
	}
	fmt.Fprintln(out, "Session refreshed")
	if exp := pair.ExpiresAt(); exp != nil {
		fmt.Fprintf(out, "Access token expires at %s\n", exp.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func signInWithSSO(ctx context.Context, s *Stack, out io.Writer, flow sso.FlowConfig) error {
	flow.OnAuthURL = func(u string) {
		fmt.Fprintln(out, "Open this URL in your browser to sign in:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, u)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Waiting for the identity provider...")
	}
	flow.OnCodeReceived = func() {
		fmt.Fprintln(out, "Callback received, completing sign-in")
	}

	resp, err := sso.Run(ctx, s.Controller, flow)
	if err != nil {
		return failure(err, "SSO sign in failed")
	}
	fmt.Fprintf(out, "Signed in as %s\n", displayName(resp.User))
	return nil
}

func forgotPassword(ctx context.Context, s *Stack, out io.Writer, form validation.ForgotPasswordForm) error {
	if err := forms.Struct(form); err != nil {
		return err
	}
	ack, err := s.Controller.RequestPasswordReset(ctx, strings.TrimSpace(form.Email))
	if err != nil {
		return failure(err, "Failed to send reset email")
	}
	fmt.Fprintln(out, ackMessage(ack, "If the account exists, a reset link is on its way"))
	return nil
}

func resetPassword(ctx context.Context, s *Stack, out io.Writer, form validation.ResetPasswordForm) error {
	if err := forms.Struct(form); err != nil {
		return err
	}
	ack, err := s.Service.ResetPassword(ctx, strings.TrimSpace(form.Token), form.NewPassword)
	if err != nil {
		return failure(err, "Failed to reset password")
	}
	fmt.Fprintln(out, ackMessage(ack, "Password updated"))
	return nil
}

func verifyEmail(ctx context.Context, s *Stack, out io.Writer, form validation.VerifyEmailForm) error {
	if err := forms.Struct(form); err != nil {
		return err
	}
	ack, err := s.Service.VerifyEmail(ctx, strings.TrimSpace(form.Token))
	if err != nil {
		return failure(err, "Failed to verify email")
	}
	fmt.Fprintln(out, ackMessage(ack, "Email verified"))
	return nil
}

func requestAccess(ctx context.Context, s *Stack, out io.Writer, form validation.AccessRequest) error {
	form.Identifier = strings.TrimSpace(form.Identifier)
	if err := forms.Struct(form); err != nil {
		return err
	}
	ack, err := s.Service.RequestAccess(ctx, form)
	if err != nil {
		return failure(err, "Failed to submit access request")
	}
	fmt.Fprintln(out, ackMessage(ack, "Access request submitted"))
	if data, ok := ack.(map[string]any); ok {
		if id, _ := data["requestId"].(string); id != "" {
			fmt.Fprintf(out, "Request ID: %s\n", id)
		}
	}
	return nil
}

func updateProfile(ctx context.Context, s *Stack, out io.Writer, form validation.ProfileForm) error {
	if err := forms.Struct(form); err != nil {
		return err
	}
	changes := profileChanges(form)
	if len(changes) == 0 {
		return errors.New("nothing to update")
	}
	user, err := s.Controller.UpdateUser(ctx, changes)
	if err != nil {
		return failure(err, s.Controller.Session().Error)
	}
	fmt.Fprintln(out, "Profile updated")
	printProfile(out, user)
	return nil
}

func profileChanges(form validation.ProfileForm) entities.UserProfile {
	changes := entities.UserProfile{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			changes[key] = v
		}
	}
	set("firstName", form.FirstName)
	set("lastName", form.LastName)
	set("email", form.Email)
	set("phone", form.Phone)
	return changes
}

func ackMessage(ack any, fallback string) string {
	if data, ok := ack.(map[string]any); ok {
		if msg, _ := data["message"].(string); msg != "" {
			return msg
		}
	}
	return fallback
}

func displayName(user entities.UserProfile) string {
	if email := user.Field("email"); email != "" {
		return email
	}
	if id := user.Field("id"); id != "" {
		return id
	}
	return "unknown user"
}

func printProfile(out io.Writer, user entities.UserProfile) {
	keys := make([]string, 0, len(user))
	for k := range user {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-14s %s\n", k+":", user.Field(k))
	}
}
