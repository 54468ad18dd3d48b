package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/validation"
)

// ForgotPasswordCommand requests a password reset email
type ForgotPasswordCommand struct {
	Config *config.Config
	Out    io.Writer

	Email string
}

// NewForgotPasswordCommand creates a new ForgotPasswordCommand
func NewForgotPasswordCommand(cfg *config.Config) *ForgotPasswordCommand {
	return &ForgotPasswordCommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *ForgotPasswordCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("forgot-password", flag.ExitOnError)
	fs.StringVar(&cmd.Email, "email", "", "Account email address (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s forgot-password -email=<address>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ask the backend to email a password reset token.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

// Run executes the request
func (cmd *ForgotPasswordCommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return forgotPassword(context.Background(), s, outOrStdout(cmd.Out), validation.ForgotPasswordForm{Email: cmd.Email})
	})
}

// ResetPasswordCommand sets a new password with a reset token
type ResetPasswordCommand struct {
	Config *config.Config
	In     io.Reader
	Out    io.Writer

	Token       string
	NewPassword string
	Confirm     string
}

// NewResetPasswordCommand creates a new ResetPasswordCommand
func NewResetPasswordCommand(cfg *config.Config) *ResetPasswordCommand {
	return &ResetPasswordCommand{Config: cfg, In: os.Stdin, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *ResetPasswordCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	fs.StringVar(&cmd.Token, "token", "", "Reset token from the email (required)")
	fs.StringVar(&cmd.NewPassword, "password", "", "New password (prompted when empty)")
	fs.StringVar(&cmd.Confirm, "confirm", "", "New password again (prompted when empty)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reset-password -token=<token> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Set a new password. It must be at least 8 characters and mix upper\n")
		fmt.Fprintf(os.Stderr, "and lower case letters, a number and a symbol.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

// Run executes the reset
func (cmd *ResetPasswordCommand) Run() error {
	p := newPrompter(cmd.In, outOrStdout(cmd.Out))
	password, err := p.orAsk(cmd.NewPassword, "New password")
	if err != nil {
		return err
	}
	confirm, err := p.orAsk(cmd.Confirm, "Confirm password")
	if err != nil {
		return err
	}

	form := validation.ResetPasswordForm{Token: cmd.Token, NewPassword: password, ConfirmPassword: confirm}
	return withStack(cmd.Config, func(s *Stack) error {
		return resetPassword(context.Background(), s, p.out, form)
	})
}

// VerifyEmailCommand confirms an email address with the emailed token
type VerifyEmailCommand struct {
	Config *config.Config
	Out    io.Writer

	Token string
}

// NewVerifyEmailCommand creates a new VerifyEmailCommand
func NewVerifyEmailCommand(cfg *config.Config) *VerifyEmailCommand {
	return &VerifyEmailCommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *VerifyEmailCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("verify-email", flag.ExitOnError)
	fs.StringVar(&cmd.Token, "token", "", "Verification token from the email (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s verify-email -token=<token>\n\n", os.Args[0])
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

// Run executes the verification
func (cmd *VerifyEmailCommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return verifyEmail(context.Background(), s, outOrStdout(cmd.Out), validation.VerifyEmailForm{Token: cmd.Token})
	})
}

// RequestAccessCommand submits an access request for a new account
type RequestAccessCommand struct {
	Config *config.Config
	In     io.Reader
	Out    io.Writer

	Form validation.AccessRequest
}

// NewRequestAccessCommand creates a new RequestAccessCommand
func NewRequestAccessCommand(cfg *config.Config) *RequestAccessCommand {
	return &RequestAccessCommand{Config: cfg, In: os.Stdin, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *RequestAccessCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("request-access", flag.ExitOnError)
	fs.StringVar(&cmd.Form.Identifier, "identifier", "", "Email or user ID to register (required)")
	fs.StringVar(&cmd.Form.Password, "password", "", "Password (prompted when empty)")
	fs.StringVar(&cmd.Form.ConfirmPassword, "confirm", "", "Password again (prompted when empty)")
	fs.StringVar(&cmd.Form.FullName, "name", "", "Full name")
	fs.StringVar(&cmd.Form.Phone, "phone", "", "Phone number")
	fs.StringVar(&cmd.Form.Website, "website", "", "Website URL")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s request-access -identifier=<email or id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ask an administrator for an account.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

// Run submits the request
func (cmd *RequestAccessCommand) Run() error {
	p := newPrompter(cmd.In, outOrStdout(cmd.Out))
	form := cmd.Form
	var err error
	if form.Password, err = p.orAsk(form.Password, "Password"); err != nil {
		return err
	}
	if form.ConfirmPassword, err = p.orAsk(form.ConfirmPassword, "Confirm password"); err != nil {
		return err
	}

	return withStack(cmd.Config, func(s *Stack) error {
		return requestAccess(context.Background(), s, p.out, form)
	})
}

// UpdateProfileCommand changes fields of the signed-in user's profile
type UpdateProfileCommand struct {
	Config *config.Config
	Out    io.Writer

	Form validation.ProfileForm
}

// NewUpdateProfileCommand creates a new UpdateProfileCommand
func NewUpdateProfileCommand(cfg *config.Config) *UpdateProfileCommand {
	return &UpdateProfileCommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *UpdateProfileCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("update-profile", flag.ExitOnError)
	fs.StringVar(&cmd.Form.FirstName, "first-name", "", "First name")
	fs.StringVar(&cmd.Form.LastName, "last-name", "", "Last name")
	fs.StringVar(&cmd.Form.Email, "email", "", "Email address (needs verifying again)")
	fs.StringVar(&cmd.Form.Phone, "phone", "", "Phone number")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s update-profile [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Only the fields given are changed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

// Run sends the update
func (cmd *UpdateProfileCommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return updateProfile(context.Background(), s, outOrStdout(cmd.Out), cmd.Form)
	})
}
