package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/sso"
	"github.com/mrlokans/campusadmin/internal/validation"
)

// SignInCommand signs in with an email or user ID and a password
type SignInCommand struct {
	Config *config.Config
	In     io.Reader
	Out    io.Writer

	Identifier string
	Password   string
	RememberMe bool
}

// NewSignInCommand creates a new SignInCommand
func NewSignInCommand(cfg *config.Config) *SignInCommand {
	return &SignInCommand{Config: cfg, In: os.Stdin, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *SignInCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)

	fs.StringVar(&cmd.Identifier, "identifier", "", "Email or user ID (prompted when empty)")
	fs.StringVar(&cmd.Password, "password", os.Getenv("CAMPUSADMIN_PASSWORD"), "Password (or set CAMPUSADMIN_PASSWORD; prompted when empty)")
	fs.BoolVar(&cmd.RememberMe, "remember", false, "Keep the session across runs")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s signin [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Sign in to the campus admin backend.\n\n")
		fmt.Fprintf(os.Stderr, "Without -remember the session only lives as long as this process,\n")
		fmt.Fprintf(os.Stderr, "which is mostly useful inside the console command.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s signin -identifier=admin@campus.edu -remember\n", os.Args[0])
	}

	return fs.Parse(args)
}

// Run executes the sign-in
func (cmd *SignInCommand) Run() error {
	p := newPrompter(cmd.In, outOrStdout(cmd.Out))
	identifier, err := p.orAsk(cmd.Identifier, "Email or User ID")
	if err != nil {
		return err
	}
	password, err := p.orAsk(cmd.Password, "Password")
	if err != nil {
		return err
	}

	form := validation.SignInForm{Identifier: identifier, Password: password, RememberMe: cmd.RememberMe}
	return withStack(cmd.Config, func(s *Stack) error {
		if err := signIn(context.Background(), s, p.out, form); err != nil {
			return err
		}
		if !cmd.RememberMe {
			fmt.Fprintln(p.out, "Session kept in memory only; pass -remember to keep it")
		}
		return nil
	})
}

// SignOutCommand ends the stored session
type SignOutCommand struct {
	Config *config.Config
	Out    io.Writer
}

// NewSignOutCommand creates a new SignOutCommand
func NewSignOutCommand(cfg *config.Config) *SignOutCommand {
	return &SignOutCommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *SignOutCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("signout", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s signout\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Sign out and forget the stored session.\n")
	}
	return fs.Parse(args)
}

// Run executes the sign-out
func (cmd *SignOutCommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return signOut(context.Background(), s, outOrStdout(cmd.Out))
	})
}

// WhoAmICommand prints the signed-in user
type WhoAmICommand struct {
	Config *config.Config
	Out    io.Writer
}

// NewWhoAmICommand creates a new WhoAmICommand
func NewWhoAmICommand(cfg *config.Config) *WhoAmICommand {
	return &WhoAmICommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *WhoAmICommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s whoami\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Restore the stored session and print the current user.\n")
	}
	return fs.Parse(args)
}

// Run restores the session and prints the profile
func (cmd *WhoAmICommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return whoAmI(context.Background(), s, outOrStdout(cmd.Out))
	})
}

// RefreshCommand exchanges the stored refresh token for a new pair
type RefreshCommand struct {
	Config *config.Config
	Out    io.Writer
}

// NewRefreshCommand creates a new RefreshCommand
func NewRefreshCommand(cfg *config.Config) *RefreshCommand {
	return &RefreshCommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *RefreshCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s refresh\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Rotate the stored tokens. A rejected refresh token signs you out.\n")
	}
	return fs.Parse(args)
}

// Run executes the refresh
func (cmd *RefreshCommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return refresh(context.Background(), s, outOrStdout(cmd.Out))
	})
}

// SSOCommand signs in through the campus identity provider
type SSOCommand struct {
	Config *config.Config
	Out    io.Writer

	Port       int
	Timeout    time.Duration
	RememberMe bool
}

// NewSSOCommand creates a new SSOCommand
func NewSSOCommand(cfg *config.Config) *SSOCommand {
	return &SSOCommand{Config: cfg, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *SSOCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sso", flag.ExitOnError)

	port, timeout := sso.DefaultPort, sso.DefaultTimeout
	if cmd.Config != nil {
		if cmd.Config.SSO.CallbackPort > 0 {
			port = cmd.Config.SSO.CallbackPort
		}
		if cmd.Config.SSO.Timeout > 0 {
			timeout = cmd.Config.SSO.Timeout
		}
	}

	fs.IntVar(&cmd.Port, "port", port, "Local port for the SSO callback server")
	fs.DurationVar(&cmd.Timeout, "timeout", timeout, "How long to wait for the identity provider")
	fs.BoolVar(&cmd.RememberMe, "remember", false, "Keep the session across runs")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sso [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Sign in with single sign-on. The command prints a URL to open in a\n")
		fmt.Fprintf(os.Stderr, "browser and waits for the identity provider to redirect back to\n")
		fmt.Fprintf(os.Stderr, "http://localhost:<port>%s.\n\n", sso.CallbackPath)
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

// Run executes the SSO flow
func (cmd *SSOCommand) Run() error {
	return withStack(cmd.Config, func(s *Stack) error {
		return signInWithSSO(context.Background(), s, outOrStdout(cmd.Out), cmd.flowConfig())
	})
}

func (cmd *SSOCommand) flowConfig() sso.FlowConfig {
	flow := sso.DefaultFlowConfig()
	if cmd.Port > 0 {
		flow.Port = cmd.Port
	}
	if cmd.Timeout > 0 {
		flow.Timeout = cmd.Timeout
	}
	flow.RememberMe = cmd.RememberMe
	return flow
}
