package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/sso"
	"github.com/mrlokans/campusadmin/internal/validation"
)

// ConsoleCommand is an interactive shell sharing one session controller
// across commands, so sessions signed in without -remember stay usable.
type ConsoleCommand struct {
	Config *config.Config
	In     io.Reader
	Out    io.Writer
}

// NewConsoleCommand creates a new ConsoleCommand
func NewConsoleCommand(cfg *config.Config) *ConsoleCommand {
	return &ConsoleCommand{Config: cfg, In: os.Stdin, Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *ConsoleCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s console\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Start an interactive session. Type 'help' for the command list.\n")
	}
	return fs.Parse(args)
}

// Run reads commands until EOF or "exit"
func (cmd *ConsoleCommand) Run() error {
	p := newPrompter(cmd.In, outOrStdout(cmd.Out))
	return withStack(cmd.Config, func(s *Stack) error {
		ctx := context.Background()
		if err := s.Controller.Initialize(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not restore session")
		}
		if snap := s.Controller.Session(); snap.IsAuthenticated {
			fmt.Fprintf(p.out, "Restored session for %s\n", displayName(snap.User))
		}
		fmt.Fprintln(p.out, "Type 'help' for commands, 'exit' to quit.")

		for {
			line, err := p.Ask("campusadmin")
			if err != nil {
				fmt.Fprintln(p.out)
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "exit" || fields[0] == "quit" {
				return nil
			}
			if err := cmd.dispatch(ctx, s, p, fields[0], fields[1:]); err != nil {
				fmt.Fprintf(p.out, "Error: %v\n", err)
			}
		}
	})
}

func (cmd *ConsoleCommand) dispatch(ctx context.Context, s *Stack, p *prompter, name string, args []string) error {
	remember, args := popFlag(args, "-remember")

	switch name {
	case "help":
		printConsoleHelp(p.out)
		return nil

	case "status":
		snap := s.Controller.Session()
		kind, err := s.Store.Locate()
		if err != nil {
			return err
		}
		fmt.Fprintf(p.out, "State: %s\n", snap.State)
		if kind != "" {
			fmt.Fprintf(p.out, "Session: %s\n", kind)
		}
		if snap.Error != "" {
			fmt.Fprintf(p.out, "Last error: %s\n", snap.Error)
		}
		fmt.Fprintf(p.out, "Location: %s\n", s.Tracker.Location())
		return nil

	case "signin":
		identifier := ""
		if len(args) > 0 {
			identifier = args[0]
		}
		identifier, err := p.orAsk(identifier, "Email or User ID")
		if err != nil {
			return err
		}
		password, err := p.Ask("Password")
		if err != nil {
			return err
		}
		return signIn(ctx, s, p.out, validation.SignInForm{Identifier: identifier, Password: password, RememberMe: remember})

	case "sso":
		flow := sso.FlowConfig{RememberMe: remember}
		if cmd.Config != nil {
			flow.Port = cmd.Config.SSO.CallbackPort
			flow.Timeout = cmd.Config.SSO.Timeout
		}
		return signInWithSSO(ctx, s, p.out, flow)

	case "signout":
		return signOut(ctx, s, p.out)

	case "whoami":
		return whoAmI(ctx, s, p.out)

	case "refresh":
		return refresh(ctx, s, p.out)

	case "forgot":
		if len(args) != 1 {
			return errors.New("usage: forgot <email>")
		}
		return forgotPassword(ctx, s, p.out, validation.ForgotPasswordForm{Email: args[0]})

	case "reset":
		if len(args) != 1 {
			return errors.New("usage: reset <token>")
		}
		password, err := p.Ask("New password")
		if err != nil {
			return err
		}
		confirm, err := p.Ask("Confirm password")
		if err != nil {
			return err
		}
		return resetPassword(ctx, s, p.out, validation.ResetPasswordForm{Token: args[0], NewPassword: password, ConfirmPassword: confirm})

	case "verify":
		if len(args) != 1 {
			return errors.New("usage: verify <token>")
		}
		return verifyEmail(ctx, s, p.out, validation.VerifyEmailForm{Token: args[0]})

	case "update":
		form, err := parseProfileArgs(args)
		if err != nil {
			return err
		}
		return updateProfile(ctx, s, p.out, form)

	default:
		return fmt.Errorf("unknown command %q, type 'help'", name)
	}
}

// parseProfileArgs reads key=value pairs such as firstName=Ada.
func parseProfileArgs(args []string) (validation.ProfileForm, error) {
	var form validation.ProfileForm
	if len(args) == 0 {
		return form, errors.New("usage: update firstName=<v> lastName=<v> email=<v> phone=<v>")
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return form, fmt.Errorf("expected key=value, got %q", arg)
		}
		switch key {
		case "firstName":
			form.FirstName = value
		case "lastName":
			form.LastName = value
		case "email":
			form.Email = value
		case "phone":
			form.Phone = value
		default:
			return form, fmt.Errorf("unknown profile field %q", key)
		}
	}
	return form, nil
}

func popFlag(args []string, name string) (bool, []string) {
	found := false
	rest := args[:0:0]
	for _, a := range args {
		if a == name {
			found = true
			continue
		}
		rest = append(rest, a)
	}
	return found, rest
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  signin [-remember] [identifier]   Sign in with a password")
	fmt.Fprintln(out, "  sso [-remember]                   Sign in with single sign-on")
	fmt.Fprintln(out, "  signout                           End the session")
	fmt.Fprintln(out, "  whoami                            Show the current user")
	fmt.Fprintln(out, "  status                            Show session state")
	fmt.Fprintln(out, "  refresh                           Rotate the session tokens")
	fmt.Fprintln(out, "  update key=value...               Update profile fields")
	fmt.Fprintln(out, "  forgot <email>                    Request a password reset")
	fmt.Fprintln(out, "  reset <token>                     Set a new password")
	fmt.Fprintln(out, "  verify <token>                    Verify an email address")
	fmt.Fprintln(out, "  exit                              Leave the console")
}
