package main

import (
	"fmt"
	"os"

	"github.com/mrlokans/campusadmin/internal/cli"
	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// command is what every CLI subcommand implements.
type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	cfg := config.NewConfig()
	cli.SetupLogging(cfg.Logging.Level)

	// If no arguments or "serve" command, run the dev API server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		entrypoint.Run(cfg, Version)
		return
	}

	name := os.Args[1]
	args := os.Args[2:]

	var cmd command
	switch name {
	case "signin":
		cmd = cli.NewSignInCommand(cfg)
	case "signout":
		cmd = cli.NewSignOutCommand(cfg)
	case "whoami":
		cmd = cli.NewWhoAmICommand(cfg)
	case "refresh":
		cmd = cli.NewRefreshCommand(cfg)
	case "sso":
		cmd = cli.NewSSOCommand(cfg)
	case "forgot-password":
		cmd = cli.NewForgotPasswordCommand(cfg)
	case "reset-password":
		cmd = cli.NewResetPasswordCommand(cfg)
	case "verify-email":
		cmd = cli.NewVerifyEmailCommand(cfg)
	case "request-access":
		cmd = cli.NewRequestAccessCommand(cfg)
	case "update-profile":
		cmd = cli.NewUpdateProfileCommand(cfg)
	case "console":
		cmd = cli.NewConsoleCommand(cfg)

	case "version":
		fmt.Printf("campusadmin %s (%s)\n", Version, Commit)
		return

	case "-h", "--help", "help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.ParseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve            Start the dev API server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  signin           Sign in with an email or user ID and password\n")
	fmt.Fprintf(os.Stderr, "  sso              Sign in through the campus identity provider\n")
	fmt.Fprintf(os.Stderr, "  signout          End the stored session\n")
	fmt.Fprintf(os.Stderr, "  whoami           Show the signed-in user\n")
	fmt.Fprintf(os.Stderr, "  refresh          Rotate the stored session tokens\n")
	fmt.Fprintf(os.Stderr, "  forgot-password  Request a password reset email\n")
	fmt.Fprintf(os.Stderr, "  reset-password   Set a new password with a reset token\n")
	fmt.Fprintf(os.Stderr, "  verify-email     Verify an email address with a token\n")
	fmt.Fprintf(os.Stderr, "  request-access   Ask for a new account\n")
	fmt.Fprintf(os.Stderr, "  update-profile   Change profile fields\n")
	fmt.Fprintf(os.Stderr, "  console          Interactive shell keeping one session\n")
	fmt.Fprintf(os.Stderr, "  version          Print version information\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
