// Package sso runs single sign-on from a terminal: it asks the backend for
// the identity provider URL, waits for the provider to call back on a local
// port, and hands the code to the session controller.
package sso

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/entities"
)

const (
	DefaultPort    = 8089
	DefaultTimeout = 5 * time.Minute
	CallbackPath   = "/callback"
)

var (
	ErrStateMismatch = errors.New("sso state mismatch")
	ErrNoCode        = errors.New("no authorization code received")
	ErrTimeout       = errors.New("timeout waiting for sso callback")
)

// ProviderError is an error reported by the identity provider on the
// callback URL.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "sso provider error: " + e.Code
	}
	return fmt.Sprintf("sso provider error: %s - %s", e.Code, e.Description)
}

// Session is the part of the session controller the flow drives.
type Session interface {
	InitiateSSO(ctx context.Context) (string, error)
	CompleteSSO(ctx context.Context, code, state string, rememberMe bool) (*entities.AuthResponse, error)
}

// FlowConfig configures a terminal SSO flow.
type FlowConfig struct {
	Port       int           // Local callback port (default: 8089)
	Timeout    time.Duration // How long to wait for the callback (default: 5 minutes)
	RememberMe bool          // Keep the session across restarts

	// Listener, when set, is used instead of listening on Port.
	Listener net.Listener

	OnAuthURL      func(url string)
	OnCodeReceived func()
}

// DefaultFlowConfig prints the URL to stdout and waits five minutes.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
		OnAuthURL: func(u string) {
			fmt.Println("\nOpen this URL in your browser to sign in:")
			fmt.Println()
			fmt.Println(u)
		},
		OnCodeReceived: func() {
			fmt.Println("\nSign-in callback received, completing...")
		},
	}
}

type callback struct {
	code  string
	state string
}

// Run performs the whole flow and returns the sign-in response.
func Run(ctx context.Context, sess Session, cfg FlowConfig) (*entities.AuthResponse, error) {
	listener := cfg.Listener
	if listener == nil {
		port := cfg.Port
		if port == 0 {
			port = DefaultPort
		}
		var err error
		listener, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return nil, fmt.Errorf("port %d is not available: %w", port, err)
		}
	}

	ssoURL, err := sess.InitiateSSO(ctx)
	if err != nil {
		listener.Close()
		return nil, err
	}
	expectedState := stateFromURL(ssoURL)

	resultChan := make(chan callback, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, callbackHandler(expectedState, resultChan, errChan))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(errChan, fmt.Errorf("callback server error: %w", err))
		}
	}()
	defer server.Shutdown(context.Background())

	log.Debug().Str("addr", listener.Addr().String()).Msg("Waiting for SSO callback")
	if cfg.OnAuthURL != nil {
		cfg.OnAuthURL(ssoURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cb callback
	select {
	case cb = <-resultChan:
		if cfg.OnCodeReceived != nil {
			cfg.OnCodeReceived()
		}
	case err := <-errChan:
		return nil, err
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}

	return sess.CompleteSSO(ctx, cb.code, cb.state, cfg.RememberMe)
}

func callbackHandler(expectedState string, results chan<- callback, errs chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if errParam := query.Get("error"); errParam != "" {
			perr := &ProviderError{Code: errParam, Description: query.Get("error_description")}
			report(errs, perr)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `<html><body><h1>Sign-in Failed</h1><p>%s</p><p>You can close this window.</p></body></html>`,
				html.EscapeString(perr.Error()))
			return
		}

		state := query.Get("state")
		if expectedState != "" && state != expectedState {
			report(errs, ErrStateMismatch)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `<html><body><h1>Security Error</h1><p>State mismatch detected.</p></body></html>`)
			return
		}

		code := query.Get("code")
		if code == "" {
			report(errs, ErrNoCode)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>`)
			return
		}

		fmt.Fprint(w, `<html><body><h1>Sign-in Received</h1><p>You can close this window and return to the terminal.</p></body></html>`)
		select {
		case results <- callback{code: code, state: state}:
		default:
			log.Debug().Msg("Ignoring repeated SSO callback")
		}
	}
}

// report delivers err unless one is already pending.
func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func stateFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("state")
}
