package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/apiclient"
	"github.com/mrlokans/campusadmin/internal/authapi"
	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/navigation"
	"github.com/mrlokans/campusadmin/internal/session"
	"github.com/mrlokans/campusadmin/internal/tokenstore"
)

// SetupLogging points the global logger at stderr in console format.
func SetupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// Stack is everything a command needs to talk to the backend: one token
// store, one navigator and one session controller per process.
type Stack struct {
	Store      *tokenstore.TokenStore
	Tracker    *navigation.Tracker
	Service    *authapi.Service
	Controller *session.Controller
	Metrics    *apiclient.Metrics
}

// OpenStack wires the session controller the way every command uses it.
// A 401 anywhere redirects the tracker, which expires the controller.
func OpenStack(cfg *config.Config) (*Stack, error) {
	store, err := tokenstore.Open(tokenstore.Config{
		DatabasePath:  cfg.TokenStore.DatabasePath,
		EncryptionKey: cfg.TokenStore.EncryptionKey,
		KeyFilePath:   cfg.TokenStore.KeyFilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	s := &Stack{Store: store, Metrics: apiclient.NewMetrics(prometheus.NewRegistry())}
	s.Tracker = navigation.NewTracker(cfg.Routes.Dashboard, func(route string) {
		log.Debug().Str("route", route).Msg("Redirected after unauthorized response")
		if s.Controller != nil {
			s.Controller.Expire()
		}
	})

	client := apiclient.New(cfg.API.BaseURL, store, s.Tracker,
		apiclient.WithTimeout(cfg.API.RequestTimeout),
		apiclient.WithSignInRoute(cfg.Routes.SignIn),
		apiclient.WithMetrics(s.Metrics),
	)
	s.Service = authapi.NewService(client)
	s.Controller = session.NewController(s.Service, store)
	return s, nil
}

// Close releases the token store.
func (s *Stack) Close() error {
	return s.Store.Close()
}

// withStack opens a stack, restores any stored session and runs fn.
func withStack(cfg *config.Config, fn func(*Stack) error) error {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	s, err := OpenStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func outOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
