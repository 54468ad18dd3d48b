// Package devapi is a self-contained backend for the /auth endpoints the
// admin console talks to. It keeps accounts and tokens in memory and is
// meant for local development and end-to-end tests.
package devapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/tasks"
	"github.com/mrlokans/campusadmin/internal/validation"
)

const (
	refreshTokenTTL    = 7 * 24 * time.Hour
	resetTokenTTL      = time.Hour
	verificationTTL    = 24 * time.Hour
	ssoStateTTL        = 10 * time.Minute
	ssoCodeTTL         = 2 * time.Minute
	idpSessionLifetime = 8 * time.Hour

	defaultSweepSchedule = "@every 1m"
	defaultRedirectURL   = "/dashboard"
)

// Config configures the dev API.
type Config struct {
	Users          []SeedUser // DefaultSeedUsers when nil
	BcryptCost     int
	JWTSecret      string
	AccessTokenTTL time.Duration
	SSORedirectURL string
	RedirectURL    string // Returned to clients after sign-in

	// DatabasePath holds identity provider sessions; the mail outbox lives
	// in a "-tasks" file next to it.
	DatabasePath string

	CSRFKey        []byte // CSRF protection of the sign-in page is off when nil
	TrustedOrigins []string
	SecureCookies  bool

	SweepSchedule string
	Tasks         tasks.Config
	RateLimit     RateLimitConfig
	Mailer        Mailer // LogMailer when nil

	// Registry receives the server metrics and is served on /metrics.
	Registry *prometheus.Registry
}

// Server is the dev API with its background workers.
type Server struct {
	router    *gin.Engine
	auth      *AuthHandler
	sessions  *IdPSessions
	sessionDB *sql.DB
	queue     *tasks.Client
	janitor   *Janitor

	stopQueue context.CancelFunc
}

// New wires the dev API. Call Start to run the mail outbox and the janitor
// and Close to release everything.
func New(cfg Config) (*Server, error) {
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("dev API database path is not set")
	}
	if cfg.Users == nil {
		cfg.Users = DefaultSeedUsers()
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = defaultSweepSchedule
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = defaultRedirectURL
	}
	if cfg.Mailer == nil {
		cfg.Mailer = LogMailer{}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	metrics := NewMetrics(registry)

	users, err := NewUserStore(cfg.Users, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}
	tokens, err := NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	sessionDB, err := sql.Open("sqlite3", cfg.DatabasePath+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open dev API database: %w", err)
	}
	sessions, err := NewIdPSessions(sessionDB, idpSessionLifetime, cfg.SecureCookies)
	if err != nil {
		sessionDB.Close()
		return nil, err
	}

	queue, err := tasks.NewClient(cfg.DatabasePath, cfg.Tasks)
	if err != nil {
		sessions.Close()
		sessionDB.Close()
		return nil, err
	}
	queue.Register(tasks.NewSendEmailQueue(cfg.Mailer))

	auth := &AuthHandler{
		users:          users,
		tokens:         tokens,
		refresh:        NewGrantStore(refreshTokenTTL),
		resets:         NewGrantStore(resetTokenTTL),
		verifications:  NewGrantStore(verificationTTL),
		ssoStates:      NewGrantStore(ssoStateTTL),
		ssoCodes:       NewGrantStore(ssoCodeTTL),
		limiter:        NewRateLimiter(cfg.RateLimit),
		validator:      validation.New(),
		mail:           NewOutbox(queue, metrics),
		metrics:        metrics,
		redirectURL:    cfg.RedirectURL,
		accessRequests: make(map[string]AccessRequest),
	}

	janitor := NewJanitor(cfg.SweepSchedule, map[string]Sweeper{
		"refresh_tokens": auth.refresh,
		"reset_tokens":   auth.resets,
		"verifications":  auth.verifications,
		"sso_states":     auth.ssoStates,
		"sso_codes":      auth.ssoCodes,
		"revoked_tokens": tokens,
		"rate_limits":    auth.limiter,
	}, metrics)

	s := &Server{
		auth:      auth,
		sessions:  sessions,
		sessionDB: sessionDB,
		queue:     queue,
		janitor:   janitor,
	}

	idp := &IdentityProvider{auth: auth, sessions: sessions, callbackURL: cfg.SSORedirectURL}
	s.router = newRouter(cfg, s, idp, metrics, registry)
	return s, nil
}

func newRouter(cfg Config, s *Server, idp *IdentityProvider, metrics *Metrics, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), SecurityHeadersMiddleware(), metrics.Middleware())

	router.GET("/health", s.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	h := s.auth
	api := router.Group("/api/auth")
	{
		api.POST("/signin", h.SignIn)
		api.GET("/sso/initiate", h.InitiateSSO)
		api.POST("/sso/callback", h.SSOCallback)
		api.POST("/forgot-password", h.ForgotPassword)
		api.POST("/reset-password", h.ResetPassword)
		api.POST("/refresh", h.Refresh)
		api.POST("/verify-email", h.VerifyEmail)
		api.POST("/request-access", h.RequestAccess)
	}

	protected := api.Group("", RequireBearer(h.tokens))
	{
		protected.POST("/signout", h.SignOut)
		protected.GET("/me", h.Me)
		protected.PUT("/profile", h.UpdateProfile)
	}

	authorize := router.Group(authorizePath)
	if cfg.CSRFKey != nil {
		authorize.Use(CSRFMiddleware(cfg.CSRFKey, cfg.SecureCookies, cfg.TrustedOrigins))
	} else {
		log.Warn().Msg("CSRF protection of the SSO sign-in page is disabled")
	}
	authorize.Use(idp.sessions.LoadSave())
	{
		authorize.GET("", idp.Authorize)
		authorize.POST("", idp.SignIn)
	}

	return router
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AccessRequests returns the pending access requests.
func (s *Server) AccessRequests() []AccessRequest {
	return s.auth.AccessRequests()
}

// Start runs the mail outbox workers and the janitor.
func (s *Server) Start(ctx context.Context) error {
	if err := s.janitor.Start(); err != nil {
		return err
	}
	queueCtx, cancel := context.WithCancel(ctx)
	s.stopQueue = cancel
	go s.queue.Start(queueCtx)
	return nil
}

// Close stops the background workers, waiting for in-flight mail until ctx
// is done, and closes the databases.
func (s *Server) Close(ctx context.Context) error {
	s.janitor.Stop()
	if s.stopQueue != nil {
		s.queue.Stop(ctx)
		s.stopQueue()
	}
	s.sessions.Close()

	if err := s.queue.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing task database")
	}
	return s.sessionDB.Close()
}
