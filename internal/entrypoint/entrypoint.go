package entrypoint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/config"
	"github.com/mrlokans/campusadmin/internal/devapi"
	"github.com/mrlokans/campusadmin/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs handler until SIGINT or SIGTERM, then shuts down gracefully.
func Serve(handler http.Handler, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting dev API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// kill -2 is SIGINT, plain kill sends SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Dur("timeout", timeout).Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown")
	}

	// Background workers go last so in-flight requests can still enqueue mail
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Info().Msg("Server exiting")
}

// Run starts the dev API with the given config and blocks until shutdown.
func Run(cfg *config.Config, version string) {
	log.Info().Str("version", version).Msg("Starting campusadmin dev API")

	if gin.Mode() != gin.TestMode && cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := devapi.New(DevAPIConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize dev API")
	}

	if err := srv.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background workers")
	}

	Serve(srv.Handler(), cfg, func(ctx context.Context) {
		if err := srv.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing dev API")
		}
	})
}

// DevAPIConfig translates the process configuration into the dev API's own.
func DevAPIConfig(cfg *config.Config) devapi.Config {
	return devapi.Config{
		BcryptCost:     cfg.DevAPI.BcryptCost,
		JWTSecret:      cfg.DevAPI.JWTSecret,
		AccessTokenTTL: cfg.DevAPI.AccessTokenTTL,
		SSORedirectURL: cfg.DevAPI.SSORedirectURL,
		RedirectURL:    cfg.Routes.Dashboard,
		DatabasePath:   cfg.DevAPI.DatabasePath,
		CSRFKey:        csrfKey(cfg.DevAPI.CSRFSecret),
		TrustedOrigins: trustedOrigins(cfg),
		SecureCookies:  cfg.DevAPI.SecureCookies,
		SweepSchedule:  cfg.DevAPI.SweepSchedule,
		Tasks: tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		},
	}
}

// csrfKey decodes a hex secret, falls back to the raw bytes, and generates a
// per-process key when none is configured.
func csrfKey(secret string) []byte {
	if secret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			log.Fatal().Err(err).Msg("Failed to generate CSRF key")
		}
		log.Warn().Msg("DEVAPI_CSRF_SECRET is not set, generated a per-process key")
		return key
	}
	if key, err := hex.DecodeString(secret); err == nil && len(key) == 32 {
		return key
	}
	return []byte(secret)
}

func trustedOrigins(cfg *config.Config) []string {
	origins := []string{
		fmt.Sprintf("localhost:%d", cfg.HTTP.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.HTTP.Port),
	}
	if cfg.HTTP.Host != "" && cfg.HTTP.Host != "0.0.0.0" {
		origins = append(origins, fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port))
	}
	return origins
}
