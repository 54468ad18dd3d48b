package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		API
		TokenStore
		Routes
		SSO
		Logging
		DevAPI
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	API struct {
		BaseURL        string
		RequestTimeout time.Duration
	}
	TokenStore struct {
		DatabasePath  string
		EncryptionKey string // base64-encoded 32-byte key, optional
		KeyFilePath   string // falls back to ~/.campusadmin-token-key
	}
	Routes struct {
		SignIn    string // Where a 401 sends the user
		Dashboard string // Landing route after sign-in when the backend gives none
	}
	SSO struct {
		CallbackPort int
		Timeout      time.Duration
	}
	Logging struct {
		Level string
	}
	DevAPI struct {
		JWTSecret      string        // Generated per process if empty
		AccessTokenTTL time.Duration // Lifetime of issued access tokens
		SSORedirectURL string        // Where the fake identity provider sends the browser
		BcryptCost     int
		DatabasePath   string // SQLite file for identity provider sessions
		CSRFSecret     string // Generated per process if empty
		SecureCookies  bool
		SweepSchedule  string // Cron schedule for expiring grants and rate limit records
	}
	Tasks struct {
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 3000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)

	v.SetDefault("api_base_url", DefaultAPIBaseURL)
	v.SetDefault("request_timeout", "30s")

	v.SetDefault("token_database_path", DefaultTokenDatabasePath)
	v.SetDefault("token_encryption_key", "")
	v.SetDefault("token_key_file", "")

	v.SetDefault("signin_route", DefaultSignInRoute)
	v.SetDefault("dashboard_route", DefaultDashboardRoute)

	v.SetDefault("sso_callback_port", 8089)
	v.SetDefault("sso_timeout", "5m")

	v.SetDefault("log_level", "info")

	// Dev API defaults
	v.SetDefault("devapi_jwt_secret", "")
	v.SetDefault("devapi_access_ttl", "15m")
	v.SetDefault("devapi_sso_redirect_url", "http://localhost:8089/callback")
	v.SetDefault("devapi_bcrypt_cost", 10)
	v.SetDefault("devapi_database_path", DefaultDevAPIDatabasePath)
	v.SetDefault("devapi_csrf_secret", "")
	v.SetDefault("devapi_secure_cookies", false)
	v.SetDefault("devapi_sweep_schedule", "@every 1m")

	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		API: API{
			BaseURL:        v.GetString("API_BASE_URL"),
			RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		},
		TokenStore: TokenStore{
			DatabasePath:  v.GetString("TOKEN_DATABASE_PATH"),
			EncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
			KeyFilePath:   v.GetString("TOKEN_KEY_FILE"),
		},
		Routes: Routes{
			SignIn:    v.GetString("SIGNIN_ROUTE"),
			Dashboard: v.GetString("DASHBOARD_ROUTE"),
		},
		SSO: SSO{
			CallbackPort: v.GetInt("SSO_CALLBACK_PORT"),
			Timeout:      v.GetDuration("SSO_TIMEOUT"),
		},
		Logging: Logging{
			Level: v.GetString("LOG_LEVEL"),
		},
		DevAPI: DevAPI{
			JWTSecret:      v.GetString("DEVAPI_JWT_SECRET"),
			AccessTokenTTL: v.GetDuration("DEVAPI_ACCESS_TTL"),
			SSORedirectURL: v.GetString("DEVAPI_SSO_REDIRECT_URL"),
			BcryptCost:     v.GetInt("DEVAPI_BCRYPT_COST"),
			DatabasePath:   v.GetString("DEVAPI_DATABASE_PATH"),
			CSRFSecret:     v.GetString("DEVAPI_CSRF_SECRET"),
			SecureCookies:  v.GetBool("DEVAPI_SECURE_COOKIES"),
			SweepSchedule:  v.GetString("DEVAPI_SWEEP_SCHEDULE"),
		},
		Tasks: Tasks{
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
	}
}
