package config

const (
	// DefaultAPIBaseURL is used when API_BASE_URL is unset
	DefaultAPIBaseURL = "http://localhost:3000/api"

	// DefaultTokenDatabasePath is the SQLite file backing the durable token scope
	DefaultTokenDatabasePath = "./campusadmin.db"

	// DefaultDevAPIDatabasePath holds the dev API's identity provider sessions.
	// Its task queue lives next to it in a "-tasks" file.
	DefaultDevAPIDatabasePath = "./campusadmin-devapi.db"

	DefaultSignInRoute    = "/signin"
	DefaultDashboardRoute = "/dashboard"
)
