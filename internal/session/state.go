package session

import "github.com/mrlokans/campusadmin/internal/entities"

// State is the phase of the session lifecycle.
type State int

const (
	StateUnknown State = iota
	StateAuthenticating
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}

// Snapshot is a consistent view of the session at one point in time.
type Snapshot struct {
	State           State
	User            entities.UserProfile
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}
