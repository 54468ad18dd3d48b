// Package navigation models where the user currently is and lets the core
// send them elsewhere, e.g. back to sign-in after a 401.
package navigation

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Navigator is the capability the API client needs to force a sign-in.
type Navigator interface {
	Location() string
	RedirectTo(route string)
}

// Tracker is an in-process Navigator. It records the current route and
// reports every redirect to an optional callback.
type Tracker struct {
	mu         sync.Mutex
	location   string
	redirects  int
	onRedirect func(route string)
}

// NewTracker starts at the given route.
func NewTracker(start string, onRedirect func(route string)) *Tracker {
	return &Tracker{location: start, onRedirect: onRedirect}
}

func (t *Tracker) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

// Navigate moves to route without counting it as a forced redirect.
func (t *Tracker) Navigate(route string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = route
}

func (t *Tracker) RedirectTo(route string) {
	t.mu.Lock()
	t.location = route
	t.redirects++
	cb := t.onRedirect
	t.mu.Unlock()

	log.Debug().Str("route", route).Msg("Redirecting")
	if cb != nil {
		cb(route)
	}
}

// Redirects returns how many times RedirectTo was called.
func (t *Tracker) Redirects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.redirects
}
