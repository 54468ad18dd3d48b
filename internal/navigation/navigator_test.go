package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	var seen []string
	tr := NewTracker("/dashboard", func(route string) { seen = append(seen, route) })

	assert.Equal(t, "/dashboard", tr.Location())

	tr.Navigate("/dashboard/news")
	assert.Equal(t, "/dashboard/news", tr.Location())
	assert.Equal(t, 0, tr.Redirects())

	tr.RedirectTo("/signin")
	assert.Equal(t, "/signin", tr.Location())
	assert.Equal(t, 1, tr.Redirects())
	assert.Equal(t, []string{"/signin"}, seen)
}

func TestTracker_NilCallback(t *testing.T) {
	tr := NewTracker("/", nil)
	tr.RedirectTo("/signin")
	assert.Equal(t, 1, tr.Redirects())
}
