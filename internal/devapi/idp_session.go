package devapi

import (
	"bufio"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionKeyUserID = "idp_user_id"

// IdPSessions remembers who signed in at the identity provider page, so a
// second SSO round trip from the same browser skips the form.
type IdPSessions struct {
	*scs.SessionManager
	store *sqlite3store.SQLite3Store
}

// NewIdPSessions creates a session manager backed by the sessions table in db.
func NewIdPSessions(db *sql.DB, lifetime time.Duration, secure bool) (*IdPSessions, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	store := sqlite3store.New(db)
	sm := scs.New()
	sm.Store = store
	sm.Lifetime = lifetime
	sm.IdleTimeout = lifetime / 2

	sm.Cookie.Name = "idp_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = secure
	// Lax, since the browser arrives here by a top-level redirect from the app
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/api/auth/sso"

	return &IdPSessions{SessionManager: sm, store: store}, nil
}

// Close stops the store's background cleanup of expired sessions.
func (s *IdPSessions) Close() {
	s.store.StopCleanup()
}

// SignIn binds the browser session to userID under a fresh token.
func (s *IdPSessions) SignIn(r *http.Request, userID string) error {
	if err := s.RenewToken(r.Context()); err != nil {
		return err
	}
	s.Put(r.Context(), sessionKeyUserID, userID)
	return nil
}

// UserID returns the signed-in user, or "" when there is none.
func (s *IdPSessions) UserID(r *http.Request) string {
	return s.GetString(r.Context(), sessionKeyUserID)
}

// sessionResponseWriter commits the session and sets its cookie right
// before the response header goes out.
type sessionResponseWriter struct {
	gin.ResponseWriter
	sessions  *IdPSessions
	request   *http.Request
	committed bool
}

func (w *sessionResponseWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true

	ctx := w.request.Context()
	switch w.sessions.Status(ctx) {
	case scs.Modified:
		token, expiry, err := w.sessions.Commit(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to commit identity provider session")
			return
		}
		w.sessions.WriteSessionCookie(ctx, w.ResponseWriter, token, expiry)
	case scs.Destroyed:
		w.sessions.WriteSessionCookie(ctx, w.ResponseWriter, "", time.Time{})
	}
}

func (w *sessionResponseWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionResponseWriter) WriteHeaderNow() {
	w.commit()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionResponseWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionResponseWriter) WriteString(s string) (int, error) {
	w.commit()
	return w.ResponseWriter.WriteString(s)
}

func (w *sessionResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}

// LoadSave loads the session into the request context and saves it when the
// handler modified it. It must run before any session access.
func (s *IdPSessions) LoadSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if cookie, err := c.Request.Cookie(s.Cookie.Name); err == nil {
			token = cookie.Value
		}

		ctx, err := s.Load(c.Request.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load identity provider session")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Request = c.Request.WithContext(ctx)

		srw := &sessionResponseWriter{ResponseWriter: c.Writer, sessions: s, request: c.Request}
		c.Writer = srw

		c.Next()
		srw.commit()
	}
}
