package devapi

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"
)

const authorizePath = "/api/auth/sso/authorize"

var authorizeTemplate = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html>
<head><title>Campus Sign-in</title></head>
<body style="font-family: system-ui; max-width: 360px; margin: 80px auto;">
<h1>Campus Sign-in</h1>
{{if .Error}}<p style="color: #b00020;">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
{{.CSRFField}}
<input type="hidden" name="state" value="{{.State}}">
<p><label>Email or User ID<br><input name="identifier" value="{{.Identifier}}" autofocus></label></p>
<p><label>Password<br><input name="password" type="password"></label></p>
<p><button type="submit">Sign in</button></p>
</form>
</body>
</html>
`))

type authorizePage struct {
	Action     string
	State      string
	Identifier string
	Error      string
	CSRFField  template.HTML
}

// IdentityProvider is the browser-facing sign-in page that SSO initiation
// points at. It plays the role of the campus identity provider.
type IdentityProvider struct {
	auth        *AuthHandler
	sessions    *IdPSessions
	callbackURL string
}

// Authorize handles GET /auth/sso/authorize. A browser that already signed
// in here is sent straight back with a code.
func (p *IdentityProvider) Authorize(c *gin.Context) {
	state := c.Query("state")
	if _, _, err := p.auth.ssoStates.Peek(state); err != nil {
		p.renderError(c, http.StatusBadRequest, "This sign-in link is invalid or has expired. Start again from the admin console.")
		return
	}

	if userID := p.sessions.UserID(c.Request); userID != "" {
		if _, err := p.auth.users.Get(userID); err == nil {
			log.Debug().Str("user_id", userID).Msg("Reusing identity provider session")
			p.complete(c, userID, state, http.StatusFound)
			return
		}
	}

	p.render(c, http.StatusOK, authorizePage{State: state})
}

// SignIn handles POST /auth/sso/authorize.
func (p *IdentityProvider) SignIn(c *gin.Context) {
	state := c.PostForm("state")
	if _, _, err := p.auth.ssoStates.Peek(state); err != nil {
		p.renderError(c, http.StatusBadRequest, "This sign-in link is invalid or has expired. Start again from the admin console.")
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(c.PostForm("identifier")))
	page := authorizePage{State: state, Identifier: identifier}
	if identifier == "" || c.PostForm("password") == "" {
		page.Error = msgMissingCredentials
		p.render(c, http.StatusBadRequest, page)
		return
	}

	ip := c.ClientIP()
	if allowed, retryAfter := p.auth.limiter.Allow(ip, identifier); !allowed {
		p.auth.metrics.signIn("sso", "rate_limited")
		c.Header("Retry-After", retryAfterSeconds(retryAfter))
		page.Error = msgTooManyAttempts
		p.render(c, http.StatusTooManyRequests, page)
		return
	}

	u, err := p.auth.users.Authenticate(identifier, c.PostForm("password"))
	if err != nil {
		p.auth.limiter.RecordFailure(ip, identifier)
		p.auth.metrics.signIn("sso", "rejected")
		page.Error = msgInvalidCredentials
		p.render(c, http.StatusUnauthorized, page)
		return
	}
	p.auth.limiter.RecordSuccess(ip, identifier)

	if err := p.sessions.SignIn(c.Request, u.ID); err != nil {
		log.Error().Err(err).Msg("Failed to renew identity provider session")
		p.renderError(c, http.StatusInternalServerError, "Sign-in failed. Please try again.")
		return
	}

	p.complete(c, u.ID, state, http.StatusSeeOther)
}

// complete consumes the state and sends the browser to the callback URL
// with a one-time code bound to that state.
func (p *IdentityProvider) complete(c *gin.Context, userID, state string, status int) {
	if _, _, err := p.auth.ssoStates.Redeem(state); err != nil {
		p.renderError(c, http.StatusBadRequest, "This sign-in link has already been used.")
		return
	}
	code := p.auth.ssoCodes.Issue(userID, state)

	target, err := url.Parse(p.callbackURL)
	if err != nil {
		log.Error().Err(err).Str("url", p.callbackURL).Msg("Invalid SSO redirect URL")
		p.renderError(c, http.StatusInternalServerError, "Single sign-on is misconfigured.")
		return
	}
	q := target.Query()
	q.Set("code", code)
	q.Set("state", state)
	target.RawQuery = q.Encode()

	c.Redirect(status, target.String())
}

func (p *IdentityProvider) render(c *gin.Context, status int, page authorizePage) {
	page.Action = authorizePath
	page.CSRFField = csrf.TemplateField(c.Request)

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := authorizeTemplate.Execute(c.Writer, page); err != nil {
		log.Error().Err(err).Msg("Failed to render sign-in page")
	}
}

func (p *IdentityProvider) renderError(c *gin.Context, status int, message string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(status, "<!DOCTYPE html><html><body style=\"font-family: system-ui; max-width: 360px; margin: 80px auto;\"><h1>Sign-in unavailable</h1><p>%s</p></body></html>", template.HTMLEscapeString(message))
}
