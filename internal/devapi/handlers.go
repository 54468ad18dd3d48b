package devapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/entities"
	"github.com/mrlokans/campusadmin/internal/tasks"
	"github.com/mrlokans/campusadmin/internal/validation"
)

// Messages returned to clients
const (
	msgInvalidCredentials = "Invalid credentials"
	msgMissingCredentials = "Email or User ID and password are required"
	msgTooManyAttempts    = "Too many sign-in attempts. Please try again later."
	msgInvalidBody        = "Invalid request body"
	msgResetSent          = "If an account exists for that email, a reset link has been sent."
)

// MailQueue accepts mail for later delivery.
type MailQueue interface {
	Enqueue(email tasks.Email) error
}

// AccessRequest is a pending request for an account.
type AccessRequest struct {
	ID          string
	Identifier  string
	FullName    string
	Phone       string
	Website     string
	RequestedAt time.Time
}

// accessRequestBody is what the access request form posts. The password is
// checked against the policy and then dropped.
type accessRequestBody struct {
	Identifier string `json:"identifier" validate:"notblank,useremail,userid"`
	Password   string `json:"password" validate:"required,passwordpolicy"`
	FullName   string `json:"fullName" validate:"omitempty,max=100"`
	Phone      string `json:"phone" validate:"omitempty,phone"`
	Website    string `json:"website" validate:"omitempty,url"`
}

func (accessRequestBody) ValidationMessages() map[string]string {
	return map[string]string{
		"identifier.notblank":     "Email or User ID is required",
		"identifier.useremail":    "Please enter a valid email address",
		"password.required":       "Password is required",
		"password.passwordpolicy": "Password must correspond to the requirement",
	}
}

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	users         *UserStore
	tokens        *TokenIssuer
	refresh       *GrantStore
	resets        *GrantStore
	verifications *GrantStore
	ssoStates     *GrantStore
	ssoCodes      *GrantStore
	limiter       *RateLimiter
	validator     *validation.Validator
	mail          MailQueue
	metrics       *Metrics
	redirectURL   string

	mu             sync.Mutex
	accessRequests map[string]AccessRequest
}

func (h *AuthHandler) issueSession(c *gin.Context, u *User) (*entities.AuthResponse, bool) {
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", u.ID).Msg("Failed to issue access token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create session"})
		return nil, false
	}
	return &entities.AuthResponse{
		User:         u.Profile(),
		Token:        token,
		RefreshToken: h.refresh.Issue(u.ID, ""),
		RedirectURL:  h.redirectURL,
	}, true
}

// SignIn handles POST /auth/signin.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var creds entities.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return
	}
	identifier := strings.ToLower(strings.TrimSpace(creds.Identifier))
	if identifier == "" || creds.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgMissingCredentials})
		return
	}

	ip := c.ClientIP()
	if allowed, retryAfter := h.limiter.Allow(ip, identifier); !allowed {
		h.metrics.signIn("password", "rate_limited")
		c.Header("Retry-After", retryAfterSeconds(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{"message": msgTooManyAttempts})
		return
	}

	u, err := h.users.Authenticate(identifier, creds.Password)
	if err != nil {
		if locked, _ := h.limiter.RecordFailure(ip, identifier); locked {
			log.Warn().Str("ip", ip).Str("identifier", identifier).Msg("Sign-in locked out after repeated failures")
		}
		h.metrics.signIn("password", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidCredentials})
		return
	}
	h.limiter.RecordSuccess(ip, identifier)

	resp, ok := h.issueSession(c, u)
	if !ok {
		return
	}
	h.metrics.signIn("password", "ok")
	log.Info().Str("user_id", u.ID).Bool("remember_me", creds.RememberMe).Msg("User signed in")
	c.JSON(http.StatusOK, resp)
}

// InitiateSSO handles GET /auth/sso/initiate.
func (h *AuthHandler) InitiateSSO(c *gin.Context) {
	state := h.ssoStates.Issue("", "")
	c.JSON(http.StatusOK, entities.SSOInitiation{
		SSOURL: externalBaseURL(c) + authorizePath + "?state=" + state,
	})
}

// SSOCallback handles POST /auth/sso/callback.
func (h *AuthHandler) SSOCallback(c *gin.Context) {
	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing SSO code"})
		return
	}

	userID, state, err := h.ssoCodes.Redeem(body.Code)
	if err != nil {
		h.metrics.signIn("sso", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired SSO code"})
		return
	}
	if state != body.State {
		h.metrics.signIn("sso", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"message": "SSO state mismatch"})
		return
	}

	u, err := h.users.Get(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired SSO code"})
		return
	}

	resp, ok := h.issueSession(c, u)
	if !ok {
		return
	}
	h.metrics.signIn("sso", "ok")
	log.Info().Str("user_id", u.ID).Msg("User signed in with SSO")
	c.JSON(http.StatusOK, resp)
}

// SignOut handles POST /auth/signout. It revokes the presented access token
// and every refresh token of the user.
func (h *AuthHandler) SignOut(c *gin.Context) {
	userID := GetUserID(c)
	if claims := GetClaims(c); claims != nil {
		h.tokens.Revoke(claims)
	}
	revoked := h.refresh.RevokeUser(userID)

	log.Info().Str("user_id", userID).Int("refresh_tokens", revoked).Msg("User signed out")
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// ForgotPassword handles POST /auth/forgot-password. The answer does not
// depend on whether the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return
	}
	email := strings.TrimSpace(body.Email)
	if !validation.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid email format"})
		return
	}

	u, err := h.users.FindByIdentifier(email)
	if err == nil {
		token := h.resets.Issue(u.ID, "")
		if err := h.mail.Enqueue(passwordResetMail(u.Email, token)); err != nil {
			log.Error().Err(err).Str("user_id", u.ID).Msg("Failed to queue password reset mail")
		}
	} else {
		log.Debug().Str("email", email).Msg("Password reset requested for unknown email")
	}

	c.JSON(http.StatusOK, gin.H{"message": msgResetSent})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Reset token is required"})
		return
	}
	if !validation.CheckPassword(body.NewPassword).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Password does not meet requirements"})
		return
	}

	userID, _, err := h.resets.Redeem(body.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired reset token"})
		return
	}
	if err := h.users.SetPassword(userID, body.NewPassword); err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Password is too long"})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to reset password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to reset password"})
		return
	}
	h.refresh.RevokeUser(userID)

	log.Info().Str("user_id", userID).Msg("Password reset")
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}

// Refresh handles POST /auth/refresh. The refresh token is single use; a
// new one is returned with the new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Refresh token is required"})
		return
	}

	userID, _, err := h.refresh.Redeem(body.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token"})
		return
	}
	if _, err := h.users.Get(userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token"})
		return
	}

	token, err := h.tokens.Issue(userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to issue access token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to refresh session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":        token,
		"refreshToken": h.refresh.Issue(userID, ""),
	})
}

// VerifyEmail handles POST /auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Verification token is required"})
		return
	}

	userID, email, err := h.verifications.Redeem(body.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired verification token"})
		return
	}
	u, err := h.users.Get(userID)
	if err != nil || !strings.EqualFold(u.Email, email) {
		// the address changed again after the mail went out
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired verification token"})
		return
	}
	if err := h.users.MarkVerified(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired verification token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
}

// RequestAccess handles POST /auth/request-access.
func (h *AuthHandler) RequestAccess(c *gin.Context) {
	var body accessRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return
	}
	if err := h.validator.Struct(body); err != nil {
		var errs validation.Errors
		if errors.As(err, &errs) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "errors": errs})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return
	}

	identifier := strings.TrimSpace(body.Identifier)
	if _, err := h.users.FindByIdentifier(identifier); err == nil {
		c.JSON(http.StatusConflict, gin.H{"message": "An account already exists for this identifier"})
		return
	}

	req := AccessRequest{
		ID:          uuid.New().String(),
		Identifier:  identifier,
		FullName:    body.FullName,
		Phone:       body.Phone,
		Website:     body.Website,
		RequestedAt: time.Now(),
	}
	h.mu.Lock()
	h.accessRequests[req.ID] = req
	h.mu.Unlock()

	if validation.IsValidEmail(identifier) {
		if err := h.mail.Enqueue(accessRequestMail(identifier, req.ID)); err != nil {
			log.Error().Err(err).Str("request_id", req.ID).Msg("Failed to queue access request mail")
		}
	}

	log.Info().Str("request_id", req.ID).Str("identifier", identifier).Msg("Access requested")
	c.JSON(http.StatusAccepted, gin.H{"message": "Access request submitted", "requestId": req.ID})
}

// AccessRequests returns the pending access requests.
func (h *AuthHandler) AccessRequests() []AccessRequest {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]AccessRequest, 0, len(h.accessRequests))
	for _, r := range h.accessRequests {
		out = append(out, r)
	}
	return out
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.users.Get(GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Account no longer exists"})
		return
	}
	c.JSON(http.StatusOK, u.Profile())
}

// UpdateProfile handles PUT /auth/profile. Only the fields present in the
// body change. A new email address must be verified again.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var upd ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return
	}
	if upd.Email != nil && strings.TrimSpace(*upd.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Validation failed",
			"errors":  validation.Errors{"email": "This field is required"},
		})
		return
	}
	if err := h.validator.Struct(upd.form()); err != nil {
		var errs validation.Errors
		if errors.As(err, &errs) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "errors": errs})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return
	}

	userID := GetUserID(c)
	before, err := h.users.Get(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Account no longer exists"})
		return
	}

	u, err := h.users.UpdateProfile(userID, upd)
	if errors.Is(err, ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already in use"})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Account no longer exists"})
		return
	}

	if !strings.EqualFold(before.Email, u.Email) {
		token := h.verifications.Issue(u.ID, u.Email)
		if err := h.mail.Enqueue(verificationMail(u.Email, token)); err != nil {
			log.Error().Err(err).Str("user_id", u.ID).Msg("Failed to queue verification mail")
		}
	}

	c.JSON(http.StatusOK, u.Profile())
}

// form maps the update onto the profile form for validation.
func (upd ProfileUpdate) form() validation.ProfileForm {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return validation.ProfileForm{
		FirstName: deref(upd.FirstName),
		LastName:  deref(upd.LastName),
		Email:     deref(upd.Email),
		Phone:     deref(upd.Phone),
	}
}

// externalBaseURL is the scheme and host the client used to reach us.
func externalBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
