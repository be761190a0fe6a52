package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/policy"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	VoterTokenCookie   = "voter_token"
	VoterTokenHeader   = "X-Voter-Token"

	voterTokenKey     = "voter_token"
	refreshCookieLife = 3600 * 24 * 30
	voterCookieLife   = 3600 * 24 * 365
)

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		requestID, _ := c.Get("request_id")
		status := c.Writer.Status()

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "HTTP Request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// ErrorHandler logs errors attached with c.Error and answers with a generic
// message if the handler did not write a response itself.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		requestID, _ := c.Get("request_id")

		logger.Error("Request error",
			"request_id", requestID,
			"error", err.Error(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		if !c.Writer.Written() {
			resp := models.ErrorResponse("Ein unerwarteter Fehler ist aufgetreten. Bitte versuchen Sie es später erneut.")
			resp.RequestID, _ = requestID.(string)
			c.JSON(http.StatusInternalServerError, resp)
		}
	}
}

// Deadline bounds the whole request, including every backend call made with
// the request context.
func Deadline(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TokenValidator verifies an access token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*helpers.CustomClaims, error)
}

// SessionService is what the auth middleware needs from the user service.
type SessionService interface {
	RefreshToken(ctx context.Context, refreshToken string) (interface{}, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware rejects requests without a valid session.
func AuthMiddleware(validator TokenValidator, sessions SessionService, secureCookies bool, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c, validator, sessions, secureCookies, logger)
		if err != nil {
			logger.Debug("authentication failed", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("Bitte melden Sie sich an."))
			return
		}
		c.Set(helpers.ClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches the session when there is one and lets guests through.
func OptionalAuth(validator TokenValidator, sessions SessionService, secureCookies bool, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if accessToken(c) != "" || hasCookie(c, RefreshTokenCookie) {
			claims, err := authenticate(c, validator, sessions, secureCookies, logger)
			if err == nil {
				c.Set(helpers.ClaimsKey, claims)
			} else {
				logger.Debug("optional auth ignored invalid session", "error", err)
			}
		}
		c.Next()
	}
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errNoToken       = authError("access token not found")
	errRefreshFailed = authError("token expired and refresh failed")
)

func accessToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	token, err := c.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return token
}

func hasCookie(c *gin.Context, name string) bool {
	v, err := c.Cookie(name)
	return err == nil && v != ""
}

// authenticate validates the access token, refreshing it with the refresh
// cookie when it is missing or expired, and loads the profile row.
func authenticate(c *gin.Context, validator TokenValidator, sessions SessionService, secureCookies bool, logger *slog.Logger) (*helpers.EnhancedClaims, error) {
	token := accessToken(c)
	var claims *helpers.CustomClaims
	var err error
	if token != "" {
		claims, err = validator.Validate(token)
	} else {
		err = errNoToken
	}

	if err != nil {
		refreshToken, refreshErr := c.Cookie(RefreshTokenCookie)
		if refreshErr != nil || refreshToken == "" {
			return nil, err
		}

		refreshResponse, refreshErr := sessions.RefreshToken(c.Request.Context(), refreshToken)
		if refreshErr != nil {
			logger.Warn("Token refresh failed", "error", refreshErr)
			return nil, errRefreshFailed
		}
		tokenRes, ok := refreshResponse.(*types.TokenResponse)
		if !ok || tokenRes.AccessToken == "" {
			return nil, authError("invalid refresh response")
		}

		logger.Info("Token refreshed successfully",
			"user_id", tokenRes.User.ID,
			"expires_in", tokenRes.ExpiresIn,
		)
		SetSessionCookies(c, tokenRes.AccessToken, tokenRes.ExpiresIn, tokenRes.RefreshToken, secureCookies)

		token = tokenRes.AccessToken
		claims, err = validator.Validate(token)
		if err != nil {
			return nil, authError("refreshed token validation failed")
		}
	}

	ctx := models.WithAccessToken(c.Request.Context(), token)
	c.Request = c.Request.WithContext(ctx)

	enhanced := &helpers.EnhancedClaims{
		CustomClaims: claims,
		Role:         policy.RoleGuest,
		UserID:       claims.Subject,
		Email:        strings.ToLower(claims.Email),
		AccessToken:  token,
	}

	userID, parseErr := uuid.Parse(claims.Subject)
	if parseErr != nil {
		logger.Error("Invalid user ID in token", "user_id", claims.Subject, "error", parseErr)
		return enhanced, nil
	}
	user, err := sessions.GetUser(ctx, userID)
	if err != nil {
		logger.Info("Profile not found, using default role",
			"user_id", claims.Subject,
			"error", err,
		)
		return enhanced, nil
	}
	if user.Role != "" {
		enhanced.Role = user.Role
	}
	enhanced.Username = user.Username
	enhanced.Fullname = user.FullName
	enhanced.PhoneNumber = user.PhoneNumber
	enhanced.CreatedAt = user.CreatedAt.Format(time.RFC3339)
	return enhanced, nil
}

// SetSessionCookies stores the token pair as http-only cookies.
func SetSessionCookies(c *gin.Context, accessToken string, expiresIn int, refreshToken string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, accessToken, expiresIn, "/", "", secure, true)
	if refreshToken != "" {
		c.SetCookie(RefreshTokenCookie, refreshToken, refreshCookieLife, "/", "", secure, true)
	}
}

func ClearSessionCookies(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", secure, true)
}

// RequireAccess guards a route with the access policy. Anonymous callers get
// 401 so the frontend can send them to the login page; others get 403.
func RequireAccess(pol *policy.Policy, res policy.Resource, act policy.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := helpers.PrincipalFrom(c)
		d := pol.CanAccess(principal, res, act)
		if d.Allowed {
			c.Next()
			return
		}
		status := http.StatusForbidden
		if !principal.Authenticated() {
			status = http.StatusUnauthorized
		}
		c.AbortWithStatusJSON(status, models.ErrorResponse(d.Reason))
	}
}

// VoterToken resolves the anonymous voter id from the header or cookie and
// issues a fresh one when neither holds a usable token.
func VoterToken(secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(VoterTokenHeader))
		if !models.ValidVoterToken(token) {
			token, _ = c.Cookie(VoterTokenCookie)
		}
		if !models.ValidVoterToken(token) {
			token = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(VoterTokenCookie, token, voterCookieLife, "/", "", secureCookies, true)
		}
		c.Set(voterTokenKey, token)
		c.Header(VoterTokenHeader, token)
		c.Next()
	}
}

func VoterTokenFrom(c *gin.Context) string {
	return c.GetString(voterTokenKey)
}
