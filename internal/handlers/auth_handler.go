package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/middleware"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/policy"
	"github.com/vereinsheim/portal/internal/services"
)

func Signup(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user models.User
		if err := c.ShouldBindJSON(&user); err != nil {
			badRequest(c, msgBadPayload)
			return
		}

		created, err := u.CreateUser(c.Request.Context(), &user)
		if err != nil {
			if strings.Contains(err.Error(), "user already exists") {
				c.JSON(http.StatusConflict, models.FieldErrorResponse("email", "Diese E-Mail-Adresse ist bereits registriert."))
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Registrierung erfolgreich. Bitte bestätigen Sie Ihre E-Mail-Adresse."))
	}
}

func Login(u *services.UserService, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Bitte geben Sie E-Mail-Adresse und Passwort ein.")
			return
		}

		authResponse, err := u.AuthenticateUser(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if models.IsValidation(err) {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("E-Mail-Adresse oder Passwort ist falsch."))
			return
		}

		tokenRes, ok := authResponse.(*types.TokenResponse)
		if !ok || tokenRes.AccessToken == "" {
			respondError(c, errInvalidTokenResponse)
			return
		}
		middleware.SetSessionCookies(c, tokenRes.AccessToken, tokenRes.ExpiresIn, tokenRes.RefreshToken, secureCookies)

		// tokens stay in the http-only cookies
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"user": tokenRes.User}, "Anmeldung erfolgreich."))
	}
}

// Refresh trades the refresh cookie (or a refresh_token body field) for a new session.
func Refresh(u *services.UserService, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		refreshToken, _ := c.Cookie(middleware.RefreshTokenCookie)
		if refreshToken == "" {
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			_ = c.ShouldBindJSON(&body)
			refreshToken = body.RefreshToken
		}
		if refreshToken == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse(msgLogin))
			return
		}

		resp, err := u.RefreshToken(c.Request.Context(), refreshToken)
		if err != nil {
			middleware.ClearSessionCookies(c, secureCookies)
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("Ihre Sitzung ist abgelaufen. Bitte melden Sie sich erneut an."))
			return
		}
		tokenRes, ok := resp.(*types.TokenResponse)
		if !ok || tokenRes.AccessToken == "" {
			respondError(c, errInvalidTokenResponse)
			return
		}
		middleware.SetSessionCookies(c, tokenRes.AccessToken, tokenRes.ExpiresIn, tokenRes.RefreshToken, secureCookies)
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"user": tokenRes.User}, ""))
	}
}

// Logout handler
func Logout(secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.ClearSessionCookies(c, secureCookies)
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Sie wurden abgemeldet."))
	}
}

// Session reports who is calling, with the admin flag the frontend uses to
// show the admin panel.
func Session(pol *policy.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := helpers.ClaimsFrom(c)
		if claims == nil {
			c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"authenticated": false}, ""))
			return
		}
		principal := claims.Principal()
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"authenticated":  true,
			"user":           claims,
			"is_admin":       pol.IsAdmin(principal),
			"is_super_admin": pol.IsSuperAdmin(principal),
		}, ""))
	}
}

type handlerError string

func (e handlerError) Error() string { return string(e) }

const errInvalidTokenResponse = handlerError("invalid token response")
