package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/services"
)

// GetProfile returns the caller's profile row.
func GetProfile(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := helpers.PrincipalFrom(c)
		if !principal.Authenticated() {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse(msgLogin))
			return
		}

		user, err := u.GetUser(c.Request.Context(), principal.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, ""))
	}
}

func UpdateProfile(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch models.ProfilePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			badRequest(c, msgBadPayload)
			return
		}

		principal := helpers.PrincipalFrom(c)
		user, err := u.UpdateProfile(c.Request.Context(), principal, principal.UserID, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "Profil gespeichert."))
	}
}

func ListUsers(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset := queryInt(c, "offset", 0)
		limit := queryInt(c, "limit", 50)

		users, total, err := u.ListUsers(c.Request.Context(), helpers.PrincipalFrom(c), offset, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(users, offset, limit, total))
	}
}

func ChangeUserRole(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var body struct {
			Role string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Bitte geben Sie eine Rolle an.")
			return
		}

		user, err := u.ChangeRole(c.Request.Context(), helpers.PrincipalFrom(c), id, body.Role)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "Rolle geändert."))
	}
}

func DeleteUser(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := u.DeleteUser(c.Request.Context(), helpers.PrincipalFrom(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Benutzer gelöscht."))
	}
}
