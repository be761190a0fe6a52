package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/middleware"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/services"
)

func ListSpecialEvents(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := cs.List(c.Request.Context(), helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(list, ""))
	}
}

func GetSpecialEvent(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		se, err := cs.GetBySlug(c.Request.Context(), strings.ToLower(c.Param("slug")), helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(se, ""))
	}
}

func CreateSpecialEvent(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var se models.SpecialEvent
		if err := c.ShouldBindJSON(&se); err != nil {
			badRequest(c, msgBadPayload)
			return
		}
		created, err := cs.Create(c.Request.Context(), helpers.PrincipalFrom(c), &se)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Sonderveranstaltung angelegt."))
	}
}

func UpdateSpecialEvent(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var patch models.SpecialEventPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			badRequest(c, msgBadPayload)
			return
		}
		updated, err := cs.Update(c.Request.Context(), helpers.PrincipalFrom(c), id, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Sonderveranstaltung gespeichert."))
	}
}

// ListEntries shows approved entries with vote counts. Admins may pass a
// status filter to see the moderation queue.
func ListEntries(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := cs.Entries(c.Request.Context(), strings.ToLower(c.Param("slug")), helpers.PrincipalFrom(c), models.EntryStatus(c.Query("status")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(entries, ""))
	}
}

func SubmitEntry(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in models.EntrySubmission
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, msgBadPayload)
			return
		}
		entry, err := cs.SubmitEntry(c.Request.Context(), strings.ToLower(c.Param("slug")), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(entry, "Vielen Dank! Ihr Beitrag wird nach Prüfung freigeschaltet."))
	}
}

func ModerateEntry(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var body struct {
			Status models.EntryStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, msgBadPayload)
			return
		}
		entry, err := cs.Moderate(c.Request.Context(), helpers.PrincipalFrom(c), id, body.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(entry, ""))
	}
}

// CastVote records or moves the anonymous vote of the caller's voter token.
func CastVote(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			EntryID uuid.UUID `json:"entry_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Bitte wählen Sie einen Beitrag aus.")
			return
		}
		vote, err := cs.CastVote(c.Request.Context(), strings.ToLower(c.Param("slug")), body.EntryID, middleware.VoterTokenFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(vote, "Ihre Stimme wurde gezählt."))
	}
}

func RevokeVote(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cs.RevokeVote(c.Request.Context(), strings.ToLower(c.Param("slug")), middleware.VoterTokenFrom(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Ihre Stimme wurde zurückgezogen."))
	}
}

func MyVote(cs *services.ContestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		vote, err := cs.MyVote(c.Request.Context(), strings.ToLower(c.Param("slug")), middleware.VoterTokenFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"vote": vote}, ""))
	}
}
