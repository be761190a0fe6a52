package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/services"
)

const (
	eventListDays = 90
	calendarDays  = 42
)

func CreateEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev models.Event
		if err := c.ShouldBindJSON(&ev); err != nil {
			badRequest(c, msgBadPayload)
			return
		}

		created, err := es.CreateEvent(c.Request.Context(), helpers.PrincipalFrom(c), &ev)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Veranstaltung angelegt."))
	}
}

func UpdateEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var patch models.EventPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			badRequest(c, msgBadPayload)
			return
		}

		updated, err := es.UpdateEvent(c.Request.Context(), helpers.PrincipalFrom(c), id, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Veranstaltung gespeichert."))
	}
}

func DeleteEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := es.DeleteEvent(c.Request.Context(), helpers.PrincipalFrom(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Veranstaltung gelöscht."))
	}
}

func GetEvent(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		ev, err := es.GetEvent(c.Request.Context(), id, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(ev, ""))
	}
}

func ListEvents(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, ok := window(c, eventListDays)
		if !ok {
			return
		}
		events, err := es.ListEvents(c.Request.Context(), from, to, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(events, ""))
	}
}

// Calendar returns events and temporarily blocked slots between from and to.
func Calendar(es *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, ok := window(c, calendarDays)
		if !ok {
			return
		}
		entries, err := es.Calendar(c.Request.Context(), from, to, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(entries, ""))
	}
}
