package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/services"
)

const (
	msgInternal   = "Ein unerwarteter Fehler ist aufgetreten. Bitte versuchen Sie es später erneut."
	msgNotFound   = "Der Eintrag wurde nicht gefunden."
	msgConflict   = "Die Anfrage wurde zwischenzeitlich geändert. Bitte laden Sie die Seite neu."
	msgTimeout    = "Der Server hat nicht rechtzeitig geantwortet. Bitte versuchen Sie es erneut."
	msgBadPayload = "Ungültige Anfrage."
	msgLogin      = "Bitte melden Sie sich an."
)

var localZone = mustLoadZone("Europe/Berlin")

func mustLoadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// respondError maps service errors to status codes. Unknown errors are
// attached to the context so the error middleware logs them.
func respondError(c *gin.Context, err error) {
	var ve *models.ValidationError
	var te *models.TransitionError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, models.FieldErrorResponse(ve.Field, ve.Message))
	case errors.As(err, &te):
		c.JSON(http.StatusConflict, models.ErrorResponse(te.Message))
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse(msgConflict))
	case errors.Is(err, models.ErrForbidden):
		if helpers.ClaimsFrom(c) == nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse(msgLogin))
			return
		}
		reason := strings.TrimPrefix(err.Error(), models.ErrForbidden.Error()+": ")
		c.JSON(http.StatusForbidden, models.ErrorResponse(reason))
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse(msgNotFound))
	case errors.Is(err, services.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, models.FieldErrorResponse("password",
			"Das Passwort muss mindestens 8 Zeichen, Groß- und Kleinbuchstaben, eine Ziffer und ein Sonderzeichen enthalten."))
	case errors.Is(err, context.DeadlineExceeded):
		_ = c.Error(err)
		c.JSON(http.StatusGatewayTimeout, models.ErrorResponse(msgTimeout))
	default:
		_ = c.Error(err)
		resp := models.ErrorResponse(msgInternal)
		resp.RequestID = c.GetString("request_id")
		c.JSON(http.StatusInternalServerError, resp)
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse(message))
}

// paramID parses a uuid path parameter and answers 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		badRequest(c, "Ungültige ID.")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// parseTime accepts RFC 3339 timestamps, datetime-local values and plain
// dates. Values without an offset are read as local club time.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, localZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unsupported time format")
}

// window reads the from/to query parameters. Without them the window starts
// today and spans defaultDays.
func window(c *gin.Context, defaultDays int) (time.Time, time.Time, bool) {
	now := time.Now().In(localZone)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, localZone)
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			badRequest(c, "Ungültiges Startdatum.")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	to := from.AddDate(0, 0, defaultDays)
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			badRequest(c, "Ungültiges Enddatum.")
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	return from, to, true
}
