package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vereinsheim/portal/internal/config"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/services"
)

func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC(),
		})
	}
}

// SiteConfig exposes the public frontend settings. Only the id of the
// selected analytics provider is returned.
func SiteConfig(cfg *config.Config) gin.HandlerFunc {
	provider := strings.ToLower(strings.TrimSpace(cfg.AnalyticsProvider))
	analytics := gin.H{"provider": "none"}
	switch provider {
	case "vercel":
		analytics = gin.H{"provider": provider}
	case "plausible":
		if cfg.PlausibleDomain != "" {
			analytics = gin.H{"provider": provider, "domain": cfg.PlausibleDomain}
		}
	case "ga4":
		if cfg.GA4MeasurementID != "" {
			analytics = gin.H{"provider": provider, "measurement_id": cfg.GA4MeasurementID}
		}
	}
	body := models.SuccessResponse(gin.H{
		"analytics":    analytics,
		"frontend_url": cfg.FrontendURL,
	}, "")

	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=300")
		c.JSON(http.StatusOK, body)
	}
}

// Presence reports whether the club house is occupied. A failing sensor
// function yields 502 with success=false so the widget can show "unknown".
func Presence(ps *services.PresenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := ps.Status(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, models.ApiResponse{
				Success: false,
				Error:   "Der Anwesenheitsstatus ist derzeit nicht verfügbar.",
				Data:    &services.PresenceStatus{Success: false, CheckedAt: time.Now().UTC()},
			})
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(status, ""))
	}
}
