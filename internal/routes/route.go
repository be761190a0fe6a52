package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vereinsheim/portal/internal/container"
	"github.com/vereinsheim/portal/internal/handlers"
	"github.com/vereinsheim/portal/internal/middleware"
	"github.com/vereinsheim/portal/internal/policy"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(c *container.Container) *gin.Engine {
	cfg := c.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	secure := cfg.IsProduction()

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.VoterTokenHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.VoterTokenHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(c.Logger))
	r.Use(middleware.ErrorHandler(c.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.Deadline(cfg.RequestTimeout))

	requireAuth := middleware.AuthMiddleware(c.Validator, c.UserService, secure, c.Logger)
	optionalAuth := middleware.OptionalAuth(c.Validator, c.UserService, secure, c.Logger)
	listDeadline := middleware.Deadline(cfg.ListTimeout)
	admin := func(res policy.Resource, act policy.Action) gin.HandlerFunc {
		return middleware.RequireAccess(c.Policy, res, act)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", handlers.Health())
		v1.GET("/site-config", handlers.SiteConfig(cfg))
		v1.GET("/presence", handlers.Presence(c.PresenceService))

		v1.POST("/signup", handlers.Signup(c.UserService))
		v1.POST("/login", handlers.Login(c.UserService, secure))
		v1.POST("/refresh", handlers.Refresh(c.UserService, secure))
		v1.POST("/logout", handlers.Logout(secure))
		v1.GET("/session", optionalAuth, handlers.Session(c.Policy))
	}

	profile := v1.Group("/profile", requireAuth)
	{
		profile.GET("", handlers.GetProfile(c.UserService))
		profile.PATCH("", handlers.UpdateProfile(c.UserService))
	}

	users := v1.Group("/users", requireAuth)
	{
		users.GET("", listDeadline, admin(policy.AdminPanel, policy.Read), handlers.ListUsers(c.UserService))
		users.PATCH("/:id/role", admin(policy.Profiles, policy.ChangeRole), handlers.ChangeUserRole(c.UserService))
		users.DELETE("/:id", admin(policy.Profiles, policy.Delete), handlers.DeleteUser(c.UserService))
	}

	// Calendar and event reads mask private events for anyone but admins.
	v1.GET("/calendar", listDeadline, optionalAuth, handlers.Calendar(c.EventService))
	events := v1.Group("/events")
	{
		events.GET("", listDeadline, optionalAuth, handlers.ListEvents(c.EventService))
		events.GET("/:id", optionalAuth, handlers.GetEvent(c.EventService))
		events.POST("", requireAuth, admin(policy.Events, policy.Create), handlers.CreateEvent(c.EventService))
		events.PATCH("/:id", requireAuth, admin(policy.Events, policy.Update), handlers.UpdateEvent(c.EventService))
		events.DELETE("/:id", requireAuth, admin(policy.Events, policy.Delete), handlers.DeleteEvent(c.EventService))
	}

	requests := v1.Group("/event-requests")
	{
		// guests may submit; ownership is checked in the service
		requests.POST("", optionalAuth, handlers.SubmitRequest(c.RequestService))
		requests.GET("/mine", requireAuth, handlers.MyRequests(c.RequestService))
		requests.GET("/:id", requireAuth, handlers.GetRequest(c.RequestService))
		requests.POST("/:id/cancel", requireAuth, handlers.CancelRequest(c.RequestService))
		requests.POST("/:id/details", requireAuth, handlers.SubmitDetails(c.RequestService))
		requests.GET("/:id/contract", requireAuth, handlers.DownloadContract(c.RequestService))
	}

	adminRequests := v1.Group("/admin/event-requests", requireAuth, admin(policy.EventRequests, policy.Review))
	{
		adminRequests.GET("", listDeadline, handlers.ListRequests(c.RequestService))
		adminRequests.POST("/:id/accept", handlers.AcceptRequest(c.RequestService))
		adminRequests.POST("/:id/reject", handlers.RejectRequest(c.RequestService))
		adminRequests.POST("/:id/final-accept", handlers.FinalAcceptRequest(c.RequestService))
		adminRequests.PATCH("/:id/notes", handlers.UpdateRequestNotes(c.RequestService))
		adminRequests.GET("/:id/conflicts", handlers.RequestConflicts(c.RequestService))
		adminRequests.GET("/:id/activity", handlers.RequestActivity(c.RequestService))
	}

	special := v1.Group("/special-events")
	{
		special.GET("", optionalAuth, handlers.ListSpecialEvents(c.ContestService))
		special.GET("/:slug", optionalAuth, handlers.GetSpecialEvent(c.ContestService))
		special.GET("/:slug/entries", listDeadline, optionalAuth, handlers.ListEntries(c.ContestService))
		special.POST("/:slug/entries", handlers.SubmitEntry(c.ContestService))

		voting := special.Group("/:slug/vote", middleware.VoterToken(secure))
		voting.GET("", handlers.MyVote(c.ContestService))
		voting.POST("", handlers.CastVote(c.ContestService))
		voting.DELETE("", handlers.RevokeVote(c.ContestService))
	}

	adminSpecial := v1.Group("/admin/special-events", requireAuth)
	{
		adminSpecial.POST("", admin(policy.SpecialEvents, policy.Create), handlers.CreateSpecialEvent(c.ContestService))
		adminSpecial.PATCH("/:id", admin(policy.SpecialEvents, policy.Update), handlers.UpdateSpecialEvent(c.ContestService))
	}
	v1.PATCH("/admin/entries/:id", requireAuth, admin(policy.Entries, policy.Moderate), handlers.ModerateEntry(c.ContestService))

	return r
}
