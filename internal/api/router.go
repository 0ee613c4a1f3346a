package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/app"
	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/auth/mfa"
	"github.com/atelierhq/atelier/internal/handlers"
	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/internal/services"
)

// Dependencies carries everything the router needs to wire handlers.
type Dependencies struct {
	DB        *gorm.DB
	Config    *app.Config
	JWT       *iauth.JWTService
	Sessions  *iauth.SessionService
	TOTP      *mfa.TOTPService
	Hub       *realtime.Hub
	RateStore middleware.RateStore

	Users         *services.UserService
	Projects      *services.ProjectService
	Files         *services.FileService
	Messages      *services.MessageService
	Tickets       *services.TicketService
	Invoices      *services.InvoiceService
	Talks         *services.TalkService
	Notifications *services.NotificationService
	Dashboard     *services.DashboardService
}

// NewRouter builds the Gin engine, wires middleware, and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("database handle must be provided")
	case deps.Config == nil:
		return nil, fmt.Errorf("config must be provided")
	case deps.JWT == nil:
		return nil, fmt.Errorf("jwt service must be provided")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	// Basic rate limiting: 100 requests/minute per IP+route
	r.Use(middleware.RateLimit(deps.RateStore, 100, time.Minute))

	r.NoRoute(middleware.NotFoundHandler)

	// Health and metrics (public)
	r.GET("/health", handlers.Health(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cookieName := deps.Config.Auth.Session.CookieName

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Sessions, deps.TOTP, handlers.AuthCookieSettings{
		Name:   cookieName,
		Secure: deps.Config.Auth.Session.CookieSecure,
		MaxAge: int(deps.Config.Auth.Session.RefreshTTL / time.Second),
	})
	profileHandler := handlers.NewProfileHandler(deps.Users)
	projectHandler := handlers.NewProjectHandler(deps.Projects)
	fileHandler := handlers.NewFileHandler(deps.Files)
	messageHandler := handlers.NewMessageHandler(deps.Messages)
	ticketHandler := handlers.NewTicketHandler(deps.Tickets)
	invoiceHandler := handlers.NewInvoiceHandler(deps.Invoices)
	talkHandler := handlers.NewTalkHandler(deps.Talks)
	notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Dashboard, deps.TOTP)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.DB)

	requireAuth := middleware.Auth(deps.JWT, cookieName)
	optionalAuth := middleware.OptionalAuth(deps.JWT, cookieName)

	// Public routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/verify", authHandler.VerifyEmail)
		auth.POST("/resend", authHandler.ResendCode)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Talk intake is open to anonymous visitors; identity is attached when present.
	r.POST("/api/talk", optionalAuth, talkHandler.Submit)
	r.POST("/api/talk/:id/messages", optionalAuth, talkHandler.AppendTranscript)

	// Payment provider webhook; the signature is the trust anchor.
	r.POST("/api/webhooks/payments", invoiceHandler.Webhook)

	// Realtime stream authenticates via token query parameter.
	r.GET("/api/stream", realtimeHandler.Stream)

	// Authenticated routes
	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	profile := api.Group("/profile")
	{
		profile.PATCH("", profileHandler.Update)
		profile.POST("/password", profileHandler.ChangePassword)
		profile.PUT("/availability", profileHandler.SetAvailability)
	}

	projects := api.Group("/projects")
	{
		projects.GET("", projectHandler.List)
		projects.GET("/:id", projectHandler.Get)
		projects.GET("/:id/files", fileHandler.List)
		projects.POST("/:id/files/presign", fileHandler.PresignUpload)
		projects.GET("/:id/files/:fileID/download", fileHandler.PresignDownload)
		projects.DELETE("/:id/files/:fileID", fileHandler.Delete)
		projects.GET("/:id/messages", messageHandler.List)
		projects.POST("/:id/messages", messageHandler.Post)
		projects.POST("/:id/messages/typing", messageHandler.Typing)
	}

	tickets := api.Group("/tickets")
	{
		tickets.POST("", ticketHandler.Create)
		tickets.GET("", ticketHandler.List)
		tickets.GET("/:id", ticketHandler.Get)
		tickets.POST("/:id/replies", ticketHandler.Reply)
	}

	invoices := api.Group("/invoices")
	{
		invoices.GET("", invoiceHandler.List)
		invoices.GET("/:id", invoiceHandler.Get)
		invoices.POST("/:id/checkout", invoiceHandler.Checkout)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.PUT("/read-all", notificationHandler.MarkAllRead)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	// Admin console
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/dashboard", adminHandler.Dashboard)
		admin.GET("/users", adminHandler.ListUsers)
		admin.PUT("/users/:id/active", adminHandler.SetUserActive)
		admin.PUT("/users/:id/admin", adminHandler.SetUserAdmin)

		admin.POST("/mfa/setup", adminHandler.SetupMFA)
		admin.POST("/mfa/confirm", adminHandler.ConfirmMFA)
		admin.POST("/mfa/disable", adminHandler.DisableMFA)

		admin.POST("/projects", projectHandler.Create)
		admin.PATCH("/projects/:id", projectHandler.Update)
		admin.POST("/projects/:id/milestones", projectHandler.AddMilestone)
		admin.PUT("/projects/:id/milestones/:milestoneID/status", projectHandler.UpdateMilestoneStatus)
		admin.POST("/projects/:id/tasks", projectHandler.AddTask)
		admin.PUT("/projects/:id/tasks/:taskID/status", projectHandler.UpdateTaskStatus)

		admin.PUT("/tickets/:id/status", ticketHandler.UpdateStatus)

		admin.POST("/invoices", invoiceHandler.Create)
		admin.POST("/invoices/:id/send", invoiceHandler.Send)

		admin.GET("/talk", talkHandler.List)
		admin.GET("/talk/:id", talkHandler.Get)
		admin.PUT("/talk/:id/status", talkHandler.Transition)
	}

	return r, nil
}
