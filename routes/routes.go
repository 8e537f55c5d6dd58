package routes

import (
	"academtrack_go/controllers"
	"academtrack_go/middleware"
	"academtrack_go/services"
	"academtrack_go/services/websocket"
	"academtrack_go/storage"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// Deps carries the wired services the route table needs.
type Deps struct {
	Auth       *services.AuthService
	Academic   *services.AcademicService
	Schedule   *services.ScheduleService
	Transcript *services.TranscriptService
	Storage    *storage.StorageService
	Hub        *websocket.Hub
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Deps) {
	authController := controllers.NewAuthController(deps.Auth)
	userController := controllers.NewUserController(deps.Auth)
	academicController := controllers.NewAcademicController(deps.Academic, deps.Storage)
	scheduleController := controllers.NewScheduleController(deps.Schedule)
	exportController := controllers.NewExportController(deps.Transcript, deps.Auth)
	wsController := controllers.NewWebSocketController(deps.Hub, deps.Auth)

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Post("/register", authController.Register)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware(deps.Auth))
	protected.Use(middleware.LogActivityMiddleware())

	protected.Post("/auth/logout", authController.Logout)
	protected.Get("/profile", authController.GetProfile)

	// Shared curriculum structure
	structure := protected.Group("/structure")
	structure.Get("/", academicController.GetStructure)
	structure.Put("/", middleware.RequireAdmin(), academicController.UpdateStructure)

	// Subjects: merged views plus per-user and shared mutations
	subjects := protected.Group("/subjects")
	subjects.Get("/year/:year", academicController.GetSubjectsForYear)
	subjects.Get("/:id", academicController.GetSubject)
	subjects.Patch("/:id/data", academicController.UpdateSubjectData)
	subjects.Put("/:id/lessons", middleware.RequireAdmin(), academicController.UpdateSubjectLessons)
	subjects.Put("/:id/lessons/:lessonId/review", academicController.UpdateLessonReviewStatus)
	subjects.Post("/:id/attachment", middleware.RequireAdmin(), academicController.UploadAttachment)

	// Schedule and attendance
	schedule := protected.Group("/schedule")
	schedule.Get("/events", scheduleController.GetEvents)
	schedule.Post("/events", middleware.RequireAdmin(), scheduleController.CreateEvent)
	schedule.Put("/events/:id", middleware.RequireAdmin(), scheduleController.UpdateEvent)
	schedule.Delete("/events/:id", middleware.RequireAdmin(), scheduleController.DeleteEvent)
	schedule.Post("/absences", scheduleController.MarkAbsence)
	schedule.Get("/absences", scheduleController.GetAbsences)

	// Transcript export
	protected.Get("/export/transcript", exportController.ExportTranscript)

	// User management (admin only)
	users := protected.Group("/users", middleware.RequireAdmin())
	users.Get("/", userController.GetUsers)
	users.Delete("/:id", userController.DeleteUser)
	users.Put("/:id/admin", userController.SetAdmin)

	protected.Get("/ws/stats", middleware.RequireAdmin(), wsController.GetWebSocketStats)

	// WebSocket refresh hub; token comes via query string.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", wsController.WebSocketHandler())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
