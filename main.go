package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"academtrack_go/config"
	"academtrack_go/database"
	"academtrack_go/middleware"
	"academtrack_go/routes"
	"academtrack_go/services"
	"academtrack_go/services/websocket"
	"academtrack_go/storage"
	"academtrack_go/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func init() {
	setupLogging()
	config.LoadConfig()
	database.Connect()
}

func main() {
	ctx := context.Background()

	// Local durable cache; always present, works with or without the
	// remote store.
	localStore, err := store.OpenLocalStore(config.AppConfig.LocalStorePath)
	if err != nil {
		log.Fatal("Failed to open local store:", err)
	}
	defer localStore.Close()

	var remote store.Backend
	if db := database.GetDB(); db != nil {
		remote = store.NewRemoteStore(db)
	}
	adapter := store.NewAdapter(remote, localStore)

	// WebSocket hub first so services can broadcast refresh signals.
	wsHub := websocket.NewHub()
	go wsHub.Run()

	academicService, err := services.NewAcademicService(ctx, adapter, config.AppConfig.MaxLocalAttachmentSize)
	if err != nil {
		log.Fatal("Failed to initialize academic service:", err)
	}
	academicService.SetNotifier(wsHub)

	authService := services.NewAuthService(adapter)
	scheduleService := services.NewScheduleService(adapter, academicService)
	transcriptService := services.NewTranscriptService(academicService)

	var storageService *storage.StorageService
	if s, err := storage.NewStorageService(); err == nil {
		storageService = s
	} else {
		logrus.WithError(err).Warn("Attachment storage disabled")
	}

	// Log maintenance only makes sense with Redis and a database behind it.
	if database.GetRedisClient() != nil && database.GetDB() != nil {
		scheduler := cron.New()
		if err := services.NewLogMaintenanceService().Schedule(scheduler); err != nil {
			logrus.WithError(err).Warn("Failed to schedule log maintenance")
		} else {
			scheduler.Start()
			defer scheduler.Stop()
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    8 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggerMiddleware())

	routes.SetupRoutes(app, routes.Deps{
		Auth:       authService,
		Academic:   academicService,
		Schedule:   scheduleService,
		Transcript: transcriptService,
		Storage:    storageService,
		Hub:        wsHub,
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	logrus.WithFields(logrus.Fields{
		"port":         config.AppConfig.Port,
		"env":          config.AppConfig.AppEnv,
		"remote_store": config.AppConfig.UseRemoteStore,
	}).Info("Server starting")

	if err := app.Listen(":" + config.AppConfig.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// setupLogging configures the logging system
func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if os.Getenv("APP_ENV") == "production" {
		logFile := os.Getenv("LOG_FILE")
		if logFile == "" {
			logFile = "logs/app.log"
		}
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
				logrus.SetOutput(file)
				return
			}
		}
	}
	logrus.SetOutput(os.Stdout)
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
