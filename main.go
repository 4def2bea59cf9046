package main

import (
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/config"
	"github.com/fenilmodi00/ipo-sim-backend/database"
	"github.com/fenilmodi00/ipo-sim-backend/handlers"
	"github.com/fenilmodi00/ipo-sim-backend/jobs"
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	cfg.ConfigureLogging()
	engine := cfg.Engine
	loc := engine.Rotation.Location()

	// Storage: Postgres when configured, process memory otherwise
	var (
		store  services.ApplicationStore
		ledger services.UserLedger
		db     *sql.DB
	)
	if cfg.DatabaseURL != "" {
		if err := database.ConnectWithConfig(cfg.DatabaseURL, &engine.Database); err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.Migrate("database/schema.sql"); err != nil {
			logrus.Warnf("Migration warning: %v", err)
		}
		db = database.DB
		store = database.NewApplicationRepository(db)
		ledger = database.NewUserRepository(db)
	} else {
		logrus.Warn("DATABASE_URL not set, applications and balances are kept in memory")
		store = database.NewMemoryApplicationStore()
		ledger = database.NewMemoryLedger()
	}

	// Engine services
	rng := services.NewDefaultRandomSource()
	rotation := services.NewRotationService(services.RotationOptions{
		Config:   &engine.Rotation,
		Location: loc,
		Random:   rng,
	})
	cacheService := services.NewCacheServiceWithConfig(engine.Cache.DefaultTTL, engine.Cache.MaxSize)
	defer cacheService.Stop()
	feed := services.NewCatalogFeedService(rotation, cacheService)
	settlement := services.NewSettlementService(rng)

	var scheduler *services.TimelineScheduler
	if engine.Timeline.Driver == shared.DriverAccelerated {
		scheduler = services.NewTimelineScheduler(services.TimelineOptions{
			Config:     &engine.Timeline,
			Random:     rng,
			Settlement: settlement,
			Store:      store,
			Ledger:     ledger,
		})
	}

	applications := services.NewApplicationService(services.ApplicationServiceOptions{
		Store:      store,
		Ledger:     ledger,
		Feed:       feed,
		Settlement: settlement,
		Scheduler:  scheduler,
		Config:     engine,
	})

	logrus.WithFields(logrus.Fields{
		"timezone":        loc.String(),
		"timeline_driver": engine.Timeline.Driver,
		"refund_mode":     engine.Service.DefaultRefundMode,
		"cache_ttl":       engine.Cache.DefaultTTL,
		"persistent":      db != nil,
	}).Info("IPO simulation services initialized")

	// Jobs
	var settlementJob *jobs.ListingSettlementJob
	if engine.Timeline.Driver == shared.DriverCalendar {
		settlementJob = jobs.NewListingSettlementJob(feed, applications)
	}
	rotationJob := jobs.NewDailyRotationJob(feed, settlementJob)
	cleanupJob := jobs.NewCacheCleanupJob(cacheService)

	var recoveryJob *jobs.TimelineRecoveryJob
	if scheduler != nil {
		recoveryJob = jobs.NewTimelineRecoveryJob(store, scheduler)
	}

	cronScheduler := jobs.NewScheduler(loc)
	if err := cronScheduler.AddJob(engine.Rotation.Schedule, rotationJob); err != nil {
		logrus.Fatalf("Invalid ROTATION_SCHEDULE %q: %v", engine.Rotation.Schedule, err)
	}
	if err := cronScheduler.AddJob("@every 30m", cleanupJob); err != nil {
		logrus.Fatalf("Failed to schedule cache cleanup: %v", err)
	}

	if err := cronScheduler.RunNow(rotationJob); err != nil {
		logrus.WithError(err).Warn("Initial rotation failed")
	}
	if recoveryJob != nil {
		if err := cronScheduler.RunNow(recoveryJob); err != nil {
			logrus.WithError(err).Warn("Timeline recovery failed")
		}
	}
	cronScheduler.Start()

	// Handlers
	ipoHandler := handlers.NewIPOHandler(feed)
	marketHandler := handlers.NewMarketHandler(feed)
	applicationHandler := handlers.NewApplicationHandler(applications)
	checkHandler := handlers.NewCheckHandler(applications)
	timelineHandler := handlers.NewTimelineHandler(scheduler)
	adminHandler := handlers.NewAdminHandler(feed, recoveryJob, settlementJob)
	cacheHandler := handlers.NewCacheHandler(cacheService)

	metrics := []*shared.ServiceMetrics{rotation.Metrics(), applications.Metrics()}
	if scheduler != nil {
		metrics = append(metrics, scheduler.Metrics())
	}
	performanceHandler := handlers.NewPerformanceHandler(db, cacheService, metrics...)

	// Setup Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  engine.Service.ReadTimeout,
		WriteTimeout: engine.Service.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
			"today":     rotation.Today(),
		}
		if db != nil {
			if err := database.HealthCheck(c.UserContext()); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
				return c.Status(fiber.StatusServiceUnavailable).JSON(status)
			}
		}
		return c.JSON(status)
	})

	// Routes
	api := app.Group("/api/v1")

	// Catalog Routes
	api.Get("/ipos", ipoHandler.GetIPOs)
	api.Get("/ipos/feed", ipoHandler.GetFeed)
	api.Get("/ipos/:symbol", ipoHandler.GetIPOBySymbol)

	// Market Routes
	api.Get("/market/prices", marketHandler.GetMarketPrices)

	// Application Routes
	api.Post("/applications", applicationHandler.Apply)
	api.Get("/applications/:id", applicationHandler.GetApplication)
	api.Post("/applications/:id/withdraw", applicationHandler.Withdraw)
	api.Get("/users/:user_id/applications", applicationHandler.ListUserApplications)
	api.Get("/users/:user_id/balance", applicationHandler.GetUserBalance)
	api.Get("/withdrawals/eligibility", checkHandler.CheckWithdrawal)

	// Timeline Routes
	api.Get("/timelines", timelineHandler.ListTimelines)
	api.Get("/timelines/:symbol", timelineHandler.GetTimeline)

	// Admin Routes
	admin := api.Group("/admin", handlers.AdminAuth(cfg.AdminToken))
	admin.Post("/rotation/reset", adminHandler.ResetRotation)
	admin.Post("/rotation/refresh", adminHandler.RefreshRotation)
	admin.Post("/timelines/recover", adminHandler.RecoverTimelines)
	admin.Get("/metrics", performanceHandler.GetPerformanceMetrics)
	admin.Get("/cache", cacheHandler.GetStats)
	admin.Delete("/cache", cacheHandler.ClearCache)

	// Start server
	go func() {
		logrus.Infof("Server starting on port %s", cfg.ServerPort)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logrus.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	cronScheduler.Stop()
	if scheduler != nil {
		scheduler.Wait()
	}
	for _, m := range metrics {
		m.LogSummary()
	}
}
