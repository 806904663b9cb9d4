package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/config"
	"github.com/smarthotel/booking-wizard/internal/database"
	"github.com/smarthotel/booking-wizard/internal/handlers"
	"github.com/smarthotel/booking-wizard/internal/middleware"
	"github.com/smarthotel/booking-wizard/internal/models"
	"github.com/smarthotel/booking-wizard/internal/services"
	"github.com/smarthotel/booking-wizard/pkg/events"
	"github.com/smarthotel/booking-wizard/pkg/hotelapi"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

const serviceName = "booking-wizard"

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Booking Wizard Service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	location, err := cfg.Wizard.Location()
	if err != nil {
		logger.Fatalf("Invalid hotel timezone: %v", err)
	}

	// Audit database is optional
	var db *sqlx.DB
	var auditStore services.WizardAuditStore
	if cfg.Database.URL != "" {
		logger.Info("Connecting to audit database...")
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		auditStore = database.NewWizardAuditRepository(db, logger)
		logger.Info("Database connection established")
	} else {
		logger.Warn("DATABASE_URL not set, wizard audit trail will only be logged")
	}
	auditService := services.NewWizardAuditService(auditStore, logger)

	// Booking events are optional
	var publisher services.EventPublisher
	if cfg.Messaging.RabbitMQURL != "" {
		logger.Info("Connecting to RabbitMQ...")
		amqpPublisher, err := events.Dial(cfg.Messaging.RabbitMQURL, cfg.Messaging.EventsExchange, serviceName, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize booking event publisher: %v", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		logger.Infof("Booking events will be published to exchange '%s'", cfg.Messaging.EventsExchange)
	}

	// Hotel API collaborators, one pair per flow
	hotelClient := hotelapi.NewClient(hotelapi.Config{
		BaseURL:          cfg.HotelAPI.BaseURL,
		AvailabilityPath: cfg.HotelAPI.AvailabilityPath,
		Timeout:          cfg.HotelAPI.Timeout,
		UserAgent:        fmt.Sprintf("%s/%s", serviceName, version),
	}, logger)
	availability := services.NewHotelAvailabilityProvider(hotelClient)

	sessionService := services.NewWizardSessionService(services.WizardSessionConfig{
		Flows: map[models.WizardFlow]services.FlowCollaborators{
			models.WizardFlowGuest: {
				Availability: availability,
				Submitter:    services.NewGuestBookingSubmitter(hotelClient, cfg.HotelAPI.GuestBookingPath),
			},
			models.WizardFlowWalkIn: {
				Availability: availability,
				Submitter:    services.NewWalkInBookingSubmitter(hotelClient, cfg.HotelAPI.WalkInBookingPath),
			},
		},
		Audit:         auditService,
		Publisher:     publisher,
		Logger:        logger,
		Location:      location,
		SessionTTL:    cfg.Wizard.SessionTTL,
		SweepInterval: cfg.Wizard.SweepInterval,
	})
	sessionService.Start()

	wizardHandler := handlers.NewBookingWizardHandler(sessionService, logger)

	// Initialize Gin router
	router := gin.New()

	// Forwarding headers are honored only from these proxies; none by default
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.WithError(err).Fatal("Invalid TRUSTED_PROXIES")
	}

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, sessionService))

	// API v1 routes
	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		logger,
	)
	v1 := router.Group("/api/v1")
	v1.Use(rateLimiter.Middleware())
	wizardHandler.RegisterRoutes(v1)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
		// Submissions wait on the hotel API, so leave room beyond its timeout
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HotelAPI.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	sessionService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}
		if id := c.Param("id"); id != "" {
			fields["session_id"] = id
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB, sessions *services.WizardSessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "disabled"
		if db != nil {
			dbStatus = "healthy"
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"database": "unhealthy",
					"error":    err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"database":        dbStatus,
			"active_sessions": sessions.Count(),
			"version":         version,
			"timestamp":       time.Now().Unix(),
		})
	}
}
