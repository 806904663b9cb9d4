package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Upstream hotel API (availability + booking submission)
	HotelAPI HotelAPIConfig

	// Wizard session configuration
	Wizard WizardConfig

	// Database configuration (audit trail, optional)
	Database DatabaseConfig

	// Messaging configuration (booking events, optional)
	Messaging MessagingConfig

	// CORS configuration
	CORS CORSConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	// Proxies whose X-Forwarded-For / X-Real-IP are believed (IPs or CIDRs)
	TrustedProxies []string
}

// HotelAPIConfig holds the hotel API endpoints
type HotelAPIConfig struct {
	BaseURL           string
	AvailabilityPath  string
	GuestBookingPath  string // Public guest flow submission endpoint
	WalkInBookingPath string // Staff walk-in flow submission endpoint
	Timeout           time.Duration
}

// WizardConfig holds booking wizard session settings
type WizardConfig struct {
	SessionTTL    time.Duration // Idle wizards are discarded after this
	SweepInterval time.Duration // How often idle wizards are looked for
	Timezone      string        // Hotel calendar used for "today" (IANA name)
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string // Empty disables the audit trail
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// MessagingConfig holds RabbitMQ configuration
type MessagingConfig struct {
	RabbitMQURL    string // Empty disables booking event publishing
	EventsExchange string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),

			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
		},
		HotelAPI: HotelAPIConfig{
			BaseURL:           getEnv("HOTEL_API_URL", ""),
			AvailabilityPath:  getEnv("AVAILABILITY_PATH", "/room-types/availability/"),
			GuestBookingPath:  getEnv("GUEST_BOOKING_PATH", "/bookings/"),
			WalkInBookingPath: getEnv("WALKIN_BOOKING_PATH", "/staff/walk-in-bookings/"),
			Timeout:           getEnvAsDuration("HOTEL_API_TIMEOUT_SECONDS", 15*time.Second),
		},
		Wizard: WizardConfig{
			SessionTTL:    time.Duration(getEnvAsInt("WIZARD_SESSION_TTL_MINUTES", 30)) * time.Minute,
			SweepInterval: getEnvAsDuration("WIZARD_SWEEP_INTERVAL_SECONDS", 60*time.Second),
			Timezone:      getEnv("HOTEL_TIMEZONE", "Local"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 300*time.Second),
		},
		Messaging: MessagingConfig{
			RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
			EventsExchange: getEnv("BOOKING_EVENTS_EXCHANGE", "booking.events"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HotelAPI.BaseURL == "" {
		return fmt.Errorf("HOTEL_API_URL is required")
	}
	if u, err := url.Parse(c.HotelAPI.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("HOTEL_API_URL must be an absolute URL, got %q", c.HotelAPI.BaseURL)
	}

	if c.HotelAPI.Timeout <= 0 {
		return fmt.Errorf("HOTEL_API_TIMEOUT_SECONDS must be positive")
	}

	if c.Wizard.SessionTTL <= 0 {
		return fmt.Errorf("WIZARD_SESSION_TTL_MINUTES must be positive")
	}

	if c.Wizard.SweepInterval <= 0 {
		return fmt.Errorf("WIZARD_SWEEP_INTERVAL_SECONDS must be positive")
	}

	if _, err := c.Wizard.Location(); err != nil {
		return fmt.Errorf("invalid HOTEL_TIMEZONE: %w", err)
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	return nil
}

// Location resolves the hotel timezone
func (w WizardConfig) Location() (*time.Location, error) {
	if w.Timezone == "" || w.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(w.Timezone)
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads a whole number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
