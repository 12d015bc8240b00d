package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the complete application configuration, loaded from the
// environment (optionally via a .env file).
type Config struct {
	Scoring   ScoringConfig
	Privacy   PrivacyConfig
	Messaging MessagingConfig
	HTTP      HTTPConfig
	Session   SessionConfig
	Logging   LoggingConfig
}

// ScoringConfig holds the shock score parameters. The weights are
// production constants; overriding them is intended for offline tuning
// runs only.
type ScoringConfig struct {
	FearWeight        float64
	SurpriseWeight    float64
	TensionWeight     float64
	ScareThreshold    float64
	WindowSeconds     float64
	CalibrationFrames int
}

// PrivacyConfig bounds the in-memory audit trail.
type PrivacyConfig struct {
	AuditLogSize int
}

// MessagingConfig configures the AMQP transmission boundary.
type MessagingConfig struct {
	Enabled    bool
	URL        string
	QueueName  string
	RetryDelay time.Duration
	MaxRetries int
}

// HTTPConfig configures the monitoring/live-feed HTTP server.
type HTTPConfig struct {
	Enabled       bool
	Port          int
	EnableMetrics bool
	EnableLiveWS  bool
}

// SessionConfig carries screening metadata for B2B reporting.
type SessionConfig struct {
	FilmID         string
	CinemaLocation string
}

// LoggingConfig controls logger behavior.
type LoggingConfig struct {
	Level  logrus.Level
	Format string // "json" or "text"
}

// Load reads configuration from the environment. A missing .env file
// is not an error; explicit environment variables always win.
func Load(logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables only")
	}

	cfg := &Config{
		Scoring: ScoringConfig{
			FearWeight:        getEnvFloat(logger, "FEAR_WEIGHT", 2.0),
			SurpriseWeight:    getEnvFloat(logger, "SURPRISE_WEIGHT", 1.5),
			TensionWeight:     getEnvFloat(logger, "TENSION_WEIGHT", 0.5),
			ScareThreshold:    getEnvFloat(logger, "SCARE_THRESHOLD", 30.0),
			WindowSeconds:     getEnvFloat(logger, "EPM_WINDOW_SECONDS", 5.0),
			CalibrationFrames: getEnvInt(logger, "BASELINE_CALIBRATION_FRAMES", 30),
		},
		Privacy: PrivacyConfig{
			AuditLogSize: getEnvInt(logger, "PRIVACY_AUDIT_LOG_SIZE", 256),
		},
		Messaging: MessagingConfig{
			Enabled:    getEnvBool("AMQP_ENABLED", false),
			URL:        os.Getenv("AMQP_URL"),
			QueueName:  getEnv("AMQP_QUEUE_NAME", "shockscore_metrics"),
			RetryDelay: getEnvDuration(logger, "AMQP_RETRY_DELAY", 5*time.Second),
			MaxRetries: getEnvInt(logger, "AMQP_MAX_RETRIES", 3),
		},
		HTTP: HTTPConfig{
			Enabled:       getEnvBool("HTTP_ENABLED", true),
			Port:          getEnvInt(logger, "HTTP_PORT", 8080),
			EnableMetrics: getEnvBool("HTTP_ENABLE_METRICS", true),
			EnableLiveWS:  getEnvBool("HTTP_ENABLE_LIVE_WS", true),
		},
		Session: SessionConfig{
			FilmID:         os.Getenv("FILM_ID"),
			CinemaLocation: os.Getenv("CINEMA_LOCATION"),
		},
		Logging: LoggingConfig{
			Level:  parseLogLevel(logger, getEnv("LOG_LEVEL", "info")),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Messaging.Enabled && cfg.Messaging.URL == "" {
		logger.Warn("AMQP_ENABLED is set but AMQP_URL is empty, disabling messaging")
		cfg.Messaging.Enabled = false
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value == "true" || value == "1"
}

func getEnvInt(logger *logrus.Logger, key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logger.WithField(key, value).Warnf("Invalid integer for %s, using default %d", key, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(logger *logrus.Logger, key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.WithField(key, value).Warnf("Invalid float for %s, using default %v", key, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(logger *logrus.Logger, key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logger.WithField(key, value).Warnf("Invalid duration for %s, using default %v", key, fallback)
		return fallback
	}
	return parsed
}

func parseLogLevel(logger *logrus.Logger, value string) logrus.Level {
	level, err := logrus.ParseLevel(value)
	if err != nil {
		logger.Warnf("Invalid log level %q, using info", value)
		return logrus.InfoLevel
	}
	return level
}
