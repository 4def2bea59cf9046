package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	AdminToken  string
	LogLevel    string
	LogFormat   string

	// Engine tuning, validated through shared.UnifiedConfiguration
	Engine *shared.UnifiedConfiguration
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	engine := shared.NewDefaultUnifiedConfiguration()
	engine.Service.Port = getEnv("SERVER_PORT", engine.Service.Port)
	engine.Service.StartingBalance = getEnvFloat("STARTING_BALANCE", engine.Service.StartingBalance)
	engine.Service.DefaultRefundMode = getEnv("DEFAULT_REFUND_MODE", engine.Service.DefaultRefundMode)
	engine.Rotation.Timezone = getEnv("TIMEZONE", engine.Rotation.Timezone)
	engine.Rotation.Schedule = getEnv("ROTATION_SCHEDULE", engine.Rotation.Schedule)
	engine.Timeline.Driver = strings.ToLower(getEnv("TIMELINE_DRIVER", engine.Timeline.Driver))
	engine.Timeline.AllotmentDelay = getEnvDuration("TIMELINE_ALLOTMENT_DELAY", engine.Timeline.AllotmentDelay)
	engine.Timeline.ListingDelay = getEnvDuration("TIMELINE_LISTING_DELAY", engine.Timeline.ListingDelay)
	engine.Timeline.AutoCloseDelay = getEnvDuration("TIMELINE_AUTOCLOSE_DELAY", engine.Timeline.AutoCloseDelay)
	engine.Timeline.AllotmentProbability = getEnvFloat("ALLOTMENT_PROBABILITY", engine.Timeline.AllotmentProbability)
	engine.Cache.DefaultTTL = getEnvMinutes("FEED_CACHE_TTL_MINUTES", engine.Cache.DefaultTTL)
	engine.Logging.Level = getEnv("LOG_LEVEL", engine.Logging.Level)
	engine.Logging.Format = getEnv("LOG_FORMAT", engine.Logging.Format)
	engine.ValidateAndApplyDefaults()

	return &Config{
		ServerPort:  engine.Service.Port,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),
		LogLevel:    engine.Logging.Level,
		LogFormat:   engine.Logging.Format,
		Engine:      engine,
	}
}

// ConfigureLogging applies the configured level and formatter to the global logrus logger
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return value
}

// getEnvDuration accepts Go durations ("90s", "2m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvMinutes(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}
