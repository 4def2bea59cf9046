package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all configuration parameters for the engine
type UnifiedConfiguration struct {
	Service  ServiceConfig  `json:"service"`
	Database DatabaseConfig `json:"database"`
	Rotation RotationConfig `json:"rotation"`
	Timeline TimelineConfig `json:"timeline"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServiceConfig holds HTTP service configuration
type ServiceConfig struct {
	Port              string        `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	StartingBalance   float64       `json:"starting_balance"`
	DefaultRefundMode string        `json:"default_refund_mode"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// RotationConfig holds the calendar rotation tuning
type RotationConfig struct {
	Timezone          string  `json:"timezone"`
	Schedule          string  `json:"schedule"`
	MinOpen           int     `json:"min_open"`
	MinUpcoming       int     `json:"min_upcoming"`
	RecycleUpcomingLT int     `json:"recycle_upcoming_lt"`
	RecycleClosedGT   int     `json:"recycle_closed_gt"`
	ListingMinFactor  float64 `json:"listing_min_factor"`
	ListingMaxFactor  float64 `json:"listing_max_factor"`
}

// TimelineConfig holds the accelerated timeline tuning
type TimelineConfig struct {
	Driver               string        `json:"driver"`
	AllotmentDelay       time.Duration `json:"allotment_delay"`
	ListingDelay         time.Duration `json:"listing_delay"`
	AutoCloseDelay       time.Duration `json:"auto_close_delay"`
	AllotmentProbability float64       `json:"allotment_probability"`
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxSize    int           `json:"max_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

const (
	DriverAccelerated = "accelerated"
	DriverCalendar    = "calendar"
)

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Service: ServiceConfig{
			Port:              "8080",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			StartingBalance:   100000,
			DefaultRefundMode: "full_block",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Rotation: RotationConfig{
			Timezone:          "Asia/Kolkata",
			Schedule:          "1 0 * * *",
			MinOpen:           2,
			MinUpcoming:       3,
			RecycleUpcomingLT: 5,
			RecycleClosedGT:   8,
			ListingMinFactor:  0.9,
			ListingMaxFactor:  1.3,
		},
		Timeline: TimelineConfig{
			Driver:               DriverAccelerated,
			AllotmentDelay:       2 * time.Minute,
			ListingDelay:         3 * time.Minute,
			AutoCloseDelay:       5 * time.Minute,
			AllotmentProbability: 0.7,
		},
		Cache: CacheConfig{
			DefaultTTL: 15 * time.Minute,
			MaxSize:    1000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "ipo-sim-backend",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	// Validate Service Config
	if c.Service.Port == "" {
		c.Service.Port = defaults.Service.Port
		logger.Debug("Applied default Service.Port")
	}

	if c.Service.StartingBalance < 0 {
		c.Service.StartingBalance = defaults.Service.StartingBalance
		logger.Debug("Applied default Service.StartingBalance")
	}

	if c.Service.DefaultRefundMode != "immediate_refund" && c.Service.DefaultRefundMode != "full_block" {
		logger.Warnf("Unknown refund mode %q, using %s", c.Service.DefaultRefundMode, defaults.Service.DefaultRefundMode)
		c.Service.DefaultRefundMode = defaults.Service.DefaultRefundMode
	}

	// Validate Database Config
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
		logger.Debug("Applied default Database.MaxOpenConns")
	}

	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
		logger.Debug("Applied default Database.MaxIdleConns")
	}

	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}

	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}

	// Validate Rotation Config
	if c.Rotation.Timezone == "" {
		c.Rotation.Timezone = defaults.Rotation.Timezone
		logger.Debug("Applied default Rotation.Timezone")
	}

	if c.Rotation.Schedule == "" {
		c.Rotation.Schedule = defaults.Rotation.Schedule
		logger.Debug("Applied default Rotation.Schedule")
	}

	if c.Rotation.MinOpen <= 0 {
		c.Rotation.MinOpen = defaults.Rotation.MinOpen
	}
	if c.Rotation.MinUpcoming <= 0 {
		c.Rotation.MinUpcoming = defaults.Rotation.MinUpcoming
	}
	if c.Rotation.RecycleUpcomingLT <= 0 {
		c.Rotation.RecycleUpcomingLT = defaults.Rotation.RecycleUpcomingLT
	}
	if c.Rotation.RecycleClosedGT <= 0 {
		c.Rotation.RecycleClosedGT = defaults.Rotation.RecycleClosedGT
	}

	if c.Rotation.ListingMinFactor <= 0 || c.Rotation.ListingMaxFactor < c.Rotation.ListingMinFactor {
		c.Rotation.ListingMinFactor = defaults.Rotation.ListingMinFactor
		c.Rotation.ListingMaxFactor = defaults.Rotation.ListingMaxFactor
		logger.Debug("Applied default Rotation listing factors")
	}

	// Validate Timeline Config
	if c.Timeline.Driver != DriverAccelerated && c.Timeline.Driver != DriverCalendar {
		c.Timeline.Driver = defaults.Timeline.Driver
		logger.Debug("Applied default Timeline.Driver")
	}

	if c.Timeline.AllotmentDelay <= 0 {
		c.Timeline.AllotmentDelay = defaults.Timeline.AllotmentDelay
		logger.Debug("Applied default Timeline.AllotmentDelay")
	}

	if c.Timeline.ListingDelay <= 0 {
		c.Timeline.ListingDelay = defaults.Timeline.ListingDelay
		logger.Debug("Applied default Timeline.ListingDelay")
	}

	if c.Timeline.AutoCloseDelay <= 0 {
		c.Timeline.AutoCloseDelay = defaults.Timeline.AutoCloseDelay
		logger.Debug("Applied default Timeline.AutoCloseDelay")
	}

	if c.Timeline.AllotmentProbability < 0 || c.Timeline.AllotmentProbability > 1 {
		c.Timeline.AllotmentProbability = defaults.Timeline.AllotmentProbability
		logger.Debug("Applied default Timeline.AllotmentProbability")
	}

	// Validate Cache Config
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = defaults.Cache.DefaultTTL
		logger.Debug("Applied default Cache.DefaultTTL")
	}

	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = defaults.Cache.MaxSize
		logger.Debug("Applied default Cache.MaxSize")
	}

	// Validate Logging Config
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}

	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}

	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}
}

// Location resolves the rotation timezone, falling back to a fixed IST offset
// when the tz database is unavailable.
func (c RotationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logrus.WithError(err).WithField("timezone", c.Timezone).Warn("Falling back to fixed IST offset")
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFromJSON deserializes configuration from JSON
func (c *UnifiedConfiguration) LoadFromJSON(jsonData []byte) error {
	if err := json.Unmarshal(jsonData, c); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	c.ValidateAndApplyDefaults()
	return nil
}
