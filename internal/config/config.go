package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Auth        AuthConfig
	Validation  ValidationConfig
	Consumption ConsumptionConfig
	Alarm       AlarmConfig
	InfluxDB    InfluxDBConfig
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	AlarmExchange    string
	AlarmRoutingKey  string
	DLQQueue         string
	PrefetchCount    int
}

// AuthConfig holds token signing settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// ValidationConfig holds ingest validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// ConsumptionConfig holds derivation settings
type ConsumptionConfig struct {
	// TimezoneName is the reference timezone for calendar-day grouping.
	TimezoneName       string
	Location           *time.Location
	DefaultHistoryDays int
	MonthlyStaleDays   int
}

// AlarmConfig holds alarm scanner settings
type AlarmConfig struct {
	ScanInterval            time.Duration
	OverConsumptionAnchored bool
	PublishEvents           bool
}

// InfluxDBConfig holds the optional time-series sink settings. An empty URL disables it.
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether the sink is configured
func (c InfluxDBConfig) Enabled() bool {
	return c.URL != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "meter-dashboard"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Port:           getEnvAsInt("SERVICE_PORT", 5000),
			AllowedOrigins: []string{getEnv("HTTP_ALLOWED_ORIGIN", "*")},
			ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "meter-dashboard.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "meter-dashboard.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "meter.reading.logged"),
			AlarmExchange:    getEnv("RABBITMQ_ALARM_EXCHANGE", "meter-dashboard.alarm.events.exchange"),
			AlarmRoutingKey:  getEnv("RABBITMQ_ALARM_ROUTING_KEY", "meter.alarm.raised"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "meter-dashboard.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", time.Hour),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Consumption: ConsumptionConfig{
			TimezoneName:       getEnv("TIMEZONE", "Asia/Bangkok"),
			DefaultHistoryDays: getEnvAsInt("HISTORY_DEFAULT_DAYS", 7),
			MonthlyStaleDays:   getEnvAsInt("ALARM_MONTHLY_STALE_DAYS", 30),
		},
		Alarm: AlarmConfig{
			ScanInterval:            getEnvAsDuration("ALARM_SCAN_INTERVAL", 5*time.Minute),
			OverConsumptionAnchored: getEnvAsBool("ALARM_OVER_CONSUMPTION_ANCHORED", true),
			PublishEvents:           getEnvAsBool("ALARM_PUBLISH_EVENTS", true),
		},
		InfluxDB: InfluxDBConfig{
			URL:    getEnv("INFLUXDB_URL", ""),
			Token:  getEnv("INFLUXDB_TOKEN", ""),
			Org:    getEnv("INFLUXDB_ORG", ""),
			Bucket: getEnv("INFLUXDB_BUCKET", "meter-dashboard"),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set in environment variables")
	}

	loc, err := time.LoadLocation(cfg.Consumption.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Consumption.TimezoneName, err)
	}
	cfg.Consumption.Location = loc

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
