package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"hotelbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Booking      BookingConfig      `yaml:"booking"`
	Notification NotificationConfig `yaml:"notification"`
	Mail         MailConfig         `yaml:"mail"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Exports      ExportConfig       `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdle         int           `yaml:"max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BookingConfig struct {
	HoldDuration  time.Duration   `yaml:"hold_duration"`
	LockTTL       time.Duration   `yaml:"lock_ttl"`
	SweepInterval time.Duration   `yaml:"sweep_interval"`
	SweepBatch    int             `yaml:"sweep_batch"`
	CreateRetry   RetryConfig     `yaml:"create_retry"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        float64       `yaml:"jitter"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type NotificationConfig struct {
	Retry        RetryConfig   `yaml:"retry"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseSSL   bool   `yaml:"use_ssl"`
	StartTLS bool   `yaml:"start_tls"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	JWT       JWTConfig          `yaml:"jwt"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Port                int           `yaml:"port"`
	Reflection          bool          `yaml:"reflection"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	TLS                 APITLSConfig  `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig configures API-key access for machine clients such as the
// payment gateway webhook.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Booking.HoldDuration <= 0 {
		return errors.New("booking.hold_duration must be positive")
	}
	// The sweeper releases locks when holds expire, so a lock must never
	// lapse before the hold it protects.
	if c.Booking.LockTTL < c.Booking.HoldDuration {
		return fmt.Errorf("booking.lock_ttl (%s) must not be shorter than hold_duration (%s)",
			c.Booking.LockTTL, c.Booking.HoldDuration)
	}

	if c.API.Enabled && c.API.JWT.Secret == "" {
		return errors.New("api.jwt.secret is required when api is enabled")
	}

	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key %q has empty key", k.Name)
		}
	}

	return nil
}

// ValidateInventory checks the seed file for duplicate or dangling references.
func ValidateInventory(inv models.Inventory) error {
	properties := make(map[int64]bool)
	for _, p := range inv.Properties {
		if p.ID == 0 {
			return fmt.Errorf("property '%s' has invalid ID 0", p.Name)
		}
		if properties[p.ID] {
			return fmt.Errorf("duplicate property ID found: %d", p.ID)
		}
		properties[p.ID] = true
	}

	roomTypes := make(map[int64]bool)
	for _, rt := range inv.RoomTypes {
		if rt.ID == 0 {
			return fmt.Errorf("room type '%s' has invalid ID 0", rt.Name)
		}
		if roomTypes[rt.ID] {
			return fmt.Errorf("duplicate room type ID found: %d", rt.ID)
		}
		if !properties[rt.PropertyID] {
			return fmt.Errorf("room type %d references unknown property %d", rt.ID, rt.PropertyID)
		}
		if rt.MaxOccupancy <= 0 {
			return fmt.Errorf("room type %d must allow at least one guest", rt.ID)
		}
		if rt.Price < 0 {
			return fmt.Errorf("room type %d has negative price", rt.ID)
		}
		roomTypes[rt.ID] = true
	}

	rooms := make(map[int64]bool)
	for _, r := range inv.Rooms {
		if r.ID == 0 {
			return fmt.Errorf("room '%s' has invalid ID 0", r.Name)
		}
		if rooms[r.ID] {
			return fmt.Errorf("duplicate room ID found: %d", r.ID)
		}
		if !roomTypes[r.RoomTypeID] {
			return fmt.Errorf("room %d references unknown room type %d", r.ID, r.RoomTypeID)
		}
		rooms[r.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hotelbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.Database.Postgres.MaxConnections == 0 {
		c.Database.Postgres.MaxConnections = 25
	}
	if c.Database.Postgres.MaxIdle == 0 {
		c.Database.Postgres.MaxIdle = 5
	}
	if c.Database.Postgres.ConnMaxLifetime == 0 {
		c.Database.Postgres.ConnMaxLifetime = 5 * time.Minute
	}

	if c.Booking.HoldDuration == 0 {
		c.Booking.HoldDuration = models.DefaultHoldDuration
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = c.Booking.HoldDuration
	}
	if c.Booking.SweepInterval == 0 {
		c.Booking.SweepInterval = models.DefaultSweepInterval
	}
	if c.Booking.SweepBatch == 0 {
		c.Booking.SweepBatch = models.DefaultSweepBatch
	}
	if c.Booking.CreateRetry.MaxAttempts == 0 {
		c.Booking.CreateRetry.MaxAttempts = 3
	}
	if c.Booking.CreateRetry.InitialDelay == 0 {
		c.Booking.CreateRetry.InitialDelay = 100 * time.Millisecond
	}
	if c.Booking.CreateRetry.MaxDelay == 0 {
		c.Booking.CreateRetry.MaxDelay = time.Second
	}
	if c.Booking.RateLimit.Limit == 0 {
		c.Booking.RateLimit.Limit = models.DefaultBookingRateLimit
	}
	if c.Booking.RateLimit.Window == 0 {
		c.Booking.RateLimit.Window = models.DefaultBookingRateWindow
	}

	if c.Notification.PollInterval == 0 {
		c.Notification.PollInterval = 2 * time.Second
	}
	if c.Notification.BatchSize == 0 {
		c.Notification.BatchSize = 20
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "booking-events"
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.GRPC.HealthCheckInterval == 0 {
		c.API.GRPC.HealthCheckInterval = 10 * time.Second
	}
	if c.API.JWT.TTL == 0 {
		c.API.JWT.TTL = 24 * time.Hour
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	// webhook auth is always on when the API is enabled
	if c.API.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.JWT.Issuer == "" {
		c.API.JWT.Issuer = c.App.Name
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
