// Package config loads runtime configuration from the environment.  An
// optional .env file is read first; real environment variables win over it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"dev"`
	Port     string `envconfig:"APP_PORT" default:"5000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql"`
	DBUser      string `envconfig:"DB_USER" default:"root"`
	DBPass      string `envconfig:"DB_PASS"` // empty allowed
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"3306"`
	DBName      string `envconfig:"DB_NAME" default:"seat_hold"`
	MongoURL    string `envconfig:"MONGO_URL" default:"mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDB     string `envconfig:"MONGO_DB" default:"seat_hold"`

	HoldSeconds   int           `envconfig:"HOLD_SECONDS" default:"60"`
	LayoutMin     int           `envconfig:"LAYOUT_MIN" default:"3"`
	LayoutMax     int           `envconfig:"LAYOUT_MAX" default:"20"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"15s"`

	// JWTSecret turns on guest sessions: the user id is then taken from
	// the bearer token instead of the request.
	JWTSecret          string `envconfig:"JWT_SECRET"`
	AccessTTLMin       int    `envconfig:"ACCESS_TOKEN_TTL_MIN" default:"720"`
	LayoutAdminKeyHash string `envconfig:"LAYOUT_ADMIN_KEY_HASH"` // bcrypt hash

	RabbitMQURL        string `envconfig:"RABBITMQ_URL"`
	SeatEventsExchange string `envconfig:"SEAT_EVENTS_EXCHANGE" default:"seat.events"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// HoldDuration is HOLD_SECONDS as a duration.
func (c Config) HoldDuration() time.Duration {
	return time.Duration(c.HoldSeconds) * time.Second
}

// Load reads .env (when present) and the environment into a Config and
// validates it.
func Load() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	return c, c.Validate()
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be mysql, mongo or memory, got %q", c.StoreDriver)
	}
	if c.HoldSeconds < 1 {
		return fmt.Errorf("HOLD_SECONDS must be positive, got %d", c.HoldSeconds)
	}
	if c.LayoutMin < 1 || c.LayoutMax < c.LayoutMin {
		return fmt.Errorf("invalid layout bounds %d..%d", c.LayoutMin, c.LayoutMax)
	}
	if c.JWTSecret != "" && c.AccessTTLMin < 1 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive, got %d", c.AccessTTLMin)
	}
	return nil
}
