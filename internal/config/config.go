// Package config loads the service settings from CAFESHOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const Prefix = "CAFESHOP"

const (
	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"cafeshop"`
	Env         string `envconfig:"ENV" default:"dev"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile     string `envconfig:"LOG_FILE"`

	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	DatabasePath    string        `envconfig:"DATABASE_PATH" default:"cafeshop.db"`

	ReservationStrategy string        `envconfig:"RESERVATION_STRATEGY" default:"atomic"`
	LockBackend         string        `envconfig:"LOCK_BACKEND" default:"local"`
	RedisAddr           string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	LockWait            time.Duration `envconfig:"LOCK_WAIT" default:"5s"`
	LockHold            time.Duration `envconfig:"LOCK_HOLD" default:"10s"`

	// GatewayURL empty selects the in-process payment simulator.
	GatewayURL     string        `envconfig:"GATEWAY_URL"`
	GatewayKey     string        `envconfig:"GATEWAY_KEY"`
	GatewaySecret  string        `envconfig:"GATEWAY_SECRET"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"3s"`

	DeliveryCutoffHour int           `envconfig:"DELIVERY_CUTOFF_HOUR" default:"14"`
	TimeZone           string        `envconfig:"TIMEZONE" default:"Asia/Seoul"`
	SweepInterval      time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"cafeshop.events"`
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"cafeshop.events"`
	EventQueue   int    `envconfig:"EVENT_QUEUE" default:"1024"`
	EventWorkers int    `envconfig:"EVENT_WORKERS" default:"4"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	switch c.ReservationStrategy {
	case appinv.StrategyAtomic, appinv.StrategyPessimistic:
	default:
		errs = multierr.Append(errs, fmt.Errorf("RESERVATION_STRATEGY %q: want %s or %s",
			c.ReservationStrategy, appinv.StrategyAtomic, appinv.StrategyPessimistic))
	}
	switch c.LockBackend {
	case LockLocal:
	case LockRedis:
		if c.RedisAddr == "" {
			errs = multierr.Append(errs, errors.New("REDIS_ADDR is required for the redis lock backend"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("LOCK_BACKEND %q: want %s or %s", c.LockBackend, LockLocal, LockRedis))
	}
	if c.LockWait <= 0 || c.LockHold <= 0 {
		errs = multierr.Append(errs, errors.New("LOCK_WAIT and LOCK_HOLD must be positive"))
	}
	if c.GatewayURL != "" && (c.GatewayKey == "" || c.GatewaySecret == "") {
		errs = multierr.Append(errs, errors.New("GATEWAY_KEY and GATEWAY_SECRET are required with GATEWAY_URL"))
	}
	if c.DeliveryCutoffHour < 1 || c.DeliveryCutoffHour > 24 {
		errs = multierr.Append(errs, fmt.Errorf("DELIVERY_CUTOFF_HOUR %d: want 1-24", c.DeliveryCutoffHour))
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if c.SweepInterval < time.Second {
		errs = multierr.Append(errs, fmt.Errorf("SWEEP_INTERVAL %s: want at least 1s", c.SweepInterval))
	}
	if c.DatabasePath == "" {
		errs = multierr.Append(errs, errors.New("DATABASE_PATH is required"))
	}
	if errs != nil {
		return fmt.Errorf("config: %w", errs)
	}
	return nil
}

// Location is the validated delivery time zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UseSimulator reports whether payments run against the in-process gateway.
func (c Config) UseSimulator() bool { return c.GatewayURL == "" }
