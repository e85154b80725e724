package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	PublisherLog     = "log"
	PublisherWebhook = "webhook"
	PublisherKafka   = "kafka"
)

type DB struct {
	Driver       string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN          string        `env:"DB_DSN" envDefault:"./activitylog.sqlite"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	SlowQuery    time.Duration `env:"DB_SLOW_QUERY" envDefault:"200ms"`
}

type HTTP struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type Webhook struct {
	URL     string        `env:"WEBHOOK_URL"`
	Secret  string        `env:"WEBHOOK_SECRET"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

type Kafka struct {
	Bootstrap string        `env:"KAFKA_BOOTSTRAP_SERVERS"`
	Topic     string        `env:"KAFKA_TOPIC" envDefault:"activity-events"`
	Timeout   time.Duration `env:"KAFKA_TIMEOUT" envDefault:"10s"`
}

type Outbox struct {
	Publisher string        `env:"OUTBOX_PUBLISHER" envDefault:"log"`
	Interval  time.Duration `env:"OUTBOX_INTERVAL" envDefault:"2s"`
	BatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	MaxRetry  int           `env:"OUTBOX_MAX_RETRY" envDefault:"5"`
	Webhook   Webhook
	Kafka     Kafka
}

// Config is read from ACTIVITYLOG_* environment variables.
type Config struct {
	DB     DB
	HTTP   HTTP
	Log    Log
	Outbox Outbox
}

const envPrefix = "ACTIVITYLOG_"

// Load reads envFile when it exists and then parses the environment.
// Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db dsn is required")
	}
	switch c.Outbox.Publisher {
	case PublisherLog:
	case PublisherWebhook:
		if c.Outbox.Webhook.URL == "" {
			return errors.New("webhook publisher requires ACTIVITYLOG_WEBHOOK_URL")
		}
	case PublisherKafka:
		if c.Outbox.Kafka.Bootstrap == "" {
			return errors.New("kafka publisher requires ACTIVITYLOG_KAFKA_BOOTSTRAP_SERVERS")
		}
	default:
		return fmt.Errorf("unsupported outbox publisher %q", c.Outbox.Publisher)
	}
	if c.Outbox.BatchSize < 1 || c.Outbox.Interval <= 0 {
		return errors.New("outbox batch size and interval must be positive")
	}
	return nil
}
