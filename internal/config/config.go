package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
)

const (
	DriverTables = "tables"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Storage selects and configures the datastore, task queue and cache.
type Storage struct {
	Driver           string `env:"STORE_DRIVER" envDefault:"tables"`
	ConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	Table            string `env:"CONFERENCE_TABLE" envDefault:"conferences"`
	TaskQueue        string `env:"TASK_QUEUE" envDefault:"conference-tasks"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"conference.db"`
	CrossGroup       bool   `env:"TABLES_CROSS_GROUP" envDefault:"false"`
	MaxGroups        int    `env:"TABLES_MAX_GROUPS" envDefault:"25"`
	TxAttempts       int    `env:"TABLES_TX_ATTEMPTS" envDefault:"3"`
	RedisURL         string `env:"REDIS_CONNECTION_STRING"`
}

// Auth configures bearer token validation.
type Auth struct {
	Domain   string `env:"AUTH0_DOMAIN"`
	Audience string `env:"AUTH0_AUDIENCE"`
	// LocalMode "hs256" accepts tokens signed with TestSecret instead of JWKS.
	LocalMode   string        `env:"LOCAL_AUTH_MODE"`
	TestSecret  string        `env:"TEST_JWT_SECRET"`
	KeyCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"15m"`
}

// SharedSecret reports whether tokens are checked with the local secret.
func (a Auth) SharedSecret() bool { return a.LocalMode == "hs256" }

// Issuer is the expected token issuer for the configured domain.
func (a Auth) Issuer() string {
	if a.Domain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/", a.Domain)
}

// JWKSURL returns the key set location for the configured domain.
func (a Auth) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", a.Domain)
}

// Mail configures outbound email. An empty SMTPAddr logs mail instead.
type Mail struct {
	SMTPAddr string `env:"SMTP_ADDR"`
	From     string `env:"MAIL_FROM" envDefault:"noreply@conference-central.local"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
}

// API is the configuration of the HTTP service.
type API struct {
	Debug      bool          `env:"DEBUG"`
	Port       string        `env:"FUNCTIONS_CUSTOMHANDLER_PORT" envDefault:"8080"`
	DeduperTTL time.Duration `env:"DEDUPER_TTL" envDefault:"24h"`
	CronToken  string        `env:"CRON_TOKEN"`

	// AnnouncementInterval and Mail apply to the in-process worker the API
	// runs when the queue is local.
	AnnouncementInterval time.Duration `env:"ANNOUNCEMENT_INTERVAL" envDefault:"1h"`
	Mail                 Mail

	Storage Storage
	Auth    Auth
}

// Worker is the configuration of the task worker.
type Worker struct {
	Debug                bool          `env:"DEBUG"`
	IdleWait             time.Duration `env:"WORKER_IDLE_WAIT" envDefault:"1s"`
	VisibilityTimeout    time.Duration `env:"TASK_VISIBILITY_TIMEOUT" envDefault:"30s"`
	MaxDequeue           int64         `env:"TASK_MAX_DEQUEUE" envDefault:"5"`
	AnnouncementInterval time.Duration `env:"ANNOUNCEMENT_INTERVAL" envDefault:"1h"`
	Storage              Storage
	Mail                 Mail
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadAPI parses and validates the API configuration.
func LoadAPI() (API, error) {
	var cfg API
	if err := ParseEnv(&cfg); err != nil {
		return API{}, err
	}
	if err := cfg.Validate(); err != nil {
		return API{}, err
	}
	return cfg, nil
}

// LoadWorker parses and validates the worker configuration.
func LoadWorker() (Worker, error) {
	var cfg Worker
	if err := ParseEnv(&cfg); err != nil {
		return Worker{}, err
	}
	if err := cfg.Storage.Validate(); err != nil {
		return Worker{}, err
	}
	return cfg, nil
}

func (s Storage) Validate() error {
	switch s.Driver {
	case DriverTables:
		if s.ConnectionString == "" {
			return errors.New("STORAGE_CONNECTION_STRING is required for the tables driver")
		}
		if s.Table == "" || s.TaskQueue == "" {
			return errors.New("CONFERENCE_TABLE and TASK_QUEUE are required for the tables driver")
		}
	case DriverSQLite:
		if s.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", s.Driver)
	}
	if s.MaxGroups <= 0 || s.TxAttempts <= 0 {
		return errors.New("TABLES_MAX_GROUPS and TABLES_TX_ATTEMPTS must be positive")
	}
	return nil
}

func (c API) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Auth.SharedSecret() {
		if c.Auth.TestSecret == "" {
			return errors.New("TEST_JWT_SECRET is required when LOCAL_AUTH_MODE=hs256")
		}
		return nil
	}
	if c.Auth.Domain == "" || c.Auth.Audience == "" {
		return errors.New("AUTH0_DOMAIN and AUTH0_AUDIENCE are required")
	}
	return nil
}

// ConfigureLogging sets the standard logger level from the DEBUG flag.
func ConfigureLogging(debug bool) *log.Logger {
	logger := log.StandardLogger()
	if debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
