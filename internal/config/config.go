package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values, populated from
// environment variables (see the envconfig tags for the variable names).
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Database   DatabaseConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations. The gRPC
// listener only serves the standard health-checking and reflection
// services; set the port to an empty string to disable it.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// DatabaseConfig selects and configures the persistent store.
// DB_DRIVER is "postgres" for production and "sqlite" for local
// development; the SQLite path may be ":memory:".
type DatabaseConfig struct {
	Driver     string `envconfig:"DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"catalog.db"`
	Postgres   PostgresConfig
}

// PostgresConfig holds PostgreSQL database connection details. The fields
// are only required when DB_DRIVER is "postgres"; Load validates that.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName)
}

var cfg Config

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	log.Println("INFO: Loading service configuration...")
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.User == "" || cfg.Database.Postgres.DBName == "" {
			return nil, fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_HOST, POSTGRES_USER and POSTGRES_DBNAME")
		}
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			return nil, fmt.Errorf("DB_DRIVER=sqlite requires SQLITE_PATH")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %q (expected postgres or sqlite)", cfg.Database.Driver)
	}

	log.Printf("INFO: Configuration loaded for APP_ENV: %s, DB_DRIVER: %s", cfg.AppEnv, cfg.Database.Driver)
	return &cfg, nil
}
