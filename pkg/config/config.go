package config

import (
	"fmt"
	"os"
	"time"
)

// Config configuración principal de la aplicación
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Chat     ChatConfig
}

// ServerConfig configuración del servidor HTTP
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configuración de PostgreSQL
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configuración de Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EngineConfig tuning for the workflow executor
type EngineConfig struct {
	// NodeTimeout bounds a single node execution when the node itself
	// carries no timeout.
	NodeTimeout time.Duration

	// RunTimeout bounds a full workflow run.
	RunTimeout time.Duration

	// ExecutionLogCap entries kept per workflow, newest first.
	ExecutionLogCap int

	// UnresolvedPolicy is what the template resolver does with a
	// {{path}} it cannot resolve: keep-literal, empty or error.
	UnresolvedPolicy string

	// AutoReactivate reloads persisted active workflows into the
	// in-memory registry on boot. Off by default: the registry is
	// intentionally empty after a restart until workflows are
	// re-activated.
	AutoReactivate bool
}

// ChatConfig configuración del chat widget backend
type ChatConfig struct {
	SessionTTL      time.Duration
	MaxHistorySize  int
	CleanupSchedule string // cron expression
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", getEnv("POSTGRES_HOST", "localhost")),
			Port:            getEnv("DB_PORT", getEnv("POSTGRES_PORT", "5432")),
			User:            getEnv("DB_USER", getEnv("POSTGRES_USER", "postgres")),
			Password:        getEnv("DB_PASSWORD", getEnv("POSTGRES_PASSWORD", "postgres")),
			DBName:          getEnv("DB_NAME", getEnv("POSTGRES_DB", "flowbot")),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			NodeTimeout:      getDurationEnv("ENGINE_NODE_TIMEOUT", 30*time.Second),
			RunTimeout:       getDurationEnv("ENGINE_RUN_TIMEOUT", 2*time.Minute),
			ExecutionLogCap:  getIntEnv("ENGINE_EXECUTION_LOG_CAP", 50),
			UnresolvedPolicy: getEnv("ENGINE_UNRESOLVED_POLICY", "keep-literal"),
			AutoReactivate:   getBoolEnv("ENGINE_AUTO_REACTIVATE", false),
		},
		Chat: ChatConfig{
			SessionTTL:      getDurationEnv("CHAT_SESSION_TTL", 24*time.Hour),
			MaxHistorySize:  getIntEnv("CHAT_MAX_HISTORY", 200),
			CleanupSchedule: getEnv("CHAT_CLEANUP_SCHEDULE", "@every 15m"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate valida la configuración
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	switch c.Engine.UnresolvedPolicy {
	case "keep-literal", "empty", "error":
	default:
		return fmt.Errorf("ENGINE_UNRESOLVED_POLICY must be keep-literal, empty or error")
	}

	if c.Engine.ExecutionLogCap <= 0 {
		return fmt.Errorf("ENGINE_EXECUTION_LOG_CAP must be positive")
	}

	return nil
}

// GetDSN retorna el DSN de PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr retorna la dirección de Redis
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
