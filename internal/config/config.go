package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Health   HealthConfig
	Agent    AgentConfig
	Service  ServiceConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Enabled bool
	URL     string
	Subject string
}

// HealthConfig holds publish-lag monitoring configuration
type HealthConfig struct {
	CheckInterval  time.Duration
	StaleAfter     time.Duration
	LaggingAfter   time.Duration
	MaxUnpublished int
}

// AgentConfig holds learner hyperparameters
type AgentConfig struct {
	Variant         string
	Alpha           float64
	Gamma           float64
	HiddenSize      int
	LearningRate    float64
	BufferCapacity  int
	BatchSize       int
	TargetSyncEvery int
	Seed            int64
}

// ServiceConfig holds decision service settings
type ServiceConfig struct {
	AgentIDs          []string
	ExplorationRate   float64
	PublishEvery      int
	ActivateOnPublish bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8080),
			Host:            getEnvString("HOST", "0.0.0.0"),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", false),
			Host:     getEnvString("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnvString("DB_USER", "postgres"),
			Password: getEnvString("DB_PASSWORD", ""),
			DBName:   getEnvString("DB_NAME", "amongequals"),
			SSLMode:  getEnvString("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnvString("NATS_URL", "nats://localhost:4222"),
			Subject: getEnvString("NATS_SUBJECT", "model-events"),
		},
		Health: HealthConfig{
			CheckInterval:  getEnvDuration("HEALTH_CHECK_INTERVAL", 15*time.Second),
			StaleAfter:     getEnvDuration("PUBLISH_STALE_AFTER", time.Minute),
			LaggingAfter:   getEnvDuration("PUBLISH_LAGGING_AFTER", 5*time.Minute),
			MaxUnpublished: getEnvInt("PUBLISH_MAX_UNPUBLISHED", 1000),
		},
		Agent: AgentConfig{
			Variant:         getEnvString("AGENT_VARIANT", "tabular"),
			Alpha:           getEnvFloat("AGENT_ALPHA", 0.1),
			Gamma:           getEnvFloat("AGENT_GAMMA", 0.95),
			HiddenSize:      getEnvInt("AGENT_HIDDEN_SIZE", 32),
			LearningRate:    getEnvFloat("AGENT_LEARNING_RATE", 0.001),
			BufferCapacity:  getEnvInt("AGENT_BUFFER_CAPACITY", 10000),
			BatchSize:       getEnvInt("AGENT_BATCH_SIZE", 32),
			TargetSyncEvery: getEnvInt("AGENT_TARGET_SYNC_EVERY", 100),
			Seed:            int64(getEnvInt("AGENT_SEED", 0)),
		},
		Service: ServiceConfig{
			AgentIDs:          splitList(getEnvString("AGENT_IDS", "npc-default")),
			ExplorationRate:   getEnvFloat("EXPLORATION_RATE", 0.1),
			PublishEvery:      getEnvInt("PUBLISH_EVERY", 500),
			ActivateOnPublish: getEnvBool("ACTIVATE_ON_PUBLISH", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Agent.Variant != "tabular" && c.Agent.Variant != "deepq" {
		return fmt.Errorf("AGENT_VARIANT must be tabular or deepq, got %q", c.Agent.Variant)
	}
	if len(c.Service.AgentIDs) == 0 {
		return fmt.Errorf("AGENT_IDS must name at least one agent")
	}
	if c.Service.ExplorationRate < 0 || c.Service.ExplorationRate > 1 {
		return fmt.Errorf("EXPLORATION_RATE must be in [0, 1], got %g", c.Service.ExplorationRate)
	}
	return nil
}

// ConnectionString returns the database connection string
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
