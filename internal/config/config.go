package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType            string // mysql, postgres, sqlite, sqlserver, etc.
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Downstream content stores; empty URL selects the in-memory store.
	DraftStoreURL   string
	LiveStoreURL    string
	StoreTimeoutSec int

	// Message broker; empty URL selects the in-memory broker.
	AMQPURL        string
	BrokerExchange string

	// Downstream worker pool
	WorkerCount int
	QueueDepth  int

	// Link types the legacy replace path never deletes, and publishing
	// apps it skips entirely. Kept configurable because the app
	// allow-list is a migration measure due for removal.
	ProtectedLinkTypes []string
	ProtectedApps      []string

	// Link types consulted, in priority order, when resolving dependents.
	DependencyFallbackOrder []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		DBType:            getEnv("DB_TYPE", "mysql"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBDatabase:        getEnv("DB_DATABASE", ""),
		DBUser:            getEnv("DB_USER", ""),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBConnectionLimit: getEnvAsInt("DB_CONNECTION_LIMIT", 5),

		DraftStoreURL:   getEnv("DRAFT_STORE_URL", ""),
		LiveStoreURL:    getEnv("LIVE_STORE_URL", ""),
		StoreTimeoutSec: getEnvAsInt("STORE_TIMEOUT_SECONDS", 10),

		AMQPURL:        getEnv("AMQP_URL", ""),
		BrokerExchange: getEnv("BROKER_EXCHANGE", "published_documents"),

		WorkerCount: getEnvAsInt("DOWNSTREAM_WORKERS", 4),
		QueueDepth:  getEnvAsInt("DOWNSTREAM_QUEUE_DEPTH", 1024),

		ProtectedLinkTypes:      getEnvAsList("PROTECTED_LINK_TYPES", []string{"taxons"}),
		ProtectedApps:           getEnvAsList("PROTECTED_APPS", []string{"specialist-publisher"}),
		DependencyFallbackOrder: getEnvAsList("DEPENDENCY_FALLBACK_ORDER", []string{"parent"}),
	}

	// Validate required fields
	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBType != "sqlite" && cfg.DBUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
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

// getEnvAsList gets a comma-separated environment variable as a string slice
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
