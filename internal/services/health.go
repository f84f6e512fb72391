package services

import (
	"fmt"
	"log"

	"github.com/ThomasJones4/publishing-api/internal/config"
	"github.com/ThomasJones4/publishing-api/internal/utils"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	DraftStore   string            `json:"draft_store,omitempty"`
	LiveStore    string            `json:"live_store,omitempty"`
	Broker       string            `json:"broker,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// HealthCheck performs a comprehensive health check of the service
func HealthCheck(cfg *config.Config, db *gorm.DB) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Status = "unhealthy"
		result.Database = "error"
		result.Details["database_error"] = err.Error()
		result.ErrorMessage = fmt.Sprintf("Database connection error: %v", err)
		log.Printf("Health check failed - database connection: %v", err)
	} else {
		if err := sqlDB.Ping(); err != nil {
			result.Status = "unhealthy"
			result.Database = "unreachable"
			result.Details["database_ping_error"] = err.Error()
			result.ErrorMessage = fmt.Sprintf("Database ping failed: %v", err)
			log.Printf("Health check failed - database ping: %v", err)
		} else {
			result.Database = "ok"
			result.Details["database_type"] = cfg.DBType
			result.Details["database_name"] = cfg.DBDatabase
		}
	}

	// Check content store connectivity. An empty URL means the in-memory
	// store is configured; there is nothing to ping.
	result.DraftStore = pingStore(&result, "draft_store", cfg.DraftStoreURL)
	result.LiveStore = pingStore(&result, "live_store", cfg.LiveStoreURL)

	// Check broker connectivity
	if cfg.AMQPURL == "" {
		result.Broker = "in-memory"
	} else if err := utils.PingBroker(cfg.AMQPURL); err != nil {
		result.Status = "unhealthy"
		result.Broker = "unreachable"
		result.Details["broker_error"] = err.Error()
		appendError(&result, fmt.Sprintf("Broker ping failed: %v", err))
		log.Printf("Health check failed - broker ping: %v", err)
	} else {
		result.Broker = "ok"
	}

	if result.Status == "healthy" {
		log.Println("Health check passed - all systems operational")
	}

	return result
}

func pingStore(result *HealthCheckResult, name, storeURL string) string {
	if storeURL == "" {
		return "in-memory"
	}
	if err := utils.PingContentStore(storeURL); err != nil {
		result.Status = "unhealthy"
		result.Details[name+"_error"] = err.Error()
		appendError(result, fmt.Sprintf("%s ping failed: %v", name, err))
		log.Printf("Health check failed - %s ping: %v", name, err)
		return "unreachable"
	}
	result.Details[name+"_url"] = storeURL
	return "ok"
}

func appendError(result *HealthCheckResult, msg string) {
	if result.ErrorMessage == "" {
		result.ErrorMessage = msg
	} else {
		result.ErrorMessage += "; " + msg
	}
}
