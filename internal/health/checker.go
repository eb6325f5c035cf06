package health

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// HealthStatus represents the overall system health
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Message   string                   `json:"message"`
	Services  map[string]ServiceHealth `json:"services"`
	Bots      int                      `json:"running_bots"`
	Uptime    string                   `json:"uptime"`
}

// ServiceHealth represents health of a service
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Latency string `json:"latency_ms"`
}

// BotCounter reports how many workspace bots are running
type BotCounter interface {
	BotCount() int
}

// HealthChecker performs health checks on system components
type HealthChecker struct {
	db        *gorm.DB
	bots      BotCounter
	startTime time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *gorm.DB, bots BotCounter) *HealthChecker {
	return &HealthChecker{
		db:        db,
		bots:      bots,
		startTime: time.Now(),
	}
}

// Check performs a complete health check
func (hc *HealthChecker) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceHealth),
		Uptime:    hc.calculateUptime(),
	}

	dbHealth := hc.checkDatabase(ctx)
	status.Services["database"] = dbHealth

	if hc.bots != nil {
		status.Bots = hc.bots.BotCount()
	}

	if dbHealth.Status != "healthy" {
		status.Status = "degraded"
		status.Message = "Database connectivity issue"
	} else {
		status.Message = fmt.Sprintf("System operating normally with %d running bots", status.Bots)
	}

	return status
}

// checkDatabase verifies database connectivity
func (hc *HealthChecker) checkDatabase(ctx context.Context) ServiceHealth {
	start := time.Now()

	sqlDB, err := hc.db.DB()
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = sqlDB.PingContext(pingCtx)
		cancel()
	}
	latency := time.Since(start)

	if err != nil {
		return ServiceHealth{
			Status:  "unhealthy",
			Message: "Database connection failed: " + err.Error(),
			Latency: fmt.Sprintf("%d", latency.Milliseconds()),
		}
	}

	return ServiceHealth{
		Status:  "healthy",
		Message: "Database connection successful",
		Latency: fmt.Sprintf("%d", latency.Milliseconds()),
	}
}

// calculateUptime calculates system uptime as human-readable string
func (hc *HealthChecker) calculateUptime() string {
	elapsed := time.Since(hc.startTime)

	days := int(elapsed.Hours()) / 24
	hours := int(elapsed.Hours()) % 24
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
