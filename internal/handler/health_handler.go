// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/database"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/service"
	"micmgmt-service/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler handles health check requests. db is nil when persistence
// is disabled.
type HealthHandler struct {
	db            *database.DB
	discovery     *service.DiscoveryService
	deviceService *service.DeviceService
	config        *config.Config
	startedAt     time.Time
	logger        *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	db *database.DB,
	discovery *service.DiscoveryService,
	deviceService *service.DeviceService,
	config *config.Config,
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:            db,
		discovery:     discovery,
		deviceService: deviceService,
		config:        config,
		startedAt:     time.Now(),
		logger:        utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check
// @Summary Health check
// @Description Overall service health including driver, cards and database
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Failure 503 {object} HealthResponse "Service is unhealthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	checks := map[string]CheckResult{
		"driver":  h.checkDriver(),
		"devices": h.checkDevices(),
	}
	if h.db != nil {
		checks["database"] = h.checkDatabase(c.Request.Context())
	}

	status := "healthy"
	for _, check := range checks {
		if check.Status == "unhealthy" {
			status = "unhealthy"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.Any("checks", checks))
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, &HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    checks,
	})
}

func (h *HealthHandler) checkDriver() CheckResult {
	if !h.discovery.DriverLoaded() {
		return CheckResult{Status: "unhealthy", Message: "mic driver not loaded"}
	}
	return CheckResult{Status: "healthy", Message: "mic driver loaded"}
}

// checkDevices degrades, but never fails, when a managed card is not open.
func (h *HealthHandler) checkDevices() CheckResult {
	devices := h.deviceService.ListDevices()
	var closed []string
	for _, dev := range devices {
		if dev.Status != model.DeviceStatusOpen {
			closed = append(closed, dev.Name)
		}
	}

	result := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"total": len(devices),
			"open":  len(devices) - len(closed),
		},
	}
	if len(closed) > 0 {
		result.Status = "degraded"
		result.Message = "not open: " + strings.Join(closed, ", ")
	}
	return result
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckResult {
	if err := h.pingDatabase(ctx); err != nil {
		return CheckResult{Status: "unhealthy", Message: err.Error()}
	}
	stats := h.db.Stats()
	return CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		},
	}
}

// ReadinessCheck for Kubernetes readiness probe
// @Summary Readiness check
// @Description Ready when the mic driver is loaded and the database, if enabled, answers
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	reason := ""
	if check := h.checkDriver(); check.Status != "healthy" {
		reason = check.Message
	} else if h.db != nil {
		if check := h.checkDatabase(c.Request.Context()); check.Status != "healthy" {
			reason = "database not available"
		}
	}
	if reason != "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return h.db.Health(ctx)
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
