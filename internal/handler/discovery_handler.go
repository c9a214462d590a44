// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"micmgmt-service/internal/service"
	"micmgmt-service/internal/utils"
)

// DiscoveryHandler handles card enumeration requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	deviceService    *service.DeviceService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, deviceService *service.DeviceService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		deviceService:    deviceService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/cards", h.ListCards)
		discovery.POST("/scan", h.ScanCards)
	}
}

// ListCards returns the result of the last sysfs scan
// @Summary List installed cards
// @Description Cards found under the mic sysfs class by the last scan
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]discovery.DiscoveredCard} "Cards retrieved successfully"
// @Router /discovery/cards [get]
func (h *DiscoveryHandler) ListCards(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Cards retrieved successfully", h.discoveryService.Cards())
}

// ScanCards rescans sysfs and updates the managed device set
// @Summary Scan for cards
// @Description Rescan the mic sysfs class. With open=true newly found cards are opened.
// @Tags Discovery
// @Produce json
// @Param open query bool false "Open newly found cards" default(false)
// @Success 200 {object} utils.APIResponse{data=service.SyncResult} "Card scan completed"
// @Failure 503 {object} utils.APIResponse "Driver not loaded"
// @Router /discovery/scan [post]
func (h *DiscoveryHandler) ScanCards(c *gin.Context) {
	result, err := h.discoveryService.Sync(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to scan cards", zap.Error(err))
		utils.DeviceErrorResponse(c, "Failed to scan cards", err)
		return
	}

	if c.Query("open") == "true" {
		for _, index := range result.Added {
			if err := h.deviceService.OpenDevice(c.Request.Context(), index); err != nil {
				h.logger.Warn("Failed to open discovered card", zap.Int("device", index), zap.Error(err))
			}
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Card scan completed", result)
}
