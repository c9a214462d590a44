// internal/handler/device_handler.go
package handler

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"micmgmt-service/internal/device"
	"micmgmt-service/internal/service"
	"micmgmt-service/internal/utils"
	"micmgmt-service/pkg/micsdk"
)

// DeviceHandler handles card query and control requests
type DeviceHandler struct {
	deviceService    *service.DeviceService
	operationService *service.OperationService
	logger           *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *service.DeviceService, operationService *service.OperationService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService:    deviceService,
		operationService: operationService,
		logger:           utils.NewServiceLogger(logger, "device-handler"),
	}
}

// SetLedRequest selects the LED mode
type SetLedRequest struct {
	Mode *uint32 `json:"mode" binding:"required"`
}

// SetTurboRequest enables or disables turbo
type SetTurboRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetPowerThresholdRequest programs one power window
type SetPowerThresholdRequest struct {
	Window     *int   `json:"window" binding:"required"`
	PowerUW    uint32 `json:"power_uw" binding:"required"`
	TimeWindow uint32 `json:"time_window_us" binding:"required"`
}

// WriteSmcRequest carries hex encoded register data
type WriteSmcRequest struct {
	Data string `json:"data" binding:"required"`
}

// RestartSmbaRequest carries the address training hint
type RestartSmbaRequest struct {
	Hint int `json:"hint"`
}

// RegisterRoutes registers device routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	{
		devices.GET("", h.ListDevices)

		card := devices.Group("/:index")
		{
			card.GET("", h.GetDevice)
			card.POST("/open", h.OpenDevice)
			card.POST("/close", h.CloseDevice)

			card.GET("/thermal", h.GetThermal)
			card.GET("/voltage", h.GetVoltage)
			card.GET("/power", h.GetPower)
			card.GET("/power-thresholds", h.GetPowerThresholds)
			card.PUT("/power-thresholds", h.SetPowerThreshold)
			card.GET("/memory", h.GetMemory)
			card.GET("/processor", h.GetProcessor)
			card.GET("/cores", h.GetCoreUsage)
			card.GET("/platform", h.GetPlatform)
			card.GET("/hardware", h.GetHardware)
			card.GET("/fan", h.GetFan)

			card.GET("/led", h.GetLed)
			card.PUT("/led", h.SetLed)
			card.GET("/turbo", h.GetTurbo)
			card.PUT("/turbo", h.SetTurbo)
			card.GET("/smba", h.GetSmba)
			card.POST("/smba/restart", h.RestartSmba)

			card.GET("/smc/:offset", h.ReadSmcRegister)
			card.PUT("/smc/:offset", h.WriteSmcRegister)
		}
	}
}

// ListDevices lists managed cards
// @Summary List devices
// @Description List every managed coprocessor with its channel and card state
// @Tags Devices
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.DeviceSummary} "Devices retrieved successfully"
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices := h.deviceService.ListDevices()
	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", devices)
}

// GetDevice returns one card
// @Summary Get device
// @Tags Devices
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=model.DeviceSummary} "Device retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid device number"
// @Failure 404 {object} utils.APIResponse "No such device"
// @Router /devices/{index} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	summary, err := h.deviceService.GetDevice(index)
	if err != nil {
		utils.DeviceErrorResponse(c, "Failed to get device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", summary)
}

// OpenDevice opens the channels of a card
// @Summary Open device
// @Description Open the control and monitoring channels of a card and run the version handshake
// @Tags Devices
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=model.DeviceSummary} "Device opened"
// @Failure 409 {object} utils.APIResponse "Device already open"
// @Failure 502 {object} utils.APIResponse "Failed to open device"
// @Router /devices/{index}/open [post]
func (h *DeviceHandler) OpenDevice(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	if err := h.deviceService.OpenDevice(c.Request.Context(), index); err != nil {
		h.logger.Warn("Failed to open device", zap.Int("device", index), zap.Error(err))
		utils.DeviceErrorResponse(c, "Failed to open device", err)
		return
	}
	h.logger.Info("Device opened", zap.Int("device", index))
	h.respondSummary(c, index, "Device opened")
}

// CloseDevice closes the channels of a card
// @Summary Close device
// @Tags Devices
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=model.DeviceSummary} "Device closed"
// @Failure 409 {object} utils.APIResponse "Device not open"
// @Router /devices/{index}/close [post]
func (h *DeviceHandler) CloseDevice(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	if err := h.deviceService.CloseDevice(index); err != nil {
		utils.DeviceErrorResponse(c, "Failed to close device", err)
		return
	}
	h.logger.Info("Device closed", zap.Int("device", index))
	h.respondSummary(c, index, "Device closed")
}

func (h *DeviceHandler) respondSummary(c *gin.Context, index int, message string) {
	summary, err := h.deviceService.GetDevice(index)
	if err != nil {
		utils.DeviceErrorResponse(c, message, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, message, summary)
}

// respondQuery writes the result of a card query.
func respondQuery[T any](c *gin.Context, what string, query func(int) (T, error)) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	result, err := query(index)
	if err != nil {
		utils.DeviceErrorResponse(c, "Failed to read "+what, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, what+" retrieved successfully", result)
}

// GetThermal returns temperatures and fan readings
// @Summary Thermal sensors
// @Tags Sensors
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.ThermalInfo}
// @Failure 409 {object} utils.APIResponse "Device not open"
// @Router /devices/{index}/thermal [get]
func (h *DeviceHandler) GetThermal(c *gin.Context) {
	respondQuery(c, "Thermal info", h.deviceService.Thermal)
}

// GetVoltage returns rail voltages
// @Summary Voltage sensors
// @Tags Sensors
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.VoltageInfo}
// @Router /devices/{index}/voltage [get]
func (h *DeviceHandler) GetVoltage(c *gin.Context) {
	respondQuery(c, "Voltage info", h.deviceService.Voltage)
}

// GetPower returns power draw
// @Summary Power sensors
// @Tags Sensors
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.PowerUsage}
// @Router /devices/{index}/power [get]
func (h *DeviceHandler) GetPower(c *gin.Context) {
	respondQuery(c, "Power usage", h.deviceService.Power)
}

// GetPowerThresholds returns the power limits
// @Summary Power thresholds
// @Tags Sensors
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.PowerThresholds}
// @Router /devices/{index}/power-thresholds [get]
func (h *DeviceHandler) GetPowerThresholds(c *gin.Context) {
	respondQuery(c, "Power thresholds", h.deviceService.PowerThresholds)
}

// GetMemory returns memory usage and GDDR details
// @Summary Memory
// @Tags Inventory
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=service.MemoryReport}
// @Router /devices/{index}/memory [get]
func (h *DeviceHandler) GetMemory(c *gin.Context) {
	respondQuery(c, "Memory info", h.deviceService.Memory)
}

// GetProcessor returns processor and core details
// @Summary Processor
// @Tags Inventory
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=service.ProcessorReport}
// @Router /devices/{index}/processor [get]
func (h *DeviceHandler) GetProcessor(c *gin.Context) {
	respondQuery(c, "Processor info", h.deviceService.Processor)
}

// GetCoreUsage returns per core tick counters
// @Summary Core usage
// @Tags Sensors
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.CoreUsage}
// @Router /devices/{index}/cores [get]
func (h *DeviceHandler) GetCoreUsage(c *gin.Context) {
	respondQuery(c, "Core usage", h.deviceService.CoreUsage)
}

// GetPlatform returns board and firmware details
// @Summary Platform
// @Tags Inventory
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.PlatformInfo}
// @Router /devices/{index}/platform [get]
func (h *DeviceHandler) GetPlatform(c *gin.Context) {
	respondQuery(c, "Platform info", h.deviceService.Platform)
}

// GetHardware returns the RAS hardware inventory
// @Summary Hardware inventory
// @Tags Inventory
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.HardwareInfo}
// @Failure 501 {object} utils.APIResponse "Monitoring channel disabled"
// @Router /devices/{index}/hardware [get]
func (h *DeviceHandler) GetHardware(c *gin.Context) {
	respondQuery(c, "Hardware info", h.deviceService.Hardware)
}

// GetFan returns the RAS fan status
// @Summary Fan status
// @Tags Sensors
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.FanStatus}
// @Router /devices/{index}/fan [get]
func (h *DeviceHandler) GetFan(c *gin.Context) {
	respondQuery(c, "Fan status", h.deviceService.Fan)
}

// GetLed returns the LED mode
// @Summary LED mode
// @Tags Controls
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=service.LedState}
// @Router /devices/{index}/led [get]
func (h *DeviceHandler) GetLed(c *gin.Context) {
	respondQuery(c, "LED mode", h.deviceService.Led)
}

// GetTurbo returns the turbo state
// @Summary Turbo state
// @Tags Controls
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.TurboState}
// @Router /devices/{index}/turbo [get]
func (h *DeviceHandler) GetTurbo(c *gin.Context) {
	respondQuery(c, "Turbo state", h.deviceService.Turbo)
}

// GetSmba returns the SMBus address training status
// @Summary SMBus address status
// @Tags Controls
// @Produce json
// @Param index path int true "Card index"
// @Success 200 {object} utils.APIResponse{data=device.SmbaStatus}
// @Router /devices/{index}/smba [get]
func (h *DeviceHandler) GetSmba(c *gin.Context) {
	respondQuery(c, "SMBus address status", h.deviceService.Smba)
}

// SetLed switches the LED mode
// @Summary Set LED mode
// @Description Mode 0 is normal, 1 is identify. The change is recorded as a control operation.
// @Tags Controls
// @Accept json
// @Produce json
// @Param index path int true "Card index"
// @Param request body SetLedRequest true "LED mode"
// @Success 200 {object} utils.APIResponse{data=model.ControlOperation}
// @Failure 400 {object} utils.APIResponse "Invalid mode"
// @Router /devices/{index}/led [put]
func (h *DeviceHandler) SetLed(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	var req SetLedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	operation, err := h.operationService.SetLedMode(c.Request.Context(), index, *req.Mode, utils.GetRequestID(c))
	h.respondOperation(c, "LED mode updated", operation, err)
}

// SetTurbo enables or disables turbo
// @Summary Set turbo
// @Tags Controls
// @Accept json
// @Produce json
// @Param index path int true "Card index"
// @Param request body SetTurboRequest true "Turbo state"
// @Success 200 {object} utils.APIResponse{data=model.ControlOperation}
// @Router /devices/{index}/turbo [put]
func (h *DeviceHandler) SetTurbo(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	var req SetTurboRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	operation, err := h.operationService.SetTurbo(c.Request.Context(), index, *req.Enabled, utils.GetRequestID(c))
	h.respondOperation(c, "Turbo state updated", operation, err)
}

// SetPowerThreshold programs a power window
// @Summary Set power threshold
// @Description Program power window 0 or 1. The time window is in microseconds.
// @Tags Controls
// @Accept json
// @Produce json
// @Param index path int true "Card index"
// @Param request body SetPowerThresholdRequest true "Power window"
// @Success 200 {object} utils.APIResponse{data=model.ControlOperation}
// @Router /devices/{index}/power-thresholds [put]
func (h *DeviceHandler) SetPowerThreshold(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	var req SetPowerThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	operation, err := h.operationService.SetPowerThreshold(c.Request.Context(), index,
		device.PowerWindow(*req.Window), req.PowerUW, req.TimeWindow, utils.GetRequestID(c))
	h.respondOperation(c, "Power threshold updated", operation, err)
}

// RestartSmba starts SMBus address training
// @Summary Restart SMBus address training
// @Tags Controls
// @Accept json
// @Produce json
// @Param index path int true "Card index"
// @Param request body RestartSmbaRequest false "Training hint"
// @Success 200 {object} utils.APIResponse{data=model.ControlOperation}
// @Failure 504 {object} utils.APIResponse "Training did not finish"
// @Router /devices/{index}/smba/restart [post]
func (h *DeviceHandler) RestartSmba(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	var req RestartSmbaRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	operation, err := h.operationService.RestartSmba(c.Request.Context(), index, req.Hint, utils.GetRequestID(c))
	h.respondOperation(c, "SMBus address training restarted", operation, err)
}

// ReadSmcRegister reads one SMC register
// @Summary Read SMC register
// @Tags SMC
// @Produce json
// @Param index path int true "Card index"
// @Param offset path string true "Register offset, decimal or 0x prefixed hex"
// @Success 200 {object} utils.APIResponse{data=service.SmcRegisterValue}
// @Failure 400 {object} utils.APIResponse "Invalid SMC register offset"
// @Failure 403 {object} utils.APIResponse "SMC operation not permitted"
// @Router /devices/{index}/smc/{offset} [get]
func (h *DeviceHandler) ReadSmcRegister(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	offset, ok := parseOffset(c)
	if !ok {
		return
	}
	value, err := h.deviceService.ReadSmcRegister(index, offset)
	if err != nil {
		utils.DeviceErrorResponse(c, "Failed to read SMC register", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "SMC register read", value)
}

// WriteSmcRegister writes one SMC register
// @Summary Write SMC register
// @Description Requires security.smc_write_enabled. Data is hex encoded.
// @Tags SMC
// @Accept json
// @Produce json
// @Param index path int true "Card index"
// @Param offset path string true "Register offset, decimal or 0x prefixed hex"
// @Param request body WriteSmcRequest true "Register data"
// @Success 200 {object} utils.APIResponse{data=model.ControlOperation}
// @Failure 403 {object} utils.APIResponse "Writes disabled or register is read only"
// @Router /devices/{index}/smc/{offset} [put]
func (h *DeviceHandler) WriteSmcRegister(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}
	offset, ok := parseOffset(c)
	if !ok {
		return
	}
	var req WriteSmcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	data, err := hex.DecodeString(req.Data)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Data must be hex encoded", fmt.Errorf("%w: %w", micsdk.InvalidArg, err))
		return
	}
	operation, err := h.operationService.WriteSmcRegister(c.Request.Context(), index, offset, data, utils.GetRequestID(c))
	h.respondOperation(c, "SMC register written", operation, err)
}

func (h *DeviceHandler) respondOperation(c *gin.Context, message string, operation any, err error) {
	if err != nil {
		h.logger.Warn("Control operation failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", utils.GetRequestID(c)),
			zap.Error(err),
		)
		utils.DeviceErrorResponse(c, "Control operation failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, message, operation)
}

func parseIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid device number",
			fmt.Errorf("%w: %q", micsdk.InvalidDeviceNumber, c.Param("index")))
		return 0, false
	}
	return index, true
}

func parseOffset(c *gin.Context) (uint8, bool) {
	offset, err := strconv.ParseUint(c.Param("offset"), 0, 8)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid SMC register offset",
			fmt.Errorf("%w: %q", micsdk.InvalidSmcRegOffset, c.Param("offset")))
		return 0, false
	}
	return uint8(offset), true
}
