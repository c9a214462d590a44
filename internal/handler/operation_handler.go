// internal/handler/operation_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"micmgmt-service/internal/model"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/service"
	"micmgmt-service/internal/utils"
)

// OperationHandler serves the control audit trail and the sample history
type OperationHandler struct {
	operationService *service.OperationService
	sampler          *service.Sampler
	logger           *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operationService *service.OperationService, sampler *service.Sampler, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		operationService: operationService,
		sampler:          sampler,
		logger:           utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// PaginationResult describes one page of a listing
type PaginationResult struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// RegisterRoutes registers operation and sample routes
func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	operations := router.Group("/operations")
	{
		operations.GET("", h.ListOperations)
		operations.GET("/:id", h.GetOperation)
	}
	router.GET("/samples", h.ListSamples)
}

// ListOperations lists control operations with filtering
// @Summary List operations
// @Description List recorded control operations, newest first
// @Tags Operations
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Param device query int false "Filter by card index"
// @Param operation_type query string false "Filter by operation type" Enums(LED_MODE, TURBO, SMC_WRITE, POWER_THRESHOLD, SMBA_RESTART)
// @Param status query string false "Filter by status" Enums(PENDING, SUCCESS, FAILED, DENIED)
// @Param start_date query string false "Start date filter (RFC3339)"
// @Param end_date query string false "End date filter (RFC3339)"
// @Success 200 {object} utils.APIResponse{data=object{operations=[]model.ControlOperation,pagination=PaginationResult}} "Operations retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /operations [get]
func (h *OperationHandler) ListOperations(c *gin.Context) {
	filter := &repository.OperationFilter{Page: 1}

	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		}
	}
	if perPage := c.Query("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil && pp > 0 {
			filter.PerPage = pp
		}
	}

	index, ok := queryIndex(c)
	if !ok {
		return
	}
	filter.DeviceIndex = index
	if operationType := c.Query("operation_type"); operationType != "" {
		ot := model.OperationType(operationType)
		filter.OperationType = &ot
	}
	if status := c.Query("status"); status != "" {
		s := model.OperationStatus(status)
		filter.Status = &s
	}
	if filter.StartDate, ok = queryTime(c, "start_date"); !ok {
		return
	}
	if filter.EndDate, ok = queryTime(c, "end_date"); !ok {
		return
	}

	operations, total, err := h.operationService.ListOperations(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list operations", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list operations", err)
		return
	}

	response := gin.H{
		"operations": operations,
		"pagination": PaginationResult{
			Page:       filter.Page,
			PerPage:    filter.PerPage,
			Total:      total,
			TotalPages: (total + filter.PerPage - 1) / filter.PerPage,
		},
	}
	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved successfully", response)
}

// GetOperation returns one control operation
// @Summary Get operation
// @Tags Operations
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} utils.APIResponse{data=model.ControlOperation} "Operation retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid operation ID"
// @Failure 404 {object} utils.APIResponse "Operation not found"
// @Router /operations/{id} [get]
func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid operation ID", err)
		return
	}

	operation, err := h.operationService.GetOperation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Operation not found", err)
			return
		}
		h.logger.Error("Failed to get operation", zap.String("operation_id", id.String()), zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get operation", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Operation retrieved successfully", operation)
}

// ListSamples returns stored telemetry samples
// @Summary Sample history
// @Description Stored sensor readings, newest first
// @Tags Telemetry
// @Produce json
// @Param device query int false "Filter by card index"
// @Param sensor query string false "Filter by sensor name"
// @Param since query string false "Oldest sample time (RFC3339)"
// @Param until query string false "Newest sample time (RFC3339)"
// @Param limit query int false "Maximum number of samples" default(500)
// @Success 200 {object} utils.APIResponse{data=[]model.TelemetrySample} "Samples retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /samples [get]
func (h *OperationHandler) ListSamples(c *gin.Context) {
	filter := &repository.SampleFilter{Sensor: c.Query("sensor")}

	var ok bool
	if filter.DeviceIndex, ok = queryIndex(c); !ok {
		return
	}
	if filter.Since, ok = queryTime(c, "since"); !ok {
		return
	}
	if filter.Until, ok = queryTime(c, "until"); !ok {
		return
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	samples, err := h.sampler.History(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list samples", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list samples", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Samples retrieved successfully", samples)
}

func queryIndex(c *gin.Context) (*int, bool) {
	raw := c.Query("device")
	if raw == "" {
		return nil, true
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		utils.ValidationErrorResponse(c, map[string]string{"device": "must be a non-negative card index"})
		return nil, false
	}
	return &index, true
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{name: "must be an RFC3339 timestamp"})
		return nil, false
	}
	return &t, true
}
