// internal/service/operation_service.go
package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/utils"
	"micmgmt-service/pkg/micsdk"
)

// OperationService executes state changing card requests and keeps their
// audit trail.
type OperationService struct {
	manager        *device.Manager
	operationRepo  repository.OperationRepository
	eventBus       *EventBus
	config         *config.Config
	logger         *utils.ServiceLogger
	auditLogger    *utils.AuditLogger
	securityLogger *utils.SecurityLogger
}

// NewOperationService creates a new operation service instance
func NewOperationService(
	manager *device.Manager,
	operationRepo repository.OperationRepository,
	eventBus *EventBus,
	config *config.Config,
	logger *zap.Logger,
) *OperationService {
	return &OperationService{
		manager:        manager,
		operationRepo:  operationRepo,
		eventBus:       eventBus,
		config:         config,
		logger:         utils.NewServiceLogger(logger, "operation-service"),
		auditLogger:    utils.NewAuditLogger(logger),
		securityLogger: utils.NewSecurityLogger(logger),
	}
}

// SetLedMode switches the card LED between normal and identify mode.
func (os *OperationService) SetLedMode(ctx context.Context, index int, mode uint32, requestID string) (*model.ControlOperation, error) {
	params := model.JSONObject{"mode": mode}
	return os.execute(ctx, index, model.OperationTypeLedMode, params, requestID, func(dev *device.Device) error {
		return dev.SetLedMode(mode)
	})
}

// SetTurbo enables or disables turbo mode.
func (os *OperationService) SetTurbo(ctx context.Context, index int, enabled bool, requestID string) (*model.ControlOperation, error) {
	params := model.JSONObject{"enabled": enabled}
	return os.execute(ctx, index, model.OperationTypeTurbo, params, requestID, func(dev *device.Device) error {
		return dev.SetTurboEnabled(enabled)
	})
}

// SetPowerThreshold programs one power limit window.
func (os *OperationService) SetPowerThreshold(ctx context.Context, index int, window device.PowerWindow, power, timeWindow uint32, requestID string) (*model.ControlOperation, error) {
	params := model.JSONObject{"window": int(window), "power_uw": power, "time_window_us": timeWindow}
	return os.execute(ctx, index, model.OperationTypePowerThreshold, params, requestID, func(dev *device.Device) error {
		return dev.SetPowerThreshold(window, power, timeWindow)
	})
}

// RestartSmba starts SMBus address training.
func (os *OperationService) RestartSmba(ctx context.Context, index, hint int, requestID string) (*model.ControlOperation, error) {
	params := model.JSONObject{"hint": hint}
	return os.execute(ctx, index, model.OperationTypeSmbaRestart, params, requestID, func(dev *device.Device) error {
		return dev.RestartSmba(ctx, hint)
	})
}

// WriteSmcRegister writes one SMC register. Writes are refused with
// NoAccess unless security.smc_write_enabled is set.
func (os *OperationService) WriteSmcRegister(ctx context.Context, index int, offset uint8, data []byte, requestID string) (*model.ControlOperation, error) {
	params := model.JSONObject{"offset": offset, "data": hex.EncodeToString(data)}
	if !os.config.Security.SmcWriteEnabled {
		return os.deny(ctx, index, model.OperationTypeSmcWrite, params, requestID, "SMC register writes are disabled")
	}
	return os.execute(ctx, index, model.OperationTypeSmcWrite, params, requestID, func(dev *device.Device) error {
		return dev.WriteSmcRegister(offset, data)
	})
}

// GetOperation returns one audit record.
func (os *OperationService) GetOperation(ctx context.Context, id uuid.UUID) (*model.ControlOperation, error) {
	return os.operationRepo.GetByID(ctx, id)
}

// ListOperations returns audit records, newest first.
func (os *OperationService) ListOperations(ctx context.Context, filter *repository.OperationFilter) ([]*model.ControlOperation, int, error) {
	operations, total, err := os.operationRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list operations: %w", err)
	}
	return operations, total, nil
}

func (os *OperationService) execute(
	ctx context.Context,
	index int,
	opType model.OperationType,
	params model.JSONObject,
	requestID string,
	fn func(*device.Device) error,
) (*model.ControlOperation, error) {
	dev, err := os.manager.Get(index)
	if err != nil {
		return nil, err
	}

	operation := model.NewControlOperation(index, dev.Name(), opType, params, requestID)
	if err := os.operationRepo.Create(ctx, operation); err != nil {
		os.logger.Error("Failed to record operation", zap.Error(err))
	}

	opLogger := utils.NewOperationLogger(os.logger.Logger, string(opType), operation.ID.String(),
		zap.String("device", dev.Name()), zap.Any("params", params))

	execErr := fn(dev)
	status := model.OperationStatusSuccess
	if execErr != nil {
		status = model.OperationStatusFailed
	}
	opLogger.Finish(execErr)
	operation.Complete(status, int(micsdk.CodeOf(execErr)), execErr)

	os.finish(ctx, dev.Name(), operation)
	if execErr != nil {
		return operation, fmt.Errorf("failed to %s on %s: %w", opType, dev.Name(), execErr)
	}
	return operation, nil
}

func (os *OperationService) deny(
	ctx context.Context,
	index int,
	opType model.OperationType,
	params model.JSONObject,
	requestID string,
	reason string,
) (*model.ControlOperation, error) {
	dev, err := os.manager.Get(index)
	if err != nil {
		return nil, err
	}

	os.securityLogger.LogDeniedOperation(dev.Name(), string(opType), reason)

	denied := fmt.Errorf("%w: %s", micsdk.NoAccess, reason)
	operation := model.NewControlOperation(index, dev.Name(), opType, params, requestID)
	if err := os.operationRepo.Create(ctx, operation); err != nil {
		os.logger.Error("Failed to record operation", zap.Error(err))
	}
	operation.Complete(model.OperationStatusDenied, int(micsdk.NoAccess), denied)

	os.finish(ctx, dev.Name(), operation)
	return operation, denied
}

func (os *OperationService) finish(ctx context.Context, deviceName string, operation *model.ControlOperation) {
	if err := os.operationRepo.Update(ctx, operation); err != nil {
		os.logger.Error("Failed to update operation", zap.Error(err))
	}

	os.auditLogger.LogControlOperation(
		deviceName,
		string(operation.OperationType),
		operation.ID.String(),
		operation.Parameters,
		operation.Status == model.OperationStatusSuccess,
	)

	os.eventBus.Publish(model.NewDeviceEvent(model.EventOperationCompleted, operation.DeviceIndex, deviceName, operation))
}
