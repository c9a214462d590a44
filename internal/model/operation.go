// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationTypeLedMode        OperationType = "LED_MODE"
	OperationTypeTurbo          OperationType = "TURBO"
	OperationTypeSmcWrite       OperationType = "SMC_WRITE"
	OperationTypePowerThreshold OperationType = "POWER_THRESHOLD"
	OperationTypeSmbaRestart    OperationType = "SMBA_RESTART"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending OperationStatus = "PENDING"
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusFailed  OperationStatus = "FAILED"
	OperationStatusDenied  OperationStatus = "DENIED"
)

// ControlOperation is the audit record of a state changing request.
type ControlOperation struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	DeviceIndex   int             `json:"device_index" db:"device_index"`
	DeviceName    string          `json:"device_name" db:"device_name"`
	OperationType OperationType   `json:"operation_type" db:"operation_type"`
	Parameters    JSONObject      `json:"parameters" db:"parameters"`
	Status        OperationStatus `json:"status" db:"status"`
	ResultCode    int             `json:"result_code" db:"result_code"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	RequestID     string          `json:"request_id,omitempty" db:"request_id"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs    *int            `json:"duration_ms,omitempty" db:"duration_ms"`
}

// NewControlOperation creates a pending operation stamped with the current time.
func NewControlOperation(deviceIndex int, deviceName string, opType OperationType, params JSONObject, requestID string) *ControlOperation {
	return &ControlOperation{
		ID:            uuid.New(),
		DeviceIndex:   deviceIndex,
		DeviceName:    deviceName,
		OperationType: opType,
		Parameters:    params,
		Status:        OperationStatusPending,
		RequestID:     requestID,
		StartedAt:     time.Now(),
	}
}

// Complete records the outcome. resultCode is the device result code of err.
func (op *ControlOperation) Complete(status OperationStatus, resultCode int, err error) {
	now := time.Now()
	duration := int(now.Sub(op.StartedAt).Milliseconds())
	op.Status = status
	op.ResultCode = resultCode
	op.CompletedAt = &now
	op.DurationMs = &duration
	if err != nil {
		msg := err.Error()
		op.ErrorMessage = &msg
	}
}

// IsCompleted checks if operation is completed
func (op *ControlOperation) IsCompleted() bool {
	return op.Status != OperationStatusPending
}
