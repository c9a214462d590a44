// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"micmgmt-service/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TelemetryRepository stores sampled sensor readings.
type TelemetryRepository interface {
	InsertBatch(ctx context.Context, samples []*model.TelemetrySample) error
	List(ctx context.Context, filter *SampleFilter) ([]*model.TelemetrySample, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// OperationRepository stores the control operation audit trail.
type OperationRepository interface {
	Create(ctx context.Context, operation *model.ControlOperation) error
	Update(ctx context.Context, operation *model.ControlOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ControlOperation, error)
	List(ctx context.Context, filter *OperationFilter) ([]*model.ControlOperation, int, error)
	DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error)
}

// SampleFilter selects telemetry samples, newest first.
type SampleFilter struct {
	DeviceIndex *int       `json:"device_index,omitempty"`
	Sensor      string     `json:"sensor,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
	Limit       int        `json:"limit"`
}

// OperationFilter represents operation listing filters
type OperationFilter struct {
	DeviceIndex   *int                   `json:"device_index,omitempty"`
	OperationType *model.OperationType   `json:"operation_type,omitempty"`
	Status        *model.OperationStatus `json:"status,omitempty"`
	StartDate     *time.Time             `json:"start_date,omitempty"`
	EndDate       *time.Time             `json:"end_date,omitempty"`
	Page          int                    `json:"page"`
	PerPage       int                    `json:"per_page"`
}

const (
	defaultSampleLimit = 500
	maxSampleLimit     = 10000
	defaultPerPage     = 50
	maxPerPage         = 500
)

// Normalize clamps the limit into its allowed range.
func (f *SampleFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = defaultSampleLimit
	}
	if f.Limit > maxSampleLimit {
		f.Limit = maxSampleLimit
	}
}

// Normalize clamps paging into its allowed range.
func (f *OperationFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
}
