// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"micmgmt-service/internal/model"
)

// MemoryTelemetryRepository keeps the most recent samples in memory. It is
// used when the database is disabled.
type MemoryTelemetryRepository struct {
	samples  []*model.TelemetrySample
	capacity int
	mu       sync.RWMutex
}

// NewMemoryTelemetryRepository keeps at most capacity samples.
func NewMemoryTelemetryRepository(capacity int) *MemoryTelemetryRepository {
	if capacity <= 0 {
		capacity = maxSampleLimit
	}
	return &MemoryTelemetryRepository{capacity: capacity}
}

func (r *MemoryTelemetryRepository) InsertBatch(ctx context.Context, samples []*model.TelemetrySample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, samples...)
	if excess := len(r.samples) - r.capacity; excess > 0 {
		r.samples = slices.Delete(r.samples, 0, excess)
	}
	return nil
}

func (r *MemoryTelemetryRepository) List(ctx context.Context, filter *SampleFilter) ([]*model.TelemetrySample, error) {
	filter.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*model.TelemetrySample{}
	for i := len(r.samples) - 1; i >= 0 && len(result) < filter.Limit; i-- {
		s := r.samples[i]
		if filter.DeviceIndex != nil && s.DeviceIndex != *filter.DeviceIndex {
			continue
		}
		if filter.Sensor != "" && s.Sensor != filter.Sensor {
			continue
		}
		if filter.Since != nil && s.SampledAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && s.SampledAt.After(*filter.Until) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (r *MemoryTelemetryRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.samples)
	r.samples = slices.DeleteFunc(r.samples, func(s *model.TelemetrySample) bool {
		return s.SampledAt.Before(olderThan)
	})
	return int64(before - len(r.samples)), nil
}

// MemoryOperationRepository keeps the operation audit trail in memory.
type MemoryOperationRepository struct {
	operations []*model.ControlOperation
	mu         sync.RWMutex
}

func NewMemoryOperationRepository() *MemoryOperationRepository {
	return &MemoryOperationRepository{}
}

func (r *MemoryOperationRepository) Create(ctx context.Context, operation *model.ControlOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *operation
	r.operations = append(r.operations, &stored)
	return nil
}

func (r *MemoryOperationRepository) Update(ctx context.Context, operation *model.ControlOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, op := range r.operations {
		if op.ID == operation.ID {
			stored := *operation
			r.operations[i] = &stored
			return nil
		}
	}
	return fmt.Errorf("%w: operation %s", ErrNotFound, operation.ID)
}

func (r *MemoryOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ControlOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, op := range r.operations {
		if op.ID == id {
			found := *op
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: operation %s", ErrNotFound, id)
}

func (r *MemoryOperationRepository) List(ctx context.Context, filter *OperationFilter) ([]*model.ControlOperation, int, error) {
	filter.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*model.ControlOperation
	for i := len(r.operations) - 1; i >= 0; i-- {
		op := r.operations[i]
		if filter.DeviceIndex != nil && op.DeviceIndex != *filter.DeviceIndex {
			continue
		}
		if filter.OperationType != nil && op.OperationType != *filter.OperationType {
			continue
		}
		if filter.Status != nil && op.Status != *filter.Status {
			continue
		}
		if filter.StartDate != nil && op.StartedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && op.StartedAt.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, op)
	}

	total := len(matched)
	from := min((filter.Page-1)*filter.PerPage, total)
	to := min(from+filter.PerPage, total)

	page := make([]*model.ControlOperation, 0, to-from)
	for _, op := range matched[from:to] {
		copied := *op
		page = append(page, &copied)
	}
	return page, total, nil
}

func (r *MemoryOperationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.operations)
	r.operations = slices.DeleteFunc(r.operations, func(op *model.ControlOperation) bool {
		return op.StartedAt.Before(olderThan)
	})
	return int64(before - len(r.operations)), nil
}
