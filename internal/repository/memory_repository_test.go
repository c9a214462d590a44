// internal/repository/memory_repository_test.go
package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micmgmt-service/internal/model"
)

func sample(index int, sensor string, at time.Time) *model.TelemetrySample {
	return &model.TelemetrySample{
		ID:          uuid.New(),
		DeviceIndex: index,
		Sensor:      sensor,
		Value:       decimal.NewFromInt(42),
		Unit:        "C",
		Valid:       true,
		SampledAt:   at,
	}
}

func TestMemoryTelemetryCapacityAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTelemetryRepository(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.InsertBatch(ctx, []*model.TelemetrySample{sample(0, "Die", base.Add(time.Duration(i)*time.Second))}))
	}

	samples, err := repo.List(ctx, &SampleFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, base.Add(4*time.Second), samples[0].SampledAt)
	assert.Equal(t, base.Add(2*time.Second), samples[2].SampledAt)
}

func TestMemoryTelemetryFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTelemetryRepository(0)
	base := time.Now()
	require.NoError(t, repo.InsertBatch(ctx, []*model.TelemetrySample{
		sample(0, "Die", base),
		sample(1, "Die", base),
		sample(1, "Exhaust", base.Add(time.Minute)),
	}))

	index := 1
	samples, err := repo.List(ctx, &SampleFilter{DeviceIndex: &index, Sensor: "Die"})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1, samples[0].DeviceIndex)

	since := base.Add(time.Second)
	samples, err = repo.List(ctx, &SampleFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "Exhaust", samples[0].Sensor)

	removed, err := repo.DeleteOlderThan(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestMemoryOperationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOperationRepository()

	op := model.NewControlOperation(0, "mic0", model.OperationTypeTurbo, model.JSONObject{"enabled": true}, "req-1")
	require.NoError(t, repo.Create(ctx, op))

	op.Complete(model.OperationStatusFailed, 0x0c, errors.New("Device I/O error"))
	require.NoError(t, repo.Update(ctx, op))

	got, err := repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusFailed, got.Status)
	assert.Equal(t, 0x0c, got.ResultCode)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Device I/O error", *got.ErrorMessage)
	assert.True(t, got.IsCompleted())

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, model.NewControlOperation(0, "mic0", model.OperationTypeTurbo, nil, "")), ErrNotFound)
}

func TestMemoryOperationPaging(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOperationRepository()
	for i := 0; i < 5; i++ {
		opType := model.OperationTypeLedMode
		if i%2 == 1 {
			opType = model.OperationTypeSmcWrite
		}
		require.NoError(t, repo.Create(ctx, model.NewControlOperation(i%2, "mic", opType, nil, "")))
	}

	page, total, err := repo.List(ctx, &OperationFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	smc := model.OperationTypeSmcWrite
	page, total, err = repo.List(ctx, &OperationFilter{OperationType: &smc})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, op := range page {
		assert.Equal(t, 1, op.DeviceIndex)
	}

	page, _, err = repo.List(ctx, &OperationFilter{Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestFilterNormalize(t *testing.T) {
	sf := &SampleFilter{Limit: 1 << 20}
	sf.Normalize()
	assert.Equal(t, maxSampleLimit, sf.Limit)

	of := &OperationFilter{}
	of.Normalize()
	assert.Equal(t, 1, of.Page)
	assert.Equal(t, defaultPerPage, of.PerPage)
}
