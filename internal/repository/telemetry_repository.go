// internal/repository/telemetry_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"micmgmt-service/internal/database"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/utils"
)

type telemetryRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewTelemetryRepository creates the postgres telemetry repository
func NewTelemetryRepository(db *database.DB, logger *zap.Logger) TelemetryRepository {
	return &telemetryRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "telemetry-repository"),
	}
}

// InsertBatch writes all samples in one transaction.
func (r *telemetryRepository) InsertBatch(ctx context.Context, samples []*model.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}

	query := `
		INSERT INTO telemetry_samples (
			id, device_index, device_name, sensor, value, unit, valid, sampled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	start := time.Now()
	err := r.insertBatch(ctx, query, samples)
	r.logger.LogStatement("insert telemetry_samples", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry samples: %w", err)
	}
	return nil
}

func (r *telemetryRepository) insertBatch(ctx context.Context, query string, samples []*model.TelemetrySample) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.ExecContext(ctx, s.ID, s.DeviceIndex, s.DeviceName, s.Sensor, s.Value, s.Unit, s.Valid, s.SampledAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns samples matching filter, newest first.
func (r *telemetryRepository) List(ctx context.Context, filter *SampleFilter) ([]*model.TelemetrySample, error) {
	filter.Normalize()

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.DeviceIndex != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device_index = $%d", argIndex))
		args = append(args, *filter.DeviceIndex)
		argIndex++
	}

	if filter.Sensor != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("sensor = $%d", argIndex))
		args = append(args, filter.Sensor)
		argIndex++
	}

	if filter.Since != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("sampled_at >= $%d", argIndex))
		args = append(args, *filter.Since)
		argIndex++
	}

	if filter.Until != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("sampled_at <= $%d", argIndex))
		args = append(args, *filter.Until)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, device_index, device_name, sensor, value, unit, valid, sampled_at
		FROM telemetry_samples %s
		ORDER BY sampled_at DESC
		LIMIT $%d
	`, whereClause, argIndex)
	args = append(args, filter.Limit)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.logger.LogStatement("select telemetry_samples", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list telemetry samples: %w", err)
	}
	defer rows.Close()

	samples := []*model.TelemetrySample{}
	for rows.Next() {
		s := &model.TelemetrySample{}
		if err := rows.Scan(&s.ID, &s.DeviceIndex, &s.DeviceName, &s.Sensor, &s.Value, &s.Unit, &s.Valid, &s.SampledAt); err != nil {
			r.logger.Error("Failed to scan telemetry row", zap.Error(err))
			continue
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate telemetry samples: %w", err)
	}

	return samples, nil
}

// DeleteOlderThan prunes samples taken before olderThan.
func (r *telemetryRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, `DELETE FROM telemetry_samples WHERE sampled_at < $1`, olderThan)
	r.logger.LogStatement("delete telemetry_samples", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old telemetry samples: %w", err)
	}
	return result.RowsAffected()
}
