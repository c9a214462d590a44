// internal/repository/operation_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"micmgmt-service/internal/database"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/utils"
)

const operationColumns = `id, device_index, device_name, operation_type, parameters,
			   status, result_code, error_message, request_id,
			   started_at, completed_at, duration_ms`

// operationRepository implements OperationRepository interface
type operationRepository struct {
	db     *database.DB
	logger *utils.ServiceLogger
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *database.DB, logger *zap.Logger) OperationRepository {
	return &operationRepository{
		db:     db,
		logger: utils.NewServiceLogger(logger, "operation-repository"),
	}
}

// Create creates a new operation
func (r *operationRepository) Create(ctx context.Context, operation *model.ControlOperation) error {
	query := `
		INSERT INTO control_operations (
			id, device_index, device_name, operation_type, parameters,
			status, result_code, request_id, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.DeviceIndex, operation.DeviceName,
		operation.OperationType, operation.Parameters, operation.Status,
		operation.ResultCode, operation.RequestID, operation.StartedAt,
	)
	r.logger.LogStatement("insert control_operations", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// Update stores the outcome of a completed operation
func (r *operationRepository) Update(ctx context.Context, operation *model.ControlOperation) error {
	query := `
		UPDATE control_operations SET
			status = $2, result_code = $3, error_message = $4,
			completed_at = $5, duration_ms = $6
		WHERE id = $1
	`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		operation.ID, operation.Status, operation.ResultCode,
		operation.ErrorMessage, operation.CompletedAt, operation.DurationMs,
	)
	r.logger.LogStatement("update control_operations", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: operation %s", ErrNotFound, operation.ID)
	}

	return nil
}

// GetByID retrieves an operation by ID
func (r *operationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ControlOperation, error) {
	query := fmt.Sprintf(`SELECT %s FROM control_operations WHERE id = $1`, operationColumns)

	operation, err := scanOperation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: operation %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return operation, nil
}

// List retrieves operations with filtering and pagination
func (r *operationRepository) List(ctx context.Context, filter *OperationFilter) ([]*model.ControlOperation, int, error) {
	filter.Normalize()

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.DeviceIndex != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device_index = $%d", argIndex))
		args = append(args, *filter.DeviceIndex)
		argIndex++
	}

	if filter.OperationType != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("operation_type = $%d", argIndex))
		args = append(args, *filter.OperationType)
		argIndex++
	}

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("started_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("started_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	// Count total records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM control_operations %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count operations: %w", err)
	}

	offset := (filter.Page - 1) * filter.PerPage
	query := fmt.Sprintf(`
		SELECT %s
		FROM control_operations %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d
	`, operationColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.PerPage, offset)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.logger.LogStatement("select control_operations", time.Since(start), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	operations := []*model.ControlOperation{}
	for rows.Next() {
		operation, err := scanOperation(rows)
		if err != nil {
			r.logger.Error("Failed to scan operation row", zap.Error(err))
			continue
		}
		operations = append(operations, operation)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate operations: %w", err)
	}

	return operations, total, nil
}

// DeleteOldOperations removes operations started before olderThan
func (r *operationRepository) DeleteOldOperations(ctx context.Context, olderThan time.Time) (int64, error) {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, `DELETE FROM control_operations WHERE started_at < $1`, olderThan)
	r.logger.LogStatement("delete control_operations", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old operations: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*model.ControlOperation, error) {
	operation := &model.ControlOperation{}
	var requestID sql.NullString
	err := row.Scan(
		&operation.ID, &operation.DeviceIndex, &operation.DeviceName,
		&operation.OperationType, &operation.Parameters, &operation.Status,
		&operation.ResultCode, &operation.ErrorMessage, &requestID,
		&operation.StartedAt, &operation.CompletedAt, &operation.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	operation.RequestID = requestID.String
	return operation, nil
}
