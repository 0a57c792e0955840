package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"storflow/internal/models"
	"storflow/internal/orchestrator"
)

// ==================== Operation Queries ====================

// The operation record is stored as a JSONB document alongside the columns
// the API filters on. The orchestrator owns the record; Put is an upsert of
// the latest snapshot.

// Put inserts or replaces an operation snapshot
func (db *DB) Put(ctx context.Context, op *models.StorageOperation) error {
	record, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode operation %s: %w", op.ID, err)
	}

	query := `
		INSERT INTO storage_operations (id, status, source_chain, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    record = EXCLUDED.record,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		op.ID,
		op.Status,
		op.SourceChain,
		record,
		op.CreatedAt,
		op.UpdatedAt,
	)
	return err
}

// Get retrieves one operation by id
func (db *DB) Get(ctx context.Context, id string) (*models.StorageOperation, error) {
	var record []byte
	query := `SELECT record FROM storage_operations WHERE id = $1`
	err := db.GetContext(ctx, &record, query, id)
	if err == sql.ErrNoRows {
		return nil, orchestrator.ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}

	var op models.StorageOperation
	if err := json.Unmarshal(record, &op); err != nil {
		return nil, fmt.Errorf("failed to decode operation %s: %w", id, err)
	}
	return &op, nil
}

// List retrieves all operations, newest first
func (db *DB) List(ctx context.Context) ([]*models.StorageOperation, error) {
	var records [][]byte
	query := `SELECT record FROM storage_operations ORDER BY created_at DESC`
	if err := db.SelectContext(ctx, &records, query); err != nil {
		return nil, err
	}

	ops := make([]*models.StorageOperation, 0, len(records))
	for _, record := range records {
		var op models.StorageOperation
		if err := json.Unmarshal(record, &op); err != nil {
			return nil, fmt.Errorf("failed to decode operation record: %w", err)
		}
		ops = append(ops, &op)
	}
	return ops, nil
}
