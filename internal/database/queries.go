package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// =============================================================================
// TABULAR DATASET QUERIES
// =============================================================================

// GetDataset retrieves a tabular dataset record by source hash.
func (c *Client) GetDataset(ctx context.Context, sourceHash string) (*DatasetRecord, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT source_url_hash, human_name, source_url, update_freq, result_ids,
		       date_added, table_name, created_at, updated_at
		FROM meta_master
		WHERE source_url_hash = $1
	`, sourceHash)

	var r DatasetRecord
	err := row.Scan(
		&r.SourceHash, &r.HumanName, &r.SourceURL, &r.UpdateFreq,
		pq.Array(&r.ResultIDs), &r.DateAdded, &r.TableName, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", sourceHash, err)
	}
	return &r, nil
}

// UpdateDatasetRunHistory writes the full run id history back in a single
// update scoped by the dataset's primary key. The read-modify-write around
// this call is serialized only by the store's per-row atomicity; see the
// run tracker for the accepted race.
func (c *Client) UpdateDatasetRunHistory(ctx context.Context, sourceHash string, resultIDs []string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE meta_master
		SET result_ids = $2, updated_at = NOW()
		WHERE source_url_hash = $1
	`, sourceHash, pq.Array(resultIDs))
	if err != nil {
		return fmt.Errorf("failed to update run history for %s: %w", sourceHash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDatasetIngested stamps date_added after a successful first ingestion.
func (c *Client) MarkDatasetIngested(ctx context.Context, sourceHash string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE meta_master
		SET date_added = COALESCE(date_added, NOW()), updated_at = NOW()
		WHERE source_url_hash = $1
	`, sourceHash)
	if err != nil {
		return fmt.Errorf("failed to mark dataset %s ingested: %w", sourceHash, err)
	}
	return nil
}

// DeleteDataset removes the metadata record for a tabular dataset.
func (c *Client) DeleteDataset(ctx context.Context, sourceHash string) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM meta_master WHERE source_url_hash = $1
	`, sourceHash)
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", sourceHash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// SHAPE DATASET QUERIES
// =============================================================================

// GetShape retrieves a shape dataset record by table name.
func (c *Client) GetShape(ctx context.Context, tableName string) (*ShapeRecord, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT table_name, dataset_name, source_url, update_freq, is_ingested,
		       run_id, created_at, updated_at
		FROM meta_shape
		WHERE table_name = $1
	`, tableName)

	var r ShapeRecord
	err := row.Scan(
		&r.TableName, &r.DatasetName, &r.SourceURL, &r.UpdateFreq,
		&r.IsIngested, &r.RunID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shape %s: %w", tableName, err)
	}
	return &r, nil
}

// SetShapeRunID replaces the shape's single run id slot.
func (c *Client) SetShapeRunID(ctx context.Context, tableName, runID string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE meta_shape
		SET run_id = $2, updated_at = NOW()
		WHERE table_name = $1
	`, tableName, runID)
	if err != nil {
		return fmt.Errorf("failed to set run id for shape %s: %w", tableName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkShapeIngested flips is_ingested after a successful add.
func (c *Client) MarkShapeIngested(ctx context.Context, tableName string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE meta_shape
		SET is_ingested = TRUE, updated_at = NOW()
		WHERE table_name = $1
	`, tableName)
	if err != nil {
		return fmt.Errorf("failed to mark shape %s ingested: %w", tableName, err)
	}
	return nil
}

// DeleteShape removes the metadata record for a shape dataset.
func (c *Client) DeleteShape(ctx context.Context, tableName string) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM meta_shape WHERE table_name = $1
	`, tableName)
	if err != nil {
		return fmt.Errorf("failed to delete shape %s: %w", tableName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// STORAGE TABLE QUERIES
// =============================================================================

// EnsureTable creates a dataset's backing storage table if it does not
// already exist.
func (c *Client) EnsureTable(ctx context.Context, tableName string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			payload JSONB NOT NULL DEFAULT '{}',
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, quoteIdent(tableName)))
	if err != nil {
		return fmt.Errorf("failed to ensure table %s: %w", tableName, err)
	}
	return nil
}

// DropTable drops a dataset's backing storage table. An already absent table
// is success, so the drop is safe to repeat.
func (c *Client) DropTable(ctx context.Context, tableName string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(tableName)))
	if err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}
	return nil
}

// =============================================================================
// FREQUENCY QUERIES
// =============================================================================

// ListDatasetsByFrequency returns the source hashes of tabular datasets due
// at the given cadence. Only datasets that have been successfully ingested at
// least once (date_added set) are eligible for periodic refresh.
func (c *Client) ListDatasetsByFrequency(ctx context.Context, freq Frequency) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT source_url_hash
		FROM meta_master
		WHERE update_freq = $1 AND date_added IS NOT NULL
		ORDER BY source_url_hash
	`, string(freq))
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets for %s: %w", freq, err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// ListShapesByFrequency returns the table names of ingested shape datasets
// due at the given cadence.
func (c *Client) ListShapesByFrequency(ctx context.Context, freq Frequency) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name
		FROM meta_shape
		WHERE update_freq = $1 AND is_ingested = TRUE
		ORDER BY table_name
	`, string(freq))
	if err != nil {
		return nil, fmt.Errorf("failed to list shapes for %s: %w", freq, err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

func scanKeys(rows *sql.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
