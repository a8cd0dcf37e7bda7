package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sigilum/chainrisk/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// StoredModel is one persisted model artifact with its metadata.
type StoredModel struct {
	Chain    models.ChainType
	Metadata models.ModelMetadata
	Artifact []byte
}

// StateRepository persists the state that must survive a restart: the
// per-chain model artifacts with their metadata, and the price cache
// snapshot so historical quotes are not re-fetched after a deploy.
type StateRepository struct {
	pool DatabasePool
}

func NewStateRepository(pool DatabasePool) *StateRepository {
	return &StateRepository{pool: pool}
}

// SaveModel upserts one chain's model artifact and metadata.
func (r *StateRepository) SaveModel(ctx context.Context, chain models.ChainType, meta *models.ModelMetadata, artifact []byte) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode model metadata: %w", err)
	}

	query := `
		INSERT INTO model_artifacts (chain, metadata, artifact, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chain)
		DO UPDATE SET metadata = EXCLUDED.metadata, artifact = EXCLUDED.artifact, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, string(chain), metaJSON, artifact); err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}
	return nil
}

// LoadModels returns every persisted model artifact. An empty table is not
// an error; a fresh deployment simply has no models yet.
func (r *StateRepository) LoadModels(ctx context.Context) ([]StoredModel, error) {
	query := `SELECT chain, metadata, artifact FROM model_artifacts ORDER BY chain`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifacts: %w", err)
	}
	defer rows.Close()

	var stored []StoredModel
	for rows.Next() {
		var (
			chain    string
			metaJSON []byte
			artifact []byte
		)
		if err := rows.Scan(&chain, &metaJSON, &artifact); err != nil {
			return nil, fmt.Errorf("failed to scan model artifact row: %w", err)
		}
		var meta models.ModelMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for chain %s: %w", chain, err)
		}
		stored = append(stored, StoredModel{
			Chain:    models.ChainType(chain),
			Metadata: meta,
			Artifact: artifact,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate model artifact rows: %w", err)
	}
	return stored, nil
}

// SavePriceSnapshot replaces the persisted price cache snapshot.
func (r *StateRepository) SavePriceSnapshot(ctx context.Context, quotes map[string]models.PriceQuote) error {
	snapshot, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("failed to encode price snapshot: %w", err)
	}

	query := `
		INSERT INTO price_snapshots (id, snapshot, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, snapshot); err != nil {
		return fmt.Errorf("failed to save price snapshot: %w", err)
	}
	return nil
}

// LoadPriceSnapshot returns the persisted price cache, or nil when no
// snapshot has been saved yet.
func (r *StateRepository) LoadPriceSnapshot(ctx context.Context) (map[string]models.PriceQuote, error) {
	query := `SELECT snapshot FROM price_snapshots WHERE id = 1`

	var snapshot []byte
	err := r.pool.QueryRow(ctx, query).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load price snapshot: %w", err)
	}

	var quotes map[string]models.PriceQuote
	if err := json.Unmarshal(snapshot, &quotes); err != nil {
		return nil, fmt.Errorf("failed to decode price snapshot: %w", err)
	}
	return quotes, nil
}
