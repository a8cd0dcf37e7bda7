package database

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/models"
)

// MockPoolAdapter wraps pgxmock.PgxPoolIface to implement DatabasePool.
type MockPoolAdapter struct {
	mock pgxmock.PgxPoolIface
}

func NewMockPoolAdapter(mock pgxmock.PgxPoolIface) DatabasePool {
	return &MockPoolAdapter{mock: mock}
}

func (m *MockPoolAdapter) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return m.mock.QueryRow(ctx, sql, args...)
}

func (m *MockPoolAdapter) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	result, err := m.mock.Exec(ctx, sql, args...)
	if err == nil {
		rows := result.RowsAffected()
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", rows)), nil
	}
	return pgconn.CommandTag{}, err
}

func (m *MockPoolAdapter) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return m.mock.Query(ctx, sql, args...)
}

func stateTestMetadata() *models.ModelMetadata {
	return &models.ModelMetadata{
		FeatureNames:        []string{"total_txs", "btc_sent_total"},
		ScalerMean:          []float64{10, 2.5},
		ScalerScale:         []float64{4, 0.5},
		DeploymentThreshold: 0.5,
	}
}

func TestStateRepository_SaveModel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewStateRepository(NewMockPoolAdapter(mock))
	meta := stateTestMetadata()
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO model_artifacts").
		WithArgs("Bitcoin", metaJSON, []byte{0x01, 0x02}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.SaveModel(context.Background(), models.ChainBitcoin, meta, []byte{0x01, 0x02})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_LoadModels(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewStateRepository(NewMockPoolAdapter(mock))
	metaJSON, err := json.Marshal(stateTestMetadata())
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"chain", "metadata", "artifact"}).
		AddRow("Bitcoin", metaJSON, []byte{0xAA}).
		AddRow("Ethereum", metaJSON, []byte{0xBB})
	mock.ExpectQuery("SELECT chain, metadata, artifact FROM model_artifacts").
		WillReturnRows(rows)

	stored, err := repo.LoadModels(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.ChainBitcoin, stored[0].Chain)
	assert.Equal(t, []byte{0xAA}, stored[0].Artifact)
	assert.Equal(t, []string{"total_txs", "btc_sent_total"}, stored[0].Metadata.FeatureNames)
	assert.Equal(t, models.ChainEthereum, stored[1].Chain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_LoadModelsEmptyTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewStateRepository(NewMockPoolAdapter(mock))
	mock.ExpectQuery("SELECT chain, metadata, artifact FROM model_artifacts").
		WillReturnRows(pgxmock.NewRows([]string{"chain", "metadata", "artifact"}))

	stored, err := repo.LoadModels(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_PriceSnapshotRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewStateRepository(NewMockPoolAdapter(mock))
	quotes := map[string]models.PriceQuote{
		"BTC|2023-05": {AssetID: "BTC", Ratio: 27000, BucketKey: "2023-05", Success: true},
	}
	snapshot, err := json.Marshal(quotes)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO price_snapshots").
		WithArgs(snapshot).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.SavePriceSnapshot(context.Background(), quotes))

	mock.ExpectQuery("SELECT snapshot FROM price_snapshots").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow(snapshot))

	loaded, err := repo.LoadPriceSnapshot(context.Background())
	require.NoError(t, err)
	require.Contains(t, loaded, "BTC|2023-05")
	assert.Equal(t, 27000.0, loaded["BTC|2023-05"].Ratio)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStateRepository_LoadPriceSnapshotMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewStateRepository(NewMockPoolAdapter(mock))
	mock.ExpectQuery("SELECT snapshot FROM price_snapshots").
		WillReturnError(pgx.ErrNoRows)

	loaded, err := repo.LoadPriceSnapshot(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}
