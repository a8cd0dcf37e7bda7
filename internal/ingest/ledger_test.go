package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/models"
)

func TestLedgerIngestorMergesTokens(t *testing.T) {
	byToken := map[string][]models.LedgerTx{
		"ICP": {
			{Type: models.LedgerTransfer, TimestampNanos: 2e18, From: "aaaaa-aa", To: "self", Amount: 1.5, IsIncoming: true, TokenSymbol: "ICP"},
		},
		"ckBTC": {
			{Type: models.LedgerMint, TimestampNanos: 1e18, From: models.LedgerSystemAccount, To: "self", Amount: 0.01, IsIncoming: true, TokenSymbol: "ckBTC"},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		txs, ok := byToken[token]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(ledgerTxResponse{Transactions: txs})
	}))
	defer srv.Close()

	in := NewLedgerIngestor(srv.URL, time.Second, testIngestLogger())
	txs, err := in.FetchAll(context.Background(), "ryjl3-tyaaa-aaaaa-aaaba-cai")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "ckBTC", txs[0].TokenSymbol, "merged history is sorted by timestamp")
	assert.Equal(t, "ICP", txs[1].TokenSymbol)
}

func TestLedgerIngestorPartialLedgerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "ICP" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(ledgerTxResponse{Transactions: []models.LedgerTx{
			{Type: models.LedgerTransfer, TimestampNanos: 1e18, Amount: 2.0, TokenSymbol: "ICP"},
		}})
	}))
	defer srv.Close()

	in := NewLedgerIngestor(srv.URL, time.Second, testIngestLogger())
	txs, err := in.FetchAll(context.Background(), "ryjl3-tyaaa-aaaaa-aaaba-cai")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLedgerIngestorAllLedgersFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	in := NewLedgerIngestor(srv.URL, time.Second, testIngestLogger())
	_, err := in.FetchAll(context.Background(), "ryjl3-tyaaa-aaaaa-aaaba-cai")
	require.Error(t, err)
}

func TestLedgerIngestorFetchBalances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ledgerBalanceResponse{Balances: []models.TokenBalance{
			{Symbol: "ICP", Amount: decimal.NewFromFloat(12.5), USDValue: 62.5},
		}})
	}))
	defer srv.Close()

	in := NewLedgerIngestor(srv.URL, time.Second, testIngestLogger())
	balances, err := in.FetchBalances(context.Background(), "ryjl3-tyaaa-aaaaa-aaaba-cai")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "ICP", balances[0].Symbol)
	assert.True(t, balances[0].Amount.Equal(decimal.NewFromFloat(12.5)))
}

func TestLedgerIngestorMissingAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	in := NewLedgerIngestor(srv.URL, time.Second, testIngestLogger())
	balances, err := in.FetchBalances(context.Background(), "ryjl3-tyaaa-aaaaa-aaaba-cai")
	require.NoError(t, err)
	assert.Empty(t, balances)
}
