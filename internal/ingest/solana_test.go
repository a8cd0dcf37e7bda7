package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigilum/chainrisk/internal/models"
)

func solTx(sig string, slot uint64) models.HeliusTx {
	return models.HeliusTx{Signature: sig, Slot: slot, Timestamp: 1650000000 + int64(slot)}
}

func TestSolanaIngestorCursorPagination(t *testing.T) {
	pageOne := make([]models.HeliusTx, heliusMaxRecords)
	for i := range pageOne {
		pageOne[i] = solTx(fmt.Sprintf("sig%04d", i), uint64(1000+i))
	}
	pageTwo := []models.HeliusTx{solTx("tail1", 2001), solTx("tail2", 2002)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("before") {
		case "":
			_ = json.NewEncoder(w).Encode(pageOne)
		case "sig0999":
			_ = json.NewEncoder(w).Encode(pageTwo)
		default:
			_ = json.NewEncoder(w).Encode([]models.HeliusTx{})
		}
	}))
	defer srv.Close()

	in := NewSolanaIngestor(srv.URL, "key", time.Second, testIngestLogger())
	txs, err := in.FetchAll(context.Background(), "So1anaAddr")
	require.NoError(t, err)
	assert.Len(t, txs, heliusMaxRecords+2)
	assert.Equal(t, "tail2", txs[len(txs)-1].Signature)
}

func TestSolanaIngestorRateLimitRetry(t *testing.T) {
	var calls int
	page := []models.HeliusTx{solTx("only", 1)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	in := NewSolanaIngestor(srv.URL, "key", time.Second, testIngestLogger())
	in.retryDelay = time.Millisecond
	txs, err := in.FetchAll(context.Background(), "So1anaAddr")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, 3, calls)
}

func TestSolanaIngestorRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	in := NewSolanaIngestor(srv.URL, "key", time.Second, testIngestLogger())
	in.retryDelay = time.Millisecond
	_, err := in.FetchAll(context.Background(), "So1anaAddr")
	require.Error(t, err)
}

func TestSolanaIngestorDuplicatePageStops(t *testing.T) {
	page := make([]models.HeliusTx, heliusMaxRecords)
	for i := range page {
		page[i] = solTx(fmt.Sprintf("dup%04d", i), uint64(i))
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	in := NewSolanaIngestor(srv.URL, "key", time.Second, testIngestLogger())
	txs, err := in.FetchAll(context.Background(), "So1anaAddr")
	require.NoError(t, err)
	assert.Len(t, txs, heliusMaxRecords)
	assert.Equal(t, 2, calls)
}

func TestSolanaIngestorEmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.HeliusTx{})
	}))
	defer srv.Close()

	in := NewSolanaIngestor(srv.URL, "key", time.Second, testIngestLogger())
	txs, err := in.FetchAll(context.Background(), "So1anaAddr")
	require.NoError(t, err)
	assert.Empty(t, txs)
}
