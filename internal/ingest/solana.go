package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

const (
	// Helius serves up to 1000 enriched transactions per page.
	heliusMaxRecords      = 1000
	solanaMaxTransactions = 50000
	solanaMaxRetries      = 3
)

// SolanaIngestor pages backwards through an address's history on the Helius
// enriched transactions API using a before-signature cursor.
type SolanaIngestor struct {
	client  *indexerClient
	baseURL string
	apiKey  string
	logger  *slog.Logger

	// retryDelay is overridable in tests.
	retryDelay time.Duration
}

func NewSolanaIngestor(baseURL, apiKey string, timeout time.Duration, logger logging.Logger) *SolanaIngestor {
	return &SolanaIngestor{
		client:     newIndexerClient(timeout),
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger.WithComponent("solana_ingestor"),
		retryDelay: 500 * time.Millisecond,
	}
}

// FetchAll returns the address's transactions newest first, capped at
// solanaMaxTransactions. Rate-limited pages are retried up to
// solanaMaxRetries before the partial history is returned.
func (in *SolanaIngestor) FetchAll(ctx context.Context, address string) ([]models.HeliusTx, error) {
	var all []models.HeliusTx
	seen := make(map[string]struct{})
	beforeSignature := ""
	page := 0

	for {
		if len(all) >= solanaMaxTransactions {
			in.logger.Warn("transaction limit reached", "address", address, "limit", solanaMaxTransactions)
			return all[:solanaMaxTransactions], nil
		}
		page++

		batch, err := in.fetchPage(ctx, address, beforeSignature)
		if err != nil {
			if isNotFound(err) && page == 1 {
				return nil, nil
			}
			if len(all) > 0 {
				in.logger.Warn("page fetch failed, returning partial",
					"address", address, "page", page, "error", err.Error())
				return all, nil
			}
			return nil, fmt.Errorf("failed to fetch transactions for %s: %w", address, err)
		}
		if len(batch) == 0 {
			break
		}

		added := 0
		for _, tx := range batch {
			if _, dup := seen[tx.Signature]; dup {
				continue
			}
			seen[tx.Signature] = struct{}{}
			all = append(all, tx)
			added++
		}
		if added == 0 {
			in.logger.Debug("page contained only duplicates", "address", address, "page", page)
			break
		}
		if len(batch) < heliusMaxRecords {
			break
		}
		beforeSignature = batch[len(batch)-1].Signature
	}

	in.logger.Debug("history fetched", "address", address, "transactions", len(all))
	return all, nil
}

func (in *SolanaIngestor) fetchPage(ctx context.Context, address, beforeSignature string) ([]models.HeliusTx, error) {
	url := fmt.Sprintf("%s/v0/addresses/%s/transactions?api-key=%s", in.baseURL, address, in.apiKey)
	if beforeSignature != "" {
		url += "&before=" + beforeSignature
	}

	var lastErr error
	for attempt := 1; attempt <= solanaMaxRetries; attempt++ {
		var batch []models.HeliusTx
		err := in.client.getJSON(ctx, url, nil, &batch)
		if err == nil {
			return batch, nil
		}
		if !isRateLimited(err) {
			return nil, err
		}
		lastErr = err
		in.logger.Debug("rate limited", "address", address, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(in.retryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("retry attempts exhausted")
	}
	return nil, lastErr
}
