package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

const (
	// Etherscan serves up to 10000 records per unpaginated query; a full
	// page means more history exists past the last block.
	etherscanMaxRecords     = 10000
	ethereumMaxTransactions = 10000
)

type etherscanResponse struct {
	Status  string               `json:"status"`
	Message string               `json:"message"`
	Result  []models.EtherscanTx `json:"result"`
}

// EthereumIngestor merges the native (txlist) and token (tokentx) histories
// of an address from an Etherscan compatible API. Pages advance by start
// block since Etherscan truncates rather than paginates.
type EthereumIngestor struct {
	client  *indexerClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewEthereumIngestor(baseURL, apiKey string, timeout time.Duration, logger logging.Logger) *EthereumIngestor {
	return &EthereumIngestor{
		client:  newIndexerClient(timeout),
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger.WithComponent("ethereum_ingestor"),
	}
}

// FetchAll returns the merged native and token history sorted by timestamp,
// capped at ethereumMaxTransactions. Token records inherit gas fields from
// their parent native transaction, and the parent itself is suppressed so
// each on-chain transaction contributes exactly one record.
func (in *EthereumIngestor) FetchAll(ctx context.Context, address string) ([]models.EtherscanTx, error) {
	ethTxs, err := in.fetchAllPages(ctx, "txlist", address)
	if err != nil {
		return nil, err
	}
	tokenTxs, err := in.fetchAllPages(ctx, "tokentx", address)
	if err != nil {
		if len(ethTxs) == 0 {
			return nil, err
		}
		in.logger.Warn("token history fetch failed, continuing with native only",
			"address", address, "error", err.Error())
		tokenTxs = nil
	}

	parentByHash := make(map[string]models.EtherscanTx, len(ethTxs))
	for _, tx := range ethTxs {
		parentByHash[tx.Hash] = tx
	}

	all := make([]models.EtherscanTx, 0, len(ethTxs)+len(tokenTxs))
	tokenParents := make(map[string]struct{}, len(tokenTxs))
	for _, tx := range tokenTxs {
		tokenParents[tx.Hash] = struct{}{}
		if parent, ok := parentByHash[tx.Hash]; ok {
			tx.GasUsed = parent.GasUsed
			tx.GasPrice = parent.GasPrice
		}
		all = append(all, tx)
	}
	for _, tx := range ethTxs {
		if _, isTokenParent := tokenParents[tx.Hash]; !isTokenParent {
			all = append(all, tx)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time().Before(all[j].Time())
	})

	if len(all) > ethereumMaxTransactions {
		in.logger.Warn("transaction limit reached", "address", address,
			"limit", ethereumMaxTransactions, "found", len(all))
		all = all[:ethereumMaxTransactions]
	}
	return all, nil
}

func (in *EthereumIngestor) fetchAllPages(ctx context.Context, action, address string) ([]models.EtherscanTx, error) {
	var all []models.EtherscanTx
	seen := make(map[string]struct{})
	startBlock := uint64(0)

	for {
		batch, err := in.fetchPage(ctx, action, address, startBlock)
		if err != nil {
			if len(all) > 0 {
				in.logger.Warn("page fetch failed, returning partial",
					"address", address, "action", action, "error", err.Error())
				return all, nil
			}
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		added := 0
		for _, tx := range batch {
			key := action + "|" + tx.Hash + "|" + tx.ContractAddress + "|" + tx.From + "|" + tx.To + "|" + tx.Value
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, tx)
			added++
		}
		if added == 0 {
			break
		}
		if len(all) >= ethereumMaxTransactions || len(batch) < etherscanMaxRecords {
			break
		}
		startBlock = all[len(all)-1].BlockNumberUint() + 1
	}
	return all, nil
}

func (in *EthereumIngestor) fetchPage(ctx context.Context, action, address string, startBlock uint64) ([]models.EtherscanTx, error) {
	url := fmt.Sprintf("%s?module=account&action=%s&address=%s&startblock=%d&endblock=99999999&sort=asc&apikey=%s",
		in.baseURL, action, address, startBlock, in.apiKey)

	var resp etherscanResponse
	if err := in.client.getJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "1" {
		return resp.Result, nil
	}
	if strings.Contains(resp.Message, "No transactions found") {
		return nil, nil
	}
	return nil, fmt.Errorf("etherscan error: %s", resp.Message)
}
