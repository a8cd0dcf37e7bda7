package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Chain-native wire types as returned by the indexer APIs. Every optional
// field carries an explicit default on parse: missing numeric strings become
// 0, missing addresses become "". Records that fail to parse entirely are
// skipped by the ingestors, never fatal to the batch.

// MempoolTx is one transaction from the mempool.space address endpoint.
type MempoolTx struct {
	TxID   string          `json:"txid"`
	Fee    int64           `json:"fee"`
	Status MempoolTxStatus `json:"status"`
	Vin    []MempoolVin    `json:"vin"`
	Vout   []MempoolVout   `json:"vout"`
}

// MempoolTxStatus carries confirmation state. BlockHeight 0 means
// unconfirmed; unconfirmed transactions are excluded from analysis.
type MempoolTxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

type MempoolVin struct {
	Prevout *MempoolVout `json:"prevout"`
}

type MempoolVout struct {
	Address string `json:"scriptpubkey_address"`
	Value   int64  `json:"value"`
}

// EtherscanTx is one record from the Etherscan txlist or tokentx actions.
// Etherscan serializes every numeric field as a string.
type EtherscanTx struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// BlockNumberUint parses the block number, defaulting to 0.
func (t *EtherscanTx) BlockNumberUint() uint64 {
	n, err := strconv.ParseUint(t.BlockNumber, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Time parses the unix timestamp, defaulting to the zero time.
func (t *EtherscanTx) Time() time.Time {
	s, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil || s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0).UTC()
}

// ValueFloat parses the raw integer value string, defaulting to 0.
func (t *EtherscanTx) ValueFloat() float64 {
	v, err := strconv.ParseFloat(t.Value, 64)
	if err != nil {
		return 0
	}
	return v
}

// GasCostWei returns gasUsed * gasPrice in wei, defaulting to 0 when either
// field is missing or malformed.
func (t *EtherscanTx) GasCostWei() float64 {
	used, err := strconv.ParseFloat(t.GasUsed, 64)
	if err != nil {
		return 0
	}
	price, err := strconv.ParseFloat(t.GasPrice, 64)
	if err != nil {
		return 0
	}
	return used * price
}

// TokenDecimals parses the token decimal count, defaulting to 18.
func (t *EtherscanTx) TokenDecimals() int {
	d, err := strconv.Atoi(t.TokenDecimal)
	if err != nil || d < 0 {
		return 18
	}
	return d
}

// IsTokenTransfer reports whether the record came from the tokentx action.
func (t *EtherscanTx) IsTokenTransfer() bool {
	return t.ContractAddress != "" && t.TokenSymbol != ""
}

// HeliusTx is one enriched transaction from the Helius address endpoint.
type HeliusTx struct {
	Signature        string                 `json:"signature"`
	Slot             uint64                 `json:"slot"`
	Timestamp        int64                  `json:"timestamp"`
	Fee              int64                  `json:"fee"`
	FeePayer         string                 `json:"feePayer"`
	TransactionError map[string]interface{} `json:"transactionError"`
	NativeTransfers  []HeliusNativeTransfer `json:"nativeTransfers"`
	TokenTransfers   []HeliusTokenTransfer  `json:"tokenTransfers"`
	Instructions     []HeliusInstruction    `json:"instructions"`
}

// Failed reports whether the transaction errored on chain.
func (t *HeliusTx) Failed() bool {
	return len(t.TransactionError) > 0
}

type HeliusNativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

type HeliusTokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
}

type HeliusInstruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
}

// LedgerTxType is the operation kind on the ledger-style chain.
type LedgerTxType string

const (
	LedgerTransfer LedgerTxType = "transfer"
	LedgerMint     LedgerTxType = "mint"
	LedgerBurn     LedgerTxType = "burn"
)

// LedgerSystemAccount is the synthetic counterparty used for mint and burn
// operations, which have no real peer account.
const LedgerSystemAccount = "system"

// LedgerTx is one operation from the ledger-style chain's block query API,
// already resolved to token units.
type LedgerTx struct {
	Type           LedgerTxType `json:"tx_type"`
	TimestampNanos uint64       `json:"timestamp"`
	BlockIndex     uint64       `json:"block_index"`
	From           string       `json:"from_address"`
	To             string       `json:"to_address"`
	Amount         float64      `json:"amount"`
	Fee            float64      `json:"fee"`
	IsOutgoing     bool         `json:"is_outgoing"`
	IsIncoming     bool         `json:"is_incoming"`
	TokenSymbol    string       `json:"token_symbol"`
}

// Time converts the nanosecond timestamp, defaulting to the zero time.
func (t *LedgerTx) Time() time.Time {
	if t.TimestampNanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(t.TimestampNanos)).UTC()
}

// TokenBalance is one held asset on the ledger-style chain. Amounts use
// decimal arithmetic so 8 and 18 decimal tokens aggregate without drift.
type TokenBalance struct {
	Symbol   string          `json:"symbol"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue float64         `json:"usd_value"`
}
