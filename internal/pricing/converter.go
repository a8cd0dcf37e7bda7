package pricing

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TokenInfo is the symbol and precision of a token contract or mint.
type TokenInfo struct {
	Symbol   string
	Decimals int
}

// Well-known Ethereum token contracts, consulted before any metadata call.
var knownEthereumTokens = map[string]TokenInfo{
	"0xdac17f958d2ee523a2206206994597c13d831ec7": {Symbol: "USDT", Decimals: 6},
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {Symbol: "USDC", Decimals: 6},
	"0x6b175474e89094c44da98b954eedeac495271d0f": {Symbol: "DAI", Decimals: 18},
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {Symbol: "WETH", Decimals: 18},
	"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": {Symbol: "WBTC", Decimals: 8},
}

const wethContract = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

var ethereumStablecoins = map[string]struct{}{
	"USDT": {}, "USDC": {}, "DAI": {},
}

// WrappedSOLMint is the native coin's token representation on Solana.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Well-known Solana mints.
var knownSolanaTokens = map[string]TokenInfo{
	WrappedSOLMint: {Symbol: "SOL", Decimals: 9},
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {Symbol: "USDC", Decimals: 6},
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {Symbol: "USDT", Decimals: 6},
}

var solanaStablecoins = map[string]struct{}{
	"USDC": {}, "USDT": {}, "BUSD": {}, "DAI": {},
}

// Ledger-chain tokens and their underlying reference assets.
var ledgerTokens = map[string]struct {
	Decimals int
	Ref      AssetRef
}{
	"ICP":    {Decimals: 8, Ref: AssetRef{Symbol: "ICP", GeckoID: "internet-computer", LlamaKey: "coingecko:internet-computer"}},
	"ckBTC":  {Decimals: 8, Ref: AssetRef{Symbol: "BTC", GeckoID: "bitcoin", LlamaKey: "coingecko:bitcoin"}},
	"ckETH":  {Decimals: 18, Ref: AssetRef{Symbol: "ETH", GeckoID: "ethereum", LlamaKey: "coingecko:ethereum"}},
	"ckUSDC": {Decimals: 6, Ref: AssetRef{Symbol: "USDC", GeckoID: "usd-coin", LlamaKey: "coingecko:usd-coin"}},
}

// ethBTCFallbackRatio approximates the ETH/BTC rate by era when every
// provider fails for the reference pair. The buckets come from the training
// data generation and must not change.
func ethBTCFallbackRatio(t time.Time) float64 {
	switch year := t.UTC().Year(); {
	case year <= 2016:
		return 0.02
	case year <= 2017:
		return 0.05
	case year <= 2018:
		return 0.08
	case year <= 2020:
		return 0.04
	default:
		return 0.067
	}
}

// solBTCFallbackRatio approximates the SOL/BTC rate by half-year era.
func solBTCFallbackRatio(t time.Time) float64 {
	u := t.UTC()
	year, firstHalf := u.Year(), u.Month() <= 6
	switch {
	case year < 2021 || (year == 2021 && firstHalf):
		return 0.0005
	case year == 2021:
		return 0.002
	case year == 2022 && firstHalf:
		return 0.003
	case year == 2022:
		return 0.001
	case year == 2023:
		return 0.0008
	default:
		return 0.002
	}
}

// Converter layers the chain-specific valuation rules on top of the Oracle:
// stablecoin and native-coin short-circuits, reference-pair lookups, token
// metadata, and the era fallback tables for the native cross rates.
type Converter struct {
	oracle  *Oracle
	moralis *MoralisProvider

	mu        sync.Mutex
	tokenInfo map[string]TokenInfo
}

func NewConverter(oracle *Oracle, moralis *MoralisProvider) *Converter {
	return &Converter{
		oracle:    oracle,
		moralis:   moralis,
		tokenInfo: make(map[string]TokenInfo),
	}
}

// Oracle exposes the underlying oracle for health reporting and state
// persistence.
func (c *Converter) Oracle() *Oracle { return c.oracle }

// EthereumTokenInfo resolves symbol and decimals for a token contract:
// the hardcoded table first, then cached metadata lookups, then the
// {UNKNOWN, 18} default.
func (c *Converter) EthereumTokenInfo(ctx context.Context, contract string) TokenInfo {
	addr := strings.ToLower(contract)
	if info, ok := knownEthereumTokens[addr]; ok {
		return info
	}

	c.mu.Lock()
	if info, ok := c.tokenInfo[addr]; ok {
		c.mu.Unlock()
		return info
	}
	c.mu.Unlock()

	info := TokenInfo{Symbol: "UNKNOWN", Decimals: 18}
	if c.moralis != nil {
		if symbol, decimals, err := c.moralis.TokenMetadata(ctx, addr); err == nil {
			info = TokenInfo{Symbol: symbol, Decimals: decimals}
		}
	}

	c.mu.Lock()
	c.tokenInfo[addr] = info
	c.mu.Unlock()
	return info
}

// EthBTCRatio resolves the ETH/BTC rate for the month covering ts, falling
// back to the era table when no provider can serve the pair.
func (c *Converter) EthBTCRatio(ctx context.Context, ts time.Time) float64 {
	ratio, ok := c.oracle.Ratio(ctx, AssetRef{Symbol: "ETH"}, "BTC", ts, MonthlyBucket)
	if ok && ratio > 0 {
		return ratio
	}
	return ethBTCFallbackRatio(ts)
}

// SolBTCRatio resolves the SOL/BTC rate for the month covering ts, falling
// back to the era table.
func (c *Converter) SolBTCRatio(ctx context.Context, ts time.Time) float64 {
	ratio, ok := c.oracle.Ratio(ctx, AssetRef{Symbol: "SOL"}, "BTC", ts, MonthlyBucket)
	if ok && ratio > 0 {
		return ratio
	}
	return solBTCFallbackRatio(ts)
}

// TokenETHRatio values one unit of an Ethereum token in ETH for the month
// covering ts. Wrapped ether is 1.0 by identity; stablecoins go through the
// single ETH/USD reference pair; everything else resolves a USD price and
// divides by ETH/USD. ok=false means the token could not be valued and
// contributes zero.
func (c *Converter) TokenETHRatio(ctx context.Context, contract string, ts time.Time) (float64, bool) {
	addr := strings.ToLower(contract)
	if addr == wethContract {
		return 1.0, true
	}

	info := c.EthereumTokenInfo(ctx, addr)
	ethUSD, ethOK := c.oracle.Ratio(ctx, AssetRef{Symbol: "ETH", GeckoID: "ethereum", LlamaKey: "coingecko:ethereum"}, "USD", ts, MonthlyBucket)
	if _, stable := ethereumStablecoins[info.Symbol]; stable {
		if !ethOK || ethUSD <= 0 {
			return 0, false
		}
		return 1 / ethUSD, true
	}

	asset := AssetRef{Contract: addr, LlamaKey: "ethereum:" + addr}
	if info.Symbol != "UNKNOWN" {
		asset.Symbol = info.Symbol
	}
	tokenUSD, ok := c.oracle.Ratio(ctx, asset, "USD", ts, MonthlyBucket)
	if !ok || tokenUSD <= 0 || !ethOK || ethUSD <= 0 {
		return 0, false
	}
	return tokenUSD / ethUSD, true
}

// TokenSOLRatio values one unit of a Solana token in SOL for the day
// covering ts. Follows the same shape as TokenETHRatio with the wrapped
// SOL identity and the SOL/USD reference pair.
func (c *Converter) TokenSOLRatio(ctx context.Context, mint string, ts time.Time) (float64, bool) {
	if mint == WrappedSOLMint {
		return 1.0, true
	}

	solUSD, solOK := c.oracle.Ratio(ctx, AssetRef{Symbol: "SOL", GeckoID: "solana", LlamaKey: "coingecko:solana"}, "USD", ts, DailyBucket)

	info, known := knownSolanaTokens[mint]
	if known {
		if _, stable := solanaStablecoins[info.Symbol]; stable {
			if !solOK || solUSD <= 0 {
				return 0, false
			}
			return 1 / solUSD, true
		}
	}

	asset := AssetRef{Contract: mint, LlamaKey: "solana:" + mint}
	if known {
		asset.Symbol = info.Symbol
	}
	tokenUSD, ok := c.oracle.Ratio(ctx, asset, "USD", ts, DailyBucket)
	if !ok || tokenUSD <= 0 || !solOK || solUSD <= 0 {
		return 0, false
	}
	return tokenUSD / solUSD, true
}

// SolanaTokenInfo returns symbol and decimals for a mint, defaulting to
// {UNKNOWN, 9}.
func (c *Converter) SolanaTokenInfo(mint string) TokenInfo {
	if info, ok := knownSolanaTokens[mint]; ok {
		return info
	}
	return TokenInfo{Symbol: "UNKNOWN", Decimals: 9}
}

// LedgerTokenDecimals returns the precision of a ledger-chain token,
// defaulting to 8.
func (c *Converter) LedgerTokenDecimals(symbol string) int {
	if t, ok := ledgerTokens[symbol]; ok {
		return t.Decimals
	}
	return 8
}

// LedgerTokenPrices values one unit of a ledger-chain token in USD and in
// the chain's native coin for the day covering ts. ok=false means the token
// could not be valued.
func (c *Converter) LedgerTokenPrices(ctx context.Context, symbol string, ts time.Time) (usd, native float64, ok bool) {
	token, found := ledgerTokens[symbol]
	if !found {
		return 0, 0, false
	}

	usd, usdOK := c.oracle.Ratio(ctx, token.Ref, "USD", ts, DailyBucket)
	if !usdOK || usd <= 0 {
		return 0, 0, false
	}

	icpUSD, icpOK := c.oracle.Ratio(ctx, ledgerTokens["ICP"].Ref, "USD", ts, DailyBucket)
	if !icpOK || icpUSD <= 0 {
		return usd, 0, true
	}
	return usd, usd / icpUSD, true
}
