package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableProvider answers by the asset's cache key, so one provider can serve
// several pairs in a test.
type tableProvider struct {
	id     string
	prices map[string]float64
}

func (f *tableProvider) ID() string { return f.id }

func (f *tableProvider) Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error) {
	if price, ok := f.prices[asset.CacheKey()]; ok {
		return price, nil
	}
	return 0, ErrUnsupportedAsset
}

func newTestConverter(prices map[string]float64) *Converter {
	var providers []Provider
	if prices != nil {
		providers = []Provider{&tableProvider{id: "table", prices: prices}}
	} else {
		providers = []Provider{&fakeProvider{id: "down", err: errors.New("unreachable")}}
	}
	return NewConverter(NewOracle(providers, nil, testLogger()), nil)
}

func TestEthBTCRatioFromProvider(t *testing.T) {
	conv := newTestConverter(map[string]float64{"ETH": 0.055})
	ratio := conv.EthBTCRatio(context.Background(), time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0.055, ratio)
}

func TestEthBTCRatioFallbackTable(t *testing.T) {
	conv := newTestConverter(nil)
	cases := []struct {
		year int
		want float64
	}{
		{2015, 0.02},
		{2016, 0.02},
		{2017, 0.05},
		{2018, 0.08},
		{2019, 0.04},
		{2020, 0.04},
		{2021, 0.067},
		{2024, 0.067},
	}
	for _, tc := range cases {
		ts := time.Date(tc.year, 7, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, tc.want, conv.EthBTCRatio(context.Background(), ts), "year %d", tc.year)
	}
}

func TestSolBTCRatioFallbackTable(t *testing.T) {
	conv := newTestConverter(nil)
	cases := []struct {
		ts   time.Time
		want float64
	}{
		{time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC), 0.0005},
		{time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), 0.0005},
		{time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC), 0.002},
		{time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC), 0.003},
		{time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC), 0.001},
		{time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), 0.0008},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 0.002},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, conv.SolBTCRatio(context.Background(), tc.ts), tc.ts.Format(time.DateOnly))
	}
}

func TestTokenETHRatioWrappedEther(t *testing.T) {
	conv := newTestConverter(nil)
	ratio, ok := conv.TokenETHRatio(context.Background(), "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", time.Now())
	assert.True(t, ok)
	assert.Equal(t, 1.0, ratio)
}

func TestTokenETHRatioStablecoin(t *testing.T) {
	conv := newTestConverter(map[string]float64{"ETH": 2000.0})
	usdt := "0xdac17f958d2ee523a2206206994597c13d831ec7"
	ratio, ok := conv.TokenETHRatio(context.Background(), usdt, time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, 1.0/2000.0, ratio, 1e-12)
}

func TestTokenETHRatioGenericToken(t *testing.T) {
	contract := "0x1111111111111111111111111111111111111111"
	conv := newTestConverter(map[string]float64{
		"ETH":    2000.0,
		contract: 10.0,
	})
	ratio, ok := conv.TokenETHRatio(context.Background(), contract, time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, 0.005, ratio, 1e-12)
}

func TestTokenETHRatioUnpriceable(t *testing.T) {
	conv := newTestConverter(nil)
	ratio, ok := conv.TokenETHRatio(context.Background(), "0x2222222222222222222222222222222222222222", time.Now())
	assert.False(t, ok)
	assert.Zero(t, ratio)
}

func TestTokenSOLRatio(t *testing.T) {
	usdcMint := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	otherMint := "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	conv := newTestConverter(map[string]float64{
		"SOL":     100.0,
		otherMint: 2.0,
	})
	ctx := context.Background()
	ts := time.Date(2023, 4, 5, 0, 0, 0, 0, time.UTC)

	ratio, ok := conv.TokenSOLRatio(ctx, WrappedSOLMint, ts)
	require.True(t, ok)
	assert.Equal(t, 1.0, ratio)

	ratio, ok = conv.TokenSOLRatio(ctx, usdcMint, ts)
	require.True(t, ok)
	assert.InDelta(t, 0.01, ratio, 1e-12)

	ratio, ok = conv.TokenSOLRatio(ctx, otherMint, ts)
	require.True(t, ok)
	assert.InDelta(t, 0.02, ratio, 1e-12)
}

func TestEthereumTokenInfoKnownTable(t *testing.T) {
	conv := newTestConverter(nil)
	info := conv.EthereumTokenInfo(context.Background(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	assert.Equal(t, "USDC", info.Symbol)
	assert.Equal(t, 6, info.Decimals)
}

func TestEthereumTokenInfoUnknownDefault(t *testing.T) {
	conv := newTestConverter(nil)
	info := conv.EthereumTokenInfo(context.Background(), "0x3333333333333333333333333333333333333333")
	assert.Equal(t, "UNKNOWN", info.Symbol)
	assert.Equal(t, 18, info.Decimals)
}

func TestLedgerTokenPrices(t *testing.T) {
	conv := newTestConverter(map[string]float64{
		"ICP": 5.0,
		"BTC": 50000.0,
	})
	ts := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	usd, native, ok := conv.LedgerTokenPrices(context.Background(), "ckBTC", ts)
	require.True(t, ok)
	assert.Equal(t, 50000.0, usd)
	assert.InDelta(t, 10000.0, native, 1e-9)

	_, _, ok = conv.LedgerTokenPrices(context.Background(), "DOGE", ts)
	assert.False(t, ok)
}

func TestLedgerTokenDecimals(t *testing.T) {
	conv := newTestConverter(nil)
	assert.Equal(t, 18, conv.LedgerTokenDecimals("ckETH"))
	assert.Equal(t, 6, conv.LedgerTokenDecimals("ckUSDC"))
	assert.Equal(t, 8, conv.LedgerTokenDecimals("something_else"))
}
