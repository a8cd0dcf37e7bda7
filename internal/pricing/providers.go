package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedAsset signals that a provider has no identifier for the
// asset or no endpoint for the requested quote currency. It is not a
// provider failure and does not count against health.
var ErrUnsupportedAsset = errors.New("asset not supported by this provider")

// AssetRef carries the per-provider identifiers of one asset. Providers
// address the same token differently: by ticker symbol, by contract or mint
// address, or by an aggregator-specific key. Empty fields mean the provider
// class cannot serve the asset.
type AssetRef struct {
	Symbol   string
	Contract string
	LlamaKey string
	GeckoID  string
}

// CacheKey is the stable identity used for quote caching.
func (a AssetRef) CacheKey() string {
	if a.Contract != "" {
		return a.Contract
	}
	if a.Symbol != "" {
		return a.Symbol
	}
	if a.LlamaKey != "" {
		return a.LlamaKey
	}
	return a.GeckoID
}

// Provider resolves one asset quote at (or near) a point in time.
// Implementations wrap one upstream pricing API each; the Oracle owns
// health tracking and failover across them.
type Provider interface {
	ID() string
	Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error)
}

// providerClient is the shared HTTP plumbing for all pricing providers.
type providerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func newProviderClient(baseURL, apiKey string, timeout time.Duration) providerClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return providerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// getJSON performs a GET against path and decodes the JSON body into result.
// Non-2xx statuses are errors; callers treat any error as a provider
// failure for health accounting.
func (c *providerClient) getJSON(ctx context.Context, path string, headers map[string]string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logrus.WithError(cerr).Debug("failed to close price provider response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CryptoCompareProvider quotes historical pair prices from the CryptoCompare
// pricehistorical endpoint. It addresses assets by ticker symbol and is the
// only provider that quotes non-USD pairs directly.
type CryptoCompareProvider struct {
	client providerClient
}

func NewCryptoCompareProvider(baseURL, apiKey string, timeout time.Duration) *CryptoCompareProvider {
	if baseURL == "" {
		baseURL = "https://min-api.cryptocompare.com"
	}
	return &CryptoCompareProvider{client: newProviderClient(baseURL, apiKey, timeout)}
}

func (p *CryptoCompareProvider) ID() string { return "cryptocompare" }

func (p *CryptoCompareProvider) Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error) {
	if asset.Symbol == "" {
		return 0, ErrUnsupportedAsset
	}
	path := fmt.Sprintf("/data/pricehistorical?fsym=%s&tsyms=%s&ts=%d",
		url.QueryEscape(asset.Symbol), url.QueryEscape(quote), at.Unix())
	if p.client.apiKey != "" {
		path += "&api_key=" + url.QueryEscape(p.client.apiKey)
	}

	var out map[string]map[string]float64
	if err := p.client.getJSON(ctx, path, nil, &out); err != nil {
		return 0, err
	}
	price, ok := out[asset.Symbol][quote]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no %s/%s price in cryptocompare response", asset.Symbol, quote)
	}
	return price, nil
}

// DeFiLlamaProvider quotes historical USD prices from the DeFiLlama coins
// API using llama keys such as "coingecko:bitcoin" or "ethereum:0x...".
type DeFiLlamaProvider struct {
	client providerClient
}

func NewDeFiLlamaProvider(baseURL string, timeout time.Duration) *DeFiLlamaProvider {
	if baseURL == "" {
		baseURL = "https://coins.llama.fi"
	}
	return &DeFiLlamaProvider{client: newProviderClient(baseURL, "", timeout)}
}

func (p *DeFiLlamaProvider) ID() string { return "defillama" }

func (p *DeFiLlamaProvider) Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error) {
	if asset.LlamaKey == "" || quote != "USD" {
		return 0, ErrUnsupportedAsset
	}

	var out struct {
		Coins map[string]struct {
			Price float64 `json:"price"`
		} `json:"coins"`
	}
	path := fmt.Sprintf("/prices/historical/%d/%s", at.Unix(), url.PathEscape(asset.LlamaKey))
	if err := p.client.getJSON(ctx, path, nil, &out); err != nil {
		return 0, err
	}
	coin, ok := out.Coins[asset.LlamaKey]
	if !ok || coin.Price <= 0 {
		return 0, fmt.Errorf("no price for %s in defillama response", asset.LlamaKey)
	}
	return coin.Price, nil
}

// MoralisProvider quotes current token USD prices and token metadata from
// the Moralis web3 API, addressed by contract address.
type MoralisProvider struct {
	client providerClient
}

func NewMoralisProvider(baseURL, apiKey string, timeout time.Duration) *MoralisProvider {
	if baseURL == "" {
		baseURL = "https://deep-index.moralis.io/api/v2.2"
	}
	return &MoralisProvider{client: newProviderClient(baseURL, apiKey, timeout)}
}

func (p *MoralisProvider) ID() string { return "moralis" }

func (p *MoralisProvider) headers() map[string]string {
	return map[string]string{"X-API-Key": p.client.apiKey}
}

func (p *MoralisProvider) Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error) {
	if asset.Contract == "" || quote != "USD" {
		return 0, ErrUnsupportedAsset
	}

	var out struct {
		USDPrice float64 `json:"usdPrice"`
	}
	path := fmt.Sprintf("/erc20/%s/price?chain=eth", url.PathEscape(asset.Contract))
	if err := p.client.getJSON(ctx, path, p.headers(), &out); err != nil {
		return 0, err
	}
	if out.USDPrice <= 0 {
		return 0, fmt.Errorf("no usd price for %s in moralis response", asset.Contract)
	}
	return out.USDPrice, nil
}

// TokenMetadata fetches symbol and decimal precision for an unrecognized
// token contract.
func (p *MoralisProvider) TokenMetadata(ctx context.Context, contract string) (symbol string, decimals int, err error) {
	var out []struct {
		Symbol   string `json:"symbol"`
		Decimals string `json:"decimals"`
	}
	path := fmt.Sprintf("/erc20/metadata?chain=eth&addresses=%s", url.QueryEscape(contract))
	if err := p.client.getJSON(ctx, path, p.headers(), &out); err != nil {
		return "", 0, err
	}
	if len(out) == 0 || out[0].Symbol == "" {
		return "", 0, fmt.Errorf("no metadata for %s in moralis response", contract)
	}
	decimals = 18
	if _, err := fmt.Sscanf(out[0].Decimals, "%d", &decimals); err != nil || decimals < 0 {
		decimals = 18
	}
	return out[0].Symbol, decimals, nil
}

// jupiterFreshness bounds how old a timestamp may be for the spot-only
// Jupiter API to still be a meaningful answer.
const jupiterFreshness = 7 * 24 * time.Hour

// JupiterProvider quotes current USD prices for Solana mints. It only
// serves lookups for recent timestamps because the API has no history.
type JupiterProvider struct {
	client providerClient
	now    func() time.Time
}

func NewJupiterProvider(baseURL string, timeout time.Duration) *JupiterProvider {
	if baseURL == "" {
		baseURL = "https://lite-api.jup.ag"
	}
	return &JupiterProvider{client: newProviderClient(baseURL, "", timeout), now: time.Now}
}

func (p *JupiterProvider) ID() string { return "jupiter" }

func (p *JupiterProvider) Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error) {
	if asset.Contract == "" || quote != "USD" {
		return 0, ErrUnsupportedAsset
	}
	if p.now().Sub(at) > jupiterFreshness {
		return 0, ErrUnsupportedAsset
	}

	var out struct {
		Data map[string]struct {
			Price float64 `json:"usdPrice"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/price/v3?ids=%s", url.QueryEscape(asset.Contract))
	if err := p.client.getJSON(ctx, path, nil, &out); err != nil {
		return 0, err
	}
	entry, ok := out.Data[asset.Contract]
	if !ok || entry.Price <= 0 {
		return 0, fmt.Errorf("no price for %s in jupiter response", asset.Contract)
	}
	return entry.Price, nil
}

// CoinGeckoProvider quotes current USD prices by CoinGecko asset id.
type CoinGeckoProvider struct {
	client providerClient
}

func NewCoinGeckoProvider(baseURL string, timeout time.Duration) *CoinGeckoProvider {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	return &CoinGeckoProvider{client: newProviderClient(baseURL, "", timeout)}
}

func (p *CoinGeckoProvider) ID() string { return "coingecko" }

func (p *CoinGeckoProvider) Quote(ctx context.Context, asset AssetRef, quote string, at time.Time) (float64, error) {
	if asset.GeckoID == "" || quote != "USD" {
		return 0, ErrUnsupportedAsset
	}

	var out map[string]map[string]float64
	path := fmt.Sprintf("/api/v3/simple/price?ids=%s&vs_currencies=usd", url.QueryEscape(asset.GeckoID))
	if err := p.client.getJSON(ctx, path, nil, &out); err != nil {
		return 0, err
	}
	price, ok := out[asset.GeckoID]["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no usd price for %s in coingecko response", asset.GeckoID)
	}
	return price, nil
}
