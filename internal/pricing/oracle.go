package pricing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
)

// Oracle resolves asset exchange rates through a set of independent
// providers with failure-based health routing. Results are cached per
// (pair, coarse time bucket): positive quotes as hits and exhausted lookups
// as {0, false} sentinels, so one bad bucket never hammers the upstreams.
//
// One Oracle instance is shared by every concurrent analysis; the quote map
// and health table are its only mutable state.
type Oracle struct {
	providers []Provider
	health    *healthTracker
	durable   *RedisQuoteCache
	logger    logging.Logger

	mu     sync.Mutex
	quotes map[string]models.PriceQuote
}

func NewOracle(providers []Provider, durable *RedisQuoteCache, logger logging.Logger) *Oracle {
	return &Oracle{
		providers: providers,
		health:    newHealthTracker(),
		durable:   durable,
		logger:    logger,
		quotes:    make(map[string]models.PriceQuote),
	}
}

// Ratio resolves asset/quote at the bucket covering ts. It returns the
// median of all valid provider answers and success=false only when every
// healthy provider failed; that failure is cached for the bucket.
func (o *Oracle) Ratio(ctx context.Context, asset AssetRef, quote string, ts time.Time, bucket BucketFunc) (float64, bool) {
	key := asset.CacheKey() + "|" + quote + "|" + bucket(ts)

	o.mu.Lock()
	if cached, ok := o.quotes[key]; ok {
		o.mu.Unlock()
		return cached.Ratio, cached.Success
	}
	o.mu.Unlock()

	if o.durable != nil {
		if cached, ok := o.durable.Get(ctx, key); ok {
			o.store(key, cached)
			return cached.Ratio, cached.Success
		}
	}

	prices := o.queryProviders(ctx, asset, quote, ts)
	result := models.PriceQuote{
		AssetID:   asset.CacheKey(),
		BucketKey: bucket(ts),
		FetchedAt: time.Now().UTC(),
	}
	if len(prices) > 0 {
		result.Ratio = median(prices)
		result.Success = true
	} else {
		o.logger.WithComponent("price_oracle").Warn("all providers failed",
			"asset", asset.CacheKey(), "quote", quote, "bucket", result.BucketKey)
	}

	o.store(key, result)
	if o.durable != nil {
		o.durable.Set(ctx, key, result)
	}
	return result.Ratio, result.Success
}

// queryProviders fans out to every healthy provider and collects the valid
// positive answers. Failures and non-positive prices count against provider
// health; a success decrements the counter. A provider declaring the asset
// unsupported is neither queried wrongly nor penalized.
func (o *Oracle) queryProviders(ctx context.Context, asset AssetRef, quote string, ts time.Time) []float64 {
	var (
		mu     sync.Mutex
		prices []float64
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range o.providers {
		if !o.health.IsHealthy(p.ID()) {
			continue
		}
		g.Go(func() error {
			price, err := p.Quote(gctx, asset, quote, ts)
			if errors.Is(err, ErrUnsupportedAsset) {
				return nil
			}
			if err != nil || price <= 0 {
				o.health.RecordFailure(p.ID())
				if err != nil {
					o.logger.WithComponent("price_oracle").Debug("provider quote failed",
						"provider", p.ID(), "asset", asset.CacheKey(), "error", err.Error())
				}
				return nil
			}
			o.health.RecordSuccess(p.ID())
			mu.Lock()
			prices = append(prices, price)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return prices
}

func (o *Oracle) store(key string, quote models.PriceQuote) {
	o.mu.Lock()
	o.quotes[key] = quote
	o.mu.Unlock()
}

// ProviderHealth reports the current health table.
func (o *Oracle) ProviderHealth() []models.ProviderHealth {
	ids := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		ids = append(ids, p.ID())
	}
	return o.health.Snapshot(ids)
}

// Snapshot collects the quote cache for state persistence. The durable tier
// is dumped first and the in-process map overlaid on top, so entries written
// by earlier runs survive even when this run never touched them.
func (o *Oracle) Snapshot(ctx context.Context) map[string]models.PriceQuote {
	out := make(map[string]models.PriceQuote)
	if o.durable != nil {
		if dumped, err := o.durable.Dump(ctx); err == nil {
			out = dumped
		} else {
			o.logger.WithComponent("price_oracle").Warn("durable cache dump failed", "error", err)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range o.quotes {
		out[k] = v
	}
	return out
}

// RestoreQuotes seeds both cache tiers from persisted state.
func (o *Oracle) RestoreQuotes(ctx context.Context, quotes map[string]models.PriceQuote) {
	o.mu.Lock()
	for k, v := range quotes {
		o.quotes[k] = v
	}
	o.mu.Unlock()
	if o.durable != nil {
		o.durable.Restore(ctx, quotes)
	}
}

// CacheStats reports the durable tier's hit/miss counters. ok is false when
// the oracle runs without a durable tier.
func (o *Oracle) CacheStats() (QuoteCacheStats, bool) {
	if o.durable == nil {
		return QuoteCacheStats{}, false
	}
	return o.durable.Stats(), true
}

// median averages the middle pair for even-length inputs so a single
// outlier provider cannot move the result.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
