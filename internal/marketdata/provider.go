// Package marketdata retrieves daily OHLCV history for equities from the
// Alpaca market-data API, with a local Parquet cache in front of it.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockpilot/internal/domain"
	"stockpilot/internal/store"
	"stockpilot/internal/util"
)

// Provider serves daily bar history for a symbol.
type Provider interface {
	// DailyBars returns daily bars for symbol within [start, end], sorted
	// by timestamp ascending.
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// WarmupDays is the default extra history fetched in front of a requested
// window so indicators (200d MA, 63-bar volume ratio, MACD) are live from
// the first bar the caller actually wants.
const WarmupDays = 300

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches daily bars from Alpaca and caches them in a
// BarStore. When the API is unreachable it falls back to whatever the
// cache holds.
type AlpacaProvider struct {
	client  *marketdata.Client
	cache   store.BarStore
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials
// and cache. cache may be nil to disable caching. A conservative
// per-minute rate limit keeps the free data tier happy.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, cache store.BarStore) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		cache:   cache,
		limiter: util.NewRateLimiter(180),
		log:     slog.Default().With("component", "marketdata"),
	}
}

// DailyBars returns daily bars for symbol within [start, end]. The fetch
// is retried with backoff; on persistent API failure the cached history
// is served instead, if any exists.
func (p *AlpacaProvider) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bars []domain.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		fetched, err := p.fetchBars(ctx, symbol, start, end)
		if err != nil {
			return err
		}
		bars = fetched
		return nil
	})
	if err != nil {
		cached, cacheErr := p.readCache(ctx, symbol, start, end)
		if cacheErr == nil && len(cached) > 0 {
			p.log.Warn("api fetch failed, serving cache",
				"symbol", symbol, "bars", len(cached), "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("fetching daily bars for %s: %w", symbol, err)
	}

	if p.cache != nil && len(bars) > 0 {
		if err := p.cache.WriteBars(ctx, bars); err != nil {
			p.log.Warn("caching bars failed", "symbol", symbol, "err", err)
		}
	}
	return bars, nil
}

// History returns roughly days of daily bars ending now, preceded by
// warmupDays of extra history. warmupDays <= 0 uses WarmupDays.
func History(ctx context.Context, p Provider, symbol string, days, warmupDays int) ([]domain.Bar, error) {
	if warmupDays <= 0 {
		warmupDays = WarmupDays
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -(days + warmupDays))
	return p.DailyBars(ctx, symbol, start, end)
}

func (p *AlpacaProvider) fetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	alpacaBars, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

func (p *AlpacaProvider) readCache(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if p.cache == nil {
		return nil, nil
	}
	bars, err := p.cache.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}
