package prices

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"liqmon/logger"
)

const (
	ProviderBinance          = "binance"
	ProviderBinancePerSymbol = "binance(per-symbol)"
	ProviderFuturesMark      = "binance-futures(mark)"
	ProviderUnavailable      = "unavailable"
)

// Result is a point-in-time price snapshot. Symbols that could not be
// resolved carry a nil price so they serialize as null.
type Result struct {
	Provider  string              `json:"provider"`
	Prices    map[string]*float64 `json:"prices"`
	Timestamp time.Time           `json:"timestamp"`
}

type cacheEntry struct {
	result    Result
	fetchedAt time.Time
}

// Fetcher resolves spot prices for the watchlist with a fallback chain:
// batched spot tickers, then per-symbol spot tickers, then the futures
// mark price for any symbol the spot passes left unresolved. Responses are
// cached and upstream calls are rate limited.
type Fetcher struct {
	spot    *binance.Client
	futures *futures.Client
	limiter *rate.Limiter
	ttl     time.Duration
	log     *logger.Entry

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewFetcher(requestsPerSecond float64, burst int, ttl time.Duration) *Fetcher {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &Fetcher{
		spot:    binance.NewClient("", ""),
		futures: binance.NewFuturesClient("", ""),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		ttl:     ttl,
		log:     logger.WithComponent("prices"),
		cache:   make(map[string]cacheEntry),
	}
}

// Snapshot returns current prices for the given symbols, serving from cache
// when the previous fetch is still fresh.
func (f *Fetcher) Snapshot(ctx context.Context, symbols []string) Result {
	key := cacheKey(symbols)

	f.mu.Lock()
	if entry, ok := f.cache[key]; ok && time.Since(entry.fetchedAt) < f.ttl {
		f.mu.Unlock()
		return entry.result
	}
	f.mu.Unlock()

	res := f.fetch(ctx, symbols)

	if res.Provider != ProviderUnavailable {
		f.mu.Lock()
		f.cache[key] = cacheEntry{result: res, fetchedAt: time.Now()}
		f.mu.Unlock()
	}
	return res
}

// LatestPrice resolves a single symbol, used for simulated fills. Returns
// false when no provider could produce a price.
func (f *Fetcher) LatestPrice(ctx context.Context, symbol string) (float64, bool) {
	res := f.Snapshot(ctx, []string{symbol})
	if p, ok := res.Prices[symbol]; ok && p != nil {
		return *p, true
	}
	return 0, false
}

func (f *Fetcher) fetch(ctx context.Context, symbols []string) Result {
	res := Result{
		Provider:  ProviderUnavailable,
		Prices:    make(map[string]*float64, len(symbols)),
		Timestamp: time.Now().UTC(),
	}
	for _, s := range symbols {
		res.Prices[s] = nil
	}
	if len(symbols) == 0 {
		return res
	}

	if f.fetchBatch(ctx, symbols, &res) {
		res.Provider = ProviderBinance
		return res
	}
	if f.fetchPerSymbol(ctx, symbols, &res) {
		res.Provider = ProviderBinancePerSymbol
	}
	if remaining := unresolved(res.Prices, symbols); len(remaining) > 0 {
		if f.fetchMark(ctx, remaining, &res) && res.Provider == ProviderUnavailable {
			res.Provider = ProviderFuturesMark
		}
	}
	return res
}

// unresolved lists the symbols still missing a price, preserving order.
func unresolved(prices map[string]*float64, symbols []string) []string {
	var out []string
	for _, s := range symbols {
		if prices[s] == nil {
			out = append(out, s)
		}
	}
	return out
}

func (f *Fetcher) fetchBatch(ctx context.Context, symbols []string, res *Result) bool {
	if err := f.limiter.Wait(ctx); err != nil {
		return false
	}
	tickers, err := f.spot.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		f.log.WithField("error", err.Error()).Warn("batch spot price fetch failed")
		return false
	}

	found := false
	for _, t := range tickers {
		if _, want := res.Prices[t.Symbol]; !want {
			continue
		}
		if p, err := strconv.ParseFloat(t.Price, 64); err == nil {
			v := p
			res.Prices[t.Symbol] = &v
			found = true
		}
	}
	return found
}

func (f *Fetcher) fetchPerSymbol(ctx context.Context, symbols []string, res *Result) bool {
	found := false
	for _, s := range symbols {
		if err := f.limiter.Wait(ctx); err != nil {
			return found
		}
		tickers, err := f.spot.NewListPricesService().Symbol(s).Do(ctx)
		if err != nil || len(tickers) == 0 {
			continue
		}
		if p, err := strconv.ParseFloat(tickers[0].Price, 64); err == nil {
			v := p
			res.Prices[s] = &v
			found = true
		}
	}
	return found
}

func (f *Fetcher) fetchMark(ctx context.Context, symbols []string, res *Result) bool {
	found := false
	for _, s := range symbols {
		if err := f.limiter.Wait(ctx); err != nil {
			return found
		}
		marks, err := f.futures.NewPremiumIndexService().Symbol(s).Do(ctx)
		if err != nil || len(marks) == 0 {
			continue
		}
		if p, err := strconv.ParseFloat(marks[0].MarkPrice, 64); err == nil {
			v := p
			res.Prices[s] = &v
			found = true
		}
	}
	return found
}

func cacheKey(symbols []string) string {
	key := ""
	for _, s := range symbols {
		key += s + "|"
	}
	return key
}
