package signal

import (
	"fmt"
	"math"
	"sync"
	"time"

	"liqmon/models"
)

const (
	// minBias is the neutral band: window imbalance below this yields HOLD.
	minBias = 0.08
	// recentEvents is how many of the newest window entries are checked
	// for a large liquidation when boosting confidence.
	recentEvents = 5
	// maxEventsPerSymbol bounds window memory per symbol.
	maxEventsPerSymbol = 3000
)

type event struct {
	ts   time.Time
	side string
	usd  float64
}

// Engine derives per-symbol trading signals from a rolling window of
// liquidation notional. The recommendation follows the dominant side of
// forced closures: heavy short liquidations (BUY side) bias long and vice
// versa.
type Engine struct {
	mu           sync.Mutex
	window       time.Duration
	usdThreshold func(symbol string) float64
	events       map[string][]event
}

// NewEngine builds an engine with the given rolling window. usdThreshold
// returns the per-symbol large-event notional threshold used for the
// confidence boost; a nil func disables the boost.
func NewEngine(window time.Duration, usdThreshold func(string) float64) *Engine {
	if window <= 0 {
		window = 180 * time.Second
	}
	return &Engine{
		window:       window,
		usdThreshold: usdThreshold,
		events:       make(map[string][]event),
	}
}

// Record adds one liquidation to the symbol's window.
func (e *Engine) Record(symbol, side string, usd float64, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	evs := append(e.events[symbol], event{ts: ts, side: side, usd: usd})
	evs = purge(evs, ts, e.window)
	if len(evs) > maxEventsPerSymbol {
		evs = evs[len(evs)-maxEventsPerSymbol:]
	}
	e.events[symbol] = evs
}

// Compute returns the current signal for a symbol.
func (e *Engine) Compute(symbol string) models.Signal {
	return e.computeAt(symbol, time.Now())
}

func (e *Engine) computeAt(symbol string, now time.Time) models.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	evs := purge(e.events[symbol], now, e.window)
	e.events[symbol] = evs
	if len(evs) == 0 {
		return models.HoldSignal()
	}

	var buyUSD, sellUSD float64
	for _, ev := range evs {
		switch ev.side {
		case models.SideBuy:
			buyUSD += ev.usd
		case models.SideSell:
			sellUSD += ev.usd
		}
	}

	total := buyUSD + sellUSD
	if total <= 0 {
		return models.HoldSignal()
	}

	bias := (buyUSD - sellUSD) / total
	rec := models.RecommendationHold
	if math.Abs(bias) >= minBias {
		if bias > 0 {
			rec = models.RecommendationBuy
		} else {
			rec = models.RecommendationSell
		}
	}

	conf := int(50 + 45*math.Abs(bias))
	if conf < 10 {
		conf = 10
	}
	if conf > 95 {
		conf = 95
	}

	if e.usdThreshold != nil {
		th := e.usdThreshold(symbol)
		start := len(evs) - recentEvents
		if start < 0 {
			start = 0
		}
		for _, ev := range evs[start:] {
			if ev.usd >= th {
				conf += 5
				if conf > 99 {
					conf = 99
				}
				break
			}
		}
	}

	return models.Signal{Recommendation: rec, Confidence: conf}
}

// Signals returns the current signal for every requested symbol.
func (e *Engine) Signals(symbols []string) map[string]models.Signal {
	now := time.Now()
	out := make(map[string]models.Signal, len(symbols))
	for _, sym := range symbols {
		out[sym] = e.computeAt(sym, now)
	}
	return out
}

// ModelName identifies the signal model and its window for API consumers.
func (e *Engine) ModelName() string {
	return fmt.Sprintf("liq-window-v1(%ds)", int(e.window.Seconds()))
}

func purge(evs []event, now time.Time, window time.Duration) []event {
	idx := 0
	for idx < len(evs) && now.Sub(evs[idx].ts) > window {
		idx++
	}
	if idx == 0 {
		return evs
	}
	return append(evs[:0:0], evs[idx:]...)
}
