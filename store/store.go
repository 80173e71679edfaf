package store

import (
	"fmt"
	"sync"
	"time"

	"liqmon/models"
)

const (
	defaultMaxLiquidations = 500
	defaultMaxPaperOrders  = 200
)

// Store holds the monitor's in-memory state: the recent liquidation table,
// paper trades and the latest per-symbol signals. All methods are safe for
// concurrent use by the pipeline and HTTP handlers.
type Store struct {
	mu sync.RWMutex

	liquidations    []models.LiquidationEvent // newest first
	maxLiquidations int

	paperOrders    []models.PaperOrder // newest first
	maxPaperOrders int

	signals map[string]models.Signal

	started   time.Time
	processed int64
}

func New() *Store {
	return NewWithLimits(defaultMaxLiquidations, defaultMaxPaperOrders)
}

func NewWithLimits(maxLiquidations, maxPaperOrders int) *Store {
	if maxLiquidations <= 0 {
		maxLiquidations = defaultMaxLiquidations
	}
	if maxPaperOrders <= 0 {
		maxPaperOrders = defaultMaxPaperOrders
	}
	return &Store{
		maxLiquidations: maxLiquidations,
		maxPaperOrders:  maxPaperOrders,
		signals:         make(map[string]models.Signal),
		started:         time.Now(),
	}
}

// AddLiquidation prepends an event to the recent table, trimming to capacity.
func (s *Store) AddLiquidation(ev models.LiquidationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.liquidations = append([]models.LiquidationEvent{ev}, s.liquidations...)
	if len(s.liquidations) > s.maxLiquidations {
		s.liquidations = s.liquidations[:s.maxLiquidations]
	}
}

// Liquidations returns up to limit events, newest first. A non-positive
// limit yields an empty slice.
func (s *Store) Liquidations(limit int) []models.LiquidationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []models.LiquidationEvent{}
	}
	if limit > len(s.liquidations) {
		limit = len(s.liquidations)
	}
	out := make([]models.LiquidationEvent, limit)
	copy(out, s.liquidations[:limit])
	return out
}

// AddPaperOrder prepends a paper trade, trimming to capacity.
func (s *Store) AddPaperOrder(o models.PaperOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paperOrders = append([]models.PaperOrder{o}, s.paperOrders...)
	if len(s.paperOrders) > s.maxPaperOrders {
		s.paperOrders = s.paperOrders[:s.maxPaperOrders]
	}
}

// PaperOrders returns up to limit paper trades, newest first.
func (s *Store) PaperOrders(limit int) []models.PaperOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []models.PaperOrder{}
	}
	if limit > len(s.paperOrders) {
		limit = len(s.paperOrders)
	}
	out := make([]models.PaperOrder, limit)
	copy(out, s.paperOrders[:limit])
	return out
}

// SetSignal stores the latest signal for a symbol.
func (s *Store) SetSignal(symbol string, sig models.Signal) {
	s.mu.Lock()
	s.signals[symbol] = sig
	s.mu.Unlock()
}

// Signal returns the latest signal for a symbol; symbols never seen report
// a neutral signal.
func (s *Store) Signal(symbol string) models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sig, ok := s.signals[symbol]; ok {
		return sig
	}
	return models.HoldSignal()
}

// Signals returns a copy of the latest signal map.
func (s *Store) Signals() map[string]models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Signal, len(s.signals))
	for k, v := range s.signals {
		out[k] = v
	}
	return out
}

// IncrementProcessed bumps the processed-event counter.
func (s *Store) IncrementProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

// Processed reports how many watchlist events were processed since start.
func (s *Store) Processed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processed
}

// TableSize reports the current size of the recent liquidation table.
func (s *Store) TableSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.liquidations)
}

// Uptime returns the elapsed time since the store was created.
func (s *Store) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.started)
}

// UptimeString formats uptime as HH:MM:SS.
func (s *Store) UptimeString() string {
	up := s.Uptime()
	h := int(up.Hours())
	m := int(up.Minutes()) % 60
	sec := int(up.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
