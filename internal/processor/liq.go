package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "liqmon/config"
	liqchannel "liqmon/internal/channel/liq"
	metrics "liqmon/internal/metrics"
	"liqmon/internal/symbols"
	"liqmon/logger"
	"liqmon/models"
	"liqmon/signal"
	"liqmon/store"
)

const (
	largeEventBaseConfidence = 80
	largeEventSlope          = 15
	largeEventMinConfidence  = 70
	largeEventMaxConfidence  = 95
)

type liqBatchState struct {
	mu        sync.Mutex
	batch     *models.BatchLiquidationMessage
	lastFlush time.Time
}

// LiquidationProcessor normalizes raw liquidation payloads, feeds the
// signal window, maintains the recent-event table and batches events for
// the archive writer when S3 storage is enabled.
type LiquidationProcessor struct {
	config   *appconfig.Config
	channels *liqchannel.Channels
	engine   *signal.Engine
	store    *store.Store
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	batches  map[string]*liqBatchState
	archive  bool
}

// NewLiquidationProcessor builds the processor instance.
func NewLiquidationProcessor(cfg *appconfig.Config, ch *liqchannel.Channels, eng *signal.Engine, st *store.Store) *LiquidationProcessor {
	return &LiquidationProcessor{
		config:   cfg,
		channels: ch,
		engine:   eng,
		store:    st,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		batches:  make(map[string]*liqBatchState),
		archive:  cfg.Storage.S3.Enabled,
	}
}

// Start begins consuming raw liquidation messages.
func (p *LiquidationProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("liquidation processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("liq_processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting liquidation processor")

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	if p.archive {
		p.wg.Add(1)
		go p.flusher()
	}
	return nil
}

// Stop drains buffers and stops workers.
func (p *LiquidationProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("liq_processor").Info("stopping liquidation processor")
	if p.archive {
		p.flushAll()
	}
	p.wg.Wait()
	p.log.WithComponent("liq_processor").Info("liquidation processor stopped")
}

func (p *LiquidationProcessor) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *LiquidationProcessor) handleMessage(raw models.RawLiquidationMessage) {
	var (
		events []models.LiquidationEvent
		ok     bool
	)

	switch raw.Exchange {
	case models.ExchangeBinance:
		events, ok = normalizeBinanceLiq(raw)
	case models.ExchangeBybit:
		events, ok = normalizeBybitLiq(raw)
	default:
		p.log.WithComponent("liq_processor").WithFields(logger.Fields{
			"exchange": raw.Exchange,
		}).Debug("unsupported liquidation exchange, dropping message")
		return
	}

	if !ok {
		metrics.EmitDropMetric(p.log, metrics.DropMetricParseFailure, raw.Exchange, raw.Market, raw.Symbol, "parse")
		return
	}

	received := time.Now().UnixMilli()
	for i := range events {
		ev := &events[i]
		ev.Exchange = raw.Exchange
		if ev.EventTime == 0 {
			ev.EventTime = raw.Timestamp.UnixMilli()
		}
		ev.ReceivedTime = received
		p.processEvent(raw, *ev)
	}
}

// processEvent runs one normalized event through the watchlist filter, the
// rolling signal window, the recent-event table and the archive batcher.
func (p *LiquidationProcessor) processEvent(raw models.RawLiquidationMessage, ev models.LiquidationEvent) {
	if !p.config.Watchlist.Contains(ev.Symbol) {
		return
	}

	ev.Notional = ev.Price * ev.Quantity

	p.engine.Record(ev.Symbol, ev.Side, ev.Notional, time.UnixMilli(ev.EventTime))
	sig := p.engine.Compute(ev.Symbol)
	p.store.SetSignal(ev.Symbol, sig)
	p.store.IncrementProcessed()

	threshold := p.config.Watchlist.USDThreshold(ev.Symbol)
	if ev.Notional >= threshold {
		ev.Recommendation = ev.Side
		ev.Confidence = largeEventConfidence(ev.Notional, threshold)
	} else {
		ev.Recommendation = models.RecommendationHold
		ev.Confidence = 0
	}

	if ev.Quantity >= p.config.Watchlist.QtyThreshold(ev.Symbol) && ev.Notional >= p.config.Watchlist.MinTableUSD {
		p.store.AddLiquidation(ev)
	}

	if p.archive {
		p.addToBatch(raw, ev)
	}
}

// largeEventConfidence scales with how far the notional overshoots the
// per-symbol threshold, clamped to [70, 95].
func largeEventConfidence(usd, threshold float64) int {
	denom := threshold
	if denom < 1 {
		denom = 1
	}
	overs := (usd - threshold) / denom
	if overs < 0 {
		overs = 0
	}
	conf := int(largeEventBaseConfidence + largeEventSlope*overs)
	if conf < largeEventMinConfidence {
		conf = largeEventMinConfidence
	}
	if conf > largeEventMaxConfidence {
		conf = largeEventMaxConfidence
	}
	return conf
}

func (p *LiquidationProcessor) addToBatch(raw models.RawLiquidationMessage, ev models.LiquidationEvent) {
	key := fmt.Sprintf("%s_%s_%s", raw.Exchange, raw.Market, ev.Symbol)

	p.mu.RLock()
	state, ok := p.batches[key]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if state, ok = p.batches[key]; !ok {
			state = &liqBatchState{
				batch: &models.BatchLiquidationMessage{
					BatchID:     uuid.New().String(),
					Exchange:    raw.Exchange,
					Symbol:      ev.Symbol,
					Market:      raw.Market,
					Entries:     make([]models.LiquidationEvent, 0, p.config.Processor.BatchSize),
					Timestamp:   raw.Timestamp,
					ProcessedAt: time.Now(),
				},
				lastFlush: time.Now(),
			}
			p.batches[key] = state
		}
		p.mu.Unlock()
	}

	state.mu.Lock()
	b := state.batch
	b.Entries = append(b.Entries, ev)
	b.RecordCount = len(b.Entries)
	if raw.Timestamp.After(b.Timestamp) {
		b.Timestamp = raw.Timestamp
	}
	shouldFlush := b.RecordCount >= p.config.Processor.BatchSize
	state.mu.Unlock()

	if shouldFlush {
		p.flush(key)
	}
}

func (p *LiquidationProcessor) flusher() {
	defer p.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flushTimedOut()
		}
	}
}

func (p *LiquidationProcessor) flushTimedOut() {
	now := time.Now()
	var expired []string

	p.mu.RLock()
	for k, state := range p.batches {
		state.mu.Lock()
		if now.Sub(state.lastFlush) >= p.config.Processor.BatchTimeout.Std() && state.batch.RecordCount > 0 {
			expired = append(expired, k)
		}
		state.mu.Unlock()
	}
	p.mu.RUnlock()

	for _, k := range expired {
		p.flush(k)
	}
}

func (p *LiquidationProcessor) flush(key string) {
	p.mu.RLock()
	state, ok := p.batches[key]
	p.mu.RUnlock()
	if !ok {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	batch := state.batch
	if batch == nil || batch.RecordCount == 0 {
		return
	}
	if !p.channels.SendNorm(p.ctx, *batch) {
		if p.ctx.Err() != nil {
			return
		}
		metrics.EmitDropMetric(p.log, metrics.DropMetricLiquidationNorm, batch.Exchange, batch.Market, batch.Symbol, "norm")
		p.log.WithComponent("liq_processor").WithFields(logger.Fields{"batch_key": key}).Warn("norm channel full, dropping batch")
	}
	state.batch = &models.BatchLiquidationMessage{
		BatchID:     uuid.New().String(),
		Exchange:    batch.Exchange,
		Symbol:      batch.Symbol,
		Market:      batch.Market,
		Entries:     make([]models.LiquidationEvent, 0, p.config.Processor.BatchSize),
		ProcessedAt: time.Now(),
	}
	state.lastFlush = time.Now()
}

func (p *LiquidationProcessor) flushAll() {
	p.mu.RLock()
	keys := make([]string, 0, len(p.batches))
	for k := range p.batches {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	for _, k := range keys {
		p.flush(k)
	}
}

func normalizeBinanceLiq(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, bool) {
	type binanceOrder struct {
		EventTime int64 `json:"E"`
		Order     struct {
			Symbol        string `json:"s"`
			Side          string `json:"S"`
			OrderType     string `json:"o"`
			Qty           string `json:"q"`
			Price         string `json:"p"`
			AvgPrice      string `json:"ap"`
			LastFilledQty string `json:"l"`
			TradeTime     int64  `json:"T"`
		} `json:"o"`
	}
	var evt binanceOrder
	if err := json.Unmarshal(raw.Data, &evt); err != nil {
		return nil, false
	}

	price := parseFloat(evt.Order.Price)
	if price == 0 {
		price = parseFloat(evt.Order.AvgPrice)
	}
	qty := parseFloat(evt.Order.Qty)
	if qty == 0 {
		qty = parseFloat(evt.Order.LastFilledQty)
	}
	eventTime := evt.Order.TradeTime
	if eventTime == 0 {
		eventTime = evt.EventTime
	}

	return []models.LiquidationEvent{{
		Symbol:    symbols.ToBinance(raw.Exchange, evt.Order.Symbol),
		Side:      strings.ToUpper(evt.Order.Side),
		OrderType: strings.ToUpper(evt.Order.OrderType),
		Price:     price,
		Quantity:  qty,
		EventTime: eventTime,
	}}, true
}

func normalizeBybitLiq(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, bool) {
	type bybitPayload struct {
		Topic string `json:"topic"`
		Ts    int64  `json:"ts"`
		Data  []struct {
			Time   int64  `json:"T"`
			Symbol string `json:"s"`
			Side   string `json:"S"`
			Size   string `json:"v"`
			Price  string `json:"p"`
		} `json:"data"`
	}
	var evt bybitPayload
	if err := json.Unmarshal(raw.Data, &evt); err != nil {
		return nil, false
	}

	events := make([]models.LiquidationEvent, 0, len(evt.Data))
	for _, d := range evt.Data {
		eventTime := d.Time
		if eventTime == 0 {
			eventTime = evt.Ts
		}
		events = append(events, models.LiquidationEvent{
			Symbol:    symbols.ToBinance(raw.Exchange, d.Symbol),
			Side:      strings.ToUpper(d.Side),
			OrderType: "MARKET",
			Price:     parseFloat(d.Price),
			Quantity:  parseFloat(d.Size),
			EventTime: eventTime,
		})
	}
	return events, true
}

func parseFloat(v string) float64 {
	if v == "" {
		return 0
	}
	val, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return val
}
