package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/sirupsen/logrus"

	appconfig "liqmon/config"
	liq "liqmon/internal/channel/liq"
	"liqmon/logger"
	"liqmon/models"
)

// Binance_LIQ_Reader streams forced liquidation orders from the Binance
// futures websocket API and forwards raw payloads to the configured channel.
// Connection mode "all" uses the combined market stream; mode "symbol" opens
// one subscription per symbol. Watchlist filtering happens in the processor,
// after exchange symbols are mapped to watchlist names.
type Binance_LIQ_Reader struct {
	config   *appconfig.Config
	channels *liq.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// Binance_LIQ_NewReader constructs a new liquidation reader.
func Binance_LIQ_NewReader(cfg *appconfig.Config, ch *liq.Channels, symbols []string) *Binance_LIQ_Reader {
	return &Binance_LIQ_Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
	}
}

// Binance_LIQ_Start launches the websocket subscription(s). Streams are
// restarted automatically until the context is cancelled.
func (r *Binance_LIQ_Reader) Binance_LIQ_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance liquidation reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Binance.Future.Liquidation
	log := r.log.WithComponent("binance_liq_reader").WithFields(logger.Fields{"operation": "Binance_LIQ_Start"})

	if !cfg.Enabled {
		log.Warn("binance futures liquidation stream disabled via configuration")
		return fmt.Errorf("binance futures liquidation stream disabled")
	}
	if len(r.symbols) == 0 {
		if len(cfg.Symbols) == 0 {
			log.Warn("no symbols configured for binance liquidation reader")
			return fmt.Errorf("no symbols configured for binance liquidation reader")
		}
		r.symbols = cfg.Symbols
	}

	log.WithFields(logger.Fields{
		"symbols":    strings.Join(r.symbols, ","),
		"connection": cfg.Connection,
	}).Info("starting binance liquidation reader")

	if strings.EqualFold(cfg.Connection, "symbol") {
		for _, symbol := range r.symbols {
			sym := strings.ToUpper(symbol)
			r.wg.Add(1)
			go r.streamSymbol(sym)
		}
	} else {
		r.wg.Add(1)
		go r.streamAll()
	}

	log.Info("binance liquidation reader started successfully")
	return nil
}

// Binance_LIQ_Stop waits for all stream workers to stop.
func (r *Binance_LIQ_Reader) Binance_LIQ_Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_liq_reader").Info("stopping binance liquidation reader")
	r.wg.Wait()
	r.log.WithComponent("binance_liq_reader").Info("binance liquidation reader stopped")
}

func (r *Binance_LIQ_Reader) handleEvent(log *logger.Entry, event *futures.WsLiquidationOrderEvent) {
	symbol := strings.ToUpper(event.LiquidationOrder.Symbol)

	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Warn("failed to marshal liquidation event")
		return
	}
	logger.IncrementStreamRead(len(payload))

	msg := models.RawLiquidationMessage{
		Exchange:  models.ExchangeBinance,
		Symbol:    symbol,
		Market:    models.MarketLiquidation,
		Data:      payload,
		Timestamp: time.UnixMilli(event.Time).UTC(),
	}

	if r.channels.SendRaw(r.ctx, msg) {
		if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			log.WithFields(logger.Fields{
				"payload_bytes": len(payload),
				"symbol":        symbol,
				"side":          event.LiquidationOrder.Side,
			}).Debug("forwarded liquidation event to raw channel")
		}
	} else if r.ctx.Err() == nil {
		log.Warn("liquidation raw channel full, dropping message")
	}
}

// streamAll consumes the combined !forceOrder@arr market stream.
func (r *Binance_LIQ_Reader) streamAll() {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_liq_reader").WithFields(logger.Fields{
		"worker": "liquidation_stream_all",
	})

	handler := func(event *futures.WsLiquidationOrderEvent) {
		r.handleEvent(log, event)
	}
	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	r.serveLoop(log, func() (chan struct{}, chan struct{}, error) {
		return futures.WsAllLiquidationOrderServe(handler, errHandler)
	})
}

func (r *Binance_LIQ_Reader) streamSymbol(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_liq_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "liquidation_stream",
	})

	handler := func(event *futures.WsLiquidationOrderEvent) {
		r.handleEvent(log, event)
	}
	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	r.serveLoop(log, func() (chan struct{}, chan struct{}, error) {
		return futures.WsLiquidationOrderServe(symbol, handler, errHandler)
	})
}

func (r *Binance_LIQ_Reader) serveLoop(log *logger.Entry, serve func() (chan struct{}, chan struct{}, error)) {
	for {
		if r.ctx.Err() != nil {
			return
		}

		doneC, stopC, err := serve()
		if err != nil {
			log.WithError(err).Error("failed to subscribe to liquidation stream")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		select {
		case <-r.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			log.Warn("liquidation stream closed, reconnecting")
			close(stopC)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}
