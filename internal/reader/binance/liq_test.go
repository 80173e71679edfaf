package binance

import (
	"context"
	"testing"

	futures "github.com/adshao/go-binance/v2/futures"

	appconfig "liqmon/config"
	liq "liqmon/internal/channel/liq"
	"liqmon/internal/symbols"
	"liqmon/logger"
	"liqmon/models"
)

func testReader(t *testing.T) (*Binance_LIQ_Reader, *liq.Channels) {
	t.Helper()

	cfg := &appconfig.Config{}
	cfg.Watchlist.Symbols = []string{"XRPUSDT", "DOGEUSDT", "PEPEUSDT"}
	ch := liq.NewChannels(8, 8)

	r := Binance_LIQ_NewReader(cfg, ch, cfg.Watchlist.Symbols)
	r.ctx = context.Background()
	return r, ch
}

func wsEvent(symbol, side string) *futures.WsLiquidationOrderEvent {
	return &futures.WsLiquidationOrderEvent{
		Event: "forceOrder",
		Time:  1700000000000,
		LiquidationOrder: futures.WsLiquidationOrder{
			Symbol:       symbol,
			Side:         futures.SideType(side),
			OrigQuantity: "1000",
			AvgPrice:     "2.5",
		},
	}
}

func TestHandleEventForwards(t *testing.T) {
	r, ch := testReader(t)
	log := logger.GetLogger().WithComponent("test")

	r.handleEvent(log, wsEvent("XRPUSDT", "SELL"))

	select {
	case msg := <-ch.Raw:
		if msg.Exchange != models.ExchangeBinance || msg.Symbol != "XRPUSDT" {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.Market != models.MarketLiquidation {
			t.Errorf("expected liquidation market, got %s", msg.Market)
		}
		if len(msg.Data) == 0 {
			t.Error("expected raw payload")
		}
	default:
		t.Fatal("expected message on raw channel")
	}
}

func TestHandleEventForwardsMultiplierSymbols(t *testing.T) {
	// Binance futures lists PEPE as 1000PEPEUSDT. The reader forwards the
	// exchange symbol untouched; the processor maps it to the watchlist name.
	r, ch := testReader(t)
	log := logger.GetLogger().WithComponent("test")

	r.handleEvent(log, wsEvent("1000PEPEUSDT", "BUY"))

	select {
	case msg := <-ch.Raw:
		if msg.Symbol != "1000PEPEUSDT" {
			t.Errorf("expected exchange symbol, got %s", msg.Symbol)
		}
		mapped := symbols.ToBinance(msg.Exchange, msg.Symbol)
		if !r.config.Watchlist.Contains(mapped) {
			t.Errorf("mapped symbol %s not on watchlist", mapped)
		}
	default:
		t.Fatal("expected message on raw channel")
	}
}

func TestHandleEventForwardsOffWatchlist(t *testing.T) {
	// Filtering happens downstream, after symbol mapping.
	r, ch := testReader(t)
	log := logger.GetLogger().WithComponent("test")

	r.handleEvent(log, wsEvent("BTCUSDT", "BUY"))

	select {
	case msg := <-ch.Raw:
		if msg.Symbol != "BTCUSDT" {
			t.Errorf("expected BTCUSDT, got %s", msg.Symbol)
		}
	default:
		t.Fatal("expected message on raw channel")
	}
}

func TestHandleEventUppercasesSymbol(t *testing.T) {
	r, ch := testReader(t)
	log := logger.GetLogger().WithComponent("test")

	r.handleEvent(log, wsEvent("dogeusdt", "BUY"))

	select {
	case msg := <-ch.Raw:
		if msg.Symbol != "DOGEUSDT" {
			t.Errorf("expected uppercased symbol, got %s", msg.Symbol)
		}
	default:
		t.Fatal("expected message on raw channel")
	}
}

func TestStartRequiresEnabledStream(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Watchlist.Symbols = []string{"XRPUSDT"}
	ch := liq.NewChannels(1, 1)
	r := Binance_LIQ_NewReader(cfg, ch, nil)

	if err := r.Binance_LIQ_Start(context.Background()); err == nil {
		t.Fatal("expected error when stream disabled")
	}
}
