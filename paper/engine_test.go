package paper

import (
	"context"
	"math"
	"testing"

	"liqmon/models"
	"liqmon/store"
)

type stubPrices struct {
	price float64
	ok    bool
}

func (s stubPrices) LatestPrice(_ context.Context, _ string) (float64, bool) {
	return s.price, s.ok
}

func watchlist(symbols ...string) SymbolChecker {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return func(sym string) bool { return set[sym] }
}

func newSimEngine(price float64, ok bool) (*Engine, *store.Store) {
	st := store.New()
	e := NewEngine("", "", false, stubPrices{price: price, ok: ok}, st, watchlist("XRPUSDT", "DOGEUSDT"))
	return e, st
}

func TestPlaceOrderValidation(t *testing.T) {
	e, _ := newSimEngine(2.0, true)
	ctx := context.Background()

	cases := []OrderRequest{
		{Symbol: "BTCUSDT", Side: "BUY", Quantity: 1},
		{Symbol: "XRPUSDT", Side: "LONG", Quantity: 1},
		{Symbol: "XRPUSDT", Side: "BUY", Quantity: 0},
		{Symbol: "XRPUSDT", Side: "BUY", Quantity: -5},
		{Symbol: "XRPUSDT", Side: "BUY", Quantity: math.NaN()},
	}
	for _, req := range cases {
		_, err := e.PlaceOrder(ctx, req)
		if err == nil {
			t.Errorf("expected validation error for %+v", req)
			continue
		}
		if _, ok := err.(*ValidationError); !ok {
			t.Errorf("expected *ValidationError for %+v, got %T", req, err)
		}
	}
}

func TestPlaceOrderNormalizesInput(t *testing.T) {
	e, st := newSimEngine(2.0, true)

	res, err := e.PlaceOrder(context.Background(), OrderRequest{Symbol: " xrpusdt ", Side: "buy", Quantity: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.Mode != models.PaperModeSim {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Order.Symbol != "XRPUSDT" || res.Order.Side != models.SideBuy {
		t.Errorf("input not normalized: %+v", res.Order)
	}
	if len(st.PaperOrders(10)) != 1 {
		t.Error("order not recorded in store")
	}
}

func TestPlaceOrderSimFill(t *testing.T) {
	e, _ := newSimEngine(0.25, true)

	res, err := e.PlaceOrder(context.Background(), OrderRequest{Symbol: "DOGEUSDT", Side: "SELL", Quantity: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Price != 0.25 {
		t.Errorf("expected fill at 0.25, got %v", res.Order.Price)
	}

	positions := e.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions[0].Quantity != -1000 || positions[0].AvgEntry != 0.25 {
		t.Errorf("unexpected position %+v", positions[0])
	}
}

func TestPlaceOrderSimNoPrice(t *testing.T) {
	e, st := newSimEngine(0, false)

	res, err := e.PlaceOrder(context.Background(), OrderRequest{Symbol: "XRPUSDT", Side: "BUY", Quantity: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.Order.Price != 0 {
		t.Errorf("expected zero-price sim fill, got %+v", res)
	}
	if len(st.PaperOrders(10)) != 1 {
		t.Error("order must still be recorded")
	}
	if len(e.Positions()) != 0 {
		t.Error("zero-price fill must not open a position")
	}
}

func TestApplyFillAveraging(t *testing.T) {
	e, _ := newSimEngine(0, true)

	e.applyFill("XRPUSDT", models.SideBuy, 100, 2.0)
	e.applyFill("XRPUSDT", models.SideBuy, 100, 3.0)

	pos := e.Positions()[0]
	if pos.Quantity != 200 || pos.AvgEntry != 2.5 {
		t.Errorf("expected 200 @ 2.5, got %+v", pos)
	}
}

func TestApplyFillRealizesPnL(t *testing.T) {
	e, _ := newSimEngine(0, true)

	e.applyFill("XRPUSDT", models.SideBuy, 200, 2.5)
	e.applyFill("XRPUSDT", models.SideSell, 150, 3.0)

	pos := e.Positions()[0]
	if pos.Quantity != 50 || pos.AvgEntry != 2.5 {
		t.Errorf("expected 50 @ 2.5 remaining, got %+v", pos)
	}
	if pos.RealizedPnL != 75 {
		t.Errorf("expected realized 75, got %v", pos.RealizedPnL)
	}
}

func TestApplyFillFlipsPosition(t *testing.T) {
	e, _ := newSimEngine(0, true)

	e.applyFill("XRPUSDT", models.SideBuy, 50, 2.0)
	e.applyFill("XRPUSDT", models.SideSell, 100, 3.0)

	pos := e.Positions()[0]
	if pos.Quantity != -50 {
		t.Fatalf("expected flipped -50, got %v", pos.Quantity)
	}
	if pos.AvgEntry != 3.0 {
		t.Errorf("flipped remainder should open at fill price, got %v", pos.AvgEntry)
	}
	if pos.RealizedPnL != 50 {
		t.Errorf("expected realized 50, got %v", pos.RealizedPnL)
	}
}

func TestBalanceSim(t *testing.T) {
	e, _ := newSimEngine(0, true)

	e.applyFill("XRPUSDT", models.SideBuy, 100, 2.0)
	e.applyFill("XRPUSDT", models.SideSell, 100, 2.5)

	bal := e.Balance(context.Background())
	if bal["mode"] != models.PaperModeSim {
		t.Errorf("expected sim mode, got %v", bal["mode"])
	}
	if bal["balance"].(float64) != simStartingBalance+50 {
		t.Errorf("expected balance %v, got %v", simStartingBalance+50, bal["balance"])
	}
}

func TestConfig(t *testing.T) {
	e, _ := newSimEngine(0, true)

	cfg := e.Config()
	if cfg["mode"] != models.PaperModeSim || cfg["testnet"] != false {
		t.Errorf("unexpected config %+v", cfg)
	}
}
