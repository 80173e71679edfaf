package store

import (
	"fmt"
	"testing"
	"time"

	"liqmon/models"
)

func TestLiquidationsNewestFirst(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		s.AddLiquidation(models.LiquidationEvent{Symbol: fmt.Sprintf("SYM%d", i)})
	}

	got := s.Liquidations(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Symbol != "SYM2" || got[2].Symbol != "SYM0" {
		t.Errorf("events not newest first: %v", got)
	}
}

func TestLiquidationsCap(t *testing.T) {
	s := NewWithLimits(5, 5)
	for i := 0; i < 10; i++ {
		s.AddLiquidation(models.LiquidationEvent{Symbol: fmt.Sprintf("SYM%d", i)})
	}

	if s.TableSize() != 5 {
		t.Fatalf("expected table capped at 5, got %d", s.TableSize())
	}
	got := s.Liquidations(5)
	if got[0].Symbol != "SYM9" {
		t.Errorf("expected newest SYM9 first, got %s", got[0].Symbol)
	}
}

func TestLiquidationsLimit(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.AddLiquidation(models.LiquidationEvent{})
	}

	if got := s.Liquidations(2); len(got) != 2 {
		t.Errorf("expected 2 events, got %d", len(got))
	}
	if got := s.Liquidations(0); len(got) != 0 {
		t.Errorf("expected empty slice for zero limit, got %d", len(got))
	}
	if got := s.Liquidations(-1); len(got) != 0 {
		t.Errorf("expected empty slice for negative limit, got %d", len(got))
	}
}

func TestPaperOrdersCap(t *testing.T) {
	s := NewWithLimits(10, 3)
	for i := 0; i < 5; i++ {
		s.AddPaperOrder(models.PaperOrder{ID: fmt.Sprintf("o%d", i)})
	}

	got := s.PaperOrders(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(got))
	}
	if got[0].ID != "o4" {
		t.Errorf("expected newest o4 first, got %s", got[0].ID)
	}
}

func TestSignals(t *testing.T) {
	s := New()

	sig := s.Signal("XRPUSDT")
	if sig.Recommendation != models.RecommendationHold {
		t.Errorf("expected HOLD for unseen symbol, got %s", sig.Recommendation)
	}

	s.SetSignal("XRPUSDT", models.Signal{Recommendation: models.RecommendationBuy, Confidence: 80})
	sig = s.Signal("XRPUSDT")
	if sig.Recommendation != models.RecommendationBuy || sig.Confidence != 80 {
		t.Errorf("unexpected signal %+v", sig)
	}

	all := s.Signals()
	if len(all) != 1 {
		t.Errorf("expected 1 signal, got %d", len(all))
	}

	// Mutating the copy must not touch the store.
	all["XRPUSDT"] = models.Signal{Recommendation: models.RecommendationSell, Confidence: 1}
	if s.Signal("XRPUSDT").Recommendation != models.RecommendationBuy {
		t.Error("signals map copy leaked into store")
	}
}

func TestProcessedCounter(t *testing.T) {
	s := New()
	for i := 0; i < 7; i++ {
		s.IncrementProcessed()
	}
	if got := s.Processed(); got != 7 {
		t.Errorf("expected 7 processed, got %d", got)
	}
}

func TestUptimeString(t *testing.T) {
	s := New()
	s.started = time.Now().Add(-(1*time.Hour + 2*time.Minute + 3*time.Second))

	if got := s.UptimeString(); got != "01:02:03" {
		t.Errorf("expected 01:02:03, got %s", got)
	}
}
