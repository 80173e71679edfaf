package signal

import (
	"testing"
	"time"

	"liqmon/models"
)

func fixedThreshold(float64) func(string) float64 {
	return func(string) float64 { return 7500 }
}

func TestComputeEmptyWindow(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	sig := e.Compute("XRPUSDT")
	if sig.Recommendation != models.RecommendationHold || sig.Confidence != 0 {
		t.Fatalf("expected neutral signal, got %+v", sig)
	}
}

func TestComputeBuyBias(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	now := time.Now()
	e.Record("XRPUSDT", models.SideBuy, 9000, now)
	e.Record("XRPUSDT", models.SideSell, 1000, now)

	sig := e.computeAt("XRPUSDT", now)
	if sig.Recommendation != models.RecommendationBuy {
		t.Fatalf("expected BUY, got %+v", sig)
	}
	// bias = 0.8 -> conf = int(50 + 45*0.8) = 86
	if sig.Confidence != 86 {
		t.Errorf("expected confidence 86, got %d", sig.Confidence)
	}
}

func TestComputeSellBias(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	now := time.Now()
	e.Record("XRPUSDT", models.SideSell, 5000, now)
	e.Record("XRPUSDT", models.SideBuy, 500, now)

	sig := e.computeAt("XRPUSDT", now)
	if sig.Recommendation != models.RecommendationSell {
		t.Fatalf("expected SELL, got %+v", sig)
	}
}

func TestComputeNeutralBand(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	now := time.Now()
	// bias = (52-48)/100 = 0.04 < 0.08 -> HOLD
	e.Record("XRPUSDT", models.SideBuy, 5200, now)
	e.Record("XRPUSDT", models.SideSell, 4800, now)

	sig := e.computeAt("XRPUSDT", now)
	if sig.Recommendation != models.RecommendationHold {
		t.Fatalf("expected HOLD inside neutral band, got %+v", sig)
	}
	if sig.Confidence != 51 {
		t.Errorf("expected confidence 51, got %d", sig.Confidence)
	}
}

func TestComputeLargeEventBoost(t *testing.T) {
	e := NewEngine(time.Minute, fixedThreshold(7500))
	now := time.Now()
	e.Record("XRPUSDT", models.SideBuy, 9000, now)
	e.Record("XRPUSDT", models.SideSell, 1000, now)

	sig := e.computeAt("XRPUSDT", now)
	// base 86 plus the large-event boost
	if sig.Confidence != 91 {
		t.Fatalf("expected boosted confidence 91, got %d", sig.Confidence)
	}
}

func TestComputeBoostCap(t *testing.T) {
	e := NewEngine(time.Minute, fixedThreshold(7500))
	now := time.Now()
	e.Record("XRPUSDT", models.SideBuy, 100000, now)

	sig := e.computeAt("XRPUSDT", now)
	// bias = 1 -> conf capped at 95, boost caps at 99
	if sig.Confidence != 99 {
		t.Fatalf("expected capped confidence 99, got %d", sig.Confidence)
	}
	if sig.Recommendation != models.RecommendationBuy {
		t.Fatalf("expected BUY, got %+v", sig)
	}
}

func TestWindowPurge(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	now := time.Now()
	e.Record("XRPUSDT", models.SideBuy, 9000, now.Add(-2*time.Minute))

	sig := e.computeAt("XRPUSDT", now)
	if sig.Recommendation != models.RecommendationHold || sig.Confidence != 0 {
		t.Fatalf("expired events should not contribute, got %+v", sig)
	}
}

func TestComputeZeroNotionalWindow(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	now := time.Now()
	e.Record("XRPUSDT", models.SideBuy, 0, now)

	sig := e.computeAt("XRPUSDT", now)
	if sig.Recommendation != models.RecommendationHold || sig.Confidence != 0 {
		t.Fatalf("zero-notional window should be neutral, got %+v", sig)
	}
}

func TestSignalsMap(t *testing.T) {
	e := NewEngine(time.Minute, nil)
	e.Record("XRPUSDT", models.SideBuy, 9000, time.Now())

	out := e.Signals([]string{"XRPUSDT", "DOGEUSDT"})
	if len(out) != 2 {
		t.Fatalf("expected signals for both symbols, got %d", len(out))
	}
	if out["DOGEUSDT"].Recommendation != models.RecommendationHold {
		t.Errorf("symbol without events should be HOLD: %+v", out["DOGEUSDT"])
	}
}

func TestModelName(t *testing.T) {
	e := NewEngine(180*time.Second, nil)
	if got := e.ModelName(); got != "liq-window-v1(180s)" {
		t.Fatalf("unexpected model name: %s", got)
	}
}
