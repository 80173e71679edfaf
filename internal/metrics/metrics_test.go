package metrics

import (
	"context"
	"testing"
	"time"

	"liqmon/internal/channel"
	"liqmon/logger"
	"liqmon/models"
)

func TestRegisterMetricHandler(t *testing.T) {
	var received []Metric
	id := RegisterMetricHandler(func(m Metric) {
		received = append(received, m)
	})
	defer UnregisterMetricHandler(id)

	if id == 0 {
		t.Fatalf("expected non-zero handler id")
	}

	EmitMetric(nil, "test_component", "test_metric", 42, "counter", logger.Fields{"symbol": "XRPUSDT"})

	if len(received) != 1 {
		t.Fatalf("expected 1 metric dispatched, got %d", len(received))
	}
	m := received[0]
	if m.Component != "test_component" || m.Name != "test_metric" {
		t.Errorf("unexpected metric identity: %+v", m)
	}
	if m.Fields["symbol"] != "XRPUSDT" {
		t.Errorf("metric fields not preserved: %+v", m.Fields)
	}
}

func TestRegisterNilHandler(t *testing.T) {
	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestEmitMetricEmptyName(t *testing.T) {
	count := 0
	id := RegisterMetricHandler(func(Metric) { count++ })
	defer UnregisterMetricHandler(id)

	EmitMetric(nil, "test", "", 1, "counter", nil)
	if count != 0 {
		t.Fatalf("metric with empty name should not dispatch")
	}
}

func TestChannelSizeMetricsReportStats(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	if !ch.Liq.SendRaw(context.Background(), models.RawLiquidationMessage{Symbol: "XRPUSDT"}) {
		t.Fatal("expected raw send to succeed")
	}

	got := make(chan Metric, 64)
	id := RegisterMetricHandler(func(m Metric) {
		select {
		case got <- m:
		default:
		}
	})
	defer UnregisterMetricHandler(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartChannelSizeMetrics(ctx, ch, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-got:
			if m.Name != "liq_raw_sent_total" {
				continue
			}
			if v, ok := m.Value.(int64); !ok || v != 1 {
				t.Fatalf("expected raw sent total 1, got %v", m.Value)
			}
			return
		case <-deadline:
			t.Fatal("no channel stats metric observed")
		}
	}
}

func TestEmitDropMetricFields(t *testing.T) {
	var got Metric
	id := RegisterMetricHandler(func(m Metric) { got = m })
	defer UnregisterMetricHandler(id)

	EmitDropMetric(nil, DropMetricLiquidationRaw, "binance", "liquidation", "XRPUSDT", "raw")

	if got.Name != string(DropMetricLiquidationRaw) {
		t.Fatalf("unexpected metric name: %s", got.Name)
	}
	for _, k := range []string{"exchange", "market", "symbol", "stage"} {
		if _, ok := got.Fields[k]; !ok {
			t.Errorf("expected field %q in drop metric: %+v", k, got.Fields)
		}
	}
}
