package bybit

import (
	"context"
	"testing"

	appconfig "liqmon/config"
	liq "liqmon/internal/channel/liq"
	"liqmon/logger"
	"liqmon/models"
)

func TestForwardMessage(t *testing.T) {
	cfg := &appconfig.Config{}
	ch := liq.NewChannels(4, 4)
	r := Bybit_LIQ_NewReader(cfg, ch, []string{"XRPUSDT"})
	r.ctx = context.Background()

	payload := []byte(`{"topic":"allLiquidation.XRPUSDT","ts":1700000000000,"data":[]}`)
	r.forwardMessage(payload, "xrpusdt", logger.GetLogger().WithComponent("test"))

	select {
	case msg := <-ch.Raw:
		if msg.Exchange != models.ExchangeBybit || msg.Symbol != "XRPUSDT" {
			t.Errorf("unexpected message %+v", msg)
		}
		if string(msg.Data) != string(payload) {
			t.Error("payload not forwarded intact")
		}
	default:
		t.Fatal("expected message on raw channel")
	}
}

func TestStartRequiresEnabledStream(t *testing.T) {
	cfg := &appconfig.Config{}
	ch := liq.NewChannels(1, 1)
	r := Bybit_LIQ_NewReader(cfg, ch, nil)

	if err := r.Bybit_LIQ_Start(context.Background()); err == nil {
		t.Fatal("expected error when stream disabled")
	}
}
