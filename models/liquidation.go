package models

import "time"

const (
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"

	MarketLiquidation = "liquidation"

	SideBuy  = "BUY"
	SideSell = "SELL"
)

// RawLiquidationMessage represents a raw liquidation payload captured from an
// exchange specific stream. It keeps the raw JSON payload together with
// metadata that allows downstream processors to route the event.
type RawLiquidationMessage struct {
	Exchange  string
	Symbol    string
	Market    string
	Data      []byte
	Timestamp time.Time
}

// LiquidationEvent is a normalized forced-liquidation order. Symbols are
// always in Binance notation regardless of the source exchange.
type LiquidationEvent struct {
	Exchange       string  `json:"exchange"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	OrderType      string  `json:"order_type"`
	Price          float64 `json:"price"`
	Quantity       float64 `json:"quantity"`
	Notional       float64 `json:"notional"`
	EventTime      int64   `json:"event_time"`
	ReceivedTime   int64   `json:"received_time"`
	Recommendation string  `json:"ai_recommendation"`
	Confidence     int     `json:"confidence"`
}

// BatchLiquidationMessage groups normalized liquidation events for the
// archive writer. Batches are keyed by exchange, market and symbol.
type BatchLiquidationMessage struct {
	BatchID     string
	Exchange    string
	Symbol      string
	Market      string
	Entries     []LiquidationEvent
	RecordCount int
	Timestamp   time.Time
	ProcessedAt time.Time
}
