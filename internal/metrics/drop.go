package metrics

import "liqmon/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricLiquidationRaw records dropped liquidation stream messages.
	DropMetricLiquidationRaw DropMetric = "liquidation_messages_dropped"
	// DropMetricLiquidationNorm records dropped liquidation batches after normalisation.
	DropMetricLiquidationNorm DropMetric = "liquidation_norm_messages_dropped"
	// DropMetricParseFailure records payloads that could not be normalised.
	DropMetricParseFailure DropMetric = "liquidation_parse_failures"
)

// EmitDropMetric logs and emits a metric representing a dropped channel
// message. The metric value is always incremented by one so callers should
// invoke this helper for each dropped message. Optional metadata (exchange,
// market, symbol, stage) is added to the metric fields when provided which
// enables downstream aggregation per exchange and stream type.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, market, symbol, stage string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if market != "" {
		fields["market"] = market
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
