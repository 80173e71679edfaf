package models

const (
	PaperModeTestnet = "testnet"
	PaperModeSim     = "sim"
)

// PaperOrder records one paper trade, either forwarded to the futures
// testnet or simulated locally.
type PaperOrder struct {
	ID        string      `json:"id"`
	Timestamp int64       `json:"ts"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Quantity  float64     `json:"quantity"`
	Price     float64     `json:"price,omitempty"`
	Mode      string      `json:"mode"`
	Error     string      `json:"error,omitempty"`
	Raw       interface{} `json:"raw,omitempty"`
}

// Position is the running net position for a symbol in the paper account.
// Quantity is signed: positive long, negative short.
type Position struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	AvgEntry    float64 `json:"avg_entry"`
	RealizedPnL float64 `json:"realized_pnl"`
}
