package symbols

import "strings"

// ToBinance converts exchange-specific symbol formats to Binance style.
// Symbols come back uppercase without separators. Multiplier contracts
// (1000PEPE and friends) collapse onto the plain Binance symbol so the
// watchlist filter treats both feeds uniformly.
func ToBinance(exchange, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch strings.ToLower(exchange) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	default:
		// others already use the desired format
	}
	return sym
}
