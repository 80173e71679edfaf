package paper

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"liqmon/logger"
	"liqmon/models"
	"liqmon/store"
)

const simStartingBalance = 10000.0

// PriceSource resolves the latest price for simulated fills.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, bool)
}

// SymbolChecker reports whether a symbol is on the watchlist.
type SymbolChecker func(symbol string) bool

// OrderRequest is a paper order submission.
type OrderRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
}

// OrderResult reports the outcome of a paper order. Mode is "testnet" when
// the order was routed to the exchange testnet and "sim" when it was filled
// locally.
type OrderResult struct {
	OK    bool               `json:"ok"`
	Mode  string             `json:"mode"`
	Order *models.PaperOrder `json:"result,omitempty"`
	Error string             `json:"error,omitempty"`
}

// ValidationError marks bad order input, distinguishing client mistakes
// from upstream failures.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Engine executes paper trades. With API keys configured orders go to the
// Binance futures testnet; without keys they are filled locally at the
// latest known price.
type Engine struct {
	client     *futures.Client
	prices     PriceSource
	store      *store.Store
	onWatch    SymbolChecker
	useTestnet bool
	log        *logger.Entry

	mu        sync.Mutex
	positions map[string]*models.Position
	realized  float64
}

func NewEngine(apiKey, apiSecret string, testnet bool, priceSrc PriceSource, st *store.Store, onWatch SymbolChecker) *Engine {
	e := &Engine{
		prices:    priceSrc,
		store:     st,
		onWatch:   onWatch,
		log:       logger.WithComponent("paper"),
		positions: make(map[string]*models.Position),
	}
	if apiKey != "" && apiSecret != "" {
		if testnet {
			futures.UseTestnet = true
		}
		e.client = binance.NewFuturesClient(apiKey, apiSecret)
		e.useTestnet = true
	}
	return e
}

// Testnet reports whether orders are routed to the exchange testnet.
func (e *Engine) Testnet() bool { return e.useTestnet }

// Config describes the active paper trading mode.
func (e *Engine) Config() map[string]interface{} {
	mode := models.PaperModeSim
	if e.useTestnet {
		mode = models.PaperModeTestnet
	}
	return map[string]interface{}{
		"enabled":          true,
		"mode":             mode,
		"testnet":          e.useTestnet,
		"has_keys":         e.client != nil,
		"starting_balance": simStartingBalance,
	}
}

// PlaceOrder validates and executes a paper order. A *ValidationError is
// returned for bad input; transport failures are reported inside the result.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	side := strings.ToUpper(strings.TrimSpace(req.Side))

	if symbol == "" || !e.onWatch(symbol) {
		return OrderResult{}, &ValidationError{Reason: fmt.Sprintf("symbol %q not on watchlist", req.Symbol)}
	}
	if side != models.SideBuy && side != models.SideSell {
		return OrderResult{}, &ValidationError{Reason: fmt.Sprintf("side must be BUY or SELL, got %q", req.Side)}
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return OrderResult{}, &ValidationError{Reason: "quantity must be a positive number"}
	}

	logger.IncrementPaperOrder()
	if e.useTestnet {
		return e.placeTestnet(ctx, symbol, side, req.Quantity), nil
	}
	return e.placeSim(ctx, symbol, side, req.Quantity), nil
}

func (e *Engine) placeTestnet(ctx context.Context, symbol, side string, qty float64) OrderResult {
	res, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(qty, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		e.log.WithFields(logger.Fields{
			"symbol": symbol,
			"side":   side,
			"error":  err.Error(),
		}).Warn("testnet order rejected")

		order := models.PaperOrder{
			ID:        uuid.New().String(),
			Timestamp: time.Now().UnixMilli(),
			Symbol:    symbol,
			Side:      side,
			Quantity:  qty,
			Mode:      models.PaperModeSim,
			Error:     err.Error(),
		}
		e.store.AddPaperOrder(order)
		return OrderResult{OK: false, Mode: models.PaperModeTestnet, Order: &order, Error: err.Error()}
	}

	price := 0.0
	if res.AvgPrice != "" {
		price, _ = strconv.ParseFloat(res.AvgPrice, 64)
	}
	order := models.PaperOrder{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Timestamp: time.Now().UnixMilli(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Mode:      models.PaperModeTestnet,
		Raw:       res,
	}
	e.store.AddPaperOrder(order)
	e.applyFill(symbol, side, qty, price)

	e.log.WithFields(logger.Fields{
		"symbol":   symbol,
		"side":     side,
		"quantity": qty,
		"order_id": order.ID,
	}).Info("testnet order placed")
	return OrderResult{OK: true, Mode: models.PaperModeTestnet, Order: &order}
}

func (e *Engine) placeSim(ctx context.Context, symbol, side string, qty float64) OrderResult {
	// Price 0 when no provider can resolve the symbol; the position book
	// skips zero-price fills.
	price, _ := e.prices.LatestPrice(ctx, symbol)

	order := models.PaperOrder{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Mode:      models.PaperModeSim,
	}
	e.store.AddPaperOrder(order)
	e.applyFill(symbol, side, qty, price)

	e.log.WithFields(logger.Fields{
		"symbol":   symbol,
		"side":     side,
		"quantity": qty,
		"price":    price,
	}).Info("sim order filled")
	return OrderResult{OK: true, Mode: models.PaperModeSim, Order: &order}
}

// applyFill folds a fill into the signed position book. Fills against the
// current direction realize PnL; a fill larger than the open position
// flips it and the remainder opens at the fill price.
func (e *Engine) applyFill(symbol, side string, qty, price float64) {
	if price <= 0 {
		return
	}

	delta := qty
	if side == models.SideSell {
		delta = -qty
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		pos = &models.Position{Symbol: symbol}
		e.positions[symbol] = pos
	}

	if pos.Quantity == 0 || sameSign(pos.Quantity, delta) {
		total := math.Abs(pos.Quantity) + qty
		pos.AvgEntry = (pos.AvgEntry*math.Abs(pos.Quantity) + price*qty) / total
		pos.Quantity += delta
		return
	}

	closing := math.Min(qty, math.Abs(pos.Quantity))
	direction := 1.0
	if pos.Quantity < 0 {
		direction = -1.0
	}
	pnl := closing * (price - pos.AvgEntry) * direction
	pos.RealizedPnL += pnl
	e.realized += pnl

	pos.Quantity += delta
	switch {
	case pos.Quantity == 0:
		pos.AvgEntry = 0
	case !sameSign(pos.Quantity, direction):
		pos.AvgEntry = price
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// Positions returns a copy of the open position book.
func (e *Engine) Positions() []models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Balance reports the account balance. On the testnet it is fetched from
// the exchange; in sim mode it is the starting balance plus realized PnL.
func (e *Engine) Balance(ctx context.Context) map[string]interface{} {
	if e.useTestnet {
		balances, err := e.client.NewGetBalanceService().Do(ctx)
		if err == nil {
			for _, b := range balances {
				if b.Asset != "USDT" {
					continue
				}
				if v, perr := strconv.ParseFloat(b.Balance, 64); perr == nil {
					return map[string]interface{}{
						"mode":    models.PaperModeTestnet,
						"asset":   "USDT",
						"balance": v,
					}
				}
			}
		}
		e.log.WithField("error", fmt.Sprintf("%v", err)).Warn("testnet balance fetch failed")
	}

	e.mu.Lock()
	realized := e.realized
	e.mu.Unlock()
	return map[string]interface{}{
		"mode":     models.PaperModeSim,
		"asset":    "USDT",
		"balance":  simStartingBalance + realized,
		"realized": realized,
	}
}
