package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	"hedgebot/internal/exchange"
)

// Скриптуемый фейковый адаптер биржи для тестов пакета. Поведение
// переопределяется hook-функциями; по умолчанию ордера исполняются
// полностью первым же опросом.
type fakeExchange struct {
	mu sync.Mutex

	createFn      func(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error)
	getFn         func(ctx context.Context, symbol, orderID string) (*exchange.Order, error)
	positionFn    func(ctx context.Context, symbol string) (*exchange.Position, error)
	bookFn        func(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error)
	spotBalanceFn func(ctx context.Context, asset string) (int64, error)

	nextID       int
	createCalls  []exchange.OrderRequest
	getCalls     int
	spotBalCalls int
	orders       map[string]*exchange.Order
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{orders: make(map[string]*exchange.Order)}
}

func (f *fakeExchange) Connect(apiKey, secret string) error { return nil }
func (f *fakeExchange) Disconnect() error                   { return nil }
func (f *fakeExchange) IsConnected() bool                   { return true }
func (f *fakeExchange) GetName() string                     { return "fake" }

func (f *fakeExchange) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, req)
	f.mu.Unlock()

	if f.createFn != nil {
		return f.createFn(ctx, req)
	}

	// Дефолт: ордер немедленно исполнен по цене 50,000
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order := &exchange.Order{
		ID:           strconv.Itoa(f.nextID),
		Symbol:       req.Symbol,
		Market:       req.Market,
		Side:         req.Side,
		Type:         req.Type,
		Status:       "filled",
		QuantityBase: req.QuantityBase,
		FilledBase:   req.QuantityBase,
		AvgFillPrice: 50_000_000_000,
		ReduceOnly:   req.ReduceOnly,
		UpdatedAt:    time.Now(),
	}
	f.orders[exchange.ComposeOrderID(req.Market, order.ID)] = order
	return order, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	f.mu.Lock()
	f.getCalls++
	f.mu.Unlock()

	if f.getFn != nil {
		return f.getFn(ctx, symbol, orderID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderID]; ok {
		return order, nil
	}
	return nil, exchange.ErrOrderNotFound
}

func (f *fakeExchange) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	if f.positionFn != nil {
		return f.positionFn(ctx, symbol)
	}
	return nil, nil
}

func (f *fakeExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	if f.bookFn != nil {
		return f.bookFn(ctx, symbol, depth)
	}
	return deepBook(), nil
}

func (f *fakeExchange) GetBalance(ctx context.Context) (*exchange.Balance, error) {
	return &exchange.Balance{
		EquityQuote:     100_000_000_000,
		MarginUsedQuote: 5_000_000_000,
		UpdatedAt:       time.Now(),
	}, nil
}

func (f *fakeExchange) GetSpotBalance(ctx context.Context, asset string) (int64, error) {
	f.mu.Lock()
	f.spotBalCalls++
	f.mu.Unlock()

	if f.spotBalanceFn != nil {
		return f.spotBalanceFn(ctx, asset)
	}
	return 0, nil
}

func (f *fakeExchange) GetFundingRate(ctx context.Context, symbol string) (int64, error) {
	return 1, nil
}

func (f *fakeExchange) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}

// Глубокий стакан вокруг mid 50,000: хватает на любые тестовые заявки
func deepBook() *exchange.OrderBook {
	return &exchange.OrderBook{
		Symbol: "BTCUSDT",
		Bids: []exchange.PriceLevel{
			{Price: 49_999_000_000, VolumeBase: 100_000},
			{Price: 49_998_000_000, VolumeBase: 100_000},
		},
		Asks: []exchange.PriceLevel{
			{Price: 50_001_000_000, VolumeBase: 100_000},
			{Price: 50_002_000_000, VolumeBase: 100_000},
		},
		Timestamp: time.Now(),
	}
}

// Тонкий стакан: по 10 base units на сторону
func thinBook() *exchange.OrderBook {
	return &exchange.OrderBook{
		Symbol: "BTCUSDT",
		Bids: []exchange.PriceLevel{
			{Price: 49_999_000_000, VolumeBase: 10},
		},
		Asks: []exchange.PriceLevel{
			{Price: 50_001_000_000, VolumeBase: 10},
		},
		Timestamp: time.Now(),
	}
}
