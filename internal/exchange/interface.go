// Package exchange предоставляет унифицированный интерфейс для работы с биржей.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Exchange определяет возможности биржевого адаптера, которые потребляет
// торговое ядро. Любой метод может вернуть типизированную *ExchangeError.
type Exchange interface {
	// Connect устанавливает соединение с биржей
	Connect(apiKey, secret string) error

	// Disconnect закрывает соединения с биржей
	Disconnect() error

	// IsConnected возвращает состояние соединения
	IsConnected() bool

	// GetName возвращает имя биржи
	GetName() string

	// CreateOrder размещает ордер
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// GetOrder возвращает ордер по ID.
	// Возвращает ErrOrderNotFound если ордер ещё не виден бирже -
	// для свежеразмещённого ордера это ожидаемое состояние, не сбой.
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)

	// GetPosition возвращает открытую позицию по символу или nil если её нет
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// GetOrderBook возвращает стакан с заданной глубиной
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// GetBalance возвращает equity и использованную маржу в quote units
	GetBalance(ctx context.Context) (*Balance, error)

	// GetSpotBalance возвращает остаток актива на спотовом кошельке
	// (free + locked) в base units
	GetSpotBalance(ctx context.Context, asset string) (int64, error)

	// GetFundingRate возвращает текущую ставку финансирования в bps
	GetFundingRate(ctx context.Context, symbol string) (int64, error)
}

// OrderRequest - параметры размещения ордера.
// Количества в base units, цены в quote units за монету.
type OrderRequest struct {
	Symbol       string
	Market       string // perp, spot
	Side         string // buy, sell
	Type         string // market, limit
	QuantityBase int64
	Price        int64  // только для limit
	StopPrice    int64  // только для stop
	TimeInForce  string // GTC, IOC, FOK; пусто = дефолт биржи
	ReduceOnly   bool   // только уменьшение позиции (выход/коррекция перпа)
}

// Рынки
const (
	MarketPerp = "perp"
	MarketSpot = "spot"
)

// Order представляет ордер в представлении биржи
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Market       string    `json:"market"`
	Side         string    `json:"side"`
	Type         string    `json:"type"`
	Status       string    `json:"status"` // статусы из models (pending ... expired)
	QuantityBase int64     `json:"quantity_base"`
	FilledBase   int64     `json:"filled_base"`
	AvgFillPrice int64     `json:"avg_fill_price"` // 0 = цена исполнения неизвестна
	ReduceOnly   bool      `json:"reduce_only"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Position представляет открытую позицию
type Position struct {
	Symbol           string    `json:"symbol"`
	Market           string    `json:"market"`
	Side             string    `json:"side"` // long, short
	SizeBase         int64     `json:"size_base"`
	EntryPrice       int64     `json:"entry_price"`
	MarkPrice        int64     `json:"mark_price"`
	LiquidationPrice int64     `json:"liquidation_price"` // 0 = неизвестна
	Leverage         int       `json:"leverage"`
	UnrealizedPnl    int64     `json:"unrealized_pnl"` // quote units
	UpdatedAt        time.Time `json:"updated_at"`
}

// Balance - состояние фьючерсного счёта
type Balance struct {
	EquityQuote     int64     `json:"equity_quote"`
	MarginUsedQuote int64     `json:"margin_used_quote"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OrderBook представляет стакан ордеров
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // заявки на покупку, по убыванию цены
	Asks      []PriceLevel `json:"asks"` // заявки на продажу, по возрастанию цены
	Timestamp time.Time    `json:"timestamp"`
}

// PriceLevel представляет уровень цены в стакане
type PriceLevel struct {
	Price      int64 `json:"price"`       // quote units за монету
	VolumeBase int64 `json:"volume_base"` // base units
}

// MidPrice возвращает середину спреда или 0 для пустого стакана
func (ob *OrderBook) MidPrice() int64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	return (ob.Bids[0].Price + ob.Asks[0].Price) / 2
}

// ErrOrderNotFound - ордер не найден на бирже (ещё не виден либо не существует)
var ErrOrderNotFound = errors.New("order not found on exchange")

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Side constants for orders
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Side constants for positions
const (
	SideLong  = "long"
	SideShort = "short"
)

// Order types
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// ComposeOrderID кодирует рынок в ID ордера для GetOrder: на биржах,
// где перп и спот живут на разных endpoint'ах, по одному ID рынок не
// восстановить
func ComposeOrderID(market, id string) string {
	return market + ":" + id
}
