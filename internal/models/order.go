package models

import "time"

// OrderRecord представляет запись об ордере в журнале исполнения
type OrderRecord struct {
	ID           int        `json:"id" db:"id"`
	ExecutionID  int        `json:"execution_id" db:"execution_id"`
	ExchangeID   string     `json:"exchange_id" db:"exchange_id"` // ID ордера на бирже
	Symbol       string     `json:"symbol" db:"symbol"`
	Leg          string     `json:"leg" db:"leg"`   // perp, spot
	Side         string     `json:"side" db:"side"` // buy, sell
	Type         string     `json:"type" db:"type"` // market
	ReduceOnly   bool       `json:"reduce_only" db:"reduce_only"`
	QuantityBase int64      `json:"quantity_base" db:"quantity_base"`   // запрошено, base units
	FilledBase   int64      `json:"filled_base" db:"filled_base"`       // исполнено, base units
	AvgFillPrice int64      `json:"avg_fill_price" db:"avg_fill_price"` // quote units за монету, 0 = нет
	Status       string     `json:"status" db:"status"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	FilledAt     *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Ноги хеджа
const (
	LegPerp = "perp"
	LegSpot = "spot"
)

// Статусы ордера. Переходы - только вперёд, к терминальному подмножеству.
// partially_filled терминален для ОПРОСА подтверждения: доведение до полного
// объёма - отдельная операция (PartialFillCompleter).
const (
	OrderStatusPending         = "pending"
	OrderStatusOpen            = "open"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCancelled       = "cancelled"
	OrderStatusRejected        = "rejected"
	OrderStatusExpired         = "expired"
)

// IsTerminalOrderStatus возвращает true для статусов, после которых биржа
// ордер уже не изменит
func IsTerminalOrderStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusPartiallyFilled,
		OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}
