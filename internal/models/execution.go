package models

import "time"

// execution.go - результаты исполнения хеджа
//
// ExecutionResult - ЕДИНСТВЕННЫЙ артефакт, возвращаемый вызывающей стороне.
// Конструируется на каждом пути выхода (успех, abort на валидации, частичный
// провал), чтобы вызывающий никогда не восстанавливал исход по исключениям.

// Операции исполнения
const (
	ExecutionOpEnter = "enter_hedge"
	ExecutionOpExit  = "exit_hedge"
)

// SlippageEstimate - оценка проскальзывания по снимку стакана
type SlippageEstimate struct {
	SlippageBps    int64 `json:"slippage_bps"`    // знак: платим больше/получаем меньше = положительное
	AvgFillPrice   int64 `json:"avg_fill_price"`  // VWAP по уровням, quote units за монету
	MidPrice       int64 `json:"mid_price"`       // (bestBid+bestAsk)/2
	AvailableBase  int64 `json:"available_base"`  // доступная глубина, base units
	RequiredBase   int64 `json:"required_base"`   // требуемая глубина, base units
	CanExecute     bool  `json:"can_execute"`     // проскальзывание И глубина в пределах порогов
}

// HedgeDrift - расхождение номиналов двух ног после исполнения
type HedgeDrift struct {
	PerpNotionalQuote int64 `json:"perp_notional_quote"`
	SpotNotionalQuote int64 `json:"spot_notional_quote"`
	DriftBps          int64 `json:"drift_bps"` // |perp-spot| относительно большего номинала
	NeedsCorrection   bool  `json:"needs_correction"`
}

// ExecutionResult - результат одной оркестрации enter/exit
type ExecutionResult struct {
	Operation string            `json:"operation"` // enter_hedge, exit_hedge
	Success   bool              `json:"success"`
	Aborted   bool              `json:"aborted"`
	Reason    string            `json:"reason,omitempty"`
	PerpOrder *OrderRecord      `json:"perp_order,omitempty"`
	SpotOrder *OrderRecord      `json:"spot_order,omitempty"`
	Drift     *HedgeDrift       `json:"drift,omitempty"`
	Slippage  *SlippageEstimate `json:"slippage,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ExecutionRecord - запись об исполнении в БД
type ExecutionRecord struct {
	ID        int       `json:"id" db:"id"`
	Operation string    `json:"operation" db:"operation"`
	Success   bool      `json:"success" db:"success"`
	Aborted   bool      `json:"aborted" db:"aborted"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	DriftBps  int64     `json:"drift_bps" db:"drift_bps"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
