package models

// risk.go - оценка риска и аварийные действия
//
// Уровни и действия полностью упорядочены по серьёзности. Внутри одной
// оценки уровень/действие могут только эскалировать (монотонный merge),
// независимо от порядка проверок.

// RiskLevel - уровень риска
type RiskLevel int

const (
	RiskLevelSafe RiskLevel = iota
	RiskLevelCaution
	RiskLevelWarning
	RiskLevelDanger
	RiskLevelBlocked
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLevelSafe:
		return "SAFE"
	case RiskLevelCaution:
		return "CAUTION"
	case RiskLevelWarning:
		return "WARNING"
	case RiskLevelDanger:
		return "DANGER"
	case RiskLevelBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// RiskAction - предписанное действие
type RiskAction int

const (
	RiskActionAllow RiskAction = iota
	RiskActionPause
	RiskActionExit
	RiskActionBlock
)

func (a RiskAction) String() string {
	switch a {
	case RiskActionAllow:
		return "ALLOW"
	case RiskActionPause:
		return "PAUSE"
	case RiskActionExit:
		return "EXIT"
	case RiskActionBlock:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// MergeLevel возвращает более серьёзный из двух уровней
func MergeLevel(a, b RiskLevel) RiskLevel {
	if b > a {
		return b
	}
	return a
}

// MergeAction возвращает более серьёзное из двух действий
func MergeAction(a, b RiskAction) RiskAction {
	if b > a {
		return b
	}
	return a
}

// PositionSnapshot - открытая позиция на момент оценки риска
type PositionSnapshot struct {
	Side             string `json:"side"` // long, short
	NotionalQuote    int64  `json:"notional_quote"`
	Leverage         int    `json:"leverage"`
	MarkPrice        int64  `json:"mark_price"`
	LiquidationPrice int64  `json:"liquidation_price"` // 0 = неизвестна
}

// RiskSnapshot - входной снимок состояния счёта. Неизменяем в пределах
// одной оценки; вызывающий строит новый снимок на каждую оценку.
type RiskSnapshot struct {
	EquityQuote     int64             `json:"equity_quote"`
	MarginUsedQuote int64             `json:"margin_used_quote"`
	Position        *PositionSnapshot `json:"position,omitempty"` // nil = позиции нет
	DailyPnlQuote   int64             `json:"daily_pnl_quote"`
	PeakEquityQuote int64             `json:"peak_equity_quote"`
}

// RiskMetrics - производные метрики снимка
type RiskMetrics struct {
	NotionalQuote      int64 `json:"notional_quote"`
	LeverageBps        int64 `json:"leverage_bps"`
	MarginUtilBps      int64 `json:"margin_util_bps"`
	LiquidationDistBps int64 `json:"liquidation_dist_bps"` // 10000 = позиции нет, полный буфер
	DailyPnlQuote      int64 `json:"daily_pnl_quote"`
	DrawdownBps        int64 `json:"drawdown_bps"`
}

// RiskAssessment - итог оценки риска
type RiskAssessment struct {
	Level   RiskLevel   `json:"level"`
	Action  RiskAction  `json:"action"`
	Reasons []string    `json:"reasons"` // все сработавшие условия, не только самое серьёзное
	Metrics RiskMetrics `json:"metrics"`
}

// Типы аварийных действий
const (
	EmergencyKillSwitch = "KILL_SWITCH" // закрыть все позиции, запретить входы
	EmergencyReduceOnly = "REDUCE_ONLY" // выходы разрешены, входы запрещены
)

// EmergencyAction - зафиксированное аварийное действие
type EmergencyAction struct {
	Type          string     `json:"type"`
	Level         RiskLevel  `json:"level"`
	Action        RiskAction `json:"action"`
	Reasons       []string   `json:"reasons"`
	TriggeredAtMs int64      `json:"triggered_at_ms"`
}
