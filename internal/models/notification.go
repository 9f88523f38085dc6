package models

import "time"

// Notification представляет уведомление о событии
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // ENTER, EXIT, EMERGENCY, DRIFT, ERROR, PARTIAL, RESET
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeEnter     = "ENTER"     // вход в хедж
	NotificationTypeExit      = "EXIT"      // выход из хеджа
	NotificationTypeEmergency = "EMERGENCY" // kill switch / reduce-only
	NotificationTypeDrift     = "DRIFT"     // коррекция расхождения ног
	NotificationTypeError     = "ERROR"     // ошибка API/ордера
	NotificationTypePartial   = "PARTIAL"   // вторая нога не исполнилась
	NotificationTypeReset     = "RESET"     // сброс оператором после сверки
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
