package bot

import (
	"errors"
	"fmt"
)

// errors.go - типизированные ошибки исполнения
//
// Таксономия: abort (ожидаемый бизнес-исход) возвращается как
// ExecutionResult с Aborted=true; частичный провал - как результат с
// уцелевшими ордерами; жёсткий провал - как ExecutionError с кодом и
// исходной причиной, чтобы вызывающий логировал/алертил, а внешний
// reconciler потом сверил с биржей.

// Коды ошибок исполнения
const (
	CodeOrderFillTimeout      = "order_fill_timeout"
	CodeSlippageExceeded      = "slippage_exceeded"
	CodeDriftCorrectionFailed = "drift_correction_failed"
	CodePartialFillExhausted  = "partial_fill_exhausted"
	CodeEnterHedgeFailed      = "enter_hedge_failed"
	CodeExitHedgeFailed       = "exit_hedge_failed"
)

// ExecutionError - жёсткая ошибка исполнения с кодом и причиной
type ExecutionError struct {
	Code    string
	Message string
	Err     error // исходная причина, может быть nil
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError создает ошибку исполнения
func NewExecutionError(code, message string, cause error) *ExecutionError {
	return &ExecutionError{Code: code, Message: message, Err: cause}
}

// ExecutionErrorCode возвращает код ошибки исполнения в цепочке err,
// или пустую строку. Внешний код обёртки имеет приоритет над внутренним.
func ExecutionErrorCode(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ""
}

// HasExecutionCode проверяет наличие кода где-либо в цепочке err
func HasExecutionCode(err error, code string) bool {
	for err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			return false
		}
		if execErr.Code == code {
			return true
		}
		err = execErr.Err
	}
	return false
}
