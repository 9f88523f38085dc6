package bot

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// breaker.go - circuit breaker на размещение ордеров
//
// Отдельный, более консервативный breaker, чем общие API breaker'ы:
// открывается после 2 подряд провалов, закрывается одним успехом из
// half-open. Оркестраторы обязаны проверять IsOpen() до исполнения и
// возвращать aborted-результат вместо похода на биржу.
//
// Одновременно выполняется не более одной оркестрации, но breaker
// защищён мьютексом на случай конкурентного доступа из API-хендлеров.

// Состояния breaker'а
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ExecutionCircuitBreaker защищает вызовы размещения ордеров
type ExecutionCircuitBreaker struct {
	mu sync.Mutex

	state        BreakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time

	now    func() time.Time
	logger *zap.Logger
}

// NewExecutionCircuitBreaker создает breaker в закрытом состоянии
func NewExecutionCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *zap.Logger) *ExecutionCircuitBreaker {
	return &ExecutionCircuitBreaker{
		state:        BreakerClosed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// IsOpen возвращает true, если breaker открыт и период охлаждения ещё
// не истёк. Истёкший период переводит breaker в half-open.
func (b *ExecutionCircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.transition(BreakerHalfOpen)
	}

	return b.state == BreakerOpen
}

// State возвращает текущее состояние
func (b *ExecutionCircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ErrBreakerOpen возвращается из Do без вызова fn, когда breaker открыт
var ErrBreakerOpen = errors.New("execution circuit breaker is open")

// Do выполняет fn, учитывая результат в состоянии breaker'а. Открытый
// breaker не вызывает fn и сразу возвращает ErrBreakerOpen: fail-fast
// действует на КАЖДОЕ размещение ордера, включая доливки и коррекцию
// внутри уже идущей оркестрации, а не только на входную проверку.
// Отказ по открытому breaker'у провалом не считается.
func (b *ExecutionCircuitBreaker) Do(fn func() error) error {
	if b.IsOpen() {
		return ErrBreakerOpen
	}

	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// RecordSuccess фиксирует успешный вызов: сбрасывает счётчик провалов,
// из half-open закрывает breaker
func (b *ExecutionCircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

// RecordFailure фиксирует провал: half-open сразу открывается, closed
// открывается после maxFailures подряд
func (b *ExecutionCircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	if b.state == BreakerHalfOpen {
		b.open()
		return
	}

	if b.state == BreakerClosed && b.failures >= b.maxFailures {
		b.open()
	}
}

// open открывает breaker и запоминает момент открытия. Вызывается под
// мьютексом.
func (b *ExecutionCircuitBreaker) open() {
	b.openedAt = b.now()
	b.transition(BreakerOpen)
}

// transition переключает состояние с логированием. Вызывается под
// мьютексом.
func (b *ExecutionCircuitBreaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.logger != nil {
		b.logger.Warn("execution circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Int("consecutive_failures", b.failures))
	}
}
