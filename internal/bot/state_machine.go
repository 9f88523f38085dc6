package bot

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// state_machine.go - машина состояний жизненного цикла хеджа
//
// Переходы разрешены только по явной таблице; попытка недопустимого
// перехода - ошибка программирования, не тихий no-op.

// BotState - состояние бота
type BotState string

const (
	StateIdle     BotState = "idle"     // хеджа нет, входы разрешены
	StateEntering BotState = "entering" // идёт оркестрация входа
	StateHolding  BotState = "holding"  // хедж открыт, собираем funding
	StateExiting  BotState = "exiting"  // идёт оркестрация выхода
	StateError    BotState = "error"    // требуется reconciliation
)

// допустимые переходы
var validTransitions = map[BotState][]BotState{
	StateIdle:     {StateEntering, StateError},
	StateEntering: {StateHolding, StateIdle, StateError},
	StateHolding:  {StateExiting, StateError},
	StateExiting:  {StateIdle, StateError},
	StateError:    {StateIdle}, // только после внешней сверки
}

// TransitionCallback вызывается после успешного перехода
type TransitionCallback func(from, to BotState)

// StateMachine отслеживает состояние жизненного цикла хеджа
type StateMachine struct {
	mu       sync.RWMutex
	state    BotState
	enteredAt time.Time

	onTransition TransitionCallback
	logger       *zap.Logger
}

// NewStateMachine создает машину в состоянии idle
func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{
		state:     StateIdle,
		enteredAt: time.Now(),
		logger:    logger,
	}
}

// SetTransitionCallback устанавливает callback переходов.
// Вызывается до старта engine, не потокобезопасно.
func (sm *StateMachine) SetTransitionCallback(cb TransitionCallback) {
	sm.onTransition = cb
}

// State возвращает текущее состояние
func (sm *StateMachine) State() BotState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// InState возвращает время нахождения в текущем состоянии
func (sm *StateMachine) InState() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.enteredAt)
}

// Transition переводит машину в состояние to, если переход допустим
func (sm *StateMachine) Transition(to BotState) error {
	sm.mu.Lock()

	from := sm.state
	if !transitionAllowed(from, to) {
		sm.mu.Unlock()
		return fmt.Errorf("invalid state transition: %s -> %s", from, to)
	}

	sm.state = to
	sm.enteredAt = time.Now()
	sm.mu.Unlock()

	sm.logger.Info("bot state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	if sm.onTransition != nil {
		sm.onTransition(from, to)
	}

	return nil
}

// CanTransition проверяет допустимость перехода без его выполнения
func (sm *StateMachine) CanTransition(to BotState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return transitionAllowed(sm.state, to)
}

func transitionAllowed(from, to BotState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
