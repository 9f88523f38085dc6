package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/models"
)

// engine.go - последовательный движок исполнения
//
// Очередь намерений гарантирует, что одновременно выполняется НЕ БОЛЕЕ
// ОДНОЙ оркестрации enter/exit: конкурентные операции над хеджем
// запрещены, коррекция расхождения и проверки риска рассчитывают на
// стабильную позицию. Намерения обрабатываются одним worker'ом в
// порядке поступления.

// ErrEngineBusy возвращается при переполненной очереди намерений
var ErrEngineBusy = errors.New("execution queue is full")

// ErrEntriesBlocked возвращается, когда входы запрещены аварийным
// режимом reduce-only
var ErrEntriesBlocked = errors.New("entries blocked by reduce-only mode")

// Intent - намерение исполнения в очереди
type Intent struct {
	Operation    string // enter_hedge, exit_hedge
	QuantityBase int64  // enter
	PerpSizeBase int64  // exit
	SpotSizeBase int64  // exit
}

// ExecutionJournal сохраняет результаты исполнения. Реализуется
// repository-слоем; движок знает только эту способность.
type ExecutionJournal interface {
	RecordExecution(ctx context.Context, result *models.ExecutionResult) error
}

// Engine управляет жизненным циклом хеджа
type Engine struct {
	executor  *Executor
	sm        *StateMachine
	risk      *RiskEvaluator
	sizer     *PositionSizer
	emergency *EmergencyDecider
	snapshot  SnapshotFunc
	journal   ExecutionJournal

	intents       chan Intent
	notifications chan models.Notification

	riskInterval time.Duration

	mu         sync.Mutex
	reduceOnly bool
	perpBase   int64 // размер открытого хеджа, base units
	spotBase   int64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	logger  *zap.Logger
	metrics *Metrics
}

// EngineDeps - зависимости движка
type EngineDeps struct {
	Executor  *Executor
	State     *StateMachine
	Risk      *RiskEvaluator
	Sizer     *PositionSizer
	Emergency *EmergencyDecider
	Snapshot  SnapshotFunc
	Journal   ExecutionJournal // nil допустим

	RiskInterval time.Duration

	Logger  *zap.Logger
	Metrics *Metrics // nil допустим
}

// NewEngine создает движок
func NewEngine(deps EngineDeps) *Engine {
	riskInterval := deps.RiskInterval
	if riskInterval <= 0 {
		riskInterval = 10 * time.Second
	}
	return &Engine{
		executor:      deps.Executor,
		sm:            deps.State,
		risk:          deps.Risk,
		sizer:         deps.Sizer,
		emergency:     deps.Emergency,
		snapshot:      deps.Snapshot,
		journal:       deps.Journal,
		intents:       make(chan Intent, 8),
		notifications: make(chan models.Notification, 64),
		riskInterval:  riskInterval,
		stop:          make(chan struct{}),
		logger:        deps.Logger,
		metrics:       deps.Metrics,
	}
}

// Start запускает worker очереди и цикл мониторинга риска
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.runIntentLoop(ctx)
	go e.runRiskLoop(ctx)
	e.logger.Info("execution engine started",
		zap.Duration("risk_interval", e.riskInterval))
}

// Stop останавливает движок и дожидается завершения текущей оркестрации
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
	e.logger.Info("execution engine stopped")
}

// Notifications возвращает канал уведомлений для подписчиков (WebSocket
// hub). Переполненный канал роняет уведомления, не блокируя исполнение.
func (e *Engine) Notifications() <-chan models.Notification {
	return e.notifications
}

// State возвращает текущее состояние жизненного цикла
func (e *Engine) State() BotState {
	return e.sm.State()
}

// HedgeSize возвращает размеры открытого хеджа в base units
func (e *Engine) HedgeSize() (perpBase, spotBase int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perpBase, e.spotBase
}

// ReduceOnly возвращает true, если входы запрещены аварийным режимом
func (e *Engine) ReduceOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reduceOnly
}

// MaxPositionSizeQuote возвращает максимальный номинал нового хеджа
// по свежему снимку счёта
func (e *Engine) MaxPositionSizeQuote(ctx context.Context) (int64, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return e.sizer.MaxPositionSizeQuote(snap.EquityQuote, snap.MarginUsedQuote), nil
}

// RequestEnter ставит в очередь вход в хедж
func (e *Engine) RequestEnter(qtyBase int64) error {
	if qtyBase <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qtyBase)
	}
	if e.ReduceOnly() {
		return ErrEntriesBlocked
	}
	if !e.sm.CanTransition(StateEntering) {
		return fmt.Errorf("cannot enter hedge from state %s", e.sm.State())
	}
	return e.enqueue(Intent{Operation: models.ExecutionOpEnter, QuantityBase: qtyBase})
}

// RequestExit ставит в очередь выход из хеджа в размере открытой позиции
func (e *Engine) RequestExit() error {
	if !e.sm.CanTransition(StateExiting) {
		return fmt.Errorf("cannot exit hedge from state %s", e.sm.State())
	}
	perpBase, spotBase := e.HedgeSize()
	return e.enqueue(Intent{
		Operation:    models.ExecutionOpExit,
		PerpSizeBase: perpBase,
		SpotSizeBase: spotBase,
	})
}

// Reset возвращает бота из состояния error в idle. Вызывается
// оператором ПОСЛЕ внешней сверки позиций с биржей: движок сам не
// знает, чем кончилась зависшая оркестрация. Учёт размера хеджа
// обнуляется - реальное состояние восстанавливает сверка.
func (e *Engine) Reset() error {
	if e.sm.State() != StateError {
		return fmt.Errorf("cannot reset from state %s", e.sm.State())
	}
	if err := e.sm.Transition(StateIdle); err != nil {
		return err
	}
	e.clearPosition()
	e.logger.Warn("bot state reset by operator")
	e.notify(models.NotificationTypeReset, models.SeverityWarn,
		"bot reset to idle after reconciliation", nil)
	return nil
}

func (e *Engine) enqueue(intent Intent) error {
	select {
	case e.intents <- intent:
		return nil
	default:
		return ErrEngineBusy
	}
}

// ============================================================
// Intent worker
// ============================================================

func (e *Engine) runIntentLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case intent := <-e.intents:
			e.process(ctx, intent)
		}
	}
}

func (e *Engine) process(ctx context.Context, intent Intent) {
	switch intent.Operation {
	case models.ExecutionOpEnter:
		e.processEnter(ctx, intent)
	case models.ExecutionOpExit:
		e.processExit(ctx, intent)
	default:
		e.logger.Error("unknown intent operation",
			zap.String("operation", intent.Operation))
	}
}

func (e *Engine) processEnter(ctx context.Context, intent Intent) {
	if err := e.sm.Transition(StateEntering); err != nil {
		e.logger.Warn("enter intent dropped", zap.Error(err))
		return
	}

	result, err := e.executor.EnterHedge(ctx, intent.QuantityBase)
	if err != nil {
		e.logger.Error("enter hedge failed", zap.Error(err))
		e.notify(models.NotificationTypeError, models.SeverityError,
			fmt.Sprintf("enter hedge failed: %v", err), nil)
		e.toState(StateError)
		return
	}

	e.record(ctx, result)

	if result.Aborted {
		e.notify(models.NotificationTypeEnter, models.SeverityWarn,
			"enter hedge aborted: "+result.Reason, nil)
		e.toState(StateIdle)
		return
	}

	e.mu.Lock()
	e.perpBase = result.PerpOrder.FilledBase
	e.spotBase = result.SpotOrder.FilledBase
	e.mu.Unlock()

	meta := map[string]interface{}{
		"perp_filled_base": result.PerpOrder.FilledBase,
		"spot_filled_base": result.SpotOrder.FilledBase,
	}
	if result.Drift != nil {
		meta["drift_bps"] = result.Drift.DriftBps
	}
	e.notify(models.NotificationTypeEnter, models.SeverityInfo,
		"hedge entered", meta)
	e.toState(StateHolding)
}

func (e *Engine) processExit(ctx context.Context, intent Intent) {
	if err := e.sm.Transition(StateExiting); err != nil {
		e.logger.Warn("exit intent dropped", zap.Error(err))
		return
	}

	result, err := e.executor.ExitHedge(ctx, intent.PerpSizeBase, intent.SpotSizeBase)
	if err != nil {
		e.logger.Error("exit hedge failed", zap.Error(err))
		e.notify(models.NotificationTypeError, models.SeverityError,
			fmt.Sprintf("exit hedge failed: %v", err), nil)
		e.toState(StateError)
		return
	}

	e.record(ctx, result)

	switch {
	case result.Aborted:
		// Выходить не из чего: позиция уже плоская
		e.notify(models.NotificationTypeExit, models.SeverityWarn,
			"exit hedge aborted: "+result.Reason, nil)
		e.clearPosition()
		e.toState(StateIdle)
	case !result.Success:
		// Частичный провал: спот продан, перп завис - дальше reconciler
		e.notify(models.NotificationTypePartial, models.SeverityError,
			result.Reason, nil)
		e.toState(StateError)
	default:
		e.notify(models.NotificationTypeExit, models.SeverityInfo,
			"hedge exited", nil)
		e.clearPosition()
		e.toState(StateIdle)
	}
}

func (e *Engine) clearPosition() {
	e.mu.Lock()
	e.perpBase = 0
	e.spotBase = 0
	e.mu.Unlock()
}

func (e *Engine) toState(to BotState) {
	if err := e.sm.Transition(to); err != nil {
		e.logger.Error("state transition failed", zap.Error(err))
	}
}

// record сохраняет результат в журнал исполнения
func (e *Engine) record(ctx context.Context, result *models.ExecutionResult) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordExecution(ctx, result); err != nil {
		// Провал журнала не валит исполнение: ордера уже на бирже
		e.logger.Error("failed to record execution", zap.Error(err))
	}
}

// notify отправляет уведомление без блокировки: при переполненном
// канале уведомление роняется, исполнение важнее доставки
func (e *Engine) notify(notifType, severity, message string, meta map[string]interface{}) {
	n := models.Notification{
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
	}
	select {
	case e.notifications <- n:
	default:
		e.logger.Warn("notification channel full, dropping",
			zap.String("type", notifType))
	}
}

// ============================================================
// Risk monitoring loop
// ============================================================

// runRiskLoop периодически переоценивает риск и применяет аварийные
// действия: KILL_SWITCH ставит в очередь выход, REDUCE_ONLY запрещает
// входы
func (e *Engine) runRiskLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.riskInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evaluateRisk(ctx)
		}
	}
}

func (e *Engine) evaluateRisk(ctx context.Context) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Warn("risk snapshot unavailable", zap.Error(err))
		return
	}

	assessment := e.risk.Evaluate(snap)
	if e.metrics != nil {
		e.metrics.SetRiskLevel(assessment.Level)
		e.metrics.SetEquity(snap.EquityQuote)
	}

	action, err := e.emergency.Decide(ctx, assessment)
	if err != nil {
		// Алерт не доставлен - сигнал сохранения капитала потерян,
		// это ошибка уровня error даже при сработавшем действии
		e.logger.Error("emergency alert failed", zap.Error(err))
	}
	if action == nil {
		e.setReduceOnly(false)
		return
	}

	e.notify(models.NotificationTypeEmergency, models.SeverityError,
		fmt.Sprintf("emergency action %s: %s", action.Type, FormatReasons(assessment)), nil)

	switch action.Type {
	case models.EmergencyKillSwitch:
		e.setReduceOnly(true)
		if e.sm.State() == StateHolding {
			if err := e.RequestExit(); err != nil && !errors.Is(err, ErrEngineBusy) {
				e.logger.Error("kill switch exit enqueue failed", zap.Error(err))
			}
		}
	case models.EmergencyReduceOnly:
		e.setReduceOnly(true)
	}
}

func (e *Engine) setReduceOnly(v bool) {
	e.mu.Lock()
	changed := e.reduceOnly != v
	e.reduceOnly = v
	e.mu.Unlock()
	if changed {
		e.logger.Warn("reduce-only mode changed", zap.Bool("enabled", v))
	}
}
