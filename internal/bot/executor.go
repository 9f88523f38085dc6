package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/config"
	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
)

// executor.go - оркестрация входа в хедж и выхода из него
//
// Каждый шаг до коммита капитала может ПРЕРВАТЬ операцию (abort) и
// вернуть объясняющий ExecutionResult - это ожидаемый бизнес-исход,
// цикл оценки просто попробует на следующем тике. Провалы ПОСЛЕ
// размещения ордеров всегда всплывают типизированной ошибкой, чтобы их
// нельзя было молча проигнорировать.
//
// Одновременно выполняется не более одной оркестрации - это
// гарантирует последовательная очередь Engine. Коррекция расхождения и
// проверки риска рассчитывают на стабильную, не мутируемую конкурентно
// позицию.

// Литеральные причины abort'а, на которые опирается API
const (
	ReasonBreakerOpen      = "execution_circuit_breaker_open"
	ReasonNoPositionToExit = "No position to exit"
)

// SnapshotFunc возвращает СВЕЖИЙ снимок состояния счёта. Оркестратор
// никогда не переиспользует снимок, породивший торговое намерение:
// состояние могло уйти.
type SnapshotFunc func(ctx context.Context) (models.RiskSnapshot, error)

// Executor исполняет протоколы enter/exit хеджа
type Executor struct {
	adapter   exchange.Exchange
	breaker   *ExecutionCircuitBreaker
	risk      *RiskEvaluator
	slippage  *SlippageEstimator
	poller    *FillPoller
	completer *PartialFillCompleter
	corrector *DriftCorrector
	snapshot  SnapshotFunc

	cfg        config.ExecutionConfig
	baseScale  int64
	perpSymbol string
	spotSymbol string
	baseAsset  string
	bookDepth  int

	logger  *zap.Logger
	metrics *Metrics
}

// ExecutorDeps - зависимости оркестратора. Все коллабораторы
// инжектируются, чтобы каждый компонент тестировался с фейками.
type ExecutorDeps struct {
	Adapter   exchange.Exchange
	Breaker   *ExecutionCircuitBreaker
	Risk      *RiskEvaluator
	Slippage  *SlippageEstimator
	Poller    *FillPoller
	Completer *PartialFillCompleter
	Corrector *DriftCorrector
	Snapshot  SnapshotFunc

	ExecCfg    config.ExecutionConfig
	BaseScale  int64
	PerpSymbol string
	SpotSymbol string
	BaseAsset  string
	BookDepth  int

	Logger  *zap.Logger
	Metrics *Metrics // nil допустим (тесты)
}

// NewExecutor создает оркестратор
func NewExecutor(deps ExecutorDeps) *Executor {
	bookDepth := deps.BookDepth
	if bookDepth <= 0 {
		bookDepth = 20
	}
	return &Executor{
		adapter:    deps.Adapter,
		breaker:    deps.Breaker,
		risk:       deps.Risk,
		slippage:   deps.Slippage,
		poller:     deps.Poller,
		completer:  deps.Completer,
		corrector:  deps.Corrector,
		snapshot:   deps.Snapshot,
		cfg:        deps.ExecCfg,
		baseScale:  deps.BaseScale,
		perpSymbol: deps.PerpSymbol,
		spotSymbol: deps.SpotSymbol,
		baseAsset:  deps.BaseAsset,
		bookDepth:  bookDepth,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// ============================================================
// Enter hedge
// ============================================================

// EnterHedge открывает хедж: шорт перпа + равный лонг спота.
//
// Протокол: breaker -> свежая оценка риска -> валидация проскальзывания
// и ликвидности -> перп -> спот -> доведение частичных исполнений ->
// коррекция расхождения. Первые три шага возвращают abort-результат;
// любой провал после размещения первого ордера - типизированная ошибка.
func (e *Executor) EnterHedge(ctx context.Context, qtyBase int64) (*models.ExecutionResult, error) {
	e.logger.Info("enter hedge requested",
		zap.Int64("quantity_base", qtyBase),
		zap.String("perp_symbol", e.perpSymbol),
		zap.String("spot_symbol", e.spotSymbol))

	// Шаг 1: breaker открыт - на биржу не ходим вообще
	if e.breaker.IsOpen() {
		return e.abort(models.ExecutionOpEnter, ReasonBreakerOpen, nil), nil
	}

	// Шаг 2: повторная оценка риска по свежему снимку
	snap, err := e.snapshot(ctx)
	if err != nil {
		return e.abort(models.ExecutionOpEnter,
			fmt.Sprintf("risk snapshot unavailable: %v", err), nil), nil
	}
	assessment := e.risk.Evaluate(snap)
	if assessment.Level >= models.RiskLevelDanger ||
		assessment.Action >= models.RiskActionExit {
		return e.abort(models.ExecutionOpEnter, FormatReasons(assessment), nil), nil
	}

	// Шаг 3: валидация проскальзывания/ликвидности спотовой ноги
	book, err := e.adapter.GetOrderBook(ctx, e.spotSymbol, e.bookDepth)
	if err != nil {
		return e.abort(models.ExecutionOpEnter,
			fmt.Sprintf("order book unavailable: %v", err), nil), nil
	}
	estimate, ok, reason := e.slippage.Validate(book, exchange.SideBuy, qtyBase)
	if !ok {
		return e.abort(models.ExecutionOpEnter, reason, &estimate), nil
	}
	if e.metrics != nil {
		e.metrics.ObserveSlippage(estimate.SlippageBps)
	}

	// Шаг 4: шорт перпа
	perpOrder, err := e.placeAndConfirm(ctx, exchange.OrderRequest{
		Symbol:       e.perpSymbol,
		Market:       exchange.MarketPerp,
		Side:         exchange.SideSell,
		Type:         exchange.OrderTypeMarket,
		QuantityBase: qtyBase,
	})
	if err != nil {
		e.recordOutcome(models.ExecutionOpEnter, "error")
		return nil, NewExecutionError(CodeEnterHedgeFailed, "perp leg failed", err)
	}

	// Шаг 5: лонг спота
	spotOrder, err := e.placeAndConfirm(ctx, exchange.OrderRequest{
		Symbol:       e.spotSymbol,
		Market:       exchange.MarketSpot,
		Side:         exchange.SideBuy,
		Type:         exchange.OrderTypeMarket,
		QuantityBase: qtyBase,
	})
	if err != nil {
		// Перп уже размещён: расхождение с биржей сведёт внешний reconciler
		e.logger.Error("spot leg failed after perp leg placed",
			zap.String("perp_order_id", perpOrder.ID),
			zap.Error(err))
		e.recordOutcome(models.ExecutionOpEnter, "error")
		return nil, NewExecutionError(CodeEnterHedgeFailed,
			"spot leg failed after perp leg placed", err)
	}

	// Шаг 6: расхождение номиналов ног
	drift := CalculateDrift(perpOrder, spotOrder, e.cfg.MaxDriftBps, e.baseScale)
	if e.metrics != nil {
		e.metrics.ObserveDrift(drift.DriftBps)
	}
	if drift.NeedsCorrection {
		if err := e.corrector.Correct(ctx, drift, estimate.MidPrice); err != nil {
			e.recordOutcome(models.ExecutionOpEnter, "error")
			return nil, NewExecutionError(CodeEnterHedgeFailed, "drift correction failed", err)
		}
	}

	e.logger.Info("enter hedge completed",
		zap.String("perp_order_id", perpOrder.ID),
		zap.String("spot_order_id", spotOrder.ID),
		zap.Int64("drift_bps", drift.DriftBps))
	e.recordOutcome(models.ExecutionOpEnter, "success")

	return &models.ExecutionResult{
		Operation: models.ExecutionOpEnter,
		Success:   true,
		PerpOrder: toOrderRecord(models.LegPerp, perpOrder),
		SpotOrder: toOrderRecord(models.LegSpot, spotOrder),
		Drift:     &drift,
		Slippage:  &estimate,
		Timestamp: time.Now(),
	}, nil
}

// ============================================================
// Exit hedge
// ============================================================

// ExitHedge закрывает хедж. Порядок ног намеренный: сначала продаём
// спот, потом закрываем шорт перпа - так не возникает окна, где бот
// в чистом шорте без компенсирующего лонга.
//
// Провал второй ноги после успеха первой возвращает результат
// частичного провала с уцелевшим ордером - информация о размещённом
// ордере не должна теряться внутри ошибки.
func (e *Executor) ExitHedge(ctx context.Context, perpSizeBase, spotSizeBase int64) (*models.ExecutionResult, error) {
	e.logger.Info("exit hedge requested",
		zap.Int64("perp_size_base", perpSizeBase),
		zap.Int64("spot_size_base", spotSizeBase))

	if perpSizeBase <= 0 || spotSizeBase <= 0 {
		return e.abort(models.ExecutionOpExit, ReasonNoPositionToExit, nil), nil
	}

	if e.breaker.IsOpen() {
		return e.abort(models.ExecutionOpExit, ReasonBreakerOpen, nil), nil
	}

	// Нога 1: продажа спота
	spotOrder, err := e.placeAndConfirm(ctx, exchange.OrderRequest{
		Symbol:       e.spotSymbol,
		Market:       exchange.MarketSpot,
		Side:         exchange.SideSell,
		Type:         exchange.OrderTypeMarket,
		QuantityBase: spotSizeBase,
	})
	if err != nil {
		e.recordOutcome(models.ExecutionOpExit, "error")
		return nil, NewExecutionError(CodeExitHedgeFailed, "spot leg failed", err)
	}

	// Нога 2: закрытие шорта перпа (reduce-only)
	perpReq := exchange.OrderRequest{
		Symbol:       e.perpSymbol,
		Market:       exchange.MarketPerp,
		Side:         exchange.SideBuy,
		Type:         exchange.OrderTypeMarket,
		QuantityBase: perpSizeBase,
		ReduceOnly:   true,
	}
	var perpOrder *exchange.Order
	placeErr := e.breaker.Do(func() error {
		var err error
		perpOrder, err = e.adapter.CreateOrder(ctx, perpReq)
		return err
	})
	if placeErr != nil {
		// Спот уже продан: возвращаем частичный провал с уцелевшим
		// ордером, а не прячем его в ошибке
		e.logger.Error("perp leg placement failed after spot leg completed",
			zap.String("spot_order_id", spotOrder.ID),
			zap.Error(placeErr))
		e.recordOutcome(models.ExecutionOpExit, "partial_failure")
		return &models.ExecutionResult{
			Operation: models.ExecutionOpExit,
			Success:   false,
			Reason: fmt.Sprintf(
				"perp leg placement failed after spot leg completed: %v", placeErr),
			SpotOrder: toOrderRecord(models.LegSpot, spotOrder),
			Timestamp: time.Now(),
		}, nil
	}

	perpConfirmed, err := e.confirmAndComplete(ctx, perpOrder, perpReq)
	if err != nil {
		e.recordOutcome(models.ExecutionOpExit, "error")
		return nil, NewExecutionError(CodeExitHedgeFailed,
			"perp leg confirmation failed after spot leg completed", err)
	}

	// Контроль плоскости: провал выравнивания чинит внешний reconciler,
	// ордера уже размещены - это всё ещё успех
	e.verifyFlat(ctx)

	e.logger.Info("exit hedge completed",
		zap.String("spot_order_id", spotOrder.ID),
		zap.String("perp_order_id", perpConfirmed.ID))
	e.recordOutcome(models.ExecutionOpExit, "success")

	return &models.ExecutionResult{
		Operation: models.ExecutionOpExit,
		Success:   true,
		PerpOrder: toOrderRecord(models.LegPerp, perpConfirmed),
		SpotOrder: toOrderRecord(models.LegSpot, spotOrder),
		Timestamp: time.Now(),
	}, nil
}

// ============================================================
// Shared steps
// ============================================================

// placeAndConfirm размещает ордер через breaker, подтверждает
// терминальный статус опросом и доводит частичное исполнение
func (e *Executor) placeAndConfirm(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	var order *exchange.Order
	err := e.breaker.Do(func() error {
		var placeErr error
		order, placeErr = e.adapter.CreateOrder(ctx, req)
		return placeErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s order placement failed: %w", req.Market, req.Side, err)
	}

	return e.confirmAndComplete(ctx, order, req)
}

// confirmAndComplete подтверждает исполнение размещённого ордера и
// доводит частичное исполнение до полного объёма
func (e *Executor) confirmAndComplete(ctx context.Context, order *exchange.Order, req exchange.OrderRequest) (*exchange.Order, error) {
	confirmed, err := e.poller.Confirm(ctx, req.Symbol,
		exchange.ComposeOrderID(req.Market, order.ID))
	if err != nil {
		return nil, err
	}

	if confirmed.FilledBase == 0 {
		return nil, fmt.Errorf("order %s terminal with status %s and no fill",
			confirmed.ID, confirmed.Status)
	}

	if confirmed.Status == models.OrderStatusPartiallyFilled {
		if e.metrics != nil {
			e.metrics.IncPartialFills(req.Market)
		}
		completed, err := e.completer.Complete(ctx, confirmed, req)
		if err != nil {
			return nil, err
		}
		return completed, nil
	}

	return confirmed, nil
}

// verifyFlat проверяет, что после выхода обе ноги плоские: позиция
// перпа закрыта и на спотовом кошельке не завис остаток базового
// актива. Не-плоскость логируется как ошибка и остаётся reconciler'у -
// здесь повторных попыток нет.
func (e *Executor) verifyFlat(ctx context.Context) {
	pos, err := e.adapter.GetPosition(ctx, e.perpSymbol)
	if err != nil {
		e.logger.Warn("flatness check failed",
			zap.String("symbol", e.perpSymbol),
			zap.Error(err))
	} else if pos != nil && pos.SizeBase > 0 {
		e.logger.Error("perp position not flat after exit, deferring to reconciler",
			zap.String("symbol", e.perpSymbol),
			zap.String("side", pos.Side),
			zap.Int64("size_base", pos.SizeBase))
	}

	residual, err := e.adapter.GetSpotBalance(ctx, e.baseAsset)
	if err != nil {
		e.logger.Warn("spot flatness check failed",
			zap.String("asset", e.baseAsset),
			zap.Error(err))
		return
	}
	if residual > 0 {
		e.logger.Error("spot balance not flat after exit, deferring to reconciler",
			zap.String("asset", e.baseAsset),
			zap.Int64("residual_base", residual))
	}
}

// abort строит прерванный результат. Abort - ожидаемый бизнес-исход,
// не ошибка.
func (e *Executor) abort(operation, reason string, estimate *models.SlippageEstimate) *models.ExecutionResult {
	e.logger.Warn("execution aborted",
		zap.String("operation", operation),
		zap.String("reason", reason))
	e.recordOutcome(operation, "aborted")
	return &models.ExecutionResult{
		Operation: operation,
		Aborted:   true,
		Reason:    reason,
		Slippage:  estimate,
		Timestamp: time.Now(),
	}
}

func (e *Executor) recordOutcome(operation, outcome string) {
	if e.metrics != nil {
		e.metrics.IncExecution(operation, outcome)
		e.metrics.SetBreakerState(e.breaker.State())
	}
}

// toOrderRecord конвертирует ордер биржи в запись журнала исполнения
func toOrderRecord(leg string, order *exchange.Order) *models.OrderRecord {
	if order == nil {
		return nil
	}
	rec := &models.OrderRecord{
		ExchangeID:   order.ID,
		Symbol:       order.Symbol,
		Leg:          leg,
		Side:         order.Side,
		Type:         order.Type,
		ReduceOnly:   order.ReduceOnly,
		QuantityBase: order.QuantityBase,
		FilledBase:   order.FilledBase,
		AvgFillPrice: order.AvgFillPrice,
		Status:       order.Status,
		CreatedAt:    order.CreatedAt,
	}
	if order.Status == models.OrderStatusFilled {
		filledAt := order.UpdatedAt
		rec.FilledAt = &filledAt
	}
	return rec
}
