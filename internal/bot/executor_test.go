package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
)

func healthySnapshot(ctx context.Context) (models.RiskSnapshot, error) {
	return models.RiskSnapshot{
		EquityQuote:     100_000_000_000,
		MarginUsedQuote: 5_000_000_000,
		PeakEquityQuote: 100_000_000_000,
	}, nil
}

func newTestExecutor(fe *fakeExchange) (*Executor, *ExecutionCircuitBreaker) {
	logger := zap.NewNop()
	cfg := testExecConfig()

	breaker := NewExecutionCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger)
	poller := newTestPoller(fe)

	executor := NewExecutor(ExecutorDeps{
		Adapter:   fe,
		Breaker:   breaker,
		Risk:      NewRiskEvaluator(testRiskConfig(), logger),
		Slippage:  NewSlippageEstimator(cfg, 1000, logger),
		Poller:    poller,
		Completer: NewPartialFillCompleter(fe, poller, breaker, cfg, logger),
		Corrector: NewDriftCorrector(fe, breaker, poller, cfg, 1000, "BTCUSDT", "BTCUSDT", logger),
		Snapshot:  healthySnapshot,

		ExecCfg:    cfg,
		BaseScale:  1000,
		PerpSymbol: "BTCUSDT",
		SpotSymbol: "BTCUSDT",
		BaseAsset:  "BTC",

		Logger: logger,
	})
	return executor, breaker
}

func TestEnterHedgeSuccess(t *testing.T) {
	fe := newFakeExchange()
	executor, _ := newTestExecutor(fe)

	result, err := executor.EnterHedge(context.Background(), 1000)
	if err != nil {
		t.Fatalf("EnterHedge() error = %v", err)
	}

	if !result.Success || result.Aborted {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.PerpOrder == nil || result.SpotOrder == nil {
		t.Fatal("both legs must be attached to the result")
	}
	if result.Drift == nil || result.Slippage == nil {
		t.Fatal("drift and slippage must be attached to the result")
	}

	// Порядок ног: сначала шорт перпа, потом лонг спота
	if fe.createCount() != 2 {
		t.Fatalf("orders placed = %d, want 2", fe.createCount())
	}
	first, second := fe.createCalls[0], fe.createCalls[1]
	if first.Market != exchange.MarketPerp || first.Side != exchange.SideSell {
		t.Errorf("first leg = %s %s, want perp sell", first.Market, first.Side)
	}
	if second.Market != exchange.MarketSpot || second.Side != exchange.SideBuy {
		t.Errorf("second leg = %s %s, want spot buy", second.Market, second.Side)
	}
}

func TestEnterHedgeAbortsOnThinBook(t *testing.T) {
	fe := newFakeExchange()
	fe.bookFn = func(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
		return thinBook(), nil
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.EnterHedge(context.Background(), 1000)
	if err != nil {
		t.Fatalf("EnterHedge() error = %v", err)
	}

	if !result.Aborted {
		t.Fatal("expected aborted result against a thin book")
	}
	if !strings.Contains(result.Reason, "Insufficient liquidity") {
		t.Errorf("reason = %q, want liquidity message", result.Reason)
	}
	if result.Slippage == nil {
		t.Error("aborted validation must attach the computed estimate")
	}
	// Ни один ордер не размещён
	if fe.createCount() != 0 {
		t.Errorf("orders placed = %d, want 0", fe.createCount())
	}
}

func TestEnterHedgeAbortsOnRisk(t *testing.T) {
	fe := newFakeExchange()
	executor, _ := newTestExecutor(fe)
	executor.snapshot = func(ctx context.Context) (models.RiskSnapshot, error) {
		return models.RiskSnapshot{
			EquityQuote:     100_000_000_000,
			MarginUsedQuote: 5_000_000_000,
			Position: &models.PositionSnapshot{
				Side:          "short",
				NotionalQuote: 15_000_000_000,
				MarkPrice:     50_000_000_000,
			},
			PeakEquityQuote: 100_000_000_000,
		}, nil
	}

	result, err := executor.EnterHedge(context.Background(), 1000)
	if err != nil {
		t.Fatalf("EnterHedge() error = %v", err)
	}

	if !result.Aborted {
		t.Fatal("expected aborted result on blocked risk")
	}
	if !strings.Contains(result.Reason, "Position size exceeds maximum") {
		t.Errorf("reason = %q, want risk trigger", result.Reason)
	}
	if fe.createCount() != 0 {
		t.Errorf("orders placed = %d, want 0", fe.createCount())
	}
}

func TestEnterHedgeAbortsWhenBreakerOpen(t *testing.T) {
	fe := newFakeExchange()
	executor, breaker := newTestExecutor(fe)

	// Два подряд провала размещения открывают breaker
	breaker.RecordFailure()
	breaker.RecordFailure()

	result, err := executor.EnterHedge(context.Background(), 1000)
	if err != nil {
		t.Fatalf("EnterHedge() error = %v", err)
	}

	if !result.Aborted {
		t.Fatal("expected aborted result with open breaker")
	}
	if result.Reason != ReasonBreakerOpen {
		t.Errorf("reason = %q, want %q", result.Reason, ReasonBreakerOpen)
	}
	// Никаких сетевых вызовов
	if fe.createCount() != 0 || fe.getCalls != 0 {
		t.Errorf("network calls made: create=%d get=%d, want none",
			fe.createCount(), fe.getCalls)
	}
}

func TestEnterHedgeCorrectsDrift(t *testing.T) {
	fe := newFakeExchange()
	nextID := 0
	fe.createFn = func(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
		nextID++
		// Перп исполняется по 50,000, спот по 50,500: расхождение 99 bps
		price := int64(50_000_000_000)
		if req.Market == exchange.MarketSpot {
			price = 50_500_000_000
		}
		order := &exchange.Order{
			ID: "o" + strconv.Itoa(nextID), Status: models.OrderStatusFilled,
			Symbol: req.Symbol, Market: req.Market, Side: req.Side,
			QuantityBase: req.QuantityBase, FilledBase: req.QuantityBase,
			AvgFillPrice: price,
		}
		fe.mu.Lock()
		fe.orders[exchange.ComposeOrderID(req.Market, order.ID)] = order
		fe.mu.Unlock()
		return order, nil
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.EnterHedge(context.Background(), 1000)
	if err != nil {
		t.Fatalf("EnterHedge() error = %v", err)
	}

	if result.Drift.DriftBps != 99 {
		t.Errorf("drift = %d bps, want 99", result.Drift.DriftBps)
	}
	if !result.Drift.NeedsCorrection {
		t.Fatal("99 bps drift must need correction")
	}

	// Две ноги + корректирующий ордер
	if fe.createCount() != 3 {
		t.Fatalf("orders placed = %d, want 3", fe.createCount())
	}
	correction := fe.createCalls[2]
	// Спот тяжелее перпа: допродажа перпа на 10 base units
	if correction.Market != exchange.MarketPerp || correction.Side != exchange.SideSell {
		t.Errorf("correction = %s %s, want perp sell", correction.Market, correction.Side)
	}
	if correction.QuantityBase != 10 {
		t.Errorf("correction quantity = %d, want 10", correction.QuantityBase)
	}
}

func TestEnterHedgeFirstLegFailure(t *testing.T) {
	fe := newFakeExchange()
	fe.createFn = func(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
		return nil, errors.New("exchange rejected request")
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.EnterHedge(context.Background(), 1000)
	if err == nil {
		t.Fatal("EnterHedge() succeeded despite placement failure")
	}
	if result != nil {
		t.Errorf("result = %+v, want nil on hard failure", result)
	}
	if !HasExecutionCode(err, CodeEnterHedgeFailed) {
		t.Errorf("error code = %q, want %s", ExecutionErrorCode(err), CodeEnterHedgeFailed)
	}
}

// ============================================================
// Exit hedge
// ============================================================

func TestExitHedgeNoPosition(t *testing.T) {
	fe := newFakeExchange()
	executor, _ := newTestExecutor(fe)

	result, err := executor.ExitHedge(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ExitHedge() error = %v", err)
	}

	if !result.Aborted {
		t.Fatal("expected aborted result for flat position")
	}
	if result.Reason != ReasonNoPositionToExit {
		t.Errorf("reason = %q, want %q", result.Reason, ReasonNoPositionToExit)
	}
	// Адаптер не трогаем вообще
	if fe.createCount() != 0 || fe.getCalls != 0 {
		t.Errorf("adapter calls made: create=%d get=%d, want none",
			fe.createCount(), fe.getCalls)
	}
}

func TestExitHedgeSuccess(t *testing.T) {
	fe := newFakeExchange()
	executor, _ := newTestExecutor(fe)

	result, err := executor.ExitHedge(context.Background(), 1000, 1000)
	if err != nil {
		t.Fatalf("ExitHedge() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	// Порядок намеренный: сначала продажа спота, потом закрытие перпа,
	// иначе возникает окно чистого шорта
	if fe.createCount() != 2 {
		t.Fatalf("orders placed = %d, want 2", fe.createCount())
	}
	first, second := fe.createCalls[0], fe.createCalls[1]
	if first.Market != exchange.MarketSpot || first.Side != exchange.SideSell {
		t.Errorf("first leg = %s %s, want spot sell", first.Market, first.Side)
	}
	if second.Market != exchange.MarketPerp || second.Side != exchange.SideBuy {
		t.Errorf("second leg = %s %s, want perp buy", second.Market, second.Side)
	}
	if !second.ReduceOnly {
		t.Error("perp close must be reduce-only")
	}
}

func TestExitHedgeChecksBothLegsFlat(t *testing.T) {
	fe := newFakeExchange()
	var askedAsset string
	fe.spotBalanceFn = func(ctx context.Context, asset string) (int64, error) {
		askedAsset = asset
		// Завис остаток базового актива после продажи спота
		return 7, nil
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.ExitHedge(context.Background(), 1000, 1000)
	if err != nil {
		t.Fatalf("ExitHedge() error = %v", err)
	}
	// Остаток чинит reconciler, выход всё ещё успешен
	if !result.Success {
		t.Fatalf("result = %+v, want success despite spot residual", result)
	}

	if fe.spotBalCalls != 1 {
		t.Fatalf("spot balance queried %d times, want 1", fe.spotBalCalls)
	}
	if askedAsset != "BTC" {
		t.Errorf("queried asset = %q, want BTC", askedAsset)
	}
}

func TestExitHedgePartialFailureKeepsSpotOrder(t *testing.T) {
	fe := newFakeExchange()
	calls := 0
	fe.createFn = func(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
		calls++
		if req.Market == exchange.MarketPerp {
			return nil, errors.New("perp endpoint down")
		}
		order := &exchange.Order{
			ID: "spot-1", Status: models.OrderStatusFilled,
			Symbol: req.Symbol, Market: req.Market, Side: req.Side,
			QuantityBase: req.QuantityBase, FilledBase: req.QuantityBase,
			AvgFillPrice: 50_000_000_000,
		}
		fe.mu.Lock()
		fe.orders[exchange.ComposeOrderID(req.Market, order.ID)] = order
		fe.mu.Unlock()
		return order, nil
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.ExitHedge(context.Background(), 1000, 1000)
	if err != nil {
		t.Fatalf("ExitHedge() error = %v, partial failure must return a result", err)
	}

	// Частичный провал: спот продан, информация о нём не теряется
	if result.Success || result.Aborted {
		t.Fatalf("result = %+v, want partial failure", result)
	}
	if result.SpotOrder == nil {
		t.Fatal("completed spot order must be carried in the result")
	}
	if result.PerpOrder != nil {
		t.Error("perp order must be absent")
	}
	if !strings.Contains(result.Reason, "perp leg placement failed") {
		t.Errorf("reason = %q, want perp placement failure", result.Reason)
	}
}

func TestExitHedgeFirstLegFailure(t *testing.T) {
	fe := newFakeExchange()
	fe.createFn = func(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
		return nil, errors.New("spot endpoint down")
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.ExitHedge(context.Background(), 1000, 1000)
	if result != nil {
		t.Errorf("result = %+v, want nil when first leg fails", result)
	}
	if !HasExecutionCode(err, CodeExitHedgeFailed) {
		t.Errorf("error code = %q, want %s", ExecutionErrorCode(err), CodeExitHedgeFailed)
	}
}

func TestExitHedgeNotFlatStillSucceeds(t *testing.T) {
	fe := newFakeExchange()
	fe.positionFn = func(ctx context.Context, symbol string) (*exchange.Position, error) {
		// Биржа показывает остаток: чинит reconciler, не повторный выход
		return &exchange.Position{
			Symbol: symbol, Side: exchange.SideShort, SizeBase: 5,
			UpdatedAt: time.Now(),
		}, nil
	}
	executor, _ := newTestExecutor(fe)

	result, err := executor.ExitHedge(context.Background(), 1000, 1000)
	if err != nil {
		t.Fatalf("ExitHedge() error = %v", err)
	}
	if !result.Success {
		t.Fatal("orders were placed, result must still be success")
	}
}
