package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/config"
	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
)

// fills.go - подтверждение исполнения и доведение частичных исполнений
//
// Ответ биржи на создание ордера НИКОГДА не считается доказательством
// исполнения: единственный источник правды - подтверждённый биржей
// терминальный статус. Опрос ограничен и wall-clock таймаутом, и числом
// попыток; срабатывает тот лимит, который наступит раньше.
//
// Часы и sleep инжектируются, чтобы тесты перематывали время
// детерминированно, без реальных задержек.

// FillPoller опрашивает биржу до терминального статуса ордера
type FillPoller struct {
	adapter exchange.Exchange
	cfg     config.ExecutionConfig
	logger  *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewFillPoller создает poller с реальными часами
func NewFillPoller(adapter exchange.Exchange, cfg config.ExecutionConfig, logger *zap.Logger) *FillPoller {
	return &FillPoller{
		adapter: adapter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Confirm опрашивает ордер до терминального статуса. Отсутствие ордера
// в ответе биржи (ещё не виден) - не ошибка, опрос продолжается.
// Исчерпание таймаута или попыток - типизированная ошибка
// order_fill_timeout; судьбу ордера на бирже дальше выясняет внешний
// reconciler.
func (p *FillPoller) Confirm(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	start := p.now()
	attempts := 0

	for p.now().Sub(start) < p.cfg.FillTimeout && attempts < p.cfg.MaxPollAttempts {
		attempts++

		order, err := p.adapter.GetOrder(ctx, symbol, orderID)
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			p.logger.Debug("order not yet visible on exchange",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempts))
		case err != nil:
			// Транзиентная ошибка API: логируем и продолжаем в рамках бюджета
			p.logger.Warn("order lookup failed, retrying",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempts),
				zap.Error(err))
		case models.IsTerminalOrderStatus(order.Status):
			p.logger.Debug("order reached terminal status",
				zap.String("order_id", orderID),
				zap.String("status", order.Status),
				zap.Int64("filled_base", order.FilledBase),
				zap.Int("attempts", attempts))
			return order, nil
		}

		p.sleep(p.cfg.FillPollInterval)
	}

	return nil, NewExecutionError(CodeOrderFillTimeout,
		fmt.Sprintf("order %s did not reach terminal status after %d attempts within %s",
			orderID, attempts, p.cfg.FillTimeout), nil)
}

// ============================================================
// Partial fill completer
// ============================================================

// PartialFillCompleter доводит частично исполненный ордер до полного
// объёма доливочными ордерами в рамках бюджета попыток
type PartialFillCompleter struct {
	adapter exchange.Exchange
	poller  *FillPoller
	breaker *ExecutionCircuitBreaker
	cfg     config.ExecutionConfig
	logger  *zap.Logger
}

// NewPartialFillCompleter создает completer
func NewPartialFillCompleter(adapter exchange.Exchange, poller *FillPoller, breaker *ExecutionCircuitBreaker, cfg config.ExecutionConfig, logger *zap.Logger) *PartialFillCompleter {
	return &PartialFillCompleter{
		adapter: adapter,
		poller:  poller,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
	}
}

// Complete доливает неисполненный остаток ордера. req - параметры
// исходного ордера (символ, рынок, сторона, reduceOnly). Возвращает
// агрегированный ордер: исполненный объём и средняя цена объединяют
// исходное исполнение и все доливки. Исчерпание бюджета попыток -
// типизированная ошибка partial_fill_exhausted, не бесконечный цикл.
func (c *PartialFillCompleter) Complete(ctx context.Context, order *exchange.Order, req exchange.OrderRequest) (*exchange.Order, error) {
	combined := *order

	for retry := 0; retry < c.cfg.MaxPartialFillRetries; retry++ {
		remaining := combined.QuantityBase - combined.FilledBase
		if remaining <= 0 {
			combined.Status = models.OrderStatusFilled
			return &combined, nil
		}

		c.logger.Info("topping up partially filled order",
			zap.String("order_id", order.ID),
			zap.String("market", req.Market),
			zap.Int64("remaining_base", remaining),
			zap.Int("retry", retry+1),
			zap.Int("max_retries", c.cfg.MaxPartialFillRetries))

		topUpReq := req
		topUpReq.QuantityBase = remaining

		var topUp *exchange.Order
		err := c.breaker.Do(func() error {
			var placeErr error
			topUp, placeErr = c.adapter.CreateOrder(ctx, topUpReq)
			return placeErr
		})
		if err != nil {
			if errors.Is(err, ErrBreakerOpen) {
				// Breaker открылся посреди доведения: дальнейшие
				// доливки не размещаются, остаток сводит reconciler
				return nil, NewExecutionError(CodePartialFillExhausted,
					fmt.Sprintf("order %s top-up halted with %d base units unfilled: circuit breaker open",
						order.ID, remaining), err)
			}
			c.logger.Warn("top-up order placement failed",
				zap.String("order_id", order.ID),
				zap.Int("retry", retry+1),
				zap.Error(err))
			continue
		}

		confirmed, err := c.poller.Confirm(ctx, topUpReq.Symbol,
			exchange.ComposeOrderID(topUpReq.Market, topUp.ID))
		if err != nil {
			return nil, err
		}

		mergeFill(&combined, confirmed)
	}

	remaining := combined.QuantityBase - combined.FilledBase
	if remaining <= 0 {
		combined.Status = models.OrderStatusFilled
		return &combined, nil
	}

	return nil, NewExecutionError(CodePartialFillExhausted,
		fmt.Sprintf("order %s still short %d base units after %d top-up retries",
			order.ID, remaining, c.cfg.MaxPartialFillRetries), nil)
}

// mergeFill вливает исполнение доливки в агрегированный ордер:
// суммирует объём и пересчитывает среднюю цену, взвешенную по base units
func mergeFill(combined, topUp *exchange.Order) {
	if topUp.FilledBase <= 0 {
		return
	}

	totalFilled := combined.FilledBase + topUp.FilledBase
	if combined.AvgFillPrice > 0 && topUp.AvgFillPrice > 0 {
		combined.AvgFillPrice = (combined.FilledBase*combined.AvgFillPrice +
			topUp.FilledBase*topUp.AvgFillPrice) / totalFilled
	} else if topUp.AvgFillPrice > 0 {
		combined.AvgFillPrice = topUp.AvgFillPrice
	}

	combined.FilledBase = totalFilled
	combined.Status = topUp.Status
	combined.UpdatedAt = topUp.UpdatedAt
}
