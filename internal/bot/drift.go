package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hedgebot/internal/config"
	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
	"hedgebot/pkg/utils"
)

// drift.go - расхождение номиналов ног хеджа и его коррекция
//
// Дельта-нейтральность держится на равенстве номиналов шорта перпа и
// лонга спота. Разные цены исполнения ног дают расхождение; если оно
// превышает допуск, одна из ног корректируется рыночным ордером.

// CalculateDrift сравнивает номиналы двух исполненных ног.
//
// Номинал = исполненный объём * средняя цена (0, если цены нет).
// Drift bps = |perp - spot| относительно БОЛЬШЕГО из номиналов; оба
// нулевые - расхождение 0 по определению. Функция симметрична по ногам.
func CalculateDrift(perp, spot *exchange.Order, maxDriftBps, baseScale int64) models.HedgeDrift {
	drift := models.HedgeDrift{}

	if perp != nil {
		drift.PerpNotionalQuote = utils.NotionalQuote(perp.FilledBase, perp.AvgFillPrice, baseScale)
	}
	if spot != nil {
		drift.SpotNotionalQuote = utils.NotionalQuote(spot.FilledBase, spot.AvgFillPrice, baseScale)
	}

	drift.DriftBps = utils.DiffBps(drift.PerpNotionalQuote, drift.SpotNotionalQuote)
	drift.NeedsCorrection = drift.DriftBps > maxDriftBps

	return drift
}

// DriftCorrector выравнивает номиналы ног корректирующим ордером
type DriftCorrector struct {
	adapter exchange.Exchange
	breaker *ExecutionCircuitBreaker
	poller  *FillPoller
	cfg     config.ExecutionConfig

	baseScale  int64
	perpSymbol string
	spotSymbol string

	logger *zap.Logger
}

// NewDriftCorrector создает корректор
func NewDriftCorrector(adapter exchange.Exchange, breaker *ExecutionCircuitBreaker, poller *FillPoller, cfg config.ExecutionConfig, baseScale int64, perpSymbol, spotSymbol string, logger *zap.Logger) *DriftCorrector {
	return &DriftCorrector{
		adapter:    adapter,
		breaker:    breaker,
		poller:     poller,
		cfg:        cfg,
		baseScale:  baseScale,
		perpSymbol: perpSymbol,
		spotSymbol: spotSymbol,
		logger:     logger,
	}
}

// Correct выравнивает расхождение: разница номиналов конвертируется в
// base units по референсной mid-цене; перп больше спота - докупаем
// спот, спот больше перпа - допродаём перп.
//
// Коррекция, округлившаяся до нуля base units, - no-op (логируется,
// не ошибка). Неположительная референсная цена - ошибка данных,
// падаем громко.
func (c *DriftCorrector) Correct(ctx context.Context, drift models.HedgeDrift, midPrice int64) error {
	if midPrice <= 0 {
		return NewExecutionError(CodeDriftCorrectionFailed,
			fmt.Sprintf("non-positive reference price %d", midPrice), nil)
	}

	diffQuote := utils.AbsInt64(drift.PerpNotionalQuote - drift.SpotNotionalQuote)
	correctionBase := utils.QuoteToBase(diffQuote, midPrice, c.baseScale)

	if correctionBase == 0 {
		c.logger.Info("drift correction rounds to zero, skipping",
			zap.Int64("diff_quote", diffQuote),
			zap.Int64("mid_price", midPrice))
		return nil
	}

	req := exchange.OrderRequest{
		Type:         exchange.OrderTypeMarket,
		QuantityBase: correctionBase,
	}
	if drift.PerpNotionalQuote > drift.SpotNotionalQuote {
		// Шорт перпа тяжелее лонга спота: докупаем спот
		req.Symbol = c.spotSymbol
		req.Market = exchange.MarketSpot
		req.Side = exchange.SideBuy
	} else {
		// Лонг спота тяжелее: дошорчиваем перп до номинала спота
		req.Symbol = c.perpSymbol
		req.Market = exchange.MarketPerp
		req.Side = exchange.SideSell
	}

	c.logger.Info("correcting hedge drift",
		zap.Int64("drift_bps", drift.DriftBps),
		zap.Int64("diff_quote", diffQuote),
		zap.Int64("correction_base", correctionBase),
		zap.String("market", req.Market),
		zap.String("side", req.Side))

	var order *exchange.Order
	err := c.breaker.Do(func() error {
		var placeErr error
		order, placeErr = c.adapter.CreateOrder(ctx, req)
		return placeErr
	})
	if err != nil {
		return NewExecutionError(CodeDriftCorrectionFailed,
			"corrective order placement failed", err)
	}

	if _, err := c.poller.Confirm(ctx, req.Symbol,
		exchange.ComposeOrderID(req.Market, order.ID)); err != nil {
		return NewExecutionError(CodeDriftCorrectionFailed,
			"corrective order confirmation failed", err)
	}

	return nil
}
