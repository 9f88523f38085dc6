package bot

import (
	"fmt"

	"go.uber.org/zap"

	"hedgebot/internal/config"
	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
	"hedgebot/pkg/utils"
)

// slippage.go - оценка проскальзывания по снимку стакана
//
// Estimate идёт по уровням нужной стороны (asks для покупки, bids для
// продажи), накапливая объём до запрошенного размера, и считает VWAP.
// Проскальзывание - знаковое отклонение VWAP от mid: покупка дороже и
// продажа дешевле mid оба дают ПОЛОЖИТЕЛЬНОЕ проскальзывание.

// SentinelSlippageBps возвращается при недостаточной глубине стакана
const SentinelSlippageBps = utils.BpsDenominator

// SlippageEstimator оценивает проскальзывание кандидата-ордера
type SlippageEstimator struct {
	cfg       config.ExecutionConfig
	baseScale int64
	logger    *zap.Logger
}

// NewSlippageEstimator создает новый оценщик
func NewSlippageEstimator(cfg config.ExecutionConfig, baseScale int64, logger *zap.Logger) *SlippageEstimator {
	return &SlippageEstimator{
		cfg:       cfg,
		baseScale: baseScale,
		logger:    logger,
	}
}

// Estimate оценивает исполнение qtyBase base units стороной side
// против снимка стакана
func (s *SlippageEstimator) Estimate(book *exchange.OrderBook, side string, qtyBase int64) models.SlippageEstimate {
	estimate := models.SlippageEstimate{
		MidPrice:     book.MidPrice(),
		RequiredBase: qtyBase,
	}

	levels := book.Asks
	if side == exchange.SideSell {
		levels = book.Bids
	}

	for _, lvl := range levels {
		estimate.AvailableBase += lvl.VolumeBase
	}

	if qtyBase <= 0 || estimate.MidPrice <= 0 {
		estimate.SlippageBps = SentinelSlippageBps
		return estimate
	}

	if estimate.AvailableBase < qtyBase {
		// Стакан тоньше заявки: исполнение по снимку невозможно
		estimate.SlippageBps = SentinelSlippageBps
		return estimate
	}

	// VWAP: идём по уровням, накапливая notional
	var filledBase, notionalQuote int64
	remaining := qtyBase
	for _, lvl := range levels {
		take := utils.MinInt64(remaining, lvl.VolumeBase)
		notionalQuote += utils.NotionalQuote(take, lvl.Price, s.baseScale)
		filledBase += take
		remaining -= take
		if remaining == 0 {
			break
		}
	}

	estimate.AvgFillPrice = notionalQuote * s.baseScale / filledBase

	// Покупка: платим выше mid. Продажа: получаем ниже mid.
	if side == exchange.SideSell {
		estimate.SlippageBps = (estimate.MidPrice - estimate.AvgFillPrice) *
			utils.BpsDenominator / estimate.MidPrice
	} else {
		estimate.SlippageBps = (estimate.AvgFillPrice - estimate.MidPrice) *
			utils.BpsDenominator / estimate.MidPrice
	}

	estimate.CanExecute = estimate.SlippageBps <= s.cfg.MaxSlippageBps
	return estimate
}

// Validate проверяет исполнимость перед коммитом капитала: оценка
// проскальзывания плюс требование глубины стакана не менее размера
// ордера, умноженного на минимальный множитель ликвидности.
// Возвращает оценку, вердикт и причину отказа.
func (s *SlippageEstimator) Validate(book *exchange.OrderBook, side string, qtyBase int64) (models.SlippageEstimate, bool, string) {
	estimate := s.Estimate(book, side, qtyBase)

	requiredDepth := utils.ApplyBps(qtyBase, s.cfg.MinLiquidityRatioBps)
	if estimate.AvailableBase < requiredDepth {
		estimate.CanExecute = false
		reason := fmt.Sprintf(
			"Insufficient liquidity: available %d base units, required %d",
			estimate.AvailableBase, requiredDepth)
		s.logger.Warn("execution validation failed",
			zap.String("side", side),
			zap.Int64("quantity_base", qtyBase),
			zap.String("reason", reason))
		return estimate, false, reason
	}

	if estimate.SlippageBps > s.cfg.MaxSlippageBps {
		estimate.CanExecute = false
		reason := fmt.Sprintf(
			"Slippage too high: %d bps, max %d bps",
			estimate.SlippageBps, s.cfg.MaxSlippageBps)
		s.logger.Warn("execution validation failed",
			zap.String("side", side),
			zap.Int64("quantity_base", qtyBase),
			zap.String("reason", reason))
		return estimate, false, reason
	}

	return estimate, true, ""
}
