package bot

import (
	"fmt"

	"go.uber.org/zap"

	"hedgebot/internal/config"
	"hedgebot/internal/models"
	"hedgebot/pkg/utils"
)

// risk.go - оценка риска и расчёт максимального размера позиции
//
// Evaluate - чистая детерминированная функция: снимок + конфиг -> оценка.
// Проверки идут в фиксированном порядке (жёсткие -> danger -> warning ->
// soft), уровень/действие после каждой проверки только эскалируют, а
// reasons накапливает ВСЕ сработавшие условия, не только самое серьёзное.

// RiskEvaluator оценивает снимок состояния счёта против лимитов
type RiskEvaluator struct {
	cfg    config.RiskConfig
	logger *zap.Logger
}

// NewRiskEvaluator создает новый оценщик риска
func NewRiskEvaluator(cfg config.RiskConfig, logger *zap.Logger) *RiskEvaluator {
	return &RiskEvaluator{
		cfg:    cfg,
		logger: logger,
	}
}

// Evaluate оценивает снимок и возвращает уровень, действие и причины
func (e *RiskEvaluator) Evaluate(snap models.RiskSnapshot) models.RiskAssessment {
	metrics := e.computeMetrics(snap)

	assessment := models.RiskAssessment{
		Level:   models.RiskLevelSafe,
		Action:  models.RiskActionAllow,
		Reasons: []string{},
		Metrics: metrics,
	}

	escalate := func(level models.RiskLevel, action models.RiskAction, reason string) {
		assessment.Level = models.MergeLevel(assessment.Level, level)
		assessment.Action = models.MergeAction(assessment.Action, action)
		assessment.Reasons = append(assessment.Reasons, reason)
	}

	maxLeverageBps := int64(e.cfg.MaxLeverage) * utils.BpsDenominator
	warnLeverageBps := int64(e.cfg.WarnLeverage) * utils.BpsDenominator

	// Жёсткие лимиты -> BLOCK
	if metrics.NotionalQuote > e.cfg.MaxPositionSizeQuote {
		escalate(models.RiskLevelBlocked, models.RiskActionBlock,
			"Position size exceeds maximum")
	}
	if metrics.LeverageBps > maxLeverageBps {
		escalate(models.RiskLevelBlocked, models.RiskActionBlock,
			"Leverage exceeds maximum")
	}

	// Danger лимиты -> EXIT
	if snap.DailyPnlQuote <= -e.cfg.MaxDailyLossQuote {
		escalate(models.RiskLevelDanger, models.RiskActionExit,
			"Daily loss limit reached")
	}
	if metrics.DrawdownBps >= e.cfg.MaxDrawdownBps {
		escalate(models.RiskLevelDanger, models.RiskActionExit,
			"Drawdown limit reached")
	}
	if metrics.LiquidationDistBps < e.cfg.MinLiqBufferBps {
		escalate(models.RiskLevelDanger, models.RiskActionExit,
			"Liquidation buffer below minimum")
	}

	// Warning лимит -> PAUSE
	if metrics.MarginUtilBps > e.cfg.MaxMarginUtilBps {
		escalate(models.RiskLevelWarning, models.RiskActionPause,
			"Margin utilization above maximum")
	}

	// Soft лимиты -> CAUTION, действие не меняют
	if metrics.NotionalQuote > e.cfg.WarnPositionSizeQuote {
		escalate(models.RiskLevelCaution, models.RiskActionAllow,
			"Position size approaching maximum")
	}
	if metrics.LeverageBps > warnLeverageBps {
		escalate(models.RiskLevelCaution, models.RiskActionAllow,
			"Leverage approaching maximum")
	}
	if snap.DailyPnlQuote <= -e.cfg.WarnDailyLossQuote {
		escalate(models.RiskLevelCaution, models.RiskActionAllow,
			"Daily loss approaching limit")
	}
	if metrics.DrawdownBps >= e.cfg.WarnDrawdownBps {
		escalate(models.RiskLevelCaution, models.RiskActionAllow,
			"Drawdown approaching limit")
	}
	if metrics.LiquidationDistBps < e.cfg.WarnLiqBufferBps {
		escalate(models.RiskLevelCaution, models.RiskActionAllow,
			"Liquidation buffer shrinking")
	}
	if metrics.MarginUtilBps > e.cfg.WarnMarginUtilBps {
		escalate(models.RiskLevelCaution, models.RiskActionAllow,
			"Margin utilization elevated")
	}

	if assessment.Level >= models.RiskLevelWarning && e.logger != nil {
		e.logger.Warn("risk limits triggered",
			zap.String("level", assessment.Level.String()),
			zap.String("action", assessment.Action.String()),
			zap.Strings("reasons", assessment.Reasons))
	}

	return assessment
}

// computeMetrics вычисляет производные метрики снимка
func (e *RiskEvaluator) computeMetrics(snap models.RiskSnapshot) models.RiskMetrics {
	metrics := models.RiskMetrics{
		DailyPnlQuote: snap.DailyPnlQuote,
		// Позиции нет - дистанция до ликвидации максимальна
		LiquidationDistBps: utils.BpsDenominator,
	}

	if snap.Position != nil {
		metrics.NotionalQuote = snap.Position.NotionalQuote
		// Эффективное плечо - номинал относительно капитала
		metrics.LeverageBps = utils.RatioBps(snap.Position.NotionalQuote, snap.EquityQuote)
		metrics.LiquidationDistBps = liquidationDistanceBps(snap.Position)
	}

	metrics.MarginUtilBps = utils.RatioBps(snap.MarginUsedQuote, snap.EquityQuote)

	if snap.PeakEquityQuote > 0 && snap.PeakEquityQuote > snap.EquityQuote {
		metrics.DrawdownBps = utils.RatioBps(
			snap.PeakEquityQuote-snap.EquityQuote, snap.PeakEquityQuote)
	}

	return metrics
}

// liquidationDistanceBps - знаковая дистанция между mark и ценой
// ликвидации, направление зависит от стороны позиции. Неизвестная цена
// ликвидации трактуется как полный буфер.
func liquidationDistanceBps(pos *models.PositionSnapshot) int64 {
	if pos.LiquidationPrice <= 0 || pos.MarkPrice <= 0 {
		return utils.BpsDenominator
	}

	var dist int64
	if pos.Side == "short" {
		// шорт ликвидируется ростом цены: буфер = liq - mark
		dist = pos.LiquidationPrice - pos.MarkPrice
	} else {
		// лонг ликвидируется падением: буфер = mark - liq
		dist = pos.MarkPrice - pos.LiquidationPrice
	}

	return dist * utils.BpsDenominator / pos.MarkPrice
}

// ============================================================
// Position sizer
// ============================================================

// PositionSizer рассчитывает максимальный размер новой позиции
type PositionSizer struct {
	cfg config.RiskConfig
}

// NewPositionSizer создает новый калькулятор размера позиции
func NewPositionSizer(cfg config.RiskConfig) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// MaxPositionSizeQuote возвращает максимальный номинал новой позиции:
// min(свободный капитал * maxLeverage, сконфигурированный максимум).
// Нулевой или отрицательный свободный капитал -> 0. Чистая функция
// трёх входов, никогда не возвращает ошибку.
func (s *PositionSizer) MaxPositionSizeQuote(equityQuote, marginUsedQuote int64) int64 {
	return CalculateMaxPositionSizeQuote(
		equityQuote, marginUsedQuote, int64(s.cfg.MaxLeverage), s.cfg.MaxPositionSizeQuote)
}

// CalculateMaxPositionSizeQuote - чистая форма расчёта размера
func CalculateMaxPositionSizeQuote(equityQuote, marginUsedQuote, maxLeverage, maxPositionSizeQuote int64) int64 {
	available := equityQuote - marginUsedQuote
	if available <= 0 {
		return 0
	}
	return utils.MinInt64(available*maxLeverage, maxPositionSizeQuote)
}

// FormatReasons собирает причины оценки в одну строку для reason поля
// результата исполнения
func FormatReasons(assessment models.RiskAssessment) string {
	if len(assessment.Reasons) == 0 {
		return assessment.Level.String()
	}
	reason := assessment.Reasons[0]
	for _, r := range assessment.Reasons[1:] {
		reason += "; " + r
	}
	return fmt.Sprintf("%s: %s", assessment.Level.String(), reason)
}
