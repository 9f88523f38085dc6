package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"hedgebot/internal/bot"
	"hedgebot/internal/models"
)

// RiskHandler отдаёт оценку риска по свежему снимку счёта
type RiskHandler struct {
	engine    *bot.Engine
	evaluator *bot.RiskEvaluator
	snapshot  bot.SnapshotFunc
	logger    *zap.Logger
}

// NewRiskHandler создает хендлер риска
func NewRiskHandler(engine *bot.Engine, evaluator *bot.RiskEvaluator, snapshot bot.SnapshotFunc, logger *zap.Logger) *RiskHandler {
	return &RiskHandler{
		engine:    engine,
		evaluator: evaluator,
		snapshot:  snapshot,
		logger:    logger,
	}
}

type riskResponse struct {
	Level    string             `json:"level"`
	Action   string             `json:"action"`
	Reasons  []string           `json:"reasons"`
	Metrics  models.RiskMetrics `json:"metrics"`
	Snapshot models.RiskSnapshot `json:"snapshot"`
}

// Assess возвращает текущую оценку риска
// GET /api/risk
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		h.logger.Error("risk snapshot unavailable", zap.Error(err))
		respondError(w, http.StatusBadGateway, "risk snapshot unavailable")
		return
	}

	assessment := h.evaluator.Evaluate(snap)

	respondJSON(w, http.StatusOK, riskResponse{
		Level:    assessment.Level.String(),
		Action:   assessment.Action.String(),
		Reasons:  assessment.Reasons,
		Metrics:  assessment.Metrics,
		Snapshot: snap,
	})
}

// MaxSize возвращает максимальный номинал нового хеджа
// GET /api/risk/max-size
func (h *RiskHandler) MaxSize(w http.ResponseWriter, r *http.Request) {
	maxQuote, err := h.engine.MaxPositionSizeQuote(r.Context())
	if err != nil {
		h.logger.Error("risk snapshot unavailable", zap.Error(err))
		respondError(w, http.StatusBadGateway, "risk snapshot unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"max_position_size_quote": maxQuote})
}
