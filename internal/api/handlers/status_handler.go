package handlers

import (
	"net/http"

	"hedgebot/internal/bot"
	"hedgebot/internal/exchange"
)

// StatusHandler отдаёт состояние бота
type StatusHandler struct {
	engine  *bot.Engine
	breaker *bot.ExecutionCircuitBreaker
	adapter exchange.Exchange
}

// NewStatusHandler создает хендлер статуса
func NewStatusHandler(engine *bot.Engine, breaker *bot.ExecutionCircuitBreaker, adapter exchange.Exchange) *StatusHandler {
	return &StatusHandler{engine: engine, breaker: breaker, adapter: adapter}
}

type statusResponse struct {
	State        string `json:"state"`
	ReduceOnly   bool   `json:"reduce_only"`
	BreakerState string `json:"breaker_state"`
	Exchange     string `json:"exchange"`
	Connected    bool   `json:"connected"`
	PerpBase     int64  `json:"perp_base"`
	SpotBase     int64  `json:"spot_base"`
}

// Status возвращает текущее состояние бота
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	perpBase, spotBase := h.engine.HedgeSize()

	respondJSON(w, http.StatusOK, statusResponse{
		State:        string(h.engine.State()),
		ReduceOnly:   h.engine.ReduceOnly(),
		BreakerState: h.breaker.State().String(),
		Exchange:     h.adapter.GetName(),
		Connected:    h.adapter.IsConnected(),
		PerpBase:     perpBase,
		SpotBase:     spotBase,
	})
}

// Reset возвращает бота из состояния error в idle. Вызывается
// оператором после сверки позиций с биржей.
// POST /api/bot/reset
func (h *StatusHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reset(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": string(h.engine.State())})
}

// Health - liveness проба
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
