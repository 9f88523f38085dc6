package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"hedgebot/internal/bot"
	"hedgebot/internal/models"
	"hedgebot/internal/repository"
)

// ExecutionHandler управляет входом/выходом хеджа и историей исполнений
type ExecutionHandler struct {
	engine     *bot.Engine
	executions *repository.ExecutionRepository
	orders     *repository.OrderRepository
	logger     *zap.Logger
}

// NewExecutionHandler создает хендлер исполнений
func NewExecutionHandler(engine *bot.Engine, executions *repository.ExecutionRepository, orders *repository.OrderRepository, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		engine:     engine,
		executions: executions,
		orders:     orders,
		logger:     logger,
	}
}

type enterRequest struct {
	QuantityBase int64 `json:"quantity_base"`
}

// Enter ставит в очередь вход в хедж
// POST /api/hedge/enter
func (h *ExecutionHandler) Enter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.RequestEnter(req.QuantityBase); err != nil {
		switch {
		case errors.Is(err, bot.ErrEngineBusy):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, bot.ErrEntriesBlocked):
			respondError(w, http.StatusForbidden, err.Error())
		default:
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"operation": models.ExecutionOpEnter,
	})
}

// Exit ставит в очередь выход из хеджа
// POST /api/hedge/exit
func (h *ExecutionHandler) Exit(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RequestExit(); err != nil {
		if errors.Is(err, bot.ErrEngineBusy) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"operation": models.ExecutionOpExit,
	})
}

// List возвращает последние исполнения
// GET /api/executions?limit=50
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "limit must be in 1..500")
			return
		}
		limit = parsed
	}

	records, err := h.executions.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list executions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// Orders возвращает ордера одного исполнения
// GET /api/executions/{id}/orders
func (h *ExecutionHandler) Orders(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	execution, err := h.executions.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get execution", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	if execution == nil {
		respondError(w, http.StatusNotFound, "execution not found")
		return
	}

	records, err := h.orders.ListByExecution(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list orders", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	respondJSON(w, http.StatusOK, records)
}
