// Package api собирает маршруты управляющего HTTP API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hedgebot/internal/api/handlers"
	"hedgebot/internal/api/middleware"
	"hedgebot/internal/bot"
	"hedgebot/internal/exchange"
	"hedgebot/internal/repository"
	"hedgebot/internal/websocket"
)

// Deps - зависимости маршрутов
type Deps struct {
	Engine    *bot.Engine
	Evaluator *bot.RiskEvaluator
	Snapshot  bot.SnapshotFunc
	Breaker   *bot.ExecutionCircuitBreaker
	Adapter   exchange.Exchange

	Executions *repository.ExecutionRepository
	Orders     *repository.OrderRepository

	Hub *websocket.Hub

	// bcrypt-хеш пароля оператора; пустой - auth отключён
	AdminPasswordHash string

	Logger *zap.Logger
}

// NewRouter собирает все маршруты приложения
func NewRouter(deps Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))

	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(deps.Hub, w, r)
	})

	executionHandler := handlers.NewExecutionHandler(
		deps.Engine, deps.Executions, deps.Orders, deps.Logger)
	riskHandler := handlers.NewRiskHandler(
		deps.Engine, deps.Evaluator, deps.Snapshot, deps.Logger)
	statusHandler := handlers.NewStatusHandler(deps.Engine, deps.Breaker, deps.Adapter)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.BasicAuth(deps.AdminPasswordHash))
	apiRouter.HandleFunc("/status", statusHandler.Status).Methods(http.MethodGet)
	apiRouter.HandleFunc("/bot/reset", statusHandler.Reset).Methods(http.MethodPost)
	apiRouter.HandleFunc("/risk", riskHandler.Assess).Methods(http.MethodGet)
	apiRouter.HandleFunc("/risk/max-size", riskHandler.MaxSize).Methods(http.MethodGet)
	apiRouter.HandleFunc("/hedge/enter", executionHandler.Enter).Methods(http.MethodPost)
	apiRouter.HandleFunc("/hedge/exit", executionHandler.Exit).Methods(http.MethodPost)
	apiRouter.HandleFunc("/executions", executionHandler.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/executions/{id:[0-9]+}/orders", executionHandler.Orders).Methods(http.MethodGet)

	return router
}
