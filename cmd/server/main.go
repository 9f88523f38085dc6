package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/api"
	"hedgebot/internal/bot"
	"hedgebot/internal/config"
	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
	"hedgebot/internal/repository"
	"hedgebot/internal/websocket"
	"hedgebot/pkg/crypto"
	"hedgebot/pkg/retry"
	"hedgebot/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// База данных и репозитории
	db, err := repository.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	executionRepo := repository.NewExecutionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	journal := repository.NewJournal(executionRepo, orderRepo)

	// API ключи хранятся зашифрованными
	encKey := []byte(cfg.Security.EncryptionKey)
	apiKey, err := crypto.Decrypt(cfg.Exchange.APIKey, encKey)
	if err != nil {
		return err
	}
	apiSecret, err := crypto.Decrypt(cfg.Exchange.APISecret, encKey)
	if err != nil {
		return err
	}

	// Биржевой адаптер
	httpCfg := exchange.DefaultHTTPClientConfig()
	httpCfg.RateLimit = cfg.Exchange.RateLimit
	httpCfg.RateBurst = cfg.Exchange.RateBurst
	adapter, err := exchange.NewExchange(cfg.Exchange.Name,
		exchange.NewHTTPClient(httpCfg), cfg.Risk.QuoteScale, cfg.Risk.BaseScale)
	if err != nil {
		return err
	}
	connectCfg := retry.DefaultConfig()
	connectCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("exchange connect failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	if err := retry.Do(ctx, func() error {
		return adapter.Connect(apiKey, apiSecret)
	}, connectCfg); err != nil {
		return err
	}
	defer adapter.Disconnect()

	// Торговое ядро
	metrics := bot.NewMetrics()
	breaker := bot.NewExecutionCircuitBreaker(
		cfg.Execution.BreakerMaxFailures, cfg.Execution.BreakerResetTimeout, logger)
	poller := bot.NewFillPoller(adapter, cfg.Execution, logger)
	completer := bot.NewPartialFillCompleter(adapter, poller, breaker, cfg.Execution, logger)
	corrector := bot.NewDriftCorrector(adapter, breaker, poller, cfg.Execution,
		cfg.Risk.BaseScale, cfg.Exchange.PerpSymbol, cfg.Exchange.SpotSymbol, logger)
	evaluator := bot.NewRiskEvaluator(cfg.Risk, logger)
	estimator := bot.NewSlippageEstimator(cfg.Execution, cfg.Risk.BaseScale, logger)
	sizer := bot.NewPositionSizer(cfg.Risk)

	provider := bot.NewSnapshotProvider(adapter, cfg.Exchange.PerpSymbol, cfg.Risk.BaseScale, logger)
	snapshot := provider.Snapshot

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	decider := bot.NewEmergencyDecider(func(ctx context.Context, action models.EmergencyAction) error {
		hub.Broadcast(websocket.MessageTypeState, action)
		_, err := notificationRepo.Create(ctx, &models.Notification{
			Timestamp: time.UnixMilli(action.TriggeredAtMs),
			Type:      models.NotificationTypeEmergency,
			Severity:  models.SeverityError,
			Message:   action.Type,
			Meta:      map[string]interface{}{"reasons": action.Reasons},
		})
		return err
	}, logger)

	executor := bot.NewExecutor(bot.ExecutorDeps{
		Adapter:   adapter,
		Breaker:   breaker,
		Risk:      evaluator,
		Slippage:  estimator,
		Poller:    poller,
		Completer: completer,
		Corrector: corrector,
		Snapshot:  snapshot,

		ExecCfg:    cfg.Execution,
		BaseScale:  cfg.Risk.BaseScale,
		PerpSymbol: cfg.Exchange.PerpSymbol,
		SpotSymbol: cfg.Exchange.SpotSymbol,
		BaseAsset:  cfg.Exchange.BaseAsset,

		Logger:  logger,
		Metrics: metrics,
	})

	sm := bot.NewStateMachine(logger)
	sm.SetTransitionCallback(func(from, to bot.BotState) {
		hub.Broadcast(websocket.MessageTypeState, map[string]string{
			"from": string(from), "to": string(to),
		})
	})

	engine := bot.NewEngine(bot.EngineDeps{
		Executor:  executor,
		State:     sm,
		Risk:      evaluator,
		Sizer:     sizer,
		Emergency: decider,
		Snapshot:  snapshot,
		Journal:   journal,

		Logger:  logger,
		Metrics: metrics,
	})
	engine.Start(ctx)

	// Уведомления движка: в БД и всем websocket клиентам
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-engine.Notifications():
				if _, err := notificationRepo.Create(ctx, &n); err != nil {
					logger.Error("failed to persist notification", zap.Error(err))
				}
				hub.Broadcast(websocket.MessageTypeNotification, n)
			}
		}
	}()

	router := api.NewRouter(api.Deps{
		Engine:     engine,
		Evaluator:  evaluator,
		Snapshot:   snapshot,
		Breaker:    breaker,
		Adapter:    adapter,
		Executions: executionRepo,
		Orders:     orderRepo,
		Hub:        hub,

		AdminPasswordHash: cfg.Security.AdminPasswordHash,

		Logger: logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			errCh <- server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	cancel()
	engine.Stop()

	return nil
}
