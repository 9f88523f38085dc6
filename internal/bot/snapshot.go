package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/exchange"
	"hedgebot/internal/models"
	"hedgebot/pkg/retry"
	"hedgebot/pkg/utils"
)

// snapshot.go - построение свежего снимка счёта для оценки риска
//
// Снимок строится НА КАЖДУЮ оценку заново: двухфазная проверка риска
// требует читать текущее состояние непосредственно перед коммитом
// капитала, а не снимок, породивший намерение.

// SnapshotProvider строит RiskSnapshot из данных биржи, отслеживая пик
// капитала и капитал на начало UTC-суток для расчёта дневного P&L
type SnapshotProvider struct {
	adapter    exchange.Exchange
	perpSymbol string
	baseScale  int64

	mu              sync.Mutex
	peakEquityQuote int64
	dayStartQuote   int64
	day             time.Time // начало текущих UTC-суток

	logger *zap.Logger
}

// NewSnapshotProvider создает провайдер снимков
func NewSnapshotProvider(adapter exchange.Exchange, perpSymbol string, baseScale int64, logger *zap.Logger) *SnapshotProvider {
	return &SnapshotProvider{
		adapter:    adapter,
		perpSymbol: perpSymbol,
		baseScale:  baseScale,
		logger:     logger,
	}
}

// Snapshot возвращает свежий снимок состояния счёта.
// Чтения балансa и позиции ретраятся: одиночный сетевой сбой не должен
// превращаться в abort входа или пропуск цикла проверки риска.
func (p *SnapshotProvider) Snapshot(ctx context.Context) (models.RiskSnapshot, error) {
	retryCfg := retry.ConservativeConfig()
	retryCfg.RetryIf = retry.RetryIfNotContext

	balance, err := retry.DoWithResult(ctx, func() (*exchange.Balance, error) {
		return p.adapter.GetBalance(ctx)
	}, retryCfg)
	if err != nil {
		return models.RiskSnapshot{}, fmt.Errorf("failed to fetch balance: %w", err)
	}

	position, err := retry.DoWithResult(ctx, func() (*exchange.Position, error) {
		return p.adapter.GetPosition(ctx, p.perpSymbol)
	}, retryCfg)
	if err != nil {
		return models.RiskSnapshot{}, fmt.Errorf("failed to fetch position: %w", err)
	}

	p.mu.Lock()
	p.roll(balance.EquityQuote)
	snap := models.RiskSnapshot{
		EquityQuote:     balance.EquityQuote,
		MarginUsedQuote: balance.MarginUsedQuote,
		DailyPnlQuote:   balance.EquityQuote - p.dayStartQuote,
		PeakEquityQuote: p.peakEquityQuote,
	}
	p.mu.Unlock()

	if position != nil {
		snap.Position = &models.PositionSnapshot{
			Side:             position.Side,
			NotionalQuote:    utils.NotionalQuote(position.SizeBase, position.MarkPrice, p.baseScale),
			Leverage:         position.Leverage,
			MarkPrice:        position.MarkPrice,
			LiquidationPrice: position.LiquidationPrice,
		}
	}

	return snap, nil
}

// roll обновляет пик капитала и точку отсчёта дневного P&L.
// Вызывается под мьютексом.
func (p *SnapshotProvider) roll(equityQuote int64) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if !p.day.Equal(today) {
		p.day = today
		p.dayStartQuote = equityQuote
		p.logger.Info("daily pnl baseline reset",
			zap.Int64("equity_quote", equityQuote))
	}
	if equityQuote > p.peakEquityQuote {
		p.peakEquityQuote = equityQuote
	}
}
