package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hedgebot/internal/models"
)

// emergency.go - перевод оценки риска в аварийное действие
//
// BLOCKED уровень или BLOCK/EXIT действие -> KILL_SWITCH (закрыть все
// позиции, запретить входы). PAUSE -> REDUCE_ONLY (выходы разрешены,
// входы запрещены). Провал алерта НЕ проглатывается: сигнал о
// сохранении капитала не должен теряться молча.

// AlertFunc - callback доставки аварийного алерта
type AlertFunc func(ctx context.Context, action models.EmergencyAction) error

// EmergencyDecider решает, требуется ли аварийное действие
type EmergencyDecider struct {
	alert  AlertFunc
	logger *zap.Logger
	now    func() time.Time
}

// NewEmergencyDecider создает decider с callback'ом алертов
func NewEmergencyDecider(alert AlertFunc, logger *zap.Logger) *EmergencyDecider {
	return &EmergencyDecider{
		alert:  alert,
		logger: logger,
		now:    time.Now,
	}
}

// Decide возвращает аварийное действие для оценки или nil, если
// действие не требуется. Срабатывание вызывает alert callback; ошибка
// callback'а возвращается вызывающему вместе с действием.
func (d *EmergencyDecider) Decide(ctx context.Context, assessment models.RiskAssessment) (*models.EmergencyAction, error) {
	var actionType string

	switch {
	case assessment.Level == models.RiskLevelBlocked,
		assessment.Action == models.RiskActionBlock,
		assessment.Action == models.RiskActionExit:
		actionType = models.EmergencyKillSwitch
	case assessment.Action == models.RiskActionPause:
		actionType = models.EmergencyReduceOnly
	default:
		return nil, nil
	}

	action := &models.EmergencyAction{
		Type:          actionType,
		Level:         assessment.Level,
		Action:        assessment.Action,
		Reasons:       assessment.Reasons,
		TriggeredAtMs: d.now().UnixMilli(),
	}

	d.logger.Error("emergency action triggered",
		zap.String("type", actionType),
		zap.String("level", assessment.Level.String()),
		zap.String("risk_action", assessment.Action.String()),
		zap.Strings("reasons", assessment.Reasons))

	if d.alert != nil {
		if err := d.alert(ctx, *action); err != nil {
			return action, fmt.Errorf("emergency alert delivery failed: %w", err)
		}
	}

	return action, nil
}
