package repository

import (
	"context"
	"fmt"

	"hedgebot/internal/models"
)

// Journal записывает результаты оркестраций: одна запись executions
// плюс записи orders для каждой исполненной ноги
type Journal struct {
	executions *ExecutionRepository
	orders     *OrderRepository
}

// NewJournal создает журнал исполнения
func NewJournal(executions *ExecutionRepository, orders *OrderRepository) *Journal {
	return &Journal{executions: executions, orders: orders}
}

// RecordExecution сохраняет результат оркестрации и его ордера
func (j *Journal) RecordExecution(ctx context.Context, result *models.ExecutionResult) error {
	rec := &models.ExecutionRecord{
		Operation: result.Operation,
		Success:   result.Success,
		Aborted:   result.Aborted,
		Reason:    result.Reason,
		CreatedAt: result.Timestamp,
	}
	if result.Drift != nil {
		rec.DriftBps = result.Drift.DriftBps
	}

	executionID, err := j.executions.Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	for _, order := range []*models.OrderRecord{result.PerpOrder, result.SpotOrder} {
		if order == nil {
			continue
		}
		order.ExecutionID = executionID
		if _, err := j.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("failed to record order %s: %w", order.ExchangeID, err)
		}
	}

	return nil
}
