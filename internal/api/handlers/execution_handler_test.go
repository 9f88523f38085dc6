package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"hedgebot/internal/bot"
	"hedgebot/internal/models"
	"hedgebot/internal/repository"
)

// newTestEngine создает движок без запуска worker'а: запросы только
// встают в очередь, что достаточно для проверки HTTP-слоя
func newTestEngine(t *testing.T) *bot.Engine {
	t.Helper()
	logger := zap.NewNop()
	return bot.NewEngine(bot.EngineDeps{
		State:  bot.NewStateMachine(logger),
		Logger: logger,
	})
}

func newMockRepos(t *testing.T) (*repository.ExecutionRepository, *repository.OrderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewExecutionRepository(db), repository.NewOrderRepository(db), mock
}

// ============ Enter / Exit ============

func TestExecutionHandler_Enter(t *testing.T) {
	t.Run("queues enter intent", func(t *testing.T) {
		handler := NewExecutionHandler(newTestEngine(t), nil, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/hedge/enter",
			strings.NewReader(`{"quantity_base": 1000}`))
		w := httptest.NewRecorder()

		handler.Enter(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}

		var response map[string]string
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "queued" {
			t.Errorf("expected status queued, got %q", response["status"])
		}
		if response["operation"] != models.ExecutionOpEnter {
			t.Errorf("expected operation %q, got %q", models.ExecutionOpEnter, response["operation"])
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		handler := NewExecutionHandler(newTestEngine(t), nil, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/hedge/enter",
			strings.NewReader(`{"quantity_base": `))
		w := httptest.NewRecorder()

		handler.Enter(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		handler := NewExecutionHandler(newTestEngine(t), nil, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/hedge/enter",
			strings.NewReader(`{"quantity_base": 0}`))
		w := httptest.NewRecorder()

		handler.Enter(w, req)

		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
		}
	})
}

func TestExecutionHandler_Exit(t *testing.T) {
	t.Run("rejects exit without open position", func(t *testing.T) {
		// Движок в состоянии idle: переход в exiting невозможен
		handler := NewExecutionHandler(newTestEngine(t), nil, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/hedge/exit", nil)
		w := httptest.NewRecorder()

		handler.Exit(w, req)

		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
		}
	})
}

// ============ List / Orders ============

func TestExecutionHandler_List(t *testing.T) {
	t.Run("returns recent executions", func(t *testing.T) {
		executions, _, mock := newMockRepos(t)
		handler := NewExecutionHandler(newTestEngine(t), executions, nil, zap.NewNop())

		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "operation", "success", "aborted", "reason", "drift_bps", "created_at"}).
			AddRow(2, models.ExecutionOpExit, true, false, "", 0, now).
			AddRow(1, models.ExecutionOpEnter, true, false, "", 12, now.Add(-time.Minute))
		mock.ExpectQuery("SELECT (.+) FROM executions").WithArgs(50).WillReturnRows(rows)

		req := httptest.NewRequest(http.MethodGet, "/api/executions", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var records []models.ExecutionRecord
		if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Operation != models.ExecutionOpExit {
			t.Errorf("expected newest record first, got %q", records[0].Operation)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		executions, _, _ := newMockRepos(t)
		handler := NewExecutionHandler(newTestEngine(t), executions, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/executions?limit=9000", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestExecutionHandler_Orders(t *testing.T) {
	t.Run("returns 404 for unknown execution", func(t *testing.T) {
		executions, orders, mock := newMockRepos(t)
		handler := NewExecutionHandler(newTestEngine(t), executions, orders, zap.NewNop())

		mock.ExpectQuery("SELECT (.+) FROM executions").WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "operation", "success", "aborted", "reason", "drift_bps", "created_at"}))

		req := httptest.NewRequest(http.MethodGet, "/api/executions/7/orders", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "7"})
		w := httptest.NewRecorder()

		handler.Orders(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("rejects non-numeric id", func(t *testing.T) {
		handler := NewExecutionHandler(newTestEngine(t), nil, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/executions/abc/orders", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "abc"})
		w := httptest.NewRecorder()

		handler.Orders(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}
