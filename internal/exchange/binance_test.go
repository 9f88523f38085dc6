package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Адаптер против httptest сервера: оба базовых URL указывают на него,
// хендлер маршрутизирует по пути запроса.
func newTestBinance(t *testing.T, handler http.Handler) *Binance {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	b := NewBinance(NewHTTPClient(DefaultHTTPClientConfig()), 1_000_000, 1000)
	b.futuresURL = server.URL
	b.spotURL = server.URL
	if err := b.Connect("test-key", "test-secret"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return b
}

func TestGetBalanceParsesFuturesAccount(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v2/account" {
			t.Errorf("path = %s, want /fapi/v2/account", r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Error("signed request must carry the API key header")
		}
		if r.URL.Query().Get("signature") == "" {
			t.Error("signed request must carry a signature")
		}
		w.Write([]byte(`{
			"totalMarginBalance": "50000.5",
			"totalInitialMargin": "1200.25"
		}`))
	}))

	bal, err := b.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}

	if bal.EquityQuote != 50_000_500_000 {
		t.Errorf("EquityQuote = %d, want 50000500000", bal.EquityQuote)
	}
	// totalInitialMargin обязан попадать в MarginUsedQuote: на нём
	// держится проверка утилизации маржи
	if bal.MarginUsedQuote != 1_200_250_000 {
		t.Errorf("MarginUsedQuote = %d, want 1200250000", bal.MarginUsedQuote)
	}
}

func TestGetSpotBalanceSumsFreeAndLocked(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/account" {
			t.Errorf("path = %s, want /api/v3/account", r.URL.Path)
		}
		w.Write([]byte(`{
			"balances": [
				{"asset": "USDT", "free": "12000.0", "locked": "0"},
				{"asset": "BTC", "free": "0.25", "locked": "0.05"}
			]
		}`))
	}))

	got, err := b.GetSpotBalance(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetSpotBalance() error = %v", err)
	}
	if got != 300 {
		t.Errorf("balance = %d base units, want 300", got)
	}
}

func TestGetSpotBalanceMissingAssetIsZero(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balances": [{"asset": "USDT", "free": "100", "locked": "0"}]}`))
	}))

	got, err := b.GetSpotBalance(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GetSpotBalance() error = %v", err)
	}
	if got != 0 {
		t.Errorf("balance = %d, want 0 for absent asset", got)
	}
}

func TestCreateOrderSpotRestoresAvgPrice(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/order" {
			t.Errorf("path = %s, want /api/v3/order", r.URL.Path)
		}
		// Спот не отдаёт avgPrice: среднюю восстанавливаем из
		// cummulativeQuoteQty
		w.Write([]byte(`{
			"orderId": 42,
			"symbol": "BTCUSDT",
			"status": "FILLED",
			"side": "BUY",
			"type": "MARKET",
			"origQty": "0.5",
			"executedQty": "0.5",
			"cummulativeQuoteQty": "25000.0",
			"transactTime": 1700000000000
		}`))
	}))

	order, err := b.CreateOrder(context.Background(), OrderRequest{
		Symbol:       "BTCUSDT",
		Market:       MarketSpot,
		Side:         SideBuy,
		Type:         OrderTypeMarket,
		QuantityBase: 500,
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	if order.ID != "42" {
		t.Errorf("ID = %q, want 42", order.ID)
	}
	if order.Status != "filled" {
		t.Errorf("Status = %q, want filled", order.Status)
	}
	if order.FilledBase != 500 {
		t.Errorf("FilledBase = %d, want 500", order.FilledBase)
	}
	// 25000 USDT / 0.5 BTC = 50000
	if order.AvgFillPrice != 50_000_000_000 {
		t.Errorf("AvgFillPrice = %d, want 50000000000", order.AvgFillPrice)
	}
}

func TestGetOrderNotFoundCode(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -2013, "msg": "Order does not exist."}`))
	}))

	_, err := b.GetOrder(context.Background(), "BTCUSDT", "perp:999")
	if err != ErrOrderNotFound {
		t.Errorf("error = %v, want ErrOrderNotFound", err)
	}
}
