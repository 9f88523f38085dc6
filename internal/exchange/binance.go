package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

const (
	binanceFuturesURL = "https://fapi.binance.com"
	binanceSpotURL    = "https://api.binance.com"
	binanceRecvWindow = "5000"

	// Binance код "Order does not exist" - ордер ещё не виден
	binanceOrderNotExist = -2013
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Binance реализует интерфейс Exchange: USDT-M перпетуалы (fapi) и спот (api).
// Хедж живёт на одной бирже: шорт перпа на fapi, лонг спота на api.
//
// Все decimal-строки API конвертируются в fixed-point int64 через
// shopspring/decimal - парсинг котировок через float64 теряет точность.
type Binance struct {
	apiKey    string
	secretKey string

	httpClient *HTTPClient

	quoteScale int64 // quote units на 1 USD
	baseScale  int64 // base units на 1 монету

	// Базовые URL подменяются в тестах на httptest сервер
	futuresURL string
	spotURL    string

	connected bool
}

// NewBinance создает новый экземпляр Binance
func NewBinance(httpClient *HTTPClient, quoteScale, baseScale int64) *Binance {
	return &Binance{
		httpClient: httpClient,
		quoteScale: quoteScale,
		baseScale:  baseScale,
		futuresURL: binanceFuturesURL,
		spotURL:    binanceSpotURL,
	}
}

func (b *Binance) GetName() string {
	return "binance"
}

func (b *Binance) Connect(apiKey, secret string) error {
	if apiKey == "" || secret == "" {
		return &ExchangeError{Exchange: "binance", Code: "auth", Message: "api key and secret are required"}
	}
	b.apiKey = apiKey
	b.secretKey = secret
	b.connected = true
	return nil
}

func (b *Binance) Disconnect() error {
	b.connected = false
	b.httpClient.Close()
	return nil
}

func (b *Binance) IsConnected() bool {
	return b.connected
}

// sign создает HMAC-SHA256 подпись query string'а
func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к Binance API
func (b *Binance) doRequest(ctx context.Context, method, baseURL, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		query.Set("recvWindow", binanceRecvWindow)
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("signature", b.sign(query.Encode()))
	}

	reqURL := baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded := query.Encode(); encoded != "" {
			reqURL += "?" + encoded
		}
	} else {
		body = strings.NewReader(query.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "network", Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "network", Message: err.Error(), Original: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Code != 0 {
			if apiErr.Code == binanceOrderNotExist {
				return nil, ErrOrderNotFound
			}
			return nil, &ExchangeError{
				Exchange: "binance",
				Code:     strconv.Itoa(apiErr.Code),
				Message:  apiErr.Msg,
			}
		}
		return nil, &ExchangeError{
			Exchange: "binance",
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
		}
	}

	return respBody, nil
}

// marketURL возвращает базовый URL для рынка
func (b *Binance) marketURL(market string) string {
	if market == MarketSpot {
		return b.spotURL
	}
	return b.futuresURL
}

// orderEndpoint возвращает endpoint ордеров для рынка
func orderEndpoint(market string) string {
	if market == MarketSpot {
		return "/api/v3/order"
	}
	return "/fapi/v1/order"
}

// ============================================================
// Конвертация decimal строк <-> fixed-point
// ============================================================

// parseScaled парсит decimal строку API в int64 c заданным масштабом
func parseScaled(s string, scale int64) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d.Mul(decimal.NewFromInt(scale)).IntPart(), nil
}

// formatScaled форматирует int64 с масштабом в decimal строку для API
func formatScaled(v, scale int64) string {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(scale)).String()
}

// mapOrderStatus переводит статус Binance в статусы торгового ядра
func mapOrderStatus(s string) string {
	switch s {
	case "NEW":
		return "open"
	case "PARTIALLY_FILLED":
		return "partially_filled"
	case "FILLED":
		return "filled"
	case "CANCELED", "PENDING_CANCEL":
		return "cancelled"
	case "REJECTED":
		return "rejected"
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return "expired"
	default:
		return "pending"
	}
}

// binanceOrder - ответ Binance по ордеру (общая форма fapi и api/v3)
type binanceOrder struct {
	OrderID       int64  `json:"orderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`             // fapi
	CumQuoteQty   string `json:"cummulativeQuoteQty"`  // api/v3
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTimeMs  int64  `json:"updateTime"`
	TransactTime  int64  `json:"transactTime"`
}

// toOrder конвертирует ответ биржи во внутреннее представление
func (b *Binance) toOrder(raw *binanceOrder, market string) (*Order, error) {
	qty, err := parseScaled(raw.OrigQty, b.baseScale)
	if err != nil {
		return nil, err
	}
	filled, err := parseScaled(raw.ExecutedQty, b.baseScale)
	if err != nil {
		return nil, err
	}

	// fapi отдаёт avgPrice; спот отдаёт cummulativeQuoteQty,
	// среднюю цену восстанавливаем делением
	var avgPrice int64
	if raw.AvgPrice != "" && raw.AvgPrice != "0" {
		avgPrice, err = parseScaled(raw.AvgPrice, b.quoteScale)
		if err != nil {
			return nil, err
		}
	} else if raw.CumQuoteQty != "" && filled > 0 {
		cumQuote, err := parseScaled(raw.CumQuoteQty, b.quoteScale)
		if err != nil {
			return nil, err
		}
		avgPrice = cumQuote * b.baseScale / filled
	}

	ts := raw.UpdateTimeMs
	if ts == 0 {
		ts = raw.TransactTime
	}

	return &Order{
		ID:           strconv.FormatInt(raw.OrderID, 10),
		Symbol:       raw.Symbol,
		Market:       market,
		Side:         strings.ToLower(raw.Side),
		Type:         strings.ToLower(raw.Type),
		Status:       mapOrderStatus(raw.Status),
		QuantityBase: qty,
		FilledBase:   filled,
		AvgFillPrice: avgPrice,
		ReduceOnly:   raw.ReduceOnly,
		UpdatedAt:    time.UnixMilli(ts),
	}, nil
}

// ============================================================
// Exchange interface
// ============================================================

func (b *Binance) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	params := map[string]string{
		"symbol":           req.Symbol,
		"side":             strings.ToUpper(req.Side),
		"type":             strings.ToUpper(req.Type),
		"quantity":         formatScaled(req.QuantityBase, b.baseScale),
		"newOrderRespType": "RESULT",
	}

	if req.Type == OrderTypeLimit {
		params["price"] = formatScaled(req.Price, b.quoteScale)
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		params["timeInForce"] = tif
	}
	if req.StopPrice > 0 {
		params["stopPrice"] = formatScaled(req.StopPrice, b.quoteScale)
	}
	if req.ReduceOnly && req.Market == MarketPerp {
		params["reduceOnly"] = "true"
	}

	body, err := b.doRequest(ctx, http.MethodPost, b.marketURL(req.Market), orderEndpoint(req.Market), params, true)
	if err != nil {
		return nil, err
	}

	var raw binanceOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	return b.toOrder(&raw, req.Market)
}

func (b *Binance) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	// Рынок закодирован в ID: "spot:12345" или "perp:12345"
	market, id := splitOrderID(orderID)

	params := map[string]string{
		"symbol":  symbol,
		"orderId": id,
	}

	body, err := b.doRequest(ctx, http.MethodGet, b.marketURL(market), orderEndpoint(market), params, true)
	if err != nil {
		return nil, err
	}

	var raw binanceOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	return b.toOrder(&raw, market)
}

// splitOrderID разбирает составной ID "market:orderId"
func splitOrderID(orderID string) (market, id string) {
	if i := strings.IndexByte(orderID, ':'); i > 0 {
		return orderID[:i], orderID[i+1:]
	}
	return MarketPerp, orderID
}

func (b *Binance) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	params := map[string]string{"symbol": symbol}

	body, err := b.doRequest(ctx, http.MethodGet, b.futuresURL, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}

	var raws []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		LiquidationPrice string `json:"liquidationPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
		UpdateTime       int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	for _, raw := range raws {
		if raw.Symbol != symbol {
			continue
		}

		amt, err := parseScaled(raw.PositionAmt, b.baseScale)
		if err != nil {
			return nil, err
		}
		if amt == 0 {
			return nil, nil // позиции нет
		}

		side := SideLong
		size := amt
		if amt < 0 {
			side = SideShort
			size = -amt
		}

		entry, err := parseScaled(raw.EntryPrice, b.quoteScale)
		if err != nil {
			return nil, err
		}
		mark, err := parseScaled(raw.MarkPrice, b.quoteScale)
		if err != nil {
			return nil, err
		}
		liq, err := parseScaled(raw.LiquidationPrice, b.quoteScale)
		if err != nil {
			return nil, err
		}
		pnl, err := parseScaled(raw.UnRealizedProfit, b.quoteScale)
		if err != nil {
			return nil, err
		}
		lev, _ := strconv.Atoi(raw.Leverage)

		return &Position{
			Symbol:           raw.Symbol,
			Market:           MarketPerp,
			Side:             side,
			SizeBase:         size,
			EntryPrice:       entry,
			MarkPrice:        mark,
			LiquidationPrice: liq,
			Leverage:         lev,
			UnrealizedPnl:    pnl,
			UpdatedAt:        time.UnixMilli(raw.UpdateTime),
		}, nil
	}

	return nil, nil
}

func (b *Binance) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}
	params := map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(depth),
	}

	body, err := b.doRequest(ctx, http.MethodGet, b.spotURL, "/api/v3/depth", params, false)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	book := &OrderBook{
		Symbol:    symbol,
		Bids:      make([]PriceLevel, 0, len(raw.Bids)),
		Asks:      make([]PriceLevel, 0, len(raw.Asks)),
		Timestamp: time.Now(),
	}

	for _, lvl := range raw.Bids {
		price, err := parseScaled(lvl[0], b.quoteScale)
		if err != nil {
			return nil, err
		}
		vol, err := parseScaled(lvl[1], b.baseScale)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, PriceLevel{Price: price, VolumeBase: vol})
	}
	for _, lvl := range raw.Asks {
		price, err := parseScaled(lvl[0], b.quoteScale)
		if err != nil {
			return nil, err
		}
		vol, err := parseScaled(lvl[1], b.baseScale)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, PriceLevel{Price: price, VolumeBase: vol})
	}

	return book, nil
}

func (b *Binance) GetBalance(ctx context.Context) (*Balance, error) {
	body, err := b.doRequest(ctx, http.MethodGet, b.futuresURL, "/fapi/v2/account", nil, true)
	if err != nil {
		return nil, err
	}

	var raw struct {
		TotalMarginBalance string `json:"totalMarginBalance"`
		TotalInitialMargin string `json:"totalInitialMargin"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	equity, err := parseScaled(raw.TotalMarginBalance, b.quoteScale)
	if err != nil {
		return nil, err
	}
	margin, err := parseScaled(raw.TotalInitialMargin, b.quoteScale)
	if err != nil {
		return nil, err
	}

	return &Balance{
		EquityQuote:     equity,
		MarginUsedQuote: margin,
		UpdatedAt:       time.Now(),
	}, nil
}

func (b *Binance) GetSpotBalance(ctx context.Context, asset string) (int64, error) {
	body, err := b.doRequest(ctx, http.MethodGet, b.spotURL, "/api/v3/account", nil, true)
	if err != nil {
		return 0, err
	}

	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	for _, bal := range raw.Balances {
		if bal.Asset != asset {
			continue
		}
		free, err := parseScaled(bal.Free, b.baseScale)
		if err != nil {
			return 0, err
		}
		locked, err := parseScaled(bal.Locked, b.baseScale)
		if err != nil {
			return 0, err
		}
		return free + locked, nil
	}

	return 0, nil
}

func (b *Binance) GetFundingRate(ctx context.Context, symbol string) (int64, error) {
	params := map[string]string{"symbol": symbol}

	body, err := b.doRequest(ctx, http.MethodGet, b.futuresURL, "/fapi/v1/premiumIndex", params, false)
	if err != nil {
		return 0, err
	}

	var raw struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, &ExchangeError{Exchange: "binance", Code: "decode", Message: err.Error(), Original: err}
	}

	// Ставка приходит долей (0.0001 = 1 bps), переводим в bps
	rate, err := decimal.NewFromString(raw.LastFundingRate)
	if err != nil {
		return 0, fmt.Errorf("invalid funding rate %q: %w", raw.LastFundingRate, err)
	}
	return rate.Mul(decimal.NewFromInt(10000)).IntPart(), nil
}

// компиляционная проверка интерфейса
var _ Exchange = (*Binance)(nil)
