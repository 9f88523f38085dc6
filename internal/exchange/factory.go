package exchange

import "fmt"

// NewExchange создает биржу по имени из конфигурации.
// Пока поддерживается только Binance; интерфейс позволяет добавить
// другие биржи без изменения торгового ядра.
func NewExchange(name string, httpClient *HTTPClient, quoteScale, baseScale int64) (Exchange, error) {
	switch name {
	case "binance":
		return NewBinance(httpClient, quoteScale, baseScale), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}
