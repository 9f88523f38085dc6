package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Exchange  ExchangeConfig
	Risk      RiskConfig
	Execution ExecutionConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // 32 байта, AES-256 для API ключей биржи

	// bcrypt-хеш пароля оператора для basic auth на /api.
	// Пустое значение отключает аутентификацию (локальный запуск).
	AdminPasswordHash string
}

// ExchangeConfig - настройки подключения к бирже
type ExchangeConfig struct {
	Name       string // binance
	PerpSymbol string // символ перпетуала (BTCUSDT)
	SpotSymbol string // символ спота (BTCUSDT)
	BaseAsset  string // базовый актив спотовой ноги (BTC)
	APIKey     string // зашифрованный API key (AES-256-GCM, base64)
	APISecret  string // зашифрованный API secret

	// Rate limiting для приватного API
	RateLimit float64 // запросов в секунду
	RateBurst float64 // максимальный всплеск
}

// RiskConfig - лимиты сохранения капитала
//
// Все денежные лимиты хранятся в quote units (QuoteScale единиц на 1 USD).
// Жёсткие лимиты блокируют вход (BLOCK), danger-лимиты требуют выхода
// (EXIT), warning-лимит ставит на паузу (PAUSE), soft-варианты дают
// CAUTION при приближении к жёстким.
type RiskConfig struct {
	QuoteScale int64 // единиц котируемой валюты на 1 USD (10^6)
	BaseScale  int64 // единиц базового актива на 1 монету (10^3)

	// Жёсткие лимиты (BLOCK)
	MaxPositionSizeQuote int64 // максимальный номинал позиции
	MaxLeverage          int   // максимальное плечо

	// Danger лимиты (EXIT)
	MaxDailyLossQuote int64 // максимальный дневной убыток
	MaxDrawdownBps    int64 // максимальная просадка от пика
	MinLiqBufferBps   int64 // минимальная дистанция до ликвидации

	// Warning лимит (PAUSE)
	MaxMarginUtilBps int64 // максимальная утилизация маржи

	// Soft/warning варианты (CAUTION при приближении)
	WarnPositionSizeQuote int64
	WarnLeverage          int
	WarnDailyLossQuote    int64
	WarnDrawdownBps       int64
	WarnLiqBufferBps      int64
	WarnMarginUtilBps     int64
}

// ExecutionConfig - параметры исполнения хеджа
type ExecutionConfig struct {
	MaxSlippageBps int64 // максимальное допустимое проскальзывание
	MaxDriftBps    int64 // максимальное расхождение ног до коррекции

	// Подтверждение исполнения
	FillTimeout      time.Duration // wall-clock таймаут ожидания терминального статуса
	FillPollInterval time.Duration // интервал опроса биржи
	MaxPollAttempts  int           // максимум попыток опроса

	MaxPartialFillRetries int // бюджет доведения частичного исполнения

	// Требуемая глубина стакана относительно размера ордера,
	// в bps (10000 = 1x, 30000 = 3x)
	MinLiquidityRatioBps int64

	// Circuit breaker на размещение ордеров: консервативнее общих
	// API breaker'ов - реальные деньги
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	quoteScale := getEnvAsInt64("QUOTE_SCALE", 1_000_000)

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "hedgebot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Exchange: ExchangeConfig{
			Name:       getEnv("EXCHANGE", "binance"),
			PerpSymbol: getEnv("PERP_SYMBOL", "BTCUSDT"),
			SpotSymbol: getEnv("SPOT_SYMBOL", "BTCUSDT"),
			BaseAsset:  getEnv("BASE_ASSET", "BTC"),
			APIKey:     getEnv("EXCHANGE_API_KEY", ""),
			APISecret:  getEnv("EXCHANGE_API_SECRET", ""),
			RateLimit:  getEnvAsFloat("EXCHANGE_RATE_LIMIT", 20),
			RateBurst:  getEnvAsFloat("EXCHANGE_RATE_BURST", 40),
		},
		Risk: RiskConfig{
			QuoteScale: quoteScale,
			BaseScale:  getEnvAsInt64("BASE_SCALE", 1000),

			// Денежные лимиты задаются в целых USD и масштабируются
			MaxPositionSizeQuote: getEnvAsInt64("MAX_POSITION_SIZE_USD", 10_000) * quoteScale,
			MaxLeverage:          getEnvAsInt("MAX_LEVERAGE", 3),
			MaxDailyLossQuote:    getEnvAsInt64("MAX_DAILY_LOSS_USD", 500) * quoteScale,
			MaxDrawdownBps:       getEnvAsInt64("MAX_DRAWDOWN_BPS", 1000),
			MinLiqBufferBps:      getEnvAsInt64("MIN_LIQ_BUFFER_BPS", 1500),
			MaxMarginUtilBps:     getEnvAsInt64("MAX_MARGIN_UTIL_BPS", 8000),

			WarnPositionSizeQuote: getEnvAsInt64("WARN_POSITION_SIZE_USD", 8_000) * quoteScale,
			WarnLeverage:          getEnvAsInt("WARN_LEVERAGE", 2),
			WarnDailyLossQuote:    getEnvAsInt64("WARN_DAILY_LOSS_USD", 300) * quoteScale,
			WarnDrawdownBps:       getEnvAsInt64("WARN_DRAWDOWN_BPS", 700),
			WarnLiqBufferBps:      getEnvAsInt64("WARN_LIQ_BUFFER_BPS", 2500),
			WarnMarginUtilBps:     getEnvAsInt64("WARN_MARGIN_UTIL_BPS", 6000),
		},
		Execution: ExecutionConfig{
			MaxSlippageBps: getEnvAsInt64("MAX_SLIPPAGE_BPS", 30),
			MaxDriftBps:    getEnvAsInt64("MAX_DRIFT_BPS", 50),

			FillTimeout:      getEnvAsDuration("FILL_TIMEOUT", 30*time.Second),
			FillPollInterval: getEnvAsDuration("FILL_POLL_INTERVAL", 500*time.Millisecond),
			MaxPollAttempts:  getEnvAsInt("MAX_POLL_ATTEMPTS", 30),

			MaxPartialFillRetries: getEnvAsInt("MAX_PARTIAL_FILL_RETRIES", 3),

			MinLiquidityRatioBps: getEnvAsInt64("MIN_LIQUIDITY_RATIO_BPS", 30000),

			BreakerMaxFailures:  getEnvAsInt("BREAKER_MAX_FAILURES", 2),
			BreakerResetTimeout: getEnvAsDuration("BREAKER_RESET_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей биржи
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Risk.QuoteScale <= 0 {
		return fmt.Errorf("QUOTE_SCALE must be positive, got %d", c.Risk.QuoteScale)
	}

	if c.Risk.BaseScale <= 0 {
		return fmt.Errorf("BASE_SCALE must be positive, got %d", c.Risk.BaseScale)
	}

	if c.Risk.MaxLeverage < 1 {
		return fmt.Errorf("MAX_LEVERAGE must be at least 1, got %d", c.Risk.MaxLeverage)
	}

	if c.Risk.MaxPositionSizeQuote <= 0 {
		return fmt.Errorf("MAX_POSITION_SIZE_USD must be positive")
	}

	if c.Execution.FillTimeout <= 0 {
		return fmt.Errorf("FILL_TIMEOUT must be positive, got %v", c.Execution.FillTimeout)
	}

	if c.Execution.FillPollInterval <= 0 {
		return fmt.Errorf("FILL_POLL_INTERVAL must be positive, got %v", c.Execution.FillPollInterval)
	}

	if c.Execution.MaxPollAttempts < 1 {
		return fmt.Errorf("MAX_POLL_ATTEMPTS must be at least 1, got %d", c.Execution.MaxPollAttempts)
	}

	if c.Execution.MaxPartialFillRetries < 0 {
		return fmt.Errorf("MAX_PARTIAL_FILL_RETRIES cannot be negative, got %d", c.Execution.MaxPartialFillRetries)
	}

	// Глубина стакана не меньше объёма ордера - иначе валидация бессмысленна
	if c.Execution.MinLiquidityRatioBps < 10000 {
		return fmt.Errorf("MIN_LIQUIDITY_RATIO_BPS must be at least 10000 (1x), got %d", c.Execution.MinLiquidityRatioBps)
	}

	if c.Execution.BreakerMaxFailures < 1 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be at least 1, got %d", c.Execution.BreakerMaxFailures)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
