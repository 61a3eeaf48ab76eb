package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"deltaneutral/internal/decimal"
)

// Config содержит всю конфигурацию движка
type Config struct {
	VenueA   VenueACredentials
	VenueB   VenueBCredentials
	Fees     FeeConfig
	Mode     MinSpreadMode
	Bot      BotConfig
	Logging  LoggingConfig
	Server   ServerConfig
	Security SecurityConfig
}

// VenueACredentials - ключи для CLOB-венью
type VenueACredentials struct {
	APIKey    string
	APISecret string
	// DualMode: режим позиций задаётся явно оператором и выставляется
	// один раз на старте; бот никогда не переключает его сам.
	DualMode bool
}

// VenueBCredentials - ключи для on-chain венью
type VenueBCredentials struct {
	SigningKey     string
	AccountAddress string
	IsCross        bool // cross vs isolated margin
}

// FeeConfig - taker-комиссии по венью, заданы конфигом, а не
// вычитываются с биржи
type FeeConfig struct {
	VenueATakerFee decimal.Decimal
	VenueBTakerFee decimal.Decimal
}

// MinSpreadMode - единственный вариант режима арбитража; сам sum type
// живёт в internal/position.Mode, там же место под будущие варианты
type MinSpreadMode struct {
	EntryThresholdPct    decimal.Decimal
	USDSizePerPosition   decimal.Decimal
	TakeProfitSpreadPct  decimal.Decimal
	StopLossWideningPct  decimal.Decimal
	TimeoutMinutes       int
	Min24hQuoteVolumeUSD decimal.Decimal
	// FillPriceSlippageFactor - коэффициент ±0.5% для экстраполяции
	// хвоста стакана, вынесен в конфиг вместо хардкода.
	FillPriceSlippageFactor decimal.Decimal
}

// ServerConfig - настройки read-only admin HTTP API
type ServerConfig struct {
	Port int
	Host string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string
}

// BotConfig - настройки движка
type BotConfig struct {
	// WebSocket настройки (event-driven, без polling)
	WSReconnectInitial time.Duration // стартовая задержка переподключения
	WSReconnectMax     time.Duration // потолок экспоненциального backoff
	WSPingInterval     time.Duration
	WSReadTimeout      time.Duration

	// Периодические задачи
	MetadataRefreshInterval time.Duration // обновление метаданных символов
	VolumeRefreshInterval   time.Duration // обновление 24ч объёма
	LeverageCacheTTL        time.Duration // TTL кэша set_leverage

	// Циклы движка
	ScanInterval     time.Duration // период главного цикла сканирования
	CloseMonitorTick time.Duration // период мониторинга условий закрытия

	// Retry логика для критических операций
	MaxRetries              int
	RetryBackoff            time.Duration
	OrderTimeout            time.Duration // таймаут ожидания исполнения ордера
	RESTSnapshotMaxAttempts int           // повторов REST-снапшота стакана

	MonitorReadyTimeout time.Duration // ожидание первого тика всех мониторов при старте
	RESTWorkerPoolSize  int           // пул воркеров для блокирующих REST-вызовов
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		VenueA: VenueACredentials{
			APIKey:    getEnv("VENUE_A_API_KEY", ""),
			APISecret: getEnv("VENUE_A_API_SECRET", ""),
			DualMode:  getEnvAsBool("VENUE_A_DUAL_MODE", false),
		},
		VenueB: VenueBCredentials{
			SigningKey:     getEnv("VENUE_B_SIGNING_KEY", ""),
			AccountAddress: getEnv("VENUE_B_ACCOUNT_ADDRESS", ""),
			IsCross:        getEnvAsBool("VENUE_B_IS_CROSS", true),
		},
		Fees: FeeConfig{
			VenueATakerFee: getEnvAsDecimal("VENUE_A_TAKER_FEE", "0.0005"),
			VenueBTakerFee: getEnvAsDecimal("VENUE_B_TAKER_FEE", "0.00025"),
		},
		Mode: MinSpreadMode{
			EntryThresholdPct:       getEnvAsDecimal("MODE_ENTRY_THRESHOLD_PCT", "0.5"),
			USDSizePerPosition:      getEnvAsDecimal("MODE_USD_SIZE_PER_POSITION", "1000"),
			TakeProfitSpreadPct:     getEnvAsDecimal("MODE_TAKE_PROFIT_SPREAD_PCT", "0.1"),
			StopLossWideningPct:     getEnvAsDecimal("MODE_STOP_LOSS_WIDENING_PCT", "0.5"),
			TimeoutMinutes:          getEnvAsInt("MODE_TIMEOUT_MINUTES", 240),
			Min24hQuoteVolumeUSD:    getEnvAsDecimal("MODE_MIN_24H_QUOTE_VOLUME_USD", "0"),
			FillPriceSlippageFactor: getEnvAsDecimal("MODE_FILL_PRICE_SLIPPAGE_FACTOR", "0.005"),
		},
		Bot: BotConfig{
			WSReconnectInitial: getEnvAsDuration("WS_RECONNECT_INITIAL", 1*time.Second),
			WSReconnectMax:     getEnvAsDuration("WS_RECONNECT_MAX", 60*time.Second),
			WSPingInterval:     getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:      getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),

			MetadataRefreshInterval: getEnvAsDuration("METADATA_REFRESH_INTERVAL", 5*time.Minute),
			VolumeRefreshInterval:   getEnvAsDuration("VOLUME_REFRESH_INTERVAL", 5*time.Minute),
			LeverageCacheTTL:        getEnvAsDuration("LEVERAGE_CACHE_TTL", time.Hour),

			ScanInterval:     getEnvAsDuration("SCAN_INTERVAL", 10*time.Millisecond),
			CloseMonitorTick: getEnvAsDuration("CLOSE_MONITOR_TICK", 100*time.Millisecond),

			MaxRetries:              getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff:            getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),
			OrderTimeout:            getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
			RESTSnapshotMaxAttempts: getEnvAsInt("REST_SNAPSHOT_MAX_ATTEMPTS", 5),

			MonitorReadyTimeout: getEnvAsDuration("MONITOR_READY_TIMEOUT", 30*time.Second),
			RESTWorkerPoolSize:  getEnvAsInt("REST_WORKER_POOL_SIZE", 16),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8090),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate делает fail-fast проверку конфигурации при старте. Take-profit
// обязан быть уже входного порога, иначе позиция закрывалась бы сразу
// после открытия.
func (c *Config) validate() error {
	if c.VenueA.APIKey == "" || c.VenueA.APISecret == "" {
		return fmt.Errorf("config: VENUE_A_API_KEY and VENUE_A_API_SECRET are required")
	}
	if c.VenueB.SigningKey == "" || c.VenueB.AccountAddress == "" {
		return fmt.Errorf("config: VENUE_B_SIGNING_KEY and VENUE_B_ACCOUNT_ADDRESS are required")
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("config: ENCRYPTION_KEY is required for encrypting API keys at rest in memory")
	}
	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("config: ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if c.Mode.TakeProfitSpreadPct.GreaterThanOrEqual(c.Mode.EntryThresholdPct) {
		return fmt.Errorf("config: MODE_TAKE_PROFIT_SPREAD_PCT (%s) must be less than MODE_ENTRY_THRESHOLD_PCT (%s)",
			c.Mode.TakeProfitSpreadPct.String(), c.Mode.EntryThresholdPct.String())
	}
	if !c.Mode.StopLossWideningPct.IsPositive() {
		return fmt.Errorf("config: MODE_STOP_LOSS_WIDENING_PCT must be > 0")
	}
	if c.Mode.TimeoutMinutes <= 0 {
		return fmt.Errorf("config: MODE_TIMEOUT_MINUTES must be > 0")
	}
	if c.Mode.USDSizePerPosition.IsZero() || c.Mode.USDSizePerPosition.IsNegative() {
		return fmt.Errorf("config: MODE_USD_SIZE_PER_POSITION must be > 0")
	}
	return nil
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

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	d, err := decimal.NewFromString(valueStr)
	if err != nil {
		d = decimal.MustFromString(defaultValue)
	}
	return d
}
