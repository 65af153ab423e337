// Пакет config — загрузка и валидация конфигурации Access Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Access Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Ledger (RPC-шлюз смарт-контракта) ---

	// URL RPC-шлюза ledger
	LedgerURL string
	// Сервисный токен для запросов к шлюзу (опционально)
	LedgerToken string
	// Путь к CA-сертификату для TLS-соединений со шлюзом (опционально)
	LedgerCACertPath string
	// Таймаут HTTP-запросов к шлюзу
	LedgerTimeout time.Duration

	// --- Content-addressed storage gateway ---

	// URL шлюза content-addressed хранилища (pinning service)
	GatewayURL string
	// Токен шлюза (опционально)
	GatewayToken string

	// --- JWT ---

	// URL JWKS endpoint auth-шлюза
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пустая строка — не проверять)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration

	// --- Гранты ---

	// TTL гранта, выдаваемого при принятии запроса
	DefaultGrantTTL time.Duration
	// Интервал фоновой синхронизации зеркала грантов с ledger
	GrantSyncInterval time.Duration
	// Размер страницы при постраничной синхронизации
	SyncPageSize int

	// --- Лента уведомлений ---

	// Максимальный размер кэша resolve имён отправителей
	SenderCacheSize int
	// TTL записи кэша имён отправителей
	SenderCacheTTL time.Duration
	// Интервал heartbeat для SSE-подписчиков
	SSEHeartbeat time.Duration

	// --- topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:cyclop,funlen // последовательная загрузка параметров
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// ACM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("ACM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("ACM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("ACM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// ACM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("ACM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("ACM_LOG_LEVEL: %w", err)
	}

	// ACM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("ACM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("ACM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// ACM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("ACM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// ACM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("ACM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("ACM_DB_PORT: %w", err)
	}

	// ACM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("ACM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// ACM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("ACM_DB_USER")
	if err != nil {
		return nil, err
	}

	// ACM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("ACM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// ACM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("ACM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("ACM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Ledger ---

	// ACM_LEDGER_URL — обязательный
	cfg.LedgerURL, err = getEnvRequired("ACM_LEDGER_URL")
	if err != nil {
		return nil, err
	}
	cfg.LedgerURL = strings.TrimRight(cfg.LedgerURL, "/")

	// ACM_LEDGER_TOKEN — сервисный токен шлюза (опционально)
	cfg.LedgerToken = getEnvDefault("ACM_LEDGER_TOKEN", "")

	// ACM_LEDGER_CA_CERT_PATH — CA-сертификат шлюза (опционально)
	cfg.LedgerCACertPath = getEnvDefault("ACM_LEDGER_CA_CERT_PATH", "")

	// ACM_LEDGER_TIMEOUT — таймаут запросов к шлюзу (по умолчанию 30s)
	cfg.LedgerTimeout, err = getEnvDuration("ACM_LEDGER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ACM_LEDGER_TIMEOUT: %w", err)
	}

	// --- Gateway ---

	// ACM_GATEWAY_URL — шлюз content-addressed хранилища
	cfg.GatewayURL = strings.TrimRight(getEnvDefault("ACM_GATEWAY_URL", "https://gateway.pinata.cloud"), "/")

	// ACM_GATEWAY_TOKEN — токен шлюза (опционально)
	cfg.GatewayToken = getEnvDefault("ACM_GATEWAY_TOKEN", "")

	// --- JWT ---

	// ACM_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("ACM_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// ACM_JWT_ISSUER — ожидаемый issuer (опционально)
	cfg.JWTIssuer = getEnvDefault("ACM_JWT_ISSUER", "")

	// ACM_JWT_LEEWAY — отклонение времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("ACM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ACM_JWT_LEEWAY: %w", err)
	}

	// ACM_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("ACM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("ACM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// ACM_JWKS_CLIENT_TIMEOUT — таймаут клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("ACM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ACM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Гранты ---

	// ACM_DEFAULT_GRANT_TTL — TTL гранта при принятии запроса (по умолчанию 720h)
	cfg.DefaultGrantTTL, err = getEnvDuration("ACM_DEFAULT_GRANT_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("ACM_DEFAULT_GRANT_TTL: %w", err)
	}
	if cfg.DefaultGrantTTL <= 0 {
		return nil, fmt.Errorf("ACM_DEFAULT_GRANT_TTL: значение должно быть положительным")
	}

	// ACM_GRANT_SYNC_INTERVAL — интервал синхронизации зеркала грантов (по умолчанию 15m)
	cfg.GrantSyncInterval, err = getEnvDuration("ACM_GRANT_SYNC_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("ACM_GRANT_SYNC_INTERVAL: %w", err)
	}

	// ACM_SYNC_PAGE_SIZE — размер страницы синхронизации (по умолчанию 1000)
	cfg.SyncPageSize, err = getEnvInt("ACM_SYNC_PAGE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("ACM_SYNC_PAGE_SIZE: %w", err)
	}
	if cfg.SyncPageSize < 1 || cfg.SyncPageSize > 10000 {
		return nil, fmt.Errorf("ACM_SYNC_PAGE_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.SyncPageSize)
	}

	// --- Лента уведомлений ---

	// ACM_SENDER_CACHE_SIZE — размер кэша имён отправителей (по умолчанию 1024)
	cfg.SenderCacheSize, err = getEnvInt("ACM_SENDER_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("ACM_SENDER_CACHE_SIZE: %w", err)
	}
	if cfg.SenderCacheSize < 1 {
		return nil, fmt.Errorf("ACM_SENDER_CACHE_SIZE: значение должно быть положительным")
	}

	// ACM_SENDER_CACHE_TTL — TTL записи кэша (по умолчанию 10m)
	cfg.SenderCacheTTL, err = getEnvDuration("ACM_SENDER_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("ACM_SENDER_CACHE_TTL: %w", err)
	}

	// ACM_SSE_HEARTBEAT — интервал heartbeat SSE (по умолчанию 30s)
	cfg.SSEHeartbeat, err = getEnvDuration("ACM_SSE_HEARTBEAT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ACM_SSE_HEARTBEAT: %w", err)
	}

	// --- topologymetrics ---

	// ACM_DEPHEALTH_GROUP — группа в метриках (по умолчанию datavault)
	cfg.DephealthGroup = getEnvDefault("ACM_DEPHEALTH_GROUP", "datavault")

	// ACM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("ACM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ACM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// ACM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("ACM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ACM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для лейблов topologymetrics, не для подключения).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
