// Точка входа Access Module — модуль грантов и запросов на доступ DataVault.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиенты ledger-а и content-хранилища, сервисный слой и API handlers,
// запускает фоновые задачи (синхронизация зеркала грантов, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/datavault/access-module/internal/api/handlers"
	"github.com/arturkryukov/datavault/access-module/internal/api/middleware"
	"github.com/arturkryukov/datavault/access-module/internal/config"
	"github.com/arturkryukov/datavault/access-module/internal/database"
	"github.com/arturkryukov/datavault/access-module/internal/events"
	"github.com/arturkryukov/datavault/access-module/internal/gateway"
	"github.com/arturkryukov/datavault/access-module/internal/ledger"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
	"github.com/arturkryukov/datavault/access-module/internal/server"
	"github.com/arturkryukov/datavault/access-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Access Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("ACM_DEPHEALTH_GROUP") == "" {
		logger.Warn("ACM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент ledger-а (RPC-шлюз смарт-контракта)
	ledgerClient, err := ledger.New(
		cfg.LedgerURL,
		cfg.LedgerToken,
		cfg.LedgerCACertPath,
		cfg.LedgerTimeout,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания ledger-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Ledger-клиент создан", slog.String("url", cfg.LedgerURL))

	// 6. Клиент content-addressed хранилища
	gatewayClient := gateway.New(cfg.GatewayURL, cfg.GatewayToken, logger)
	logger.Info("Gateway-клиент создан", slog.String("url", cfg.GatewayURL))

	// 7. Repositories
	fileRepo := repository.NewFileRepository(pool)
	grantRepo := repository.NewGrantRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	syncStateRepo := repository.NewSyncStateRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 8. Шина событий ленты
	bus := events.NewBus(logger)

	// 9. Services
	notificationsSvc := service.NewNotificationService(
		requestRepo, bus,
		ledgerClient, // резолв имён отправителей
		cfg.SenderCacheSize, cfg.SenderCacheTTL,
		logger,
	)
	accessSvc := service.NewAccessService(
		fileRepo, grantRepo, ledgerClient, gatewayClient,
		logger,
	)
	filesSvc := service.NewFileService(
		fileRepo, ledgerClient, gatewayClient,
		logger,
	)
	grantsSvc := service.NewGrantService(
		fileRepo, grantRepo, ledgerClient,
		logger,
	)
	requestsSvc := service.NewRequestService(
		requestRepo, fileRepo,
		grantsSvc,        // выдача гранта при принятии запроса
		notificationsSvc, // события ленты владельца
		cfg.DefaultGrantTTL,
		logger,
	)

	// 10. Фоновая синхронизация зеркала грантов
	grantSyncSvc := service.NewGrantSyncService(
		ledgerClient, fileRepo, txRunner, syncStateRepo,
		cfg.SyncPageSize, cfg.GrantSyncInterval,
		logger,
	)

	// 11. Readiness checkers (PostgreSQL + ledger + auth-шлюз)
	pgChecker := database.NewReadinessChecker(pool)
	ledgerChecker := handlers.NewLedgerReadinessChecker(ledgerClient)
	authChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, "", cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, ledgerChecker, authChecker)

	// 12. API handler
	apiHandler := handlers.New(
		healthHandler,
		accessSvc,
		filesSvc,
		grantsSvc,
		requestsSvc,
		notificationsSvc,
		cfg.SSEHeartbeat,
		logger,
	)

	// 13. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		"",
		cfg.JWTIssuer,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 14. Запуск фоновых задач
	grantSyncSvc.Start(ctx)

	// 14.1 topologymetrics — мониторинг зависимостей (PostgreSQL + ledger + JWKS)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"access-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.LedgerURL,
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 15. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 16. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	grantSyncSvc.Stop()

	logger.Info("Access Module остановлен")
}
