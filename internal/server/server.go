// Пакет server — HTTP-сервер Access Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/datavault/access-module/internal/api/handlers"
	"github.com/arturkryukov/datavault/access-module/internal/api/middleware"
	"github.com/arturkryukov/datavault/access-module/internal/config"
)

// Server — HTTP-сервер Access Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.Handler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints: health проверяется Kubernetes напрямую,
	// metrics забирает Prometheus без API Gateway.
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Чтение содержимого: аутентификация опциональна,
		// universal-файлы доступны анонимно.
		r.Group(func(r chi.Router) {
			if jwtAuth != nil {
				r.Use(jwtAuth.OptionalMiddleware())
			}
			r.Get("/files/{contentAddress}/content", handler.ReadContent)
		})

		// Остальные endpoints требуют JWT
		r.Group(func(r chi.Router) {
			if jwtAuth != nil {
				r.Use(jwtAuth.Middleware())
			}

			// Файловый реестр
			r.Post("/files", handler.RegisterFile)
			r.Get("/files", handler.ListMyFiles)
			r.Get("/files/{contentAddress}", handler.GetFile)
			r.Put("/files/{contentAddress}/visibility", handler.SetVisibility)
			r.Get("/files/{contentAddress}/grants", handler.ListFileGrants)

			// Гранты
			r.Post("/grants", handler.CreateGrant)
			r.Post("/grants/revoke", handler.RevokeGrant)
			r.Get("/grants/my", handler.ListMyGrants)

			// Запросы на доступ
			r.Post("/requests", handler.SubmitRequest)
			r.Get("/requests/incoming", handler.ListIncomingRequests)
			r.Get("/requests/outgoing", handler.ListOutgoingRequests)
			r.Get("/requests/{id}", handler.GetRequest)
			r.Post("/requests/{id}/accept", handler.AcceptRequest)
			r.Post("/requests/{id}/reject", handler.RejectRequest)
			r.Post("/requests/{id}/read", handler.MarkRequestRead)

			// Лента уведомлений
			r.Get("/notifications/feed", handler.Feed)
			r.Get("/notifications/unread-count", handler.UnreadCount)
			r.Get("/notifications/stream", handler.Stream)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		// WriteTimeout не задан: SSE-поток живёт дольше любого фиксированного таймаута
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
