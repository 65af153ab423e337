// handler.go — основной обработчик API Access Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/datavault/access-module/internal/api/errors"
	"github.com/arturkryukov/datavault/access-module/internal/service"
)

// Handler — основной обработчик API Access Module.
type Handler struct {
	health        *HealthHandler
	access        *service.AccessService
	files         *service.FileService
	grants        *service.GrantService
	requests      *service.RequestService
	notifications *service.NotificationService
	sseHeartbeat  time.Duration
	logger        *slog.Logger
}

// New создаёт основной обработчик API.
// sseHeartbeat — интервал keep-alive комментариев SSE (ACM_SSE_HEARTBEAT).
func New(
	health *HealthHandler,
	access *service.AccessService,
	files *service.FileService,
	grants *service.GrantService,
	requests *service.RequestService,
	notifications *service.NotificationService,
	sseHeartbeat time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		health:        health,
		access:        access,
		files:         files,
		grants:        grants,
		requests:      requests,
		notifications: notifications,
		sseHeartbeat:  sseHeartbeat,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError мапит сервисную ошибку на HTTP-ответ.
// Непредвиденные ошибки логируются и скрываются за INTERNAL_ERROR.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrSelfTarget):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidExpiry):
		apierrors.InvalidExpiry(w, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		apierrors.NotOwner(w, err.Error())
	case errors.Is(err, service.ErrNotPending):
		apierrors.NotPending(w, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		apierrors.DuplicateRequest(w, err.Error())
	case errors.Is(err, service.ErrNoSuchGrant):
		apierrors.NoSuchGrant(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrLedgerUnavailable):
		apierrors.LedgerUnavailable(w, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		apierrors.StorageUnavailable(w, err.Error())
	default:
		h.logger.Error("Необработанная ошибка сервиса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
