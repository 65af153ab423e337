// notifications.go — обработчики /api/v1/notifications endpoints.
// Лента запросов владельца, счётчик непрочитанных и SSE-поток
// live-событий. Каждый SSE-клиент обслуживается в своей горутине.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/arturkryukov/datavault/access-module/internal/api/errors"
	"github.com/arturkryukov/datavault/access-module/internal/api/middleware"
)

// feedItemResponse — запись ленты: запрос плюс имя отправителя.
type feedItemResponse struct {
	requestResponse
	SenderName string `json:"sender_name,omitempty"`
}

// Feed — GET /api/v1/notifications/feed.
// Лента запросов вызывающего как владельца, свежие первыми.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	list, err := h.notifications.Feed(r.Context(), owner)
	if err != nil {
		h.writeServiceError(w, "notifications_feed", err)
		return
	}

	items := make([]feedItemResponse, len(list))
	for i, item := range list {
		items[i] = feedItemResponse{
			requestResponse: mapRequest(item.Request),
			SenderName:      item.SenderName,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// UnreadCount — GET /api/v1/notifications/unread-count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	count, err := h.notifications.UnreadCount(r.Context(), owner)
	if err != nil {
		h.writeServiceError(w, "unread_count", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// Stream — GET /api/v1/notifications/stream — SSE endpoint.
// Отправляет клиенту события ленты по мере их публикации.
// Формат: event: {kind}\ndata: {json}\n\n; между событиями —
// keep-alive комментарии с интервалом ACM_SSE_HEARTBEAT.
// Graceful disconnect при закрытии клиентом соединения (context cancel).
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// Используем http.ResponseController для корректной работы Flush()
	// через обёрнутые ResponseWriter (logging middleware и др.).
	// ResponseController вызывает Unwrap() и находит оригинальный http.Flusher.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	events, unsubscribe := h.notifications.Subscribe(owner)
	defer unsubscribe()

	h.logger.Debug("SSE клиент подключён",
		slog.String("owner", string(owner)),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ticker := time.NewTicker(h.sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Клиент отключился
			h.logger.Debug("SSE клиент отключён",
				slog.String("owner", string(owner)),
			)
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Ошибка сериализации события ленты",
					slog.String("error", err.Error()),
				)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			_ = rc.Flush()

		case <-ticker.C:
			// Keep-alive комментарий, чтобы прокси не закрывали соединение
			fmt.Fprint(w, ": heartbeat\n\n")
			_ = rc.Flush()
		}
	}
}
