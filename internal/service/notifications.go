// notifications.go — проекция ленты уведомлений владельца.
// Лента читается из авторитетного хранилища запросов; счётчик
// непрочитанных кэшируется в LRU с TTL и инвалидируется событиями.
// Все события проходят через Notify, поэтому кэш не переживает
// изменения ленты на этом узле.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/events"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// Prometheus-метрики кэша непрочитанных.
var (
	unreadCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acm_unread_cache_hits_total",
		Help: "Общее количество попаданий в кэш счётчика непрочитанных.",
	})
	unreadCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acm_unread_cache_misses_total",
		Help: "Общее количество промахов кэша счётчика непрочитанных.",
	})
	feedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acm_feed_events_total",
		Help: "Количество опубликованных событий ленты.",
	}, []string{"kind"})
)

// NameResolver резолвит адрес в отображаемое имя (внешний реестр имён).
type NameResolver interface {
	ResolveName(ctx context.Context, address string) (string, error)
}

// FeedItem — запись ленты: запрос плюс отображаемое имя отправителя.
// SenderName пуст, если имя не зарегистрировано или резолв не удался.
type FeedItem struct {
	Request    *model.AccessRequest
	SenderName string
}

// NotificationService — проекция ленты запросов владельца.
type NotificationService struct {
	requestRepo repository.RequestRepository
	bus         *events.Bus
	resolver    NameResolver
	senderCache *expirable.LRU[model.Address, string]
	unreadCache *expirable.LRU[model.Address, int]
	logger      *slog.Logger
}

// NewNotificationService создаёт сервис ленты уведомлений.
// cacheSize и cacheTTL — параметры кэша имён отправителей
// (ACM_SENDER_CACHE_SIZE, ACM_SENDER_CACHE_TTL); кэш счётчика
// непрочитанных использует те же параметры.
func NewNotificationService(
	requestRepo repository.RequestRepository,
	bus *events.Bus,
	resolver NameResolver,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		requestRepo: requestRepo,
		bus:         bus,
		resolver:    resolver,
		senderCache: expirable.NewLRU[model.Address, string](cacheSize, nil, cacheTTL),
		unreadCache: expirable.NewLRU[model.Address, int](cacheSize, nil, cacheTTL),
		logger:      logger.With(slog.String("component", "notification_service")),
	}
}

// Notify публикует событие ленты и инвалидирует кэш владельца.
// Реализует интерфейс Notifier.
func (s *NotificationService) Notify(owner model.Address, ev events.Event) {
	s.unreadCache.Remove(owner)
	s.bus.Publish(owner, ev)
	feedEventsTotal.WithLabelValues(ev.Kind).Inc()
}

// Subscribe подписывает на live-события ленты owner-а.
func (s *NotificationService) Subscribe(owner model.Address) (<-chan events.Event, func()) {
	return s.bus.Subscribe(owner)
}

// Feed возвращает ленту запросов владельца, свежие первыми.
// Каждая запись аннотируется отображаемым именем отправителя; повторные
// адреса внутри одной проекции резолвятся один раз через кэш.
func (s *NotificationService) Feed(ctx context.Context, owner model.Address) ([]FeedItem, error) {
	list, err := s.requestRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("чтение ленты: %w", err)
	}

	items := make([]FeedItem, len(list))
	for i, req := range list {
		items[i] = FeedItem{
			Request:    req,
			SenderName: s.resolveSender(ctx, req.Requester),
		}
	}
	return items, nil
}

// resolveSender резолвит имя отправителя с кэшированием.
// Ошибка резолва не роняет проекцию: лента важнее имени.
func (s *NotificationService) resolveSender(ctx context.Context, sender model.Address) string {
	if name, ok := s.senderCache.Get(sender); ok {
		return name
	}

	name, err := s.resolver.ResolveName(ctx, string(sender))
	if err != nil {
		s.logger.Warn("Не удалось зарезолвить имя отправителя",
			slog.String("sender", string(sender)),
			slog.String("error", err.Error()),
		)
		return ""
	}

	s.senderCache.Add(sender, name)
	return name
}

// MarkRead помечает запрос прочитанным. Флаг независим от статуса:
// прочитать можно и pending, и уже обработанный запрос.
func (s *NotificationService) MarkRead(ctx context.Context, owner model.Address, requestID string) error {
	if err := s.requestRepo.MarkRead(ctx, requestID, owner); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("пометка прочитанным: %w", err)
	}

	s.Notify(owner, events.Event{Kind: events.KindRequestRead, RequestID: requestID})

	s.logger.Debug("Запрос помечен прочитанным",
		slog.String("request_id", requestID),
		slog.String("owner", string(owner)),
	)
	return nil
}

// UnreadCount возвращает число непрочитанных запросов владельца.
// Значение кэшируется до первого события ленты или истечения TTL.
func (s *NotificationService) UnreadCount(ctx context.Context, owner model.Address) (int, error) {
	if count, ok := s.unreadCache.Get(owner); ok {
		unreadCacheHitsTotal.Inc()
		return count, nil
	}
	unreadCacheMissesTotal.Inc()

	count, err := s.requestRepo.CountUnread(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("подсчёт непрочитанных: %w", err)
	}
	s.unreadCache.Add(owner, count)
	return count, nil
}
