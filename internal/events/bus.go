// Пакет events — внутрипроцессная шина событий для live-ленты запросов.
// Публикация никогда не блокирует: медленный подписчик теряет старые
// события, но всегда получает самое свежее и перечитывает состояние из БД.
package events

import (
	"log/slog"
	"sync"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

// Виды событий ленты.
const (
	// KindRequestCreated — поступил новый запрос на доступ.
	KindRequestCreated = "request_created"
	// KindRequestResolved — запрос принят или отклонён.
	KindRequestResolved = "request_resolved"
	// KindRequestRead — запрос помечен прочитанным.
	KindRequestRead = "request_read"
)

// Event — событие изменения ленты владельца.
type Event struct {
	Kind      string `json:"kind"`
	RequestID string `json:"request_id"`
}

// subscriber — буферизованный канал подписчика.
type subscriber struct {
	ch chan Event
}

// Bus — шина событий, раздаёт события по адресу владельца ленты.
type Bus struct {
	mu     sync.RWMutex
	subs   map[model.Address]map[*subscriber]struct{}
	logger *slog.Logger
}

// NewBus создаёт шину событий.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[model.Address]map[*subscriber]struct{}),
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Subscribe подписывает на события ленты owner-а.
// Возвращает канал событий и функцию отписки; отписка закрывает канал.
func (b *Bus) Subscribe(owner model.Address) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 16)}

	b.mu.Lock()
	if b.subs[owner] == nil {
		b.subs[owner] = make(map[*subscriber]struct{})
	}
	b.subs[owner][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[owner], sub)
			if len(b.subs[owner]) == 0 {
				delete(b.subs, owner)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Publish рассылает событие подписчикам ленты owner-а.
// При переполненном буфере вытесняется самое старое событие:
// подписчик всегда видит самое свежее.
func (b *Bus) Publish(owner model.Address, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[owner] {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				b.logger.Debug("Событие отброшено: подписчик не успевает",
					slog.String("owner", string(owner)),
					slog.String("kind", ev.Kind),
				)
			}
		}
	}
}

// SubscriberCount возвращает число активных подписчиков ленты owner-а.
func (b *Bus) SubscriberCount(owner model.Address) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[owner])
}
