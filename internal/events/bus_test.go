package events

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

const testOwner = model.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func testBus() *Bus {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewBus(logger)
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := testBus()

	ch, unsubscribe := bus.Subscribe(testOwner)
	defer unsubscribe()

	bus.Publish(testOwner, Event{Kind: KindRequestCreated, RequestID: "req-1"})

	select {
	case ev := <-ch:
		if ev.Kind != KindRequestCreated || ev.RequestID != "req-1" {
			t.Errorf("получено %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestBusOwnerIsolation(t *testing.T) {
	bus := testBus()
	other := model.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	ch, unsubscribe := bus.Subscribe(testOwner)
	defer unsubscribe()

	// Событие чужой ленты не приходит
	bus.Publish(other, Event{Kind: KindRequestCreated, RequestID: "req-x"})

	select {
	case ev := <-ch:
		t.Errorf("получено чужое событие: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := testBus()

	ch, unsubscribe := bus.Subscribe(testOwner)
	if got := bus.SubscriberCount(testOwner); got != 1 {
		t.Errorf("SubscriberCount = %d, хотели 1", got)
	}

	unsubscribe()
	if got := bus.SubscriberCount(testOwner); got != 0 {
		t.Errorf("после отписки SubscriberCount = %d, хотели 0", got)
	}

	// Канал закрыт
	if _, ok := <-ch; ok {
		t.Error("канал не закрыт после отписки")
	}

	// Повторная отписка — no-op
	unsubscribe()

	// Публикация без подписчиков не паникует
	bus.Publish(testOwner, Event{Kind: KindRequestCreated, RequestID: "req-1"})
}

func TestBusSlowSubscriberKeepsFreshest(t *testing.T) {
	bus := testBus()

	ch, unsubscribe := bus.Subscribe(testOwner)
	defer unsubscribe()

	// Переполняем буфер, не читая: Publish не должен блокировать
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(testOwner, Event{Kind: KindRequestCreated, RequestID: "old"})
		}
		bus.Publish(testOwner, Event{Kind: KindRequestResolved, RequestID: "freshest"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish заблокировался на медленном подписчике")
	}

	// Самое свежее событие дошло (старые могли быть вытеснены)
	var last Event
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last.RequestID != "freshest" {
		t.Errorf("последнее событие %+v, хотели freshest", last)
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := testBus()

	ch1, unsub1 := bus.Subscribe(testOwner)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(testOwner)
	defer unsub2()

	bus.Publish(testOwner, Event{Kind: KindRequestRead, RequestID: "req-7"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.RequestID != "req-7" {
				t.Errorf("подписчик %d получил %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("подписчик %d не получил событие", i)
		}
	}
}
