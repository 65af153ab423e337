package model

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки валидации гранта.
var (
	// ErrGrantSelf — грант адресован самому владельцу.
	ErrGrantSelf = errors.New("владелец не может выдать грант самому себе")
	// ErrGrantExpiryNotFuture — срок истечения не в будущем.
	ErrGrantExpiryNotFuture = errors.New("expires_at должен быть строго больше текущего времени")
)

// Grant — ограниченная по времени возможность чтения одного файла
// одним получателем. Authoritative-источник — ledger; таблица grants —
// локальное зеркало. На пару (content_address, recipient) существует
// не более одного активного гранта: повторная выдача заменяет срок.
type Grant struct {
	// ContentAddress — ссылка на FileRecord
	ContentAddress string
	// Grantor — владелец файла на момент выдачи
	Grantor Address
	// Recipient — адрес, которому разрешено чтение
	Recipient Address
	// ExpiresAt — абсолютное время истечения (строго больше момента выдачи)
	ExpiresAt time.Time
	// CreatedAt — время создания записи зеркала
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления (replace-выдача)
	UpdatedAt time.Time
}

// NewGrant создаёт валидный грант.
// now передаётся явно: проверка expiry выполняется до сетевого вызова
// и должна быть детерминированной в тестах.
func NewGrant(contentAddress string, grantor, recipient Address, expiresAt, now time.Time) (*Grant, error) {
	if contentAddress == "" {
		return nil, fmt.Errorf("content_address обязателен")
	}
	if grantor == "" || recipient == "" {
		return nil, fmt.Errorf("grantor и recipient обязательны")
	}
	if grantor == recipient {
		return nil, ErrGrantSelf
	}
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: %s", ErrGrantExpiryNotFuture, expiresAt.UTC().Format(time.RFC3339))
	}
	return &Grant{
		ContentAddress: contentAddress,
		Grantor:        grantor,
		Recipient:      recipient,
		ExpiresAt:      expiresAt.UTC(),
	}, nil
}
