package repository

import (
	"context"
	"fmt"
	"time"
)

// SyncStateRepository — состояние фоновой синхронизации зеркала грантов.
// В таблице sync_state ровно одна строка.
type SyncStateRepository interface {
	// Get возвращает время последней успешной синхронизации (nil — не было)
	// и текст последней ошибки (пустая строка — ошибки не было).
	Get(ctx context.Context) (lastSyncedAt *time.Time, lastError string, err error)
	// SetSynced фиксирует успешную синхронизацию.
	SetSynced(ctx context.Context, at time.Time) error
	// SetError фиксирует ошибку синхронизации, не трогая last_synced_at.
	SetError(ctx context.Context, message string) error
}

type syncStateRepo struct {
	db DBTX
}

// NewSyncStateRepository создаёт репозиторий состояния синхронизации.
func NewSyncStateRepository(db DBTX) SyncStateRepository {
	return &syncStateRepo{db: db}
}

func (r *syncStateRepo) Get(ctx context.Context) (*time.Time, string, error) {
	var lastSyncedAt *time.Time
	var lastError *string

	err := r.db.QueryRow(ctx,
		`SELECT last_synced_at, last_error FROM sync_state WHERE id = 1`,
	).Scan(&lastSyncedAt, &lastError)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка чтения состояния синхронизации: %w", err)
	}

	msg := ""
	if lastError != nil {
		msg = *lastError
	}
	return lastSyncedAt, msg, nil
}

func (r *syncStateRepo) SetSynced(ctx context.Context, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sync_state SET last_synced_at = $1, last_error = NULL WHERE id = 1`, at)
	if err != nil {
		return fmt.Errorf("ошибка записи состояния синхронизации: %w", err)
	}
	return nil
}

func (r *syncStateRepo) SetError(ctx context.Context, message string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sync_state SET last_error = $1 WHERE id = 1`, message)
	if err != nil {
		return fmt.Errorf("ошибка записи ошибки синхронизации: %w", err)
	}
	return nil
}
