// Пакет repository — доступ к PostgreSQL: зеркало реестра (files, grants),
// журнал запросов (access_requests) и отметки синхронизации (sync_state).
// Чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX реализуется и *pgxpool.Pool, и pgx.Tx: один и тот же репозиторий
// работает как сам по себе, так и внутри транзакции TxRunner-а.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности; на журнале запросов это
	// duplicate suppression: повторный запрос той же тройки отклоняется.
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrNotPending — условный переход статуса не нашёл pending-запись.
	ErrNotPending = errors.New("запрос уже обработан")
)

// TxRunner выполняет набор операций репозиториев в одной транзакции.
// Используется синхронизацией зеркала: полная замена грантов grantor-а
// должна быть атомарной, иначе Evaluate увидит пустое зеркало.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner поверх пула.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn в транзакции: ошибка fn откатывает, успех коммитит.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isUniqueViolation распознаёт нарушение уникального индекса PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
