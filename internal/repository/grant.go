package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

// GrantRepository — интерфейс доступа к таблице grants.
// Таблица — локальное зеркало грантов ledger-а; авторитетен ledger,
// зеркало обновляется при каждой мутации и фоновой синхронизацией.
type GrantRepository interface {
	// Upsert вставляет или обновляет грант на пару (content_address, recipient).
	Upsert(ctx context.Context, g *model.Grant) error
	// Get возвращает грант на пару (content_address, recipient).
	Get(ctx context.Context, contentAddress string, recipient model.Address) (*model.Grant, error)
	// Delete удаляет грант на пару (content_address, recipient).
	Delete(ctx context.Context, contentAddress string, recipient model.Address) error
	// ListByFile возвращает все гранты на файл.
	ListByFile(ctx context.Context, contentAddress string) ([]*model.Grant, error)
	// ListByRecipient возвращает все гранты, выданные получателю.
	ListByRecipient(ctx context.Context, recipient model.Address) ([]*model.Grant, error)
	// ReplaceAllForGrantor атомарно заменяет все гранты владельца
	// набором из ledger-а (для фоновой синхронизации).
	ReplaceAllForGrantor(ctx context.Context, grantor model.Address, grants []*model.Grant) error
}

// grantRepo — реализация GrantRepository.
type grantRepo struct {
	db DBTX
}

// NewGrantRepository создаёт репозиторий грантов.
func NewGrantRepository(db DBTX) GrantRepository {
	return &grantRepo{db: db}
}

func (r *grantRepo) Upsert(ctx context.Context, g *model.Grant) error {
	query := `
		INSERT INTO grants (content_address, grantor, recipient, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_address, recipient) DO UPDATE SET
			grantor = EXCLUDED.grantor,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		g.ContentAddress, g.Grantor, g.Recipient, g.ExpiresAt,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert гранта: %w", err)
	}
	return nil
}

func (r *grantRepo) Get(ctx context.Context, contentAddress string, recipient model.Address) (*model.Grant, error) {
	query := `
		SELECT content_address, grantor, recipient, expires_at, created_at, updated_at
		FROM grants
		WHERE content_address = $1 AND recipient = $2`

	g := &model.Grant{}
	err := r.db.QueryRow(ctx, query, contentAddress, recipient).Scan(
		&g.ContentAddress, &g.Grantor, &g.Recipient, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения гранта: %w", err)
	}
	return g, nil
}

func (r *grantRepo) Delete(ctx context.Context, contentAddress string, recipient model.Address) error {
	query := `DELETE FROM grants WHERE content_address = $1 AND recipient = $2`

	tag, err := r.db.Exec(ctx, query, contentAddress, recipient)
	if err != nil {
		return fmt.Errorf("ошибка удаления гранта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *grantRepo) ListByFile(ctx context.Context, contentAddress string) ([]*model.Grant, error) {
	query := `
		SELECT content_address, grantor, recipient, expires_at, created_at, updated_at
		FROM grants
		WHERE content_address = $1
		ORDER BY created_at DESC`

	return r.queryGrants(ctx, query, contentAddress)
}

func (r *grantRepo) ListByRecipient(ctx context.Context, recipient model.Address) ([]*model.Grant, error) {
	query := `
		SELECT content_address, grantor, recipient, expires_at, created_at, updated_at
		FROM grants
		WHERE recipient = $1
		ORDER BY created_at DESC`

	return r.queryGrants(ctx, query, recipient)
}

func (r *grantRepo) queryGrants(ctx context.Context, query string, args ...any) ([]*model.Grant, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка грантов: %w", err)
	}
	defer rows.Close()

	var result []*model.Grant
	for rows.Next() {
		g := &model.Grant{}
		if err := rows.Scan(
			&g.ContentAddress, &g.Grantor, &g.Recipient, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования гранта: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// ReplaceAllForGrantor удаляет гранты владельца и вставляет набор из ledger-а.
// Вызывается внутри транзакции TxRunner-а.
func (r *grantRepo) ReplaceAllForGrantor(ctx context.Context, grantor model.Address, grants []*model.Grant) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM grants WHERE grantor = $1`, grantor); err != nil {
		return fmt.Errorf("ошибка очистки грантов владельца: %w", err)
	}

	for _, g := range grants {
		query := `
			INSERT INTO grants (content_address, grantor, recipient, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (content_address, recipient) DO UPDATE SET
				grantor = EXCLUDED.grantor,
				expires_at = EXCLUDED.expires_at,
				updated_at = now()`

		if _, err := r.db.Exec(ctx, query,
			g.ContentAddress, g.Grantor, g.Recipient, g.ExpiresAt,
		); err != nil {
			return fmt.Errorf("ошибка вставки гранта %s → %s: %w", g.ContentAddress, g.Recipient, err)
		}
	}
	return nil
}
