package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

// RequestRepository — интерфейс доступа к таблице access_requests.
// Это авторитетное хранилище workflow-а запросов на доступ.
type RequestRepository interface {
	// Create создаёт новый запрос. При существующем запросе с той же
	// тройкой (requester, owner, file_name) возвращает ErrConflict.
	Create(ctx context.Context, req *model.AccessRequest) error
	// GetByID возвращает запрос по UUID.
	GetByID(ctx context.Context, id string) (*model.AccessRequest, error)
	// Respond переводит pending-запрос в терминальный статус и помечает
	// его прочитанным: владелец, ответивший на запрос, его видел.
	// Условный UPDATE служит точкой сериализации: из двух конкурентных
	// ответов выигрывает ровно один, второй получает ErrNotPending.
	Respond(ctx context.Context, id string, owner model.Address, status string, respondedAt time.Time) (*model.AccessRequest, error)
	// ListByOwner возвращает запросы к владельцу, свежие первыми.
	ListByOwner(ctx context.Context, owner model.Address) ([]*model.AccessRequest, error)
	// ListByRequester возвращает запросы, поданные requester-ом.
	ListByRequester(ctx context.Context, requester model.Address) ([]*model.AccessRequest, error)
	// MarkRead помечает запрос прочитанным владельцем.
	MarkRead(ctx context.Context, id string, owner model.Address) error
	// CountUnread возвращает число непрочитанных запросов владельца.
	CountUnread(ctx context.Context, owner model.Address) (int, error)
}

// requestRepo — реализация RequestRepository.
type requestRepo struct {
	db DBTX
}

// NewRequestRepository создаёт репозиторий запросов на доступ.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepo{db: db}
}

const requestColumns = `id, requester, owner, file_name, purpose, duration, status, read, created_at, responded_at`

func scanRequest(row pgx.Row) (*model.AccessRequest, error) {
	req := &model.AccessRequest{}
	err := row.Scan(
		&req.ID, &req.Requester, &req.Owner, &req.FileName, &req.Purpose,
		&req.Duration, &req.Status, &req.Read, &req.CreatedAt, &req.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepo) Create(ctx context.Context, req *model.AccessRequest) error {
	query := `
		INSERT INTO access_requests (id, requester, owner, file_name, purpose, duration, status, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		req.ID, req.Requester, req.Owner, req.FileName, req.Purpose,
		req.Duration, req.Status, req.Read,
	).Scan(&req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запрос на этот файл уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM access_requests WHERE id = $1`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения запроса: %w", err)
	}
	return req, nil
}

func (r *requestRepo) Respond(ctx context.Context, id string, owner model.Address, status string, respondedAt time.Time) (*model.AccessRequest, error) {
	query := fmt.Sprintf(`
		UPDATE access_requests
		SET status = $3, responded_at = $4, read = TRUE
		WHERE id = $1 AND owner = $2 AND status = 'pending'
		RETURNING %s`, requestColumns)

	req, err := scanRequest(r.db.QueryRow(ctx, query, id, owner, status, respondedAt))
	if err == nil {
		return req, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("ошибка обновления запроса: %w", err)
	}

	// Ноль строк: различаем отсутствие записи и уже обработанный запрос.
	var existingStatus string
	err = r.db.QueryRow(ctx,
		`SELECT status FROM access_requests WHERE id = $1 AND owner = $2`, id, owner,
	).Scan(&existingStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка проверки статуса запроса: %w", err)
	}
	return nil, fmt.Errorf("%w: текущий статус %q", ErrNotPending, existingStatus)
}

func (r *requestRepo) ListByOwner(ctx context.Context, owner model.Address) ([]*model.AccessRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM access_requests
		WHERE owner = $1
		ORDER BY created_at DESC`, requestColumns)

	return r.queryRequests(ctx, query, owner)
}

func (r *requestRepo) ListByRequester(ctx context.Context, requester model.Address) ([]*model.AccessRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM access_requests
		WHERE requester = $1
		ORDER BY created_at DESC`, requestColumns)

	return r.queryRequests(ctx, query, requester)
}

func (r *requestRepo) queryRequests(ctx context.Context, query string, args ...any) ([]*model.AccessRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка запросов: %w", err)
	}
	defer rows.Close()

	var result []*model.AccessRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (r *requestRepo) MarkRead(ctx context.Context, id string, owner model.Address) error {
	query := `
		UPDATE access_requests
		SET read = TRUE
		WHERE id = $1 AND owner = $2`

	tag, err := r.db.Exec(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("ошибка пометки запроса прочитанным: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepo) CountUnread(ctx context.Context, owner model.Address) (int, error) {
	query := `
		SELECT COUNT(*) FROM access_requests
		WHERE owner = $1 AND read = FALSE`

	var count int
	if err := r.db.QueryRow(ctx, query, owner).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта непрочитанных: %w", err)
	}
	return count, nil
}
