package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

// FileRepository — интерфейс доступа к таблице file_registry.
// Таблица — локальное зеркало реестра ledger-а.
type FileRepository interface {
	// Upsert вставляет или обновляет запись файла.
	Upsert(ctx context.Context, f *model.FileRecord) error
	// GetByContentAddress возвращает файл по content-адресу.
	GetByContentAddress(ctx context.Context, contentAddress string) (*model.FileRecord, error)
	// ListByOwner возвращает файлы владельца, свежие первыми.
	ListByOwner(ctx context.Context, owner model.Address) ([]*model.FileRecord, error)
	// FindByOwnerAndDescriptor возвращает самый свежий файл владельца
	// с указанным descriptor-ом (имена не уникальны).
	FindByOwnerAndDescriptor(ctx context.Context, owner model.Address, descriptor string) (*model.FileRecord, error)
	// SetVisibility меняет видимость файла.
	SetVisibility(ctx context.Context, contentAddress, visibility string) error
	// ListOwners возвращает адреса всех владельцев файлов в зеркале.
	ListOwners(ctx context.Context) ([]model.Address, error)
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлового реестра.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Upsert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO file_registry (content_address, owner, descriptor, kind, visibility, encrypted_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_address) DO UPDATE SET
			owner = EXCLUDED.owner,
			descriptor = EXCLUDED.descriptor,
			kind = EXCLUDED.kind,
			visibility = EXCLUDED.visibility,
			encrypted_key = EXCLUDED.encrypted_key,
			updated_at = now()
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ContentAddress, f.Owner, f.Descriptor, f.Kind, f.Visibility, f.EncryptedKey,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByContentAddress(ctx context.Context, contentAddress string) (*model.FileRecord, error) {
	query := `
		SELECT content_address, owner, descriptor, kind, visibility, encrypted_key,
			created_at, updated_at
		FROM file_registry
		WHERE content_address = $1`

	f := &model.FileRecord{}
	err := r.db.QueryRow(ctx, query, contentAddress).Scan(
		&f.ContentAddress, &f.Owner, &f.Descriptor, &f.Kind, &f.Visibility,
		&f.EncryptedKey, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ListByOwner(ctx context.Context, owner model.Address) ([]*model.FileRecord, error) {
	query := `
		SELECT content_address, owner, descriptor, kind, visibility, encrypted_key,
			created_at, updated_at
		FROM file_registry
		WHERE owner = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f := &model.FileRecord{}
		if err := rows.Scan(
			&f.ContentAddress, &f.Owner, &f.Descriptor, &f.Kind, &f.Visibility,
			&f.EncryptedKey, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fileRepo) FindByOwnerAndDescriptor(ctx context.Context, owner model.Address, descriptor string) (*model.FileRecord, error) {
	query := `
		SELECT content_address, owner, descriptor, kind, visibility, encrypted_key,
			created_at, updated_at
		FROM file_registry
		WHERE owner = $1 AND descriptor = $2
		ORDER BY created_at DESC
		LIMIT 1`

	f := &model.FileRecord{}
	err := r.db.QueryRow(ctx, query, owner, descriptor).Scan(
		&f.ContentAddress, &f.Owner, &f.Descriptor, &f.Kind, &f.Visibility,
		&f.EncryptedKey, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска файла по имени: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ListOwners(ctx context.Context) ([]model.Address, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT owner FROM file_registry ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка владельцев: %w", err)
	}
	defer rows.Close()

	var result []model.Address
	for rows.Next() {
		var owner model.Address
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("ошибка сканирования владельца: %w", err)
		}
		result = append(result, owner)
	}
	return result, rows.Err()
}

func (r *fileRepo) SetVisibility(ctx context.Context, contentAddress, visibility string) error {
	query := `
		UPDATE file_registry
		SET visibility = $2, updated_at = now()
		WHERE content_address = $1`

	tag, err := r.db.Exec(ctx, query, contentAddress, visibility)
	if err != nil {
		return fmt.Errorf("ошибка смены видимости: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
