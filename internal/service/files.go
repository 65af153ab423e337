// files.go — сервис файлового реестра.
// Загрузка содержимого в content-хранилище, регистрация в ledger-е,
// смена видимости, списки файлов владельца.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/ledger"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// ContentAdder — загрузка содержимого в content-хранилище.
type ContentAdder interface {
	Add(ctx context.Context, filename string, r io.Reader) (string, error)
}

// FileService — сервис файлового реестра.
type FileService struct {
	fileRepo repository.FileRepository
	ledger   *ledger.Client
	adder    ContentAdder
	logger   *slog.Logger
}

// NewFileService создаёт сервис файлового реестра.
func NewFileService(
	fileRepo repository.FileRepository,
	ledgerClient *ledger.Client,
	adder ContentAdder,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		ledger:   ledgerClient,
		adder:    adder,
		logger:   logger.With(slog.String("component", "file_service")),
	}
}

// Register загружает содержимое в хранилище и регистрирует файл.
// encryptedKey — непрозрачный для сервиса зашифрованный ключ содержимого,
// хранится и отдаётся как есть.
func (s *FileService) Register(ctx context.Context, owner model.Address, descriptor, kind string, encryptedKey *string, content io.Reader) (*model.FileRecord, error) {
	contentAddress, err := s.adder.Add(ctx, descriptor, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	file, err := model.NewFileRecord(contentAddress, owner, descriptor, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	file.EncryptedKey = encryptedKey

	err = s.ledger.RegisterFile(ctx, &ledger.File{
		ContentAddress: file.ContentAddress,
		Owner:          string(file.Owner),
		Descriptor:     file.Descriptor,
		Kind:           file.Kind,
		Visibility:     file.Visibility,
		EncryptedKey:   file.EncryptedKey,
	})
	if err != nil {
		return nil, mapLedgerError(err)
	}

	if err := s.fileRepo.Upsert(ctx, file); err != nil {
		s.logger.Warn("Файл зарегистрирован в ledger-е, но не записан в зеркало",
			slog.String("content_address", contentAddress),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Файл зарегистрирован",
		slog.String("content_address", contentAddress),
		slog.String("owner", string(owner)),
		slog.String("descriptor", descriptor),
		slog.String("kind", kind),
	)
	return file, nil
}

// SetVisibility меняет видимость файла. Владение подтверждает ledger.
func (s *FileService) SetVisibility(ctx context.Context, caller model.Address, contentAddress, visibility string) error {
	if !model.ValidVisibility(visibility) {
		return fmt.Errorf("%w: недопустимая видимость %q", ErrValidation, visibility)
	}

	if err := s.ledger.SetVisibility(ctx, contentAddress, string(caller), visibility); err != nil {
		return mapLedgerError(err)
	}

	if err := s.fileRepo.SetVisibility(ctx, contentAddress, visibility); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Видимость изменена в ledger-е, но не в зеркале",
			slog.String("content_address", contentAddress),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Видимость файла изменена",
		slog.String("content_address", contentAddress),
		slog.String("visibility", visibility),
	)
	return nil
}

// Get возвращает запись файла по content-адресу.
func (s *FileService) Get(ctx context.Context, contentAddress string) (*model.FileRecord, error) {
	file, err := s.fileRepo.GetByContentAddress(ctx, contentAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение файла: %w", err)
	}
	return file, nil
}

// ListByOwner возвращает файлы владельца, свежие первыми.
func (s *FileService) ListByOwner(ctx context.Context, owner model.Address) ([]*model.FileRecord, error) {
	files, err := s.fileRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("получение файлов владельца: %w", err)
	}
	return files, nil
}
