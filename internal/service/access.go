// access.go — сервис оценки и выдачи доступа к содержимому файлов.
// Решение принимается локально по зеркалу реестра (чистый Evaluate),
// содержимое отдаётся из content-хранилища только после положительного
// вердикта.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/datavault/access-module/internal/domain/access"
	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/gateway"
	"github.com/arturkryukov/datavault/access-module/internal/ledger"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// ContentFetcher — чтение содержимого по content-адресу.
type ContentFetcher interface {
	Fetch(ctx context.Context, contentAddress string) (*gateway.Content, error)
}

// AccessService — сервис оценки доступа.
type AccessService struct {
	fileRepo  repository.FileRepository
	grantRepo repository.GrantRepository
	ledger    *ledger.Client
	fetcher   ContentFetcher
	now       func() time.Time
	logger    *slog.Logger
}

// NewAccessService создаёт сервис оценки доступа.
func NewAccessService(
	fileRepo repository.FileRepository,
	grantRepo repository.GrantRepository,
	ledgerClient *ledger.Client,
	fetcher ContentFetcher,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		fileRepo:  fileRepo,
		grantRepo: grantRepo,
		ledger:    ledgerClient,
		fetcher:   fetcher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "access_service")),
	}
}

// Evaluate возвращает вердикт по доступу requester-а к файлу.
// Файл берётся из зеркала; при промахе — из ledger-а с дозаписью в зеркало.
func (s *AccessService) Evaluate(ctx context.Context, contentAddress string, requester model.Address) (*model.FileRecord, model.AccessDecision, error) {
	file, err := s.getFile(ctx, contentAddress)
	if err != nil {
		return nil, model.AccessDecision{}, err
	}

	var grants []*model.Grant
	if requester != "" && requester != file.Owner {
		g, err := s.grantRepo.Get(ctx, contentAddress, requester)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, model.AccessDecision{}, fmt.Errorf("получение гранта: %w", err)
		}
		if g != nil {
			grants = []*model.Grant{g}
		}
	}

	decision := access.Evaluate(file, grants, requester, s.now())

	s.logger.Debug("Доступ оценён",
		slog.String("content_address", contentAddress),
		slog.String("requester", string(requester)),
		slog.String("decision", string(decision.Kind)),
	)
	return file, decision, nil
}

// ReadFile отдаёт содержимое файла после проверки доступа.
// Отрицательный вердикт возвращается вместе с ErrAccessDenied: вызывающий
// различает истёкший и не выданный доступ по Kind вердикта.
func (s *AccessService) ReadFile(ctx context.Context, contentAddress string, requester model.Address) (*model.FileRecord, model.AccessDecision, *gateway.Content, error) {
	file, decision, err := s.Evaluate(ctx, contentAddress, requester)
	if err != nil {
		return nil, model.AccessDecision{}, nil, err
	}

	if !decision.Allowed() {
		return file, decision, nil, fmt.Errorf("%w: %s", ErrAccessDenied, deniedMessage(decision.Kind))
	}

	content, err := s.fetcher.Fetch(ctx, contentAddress)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return file, decision, nil, fmt.Errorf("%w: содержимое %s", ErrNotFound, contentAddress)
		}
		return file, decision, nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return file, decision, content, nil
}

// getFile читает файл из зеркала, при промахе обращается к ledger-у.
func (s *AccessService) getFile(ctx context.Context, contentAddress string) (*model.FileRecord, error) {
	file, err := s.fileRepo.GetByContentAddress(ctx, contentAddress)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("получение файла из зеркала: %w", err)
	}

	lf, err := s.ledger.GetFile(ctx, contentAddress)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	file = ledgerFileToRecord(lf)
	if err := s.fileRepo.Upsert(ctx, file); err != nil {
		s.logger.Warn("Не удалось дозаписать файл в зеркало",
			slog.String("content_address", contentAddress),
			slog.String("error", err.Error()),
		)
	}
	return file, nil
}

// deniedMessage — текст отказа по виду вердикта.
func deniedMessage(kind model.DecisionKind) string {
	if kind == model.DecisionExpired {
		return "доступ истёк"
	}
	return "доступ не выдан"
}

// ledgerFileToRecord конвертирует запись ledger-а в FileRecord зеркала.
func ledgerFileToRecord(lf *ledger.File) *model.FileRecord {
	return &model.FileRecord{
		ContentAddress: lf.ContentAddress,
		Owner:          model.Address(lf.Owner),
		Descriptor:     lf.Descriptor,
		Kind:           lf.Kind,
		Visibility:     lf.Visibility,
		EncryptedKey:   lf.EncryptedKey,
	}
}
