// grants.go — сервис управления грантами доступа.
// Ledger авторитетен: каждая мутация сначала подтверждается им,
// затем отражается в локальном зеркале. Сбой зеркала не откатывает
// мутацию — расхождение закрывает фоновая синхронизация.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/ledger"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// GrantService — сервис управления грантами.
type GrantService struct {
	fileRepo  repository.FileRepository
	grantRepo repository.GrantRepository
	ledger    *ledger.Client
	now       func() time.Time
	logger    *slog.Logger
}

// NewGrantService создаёт сервис управления грантами.
func NewGrantService(
	fileRepo repository.FileRepository,
	grantRepo repository.GrantRepository,
	ledgerClient *ledger.Client,
	logger *slog.Logger,
) *GrantService {
	return &GrantService{
		fileRepo:  fileRepo,
		grantRepo: grantRepo,
		ledger:    ledgerClient,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "grant_service")),
	}
}

// Grant выдаёт или продлевает грант на файл.
// Срок и самовыдача проверяются до обращения к ledger-у, владение
// подтверждает сам ledger. Повторный грант той же паре заменяет срок.
func (s *GrantService) Grant(ctx context.Context, grantor model.Address, contentAddress string, recipient model.Address, expiresAt time.Time) (*model.Grant, error) {
	g, err := model.NewGrant(contentAddress, grantor, recipient, expiresAt, s.now())
	if err != nil {
		return nil, classifyGrantValidation(err)
	}

	err = s.ledger.GrantAccess(ctx, &ledger.Grant{
		ContentAddress: g.ContentAddress,
		Grantor:        string(g.Grantor),
		Recipient:      string(g.Recipient),
		ExpiresAt:      g.ExpiresAt,
	})
	if err != nil {
		return nil, mapLedgerError(err)
	}

	if err := s.grantRepo.Upsert(ctx, g); err != nil {
		s.logger.Warn("Грант подтверждён ledger-ом, но не записан в зеркало",
			slog.String("content_address", contentAddress),
			slog.String("recipient", string(recipient)),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Грант выдан",
		slog.String("content_address", contentAddress),
		slog.String("grantor", string(grantor)),
		slog.String("recipient", string(recipient)),
		slog.Time("expires_at", g.ExpiresAt),
	)
	return g, nil
}

// Revoke отзывает грант. Отзыв несуществующего гранта — ErrNoSuchGrant,
// а не no-op: вызывающий узнаёт, что отзывать было нечего.
func (s *GrantService) Revoke(ctx context.Context, grantor model.Address, contentAddress string, recipient model.Address) error {
	err := s.ledger.RevokeAccess(ctx, contentAddress, string(grantor), string(recipient))
	if err != nil {
		return mapLedgerError(err)
	}

	if err := s.grantRepo.Delete(ctx, contentAddress, recipient); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Отзыв подтверждён ledger-ом, но грант не удалён из зеркала",
			slog.String("content_address", contentAddress),
			slog.String("recipient", string(recipient)),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Грант отозван",
		slog.String("content_address", contentAddress),
		slog.String("grantor", string(grantor)),
		slog.String("recipient", string(recipient)),
	)
	return nil
}

// ListForFile возвращает гранты на файл. Видит только владелец.
func (s *GrantService) ListForFile(ctx context.Context, caller model.Address, contentAddress string) ([]*model.Grant, error) {
	file, err := s.fileRepo.GetByContentAddress(ctx, contentAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение файла: %w", err)
	}
	if file.Owner != caller {
		return nil, ErrNotOwner
	}

	grants, err := s.grantRepo.ListByFile(ctx, contentAddress)
	if err != nil {
		return nil, fmt.Errorf("получение грантов файла: %w", err)
	}
	return grants, nil
}

// ListForRecipient возвращает гранты, выданные recipient-у.
func (s *GrantService) ListForRecipient(ctx context.Context, recipient model.Address) ([]*model.Grant, error) {
	grants, err := s.grantRepo.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("получение грантов получателя: %w", err)
	}
	return grants, nil
}

// classifyGrantValidation мапит ошибки конструктора гранта на сервисные.
func classifyGrantValidation(err error) error {
	switch {
	case errors.Is(err, model.ErrGrantExpiryNotFuture):
		return fmt.Errorf("%w: %v", ErrInvalidExpiry, err)
	case errors.Is(err, model.ErrGrantSelf):
		return fmt.Errorf("%w: %v", ErrSelfTarget, err)
	default:
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
}

// mapLedgerError мапит ошибки клиента ledger-а на сервисные.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotOwner):
		return fmt.Errorf("%w: %v", ErrNotOwner, err)
	case errors.Is(err, ledger.ErrInvalidExpiry):
		return fmt.Errorf("%w: %v", ErrInvalidExpiry, err)
	case errors.Is(err, ledger.ErrNoSuchGrant):
		return fmt.Errorf("%w: %v", ErrNoSuchGrant, err)
	case errors.Is(err, ledger.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, ledger.ErrConflict):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
}
