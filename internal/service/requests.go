// requests.go — workflow запросов на доступ.
// Запрос подаётся по имени файла, проходит pending → accepted/rejected
// ровно один раз; условный UPDATE в репозитории сериализует конкурентные
// ответы. Принятие связывает workflow с выдачей гранта.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/events"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// Notifier — доставка событий ленты владельцу.
type Notifier interface {
	Notify(owner model.Address, ev events.Event)
}

// GrantIssuer — выдача гранта при принятии запроса.
type GrantIssuer interface {
	Grant(ctx context.Context, grantor model.Address, contentAddress string, recipient model.Address, expiresAt time.Time) (*model.Grant, error)
}

// AcceptResult — итог принятия запроса.
// Запрос переходит в accepted даже если грант выдать не удалось:
// терминальный статус фиксируется первым, владелец видит GrantIssued.
type AcceptResult struct {
	Request     *model.AccessRequest
	GrantIssued bool
	Grant       *model.Grant
	// GrantError — причина невыдачи гранта (nil при GrantIssued).
	GrantError error
}

// RequestService — сервис workflow-а запросов на доступ.
type RequestService struct {
	requestRepo repository.RequestRepository
	fileRepo    repository.FileRepository
	issuer      GrantIssuer
	notifier    Notifier
	grantTTL    time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewRequestService создаёт сервис workflow-а запросов.
// grantTTL — срок гранта, выдаваемого при принятии (ACM_DEFAULT_GRANT_TTL).
func NewRequestService(
	requestRepo repository.RequestRepository,
	fileRepo repository.FileRepository,
	issuer GrantIssuer,
	notifier Notifier,
	grantTTL time.Duration,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		fileRepo:    fileRepo,
		issuer:      issuer,
		notifier:    notifier,
		grantTTL:    grantTTL,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With(slog.String("component", "request_service")),
	}
}

// Submit подаёт запрос на доступ к файлу владельца.
// Повторный запрос той же тройки (requester, owner, file_name) отклоняется
// независимо от статуса существующего — в том числе после reject.
func (s *RequestService) Submit(ctx context.Context, requester, owner model.Address, fileName string, purpose, duration *string) (*model.AccessRequest, error) {
	req, err := model.NewAccessRequest(requester, owner, fileName)
	if err != nil {
		if errors.Is(err, model.ErrRequestSelf) {
			return nil, fmt.Errorf("%w: запрос к самому себе", ErrSelfTarget)
		}
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	req.ID = uuid.New().String()
	req.Purpose = purpose
	req.Duration = duration

	if err := s.requestRepo.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s → %s, файл %q", ErrDuplicateRequest, requester, owner, req.FileName)
		}
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	s.notifier.Notify(owner, events.Event{Kind: events.KindRequestCreated, RequestID: req.ID})

	s.logger.Info("Запрос на доступ подан",
		slog.String("request_id", req.ID),
		slog.String("requester", string(requester)),
		slog.String("owner", string(owner)),
		slog.String("file_name", req.FileName),
	)
	return req, nil
}

// Accept принимает pending-запрос и выдаёт грант.
// Имя файла из запроса резолвится в content-адрес по реестру владельца
// (берётся самая свежая запись). Если файл не найден или ledger отказал,
// запрос всё равно остаётся accepted, а причина возвращается в GrantError.
func (s *RequestService) Accept(ctx context.Context, owner model.Address, requestID string) (*AcceptResult, error) {
	req, err := s.respond(ctx, owner, requestID, model.RequestStatusAccepted)
	if err != nil {
		return nil, err
	}

	result := &AcceptResult{Request: req}

	file, err := s.fileRepo.FindByOwnerAndDescriptor(ctx, owner, req.FileName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result.GrantError = fmt.Errorf("%w: файл %q не найден у владельца", ErrNotFound, req.FileName)
			s.logger.Warn("Запрос принят, но файл для гранта не найден",
				slog.String("request_id", requestID),
				slog.String("file_name", req.FileName),
			)
			return result, nil
		}
		return nil, fmt.Errorf("поиск файла для гранта: %w", err)
	}

	grant, err := s.issuer.Grant(ctx, owner, file.ContentAddress, req.Requester, s.now().Add(s.grantTTL))
	if err != nil {
		result.GrantError = err
		s.logger.Error("Запрос принят, но грант не выдан",
			slog.String("request_id", requestID),
			slog.String("content_address", file.ContentAddress),
			slog.String("error", err.Error()),
		)
		return result, nil
	}

	result.GrantIssued = true
	result.Grant = grant

	s.logger.Info("Запрос принят, грант выдан",
		slog.String("request_id", requestID),
		slog.String("content_address", file.ContentAddress),
		slog.String("recipient", string(req.Requester)),
		slog.Time("expires_at", grant.ExpiresAt),
	)
	return result, nil
}

// Reject отклоняет pending-запрос. Гранты не затрагиваются.
func (s *RequestService) Reject(ctx context.Context, owner model.Address, requestID string) (*model.AccessRequest, error) {
	req, err := s.respond(ctx, owner, requestID, model.RequestStatusRejected)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Запрос отклонён",
		slog.String("request_id", requestID),
		slog.String("requester", string(req.Requester)),
	)
	return req, nil
}

// respond — общий переход pending → терминальный статус.
func (s *RequestService) respond(ctx context.Context, owner model.Address, requestID, status string) (*model.AccessRequest, error) {
	req, err := s.requestRepo.Respond(ctx, requestID, owner, status, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrNotPending):
			return nil, fmt.Errorf("%w: %v", ErrNotPending, err)
		default:
			return nil, fmt.Errorf("обновление запроса: %w", err)
		}
	}

	s.notifier.Notify(owner, events.Event{Kind: events.KindRequestResolved, RequestID: requestID})
	return req, nil
}

// Get возвращает запрос по ID. Видят только участники.
func (s *RequestService) Get(ctx context.Context, caller model.Address, requestID string) (*model.AccessRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение запроса: %w", err)
	}
	if req.Owner != caller && req.Requester != caller {
		return nil, ErrNotFound
	}
	return req, nil
}

// ListForOwner возвращает запросы к владельцу, свежие первыми.
func (s *RequestService) ListForOwner(ctx context.Context, owner model.Address) ([]*model.AccessRequest, error) {
	list, err := s.requestRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("получение запросов владельца: %w", err)
	}
	return list, nil
}

// ListForRequester возвращает запросы, поданные requester-ом.
func (s *RequestService) ListForRequester(ctx context.Context, requester model.Address) ([]*model.AccessRequest, error) {
	list, err := s.requestRepo.ListByRequester(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("получение поданных запросов: %w", err)
	}
	return list, nil
}
