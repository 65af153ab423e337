// grant_sync.go — фоновая синхронизация зеркала грантов с ledger-ом.
//
// GrantSyncService запускает горутину с ticker (ACM_GRANT_SYNC_INTERVAL),
// которая для каждого владельца из зеркала файлов постранично вычитывает
// его гранты из ledger-а и атомарно заменяет зеркало. Это закрывает
// расхождения после сбоев записи в зеркало и мутаций на других узлах.
//
// Prometheus-метрики:
//   - acm_grant_sync_duration_seconds — длительность синхронизации владельца
//   - acm_grant_sync_grants_total — количество синхронизированных грантов
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/ledger"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// Prometheus-метрики синхронизации зеркала грантов.
var (
	grantSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acm_grant_sync_duration_seconds",
		Help:    "Длительность синхронизации грантов одного владельца",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"result"}) // result: ok, error

	grantSyncGrantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acm_grant_sync_grants_total",
		Help: "Количество грантов, записанных в зеркало при синхронизации",
	})
)

// GrantSyncService — фоновый сервис синхронизации зеркала грантов.
type GrantSyncService struct {
	ledger        *ledger.Client
	fileRepo      repository.FileRepository
	txRunner      *repository.TxRunner
	syncStateRepo repository.SyncStateRepository
	pageSize      int
	interval      time.Duration
	logger        *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGrantSyncService создаёт сервис синхронизации зеркала грантов.
func NewGrantSyncService(
	ledgerClient *ledger.Client,
	fileRepo repository.FileRepository,
	txRunner *repository.TxRunner,
	syncStateRepo repository.SyncStateRepository,
	pageSize int,
	interval time.Duration,
	logger *slog.Logger,
) *GrantSyncService {
	return &GrantSyncService{
		ledger:        ledgerClient,
		fileRepo:      fileRepo,
		txRunner:      txRunner,
		syncStateRepo: syncStateRepo,
		pageSize:      pageSize,
		interval:      interval,
		logger:        logger.With(slog.String("component", "grant_sync")),
	}
}

// Start запускает фоновую горутину с периодической синхронизацией.
// Вызывается один раз при старте приложения.
func (s *GrantSyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация зеркала грантов запущена",
			slog.String("interval", s.interval.String()),
			slog.Int("page_size", s.pageSize),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация зеркала грантов остановлена")
				return
			case <-ticker.C:
				if err := s.SyncAll(ctx); err != nil {
					s.logger.Error("Ошибка периодической синхронизации", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *GrantSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SyncAll синхронизирует гранты всех владельцев из зеркала файлов.
// Владельцы обрабатываются параллельно (до 5 одновременно).
func (s *GrantSyncService) SyncAll(ctx context.Context) error {
	owners, err := s.fileRepo.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("получение списка владельцев: %w", err)
	}
	if len(owners) == 0 {
		s.logger.Debug("Нет владельцев для синхронизации")
		return nil
	}

	const maxConcurrency = 5
	sem := make(chan struct{}, maxConcurrency)

	var mu sync.Mutex
	var syncErrors []error

	var wg sync.WaitGroup
	for _, owner := range owners {
		wg.Add(1)
		go func(owner model.Address) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.SyncOwner(ctx, owner); err != nil {
				mu.Lock()
				syncErrors = append(syncErrors, fmt.Errorf("владелец %s: %w", owner, err))
				mu.Unlock()
			}
		}(owner)
	}
	wg.Wait()

	now := time.Now().UTC()
	if len(syncErrors) == 0 {
		if err := s.syncStateRepo.SetSynced(ctx, now); err != nil {
			s.logger.Warn("Ошибка записи last_synced_at", slog.String("error", err.Error()))
		}
	} else {
		for _, syncErr := range syncErrors {
			s.logger.Warn("Ошибка синхронизации владельца", slog.String("error", syncErr.Error()))
		}
		if err := s.syncStateRepo.SetError(ctx, syncErrors[0].Error()); err != nil {
			s.logger.Warn("Ошибка записи last_error", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Синхронизация зеркала грантов завершена",
		slog.Int("owners", len(owners)),
		slog.Int("errors", len(syncErrors)),
	)
	return nil
}

// SyncOwner постранично вычитывает гранты владельца из ledger-а
// и атомарно заменяет его часть зеркала.
func (s *GrantSyncService) SyncOwner(ctx context.Context, owner model.Address) error {
	startedAt := time.Now()

	var all []*model.Grant
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := s.ledger.ListGrants(ctx, string(owner), s.pageSize, offset)
		if err != nil {
			grantSyncDuration.WithLabelValues("error").Observe(time.Since(startedAt).Seconds())
			return fmt.Errorf("запрос грантов (offset=%d): %w", offset, err)
		}

		for _, lg := range resp.Grants {
			all = append(all, &model.Grant{
				ContentAddress: lg.ContentAddress,
				Grantor:        model.Address(lg.Grantor),
				Recipient:      model.Address(lg.Recipient),
				ExpiresAt:      lg.ExpiresAt,
			})
		}

		offset += len(resp.Grants)
		if len(resp.Grants) < s.pageSize {
			break
		}
	}

	err := s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		return repository.NewGrantRepository(tx).ReplaceAllForGrantor(ctx, owner, all)
	})
	if err != nil {
		grantSyncDuration.WithLabelValues("error").Observe(time.Since(startedAt).Seconds())
		return fmt.Errorf("замена зеркала: %w", err)
	}

	grantSyncDuration.WithLabelValues("ok").Observe(time.Since(startedAt).Seconds())
	grantSyncGrantsTotal.Add(float64(len(all)))

	s.logger.Debug("Гранты владельца синхронизированы",
		slog.String("owner", string(owner)),
		slog.Int("grants", len(all)),
	)
	return nil
}
