package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arturkryukov/datavault/access-module/internal/config"
	"github.com/arturkryukov/datavault/access-module/internal/database"
	"github.com/arturkryukov/datavault/access-module/internal/domain/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testOwner     = model.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testRequester = model.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testStranger  = model.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("datavault_test"),
		postgres.WithUsername("datavault"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("ACM_DB_HOST", host)
	os.Setenv("ACM_DB_PORT", port.Port())
	os.Setenv("ACM_DB_NAME", "datavault_test")
	os.Setenv("ACM_DB_USER", "datavault")
	os.Setenv("ACM_DB_PASSWORD", "test-password")
	os.Setenv("ACM_DB_SSL_MODE", "disable")
	os.Setenv("ACM_LEDGER_URL", "http://localhost:8545")
	os.Setenv("ACM_JWT_JWKS_URL", "http://localhost:8080/jwks.json")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты FileRepository ---

func TestFileRepositoryCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRepository(pool)

	key := "encrypted-aes-key-base64"
	file := &model.FileRecord{
		ContentAddress: "QmFileHash001",
		Owner:          testOwner,
		Descriptor:     "report.pdf",
		Kind:           model.KindPlainFile,
		Visibility:     model.VisibilityPrivate,
		EncryptedKey:   &key,
	}

	// Upsert (создание)
	if err := repo.Upsert(ctx, file); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if file.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// GetByContentAddress
	got, err := repo.GetByContentAddress(ctx, "QmFileHash001")
	if err != nil {
		t.Fatalf("GetByContentAddress() ошибка: %v", err)
	}
	if got.Descriptor != "report.pdf" {
		t.Errorf("Descriptor = %q, хотели %q", got.Descriptor, "report.pdf")
	}
	if got.EncryptedKey == nil || *got.EncryptedKey != key {
		t.Errorf("EncryptedKey не сохранён")
	}

	// Upsert (обновление)
	file.Descriptor = "report-v2.pdf"
	if err := repo.Upsert(ctx, file); err != nil {
		t.Fatalf("Upsert() обновление ошибка: %v", err)
	}
	got2, _ := repo.GetByContentAddress(ctx, "QmFileHash001")
	if got2.Descriptor != "report-v2.pdf" {
		t.Errorf("После Upsert: Descriptor = %q", got2.Descriptor)
	}

	// SetVisibility
	if err := repo.SetVisibility(ctx, "QmFileHash001", model.VisibilityUniversal); err != nil {
		t.Fatalf("SetVisibility() ошибка: %v", err)
	}
	got3, _ := repo.GetByContentAddress(ctx, "QmFileHash001")
	if got3.Visibility != model.VisibilityUniversal {
		t.Errorf("Visibility = %q, хотели universal", got3.Visibility)
	}

	// ListByOwner
	list, err := repo.ListByOwner(ctx, testOwner)
	if err != nil {
		t.Fatalf("ListByOwner() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByOwner() вернул %d записей, хотели 1", len(list))
	}
}

func TestFileRepositoryFindByDescriptor(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRepository(pool)

	// Два файла с одинаковым descriptor-ом — находим самый свежий
	old := &model.FileRecord{
		ContentAddress: "QmOldVersion", Owner: testOwner,
		Descriptor: "notes.txt", Kind: model.KindPlainFile, Visibility: model.VisibilityPrivate,
	}
	if err := repo.Upsert(ctx, old); err != nil {
		t.Fatalf("Upsert(old) ошибка: %v", err)
	}

	// created_at отличается — фиксируем порядок вручную
	if _, err := pool.Exec(ctx,
		`UPDATE file_registry SET created_at = created_at - interval '1 hour' WHERE content_address = 'QmOldVersion'`,
	); err != nil {
		t.Fatalf("Сдвиг created_at: %v", err)
	}

	fresh := &model.FileRecord{
		ContentAddress: "QmFreshVersion", Owner: testOwner,
		Descriptor: "notes.txt", Kind: model.KindPlainFile, Visibility: model.VisibilityPrivate,
	}
	if err := repo.Upsert(ctx, fresh); err != nil {
		t.Fatalf("Upsert(fresh) ошибка: %v", err)
	}

	got, err := repo.FindByOwnerAndDescriptor(ctx, testOwner, "notes.txt")
	if err != nil {
		t.Fatalf("FindByOwnerAndDescriptor() ошибка: %v", err)
	}
	if got.ContentAddress != "QmFreshVersion" {
		t.Errorf("ContentAddress = %q, хотели самый свежий QmFreshVersion", got.ContentAddress)
	}

	// Чужой владелец не видит
	if _, err := repo.FindByOwnerAndDescriptor(ctx, testStranger, "notes.txt"); err != ErrNotFound {
		t.Errorf("Для чужого владельца ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты GrantRepository ---

func TestGrantRepositoryCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewGrantRepository(pool)

	expiresAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Microsecond)
	g := &model.Grant{
		ContentAddress: "QmGrantHash001",
		Grantor:        testOwner,
		Recipient:      testRequester,
		ExpiresAt:      expiresAt,
	}

	// Upsert (создание)
	if err := repo.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	// Get
	got, err := repo.Get(ctx, "QmGrantHash001", testRequester)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if !got.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, хотели %v", got.ExpiresAt, expiresAt)
	}

	// Повторный грант той же паре продлевает, а не дублирует
	g.ExpiresAt = expiresAt.Add(24 * time.Hour)
	if err := repo.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert() продление ошибка: %v", err)
	}
	list, err := repo.ListByFile(ctx, "QmGrantHash001")
	if err != nil {
		t.Fatalf("ListByFile() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByFile() вернул %d грантов, хотели 1 (без дублей)", len(list))
	}
	if !list[0].ExpiresAt.Equal(expiresAt.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt не продлён: %v", list[0].ExpiresAt)
	}

	// ListByRecipient
	byRecipient, err := repo.ListByRecipient(ctx, testRequester)
	if err != nil {
		t.Fatalf("ListByRecipient() ошибка: %v", err)
	}
	if len(byRecipient) != 1 {
		t.Errorf("ListByRecipient() вернул %d грантов, хотели 1", len(byRecipient))
	}

	// Delete
	if err := repo.Delete(ctx, "QmGrantHash001", testRequester); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, "QmGrantHash001", testRequester); err != ErrNotFound {
		t.Errorf("Повторный Delete: ожидали ErrNotFound, получили: %v", err)
	}
}

func TestGrantRepositoryReplaceAllForGrantor(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewGrantRepository(pool)
	txRunner := NewTxRunner(pool)

	expiresAt := time.Now().UTC().Add(time.Hour)

	// Локальное зеркало: грант, которого в ledger-е уже нет
	stale := &model.Grant{
		ContentAddress: "QmStale", Grantor: testOwner, Recipient: testRequester, ExpiresAt: expiresAt,
	}
	if err := repo.Upsert(ctx, stale); err != nil {
		t.Fatalf("Upsert(stale) ошибка: %v", err)
	}

	// Набор из ledger-а
	fromLedger := []*model.Grant{
		{ContentAddress: "QmActual1", Grantor: testOwner, Recipient: testRequester, ExpiresAt: expiresAt},
		{ContentAddress: "QmActual2", Grantor: testOwner, Recipient: testStranger, ExpiresAt: expiresAt},
	}

	if err := txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		return NewGrantRepository(tx).ReplaceAllForGrantor(ctx, testOwner, fromLedger)
	}); err != nil {
		t.Fatalf("ReplaceAllForGrantor() ошибка: %v", err)
	}

	if _, err := repo.Get(ctx, "QmStale", testRequester); err != ErrNotFound {
		t.Errorf("Устаревший грант не удалён: %v", err)
	}
	if _, err := repo.Get(ctx, "QmActual1", testRequester); err != nil {
		t.Errorf("Грант из ledger-а не вставлен: %v", err)
	}
	if _, err := repo.Get(ctx, "QmActual2", testStranger); err != nil {
		t.Errorf("Второй грант из ledger-а не вставлен: %v", err)
	}
}

// --- Тесты RequestRepository ---

func newTestRequest(t *testing.T, fileName string) *model.AccessRequest {
	t.Helper()
	req, err := model.NewAccessRequest(testRequester, testOwner, fileName)
	if err != nil {
		t.Fatalf("NewAccessRequest() ошибка: %v", err)
	}
	req.ID = uuid.New().String()
	return req
}

func TestRequestRepositoryCreateAndDuplicate(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRequestRepository(pool)

	req := newTestRequest(t, "medical_records.pdf")
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Дубликат тройки (requester, owner, file_name) отклоняется,
	// даже после обработки первого запроса
	dup := newTestRequest(t, "medical_records.pdf")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Дубликат: ожидали ErrConflict, получили: %v", err)
	}

	if _, err := repo.Respond(ctx, req.ID, testOwner, model.RequestStatusRejected, time.Now().UTC()); err != nil {
		t.Fatalf("Respond() ошибка: %v", err)
	}
	dup2 := newTestRequest(t, "medical_records.pdf")
	if err := repo.Create(ctx, dup2); !errors.Is(err, ErrConflict) {
		t.Errorf("Дубликат после reject: ожидали ErrConflict, получили: %v", err)
	}

	// Другое имя файла — не дубликат
	other := newTestRequest(t, "other_file.pdf")
	if err := repo.Create(ctx, other); err != nil {
		t.Errorf("Запрос на другой файл отклонён: %v", err)
	}
}

func TestRequestRepositoryRespond(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRequestRepository(pool)

	req := newTestRequest(t, "contract.pdf")
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	respondedAt := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := repo.Respond(ctx, req.ID, testOwner, model.RequestStatusAccepted, respondedAt)
	if err != nil {
		t.Fatalf("Respond() ошибка: %v", err)
	}
	if updated.Status != model.RequestStatusAccepted {
		t.Errorf("Status = %q, хотели accepted", updated.Status)
	}
	if updated.RespondedAt == nil || !updated.RespondedAt.Equal(respondedAt) {
		t.Errorf("RespondedAt = %v, хотели %v", updated.RespondedAt, respondedAt)
	}

	// Ответ помечает запрос прочитанным: он не должен висеть в непрочитанных
	if !updated.Read {
		t.Error("Read = false после Respond")
	}
	if count, err := repo.CountUnread(ctx, testOwner); err != nil {
		t.Fatalf("CountUnread() ошибка: %v", err)
	} else if count != 0 {
		t.Errorf("CountUnread() после Respond = %d, хотели 0", count)
	}

	// Второй ответ проигрывает: запрос уже не pending
	if _, err := repo.Respond(ctx, req.ID, testOwner, model.RequestStatusRejected, time.Now().UTC()); !errors.Is(err, ErrNotPending) {
		t.Errorf("Повторный Respond: ожидали ErrNotPending, получили: %v", err)
	}

	// Терминальный статус не перезаписан
	got, _ := repo.GetByID(ctx, req.ID)
	if got.Status != model.RequestStatusAccepted {
		t.Errorf("Статус перезаписан: %q", got.Status)
	}

	// Чужой владелец — ErrNotFound
	req2 := newTestRequest(t, "second.pdf")
	if err := repo.Create(ctx, req2); err != nil {
		t.Fatalf("Create(req2) ошибка: %v", err)
	}
	if _, err := repo.Respond(ctx, req2.ID, testStranger, model.RequestStatusAccepted, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Чужой владелец: ожидали ErrNotFound, получили: %v", err)
	}

	// Несуществующий ID — ErrNotFound
	if _, err := repo.Respond(ctx, uuid.New().String(), testOwner, model.RequestStatusAccepted, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Несуществующий ID: ожидали ErrNotFound, получили: %v", err)
	}
}

func TestRequestRepositoryListOrdering(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRequestRepository(pool)

	// Три запроса с разным created_at — список отсортирован свежие-первыми
	names := []string{"a.pdf", "b.pdf", "c.pdf"}
	for i, name := range names {
		req := newTestRequest(t, name)
		if err := repo.Create(ctx, req); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", name, err)
		}
		if _, err := pool.Exec(ctx,
			`UPDATE access_requests SET created_at = now() - make_interval(hours => $2) WHERE id = $1`,
			req.ID, len(names)-i,
		); err != nil {
			t.Fatalf("Сдвиг created_at: %v", err)
		}
	}

	list, err := repo.ListByOwner(ctx, testOwner)
	if err != nil {
		t.Fatalf("ListByOwner() ошибка: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListByOwner() вернул %d записей, хотели 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].CreatedAt.Before(list[i].CreatedAt) {
			t.Errorf("Нарушен порядок: %v раньше %v", list[i-1].CreatedAt, list[i].CreatedAt)
		}
	}
	if list[0].FileName != "c.pdf" {
		t.Errorf("Первым должен быть самый свежий c.pdf, получили %q", list[0].FileName)
	}
}

func TestRequestRepositoryReadFlags(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRequestRepository(pool)

	req1 := newTestRequest(t, "one.pdf")
	req2 := newTestRequest(t, "two.pdf")
	for _, req := range []*model.AccessRequest{req1, req2} {
		if err := repo.Create(ctx, req); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}

	count, err := repo.CountUnread(ctx, testOwner)
	if err != nil {
		t.Fatalf("CountUnread() ошибка: %v", err)
	}
	if count != 2 {
		t.Errorf("CountUnread() = %d, хотели 2", count)
	}

	if err := repo.MarkRead(ctx, req1.ID, testOwner); err != nil {
		t.Fatalf("MarkRead() ошибка: %v", err)
	}

	count2, _ := repo.CountUnread(ctx, testOwner)
	if count2 != 1 {
		t.Errorf("После MarkRead: CountUnread() = %d, хотели 1", count2)
	}

	// Чужой владелец не может пометить
	if err := repo.MarkRead(ctx, req2.ID, testStranger); err != ErrNotFound {
		t.Errorf("MarkRead чужим владельцем: ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты SyncStateRepository ---

func TestSyncState(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSyncStateRepository(pool)

	// Начальная запись
	lastSyncedAt, lastError, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if lastSyncedAt != nil {
		t.Errorf("last_synced_at != nil для начальной записи")
	}
	if lastError != "" {
		t.Errorf("last_error = %q для начальной записи", lastError)
	}

	// SetError
	if err := repo.SetError(ctx, "ledger недоступен"); err != nil {
		t.Fatalf("SetError() ошибка: %v", err)
	}
	_, msg, _ := repo.Get(ctx)
	if msg != "ledger недоступен" {
		t.Errorf("last_error = %q", msg)
	}

	// SetSynced сбрасывает ошибку
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.SetSynced(ctx, now); err != nil {
		t.Fatalf("SetSynced() ошибка: %v", err)
	}
	at, msg2, _ := repo.Get(ctx)
	if at == nil || !at.Equal(now) {
		t.Errorf("last_synced_at = %v, хотели %v", at, now)
	}
	if msg2 != "" {
		t.Errorf("last_error не сброшен: %q", msg2)
	}
}
