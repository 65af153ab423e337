// Пакет ledger — HTTP-клиент авторитетного реестра грантов и файлов.
// Поддерживает TLS с кастомным CA (ACM_LEDGER_CA_CERT_PATH).
// Ledger — источник истины: локальная БД лишь зеркалирует его ответы.
package ledger

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Ошибки клиента ledger-а. Бизнес-ошибки ledger отличает от транспортных:
// первые — окончательный вердикт реестра, вторые означают, что вердикта нет.
var (
	// ErrUnavailable — ledger недоступен или ответил не по протоколу.
	ErrUnavailable = errors.New("ledger недоступен")
	// ErrNotOwner — операцию инициировал не владелец файла.
	ErrNotOwner = errors.New("операция разрешена только владельцу")
	// ErrInvalidExpiry — срок действия гранта не в будущем.
	ErrInvalidExpiry = errors.New("срок действия гранта должен быть в будущем")
	// ErrNoSuchGrant — отзываемый грант не существует.
	ErrNoSuchGrant = errors.New("грант не найден")
	// ErrNotFound — файл не найден в реестре.
	ErrNotFound = errors.New("файл не найден в реестре")
	// ErrConflict — запись уже существует.
	ErrConflict = errors.New("запись уже существует в реестре")
)

// File — запись файла в реестре ledger-а.
type File struct {
	ContentAddress string  `json:"content_address"`
	Owner          string  `json:"owner"`
	Descriptor     string  `json:"descriptor"`
	Kind           string  `json:"kind"`
	Visibility     string  `json:"visibility"`
	EncryptedKey   *string `json:"encrypted_key,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// Grant — запись гранта в реестре ledger-а.
type Grant struct {
	ContentAddress string    `json:"content_address"`
	Grantor        string    `json:"grantor"`
	Recipient      string    `json:"recipient"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// GrantListResponse — ответ ledger-а на GET /api/v1/grants с пагинацией.
type GrantListResponse struct {
	Grants []Grant `json:"grants"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// FileListResponse — ответ ledger-а на GET /api/v1/files с пагинацией.
type FileListResponse struct {
	Files  []File `json:"files"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// errorResponse — тело ошибки ledger-а: {"error":{"code","message"}}.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client — HTTP-клиент реестра.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент ledger-а.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// token — статический bearer-токен сервисного аккаунта (может быть пустым).
func New(baseURL, token, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата ledger: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат ledger добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:    normalizeURL(baseURL),
		token:      token,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "ledger_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// RegisterFile регистрирует файл в реестре.
// POST /api/v1/files
func (c *Client) RegisterFile(ctx context.Context, f *File) error {
	return c.do(ctx, http.MethodPost, "/api/v1/files", f, nil)
}

// GetFile возвращает запись файла по content-адресу.
// GET /api/v1/files/{content_address}
func (c *Client) GetFile(ctx context.Context, contentAddress string) (*File, error) {
	var f File
	path := "/api/v1/files/" + url.PathEscape(contentAddress)
	if err := c.do(ctx, http.MethodGet, path, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles возвращает файлы владельца с пагинацией.
// GET /api/v1/files?owner=0x...&limit=N&offset=M
func (c *Client) ListFiles(ctx context.Context, owner string, limit, offset int) (*FileListResponse, error) {
	var resp FileListResponse
	path := fmt.Sprintf("/api/v1/files?owner=%s&limit=%d&offset=%d",
		url.QueryEscape(owner), limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetVisibility меняет видимость файла. Ledger проверяет владение.
// PUT /api/v1/files/{content_address}/visibility
func (c *Client) SetVisibility(ctx context.Context, contentAddress, caller, visibility string) error {
	body := map[string]string{"caller": caller, "visibility": visibility}
	path := "/api/v1/files/" + url.PathEscape(contentAddress) + "/visibility"
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// GrantAccess выдаёт или продлевает грант. Ledger проверяет владение
// и срок действия; повторный грант той же паре заменяет срок.
// POST /api/v1/grants
func (c *Client) GrantAccess(ctx context.Context, g *Grant) error {
	return c.do(ctx, http.MethodPost, "/api/v1/grants", g, nil)
}

// RevokeAccess отзывает грант. Отзыв несуществующего гранта — ошибка,
// а не no-op: вызывающий узнаёт, что отзывать было нечего.
// POST /api/v1/grants/revoke
func (c *Client) RevokeAccess(ctx context.Context, contentAddress, grantor, recipient string) error {
	body := map[string]string{
		"content_address": contentAddress,
		"grantor":         grantor,
		"recipient":       recipient,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/grants/revoke", body, nil)
}

// ListGrants возвращает гранты, выданные владельцем, с пагинацией.
// Используется фоновой синхронизацией зеркала.
// GET /api/v1/grants?grantor=0x...&limit=N&offset=M
func (c *Client) ListGrants(ctx context.Context, grantor string, limit, offset int) (*GrantListResponse, error) {
	var resp GrantListResponse
	path := fmt.Sprintf("/api/v1/grants?grantor=%s&limit=%d&offset=%d",
		url.QueryEscape(grantor), limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// nameResponse — ответ ledger-а на резолв отображаемого имени.
type nameResponse struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
}

// ResolveName возвращает отображаемое имя владельца адреса.
// Пустая строка — имя не зарегистрировано (это не ошибка).
// GET /api/v1/names/{address}
func (c *Client) ResolveName(ctx context.Context, address string) (string, error) {
	var resp nameResponse
	path := "/api/v1/names/" + url.PathEscape(address)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return resp.DisplayName, nil
}

// Ping проверяет доступность ledger-а (для dephealth и readiness).
// GET /api/v1/info
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/info", nil, nil)
}

// do выполняет запрос и декодирует ответ.
// Транспортные сбои и ответы не по протоколу оборачиваются в ErrUnavailable,
// бизнес-ошибки мапятся по коду из тела.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("сериализация запроса к ledger: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("создание запроса к ledger: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: декодирование ответа: %v", ErrUnavailable, err)
		}
		return nil
	}

	return c.mapError(resp)
}

// mapError превращает HTTP-ошибку ledger-а в доменную.
func (c *Client) mapError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Code != "" {
		switch errResp.Error.Code {
		case "NOT_OWNER":
			return fmt.Errorf("%w: %s", ErrNotOwner, errResp.Error.Message)
		case "INVALID_EXPIRY":
			return fmt.Errorf("%w: %s", ErrInvalidExpiry, errResp.Error.Message)
		case "NO_SUCH_GRANT":
			return fmt.Errorf("%w: %s", ErrNoSuchGrant, errResp.Error.Message)
		case "NOT_FOUND":
			return fmt.Errorf("%w: %s", ErrNotFound, errResp.Error.Message)
		case "CONFLICT":
			return fmt.Errorf("%w: %s", ErrConflict, errResp.Error.Message)
		}
	}

	// 5xx и нераспознанные ответы — вердикта реестра нет
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: статус %d", ErrUnavailable, resp.StatusCode)
	}

	c.logger.Warn("Нераспознанная ошибка ledger",
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(raw)),
	)
	return fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
