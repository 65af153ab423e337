// Пакет gateway — HTTP-клиент content-addressed хранилища.
// Добавление содержимого возвращает его content-адрес; чтение идёт
// по адресу через публичный gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ошибки клиента хранилища.
var (
	// ErrNotFound — содержимое с таким адресом не найдено.
	ErrNotFound = errors.New("содержимое не найдено в хранилище")
	// ErrUnavailable — хранилище недоступно.
	ErrUnavailable = errors.New("хранилище недоступно")
)

// Content — содержимое файла из хранилища.
// Body обязан быть закрыт вызывающим.
type Content struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// addResponse — ответ хранилища на загрузку.
type addResponse struct {
	ContentAddress string `json:"content_address"`
	Size           int64  `json:"size"`
}

// Client — HTTP-клиент хранилища.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент хранилища.
// token — bearer-токен для загрузки (чтение публично).
func New(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With(slog.String("component", "gateway_client")),
	}
}

// Add загружает содержимое и возвращает его content-адрес.
// POST /api/v1/content (multipart, поле file)
func (c *Client) Add(ctx context.Context, filename string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/content", pr)
	if err != nil {
		return "", fmt.Errorf("создание запроса загрузки: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: загрузка вернула статус %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("%w: декодирование ответа загрузки: %v", ErrUnavailable, err)
	}
	if added.ContentAddress == "" {
		return "", fmt.Errorf("%w: хранилище не вернуло content-адрес", ErrUnavailable)
	}

	c.logger.Debug("Содержимое загружено",
		slog.String("content_address", added.ContentAddress),
		slog.Int64("size", added.Size),
	)
	return added.ContentAddress, nil
}

// Fetch читает содержимое по content-адресу.
// GET /content/{content_address}
func (c *Client) Fetch(ctx context.Context, contentAddress string) (*Content, error) {
	reqURL := c.baseURL + "/content/" + url.PathEscape(contentAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса чтения: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &Content{
			Body:          resp.Body,
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: resp.ContentLength,
		}, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contentAddress)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: чтение вернуло статус %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}
}
