// files.go — обработчики /api/v1/files endpoints.
// Файловый реестр: регистрация с загрузкой содержимого, списки,
// метаданные, смена видимости, чтение содержимого с проверкой доступа.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/datavault/access-module/internal/api/errors"
	"github.com/arturkryukov/datavault/access-module/internal/api/middleware"
	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/service"
)

// maxUploadSize — предел размера multipart-формы при регистрации (512 MiB).
const maxUploadSize = 512 << 20

// fileRecordResponse — запись файла в API-ответе.
type fileRecordResponse struct {
	ContentAddress string  `json:"content_address"`
	Owner          string  `json:"owner"`
	Descriptor     string  `json:"descriptor"`
	Kind           string  `json:"kind"`
	Visibility     string  `json:"visibility"`
	EncryptedKey   *string `json:"encrypted_key,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

// mapFileRecord конвертирует domain model в API-ответ.
func mapFileRecord(f *model.FileRecord) fileRecordResponse {
	resp := fileRecordResponse{
		ContentAddress: f.ContentAddress,
		Owner:          string(f.Owner),
		Descriptor:     f.Descriptor,
		Kind:           f.Kind,
		Visibility:     f.Visibility,
		EncryptedKey:   f.EncryptedKey,
	}
	if !f.CreatedAt.IsZero() {
		resp.CreatedAt = f.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !f.UpdatedAt.IsZero() {
		resp.UpdatedAt = f.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// RegisterFile — POST /api/v1/files.
// Multipart-форма: file (обязательно), descriptor, kind, encrypted_key.
// Содержимое загружается в content-хранилище, запись — в ledger.
func (h *Handler) RegisterFile(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно: "+err.Error())
		return
	}
	defer file.Close()

	descriptor := r.FormValue("descriptor")
	if descriptor == "" {
		descriptor = header.Filename
	}

	kind := r.FormValue("kind")
	if kind == "" {
		kind = model.KindPlainFile
	}

	var encryptedKey *string
	if v := r.FormValue("encrypted_key"); v != "" {
		encryptedKey = &v
	}

	record, err := h.files.Register(r.Context(), owner, descriptor, kind, encryptedKey, file)
	if err != nil {
		h.writeServiceError(w, "register_file", err)
		return
	}

	writeJSON(w, http.StatusCreated, mapFileRecord(record))
}

// ListMyFiles — GET /api/v1/files.
// Файлы вызывающего, свежие первыми.
func (h *Handler) ListMyFiles(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	files, err := h.files.ListByOwner(r.Context(), owner)
	if err != nil {
		h.writeServiceError(w, "list_my_files", err)
		return
	}

	items := make([]fileRecordResponse, len(files))
	for i, f := range files {
		items[i] = mapFileRecord(f)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// GetFile — GET /api/v1/files/{contentAddress}.
// Метаданные видят владелец и те, кому чтение разрешено.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromContext(r.Context())
	if caller == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	contentAddress := chi.URLParam(r, "contentAddress")

	file, decision, err := h.access.Evaluate(r.Context(), contentAddress, caller)
	if err != nil {
		h.writeServiceError(w, "get_file", err)
		return
	}
	if file.Owner != caller && !decision.Allowed() {
		// Метаданные приватного файла не раскрываются
		apierrors.NotFound(w, "Файл не найден")
		return
	}

	writeJSON(w, http.StatusOK, mapFileRecord(file))
}

// SetVisibility — PUT /api/v1/files/{contentAddress}/visibility.
// Владение подтверждает ledger.
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromContext(r.Context())
	if caller == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	contentAddress := chi.URLParam(r, "contentAddress")

	var req struct {
		Visibility string `json:"visibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.files.SetVisibility(r.Context(), caller, contentAddress, req.Visibility); err != nil {
		h.writeServiceError(w, "set_visibility", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"content_address": contentAddress,
		"visibility":      req.Visibility,
	})
}

// ReadContent — GET /api/v1/files/{contentAddress}/content.
// Аутентификация опциональна: universal-файлы читаются анонимно.
// Отказ различим: ACCESS_EXPIRED для истёкшего гранта, ACCESS_NOT_GRANTED
// для отсутствующего.
func (h *Handler) ReadContent(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromContext(r.Context())
	contentAddress := chi.URLParam(r, "contentAddress")

	file, decision, content, err := h.access.ReadFile(r.Context(), contentAddress, caller)
	if err != nil {
		if errors.Is(err, service.ErrAccessDenied) {
			if decision.Kind == model.DecisionExpired {
				apierrors.AccessExpired(w, "Срок доступа к файлу истёк")
			} else {
				apierrors.AccessNotGranted(w, "Доступ к файлу не выдан")
			}
			return
		}
		h.writeServiceError(w, "read_content", err)
		return
	}
	defer content.Body.Close()

	if content.ContentType != "" {
		w.Header().Set("Content-Type", content.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if content.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.ContentLength, 10))
	}
	w.Header().Set("X-Content-Address", file.ContentAddress)

	if _, err := io.Copy(w, content.Body); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Warn("Обрыв передачи содержимого",
			"content_address", contentAddress,
			"error", err,
		)
	}
}
