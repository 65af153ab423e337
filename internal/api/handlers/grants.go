// grants.go — обработчики /api/v1/grants endpoints.
// Выдача, отзыв и списки грантов. Мутации подтверждает ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/datavault/access-module/internal/api/errors"
	"github.com/arturkryukov/datavault/access-module/internal/api/middleware"
	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

// grantResponse — грант в API-ответе.
type grantResponse struct {
	ContentAddress string `json:"content_address"`
	Grantor        string `json:"grantor"`
	Recipient      string `json:"recipient"`
	ExpiresAt      string `json:"expires_at"`
}

// mapGrant конвертирует domain model в API-ответ.
func mapGrant(g *model.Grant) grantResponse {
	return grantResponse{
		ContentAddress: g.ContentAddress,
		Grantor:        string(g.Grantor),
		Recipient:      string(g.Recipient),
		ExpiresAt:      g.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// CreateGrant — POST /api/v1/grants.
// Тело: {content_address, recipient, expires_at}. Grantor — вызывающий.
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	grantor := middleware.AddressFromContext(r.Context())
	if grantor == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	var req struct {
		ContentAddress string    `json:"content_address"`
		Recipient      string    `json:"recipient"`
		ExpiresAt      time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.ContentAddress == "" {
		apierrors.ValidationError(w, "content_address обязателен")
		return
	}

	recipient, err := model.NormalizeAddress(req.Recipient)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	grant, err := h.grants.Grant(r.Context(), grantor, req.ContentAddress, recipient, req.ExpiresAt)
	if err != nil {
		h.writeServiceError(w, "create_grant", err)
		return
	}

	writeJSON(w, http.StatusCreated, mapGrant(grant))
}

// RevokeGrant — POST /api/v1/grants/revoke.
// Тело: {content_address, recipient}. Grantor — вызывающий.
func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	grantor := middleware.AddressFromContext(r.Context())
	if grantor == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	var req struct {
		ContentAddress string `json:"content_address"`
		Recipient      string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.ContentAddress == "" {
		apierrors.ValidationError(w, "content_address обязателен")
		return
	}

	recipient, err := model.NormalizeAddress(req.Recipient)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if err := h.grants.Revoke(r.Context(), grantor, req.ContentAddress, recipient); err != nil {
		h.writeServiceError(w, "revoke_grant", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListFileGrants — GET /api/v1/files/{contentAddress}/grants.
// Гранты на файл видит только владелец.
func (h *Handler) ListFileGrants(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromContext(r.Context())
	if caller == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	contentAddress := chi.URLParam(r, "contentAddress")

	grants, err := h.grants.ListForFile(r.Context(), caller, contentAddress)
	if err != nil {
		h.writeServiceError(w, "list_file_grants", err)
		return
	}

	items := make([]grantResponse, len(grants))
	for i, g := range grants {
		items[i] = mapGrant(g)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// ListMyGrants — GET /api/v1/grants/my.
// Гранты, выданные вызывающему как получателю.
func (h *Handler) ListMyGrants(w http.ResponseWriter, r *http.Request) {
	recipient := middleware.AddressFromContext(r.Context())
	if recipient == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	grants, err := h.grants.ListForRecipient(r.Context(), recipient)
	if err != nil {
		h.writeServiceError(w, "list_my_grants", err)
		return
	}

	items := make([]grantResponse, len(grants))
	for i, g := range grants {
		items[i] = mapGrant(g)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}
