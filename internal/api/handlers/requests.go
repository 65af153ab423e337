// requests.go — обработчики /api/v1/requests endpoints.
// Workflow запросов на доступ: подача, принятие, отклонение, списки.
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

// requestResponse — запрос на доступ в API-ответе.
type requestResponse struct {
	ID          string  `json:"id"`
	Requester   string  `json:"requester"`
	Owner       string  `json:"owner"`
	FileName    string  `json:"file_name"`
	Purpose     *string `json:"purpose,omitempty"`
	Duration    *string `json:"duration,omitempty"`
	Status      string  `json:"status"`
	Read        bool    `json:"read"`
	CreatedAt   string  `json:"created_at,omitempty"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

// acceptResponse — итог принятия запроса.
// Запрос может быть принят и без выдачи гранта (файл не найден,
// ledger недоступен) — причина возвращается в grant_error.
type acceptResponse struct {
	Request     requestResponse `json:"request"`
	GrantIssued bool            `json:"grant_issued"`
	Grant       *grantResponse  `json:"grant,omitempty"`
	GrantError  string          `json:"grant_error,omitempty"`
}

// mapRequest конвертирует domain model в API-ответ.
func mapRequest(req *model.AccessRequest) requestResponse {
	resp := requestResponse{
		ID:        req.ID,
		Requester: string(req.Requester),
		Owner:     string(req.Owner),
		FileName:  req.FileName,
		Purpose:   req.Purpose,
		Duration:  req.Duration,
		Status:    req.Status,
		Read:      req.Read,
	}
	if !req.CreatedAt.IsZero() {
		resp.CreatedAt = req.CreatedAt.UTC().Format(time.RFC3339)
	}
	if req.RespondedAt != nil {
		s := req.RespondedAt.UTC().Format(time.RFC3339)
		resp.RespondedAt = &s
	}
	return resp
}

// SubmitRequest — POST /api/v1/requests.
// Тело: {owner, file_name, purpose?, duration?}. Requester — вызывающий.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	requester := middleware.AddressFromContext(r.Context())
	if requester == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	var req struct {
		Owner    string  `json:"owner"`
		FileName string  `json:"file_name"`
		Purpose  *string `json:"purpose"`
		Duration *string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	owner, err := model.NormalizeAddress(req.Owner)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	created, err := h.requests.Submit(r.Context(), requester, owner, req.FileName, req.Purpose, req.Duration)
	if err != nil {
		h.writeServiceError(w, "submit_request", err)
		return
	}

	writeJSON(w, http.StatusCreated, mapRequest(created))
}

// AcceptRequest — POST /api/v1/requests/{id}/accept.
// Принятие фиксируется всегда; если грант выдать не удалось, ответ
// содержит grant_issued=false и причину.
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	requestID := chi.URLParam(r, "id")

	result, err := h.requests.Accept(r.Context(), owner, requestID)
	if err != nil {
		h.writeServiceError(w, "accept_request", err)
		return
	}

	resp := acceptResponse{
		Request:     mapRequest(result.Request),
		GrantIssued: result.GrantIssued,
	}
	if result.Grant != nil {
		g := mapGrant(result.Grant)
		resp.Grant = &g
	}
	if result.GrantError != nil {
		resp.GrantError = result.GrantError.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// RejectRequest — POST /api/v1/requests/{id}/reject.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	requestID := chi.URLParam(r, "id")

	req, err := h.requests.Reject(r.Context(), owner, requestID)
	if err != nil {
		h.writeServiceError(w, "reject_request", err)
		return
	}

	writeJSON(w, http.StatusOK, mapRequest(req))
}

// GetRequest — GET /api/v1/requests/{id}.
// Запрос видят только участники.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	caller := middleware.AddressFromContext(r.Context())
	if caller == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	requestID := chi.URLParam(r, "id")

	req, err := h.requests.Get(r.Context(), caller, requestID)
	if err != nil {
		h.writeServiceError(w, "get_request", err)
		return
	}

	writeJSON(w, http.StatusOK, mapRequest(req))
}

// ListIncomingRequests — GET /api/v1/requests/incoming.
// Запросы, адресованные вызывающему как владельцу.
func (h *Handler) ListIncomingRequests(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	list, err := h.requests.ListForOwner(r.Context(), owner)
	if err != nil {
		h.writeServiceError(w, "list_incoming_requests", err)
		return
	}

	writeRequestList(w, list)
}

// ListOutgoingRequests — GET /api/v1/requests/outgoing.
// Запросы, поданные вызывающим.
func (h *Handler) ListOutgoingRequests(w http.ResponseWriter, r *http.Request) {
	requester := middleware.AddressFromContext(r.Context())
	if requester == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}

	list, err := h.requests.ListForRequester(r.Context(), requester)
	if err != nil {
		h.writeServiceError(w, "list_outgoing_requests", err)
		return
	}

	writeRequestList(w, list)
}

// MarkRequestRead — POST /api/v1/requests/{id}/read.
// Помечает запрос прочитанным, статус не меняется.
func (h *Handler) MarkRequestRead(w http.ResponseWriter, r *http.Request) {
	owner := middleware.AddressFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует адрес в контексте")
		return
	}
	requestID := chi.URLParam(r, "id")

	if err := h.notifications.MarkRead(r.Context(), owner, requestID); err != nil {
		h.writeServiceError(w, "mark_request_read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeRequestList записывает список запросов в общем формате.
func writeRequestList(w http.ResponseWriter, list []*model.AccessRequest) {
	items := make([]requestResponse, len(list))
	for i, req := range list {
		items[i] = mapRequest(req)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}
