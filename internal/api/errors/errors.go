// Пакет errors — конструкторы стандартных ошибок в формате DataVault.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotOwner          = "NOT_OWNER"
	CodeNotPending        = "NOT_PENDING"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeNoSuchGrant       = "NO_SUCH_GRANT"
	CodeInvalidExpiry     = "INVALID_EXPIRY"
	CodeAccessExpired     = "ACCESS_EXPIRED"
	CodeAccessNotGranted  = "ACCESS_NOT_GRANTED"
	CodeLedgerUnavailable = "LEDGER_UNAVAILABLE"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате DataVault.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// InvalidExpiry — 400 срок гранта не в будущем.
func InvalidExpiry(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidExpiry, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// NoSuchGrant — 404 отзываемый грант не существует.
func NoSuchGrant(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNoSuchGrant, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotOwner — 403 операция разрешена только владельцу.
func NotOwner(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeNotOwner, message)
}

// AccessExpired — 403 грант на чтение истёк.
func AccessExpired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeAccessExpired, message)
}

// AccessNotGranted — 403 грант на чтение не выдавался.
func AccessNotGranted(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeAccessNotGranted, message)
}

// NotPending — 409 запрос уже обработан.
func NotPending(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeNotPending, message)
}

// DuplicateRequest — 409 запрос на этот файл уже существует.
func DuplicateRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeDuplicateRequest, message)
}

// LedgerUnavailable — 502 реестр грантов недоступен.
func LedgerUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeLedgerUnavailable, message)
}

// StorageUnavailable — 502 content-хранилище недоступно.
func StorageUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStorageUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
