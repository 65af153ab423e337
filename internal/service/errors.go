// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrNotOwner — операцию инициировал не владелец файла.
	ErrNotOwner = errors.New("операция разрешена только владельцу файла")
	// ErrNotPending — запрос уже обработан и не может быть изменён.
	ErrNotPending = errors.New("запрос уже обработан")
	// ErrDuplicateRequest — запрос на этот файл от этого адреса уже существует.
	ErrDuplicateRequest = errors.New("запрос на этот файл уже существует")
	// ErrNoSuchGrant — отзываемый грант не существует.
	ErrNoSuchGrant = errors.New("грант не найден")
	// ErrInvalidExpiry — срок действия гранта не в будущем.
	ErrInvalidExpiry = errors.New("срок действия гранта должен быть в будущем")
	// ErrSelfTarget — операция адресована самому себе.
	ErrSelfTarget = errors.New("операция не может быть адресована самому себе")
	// ErrLedgerUnavailable — реестр грантов недоступен.
	ErrLedgerUnavailable = errors.New("реестр грантов недоступен")
	// ErrStorageUnavailable — content-хранилище недоступно.
	ErrStorageUnavailable = errors.New("content-хранилище недоступно")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrAccessDenied — доступ к содержимому файла не авторизован.
	ErrAccessDenied = errors.New("доступ к файлу не авторизован")
)
