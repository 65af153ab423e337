package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRequestSelf — запрос адресован самому себе.
var ErrRequestSelf = errors.New("нельзя запросить доступ к собственному файлу")

// Статусы запроса на доступ. Переход однонаправленный:
// pending → accepted | rejected, из терминального состояния выхода нет.
const (
	// RequestStatusPending — запрос ожидает решения владельца.
	RequestStatusPending = "pending"
	// RequestStatusAccepted — запрос принят, ожидается (или выдан) грант.
	RequestStatusAccepted = "accepted"
	// RequestStatusRejected — запрос отклонён.
	RequestStatusRejected = "rejected"
)

// AccessRequest — запрос на будущий грант. Социальный артефакт, сам по
// себе не даёт доступа: файл указывается человекочитаемым именем, а не
// content address (существование проверяется при принятии, не при создании).
type AccessRequest struct {
	// ID — UUID запроса
	ID string
	// Requester — адрес запрашивающего
	Requester Address
	// Owner — адрес владельца, которому адресован запрос
	Owner Address
	// FileName — человекочитаемое имя файла
	FileName string
	// Purpose — цель запроса (опционально)
	Purpose *string
	// Duration — желаемый срок доступа (опционально, свободный текст)
	Duration *string
	// Status — pending, accepted, rejected
	Status string
	// Read — флаг «прочитано владельцем», отдельный от Status
	Read bool
	// CreatedAt — время создания запроса
	CreatedAt time.Time
	// RespondedAt — время решения владельца (nil для pending)
	RespondedAt *time.Time
}

// NewAccessRequest создаёт валидный pending-запрос.
func NewAccessRequest(requester, owner Address, fileName string) (*AccessRequest, error) {
	if requester == "" || owner == "" {
		return nil, fmt.Errorf("requester и owner обязательны")
	}
	if requester == owner {
		return nil, ErrRequestSelf
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, fmt.Errorf("file_name обязателен")
	}
	return &AccessRequest{
		Requester: requester,
		Owner:     owner,
		FileName:  fileName,
		Status:    RequestStatusPending,
		Read:      false,
	}, nil
}

// IsTerminal сообщает, находится ли запрос в терминальном состоянии.
func (r *AccessRequest) IsTerminal() bool {
	return r.Status == RequestStatusAccepted || r.Status == RequestStatusRejected
}
