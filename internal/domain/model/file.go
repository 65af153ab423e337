package model

import (
	"fmt"
	"strings"
	"time"
)

// Тип артефакта.
const (
	// KindPlainFile — обычный файл в content-addressed хранилище.
	KindPlainFile = "plain_file"
	// KindMintedToken — файл, выпущенный как NFT.
	KindMintedToken = "minted_token"
)

// Видимость файла.
const (
	// VisibilityPrivate — чтение только владельцем и получателями грантов.
	VisibilityPrivate = "private"
	// VisibilityUniversal — файл читается любым запросившим, гранты не проверяются.
	VisibilityUniversal = "universal"
)

// FileRecord — запись артефакта в реестре файлов.
// Хранится в таблице file_registry, authoritative-источник — ledger.
type FileRecord struct {
	// ContentAddress — content-addressed идентификатор артефакта (IPFS-хэш)
	ContentAddress string
	// Owner — адрес владельца (загрузившего)
	Owner Address
	// Descriptor — свободные метаданные/теги, ядром не интерпретируются
	Descriptor string
	// Kind — тип артефакта (plain_file, minted_token)
	Kind string
	// Visibility — видимость (private, universal)
	Visibility string
	// EncryptedKey — зашифрованный ключ файла (opaque, управление ключами вне ядра)
	EncryptedKey *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// NewFileRecord создаёт валидную запись файла.
// Владелец передаётся уже нормализованным (из JWT middleware).
func NewFileRecord(contentAddress string, owner Address, descriptor, kind string) (*FileRecord, error) {
	contentAddress = strings.TrimSpace(contentAddress)
	if contentAddress == "" {
		return nil, fmt.Errorf("content_address обязателен")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner обязателен")
	}
	if kind != KindPlainFile && kind != KindMintedToken {
		return nil, fmt.Errorf("некорректный kind %q: допустимые — %s, %s", kind, KindPlainFile, KindMintedToken)
	}
	return &FileRecord{
		ContentAddress: contentAddress,
		Owner:          owner,
		Descriptor:     descriptor,
		Kind:           kind,
		Visibility:     VisibilityPrivate,
	}, nil
}

// ValidVisibility проверяет допустимость значения видимости.
func ValidVisibility(v string) bool {
	return v == VisibilityPrivate || v == VisibilityUniversal
}
