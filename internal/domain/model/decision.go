package model

import "time"

// DecisionKind — исход оценки попытки чтения.
type DecisionKind string

const (
	// DecisionUniversal — файл с universal-видимостью, гранты не проверяются.
	DecisionUniversal DecisionKind = "universal"
	// DecisionGranted — активный грант (или чтение владельцем).
	DecisionGranted DecisionKind = "granted"
	// DecisionExpired — грант был, но срок истёк. Отличается от NotGranted,
	// чтобы вызывающий мог показать «доступ истёк», а не «доступа не было».
	DecisionExpired DecisionKind = "expired"
	// DecisionNotGranted — гранта нет и не было.
	DecisionNotGranted DecisionKind = "not_granted"
)

// AccessDecision — результат оценки попытки чтения. Производное значение,
// не хранится.
type AccessDecision struct {
	// Kind — исход оценки
	Kind DecisionKind
	// ExpiresAt — срок гранта для granted/expired. Нулевое время у granted
	// означает бессрочный доступ (чтение владельцем).
	ExpiresAt time.Time
}

// Allowed сообщает, разрешено ли чтение.
func (d AccessDecision) Allowed() bool {
	return d.Kind == DecisionUniversal || d.Kind == DecisionGranted
}
