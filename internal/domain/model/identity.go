// Пакет model — доменные типы Access Module.
// Конструкторы валидируют вход на границе: некорректная запись
// не может попасть в систему (parse, don't validate later).
package model

import (
	"fmt"
	"strings"
)

// Address — идентичность участника (адрес кошелька).
// Хранится в нормализованном виде: lower-case hex с префиксом 0x.
type Address string

// NormalizeAddress валидирует и нормализует адрес кошелька.
// Допустимый формат: 0x + 40 hex-символов.
func NormalizeAddress(raw string) (Address, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("некорректный адрес %q: ожидается 0x + 40 hex-символов", raw)
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("некорректный адрес %q: недопустимый символ %q", raw, c)
		}
	}
	return Address(s), nil
}

// String возвращает адрес строкой.
func (a Address) String() string {
	return string(a)
}
