// Пакет access — чистая логика оценки доступа к файлу.
// Evaluate — детерминированная функция своих аргументов, без побочных
// эффектов и без обращения к часам: текущее время передаётся явно,
// поэтому все оценивающие узлы при одинаковом входе дают одинаковый ответ.
package access

import (
	"time"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

// Evaluate решает, авторизовано ли чтение файла requester-ом в момент now.
//
// Порядок проверок:
//  1. universal-видимость — читается кем угодно, гранты не смотрим;
//  2. владелец всегда читает свои файлы (granted с нулевым ExpiresAt);
//  3. грант на пару (content_address, requester): активен → granted,
//     истёк → expired, отсутствует → not_granted.
//
// Истечение оценивается лениво: грант с now >= ExpiresAt физически не
// удалён, но доступа не даёт.
func Evaluate(file *model.FileRecord, grants []*model.Grant, requester model.Address, now time.Time) model.AccessDecision {
	if file.Visibility == model.VisibilityUniversal {
		return model.AccessDecision{Kind: model.DecisionUniversal}
	}

	if requester != "" && requester == file.Owner {
		return model.AccessDecision{Kind: model.DecisionGranted}
	}

	g := findGrant(grants, file.ContentAddress, requester)
	if g == nil {
		return model.AccessDecision{Kind: model.DecisionNotGranted}
	}

	if now.Before(g.ExpiresAt) {
		return model.AccessDecision{Kind: model.DecisionGranted, ExpiresAt: g.ExpiresAt}
	}
	return model.AccessDecision{Kind: model.DecisionExpired, ExpiresAt: g.ExpiresAt}
}

// findGrant ищет грант на пару (contentAddress, recipient).
// Инвариант зеркала — не более одной записи на пару, берётся первая.
func findGrant(grants []*model.Grant, contentAddress string, recipient model.Address) *model.Grant {
	for _, g := range grants {
		if g.ContentAddress == contentAddress && g.Recipient == recipient {
			return g
		}
	}
	return nil
}
