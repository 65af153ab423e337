package access

import (
	"testing"
	"time"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
)

const (
	ownerAddr     = model.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	recipientAddr = model.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	strangerAddr  = model.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

func testFile(visibility string) *model.FileRecord {
	return &model.FileRecord{
		ContentAddress: "QmTestHash001",
		Owner:          ownerAddr,
		Descriptor:     "medical_records.pdf",
		Kind:           model.KindPlainFile,
		Visibility:     visibility,
	}
}

func testGrant(expiresAt time.Time) *model.Grant {
	return &model.Grant{
		ContentAddress: "QmTestHash001",
		Grantor:        ownerAddr,
		Recipient:      recipientAddr,
		ExpiresAt:      expiresAt,
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		file      *model.FileRecord
		grants    []*model.Grant
		requester model.Address
		now       time.Time
		want      model.DecisionKind
	}{
		{
			name:      "активный грант",
			file:      testFile(model.VisibilityPrivate),
			grants:    []*model.Grant{testGrant(now.Add(time.Hour))},
			requester: recipientAddr,
			now:       now,
			want:      model.DecisionGranted,
		},
		{
			name:      "грант истёк ровно в now",
			file:      testFile(model.VisibilityPrivate),
			grants:    []*model.Grant{testGrant(now)},
			requester: recipientAddr,
			now:       now,
			want:      model.DecisionExpired,
		},
		{
			name:      "грант истёк в прошлом",
			file:      testFile(model.VisibilityPrivate),
			grants:    []*model.Grant{testGrant(now.Add(-time.Minute))},
			requester: recipientAddr,
			now:       now,
			want:      model.DecisionExpired,
		},
		{
			name:      "гранта нет",
			file:      testFile(model.VisibilityPrivate),
			grants:    nil,
			requester: strangerAddr,
			now:       now,
			want:      model.DecisionNotGranted,
		},
		{
			name:      "грант на другой файл не считается",
			file:      testFile(model.VisibilityPrivate),
			grants:    []*model.Grant{{ContentAddress: "QmOtherHash", Grantor: ownerAddr, Recipient: recipientAddr, ExpiresAt: now.Add(time.Hour)}},
			requester: recipientAddr,
			now:       now,
			want:      model.DecisionNotGranted,
		},
		{
			name:      "владелец читает свой файл без гранта",
			file:      testFile(model.VisibilityPrivate),
			grants:    nil,
			requester: ownerAddr,
			now:       now,
			want:      model.DecisionGranted,
		},
		{
			name:      "universal читается кем угодно",
			file:      testFile(model.VisibilityUniversal),
			grants:    nil,
			requester: strangerAddr,
			now:       now,
			want:      model.DecisionUniversal,
		},
		{
			name:      "universal перекрывает истёкший грант",
			file:      testFile(model.VisibilityUniversal),
			grants:    []*model.Grant{testGrant(now.Add(-time.Hour))},
			requester: recipientAddr,
			now:       now,
			want:      model.DecisionUniversal,
		},
		{
			name:      "universal для анонимного запроса",
			file:      testFile(model.VisibilityUniversal),
			grants:    nil,
			requester: "",
			now:       now,
			want:      model.DecisionUniversal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.file, tt.grants, tt.requester, tt.now)
			if got.Kind != tt.want {
				t.Errorf("Evaluate() = %q, хотели %q", got.Kind, tt.want)
			}
		})
	}
}

// Expiry monotonicity: до ExpiresAt всегда granted, начиная с ExpiresAt — expired.
func TestEvaluateExpiryMonotonicity(t *testing.T) {
	expiresAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	file := testFile(model.VisibilityPrivate)
	grants := []*model.Grant{testGrant(expiresAt)}

	offsets := []time.Duration{-24 * time.Hour, -time.Second, -time.Nanosecond}
	for _, off := range offsets {
		d := Evaluate(file, grants, recipientAddr, expiresAt.Add(off))
		if d.Kind != model.DecisionGranted {
			t.Errorf("now = expiresAt%+v: Kind = %q, хотели granted", off, d.Kind)
		}
		if !d.ExpiresAt.Equal(expiresAt) {
			t.Errorf("now = expiresAt%+v: ExpiresAt = %v, хотели %v", off, d.ExpiresAt, expiresAt)
		}
	}

	offsets = []time.Duration{0, time.Nanosecond, time.Second, 365 * 24 * time.Hour}
	for _, off := range offsets {
		d := Evaluate(file, grants, recipientAddr, expiresAt.Add(off))
		if d.Kind != model.DecisionExpired {
			t.Errorf("now = expiresAt%+v: Kind = %q, хотели expired", off, d.Kind)
		}
	}
}

// Owner bypass: владелец никогда не получает not_granted или expired.
func TestEvaluateOwnerBypass(t *testing.T) {
	now := time.Now().UTC()
	for _, vis := range []string{model.VisibilityPrivate, model.VisibilityUniversal} {
		file := testFile(vis)
		// Даже с истёкшим грантом на самого владельца
		grants := []*model.Grant{{
			ContentAddress: file.ContentAddress,
			Grantor:        ownerAddr,
			Recipient:      ownerAddr,
			ExpiresAt:      now.Add(-time.Hour),
		}}
		d := Evaluate(file, grants, ownerAddr, now)
		if !d.Allowed() {
			t.Errorf("visibility=%s: владелец получил %q", vis, d.Kind)
		}
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	now := time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)
	file := testFile(model.VisibilityPrivate)
	grants := []*model.Grant{testGrant(now.Add(time.Hour))}

	first := Evaluate(file, grants, recipientAddr, now)
	for i := 0; i < 100; i++ {
		if got := Evaluate(file, grants, recipientAddr, now); got != first {
			t.Fatalf("итерация %d: %+v != %+v", i, got, first)
		}
	}
}
