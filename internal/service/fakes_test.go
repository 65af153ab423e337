// fakes_test.go — in-memory реализации репозиториев для unit-тестов сервисов.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arturkryukov/datavault/access-module/internal/domain/model"
	"github.com/arturkryukov/datavault/access-module/internal/events"
	"github.com/arturkryukov/datavault/access-module/internal/repository"
)

// --- fakeRequestRepo ---

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*model.AccessRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*model.AccessRequest)}
}

func (f *fakeRequestRepo) Create(_ context.Context, req *model.AccessRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.Requester == req.Requester && existing.Owner == req.Owner && existing.FileName == req.FileName {
			return fmt.Errorf("%w: дубликат", repository.ErrConflict)
		}
	}
	cp := *req
	cp.CreatedAt = time.Now().UTC()
	f.requests[req.ID] = &cp
	req.CreatedAt = cp.CreatedAt
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id string) (*model.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestRepo) Respond(_ context.Context, id string, owner model.Address, status string, respondedAt time.Time) (*model.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Owner != owner {
		return nil, repository.ErrNotFound
	}
	if req.Status != model.RequestStatusPending {
		return nil, fmt.Errorf("%w: текущий статус %q", repository.ErrNotPending, req.Status)
	}
	req.Status = status
	req.RespondedAt = &respondedAt
	req.Read = true
	cp := *req
	return &cp, nil
}

func (f *fakeRequestRepo) ListByOwner(_ context.Context, owner model.Address) ([]*model.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.AccessRequest
	for _, req := range f.requests {
		if req.Owner == owner {
			cp := *req
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeRequestRepo) ListByRequester(_ context.Context, requester model.Address) ([]*model.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.AccessRequest
	for _, req := range f.requests {
		if req.Requester == requester {
			cp := *req
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeRequestRepo) MarkRead(_ context.Context, id string, owner model.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Owner != owner {
		return repository.ErrNotFound
	}
	req.Read = true
	return nil
}

func (f *fakeRequestRepo) CountUnread(_ context.Context, owner model.Address) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, req := range f.requests {
		if req.Owner == owner && !req.Read {
			count++
		}
	}
	return count, nil
}

// --- fakeFileRepo ---

type fakeFileRepo struct {
	mu    sync.Mutex
	files map[string]*model.FileRecord
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[string]*model.FileRecord)}
}

func (f *fakeFileRepo) Upsert(_ context.Context, rec *model.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	if existing, ok := f.files[rec.ContentAddress]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	f.files[rec.ContentAddress] = &cp
	return nil
}

func (f *fakeFileRepo) GetByContentAddress(_ context.Context, ca string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[ca]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeFileRepo) ListByOwner(_ context.Context, owner model.Address) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.FileRecord
	for _, rec := range f.files {
		if rec.Owner == owner {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeFileRepo) FindByOwnerAndDescriptor(_ context.Context, owner model.Address, descriptor string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var freshest *model.FileRecord
	for _, rec := range f.files {
		if rec.Owner == owner && rec.Descriptor == descriptor {
			if freshest == nil || rec.CreatedAt.After(freshest.CreatedAt) {
				freshest = rec
			}
		}
	}
	if freshest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *freshest
	return &cp, nil
}

func (f *fakeFileRepo) SetVisibility(_ context.Context, ca, visibility string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[ca]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Visibility = visibility
	return nil
}

func (f *fakeFileRepo) ListOwners(_ context.Context) ([]model.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[model.Address]struct{})
	var result []model.Address
	for _, rec := range f.files {
		if _, ok := seen[rec.Owner]; !ok {
			seen[rec.Owner] = struct{}{}
			result = append(result, rec.Owner)
		}
	}
	return result, nil
}

// --- fakeGrantRepo ---

type grantKey struct {
	ca        string
	recipient model.Address
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[grantKey]*model.Grant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[grantKey]*model.Grant)}
}

func (f *fakeGrantRepo) Upsert(_ context.Context, g *model.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	f.grants[grantKey{g.ContentAddress, g.Recipient}] = &cp
	return nil
}

func (f *fakeGrantRepo) Get(_ context.Context, ca string, recipient model.Address) (*model.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[grantKey{ca, recipient}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGrantRepo) Delete(_ context.Context, ca string, recipient model.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := grantKey{ca, recipient}
	if _, ok := f.grants[key]; !ok {
		return repository.ErrNotFound
	}
	delete(f.grants, key)
	return nil
}

func (f *fakeGrantRepo) ListByFile(_ context.Context, ca string) ([]*model.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.Grant
	for key, g := range f.grants {
		if key.ca == ca {
			cp := *g
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeGrantRepo) ListByRecipient(_ context.Context, recipient model.Address) ([]*model.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.Grant
	for key, g := range f.grants {
		if key.recipient == recipient {
			cp := *g
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeGrantRepo) ReplaceAllForGrantor(_ context.Context, grantor model.Address, grants []*model.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, g := range f.grants {
		if g.Grantor == grantor {
			delete(f.grants, key)
		}
	}
	for _, g := range grants {
		cp := *g
		f.grants[grantKey{g.ContentAddress, g.Recipient}] = &cp
	}
	return nil
}

// --- fakeResolver ---

type fakeResolver struct {
	mu    sync.Mutex
	names map[string]string
	err   error
	calls int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{names: make(map[string]string)}
}

func (f *fakeResolver) ResolveName(_ context.Context, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.names[address], nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- fakeNotifier ---

type fakeNotifier struct {
	mu     sync.Mutex
	events []events.Event
	owners []model.Address
}

func (f *fakeNotifier) Notify(owner model.Address, ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, owner)
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) last() (model.Address, events.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return "", events.Event{}, false
	}
	return f.owners[len(f.owners)-1], f.events[len(f.events)-1], true
}

// --- fakeIssuer ---

type fakeIssuer struct {
	mu     sync.Mutex
	err    error
	grants []*model.Grant
}

func (f *fakeIssuer) Grant(_ context.Context, grantor model.Address, ca string, recipient model.Address, expiresAt time.Time) (*model.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	g := &model.Grant{
		ContentAddress: ca,
		Grantor:        grantor,
		Recipient:      recipient,
		ExpiresAt:      expiresAt,
	}
	f.grants = append(f.grants, g)
	return g, nil
}
