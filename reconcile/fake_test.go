package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/Luka0103/studyconnect/domain"
)

var errBackend = errors.New("backend unavailable")

type staticIdentity string

func (s staticIdentity) UserID() (string, error) {
	if s == "" {
		return "", errors.New("not signed in")
	}
	return string(s), nil
}

// fakeBackend records every call and answers from function fields.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	list      func(userID string) ([]domain.Task, error)
	create    func(domain.Draft) (domain.Task, error)
	update    func(domain.ID, domain.Patch) (domain.Task, error)
	setStatus func(domain.ID, domain.Status) error
	groups    func(userID string) ([]domain.Group, error)
	admin     func(userID string) ([]domain.Group, error)
	join      func(domain.ID) (domain.Group, error)

	createCtx func(context.Context)
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) ListTasks(_ context.Context, userID string) ([]domain.Task, error) {
	f.record("list")
	if f.list == nil {
		return nil, errBackend
	}
	return f.list(userID)
}

func (f *fakeBackend) CreateTask(ctx context.Context, draft domain.Draft) (domain.Task, error) {
	f.record("create")
	if f.createCtx != nil {
		f.createCtx(ctx)
	}
	if f.create == nil {
		return domain.Task{}, errBackend
	}
	return f.create(draft)
}

func (f *fakeBackend) UpdateTask(_ context.Context, id domain.ID, patch domain.Patch) (domain.Task, error) {
	f.record("update")
	if f.update == nil {
		return domain.Task{}, errBackend
	}
	return f.update(id, patch)
}

func (f *fakeBackend) SetStatus(_ context.Context, id domain.ID, status domain.Status) error {
	f.record("status")
	if f.setStatus == nil {
		return errBackend
	}
	return f.setStatus(id, status)
}

func (f *fakeBackend) ListGroups(_ context.Context, userID string) ([]domain.Group, error) {
	f.record("groups")
	if f.groups == nil {
		return nil, errBackend
	}
	return f.groups(userID)
}

func (f *fakeBackend) ListAdminGroups(_ context.Context, userID string) ([]domain.Group, error) {
	f.record("admin")
	if f.admin == nil {
		return nil, errBackend
	}
	return f.admin(userID)
}

func (f *fakeBackend) JoinGroup(_ context.Context, groupID domain.ID) (domain.Group, error) {
	f.record("join")
	if f.join == nil {
		return domain.Group{}, errBackend
	}
	return f.join(groupID)
}
