package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tasksync/core"
)

type stubTaskStore struct {
	mu          sync.Mutex
	task        core.LocalTask
	findCalls   int
	createCalls int
	updateCalls int
	findErr     error
	createErr   error
	updateErr   error
}

func (s *stubTaskStore) FindByExternalID(_ context.Context, _, _ string) (core.LocalTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return core.LocalTask{}, s.findErr
	}
	return s.task, nil
}

func (s *stubTaskStore) Create(_ context.Context, userID string, fields core.TaskFields) (core.LocalTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return core.LocalTask{}, s.createErr
	}
	s.task = core.LocalTask{
		ID:         "task-1",
		UserID:     userID,
		Title:      fields.Title,
		ExternalID: fields.ExternalID,
		UpdatedAt:  fields.UpdatedAt,
	}
	return s.task, nil
}

func (s *stubTaskStore) Update(_ context.Context, taskID string, fields core.TaskFields) (core.LocalTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return core.LocalTask{}, s.updateErr
	}
	s.task.ID = taskID
	s.task.Title = fields.Title
	s.task.UpdatedAt = fields.UpdatedAt
	return s.task, nil
}

func (s *stubTaskStore) counts() (find, create, update int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls, s.createCalls, s.updateCalls
}

func newTestTaskCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedTaskStore_FindMissFetchThenHit(t *testing.T) {
	base := &stubTaskStore{
		task: core.LocalTask{ID: "task-1", UserID: "usr_1", Title: "Cached", ExternalID: "ext-1"},
	}
	store, err := NewCachedTaskStore(base, newTestTaskCacheService(t))
	if err != nil {
		t.Fatalf("new cached task store: %v", err)
	}

	if _, err := store.FindByExternalID(context.Background(), "usr_1", "ext-1"); err != nil {
		t.Fatalf("first find: %v", err)
	}
	if find, _, _ := base.counts(); find != 1 {
		t.Fatalf("expected first find to hit the base store, got %d", find)
	}

	if _, err := store.FindByExternalID(context.Background(), "usr_1", "ext-1"); err != nil {
		t.Fatalf("second find: %v", err)
	}
	if find, _, _ := base.counts(); find != 1 {
		t.Fatalf("expected second find to be a cache hit, base calls=%d", find)
	}
}

func TestCachedTaskStore_UpdateInvalidatesCachedKey(t *testing.T) {
	base := &stubTaskStore{
		task: core.LocalTask{ID: "task-1", UserID: "usr_1", Title: "Before", ExternalID: "ext-1"},
	}
	store, err := NewCachedTaskStore(base, newTestTaskCacheService(t))
	if err != nil {
		t.Fatalf("new cached task store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.FindByExternalID(ctx, "usr_1", "ext-1"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if _, err := store.Update(ctx, "task-1", core.TaskFields{Title: "After", ExternalID: "ext-1"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.FindByExternalID(ctx, "usr_1", "ext-1")
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	find, _, update := base.counts()
	if update != 1 {
		t.Fatalf("expected one base update, got %d", update)
	}
	if find != 2 {
		t.Fatalf("expected invalidation to force a second base read, got %d", find)
	}
	if got.Title != "After" {
		t.Fatalf("expected refreshed task, got %#v", got)
	}
}

func TestCachedTaskStore_CreateInvalidatesCachedMiss(t *testing.T) {
	base := &stubTaskStore{findErr: core.ErrTaskNotFound}
	store, err := NewCachedTaskStore(base, newTestTaskCacheService(t))
	if err != nil {
		t.Fatalf("new cached task store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.FindByExternalID(ctx, "usr_1", "ext-1"); !errors.Is(err, core.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	base.mu.Lock()
	base.findErr = nil
	base.mu.Unlock()

	if _, err := store.Create(ctx, "usr_1", core.TaskFields{Title: "Fresh", ExternalID: "ext-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByExternalID(ctx, "usr_1", "ext-1")
	if err != nil {
		t.Fatalf("find after create: %v", err)
	}
	if got.Title != "Fresh" {
		t.Fatalf("expected created task visible, got %#v", got)
	}
}

func TestTaskCacheKey_Contract(t *testing.T) {
	key, err := TaskCacheKey(" usr/1 ", "ext:1 ")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "go-tasksync::task_by_external_id::v1::usr%2F1::ext:1"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := TaskCacheKey("", "ext-1"); err == nil {
		t.Fatalf("expected missing user id error")
	}
	if _, err := TaskCacheKey("usr_1", "  "); err == nil {
		t.Fatalf("expected missing external id error")
	}
}

func TestNewCachedTaskStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedTaskStore(nil, newTestTaskCacheService(t)); err == nil {
		t.Fatalf("expected missing base store error")
	}
	if _, err := NewCachedTaskStore(&stubTaskStore{}, nil); err == nil {
		t.Fatalf("expected missing cache service error")
	}
}
