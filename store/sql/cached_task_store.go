package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tasksync/core"
)

const taskCacheKeyPrefix = "go-tasksync::task_by_external_id::v1"

// CachedTaskStore fronts a TaskStore with a read-through cache on the
// external-id lookup, which the reconciler hits once per remote task on
// every run. Writes invalidate the affected key.
type CachedTaskStore struct {
	base  core.TaskStore
	cache repositorycache.CacheService
}

func NewCachedTaskStore(base core.TaskStore, cacheService repositorycache.CacheService) (*CachedTaskStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base task store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: task cache service is required")
	}
	return &CachedTaskStore{base: base, cache: cacheService}, nil
}

// TaskCacheKey returns the deterministic cache key contract for the
// external-id lookup: go-tasksync::task_by_external_id::v1::<user>::<external>
// with each segment URL-path escaped.
func TaskCacheKey(userID, externalID string) (string, error) {
	userID = strings.TrimSpace(userID)
	externalID = strings.TrimSpace(externalID)
	if userID == "" || externalID == "" {
		return "", fmt.Errorf("sqlstore: user id and external id are required for cache key")
	}
	return strings.Join([]string{
		taskCacheKeyPrefix,
		url.PathEscape(userID),
		url.PathEscape(externalID),
	}, "::"), nil
}

func (s *CachedTaskStore) FindByExternalID(ctx context.Context, userID, externalID string) (core.LocalTask, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LocalTask{}, fmt.Errorf("sqlstore: cached task store is not configured")
	}
	cacheKey, err := TaskCacheKey(userID, externalID)
	if err != nil {
		return core.LocalTask{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.LocalTask, error) {
		return s.base.FindByExternalID(ctx, userID, externalID)
	})
}

func (s *CachedTaskStore) Create(ctx context.Context, userID string, fields core.TaskFields) (core.LocalTask, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LocalTask{}, fmt.Errorf("sqlstore: cached task store is not configured")
	}
	created, err := s.base.Create(ctx, userID, fields)
	if err != nil {
		return core.LocalTask{}, err
	}
	s.invalidate(ctx, created.UserID, created.ExternalID)
	return created, nil
}

func (s *CachedTaskStore) Update(ctx context.Context, taskID string, fields core.TaskFields) (core.LocalTask, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LocalTask{}, fmt.Errorf("sqlstore: cached task store is not configured")
	}
	updated, err := s.base.Update(ctx, taskID, fields)
	if err != nil {
		return core.LocalTask{}, err
	}
	s.invalidate(ctx, updated.UserID, updated.ExternalID)
	return updated, nil
}

func (s *CachedTaskStore) invalidate(ctx context.Context, userID, externalID string) {
	if strings.TrimSpace(externalID) == "" {
		return
	}
	cacheKey, err := TaskCacheKey(userID, externalID)
	if err != nil {
		return
	}
	_ = s.cache.Delete(ctx, cacheKey)
}
