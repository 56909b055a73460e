package core

import (
	"context"
	"time"
)

// CredentialStore persists OAuth credentials. Put replaces any existing
// credential for the same (user, provider) pair atomically.
type CredentialStore interface {
	Get(ctx context.Context, userID, providerID string) (Credential, error)
	Put(ctx context.Context, credential Credential) error
	Delete(ctx context.Context, userID, providerID string) error
}

// TaskStore is the local system of record the reconciler writes to. Lookup
// is by (user, external id); the reconciler never deletes.
type TaskStore interface {
	FindByExternalID(ctx context.Context, userID, externalID string) (LocalTask, error)
	Create(ctx context.Context, userID string, fields TaskFields) (LocalTask, error)
	Update(ctx context.Context, taskID string, fields TaskFields) (LocalTask, error)
}

// SyncRunStore records sync invocations for the status surface. Optional;
// services treat a nil store as "do not record".
type SyncRunStore interface {
	Save(ctx context.Context, run SyncRun) error
	LastForUser(ctx context.Context, userID, providerID string) (SyncRun, error)
}

// StoreProvider bundles the persistence stores a fully wired service needs.
// Implementations back them with a shared database handle.
type StoreProvider interface {
	CredentialStore() CredentialStore
	TaskStore() TaskStore
	SyncRunStore() SyncRunStore
}

// TokenProvider is one OAuth 2.0 provider integration: it builds the
// authorization redirect and talks to the token endpoint.
type TokenProvider interface {
	ID() string
	AuthorizationURL(state, redirectURI string, scopes []string) (string, error)
	Exchange(ctx context.Context, code, redirectURI string) (TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (TokenGrant, error)
	Revoke(ctx context.Context, token string) error
}

// TaskSource fetches one page of normalized tasks from the remote provider
// using a bearer token. Implementations classify provider failures into the
// error categories the sync engine reacts to.
type TaskSource interface {
	ID() string
	FetchTasks(ctx context.Context, accessToken string, filter TaskFilter) (TaskPage, error)
}

// CollectTasks drains a TaskSource page by page until the cursor is
// exhausted. Sync loops page explicitly for retry control; this helper
// serves callers that just want everything.
func CollectTasks(ctx context.Context, source TaskSource, accessToken string, filter TaskFilter) ([]RemoteTask, error) {
	var tasks []RemoteTask
	for {
		page, err := source.FetchTasks(ctx, accessToken, filter)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, page.Tasks...)
		if page.NextCursor == "" {
			return tasks, nil
		}
		filter.Cursor = page.NextCursor
	}
}

// Clock lets tests pin time. The zero value falls back to time.Now.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
