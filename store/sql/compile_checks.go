package sqlstore

import "github.com/goliatone/go-tasksync/core"

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.TaskStore       = (*TaskStore)(nil)
	_ core.TaskStore       = (*CachedTaskStore)(nil)
	_ core.SyncRunStore    = (*SyncRunStore)(nil)
	_ core.StoreProvider   = (*RepositoryFactory)(nil)
)
