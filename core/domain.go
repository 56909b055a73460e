package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("core: credential not found")
	ErrTaskNotFound       = errors.New("core: task not found")
	ErrSyncRunNotFound    = errors.New("core: sync run not found")
)

// Credential holds the OAuth tokens for one (user, provider) pair. At most
// one live credential exists per pair; PutCredential replaces atomically.
type Credential struct {
	UserID       string
	ProviderID   string
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Credential) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("core: credential user id is required")
	}
	if strings.TrimSpace(c.ProviderID) == "" {
		return fmt.Errorf("core: credential provider id is required")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("core: credential access token is required")
	}
	return nil
}

// Expired reports whether the access token is unusable without the given
// safety margin before the recorded expiry.
func (c Credential) Expired(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	if margin < 0 {
		margin = 0
	}
	return !c.ExpiresAt.UTC().After(now.UTC().Add(margin))
}

// RemoteTask is the provider-agnostic snapshot of one external task produced
// by a TaskSource. It is never persisted.
type RemoteTask struct {
	ExternalID      string
	Title           string
	Body            string
	DueAt           *time.Time
	Completed       bool
	RemoteUpdatedAt time.Time
}

// LocalTask is the system of record. ExternalID is empty for locally
// authored tasks and unique per user when set.
type LocalTask struct {
	ID          string
	UserID      string
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
	ExternalID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskFields carries the mutable attributes applied on create or update.
type TaskFields struct {
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
	ExternalID  string
	UpdatedAt   time.Time
}

// TaskFilter narrows a remote fetch to one provider-side list. The cursor is
// the opaque continuation token returned in TaskPage.NextCursor.
type TaskFilter struct {
	ListID string
	Cursor string
}

// TaskPage is one page of normalized remote tasks. An empty NextCursor means
// the collection is exhausted.
type TaskPage struct {
	Tasks      []RemoteTask
	NextCursor string
}

type SyncItemError struct {
	ExternalID string
	Message    string
}

// SyncResult aggregates one sync invocation. Tasks holds the local records
// created or updated during the run.
type SyncResult struct {
	RunID     string
	UserID    string
	Created   int
	Updated   int
	Skipped   int
	Failed    int
	Tasks     []LocalTask
	Errors    []SyncItemError
	StartedAt time.Time
	Duration  time.Duration
}

type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusSucceeded SyncRunStatus = "succeeded"
	SyncRunStatusFailed    SyncRunStatus = "failed"
)

// SyncRun is the persisted summary of a sync invocation, kept for the
// controller's "last sync" view.
type SyncRun struct {
	ID         string
	UserID     string
	ProviderID string
	Status     SyncRunStatus
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	LastError  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Metadata   map[string]any
}

type ConnectionState string

const (
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateExpiring     ConnectionState = "expiring"
	ConnectionStateNotConnected ConnectionState = "not_connected"
)

// ConnectionStatus is the getValidAccessToken-backed answer to "is this user
// connected to the provider".
type ConnectionStatus struct {
	UserID     string
	ProviderID string
	State      ConnectionState
	ExpiresAt  *time.Time
	Scopes     []string
}

// TokenGrant is the outcome of an authorization-code exchange or a
// refresh-token exchange against the provider token endpoint.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    *time.Time
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}

func cloneTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func cloneCredential(c Credential) Credential {
	cloned := c
	cloned.Scopes = cloneStrings(c.Scopes)
	return cloned
}

func cloneLocalTask(t LocalTask) LocalTask {
	cloned := t
	cloned.DueAt = cloneTimePtr(t.DueAt)
	return cloned
}
