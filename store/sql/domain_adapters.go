package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-tasksync/core"
)

func newCredentialRecord(credential core.Credential, now time.Time) *credentialRecord {
	record := &credentialRecord{
		UserID:       strings.TrimSpace(credential.UserID),
		ProviderID:   strings.TrimSpace(credential.ProviderID),
		TokenType:    credential.TokenType,
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		Scopes:       cloneStrings(credential.Scopes),
		CreatedAt:    credential.CreatedAt,
		UpdatedAt:    now,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if !credential.ExpiresAt.IsZero() {
		expiresAt := credential.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	credential := core.Credential{
		UserID:       r.UserID,
		ProviderID:   r.ProviderID,
		TokenType:    r.TokenType,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Scopes:       cloneStrings(r.Scopes),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		credential.ExpiresAt = r.ExpiresAt.UTC()
	}
	return credential
}

func newTaskRecord(userID string, fields core.TaskFields, now time.Time) *taskRecord {
	record := &taskRecord{
		UserID:      strings.TrimSpace(userID),
		Title:       fields.Title,
		Description: fields.Description,
		DueAt:       cloneTimePointer(fields.DueAt),
		Completed:   fields.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if externalID := strings.TrimSpace(fields.ExternalID); externalID != "" {
		record.ExternalID = &externalID
	}
	if !fields.UpdatedAt.IsZero() {
		record.UpdatedAt = fields.UpdatedAt.UTC()
	}
	return record
}

func (r *taskRecord) toDomain() core.LocalTask {
	if r == nil {
		return core.LocalTask{}
	}
	task := core.LocalTask{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		DueAt:       cloneTimePointer(r.DueAt),
		Completed:   r.Completed,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ExternalID != nil {
		task.ExternalID = *r.ExternalID
	}
	return task
}

func newSyncRunRecord(run core.SyncRun, now time.Time) *syncRunRecord {
	return &syncRunRecord{
		ID:         strings.TrimSpace(run.ID),
		UserID:     strings.TrimSpace(run.UserID),
		ProviderID: strings.TrimSpace(run.ProviderID),
		Status:     string(run.Status),
		Created:    run.Created,
		Updated:    run.Updated,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		LastError:  run.LastError,
		Metadata:   copyAnyMap(run.Metadata),
		StartedAt:  run.StartedAt,
		FinishedAt: cloneTimePointer(run.FinishedAt),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *syncRunRecord) toDomain() core.SyncRun {
	if r == nil {
		return core.SyncRun{}
	}
	return core.SyncRun{
		ID:         r.ID,
		UserID:     r.UserID,
		ProviderID: r.ProviderID,
		Status:     core.SyncRunStatus(r.Status),
		Created:    r.Created,
		Updated:    r.Updated,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		LastError:  r.LastError,
		Metadata:   copyAnyMap(r.Metadata),
		StartedAt:  r.StartedAt,
		FinishedAt: cloneTimePointer(r.FinishedAt),
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}

func cloneTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
