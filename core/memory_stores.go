package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCredentialStore is the in-process CredentialStore used by tests and
// single-node deployments.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	entries map[string]Credential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		entries: map[string]Credential{},
	}
}

func credentialKey(userID, providerID string) string {
	return strings.TrimSpace(userID) + "::" + strings.TrimSpace(providerID)
}

func (s *MemoryCredentialStore) Get(_ context.Context, userID, providerID string) (Credential, error) {
	if s == nil {
		return Credential{}, fmt.Errorf("core: credential store is not configured")
	}
	s.mu.Lock()
	credential, ok := s.entries[credentialKey(userID, providerID)]
	s.mu.Unlock()
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cloneCredential(credential), nil
}

func (s *MemoryCredentialStore) Put(_ context.Context, credential Credential) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	if err := credential.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = now

	s.mu.Lock()
	s.entries[credentialKey(credential.UserID, credential.ProviderID)] = cloneCredential(credential)
	s.mu.Unlock()
	return nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, userID, providerID string) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	s.mu.Lock()
	delete(s.entries, credentialKey(userID, providerID))
	s.mu.Unlock()
	return nil
}

// MemoryTaskStore keeps local tasks in memory, indexed by id and by
// (user, external id).
type MemoryTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]LocalTask
	external map[string]string
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:    map[string]LocalTask{},
		external: map[string]string{},
	}
}

func externalTaskKey(userID, externalID string) string {
	return strings.TrimSpace(userID) + "::" + strings.TrimSpace(externalID)
}

func (s *MemoryTaskStore) FindByExternalID(_ context.Context, userID, externalID string) (LocalTask, error) {
	if s == nil {
		return LocalTask{}, fmt.Errorf("core: task store is not configured")
	}
	if strings.TrimSpace(externalID) == "" {
		return LocalTask{}, fmt.Errorf("core: external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	taskID, ok := s.external[externalTaskKey(userID, externalID)]
	if !ok {
		return LocalTask{}, ErrTaskNotFound
	}
	task, ok := s.tasks[taskID]
	if !ok {
		return LocalTask{}, ErrTaskNotFound
	}
	return cloneLocalTask(task), nil
}

func (s *MemoryTaskStore) Create(_ context.Context, userID string, fields TaskFields) (LocalTask, error) {
	if s == nil {
		return LocalTask{}, fmt.Errorf("core: task store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return LocalTask{}, fmt.Errorf("core: user id is required")
	}
	if strings.TrimSpace(fields.Title) == "" {
		return LocalTask{}, fmt.Errorf("core: task title is required")
	}

	now := time.Now().UTC()
	updatedAt := fields.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	task := LocalTask{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       fields.Title,
		Description: fields.Description,
		DueAt:       cloneTimePtr(fields.DueAt),
		Completed:   fields.Completed,
		ExternalID:  strings.TrimSpace(fields.ExternalID),
		CreatedAt:   now,
		UpdatedAt:   updatedAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ExternalID != "" {
		key := externalTaskKey(userID, task.ExternalID)
		if _, exists := s.external[key]; exists {
			return LocalTask{}, fmt.Errorf("core: task with external id %q already exists", task.ExternalID)
		}
		s.external[key] = task.ID
	}
	s.tasks[task.ID] = cloneLocalTask(task)
	return task, nil
}

func (s *MemoryTaskStore) Update(_ context.Context, taskID string, fields TaskFields) (LocalTask, error) {
	if s == nil {
		return LocalTask{}, fmt.Errorf("core: task store is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return LocalTask{}, fmt.Errorf("core: task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return LocalTask{}, ErrTaskNotFound
	}

	task.Title = fields.Title
	task.Description = fields.Description
	task.DueAt = cloneTimePtr(fields.DueAt)
	task.Completed = fields.Completed
	if updatedAt := fields.UpdatedAt; !updatedAt.IsZero() {
		task.UpdatedAt = updatedAt.UTC()
	} else {
		task.UpdatedAt = time.Now().UTC()
	}

	s.tasks[taskID] = cloneLocalTask(task)
	return cloneLocalTask(task), nil
}

// MemorySyncRunStore retains the most recent runs per user.
type MemorySyncRunStore struct {
	mu   sync.Mutex
	runs map[string]SyncRun
}

func NewMemorySyncRunStore() *MemorySyncRunStore {
	return &MemorySyncRunStore{
		runs: map[string]SyncRun{},
	}
}

func (s *MemorySyncRunStore) Save(_ context.Context, run SyncRun) error {
	if s == nil {
		return fmt.Errorf("core: sync run store is not configured")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("core: sync run id is required")
	}
	s.mu.Lock()
	s.runs[credentialKey(run.UserID, run.ProviderID)] = run
	s.mu.Unlock()
	return nil
}

func (s *MemorySyncRunStore) LastForUser(_ context.Context, userID, providerID string) (SyncRun, error) {
	if s == nil {
		return SyncRun{}, fmt.Errorf("core: sync run store is not configured")
	}
	s.mu.Lock()
	run, ok := s.runs[credentialKey(userID, providerID)]
	s.mu.Unlock()
	if !ok {
		return SyncRun{}, ErrSyncRunNotFound
	}
	return run, nil
}
