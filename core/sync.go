package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// syncGuard tracks in-flight sync runs per account so a second request
// fails fast instead of queueing.
type syncGuard struct {
	mu       *sync.Mutex
	inFlight map[string]struct{}
}

func newSyncGuard() syncGuard {
	return syncGuard{
		mu:       &sync.Mutex{},
		inFlight: map[string]struct{}{},
	}
}

func (g syncGuard) begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, running := g.inFlight[key]; running {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g syncGuard) end(key string) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

// SyncOption narrows what a sync run fetches.
type SyncOption func(*TaskFilter)

// WithListFilter scopes the run to one provider-side list. A blank id keeps
// the provider's default list selection.
func WithListFilter(listID string) SyncOption {
	return func(filter *TaskFilter) {
		filter.ListID = strings.TrimSpace(listID)
	}
}

// Sync pulls every remote task for the account and reconciles it into the
// local store. Item failures are isolated; the run keeps going and reports
// them in the result. Local tasks are never deleted.
func (s *Service) Sync(ctx context.Context, userID, providerID string, opts ...SyncOption) (result SyncResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     userID,
	}
	defer func() {
		fields["created"] = result.Created
		fields["updated"] = result.Updated
		fields["skipped"] = result.Skipped
		fields["failed"] = result.Failed
		s.observeOperation(ctx, startedAt, "sync", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		err = s.mapError(fmt.Errorf("core: user id is required"))
		return SyncResult{}, err
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		err = s.mapError(fmt.Errorf("core: provider id is required"))
		return SyncResult{}, err
	}
	if s.taskStore == nil {
		err = s.mapError(fmt.Errorf("core: task store is not configured"))
		return SyncResult{}, err
	}

	guardKey := LockKey(userID, providerID)
	if !s.syncGuard.begin(guardKey) {
		err = newSyncError(
			fmt.Sprintf("core: sync already running for user %q provider %q", userID, providerID),
			goerrors.CategoryConflict,
			SyncErrorSyncInProgress,
		)
		return SyncResult{}, err
	}
	defer s.syncGuard.end(guardKey)

	integration, err := s.resolveIntegration(providerID)
	if err != nil {
		return SyncResult{}, err
	}

	runID := uuid.NewString()
	fields["run_id"] = runID
	runStartedAt := s.now()
	result = SyncResult{
		RunID:     runID,
		UserID:    userID,
		StartedAt: runStartedAt,
	}
	s.recordSyncRun(ctx, SyncRun{
		ID:         runID,
		UserID:     userID,
		ProviderID: integration.ID(),
		Status:     SyncRunStatusRunning,
		StartedAt:  runStartedAt,
	})

	accessToken, err := s.ValidAccessToken(ctx, userID, providerID)
	if err != nil {
		s.finishSyncRun(ctx, runID, userID, integration.ID(), runStartedAt, result, err)
		return SyncResult{}, err
	}

	filter := TaskFilter{}
	for _, opt := range opts {
		if opt != nil {
			opt(&filter)
		}
	}
	if filter.ListID != "" {
		fields["list_id"] = filter.ListID
	}
	refreshed := false
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = s.mapError(ctxErr)
			s.finishSyncRun(ctx, runID, userID, integration.ID(), runStartedAt, result, err)
			return result, err
		}

		page, fetchErr := s.fetchPage(ctx, integration, accessToken, filter)
		if fetchErr != nil {
			if IsUnauthorized(fetchErr) && !refreshed {
				refreshed = true
				accessToken, err = s.RefreshAccessToken(ctx, userID, providerID)
				if err != nil {
					s.finishSyncRun(ctx, runID, userID, integration.ID(), runStartedAt, result, err)
					return result, err
				}
				continue
			}
			err = s.mapError(fetchErr)
			s.finishSyncRun(ctx, runID, userID, integration.ID(), runStartedAt, result, err)
			return result, err
		}

		for _, remote := range page.Tasks {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = s.mapError(ctxErr)
				s.finishSyncRun(ctx, runID, userID, integration.ID(), runStartedAt, result, err)
				return result, err
			}
			s.reconcileTask(ctx, userID, remote, &result)
		}

		if page.NextCursor == "" {
			break
		}
		filter.Cursor = page.NextCursor
	}

	result.Duration = time.Since(startedAt)
	s.finishSyncRun(ctx, runID, userID, integration.ID(), runStartedAt, result, nil)
	return result, nil
}

// fetchPage retries transient provider failures with bounded backoff,
// honoring a Retry-After hint when the provider supplies one.
func (s *Service) fetchPage(ctx context.Context, source TaskSource, accessToken string, filter TaskFilter) (TaskPage, error) {
	maxAttempts := s.config.Sync.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRetryMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		page, err := source.FetchTasks(ctx, accessToken, filter)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == maxAttempts {
			return TaskPage{}, err
		}

		delay := defaultRetryInitialBackoff
		if s.backoffScheduler != nil {
			delay = s.backoffScheduler.NextDelay(attempt)
		}
		if hint := RetryAfter(err); hint > delay {
			delay = hint
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return TaskPage{}, waitErr
		}
	}
	return TaskPage{}, lastErr
}

// reconcileTask applies one remote task: create when unseen, update when the
// remote copy is strictly newer, skip otherwise. Failures are recorded on
// the result and do not stop the run.
func (s *Service) reconcileTask(ctx context.Context, userID string, remote RemoteTask, result *SyncResult) {
	externalID := strings.TrimSpace(remote.ExternalID)
	if externalID == "" {
		result.Failed++
		result.Errors = append(result.Errors, SyncItemError{
			Message: "remote task has no external id",
		})
		return
	}
	if strings.TrimSpace(remote.Title) == "" {
		result.Failed++
		result.Errors = append(result.Errors, SyncItemError{
			ExternalID: externalID,
			Message:    "remote task has no title",
		})
		return
	}

	fields := TaskFields{
		Title:       remote.Title,
		Description: remote.Body,
		DueAt:       cloneTimePtr(remote.DueAt),
		Completed:   remote.Completed,
		ExternalID:  externalID,
		UpdatedAt:   remote.RemoteUpdatedAt.UTC(),
	}

	local, err := s.taskStore.FindByExternalID(ctx, userID, externalID)
	switch {
	case errors.Is(err, ErrTaskNotFound):
		created, createErr := s.taskStore.Create(ctx, userID, fields)
		if createErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncItemError{
				ExternalID: externalID,
				Message:    createErr.Error(),
			})
			return
		}
		result.Created++
		result.Tasks = append(result.Tasks, created)
	case err != nil:
		result.Failed++
		result.Errors = append(result.Errors, SyncItemError{
			ExternalID: externalID,
			Message:    err.Error(),
		})
	default:
		// Remote wins only when strictly newer; a tie keeps the local copy.
		if !remote.RemoteUpdatedAt.UTC().After(local.UpdatedAt.UTC()) {
			result.Skipped++
			return
		}
		updated, updateErr := s.taskStore.Update(ctx, local.ID, fields)
		if updateErr != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncItemError{
				ExternalID: externalID,
				Message:    updateErr.Error(),
			})
			return
		}
		result.Updated++
		result.Tasks = append(result.Tasks, updated)
	}
}

func (s *Service) LastSyncRun(ctx context.Context, userID, providerID string) (run SyncRun, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "last_sync_run", err, fields)
	}()

	if s == nil || s.syncRunStore == nil {
		err = s.mapError(fmt.Errorf("core: sync run store is not configured"))
		return SyncRun{}, err
	}
	run, err = s.syncRunStore.LastForUser(ctx, strings.TrimSpace(userID), strings.TrimSpace(providerID))
	if err != nil {
		err = s.mapError(err)
		return SyncRun{}, err
	}
	return run, nil
}

func (s *Service) recordSyncRun(ctx context.Context, run SyncRun) {
	if s == nil || s.syncRunStore == nil {
		return
	}
	if saveErr := s.syncRunStore.Save(ctx, run); saveErr != nil {
		s.logError(ctx, "sync run record failed", map[string]any{
			"run_id": run.ID,
			"error":  saveErr.Error(),
		})
	}
}

func (s *Service) finishSyncRun(
	ctx context.Context,
	runID, userID, providerID string,
	runStartedAt time.Time,
	result SyncResult,
	runErr error,
) {
	if s == nil || s.syncRunStore == nil {
		return
	}
	finishedAt := s.now()
	run := SyncRun{
		ID:         runID,
		UserID:     userID,
		ProviderID: providerID,
		Status:     SyncRunStatusSucceeded,
		Created:    result.Created,
		Updated:    result.Updated,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
		StartedAt:  runStartedAt,
		FinishedAt: &finishedAt,
	}
	if runErr != nil {
		run.Status = SyncRunStatusFailed
		run.LastError = runErr.Error()
	}
	s.recordSyncRun(ctx, run)
}
