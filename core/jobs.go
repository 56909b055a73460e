package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	JobIDRunSync      = "tasksync.sync.run"
	JobIDRefreshToken = "tasksync.token.refresh"
)

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// NewSyncJobMessage builds the queue message for a background sync run. The
// idempotency key collapses duplicate enqueues for the same account while a
// run is still queued.
func NewSyncJobMessage(userID, providerID string) (*JobExecutionMessage, error) {
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	if userID == "" || providerID == "" {
		return nil, fmt.Errorf("core: user id and provider id are required for sync job")
	}
	return &JobExecutionMessage{
		JobID: JobIDRunSync,
		Parameters: map[string]any{
			"user_id":     userID,
			"provider_id": providerID,
		},
		IdempotencyKey: fmt.Sprintf("%s::%s::%s", JobIDRunSync, userID, providerID),
		DedupPolicy:    "drop",
	}, nil
}

// SyncJobParams extracts the account pair from a queue message.
func SyncJobParams(msg *JobExecutionMessage) (userID, providerID string, err error) {
	if msg == nil {
		return "", "", fmt.Errorf("core: job message is required")
	}
	userID, _ = msg.Parameters["user_id"].(string)
	providerID, _ = msg.Parameters["provider_id"].(string)
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	if userID == "" || providerID == "" {
		return "", "", fmt.Errorf("core: job %q is missing user_id or provider_id", msg.JobID)
	}
	return userID, providerID, nil
}
