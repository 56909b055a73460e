package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultSyncWorkerRetryDelay = 30 * time.Second

// SyncWorker drains sync jobs from a queue and executes them against the
// service. Transient failures requeue the delivery; malformed or terminal
// failures dead-letter it.
type SyncWorker struct {
	service    SyncService
	dequeuer   JobDequeuer
	hook       JobWorkerHook
	logger     Logger
	retryDelay time.Duration
}

type SyncWorkerOption func(*SyncWorker)

func WithSyncWorkerHook(hook JobWorkerHook) SyncWorkerOption {
	return func(w *SyncWorker) {
		w.hook = hook
	}
}

func WithSyncWorkerLogger(logger Logger) SyncWorkerOption {
	return func(w *SyncWorker) {
		w.logger = logger
	}
}

func WithSyncWorkerRetryDelay(delay time.Duration) SyncWorkerOption {
	return func(w *SyncWorker) {
		if delay > 0 {
			w.retryDelay = delay
		}
	}
}

func NewSyncWorker(service SyncService, dequeuer JobDequeuer, options ...SyncWorkerOption) (*SyncWorker, error) {
	if service == nil {
		return nil, fmt.Errorf("core: sync service is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	worker := &SyncWorker{
		service:    service,
		dequeuer:   dequeuer,
		retryDelay: defaultSyncWorkerRetryDelay,
	}
	for _, option := range options {
		if option != nil {
			option(worker)
		}
	}
	return worker, nil
}

// Run blocks processing deliveries until the context is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w == nil || w.service == nil || w.dequeuer == nil {
		return fmt.Errorf("core: sync worker is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logWarn("dequeue failed", err)
			if waitErr := waitWithContext(ctx, w.retryDelay); waitErr != nil {
				return waitErr
			}
			continue
		}
		w.processDelivery(ctx, delivery)
	}
}

func (w *SyncWorker) processDelivery(ctx context.Context, delivery JobDelivery) {
	if delivery == nil {
		return
	}
	msg := delivery.Message()
	startedAt := time.Now().UTC()
	event := JobWorkerEvent{Message: msg, Attempt: 1, StartedAt: startedAt}
	w.emit(ctx, event, hookStart)

	userID, providerID, err := SyncJobParams(msg)
	if err != nil {
		event.Err = err
		event.Duration = time.Since(startedAt)
		w.emit(ctx, event, hookFailure)
		_ = delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
		return
	}

	_, err = w.service.Sync(ctx, userID, providerID)
	event.Err = err
	event.Duration = time.Since(startedAt)
	if err == nil {
		w.emit(ctx, event, hookSuccess)
		_ = delivery.Ack(ctx)
		return
	}

	if IsTransient(err) {
		delay := RetryAfter(err)
		if delay <= 0 {
			delay = w.retryDelay
		}
		event.Delay = delay
		w.emit(ctx, event, hookRetry)
		_ = delivery.Nack(ctx, JobNackOptions{Delay: delay, Requeue: true, Reason: err.Error()})
		return
	}

	w.emit(ctx, event, hookFailure)
	_ = delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
}

type hookPhase int

const (
	hookStart hookPhase = iota
	hookSuccess
	hookFailure
	hookRetry
)

func (w *SyncWorker) emit(ctx context.Context, event JobWorkerEvent, phase hookPhase) {
	if w == nil || w.hook == nil {
		return
	}
	switch phase {
	case hookStart:
		w.hook.OnStart(ctx, event)
	case hookSuccess:
		w.hook.OnSuccess(ctx, event)
	case hookFailure:
		w.hook.OnFailure(ctx, event)
	case hookRetry:
		w.hook.OnRetry(ctx, event)
	}
}

func (w *SyncWorker) logWarn(message string, err error) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.Warn(message, "error", err)
}
