package core

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyncErrorBadInput            = "TASKSYNC_BAD_INPUT"
	SyncErrorStateMismatch       = "TASKSYNC_STATE_MISMATCH"
	SyncErrorProviderRejected    = "TASKSYNC_PROVIDER_REJECTED"
	SyncErrorNotConnected        = "TASKSYNC_NOT_CONNECTED"
	SyncErrorRefreshFailed       = "TASKSYNC_REFRESH_FAILED"
	SyncErrorUnauthorized        = "TASKSYNC_UNAUTHORIZED"
	SyncErrorRateLimited         = "TASKSYNC_RATE_LIMITED"
	SyncErrorProviderUnavailable = "TASKSYNC_PROVIDER_UNAVAILABLE"
	SyncErrorSyncInProgress      = "TASKSYNC_SYNC_IN_PROGRESS"
	SyncErrorRefreshLocked       = "TASKSYNC_REFRESH_LOCKED"
	SyncErrorInternal            = "TASKSYNC_INTERNAL_ERROR"
)

func syncErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSyncErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "credential not found"), strings.Contains(msg, "not connected"):
		return newSyncError(err.Error(), goerrors.CategoryNotFound, SyncErrorNotConnected)
	case strings.Contains(msg, "oauth callback state"), strings.Contains(msg, "oauth state"):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorStateMismatch)
	case strings.Contains(msg, "sync already running"), strings.Contains(msg, "sync in progress"):
		return newSyncError(err.Error(), goerrors.CategoryConflict, SyncErrorSyncInProgress)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "refresh lock"):
		return newSyncError(err.Error(), goerrors.CategoryConflict, SyncErrorRefreshLocked)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newSyncError(err.Error(), goerrors.CategoryRateLimit, SyncErrorRateLimited)
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "refresh failed"):
		return newSyncError(err.Error(), goerrors.CategoryAuth, SyncErrorRefreshFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newSyncError(err.Error(), goerrors.CategoryBadInput, SyncErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSyncErrorEnvelope(mapped)
}

func newSyncError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSyncErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSyncTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSyncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SyncErrorBadInput
	case goerrors.CategoryNotFound:
		return SyncErrorNotConnected
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SyncErrorUnauthorized
	case goerrors.CategoryConflict:
		return SyncErrorSyncInProgress
	case goerrors.CategoryRateLimit:
		return SyncErrorRateLimited
	case goerrors.CategoryExternal:
		return SyncErrorProviderUnavailable
	default:
		return SyncErrorInternal
	}
}

func syncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsUnauthorized reports whether err represents a provider 401 that may be
// cured by a token refresh.
func IsUnauthorized(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryAuth && richErr.TextCode == SyncErrorUnauthorized
	}
	return false
}

// IsRateLimited reports whether err represents a provider 429.
func IsRateLimited(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryRateLimit
	}
	return false
}

// IsTransient reports whether err is worth retrying with backoff: rate
// limits and upstream 5xx/network failures qualify.
func IsTransient(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryRateLimit, goerrors.CategoryExternal:
			return true
		}
	}
	return false
}

// RetryAfter extracts the provider-supplied retry hint from a rate limit
// error. Zero means no hint was given.
func RetryAfter(err error) time.Duration {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0
	}
	if richErr.Metadata == nil {
		return 0
	}
	if ms, ok := richErr.Metadata["retry_after_ms"].(int64); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}
