package query

import (
	"context"

	"github.com/goliatone/go-tasksync/core"
)

type ConnectionStatusReader interface {
	Status(ctx context.Context, userID, providerID string) (core.ConnectionStatus, error)
}

type SyncRunReader interface {
	LastSyncRun(ctx context.Context, userID, providerID string) (core.SyncRun, error)
}

type ConnectionStatusQuery struct {
	reader ConnectionStatusReader
}

func NewConnectionStatusQuery(reader ConnectionStatusReader) *ConnectionStatusQuery {
	return &ConnectionStatusQuery{reader: reader}
}

func (q *ConnectionStatusQuery) Query(ctx context.Context, msg ConnectionStatusMessage) (core.ConnectionStatus, error) {
	if q == nil || q.reader == nil {
		return core.ConnectionStatus{}, queryDependencyError("query: connection status reader is required")
	}
	return q.reader.Status(ctx, msg.UserID, msg.ProviderID)
}

type LastSyncRunQuery struct {
	reader SyncRunReader
}

func NewLastSyncRunQuery(reader SyncRunReader) *LastSyncRunQuery {
	return &LastSyncRunQuery{reader: reader}
}

func (q *LastSyncRunQuery) Query(ctx context.Context, msg LastSyncRunMessage) (core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return core.SyncRun{}, queryDependencyError("query: sync run reader is required")
	}
	return q.reader.LastSyncRun(ctx, msg.UserID, msg.ProviderID)
}
