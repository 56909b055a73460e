package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tasksync/core"
)

var (
	_ gocmd.Querier[ConnectionStatusMessage, core.ConnectionStatus] = (*ConnectionStatusQuery)(nil)
	_ gocmd.Querier[LastSyncRunMessage, core.SyncRun]               = (*LastSyncRunQuery)(nil)
)
