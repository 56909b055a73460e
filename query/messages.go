package query

import (
	"fmt"
	"strings"
)

const (
	TypeConnectionStatus = "tasksync.query.connection.status"
	TypeLastSyncRun      = "tasksync.query.sync_run.last"
)

type ConnectionStatusMessage struct {
	UserID     string
	ProviderID string
}

func (ConnectionStatusMessage) Type() string { return TypeConnectionStatus }

func (m ConnectionStatusMessage) Validate() error {
	return validateAccountPair(m.UserID, m.ProviderID)
}

type LastSyncRunMessage struct {
	UserID     string
	ProviderID string
}

func (LastSyncRunMessage) Type() string { return TypeLastSyncRun }

func (m LastSyncRunMessage) Validate() error {
	return validateAccountPair(m.UserID, m.ProviderID)
}

func validateAccountPair(userID, providerID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	if strings.TrimSpace(providerID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	return nil
}
