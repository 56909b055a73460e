package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-tasksync/core"
)

const (
	TypeBeginAuthorization    = "tasksync.command.authorization.begin"
	TypeCompleteAuthorization = "tasksync.command.authorization.complete"
	TypeRefreshToken          = "tasksync.command.token.refresh"
	TypeDisconnect            = "tasksync.command.disconnect"
	TypeRunSync               = "tasksync.command.sync.run"
)

type BeginAuthorizationMessage struct {
	Request core.BeginAuthorizationRequest
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Request.RedirectURI) == "" {
		return fmt.Errorf("command: redirect uri is required")
	}
	return nil
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: oauth state is required")
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	return nil
}

type RefreshTokenMessage struct {
	UserID     string
	ProviderID string
}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (m RefreshTokenMessage) Validate() error {
	return validateAccountPair(m.UserID, m.ProviderID)
}

type DisconnectMessage struct {
	UserID     string
	ProviderID string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return validateAccountPair(m.UserID, m.ProviderID)
}

type RunSyncMessage struct {
	UserID     string
	ProviderID string
	// ListID optionally scopes the run to one provider-side list.
	ListID string
}

func (RunSyncMessage) Type() string { return TypeRunSync }

func (m RunSyncMessage) Validate() error {
	return validateAccountPair(m.UserID, m.ProviderID)
}

func validateAccountPair(userID, providerID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(providerID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}
