package tasksync

import (
	"fmt"

	taskcommand "github.com/goliatone/go-tasksync/command"
	taskquery "github.com/goliatone/go-tasksync/query"
)

type CommandQueryService interface {
	taskcommand.MutatingService
	taskquery.ConnectionStatusReader
	taskquery.SyncRunReader
}

type Commands struct {
	BeginAuthorization    *taskcommand.BeginAuthorizationCommand
	CompleteAuthorization *taskcommand.CompleteAuthorizationCommand
	RefreshToken          *taskcommand.RefreshTokenCommand
	Disconnect            *taskcommand.DisconnectCommand
	RunSync               *taskcommand.RunSyncCommand
}

type Queries struct {
	ConnectionStatus *taskquery.ConnectionStatusQuery
	LastSyncRun      *taskquery.LastSyncRunQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tasksync: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginAuthorization:    taskcommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: taskcommand.NewCompleteAuthorizationCommand(service),
		RefreshToken:          taskcommand.NewRefreshTokenCommand(service),
		Disconnect:            taskcommand.NewDisconnectCommand(service),
		RunSync:               taskcommand.NewRunSyncCommand(service),
	}
	facade.queries = Queries{
		ConnectionStatus: taskquery.NewConnectionStatusQuery(service),
		LastSyncRun:      taskquery.NewLastSyncRunQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
