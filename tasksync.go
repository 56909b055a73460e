package tasksync

import "github.com/goliatone/go-tasksync/core"

type Config = core.Config

type OAuthConfig = core.OAuthConfig

type SyncConfig = core.SyncConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type OAuthStateStore = core.OAuthStateStore
type AccountLocker = core.AccountLocker
type BackoffScheduler = core.BackoffScheduler
type CredentialStore = core.CredentialStore
type TaskStore = core.TaskStore
type SyncRunStore = core.SyncRunStore
type StoreProvider = core.StoreProvider
type Registry = core.Registry
type Integration = core.Integration
type TokenProvider = core.TokenProvider
type TaskSource = core.TaskSource

type Credential = core.Credential
type RemoteTask = core.RemoteTask
type LocalTask = core.LocalTask
type TaskFields = core.TaskFields
type TaskFilter = core.TaskFilter
type TaskPage = core.TaskPage
type TokenGrant = core.TokenGrant
type SyncResult = core.SyncResult
type SyncRun = core.SyncRun
type ConnectionStatus = core.ConnectionStatus

type BeginAuthorizationRequest = core.BeginAuthorizationRequest
type BeginAuthorizationResponse = core.BeginAuthorizationResponse
type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithRegistry         = core.WithRegistry
	WithOAuthStateStore  = core.WithOAuthStateStore
	WithAccountLocker    = core.WithAccountLocker
	WithBackoffScheduler = core.WithBackoffScheduler
	WithCredentialStore  = core.WithCredentialStore
	WithTaskStore        = core.WithTaskStore
	WithSyncRunStore     = core.WithSyncRunStore
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewProviderRegistry() *core.ProviderRegistry {
	return core.NewProviderRegistry()
}
