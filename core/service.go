package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrProviderNotFound = errors.New("core: provider not found")

const (
	defaultRefreshMargin      = 60 * time.Second
	defaultRefreshMaxAttempts = 3
)

// TokenService is the credential lifecycle surface: it runs the OAuth
// authorization flow and keeps access tokens usable.
type TokenService interface {
	BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (Credential, error)
	ValidAccessToken(ctx context.Context, userID, providerID string) (string, error)
	RefreshAccessToken(ctx context.Context, userID, providerID string) (string, error)
	Disconnect(ctx context.Context, userID, providerID string) error
	Status(ctx context.Context, userID, providerID string) (ConnectionStatus, error)
}

// SyncService pulls remote tasks and reconciles them into the local store.
type SyncService interface {
	Sync(ctx context.Context, userID, providerID string, opts ...SyncOption) (SyncResult, error)
	LastSyncRun(ctx context.Context, userID, providerID string) (SyncRun, error)
}

type Service struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	registry         Registry
	oauthStateStore  OAuthStateStore
	accountLocker    AccountLocker
	backoffScheduler BackoffScheduler
	credentialStore  CredentialStore
	taskStore        TaskStore
	syncRunStore     SyncRunStore
	clock            Clock
	syncGuard        syncGuard
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	Registry         Registry
	OAuthStateStore  OAuthStateStore
	AccountLocker    AccountLocker
	BackoffScheduler BackoffScheduler
	CredentialStore  CredentialStore
	TaskStore        TaskStore
	SyncRunStore     SyncRunStore
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	// Resolve applies provider > logger > nop precedence, so an injected
	// logger survives unless the caller also supplied a provider.
	provider, logger := glog.Resolve("tasksync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(finalConfig.OAuth.StateTTL)
	}
	if builder.accountLocker == nil {
		builder.accountLocker = NewMemoryAccountLocker()
	}
	if builder.backoffScheduler == nil {
		builder.backoffScheduler = ExponentialBackoffScheduler{
			Initial: finalConfig.Sync.InitialBackoff,
			Max:     finalConfig.Sync.MaxBackoff,
		}
	}
	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}
	if builder.taskStore == nil {
		builder.taskStore = NewMemoryTaskStore()
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		registry:         builder.registry,
		oauthStateStore:  builder.oauthStateStore,
		accountLocker:    builder.accountLocker,
		backoffScheduler: builder.backoffScheduler,
		credentialStore:  builder.credentialStore,
		taskStore:        builder.taskStore,
		syncRunStore:     builder.syncRunStore,
		clock:            builder.clock,
		syncGuard:        newSyncGuard(),
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorFactory:     s.errorFactory,
		ErrorMapper:      s.errorMapper,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		Registry:         s.registry,
		OAuthStateStore:  s.oauthStateStore,
		AccountLocker:    s.accountLocker,
		BackoffScheduler: s.backoffScheduler,
		CredentialStore:  s.credentialStore,
		TaskStore:        s.taskStore,
		SyncRunStore:     s.syncRunStore,
	}
}

func (s *Service) now() time.Time {
	if s == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

type BeginAuthorizationRequest struct {
	UserID      string
	ProviderID  string
	RedirectURI string
	Scopes      []string
	Metadata    map[string]any
}

type BeginAuthorizationResponse struct {
	AuthorizationURL string
	State            string
	ExpiresAt        time.Time
}

func (s *Service) BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (response BeginAuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"user_id":     req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_authorization", err, fields)
	}()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		err = s.mapError(fmt.Errorf("core: user id is required"))
		return BeginAuthorizationResponse{}, err
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		err = s.mapError(fmt.Errorf("core: redirect uri is required"))
		return BeginAuthorizationResponse{}, err
	}
	if !s.redirectAllowed(redirectURI) {
		err = s.mapError(fmt.Errorf("core: redirect uri %q is invalid", redirectURI))
		return BeginAuthorizationResponse{}, err
	}

	integration, err := s.resolveIntegration(req.ProviderID)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}

	state, err := generateOAuthState()
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	authURL, err := integration.AuthorizationURL(state, redirectURI, req.Scopes)
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.stateTTL())
	if s.oauthStateStore != nil {
		saveErr := s.oauthStateStore.Save(ctx, OAuthStateRecord{
			State:       state,
			UserID:      userID,
			ProviderID:  integration.ID(),
			RedirectURI: redirectURI,
			Scopes:      cloneStrings(req.Scopes),
			Metadata:    copyAnyMap(req.Metadata),
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		})
		if saveErr != nil {
			err = s.mapError(saveErr)
			return BeginAuthorizationResponse{}, err
		}
	}

	response = BeginAuthorizationResponse{
		AuthorizationURL: authURL,
		State:            state,
		ExpiresAt:        expiresAt,
	}
	return response, nil
}

type CompleteAuthorizationRequest struct {
	State       string
	Code        string
	RedirectURI string
}

func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (credential Credential, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		err = s.mapError(fmt.Errorf("core: authorization code is required"))
		return Credential{}, err
	}

	record, err := s.consumeOAuthState(ctx, req)
	if err != nil {
		err = s.mapError(err)
		return Credential{}, err
	}
	fields["provider_id"] = record.ProviderID
	fields["user_id"] = record.UserID

	integration, err := s.resolveIntegration(record.ProviderID)
	if err != nil {
		return Credential{}, err
	}

	grant, err := integration.Exchange(ctx, code, record.RedirectURI)
	if err != nil {
		err = s.mapError(err)
		return Credential{}, err
	}

	now := s.now()
	credential = Credential{
		UserID:       record.UserID,
		ProviderID:   integration.ID(),
		TokenType:    grant.TokenType,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Scopes:       cloneStrings(grant.Scopes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if grant.ExpiresAt != nil {
		credential.ExpiresAt = grant.ExpiresAt.UTC()
	}

	if s.credentialStore != nil {
		if saveErr := s.credentialStore.Put(ctx, credential); saveErr != nil {
			err = s.mapError(saveErr)
			return Credential{}, err
		}
	}
	return credential, nil
}

func (s *Service) consumeOAuthState(ctx context.Context, req CompleteAuthorizationRequest) (OAuthStateRecord, error) {
	if s == nil || s.oauthStateStore == nil {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth callback state is required")
	}

	record, err := s.oauthStateStore.Consume(ctx, state)
	if err != nil {
		return OAuthStateRecord{}, err
	}

	savedRedirect := strings.TrimSpace(record.RedirectURI)
	requestRedirect := strings.TrimSpace(req.RedirectURI)
	if savedRedirect != "" && requestRedirect != "" && savedRedirect != requestRedirect {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth callback state redirect mismatch")
	}
	return record, nil
}

// ValidAccessToken returns an access token usable for at least the refresh
// margin. Concurrent callers for the same account serialize on the locker;
// only the first performs the upstream refresh, the rest reuse its result.
func (s *Service) ValidAccessToken(ctx context.Context, userID, providerID string) (token string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "valid_access_token", err, fields)
	}()

	credential, err := s.getCredential(ctx, userID, providerID)
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	if !credential.Expired(s.now(), s.refreshMargin()) {
		return credential.AccessToken, nil
	}

	credential, err = s.refreshCredential(ctx, credential, false)
	if err != nil {
		return "", err
	}
	return credential.AccessToken, nil
}

// RefreshAccessToken forces a refresh even when the current token has not
// reached the margin. Used after the provider rejects a token that still
// looked valid locally.
func (s *Service) RefreshAccessToken(ctx context.Context, userID, providerID string) (token string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_access_token", err, fields)
	}()

	credential, err := s.getCredential(ctx, userID, providerID)
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	credential, err = s.refreshCredential(ctx, credential, true)
	if err != nil {
		return "", err
	}
	return credential.AccessToken, nil
}

// refreshCredential serializes on the account lock, re-reads the stored
// credential, and refreshes it if still required. A terminal refresh failure
// deletes the credential so the account reads as not connected.
func (s *Service) refreshCredential(ctx context.Context, credential Credential, force bool) (Credential, error) {
	key := LockKey(credential.UserID, credential.ProviderID)
	unlock := func() {}
	if s.accountLocker != nil {
		handle, lockErr := s.accountLocker.Acquire(ctx, key)
		if lockErr != nil {
			return Credential{}, s.mapError(lockErr)
		}
		unlock = func() {
			_ = handle.Unlock(ctx)
		}
	}
	defer unlock()

	// Another caller may have refreshed while we waited on the lock.
	current, err := s.getCredential(ctx, credential.UserID, credential.ProviderID)
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	if !force && !current.Expired(s.now(), s.refreshMargin()) {
		return current, nil
	}
	if force && current.AccessToken != credential.AccessToken {
		return current, nil
	}

	if strings.TrimSpace(current.RefreshToken) == "" {
		deleteErr := s.deleteCredential(ctx, current.UserID, current.ProviderID)
		if deleteErr != nil {
			return Credential{}, s.mapError(deleteErr)
		}
		return Credential{}, newSyncError(
			fmt.Sprintf("core: refresh failed for provider %q: no refresh token", current.ProviderID),
			goerrors.CategoryAuth,
			SyncErrorRefreshFailed,
		)
	}

	integration, err := s.resolveIntegration(current.ProviderID)
	if err != nil {
		return Credential{}, err
	}

	maxAttempts := s.config.Sync.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRefreshMaxAttempts
	}

	var grant TokenGrant
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		grant, lastErr = integration.Refresh(ctx, current.RefreshToken)
		if lastErr == nil {
			break
		}
		if isUnrecoverableRefreshError(lastErr) {
			if deleteErr := s.deleteCredential(ctx, current.UserID, current.ProviderID); deleteErr != nil {
				return Credential{}, s.mapError(deleteErr)
			}
			return Credential{}, newSyncError(
				fmt.Sprintf("core: refresh failed for provider %q: %v", current.ProviderID, lastErr),
				goerrors.CategoryAuth,
				SyncErrorRefreshFailed,
			)
		}
		if attempt == maxAttempts {
			return Credential{}, s.mapError(lastErr)
		}
		delay := defaultRetryInitialBackoff
		if s.backoffScheduler != nil {
			delay = s.backoffScheduler.NextDelay(attempt)
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return Credential{}, s.mapError(waitErr)
		}
	}

	refreshed := current
	refreshed.AccessToken = grant.AccessToken
	refreshed.TokenType = grant.TokenType
	if strings.TrimSpace(grant.RefreshToken) != "" {
		refreshed.RefreshToken = grant.RefreshToken
	}
	if len(grant.Scopes) > 0 {
		refreshed.Scopes = cloneStrings(grant.Scopes)
	}
	if grant.ExpiresAt != nil {
		refreshed.ExpiresAt = grant.ExpiresAt.UTC()
	}
	refreshed.UpdatedAt = s.now()

	if s.credentialStore != nil {
		if saveErr := s.credentialStore.Put(ctx, refreshed); saveErr != nil {
			return Credential{}, s.mapError(saveErr)
		}
	}
	return refreshed, nil
}

func (s *Service) Disconnect(ctx context.Context, userID, providerID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	credential, getErr := s.getCredential(ctx, userID, providerID)
	if getErr != nil {
		if errors.Is(getErr, ErrCredentialNotFound) {
			return nil
		}
		err = s.mapError(getErr)
		return err
	}

	// Remote revocation is best effort: the local credential goes away
	// regardless of the provider's answer.
	if integration, resolveErr := s.resolveIntegration(credential.ProviderID); resolveErr == nil {
		if revokeErr := integration.Revoke(ctx, credential.AccessToken); revokeErr != nil {
			s.logError(ctx, "token revocation failed", map[string]any{
				"provider_id": credential.ProviderID,
				"user_id":     credential.UserID,
				"error":       revokeErr.Error(),
			})
		}
	}

	if err = s.deleteCredential(ctx, userID, providerID); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) Status(ctx context.Context, userID, providerID string) (status ConnectionStatus, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"user_id":     userID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "status", err, fields)
	}()

	status = ConnectionStatus{
		UserID:     strings.TrimSpace(userID),
		ProviderID: strings.TrimSpace(providerID),
		State:      ConnectionStateNotConnected,
	}

	credential, getErr := s.getCredential(ctx, userID, providerID)
	if getErr != nil {
		if errors.Is(getErr, ErrCredentialNotFound) {
			return status, nil
		}
		err = s.mapError(getErr)
		return ConnectionStatus{}, err
	}

	status.State = ConnectionStateConnected
	status.Scopes = cloneStrings(credential.Scopes)
	if !credential.ExpiresAt.IsZero() {
		expiresAt := credential.ExpiresAt.UTC()
		status.ExpiresAt = &expiresAt
		if credential.Expired(s.now(), s.refreshMargin()) {
			status.State = ConnectionStateExpiring
		}
	}
	return status, nil
}

func (s *Service) getCredential(ctx context.Context, userID, providerID string) (Credential, error) {
	if s == nil || s.credentialStore == nil {
		return Credential{}, fmt.Errorf("core: credential store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Credential{}, fmt.Errorf("core: user id is required")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return Credential{}, fmt.Errorf("core: provider id is required")
	}
	return s.credentialStore.Get(ctx, userID, providerID)
}

func (s *Service) deleteCredential(ctx context.Context, userID, providerID string) error {
	if s == nil || s.credentialStore == nil {
		return nil
	}
	return s.credentialStore.Delete(ctx, userID, providerID)
}

func (s *Service) resolveIntegration(providerID string) (Integration, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	providerID = strings.TrimSpace(providerID)
	integration, ok := s.registry.Get(providerID)
	if ok {
		return integration, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("provider %q is not registered", providerID),
		goerrors.CategoryNotFound,
	).WithTextCode(SyncErrorNotConnected)
	return nil, wrapped.WithMetadata(map[string]any{"provider_id": providerID})
}

func (s *Service) redirectAllowed(redirectURI string) bool {
	if s == nil {
		return false
	}
	allowed := s.config.OAuth.AllowedRedirects
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if strings.TrimSpace(candidate) == redirectURI {
			return true
		}
	}
	return false
}

func (s *Service) refreshMargin() time.Duration {
	if s == nil || s.config.OAuth.RefreshMargin <= 0 {
		return defaultRefreshMargin
	}
	return s.config.OAuth.RefreshMargin
}

func (s *Service) stateTTL() time.Duration {
	if s == nil || s.config.OAuth.StateTTL <= 0 {
		return defaultOAuthStateTTL
	}
	return s.config.OAuth.StateTTL
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func isUnrecoverableRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryValidation, goerrors.CategoryNotFound:
			return true
		}
		switch strings.TrimSpace(strings.ToUpper(richErr.TextCode)) {
		case "TOKEN_EXPIRED", "UNAUTHORIZED", "FORBIDDEN":
			return true
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid refresh token") ||
		strings.Contains(msg, "reauthorization required")
}

var (
	_ TokenService = (*Service)(nil)
	_ SyncService  = (*Service)(nil)
)
