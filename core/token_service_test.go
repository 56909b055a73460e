package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fakeIntegration struct {
	id string

	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	revokeCalls   int
	fetchCalls    int

	exchangeFn func(ctx context.Context, code, redirectURI string) (TokenGrant, error)
	refreshFn  func(ctx context.Context, refreshToken string) (TokenGrant, error)
	revokeErr  error
	fetchFn    func(ctx context.Context, accessToken string, filter TaskFilter) (TaskPage, error)
}

func (f *fakeIntegration) ID() string {
	return f.id
}

func (f *fakeIntegration) AuthorizationURL(state, redirectURI string, _ []string) (string, error) {
	return fmt.Sprintf("https://auth.example.com/authorize?state=%s&redirect_uri=%s", state, redirectURI), nil
}

func (f *fakeIntegration) Exchange(ctx context.Context, code, redirectURI string) (TokenGrant, error) {
	f.mu.Lock()
	f.exchangeCalls++
	f.mu.Unlock()
	if f.exchangeFn != nil {
		return f.exchangeFn(ctx, code, redirectURI)
	}
	expiresAt := time.Now().UTC().Add(time.Hour)
	return TokenGrant{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		TokenType:    "bearer",
		Scopes:       []string{"tasks.read"},
		ExpiresAt:    &expiresAt,
	}, nil
}

func (f *fakeIntegration) Refresh(ctx context.Context, refreshToken string) (TokenGrant, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshFn != nil {
		return f.refreshFn(ctx, refreshToken)
	}
	expiresAt := time.Now().UTC().Add(time.Hour)
	return TokenGrant{
		AccessToken: "refreshed-access",
		TokenType:   "bearer",
		ExpiresAt:   &expiresAt,
	}, nil
}

func (f *fakeIntegration) Revoke(context.Context, string) error {
	f.mu.Lock()
	f.revokeCalls++
	f.mu.Unlock()
	return f.revokeErr
}

func (f *fakeIntegration) FetchTasks(ctx context.Context, accessToken string, filter TaskFilter) (TaskPage, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(ctx, accessToken, filter)
	}
	return TaskPage{}, nil
}

func (f *fakeIntegration) callCounts() (exchange, refresh, revoke, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls, f.refreshCalls, f.revokeCalls, f.fetchCalls
}

func newTestService(t *testing.T, integration *fakeIntegration, options ...Option) *Service {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Sync.InitialBackoff = time.Millisecond
	cfg.Sync.MaxBackoff = 5 * time.Millisecond

	registry := NewProviderRegistry()
	if integration != nil {
		if err := registry.Register(integration); err != nil {
			t.Fatalf("register integration: %v", err)
		}
	}

	opts := append([]Option{
		WithRegistry(registry),
		WithSyncRunStore(NewMemorySyncRunStore()),
	}, options...)

	service, err := NewService(cfg, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func seedCredential(t *testing.T, service *Service, credential Credential) {
	t.Helper()
	if err := service.Dependencies().CredentialStore.Put(context.Background(), credential); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func TestBeginAndCompleteAuthorization(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	begin, err := service.BeginAuthorization(ctx, BeginAuthorizationRequest{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	if begin.State == "" {
		t.Fatalf("expected non-empty state")
	}
	if !strings.Contains(begin.AuthorizationURL, begin.State) {
		t.Fatalf("expected state in authorization url, got %q", begin.AuthorizationURL)
	}
	if !begin.ExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("expected future state expiry, got %v", begin.ExpiresAt)
	}

	credential, err := service.CompleteAuthorization(ctx, CompleteAuthorizationRequest{
		State:       begin.State,
		Code:        "code-1",
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("complete authorization: %v", err)
	}
	if credential.UserID != "user-1" || credential.ProviderID != "microsoft" {
		t.Fatalf("unexpected credential identity: %#v", credential)
	}
	if credential.AccessToken != "access-code-1" {
		t.Fatalf("unexpected access token %q", credential.AccessToken)
	}

	stored, err := service.Dependencies().CredentialStore.Get(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("get stored credential: %v", err)
	}
	if stored.RefreshToken != "refresh-code-1" {
		t.Fatalf("unexpected stored refresh token %q", stored.RefreshToken)
	}
}

func TestCompleteAuthorization_RejectsReplayedState(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	begin, err := service.BeginAuthorization(ctx, BeginAuthorizationRequest{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}

	req := CompleteAuthorizationRequest{State: begin.State, Code: "code-1"}
	if _, err := service.CompleteAuthorization(ctx, req); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if _, err := service.CompleteAuthorization(ctx, req); err == nil {
		t.Fatalf("expected replayed state to be rejected")
	}
}

func TestCompleteAuthorization_RedirectMismatch(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	begin, err := service.BeginAuthorization(ctx, BeginAuthorizationRequest{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		RedirectURI: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}

	_, err = service.CompleteAuthorization(ctx, CompleteAuthorizationRequest{
		State:       begin.State,
		Code:        "code-1",
		RedirectURI: "https://evil.example.com/callback",
	})
	if err == nil {
		t.Fatalf("expected redirect mismatch error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != SyncErrorStateMismatch {
		t.Fatalf("expected %s, got %v", SyncErrorStateMismatch, err)
	}
}

func TestBeginAuthorization_EnforcesRedirectAllowList(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	cfg := DefaultConfig()
	cfg.OAuth.AllowedRedirects = []string{"https://app.example.com/callback"}

	registry := NewProviderRegistry()
	if err := registry.Register(integration); err != nil {
		t.Fatalf("register integration: %v", err)
	}
	service, err := NewService(cfg, WithRegistry(registry))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = service.BeginAuthorization(context.Background(), BeginAuthorizationRequest{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		RedirectURI: "https://other.example.com/callback",
	})
	if err == nil {
		t.Fatalf("expected disallowed redirect to be rejected")
	}
}

func TestValidAccessToken_ReturnsCurrentTokenInsideMargin(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	seedCredential(t, service, Credential{
		UserID:       "user-1",
		ProviderID:   "microsoft",
		AccessToken:  "current-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	})

	token, err := service.ValidAccessToken(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("valid access token: %v", err)
	}
	if token != "current-token" {
		t.Fatalf("expected current token, got %q", token)
	}
	if _, refresh, _, _ := integration.callCounts(); refresh != 0 {
		t.Fatalf("expected no refresh, got %d", refresh)
	}
}

func TestValidAccessToken_RefreshesWithinMargin(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	// Expires in 30s, inside the 60s refresh margin.
	seedCredential(t, service, Credential{
		UserID:       "user-1",
		ProviderID:   "microsoft",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().UTC().Add(30 * time.Second),
	})

	token, err := service.ValidAccessToken(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("valid access token: %v", err)
	}
	if token != "refreshed-access" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if _, refresh, _, _ := integration.callCounts(); refresh != 1 {
		t.Fatalf("expected one refresh, got %d", refresh)
	}

	stored, err := service.Dependencies().CredentialStore.Get(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("get stored credential: %v", err)
	}
	if stored.AccessToken != "refreshed-access" {
		t.Fatalf("expected stored credential update, got %q", stored.AccessToken)
	}
	if stored.RefreshToken != "refresh-1" {
		t.Fatalf("expected refresh token preserved when grant omits it, got %q", stored.RefreshToken)
	}
}

func TestValidAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	release := make(chan struct{})
	integration := &fakeIntegration{id: "microsoft"}
	integration.refreshFn = func(context.Context, string) (TokenGrant, error) {
		<-release
		expiresAt := time.Now().UTC().Add(time.Hour)
		return TokenGrant{AccessToken: "shared-token", TokenType: "bearer", ExpiresAt: &expiresAt}, nil
	}
	service := newTestService(t, integration)
	ctx := context.Background()

	seedCredential(t, service, Credential{
		UserID:       "user-1",
		ProviderID:   "microsoft",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	})

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			tokens[slot], errs[slot] = service.ValidAccessToken(ctx, "user-1", "microsoft")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "shared-token" {
			t.Fatalf("caller %d got token %q", i, tokens[i])
		}
	}
	if _, refresh, _, _ := integration.callCounts(); refresh != 1 {
		t.Fatalf("expected a single upstream refresh, got %d", refresh)
	}
}

func TestValidAccessToken_TerminalRefreshFailureDeletesCredential(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	integration.refreshFn = func(context.Context, string) (TokenGrant, error) {
		return TokenGrant{}, goerrors.New("providers: token endpoint error (400): invalid_grant", goerrors.CategoryAuth)
	}
	service := newTestService(t, integration)
	ctx := context.Background()

	seedCredential(t, service, Credential{
		UserID:       "user-1",
		ProviderID:   "microsoft",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	})

	_, err := service.ValidAccessToken(ctx, "user-1", "microsoft")
	if err == nil {
		t.Fatalf("expected refresh failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != SyncErrorRefreshFailed {
		t.Fatalf("expected %s, got %v", SyncErrorRefreshFailed, err)
	}
	if _, refresh, _, _ := integration.callCounts(); refresh != 1 {
		t.Fatalf("expected terminal failure after one attempt, got %d", refresh)
	}

	status, err := service.Status(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != ConnectionStateNotConnected {
		t.Fatalf("expected not_connected after terminal failure, got %q", status.State)
	}
}

func TestValidAccessToken_RetriesTransientRefreshFailures(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	integration := &fakeIntegration{id: "microsoft"}
	integration.refreshFn = func(context.Context, string) (TokenGrant, error) {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current < 3 {
			return TokenGrant{}, goerrors.New("providers: token endpoint error (503)", goerrors.CategoryExternal)
		}
		expiresAt := time.Now().UTC().Add(time.Hour)
		return TokenGrant{AccessToken: "recovered-token", TokenType: "bearer", ExpiresAt: &expiresAt}, nil
	}
	service := newTestService(t, integration)
	ctx := context.Background()

	seedCredential(t, service, Credential{
		UserID:       "user-1",
		ProviderID:   "microsoft",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	})

	token, err := service.ValidAccessToken(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("valid access token: %v", err)
	}
	if token != "recovered-token" {
		t.Fatalf("expected recovered token, got %q", token)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRefreshCredential_MissingRefreshTokenIsTerminal(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	seedCredential(t, service, Credential{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		AccessToken: "stale-token",
		ExpiresAt:   time.Now().UTC().Add(-time.Minute),
	})

	_, err := service.ValidAccessToken(ctx, "user-1", "microsoft")
	if err == nil {
		t.Fatalf("expected failure without refresh token")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != SyncErrorRefreshFailed {
		t.Fatalf("expected %s, got %v", SyncErrorRefreshFailed, err)
	}
	if _, getErr := service.Dependencies().CredentialStore.Get(ctx, "user-1", "microsoft"); !errors.Is(getErr, ErrCredentialNotFound) {
		t.Fatalf("expected credential removed, got %v", getErr)
	}
}

func TestDisconnect_RemovesCredentialDespiteRevokeFailure(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft", revokeErr: fmt.Errorf("revocation endpoint down")}
	service := newTestService(t, integration)
	ctx := context.Background()

	seedCredential(t, service, Credential{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		AccessToken: "token-1",
	})

	if err := service.Disconnect(ctx, "user-1", "microsoft"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, _, revoke, _ := integration.callCounts(); revoke != 1 {
		t.Fatalf("expected one revoke attempt, got %d", revoke)
	}
	if _, err := service.Dependencies().CredentialStore.Get(ctx, "user-1", "microsoft"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected credential removed, got %v", err)
	}
}

func TestDisconnect_NoCredentialIsNoop(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)

	if err := service.Disconnect(context.Background(), "user-1", "microsoft"); err != nil {
		t.Fatalf("disconnect without credential: %v", err)
	}
	if _, _, revoke, _ := integration.callCounts(); revoke != 0 {
		t.Fatalf("expected no revoke call, got %d", revoke)
	}
}

func TestStatus_ReportsConnectionStates(t *testing.T) {
	integration := &fakeIntegration{id: "microsoft"}
	service := newTestService(t, integration)
	ctx := context.Background()

	status, err := service.Status(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != ConnectionStateNotConnected {
		t.Fatalf("expected not_connected, got %q", status.State)
	}

	seedCredential(t, service, Credential{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		AccessToken: "token-1",
		Scopes:      []string{"tasks.read"},
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	status, err = service.Status(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != ConnectionStateConnected {
		t.Fatalf("expected connected, got %q", status.State)
	}
	if status.ExpiresAt == nil {
		t.Fatalf("expected expiry on connected status")
	}

	seedCredential(t, service, Credential{
		UserID:      "user-1",
		ProviderID:  "microsoft",
		AccessToken: "token-1",
		ExpiresAt:   time.Now().UTC().Add(10 * time.Second),
	})
	status, err = service.Status(ctx, "user-1", "microsoft")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != ConnectionStateExpiring {
		t.Fatalf("expected expiring, got %q", status.State)
	}
}

func TestValidAccessToken_UnknownProviderIsNotConnected(t *testing.T) {
	service := newTestService(t, &fakeIntegration{id: "microsoft"})

	_, err := service.ValidAccessToken(context.Background(), "user-1", "missing")
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != SyncErrorNotConnected {
		t.Fatalf("expected %s, got %v", SyncErrorNotConnected, err)
	}
}
