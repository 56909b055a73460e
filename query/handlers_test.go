package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-tasksync/core"
)

type stubStatusReader struct {
	statusFn func(ctx context.Context, userID, providerID string) (core.ConnectionStatus, error)
}

func (s *stubStatusReader) Status(ctx context.Context, userID, providerID string) (core.ConnectionStatus, error) {
	return s.statusFn(ctx, userID, providerID)
}

type stubSyncRunReader struct {
	lastFn func(ctx context.Context, userID, providerID string) (core.SyncRun, error)
}

func (s *stubSyncRunReader) LastSyncRun(ctx context.Context, userID, providerID string) (core.SyncRun, error) {
	return s.lastFn(ctx, userID, providerID)
}

func TestConnectionStatusQuery_DelegatesToReader(t *testing.T) {
	expiresAt := time.Now().UTC().Add(time.Hour)
	reader := &stubStatusReader{
		statusFn: func(_ context.Context, userID, providerID string) (core.ConnectionStatus, error) {
			if userID != "user-1" || providerID != "microsoft" {
				t.Fatalf("unexpected lookup %q/%q", userID, providerID)
			}
			return core.ConnectionStatus{
				UserID:     userID,
				ProviderID: providerID,
				State:      core.ConnectionStateConnected,
				ExpiresAt:  &expiresAt,
			}, nil
		},
	}
	handler := NewConnectionStatusQuery(reader)

	status, err := handler.Query(context.Background(), ConnectionStatusMessage{UserID: "user-1", ProviderID: "microsoft"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status.State != core.ConnectionStateConnected {
		t.Fatalf("unexpected status: %#v", status)
	}
}

func TestConnectionStatusQuery_PropagatesReaderError(t *testing.T) {
	wantErr := errors.New("status backend down")
	reader := &stubStatusReader{
		statusFn: func(context.Context, string, string) (core.ConnectionStatus, error) {
			return core.ConnectionStatus{}, wantErr
		},
	}
	handler := NewConnectionStatusQuery(reader)

	if _, err := handler.Query(context.Background(), ConnectionStatusMessage{UserID: "u", ProviderID: "p"}); !errors.Is(err, wantErr) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestLastSyncRunQuery_DelegatesToReader(t *testing.T) {
	reader := &stubSyncRunReader{
		lastFn: func(_ context.Context, userID, providerID string) (core.SyncRun, error) {
			return core.SyncRun{ID: "run-1", UserID: userID, ProviderID: providerID, Status: core.SyncRunStatusSucceeded}, nil
		},
	}
	handler := NewLastSyncRunQuery(reader)

	run, err := handler.Query(context.Background(), LastSyncRunMessage{UserID: "user-1", ProviderID: "microsoft"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if run.ID != "run-1" || run.Status != core.SyncRunStatusSucceeded {
		t.Fatalf("unexpected run: %#v", run)
	}
}

func TestQueries_RequireReader(t *testing.T) {
	if _, err := NewConnectionStatusQuery(nil).Query(context.Background(), ConnectionStatusMessage{UserID: "u", ProviderID: "p"}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if _, err := NewLastSyncRunQuery(nil).Query(context.Background(), LastSyncRunMessage{UserID: "u", ProviderID: "p"}); err == nil {
		t.Fatalf("expected dependency error")
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	if err := (ConnectionStatusMessage{UserID: "u", ProviderID: "p"}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := (ConnectionStatusMessage{UserID: "u"}).Validate(); err == nil {
		t.Fatalf("expected missing provider error")
	}
	if err := (LastSyncRunMessage{ProviderID: "p"}).Validate(); err == nil {
		t.Fatalf("expected missing user error")
	}
	if got := (ConnectionStatusMessage{}).Type(); got != TypeConnectionStatus {
		t.Fatalf("unexpected type %q", got)
	}
	if got := (LastSyncRunMessage{}).Type(); got != TypeLastSyncRun {
		t.Fatalf("unexpected type %q", got)
	}
}
