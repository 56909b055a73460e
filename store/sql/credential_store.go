package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tasksync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *CredentialStore) Get(ctx context.Context, userID, providerID string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	return records[0].toDomain(), nil
}

// Put replaces the credential for the (user, provider) pair in one
// transaction so readers never observe a half-swapped token.
func (s *CredentialStore) Put(ctx context.Context, credential core.Credential) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	if err := credential.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, deleteErr := tx.NewDelete().
			Model((*credentialRecord)(nil)).
			Where("user_id = ?", strings.TrimSpace(credential.UserID)).
			Where("provider_id = ?", strings.TrimSpace(credential.ProviderID)).
			Exec(ctx)
		if deleteErr != nil {
			return deleteErr
		}

		record := newCredentialRecord(credential, now)
		record.ID = uuid.NewString()
		_, createErr := s.repo.CreateTx(ctx, tx, record)
		return createErr
	})
}

func (s *CredentialStore) Delete(ctx context.Context, userID, providerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	if userID == "" || providerID == "" {
		return fmt.Errorf("sqlstore: user id and provider id are required")
	}

	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("user_id = ?", userID).
		Where("provider_id = ?", providerID).
		Exec(ctx)
	return err
}
