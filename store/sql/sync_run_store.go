package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tasksync/core"
	"github.com/uptrace/bun"
)

type SyncRunStore struct {
	db   *bun.DB
	repo repository.Repository[*syncRunRecord]
}

func NewSyncRunStore(db *bun.DB) (*SyncRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncRunRecord](db, syncRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync run repository wiring: %w", err)
		}
	}
	return &SyncRunStore{
		db:   db,
		repo: repo,
	}, nil
}

// Save upserts the run by id: the sync engine writes a running record at
// start and the final record at completion under the same id.
func (s *SyncRunStore) Save(ctx context.Context, run core.SyncRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sync run store is not configured")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("sqlstore: sync run id is required")
	}

	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &syncRunRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.id = ?", strings.TrimSpace(run.ID)).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record := newSyncRunRecord(run, now)
		if errors.Is(err, sql.ErrNoRows) {
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}

		record.CreatedAt = existing.CreatedAt
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *SyncRunStore) LastForUser(ctx context.Context, userID, providerID string) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.OrderBy("started_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.SyncRun{}, err
	}
	if len(records) == 0 {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return records[0].toDomain(), nil
}
