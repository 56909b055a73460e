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

type TaskStore struct {
	repo repository.Repository[*taskRecord]
}

func NewTaskStore(db *bun.DB) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*taskRecord](db, taskHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid task repository wiring: %w", err)
		}
	}
	return &TaskStore{repo: repo}, nil
}

func (s *TaskStore) FindByExternalID(ctx context.Context, userID, externalID string) (core.LocalTask, error) {
	if s == nil || s.repo == nil {
		return core.LocalTask{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.LocalTask{}, fmt.Errorf("sqlstore: external id is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.LocalTask{}, err
	}
	if len(records) == 0 {
		return core.LocalTask{}, core.ErrTaskNotFound
	}
	return records[0].toDomain(), nil
}

func (s *TaskStore) Create(ctx context.Context, userID string, fields core.TaskFields) (core.LocalTask, error) {
	if s == nil || s.repo == nil {
		return core.LocalTask{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.LocalTask{}, fmt.Errorf("sqlstore: user id is required")
	}
	if strings.TrimSpace(fields.Title) == "" {
		return core.LocalTask{}, fmt.Errorf("sqlstore: task title is required")
	}

	record := newTaskRecord(userID, fields, time.Now().UTC())
	record.ID = uuid.NewString()
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.LocalTask{}, fmt.Errorf(
				"sqlstore: task with external id %q already exists", strings.TrimSpace(fields.ExternalID),
			)
		}
		return core.LocalTask{}, err
	}
	return created.toDomain(), nil
}

func (s *TaskStore) Update(ctx context.Context, taskID string, fields core.TaskFields) (core.LocalTask, error) {
	if s == nil || s.repo == nil {
		return core.LocalTask{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return core.LocalTask{}, fmt.Errorf("sqlstore: task id is required")
	}

	current, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return core.LocalTask{}, core.ErrTaskNotFound
	}

	current.Title = fields.Title
	current.Description = fields.Description
	current.DueAt = cloneTimePointer(fields.DueAt)
	current.Completed = fields.Completed
	if !fields.UpdatedAt.IsZero() {
		current.UpdatedAt = fields.UpdatedAt.UTC()
	} else {
		current.UpdatedAt = time.Now().UTC()
	}

	updated, err := s.repo.Update(ctx, current, repository.UpdateByID(taskID))
	if err != nil {
		return core.LocalTask{}, err
	}
	return updated.toDomain(), nil
}
