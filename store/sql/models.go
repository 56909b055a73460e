package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:tasksync_credentials,alias:tc"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull"`
	ProviderID   string     `bun:"provider_id,notnull"`
	TokenType    string     `bun:"token_type,notnull"`
	AccessToken  string     `bun:"access_token,notnull"`
	RefreshToken string     `bun:"refresh_token"`
	Scopes       []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) RecordID() string      { return r.ID }
func (r *credentialRecord) SetRecordID(id string) { r.ID = id }

type taskRecord struct {
	bun.BaseModel `bun:"table:tasksync_tasks,alias:tt"`

	ID          string     `bun:"id,pk"`
	UserID      string     `bun:"user_id,notnull"`
	Title       string     `bun:"title,notnull"`
	Description string     `bun:"description"`
	DueAt       *time.Time `bun:"due_at,nullzero"`
	Completed   bool       `bun:"completed,notnull"`
	ExternalID  *string    `bun:"external_id"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *taskRecord) RecordID() string      { return r.ID }
func (r *taskRecord) SetRecordID(id string) { r.ID = id }

type syncRunRecord struct {
	bun.BaseModel `bun:"table:tasksync_sync_runs,alias:tsr"`

	ID         string         `bun:"id,pk"`
	UserID     string         `bun:"user_id,notnull"`
	ProviderID string         `bun:"provider_id,notnull"`
	Status     string         `bun:"status,notnull"`
	Created    int            `bun:"created_count,notnull"`
	Updated    int            `bun:"updated_count,notnull"`
	Skipped    int            `bun:"skipped_count,notnull"`
	Failed     int            `bun:"failed_count,notnull"`
	LastError  string         `bun:"last_error"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	StartedAt  time.Time      `bun:"started_at,notnull"`
	FinishedAt *time.Time     `bun:"finished_at,nullzero"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *syncRunRecord) RecordID() string      { return r.ID }
func (r *syncRunRecord) SetRecordID(id string) { r.ID = id }
