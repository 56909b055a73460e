package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// record is satisfied by every table model in this package. IDs are stored
// as uuid strings so the same models work on both dialects.
type record interface {
	*credentialRecord | *taskRecord | *syncRunRecord
	RecordID() string
	SetRecordID(id string)
}

func modelHandlers[T record](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(model T) uuid.UUID {
			if model == nil {
				return uuid.Nil
			}
			parsed, err := uuid.Parse(strings.TrimSpace(model.RecordID()))
			if err != nil {
				return uuid.Nil
			}
			return parsed
		},
		SetID: func(model T, id uuid.UUID) {
			if model != nil {
				model.SetRecordID(id.String())
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(model T) string {
			if model == nil {
				return ""
			}
			return strings.TrimSpace(model.RecordID())
		},
	}
}

func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	return modelHandlers(func() *credentialRecord { return &credentialRecord{} })
}

func taskHandlers() repository.ModelHandlers[*taskRecord] {
	return modelHandlers(func() *taskRecord { return &taskRecord{} })
}

func syncRunHandlers() repository.ModelHandlers[*syncRunRecord] {
	return modelHandlers(func() *syncRunRecord { return &syncRunRecord{} })
}
