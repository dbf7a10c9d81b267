package storage

import (
	"context"

	"github.com/google/uuid"
)

// Store persists backups, the operation history and session events. PostgresClient is the
// real implementation; MemoryStore is used when no database is configured.
type Store interface {
	SaveBackup(ctx context.Context, b *Backup) error
	ListBackups(ctx context.Context, limit int) ([]Backup, error)
	GetBackup(ctx context.Context, id uuid.UUID) (*Backup, error)
	DeleteBackup(ctx context.Context, id uuid.UUID) error

	RecordOperation(ctx context.Context, rec *OperationRecord) error
	ListOperations(ctx context.Context, limit int) ([]OperationRecord, error)

	LogSessionEvent(ctx context.Context, ev *SessionEvent) error
	ListSessionEvents(ctx context.Context, limit int) ([]SessionEvent, error)

	Close()
}
