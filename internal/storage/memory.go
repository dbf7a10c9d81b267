package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// bounds of the in-memory history
const (
	maxMemoryOperations = 500
	maxMemorySessions   = 500
)

// MemoryStore keeps backups and history for the lifetime of the process.
type MemoryStore struct {
	mu         sync.RWMutex
	backups    map[uuid.UUID]Backup
	operations []OperationRecord
	sessions   []SessionEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{backups: make(map[uuid.UUID]Backup)}
}

func (m *MemoryStore) SaveBackup(_ context.Context, b *Backup) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	cp := *b
	cp.Configuration = append([]byte(nil), b.Configuration...)

	m.mu.Lock()
	m.backups[b.ID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListBackups(_ context.Context, limit int) ([]Backup, error) {
	m.mu.RLock()
	out := make([]Backup, 0, len(m.backups))
	for _, b := range m.backups {
		b.Configuration = nil
		out = append(out, b)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetBackup(_ context.Context, id uuid.UUID) (*Backup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.backups[id]
	if !ok {
		return nil, fmt.Errorf("backup %s: %w", id, ErrNotFound)
	}
	b.Configuration = append([]byte(nil), b.Configuration...)
	return &b, nil
}

func (m *MemoryStore) DeleteBackup(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.backups[id]; !ok {
		return fmt.Errorf("backup %s: %w", id, ErrNotFound)
	}
	delete(m.backups, id)
	return nil
}

func (m *MemoryStore) RecordOperation(_ context.Context, rec *OperationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.operations = append(m.operations, *rec)
	if over := len(m.operations) - maxMemoryOperations; over > 0 {
		m.operations = append([]OperationRecord(nil), m.operations[over:]...)
	}
	return nil
}

// ListOperations returns the newest records first.
func (m *MemoryStore) ListOperations(_ context.Context, limit int) ([]OperationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.operations)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]OperationRecord, 0, n)
	for i := len(m.operations) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.operations[i])
	}
	return out, nil
}

func (m *MemoryStore) LogSessionEvent(_ context.Context, ev *SessionEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = append(m.sessions, *ev)
	if over := len(m.sessions) - maxMemorySessions; over > 0 {
		m.sessions = append([]SessionEvent(nil), m.sessions[over:]...)
	}
	return nil
}

// ListSessionEvents returns the newest events first.
func (m *MemoryStore) ListSessionEvents(_ context.Context, limit int) ([]SessionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.sessions)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]SessionEvent, 0, n)
	for i := len(m.sessions) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.sessions[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() {}
