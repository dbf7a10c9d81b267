package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KevinKickass/ngxconfig/internal/config"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &PostgresClient{pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS config_backups (
	id             UUID PRIMARY KEY,
	name           TEXT NOT NULL,
	source         TEXT NOT NULL,
	firmware_major INTEGER NOT NULL DEFAULT 0,
	firmware_minor INTEGER NOT NULL DEFAULT 0,
	complete       BOOLEAN NOT NULL DEFAULT TRUE,
	configuration  JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS operation_history (
	id           UUID PRIMARY KEY,
	sequence_id  TEXT NOT NULL,
	kind         TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	last_address INTEGER,
	total        INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	finished_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_operation_history_finished ON operation_history (finished_at DESC);

CREATE TABLE IF NOT EXISTS session_events (
	id         UUID PRIMARY KEY,
	mode       TEXT NOT NULL,
	session_id UUID,
	success    BOOLEAN NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables if they do not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}

// SaveBackup inserts b, assigning ID and CreatedAt.
func (p *PostgresClient) SaveBackup(ctx context.Context, b *Backup) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO config_backups (id, name, source, firmware_major, firmware_minor, complete, configuration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, b.ID, b.Name, b.Source, b.FirmwareMajor, b.FirmwareMinor, b.Complete, b.Configuration).Scan(&b.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert backup: %w", err)
	}
	return nil
}

// ListBackups returns the newest backups first, without their configuration.
func (p *PostgresClient) ListBackups(ctx context.Context, limit int) ([]Backup, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, source, firmware_major, firmware_minor, complete, created_at
		FROM config_backups
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	backups := make([]Backup, 0)
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Name, &b.Source, &b.FirmwareMajor, &b.FirmwareMinor, &b.Complete, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		backups = append(backups, b)
	}

	return backups, rows.Err()
}

func (p *PostgresClient) GetBackup(ctx context.Context, id uuid.UUID) (*Backup, error) {
	var b Backup
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, source, firmware_major, firmware_minor, complete, configuration, created_at
		FROM config_backups
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Source, &b.FirmwareMajor, &b.FirmwareMinor, &b.Complete, &b.Configuration, &b.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backup %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	return &b, nil
}

func (p *PostgresClient) DeleteBackup(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM config_backups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("backup %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *PostgresClient) RecordOperation(ctx context.Context, rec *OperationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO operation_history (id, sequence_id, kind, success, message, last_address, total, failed, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.SequenceID, rec.Kind, rec.Success, rec.Message, rec.LastAddress, rec.Total, rec.Failed, rec.FinishedAt)

	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return nil
}

func (p *PostgresClient) ListOperations(ctx context.Context, limit int) ([]OperationRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, sequence_id, kind, success, message, last_address, total, failed, finished_at
		FROM operation_history
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	records := make([]OperationRecord, 0)
	for rows.Next() {
		var r OperationRecord
		err := rows.Scan(&r.ID, &r.SequenceID, &r.Kind, &r.Success, &r.Message, &r.LastAddress, &r.Total, &r.Failed, &r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
