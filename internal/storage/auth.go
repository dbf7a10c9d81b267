package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionEvent is one attempt to open a view-mode session.
type SessionEvent struct {
	ID        uuid.UUID  `json:"id"`
	Mode      string     `json:"mode"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Success   bool       `json:"success"`
	Reason    string     `json:"reason,omitempty"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	CreatedAt time.Time  `json:"created_at"`
}

// Session Event Logging
func (p *PostgresClient) LogSessionEvent(ctx context.Context, ev *SessionEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO session_events (id, mode, session_id, success, reason, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, ev.ID, ev.Mode, ev.SessionID, ev.Success, ev.Reason, ev.IPAddress, ev.UserAgent).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log session event: %w", err)
	}
	return nil
}

func (p *PostgresClient) ListSessionEvents(ctx context.Context, limit int) ([]SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, mode, session_id, success, reason, ip_address, user_agent, created_at
		FROM session_events ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var ev SessionEvent
		err := rows.Scan(
			&ev.ID, &ev.Mode, &ev.SessionID, &ev.Success,
			&ev.Reason, &ev.IPAddress, &ev.UserAgent, &ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
