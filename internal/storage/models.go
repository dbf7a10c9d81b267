package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("storage: not found")

// Backup is a configuration snapshot. Configuration holds the JSON file
// format (JSONB in PostgreSQL).
type Backup struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Source        string    `json:"source"` // device / working / preset
	FirmwareMajor int       `json:"firmware_major"`
	FirmwareMinor int       `json:"firmware_minor"`
	Complete      bool      `json:"complete"`
	Configuration []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// OperationRecord is the outcome of one sequencer run.
type OperationRecord struct {
	ID          uuid.UUID `json:"id"`
	SequenceID  string    `json:"sequence_id"`
	Kind        string    `json:"kind"`
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	LastAddress *int      `json:"last_address,omitempty"`
	Total       int       `json:"total"`
	Failed      int       `json:"failed"`
	FinishedAt  time.Time `json:"finished_at"`
}
