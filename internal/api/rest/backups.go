package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/storage"
	"github.com/KevinKickass/ngxconfig/internal/types"
	"github.com/KevinKickass/ngxconfig/internal/workspace"
)

type CreateBackupRequest struct {
	Name string `json:"name"`
}

type BackupResponse struct {
	storage.Backup
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// GET /api/v1/backups
func (s *Server) listBackups(c *gin.Context) {
	backups, err := s.lm.Storage().ListBackups(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BACKUP_500", "Failed to list backups", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": backups})
}

// POST /api/v1/backups
func (s *Server) createBackup(c *gin.Context) {
	var req CreateBackupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("BACKUP_400", "Invalid request body", err.Error()))
			return
		}
	}

	ws := s.lm.Workspace()
	cfg := ws.Config()
	data, err := cfg.ToJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BACKUP_500", "Failed to serialise configuration", err.Error()))
		return
	}

	if req.Name == "" {
		req.Name = fmt.Sprintf("%s %s", ws.Origin(), time.Now().Format("2006-01-02 15:04"))
	}

	fw := ws.Firmware()
	b := &storage.Backup{
		Name:          req.Name,
		Source:        ws.Origin(),
		FirmwareMajor: int(fw.Major),
		FirmwareMinor: int(fw.Minor),
		Complete:      true,
		Configuration: data,
	}
	if err := s.lm.Storage().SaveBackup(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BACKUP_500", "Failed to save backup", err.Error()))
		return
	}

	s.logger.Info("Backup created", zap.String("id", b.ID.String()), zap.String("source", b.Source))
	c.JSON(http.StatusCreated, b)
}

// GET /api/v1/backups/:id
func (s *Server) getBackup(c *gin.Context) {
	b, ok := s.loadBackup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, BackupResponse{Backup: *b, Configuration: b.Configuration})
}

// DELETE /api/v1/backups/:id
func (s *Server) deleteBackup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BACKUP_400", "Invalid backup ID", err.Error()))
		return
	}

	if err := s.lm.Storage().DeleteBackup(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("BACKUP_404", "Backup not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BACKUP_500", "Failed to delete backup", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/backups/:id/restore?write=true
// Loads the backup into the working configuration; with write=true the
// device is written right away.
func (s *Server) restoreBackup(c *gin.Context) {
	b, ok := s.loadBackup(c)
	if !ok {
		return
	}

	cfg, err := configdata.FromJSON(b.Configuration)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("BACKUP_422", "Backup is not a valid configuration", err.Error()))
		return
	}

	origin := "backup:" + b.ID.String()
	if err := s.lm.Workspace().Replace(cfg, origin); err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("BACKUP_422", "Backup rejected", err.Error()))
		return
	}

	if c.Query("write") != "true" {
		c.JSON(http.StatusOK, gin.H{"origin": origin})
		return
	}
	s.startOperation(c, workspace.Request{Kind: manager.KindWriteConfiguration})
}

func (s *Server) loadBackup(c *gin.Context) (*storage.Backup, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BACKUP_400", "Invalid backup ID", err.Error()))
		return nil, false
	}

	b, err := s.lm.Storage().GetBackup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("BACKUP_404", "Backup not found", nil))
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BACKUP_500", "Failed to load backup", err.Error()))
		return nil, false
	}
	return b, true
}
