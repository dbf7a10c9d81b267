package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/export"
	"github.com/KevinKickass/ngxconfig/internal/presets"
	"github.com/KevinKickass/ngxconfig/internal/types"
)

// maxConfigBody limits uploaded configuration documents.
const maxConfigBody = 2 << 20

// GET /api/v1/config
func (s *Server) getConfig(c *gin.Context) {
	ws := s.lm.Workspace()
	c.JSON(http.StatusOK, gin.H{
		"origin":        ws.Origin(),
		"firmware":      ws.Firmware(),
		"configuration": ws.Config(),
	})
}

// PUT /api/v1/config
func (s *Server) putConfig(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONFIG_400", "Failed to read request body", err.Error()))
		return
	}

	if err := s.lm.Validator().ValidateDocument(data); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONFIG_400", "Configuration does not match the schema", err.Error()))
		return
	}

	cfg, err := configdata.FromJSON(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONFIG_400", "Invalid configuration", err.Error()))
		return
	}

	if err := s.lm.Workspace().Replace(cfg, "upload"); err != nil {
		var verr *configdata.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, types.NewValidationResponse("CONFIG_422", "Configuration rejected", verr.Problems))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CONFIG_500", "Failed to apply configuration", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"origin": "upload"})
}

// GET /api/v1/config/export.csv
func (s *Server) exportCSV(c *gin.Context) {
	filename := fmt.Sprintf("ngx-config-%s.csv", time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	n, err := export.WriteCSV(c.Writer, s.lm.Workspace().Config())
	if err != nil {
		// Header sind schon raus
		s.logger.Error("CSV export failed", zap.Error(err))
		return
	}
	s.logger.Debug("CSV exported", zap.Int("rows", n))
}

// GET /api/v1/catalog
func (s *Server) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"devices":  configdata.Devices(),
		"inputs":   configdata.Inputs(),
		"patterns": configdata.PatternPresets,
	})
}

// GET /api/v1/presets
func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": s.lm.Presets().List()})
}

// POST /api/v1/presets/:name/load
func (s *Server) loadPreset(c *gin.Context) {
	name := c.Param("name")

	p, err := s.lm.Presets().Get(name)
	if err != nil {
		if errors.Is(err, presets.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("PRESET_404", "Preset not found", name))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("PRESET_500", "Failed to load preset", err.Error()))
		return
	}

	cfg, err := p.Build()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("PRESET_500", "Preset is invalid", err.Error()))
		return
	}

	origin := "preset:" + p.ID
	if err := s.lm.Workspace().Replace(cfg, origin); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("PRESET_500", "Failed to apply preset", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"origin": origin, "preset": p.Info})
}
