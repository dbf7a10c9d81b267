package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/types"
	"github.com/KevinKickass/ngxconfig/internal/workspace"
)

const cancelTimeout = 5 * time.Second

// startOperation launches req in the background and answers 202. Progress
// is pushed over the websocket and the gRPC stream.
func (s *Server) startOperation(c *gin.Context, req workspace.Request) {
	err := s.lm.Workspace().Start(req)
	switch {
	case errors.Is(err, workspace.ErrBusy):
		c.JSON(http.StatusConflict, types.NewErrorResponse("DEVICE_409", "Another operation is running", s.lm.Workspace().Running()))
		return
	case errors.Is(err, workspace.ErrNotConnected):
		c.JSON(http.StatusConflict, types.NewErrorResponse("DEVICE_409", "Not connected to the bus", nil))
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DEVICE_400", "Invalid operation", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"operation": req,
		"status":    "started",
	})
}

// POST /api/v1/device/write
func (s *Server) writeDevice(c *gin.Context) {
	s.startOperation(c, workspace.Request{Kind: manager.KindWriteConfiguration})
}

// POST /api/v1/device/write/system
func (s *Server) writeSystem(c *gin.Context) {
	s.startOperation(c, workspace.Request{Kind: manager.KindWriteSystem})
}

// POST /api/v1/device/factory-reset
func (s *Server) factoryReset(c *gin.Context) {
	s.startOperation(c, workspace.Request{Kind: manager.KindFactoryReset})
}

// POST /api/v1/device/read
func (s *Server) readDevice(c *gin.Context) {
	s.startOperation(c, workspace.Request{Kind: manager.KindReadFull})
}

// POST /api/v1/device/read/system
func (s *Server) readSystem(c *gin.Context) {
	s.startOperation(c, workspace.Request{Kind: manager.KindReadSystem})
}

// POST /api/v1/device/read/input/:n
func (s *Server) readInput(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 || n > configdata.TotalInputs {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DEVICE_400", "Input number must be 1-44", c.Param("n")))
		return
	}
	s.startOperation(c, workspace.Request{Kind: manager.KindReadInput, Input: n})
}

// GET /api/v1/operation
func (s *Server) getOperation(c *gin.Context) {
	ws := s.lm.Workspace()
	c.JSON(http.StatusOK, gin.H{
		"running":   ws.Running(),
		"sequencer": s.lm.Sequencer().Status(),
		"last":      ws.LastOutcome(),
	})
}

// DELETE /api/v1/operation
func (s *Server) cancelOperation(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), cancelTimeout)
	defer cancel()

	err := s.lm.Workspace().Cancel(ctx)
	switch {
	case errors.Is(err, workspace.ErrNoOperation):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_404", "No operation running", nil))
		return
	case err != nil:
		c.JSON(http.StatusGatewayTimeout, types.NewErrorResponse("DEVICE_504", "Operation did not stop in time", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true, "last": s.lm.Workspace().LastOutcome()})
}

// GET /api/v1/operations?limit=50
func (s *Server) listOperations(c *gin.Context) {
	limit := queryLimit(c, 50)
	ops, err := s.lm.Storage().ListOperations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("HISTORY_500", "Failed to load history", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 || limit > 500 {
		return def
	}
	return limit
}
