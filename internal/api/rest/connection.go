package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/can"
	"github.com/KevinKickass/ngxconfig/internal/transport"
	"github.com/KevinKickass/ngxconfig/internal/types"
)

type ConnectRequest struct {
	Port string `json:"port"`
}

type SendRequest struct {
	ID       string `json:"id" binding:"required"`
	Extended *bool  `json:"extended"`
	Data     string `json:"data"`
}

// GET /api/v1/ports
func (s *Server) listPorts(c *gin.Context) {
	ports, err := transport.ListPorts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("PORTS_500", "Failed to list serial ports", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

// GET /api/v1/connection
func (s *Server) getConnection(c *gin.Context) {
	t := s.lm.Transport()
	c.JSON(http.StatusOK, gin.H{
		"connected": t.IsConnected(),
		"port":      t.PortName(),
	})
}

// POST /api/v1/connection
func (s *Server) connect(c *gin.Context) {
	var req ConnectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONNECTION_400", "Invalid request body", err.Error()))
			return
		}
	}
	if req.Port == "" {
		req.Port = s.lm.Config().Serial.Port
	}
	if req.Port == "" {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONNECTION_400", "No port given and none configured", nil))
		return
	}

	err := s.lm.Transport().Connect(req.Port)
	switch {
	case errors.Is(err, transport.ErrAlreadyConnected), errors.Is(err, transport.ErrPortBusy):
		c.JSON(http.StatusConflict, types.NewErrorResponse("CONNECTION_409", "Port not available", err.Error()))
		return
	case errors.Is(err, transport.ErrPortNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("CONNECTION_404", "Port not found", err.Error()))
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CONNECTION_500", "Failed to connect", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"connected": true, "port": req.Port})
}

// DELETE /api/v1/connection
func (s *Server) disconnect(c *gin.Context) {
	if s.lm.Workspace().Running() != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("CONNECTION_409", "Operation in progress, cancel it first", nil))
		return
	}
	if err := s.lm.Transport().Disconnect(); err != nil {
		s.logger.Warn("Disconnect reported an error", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

// POST /api/v1/can/send
func (s *Server) sendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CAN_400", "Invalid request body", err.Error()))
		return
	}

	msg, err := req.message()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CAN_400", "Invalid message", err.Error()))
		return
	}

	if err := s.lm.Transport().Send(msg); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			c.JSON(http.StatusConflict, types.NewErrorResponse("CAN_409", "Not connected", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CAN_500", "Failed to send message", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": msg.String()})
}

// message parses the hex identifier; ids with more than three digits are
// extended unless stated otherwise.
func (r SendRequest) message() (can.Message, error) {
	idText := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(r.ID), "0x"), "0X")
	id, err := strconv.ParseUint(idText, 16, 32)
	if err != nil {
		return can.Message{}, can.ErrInvalidID
	}

	extended := len(idText) > 3
	if r.Extended != nil {
		extended = *r.Extended
	}

	data, err := can.ParseHexData(r.Data)
	if err != nil {
		return can.Message{}, err
	}

	msg := can.Message{ID: uint32(id), Extended: extended, Data: data}
	if err := msg.Validate(); err != nil {
		return can.Message{}, err
	}
	return msg, nil
}

// POST /api/v1/can/status
func (s *Server) requestBusStatus(c *gin.Context) {
	if err := s.lm.Transport().RequestStatus(); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			c.JSON(http.StatusConflict, types.NewErrorResponse("CAN_409", "Not connected", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CAN_500", "Failed to request status", err.Error()))
		return
	}
	// Antwort kommt als Bus-Event über den Websocket
	c.JSON(http.StatusAccepted, gin.H{"requested": true})
}

// POST /api/v1/adapter/setup
func (s *Server) setupAdapter(c *gin.Context) {
	if s.lm.Workspace().Running() != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("ADAPTER_409", "Operation in progress", nil))
		return
	}

	var steps []string
	err := s.lm.Transport().ConfigureAdapter(c.Request.Context(), func(step, total int, cmd transport.AdapterCommand) {
		steps = append(steps, cmd.Description)
	})
	if err != nil {
		status, code := http.StatusInternalServerError, "ADAPTER_500"
		if errors.Is(err, transport.ErrNotConnected) {
			status, code = http.StatusConflict, "ADAPTER_409"
		}
		c.JSON(status, types.NewErrorResponse(code, "Adapter setup failed",
			gin.H{"error": err.Error(), "completed_steps": steps}))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"completed_steps": steps,
		"note":            "Power-cycle the adapter to apply the settings",
	})
}
