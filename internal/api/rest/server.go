package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/api/websocket"
	"github.com/KevinKickass/ngxconfig/internal/auth"
	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/interfaces"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// kein WriteTimeout: CSV-Export und Websocket
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)

		// ==================== SESSION (PUBLIC) ====================
		v1.POST("/session", s.startSession)

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		v1.GET("/ws/live", s.wsLiveConnection)

		api := v1.Group("")
		api.Use(s.authService.AuthMiddleware())

		api.GET("/session", s.getSession)
		api.GET("/session/events", auth.RequirePermission(auth.PermAudit), s.listSessionEvents)
		api.GET("/status", auth.RequirePermission(auth.PermReadConfig), s.getSystemStatus)

		// ==================== CONNECTION ====================
		api.GET("/ports", auth.RequirePermission(auth.PermReadConfig), s.listPorts)
		conn := api.Group("/connection")
		conn.Use(auth.RequirePermission(auth.PermReadConfig))
		{
			conn.GET("", s.getConnection)
			conn.POST("", s.connect)
			conn.DELETE("", s.disconnect)
		}

		// ==================== CAN / ADAPTER ====================
		api.POST("/can/send", auth.RequirePermission(auth.PermRawFrames), s.sendMessage)
		api.POST("/can/status", auth.RequirePermission(auth.PermAdapter), s.requestBusStatus)
		api.POST("/adapter/setup", auth.RequirePermission(auth.PermAdapter), s.setupAdapter)

		// ==================== WORKING CONFIGURATION ====================
		cfg := api.Group("/config")
		{
			cfg.GET("", auth.RequirePermission(auth.PermReadConfig), s.getConfig)
			cfg.PUT("", auth.RequirePermission(auth.PermWriteConfig), s.putConfig)
			cfg.GET("/export.csv", auth.RequirePermission(auth.PermReadConfig), s.exportCSV)
		}
		api.GET("/catalog", auth.RequirePermission(auth.PermReadConfig), s.getCatalog)

		presets := api.Group("/presets")
		{
			presets.GET("", auth.RequirePermission(auth.PermReadConfig), s.listPresets)
			presets.POST("/:name/load", auth.RequirePermission(auth.PermWriteConfig), s.loadPreset)
		}

		// ==================== DEVICE SEQUENCES ====================
		device := api.Group("/device")
		{
			device.POST("/write", auth.RequirePermission(auth.PermWriteConfig), s.writeDevice)
			device.POST("/write/system", auth.RequirePermission(auth.PermSystemWrite), s.writeSystem)
			device.POST("/factory-reset", auth.RequirePermission(auth.PermFactoryReset), s.factoryReset)
			device.POST("/read", auth.RequirePermission(auth.PermReadConfig), s.readDevice)
			device.POST("/read/system", auth.RequirePermission(auth.PermReadConfig), s.readSystem)
			device.POST("/read/input/:n", auth.RequirePermission(auth.PermEditCases), s.readInput)
		}

		api.GET("/operation", auth.RequirePermission(auth.PermReadConfig), s.getOperation)
		api.DELETE("/operation", auth.RequirePermission(auth.PermWriteConfig), s.cancelOperation)
		api.GET("/operations", auth.RequirePermission(auth.PermReadConfig), s.listOperations)

		// ==================== BACKUPS ====================
		backups := api.Group("/backups")
		backups.Use(auth.RequirePermission(auth.PermBackups))
		{
			backups.GET("", s.listBackups)
			backups.POST("", s.createBackup)
			backups.GET("/:id", s.getBackup)
			backups.DELETE("/:id", s.deleteBackup)
			backups.POST("/:id/restore", s.restoreBackup)
		}

		api.GET("/ws/status", s.wsStatus)
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GET /api/v1/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
