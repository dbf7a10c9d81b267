package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/KevinKickass/ngxconfig/internal/api/rest"
	"github.com/KevinKickass/ngxconfig/internal/api/websocket"
	"github.com/KevinKickass/ngxconfig/internal/auth"
	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/interfaces"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/presets"
	"github.com/KevinKickass/ngxconfig/internal/simulator"
	"github.com/KevinKickass/ngxconfig/internal/storage"
	"github.com/KevinKickass/ngxconfig/internal/streaming"
	"github.com/KevinKickass/ngxconfig/internal/transport"
	"github.com/KevinKickass/ngxconfig/internal/workspace"
)

const (
	eventBuffer   = 256
	storeTimeout  = 5 * time.Second
	cancelTimeout = 5 * time.Second
)

var simulatedFirmware = configdata.FirmwareVersion{Major: 1, Minor: 4}

type LifecycleManager struct {
	config       *config.Config
	storage      storage.Store
	transport    *transport.Transport
	sequencer    *manager.Manager
	workspace    *workspace.Workspace
	presets      *presets.Catalog
	validator    *configdata.Validator
	authService  *auth.AuthService
	streamer     *streaming.EventStreamer
	eventService *streaming.EventService
	wsHub        *websocket.Hub
	logger       *zap.Logger

	restServer   *rest.Server
	grpcServer   *grpc.Server
	healthServer *health.Server

	stateMu      sync.RWMutex
	currentState ServiceState

	// Bridges und Hub laufen bis Shutdown
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWg     sync.WaitGroup

	shutdownOnce sync.Once
}

type Option func(*options)

type options struct {
	transportOpts []transport.Option
}

// WithTransportOptions passes options to the serial transport, e.g. a fake
// opener in tests.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transportOpts = append(o.transportOpts, opts...) }
}

func NewLifecycleManager(store storage.Store, cfg *config.Config, logger *zap.Logger, opts ...Option) (*LifecycleManager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	catalog, err := presets.LoadCatalog(cfg.Presets.SearchPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}

	validator, err := configdata.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	transportOpts := []transport.Option{
		transport.WithBaudRate(cfg.Serial.BaudRate),
		transport.WithReadTimeout(cfg.Serial.ReadTimeout),
	}
	if cfg.Serial.Simulate {
		logger.Warn("Serial port replaced by simulated controller")
		sim := simulator.New(simulatedFirmware, cfg.Protocol.EEPROM())
		transportOpts = append(transportOpts, transport.WithOpener(sim.Opener()))
	}
	transportOpts = append(transportOpts, o.transportOpts...)
	bus := transport.New(logger.Named("transport"), transportOpts...)

	seq := manager.New(bus, logger.Named("sequencer"),
		manager.WithProtocol(cfg.Protocol.EEPROM()),
		manager.WithTimeout(cfg.Sequencer.OpTimeout),
		manager.WithRetryLimit(cfg.Sequencer.RetryLimit),
		manager.WithTolerateReadFailures(cfg.Sequencer.TolerateReadFailures),
		manager.WithWritePacing(cfg.Sequencer.WritePacing),
	)

	authService := auth.NewAuthService(cfg.Auth, logger)
	streamer := streaming.NewEventStreamer(eventBuffer)

	lm := &LifecycleManager{
		config:       cfg,
		storage:      store,
		transport:    bus,
		sequencer:    seq,
		presets:      catalog,
		validator:    validator,
		authService:  authService,
		streamer:     streamer,
		eventService: streaming.NewEventService(streamer, logger),
		wsHub:        websocket.NewHub(logger.Named("websocket"), authService),
		logger:       logger,
		currentState: StateStarting,
	}

	lm.workspace = workspace.New(seq, logger.Named("workspace"),
		workspace.WithConnected(bus.IsConnected),
		workspace.WithReadHook(lm.backupDeviceRead),
	)

	lm.restServer = rest.NewServer(cfg, lm, logger, lm.wsHub, authService)
	lm.bgCtx, lm.bgCancel = context.WithCancel(context.Background())

	return lm, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting ngxconfig")

	lm.startBackground()

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)

	// Auto-Connect ist optional, Fehler sind nicht fatal
	if lm.config.Serial.AutoConnect && lm.config.Serial.Port != "" {
		if err := lm.transport.Connect(lm.config.Serial.Port); err != nil {
			lm.logger.Warn("Auto-connect failed",
				zap.String("port", lm.config.Serial.Port),
				zap.Error(err))
		}
	}

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("presets", len(lm.presets.List())),
		zap.Bool("database", lm.config.Database.Enabled))

	return nil
}

func (lm *LifecycleManager) startBackground() {
	ctx := lm.bgCtx

	// Abos sofort anlegen, damit keine Events verloren gehen
	seqEvents := lm.sequencer.Subscribe(eventBuffer)
	busEvents := lm.transport.Subscribe(eventBuffer)

	lm.bgWg.Add(4)
	go func() {
		defer lm.bgWg.Done()
		lm.wsHub.Run(ctx)
	}()
	go func() {
		defer lm.bgWg.Done()
		lm.wsHub.Forward(ctx, lm.streamer)
	}()
	go func() {
		defer lm.bgWg.Done()
		defer lm.sequencer.Unsubscribe(seqEvents)
		lm.bridgeSequencer(ctx, seqEvents)
	}()
	go func() {
		defer lm.bgWg.Done()
		defer lm.transport.Unsubscribe(busEvents)
		lm.bridgeTransport(ctx, busEvents)
	}()
}

// bridgeSequencer publishes sequencer events and records finished runs.
func (lm *LifecycleManager) bridgeSequencer(ctx context.Context, events <-chan manager.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			lm.streamer.Broadcast(streaming.Event{
				Source:    streaming.SourceSequencer,
				Type:      string(ev.Type),
				Timestamp: ev.Timestamp,
				Data:      ev,
			})

			if ev.Type == manager.EventReadComplete || ev.Type == manager.EventWriteComplete {
				lm.recordOperation(ev)
			}
		}
	}
}

func (lm *LifecycleManager) recordOperation(ev manager.Event) {
	rec := &storage.OperationRecord{
		SequenceID: ev.SequenceID,
		Kind:       string(ev.Kind),
		Success:    ev.Success,
		Message:    ev.Message,
		Total:      ev.Total,
		Failed:     len(ev.Failed),
		FinishedAt: ev.Timestamp,
	}
	if ev.LastAddress != nil {
		addr := int(*ev.LastAddress)
		rec.LastAddress = &addr
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := lm.storage.RecordOperation(ctx, rec); err != nil {
		lm.logger.Error("Failed to record operation",
			zap.String("sequence_id", ev.SequenceID),
			zap.Error(err))
	}
}

// bridgeTransport publishes link and adapter events. Received frames are
// consumed by the sequencer and not forwarded.
func (lm *LifecycleManager) bridgeTransport(ctx context.Context, events <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == transport.EventMessageReceived {
				continue
			}

			data := map[string]any{"port": ev.Port}
			switch ev.Type {
			case transport.EventStatus:
				data["status"] = ev.Status.String()
			case transport.EventFrameError:
				data["raw"] = ev.Raw
			}
			if ev.Err != nil {
				data["error"] = ev.Err.Error()
			}

			lm.streamer.Broadcast(streaming.Event{
				Source:    streaming.SourceBus,
				Type:      string(ev.Type),
				Timestamp: ev.Timestamp,
				Data:      data,
			})
		}
	}
}

// backupDeviceRead keeps every full read from the device as a backup.
func (lm *LifecycleManager) backupDeviceRead(o workspace.Outcome, cfg *configdata.FullConfiguration) {
	if o.Request.Kind != manager.KindReadFull {
		return
	}

	data, err := cfg.ToJSON()
	if err != nil {
		lm.logger.Error("Failed to serialise device read", zap.Error(err))
		return
	}

	b := &storage.Backup{
		Name:          "Device read " + o.FinishedAt.Format("2006-01-02 15:04:05"),
		Source:        "device",
		FirmwareMajor: int(o.Firmware.Major),
		FirmwareMinor: int(o.Firmware.Minor),
		Complete:      o.Success,
		Configuration: data,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := lm.storage.SaveBackup(ctx, b); err != nil {
		lm.logger.Error("Failed to back up device read", zap.Error(err))
		return
	}
	lm.logger.Info("Device read backed up",
		zap.String("backup_id", b.ID.String()),
		zap.Bool("complete", b.Complete))
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		shutdownErr = lm.gracefulShutdown(ctx)
		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	// 1. Laufende Sequenz abbrechen, bevor der Port geschlossen wird
	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	if err := lm.workspace.Cancel(cancelCtx); err != nil && !errors.Is(err, workspace.ErrNoOperation) {
		errs = append(errs, fmt.Errorf("cancel operation: %w", err))
	}
	cancel()

	if err := lm.transport.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 2. REST API Server graceful shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
		}
	}()

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.healthServer.Shutdown()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	// 4. Bridges und Hub stoppen, Streams enden damit
	lm.bgCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		lm.bgWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	}

	close(errChan)
	for err := range errChan {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	lm.healthServer = health.NewServer()

	streaming.RegisterEventServiceServer(lm.grpcServer, lm.eventService)
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)
	lm.healthServer.SetServingStatus(streaming.ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", streaming.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) setState(state ServiceState) {
	lm.stateMu.Lock()
	prev := lm.currentState
	if err := ValidateTransition(prev, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.streamer.Broadcast(streaming.Event{
		Source: streaming.SourceSystem,
		Type:   "status",
		Data:   lm.GetCurrentStatus(),
	})
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateFailed)
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:     state.String(),
		Port:      lm.transport.PortName(),
		Connected: lm.transport.IsConnected(),
		Database:  lm.config.Database.Enabled,
	}
	if r := lm.workspace.Running(); r != nil {
		status.Operation = string(r.Kind)
	}
	return status
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Storage returns the backup and history store
func (lm *LifecycleManager) Storage() storage.Store {
	return lm.storage
}

func (lm *LifecycleManager) Transport() *transport.Transport {
	return lm.transport
}

func (lm *LifecycleManager) Sequencer() *manager.Manager {
	return lm.sequencer
}

func (lm *LifecycleManager) Workspace() *workspace.Workspace {
	return lm.workspace
}

func (lm *LifecycleManager) Presets() *presets.Catalog {
	return lm.presets
}

func (lm *LifecycleManager) Validator() *configdata.Validator {
	return lm.validator
}

// Streamer is the live event fan-out shared by websocket and gRPC.
func (lm *LifecycleManager) Streamer() *streaming.EventStreamer {
	return lm.streamer
}

// RESTServer returns the HTTP API server.
func (lm *LifecycleManager) RESTServer() *rest.Server {
	return lm.restServer
}
