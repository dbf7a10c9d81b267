package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/ngxconfig/internal/api/websocket"
	"github.com/KevinKickass/ngxconfig/internal/auth"
	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/interfaces"
	"github.com/KevinKickass/ngxconfig/internal/manager"
	"github.com/KevinKickass/ngxconfig/internal/presets"
	"github.com/KevinKickass/ngxconfig/internal/simulator"
	"github.com/KevinKickass/ngxconfig/internal/storage"
	"github.com/KevinKickass/ngxconfig/internal/transport"
	"github.com/KevinKickass/ngxconfig/internal/workspace"
)

const adminPassword = "letmein"

// testLM wires the real components against a simulated controller.
type testLM struct {
	cfg       *config.Config
	store     *storage.MemoryStore
	bus       *transport.Transport
	seq       *manager.Manager
	ws        *workspace.Workspace
	catalog   *presets.Catalog
	validator *configdata.Validator
}

func (l *testLM) Config() *config.Config { return l.cfg }
func (l *testLM) Storage() storage.Store { return l.store }
func (l *testLM) Transport() *transport.Transport { return l.bus }
func (l *testLM) Sequencer() *manager.Manager { return l.seq }
func (l *testLM) Workspace() *workspace.Workspace { return l.ws }
func (l *testLM) Presets() *presets.Catalog { return l.catalog }
func (l *testLM) Validator() *configdata.Validator { return l.validator }
func (l *testLM) Shutdown(ctx context.Context) error { return l.bus.Disconnect() }
func (l *testLM) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", Connected: l.bus.IsConnected(), Port: l.bus.PortName()}
}

type testEnv struct {
	t      *testing.T
	lm     *testLM
	server *Server
	auth   *auth.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	hash, err := auth.NewPasswordHasher().HashPassword(adminPassword)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("NGX_TEST_ADMIN_HASH", hash)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Auth.AdminPasswordHashEnv = "NGX_TEST_ADMIN_HASH"
	cfg.Serial.Port = "sim0"

	sim := simulator.New(configdata.FirmwareVersion{Major: 1, Minor: 4}, cfg.Protocol.EEPROM())
	bus := transport.New(logger, transport.WithOpener(sim.Opener()), transport.WithReadTimeout(5*time.Millisecond))
	t.Cleanup(func() { bus.Disconnect() })

	seq := manager.New(bus, logger, manager.WithProtocol(cfg.Protocol.EEPROM()), manager.WithTimeout(100*time.Millisecond))
	catalog, err := presets.LoadCatalog(nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	validator, err := configdata.NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	lm := &testLM{
		cfg:       cfg,
		store:     storage.NewMemoryStore(),
		bus:       bus,
		seq:       seq,
		ws:        workspace.New(seq, logger, workspace.WithConnected(bus.IsConnected)),
		catalog:   catalog,
		validator: validator,
	}

	authService := auth.NewAuthService(cfg.Auth, logger)
	srv := NewServer(cfg, lm, logger, websocket.NewHub(logger, authService), authService)
	return &testEnv{t: t, lm: lm, server: srv, auth: authService}
}

func (e *testEnv) token(mode auth.ViewMode) string {
	e.t.Helper()
	password := ""
	if mode == auth.ModeAdmin {
		password = adminPassword
	}
	token, _, err := e.auth.StartSession(mode, password)
	if err != nil {
		e.t.Fatal(err)
	}
	return token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			e.t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	return out
}

func (e *testEnv) waitIdle() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.lm.ws.Wait(ctx); err != nil {
		e.t.Fatal(err)
	}
}

func TestStartSession(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"basic", map[string]string{"mode": "basic"}, http.StatusOK},
		{"advanced", map[string]string{"mode": "Advanced"}, http.StatusOK},
		{"admin", map[string]string{"mode": "admin", "password": adminPassword}, http.StatusOK},
		{"admin wrong password", map[string]string{"mode": "admin", "password": "nope"}, http.StatusUnauthorized},
		{"unknown mode", map[string]string{"mode": "root"}, http.StatusBadRequest},
		{"missing mode", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/session", "", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}
			body := decode(t, w)
			token, _ := body["token"].(string)
			if token == "" || body["permissions"] == nil {
				t.Errorf("body = %v", body)
			}
			if _, err := env.auth.ValidateSession(token); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSessionEventsAudited(t *testing.T) {
	env := newTestEnv(t)

	env.do(http.MethodPost, "/api/v1/session", "", map[string]string{"mode": "admin", "password": "nope"})
	env.do(http.MethodPost, "/api/v1/session", "", map[string]string{"mode": "basic"})

	w := env.do(http.MethodGet, "/api/v1/session/events", env.token(auth.ModeAdmin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	events, _ := decode(t, w)["events"].([]any)
	if len(events) != 2 {
		t.Fatalf("events = %v", events)
	}

	newest := events[0].(map[string]any)
	oldest := events[1].(map[string]any)
	if newest["mode"] != "basic" || newest["success"] != true || newest["session_id"] == nil {
		t.Errorf("newest = %v", newest)
	}
	if oldest["mode"] != "admin" || oldest["success"] != false || oldest["reason"] == "" {
		t.Errorf("oldest = %v", oldest)
	}
}

func TestPermissions(t *testing.T) {
	env := newTestEnv(t)
	basic := env.token(auth.ModeBasic)
	advanced := env.token(auth.ModeAdvanced)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/config", "", http.StatusUnauthorized},
		{"basic reads config", http.MethodGet, "/api/v1/config", basic, http.StatusOK},
		{"basic no backups", http.MethodGet, "/api/v1/backups", basic, http.StatusForbidden},
		{"advanced backups", http.MethodGet, "/api/v1/backups", advanced, http.StatusOK},
		{"advanced no raw frames", http.MethodPost, "/api/v1/can/send", advanced, http.StatusForbidden},
		{"advanced no factory reset", http.MethodPost, "/api/v1/device/factory-reset", advanced, http.StatusForbidden},
		{"basic no input read", http.MethodPost, "/api/v1/device/read/input/3", basic, http.StatusForbidden},
		{"advanced no audit", http.MethodGet, "/api/v1/session/events", advanced, http.StatusForbidden},
		{"health is public", http.MethodGet, "/api/v1/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(tt.method, tt.path, tt.token, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPutConfig(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(auth.ModeBasic)

	cfg := configdata.NewFullConfiguration()
	cfg.System.CustomerName = "SHOP"
	cfg.Input(3).CustomName = "Blinker L"
	doc, err := cfg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if w := env.do(http.MethodPut, "/api/v1/config", token, []byte(`{"inputs": 5}`)); w.Code != http.StatusBadRequest {
		t.Errorf("schema violation: status = %d", w.Code)
	}
	if w := env.do(http.MethodPut, "/api/v1/config", token, []byte(`{`)); w.Code != http.StatusBadRequest {
		t.Errorf("broken json: status = %d", w.Code)
	}

	w := env.do(http.MethodPut, "/api/v1/config", token, doc)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}

	if got := env.lm.ws.Config(); !got.Equal(cfg) {
		t.Error("working configuration not replaced")
	}

	body := decode(t, env.do(http.MethodGet, "/api/v1/config", token, nil))
	if body["origin"] != "upload" {
		t.Errorf("origin = %v", body["origin"])
	}
	system := body["configuration"].(map[string]any)["system"].(map[string]any)
	if system["customer_name"] != "SHOP" {
		t.Errorf("system = %v", system)
	}
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(auth.ModeBasic)

	body := decode(t, env.do(http.MethodGet, "/api/v1/presets", token, nil))
	list := body["presets"].([]any)
	if len(list) < 2 {
		t.Fatalf("presets = %v", list)
	}

	if w := env.do(http.MethodPost, "/api/v1/presets/nope/load", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown preset: status = %d", w.Code)
	}

	w := env.do(http.MethodPost, "/api/v1/presets/front_engine/load", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if env.lm.ws.Origin() != "preset:front_engine" {
		t.Errorf("origin = %s", env.lm.ws.Origin())
	}
	if !env.lm.ws.Config().Input(1).OnCases[0].Enabled {
		t.Error("preset not applied")
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(auth.ModeBasic)
	env.do(http.MethodPost, "/api/v1/presets/rear_engine/load", token, nil)

	w := env.do(http.MethodGet, "/api/v1/config/export.csv", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %s", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "attachment") {
		t.Error("not an attachment")
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "input,name,type,case") {
		t.Errorf("csv = %q", w.Body.String())
	}
}

func TestDeviceOperations(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(auth.ModeAdvanced)

	if w := env.do(http.MethodPost, "/api/v1/device/read", token, nil); w.Code != http.StatusConflict {
		t.Errorf("read while disconnected: status = %d", w.Code)
	}

	w := env.do(http.MethodPost, "/api/v1/connection", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("connect: status = %d (%s)", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodPost, "/api/v1/connection", token, map[string]string{"port": "sim1"}); w.Code != http.StatusConflict {
		t.Errorf("second connect: status = %d", w.Code)
	}

	env.do(http.MethodPost, "/api/v1/presets/front_engine/load", token, nil)
	want := env.lm.ws.Config()

	if w := env.do(http.MethodPost, "/api/v1/device/write", token, nil); w.Code != http.StatusAccepted {
		t.Fatalf("write: status = %d (%s)", w.Code, w.Body.String())
	}
	env.waitIdle()

	body := decode(t, env.do(http.MethodGet, "/api/v1/operation", token, nil))
	last := body["last"].(map[string]any)
	if last["success"] != true || body["running"] != nil {
		t.Fatalf("operation = %v", body)
	}

	// Arbeitskonfiguration verwerfen und vom Gerät zurücklesen
	env.do(http.MethodPut, "/api/v1/config", token, mustJSON(t, configdata.NewFullConfiguration()))
	if w := env.do(http.MethodPost, "/api/v1/device/read/input/1", token, nil); w.Code != http.StatusAccepted {
		t.Fatalf("read input: status = %d", w.Code)
	}
	env.waitIdle()
	if got := env.lm.ws.Config().Input(1); !got.OnCases[0].Equal(want.Input(1).OnCases[0]) {
		t.Errorf("input 1 = %+v", got.OnCases[0])
	}

	if w := env.do(http.MethodPost, "/api/v1/device/read/input/45", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("input 45: status = %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/v1/operation", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("cancel idle: status = %d", w.Code)
	}

	if w := env.do(http.MethodDelete, "/api/v1/connection", token, nil); w.Code != http.StatusOK {
		t.Errorf("disconnect: status = %d", w.Code)
	}
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.ModeAdmin)

	msg := map[string]string{"id": "18FF0180", "data": "01 02 03"}
	if w := env.do(http.MethodPost, "/api/v1/can/send", admin, msg); w.Code != http.StatusConflict {
		t.Errorf("disconnected: status = %d", w.Code)
	}

	env.lm.bus.Connect("sim0")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"extended", msg, http.StatusOK},
		{"standard", map[string]string{"id": "0x123", "data": ""}, http.StatusOK},
		{"bad id", map[string]string{"id": "xyz", "data": "01"}, http.StatusBadRequest},
		{"too long", map[string]string{"id": "123", "data": "01 02 03 04 05 06 07 08 09"}, http.StatusBadRequest},
		{"standard id out of range", map[string]string{"id": "800", "data": ""}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(http.MethodPost, "/api/v1/can/send", admin, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestBackups(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(auth.ModeAdvanced)

	env.do(http.MethodPost, "/api/v1/presets/rear_engine/load", token, nil)
	w := env.do(http.MethodPost, "/api/v1/backups", token, map[string]string{"name": "before trip"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (%s)", w.Code, w.Body.String())
	}
	created := decode(t, w)
	id := created["id"].(string)
	if created["source"] != "preset:rear_engine" {
		t.Errorf("source = %v", created["source"])
	}

	list := decode(t, env.do(http.MethodGet, "/api/v1/backups", token, nil))["backups"].([]any)
	if len(list) != 1 {
		t.Fatalf("backups = %v", list)
	}

	got := decode(t, env.do(http.MethodGet, "/api/v1/backups/"+id, token, nil))
	if got["configuration"] == nil {
		t.Error("configuration missing")
	}

	want := env.lm.ws.Config()
	env.do(http.MethodPost, "/api/v1/presets/front_engine/load", token, nil)

	w = env.do(http.MethodPost, "/api/v1/backups/"+id+"/restore", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: status = %d (%s)", w.Code, w.Body.String())
	}
	if !env.lm.ws.Config().Equal(want) || env.lm.ws.Origin() != "backup:"+id {
		t.Error("backup not restored")
	}

	if w := env.do(http.MethodPost, "/api/v1/backups/"+id+"/restore?write=true", token, nil); w.Code != http.StatusConflict {
		t.Errorf("restore+write while disconnected: status = %d", w.Code)
	}

	if w := env.do(http.MethodGet, "/api/v1/backups/not-a-uuid", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/v1/backups/"+id, token, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/backups/"+id, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("deleted: status = %d", w.Code)
	}
}

func mustJSON(t *testing.T, cfg *configdata.FullConfiguration) []byte {
	t.Helper()
	data, err := cfg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	return data
}
