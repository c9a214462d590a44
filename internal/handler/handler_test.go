// internal/handler/handler_test.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/discovery"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/scif/sciftest"
	"micmgmt-service/internal/service"
	"micmgmt-service/internal/systoolsd"
	"micmgmt-service/internal/utils"
	"micmgmt-service/pkg/micsdk"
)

type testServer struct {
	router *gin.Engine
	sysfs  string
	bus    *service.EventBus
	ws     *WebSocketHandler

	mu       sync.Mutex
	channels map[int]*sciftest.Channel
}

// newTestServer wires the handlers over one online card, mic0, whose
// channels start open.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	cfg := &config.Config{}
	cfg.App.Name = "micmgmt-service"
	cfg.Device.OpenRetries = 1
	cfg.Device.RetryDelay = time.Millisecond

	ts := &testServer{
		sysfs:    t.TempDir(),
		bus:      service.NewEventBus(logger),
		channels: make(map[int]*sciftest.Channel),
	}
	card := filepath.Join(ts.sysfs, "class", "mic", "mic0")
	require.NoError(t, os.MkdirAll(card, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(card, "state"), []byte("online\n"), 0o644))

	manager := device.NewManager(&device.Config{OpenRetries: 1, RetryDelay: time.Millisecond}, logger)
	manager.SetFactory(func(index int, cfg *device.Config, logger *zap.Logger) *device.Device {
		ch := sciftest.NewChannel(index)
		ts.mu.Lock()
		ts.channels[index] = ch
		ts.mu.Unlock()
		return device.NewWithClients(index, systoolsd.NewConnectionWithChannel(ch, logger), nil, cfg, logger)
	})

	scanner := discovery.NewSysfsScanner(ts.sysfs, logger)
	discoveryService := service.NewDiscoveryService(scanner, manager, ts.bus, cfg, logger)
	deviceService := service.NewDeviceService(manager, discoveryService, ts.bus, cfg, logger)
	operationService := service.NewOperationService(manager, repository.NewMemoryOperationRepository(), ts.bus, cfg, logger)
	sampler := service.NewSampler(manager, discoveryService, deviceService,
		repository.NewMemoryTelemetryRepository(0), repository.NewMemoryOperationRepository(), ts.bus, cfg, logger)
	ts.ws = NewWebSocketHandler(ts.bus, &cfg.Security, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ts.bus.Start(ctx)
	go ts.ws.Start(ctx)

	_, err := discoveryService.Sync(ctx)
	require.NoError(t, err)

	router := gin.New()
	NewHealthHandler(nil, discoveryService, deviceService, cfg, logger).RegisterRoutes(router)
	api := router.Group("/api/v1")
	NewDeviceHandler(deviceService, operationService, logger).RegisterRoutes(api)
	NewOperationHandler(operationService, sampler, logger).RegisterRoutes(api)
	NewDiscoveryHandler(discoveryService, deviceService, logger).RegisterRoutes(api)
	ts.ws.RegisterRoutes(router.Group("/ws"))
	ts.router = router
	return ts
}

func (ts *testServer) channel(index int) *sciftest.Channel {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.channels[index]
}

func (ts *testServer) reply(t *testing.T, index int, cmd uint32, payload []byte) {
	t.Helper()
	header := systoolsd.Header{ReqType: uint16(cmd), Length: uint16(len(payload))}
	raw, err := header.MarshalBinary()
	require.NoError(t, err)
	ts.channel(index).Queue(raw, payload)
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var response utils.APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func resultCode(code micsdk.Code) string {
	return fmt.Sprintf("0x%02x", uint32(code))
}

func TestListDevices(t *testing.T) {
	ts := newTestServer(t)

	w, response := ts.do(t, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response.Success)

	devices, ok := response.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, devices, 1)
	assert.Equal(t, "mic0", devices[0].(map[string]interface{})["name"])
}

func TestInvalidDeviceIndex(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/devices/abc", "/api/v1/devices/-1/thermal"} {
		w, response := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		require.NotNil(t, response.Error, path)
		assert.Equal(t, resultCode(micsdk.InvalidDeviceNumber), response.Error.ResultCode, path)
	}
}

func TestUnknownDeviceNotFound(t *testing.T) {
	ts := newTestServer(t)

	w, response := ts.do(t, http.MethodGet, "/api/v1/devices/5/thermal", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, resultCode(micsdk.NoSuchDevice), response.Error.ResultCode)
}

func TestThermalQuery(t *testing.T) {
	ts := newTestServer(t)
	payload, err := systoolsd.Encode(systoolsd.ThermalInfo{TempCPU: 55, FanTach: 2800, FanPwm: 35})
	require.NoError(t, err)
	ts.reply(t, 0, systoolsd.GetThermalInfo, payload)

	w, response := ts.do(t, http.MethodGet, "/api/v1/devices/0/thermal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response.Success)
	assert.NotNil(t, response.Data)
}

func TestQueryOnClosedDevice(t *testing.T) {
	ts := newTestServer(t)
	ts.channel(0).SetOpen(false)

	w, response := ts.do(t, http.MethodGet, "/api/v1/devices/0/power", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, response.Error)
	assert.Equal(t, "CONFLICT", response.Error.Code)
	assert.Equal(t, resultCode(micsdk.DeviceNotOpen), response.Error.ResultCode)
}

func TestInvalidSmcOffset(t *testing.T) {
	ts := newTestServer(t)

	w, response := ts.do(t, http.MethodGet, "/api/v1/devices/0/smc/0x1ff", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, resultCode(micsdk.InvalidSmcRegOffset), response.Error.ResultCode)
}

func TestSmcWriteDeniedIsAudited(t *testing.T) {
	ts := newTestServer(t)

	w, response := ts.do(t, http.MethodPut, "/api/v1/devices/0/smc/0x20", WriteSmcRequest{Data: "01"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, resultCode(micsdk.NoAccess), response.Error.ResultCode)

	w, response = ts.do(t, http.MethodGet, "/api/v1/operations?operation_type=SMC_WRITE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := response.Data.(map[string]interface{})
	operations := data["operations"].([]interface{})
	require.Len(t, operations, 1)
	assert.Equal(t, string(model.OperationStatusDenied), operations[0].(map[string]interface{})["status"])

	id := operations[0].(map[string]interface{})["id"].(string)
	w, _ = ts.do(t, http.MethodGet, "/api/v1/operations/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetLedRequiresMode(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPut, "/api/v1/devices/0/led", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOperationNotFound(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/api/v1/operations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/v1/operations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSampleFilterValidation(t *testing.T) {
	ts := newTestServer(t)

	w, response := ts.do(t, http.MethodGet, "/api/v1/samples?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", response.Error.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/v1/samples?device=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReportsDriverState(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["devices"].Status)
	_, hasDatabase := health.Checks["database"]
	assert.False(t, hasDatabase)

	require.NoError(t, os.RemoveAll(filepath.Join(ts.sysfs, "class")))

	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebSocketTelemetryStream(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/telemetry?device=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return ts.bus.SubscriberCount() > 0 && ts.ws.connections.GetStats().TotalConnections == 1
	}, time.Second, 10*time.Millisecond)

	ts.bus.Publish(model.NewDeviceEvent(model.EventDeviceOpened, 0, "mic0", nil))
	ts.bus.Publish(model.NewDeviceEvent(model.EventTelemetrySample, 1, "mic1", nil))
	ts.bus.Publish(model.NewDeviceEvent(model.EventTelemetrySample, 0, "mic0", nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var message struct {
		Type string            `json:"type"`
		Data model.DeviceEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, "telemetry", message.Type)
	assert.Equal(t, model.EventTelemetrySample, message.Data.EventType)
	assert.Equal(t, "mic0", message.Data.DeviceName)
}

func TestWebSocketPing(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var reply WebSocketMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)
}
