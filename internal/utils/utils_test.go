// internal/utils/utils_test.go
package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micmgmt-service/internal/config"
	"micmgmt-service/pkg/micsdk"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(&config.LoggingConfig{Level: "loud", Output: "stdout"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "nested", "micmgmt.log")
	logger, err = NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: path, MaxSize: 1})
	require.NoError(t, err)
	NewCardLogger(logger, 0).LogOpen(1, nil)
	assert.FileExists(t, path)
}

func TestStatusForCode(t *testing.T) {
	cases := map[micsdk.Code]int{
		micsdk.Success:             http.StatusOK,
		micsdk.InvalidDeviceNumber: http.StatusBadRequest,
		micsdk.SmcOpNotPermitted:   http.StatusForbidden,
		micsdk.NoSuchDevice:        http.StatusNotFound,
		micsdk.DeviceNotOpen:       http.StatusConflict,
		micsdk.NotSupported:        http.StatusNotImplemented,
		micsdk.Timeout:             http.StatusGatewayTimeout,
		micsdk.DeviceIOError:       http.StatusBadGateway,
		micsdk.DriverNotLoaded:     http.StatusServiceUnavailable,
		micsdk.InternalError:       http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusForCode(code), code.String())
	}
}

func TestDeviceErrorResponseCarriesResultCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-7")

	DeviceErrorResponse(c, "Failed to read thermal info", fmt.Errorf("read thermal: %w", micsdk.DeviceBusy))

	require.Equal(t, http.StatusConflict, w.Code)
	var response APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Equal(t, "req-7", response.RequestID)
	require.NotNil(t, response.Error)
	assert.Equal(t, "CONFLICT", response.Error.Code)
	assert.Equal(t, fmt.Sprintf("0x%02x", uint32(micsdk.DeviceBusy)), response.Error.ResultCode)
}
