// internal/utils/response.go
package utils

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"micmgmt-service/pkg/micsdk"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError describes a failed request. ResultCode carries the device result
// code in "0x0c" form when the failure came from a card.
type APIError struct {
	Code       string `json:"code"`
	ResultCode string `json:"result_code,omitempty"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: GetRequestID(c),
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}
	if err != nil {
		apiError.Details = err.Error()
		var code micsdk.Code
		if errors.As(err, &code) {
			apiError.ResultCode = fmt.Sprintf("0x%02x", uint32(code))
		}
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: GetRequestID(c),
	})
}

// DeviceErrorResponse sends an error response whose status is derived from
// the result code carried by err.
func DeviceErrorResponse(c *gin.Context, message string, err error) {
	ErrorResponse(c, StatusForCode(micsdk.CodeOf(err)), message, err)
}

// ValidationErrorResponse sends validation error response
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Message: "Validation failed",
		Error: &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
		},
		Data:      gin.H{"validation_errors": errors},
		Timestamp: time.Now(),
		RequestID: GetRequestID(c),
	})
}

// StatusForCode maps a device result code to an HTTP status.
func StatusForCode(code micsdk.Code) int {
	switch code {
	case micsdk.Success:
		return http.StatusOK
	case micsdk.InvalidArg, micsdk.InvalidDeviceNumber, micsdk.InvalidSmcRegOffset, micsdk.BufferTooSmall:
		return http.StatusBadRequest
	case micsdk.NoAccess, micsdk.SmcOpNotPermitted:
		return http.StatusForbidden
	case micsdk.NoSuchDevice, micsdk.NoDevices, micsdk.PropertyNotFound:
		return http.StatusNotFound
	case micsdk.DeviceAlreadyOpen, micsdk.DeviceNotOpen, micsdk.DeviceBusy:
		return http.StatusConflict
	case micsdk.NotSupported:
		return http.StatusNotImplemented
	case micsdk.Timeout:
		return http.StatusGatewayTimeout
	case micsdk.DeviceIOError, micsdk.DeviceOpenFailed, micsdk.VersionMismatch:
		return http.StatusBadGateway
	case micsdk.DeviceNotOnline, micsdk.DeviceNotReady, micsdk.DriverNotLoaded,
		micsdk.DriverNotInitialized, micsdk.NoMpssStack, micsdk.SharedLibraryError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetRequestID extracts the request ID set by the request ID middleware.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	case http.StatusBadGateway:
		return "DEVICE_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}
