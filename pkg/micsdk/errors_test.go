// pkg/micsdk/errors_test.go
package micsdk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeText(t *testing.T) {
	assert.Equal(t, "Success", Success.Text())
	assert.Equal(t, "Device I/O error", DeviceIOError.Error())
	assert.Equal(t, "Version mismatch", VersionMismatch.Text())
	assert.Equal(t, "Unknown error", Code(0x99).Text())
	assert.Equal(t, "0x1a: SMC operation not permitted", SmcOpNotPermitted.String())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Success, CodeOf(nil))
	assert.Equal(t, DeviceNotOpen, CodeOf(DeviceNotOpen))

	wrapped := fmt.Errorf("failed to read thermal info: %w", DeviceIOError)
	assert.Equal(t, DeviceIOError, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, DeviceIOError))

	assert.Equal(t, InternalError, CodeOf(errors.New("boom")))
}

func TestIsError(t *testing.T) {
	assert.False(t, Success.IsError())
	assert.True(t, InvalidArg.IsError())
}
