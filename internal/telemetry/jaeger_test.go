package telemetry

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestDisabledIsNoop(t *testing.T) {
	shutdown, err := Init("storysync-test", "http://127.0.0.1:1/api/traces", false)
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, shutdown(context.Background()))
}

func TestInitJaeger(t *testing.T) {
	// the exporter only dials when spans are flushed
	shutdown, err := Init("storysync-test", "http://127.0.0.1:1/api/traces", true)
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, shutdown(context.Background()))
}
