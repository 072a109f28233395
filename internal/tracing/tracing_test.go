package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/walletsync/internal/config"
)

func TestInit_DisabledInstallsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "walletsync", config.TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestInit_EnabledWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "walletsync", config.TracingConfig{Enabled: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
