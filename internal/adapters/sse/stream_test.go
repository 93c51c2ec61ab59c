package sse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mirage/internal/core"
)

func TestSSEConnSendAndClose(t *testing.T) {
	c := newSSEConn()
	require.True(t, c.IsOpen())

	require.NoError(t, c.TrySend(core.Payload(`{"type":"thought"}`)))
	require.Equal(t, core.Payload(`{"type":"thought"}`), <-c.ch)

	c.Close()
	require.False(t, c.IsOpen())
	require.ErrorIs(t, c.TrySend(core.Payload("x")), core.ErrTransportClosed)

	// Close twice must not panic on the done channel.
	c.Close()
}

func TestSSEConnBackpressure(t *testing.T) {
	c := newSSEConn()
	for i := 0; i < cap(c.ch); i++ {
		require.NoError(t, c.TrySend(core.Payload("p")))
	}
	require.ErrorIs(t, c.TrySend(core.Payload("overflow")), core.ErrBackpressure)
}
