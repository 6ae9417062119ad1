package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	ctx := context.Background()
	m.Inc(ctx, OrphanedMoves)
	m.Add(ctx, SourceFailures, 2)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap[OrphanedMoves])
	assert.Equal(t, int64(2), snap[SourceFailures])
	assert.Zero(t, snap[BackfillFailures])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(context.Background(), OrphanedMoves)
	assert.Empty(t, m.Snapshot())
}

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
