package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeMetrics(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, InitializeMetrics(ExporterNull{}))

	FinalizedBlockHeightGauge.Set(42, ChainIDKey.String("6565"))
	FinalizedBlockHeightGauge.Set(43, ChainIDKey.String("6565"))
	v, ok := FinalizedBlockHeightGauge.Value(ChainIDKey.String("6565"))
	require.True(t, ok)
	assert.Equal(t, int64(43), v)
	_, ok = FinalizedBlockHeightGauge.Value(ChainIDKey.String("6566"))
	assert.False(t, ok)

	SubmissionsCounter.Add(ctx, 1)

	require.NoError(t, ShutdownMetrics(ctx))
	// a second shutdown is a no-op
	assert.NoError(t, ShutdownMetrics(ctx))
}

func TestNilSyncGauge(t *testing.T) {
	var g *Int64SyncGauge
	g.Set(1)
	_, ok := g.Value()
	assert.False(t, ok)
}
