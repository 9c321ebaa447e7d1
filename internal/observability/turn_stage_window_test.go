package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageGeneration, 500)
	w.Observe(StageGeneration, 700)
	w.Observe(StageGeneration, 900)
	w.ObserveIndicator("cache_hit")
	w.ObserveIndicator("cache_hit")

	snap := w.Snapshot()
	require.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	require.Equal(t, StageGeneration, s.Stage)
	require.Equal(t, 3, s.Samples)
	require.Equal(t, 900.0, s.LastMS)
	require.Equal(t, 700.0, s.P50MS)
	require.Greater(t, s.P95MS, 700.0)
	require.LessOrEqual(t, s.P95MS, 900.0)
	require.Equal(t, 4000.0, s.TargetP95MS)

	require.Len(t, snap.Indicators, 1)
	require.Equal(t, "cache_hit", snap.Indicators[0].Name)
	require.Equal(t, 2, snap.Indicators[0].Count)
}

func TestTurnStageWindowWrapsAtCapacity(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe(StageTurnTotal, 10)
	w.Observe(StageTurnTotal, 20)
	w.Observe(StageTurnTotal, 30)

	snap := w.Snapshot()
	require.Len(t, snap.Stages, 1)
	require.Equal(t, 2, snap.Stages[0].Samples)
	require.Equal(t, 30.0, snap.Stages[0].LastMS)
	require.Equal(t, 25.0, snap.Stages[0].AvgMS)
}

func TestTurnStageWindowIgnoresInvalidSamples(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe("", 10)
	w.Observe(StageContext, -1)
	w.ObserveIndicator("  ")

	snap := w.Snapshot()
	require.Empty(t, snap.Stages)
	require.Empty(t, snap.Indicators)
}

func TestMetricsObserveTurnStage(t *testing.T) {
	m := NewMetrics("test_observability_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"))
	m.ObserveTurnStage(StageCacheLookup, 3*time.Millisecond)
	m.ObserveTurnIndicator("cache_miss")

	snap := m.SnapshotTurnStages()
	require.Len(t, snap.Stages, 1)
	require.Equal(t, StageCacheLookup, snap.Stages[0].Stage)
	require.Equal(t, 3.0, snap.Stages[0].LastMS)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveTurnStage(StageTurnTotal, time.Second)
	m.ObserveTurn("generated")
	m.ObserveCache("get", "hit")
	m.ObserveTurnIndicator("cache_hit")
	require.Empty(t, m.SnapshotTurnStages().Stages)
}
