package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_KeepsHealthyWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.MinSize = 2
	h := newHarness(t, cfg)
	require.NoError(t, h.pool.Initialize(context.Background()))
	before := h.workers()

	h.pool.sweep(context.Background())

	assert.Equal(t, before, h.workers())
	for _, p := range h.launcher.processes() {
		opened, closed := p.pages()
		assert.Equal(t, 1, opened, "probe opens one page")
		assert.Equal(t, 1, closed, "probe closes its page")
	}
}

func TestSweep_EvictsOverusedWorker(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.pool.Initialize(context.Background()))
	old := h.workers()[0]
	old.usage.Store(101)

	h.pool.sweep(context.Background())

	ws := h.workers()
	require.Len(t, ws, 1, "topped back up to min size")
	assert.NotEqual(t, old.ID(), ws[0].ID())
	assert.False(t, old.Healthy())
	assert.EqualValues(t, 1, h.launcher.processes()[0].closes.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EvictionsTotal.WithLabelValues(reasonUsage)))
}

func TestSweep_UsageAtLimitIsKept(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.pool.Initialize(context.Background()))
	w := h.workers()[0]
	w.usage.Store(100)

	h.pool.sweep(context.Background())

	assert.Equal(t, []*Worker{w}, h.workers())
}

func TestSweep_EvictsOldWorkerWithoutProbing(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkerAge = time.Millisecond
	h := newHarness(t, cfg)
	require.NoError(t, h.pool.Initialize(context.Background()))
	old := h.workers()[0]
	time.Sleep(5 * time.Millisecond)

	h.pool.sweep(context.Background())

	assert.NotContains(t, h.workers(), old)
	opened, _ := h.launcher.processes()[0].pages()
	assert.Equal(t, 0, opened, "age check runs before the probe")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EvictionsTotal.WithLabelValues(reasonAge)))
}

func TestSweep_EvictsDisconnectedWorker(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.pool.Initialize(context.Background()))
	old := h.workers()[0]
	h.launcher.processes()[0].disconnected.Store(true)

	h.pool.sweep(context.Background())

	assert.NotContains(t, h.workers(), old)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EvictionsTotal.WithLabelValues(reasonDisconnected)))
}

func TestSweep_EvictsWorkerFailingProbe(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.pool.Initialize(context.Background()))
	old := h.workers()[0]
	proc := h.launcher.processes()[0]
	proc.set(func(f *fakeProcess) { f.loadErr = errors.New("Target closed") })

	h.pool.sweep(context.Background())

	assert.NotContains(t, h.workers(), old)
	opened, closed := proc.pages()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed, "probe page closed even on failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EvictionsTotal.WithLabelValues(reasonProbe)))
}

func TestSweep_CloseFailureStillRemovesWorker(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.pool.Initialize(context.Background()))
	old := h.workers()[0]
	proc := h.launcher.processes()[0]
	proc.disconnected.Store(true)
	proc.set(func(f *fakeProcess) { f.closeErr = errors.New("process already gone") })

	h.pool.sweep(context.Background())

	assert.NotContains(t, h.workers(), old)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CloseFailuresTotal))
}

func TestSweep_TopUpStopsAtFirstFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MinSize, cfg.MaxSize = 3, 3
	h := newHarness(t, cfg)
	require.NoError(t, h.pool.Initialize(context.Background()))
	for _, p := range h.launcher.processes() {
		p.disconnected.Store(true)
	}
	h.launcher.setFailAfter(4)

	h.pool.sweep(context.Background())

	assert.Len(t, h.workers(), 1)
	assert.Len(t, h.launcher.processes(), 4)
	assert.Equal(t, 1, h.launcher.failureCount())

	// The next sweep retries the deficit.
	h.launcher.setFailAfter(-1)
	h.pool.sweep(context.Background())
	assert.Len(t, h.workers(), 3)
}

func TestMonitor_SweepsPeriodicallyAndStopsOnShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	h := newHarness(t, cfg)
	require.NoError(t, h.pool.Initialize(context.Background()))
	old := h.workers()[0]
	old.usage.Store(1000)

	require.Eventually(t, func() bool {
		for _, w := range h.workers() {
			if w == old {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.pool.Shutdown(context.Background()))
	sweeps := testutil.ToFloat64(h.metrics.HealthSweepsTotal)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sweeps, testutil.ToFloat64(h.metrics.HealthSweepsTotal), "no sweeps after shutdown")
	assert.Equal(t, 0, h.pool.Stats().TotalWorkers)
}

func TestSweep_NoopAfterShutdown(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.pool.Initialize(context.Background()))
	require.NoError(t, h.pool.Shutdown(context.Background()))

	h.pool.sweep(context.Background())

	assert.Zero(t, testutil.ToFloat64(h.metrics.HealthSweepsTotal))
	assert.Len(t, h.launcher.processes(), 1, "no top-up after shutdown")
}
