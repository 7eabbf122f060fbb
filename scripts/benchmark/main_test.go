package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	runs := []runResult{
		{Success: true, LatencyMs: 300, RetryCount: 1, Bytes: 2048},
		{Success: true, LatencyMs: 100, Bytes: 1024},
		{Success: true, LatencyMs: 200, Bytes: 3072},
		{Code: "RENDER_TIMEOUT"},
		{Error: "connection refused"},
	}

	s := summarize(runs)

	assert.Equal(t, 3, s.Successes)
	assert.Equal(t, map[string]int{"RENDER_TIMEOUT": 1, "TRANSPORT": 1}, s.Failures)
	assert.InDelta(t, 200, s.AvgMs, 1e-9)
	assert.EqualValues(t, 200, s.P50Ms)
	assert.EqualValues(t, 200, s.P95Ms)
	assert.InDelta(t, 1.0/3, s.AvgRetries, 1e-9)
	assert.InDelta(t, 2048, s.AvgBytes, 1e-9)
}

func TestSummarize_AllFailed(t *testing.T) {
	s := summarize([]runResult{{Code: "NO_HEALTHY_WORKERS"}})
	assert.Zero(t, s.Successes)
	assert.Zero(t, s.AvgMs)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.5))
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.EqualValues(t, 5, percentile(sorted, 0.50))
	assert.EqualValues(t, 9, percentile(sorted, 0.95))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "1.5KB", formatBytes(1536))
	assert.Equal(t, "2.0MB", formatBytes(2<<20))
}
