package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsUpdate(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Record(CommitStats{NativeCalls: 2, SkippedSlots: 1, Draws: 1})
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.001)
	assert.EqualValues(t, 2*uint64(AVG_COUNT), m.Total.NativeCalls)
	assert.EqualValues(t, AVG_COUNT, m.Total.Draws)
	assert.Zero(t, m.Frame)

	for i := 0; i < 40; i++ {
		m.Update(0.016)
	}
	assert.Greater(t, m.FPS, float64(0))
}
