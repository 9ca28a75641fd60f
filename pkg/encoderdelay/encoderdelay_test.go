package encoderdelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyRemoveSymmetry(t *testing.T) {
	for delay := uint32(0); delay <= 4096; delay += 137 {
		c := New(delay, 44100)
		for _, logical := range []float64{0, 1.5, 12.345, 300.0} {
			wire := c.Apply(logical)
			back := c.Remove(wire)
			assert.InDelta(t, logical, back, 1.0/44100, "delay=%d logical=%f", delay, logical)
		}
	}
}

func TestApplyAddsExactSampleOffset(t *testing.T) {
	c := New(1105, 44100)
	assert.InDelta(t, 0.025057, c.Apply(0), 1e-6)
}

func TestZeroSampleRateFallsBackToDefault(t *testing.T) {
	c := New(1105, 0)
	assert.Equal(t, uint32(DefaultSampleRateHz), c.SampleRateHz)
}

func TestApplyAllRemoveAllRoundTrip(t *testing.T) {
	c := New(1105, 44100)
	original := []float64{0, 1, 2.5, 10}
	got := append([]float64(nil), original...)
	c.ApplyAll(got)
	c.RemoveAll(got)
	for i := range original {
		assert.InDelta(t, original[i], got[i], 1e-9)
	}
}
