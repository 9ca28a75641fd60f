// Package encoderdelay implements the encoder-delay compensator (C7): the
// single source of truth for converting between a logical timestamp
// (relative to the musical zero of the source) and a wire timestamp
// (relative to the first decoded sample, i.e. logical + delay).
//
// AAC at 44.1 kHz introduces a fixed 1105-sample priming offset (about
// 25.057 ms); other sample rates scale the same sample count
// proportionally. pkg/webvtt applies or removes this shift through a
// Compensator so its cue timestamps satisfy
// wire = logical + delay/sample_rate. pkg/karaoke does not use it: kaid
// line times, vpch pitch samples and kons onsets are encoded and decoded
// without any shift.
package encoderdelay

// DefaultSamples is the standard AAC encoder priming delay at 44.1 kHz.
const DefaultSamples = 1105

// DefaultSampleRateHz is the sample rate DefaultSamples is quoted against.
const DefaultSampleRateHz = 44100

// Compensator converts between logical and wire timestamps for a fixed
// (delaySamples, sampleRateHz) pair.
type Compensator struct {
	DelaySamples  uint32
	SampleRateHz  uint32
}

// New constructs a Compensator. A zero sampleRateHz is treated as
// DefaultSampleRateHz so a Compensator built from a not-yet-known sample
// rate still behaves sanely rather than dividing by zero.
func New(delaySamples, sampleRateHz uint32) Compensator {
	if sampleRateHz == 0 {
		sampleRateHz = DefaultSampleRateHz
	}
	return Compensator{DelaySamples: delaySamples, SampleRateHz: sampleRateHz}
}

// offsetSec is delaySamples/sampleRateHz, the shift Apply adds and Remove
// subtracts.
func (c Compensator) offsetSec() float64 {
	return float64(c.DelaySamples) / float64(c.SampleRateHz)
}

// Apply converts a logical timestamp to its wire form.
func (c Compensator) Apply(logicalSec float64) float64 {
	return logicalSec + c.offsetSec()
}

// Remove converts a wire timestamp back to its logical form.
func (c Compensator) Remove(wireSec float64) float64 {
	return wireSec - c.offsetSec()
}

// ApplyAll converts a slice of logical timestamps to wire form in place,
// returning the same slice for chaining.
func (c Compensator) ApplyAll(logicalSec []float64) []float64 {
	for i, v := range logicalSec {
		logicalSec[i] = c.Apply(v)
	}
	return logicalSec
}

// RemoveAll converts a slice of wire timestamps back to logical form in
// place, returning the same slice for chaining.
func (c Compensator) RemoveAll(wireSec []float64) []float64 {
	for i, v := range wireSec {
		wireSec[i] = c.Remove(v)
	}
	return wireSec
}
