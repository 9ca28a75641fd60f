package karaoke

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// PitchSampleRateHz is the fixed sample rate vpch streams are stored at.
const PitchSampleRateHz = 25

// ErrInvalidPitchStream is returned when a vpch payload's length is not a
// multiple of 4 bytes (one little-endian float32 per sample).
var ErrInvalidPitchStream = errors.New("karaoke: vpch payload is not a whole number of float32 samples")

// DecodePitch decodes a vpch payload (little-endian f32[] @25 Hz) into a
// VocalPitch value.
func DecodePitch(data []byte) (*VocalPitch, error) {
	if len(data)%4 != 0 {
		return nil, errors.WithStack(ErrInvalidPitchStream)
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		bits := binary.LittleEndian.Uint32(data[4*i : 4*i+4])
		values[i] = math.Float32frombits(bits)
	}
	return &VocalPitch{SampleRateHz: PitchSampleRateHz, Values: values}, nil
}

// EncodePitch renders a VocalPitch as the little-endian f32[] vpch payload.
func EncodePitch(p *VocalPitch) []byte {
	if p == nil {
		return nil
	}
	out := make([]byte, 4*len(p.Values))
	for i, v := range p.Values {
		binary.LittleEndian.PutUint32(out[4*i:4*i+4], math.Float32bits(v))
	}
	return out
}
