package karaoke

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidOnsetStream is returned when a kons payload's length is not a
// multiple of 8 bytes (one little-endian float64 per onset).
var ErrInvalidOnsetStream = errors.New("karaoke: kons payload is not a whole number of float64 samples")

// DecodeOnsets decodes a kons payload (little-endian f64[] seconds) into
// an ordered onset-timestamp sequence.
func DecodeOnsets(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, errors.WithStack(ErrInvalidOnsetStream)
	}
	values := make([]float64, len(data)/8)
	for i := range values {
		bits := binary.LittleEndian.Uint64(data[8*i : 8*i+8])
		values[i] = math.Float64frombits(bits)
	}
	return values, nil
}

// EncodeOnsets renders an onset-timestamp sequence as the little-endian
// f64[] kons payload.
func EncodeOnsets(onsets []float64) []byte {
	out := make([]byte, 8*len(onsets))
	for i, v := range onsets {
		binary.LittleEndian.PutUint64(out[8*i:8*i+8], math.Float64bits(v))
	}
	return out
}
