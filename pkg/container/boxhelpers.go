package container

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/kaierrors"
)

// findTrakByHandler returns the first trak child of moov whose
// mdia/hdlr.handler_type equals handlerType ("soun" or "text"), or nil.
func findTrakByHandler(moov *bmff.Box, handlerType string) *bmff.Box {
	for _, trak := range moov.Children {
		if trak.Type != "trak" {
			continue
		}
		hdlr := trak.Path("mdia", "hdlr")
		if hdlr == nil || len(hdlr.Payload) < 12 {
			continue
		}
		// hdlr: version(1)+flags(3)+pre_defined(4)+handler_type(4)+...
		if string(hdlr.Payload[8:12]) == handlerType {
			return trak
		}
	}
	return nil
}

// singleChunkOffset reads the sole entry of a stco/co64 table under stbl,
// failing unless there is exactly one entry — the shape this repo's
// single-sample subtitle track always has.
func singleChunkOffset(stbl *bmff.Box) (offset int64, box *bmff.Box, err error) {
	if stco := stbl.Find("stco"); stco != nil {
		if len(stco.Payload) < 12 {
			return 0, nil, errors.WithStack(kaierrors.ErrMalformedBox)
		}
		if binary.BigEndian.Uint32(stco.Payload[4:8]) != 1 {
			return 0, nil, errors.New("container: expected exactly one chunk in subtitle track")
		}
		return int64(binary.BigEndian.Uint32(stco.Payload[8:12])), stco, nil
	}
	if co64 := stbl.Find("co64"); co64 != nil {
		if len(co64.Payload) < 16 {
			return 0, nil, errors.WithStack(kaierrors.ErrMalformedBox)
		}
		if binary.BigEndian.Uint32(co64.Payload[4:8]) != 1 {
			return 0, nil, errors.New("container: expected exactly one chunk in subtitle track")
		}
		return int64(binary.BigEndian.Uint64(co64.Payload[8:16])), co64, nil
	}
	return 0, nil, errors.New("container: no stco/co64 in subtitle stbl")
}

// setSingleChunkOffset overwrites the sole entry of box (an stco or co64
// table found by singleChunkOffset) with newOffset, upgrading stco to
// co64 in place if newOffset no longer fits in 32 bits.
func setSingleChunkOffset(box *bmff.Box, newOffset int64) {
	if box.Type == "co64" {
		binary.BigEndian.PutUint64(box.Payload[8:16], uint64(newOffset))
		return
	}
	if newOffset <= maxUint32 {
		binary.BigEndian.PutUint32(box.Payload[8:12], uint32(newOffset))
		return
	}
	out := make([]byte, 16)
	copy(out[:8], box.Payload[:8])
	binary.BigEndian.PutUint64(out[8:16], uint64(newOffset))
	box.Type = "co64"
	box.Payload = out
}

const maxUint32 = 1<<32 - 1

// singleSampleSize reads the sole entry of stbl's stsz table.
func singleSampleSize(stbl *bmff.Box) (int64, error) {
	stsz := stbl.Find("stsz")
	if stsz == nil || len(stsz.Payload) < 12 {
		return 0, errors.New("container: no stsz in subtitle stbl")
	}
	sampleSize := binary.BigEndian.Uint32(stsz.Payload[4:8])
	if sampleSize != 0 {
		return int64(sampleSize), nil
	}
	count := binary.BigEndian.Uint32(stsz.Payload[8:12])
	if count != 1 || len(stsz.Payload) < 16 {
		return 0, errors.New("container: expected exactly one sample in subtitle track")
	}
	return int64(binary.BigEndian.Uint32(stsz.Payload[12:16])), nil
}

// setSingleSampleSize overwrites the sole per-sample entry of stbl's stsz
// table with newSize.
func setSingleSampleSize(stbl *bmff.Box, newSize int64) error {
	stsz := stbl.Find("stsz")
	if stsz == nil || len(stsz.Payload) < 12 {
		return errors.New("container: no stsz in subtitle stbl")
	}
	out := make([]byte, len(stsz.Payload))
	copy(out, stsz.Payload)
	binary.BigEndian.PutUint32(out[4:8], 0) // per-sample size table (not uniform)
	binary.BigEndian.PutUint32(out[8:12], 1)
	if len(out) < 16 {
		out = append(out, make([]byte, 4)...)
	}
	binary.BigEndian.PutUint32(out[12:16], uint32(newSize))
	stsz.Payload = out
	return nil
}
