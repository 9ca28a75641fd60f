package bmff

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// RewriteChunkOffsets walks every stbl subtree under moov and, for each
// stco (32-bit) or co64 (64-bit) chunk-offset table, adds delta to every
// entry whose original value is >= threshold. Entries below threshold are
// left untouched, which covers chunks that happen to be addressed from
// inside moov itself.
//
// If adding delta would push any stco entry beyond 2^32-1, that table is
// upgraded in place to co64 (its Type and Payload are rewritten) and
// upgraded reports true. A caller must then call Recompute on the
// enclosing tree, observe that moov's size grew again by the table's
// growth, and invoke RewriteChunkOffsets once more with the updated delta;
// in practice a single additional iteration always converges because each
// table can upgrade at most once.
func RewriteChunkOffsets(moov *Box, delta, threshold int64) (upgraded bool, err error) {
	moov.Walk(func(b *Box) {
		if err != nil || b.Type != "stbl" {
			return
		}
		if stco := b.Find("stco"); stco != nil {
			var did bool
			did, err = rewriteStco(stco, delta, threshold)
			upgraded = upgraded || did
			return
		}
		if co64 := b.Find("co64"); co64 != nil {
			err = rewriteCo64(co64, delta, threshold)
		}
	})
	return upgraded, err
}

func rewriteStco(stco *Box, delta, threshold int64) (bool, error) {
	payload := stco.Payload
	if len(payload) < 8 {
		return false, errors.Wrap(ErrMalformedBox, "stco: payload too small")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	if int64(8+4*int(count)) > int64(len(payload)) {
		return false, errors.Wrap(ErrMalformedBox, "stco: entry count exceeds payload")
	}

	entries := make([]int64, count)
	need64 := false
	for i := range entries {
		off := int64(binary.BigEndian.Uint32(payload[8+4*i : 12+4*i]))
		if off >= threshold {
			off += delta
		}
		entries[i] = off
		if off > maxUint32 || off < 0 {
			need64 = true
		}
	}

	if !need64 {
		out := make([]byte, len(payload))
		copy(out[:8], payload[:8])
		for i, v := range entries {
			binary.BigEndian.PutUint32(out[8+4*i:12+4*i], uint32(v))
		}
		stco.Payload = out
		return false, nil
	}

	out := make([]byte, 8+8*len(entries))
	copy(out[:8], payload[:8])
	for i, v := range entries {
		binary.BigEndian.PutUint64(out[8+8*i:16+8*i], uint64(v))
	}
	stco.Type = "co64"
	stco.Payload = out
	return true, nil
}

func rewriteCo64(co64 *Box, delta, threshold int64) error {
	payload := co64.Payload
	if len(payload) < 8 {
		return errors.Wrap(ErrMalformedBox, "co64: payload too small")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	if int64(8+8*int(count)) > int64(len(payload)) {
		return errors.Wrap(ErrMalformedBox, "co64: entry count exceeds payload")
	}

	out := make([]byte, len(payload))
	copy(out[:8], payload[:8])
	for i := 0; i < int(count); i++ {
		off := int64(binary.BigEndian.Uint64(payload[8+8*i : 16+8*i]))
		if off >= threshold {
			off += delta
		}
		binary.BigEndian.PutUint64(out[8+8*i:16+8*i], uint64(off))
	}
	co64.Payload = out
	return nil
}
