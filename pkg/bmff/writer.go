package bmff

import (
	"bytes"
	"encoding/binary"
)

const maxUint32 = 1<<32 - 1

// Recompute walks b bottom-up, fixing Size and HeaderSize on b and every
// descendant so they reflect the current Payload/Preamble/Children content.
// It must be called after any structural edit (Patch, or direct mutation of
// Children/Payload/Preamble) and before Serialize or before measuring a
// subtree's size to compute a chunk-offset delta.
func Recompute(b *Box) int64 {
	var content int64
	switch {
	case b.Type == "":
		for _, c := range b.Children {
			content += Recompute(c)
		}
		b.Size = content
		return content
	case IsContainer(b.Type):
		content = int64(len(b.Preamble))
		for _, c := range b.Children {
			content += Recompute(c)
		}
	default:
		content = int64(len(b.Payload))
	}

	header := int64(8)
	if content+8 > maxUint32 {
		header = 16
	}
	b.HeaderSize = header
	b.Size = header + content
	return b.Size
}

// Serialize recomputes sizes and renders the tree rooted at b (typically
// the synthetic root returned by Parse) back to bytes.
func Serialize(b *Box) []byte {
	Recompute(b)
	buf := new(bytes.Buffer)
	buf.Grow(int(b.Size))
	for _, c := range b.Children {
		writeBox(buf, c)
	}
	return buf.Bytes()
}

func writeBox(buf *bytes.Buffer, b *Box) {
	if b.HeaderSize == 16 {
		var hdr [16]byte
		binary.BigEndian.PutUint32(hdr[0:4], 1)
		copy(hdr[4:8], b.Type)
		binary.BigEndian.PutUint64(hdr[8:16], uint64(b.Size))
		buf.Write(hdr[:])
	} else {
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], uint32(b.Size))
		copy(hdr[4:8], b.Type)
		buf.Write(hdr[:])
	}

	if IsContainer(b.Type) {
		buf.Write(b.Preamble)
		for _, c := range b.Children {
			writeBox(buf, c)
		}
		return
	}
	buf.Write(b.Payload)
}
