package bmff

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Options controls parser behaviour.
type Options struct {
	// Strict causes Parse to fail with ErrUnknownContainer when it
	// encounters a box type that is neither a recognised container nor a
	// known leaf type (IsKnownLeaf) — i.e. a type this package has no
	// notion of at all. The default (false) treats any unrecognised type
	// as an opaque leaf, which is the correct behaviour for round-tripping
	// arbitrary or vendor-extended files untouched; strict mode trades
	// that tolerance for an early signal that the input isn't the kind of
	// M4A this package knows how to edit safely.
	Strict bool
}

// Parse walks buf and returns a synthetic root Box whose Children are the
// top-level boxes (ftyp, moov, mdat, free, ...). The root itself carries no
// header; only its Children and Size are meaningful.
func Parse(buf []byte) (*Box, error) {
	return ParseWithOptions(buf, Options{})
}

// ParseWithOptions is Parse with explicit Options.
func ParseWithOptions(buf []byte, opts Options) (*Box, error) {
	children, err := parseRange(buf, 0, int64(len(buf)), opts)
	if err != nil {
		return nil, err
	}
	return &Box{Children: children, Size: int64(len(buf))}, nil
}

// parseRange parses a contiguous run of sibling boxes occupying
// buf[start:end].
func parseRange(buf []byte, start, end int64, opts Options) ([]*Box, error) {
	var boxes []*Box
	pos := start
	for pos < end {
		b, consumed, err := parseOne(buf, pos, end, opts)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
		pos += consumed
	}
	return boxes, nil
}

// parseOne parses a single box starting at buf[pos], which must lie within
// [pos, end). It returns the box and the number of bytes it occupies.
func parseOne(buf []byte, pos, end int64, opts Options) (*Box, int64, error) {
	remaining := end - pos
	if remaining < 8 {
		return nil, 0, errors.WithStack(ErrTruncatedBox)
	}

	size32 := int64(binary.BigEndian.Uint32(buf[pos : pos+4]))
	boxType := string(buf[pos+4 : pos+8])

	headerSize := int64(8)
	var size int64
	switch size32 {
	case 1:
		if remaining < 16 {
			return nil, 0, errors.WithStack(ErrTruncatedBox)
		}
		size = int64(binary.BigEndian.Uint64(buf[pos+8 : pos+16]))
		headerSize = 16
	case 0:
		size = remaining
	default:
		size = size32
	}

	if size < headerSize || pos+size > end {
		return nil, 0, errors.Wrapf(ErrMalformedBox, "box %q declares size %d at offset %d", boxType, size, pos)
	}

	box := &Box{Type: boxType, HeaderSize: headerSize, Size: size}
	contentStart := pos + headerSize
	contentEnd := pos + size

	if !IsContainer(boxType) {
		if opts.Strict && !IsKnownLeaf(boxType) {
			return nil, 0, errors.Wrapf(ErrUnknownContainer, "box %q at offset %d", boxType, pos)
		}
		box.Payload = buf[contentStart:contentEnd]
		return box, size, nil
	}

	childStart := contentStart
	if boxType == "meta" {
		// meta carries a 4-byte version/flags preamble before its children.
		if contentEnd-contentStart < 4 {
			return nil, 0, errors.Wrapf(ErrMalformedBox, "meta box too small for preamble at offset %d", pos)
		}
		box.Preamble = buf[contentStart : contentStart+4]
		childStart = contentStart + 4
	}

	children, err := parseRange(buf, childStart, contentEnd, opts)
	if err != nil {
		return nil, 0, err
	}
	box.Children = children
	return box, size, nil
}
