// Package bmff implements a minimal ISO Base Media File Format (MP4) box
// tree: parsing a byte buffer into a navigable tree, patching subtrees, and
// serialising the tree back to bytes with sizes recomputed bottom-up.
package bmff

// Container box types recognised and recursed into by the parser. Every
// other type is treated as an opaque leaf.
var containerTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"udta": true,
	"ilst": true,
	"----": true,
	"meta": true, // has a 4-byte version/flags preamble before its children
}

// IsContainer reports whether a box type is walked into by the parser
// rather than treated as an opaque leaf.
func IsContainer(boxType string) bool {
	return containerTypes[boxType]
}

// knownLeafTypes are the opaque-leaf box types this package expects to
// encounter in an M4A produced by the domain's own writer or by a
// conventional encoder: ISO BMFF structural boxes, sample-table entries,
// and the iTunes/freeform metadata atoms. Strict parsing (Options.Strict)
// uses this set to distinguish an ordinary leaf from a box type nobody
// recognises at all.
var knownLeafTypes = map[string]bool{
	"ftyp": true, "free": true, "skip": true, "wide": true, "mdat": true,
	"mvhd": true, "tkhd": true, "mdhd": true, "hdlr": true,
	"vmhd": true, "smhd": true, "nmhd": true, "dref": true, "dinf": true,
	"stsd": true, "stts": true, "stsc": true, "stsz": true, "stz2": true,
	"stco": true, "co64": true, "ctts": true, "stss": true, "elst": true,
	"mean": true, "name": true, "data": true, "stem": true,
	"covr": true, "stik": true,
	"\xa9nam": true, "\xa9ART": true, "\xa9alb": true, "\xa9day": true,
	"\xa9gen": true, "\xa9cmt": true, "\xa9too": true,
}

// IsKnownLeaf reports whether boxType is a recognised opaque-leaf type.
// It has no effect on default parsing (any unrecognised type is still
// treated as an opaque leaf); it only matters in strict mode, where a
// type that is neither a recognised container nor a known leaf is
// rejected as ErrUnknownContainer rather than silently passed through.
func IsKnownLeaf(boxType string) bool {
	return knownLeafTypes[boxType]
}

// Box is one node of a parsed ISO BMFF tree.
//
// Invariant: for a container box, Size == HeaderSize + len(Preamble) +
// sum of Children's Size. For a leaf box, Size == HeaderSize + len(Payload).
type Box struct {
	// Type is the 4-character box tag (e.g. "moov", "stco", "----").
	Type string

	// HeaderSize is 8 for a normal box or 16 when a 64-bit extended size
	// was present on disk (size field == 1).
	HeaderSize int64

	// Size is the total size of the box, header included.
	Size int64

	// Preamble holds bytes that precede a container's children but are
	// logically part of the box header, such as meta's 4-byte version/flags
	// word. Empty for ordinary containers and for leaves.
	Preamble []byte

	// Payload is the raw leaf content. Nil for container boxes.
	Payload []byte

	// Children holds the nested boxes of a container. Nil for leaves.
	Children []*Box
}

// IsLeaf reports whether b's type is not a recognised container type,
// i.e. its content is opaque bytes rather than nested boxes. A container
// with no children is still not a leaf.
func (b *Box) IsLeaf() bool {
	return !IsContainer(b.Type)
}

// Find returns the first direct child of b with the given type, or nil.
func (b *Box) Find(boxType string) *Box {
	for _, c := range b.Children {
		if c.Type == boxType {
			return c
		}
	}
	return nil
}

// Path walks a sequence of box types (one argument per level) from b,
// returning the final box or nil if any segment is missing.
func (b *Box) Path(path ...string) *Box {
	cur := b
	for _, seg := range path {
		if cur == nil {
			return nil
		}
		cur = cur.Find(seg)
	}
	return cur
}

// Walk calls fn for b and, recursively, every descendant. fn may mutate
// the box it is given (e.g. Payload or Preamble) but must not reassign
// Children's backing slices from outside this traversal if deeper nodes are
// still to be visited; Walk handles recursion into Children itself.
func (b *Box) Walk(fn func(*Box)) {
	fn(b)
	for _, c := range b.Children {
		c.Walk(fn)
	}
}

// Patch replaces the subtree found at path (relative to b) with
// replacement, returning true if a replacement occurred. path must name
// an existing chain of container boxes down to, but not including, the
// box being replaced; the last path element is the type of the box to
// replace under its parent.
func (b *Box) Patch(path []string, replacement *Box) bool {
	if len(path) == 0 {
		return false
	}
	parent := b.Path(path[:len(path)-1]...)
	if parent == nil {
		return false
	}
	target := path[len(path)-1]
	for i, c := range parent.Children {
		if c.Type == target {
			parent.Children[i] = replacement
			return true
		}
	}
	return false
}
