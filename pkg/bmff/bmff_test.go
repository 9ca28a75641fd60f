package bmff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box32 builds a normal (8-byte header) box from a type tag and content.
func box32(boxType string, content []byte) []byte {
	out := make([]byte, 8+len(content))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(content)))
	copy(out[4:8], boxType)
	copy(out[8:], content)
	return out
}

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func stcoBox(offsets ...uint32) []byte {
	content := make([]byte, 8+4*len(offsets))
	binary.BigEndian.PutUint32(content[4:8], uint32(len(offsets)))
	for i, o := range offsets {
		binary.BigEndian.PutUint32(content[8+4*i:12+4*i], o)
	}
	return box32("stco", content)
}

func TestParseSerializeRoundTrip(t *testing.T) {
	ftyp := box32("ftyp", []byte("M4A mp42isomM4A "))
	mvhd := box32("mvhd", make([]byte, 20))
	stbl := box32("stbl", stcoBox(1000, 2000, 3000))
	minf := box32("minf", stbl)
	mdia := box32("mdia", minf)
	trak := box32("trak", mdia)
	moov := box32("moov", concat(mvhd, trak))
	mdat := box32("mdat", []byte("audio-bytes-here"))

	buf := concat(ftyp, moov, mdat)

	root, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, root.Children, 3)
	assert.Equal(t, "ftyp", root.Children[0].Type)
	assert.Equal(t, "moov", root.Children[1].Type)
	assert.Equal(t, "mdat", root.Children[2].Type)

	stblBox := root.Children[1].Path("trak", "mdia", "minf", "stbl")
	require.NotNil(t, stblBox)
	stcoB := stblBox.Find("stco")
	require.NotNil(t, stcoB)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(stcoB.Payload[4:8]))

	out := Serialize(root)
	assert.Equal(t, buf, out)
}

func TestParseMetaPreamble(t *testing.T) {
	ilst := box32("ilst", []byte{})
	metaContent := concat([]byte{0, 0, 0, 0}, ilst)
	meta := box32("meta", metaContent)
	udta := box32("udta", meta)

	root, err := Parse(udta)
	require.NoError(t, err)
	metaBox := root.Children[0].Find("meta")
	require.NotNil(t, metaBox)
	assert.Equal(t, []byte{0, 0, 0, 0}, metaBox.Preamble)
	require.NotNil(t, metaBox.Find("ilst"))
}

func TestParseExtendedSize(t *testing.T) {
	content := []byte("payload")
	box := make([]byte, 16+len(content))
	binary.BigEndian.PutUint32(box[0:4], 1)
	copy(box[4:8], "free")
	binary.BigEndian.PutUint64(box[8:16], uint64(16+len(content)))
	copy(box[16:], content)

	root, err := Parse(box)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, int64(16), root.Children[0].HeaderSize)
	assert.Equal(t, content, root.Children[0].Payload)
}

func TestParseTruncatedBox(t *testing.T) {
	_, err := Parse([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrTruncatedBox)
}

func TestParseMalformedBox(t *testing.T) {
	box := box32("free", []byte("x"))
	binary.BigEndian.PutUint32(box[0:4], 9999)
	_, err := Parse(box)
	assert.ErrorIs(t, err, ErrMalformedBox)
}

func TestPatchReplacesSubtree(t *testing.T) {
	ilst := box32("ilst", []byte("old"))
	meta := box32("meta", concat([]byte{0, 0, 0, 0}, ilst))
	udta := box32("udta", meta)
	moov := box32("moov", udta)

	root, err := Parse(moov)
	require.NoError(t, err)

	newIlst := &Box{Type: "ilst", Payload: []byte("new")}
	ok := root.Children[0].Patch([]string{"udta", "meta", "ilst"}, newIlst)
	require.True(t, ok)

	out := Serialize(root)
	reparsed, err := Parse(out)
	require.NoError(t, err)
	got := reparsed.Children[0].Path("udta", "meta", "ilst")
	require.NotNil(t, got)
	assert.Equal(t, []byte("new"), got.Payload)
}

func TestRewriteChunkOffsetsBelowThresholdUntouched(t *testing.T) {
	stbl := &Box{Type: "stbl", Children: []*Box{
		{Type: "stco", Payload: stcoBox(100, 5000, 6000)[8:]},
	}}
	moov := &Box{Type: "moov", Children: []*Box{stbl}}

	upgraded, err := RewriteChunkOffsets(moov, 50, 1000)
	require.NoError(t, err)
	assert.False(t, upgraded)

	stco := stbl.Find("stco")
	assert.Equal(t, uint32(100), binary.BigEndian.Uint32(stco.Payload[8:12]))
	assert.Equal(t, uint32(5050), binary.BigEndian.Uint32(stco.Payload[12:16]))
	assert.Equal(t, uint32(6050), binary.BigEndian.Uint32(stco.Payload[16:20]))
}

func TestRewriteChunkOffsetsUpgradesToCo64OnOverflow(t *testing.T) {
	stbl := &Box{Type: "stbl", Children: []*Box{
		{Type: "stco", Payload: stcoBox(0xFFFFFFF0)[8:]},
	}}
	moov := &Box{Type: "moov", Children: []*Box{stbl}}

	upgraded, err := RewriteChunkOffsets(moov, 1000, 0)
	require.NoError(t, err)
	assert.True(t, upgraded)

	co64 := stbl.Find("co64")
	require.NotNil(t, co64)
	assert.Nil(t, stbl.Find("stco"))
	assert.Equal(t, uint64(0xFFFFFFF0)+1000, binary.BigEndian.Uint64(co64.Payload[8:16]))
}
