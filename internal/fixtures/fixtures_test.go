package fixtures_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsapp/kai/internal/fixtures"
	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/karaoke"
)

func TestBuildParsesAndChunksAddressRealData(t *testing.T) {
	data := fixtures.Build(fixtures.Spec{
		Stems: []fixtures.Stem{
			{ID: "mixdown", Data: []byte("MIXDOWN!")},
			{ID: "vocals", Data: []byte("VOCALS!!")},
		},
		Subtitle: []byte{0x00, 0x02, 'h', 'i'},
	})

	root, err := bmff.Parse(data)
	require.NoError(t, err)

	moov := root.Find("moov")
	require.NotNil(t, moov)
	mdat := root.Find("mdat")
	require.NotNil(t, mdat)

	traks := 0
	for _, c := range moov.Children {
		if c.Type == "trak" {
			traks++
		}
	}
	assert.Equal(t, 3, traks, "two audio traks plus one text trak")

	// The mixdown trak's single stco entry must address the literal bytes
	// Build placed in mdat.
	trak := moov.Children[1]
	stbl := trak.Path("mdia", "minf", "stbl")
	require.NotNil(t, stbl)
	offsets := decodeStco(t, stbl)
	require.Len(t, offsets, 1)

	var prefixSize int64
	for _, c := range root.Children {
		if c.Type == "mdat" {
			break
		}
		prefixSize += bmff.Recompute(c)
	}
	prefixSize += 8 // mdat's own header, excluded from its Payload
	chunkStart := offsets[0] - prefixSize
	assert.Equal(t, []byte("MIXDOWN!"), mdat.Payload[chunkStart:chunkStart+8])
}

func TestWithKaraokeProducesLoadableFile(t *testing.T) {
	data := fixtures.Build(fixtures.Spec{
		Stems: []fixtures.Stem{{ID: "mixdown", Data: []byte("abcdefgh")}},
	})
	song := &karaoke.Song{
		Audio:   karaoke.Audio{Profile: karaoke.ProfileStems2, EncoderDelaySamples: 1105},
		Singers: []karaoke.Singer{{ID: "A"}},
		Lines:   []karaoke.LyricLine{{SingerID: "A", StartSec: 1, EndSec: 2, Text: "hey"}},
	}
	withKaid, err := fixtures.WithKaraoke(data, song)
	require.NoError(t, err)

	root, err := bmff.Parse(withKaid)
	require.NoError(t, err)
	ilst := root.Path("moov", "udta", "meta", "ilst")
	require.NotNil(t, ilst)
}

func decodeStco(t *testing.T, stbl *bmff.Box) []int64 {
	t.Helper()
	stco := stbl.Find("stco")
	require.NotNil(t, stco)
	count := int(be32(stco.Payload[4:8]))
	out := make([]int64, count)
	for i := 0; i < count; i++ {
		out[i] = int64(be32(stco.Payload[8+4*i : 12+4*i]))
	}
	return out
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
