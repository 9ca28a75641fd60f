package container_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsapp/kai/internal/fixtures"
	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/container"
	"github.com/stemsapp/kai/pkg/kaierrors"
	"github.com/stemsapp/kai/pkg/karaoke"
)

func testSong() *karaoke.Song {
	return &karaoke.Song{
		Audio: karaoke.Audio{
			Profile:             karaoke.ProfileStems2,
			EncoderDelaySamples: 1105,
			Sources: []karaoke.Source{
				{TrackIndex: 0, ID: "mixdown", Role: karaoke.RoleMixdown},
				{TrackIndex: 1, ID: "vox", Role: karaoke.RoleVocals},
			},
		},
		Timing:  karaoke.Timing{Reference: karaoke.ReferenceAlignedToVocals},
		Singers: []karaoke.Singer{{ID: "A", DisplayName: "Singer A", GuideTrack: 1}},
		Lines: []karaoke.LyricLine{
			{SingerID: "A", StartSec: 12.345, EndSec: 15.678, Text: "hi", Words: []karaoke.Word{{StartSec: 12.345, EndSec: 12.645, Text: "hi"}}},
		},
		ITunesMetadata: karaoke.ITunesMetadata{Title: "Test Song", Artist: "Test Artist"},
	}
}

func buildFixturePath(t *testing.T) string {
	t.Helper()
	data := fixtures.Build(fixtures.Spec{
		Stems: []fixtures.Stem{
			{ID: "mixdown", Data: []byte("MIXDOWNCHUNKDATA")},
			{ID: "vox", Data: []byte("VOXCHUNKDATABYTES")},
		},
	})
	path := filepath.Join(t.TempDir(), "song.stem.m4a")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// buildFixtureWithSubtitlePath builds a fixture whose text trak already
// carries a short mov_text sample, so a save through it exercises Phase
// B's resize of that sample in place.
func buildFixtureWithSubtitlePath(t *testing.T) string {
	t.Helper()
	data := fixtures.Build(fixtures.Spec{
		Stems: []fixtures.Stem{
			{ID: "mixdown", Data: []byte("MIXDOWNCHUNKDATA")},
			{ID: "vox", Data: []byte("VOXCHUNKDATABYTES")},
		},
		Subtitle: []byte{0x00, 0x02, 'h', 'i'},
	})
	path := filepath.Join(t.TempDir(), "song.stem.m4a")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// Scenario 1 (spec §8): saving a Song onto a file with no prior kaid
// leaves the file readable with the new lines, iTunes title, profile and
// sources. The chunk-offset shift is checked separately by
// TestSaveShiftsChunkOffsetsByExactDelta.
func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := buildFixturePath(t)
	song := testSong()

	require.NoError(t, container.Save(song, path, nil))

	loaded, err := container.Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Lines, 1)
	assert.InDelta(t, 12.345, loaded.Lines[0].StartSec, 1e-4)
	assert.InDelta(t, 15.678, loaded.Lines[0].EndSec, 1e-4)
	assert.Equal(t, "hi", loaded.Lines[0].Text)
	assert.Equal(t, "Test Song", loaded.ITunesMetadata.Title)
	assert.Equal(t, karaoke.ProfileStems2, loaded.Audio.Profile)
	assert.Len(t, loaded.Audio.Sources, 2)
}

// Scenario 2 (spec §8): a single line with word timing round-trips to
// millisecond precision through kaid JSON.
func TestSaveThenLoadPreservesWordTiming(t *testing.T) {
	path := buildFixturePath(t)
	song := testSong()
	require.NoError(t, container.Save(song, path, nil))

	loaded, err := container.Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Lines[0].Words, 1)
	assert.InDelta(t, 12.345, loaded.Lines[0].Words[0].StartSec, 1e-4)
	assert.InDelta(t, 12.645, loaded.Lines[0].Words[0].EndSec, 1e-4)
}

// Scenario 3 (spec §8): two overlapping lines for the same singer reject
// the save and leave the file unchanged.
func TestSaveRejectsOverlappingLines(t *testing.T) {
	path := buildFixturePath(t)
	orig, err := os.ReadFile(path)
	require.NoError(t, err)

	song := testSong()
	song.Lines = []karaoke.LyricLine{
		{SingerID: "A", StartSec: 10, EndSec: 12, Text: "one"},
		{SingerID: "A", StartSec: 11.9, EndSec: 14, Text: "two"},
	}

	err = container.Save(song, path, nil)
	require.Error(t, err)
	var overlap *kaierrors.OverlappingLines
	assert.ErrorAs(t, err, &overlap)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, after, "file must be untouched when validation rejects the save")
}

// Scenario 4 (spec §8): every stco entry at or beyond the old moov end
// shifts by exactly the same delta the ilst growth produced; entries
// below threshold (none in this fixture, since the only trak data lives
// in mdat) are unaffected.
func TestSaveShiftsChunkOffsetsByExactDelta(t *testing.T) {
	path := buildFixturePath(t)

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	beforeOffsets := readStcoOffsets(t, before)

	require.NoError(t, container.Save(testSong(), path, nil))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	afterOffsets := readStcoOffsets(t, after)

	require.Equal(t, len(beforeOffsets), len(afterOffsets))
	delta := int64(len(after)) - int64(len(before))
	require.NotZero(t, delta)
	for i := range beforeOffsets {
		assert.Equal(t, beforeOffsets[i]+delta, afterOffsets[i], "chunk %d offset must shift by exactly delta", i)
	}
}

// TestSaveResizesSubtitleSampleAndKeepsMdatConsistent covers Phase B of
// saveM4A: growing, then shrinking, the mov_text sample must leave mdat's
// own declared size consistent with the file's actual layout, not just
// the subtitle track's stco/stsz entries.
func TestSaveResizesSubtitleSampleAndKeepsMdatConsistent(t *testing.T) {
	path := buildFixtureWithSubtitlePath(t)

	grown := testSong()
	grown.Lines = []karaoke.LyricLine{
		{SingerID: "A", StartSec: 1, EndSec: 2, Text: "a considerably longer line of lyrics than the fixture's placeholder sample"},
	}
	require.NoError(t, container.Save(grown, path, nil))
	assertFileReparsesCleanly(t, path)

	loaded, err := container.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 1)
	assert.Contains(t, loaded.Lines[0].Text, "considerably longer")

	shrunk := testSong()
	shrunk.Lines = []karaoke.LyricLine{{SingerID: "A", StartSec: 1, EndSec: 2, Text: "hi"}}
	require.NoError(t, container.Save(shrunk, path, nil))
	assertFileReparsesCleanly(t, path)

	loaded, err = container.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 1)
	assert.Equal(t, "hi", loaded.Lines[0].Text)
}

// assertFileReparsesCleanly parses data at path with pkg/bmff and checks
// mdat's declared size matches its actual payload length — the invariant
// a stale mdat header (deltaB not propagated to mdat's own box size)
// would violate.
func assertFileReparsesCleanly(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	root, err := bmff.Parse(data)
	require.NoError(t, err, "file must remain well-formed ISO BMFF after a subtitle resize")

	var total int64
	for _, c := range root.Children {
		total += bmff.Recompute(c)
	}
	assert.Equal(t, int64(len(data)), total, "top-level box sizes must sum to the file length")

	mdat := root.Find("mdat")
	require.NotNil(t, mdat)
	assert.Equal(t, mdat.HeaderSize+int64(len(mdat.Payload)), mdat.Size, "mdat's declared size must match its own payload length")
}

// TestLoadUnsupportedFormat covers the .cdg deferral and unknown
// extensions named in §4.8/§7.
func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := container.Load("song.cdg")
	assert.ErrorIs(t, err, kaierrors.ErrUnsupportedFormat)

	_, err = container.Load("song.txt")
	assert.ErrorIs(t, err, kaierrors.ErrUnsupportedFormat)
}

// TestLoadStemFileMissingKaraokePayload covers §4.8's rule that a missing
// kaid on a .stem.m4a file is an error, unlike a plain .m4a.
func TestLoadStemFileMissingKaraokePayload(t *testing.T) {
	data := fixtures.Build(fixtures.Spec{Stems: []fixtures.Stem{{ID: "mixdown", Data: []byte("DATA1234")}}})

	stemPath := filepath.Join(t.TempDir(), "song.stem.m4a")
	require.NoError(t, os.WriteFile(stemPath, data, 0o644))
	_, err := container.Load(stemPath)
	assert.ErrorIs(t, err, kaierrors.ErrMissingKaraokePayload)

	plainPath := filepath.Join(t.TempDir(), "song.m4a")
	require.NoError(t, os.WriteFile(plainPath, data, 0o644))
	loaded, err := container.Load(plainPath)
	require.NoError(t, err)
	assert.Empty(t, loaded.Lines)
}

// TestSaveIdempotent checks §1's idempotence requirement: load -> mutate
// nothing -> save -> load yields the same logical content.
func TestSaveIdempotent(t *testing.T) {
	path := buildFixturePath(t)
	require.NoError(t, container.Save(testSong(), path, nil))

	loaded, err := container.Load(path)
	require.NoError(t, err)

	require.NoError(t, container.Save(loaded.Song, path, nil))
	reloaded, err := container.Load(path)
	require.NoError(t, err)

	require.Len(t, reloaded.Lines, 1)
	assert.InDelta(t, loaded.Lines[0].StartSec, reloaded.Lines[0].StartSec, 1e-4)
	assert.InDelta(t, loaded.Lines[0].EndSec, reloaded.Lines[0].EndSec, 1e-4)
	assert.Equal(t, loaded.Audio.Sources, reloaded.Audio.Sources)
}

func readStcoOffsets(t *testing.T, data []byte) []int64 {
	t.Helper()
	var offsets []int64
	var walk func(pos, end int64)
	walk = func(pos, end int64) {
		for pos < end {
			size := int64(binary.BigEndian.Uint32(data[pos : pos+4]))
			typ := string(data[pos+4 : pos+8])
			if size == 0 {
				size = end - pos
			}
			switch typ {
			case "moov", "trak", "mdia", "minf", "stbl":
				walk(pos+8, pos+size)
			case "meta":
				walk(pos+12, pos+size)
			case "stco":
				count := binary.BigEndian.Uint32(data[pos+12 : pos+16])
				for i := uint32(0); i < count; i++ {
					off := binary.BigEndian.Uint32(data[pos+16+4*int64(i) : pos+20+4*int64(i)])
					offsets = append(offsets, int64(off))
				}
			}
			pos += size
		}
	}
	walk(0, int64(len(data)))
	return offsets
}
