package container

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"os"

	gomp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/kaierrors"
	"github.com/stemsapp/kai/pkg/karaoke"
)

// sampledChunkChecks is how many chunk-offset entries Validate spot-checks
// per track (§4.11) rather than re-reading every chunk in a large file.
const sampledChunkChecks = 16

// Validate re-parses the file at path with go-mp4 — a parser independent
// of pkg/bmff — and checks the invariants a writer bug could silently
// break: the kaid payload decodes and its line/timing bounds make sense,
// a sample of chunk-offset entries still lie within the file's bounds
// (the bytes at those offsets are not compared with anything), every
// audio track has at least one chunk, and the stem box's declared stem
// count matches audio.sources (C11, §4.11, §7).
func Validate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}

	boxes, err := gomp4.ExtractBoxWithPayload(bytes.NewReader(data), nil, gomp4.BoxPath{gomp4.BoxTypeMoov()})
	if err != nil || len(boxes) == 0 {
		return errors.Wrap(kaierrors.ErrMalformedBox, "validate: no moov box")
	}

	song, err := Load(path)
	if err != nil {
		return errors.Wrap(err, "validate: reload failed")
	}

	if err := karaoke.Validate(song.Song); err != nil {
		return errors.Wrap(err, "validate: karaoke payload invariants")
	}

	if song.Duration > 0 && len(song.Lines) > 0 {
		last := song.Lines[len(song.Lines)-1]
		if last.EndSec > song.Duration.Seconds()+1.0 {
			return errors.Wrapf(&kaierrors.TimestampBeyondDuration{
				Index:        len(song.Lines) - 1,
				TimeSec:      last.EndSec,
				DurationSec:  song.Duration.Seconds(),
				FieldContext: "end",
			}, "validate: last lyric line")
		}
	}

	if err := validateChunkOffsets(data, song); err != nil {
		return err
	}

	return validateStemBox(data, song)
}

// validateChunkOffsets spot-checks up to sampledChunkChecks random
// stco/co64 entries per audio track, confirming each still addresses
// bytes that actually exist in the file — the cheap, sampled check C9's
// delta arithmetic is meant to satisfy on every save.
func validateChunkOffsets(data []byte, song *Song) error {
	root, err := bmff.Parse(data)
	if err != nil {
		return errors.Wrap(err, "validate: reparsing for chunk offsets")
	}
	moov := root.Find("moov")
	if moov == nil {
		return errors.New("validate: no moov box")
	}
	for _, t := range song.Tracks {
		if t.Handler != "soun" {
			continue
		}
		offsets := chunkOffsetsForTrack(moov, t.Index)
		if len(offsets) == 0 {
			return errors.Wrapf(&kaierrors.ChunkOffsetMismatch{TrackIndex: t.Index}, "no chunk offset entries")
		}
		n := len(offsets)
		if n > sampledChunkChecks {
			n = sampledChunkChecks
		}
		for i := 0; i < n; i++ {
			idx, err := randInt(len(offsets))
			if err != nil {
				return errors.WithStack(err)
			}
			if offsets[idx] < 0 || offsets[idx] >= int64(len(data)) {
				return errors.Wrapf(&kaierrors.ChunkOffsetMismatch{TrackIndex: t.Index, ChunkIndex: idx}, "offset %d out of file bounds", offsets[idx])
			}
		}
	}
	return nil
}

// chunkOffsetsForTrack returns the full stco/co64 offset table for the
// trackIndex'th trak in moov.
func chunkOffsetsForTrack(moov *bmff.Box, trackIndex int) []int64 {
	idx := 0
	for _, trak := range moov.Children {
		if trak.Type != "trak" {
			continue
		}
		if idx != trackIndex {
			idx++
			continue
		}
		stbl := trak.Path("mdia", "minf", "stbl")
		if stbl == nil {
			return nil
		}
		return decodeChunkOffsetTable(stbl)
	}
	return nil
}

func decodeChunkOffsetTable(stbl *bmff.Box) []int64 {
	if stco := stbl.Find("stco"); stco != nil && len(stco.Payload) >= 8 {
		count := int(beUint32(stco.Payload[4:8]))
		out := make([]int64, 0, count)
		for i := 0; i < count; i++ {
			start := 8 + i*4
			if start+4 > len(stco.Payload) {
				break
			}
			out = append(out, int64(beUint32(stco.Payload[start:start+4])))
		}
		return out
	}
	if co64 := stbl.Find("co64"); co64 != nil && len(co64.Payload) >= 8 {
		count := int(beUint32(co64.Payload[4:8]))
		out := make([]int64, 0, count)
		for i := 0; i < count; i++ {
			start := 8 + i*8
			if start+8 > len(co64.Payload) {
				break
			}
			out = append(out, int64(beUint64(co64.Payload[start:start+8])))
		}
		return out
	}
	return nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func validateStemBox(data []byte, song *Song) error {
	expected := 0
	for _, s := range song.Audio.Sources {
		if s.Role != karaoke.RoleMixdown {
			expected++
		}
	}
	if expected == 0 {
		return nil
	}
	root, err := bmff.Parse(data)
	if err != nil {
		return errors.Wrap(err, "validate: reparsing for stem box")
	}
	moov := root.Find("moov")
	if moov == nil {
		return errors.New("validate: no moov box")
	}
	udta := moov.Find("udta")
	if udta == nil {
		return errors.New("validate: stem sources declared but no udta/stem box present")
	}
	stemRaw := udta.Find("stem")
	if stemRaw == nil {
		return errors.New("validate: stem sources declared but no udta/stem box present")
	}
	box, err := karaoke.DecodeStemBox(stemRaw.Payload)
	if err != nil {
		return errors.Wrap(err, "validate: decoding stem box")
	}
	if len(box.Stems) != expected {
		return errors.Errorf("validate: stem box has %d stems, expected %d", len(box.Stems), expected)
	}
	return nil
}

func randInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
