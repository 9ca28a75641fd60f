// Package fixtures builds minimal, valid ISO BMFF (M4A) byte buffers for
// tests: enough of a real moov/mdat tree — mvhd, one trak per audio stem,
// an optional text trak carrying a single mov_text sample, real chunk
// bytes in mdat at the offsets their stco tables declare — to exercise
// pkg/bmff's parser/writer/chunk-offset rewriter and pkg/container's
// load/save cycle without shelling out to an encoder or touching the
// network, the same purpose the teacher's internal/testgen served for its
// own (ffmpeg-backed) fixtures, but pure Go so stco values are exactly
// known and round-trip assertions can be exact.
package fixtures

import (
	"encoding/binary"

	"github.com/stemsapp/kai/pkg/bmff"
)

// Stem describes one audio trak to synthesize: a single chunk holding a
// single sample, Data bytes long.
type Stem struct {
	ID   string
	Data []byte
}

// Spec configures Build.
type Spec struct {
	// Stems is one entry per audio trak, in track order (mixdown first).
	Stems []Stem

	// Subtitle, if non-empty, is the literal mov_text sample payload
	// (2-byte length prefix + UTF-8 text) to place in a single text trak.
	Subtitle []byte

	// MovieTimescale is mvhd's timescale; defaults to 1000.
	MovieTimescale uint32

	// AudioTimescale is each audio trak's mdia/mdhd timescale (sample
	// rate); defaults to 44100.
	AudioTimescale uint32

	// DurationUnits is mvhd's duration in MovieTimescale units.
	DurationUnits uint32
}

// Build synthesizes a minimal but structurally valid M4A byte buffer:
// ftyp, moov (mvhd + one trak per Stem + an optional text trak), mdat
// holding the real chunk bytes at the offsets recorded in each trak's
// stco. No udta/meta/ilst is present — callers exercising the writer
// façade load this into a Song and Save it, which synthesizes that chain
// per §4.9; callers exercising the loader façade directly against a
// pre-populated payload should use WithKaraoke.
func Build(spec Spec) []byte {
	if spec.MovieTimescale == 0 {
		spec.MovieTimescale = 1000
	}
	if spec.AudioTimescale == 0 {
		spec.AudioTimescale = 44100
	}

	ftyp := buildFtyp()

	moov := &bmff.Box{Type: "moov"}
	moov.Children = append(moov.Children, buildMvhd(spec.MovieTimescale, spec.DurationUnits, len(spec.Stems)+boolToInt(len(spec.Subtitle) > 0)+1))

	var traks []*bmff.Box
	for i, s := range spec.Stems {
		traks = append(traks, buildAudioTrak(i+1, spec.AudioTimescale, s.Data))
	}
	var subTrak *bmff.Box
	if len(spec.Subtitle) > 0 {
		subTrak = buildTextTrak(len(spec.Stems)+1, spec.MovieTimescale, len(spec.Subtitle))
		traks = append(traks, subTrak)
	}
	for _, t := range traks {
		moov.Children = append(moov.Children, t)
	}

	root := &bmff.Box{Children: []*bmff.Box{ftyp, moov}}
	bmff.Recompute(root)

	ftypSize := ftyp.Size
	moovSize := moov.Size
	mdatHeaderSize := int64(8)
	mdatDataStart := ftypSize + moovSize + mdatHeaderSize

	// Lay out chunks sequentially inside mdat and patch each trak's stco
	// with the real offset now that moov's size (and therefore mdat's
	// start) is known.
	var mdatPayload []byte
	offset := mdatDataStart
	for i, s := range spec.Stems {
		setChunkOffset(traks[i], offset)
		mdatPayload = append(mdatPayload, s.Data...)
		offset += int64(len(s.Data))
	}
	if subTrak != nil {
		setChunkOffset(subTrak, offset)
		mdatPayload = append(mdatPayload, spec.Subtitle...)
	}

	mdat := &bmff.Box{Type: "mdat", Payload: mdatPayload}
	full := &bmff.Box{Children: []*bmff.Box{ftyp, moov, mdat}}
	return bmff.Serialize(full)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func buildFtyp() *bmff.Box {
	payload := make([]byte, 16)
	copy(payload[0:4], "M4A ")
	binary.BigEndian.PutUint32(payload[4:8], 0)
	copy(payload[8:12], "M4A ")
	copy(payload[12:16], "mp42")
	return &bmff.Box{Type: "ftyp", Payload: payload}
}

func buildMvhd(timescale, duration uint32, nextTrackID int) *bmff.Box {
	p := make([]byte, 100)
	// p[0:4] version/flags stay zero (version 0).
	binary.BigEndian.PutUint32(p[12:16], timescale)
	binary.BigEndian.PutUint32(p[16:20], duration)
	binary.BigEndian.PutUint32(p[20:24], 0x00010000) // rate = 1.0
	p[24] = 0x01                                     // volume hi byte = 1.0
	// matrix at p[36:72] left zero; a real unity matrix isn't needed for
	// anything this repo reads.
	binary.BigEndian.PutUint32(p[96:100], uint32(nextTrackID))
	return &bmff.Box{Type: "mvhd", Payload: p}
}

func buildTkhd(trackID int, enabled, isDefault bool) *bmff.Box {
	p := make([]byte, 84)
	if enabled {
		p[3] = 0x01
	}
	if isDefault {
		p[3] |= 0x02
	}
	binary.BigEndian.PutUint32(p[4:8], uint32(trackID))
	return &bmff.Box{Type: "tkhd", Payload: p}
}

func buildMdhd(timescale uint32, durationUnits uint32) *bmff.Box {
	p := make([]byte, 24)
	binary.BigEndian.PutUint32(p[12:16], timescale)
	binary.BigEndian.PutUint32(p[16:20], durationUnits)
	binary.BigEndian.PutUint16(p[20:22], 0x55c4) // "und" language code
	return &bmff.Box{Type: "mdhd", Payload: p}
}

func buildHdlr(handlerType string) *bmff.Box {
	p := make([]byte, 25)
	copy(p[8:12], handlerType)
	// p[24] is the single NUL byte terminating the (empty) component name.
	return &bmff.Box{Type: "hdlr", Payload: p}
}

// buildSampleTable assembles stbl with one chunk holding one sample of
// sampleSize bytes, plus a minimal stsd whose single entry's type is
// opaque to this repo (neither pkg/bmff nor pkg/container inspects it).
func buildSampleTable(sampleEntryType string, sampleSize int) *bmff.Box {
	stsd := &bmff.Box{Type: "stsd", Payload: buildStsd(sampleEntryType)}

	stts := &bmff.Box{Type: "stts", Payload: tableHeader(1, u32pairs(1, 1))}
	stsc := &bmff.Box{Type: "stsc", Payload: tableHeader(1, u32triples(1, 1, 1))}

	stszPayload := make([]byte, 16)
	binary.BigEndian.PutUint32(stszPayload[4:8], uint32(sampleSize))
	binary.BigEndian.PutUint32(stszPayload[8:12], 1)
	stsz := &bmff.Box{Type: "stsz", Payload: stszPayload}

	stco := &bmff.Box{Type: "stco", Payload: tableHeader(1, []byte{0, 0, 0, 0})}

	return &bmff.Box{Type: "stbl", Children: []*bmff.Box{stsd, stts, stsc, stsz, stco}}
}

func buildStsd(sampleEntryType string) []byte {
	entry := make([]byte, 16)
	binary.BigEndian.PutUint32(entry[0:4], 16)
	copy(entry[4:8], sampleEntryType)
	binary.BigEndian.PutUint16(entry[14:16], 1) // data_reference_index

	out := make([]byte, 8+len(entry))
	binary.BigEndian.PutUint32(out[4:8], 1) // entry_count
	copy(out[8:], entry)
	return out
}

func tableHeader(entryCount uint32, entries []byte) []byte {
	out := make([]byte, 8+len(entries))
	binary.BigEndian.PutUint32(out[4:8], entryCount)
	copy(out[8:], entries)
	return out
}

func u32pairs(a, b uint32) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[0:4], a)
	binary.BigEndian.PutUint32(out[4:8], b)
	return out
}

func u32triples(a, b, c uint32) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], a)
	binary.BigEndian.PutUint32(out[4:8], b)
	binary.BigEndian.PutUint32(out[8:12], c)
	return out
}

func buildAudioTrak(trackID int, timescale uint32, data []byte) *bmff.Box {
	tkhd := buildTkhd(trackID, trackID == 1, trackID == 1)
	mdia := &bmff.Box{Type: "mdia", Children: []*bmff.Box{
		buildMdhd(timescale, uint32(len(data))),
		buildHdlr("soun"),
		{Type: "minf", Children: []*bmff.Box{
			{Type: "stbl"}, // placeholder, replaced below to keep minf ordering readable
		}},
	}}
	minf := mdia.Children[2]
	minf.Children[0] = buildSampleTable("mp4a", len(data))
	return &bmff.Box{Type: "trak", Children: []*bmff.Box{tkhd, mdia}}
}

func buildTextTrak(trackID int, timescale uint32, sampleSize int) *bmff.Box {
	tkhd := buildTkhd(trackID, true, false)
	stbl := buildSampleTable("text", 0)
	// The subtitle track's samples vary in size (the mov_text payload
	// changes on every save), so its stsz is explicit-size rather than
	// uniform: sample_size=0, one explicit entry.
	stszPayload := make([]byte, 16)
	binary.BigEndian.PutUint32(stszPayload[8:12], 1)
	binary.BigEndian.PutUint32(stszPayload[12:16], uint32(sampleSize))
	stbl.Find("stsz").Payload = stszPayload

	mdia := &bmff.Box{Type: "mdia", Children: []*bmff.Box{
		buildMdhd(timescale, uint32(sampleSize)),
		buildHdlr("text"),
		{Type: "minf", Children: []*bmff.Box{stbl}},
	}}
	return &bmff.Box{Type: "trak", Children: []*bmff.Box{tkhd, mdia}}
}

// setChunkOffset overwrites trak's stco with a single entry equal to
// offset.
func setChunkOffset(trak *bmff.Box, offset int64) {
	stbl := trak.Path("mdia", "minf", "stbl")
	stco := stbl.Find("stco")
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[4:8], 1)
	binary.BigEndian.PutUint32(out[8:12], uint32(offset))
	stco.Payload = out
}
