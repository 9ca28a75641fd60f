package container

import (
	"bytes"
	"time"

	gomp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/encoderdelay"
	"github.com/stemsapp/kai/pkg/freeform"
	"github.com/stemsapp/kai/pkg/kaierrors"
	"github.com/stemsapp/kai/pkg/karaoke"
	"github.com/stemsapp/kai/pkg/webvtt"
)

const (
	freeformNamespace = "com.stems"
	kaidName          = "kaid"
	vpchName          = "vpch"
	konsName          = "kons"
)

var itunesAtomTypes = map[string]string{
	"\xa9nam": "title",
	"\xa9ART": "artist",
	"\xa9alb": "album",
	"\xa9day": "year",
	"\xa9gen": "genre",
	"\xa9cmt": "comment",
	"\xa9too": "encoder",
}

// loadM4A is the M4A/MP4 branch of Load: parse via bmff (C1) and decode
// known freeform items via freeform+karaoke (C4+C5). Song.Lines comes from
// the kaid JSON alone; the subtitle track is not read here, and no
// encoder-delay compensation is applied to the decoded payload.
func loadM4A(path string, data []byte) (*Song, error) {
	root, err := bmff.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "container: parse %s", path)
	}

	moov := root.Find("moov")
	if moov == nil {
		return nil, errors.Wrapf(kaierrors.ErrMalformedBox, "%s: no moov box", path)
	}

	song, err := decodeKaraokePayload(moov)
	if err != nil {
		return nil, err
	}

	if song == nil && isStemFile(path) {
		return nil, errors.Wrapf(kaierrors.ErrMissingKaraokePayload, "%s", path)
	}
	if song == nil {
		song = &karaoke.Song{}
	}

	duration, err := readDuration(data)
	if err != nil {
		// Duration enrichment is best-effort; a file with an unreadable
		// mvhd still loads with its karaoke payload intact.
		duration = 0
	}

	return &Song{
		Song:       song,
		SourcePath: path,
		Duration:   duration,
		Tracks:     listTracks(moov),
	}, nil
}

// isStemFile reports whether path names a .stem.m4a file, the one
// extension whose missing kaid is an error rather than an empty payload.
func isStemFile(path string) bool {
	const suffix = ".stem.m4a"
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}

// decodeKaraokePayload locates moov/udta/meta/ilst and decodes the
// com.stems:kaid/vpch/kons freeform items, plus the iTunes atoms, into a
// karaoke.Song. Returns (nil, nil) when there is no ilst at all or no
// kaid item within it — missing payload items default to empty sequences
// per §4.8, except the .stem.m4a case the caller checks separately.
func decodeKaraokePayload(moov *bmff.Box) (*karaoke.Song, error) {
	ilst := moov.Path("udta", "meta", "ilst")
	if ilst == nil {
		return nil, nil
	}

	items, _ := freeform.DecodeAll(ilst)

	var kaidItem, vpchItem, konsItem *freeform.Item
	for i := range items {
		switch {
		case items[i].Match(freeformNamespace, kaidName):
			kaidItem = &items[i]
		case items[i].Match(freeformNamespace, vpchName):
			vpchItem = &items[i]
		case items[i].Match(freeformNamespace, konsName):
			konsItem = &items[i]
		}
	}

	if kaidItem == nil {
		return nil, nil
	}

	song, err := karaoke.DecodeKaid(kaidItem.Value)
	if err != nil {
		return nil, err
	}

	if vpchItem != nil {
		pitch, err := karaoke.DecodePitch(vpchItem.Value)
		if err != nil {
			return nil, err
		}
		song.VocalPitch = pitch
	}
	if konsItem != nil {
		onsets, err := karaoke.DecodeOnsets(konsItem.Value)
		if err != nil {
			return nil, err
		}
		song.Onsets = onsets
	}

	song.ITunesMetadata = decodeITunesMetadata(ilst)
	return song, nil
}

func decodeITunesMetadata(ilst *bmff.Box) karaoke.ITunesMetadata {
	var meta karaoke.ITunesMetadata
	for _, c := range ilst.Children {
		data := c.Find("data")
		if data == nil || len(data.Payload) < 8 {
			continue
		}
		value := data.Payload[8:]
		switch itunesAtomTypes[c.Type] {
		case "title":
			meta.Title = string(value)
		case "artist":
			meta.Artist = string(value)
		case "album":
			meta.Album = string(value)
		case "year":
			meta.Year = string(value)
		case "genre":
			meta.Genre = string(value)
		case "comment":
			meta.Comment = string(value)
		case "encoder":
			meta.Encoder = string(value)
		}
		if c.Type == "covr" {
			meta.CoverArt = value
			if mime, err := karaoke.SniffCoverMime(value); err == nil {
				meta.CoverMime = mime
			}
		}
		if c.Type == "stik" && len(value) >= 1 {
			meta.MediaType = int(value[0])
		}
	}
	return meta
}

// readSubtitleLines loads and decodes the subtitle track's single mov_text
// sample into LyricLines via webvtt, applying comp. Neither loadM4A nor
// Validate calls it; kaid JSON is the authoritative source for
// Song.Lines.
func readSubtitleLines(data []byte, moov *bmff.Box, comp encoderdelay.Compensator) ([]karaoke.LyricLine, []error, error) {
	trak := findTrakByHandler(moov, "text")
	if trak == nil {
		return nil, nil, nil
	}
	stbl := trak.Path("mdia", "minf", "stbl")
	if stbl == nil {
		return nil, nil, errors.New("container: subtitle trak has no stbl")
	}
	offset, _, err := singleChunkOffset(stbl)
	if err != nil {
		return nil, nil, err
	}
	size, err := singleSampleSize(stbl)
	if err != nil {
		return nil, nil, err
	}
	if offset < 0 || size < 2 || offset+size > int64(len(data)) {
		return nil, nil, errors.WithStack(kaierrors.ErrMalformedBox)
	}
	sample := data[offset : offset+size]
	textLen := int64(sample[0])<<8 | int64(sample[1])
	if 2+textLen > size {
		return nil, nil, errors.WithStack(kaierrors.ErrMalformedBox)
	}
	doc := string(sample[2 : 2+textLen])

	lines, errs := webvtt.Decode(doc, comp)
	return lines, errs, nil
}

func listTracks(moov *bmff.Box) []TrackInfo {
	var out []TrackInfo
	idx := 0
	for _, trak := range moov.Children {
		if trak.Type != "trak" {
			continue
		}
		hdlr := trak.Path("mdia", "hdlr")
		handler := ""
		if hdlr != nil && len(hdlr.Payload) >= 12 {
			handler = string(hdlr.Payload[8:12])
		}
		tkhd := trak.Find("tkhd")
		enabled := false
		if tkhd != nil && len(tkhd.Payload) >= 4 {
			flags := uint32(tkhd.Payload[1])<<16 | uint32(tkhd.Payload[2])<<8 | uint32(tkhd.Payload[3])
			enabled = flags&0x1 != 0
		}
		out = append(out, TrackInfo{Index: idx, Handler: handler, Enabled: enabled, IsDefault: idx == 0})
		idx++
	}
	return out
}

// readDuration uses go-mp4, deliberately a second independent box walker
// from pkg/bmff, to pull mvhd's duration/timescale. Keeping this read
// path separate from our own hand-rolled parser means a bug in pkg/bmff
// can't also hide inside the value the validator (C11) later re-checks
// against (see validate.go).
func readDuration(data []byte) (time.Duration, error) {
	r := bytes.NewReader(data)
	var timescale uint32
	var duration uint64
	var version uint8
	_, err := gomp4.ReadBoxStructure(r, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeMoov(), gomp4.BoxTypeMvhd():
			if h.BoxInfo.Type == gomp4.BoxTypeMvhd() {
				payload, _, err := h.ReadPayload()
				if err != nil {
					return nil, err
				}
				if mvhd, ok := payload.(*gomp4.Mvhd); ok {
					timescale = mvhd.Timescale
					version = mvhd.Version
					if version == 0 {
						duration = uint64(mvhd.DurationV0)
					} else {
						duration = mvhd.DurationV1
					}
				}
				return nil, nil
			}
			return h.Expand()
		default:
			return nil, nil
		}
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if timescale == 0 {
		return 0, nil
	}
	return time.Duration(float64(duration) / float64(timescale) * float64(time.Second)), nil
}
